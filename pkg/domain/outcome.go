package domain

// Classification is the routing decision for an activation. Its value doubles as
// the output channel name.
type Classification string

const (
	Ready     Classification = "ready"
	Wait      Classification = "wait"
	Discarded Classification = "discarded"
)

// DiscardReason explains a discarded outcome. Discards are expected routing,
// not errors.
type DiscardReason string

const (
	// ReasonEmptyPayload: a raw message whose message field was missing or blank.
	ReasonEmptyPayload DiscardReason = "empty_payload"
	// ReasonExpiredEmpty: the window elapsed but nothing was buffered, typically
	// because another activation already drained it.
	ReasonExpiredEmpty DiscardReason = "expired_empty"
)

// Outcome is the result of one activation.
type Outcome struct {
	Classification Classification `json:"channel"`
	Reason         DiscardReason  `json:"reason,omitempty"`
	Key            string         `json:"conversationKey,omitempty"`

	// Payload is the record emitted on the channel.
	Payload Envelope `json:"payload"`

	// Messages and Consolidated are set on ready outcomes. They mirror the
	// values written into Payload.
	Messages     []string `json:"-"`
	Consolidated string   `json:"-"`

	// Failure is set when continue-on-fail routed a failed activation.
	Failure error `json:"-"`
}

// Channel returns the output channel name.
func (o *Outcome) Channel() string {
	return string(o.Classification)
}

// Settled reports whether the conversation cycle ended with this outcome.
func (o *Outcome) Settled() bool {
	return o.Classification == Ready || o.Classification == Discarded
}

// Snapshot is a read-only view of a conversation's persisted state.
type Snapshot struct {
	Key      string   `json:"conversationKey" yaml:"conversation_key"`
	Open     bool     `json:"windowOpen" yaml:"window_open"`
	Messages []string `json:"messages" yaml:"messages"`
}
