package domain

import "time"

// Field and key constants shared by every adapter and driver.
const (
	// PollingSignalKey marks an envelope as a poll check. Drivers must feed
	// envelopes carrying it back into the engine until they settle.
	PollingSignalKey = "__isPollingSignal__"

	// DefaultOutputField receives the consolidated text on ready outcomes.
	DefaultOutputField = "consolidatedMessage"

	// DefaultAllMessagesField receives the ordered raw messages on ready outcomes.
	DefaultAllMessagesField = "allMessages"

	// DefaultWaitTimeSeconds is the wait window used when none is configured.
	DefaultWaitTimeSeconds = 5

	// BufferKeyPrefix and TimerKeyPrefix derive store keys from a conversation key.
	BufferKeyPrefix = "msg:"
	TimerKeyPrefix  = "timer:"

	// TimerMarkerValue is written to the timer key. Only presence is ever inspected.
	TimerMarkerValue = "1"

	// MessageSeparator joins buffered messages into the consolidated text.
	MessageSeparator = " "
)

// DefaultWaitTime is DefaultWaitTimeSeconds as a duration.
const DefaultWaitTime = DefaultWaitTimeSeconds * time.Second
