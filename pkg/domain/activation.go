package domain

import "github.com/google/uuid"

// Activation is a single unit of work handed to the engine by a driver.
type Activation struct {
	// ID correlates logs and hooks. It is not persisted.
	ID       string   `json:"id,omitempty"`
	Settings Settings `json:"settings"`
	Payload  Envelope `json:"payload"`
}

// NewActivation creates an activation with a fresh correlation id.
func NewActivation(settings Settings, payload Envelope) Activation {
	if payload == nil {
		payload = Envelope{}
	}
	return Activation{
		ID:       uuid.NewString(),
		Settings: settings,
		Payload:  payload,
	}
}

// IsPoll reports whether this activation is a poll check.
func (a Activation) IsPoll() bool {
	return a.Payload.IsPoll()
}

// Next builds the activation a driver submits for a wait outcome: same settings,
// the outcome's envelope, a new correlation id.
func (a Activation) Next(out *Outcome) Activation {
	return NewActivation(a.Settings, out.Payload)
}
