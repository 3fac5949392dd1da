package domain

import "strings"

// Envelope is the opaque record travelling through the drivers. The engine only
// reads the message field and the polling flag; every other field is passed
// through untouched.
type Envelope map[string]any

// Clone returns a shallow copy. Nested values are shared.
func (e Envelope) Clone() Envelope {
	out := make(Envelope, len(e)+2)
	for k, v := range e {
		out[k] = v
	}
	return out
}

// IsPoll reports whether the envelope is a poll check.
func (e Envelope) IsPoll() bool {
	v, ok := e[PollingSignalKey]
	if !ok {
		return false
	}
	switch flag := v.(type) {
	case bool:
		return flag
	case string:
		return strings.EqualFold(flag, "true")
	}
	return false
}

// WithPoll returns a copy carrying the polling flag.
func (e Envelope) WithPoll() Envelope {
	out := e.Clone()
	out[PollingSignalKey] = true
	return out
}

// WithoutPoll returns a copy with the polling flag removed.
func (e Envelope) WithoutPoll() Envelope {
	out := e.Clone()
	delete(out, PollingSignalKey)
	return out
}

// Text returns the field as a non-blank string. Missing, non-string and
// whitespace-only values report false.
func (e Envelope) Text(field string) (string, bool) {
	s, ok := e[field].(string)
	if !ok || strings.TrimSpace(s) == "" {
		return "", false
	}
	return s, true
}
