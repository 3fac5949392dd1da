package domain

import (
	"errors"
	"strings"
)

// ConversationKey groups the events that are consolidated together.
// It is compared byte for byte; no normalization is applied.
type ConversationKey string

// Validate rejects empty keys.
func (k ConversationKey) Validate() error {
	if k == "" {
		return errors.New("conversation key must not be empty")
	}
	return nil
}

// BufferKey is the store key of the message list.
func (k ConversationKey) BufferKey() string {
	return BufferKeyPrefix + string(k)
}

// TimerKey is the store key of the expiring timer marker.
func (k ConversationKey) TimerKey() string {
	return TimerKeyPrefix + string(k)
}

// Consolidate joins messages in append order with a single space.
func Consolidate(messages []string) string {
	return strings.Join(messages, MessageSeparator)
}
