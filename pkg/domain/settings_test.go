package domain_test

import (
	"encoding/json"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/aretw0/settle/pkg/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSettings_WithDefaults(t *testing.T) {
	s := domain.Settings{ConversationKey: "u1", MessageField: "text"}.WithDefaults()

	assert.Equal(t, domain.DefaultOutputField, s.OutputField)
	assert.Equal(t, domain.DefaultAllMessagesField, s.AllMessagesField)
	assert.Equal(t, 5, s.WaitTimeSeconds)
	assert.Equal(t, 5*time.Second, s.WaitTime())
	assert.NoError(t, s.Validate())
}

func TestSettings_Validate(t *testing.T) {
	tests := []struct {
		name     string
		settings domain.Settings
		wantErr  string
	}{
		{
			name:     "missing message field",
			settings: domain.Settings{ConversationKey: "u1"},
			wantErr:  "messageField is required",
		},
		{
			name:     "missing key",
			settings: domain.Settings{MessageField: "text"},
			wantErr:  "conversationKey or conversationKeyField is required",
		},
		{
			name:     "negative wait",
			settings: domain.Settings{ConversationKey: "u1", MessageField: "text", WaitTimeSeconds: -1},
			wantErr:  "waitTimeSeconds must be >= 1",
		},
		{
			name:     "colliding output fields",
			settings: domain.Settings{ConversationKey: "u1", MessageField: "text", OutputField: "x", AllMessagesField: "x"},
			wantErr:  "must differ",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.settings.WithDefaults().Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestSettings_Merge(t *testing.T) {
	base := domain.Settings{MessageField: "text", WaitTimeSeconds: 10}
	merged := base.Merge(domain.Settings{ConversationKey: "chat-9", WaitTimeSeconds: 2})

	assert.Equal(t, "chat-9", merged.ConversationKey)
	assert.Equal(t, "text", merged.MessageField)
	assert.Equal(t, 2, merged.WaitTimeSeconds)
}

func TestSettings_ResolveKey(t *testing.T) {
	t.Run("Literal key wins", func(t *testing.T) {
		s := domain.Settings{ConversationKey: "u1", ConversationKeyField: "chatId"}
		key, err := s.ResolveKey(domain.Envelope{"chatId": "other"})
		require.NoError(t, err)
		assert.Equal(t, domain.ConversationKey("u1"), key)
	})

	t.Run("From payload", func(t *testing.T) {
		s := domain.Settings{ConversationKeyField: "chatId"}
		key, err := s.ResolveKey(domain.Envelope{"chatId": "c-42"})
		require.NoError(t, err)
		assert.Equal(t, domain.ConversationKey("c-42"), key)
	})

	t.Run("Numeric payload ids", func(t *testing.T) {
		s := domain.Settings{ConversationKeyField: "chatId"}
		key, err := s.ResolveKey(domain.Envelope{"chatId": float64(12345)})
		require.NoError(t, err)
		assert.Equal(t, domain.ConversationKey("12345"), key)
	})

	t.Run("Large float ids keep every digit", func(t *testing.T) {
		s := domain.Settings{ConversationKeyField: "chatId"}
		key, err := s.ResolveKey(domain.Envelope{"chatId": float64(1234567)})
		require.NoError(t, err)
		assert.Equal(t, domain.ConversationKey("1234567"), key)
	})

	t.Run("json.Number ids are used verbatim", func(t *testing.T) {
		s := domain.Settings{ConversationKeyField: "chatId"}
		a, err := s.ResolveKey(domain.Envelope{"chatId": json.Number("9007199254740993")})
		require.NoError(t, err)
		b, err := s.ResolveKey(domain.Envelope{"chatId": json.Number("9007199254740992")})
		require.NoError(t, err)

		assert.Equal(t, domain.ConversationKey("9007199254740993"), a)
		assert.NotEqual(t, a, b)
	})

	t.Run("Missing field", func(t *testing.T) {
		s := domain.Settings{ConversationKeyField: "chatId"}
		_, err := s.ResolveKey(domain.Envelope{})
		assert.Error(t, err)
	})

	t.Run("Empty value", func(t *testing.T) {
		s := domain.Settings{ConversationKeyField: "chatId"}
		_, err := s.ResolveKey(domain.Envelope{"chatId": ""})
		assert.Error(t, err)
	})
}

func TestConversationKey_DerivedKeys(t *testing.T) {
	k := domain.ConversationKey("User 1")
	assert.Equal(t, "msg:User 1", k.BufferKey())
	assert.Equal(t, "timer:User 1", k.TimerKey())
	assert.Error(t, domain.ConversationKey("").Validate())
}

func TestError_Matching(t *testing.T) {
	cause := errors.New("connection refused")
	err := domain.StoreError("exists", "u1", cause)

	assert.ErrorIs(t, err, domain.ErrStoreFailure)
	assert.NotErrorIs(t, err, domain.ErrConfiguration)
	assert.ErrorIs(t, err, cause)
	assert.Equal(t, domain.KindStoreFailure, domain.KindOf(err))
	assert.Equal(t, "store_failure: exists (conversation=u1): connection refused", err.Error())

	cfg := domain.ConfigError("connect", "", cause)
	assert.ErrorIs(t, cfg, domain.ErrConfiguration)
	assert.Equal(t, domain.ErrorKind(""), domain.KindOf(cause))

	assert.True(t, domain.IsUnavailable(fmt.Errorf("process: %w", cfg)))
	assert.False(t, domain.IsUnavailable(domain.ConfigError("resolve_key", "", cause)))
	assert.False(t, domain.IsUnavailable(domain.StoreError("connect", "", cause)))
	assert.False(t, domain.IsUnavailable(cause))
}
