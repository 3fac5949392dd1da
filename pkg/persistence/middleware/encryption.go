package middleware

import (
	"context"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/aretw0/settle/pkg/ports"
)

// encryptedPrefix tags list values written by this middleware.
const encryptedPrefix = "enc:v1:"

// EncryptionConfig holds the keys for encryption and decryption.
type EncryptionConfig struct {
	// ActiveKey is the key used for encrypting new data.
	// Must be 32 bytes for AES-256.
	ActiveKey []byte

	// FallbackKeys is a list of old keys to try when decryption fails.
	// This enables zero-downtime key rotation.
	FallbackKeys [][]byte
}

type encryptionMiddleware struct {
	next   ports.ConversationStore
	config EncryptionConfig
}

type drainingEncryption struct {
	*encryptionMiddleware
	drainer ports.Drainer
}

// NewEncryptionMiddleware creates a middleware that encrypts buffered messages
// using AES-GCM. Timer markers carry no content and pass through in clear.
// The Drainer capability of the wrapped store is preserved.
func NewEncryptionMiddleware(config EncryptionConfig) Middleware {
	if len(config.ActiveKey) != 32 {
		panic("active key must be 32 bytes (AES-256)")
	}
	return func(next ports.ConversationStore) ports.ConversationStore {
		m := &encryptionMiddleware{
			next:   next,
			config: config,
		}
		if d, ok := next.(ports.Drainer); ok {
			return &drainingEncryption{encryptionMiddleware: m, drainer: d}
		}
		return m
	}
}

func (m *encryptionMiddleware) ListAppend(ctx context.Context, key, value string) error {
	ciphertext, err := encrypt([]byte(value), m.config.ActiveKey)
	if err != nil {
		return fmt.Errorf("failed to encrypt message: %w", err)
	}
	return m.next.ListAppend(ctx, key, encryptedPrefix+base64.StdEncoding.EncodeToString(ciphertext))
}

func (m *encryptionMiddleware) ListAll(ctx context.Context, key string) ([]string, error) {
	values, err := m.next.ListAll(ctx, key)
	if err != nil {
		return nil, err
	}
	return m.decryptAll(values)
}

func (m *drainingEncryption) Drain(ctx context.Context, key string) ([]string, error) {
	values, err := m.drainer.Drain(ctx, key)
	if err != nil {
		return nil, err
	}
	return m.decryptAll(values)
}

func (m *encryptionMiddleware) Exists(ctx context.Context, key string) (bool, error) {
	return m.next.Exists(ctx, key)
}

func (m *encryptionMiddleware) SetWithExpiry(ctx context.Context, key, value string, ttl time.Duration) error {
	return m.next.SetWithExpiry(ctx, key, value, ttl)
}

func (m *encryptionMiddleware) Delete(ctx context.Context, key string) error {
	return m.next.Delete(ctx, key)
}

func (m *encryptionMiddleware) decryptAll(values []string) ([]string, error) {
	out := make([]string, len(values))
	for i, v := range values {
		encoded, ok := strings.CutPrefix(v, encryptedPrefix)
		if !ok {
			// Fail secure: a plaintext value in an encrypted buffer is not trusted.
			return nil, errors.New("message is missing encrypted data envelope")
		}
		ciphertext, err := base64.StdEncoding.DecodeString(encoded)
		if err != nil {
			return nil, fmt.Errorf("failed to decode ciphertext base64: %w", err)
		}
		plain, err := decryptWithRotation(ciphertext, m.config.ActiveKey, m.config.FallbackKeys)
		if err != nil {
			return nil, fmt.Errorf("failed to decrypt message: %w", err)
		}
		out[i] = string(plain)
	}
	return out, nil
}

// Helpers

func encrypt(plaintext []byte, key []byte) ([]byte, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}

	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, err
	}

	nonce := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, err
	}

	return gcm.Seal(nonce, nonce, plaintext, nil), nil
}

func decryptWithRotation(ciphertext []byte, activeKey []byte, fallbackKeys [][]byte) ([]byte, error) {
	// Try active key first
	if plain, err := decrypt(ciphertext, activeKey); err == nil {
		return plain, nil
	}

	// Try fallbacks in order
	for _, key := range fallbackKeys {
		if plain, err := decrypt(ciphertext, key); err == nil {
			return plain, nil
		}
	}

	return nil, errors.New("decryption failed with all available keys")
}

func decrypt(ciphertext []byte, key []byte) ([]byte, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}

	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, err
	}

	if len(ciphertext) < gcm.NonceSize() {
		return nil, errors.New("ciphertext too short")
	}

	nonce := ciphertext[:gcm.NonceSize()]
	ciphertextBytes := ciphertext[gcm.NonceSize():]

	return gcm.Open(nil, nonce, ciphertextBytes, nil)
}
