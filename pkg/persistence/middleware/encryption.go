// Package middleware provides ProgressStore wrappers for cross-cutting
// persistence concerns. In-progress form state carries visitor PII
// (typed emails, phone numbers) long before a lead is submitted, so
// deployments can encrypt it at rest without touching the runtime.
package middleware

import (
	"context"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/stepflow-dev/stepflow/pkg/domain"
	"github.com/stepflow-dev/stepflow/pkg/ports"
)

// envelopeField marks a stored state as an encrypted envelope.
const envelopeField = "__encrypted__"

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
	next   ports.ProgressStore
	config EncryptionConfig
}

// NewEncryptionMiddleware creates a middleware that encrypts stored
// progress using AES-GCM.
func NewEncryptionMiddleware(config EncryptionConfig) Middleware {
	if len(config.ActiveKey) != 32 {
		panic("active key must be 32 bytes (AES-256)")
	}
	return func(next ports.ProgressStore) ports.ProgressStore {
		return &encryptionMiddleware{next: next, config: config}
	}
}

func (m *encryptionMiddleware) Save(ctx context.Context, key string, state *domain.NavigationState) error {
	plainText, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("failed to marshal state: %w", err)
	}

	ciphertext, err := encrypt(plainText, m.config.ActiveKey)
	if err != nil {
		return fmt.Errorf("failed to encrypt state: %w", err)
	}

	// The stored envelope hides everything: step position, answers, and
	// typed fields all live inside the ciphertext.
	envelope := &domain.NavigationState{
		SessionID:     state.SessionID,
		CurrentStepID: "encrypted",
		Fields: map[string]string{
			envelopeField: base64.StdEncoding.EncodeToString(ciphertext),
		},
	}
	return m.next.Save(ctx, key, envelope)
}

func (m *encryptionMiddleware) Load(ctx context.Context, key string) (*domain.NavigationState, error) {
	envelope, err := m.next.Load(ctx, key)
	if err != nil {
		return nil, err
	}

	encryptedStr, ok := envelope.Fields[envelopeField]
	if !ok {
		// Fail secure: with encryption configured, a plain state in the
		// store is unexpected.
		return nil, errors.New("state is missing encrypted data envelope")
	}

	ciphertext, err := base64.StdEncoding.DecodeString(encryptedStr)
	if err != nil {
		return nil, fmt.Errorf("failed to decode ciphertext base64: %w", err)
	}

	plainText, err := decryptWithRotation(ciphertext, m.config.ActiveKey, m.config.FallbackKeys)
	if err != nil {
		return nil, fmt.Errorf("failed to decrypt state: %w", err)
	}

	var state domain.NavigationState
	if err := json.Unmarshal(plainText, &state); err != nil {
		return nil, fmt.Errorf("failed to unmarshal decrypted state: %w", err)
	}
	return &state, nil
}

func (m *encryptionMiddleware) Clear(ctx context.Context, key string) error {
	return m.next.Clear(ctx, key)
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
	if plain, err := decrypt(ciphertext, activeKey); err == nil {
		return plain, nil
	}

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
