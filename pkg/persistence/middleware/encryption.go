package middleware

import (
	"context"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"errors"
	"fmt"
	"io"

	"github.com/aretw0/gamestate/pkg/domain"
	"github.com/aretw0/gamestate/pkg/ports"
)

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
	next   ports.CriticalDataStore
	config EncryptionConfig
}

// NewEncryptionMiddleware creates a middleware that seals every stored value with AES-GCM.
// The scope and path are bound as additional data, so a value copied to another key
// fails to decrypt.
func NewEncryptionMiddleware(config EncryptionConfig) Middleware {
	if len(config.ActiveKey) != 32 {
		panic("active key must be 32 bytes (AES-256)")
	}
	return func(next ports.CriticalDataStore) ports.CriticalDataStore {
		return &encryptionMiddleware{
			next:   next,
			config: config,
		}
	}
}

func (m *encryptionMiddleware) Begin(ctx context.Context, name string) (ports.Transaction, error) {
	tx, err := m.next.Begin(ctx, name)
	if err != nil {
		return nil, err
	}
	return &encryptedTx{Transaction: tx, config: m.config}, nil
}

type encryptedTx struct {
	ports.Transaction
	config EncryptionConfig
}

func (t *encryptedTx) Read(scope domain.Scope, path string) ([]byte, error) {
	sealed, err := t.Transaction.Read(scope, path)
	if err != nil {
		return nil, err
	}
	plain, err := decryptWithRotation(sealed, associatedData(scope, path), t.config.ActiveKey, t.config.FallbackKeys)
	if err != nil {
		return nil, fmt.Errorf("failed to decrypt %s/%s: %w", scope, path, err)
	}
	return plain, nil
}

func (t *encryptedTx) Write(scope domain.Scope, path string, data []byte) error {
	sealed, err := encrypt(data, associatedData(scope, path), t.config.ActiveKey)
	if err != nil {
		return fmt.Errorf("failed to encrypt %s/%s: %w", scope, path, err)
	}
	return t.Transaction.Write(scope, path, sealed)
}

func associatedData(scope domain.Scope, path string) []byte {
	return []byte(string(scope) + "\x00" + path)
}

// Helpers

func encrypt(plaintext, aad, key []byte) ([]byte, error) {
	gcm, err := newGCM(key)
	if err != nil {
		return nil, err
	}

	nonce := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, err
	}

	return gcm.Seal(nonce, nonce, plaintext, aad), nil
}

func decryptWithRotation(ciphertext, aad, activeKey []byte, fallbackKeys [][]byte) ([]byte, error) {
	// Try active key first
	if plain, err := decrypt(ciphertext, aad, activeKey); err == nil {
		return plain, nil
	}

	// Try fallbacks in order
	for _, key := range fallbackKeys {
		if plain, err := decrypt(ciphertext, aad, key); err == nil {
			return plain, nil
		}
	}

	return nil, errors.New("decryption failed with all available keys")
}

func decrypt(ciphertext, aad, key []byte) ([]byte, error) {
	gcm, err := newGCM(key)
	if err != nil {
		return nil, err
	}

	if len(ciphertext) < gcm.NonceSize() {
		return nil, errors.New("ciphertext too short")
	}

	nonce := ciphertext[:gcm.NonceSize()]
	return gcm.Open(nil, nonce, ciphertext[gcm.NonceSize():], aad)
}

func newGCM(key []byte) (cipher.AEAD, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	return cipher.NewGCM(block)
}
