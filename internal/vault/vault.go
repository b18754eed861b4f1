package vault

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"io"
)

// Vault provides authenticated symmetric encryption for secrets at rest.
// The key is derived from a stable process-wide secret, never configured by
// the operator directly. Ciphertext layout is nonce || sealed, URL-safe
// base64 encoded without padding for storage in the key-value store.
type Vault struct {
	key  []byte
	rand io.Reader // injectable for deterministic tests
}

// New derives a 32-byte AES key from the process secret.
func New(secret string) *Vault {
	key := sha256.Sum256([]byte(secret))
	return &Vault{key: key[:], rand: rand.Reader}
}

// NewWithRand is New with an injected randomness source.
func NewWithRand(secret string, r io.Reader) *Vault {
	v := New(secret)
	v.rand = r
	return v
}

// Encrypt seals a plaintext value for storage.
//
// Parameters:
// - plaintext string: The value to protect. May be empty.
//
// Returns:
// - string: URL-safe base64 of nonce-prefixed AES-GCM ciphertext.
// - error: An error if cipher construction or nonce generation fails.
func (v *Vault) Encrypt(plaintext string) (string, error) {
	block, err := aes.NewCipher(v.key)
	if err != nil {
		return "", err
	}

	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return "", err
	}

	nonce := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(v.rand, nonce); err != nil {
		return "", err
	}

	sealed := gcm.Seal(nonce, nonce, []byte(plaintext), nil)
	return base64.RawURLEncoding.EncodeToString(sealed), nil
}

// Decrypt opens a stored ciphertext. Any failure (corrupt ciphertext, wrong
// key, bad encoding) degrades to an empty string so callers treat the
// secret as absent and regenerate rather than crash.
func (v *Vault) Decrypt(encoded string) string {
	if encoded == "" {
		return ""
	}

	data, err := base64.RawURLEncoding.DecodeString(encoded)
	if err != nil {
		// Tolerate values stored with padding.
		data, err = base64.URLEncoding.DecodeString(encoded)
		if err != nil {
			return ""
		}
	}

	block, err := aes.NewCipher(v.key)
	if err != nil {
		return ""
	}

	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return ""
	}

	nonceSize := gcm.NonceSize()
	if len(data) < nonceSize {
		return ""
	}

	nonce, ciphertext := data[:nonceSize], data[nonceSize:]
	plaintext, err := gcm.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return ""
	}
	return string(plaintext)
}
