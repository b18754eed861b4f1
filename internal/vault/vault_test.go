package vault

import (
	"crypto/rand"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestEncryptDecryptRoundTrip(t *testing.T) {
	v := New("test-process-secret")

	random := make([]byte, 64)
	_, err := rand.Read(random)
	assert.NoError(t, err)

	cases := []string{
		"ck_0123456789abcdef0123456789abcdef01234567",
		"",
		"short",
		string(random),
	}

	for _, plaintext := range cases {
		encoded, err := v.Encrypt(plaintext)
		assert.NoError(t, err)
		assert.Equal(t, plaintext, v.Decrypt(encoded))
	}
}

func TestEncryptProducesDistinctCiphertexts(t *testing.T) {
	v := New("test-process-secret")

	a, err := v.Encrypt("same-value")
	assert.NoError(t, err)
	b, err := v.Encrypt("same-value")
	assert.NoError(t, err)

	// Random nonces mean identical plaintexts never share ciphertext.
	assert.NotEqual(t, a, b)
}

func TestDecryptDegradesToEmpty(t *testing.T) {
	v := New("test-process-secret")

	encoded, err := v.Encrypt("secret-value")
	assert.NoError(t, err)

	// Wrong key.
	other := New("a-different-secret")
	assert.Equal(t, "", other.Decrypt(encoded))

	// Corrupt ciphertext.
	assert.Equal(t, "", v.Decrypt(encoded[:len(encoded)-4]+"AAAA"))

	// Not base64 at all.
	assert.Equal(t, "", v.Decrypt("%%%not-base64%%%"))

	// Too short to hold a nonce.
	assert.Equal(t, "", v.Decrypt("AAAA"))

	// Absent value.
	assert.Equal(t, "", v.Decrypt(""))
}
