package secrets

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncryptDecryptRoundTrip(t *testing.T) {
	box, err := NewBox("unit-test-secret")
	require.NoError(t, err)

	ciphertext, err := box.Encrypt("sk-test-1234567890")
	require.NoError(t, err)
	assert.NotEqual(t, "sk-test-1234567890", ciphertext)

	plaintext, err := box.Decrypt(ciphertext)
	require.NoError(t, err)
	assert.Equal(t, "sk-test-1234567890", plaintext)
}

func TestEncryptIsNondeterministic(t *testing.T) {
	box, err := NewBox("unit-test-secret")
	require.NoError(t, err)

	a, err := box.Encrypt("same input")
	require.NoError(t, err)
	b, err := box.Encrypt("same input")
	require.NoError(t, err)

	assert.NotEqual(t, a, b)
}

func TestEmptyStringRoundTrips(t *testing.T) {
	box, err := NewBox("unit-test-secret")
	require.NoError(t, err)

	ciphertext, err := box.Encrypt("")
	require.NoError(t, err)
	assert.Empty(t, ciphertext)

	plaintext, err := box.Decrypt("")
	require.NoError(t, err)
	assert.Empty(t, plaintext)
}

func TestDecryptWithWrongSecretFails(t *testing.T) {
	box1, err := NewBox("secret-one")
	require.NoError(t, err)
	box2, err := NewBox("secret-two")
	require.NoError(t, err)

	ciphertext, err := box1.Encrypt("sensitive")
	require.NoError(t, err)

	_, err = box2.Decrypt(ciphertext)
	assert.Error(t, err)
}

func TestDecryptGarbageFails(t *testing.T) {
	box, err := NewBox("unit-test-secret")
	require.NoError(t, err)

	_, err = box.Decrypt("not base64!!!")
	assert.Error(t, err)

	_, err = box.Decrypt("YWJj")
	assert.Error(t, err)
}

func TestNewBoxRequiresSecret(t *testing.T) {
	_, err := NewBox("")
	assert.Error(t, err)
}
