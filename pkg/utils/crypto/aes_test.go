package crypto

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncryptDecrypt(t *testing.T) {
	sealed, err := Encrypt("s3cret", "passphrase")
	require.NoError(t, err)
	assert.NotEqual(t, "s3cret", sealed)

	plain, err := Decrypt(sealed, "passphrase")
	require.NoError(t, err)
	assert.Equal(t, "s3cret", plain)
}

func TestDecrypt_Errors(t *testing.T) {
	sealed, err := Encrypt("s3cret", "passphrase")
	require.NoError(t, err)

	_, err = Decrypt(sealed, "other")
	assert.ErrorIs(t, err, ErrDecryptionFailed)

	_, err = Decrypt("!!not base64", "passphrase")
	assert.ErrorIs(t, err, ErrInvalidCipherText)

	_, err = Decrypt("YWJj", "passphrase")
	assert.ErrorIs(t, err, ErrInvalidCipherText)

	_, err = Decrypt(sealed, "")
	assert.ErrorIs(t, err, ErrInvalidKey)
}

func TestSecrets(t *testing.T) {
	sealed, err := SealSecret("hunter2", "k")
	require.NoError(t, err)
	assert.True(t, len(sealed) > len(SecretPrefix) && sealed[:len(SecretPrefix)] == SecretPrefix)

	plain, err := OpenSecret(sealed, "k")
	require.NoError(t, err)
	assert.Equal(t, "hunter2", plain)

	plain, err = OpenSecret("not sealed", "")
	require.NoError(t, err)
	assert.Equal(t, "not sealed", plain)

	_, err = SealSecret("x", "")
	assert.ErrorIs(t, err, ErrInvalidKey)
}
