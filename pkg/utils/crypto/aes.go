package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"io"
	"strings"
)

// SecretPrefix marks a config value as sealed with SealSecret.
const SecretPrefix = "enc:"

var (
	ErrInvalidKey        = errors.New("crypto: invalid encryption key")
	ErrEncryptionFailed  = errors.New("crypto: encryption failed")
	ErrDecryptionFailed  = errors.New("crypto: decryption failed")
	ErrInvalidCipherText = errors.New("crypto: invalid cipher text")
)

// newGCM derives a 32-byte AES-256 key from any passphrase.
func newGCM(key string) (cipher.AEAD, error) {
	if key == "" {
		return nil, ErrInvalidKey
	}
	sum := sha256.Sum256([]byte(key))
	block, err := aes.NewCipher(sum[:])
	if err != nil {
		return nil, err
	}
	return cipher.NewGCM(block)
}

// Encrypt seals plainText with AES-256-GCM and returns base64(nonce|ciphertext).
func Encrypt(plainText, key string) (string, error) {
	gcm, err := newGCM(key)
	if errors.Is(err, ErrInvalidKey) {
		return "", err
	}
	if err != nil {
		return "", ErrEncryptionFailed
	}

	nonce := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", ErrEncryptionFailed
	}
	return base64.StdEncoding.EncodeToString(gcm.Seal(nonce, nonce, []byte(plainText), nil)), nil
}

func Decrypt(cipherText, key string) (string, error) {
	gcm, err := newGCM(key)
	if errors.Is(err, ErrInvalidKey) {
		return "", err
	}
	if err != nil {
		return "", ErrDecryptionFailed
	}

	data, err := base64.StdEncoding.DecodeString(cipherText)
	if err != nil || len(data) < gcm.NonceSize() {
		return "", ErrInvalidCipherText
	}

	nonce, sealed := data[:gcm.NonceSize()], data[gcm.NonceSize():]
	plain, err := gcm.Open(nil, nonce, sealed, nil)
	if err != nil {
		return "", ErrDecryptionFailed
	}
	return string(plain), nil
}

// SealSecret encrypts value and prefixes it so OpenSecret can recognise it.
func SealSecret(value, key string) (string, error) {
	sealed, err := Encrypt(value, key)
	if err != nil {
		return "", err
	}
	return SecretPrefix + sealed, nil
}

// OpenSecret returns value unchanged unless it carries SecretPrefix, in which
// case the remainder is decrypted with key.
func OpenSecret(value, key string) (string, error) {
	if !strings.HasPrefix(value, SecretPrefix) {
		return value, nil
	}
	return Decrypt(strings.TrimPrefix(value, SecretPrefix), key)
}
