package encryption

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
)

// NonceSize is the AES-GCM nonce length prefixed to every ciphertext.
const NonceSize = 12

// ErrDecrypt reports that a blob could not be authenticated: tampering,
// truncation, bad encoding, or the wrong key. The cause is deliberately not
// distinguished; callers render a fixed placeholder.
var ErrDecrypt = errors.New("message authentication failed")

// Encrypt seals plaintext under a 32-byte shared key with AES-256-GCM.
// A fresh random nonce is generated for every call and prefixed to the
// sealed bytes; the combined output is base64-encoded for transport.
func Encrypt(key []byte, plaintext string) (string, error) {
	aead, err := newAEAD(key)
	if err != nil {
		return "", err
	}

	nonce := make([]byte, NonceSize)
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", fmt.Errorf("rand.Read nonce: %w", err)
	}

	sealed := aead.Seal(nil, nonce, []byte(plaintext), nil)
	// transport form: base64(nonce || ciphertext)
	return base64.StdEncoding.EncodeToString(append(nonce, sealed...)), nil
}

// Decrypt reverses Encrypt. Any failure wraps ErrDecrypt; partial plaintext
// is never returned.
func Decrypt(key []byte, blob string) (string, error) {
	aead, err := newAEAD(key)
	if err != nil {
		return "", err
	}

	combined, err := base64.StdEncoding.DecodeString(blob)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrDecrypt, err)
	}
	if len(combined) < NonceSize {
		return "", fmt.Errorf("%w: ciphertext too short", ErrDecrypt)
	}

	nonce := combined[:NonceSize]
	ct := combined[NonceSize:]
	plain, err := aead.Open(nil, nonce, ct, nil)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrDecrypt, err)
	}
	return string(plain), nil
}

func newAEAD(key []byte) (cipher.AEAD, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("aes.NewCipher: %w", err)
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("cipher.NewGCM: %w", err)
	}
	return aead, nil
}
