package dh

import (
	"crypto/rand"
	"crypto/sha256"
	"errors"
	"fmt"

	"golang.org/x/crypto/curve25519"

	"cipherchat/internal/cryptographic/kdf"
)

const (
	KeySize       = 32
	SharedKeySize = 32
)

var sharedKeyInfo = []byte("cipherchat-shared-key-v1")

// ErrKeyDerivation reports a malformed or unusable key-agreement key.
var ErrKeyDerivation = errors.New("key derivation failed")

// Generate a new X25519 key pair
func NewX25519KeyPair() (priv, pub [32]byte, err error) {
	_, err = rand.Read(priv[:])
	if err != nil {
		return priv, pub, fmt.Errorf("failed to generate private key: %w", err)
	}
	curve25519.ScalarBaseMult(&pub, &priv)
	return priv, pub, nil
}

// KeyPairFromSeed derives a key pair deterministically from a seed so that
// independently started processes agree on a statically provisioned directory.
func KeyPairFromSeed(seed []byte) (priv, pub [32]byte) {
	priv = sha256.Sum256(seed)
	priv[0] &= 248
	priv[31] &= 127
	priv[31] |= 64
	curve25519.ScalarBaseMult(&pub, &priv)
	return priv, pub
}

// DeriveSharedKey computes the symmetric key for a conversation from the
// caller's private key and the counterpart's public key. Both participants
// derive bit-identical output from their respective pairs:
//
//	DeriveSharedKey(aPriv, bPub) == DeriveSharedKey(bPriv, aPub)
//
// The result is usable only as an AEAD key; it is never transmitted.
func DeriveSharedKey(ownPriv, peerPub []byte) ([]byte, error) {
	if len(ownPriv) != KeySize || len(peerPub) != KeySize {
		return nil, fmt.Errorf("%w: want %d-byte keys, got %d and %d",
			ErrKeyDerivation, KeySize, len(ownPriv), len(peerPub))
	}

	secret, err := curve25519.X25519(ownPriv, peerPub)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrKeyDerivation, err)
	}

	key := make([]byte, SharedKeySize)
	if _, err := kdf.HKDF(secret, nil, sharedKeyInfo, key); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrKeyDerivation, err)
	}
	return key, nil
}
