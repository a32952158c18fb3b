package dh

import (
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"

	"golang.org/x/crypto/curve25519"
)

// ErrInvalidPublicKey is returned for key material that is not a valid
// 32-byte X25519 point (or not valid base64 when decoding).
var ErrInvalidPublicKey = errors.New("invalid public key")

// Generate a new X25519 key pair
func NewX25519KeyPair() (priv, pub [32]byte, err error) {
	_, err = rand.Read(priv[:])
	if err != nil {
		return priv, pub, fmt.Errorf("failed to generate private key: %w", err)
	}
	curve25519.ScalarBaseMult(&pub, &priv)
	return priv, pub, nil
}

// PublicKeyFromSeed derives the X25519 public point for a 32-byte scalar.
func PublicKeyFromSeed(seed [32]byte) (pub [32]byte) {
	curve25519.ScalarBaseMult(&pub, &seed)
	return pub
}

// Perform X25519 scalar multiplication: priv * pub
func SharedSecret(priv, pub [32]byte) ([]byte, error) {
	return curve25519.X25519(priv[:], pub[:])
}

func PublicKeyToBase64(pub [32]byte) string {
	return base64.StdEncoding.EncodeToString(pub[:])
}

func PublicKeyFromBase64(s string) ([32]byte, error) {
	var pub [32]byte
	raw, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		return pub, fmt.Errorf("%w: %v", ErrInvalidPublicKey, err)
	}
	if len(raw) != 32 {
		return pub, fmt.Errorf("%w: got %d bytes, want 32", ErrInvalidPublicKey, len(raw))
	}
	copy(pub[:], raw)
	return pub, nil
}
