package identity

import (
	"crypto/rand"
	"errors"
	"fmt"

	"github.com/quickpic/client/internal/cryptographic/dh"
	"github.com/quickpic/client/internal/cryptographic/signature"
)

var (
	ErrKeyGeneration = errors.New("key generation failed")

	// ErrNoIdentity is the unauthenticated state: the secret store holds no
	// private key for this device.
	ErrNoIdentity = errors.New("no identity in secret store")
)

// secretKeyPrivate is the secret-store slot holding the 32-byte identity seed.
const secretKeyPrivate = "private_key"

type (
	// KeyPair is the device's long-term identity. A single 32-byte seed
	// doubles as the X25519 scalar and the Ed25519 signing seed, so both
	// halves are recovered from one stored secret. Signing uses the proper
	// Ed25519 expansion of the seed rather than reinterpreting the X25519
	// point, and the Ed25519 public key is published next to the X25519 one.
	KeyPair struct {
		DHPrivate      [32]byte
		DHPublic       [32]byte
		SigningPublic  []byte
		signingPrivate []byte
	}

	// PeerKeys is the public half of a peer's identity as learned from the
	// friend directory.
	PeerKeys struct {
		DHPublic      [32]byte
		SigningPublic []byte
	}
)

// NewKeyPair generates a fresh identity from the system RNG.
func NewKeyPair() (*KeyPair, error) {
	var seed [32]byte
	if _, err := rand.Read(seed[:]); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrKeyGeneration, err)
	}
	return FromSeed(seed[:])
}

// FromSeed rebuilds the full keypair from a stored 32-byte seed.
func FromSeed(seed []byte) (*KeyPair, error) {
	if len(seed) != 32 {
		return nil, fmt.Errorf("%w: seed must be 32 bytes, got %d", ErrKeyGeneration, len(seed))
	}
	kp := &KeyPair{}
	copy(kp.DHPrivate[:], seed)
	kp.DHPublic = dh.PublicKeyFromSeed(kp.DHPrivate)
	kp.SigningPublic, kp.signingPrivate = signature.NewEd25519KeypairFromSeed(seed)
	return kp, nil
}

// Seed returns the 32 bytes that regenerate this keypair.
func (k *KeyPair) Seed() []byte {
	return append([]byte(nil), k.DHPrivate[:]...)
}

// Sign produces a detached Ed25519 signature over message.
func (k *KeyPair) Sign(message []byte) []byte {
	return signature.ED25519Sign(k.signingPrivate, message)
}

// Public returns the publishable half of the identity.
func (k *KeyPair) Public() PeerKeys {
	return PeerKeys{
		DHPublic:      k.DHPublic,
		SigningPublic: append([]byte(nil), k.SigningPublic...),
	}
}

// PeerKeysFromBase64 decodes a peer's published keys. The signing key is
// optional in older directory entries; verification then falls back to
// rejecting everything, which is the safe direction.
func PeerKeysFromBase64(publicKey, signingKey string) (*PeerKeys, error) {
	pub, err := dh.PublicKeyFromBase64(publicKey)
	if err != nil {
		return nil, err
	}
	keys := &PeerKeys{DHPublic: pub}
	if signingKey != "" {
		sig, err := dh.PublicKeyFromBase64(signingKey)
		if err != nil {
			return nil, err
		}
		keys.SigningPublic = sig[:]
	}
	return keys, nil
}
