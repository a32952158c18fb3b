package signature

import (
	"crypto/ed25519"
)

// NewEd25519KeypairFromSeed expands a 32-byte seed into an Ed25519 keypair.
// The seed is the same 32 bytes used as the X25519 scalar, so one stored
// secret yields both the encryption and signing identities.
func NewEd25519KeypairFromSeed(seed []byte) (pub, priv []byte) {
	private := ed25519.NewKeyFromSeed(seed)
	public := private.Public().(ed25519.PublicKey)
	return public, private
}

func ED25519Sign(privKeyBytes []byte, message []byte) []byte {
	privKey := ed25519.PrivateKey(privKeyBytes)
	return ed25519.Sign(privKey, message)
}

func ED25519Verify(pubKeyBytes []byte, message []byte, sig []byte) bool {
	if len(pubKeyBytes) != ed25519.PublicKeySize || len(sig) != ed25519.SignatureSize {
		return false
	}
	pubKey := ed25519.PublicKey(pubKeyBytes)
	return ed25519.Verify(pubKey, message, sig)
}
