package envelope

import (
	"crypto/rand"
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	"github.com/quickpic/client/internal/cryptographic/compress"
	"github.com/quickpic/client/internal/cryptographic/dh"
	"github.com/quickpic/client/internal/cryptographic/encryption"
	"github.com/quickpic/client/internal/cryptographic/kdf"
	"github.com/quickpic/client/internal/cryptographic/signature"
	"github.com/quickpic/client/internal/identity"
)

var (
	ErrEncryption    = errors.New("encryption failed")
	ErrDecryption    = errors.New("decryption failed")
	ErrVerification  = errors.New("verification failed")
	ErrCompression   = errors.New("compression failed")
	ErrDecompression = errors.New("decompression failed")
)

// keyEncryptionInfo is the HKDF domain-separation string. It must match the
// iOS client byte for byte or no message crosses platforms.
const keyEncryptionInfo = "QuickPic-Key-Encryption"

const contentKeySize = 32

// Encrypt turns plaintext into a wire envelope addressed to one recipient:
//
//	uint32_be keyBlobLen | sealed content key | sealed compressed payload
//
// plus a detached Ed25519 signature over the whole envelope. The content key
// is fresh per message; only the ECDH-derived KEK can unwrap it. Pure
// function, safe for concurrent use.
func Encrypt(plaintext []byte, recipient *identity.PeerKeys, sender *identity.KeyPair) (env, sig []byte, err error) {
	compressed, err := compress.Deflate(plaintext)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %v", ErrCompression, err)
	}

	contentKey := make([]byte, contentKeySize)
	if _, err := io.ReadFull(rand.Reader, contentKey); err != nil {
		return nil, nil, fmt.Errorf("%w: content key: %v", ErrEncryption, err)
	}
	contentBlob, err := encryption.AEADSeal(contentKey, compressed)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %v", ErrEncryption, err)
	}

	kek, err := deriveKEK(sender.DHPrivate, recipient.DHPublic)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %v", ErrEncryption, err)
	}
	keyBlob, err := encryption.AEADSeal(kek, contentKey)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %v", ErrEncryption, err)
	}

	env = make([]byte, 4+len(keyBlob)+len(contentBlob))
	binary.BigEndian.PutUint32(env[0:4], uint32(len(keyBlob)))
	copy(env[4:], keyBlob)
	copy(env[4+len(keyBlob):], contentBlob)

	return env, sender.Sign(env), nil
}

// Decrypt reverses Encrypt. Signature verification runs first, over exactly
// the bytes that will be decrypted, so a substituted envelope never reaches
// the AEAD layer.
func Decrypt(env, sig []byte, sender *identity.PeerKeys, local *identity.KeyPair) ([]byte, error) {
	if !signature.ED25519Verify(sender.SigningPublic, env, sig) {
		return nil, ErrVerification
	}

	if len(env) < 4 {
		return nil, fmt.Errorf("%w: envelope shorter than length prefix", ErrDecryption)
	}
	if uint64(len(env)-4) < uint64(binary.BigEndian.Uint32(env[0:4])) {
		return nil, fmt.Errorf("%w: truncated key blob", ErrDecryption)
	}
	keyLen := int(binary.BigEndian.Uint32(env[0:4]))
	keyBlob := env[4 : 4+keyLen]
	contentBlob := env[4+keyLen:]

	// ECDH is symmetric: recipient private + sender public derives the same
	// KEK the sender used.
	kek, err := deriveKEK(local.DHPrivate, sender.DHPublic)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecryption, err)
	}
	contentKey, err := encryption.AEADOpen(kek, keyBlob)
	if err != nil {
		return nil, fmt.Errorf("%w: unwrap content key: %v", ErrDecryption, err)
	}

	compressed, err := encryption.AEADOpen(contentKey, contentBlob)
	if err != nil {
		return nil, fmt.Errorf("%w: open content: %v", ErrDecryption, err)
	}

	plaintext, err := compress.Inflate(compressed)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecompression, err)
	}
	return plaintext, nil
}

func deriveKEK(priv, pub [32]byte) ([]byte, error) {
	shared, err := dh.SharedSecret(priv, pub)
	if err != nil {
		return nil, err
	}
	kek := make([]byte, contentKeySize)
	if _, err := kdf.HKDF(shared, nil, []byte(keyEncryptionInfo), kek); err != nil {
		return nil, err
	}
	return kek, nil
}
