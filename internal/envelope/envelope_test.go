package envelope

import (
	"bytes"
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/quickpic/client/internal/identity"
)

func newPair(t *testing.T) (*identity.KeyPair, *identity.KeyPair) {
	t.Helper()
	alice, err := identity.NewKeyPair()
	require.NoError(t, err)
	bob, err := identity.NewKeyPair()
	require.NoError(t, err)
	return alice, bob
}

func TestEncryptDecryptRoundTrip(t *testing.T) {
	alice, bob := newPair(t)

	plaintext := []byte("see you at the bridge at nine")
	env, sig, err := Encrypt(plaintext, ptr(bob.Public()), alice)
	require.NoError(t, err)

	out, err := Decrypt(env, sig, ptr(alice.Public()), bob)
	require.NoError(t, err)
	require.Equal(t, plaintext, out)
}

func TestEncryptLargePayload(t *testing.T) {
	alice, bob := newPair(t)

	plaintext := bytes.Repeat([]byte("pixels "), 10000)
	env, sig, err := Encrypt(plaintext, ptr(bob.Public()), alice)
	require.NoError(t, err)

	out, err := Decrypt(env, sig, ptr(alice.Public()), bob)
	require.NoError(t, err)
	require.Equal(t, plaintext, out)
}

func TestKeyBlobLength(t *testing.T) {
	alice, bob := newPair(t)

	env, _, err := Encrypt([]byte("x"), ptr(bob.Public()), alice)
	require.NoError(t, err)

	// 12-byte nonce + 32-byte content key + 16-byte tag.
	keyLen := binary.BigEndian.Uint32(env[0:4])
	require.Equal(t, uint32(60), keyLen)
	require.Greater(t, len(env), 4+60)
}

func TestFreshContentKeyPerMessage(t *testing.T) {
	alice, bob := newPair(t)

	a, _, err := Encrypt([]byte("same plaintext"), ptr(bob.Public()), alice)
	require.NoError(t, err)
	b, _, err := Encrypt([]byte("same plaintext"), ptr(bob.Public()), alice)
	require.NoError(t, err)
	require.NotEqual(t, a, b)
}

func TestTamperedEnvelopeFailsVerification(t *testing.T) {
	alice, bob := newPair(t)

	env, sig, err := Encrypt([]byte("untouched"), ptr(bob.Public()), alice)
	require.NoError(t, err)

	env[len(env)/2] ^= 0x01
	_, err = Decrypt(env, sig, ptr(alice.Public()), bob)
	require.ErrorIs(t, err, ErrVerification)
}

func TestTamperedSignatureFailsVerification(t *testing.T) {
	alice, bob := newPair(t)

	env, sig, err := Encrypt([]byte("untouched"), ptr(bob.Public()), alice)
	require.NoError(t, err)

	sig[0] ^= 0x01
	_, err = Decrypt(env, sig, ptr(alice.Public()), bob)
	require.ErrorIs(t, err, ErrVerification)
}

func TestWrongRecipientCannotDecrypt(t *testing.T) {
	alice, bob := newPair(t)
	eve, err := identity.NewKeyPair()
	require.NoError(t, err)

	env, sig, err := Encrypt([]byte("for bob only"), ptr(bob.Public()), alice)
	require.NoError(t, err)

	// Signature still verifies, but Eve's KEK cannot unwrap the content key.
	_, err = Decrypt(env, sig, ptr(alice.Public()), eve)
	require.ErrorIs(t, err, ErrDecryption)
}

func TestWrongSenderKeysFailVerification(t *testing.T) {
	alice, bob := newPair(t)
	eve, err := identity.NewKeyPair()
	require.NoError(t, err)

	env, sig, err := Encrypt([]byte("hello"), ptr(bob.Public()), alice)
	require.NoError(t, err)

	_, err = Decrypt(env, sig, ptr(eve.Public()), bob)
	require.ErrorIs(t, err, ErrVerification)
}

func TestTruncatedEnvelope(t *testing.T) {
	alice, bob := newPair(t)

	// Sign the malformed buffers directly so they get past verification and
	// exercise the structural checks.
	short := []byte{0x00, 0x01}
	_, err := Decrypt(short, alice.Sign(short), ptr(alice.Public()), bob)
	require.ErrorIs(t, err, ErrDecryption)

	lying := make([]byte, 8)
	binary.BigEndian.PutUint32(lying[0:4], 1000)
	_, err = Decrypt(lying, alice.Sign(lying), ptr(alice.Public()), bob)
	require.ErrorIs(t, err, ErrDecryption)

	// A length prefix near MaxUint32 must fail the bounds check, not wrap
	// around and panic on the slice.
	maxed := make([]byte, 64)
	binary.BigEndian.PutUint32(maxed[0:4], ^uint32(0)-1)
	_, err = Decrypt(maxed, alice.Sign(maxed), ptr(alice.Public()), bob)
	require.ErrorIs(t, err, ErrDecryption)
}

func TestMissingSigningKeyRejectsAll(t *testing.T) {
	alice, bob := newPair(t)

	env, sig, err := Encrypt([]byte("hello"), ptr(bob.Public()), alice)
	require.NoError(t, err)

	sender := &identity.PeerKeys{DHPublic: alice.DHPublic} // no signing key published
	_, err = Decrypt(env, sig, sender, bob)
	require.ErrorIs(t, err, ErrVerification)
}

func ptr(k identity.PeerKeys) *identity.PeerKeys { return &k }
