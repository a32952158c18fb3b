package encryption

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestAEADRoundTrip(t *testing.T) {
	key := bytes.Repeat([]byte{0x11}, 32)
	plaintext := []byte("sealed payload")

	sealed, err := AEADSeal(key, plaintext)
	require.NoError(t, err)
	// nonce + ciphertext + tag
	require.Equal(t, 12+len(plaintext)+16, len(sealed))

	out, err := AEADOpen(key, sealed)
	require.NoError(t, err)
	require.Equal(t, plaintext, out)
}

func TestAEADRandomNonce(t *testing.T) {
	key := bytes.Repeat([]byte{0x11}, 32)

	a, err := AEADSeal(key, []byte("x"))
	require.NoError(t, err)
	b, err := AEADSeal(key, []byte("x"))
	require.NoError(t, err)
	require.NotEqual(t, a, b)
}

func TestAEADOpenRejectsTamper(t *testing.T) {
	key := bytes.Repeat([]byte{0x11}, 32)
	sealed, err := AEADSeal(key, []byte("payload"))
	require.NoError(t, err)

	sealed[len(sealed)-1] ^= 0x01
	_, err = AEADOpen(key, sealed)
	require.Error(t, err)
}

func TestAEADOpenRejectsWrongKey(t *testing.T) {
	key := bytes.Repeat([]byte{0x11}, 32)
	other := bytes.Repeat([]byte{0x22}, 32)

	sealed, err := AEADSeal(key, []byte("payload"))
	require.NoError(t, err)
	_, err = AEADOpen(other, sealed)
	require.Error(t, err)
}

func TestAEADOpenRejectsShortInput(t *testing.T) {
	key := bytes.Repeat([]byte{0x11}, 32)
	_, err := AEADOpen(key, []byte{0x01, 0x02})
	require.Error(t, err)
}
