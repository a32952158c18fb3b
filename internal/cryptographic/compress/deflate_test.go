package compress

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDeflateRoundTrip(t *testing.T) {
	cases := [][]byte{
		[]byte("hello"),
		[]byte(""),
		bytes.Repeat([]byte("quickpic "), 500), // spans many pages
		{0x00, 0xff, 0x42},
	}
	for _, plaintext := range cases {
		compressed, err := Deflate(plaintext)
		require.NoError(t, err)

		out, err := Inflate(compressed)
		require.NoError(t, err)
		require.Equal(t, plaintext, out)
	}
}

func TestDeflateShrinksRepetitiveInput(t *testing.T) {
	input := bytes.Repeat([]byte("a"), 4096)
	compressed, err := Deflate(input)
	require.NoError(t, err)
	require.Less(t, len(compressed), len(input))
}

func TestInflateRejectsGarbage(t *testing.T) {
	_, err := Inflate([]byte("definitely not a deflate stream"))
	require.Error(t, err)
}
