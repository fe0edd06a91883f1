package crypto

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/require"
)

func testCipher(t *testing.T) *Cipher {
	t.Helper()
	c, err := NewCipher(bytes.Repeat([]byte{7}, KeyLen))
	require.NoError(t, err)
	return c
}

func TestCipher_RoundTrip(t *testing.T) {
	c := testCipher(t)

	sealed, err := c.Seal("ya29.secret-token")
	require.NoError(t, err)
	require.NotEmpty(t, sealed)

	got, err := c.Open(sealed)
	require.NoError(t, err)
	require.Equal(t, "ya29.secret-token", got)
}

func TestCipher_EmptyTokenStaysEmpty(t *testing.T) {
	c := testCipher(t)

	sealed, err := c.Seal("")
	require.NoError(t, err)
	require.Nil(t, sealed)

	got, err := c.Open(nil)
	require.NoError(t, err)
	require.Empty(t, got)
}

func TestCipher_TamperDetected(t *testing.T) {
	c := testCipher(t)

	sealed, err := c.Seal("tok")
	require.NoError(t, err)
	sealed[len(sealed)-1] ^= 0xFF

	_, err = c.Open(sealed)
	require.Error(t, err)
}

func TestNewCipher_BadKey(t *testing.T) {
	_, err := NewCipher([]byte("short"))
	require.Error(t, err)
}
