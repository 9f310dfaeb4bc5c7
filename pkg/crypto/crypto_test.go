package crypto

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestPasswordHashing(t *testing.T) {
	hash, err := HashPassword("remember-me")
	require.NoError(t, err)

	require.True(t, VerifyPassword(hash, "remember-me"))
	require.False(t, VerifyPassword(hash, "forget-me"))
	require.False(t, VerifyPassword("", "remember-me"))

	_, err = HashPassword("short")
	require.Error(t, err)
}

func TestGenerateToken(t *testing.T) {
	a, err := GenerateToken(32)
	require.NoError(t, err)
	b, err := GenerateToken(32)
	require.NoError(t, err)

	require.NotEqual(t, a, b)
	require.Len(t, a, 43)

	_, err = GenerateToken(0)
	require.Error(t, err)
}

func TestHashTokenIsStable(t *testing.T) {
	require.Equal(t, HashToken("abc"), HashToken("abc"))
	require.NotEqual(t, HashToken("abc"), HashToken("abd"))
	require.Len(t, HashToken("abc"), 64)
}
