package crypto

import (
	"encoding/hex"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestX963KDF_KnownVector(t *testing.T) {
	out := X963KDF([]byte("secret"), []byte("shared"), 40)
	require.Equal(t,
		"9829e31ba42b38401cd1df59e4d4aa3d32b955fa6999948b85b22c4171a3dd76b3ad0c322aa12e0e",
		hex.EncodeToString(out))
}

func TestX963KDF_TruncationIsPrefix(t *testing.T) {
	long := X963KDF([]byte("input"), []byte("info"), 72)
	for _, n := range []int{1, 16, 32, 33, 64} {
		require.Equal(t, long[:n], X963KDF([]byte("input"), []byte("info"), n))
	}
}

func TestX963KDF_SharedInfoChangesOutput(t *testing.T) {
	a := X963KDF([]byte("key"), []byte("update"), 32)
	b := X963KDF([]byte("key"), []byte("diversify"), 32)
	require.NotEqual(t, a, b)
}
