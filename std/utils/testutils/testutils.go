package testutils

import (
	"encoding/hex"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

var testT *testing.T

func SetT(t *testing.T) {
	testT = t
}

func NoErr[T any](v T, err error) T {
	require.NoError(testT, err)
	return v
}

func Err[T any](_ T, err error) error {
	require.Error(testT, err)
	return err
}

// NoErr2 is NoErr for functions returning two values and an error.
func NoErr2[A, B any](a A, b B, err error) (A, B) {
	require.NoError(testT, err)
	return a, b
}

// Err2 is Err for functions returning two values and an error.
func Err2[A, B any](_ A, _ B, err error) error {
	require.Error(testT, err)
	return err
}

// Hex decodes a hex string, ignoring spaces.
func Hex(s string) []byte {
	return NoErr(hex.DecodeString(strings.ReplaceAll(s, " ", "")))
}

// Pattern returns n bytes of a repeating, position-dependent pattern.
func Pattern(n int, seed byte) []byte {
	b := make([]byte, n)
	for i := range b {
		b[i] = byte(i*7) + seed
	}
	return b
}
