package utils_test

import (
	"bytes"
	"testing"

	"github.com/mctp-go/mctpd/std/utils"
	"github.com/stretchr/testify/require"
)

func TestPrintStackTrace(t *testing.T) {
	var buf bytes.Buffer
	utils.PrintStackTrace(&buf)
	require.Contains(t, buf.String(), "*** goroutine dump...")
	require.Contains(t, buf.String(), "TestPrintStackTrace")
}
