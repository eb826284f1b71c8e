package toolutils_test

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/mctp-go/mctpd/std/utils/toolutils"
	"github.com/stretchr/testify/require"
)

type doc struct {
	Name  string `yaml:"name"`
	Count int    `yaml:"count"`
}

func TestParseYamlStrict(t *testing.T) {
	var d doc
	require.NoError(t, toolutils.ParseYaml(&d, []byte("name: bus0\ncount: 3\n")))
	require.Equal(t, doc{Name: "bus0", Count: 3}, d)

	require.Error(t, toolutils.ParseYaml(&d, []byte("name: bus0\nbogus: 1\n")))
}

func TestReadYaml(t *testing.T) {
	path := filepath.Join(t.TempDir(), "x.yml")
	require.NoError(t, os.WriteFile(path, []byte("count: 9\n"), 0o644))

	var d doc
	require.NoError(t, toolutils.ReadYaml(&d, path))
	require.Equal(t, 9, d.Count)
	require.Error(t, toolutils.ReadYaml(&d, filepath.Join(t.TempDir(), "missing.yml")))

	var buf bytes.Buffer
	require.NoError(t, toolutils.WriteYaml(&buf, d))
	var back doc
	require.NoError(t, toolutils.ParseYaml(&back, buf.Bytes()))
	require.Equal(t, d, back)
}

func TestStatusPrinter(t *testing.T) {
	var buf bytes.Buffer
	p := toolutils.StatusPrinter{File: &buf, Padding: 6}
	p.Print("eid", 8)
	p.Print("toolong", 1)
	require.Equal(t, "   eid=8\ntoolong=1\n", buf.String())
}
