package toolutils

import (
	"bytes"
	"fmt"
	"io"
	"os"

	"github.com/goccy/go-yaml"
)

// ReadYaml strictly decodes the yaml file into dest.
// Unknown keys are an error.
func ReadYaml(dest any, file string) error {
	f, err := os.Open(file)
	if err != nil {
		return fmt.Errorf("unable to open configuration file: %w", err)
	}
	defer f.Close()
	return DecodeYaml(dest, f)
}

// ParseYaml is ReadYaml for an in-memory document.
func ParseYaml(dest any, doc []byte) error {
	return DecodeYaml(dest, bytes.NewReader(doc))
}

// DecodeYaml strictly decodes one yaml document from r.
func DecodeYaml(dest any, r io.Reader) error {
	dec := yaml.NewDecoder(r, yaml.Strict())
	if err := dec.Decode(dest); err != nil {
		return fmt.Errorf("unable to parse configuration file: %w", err)
	}
	return nil
}

// WriteYaml encodes src as yaml to w.
func WriteYaml(w io.Writer, src any) error {
	b, err := yaml.Marshal(src)
	if err != nil {
		return err
	}
	_, err = w.Write(b)
	return err
}
