package brand

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"
)

// LoadFile reads brand tables from a YAML file. An empty path yields the
// built-in tables.
func LoadFile(path string) (Tables, error) {
	if path == "" {
		return DefaultTables(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return Tables{}, fmt.Errorf("read brand tables: %w", err)
	}
	return Parse(data)
}

// Parse decodes YAML brand tables. Unknown keys are rejected so a typo in a
// section name does not silently drop a table.
func Parse(data []byte) (Tables, error) {
	var t Tables
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&t); err != nil && !errors.Is(err, io.EOF) {
		return Tables{}, fmt.Errorf("decode brand tables: %w", err)
	}
	return t, nil
}

// Load reads and compiles the tables at path.
func Load(path string) (*Extractor, error) {
	t, err := LoadFile(path)
	if err != nil {
		return nil, err
	}
	return NewExtractor(t)
}
