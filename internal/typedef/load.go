package typedef

import (
	"errors"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"
)

// Load parses every YAML document in r, merges them and validates the result
func Load(r io.Reader) (*Document, error) {
	doc, err := decode(r, "")
	if err != nil {
		return nil, err
	}
	if err := doc.Validate(); err != nil {
		return nil, err
	}
	return doc, nil
}

// LoadFile loads and validates one definition file
func LoadFile(path string) (*Document, error) {
	return LoadFiles(path)
}

// LoadFiles loads several files into one document and validates them
// together, so types may reference each other across files.
func LoadFiles(paths ...string) (*Document, error) {
	doc := &Document{}
	for _, path := range paths {
		f, err := os.Open(path)
		if err != nil {
			return nil, fmt.Errorf("failed to open type definitions: %w", err)
		}
		part, err := decode(f, path)
		f.Close()
		if err != nil {
			return nil, err
		}
		doc.Merge(part)
	}
	if err := doc.Validate(); err != nil {
		return nil, err
	}
	return doc, nil
}

func decode(r io.Reader, source string) (*Document, error) {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)

	doc := &Document{}
	for {
		var part Document
		err := dec.Decode(&part)
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			if source != "" {
				return nil, fmt.Errorf("failed to parse %s: %w", source, err)
			}
			return nil, fmt.Errorf("failed to parse type definitions: %w", err)
		}
		for _, name := range part.Names() {
			part.setSource(name, source)
		}
		doc.Merge(&part)
	}
	return doc, nil
}
