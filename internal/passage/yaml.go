package passage

import (
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"
)

// File is the layout of a passage YAML file.
//
//	passages:
//	  - id: "112"
//	    title: Al-Ikhlas
//	    segments:
//	      - number: 1
//	        text: قُلْ هُوَ ٱللَّهُ أَحَدٌ
type File struct {
	Passages []*Passage `yaml:"passages"`
}

// LoadFile reads and validates a passage YAML file.
func LoadFile(path string) (*File, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("passage: open %q: %w", path, err)
	}
	defer f.Close()

	pf, err := LoadFromReader(f)
	if err != nil {
		return nil, fmt.Errorf("passage: parse %q: %w", path, err)
	}
	return pf, nil
}

// LoadFromReader parses and validates passage YAML from r. Unknown keys and
// duplicate IDs are errors.
func LoadFromReader(r io.Reader) (*File, error) {
	var pf File
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&pf); err != nil && err != io.EOF {
		return nil, fmt.Errorf("passage: decode yaml: %w", err)
	}
	seen := make(map[string]bool, len(pf.Passages))
	for _, p := range pf.Passages {
		if err := Validate(p); err != nil {
			return nil, err
		}
		if seen[p.ID] {
			return nil, fmt.Errorf("passage: duplicate id %q", p.ID)
		}
		seen[p.ID] = true
	}
	return &pf, nil
}

// OpenYAML loads the passages in path into a [MemStore].
func OpenYAML(path string) (*MemStore, error) {
	pf, err := LoadFile(path)
	if err != nil {
		return nil, err
	}
	return NewMemStore(pf.Passages...), nil
}
