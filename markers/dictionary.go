// Package markers provides marker bit matrices for the fiducube plates,
// read from codebook files or from marker images.
package markers

import (
	"embed"
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"strconv"
	"sync"

	"gopkg.in/yaml.v3"
)

//go:embed dictionaries/*.yaml
var builtin embed.FS

// Dictionary is a codebook of square markers. Each code holds the
// MarkerBits² interior bits most significant bit first in row major order.
// A set bit is a white cell, following the OpenCV convention. The border
// ring is always black.
type Dictionary struct {
	Name       string   `yaml:"name"`
	MarkerBits int      `yaml:"marker_bits"`
	BorderBits int      `yaml:"border_bits"`
	Codes      []string `yaml:"codes"`

	codes []uint64
}

// LoadDictionary decodes a YAML codebook. Unknown fields are rejected.
func LoadDictionary(r io.Reader) (*Dictionary, error) {
	var d Dictionary
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&d); err != nil {
		return nil, fmt.Errorf("decoding dictionary: %w", err)
	}
	if err := d.parse(); err != nil {
		return nil, fmt.Errorf("dictionary %q: %w", d.Name, err)
	}
	return &d, nil
}

// LoadDictionaryFile reads a YAML codebook from disk.
func LoadDictionaryFile(filename string) (*Dictionary, error) {
	fp, err := os.Open(filename)
	if err != nil {
		return nil, err
	}
	defer fp.Close()
	return LoadDictionary(fp)
}

func (d *Dictionary) parse() error {
	switch {
	case d.Name == "":
		return errors.New("missing name")
	case d.MarkerBits < 1 || d.MarkerBits > 8:
		return fmt.Errorf("marker_bits %d outside [1,8]", d.MarkerBits)
	case d.BorderBits < 0:
		return fmt.Errorf("negative border_bits %d", d.BorderBits)
	case len(d.Codes) == 0:
		return errors.New("no codes")
	}
	nbits := d.MarkerBits * d.MarkerBits
	d.codes = make([]uint64, len(d.Codes))
	for id, code := range d.Codes {
		v, err := strconv.ParseUint(code, 16, 64)
		if err != nil {
			return fmt.Errorf("code %d: %w", id, err)
		}
		if nbits < 64 && v>>nbits != 0 {
			return fmt.Errorf("code %d (%s) exceeds %d bits", id, code, nbits)
		}
		d.codes[id] = v
	}
	return nil
}

// Cells returns the side of the marker grid including both borders.
func (d *Dictionary) Cells() int { return d.MarkerBits + 2*d.BorderBits }

// Len returns the number of markers in the dictionary.
func (d *Dictionary) Len() int { return len(d.codes) }

// Bits returns the raised cells of marker id. Row 0 is the top of the marker
// and raised cells are the black ones.
func (d *Dictionary) Bits(id int) ([][]bool, error) {
	if id < 0 || id >= len(d.codes) {
		return nil, fmt.Errorf("marker %d not in %s (IDs 0 to %d); load a larger codebook or marker images", id, d.Name, len(d.codes)-1)
	}
	n := d.Cells()
	m := d.MarkerBits
	code := d.codes[id]
	bits := make([][]bool, n)
	for r := range bits {
		bits[r] = make([]bool, n)
		for c := range bits[r] {
			ir, ic := r-d.BorderBits, c-d.BorderBits
			if ir < 0 || ic < 0 || ir >= m || ic >= m {
				bits[r][c] = true
				continue
			}
			shift := m*m - 1 - (ir*m + ic)
			white := code>>shift&1 == 1
			bits[r][c] = !white
		}
	}
	return bits, nil
}

// Set is a multi-dictionary bit source keyed by dictionary name.
// It is safe for concurrent use.
type Set struct {
	mu    sync.RWMutex
	dicts map[string]*Dictionary
}

// NewSet returns a Set holding dicts. A later dictionary replaces an
// earlier one of the same name.
func NewSet(dicts ...*Dictionary) *Set {
	s := &Set{dicts: make(map[string]*Dictionary)}
	for _, d := range dicts {
		s.Add(d)
	}
	return s
}

// Builtin returns a Set with the embedded codebooks.
func Builtin() (*Set, error) {
	entries, err := builtin.ReadDir("dictionaries")
	if err != nil {
		return nil, err
	}
	s := NewSet()
	for _, e := range entries {
		fp, err := builtin.Open(path.Join("dictionaries", e.Name()))
		if err != nil {
			return nil, err
		}
		d, err := LoadDictionary(fp)
		fp.Close()
		if err != nil {
			return nil, err
		}
		s.Add(d)
	}
	return s, nil
}

// Add registers d under its name.
func (s *Set) Add(d *Dictionary) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.dicts[d.Name] = d
}

// Dictionary returns the dictionary registered under name.
func (s *Set) Dictionary(name string) (*Dictionary, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	d, ok := s.dicts[name]
	return d, ok
}

// MarkerBits implements fiducube.BitSource.
func (s *Set) MarkerBits(dictionary string, id int) ([][]bool, error) {
	d, ok := s.Dictionary(dictionary)
	if !ok {
		return nil, fmt.Errorf("unknown dictionary %q", dictionary)
	}
	return d.Bits(id)
}
