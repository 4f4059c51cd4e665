package config

import (
	"fmt"
	"os"

	"github.com/pelletier/go-toml/v2"

	"github.com/dudu/facemap/internal/mapping"
)

// Pair is one row of a mapping file
type Pair struct {
	ID     int    `toml:"id"`
	Source string `toml:"source"`
	Target string `toml:"target"`
}

// MappingFile lists the source/target images for a mapped run:
//
//	[[pair]]
//	id = 0
//	source = "alice.jpg"
//	target = "crowd_left.jpg"
type MappingFile struct {
	Pairs []Pair `toml:"pair"`
}

// LoadMapping parses a mapping file
func LoadMapping(path string) (MappingFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return MappingFile{}, fmt.Errorf("failed to read mapping file '%s': %w", path, err)
	}
	var mf MappingFile
	if err := toml.Unmarshal(data, &mf); err != nil {
		return MappingFile{}, fmt.Errorf("failed to parse TOML: %w", err)
	}
	if err := mf.Validate(); err != nil {
		return MappingFile{}, err
	}
	return mf, nil
}

// SaveMapping writes mf as TOML
func SaveMapping(path string, mf MappingFile) error {
	data, err := toml.Marshal(mf)
	if err != nil {
		return fmt.Errorf("failed to encode mapping: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write mapping file '%s': %w", path, err)
	}
	return nil
}

// Validate rejects negative or repeated ids
func (mf MappingFile) Validate() error {
	seen := make(map[int]bool, len(mf.Pairs))
	for _, p := range mf.Pairs {
		if p.ID < 0 {
			return fmt.Errorf("pair id must not be negative, got %d", p.ID)
		}
		if seen[p.ID] {
			return fmt.Errorf("duplicate pair id %d", p.ID)
		}
		seen[p.ID] = true
	}
	return nil
}

// Table replays the file through ed: one blank entry per pair, then a
// SetSource and SetTarget event for each. Pairs whose image holds no face
// are reported in the returned errors and left incomplete in the table.
func (mf MappingFile) Table(ed *mapping.Editor) (mapping.Table, []error) {
	entries := make([]mapping.Entry, 0, len(mf.Pairs))
	for _, p := range mf.Pairs {
		entries = append(entries, mapping.Entry{ID: p.ID})
	}
	t := mapping.NewTable(mapping.OriginManual, entries...)

	var errs []error
	for _, p := range mf.Pairs {
		for _, ev := range []mapping.Event{
			mapping.SetSource{ID: p.ID, Path: p.Source},
			mapping.SetTarget{ID: p.ID, Path: p.Target},
		} {
			var err error
			if t, err = ed.Apply(t, ev); err != nil {
				errs = append(errs, fmt.Errorf("pair %d: %w", p.ID, err))
			}
		}
	}
	return t, errs
}
