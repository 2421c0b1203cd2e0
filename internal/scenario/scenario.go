// SPDX-License-Identifier: GPL-3.0-or-later

// Package scenario reads and writes lab topologies as YAML documents
// and manages a directory of them.
//
// A scenario file names devices the way students do; device and
// interface IDs may be omitted, in which case loading fills them in
// the same way the topology editor would (lowercased device name,
// "deviceID-ifacename"). Connections reference device IDs.
package scenario

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/ZhuChongjing/NetLabX/topo"
	"gopkg.in/yaml.v3"
)

// CurrentVersion is the scenario document version this package writes.
const CurrentVersion = 1

// File is the on-disk scenario document.
type File struct {
	// Version is the document version; zero is treated as 1.
	Version int `yaml:"version,omitempty"`

	// Name optionally titles the scenario for pickers and exports.
	Name string `yaml:"name,omitempty"`

	// Description optionally explains the exercise to students.
	Description string `yaml:"description,omitempty"`

	// Devices and Connections form the topology.
	Devices     []*topo.Device     `yaml:"devices"`
	Connections []*topo.Connection `yaml:"connections,omitempty"`
}

// Parse decodes a scenario document. Unknown fields are rejected so
// that typos in hand-written files surface instead of silently
// dropping configuration.
func Parse(data []byte) (*File, error) {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	var f File
	if err := dec.Decode(&f); err != nil {
		return nil, fmt.Errorf("parsing scenario: %w", err)
	}
	if f.Version > CurrentVersion {
		return nil, fmt.Errorf("scenario version %d is newer than supported version %d", f.Version, CurrentVersion)
	}
	return &f, nil
}

// Snapshot builds a normalized topology from the document. The
// returned snapshot shares no memory with the document.
func (f *File) Snapshot() *topo.Snapshot {
	s := &topo.Snapshot{
		Devices:     f.Devices,
		Connections: f.Connections,
	}
	s = s.Clone()
	s.Normalize()
	return s
}

// FromSnapshot builds a scenario document from a topology.
func FromSnapshot(name, description string, s *topo.Snapshot) *File {
	c := s.Clone()
	return &File{
		Version:     CurrentVersion,
		Name:        name,
		Description: description,
		Devices:     c.Devices,
		Connections: c.Connections,
	}
}

// Encode renders the document as YAML.
func (f *File) Encode() ([]byte, error) {
	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(f); err != nil {
		return nil, fmt.Errorf("encoding scenario: %w", err)
	}
	if err := enc.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// LoadFile reads and parses a scenario file.
func LoadFile(path string) (*File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	f, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return f, nil
}

// SaveFile writes a scenario file, creating parent directories as
// needed.
func SaveFile(path string, f *File) error {
	data, err := f.Encode()
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

// isScenarioPath reports whether the path looks like a scenario file.
func isScenarioPath(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return true
	default:
		return false
	}
}

// nameFromPath derives the scenario name from a file path.
func nameFromPath(path string) string {
	base := filepath.Base(path)
	return strings.TrimSuffix(base, filepath.Ext(base))
}
