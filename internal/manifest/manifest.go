// Package manifest records what a node rendered. Each node writes its own
// manifest-<rank>.toml next to the tiles; manifests of different ranks never
// share a file.
package manifest

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/google/uuid"

	"github.com/kiesman99/julia/pkg/tile"
)

// Manifest describes one node's run
type Manifest struct {
	RunID      string    `toml:"run_id"`
	Host       string    `toml:"host"`
	Rank       int       `toml:"rank"`
	Nodes      int       `toml:"nodes"`
	StartedAt  time.Time `toml:"started_at"`
	FinishedAt time.Time `toml:"finished_at"`

	Geometry   tile.Geometry    `toml:"geometry"`
	Window     tile.PlaneWindow `toml:"window"`
	Constant   Constant         `toml:"constant"`
	Iterations int              `toml:"iterations"`
	ColorMode  string           `toml:"color_mode"`
	Algorithm  string           `toml:"algorithm"`
	Format     string           `toml:"format"`

	Assignment tile.Assignment `toml:"assignment"`
	Tiles      []Entry         `toml:"tiles"`
}

// Constant is the Julia constant c
type Constant struct {
	Real float64 `toml:"real"`
	Imag float64 `toml:"imag"`
}

// Entry is one written tile
type Entry struct {
	Block int    `toml:"block"`
	Zoom  int    `toml:"zoom"`
	Row   int    `toml:"row"`
	Col   int    `toml:"column"`
	File  string `toml:"file"`
}

// NewRunID returns a fresh run identifier
func NewRunID() string {
	return uuid.NewString()
}

// Filename returns the manifest file name for a rank
func Filename(rank int) string {
	return fmt.Sprintf("manifest-%d.toml", rank)
}

// Add records a written tile
func (m *Manifest) Add(block int, id tile.Identity, file string) {
	m.Tiles = append(m.Tiles, Entry{Block: block, Zoom: id.Zoom, Row: id.Row, Col: id.Column, File: file})
}

// Write stores the manifest as dir/manifest-<rank>.toml
func (m *Manifest) Write(dir string) (string, error) {
	path := filepath.Join(dir, Filename(m.Rank))
	f, err := os.Create(path)
	if err != nil {
		return "", err
	}
	if err := toml.NewEncoder(f).Encode(m); err != nil {
		f.Close()
		return "", fmt.Errorf("encode manifest: %w", err)
	}
	return path, f.Close()
}

// Read loads a manifest file
func Read(path string) (*Manifest, error) {
	var m Manifest
	if _, err := toml.DecodeFile(path, &m); err != nil {
		return nil, fmt.Errorf("decode manifest %s: %w", path, err)
	}
	return &m, nil
}
