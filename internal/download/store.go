// Package download composes session operations into named download
// flows (vehicle unit, driver card, ad-hoc command) and persists the
// resulting artifacts.
package download

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// ArtifactKind selects the file extension of a persisted download.
type ArtifactKind int

const (
	KindRaw ArtifactKind = iota
	KindVehicleUnit
	KindDriverCard
)

// Ext returns the file extension for the artifact kind.
func (k ArtifactKind) Ext() string {
	switch k {
	case KindVehicleUnit:
		return ".tgd"
	case KindDriverCard:
		return ".ddd"
	default:
		return ".bin"
	}
}

func (k ArtifactKind) String() string {
	switch k {
	case KindVehicleUnit:
		return "vehicle-unit"
	case KindDriverCard:
		return "driver-card"
	default:
		return "raw"
	}
}

// Store persists download artifacts under a directory.
type Store struct {
	Dir string
}

// NewStore returns a store writing into dir. The directory is created
// on first save.
func NewStore(dir string) *Store {
	return &Store{Dir: dir}
}

// ArtifactName builds the timestamped file name for an artifact:
// download_<RFC3339 UTC, colons replaced by hyphens><ext>.
func ArtifactName(kind ArtifactKind, t time.Time) string {
	ts := strings.ReplaceAll(t.UTC().Format(time.RFC3339), ":", "-")
	return "download_" + ts + kind.Ext()
}

// Save writes the payload byte-exact, via a temp file and rename so a
// crash never leaves a truncated artifact behind. Returns the final
// path.
func (st *Store) Save(kind ArtifactKind, data []byte) (string, error) {
	if err := os.MkdirAll(st.Dir, 0755); err != nil {
		return "", fmt.Errorf("download: creating artifact dir: %w", err)
	}

	path := filepath.Join(st.Dir, ArtifactName(kind, time.Now()))
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return "", fmt.Errorf("download: writing artifact: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return "", fmt.Errorf("download: moving artifact: %w", err)
	}
	return path, nil
}
