package storage

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"

	"zester/pkg/snapshot"
	"zester/pkg/soundcloud"
)

// Format is an on-disk snapshot encoding
type Format string

const (
	FormatJSON   Format = "json"
	FormatYAML   Format = "yaml"
	FormatNDJSON Format = "ndjson"
)

// ParseFormat maps a format name to its Format
func ParseFormat(s string) (Format, error) {
	switch f := Format(strings.ToLower(s)); f {
	case FormatJSON, FormatYAML, FormatNDJSON:
		return f, nil
	case "":
		return FormatJSON, nil
	default:
		return "", fmt.Errorf("unsupported snapshot format %q", s)
	}
}

// Ext returns the file extension of the format
func (f Format) Ext() string {
	if f == FormatYAML {
		return ".yaml"
	}
	return "." + string(f)
}

// ErrSnapshotNotFound is returned when no saved snapshot exists for a kind
var ErrSnapshotNotFound = errors.New("snapshot not found")

// Manager writes snapshots into one output directory
type Manager struct {
	outputDir string
	overwrite bool
	saved     map[string]bool
	mu        sync.RWMutex
}

// NewManager creates a storage manager for outputDir. With overwrite unset,
// an existing <kind>.<ext> is kept and the new snapshot is written next to
// it under a timestamped name.
func NewManager(outputDir string, overwrite bool) (*Manager, error) {
	if err := os.MkdirAll(outputDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create output directory: %w", err)
	}

	manager := &Manager{
		outputDir: outputDir,
		overwrite: overwrite,
		saved:     make(map[string]bool),
	}

	if err := manager.scanExistingFiles(); err != nil {
		return nil, fmt.Errorf("failed to scan existing files: %w", err)
	}

	return manager, nil
}

// scanExistingFiles records snapshot files already in the output directory
func (m *Manager) scanExistingFiles() error {
	entries, err := os.ReadDir(m.outputDir)
	if err != nil {
		return fmt.Errorf("failed to read directory: %w", err)
	}

	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		switch filepath.Ext(entry.Name()) {
		case ".json", ".yaml", ".ndjson":
			m.saved[entry.Name()] = true
		}
	}
	return nil
}

// Exists reports whether a snapshot file for kind in format is present
func (m *Manager) Exists(kind soundcloud.Kind, format Format) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.taken(string(kind) + format.Ext())
}

// taken reports whether name was saved by m or exists on disk. m.mu must be
// held.
func (m *Manager) taken(name string) bool {
	if m.saved[name] {
		return true
	}
	_, err := os.Stat(filepath.Join(m.outputDir, name))
	return err == nil
}

// SaveSnapshot writes snap atomically and returns the file path
func (m *Manager) SaveSnapshot(snap *snapshot.Snapshot, format Format) (string, error) {
	if snap == nil {
		return "", errors.New("nil snapshot")
	}

	name := m.reserve(snap, format)
	filename := filepath.Join(m.outputDir, name)

	err := writeAtomic(filename, func(w io.Writer) error {
		return encode(w, snap, format)
	})
	if err != nil {
		m.mu.Lock()
		delete(m.saved, name)
		m.mu.Unlock()
		return "", err
	}

	return filename, nil
}

// reserve picks the file name for snap and marks it saved. Without
// overwrite an existing name gets the fetch time appended, then a counter
// until the name is free.
func (m *Manager) reserve(snap *snapshot.Snapshot, format Format) string {
	m.mu.Lock()
	defer m.mu.Unlock()

	name := string(snap.Kind) + format.Ext()
	if !m.overwrite && m.taken(name) {
		base := fmt.Sprintf("%s-%s", snap.Kind, snap.FetchedAt.UTC().Format("20060102T150405Z"))
		name = base + format.Ext()
		for i := 2; m.taken(name); i++ {
			name = fmt.Sprintf("%s-%d%s", base, i, format.Ext())
		}
	}
	m.saved[name] = true
	return name
}

// AudioDir is the subdirectory of the output directory holding track audio
const AudioDir = "audio"

// AudioPath returns where the audio file name is stored
func (m *Manager) AudioPath(name string) string {
	return filepath.Join(m.outputDir, AudioDir, filepath.Base(name))
}

// AudioExists reports whether the audio file name was already saved
func (m *Manager) AudioExists(name string) bool {
	_, err := os.Stat(m.AudioPath(name))
	return err == nil
}

// SaveAudio streams r into the audio file name atomically and returns its
// path. An existing file is replaced.
func (m *Manager) SaveAudio(name string, r io.Reader) (string, error) {
	filename := m.AudioPath(name)
	if err := os.MkdirAll(filepath.Dir(filename), 0755); err != nil {
		return "", fmt.Errorf("failed to create audio directory: %w", err)
	}

	err := writeAtomic(filename, func(w io.Writer) error {
		_, err := io.Copy(w, r)
		return err
	})
	if err != nil {
		return "", err
	}
	return filename, nil
}

// LoadSnapshot reads back the JSON snapshot of kind
func (m *Manager) LoadSnapshot(kind soundcloud.Kind) (*snapshot.Snapshot, error) {
	filename := filepath.Join(m.outputDir, string(kind)+FormatJSON.Ext())
	data, err := os.ReadFile(filename)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%s: %w", kind, ErrSnapshotNotFound)
		}
		return nil, fmt.Errorf("failed to read snapshot: %w", err)
	}
	return DecodeJSON(data)
}

// GetOutputDir returns the output directory path
func (m *Manager) GetOutputDir() string {
	return m.outputDir
}

// GetSavedCount returns the number of snapshot files known to the manager
func (m *Manager) GetSavedCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.saved)
}

// writeAtomic writes through a temporary file renamed into place, so a
// reader never sees a partial file
func writeAtomic(filename string, write func(w io.Writer) error) error {
	tempFile := filename + ".tmp"
	out, err := os.Create(tempFile)
	if err != nil {
		return fmt.Errorf("failed to create temporary file: %w", err)
	}

	buf := bufio.NewWriter(out)
	err = write(buf)
	if err == nil {
		err = buf.Flush()
	}
	closeErr := out.Close()

	if err != nil {
		os.Remove(tempFile)
		return fmt.Errorf("failed to write file: %w", err)
	}
	if closeErr != nil {
		os.Remove(tempFile)
		return fmt.Errorf("failed to close file: %w", closeErr)
	}

	if err := os.Rename(tempFile, filename); err != nil {
		os.Remove(tempFile)
		return fmt.Errorf("failed to rename temporary file: %w", err)
	}
	return nil
}

// ndjsonHeader is the first line of an NDJSON snapshot
type ndjsonHeader struct {
	RunID     string          `json:"run_id"`
	Kind      soundcloud.Kind `json:"collection_kind"`
	Count     int             `json:"count"`
	FetchedAt string          `json:"fetched_at"`
}

func encode(w io.Writer, snap *snapshot.Snapshot, format Format) error {
	switch format {
	case FormatJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(snap)
	case FormatYAML:
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(snap); err != nil {
			return err
		}
		return enc.Close()
	case FormatNDJSON:
		enc := json.NewEncoder(w)
		header := ndjsonHeader{
			RunID:     snap.RunID,
			Kind:      snap.Kind,
			Count:     snap.Count,
			FetchedAt: snap.FetchedAt.UTC().Format("2006-01-02T15:04:05Z07:00"),
		}
		if err := enc.Encode(header); err != nil {
			return err
		}
		for _, record := range snap.Records {
			if err := enc.Encode(record); err != nil {
				return err
			}
		}
		return nil
	default:
		return fmt.Errorf("unsupported snapshot format %q", format)
	}
}

// DecodeJSON parses a JSON snapshot, restoring each record's concrete type
// from the collection kind
func DecodeJSON(data []byte) (*snapshot.Snapshot, error) {
	var raw struct {
		snapshot.Snapshot
		Records []json.RawMessage `json:"records"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("failed to parse snapshot: %w", err)
	}

	snap := raw.Snapshot
	snap.Records = make([]soundcloud.Record, 0, len(raw.Records))
	for i, item := range raw.Records {
		record, err := newRecord(snap.Kind)
		if err != nil {
			return nil, err
		}
		if err := json.Unmarshal(item, record); err != nil {
			return nil, fmt.Errorf("failed to parse record %d: %w", i, err)
		}
		snap.Records = append(snap.Records, record)
	}
	if snap.Count != len(snap.Records) {
		return nil, fmt.Errorf("snapshot claims %d records, holds %d", snap.Count, len(snap.Records))
	}
	return &snap, nil
}

func newRecord(kind soundcloud.Kind) (soundcloud.Record, error) {
	switch kind {
	case soundcloud.KindLikes:
		return &soundcloud.Like{}, nil
	case soundcloud.KindPlaylists:
		return &soundcloud.Playlist{}, nil
	case soundcloud.KindComments:
		return &soundcloud.Comment{}, nil
	default:
		return nil, fmt.Errorf("unknown collection kind %q", kind)
	}
}
