package session

import (
	"bytes"
	"encoding/gob"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/charmbracelet/log"
	"github.com/dustin/go-humanize"
	"github.com/google/uuid"
	"github.com/klauspost/compress/zstd"
)

// snapshotVersion is bumped whenever the snapshot layout changes.
const snapshotVersion = 1

// ErrSnapshotVersion is returned when a snapshot was written by an
// incompatible version.
var ErrSnapshotVersion = errors.New("unsupported snapshot version")

// snapshot is the on-disk form: gob-encoded, then zstd-compressed.
type snapshot struct {
	ID       string
	Version  int
	Taken    time.Time
	Sessions []Session
}

// SaveSnapshot writes every live conversation to path. The file is written
// to a temporary name first and renamed into place.
func (m *Manager) SaveSnapshot(path string, compressionLevel int) error {
	m.mu.Lock()
	items := m.sessions.Items()
	snap := snapshot{
		ID:       uuid.NewString(),
		Version:  snapshotVersion,
		Taken:    m.now(),
		Sessions: make([]Session, 0, len(items)),
	}
	for _, item := range items {
		snap.Sessions = append(snap.Sessions, item.Value.clone())
	}
	m.mu.Unlock()

	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(&snap); err != nil {
		return fmt.Errorf("failed to encode snapshot: %w", err)
	}

	encoder, err := zstd.NewWriter(nil,
		zstd.WithEncoderLevel(zstd.EncoderLevelFromZstd(compressionLevel)))
	if err != nil {
		return fmt.Errorf("failed to create zstd encoder: %w", err)
	}
	defer encoder.Close() //nolint:errcheck

	compressed := encoder.EncodeAll(buf.Bytes(), nil)

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create snapshot directory: %w", err)
	}

	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, compressed, 0o600); err != nil {
		return fmt.Errorf("failed to write snapshot: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("failed to move snapshot into place: %w", err)
	}

	log.Info("session snapshot saved",
		"id", snap.ID,
		"sessions", len(snap.Sessions),
		"size", humanize.Bytes(uint64(len(compressed))),
		"raw", humanize.Bytes(uint64(buf.Len())),
		"path", path)

	return nil
}

// LoadSnapshot restores conversations from path and returns how many were
// loaded. Restored conversations start a fresh lifetime. A missing file is
// not an error.
func (m *Manager) LoadSnapshot(path string) (int, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("failed to read snapshot: %w", err)
	}

	decoder, err := zstd.NewReader(nil)
	if err != nil {
		return 0, fmt.Errorf("failed to create zstd decoder: %w", err)
	}
	defer decoder.Close()

	raw, err := decoder.DecodeAll(data, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to decompress snapshot: %w", err)
	}

	var snap snapshot
	if err := gob.NewDecoder(bytes.NewReader(raw)).Decode(&snap); err != nil {
		return 0, fmt.Errorf("failed to decode snapshot: %w", err)
	}
	if snap.Version != snapshotVersion {
		return 0, fmt.Errorf("%w: %d", ErrSnapshotVersion, snap.Version)
	}

	m.mu.Lock()
	for _, s := range snap.Sessions {
		m.restore(s)
	}
	m.mu.Unlock()

	log.Info("session snapshot restored",
		"id", snap.ID,
		"sessions", len(snap.Sessions),
		"taken", humanize.Time(snap.Taken),
		"path", path)

	return len(snap.Sessions), nil
}
