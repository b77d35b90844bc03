// Package metricsstore persists MetricsSnapshots to disk under a
// count and byte-size cap, in either a re-encoded JSON array or an
// append-only NDJSON stream.
//
// Author: KleaSCM
// Email: KleaSCM@gmail.com
package metricsstore

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/kleaSCM/tunnelscope/internal/model"
)

// Format selects the on-disk representation.
type Format int

const (
	FormatJSON Format = iota
	FormatNDJSON
)

// ErrSnapshotTooLarge is returned by Append when a single snapshot
// alone exceeds maxBytes; it is rejected rather than truncated.
var ErrSnapshotTooLarge = fmt.Errorf("metricsstore: snapshot exceeds maxBytes")

// Store manages one snapshot file.
type Store struct {
	mu           sync.Mutex
	path         string
	format       Format
	maxSnapshots int
	maxBytes     int64
}

// New creates a Store. maxSnapshots and maxBytes are both expected to
// already satisfy their configuration floors.
func New(path string, format Format, maxSnapshots int, maxBytes int64) *Store {
	return &Store{path: path, format: format, maxSnapshots: maxSnapshots, maxBytes: maxBytes}
}

// Append adds one snapshot, rejecting it outright if it alone would
// exceed maxBytes once serialized.
func (s *Store) Append(snapshot model.MetricsSnapshot) error {
	data, err := json.Marshal(snapshot)
	if err != nil {
		return err
	}
	if int64(len(data))+1 > s.maxBytes {
		return ErrSnapshotTooLarge
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.format == FormatNDJSON {
		return s.appendNDJSONLine(snapshot)
	}
	return s.appendJSON(snapshot)
}

// appendNDJSONLine writes one snapshot per line, mirroring the
// size-based rotation rule of the packet sample stream (§4.6), plus
// the count-based trim the snapshot store additionally requires.
func (s *Store) appendNDJSONLine(snapshot model.MetricsSnapshot) error {
	f, err := os.OpenFile(s.path, os.O_CREATE|os.O_RDWR|os.O_APPEND, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()

	data, err := json.Marshal(snapshot)
	if err != nil {
		return err
	}
	data = append(data, '\n')
	if _, err := f.Write(data); err != nil {
		return err
	}
	return s.rotateNDJSONIfNeeded(f)
}

func (s *Store) rotateNDJSONIfNeeded(f *os.File) error {
	info, err := f.Stat()
	if err != nil {
		return err
	}
	if info.Size() <= s.maxBytes {
		return s.trimToMaxSnapshots()
	}

	if _, err := f.Seek(0, 0); err != nil {
		return err
	}
	data := make([]byte, info.Size())
	if _, err := io.ReadFull(f, data); err != nil {
		return err
	}

	tail := data
	if int64(len(tail)) > s.maxBytes {
		tail = tail[int64(len(tail))-s.maxBytes:]
	}
	if nl := bytes.IndexByte(tail, '\n'); nl >= 0 {
		tail = tail[nl+1:]
	} else {
		tail = nil
	}
	if err := os.WriteFile(s.path, tail, 0o644); err != nil {
		return err
	}
	return s.trimToMaxSnapshotsLocked()
}

// trimToMaxSnapshots enforces the count cap for NDJSON mode by
// re-reading, trimming from the front, and rewriting when the line
// count exceeds maxSnapshots. It runs after every NDJSON append (with
// or without a rotation) and re-reads the whole file each time.
func (s *Store) trimToMaxSnapshots() error {
	return s.trimToMaxSnapshotsLocked()
}

func (s *Store) trimToMaxSnapshotsLocked() error {
	data, err := os.ReadFile(s.path)
	if err != nil {
		return err
	}
	lines := splitNonEmptyLines(data)
	if len(lines) <= s.maxSnapshots {
		return nil
	}
	keep := lines[len(lines)-s.maxSnapshots:]
	var buf bytes.Buffer
	for _, l := range keep {
		buf.Write(l)
		buf.WriteByte('\n')
	}
	return os.WriteFile(s.path, buf.Bytes(), 0o644)
}

func (s *Store) appendJSON(snapshot model.MetricsSnapshot) error {
	snapshots := s.loadJSONLocked()
	snapshots = append(snapshots, snapshot)
	if len(snapshots) > s.maxSnapshots {
		snapshots = snapshots[len(snapshots)-s.maxSnapshots:]
	}

	for {
		data, err := json.Marshal(snapshots)
		if err != nil {
			return err
		}
		if int64(len(data)) <= s.maxBytes || len(snapshots) <= 1 {
			return os.WriteFile(s.path, data, 0o644)
		}
		snapshots = snapshots[1:]
	}
}

// Load reads the persisted snapshot list. Corrupt JSON (JSON mode) or
// an unreadable file returns an empty list, never an error.
func (s *Store) Load() []model.MetricsSnapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.format == FormatNDJSON {
		return s.loadNDJSONLocked()
	}
	return s.loadJSONLocked()
}

func (s *Store) loadJSONLocked() []model.MetricsSnapshot {
	data, err := os.ReadFile(s.path)
	if err != nil {
		return nil
	}
	var snapshots []model.MetricsSnapshot
	if err := json.Unmarshal(data, &snapshots); err != nil {
		return nil
	}
	return snapshots
}

func (s *Store) loadNDJSONLocked() []model.MetricsSnapshot {
	f, err := os.Open(s.path)
	if err != nil {
		return nil
	}
	defer f.Close()

	var out []model.MetricsSnapshot
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	for scanner.Scan() {
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}
		var snap model.MetricsSnapshot
		if err := json.Unmarshal(line, &snap); err != nil {
			continue
		}
		out = append(out, snap)
	}
	return out
}

func splitNonEmptyLines(data []byte) [][]byte {
	var lines [][]byte
	for _, line := range bytes.Split(data, []byte{'\n'}) {
		if len(bytes.TrimSpace(line)) > 0 {
			lines = append(lines, line)
		}
	}
	return lines
}
