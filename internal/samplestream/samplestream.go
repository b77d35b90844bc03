// Package samplestream implements the append-only NDJSON file of
// packet samples the analytics core hands to the host for offline
// inspection, with size-based rotation and identity-aware incremental
// reads.
//
// Author: KleaSCM
// Email: KleaSCM@gmail.com
package samplestream

import (
	"bufio"
	"bytes"
	"encoding/json"
	"io"
	"os"
	"sync"

	"github.com/kleaSCM/tunnelscope/internal/model"
)

// Cursor identifies a read position tied to a specific file identity,
// so that an atomically-replaced (rotated) file is detected and the
// cursor resets to the beginning rather than silently skipping or
// mis-seeking.
type Cursor struct {
	Offset   int64
	Identity FileIdentity
}

// FileIdentity captures enough of a file's stat to detect replacement
// across calls; zero value never matches a real file.
type FileIdentity struct {
	Device uint64
	Inode  uint64
}

// Stream manages one NDJSON file. The file handle is opened lazily on
// the first Append after construction or after Close.
type Stream struct {
	mu       sync.Mutex
	path     string
	maxBytes int64
	file     *os.File
}

// New creates a Stream bound to path with the given rotation ceiling.
func New(path string, maxBytes int64) *Stream {
	return &Stream{path: path, maxBytes: maxBytes}
}

// Append serializes each sample as one NDJSON line and writes the
// batch to the file, rotating afterward if the file now exceeds
// maxBytes. An empty batch is a no-op. I/O errors are returned for the
// caller to log; the stream remains usable and the next Append
// reopens the file if needed.
func (s *Stream) Append(samples []model.PacketSample) error {
	if len(samples) == 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.ensureOpen(); err != nil {
		return err
	}

	var buf bytes.Buffer
	for _, sample := range samples {
		data, err := json.Marshal(sample)
		if err != nil {
			continue
		}
		buf.Write(data)
		buf.WriteByte('\n')
	}
	if _, err := s.file.Write(buf.Bytes()); err != nil {
		return err
	}

	return s.rotateIfNeeded()
}

func (s *Stream) ensureOpen() error {
	if s.file != nil {
		return nil
	}
	f, err := os.OpenFile(s.path, os.O_CREATE|os.O_RDWR|os.O_APPEND, 0o644)
	if err != nil {
		return err
	}
	s.file = f
	return nil
}

// rotateIfNeeded replaces the file with the most-recent tail that
// fits under maxBytes, keeping only complete lines. Caller holds the
// lock and has an open s.file.
func (s *Stream) rotateIfNeeded() error {
	info, err := s.file.Stat()
	if err != nil {
		return err
	}
	if info.Size() <= s.maxBytes {
		return nil
	}

	if _, err := s.file.Seek(0, io.SeekStart); err != nil {
		return err
	}
	data, err := io.ReadAll(s.file)
	if err != nil {
		return err
	}

	tail := data
	if int64(len(tail)) > s.maxBytes {
		tail = tail[int64(len(tail))-s.maxBytes:]
	}
	// The cut above almost certainly lands mid-line; drop everything
	// up to and including the next newline so every kept line is
	// complete.
	if nl := bytes.IndexByte(tail, '\n'); nl >= 0 {
		tail = tail[nl+1:]
	} else {
		tail = nil
	}

	if err := s.file.Close(); err != nil {
		return err
	}
	if err := os.WriteFile(s.path, tail, 0o644); err != nil {
		s.file = nil
		return err
	}
	f, err := os.OpenFile(s.path, os.O_CREATE|os.O_RDWR|os.O_APPEND, 0o644)
	if err != nil {
		s.file = nil
		return err
	}
	s.file = f
	return nil
}

// Close releases the file handle. Idempotent; a subsequent Append
// reopens.
func (s *Stream) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.file == nil {
		return nil
	}
	err := s.file.Close()
	s.file = nil
	return err
}

// ReadAll parses every complete NDJSON line currently in the file,
// silently skipping malformed ones.
func (s *Stream) ReadAll() ([]model.PacketSample, error) {
	f, err := os.Open(s.path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var out []model.PacketSample
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(bytes.TrimSpace(line)) == 0 {
			continue
		}
		var sample model.PacketSample
		if err := json.Unmarshal(line, &sample); err != nil {
			continue
		}
		out = append(out, sample)
	}
	return out, nil
}

// ReadNew reads samples appended since cursor, returning the new
// samples and the cursor to resume from. If the file's identity
// changed since cursor was captured (rotation or external
// replacement), or the stored offset now exceeds the file size
// (truncation), the read restarts from offset 0.
func (s *Stream) ReadNew(cursor Cursor) ([]model.PacketSample, Cursor, error) {
	f, err := os.Open(s.path)
	if os.IsNotExist(err) {
		return nil, cursor, nil
	}
	if err != nil {
		return nil, cursor, err
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return nil, cursor, err
	}
	identity := identityOf(info)

	offset := cursor.Offset
	if cursor.Identity != identity || offset > info.Size() {
		offset = 0
	}

	if _, err := f.Seek(offset, io.SeekStart); err != nil {
		return nil, cursor, err
	}

	data, err := io.ReadAll(f)
	if err != nil {
		return nil, cursor, err
	}

	lastNL := bytes.LastIndexByte(data, '\n')
	if lastNL < 0 {
		return nil, Cursor{Offset: offset, Identity: identity}, nil
	}
	complete := data[:lastNL+1]
	nextOffset := offset + int64(len(complete))

	var out []model.PacketSample
	scanner := bufio.NewScanner(bytes.NewReader(complete))
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(bytes.TrimSpace(line)) == 0 {
			continue
		}
		var sample model.PacketSample
		if err := json.Unmarshal(line, &sample); err != nil {
			continue
		}
		out = append(out, sample)
	}

	return out, Cursor{Offset: nextOffset, Identity: identity}, nil
}
