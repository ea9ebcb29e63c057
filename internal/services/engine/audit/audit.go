// Package audit records every executed role operation as compressed JSONL,
// rotated hourly.
package audit

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/klauspost/compress/zstd"
	"github.com/louisbranch/moodring/internal/services/engine/domain"
)

const (
	filePrefix = "roles"
	hourLayout = "2006-01-02-15"
)

// Entry is one audit line.
type Entry struct {
	At          time.Time `json:"at"`
	CommunityID string    `json:"community_id"`
	MemberID    string    `json:"member_id"`
	Kind        string    `json:"kind"`
	RoleID      string    `json:"role_id"`
	Scope       string    `json:"scope"`
	OK          bool      `json:"ok"`
	Error       string    `json:"error,omitempty"`
}

// EntryFromResult flattens an operation result.
func EntryFromResult(result domain.OperationResult) Entry {
	entry := Entry{
		At:          result.At.UTC(),
		CommunityID: result.CommunityID,
		MemberID:    result.MemberID,
		Kind:        result.Operation.Kind.String(),
		RoleID:      result.Operation.RoleID,
		Scope:       result.Operation.Scope(),
		OK:          result.OK(),
	}
	if result.Err != nil {
		entry.Error = result.Err.Error()
	}
	return entry
}

// Writer appends entries to <dir>/roles-<yyyy-mm-dd-hh>.jsonl.zst, bucketed
// by the entry time in UTC.
type Writer struct {
	dir string

	mu      sync.Mutex
	curHour string
	f       *os.File
	enc     *zstd.Encoder
	w       *bufio.Writer
}

// NewWriter returns a writer rooted at dir. Files are created lazily.
func NewWriter(dir string) (*Writer, error) {
	dir = strings.TrimSpace(dir)
	if dir == "" {
		return nil, errors.New("audit dir is required")
	}
	return &Writer{dir: dir}, nil
}

// RecordOperation appends one result.
func (w *Writer) RecordOperation(_ context.Context, result domain.OperationResult) error {
	return w.Write(EntryFromResult(result))
}

// Write appends entry, rotating when its hour differs from the open file.
func (w *Writer) Write(entry Entry) error {
	if w == nil {
		return errors.New("audit writer is not configured")
	}
	w.mu.Lock()
	defer w.mu.Unlock()

	at := entry.At
	if at.IsZero() {
		at = time.Now()
	}
	hour := at.UTC().Format(hourLayout)
	if hour != w.curHour {
		if err := w.rotateLocked(hour); err != nil {
			return fmt.Errorf("rotate audit file: %w", err)
		}
	}

	b, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("encode audit entry: %w", err)
	}
	if _, err := w.w.Write(b); err != nil {
		return err
	}
	if err := w.w.WriteByte('\n'); err != nil {
		return err
	}
	return w.w.Flush()
}

// Close finishes the open zstd frame.
func (w *Writer) Close() error {
	if w == nil {
		return nil
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.closeLocked()
}

// PathForHour returns the file an entry at t lands in.
func (w *Writer) PathForHour(t time.Time) string {
	return filepath.Join(w.dir, fmt.Sprintf("%s-%s.jsonl.zst", filePrefix, t.UTC().Format(hourLayout)))
}

func (w *Writer) rotateLocked(hour string) error {
	if err := w.closeLocked(); err != nil {
		return err
	}
	if err := os.MkdirAll(w.dir, 0o755); err != nil {
		return err
	}
	path := filepath.Join(w.dir, fmt.Sprintf("%s-%s.jsonl.zst", filePrefix, hour))
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return err
	}
	enc, err := zstd.NewWriter(f, zstd.WithEncoderLevel(zstd.SpeedFastest))
	if err != nil {
		_ = f.Close()
		return err
	}
	w.f = f
	w.enc = enc
	w.w = bufio.NewWriterSize(enc, 64*1024)
	w.curHour = hour
	return nil
}

func (w *Writer) closeLocked() error {
	var err error
	if w.w != nil {
		_ = w.w.Flush()
	}
	if w.enc != nil {
		err = w.enc.Close()
		w.enc = nil
	}
	if w.f != nil {
		if closeErr := w.f.Close(); err == nil {
			err = closeErr
		}
		w.f = nil
	}
	w.w = nil
	w.curHour = ""
	return err
}

// ReadEntries decodes every entry of a closed audit file. Appended frames
// from reopened hours decode as one stream.
func ReadEntries(r io.Reader) ([]Entry, error) {
	dec, err := zstd.NewReader(r)
	if err != nil {
		return nil, fmt.Errorf("open zstd stream: %w", err)
	}
	defer dec.Close()

	var entries []Entry
	scanner := bufio.NewScanner(dec)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var entry Entry
		if err := json.Unmarshal(line, &entry); err != nil {
			return nil, fmt.Errorf("decode audit entry: %w", err)
		}
		entries = append(entries, entry)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read audit stream: %w", err)
	}
	return entries, nil
}

// ReadFile decodes the audit file at path.
func ReadFile(path string) ([]Entry, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return ReadEntries(f)
}
