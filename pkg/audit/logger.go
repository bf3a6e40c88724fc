// Package audit retains enforcement results as an append-only log for
// replay. Entries are content-hashed so downstream consumers can detect
// edits to the log file itself. Alert delivery is out of scope: the log
// emits plain data only.
package audit

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/sonate-labs/sonate/core/pkg/canonicalize"
	"github.com/sonate-labs/sonate/core/pkg/contracts"
)

// maxEntryBytes caps a single log line on read-back. Enforcement results
// are small; anything past this is treated as corruption.
const maxEntryBytes = 4 * 1024 * 1024

// Entry is one recorded enforcement result with its integrity hash.
type Entry struct {
	Timestamp string                            `json:"timestamp"`
	Result    *contracts.PolicyEnforcementResult `json:"result"`
	Hash      string                            `json:"hash"`
}

// EnforcementLog records enforcement results for audit replay.
type EnforcementLog interface {
	Append(result *contracts.PolicyEnforcementResult) error
	Entries() ([]Entry, error)
}

// FileEnforcementLog is a persistent JSONL implementation.
type FileEnforcementLog struct {
	mu   sync.Mutex
	path string
}

// NewFileEnforcementLog creates (or reuses) a log file at path.
func NewFileEnforcementLog(path string) (*FileEnforcementLog, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR, 0o600)
	if err != nil {
		return nil, fmt.Errorf("audit: open log: %w", err)
	}
	_ = f.Close()
	return &FileEnforcementLog{path: path}, nil
}

// Append writes one enforcement result as a hashed JSON line.
func (l *FileEnforcementLog) Append(result *contracts.PolicyEnforcementResult) error {
	if result == nil {
		return fmt.Errorf("audit: nil result")
	}

	entry, err := newEntry(result)
	if err != nil {
		return err
	}
	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("audit: entry marshal: %w", err)
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	f, err := os.OpenFile(l.path, os.O_APPEND|os.O_WRONLY, 0o600)
	if err != nil {
		return fmt.Errorf("audit: open log: %w", err)
	}
	defer func() { _ = f.Close() }()
	if _, err := f.Write(append(data, '\n')); err != nil {
		return fmt.Errorf("audit: write entry: %w", err)
	}
	return nil
}

// Entries reads back all recorded entries, skipping malformed lines.
func (l *FileEnforcementLog) Entries() ([]Entry, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	f, err := os.Open(l.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("audit: open log: %w", err)
	}
	defer func() { _ = f.Close() }()

	// One entry per line. A json.Decoder would stall on the first corrupt
	// line (it never advances past a syntax error), so scan line-wise and
	// unmarshal each line independently.
	var entries []Entry
	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 0, 64*1024), maxEntryBytes)
	for sc.Scan() {
		var e Entry
		if err := json.Unmarshal(sc.Bytes(), &e); err != nil {
			continue
		}
		entries = append(entries, e)
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("audit: read log: %w", err)
	}
	return entries, nil
}

// MemoryEnforcementLog is a transient implementation for tests.
type MemoryEnforcementLog struct {
	mu      sync.RWMutex
	entries []Entry
}

// NewMemoryEnforcementLog creates an empty in-memory log.
func NewMemoryEnforcementLog() *MemoryEnforcementLog {
	return &MemoryEnforcementLog{}
}

// Append records one enforcement result.
func (l *MemoryEnforcementLog) Append(result *contracts.PolicyEnforcementResult) error {
	if result == nil {
		return fmt.Errorf("audit: nil result")
	}
	entry, err := newEntry(result)
	if err != nil {
		return err
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries = append(l.entries, entry)
	return nil
}

// Entries returns a copy of the recorded entries.
func (l *MemoryEnforcementLog) Entries() ([]Entry, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]Entry, len(l.entries))
	copy(out, l.entries)
	return out, nil
}

func newEntry(result *contracts.PolicyEnforcementResult) (Entry, error) {
	h, err := canonicalize.CanonicalHash(result)
	if err != nil {
		return Entry{}, fmt.Errorf("audit: result hash: %w", err)
	}
	return Entry{
		Timestamp: time.Now().UTC().Format(time.RFC3339Nano),
		Result:    result,
		Hash:      h,
	}, nil
}

// VerifyEntry recomputes an entry's hash against its recorded result.
func VerifyEntry(e Entry) (bool, error) {
	h, err := canonicalize.CanonicalHash(e.Result)
	if err != nil {
		return false, fmt.Errorf("audit: result hash: %w", err)
	}
	return h == e.Hash, nil
}
