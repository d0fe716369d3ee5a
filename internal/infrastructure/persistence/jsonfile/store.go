// Package jsonfile implements the access repositories on top of plain JSON
// files. This is the default backend: the whole file is loaded before every
// read and rewritten in full on every mutation, so the file on disk is always
// the complete, current state.
package jsonfile

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/nant-dev/pddikti-bot/internal/domain/access"
)

// ══════════════════════════════════════════════════════════════════════════════
// USER STORE
// ══════════════════════════════════════════════════════════════════════════════

// usersFile is the on-disk shape of the allow list.
type usersFile struct {
	Users []access.AllowedUser `json:"users"`
}

// UnmarshalJSON also accepts a bare top-level array, the shape older data
// files carry.
func (f *usersFile) UnmarshalJSON(data []byte) error {
	if bareArray(data) {
		return json.Unmarshal(data, &f.Users)
	}
	type wrapped usersFile
	return json.Unmarshal(data, (*wrapped)(f))
}

// UserStore implements access.UserStore on a JSON file.
type UserStore struct {
	path string
	mu   sync.Mutex
}

// NewUserStore creates a store backed by the given file. The file is created
// empty on first mutation; a missing file reads as an empty allow list.
func NewUserStore(path string) *UserStore {
	return &UserStore{path: path}
}

// Grant adds a user to the allow list.
func (s *UserStore) Grant(ctx context.Context, user access.AllowedUser) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var f usersFile
	if err := load(s.path, &f); err != nil {
		return err
	}

	for _, u := range f.Users {
		if u.ID == user.ID {
			return access.ErrAlreadyAllowed
		}
	}

	f.Users = append(f.Users, user)
	return store(s.path, f)
}

// Revoke removes a user from the allow list.
func (s *UserStore) Revoke(ctx context.Context, id access.TelegramID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var f usersFile
	if err := load(s.path, &f); err != nil {
		return err
	}

	kept := f.Users[:0]
	found := false
	for _, u := range f.Users {
		if u.ID == id {
			found = true
			continue
		}
		kept = append(kept, u)
	}
	if !found {
		return access.ErrNotAllowed
	}

	f.Users = kept
	return store(s.path, f)
}

// IsAllowed reports whether the user is on the allow list.
func (s *UserStore) IsAllowed(ctx context.Context, id access.TelegramID) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var f usersFile
	if err := load(s.path, &f); err != nil {
		return false, err
	}

	for _, u := range f.Users {
		if u.ID == id {
			return true, nil
		}
	}
	return false, nil
}

// List returns every allowed user in file order (oldest grant first).
func (s *UserStore) List(ctx context.Context) ([]access.AllowedUser, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var f usersFile
	if err := load(s.path, &f); err != nil {
		return nil, err
	}
	return f.Users, nil
}

// ══════════════════════════════════════════════════════════════════════════════
// ACTIVITY LOG
// ══════════════════════════════════════════════════════════════════════════════

// logsFile is the on-disk shape of the activity trail.
type logsFile struct {
	Logs []access.ActivityEntry `json:"logs"`
}

// UnmarshalJSON also accepts a bare top-level array, the shape older data
// files carry.
func (f *logsFile) UnmarshalJSON(data []byte) error {
	if bareArray(data) {
		return json.Unmarshal(data, &f.Logs)
	}
	type wrapped logsFile
	return json.Unmarshal(data, (*wrapped)(f))
}

// ActivityLog implements access.ActivityLog on a JSON file.
type ActivityLog struct {
	path string
	mu   sync.Mutex

	// maxEntries caps the file; oldest entries are dropped past it.
	maxEntries int
}

// NewActivityLog creates a log backed by the given file, keeping at most
// maxEntries entries (0 means unbounded).
func NewActivityLog(path string, maxEntries int) *ActivityLog {
	return &ActivityLog{path: path, maxEntries: maxEntries}
}

// Record appends one entry.
func (l *ActivityLog) Record(ctx context.Context, entry access.ActivityEntry) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	var f logsFile
	if err := load(l.path, &f); err != nil {
		return err
	}

	f.Logs = append(f.Logs, entry)
	if l.maxEntries > 0 && len(f.Logs) > l.maxEntries {
		f.Logs = f.Logs[len(f.Logs)-l.maxEntries:]
	}
	return store(l.path, f)
}

// Recent returns up to limit entries, newest first.
func (l *ActivityLog) Recent(ctx context.Context, limit int) ([]access.ActivityEntry, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	var f logsFile
	if err := load(l.path, &f); err != nil {
		return nil, err
	}

	n := len(f.Logs)
	if limit <= 0 || limit > n {
		limit = n
	}

	out := make([]access.ActivityEntry, 0, limit)
	for i := n - 1; i >= n-limit; i-- {
		out = append(out, f.Logs[i])
	}
	return out, nil
}

// ══════════════════════════════════════════════════════════════════════════════
// FILE HELPERS
// ══════════════════════════════════════════════════════════════════════════════

// load reads and decodes the whole file. A missing file decodes as the zero
// value so first use needs no setup step.
func load(path string, v any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("jsonfile: read %s: %w", path, err)
	}
	if len(data) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("jsonfile: decode %s: %w", path, err)
	}
	return nil
}

// bareArray reports whether the payload's first significant byte opens a
// JSON array.
func bareArray(data []byte) bool {
	for _, b := range data {
		switch b {
		case ' ', '\t', '\r', '\n':
		default:
			return b == '['
		}
	}
	return false
}

// store rewrites the whole file atomically via a temp file in the same
// directory, so a crash mid-write never leaves a truncated file.
func store(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("jsonfile: encode %s: %w", path, err)
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("jsonfile: create dir %s: %w", dir, err)
	}

	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("jsonfile: temp file for %s: %w", path, err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("jsonfile: write %s: %w", path, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("jsonfile: close %s: %w", path, err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("jsonfile: replace %s: %w", path, err)
	}
	return nil
}
