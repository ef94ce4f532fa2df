// Package procdir is the filesystem registry of in-flight jobs.
//
// One marker file per running job lives under the proc directory, named by
// job id and holding the JSON call descriptor. A marker that survives its
// process is the signal external tooling uses to spot interrupted jobs.
package procdir

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"syscall"

	"github.com/mattjoyce/warden/internal/job"
)

// Store manages proc markers under a single directory.
type Store struct {
	dir   string
	alive func(pid int) bool
}

// Entry is a marker read back from disk.
type Entry struct {
	job.Descriptor
	Path  string `json:"path"`
	Alive bool   `json:"alive"`
}

// NewStore creates a store rooted at dir. The directory is created lazily on
// first write.
func NewStore(dir string) (*Store, error) {
	trimmed := strings.TrimSpace(dir)
	if trimmed == "" {
		return nil, fmt.Errorf("proc directory is empty")
	}
	return &Store{dir: filepath.Clean(trimmed), alive: pidAlive}, nil
}

// Dir returns the proc directory.
func (s *Store) Dir() string { return s.dir }

// Path returns the marker path for jid.
func (s *Store) Path(jid string) (string, error) {
	if !job.ValidID(jid) {
		return "", fmt.Errorf("invalid job id %q", jid)
	}
	return filepath.Join(s.dir, jid), nil
}

// Write records d as the marker for d.JID.
func (s *Store) Write(d job.Descriptor) (string, error) {
	path, err := s.Path(d.JID)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return path, fmt.Errorf("create proc directory: %w", err)
	}

	data, err := json.Marshal(d)
	if err != nil {
		return path, fmt.Errorf("encode descriptor: %w", err)
	}

	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return path, fmt.Errorf("write proc marker %s: %w", path, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return path, fmt.Errorf("commit proc marker %s: %w", path, err)
	}
	return path, nil
}

// Remove deletes the marker for jid. A marker that is already gone is not an
// error.
func (s *Store) Remove(jid string) error {
	path, err := s.Path(jid)
	if err != nil {
		return err
	}
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("remove proc marker %s: %w", path, err)
	}
	return nil
}

// Read loads the marker for jid.
func (s *Store) Read(jid string) (Entry, error) {
	path, err := s.Path(jid)
	if err != nil {
		return Entry{}, err
	}
	return s.read(path)
}

func (s *Store) read(path string) (Entry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Entry{}, fmt.Errorf("read proc marker: %w", err)
	}
	var d job.Descriptor
	if err := json.Unmarshal(data, &d); err != nil {
		return Entry{}, fmt.Errorf("decode proc marker %s: %w", path, err)
	}
	return Entry{Descriptor: d, Path: path, Alive: s.alive(d.PID)}, nil
}

// List returns every readable marker ordered by job id. Unreadable markers
// are skipped; a missing proc directory yields an empty list.
func (s *Store) List() ([]Entry, error) {
	dirEntries, err := os.ReadDir(s.dir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("read proc directory: %w", err)
	}

	var out []Entry
	for _, de := range dirEntries {
		if de.IsDir() || !job.ValidID(de.Name()) {
			continue
		}
		entry, err := s.read(filepath.Join(s.dir, de.Name()))
		if err != nil {
			continue
		}
		out = append(out, entry)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].JID < out[j].JID })
	return out, nil
}

// Prune removes markers whose owning process is gone and returns them.
func (s *Store) Prune() ([]Entry, error) {
	entries, err := s.List()
	if err != nil {
		return nil, err
	}
	var pruned []Entry
	for _, e := range entries {
		if e.Alive {
			continue
		}
		if err := os.Remove(e.Path); err != nil && !errors.Is(err, os.ErrNotExist) {
			return pruned, fmt.Errorf("prune proc marker %s: %w", e.Path, err)
		}
		pruned = append(pruned, e)
	}
	return pruned, nil
}

func pidAlive(pid int) bool {
	if pid <= 0 {
		return false
	}
	err := syscall.Kill(pid, 0)
	return err == nil || errors.Is(err, syscall.EPERM)
}
