package persist

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
)

var ErrNotFound = errors.New("persist: snapshot not found")

// Store keeps snapshot documents by file name.
type Store interface {
	Put(name string, data []byte) error
	Get(name string) ([]byte, error)
	Delete(name string) error
	// List returns the stored names in lexical order.
	List() ([]string, error)
	Close() error
}

const ext = ".json"

// FileName maps a game name to the name its snapshot is stored under. Names
// that need rewriting get a hash suffix so two games never share a file.
func FileName(game string) string {
	clean := sanitize(game)
	if clean == game {
		return clean + ext
	}
	sum := sha256.Sum256([]byte(game))
	return clean + "-" + hex.EncodeToString(sum[:4]) + ext
}

func sanitize(name string) string {
	const maxLen = 60
	var (
		b     strings.Builder
		count int
	)
	for _, r := range name {
		if count >= maxLen {
			break
		}
		switch {
		case r == '-' || r == '_',
			r >= '0' && r <= '9',
			r >= 'a' && r <= 'z',
			r >= 'A' && r <= 'Z':
			b.WriteRune(r)
			count++
		case r == ' ' || r == '.':
			b.WriteRune('-')
			count++
		}
	}
	out := strings.Trim(b.String(), "-_")
	if out == "" {
		return "game"
	}
	return out
}

func checkName(name string) error {
	if name == "" || filepath.Base(name) != name || !strings.HasSuffix(name, ext) {
		return fmt.Errorf("persist: invalid snapshot name %q", name)
	}
	return nil
}

// DirStore keeps one JSON file per game in a directory.
type DirStore struct {
	dir string
	mu  sync.RWMutex
}

func OpenDir(dir string) (*DirStore, error) {
	if dir == "" {
		return nil, errors.New("persist: empty snapshot directory")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	return &DirStore{dir: dir}, nil
}

// Put replaces the file atomically through a temporary file.
func (s *DirStore) Put(name string, data []byte) error {
	if err := checkName(name); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	dst := filepath.Join(s.dir, name)
	tmp := dst + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		_ = os.Remove(tmp)
		return err
	}
	if err := os.Rename(tmp, dst); err != nil {
		_ = os.Remove(tmp)
		return err
	}
	return nil
}

func (s *DirStore) Get(name string) ([]byte, error) {
	if err := checkName(name); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	data, err := os.ReadFile(filepath.Join(s.dir, name))
	if errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, name)
	}
	return data, err
}

func (s *DirStore) Delete(name string) error {
	if err := checkName(name); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	err := os.Remove(filepath.Join(s.dir, name))
	if errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("%w: %s", ErrNotFound, name)
	}
	return err
}

func (s *DirStore) List() ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, err
	}
	var out []string
	for _, e := range entries {
		if !e.IsDir() && strings.HasSuffix(e.Name(), ext) {
			out = append(out, e.Name())
		}
	}
	sort.Strings(out)
	return out, nil
}

func (s *DirStore) Close() error { return nil }
