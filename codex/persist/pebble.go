package persist

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/cockroachdb/pebble/v2"
)

var snapshotPrefix = []byte("snapshot/")

// PebbleStore keeps snapshots in a Pebble key-value store under
// "snapshot/<file name>".
type PebbleStore struct {
	db *pebble.DB
}

func OpenPebble(dir string) (*PebbleStore, error) {
	if dir == "" {
		return nil, errors.New("persist: empty pebble directory")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	db, err := pebble.Open(filepath.Clean(dir), &pebble.Options{})
	if err != nil {
		return nil, err
	}
	return &PebbleStore{db: db}, nil
}

func key(name string) []byte {
	return append(append([]byte(nil), snapshotPrefix...), name...)
}

func (s *PebbleStore) Put(name string, data []byte) error {
	if err := checkName(name); err != nil {
		return err
	}
	return s.db.Set(key(name), data, pebble.Sync)
}

func (s *PebbleStore) Get(name string) ([]byte, error) {
	if err := checkName(name); err != nil {
		return nil, err
	}
	val, closer, err := s.db.Get(key(name))
	if errors.Is(err, pebble.ErrNotFound) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, name)
	}
	if err != nil {
		return nil, err
	}
	defer func() { _ = closer.Close() }()
	return append([]byte(nil), val...), nil
}

func (s *PebbleStore) Delete(name string) error {
	if _, err := s.Get(name); err != nil {
		return err
	}
	return s.db.Delete(key(name), pebble.Sync)
}

func (s *PebbleStore) List() ([]string, error) {
	upper := append([]byte(nil), snapshotPrefix...)
	upper[len(upper)-1]++
	it, err := s.db.NewIter(&pebble.IterOptions{LowerBound: snapshotPrefix, UpperBound: upper})
	if err != nil {
		return nil, err
	}
	defer func() { _ = it.Close() }()
	var out []string
	for it.First(); it.Valid(); it.Next() {
		out = append(out, string(it.Key()[len(snapshotPrefix):]))
	}
	return out, nil
}

func (s *PebbleStore) Close() error { return s.db.Close() }
