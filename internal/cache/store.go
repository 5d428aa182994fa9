package cache

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Store is the cache's persistence backend. Blobs are opaque to it.
type Store interface {
	Write(identity string, blob []byte) error
	Read(identity string) ([]byte, error)
	Exists(identity string) (bool, error)
	Delete(identity string) error
}

const entryFileName = "index.json"

// FSStore keeps one directory per document identity under a root directory.
type FSStore struct {
	dir string
}

func NewFSStore(dir string) (*FSStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating cache dir: %w", err)
	}
	return &FSStore{dir: dir}, nil
}

// Write publishes atomically: the blob goes to a temporary file first and is
// renamed into place, so a crash mid-write never leaves a loadable but
// inconsistent entry.
func (s *FSStore) Write(identity string, blob []byte) error {
	entryDir := filepath.Join(s.dir, sanitizeIdentity(identity))
	if err := os.MkdirAll(entryDir, 0o755); err != nil {
		return fmt.Errorf("creating cache entry dir: %w", err)
	}
	tmp, err := os.CreateTemp(entryDir, entryFileName+".tmp-*")
	if err != nil {
		return err
	}
	if _, err := tmp.Write(blob); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return err
	}
	return os.Rename(tmp.Name(), filepath.Join(entryDir, entryFileName))
}

func (s *FSStore) Read(identity string) ([]byte, error) {
	return os.ReadFile(filepath.Join(s.dir, sanitizeIdentity(identity), entryFileName))
}

func (s *FSStore) Exists(identity string) (bool, error) {
	_, err := os.Stat(filepath.Join(s.dir, sanitizeIdentity(identity), entryFileName))
	if err == nil {
		return true, nil
	}
	if os.IsNotExist(err) {
		return false, nil
	}
	return false, err
}

// Delete removes the entry directory. Deleting an absent entry is a no-op.
func (s *FSStore) Delete(identity string) error {
	return os.RemoveAll(filepath.Join(s.dir, sanitizeIdentity(identity)))
}

// sanitizeIdentity keeps cache entry directories path-safe.
func sanitizeIdentity(identity string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			return r
		case r == '.' || r == '_' || r == '-':
			return r
		default:
			return '_'
		}
	}, identity)
}
