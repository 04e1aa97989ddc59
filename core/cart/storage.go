package cart

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
)

// FileStorage keeps the cart as a JSON document on disk.
type FileStorage struct {
	Path string
}

func (s FileStorage) Load() ([]Item, error) {
	b, err := os.ReadFile(s.Path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, err
	}

	var items []Item
	if err := json.Unmarshal(b, &items); err != nil {
		return nil, fmt.Errorf("decoding cart file %s: %w", s.Path, err)
	}
	return items, nil
}

// Save replaces the file atomically.
func (s FileStorage) Save(items []Item) error {
	if items == nil {
		items = []Item{}
	}

	b, err := json.MarshalIndent(items, "", "  ")
	if err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(s.Path), 0o700); err != nil {
		return err
	}

	tmp, err := os.CreateTemp(filepath.Dir(s.Path), ".cart-*")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(b); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}

	return os.Rename(tmp.Name(), s.Path)
}

type MemoryStorage struct {
	mu    sync.Mutex
	items []Item
	Err   error
}

func (s *MemoryStorage) Load() ([]Item, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return cloneItems(s.items), s.Err
}

func (s *MemoryStorage) Save(items []Item) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Err != nil {
		return s.Err
	}
	s.items = cloneItems(items)
	return nil
}
