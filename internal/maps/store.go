package maps

import (
	"errors"
	"fmt"
	"image"
	"image/png"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

var (
	// ErrNotFound means the named map does not exist in the maps dir.
	ErrNotFound = errors.New("map not found")
	// ErrBadName rejects names that are empty or try to escape the
	// maps directory.
	ErrBadName = errors.New("invalid map name")
)

// Store resolves map names to image files under a single directory.
type Store struct {
	dir string
}

func NewStore(dir string) *Store {
	return &Store{dir: dir}
}

func (s *Store) Dir() string {
	return s.dir
}

// resolve validates the name and returns the full path. Only bare file
// names are accepted; separators and parent references are rejected.
func (s *Store) resolve(name string) (string, error) {
	if name == "" || name != filepath.Base(name) || strings.HasPrefix(name, ".") {
		return "", fmt.Errorf("%w: %q", ErrBadName, name)
	}
	return filepath.Join(s.dir, name), nil
}

// Read returns the raw bytes of the named map.
func (s *Store) Read(name string) ([]byte, error) {
	path, err := s.resolve(name)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, name)
		}
		return nil, fmt.Errorf("reading map %s: %w", name, err)
	}
	return data, nil
}

// Background decodes the named map for use as a render background.
// A missing map is not an error for session start; callers log and
// render without one, matching the operator-facing warning behavior.
func (s *Store) Background(name string) (image.Image, error) {
	data, err := s.Read(name)
	if err != nil {
		return nil, err
	}
	img, err := png.Decode(strings.NewReader(string(data)))
	if err != nil {
		return nil, fmt.Errorf("decoding map %s: %w", name, err)
	}
	return img, nil
}

// List returns the PNG map names available, sorted.
func (s *Store) List() ([]string, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("listing maps: %w", err)
	}
	var names []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		if strings.EqualFold(filepath.Ext(e.Name()), ".png") {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)
	return names, nil
}
