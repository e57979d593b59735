// Package docstore provides read-only access to the zone document store: a
// flat directory of zone documents, local or remote, with a stable
// enumeration order.
package docstore

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// Store is the document store boundary. The engine only needs to enumerate
// document names and read their contents; names are returned sorted so that
// runs are deterministic.
type Store interface {
	// List returns the names of all zone documents, sorted.
	List(ctx context.Context) ([]string, error)

	// Read returns the contents of a single document by name.
	Read(ctx context.Context, name string) ([]byte, error)
}

// documentExtensions are the file extensions recognized as zone documents.
var documentExtensions = map[string]bool{
	".yml":  true,
	".yaml": true,
	".toml": true,
}

// IsDocument reports whether a file name looks like a zone document.
func IsDocument(name string) bool {
	return documentExtensions[strings.ToLower(filepath.Ext(name))]
}

// Local is a Store backed by a local directory. Subdirectories are ignored.
type Local struct {
	dir string
}

// NewLocal creates a local document store rooted at dir.
func NewLocal(dir string) (*Local, error) {
	info, err := os.Stat(dir)
	if err != nil {
		return nil, fmt.Errorf("document store: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("document store: %s is not a directory", dir)
	}
	return &Local{dir: dir}, nil
}

// List implements Store.
func (s *Local) List(ctx context.Context) ([]string, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, fmt.Errorf("listing documents: %w", err)
	}

	var names []string
	for _, entry := range entries {
		if entry.IsDir() || !IsDocument(entry.Name()) {
			continue
		}
		names = append(names, entry.Name())
	}
	sort.Strings(names)
	return names, nil
}

// Read implements Store.
func (s *Local) Read(ctx context.Context, name string) ([]byte, error) {
	data, err := os.ReadFile(filepath.Join(s.dir, filepath.Base(name)))
	if err != nil {
		return nil, fmt.Errorf("reading document %s: %w", name, err)
	}
	return data, nil
}
