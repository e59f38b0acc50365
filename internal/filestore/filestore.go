// Package filestore maps logical file references of uploaded documents to local paths.
//
// A reference is either a scheme URI (private://tenant/7/manual.pdf, public://...) or a
// plain relative path. Scheme URIs live in a directory of the same name under the root.
package filestore

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// ErrNotFound is returned when a reference does not resolve to an existing file.
var ErrNotFound = errors.New("file not found")

var schemes = []string{"private", "public"}

// Store resolves references under a root directory.
type Store struct {
	root string
}

// New returns a store rooted at root.
func New(root string) *Store {
	return &Store{root: filepath.Clean(root)}
}

// Root returns the root directory.
func (s *Store) Root() string { return s.root }

// Resolve returns the absolute path for ref. References escaping the root, and files
// that do not exist or are directories, give ErrNotFound.
func (s *Store) Resolve(ref string) (string, error) {
	rel, err := s.relative(ref)
	if err != nil {
		return "", err
	}
	path := filepath.Join(s.root, rel)
	info, err := os.Stat(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return "", fmt.Errorf("%s: %w", ref, ErrNotFound)
		}
		return "", err
	}
	if info.IsDir() {
		return "", fmt.Errorf("%s is a directory: %w", ref, ErrNotFound)
	}
	return path, nil
}

// Refs returns the references that may point at path, most specific first. It returns
// nil for paths outside the root.
func (s *Store) Refs(path string) []string {
	rel, err := filepath.Rel(s.root, filepath.Clean(path))
	if err != nil || rel == "." || strings.HasPrefix(rel, "..") {
		return nil
	}
	rel = filepath.ToSlash(rel)
	refs := make([]string, 0, 2)
	for _, scheme := range schemes {
		if rest, ok := strings.CutPrefix(rel, scheme+"/"); ok {
			refs = append(refs, scheme+"://"+rest)
		}
	}
	return append(refs, rel)
}

func (s *Store) relative(ref string) (string, error) {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return "", fmt.Errorf("empty reference: %w", ErrNotFound)
	}
	rel := ref
	if scheme, rest, ok := strings.Cut(ref, "://"); ok {
		known := false
		for _, sc := range schemes {
			if sc == scheme {
				known = true
				break
			}
		}
		if !known {
			return "", fmt.Errorf("unknown scheme %q in %s: %w", scheme, ref, ErrNotFound)
		}
		rel = scheme + "/" + rest
	}
	if filepath.IsAbs(rel) {
		return "", fmt.Errorf("absolute reference %s: %w", ref, ErrNotFound)
	}
	clean := filepath.Clean(filepath.FromSlash(rel))
	if clean == ".." || strings.HasPrefix(clean, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("reference %s escapes the files root: %w", ref, ErrNotFound)
	}
	return clean, nil
}
