package ir

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// RawDir is a representation holding a file tree, e.g. the raw input source
// or a candidate output package. Paths are slash-separated and relative;
// contents are opaque bytes.
//
// RawDir is immutable by convention once stored in the IR: tools build a new
// RawDir rather than mutating one read from a snapshot.
type RawDir struct {
	kind  string
	files map[string][]byte
}

// NewRawDir creates an empty file tree representation of the given kind.
func NewRawDir(kind string) *RawDir {
	return &RawDir{kind: kind, files: make(map[string][]byte)}
}

// LoadRawDir reads the directory tree rooted at root into a RawDir of the
// given kind. Symlinks are not followed.
func LoadRawDir(kind, root string) (*RawDir, error) {
	d := NewRawDir(kind)
	err := filepath.WalkDir(root, func(path string, entry fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !entry.Type().IsRegular() {
			return nil
		}
		rel, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}
		content, err := os.ReadFile(path)
		if err != nil {
			return err
		}
		return d.AddFile(filepath.ToSlash(rel), content)
	})
	if err != nil {
		return nil, fmt.Errorf("load %s from %s: %w", kind, root, err)
	}
	return d, nil
}

// AddFile records a file under the given relative path. The path must be
// clean, relative, and must not escape the tree.
func (d *RawDir) AddFile(rel string, content []byte) error {
	if rel == "" || rel != filepath.ToSlash(filepath.Clean(rel)) ||
		strings.HasPrefix(rel, "/") || rel == ".." || strings.HasPrefix(rel, "../") {
		return fmt.Errorf("invalid file path %q", rel)
	}
	if _, ok := d.files[rel]; ok {
		return fmt.Errorf("duplicate file path %q", rel)
	}
	d.files[rel] = append([]byte(nil), content...)
	return nil
}

// File returns the content stored under rel.
func (d *RawDir) File(rel string) ([]byte, bool) {
	content, ok := d.files[rel]
	return content, ok
}

// Paths returns the stored file paths in sorted order.
func (d *RawDir) Paths() []string {
	paths := make([]string, 0, len(d.files))
	for p := range d.files {
		paths = append(paths, p)
	}
	sort.Strings(paths)
	return paths
}

// Len returns the number of files in the tree.
func (d *RawDir) Len() int { return len(d.files) }

// Name returns the kind this tree was created with.
func (d *RawDir) Name() string { return d.kind }

// String lists the files with their sizes, one per line, in path order.
func (d *RawDir) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s (%d files)", d.kind, len(d.files))
	for _, p := range d.Paths() {
		fmt.Fprintf(&b, "\n%s (%d bytes)", p, len(d.files[p]))
	}
	return b.String()
}

// Materialize writes the file tree under path, creating path itself and any
// intermediate directories.
func (d *RawDir) Materialize(path string) error {
	if err := os.Mkdir(path, 0o755); err != nil {
		return fmt.Errorf("materialize %s: %w", d.kind, err)
	}
	for _, rel := range d.Paths() {
		dst := filepath.Join(path, filepath.FromSlash(rel))
		if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
			return fmt.Errorf("materialize %s: %w", d.kind, err)
		}
		if err := os.WriteFile(dst, d.files[rel], 0o644); err != nil {
			return fmt.Errorf("materialize %s: %w", d.kind, err)
		}
	}
	return nil
}
