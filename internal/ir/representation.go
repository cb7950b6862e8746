package ir

import (
	"fmt"
	"os"
)

// Representation is one typed, named unit of information about the program
// under translation. The core never inspects a representation's internals;
// it requires only a kind name and a display form.
//
// Representations must be immutable after construction. Tools that want to
// change one clone it, edit the clone, and Replace the ID in their edit.
type Representation interface {
	// Name returns the representation's kind, e.g. "raw_source" or
	// "build_report". Should be snake case: it is used to build diagnostics
	// file and directory names.
	Name() string

	// String returns the displayable form recorded in diagnostics.
	fmt.Stringer
}

// Materializer is implemented by representations that persist as something
// richer than a single text file (e.g. a directory tree).
type Materializer interface {
	// Materialize writes the on-disk form of the representation at path.
	// The path must not already exist.
	Materialize(path string) error
}

// Materialize writes a representation's on-disk form at path. Representations
// implementing Materializer control their own layout; everything else is
// written as its display form in a single file.
func Materialize(r Representation, path string) error {
	if m, ok := r.(Materializer); ok {
		return m.Materialize(path)
	}
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return fmt.Errorf("materialize %s: %w", r.Name(), err)
	}
	_, werr := fmt.Fprintln(f, r)
	cerr := f.Close()
	if werr != nil {
		return fmt.Errorf("materialize %s: %w", r.Name(), werr)
	}
	if cerr != nil {
		return fmt.Errorf("materialize %s: %w", r.Name(), cerr)
	}
	return nil
}

// Text is a representation holding a free-form text payload. Used for small
// derived facts such as the detected project kind or a build report.
type Text struct {
	kind string
	body string
}

// NewText creates a text representation of the given kind.
func NewText(kind, body string) *Text {
	return &Text{kind: kind, body: body}
}

// Name returns the kind this text representation was created with.
func (t *Text) Name() string { return t.kind }

// Body returns the text payload.
func (t *Text) Body() string { return t.body }

func (t *Text) String() string { return t.body }
