package listing

import (
	"errors"
	"fmt"
	"strings"
)

// Kind classifies why a single metadata document could not be processed.
type Kind int

const (
	ParseError Kind = iota + 1
	FieldError
	FilesystemError
)

func (k Kind) String() string {
	switch k {
	case ParseError:
		return "parse"
	case FieldError:
		return "field"
	case FilesystemError:
		return "filesystem"
	default:
		return "unknown"
	}
}

// DocumentError is a recoverable failure scoped to one metadata file.
type DocumentError struct {
	File  string
	Kind  Kind
	Field string
	Err   error
}

func (e *DocumentError) Error() string {
	var b strings.Builder
	if e.File != "" {
		b.WriteString(e.File)
		b.WriteString(": ")
	}
	b.WriteString(e.Kind.String())
	b.WriteString(" error")
	if e.Field != "" {
		fmt.Fprintf(&b, " on field %q", e.Field)
	}
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

func (e *DocumentError) Unwrap() error { return e.Err }

// KindOf returns the Kind of the first DocumentError in err's chain, or 0.
func KindOf(err error) Kind {
	var docErr *DocumentError
	if errors.As(err, &docErr) {
		return docErr.Kind
	}
	return 0
}

func IsParse(err error) bool      { return KindOf(err) == ParseError }
func IsField(err error) bool      { return KindOf(err) == FieldError }
func IsFilesystem(err error) bool { return KindOf(err) == FilesystemError }
