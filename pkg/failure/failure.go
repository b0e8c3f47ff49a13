package failure

import (
	"fmt"
	"io/fs"
	"strings"
	"sync"

	"github.com/pkg/errors"
)

type Kind int

const (
	// SourceNotFound means the source root does not exist.
	SourceNotFound Kind = iota + 1
	// PermissionDenied means a root could not be opened or read.
	PermissionDenied
	// DestinationCreateFailed means a directory could not be created in the sink.
	DestinationCreateFailed
	// CopyFailed means a file could not be copied into the sink.
	CopyFailed
)

func (k Kind) String() string {
	switch k {
	case SourceNotFound:
		return "source not found"
	case PermissionDenied:
		return "permission denied"
	case DestinationCreateFailed:
		return "destination create failed"
	case CopyFailed:
		return "copy failed"
	default:
		return "unknown"
	}
}

// Error describes a failure bound to a source/destination pair. Destination
// is empty for root-level failures that happen before pairing.
type Error struct {
	Kind        Kind
	Source      string
	Destination string
	Err         error
}

func (e *Error) Error() string {
	if e.Destination == "" {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Source, e.Err)
	}
	return fmt.Sprintf("%s: %s -> %s: %v", e.Kind, e.Source, e.Destination, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// New returns a pair failure of the given kind.
func New(kind Kind, source, destination string, err error) *Error {
	return &Error{
		Kind:        kind,
		Source:      source,
		Destination: destination,
		Err:         err,
	}
}

// FromStat classifies an error returned while opening or stating a root.
// Errors that are neither "not exist" nor "permission" are returned wrapped
// as-is.
func FromStat(path string, err error) error {
	if err == nil {
		return nil
	}
	switch {
	case errors.Is(err, fs.ErrNotExist):
		return New(SourceNotFound, path, "", err)
	case errors.Is(err, fs.ErrPermission):
		return New(PermissionDenied, path, "", err)
	default:
		return errors.Wrapf(err, "failed to access %s", path)
	}
}

// IsKind reports whether err carries a failure of the given kind.
func IsKind(err error, kind Kind) bool {
	var fe *Error
	if errors.As(err, &fe) {
		return fe.Kind == kind
	}
	return false
}

// Collector is an append-only list of failures, safe for concurrent use.
type Collector struct {
	mu       sync.Mutex
	failures []*Error
}

func (c *Collector) Add(e *Error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.failures = append(c.failures, e)
}

func (c *Collector) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.failures)
}

// List returns a copy of the collected failures in the order they were added.
func (c *Collector) List() []*Error {
	c.mu.Lock()
	defer c.mu.Unlock()
	ret := make([]*Error, len(c.failures))
	copy(ret, c.failures)
	return ret
}

// RunError is returned when a run finished but one or more pairs failed.
type RunError struct {
	Failures  []*Error
	Succeeded int64
}

func (e *RunError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%d succeeded, %d failed", e.Succeeded, len(e.Failures))
	for _, f := range e.Failures {
		b.WriteString("\n  ")
		b.WriteString(f.Error())
	}
	return b.String()
}

// Unwrap exposes the first failure, so errors.As can reach the OS error.
func (e *RunError) Unwrap() error {
	if len(e.Failures) == 0 {
		return nil
	}
	return e.Failures[0]
}
