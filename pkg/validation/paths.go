package validation

import (
	"io"
	"os"
	"path/filepath"

	"github.com/pkg/errors"

	"github.com/charlie0129/bu/pkg/failure"
)

var (
	ErrNoSinkProvided      = errors.New("no sink provided")
	ErrSourceNotADirectory = errors.New("source must be a directory")
	ErrSinkNotADirectory   = errors.New("sink exists and is not a directory")
	ErrSinkInsideSource    = errors.New("sink must not be inside the source tree")
)

// ValidateRoots checks the source and sink roots of a backup run:
//   - Source must exist and be a readable directory. A missing source is a
//     failure.SourceNotFound, an unreadable one a failure.PermissionDenied.
//   - Sink may not exist yet. If it exists, it must be a directory.
//   - Sink must not be the source itself or lie anywhere beneath it, since
//     the walk would then pick up its own output.
//
// Both paths are compared after resolving symlinks. A sink that does not
// exist yet is resolved through its closest existing ancestor.
func ValidateRoots(source, sink string) error {
	if sink == "" {
		return ErrNoSinkProvided
	}

	srcStat, err := os.Stat(source)
	if err != nil {
		return failure.FromStat(source, err)
	}
	if !srcStat.IsDir() {
		return errors.Wrapf(ErrSourceNotADirectory, "source %s", source)
	}

	// Opening the directory catches a missing read/execute permission on
	// the root, which os.Stat alone does not.
	d, err := os.Open(source)
	if err != nil {
		return failure.FromStat(source, err)
	}
	_, err = d.Readdirnames(1)
	_ = d.Close()
	if err != nil && err != io.EOF {
		return failure.FromStat(source, err)
	}

	sinkStat, err := os.Stat(sink)
	if err != nil && !os.IsNotExist(err) {
		return errors.Wrapf(err, "failed to stat sink %s", sink)
	}
	if err == nil && !sinkStat.IsDir() {
		return errors.Wrapf(ErrSinkNotADirectory, "sink %s", sink)
	}

	realSource, err := Canonicalize(source)
	if err != nil {
		return err
	}
	realSink, err := canonicalizeMissing(sink)
	if err != nil {
		return err
	}
	if IsWithin(realSource, realSink) {
		return errors.Wrapf(ErrSinkInsideSource, "sink %s, source %s", sink, source)
	}

	return nil
}

// Canonicalize makes path absolute and resolves every symlink in it.
func Canonicalize(path string) (string, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", errors.Wrapf(err, "failed to get absolute path of %s", path)
	}
	resolved, err := filepath.EvalSymlinks(abs)
	if err != nil {
		return "", errors.Wrapf(err, "failed to resolve symlinks in %s", abs)
	}
	return resolved, nil
}

// canonicalizeMissing is like Canonicalize, but tolerates trailing path
// elements that do not exist yet.
func canonicalizeMissing(path string) (string, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", errors.Wrapf(err, "failed to get absolute path of %s", path)
	}

	var missing []string
	cur := abs
	for {
		resolved, err := filepath.EvalSymlinks(cur)
		if err == nil {
			for i := len(missing) - 1; i >= 0; i-- {
				resolved = filepath.Join(resolved, missing[i])
			}
			return resolved, nil
		}
		if !os.IsNotExist(err) {
			return "", errors.Wrapf(err, "failed to resolve symlinks in %s", cur)
		}
		parent := filepath.Dir(cur)
		if parent == cur {
			return abs, nil
		}
		missing = append(missing, filepath.Base(cur))
		cur = parent
	}
}

// IsWithin reports whether path is root or a descendant of root. Both must
// be clean absolute paths.
func IsWithin(root, path string) bool {
	rel, err := filepath.Rel(root, path)
	if err != nil {
		return false
	}
	return rel == "." || filepath.IsLocal(rel)
}
