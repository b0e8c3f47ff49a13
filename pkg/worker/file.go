package worker

import (
	"context"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/detailyang/go-fallocate"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"github.com/charlie0129/bu/pkg/pairing"
	"github.com/charlie0129/bu/pkg/utils/cp"
	"github.com/charlie0129/bu/pkg/utils/size"
	"github.com/charlie0129/bu/pkg/validation"
)

var ErrOutsideSink = errors.New("destination resolves outside the sink root")

// dirPermMask keeps created directories writable by their owner, so a
// read-only source directory does not block copying its children.
const dirPermMask = 0o700

// File is a single file being copied from the source tree to the sink.
type File struct {
	logger zerolog.Logger

	sinkRoot string
	pair     pairing.CopyPair

	// srcFD is the file descriptor of the source file.
	srcFD *os.File
	// dstFD is the file descriptor of the destination file.
	dstFD *os.File
}

func NewFile(logger zerolog.Logger, sinkRoot string, pair pairing.CopyPair) *File {
	logger = logger.With().
		Str("source", pair.Source).
		Str("destination", pair.Destination).
		Int64("size", pair.FileInfo.Size()).
		Str("sizeHuman", size.FormatBytes(pair.FileInfo.Size())).
		Logger()

	return &File{
		logger:   logger,
		sinkRoot: sinkRoot,
		pair:     pair,
	}
}

func (f *File) Close() error {
	var firstErr error

	if f.srcFD != nil {
		if err := f.srcFD.Close(); err != nil {
			firstErr = errors.Wrap(err, "failed to close source fd")
		}
		f.srcFD = nil
	}

	if f.dstFD != nil {
		if err := f.dstFD.Close(); err != nil && firstErr == nil {
			firstErr = errors.Wrap(err, "failed to close destination fd")
		}
		f.dstFD = nil
	}

	return firstErr
}

// Open opens the source for reading and the destination for writing. An
// existing destination is truncated, an existing symlink at the destination
// is replaced. Missing parent directories of the destination are created.
func (f *File) Open() error {
	hasError := true
	defer func() {
		if hasError {
			_ = f.Close()
		}
	}()

	srcFD, err := os.Open(f.pair.Source) // RO
	if err != nil {
		return errors.Wrap(err, "failed to open for reading")
	}
	f.srcFD = srcFD
	f.logger.Trace().Msg("Opened source fd")

	dstFD, err := f.openDestination()
	if err != nil {
		return errors.Wrap(err, "failed to open for writing")
	}
	f.dstFD = dstFD
	f.logger.Trace().Msg("Opened destination fd")

	// An existing destination keeps its old mode through O_TRUNC.
	if err := f.dstFD.Chmod(f.pair.FileInfo.Mode().Perm()); err != nil {
		return errors.Wrap(err, "failed to set destination permissions")
	}

	// Preallocate the file to the expected size, if possible.
	fileSize := f.pair.FileInfo.Size()
	if fileSize > 0 {
		if err := fallocate.Fallocate(f.dstFD, 0, fileSize); err != nil {
			// Not every filesystem supports fallocate. The copy works without it.
			f.logger.Debug().Err(err).Msg("Failed to preallocate disk space for destination file. Continuing anyway.")
		} else {
			f.logger.Trace().Msg("Preallocated disk space")
		}
	}

	hasError = false
	return nil
}

func (f *File) openDestination() (*os.File, error) {
	const flags = os.O_WRONLY | os.O_CREATE | os.O_TRUNC
	perm := f.pair.FileInfo.Mode().Perm()

	removed, err := removeSymlink(f.pair.Destination)
	if err != nil {
		return nil, err
	}
	if removed {
		f.logger.Debug().Msg("Removed symlink at destination")
	}

	parent := filepath.Dir(f.pair.Destination)
	if err := checkWithinSink(f.sinkRoot, parent); err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			return nil, err
		}
		// The parent directory should have been created already, unless
		// its creation failed or raced. Create it ourselves.
		if err := os.MkdirAll(parent, 0o755); err != nil {
			return nil, errors.Wrap(err, "failed to create parent directory")
		}
		if err := checkWithinSink(f.sinkRoot, parent); err != nil {
			return nil, err
		}
		f.logger.Debug().Msg("Created missing parent directory")
	}

	fd, err := os.OpenFile(f.pair.Destination, flags, perm)
	if err == nil || !os.IsPermission(err) {
		return fd, err
	}

	// Most likely a read-only copy left by a previous run.
	if _, statErr := os.Lstat(f.pair.Destination); statErr != nil {
		return nil, err
	}
	if err := os.Remove(f.pair.Destination); err != nil {
		return nil, errors.Wrap(err, "failed to remove read-only destination")
	}
	f.logger.Debug().Msg("Removed read-only destination")

	return os.OpenFile(f.pair.Destination, flags, perm)
}

// Copy copies the whole file. Open must have been called.
//
// rateLimiter can be nil, in which case no rate limiting is applied.
func (f *File) Copy(
	ctx context.Context,
	buffer []byte,
	rateLimiter *rate.Limiter,
	progressListener func(int64, int64),
) (int64, error) {
	n, err := cp.Copy(ctx, f.dstFD, f.srcFD,
		cp.WithBuffer(buffer),
		cp.WithRateLimiter(rateLimiter),
		cp.WithProgressTracker(progressListener),
	)
	if err != nil {
		return n, err
	}

	// The source may have shrunk since it was listed. Drop the
	// preallocated tail.
	if n < f.pair.FileInfo.Size() {
		if err := f.dstFD.Truncate(n); err != nil {
			return n, errors.Wrap(err, "failed to truncate destination")
		}
	}

	return n, nil
}

// createDir creates the destination directory of pair. A symlink in its
// place is replaced by a real directory, so later writes below it stay in
// the sink.
func createDir(sinkRoot string, pair pairing.CopyPair) (replacedSymlink bool, err error) {
	perm := os.FileMode(0o755)
	if pair.FileInfo != nil {
		perm = pair.FileInfo.Mode().Perm() | dirPermMask
	}

	replacedSymlink, err = removeSymlink(pair.Destination)
	if err != nil {
		return false, err
	}

	if err := os.MkdirAll(pair.Destination, perm); err != nil {
		return replacedSymlink, err
	}

	return replacedSymlink, checkWithinSink(sinkRoot, pair.Destination)
}

// removeSymlink removes path if it is a symlink. The link target is not
// touched. A missing path is not an error.
func removeSymlink(path string) (bool, error) {
	info, err := os.Lstat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, errors.Wrap(err, "failed to stat destination")
	}

	if info.Mode()&os.ModeSymlink == 0 {
		return false, nil
	}

	if err := os.Remove(path); err != nil {
		return false, errors.Wrap(err, "failed to remove symlink at destination")
	}

	return true, nil
}

// checkWithinSink fails unless dir, with all symlinks resolved, is inside
// sinkRoot.
func checkWithinSink(sinkRoot, dir string) error {
	resolved, err := filepath.EvalSymlinks(dir)
	if err != nil {
		return err
	}

	if !validation.IsWithin(sinkRoot, resolved) {
		return errors.Wrapf(ErrOutsideSink, "%s resolves to %s", dir, resolved)
	}

	return nil
}
