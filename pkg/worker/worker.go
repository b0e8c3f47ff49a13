package worker

import (
	"context"
	"sync/atomic"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/charlie0129/bu/pkg/enumerator"
	"github.com/charlie0129/bu/pkg/failure"
	"github.com/charlie0129/bu/pkg/pairing"
	"github.com/charlie0129/bu/pkg/utils/progress"
	"github.com/charlie0129/bu/pkg/utils/size"
)

// Worker executes copy pairs. Directories are created in the order they
// arrive, before any later pair is handed out, so a directory always exists
// before the files beneath it are copied. Files are copied in parallel.
//
// A failing pair never stops the others. Failures are collected and can be
// read with Failures once Start returns.
type Worker struct {
	conf   Config
	logger zerolog.Logger

	failures failure.Collector

	// Stats
	filesBeingCopied atomic.Int64
	dirsCreated      atomic.Int64
	filesCopied      atomic.Int64
	bytesCopied      atomic.Int64
	ioCompleted      atomic.Int64
	failed           atomic.Int64
}

func New(conf Config, logger zerolog.Logger) *Worker {
	return &Worker{
		conf:   conf,
		logger: logger.With().Str("component", "worker").Logger(),
	}
}

func (w *Worker) Stats() progress.Stats {
	return progress.Stats{
		FilesBeingProcessed: w.filesBeingCopied.Load(),
		DirsProcessed:       w.dirsCreated.Load(),
		FilesProcessed:      w.filesCopied.Load(),
		BytesProcessed:      w.bytesCopied.Load(),
		IOCompleted:         w.ioCompleted.Load(),
		Failed:              w.failed.Load(),
	}
}

// Failures returns the pairs that failed so far.
func (w *Worker) Failures() []*failure.Error {
	return w.failures.List()
}

// Start consumes pairs until the channel is closed. It only returns an error
// when ctx is done; per-pair failures are collected instead.
//
// Rate limiters can be nil, in which case no rate limiting is applied.
func (w *Worker) Start(
	ctx context.Context,
	pairs <-chan pairing.CopyPair,
	transferRateLimiter *rate.Limiter,
	fileRateLimiter *rate.Limiter,
) error {
	files := make(chan pairing.CopyPair, w.conf.MaxConcurrentFiles)

	eg, ctx := errgroup.WithContext(ctx)

	// Creates directories inline and hands files over to the copiers.
	eg.Go(func() error {
		defer close(files)
		return w.dispatch(ctx, pairs, files)
	})

	for range w.conf.MaxConcurrentFiles {
		eg.Go(func() error {
			// Local copy buffer, avoid reallocations.
			copyBuffer := make([]byte, w.conf.BlockSize)

			for pair := range files {
				if err := ctx.Err(); err != nil {
					return err
				}

				if fileRateLimiter != nil {
					if err := fileRateLimiter.Wait(ctx); err != nil {
						return errors.Wrap(err, "failed to wait for file rate limiter")
					}
				}

				err := w.copyFile(ctx, pair, copyBuffer, transferRateLimiter)
				if err != nil && ctx.Err() != nil {
					return ctx.Err()
				}
				if err != nil {
					w.fail(failure.CopyFailed, pair, err)
				}
			}

			return nil
		})
	}

	return eg.Wait()
}

func (w *Worker) dispatch(
	ctx context.Context,
	pairs <-chan pairing.CopyPair,
	files chan<- pairing.CopyPair,
) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case pair, ok := <-pairs:
			if !ok {
				return nil
			}

			if pair.Kind == enumerator.KindDir {
				w.createDir(pair)
				continue
			}

			select {
			case <-ctx.Done():
				return ctx.Err()
			case files <- pair:
			}
		}
	}
}

func (w *Worker) createDir(pair pairing.CopyPair) {
	replacedSymlink, err := createDir(w.conf.SinkRoot, pair)
	if replacedSymlink {
		w.logger.Warn().Str("path", pair.Destination).Msg("Replaced symlink in sink with a directory")
	}
	if err != nil {
		w.fail(failure.DestinationCreateFailed, pair, errors.Wrap(err, "failed to create directory"))
		return
	}

	w.dirsCreated.Add(1)
	w.logger.Debug().Str("path", pair.Destination).Msg("Created directory")
}

func (w *Worker) fail(kind failure.Kind, pair pairing.CopyPair, err error) {
	w.failed.Add(1)
	w.failures.Add(failure.New(kind, pair.Source, pair.Destination, err))
	w.logger.Error().Err(err).
		Str("source", pair.Source).
		Str("destination", pair.Destination).
		Str("kind", kind.String()).
		Msg("Failed")
}

func (w *Worker) updateBytesCopied(bytes, _ int64) {
	// Update the total bytes copied.
	w.bytesCopied.Add(bytes)
	// Update the total IO completed.
	w.ioCompleted.Add(1)
}

func (w *Worker) copyFile(
	ctx context.Context,
	pair pairing.CopyPair,
	copyBuffer []byte,
	rateLimiter *rate.Limiter,
) error {
	w.filesBeingCopied.Add(1)
	defer w.filesBeingCopied.Add(-1)

	f := NewFile(w.logger, w.conf.SinkRoot, pair)

	if err := f.Open(); err != nil {
		return err
	}

	n, err := f.Copy(ctx, copyBuffer, rateLimiter, w.updateBytesCopied)
	closeErr := f.Close()
	if err != nil {
		return errors.Wrap(err, "failed to copy file")
	}
	if closeErr != nil {
		return closeErr
	}

	w.filesCopied.Add(1)
	w.logger.Debug().
		Str("source", pair.Source).
		Str("destination", pair.Destination).
		Int64("size", n).
		Str("sizeHuman", size.FormatBytes(n)).
		Msg("Copied file")

	return nil
}
