package backup

import (
	"context"
	"os"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/charlie0129/bu/pkg/enumerator"
	"github.com/charlie0129/bu/pkg/failure"
	"github.com/charlie0129/bu/pkg/pairing"
	"github.com/charlie0129/bu/pkg/utils/progress"
	"github.com/charlie0129/bu/pkg/utils/size"
	"github.com/charlie0129/bu/pkg/validation"
	"github.com/charlie0129/bu/pkg/worker"
)

// Result is the outcome of a run.
type Result struct {
	DirsCreated int64
	FilesCopied int64
	BytesCopied int64

	Failures []*failure.Error
}

// Succeeded is the number of entries backed up, directories and files.
func (r *Result) Succeeded() int64 {
	return r.DirsCreated + r.FilesCopied
}

type options struct {
	setStatsGetter func(func() progress.Stats)
}

type Option func(o *options)

// WithStatsGetter hands the live statistics of the run to set before any
// work starts, e.g. progress.Progress.SetStatsGetter.
func WithStatsGetter(set func(func() progress.Stats)) Option {
	return func(o *options) {
		o.setStatsGetter = set
	}
}

// Run mirrors conf.SourceRoot into conf.SinkRoot.
//
// Problems with the roots are returned before anything is written. After
// that, every entry is attempted even if some fail. If any failed, the
// returned error is a *failure.RunError listing all of them, and the Result
// still reports what was copied. A cancelled ctx stops the run early and is
// returned as is.
func Run(ctx context.Context, conf Config, logger zerolog.Logger, opts ...Option) (*Result, error) {
	o := &options{}
	for _, opt := range opts {
		opt(o)
	}

	if err := conf.Validate(); err != nil {
		return nil, err
	}

	if err := validation.ValidateRoots(conf.SourceRoot, conf.SinkRoot); err != nil {
		return nil, err
	}

	if err := os.MkdirAll(conf.SinkRoot, 0o755); err != nil {
		return nil, failure.New(failure.DestinationCreateFailed, conf.SourceRoot, conf.SinkRoot, err)
	}

	pairer, err := pairing.New(conf.SourceRoot, conf.SinkRoot, logger)
	if err != nil {
		return nil, err
	}

	logger.Info().
		Str("source", pairer.SourceRoot()).
		Str("sink", pairer.SinkRoot()).
		Bool("includeHidden", conf.IncludeHidden).
		Int("concurrentFiles", conf.MaxConcurrentFiles).
		Msg("Starting backup")

	workerConfig := worker.Config{
		SinkRoot:           pairer.SinkRoot(),
		MaxConcurrentFiles: conf.MaxConcurrentFiles,
		BlockSize:          conf.BlockSize,
	}
	if err := workerConfig.Validate(); err != nil {
		return nil, errors.Wrap(err, "invalid worker config")
	}

	e := enumerator.New(conf.enumeratorConfig(), logger)
	w := worker.New(workerConfig, logger)
	if o.setStatsGetter != nil {
		o.setStatsGetter(w.Stats)
	}

	transferRateLimiter, fileRateLimiter := conf.rateLimiters()

	eg, ctx := errgroup.WithContext(ctx)

	entries := make(chan enumerator.Entry, 4096)
	eg.Go(func() error {
		defer close(entries)
		return e.Start(ctx, entries)
	})

	pairs := make(chan pairing.CopyPair, 4096)
	eg.Go(func() error {
		defer close(pairs)
		return pairer.Stream(ctx, entries, pairs)
	})

	eg.Go(func() error {
		return w.Start(ctx, pairs, transferRateLimiter, fileRateLimiter)
	})

	err = eg.Wait()

	stats := w.Stats()
	result := &Result{
		DirsCreated: stats.DirsProcessed,
		FilesCopied: stats.FilesProcessed,
		BytesCopied: stats.BytesProcessed,
		Failures:    w.Failures(),
	}

	if err != nil {
		return result, err
	}

	logger.Info().
		Int64("dirs", result.DirsCreated).
		Int64("files", result.FilesCopied).
		Str("bytes", size.FormatBytes(result.BytesCopied)).
		Int("failed", len(result.Failures)).
		Msg("Backup finished")

	if len(result.Failures) > 0 {
		return result, &failure.RunError{
			Failures:  result.Failures,
			Succeeded: result.Succeeded(),
		}
	}

	return result, nil
}

// rateLimiters returns nil for limits that are not set.
func (c *Config) rateLimiters() (*rate.Limiter, *rate.Limiter) {
	var transferRateLimiter, fileRateLimiter *rate.Limiter
	if c.TransferRateLimit > 0 {
		// Every copying goroutine takes one block at a time, so the burst
		// must fit all of them.
		transferRateLimiter = rate.NewLimiter(rate.Limit(c.TransferRateLimit), c.BlockSize*c.MaxConcurrentFiles)
	}
	if c.FileRateLimit > 0 {
		fileRateLimiter = rate.NewLimiter(rate.Limit(c.FileRateLimit), c.MaxConcurrentFiles)
	}
	return transferRateLimiter, fileRateLimiter
}
