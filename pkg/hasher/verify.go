package hasher

import (
	"context"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/charlie0129/bu/pkg/enumerator"
	"github.com/charlie0129/bu/pkg/pairing"
	"github.com/charlie0129/bu/pkg/utils/progress"
)

// Verify walks the source the same way a backup does and checks every pair
// against the sink. Nothing is written. Rate limiters can be nil.
func Verify(
	ctx context.Context,
	conf Config,
	logger zerolog.Logger,
	progressBar *progress.Progress,
	transferRateLimiter *rate.Limiter,
	fileRateLimiter *rate.Limiter,
) error {
	if err := conf.Validate(); err != nil {
		return err
	}

	pairer, err := pairing.New(conf.SourceRoot, conf.SinkRoot, logger)
	if err != nil {
		return errors.Wrap(err, "failed to resolve roots")
	}

	e := enumerator.New(conf.enumeratorConfig(), logger)
	h := New(conf, logger)
	if progressBar != nil {
		progressBar.SetStatsGetter(h.Stats)
	}

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
		return h.Start(ctx, pairs, transferRateLimiter, fileRateLimiter)
	})

	return eg.Wait()
}
