package cp

import (
	"context"
	"io"

	"github.com/pkg/errors"
	"golang.org/x/time/rate"
)

var DefaultBufferSize = 256 * 1024 // 256KB

type options struct {
	rateLimiter *rate.Limiter
	onWrite     func(int64, int64)
	buffer      []byte
}

type Option func(o *options)

// WithRateLimiter throttles the copy, one token per byte. A nil limiter
// disables throttling.
func WithRateLimiter(limiter *rate.Limiter) Option {
	return func(o *options) {
		o.rateLimiter = limiter
	}
}

// WithProgressTracker registers a callback that runs after every write with
// the bytes written by that write and the running total. It runs on the
// copying goroutine, so it must not block.
func WithProgressTracker(tracker func(int64, int64)) Option {
	return func(o *options) {
		o.onWrite = tracker
	}
}

// WithBuffer sets the buffer used for reads and writes, and therefore the
// block size. Without it a buffer of DefaultBufferSize is allocated.
func WithBuffer(buffer []byte) Option {
	return func(o *options) {
		o.buffer = buffer
	}
}

// Copy copies src to dst until EOF, like io.Copy, but checks ctx between
// blocks and honors the options.
func Copy(ctx context.Context, dst io.Writer, src io.Reader, opts ...Option) (int64, error) {
	o := &options{}
	for _, opt := range opts {
		opt(o)
	}
	if len(o.buffer) == 0 {
		o.buffer = make([]byte, DefaultBufferSize)
	}

	var total int64
	for {
		if err := ctx.Err(); err != nil {
			return total, err
		}

		n, readErr := src.Read(o.buffer)
		if n > 0 {
			if err := wait(ctx, o.rateLimiter, n); err != nil {
				return total, errors.Wrap(err, "rate limiter wait failed")
			}

			written, writeErr := dst.Write(o.buffer[:n])
			if written < 0 || written > n {
				written = 0
				if writeErr == nil {
					writeErr = errors.New("invalid write result")
				}
			}
			total += int64(written)
			if o.onWrite != nil {
				o.onWrite(int64(written), total)
			}

			if writeErr != nil {
				return total, errors.Wrap(writeErr, "failed to write buffer")
			}
			if written != n {
				return total, io.ErrShortWrite
			}
		}

		if readErr == io.EOF {
			return total, nil
		}
		if readErr != nil {
			return total, errors.Wrap(readErr, "failed to read buffer")
		}
	}
}

// wait takes n tokens from limiter. Requests larger than the burst are split,
// since WaitN rejects them outright.
func wait(ctx context.Context, limiter *rate.Limiter, n int) error {
	if limiter == nil || limiter.Limit() == rate.Inf {
		return nil
	}

	burst := limiter.Burst()
	if burst <= 0 {
		return errors.New("rate limiter has no burst")
	}

	for n > 0 {
		step := min(n, burst)
		if err := limiter.WaitN(ctx, step); err != nil {
			return err
		}
		n -= step
	}

	return nil
}
