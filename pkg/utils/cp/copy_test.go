package cp

import (
	"bytes"
	"context"
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"
)

func TestCopy(t *testing.T) {
	src := strings.Repeat("0123456789", 100)
	var dst bytes.Buffer

	var calls int
	var last int64
	n, err := Copy(context.Background(), &dst, strings.NewReader(src),
		WithBuffer(make([]byte, 64)),
		WithProgressTracker(func(_, total int64) {
			calls++
			last = total
		}),
	)
	require.NoError(t, err)

	assert.Equal(t, int64(len(src)), n)
	assert.Equal(t, src, dst.String())
	assert.Equal(t, (len(src)+63)/64, calls)
	assert.Equal(t, int64(len(src)), last)
}

func TestCopy_DefaultBuffer(t *testing.T) {
	var dst bytes.Buffer
	n, err := Copy(context.Background(), &dst, strings.NewReader("abc"))
	require.NoError(t, err)
	assert.Equal(t, int64(3), n)
}

func TestCopy_RateLimiterSmallBurst(t *testing.T) {
	var dst bytes.Buffer
	limiter := rate.NewLimiter(rate.Limit(1<<20), 5)

	n, err := Copy(context.Background(), &dst, strings.NewReader(strings.Repeat("x", 100)),
		WithBuffer(make([]byte, 32)),
		WithRateLimiter(limiter),
	)
	require.NoError(t, err)
	assert.Equal(t, int64(100), n)
}

func TestCopy_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	var dst bytes.Buffer
	_, err := Copy(ctx, &dst, strings.NewReader("abc"))
	assert.ErrorIs(t, err, context.Canceled)
	assert.Zero(t, dst.Len())
}

type failingWriter struct{}

func (failingWriter) Write([]byte) (int, error) {
	return 0, errors.New("disk full")
}

type shortWriter struct{}

func (shortWriter) Write(b []byte) (int, error) {
	return len(b) / 2, nil
}

type failingReader struct{}

func (failingReader) Read([]byte) (int, error) {
	return 0, io.ErrUnexpectedEOF
}

func TestCopy_Errors(t *testing.T) {
	_, err := Copy(context.Background(), failingWriter{}, strings.NewReader("abc"))
	assert.ErrorContains(t, err, "disk full")

	_, err = Copy(context.Background(), shortWriter{}, strings.NewReader("abcd"))
	assert.ErrorIs(t, err, io.ErrShortWrite)

	_, err = Copy(context.Background(), &bytes.Buffer{}, failingReader{})
	assert.ErrorIs(t, err, io.ErrUnexpectedEOF)
}
