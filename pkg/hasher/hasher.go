package hasher

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"os"
	"sync/atomic"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/charlie0129/bu/pkg/enumerator"
	"github.com/charlie0129/bu/pkg/pairing"
	"github.com/charlie0129/bu/pkg/utils/cp"
	"github.com/charlie0129/bu/pkg/utils/progress"
)

var ErrMismatch = errors.New("sink does not match source, see logs for details")

// HashOne computes the SHA-256 hash of a single file.
func HashOne(
	ctx context.Context,
	copyBuffer []byte,
	file string,
	rateLimiter *rate.Limiter,
	progressTracker func(int64, int64),
) ([]byte, error) {
	f, err := os.Open(file)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to open file for hashing")
	}
	defer f.Close()

	hash := sha256.New()

	_, err = cp.Copy(ctx, hash, f,
		cp.WithBuffer(copyBuffer),
		cp.WithRateLimiter(rateLimiter),
		cp.WithProgressTracker(progressTracker),
	)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to read file for hashing")
	}

	return hash.Sum(nil), nil
}

// Hasher checks a sink against its source: every directory must exist and
// every file must have the same SHA-256 on both sides.
type Hasher struct {
	logger zerolog.Logger

	conf Config

	// Stats
	filesBeingHashed atomic.Int64
	dirsChecked      atomic.Int64
	filesHashed      atomic.Int64
	bytesHashed      atomic.Int64
	ioCompleted      atomic.Int64
	mismatched       atomic.Int64
}

func New(config Config, logger zerolog.Logger) *Hasher {
	return &Hasher{
		conf:   config,
		logger: logger.With().Str("component", "hasher").Logger(),
	}
}

// Start checks every pair from the provided channel.
//
// It returns ErrMismatch if any pair failed the check. All pairs are checked
// regardless.
//
// fileRateLimiter is shared between src and dst hashers, so you need to
// double the limit if you want to limit the rate of both source and destination.
func (h *Hasher) Start(
	ctx context.Context,
	pairs <-chan pairing.CopyPair,
	transferRateLimiter *rate.Limiter,
	fileRateLimiter *rate.Limiter,
) error {
	eg, ctx := errgroup.WithContext(ctx)

	for range h.conf.MaxConcurrentFiles {
		eg.Go(func() error {
			h.hashSourceAndDestination(ctx, pairs, transferRateLimiter, fileRateLimiter)
			return nil // Never return error here, as we want to process all files.
		})
	}

	err := eg.Wait()
	if err != nil {
		return errors.Wrap(err, "failed to hash files")
	}

	if n := h.mismatched.Load(); n > 0 {
		return errors.Wrapf(ErrMismatch, "%d entries", n)
	}

	return nil
}

func (h *Hasher) Stats() progress.Stats {
	return progress.Stats{
		FilesBeingProcessed: h.filesBeingHashed.Load(),
		DirsProcessed:       h.dirsChecked.Load(),
		FilesProcessed:      h.filesHashed.Load(),
		BytesProcessed:      h.bytesHashed.Load(),
		IOCompleted:         h.ioCompleted.Load(),
		Failed:              h.mismatched.Load(),
	}
}

func (h *Hasher) hashSourceAndDestination(
	ctx context.Context,
	pairs <-chan pairing.CopyPair,
	transferRateLimiter *rate.Limiter,
	fileRateLimiter *rate.Limiter,
) {
	// Spawn two goroutines to hash the source and destination files.
	srcBuffer := make([]byte, h.conf.CopyBufferSize)
	srcFiles := make(chan string, 1)
	defer close(srcFiles)
	srcShaSums := make(chan []byte, 1)
	go h.hashFiles(ctx, srcFiles, srcShaSums, srcBuffer, transferRateLimiter)

	dstBuffer := make([]byte, h.conf.CopyBufferSize)
	dstFiles := make(chan string, 1)
	defer close(dstFiles)
	dstShaSums := make(chan []byte, 1)
	go h.hashFiles(ctx, dstFiles, dstShaSums, dstBuffer, transferRateLimiter)

	for pair := range pairs {
		if fileRateLimiter != nil {
			err := fileRateLimiter.Wait(ctx)
			if err != nil {
				h.mismatched.Add(1)
				h.logger.Error().Err(err).Msg("Failed to wait for file rate limiter")
				continue
			}
		}

		if pair.Kind == enumerator.KindDir {
			if !h.checkDir(pair) {
				h.mismatched.Add(1)
			}
			continue
		}

		srcFiles <- pair.Source
		dstFiles <- pair.Destination

		// Wait for both hashes to be computed.
		srcHash := <-srcShaSums
		dstHash := <-dstShaSums

		if srcHash == nil || dstHash == nil {
			// Errors are printed in hashFiles function.
			h.mismatched.Add(1)
			continue
		}

		logger := h.logger.With().Str("source", pair.Source).Str("destination", pair.Destination).
			Str("sourceHash", hex.EncodeToString(srcHash)).Str("destinationHash", hex.EncodeToString(dstHash)).
			Logger()

		if !bytes.Equal(srcHash, dstHash) {
			h.mismatched.Add(1)
			logger.Warn().Msg("Source and destination hashes do not match")
			continue
		}

		logger.Debug().Msg("Source and destination hashes match")
	}
}

func (h *Hasher) checkDir(pair pairing.CopyPair) bool {
	stat, err := os.Stat(pair.Destination)
	if err != nil {
		h.logger.Warn().Err(err).Str("source", pair.Source).Str("destination", pair.Destination).
			Msg("Destination directory is missing")
		return false
	}
	if !stat.IsDir() {
		h.logger.Warn().Str("source", pair.Source).Str("destination", pair.Destination).
			Msg("Destination is not a directory")
		return false
	}

	h.dirsChecked.Add(1)
	return true
}

func (h *Hasher) hashFiles(
	ctx context.Context,
	files <-chan string,
	shaSum chan<- []byte,
	copyBuffer []byte,
	transferRateLimiter *rate.Limiter,
) {
	for file := range files {
		hash, err := h.hashFile(ctx, file, copyBuffer, transferRateLimiter)
		if err != nil {
			h.logger.Error().Err(err).Str("file", file).Msg("Failed to hash file")
			shaSum <- nil
			continue
		}

		h.logger.Trace().Str("file", file).Str("hash", hex.EncodeToString(hash)).Msg("Hashed file")
		shaSum <- hash
	}
}

func (h *Hasher) updateBytesHashed(bytes, _ int64) {
	// Update the total bytes hashed.
	h.bytesHashed.Add(bytes)
	// Update the total IO completed.
	h.ioCompleted.Add(1)
}

func (h *Hasher) hashFile(
	ctx context.Context,
	file string,
	copyBuffer []byte,
	rateLimiter *rate.Limiter,
) ([]byte, error) {
	h.filesBeingHashed.Add(1)
	defer h.filesBeingHashed.Add(-1)

	hash, err := HashOne(ctx, copyBuffer, file, rateLimiter, h.updateBytesHashed)
	if err != nil {
		return nil, err
	}

	h.filesHashed.Add(1)

	return hash, nil
}
