package verify

import (
	"context"
	"os"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"golang.org/x/term"
	"golang.org/x/time/rate"

	"github.com/charlie0129/bu/pkg/hasher"
	"github.com/charlie0129/bu/pkg/utils/log"
	"github.com/charlie0129/bu/pkg/utils/progress"
	"github.com/charlie0129/bu/pkg/utils/size"
)

// Hasher config
var hasherConfig = hasher.Config{}

var (
	maxConcurrentFiles = 16
	blockSize          = "256k"
)

var (
	transferRateLimitStr string
	fileRateLimitStr     string
)

func NewCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "verify --sink DEST [--source SOURCE] [flags]",
		Short: "Verify a backup against its source",
		Long: `
Walks SOURCE with the same filters as a backup and checks that every
directory exists in DEST and every file has the same SHA-256 hash.
Files that only exist in DEST are not reported.
`,
		Args:         cobra.NoArgs,
		RunE:         runVerify,
		SilenceUsage: true,

		// Errors are logged by main.
		SilenceErrors: true,
	}

	f := cmd.Flags()

	f.StringVar(&hasherConfig.SourceRoot, "source", "", "Directory that was backed up (default: current working directory)")
	f.StringVar(&hasherConfig.SinkRoot, "sink", "", "Directory the backup was written to")
	f.BoolVar(&hasherConfig.IncludeHidden, "include-hidden", false, "Include entries whose name starts with a dot")
	f.StringArrayVar(&hasherConfig.Excludes, "exclude", nil, "Skip entries whose path relative to the source matches this glob, can be repeated")
	_ = cmd.MarkFlagRequired("sink")

	f.StringVar(&blockSize, "block-size", blockSize, "Internal input and output block size (e.g., 32k, 1m)")
	f.IntVarP(&maxConcurrentFiles, "concurrent-files", "c", maxConcurrentFiles, "Maximum number of files to hashed concurrently, including both source and destination files")

	f.StringVar(&transferRateLimitStr, "transfer-rate-limit", "", "Limit bytes hashed per second (e.g., 1m, 500k), including both source and destination files")
	f.StringVar(&fileRateLimitStr, "file-rate-limit", "", "Limit files hashed per second (e.g., 10, 1k), including both source and destination files")

	return cmd
}

func runVerify(cmd *cobra.Command, _ []string) error {
	var logger zerolog.Logger
	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	conf := hasherConfig
	if conf.SourceRoot == "" {
		wd, err := os.Getwd()
		if err != nil {
			return errors.Wrap(err, "failed to get working directory")
		}
		conf.SourceRoot = wd
	}

	bs, err := size.Parse(blockSize)
	if err != nil {
		return errors.Wrap(err, "invalid block size")
	}
	conf.CopyBufferSize = int(bs)
	conf.MaxConcurrentFiles = maxConcurrentFiles
	if err := conf.Validate(); err != nil {
		return err
	}

	transferRateLimit, err := size.Parse(transferRateLimitStr)
	if err != nil {
		return errors.Wrap(err, "invalid transfer rate limit")
	}
	fileRateLimit, err := size.Parse(fileRateLimitStr)
	if err != nil {
		return errors.Wrap(err, "invalid file rate limit")
	}

	var progressBar *progress.Progress
	progressDone := make(chan struct{})
	if term.IsTerminal(int(os.Stderr.Fd())) {
		progressBar = progress.New(os.Stderr, 100*time.Millisecond)
		defer func() {
			cancel()
			<-progressDone
		}()
		go func() {
			defer close(progressDone)
			progressBar.Start(ctx)
		}()
	}

	if progressBar == nil {
		logger = log.GetLogger(os.Stderr, false)
	} else {
		logger = log.GetLogger(progressBar, true)
	}

	var transferRateLimiter *rate.Limiter
	var fileRateLimiter *rate.Limiter
	if transferRateLimit > 0 {
		// Each file is processed by a goroutine, and each goroutine copies one block at a time.
		// So we multiply them to get the burst to ensure they can get to transfer.
		transferRateLimiter = rate.NewLimiter(rate.Limit(transferRateLimit), conf.CopyBufferSize*maxConcurrentFiles)
	}
	if fileRateLimit > 0 {
		fileRateLimiter = rate.NewLimiter(rate.Limit(fileRateLimit), 1*maxConcurrentFiles)
	}

	err = hasher.Verify(ctx, conf, logger, progressBar, transferRateLimiter, fileRateLimiter)
	if err != nil {
		return err
	}

	logger.Info().Str("source", conf.SourceRoot).Str("sink", conf.SinkRoot).Msg("Sink matches source")
	return nil
}
