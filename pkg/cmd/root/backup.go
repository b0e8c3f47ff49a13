package root

import (
	"context"
	"os"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/charlie0129/bu/pkg/backup"
	"github.com/charlie0129/bu/pkg/utils/log"
	"github.com/charlie0129/bu/pkg/utils/progress"
	"github.com/charlie0129/bu/pkg/utils/size"
)

func runBackup(cmd *cobra.Command, _ []string) (err error) {
	var logger zerolog.Logger
	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	conf := backupConfig

	// The working directory is looked up once, here, and handed down.
	if conf.SourceRoot == "" {
		wd, err := os.Getwd()
		if err != nil {
			return errors.Wrap(err, "failed to get working directory")
		}
		conf.SourceRoot = wd
	}

	conf.MaxConcurrentFiles = maxConcurrentFiles
	conf.BlockSize, err = parseInt(blockSize)
	if err != nil {
		return errors.Wrap(err, "invalid block size")
	}
	conf.TransferRateLimit, err = size.Parse(transferRateLimitStr)
	if err != nil {
		return errors.Wrap(err, "invalid transfer rate limit")
	}
	conf.FileRateLimit, err = size.Parse(fileRateLimitStr)
	if err != nil {
		return errors.Wrap(err, "invalid file rate limit")
	}

	if err := conf.Validate(); err != nil {
		return err
	}

	var result *backup.Result

	// Registered before the progress bar, so it prints after the bar is gone.
	defer func() {
		if result != nil {
			printSummary(cmd.ErrOrStderr(), result)
		}
	}()

	var progressBar *progress.Progress
	progressDone := make(chan struct{})
	if term.IsTerminal(int(os.Stderr.Fd())) {
		progressBar = progress.New(os.Stderr, 100*time.Millisecond)

		// So we can print out summary.
		defer func() {
			cancel()
			<-progressDone
		}()

		go func() {
			defer close(progressDone)
			progressBar.Start(ctx)
		}()
	}

	var opts []backup.Option
	if progressBar == nil {
		logger = log.GetLogger(os.Stderr, false)
	} else {
		logger = log.GetLogger(progressBar, true)
		opts = append(opts, backup.WithStatsGetter(progressBar.SetStatsGetter))
	}

	result, err = backup.Run(ctx, conf, logger, opts...)
	return err
}

func parseInt(s string) (int, error) {
	n, err := size.Parse(s)
	if err != nil {
		return 0, err
	}
	return int(n), nil
}
