package main

import (
	"os"
	"runtime/pprof"

	"github.com/pkg/errors"
	"golang.org/x/term"

	"github.com/charlie0129/bu/pkg/cmd/root"
	"github.com/charlie0129/bu/pkg/cmd/verify"
	"github.com/charlie0129/bu/pkg/failure"
	"github.com/charlie0129/bu/pkg/utils/exitcode"
	"github.com/charlie0129/bu/pkg/utils/log"
)

func main() {
	os.Exit(run())
}

func run() int {
	logger := log.GetLogger(os.Stderr, term.IsTerminal(int(os.Stderr.Fd())))

	rootCmd := root.NewCommand()

	rootCmd.AddCommand(verify.NewCommand())

	// Only enable CPU profiling if explicitly requested via environment variable
	if os.Getenv("BU_ENABLE_PROFILING") == "1" {
		f, err := os.Create("cpuprofile")
		if err != nil {
			logger.Error().Err(err).Msg("Failed to create cpuprofile file")
			return exitcode.Failure
		}

		err = pprof.StartCPUProfile(f)
		if err != nil {
			logger.Error().Err(err).Msg("Failed to start cpu profile")
			return exitcode.Failure
		}
		defer f.Close()
		defer pprof.StopCPUProfile()
	}

	err := rootCmd.Execute()
	if err != nil {
		var runErr *failure.RunError
		if errors.As(err, &runErr) {
			// Every failure has been printed already.
			logger.Error().Int64("succeeded", runErr.Succeeded).Int("failed", len(runErr.Failures)).Msg("Backup incomplete")
		} else {
			logger.Error().Err(err).Msg("Error executing bu")
		}
	}

	return exitcode.FromError(err)
}
