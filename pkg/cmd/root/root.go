package root

import (
	"github.com/spf13/cobra"

	"github.com/charlie0129/bu/pkg/backup"
	"github.com/charlie0129/bu/pkg/utils/log"
)

// Backup config
var backupConfig = backup.Config{}

// Worker config
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
		Use:   "bu --sink DEST [--source SOURCE] [flags]",
		Short: "bu - mirror a directory tree in parallel",
		Long: `
Copies every directory and file below SOURCE into DEST, keeping their
relative paths. SOURCE defaults to the current working directory.

  - Entries whose name starts with "." are skipped together with
    everything below them, unless --include-hidden is set.
  - Existing files in DEST are overwritten. Files in DEST that do not
    exist in SOURCE are left alone.
  - An entry that fails to copy does not stop the run. All failures are
    reported at the end and the exit code is non-zero.
`,
		Args:         cobra.NoArgs,
		RunE:         runBackup,
		SilenceUsage: true,

		// Errors are logged by main, failed entries by the summary.
		SilenceErrors: true,
	}

	f := cmd.Flags()

	f.StringVar(&backupConfig.SourceRoot, "source", "", "Directory to back up (default: current working directory)")
	f.StringVar(&backupConfig.SinkRoot, "sink", "", "Directory to back up into, created if missing")
	f.BoolVar(&backupConfig.IncludeHidden, "include-hidden", false, "Include entries whose name starts with a dot")
	f.StringArrayVar(&backupConfig.Excludes, "exclude", nil, "Skip entries whose path relative to the source matches this glob (e.g., '**/node_modules'), can be repeated")
	_ = cmd.MarkFlagRequired("sink")

	// Worker
	f.IntVarP(&maxConcurrentFiles, "concurrent-files", "c", maxConcurrentFiles, "Maximum number of concurrently copied files")
	f.StringVar(&blockSize, "block-size", blockSize, "Internal input and output block size (e.g., 32k, 1m)")

	f.StringVar(&transferRateLimitStr, "transfer-rate-limit", "", "Limit bytes copied per second (e.g., 1m, 500k)")
	f.StringVar(&fileRateLimitStr, "file-rate-limit", "", "Limit files copied per second (e.g., 10, 1k)")

	pf := cmd.PersistentFlags()
	pf.CountVarP(&log.Verbosity, "verbose", "v", "Enable verbose output (-v for debug, -vv for trace)")
	pf.BoolVarP(&log.Quiet, "quiet", "q", false, "Only print warnings and errors")

	return cmd
}
