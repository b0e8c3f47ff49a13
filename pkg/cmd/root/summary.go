package root

import (
	"fmt"
	"io"

	"github.com/fatih/color"

	"github.com/charlie0129/bu/pkg/backup"
	"github.com/charlie0129/bu/pkg/utils/size"
)

func printSummary(out io.Writer, result *backup.Result) {
	for _, f := range result.Failures {
		_, _ = fmt.Fprintf(out, "%s %s -> %s: %v\n",
			color.New(color.FgRed).Sprint("✗"),
			f.Source,
			f.Destination,
			f.Err,
		)
	}

	failed := color.New(color.FgGreen).Sprintf("%d failed", len(result.Failures))
	if len(result.Failures) > 0 {
		failed = color.New(color.FgRed, color.Bold).Sprintf("%d failed", len(result.Failures))
	}

	_, _ = fmt.Fprintf(out, "%s %d succeeded (%d dirs, %d files, %s), %s\n",
		color.New(color.Bold, color.FgCyan).Sprint("bu"),
		result.Succeeded(),
		result.DirsCreated,
		result.FilesCopied,
		size.FormatBytes(result.BytesCopied),
		failed,
	)
}
