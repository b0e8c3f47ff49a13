package progress

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestWrite_TerminatesLines(t *testing.T) {
	var out bytes.Buffer
	p := New(&out, time.Hour)

	n, err := p.Write([]byte("no newline"))
	assert.NoError(t, err)
	assert.Equal(t, len("no newline"), n)
	assert.Equal(t, "\033[2K\rno newline\n", out.String())
}

func TestStart_PrintsFinalSummary(t *testing.T) {
	var out bytes.Buffer
	p := New(&out, time.Hour)
	p.SetStatsGetter(func() Stats {
		return Stats{DirsProcessed: 2, FilesProcessed: 3, BytesProcessed: 2048, Failed: 1}
	})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	p.Start(ctx)

	assert.Contains(t, out.String(), "Summary:")
	assert.Contains(t, out.String(), "Bytes processed: 2.0KiB")
	assert.Contains(t, out.String(), "Dirs processed:  2")
	assert.Contains(t, out.String(), "Files processed: 3")
	assert.Contains(t, out.String(), "Failed:          1")
}

func TestStart_NoSummaryWithoutWork(t *testing.T) {
	var out bytes.Buffer
	p := New(&out, time.Hour)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	p.Start(ctx)

	assert.NotContains(t, out.String(), "Summary:")
}
