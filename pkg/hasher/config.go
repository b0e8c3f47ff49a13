package hasher

import (
	"github.com/pkg/errors"

	"github.com/charlie0129/bu/pkg/enumerator"
	"github.com/charlie0129/bu/pkg/utils/size"
	"github.com/charlie0129/bu/pkg/worker"
)

type Config struct {
	// SourceRoot and SinkRoot are the roots of a previous backup run.
	SourceRoot string
	SinkRoot   string

	// IncludeHidden and Excludes must match the backup run, otherwise
	// entries that were never copied are reported as missing.
	IncludeHidden bool
	Excludes      []string

	MaxConcurrentFiles int
	CopyBufferSize     int
}

func (c Config) Validate() error {
	if c.SinkRoot == "" {
		return errors.New("sink root must not be empty")
	}
	if c.MaxConcurrentFiles <= 0 {
		return errors.New("max concurrent files must be greater than 0")
	}
	if c.CopyBufferSize <= 0 {
		return errors.New("copy buffer size must be greater than 0")
	}
	if c.CopyBufferSize > worker.MaxBlockSize {
		return errors.Errorf("copy buffer size must not exceed %s", size.FormatBytes(int64(worker.MaxBlockSize)))
	}
	return c.enumeratorConfig().Validate()
}

func (c Config) enumeratorConfig() enumerator.Config {
	return enumerator.Config{
		SourceRoot:    c.SourceRoot,
		IncludeHidden: c.IncludeHidden,
		Excludes:      c.Excludes,
	}
}
