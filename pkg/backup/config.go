package backup

import (
	"github.com/pkg/errors"

	"github.com/charlie0129/bu/pkg/enumerator"
	"github.com/charlie0129/bu/pkg/utils/size"
	"github.com/charlie0129/bu/pkg/validation"
	"github.com/charlie0129/bu/pkg/worker"
)

// Config describes one backup run. It is not modified by Run.
type Config struct {
	// SourceRoot is the directory being backed up. Callers resolve defaults
	// such as the working directory before calling Run.
	SourceRoot string
	// SinkRoot is where the tree is mirrored to. It is created if missing.
	SinkRoot string

	IncludeHidden bool
	Excludes      []string

	MaxConcurrentFiles int
	BlockSize          int

	// TransferRateLimit is in bytes per second, 0 means unlimited.
	TransferRateLimit int64
	// FileRateLimit is in files per second, 0 means unlimited.
	FileRateLimit int64
}

func (c *Config) Validate() error {
	if c.SourceRoot == "" {
		return errors.New("source root must not be empty")
	}

	if c.SinkRoot == "" {
		return validation.ErrNoSinkProvided
	}

	if c.MaxConcurrentFiles <= 0 {
		return errors.New("max concurrent files must be greater than 0")
	}

	if c.BlockSize <= 0 {
		return errors.New("block size must be greater than 0")
	}

	if c.BlockSize > worker.MaxBlockSize {
		return errors.Errorf("block size must not exceed %s", size.FormatBytes(int64(worker.MaxBlockSize)))
	}

	if c.TransferRateLimit < 0 {
		return errors.New("transfer rate limit must be positive")
	}

	if c.FileRateLimit < 0 {
		return errors.New("file rate limit must be positive")
	}

	return c.enumeratorConfig().Validate()
}

func (c *Config) enumeratorConfig() enumerator.Config {
	return enumerator.Config{
		SourceRoot:    c.SourceRoot,
		IncludeHidden: c.IncludeHidden,
		Excludes:      c.Excludes,
	}
}
