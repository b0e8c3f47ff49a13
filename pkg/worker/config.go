package worker

import (
	"fmt"
	"path/filepath"

	"github.com/charlie0129/bu/pkg/utils/size"
)

// MaxBlockSize bounds the copy buffer each goroutine allocates.
var MaxBlockSize = int(size.MustParse("64m"))

type Config struct {
	// SinkRoot is the canonical sink directory. Nothing is written outside it.
	SinkRoot string
	// MaxConcurrentFiles is the number of files copied at the same time.
	MaxConcurrentFiles int
	// BlockSize is the size of the buffer each copying goroutine uses.
	BlockSize int
}

func (c *Config) Validate() error {
	if c.SinkRoot == "" || !filepath.IsAbs(c.SinkRoot) {
		return fmt.Errorf("SinkRoot must be an absolute path")
	}
	if c.MaxConcurrentFiles <= 0 {
		return fmt.Errorf("MaxConcurrentFiles must be greater than 0")
	}
	if c.BlockSize <= 0 {
		return fmt.Errorf("BlockSize must be greater than 0")
	}
	if c.BlockSize > MaxBlockSize {
		return fmt.Errorf("BlockSize must not exceed %s", size.FormatBytes(int64(MaxBlockSize)))
	}
	return nil
}
