package enumerator

import (
	"github.com/bmatcuk/doublestar/v4"
	"github.com/pkg/errors"
)

type Config struct {
	SourceRoot    string
	IncludeHidden bool
	// Excludes are doublestar patterns matched against the slash separated
	// path relative to SourceRoot, e.g. "**/node_modules" or "*.tmp".
	Excludes []string
}

func (c Config) Validate() error {
	if c.SourceRoot == "" {
		return errors.New("source root must not be empty")
	}
	for _, p := range c.Excludes {
		if !doublestar.ValidatePattern(p) {
			return errors.Errorf("invalid exclude pattern %q", p)
		}
	}
	return nil
}
