package enumerator

import (
	"context"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"

	"github.com/charlie0129/bu/pkg/failure"
	"github.com/charlie0129/bu/pkg/utils/size"
	"github.com/charlie0129/bu/pkg/validation"
)

// Enumerator walks the source root and sends every entry that survives the
// filters to the provided channel, parents before their children.
//
// The root itself is never sent. Nodes that cannot be read are logged and
// skipped, they never abort the walk.
type Enumerator struct {
	conf   Config
	logger zerolog.Logger
}

func New(config Config, logger zerolog.Logger) *Enumerator {
	if err := config.Validate(); err != nil {
		panic(err)
	}

	return &Enumerator{
		conf:   config,
		logger: logger.With().Str("component", "enumerator").Logger(),
	}
}

// Start performs a fresh walk. It returns an error only when the source root
// itself is unusable or ctx is done. It does not close entries.
func (e *Enumerator) Start(ctx context.Context, entries chan<- Entry) error {
	root, err := validation.Canonicalize(e.conf.SourceRoot)
	if err != nil {
		return failure.FromStat(e.conf.SourceRoot, err)
	}

	stat, err := os.Stat(root)
	if err != nil {
		return failure.FromStat(root, err)
	}
	if !stat.IsDir() {
		return errors.Wrapf(validation.ErrSourceNotADirectory, "source %s", root)
	}

	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if path == root {
				return failure.FromStat(root, err)
			}
			e.logger.Warn().Str("path", path).Err(err).Msg("Skipping unreadable entry")
			return nil
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		if path == root {
			return nil
		}

		if e.isFiltered(root, path, d.Name()) {
			e.logger.Trace().Str("path", path).Msg("Filtered out")
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}

		entry, ok := e.classify(path, d)
		if !ok {
			return nil
		}

		return e.send(ctx, entries, entry)
	})
}

func (e *Enumerator) isFiltered(root, path, name string) bool {
	if !e.conf.IncludeHidden && strings.HasPrefix(name, ".") {
		return true
	}

	if len(e.conf.Excludes) == 0 {
		return false
	}

	rel, err := filepath.Rel(root, path)
	if err != nil {
		return false
	}
	rel = filepath.ToSlash(rel)

	for _, pattern := range e.conf.Excludes {
		// Patterns are validated in Config.Validate, so the error is always nil.
		if matched, _ := doublestar.Match(pattern, rel); matched {
			return true
		}
	}

	return false
}

// classify turns a walked node into an entry. Symlinks are resolved so a link
// to a file is copied as a file and a link to a directory becomes a directory
// that is not descended into.
func (e *Enumerator) classify(path string, d fs.DirEntry) (Entry, bool) {
	var (
		info os.FileInfo
		err  error
	)

	if d.Type()&fs.ModeSymlink != 0 {
		info, err = os.Stat(path)
	} else {
		info, err = d.Info()
	}
	if err != nil {
		e.logger.Warn().Str("path", path).Err(err).Msg("Skipping unreadable entry")
		return Entry{}, false
	}

	switch {
	case info.IsDir():
		return Entry{Path: path, Kind: KindDir, FileInfo: info}, true
	case info.Mode().IsRegular():
		return Entry{Path: path, Kind: KindFile, FileInfo: info}, true
	default:
		e.logger.Warn().Str("path", path).Str("type", info.Mode().String()).Msg("Ignoring unsupported file type")
		return Entry{}, false
	}
}

func (e *Enumerator) send(ctx context.Context, entries chan<- Entry, entry Entry) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case entries <- entry:
		if entry.Kind == KindDir {
			e.logger.Trace().Str("path", entry.Path).Msg("Discovered directory")
		} else {
			e.logger.Trace().Str("path", entry.Path).
				Int64("size", entry.FileInfo.Size()).Str("sizeHuman", size.FormatBytes(entry.FileInfo.Size())).
				Msg("Discovered regular file")
		}
		return nil
	}
}
