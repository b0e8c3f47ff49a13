package pairing

import (
	"context"
	"os"
	"path/filepath"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"

	"github.com/charlie0129/bu/pkg/enumerator"
	"github.com/charlie0129/bu/pkg/validation"
)

var ErrEscapesSink = errors.New("destination escapes sink root")

// CopyPair maps one entry to where it goes in the sink.
type CopyPair struct {
	// Source is the absolute path of the entry under the source root.
	Source string
	// Destination is the absolute path under the sink root.
	Destination string

	Kind     enumerator.Kind
	FileInfo os.FileInfo
}

// Pairer derives destination paths from entries. Both roots are
// canonicalized once when it is created.
type Pairer struct {
	sourceRoot string
	sinkRoot   string
	logger     zerolog.Logger
}

// New canonicalizes sourceRoot and sinkRoot. Both must exist.
func New(sourceRoot, sinkRoot string, logger zerolog.Logger) (*Pairer, error) {
	src, err := validation.Canonicalize(sourceRoot)
	if err != nil {
		return nil, errors.Wrap(err, "failed to canonicalize source root")
	}
	dst, err := validation.Canonicalize(sinkRoot)
	if err != nil {
		return nil, errors.Wrap(err, "failed to canonicalize sink root")
	}

	return &Pairer{
		sourceRoot: src,
		sinkRoot:   dst,
		logger:     logger.With().Str("component", "pairing").Logger(),
	}, nil
}

func (p *Pairer) SourceRoot() string {
	return p.sourceRoot
}

func (p *Pairer) SinkRoot() string {
	return p.sinkRoot
}

// Pair computes the destination of an entry.
//
// Example:
//
//	source root: /a
//	entry:       /a/b/c
//	sink root:   /d
//	destination: /d/b/c
func (p *Pairer) Pair(entry enumerator.Entry) (CopyPair, error) {
	rel, err := filepath.Rel(p.sourceRoot, entry.Path)
	if err != nil {
		return CopyPair{}, errors.Wrapf(err, "failed to get relative path of %s", entry.Path)
	}

	// "." is the root itself, which is never paired.
	if rel == "." || !filepath.IsLocal(rel) {
		return CopyPair{}, errors.Wrapf(ErrEscapesSink, "entry %s is not below %s", entry.Path, p.sourceRoot)
	}

	return CopyPair{
		Source:      entry.Path,
		Destination: filepath.Join(p.sinkRoot, rel),
		Kind:        entry.Kind,
		FileInfo:    entry.FileInfo,
	}, nil
}

// Stream pairs every entry received from entries and sends the result to
// pairs, keeping the order. It returns when entries is closed. It does not
// close pairs.
func (p *Pairer) Stream(ctx context.Context, entries <-chan enumerator.Entry, pairs chan<- CopyPair) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case entry, ok := <-entries:
			if !ok {
				return nil
			}

			pair, err := p.Pair(entry)
			if err != nil {
				return err
			}

			select {
			case <-ctx.Done():
				return ctx.Err()
			case pairs <- pair:
				p.logger.Trace().Str("source", pair.Source).Str("destination", pair.Destination).
					Str("kind", pair.Kind.String()).Msg("Paired")
			}
		}
	}
}
