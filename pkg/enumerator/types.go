package enumerator

import (
	"os"
)

type Kind int

const (
	KindFile Kind = iota
	KindDir
)

func (k Kind) String() string {
	if k == KindDir {
		return "dir"
	}
	return "file"
}

// Entry is a node discovered under the source root.
type Entry struct {
	// Path is the absolute path of the node, rooted at the canonical source
	// root.
	Path string
	Kind Kind
	// FileInfo describes the node. For symlinks it describes the target.
	FileInfo os.FileInfo
}
