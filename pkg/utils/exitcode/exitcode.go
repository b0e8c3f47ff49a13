package exitcode

import (
	"syscall"

	"github.com/pkg/errors"
)

const (
	Success = 0
	Failure = 1
)

// FromError maps an error returned by a command to a process exit code.
// When the error chain carries an OS error number that fits in a shell
// exit status, that number is used, so scripts can tell e.g. EACCES (13)
// from ENOENT (2). Everything else is Failure.
func FromError(err error) int {
	if err == nil {
		return Success
	}

	var errno syscall.Errno
	if errors.As(err, &errno) && errno > 0 && errno < 126 {
		return int(errno)
	}

	return Failure
}
