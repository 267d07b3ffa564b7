// Package xerrors defines the sentinel error classes shared across
// ripqueue's packages. Layers wrap a sentinel with fmt.Errorf("%w: ...")
// at the point of failure so callers can classify with errors.Is while
// still getting a useful message.
package xerrors

import "errors"

var (
	// ErrConfig marks a configuration value that is missing or malformed.
	ErrConfig = errors.New("configuration error")

	// ErrProtocol marks a job envelope that failed intake validation.
	ErrProtocol = errors.New("protocol error")

	// ErrTransient marks a failure expected to clear on retry: a broker
	// disconnect, a busy database, a momentarily unavailable GPU.
	ErrTransient = errors.New("transient error")

	// ErrEncoder marks a failed encoder attempt, and the terminal failure
	// of a work item once every configured encoder has been tried.
	ErrEncoder = errors.New("encoder error")

	// ErrFilesystem marks a failure reading, writing or probing the
	// filesystem that is not expected to clear on retry.
	ErrFilesystem = errors.New("filesystem error")

	// ErrNotFound marks a lookup (queue row, job, stream) that found
	// nothing matching.
	ErrNotFound = errors.New("not found")
)
