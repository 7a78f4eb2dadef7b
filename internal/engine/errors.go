package engine

import (
	"errors"
	"fmt"
)

var (
	// ErrAlreadyRunning is returned by Start while a session is running or starting.
	ErrAlreadyRunning = errors.New("engine: already running")

	// ErrNotRunning is returned by Stop before any session was started.
	ErrNotRunning = errors.New("engine: not running")

	// ErrAlreadyStopped is returned by Stop when the session is already stopped.
	ErrAlreadyStopped = errors.New("engine: already stopped")

	// ErrNotStarted is returned by ShowReport before any session was started.
	ErrNotStarted = errors.New("engine: not started")

	// ErrBusy is returned by Stop while another Stop is in flight.
	ErrBusy = errors.New("engine: stop in progress")

	// ErrClosed is returned after Close.
	ErrClosed = errors.New("engine: closed")
)

// FileSystemError reports a failed log directory operation.
type FileSystemError struct {
	Op   string
	Path string
	Err  error
}

func (e *FileSystemError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Op, e.Path, e.Err)
}

func (e *FileSystemError) Unwrap() error {
	return e.Err
}
