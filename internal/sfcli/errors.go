package sfcli

import (
	"errors"
	"fmt"
)

var (
	// ErrToolNotInstalled is returned when the sf binary cannot be located.
	ErrToolNotInstalled = errors.New("sfcli: sf CLI not installed")

	// ErrToolVersionTooLow is returned when the installed sf CLI is older than required
	// or its version cannot be determined.
	ErrToolVersionTooLow = errors.New("sfcli: sf CLI version too low")

	// ErrInvalidSession is returned when the org credentials are expired or absent.
	ErrInvalidSession = errors.New("sfcli: no valid org session")
)

// ExternalToolError reports a failed sf CLI operation.
type ExternalToolError struct {
	Op  string
	Err error
}

func (e *ExternalToolError) Error() string {
	return fmt.Sprintf("sf %s: %v", e.Op, e.Err)
}

func (e *ExternalToolError) Unwrap() error {
	return e.Err
}
