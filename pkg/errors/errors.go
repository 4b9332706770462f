package errors

import "fmt"

// Common error types.
var (
	// Config errors.
	ErrEmptyConfigPath   = fmt.Errorf("config file path cannot be empty")
	ErrConfigParse       = fmt.Errorf("failed to parse config")
	ErrConfigValidation  = fmt.Errorf("invalid configuration")
	ErrCredentialsFile   = fmt.Errorf("credentials file missing")
	ErrCredentialsParse  = fmt.Errorf("failed to parse credentials file")
	ErrMissingCredential = fmt.Errorf("credential value missing")

	// Transfer errors.
	ErrSizeProbe      = fmt.Errorf("failed to retrieve object size")
	ErrTransferFailed = fmt.Errorf("transfer failed")
	ErrTaskFailed     = fmt.Errorf("task reached failed state")

	// Lifecycle errors.
	ErrPoolJoinTimeout    = fmt.Errorf("connection pool join timed out")
	ErrTrackerJoinTimeout = fmt.Errorf("progress tracker join timed out")
	ErrAlreadyStarted     = fmt.Errorf("already started")
)

// Wrap wraps an error with additional context.
func Wrap(err error, msg string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", msg, err)
}

// Wrapf wraps an error with additional formatted context.
func Wrapf(err error, format string, args ...interface{}) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", fmt.Sprintf(format, args...), err)
}
