package pe

import (
	"fmt"

	"github.com/pkg/errors"
)

// FormatError reports input that cannot be interpreted as a PE image.
// Warnings holds the diagnostics gathered before the failure.
type FormatError struct {
	Msg      string
	Warnings []string
}

func (e *FormatError) Error() string {
	return e.Msg
}

// IsFormatError reports whether err is, or wraps, a *FormatError.
func IsFormatError(err error) bool {
	var fe *FormatError
	return errors.As(err, &fe)
}

func formatError(msg string) error {
	return &FormatError{Msg: msg}
}

func formatErrorf(format string, args ...interface{}) error {
	return &FormatError{Msg: fmt.Sprintf(format, args...)}
}
