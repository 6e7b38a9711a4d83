package pe

import (
	"fmt"
)

// Warnings returns the non-fatal anomalies found so far, in the order they
// were detected.
func (f *File) Warnings() []string {
	out := make([]string, len(f.warnings))
	copy(out, f.warnings)
	return out
}

func (f *File) warn(msg string) {
	f.warnings = append(f.warnings, msg)
	f.logger.Debug("parse warning", "warning", msg)
}

func (f *File) warnf(format string, args ...interface{}) {
	f.warn(fmt.Sprintf(format, args...))
}
