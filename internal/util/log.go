// Package util provides logging and traffic statistics shared by every
// package of the module.
package util

import (
	"fmt"
	"io"
	"strings"

	"github.com/pterm/pterm"
)

func init() {
	pterm.DefaultLogger.ShowTime = true
	pterm.DefaultLogger.TimeFormat = "02 Jan 15:04:05"
	pterm.DefaultLogger.MaxWidth = 1000
}

// Leveled logging functions backed by the pterm default logger.
// Output goes to stderr unless SetLogOutput redirects it.

func LogDebug(format string, args ...interface{}) {
	pterm.DefaultLogger.Debug(fmt.Sprintf(format, args...))
}

func LogInfo(format string, args ...interface{}) {
	pterm.DefaultLogger.Info(fmt.Sprintf(format, args...))
}

func LogSuccess(format string, args ...interface{}) {
	pterm.DefaultLogger.Info(fmt.Sprintf(format, args...))
}

func LogWarning(format string, args ...interface{}) {
	pterm.DefaultLogger.Warn(fmt.Sprintf(format, args...))
}

func LogError(format string, args ...interface{}) {
	pterm.DefaultLogger.Error(fmt.Sprintf(format, args...))
}

// EnableDebug configures the logger to show debug messages.
func EnableDebug() {
	pterm.DefaultLogger.Level = pterm.LogLevelDebug
}

// SetLogLevel applies a level by name (trace, debug, info, warn, error).
// Unknown names leave the level unchanged and return an error.
func SetLogLevel(name string) error {
	levels := map[string]pterm.LogLevel{
		"trace": pterm.LogLevelTrace,
		"debug": pterm.LogLevelDebug,
		"info":  pterm.LogLevelInfo,
		"warn":  pterm.LogLevelWarn,
		"error": pterm.LogLevelError,
	}
	level, ok := levels[strings.ToLower(strings.TrimSpace(name))]
	if !ok {
		return fmt.Errorf("unknown log level %q", name)
	}
	pterm.DefaultLogger.Level = level
	return nil
}

// SetLogOutput redirects log lines, e.g. to keep them off an interactive prompt.
func SetLogOutput(w io.Writer) {
	pterm.DefaultLogger.Writer = w
}
