// Package sysutil holds small process-level helpers used by the ticketd
// entrypoint: log setup and environment parsing.
package sysutil

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// SetLogLevel sets the global zerolog level. Blank means info and "warning"
// is accepted for warn. An unknown name leaves info in place and is
// reported.
func SetLogLevel(name string) error {
	name = strings.ToLower(strings.TrimSpace(name))
	if name == "warning" {
		name = "warn"
	}
	lvl, err := zerolog.ParseLevel(name)
	if err != nil || lvl == zerolog.NoLevel || lvl == zerolog.Disabled || lvl == zerolog.TraceLevel {
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
		if name == "" {
			return nil
		}
		return fmt.Errorf("unknown log level %q", name)
	}
	zerolog.SetGlobalLevel(lvl)
	return nil
}

// NewLogger builds the process logger: console output for local runs, one
// JSON object per line otherwise.
func NewLogger(w io.Writer, pretty bool, service, version string) zerolog.Logger {
	if pretty {
		w = zerolog.ConsoleWriter{Out: w, TimeFormat: time.RFC3339}
	}
	return zerolog.New(w).With().
		Timestamp().
		Str("service", service).
		Str("version", version).
		Logger()
}

// IsTruthy accepts 1, true, yes, y and on in any case.
func IsTruthy(v string) bool {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "1", "true", "yes", "y", "on":
		return true
	}
	return false
}

// FirstNonEmpty returns the first value that is not blank.
func FirstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
