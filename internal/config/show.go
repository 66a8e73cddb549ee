package config

import (
	"fmt"
	"io"
)

// RenderEffective writes the resolved configuration as a human-readable
// annotated summary to w. This powers the "config show" command.
func RenderEffective(r *Resolved, w io.Writer) error {
	ew := &errWriter{w: w}

	ew.printf("# Effective configuration (file: %s)\n\n", displayPath(r.ConfigPath))

	ew.printf("[api]\n")
	ew.printf("  host        = %q\n", r.APIHost)
	ew.printf("  timeout     = %q\n", r.Timeout.String())
	ew.printf("  user_agent  = %q\n\n", r.UserAgent)

	ew.printf("[storage]\n")
	ew.printf("  backend     = %q\n", r.StorageBackend)
	ew.printf("  path        = %q\n\n", r.StoragePath)

	ew.printf("[upload]\n")
	ew.printf("  max_size    = %d\n\n", r.MaxUploadSize)

	ew.printf("[logging]\n")
	ew.printf("  log_level   = %q\n", r.LogLevel)

	return ew.err
}

func displayPath(p string) string {
	if p == "" {
		return "(none)"
	}

	return p
}

// errWriter wraps an io.Writer and captures the first write error.
// Subsequent writes after an error are no-ops.
type errWriter struct {
	w   io.Writer
	err error
}

func (ew *errWriter) printf(format string, args ...any) {
	if ew.err != nil {
		return
	}

	_, ew.err = fmt.Fprintf(ew.w, format, args...)
}
