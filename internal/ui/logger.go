// Package ui provides terminal UI components and styling for lotusrag.
package ui

import (
	"io"
	"os"

	"github.com/charmbracelet/log"
)

// InitLogger initializes the charm logger with default settings.
func InitLogger() {
	log.SetOutput(os.Stderr)
	log.SetLevel(log.InfoLevel)
	log.SetReportCaller(false)
	log.SetReportTimestamp(false)
}

// SetDebug enables debug logging.
func SetDebug(enabled bool) {
	if enabled {
		log.SetLevel(log.DebugLevel)
	} else {
		log.SetLevel(log.InfoLevel)
	}
}

// SetOutput redirects log output. Servers that speak on stdout keep logs
// on stderr.
func SetOutput(w io.Writer) {
	log.SetOutput(w)
}
