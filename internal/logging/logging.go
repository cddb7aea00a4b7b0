// Package logging configures the zerolog root logger shared by every
// command and protocol component.
package logging

import (
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Format selects the wire format the root logger writes.
type Format string

const (
	FormatConsole Format = "console"
	FormatJSON    Format = "json"
)

// Configure sets the global zerolog level and writer. format="console"
// gives a human-readable dev writer; anything else falls back to
// structured JSON, the production default.
func Configure(level string, format Format) error {
	lvl, err := zerolog.ParseLevel(strings.ToLower(level))
	if err != nil {
		return err
	}
	zerolog.SetGlobalLevel(lvl)

	if format == FormatConsole {
		log.Logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}).With().Timestamp().Logger()
		return nil
	}
	log.Logger = zerolog.New(os.Stderr).With().Timestamp().Logger()
	return nil
}
