package logger

import (
	"os"

	"github.com/rs/zerolog"
)

// New builds the process logger. Dev gets the console writer, anything
// else gets plain JSON lines.
func New(env, service string) zerolog.Logger {
	var log zerolog.Logger
	if env == "dev" {
		log = zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout}).With().Timestamp().Logger()
	} else {
		log = zerolog.New(os.Stdout).With().Timestamp().Logger()
	}
	return log.With().Str("service", service).Logger()
}
