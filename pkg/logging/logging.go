// Package logging builds the slog logger for an environment and verbosity.
package logging

import (
	"fmt"
	"io"
	"log/slog"

	"bkz/pkg/config"
)

// LevelFor maps a verbosity to the minimum level logged.
func LevelFor(verbosity int) slog.Level {
	switch {
	case verbosity <= 0:
		return slog.LevelWarn
	case verbosity <= 2:
		return slog.LevelInfo
	default:
		return slog.LevelDebug
	}
}

// Setup returns the logger for env writing to out.
func Setup(env string, verbosity int, out io.Writer) (*slog.Logger, error) {
	var log *slog.Logger
	level := LevelFor(verbosity)

	switch env {
	case config.EnvLocal:
		opts := PrettyHandlerOptions{
			SlogOpts: &slog.HandlerOptions{Level: level},
		}
		log = slog.New(opts.NewPrettyHandler(out))
	case config.EnvDebug:
		log = slog.New(slog.NewJSONHandler(out, &slog.HandlerOptions{Level: min(level, slog.LevelDebug), AddSource: true}))
	case config.EnvProd:
		log = slog.New(slog.NewJSONHandler(out, &slog.HandlerOptions{Level: level}))
	default:
		return nil, fmt.Errorf("unknown logging environment %q", env)
	}

	return log, nil
}
