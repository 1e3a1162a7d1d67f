package main

import (
	"io"

	"github.com/alecthomas/kingpin/v2"
	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
)

var logLevels = []string{"debug", "info", "warn", "error"}

// loggerConfig builds the process logger from --log.level.
type loggerConfig struct {
	level  string
	out    io.Writer
	logger log.Logger
}

// Register adds the logging flags. The logger is built in a pre-action so
// it is ready before any command runs.
func (c *loggerConfig) Register(app *kingpin.Application, out io.Writer) {
	c.out = out
	app.Flag("log.level", "Only log messages with the given severity or above. Valid levels: [debug, info, warn, error]").
		Default("info").
		EnumVar(&c.level, logLevels...)
	app.PreAction(func(*kingpin.ParseContext) error {
		c.logger = newLogger(c.out, c.level)
		return nil
	})
}

// Logger returns the configured logger, or a nop logger before parsing.
func (c *loggerConfig) Logger() log.Logger {
	if c.logger == nil {
		return log.NewNopLogger()
	}
	return c.logger
}

func newLogger(out io.Writer, lvl string) log.Logger {
	logger := log.NewLogfmtLogger(log.NewSyncWriter(out))
	logger = level.NewFilter(logger, levelOption(lvl))
	return log.With(logger, "ts", log.DefaultTimestampUTC, "caller", log.DefaultCaller)
}

func levelOption(lvl string) level.Option {
	switch lvl {
	case "debug":
		return level.AllowDebug()
	case "warn":
		return level.AllowWarn()
	case "error":
		return level.AllowError()
	default:
		return level.AllowInfo()
	}
}
