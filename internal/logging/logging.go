// Package logging configures the process-wide logrus logger.
//
// Diagnostic output goes to stderr and, when configured, to a rotating log
// file. User-facing command output is printed by the commands themselves.
package logging

import (
	"fmt"
	"io"
	"os"

	formatter "github.com/antonfisher/nested-logrus-formatter"
	"github.com/sirupsen/logrus"
	"gopkg.in/natefinch/lumberjack.v2"
)

type Fields = logrus.Fields

// Options configures Setup.
type Options struct {
	Level string // logrus level name, defaults to info
	File  string // optional log file, rotated by size
	// Stderr overrides the console writer; used by tests.
	Stderr io.Writer
}

// Setup configures the standard logrus logger and returns it.
func Setup(opts Options) (*logrus.Logger, error) {
	log := logrus.StandardLogger()

	if err := configure(log, opts); err != nil {
		return nil, err
	}
	return log, nil
}

// New returns a separate logger configured like Setup.
func New(opts Options) (*logrus.Logger, error) {
	log := logrus.New()
	if err := configure(log, opts); err != nil {
		return nil, err
	}
	return log, nil
}

func configure(log *logrus.Logger, opts Options) error {
	level := logrus.InfoLevel
	if opts.Level != "" {
		l, err := logrus.ParseLevel(opts.Level)
		if err != nil {
			return fmt.Errorf("parsing log level: %w", err)
		}
		level = l
	}
	log.SetLevel(level)

	log.SetFormatter(&formatter.Formatter{
		TimestampFormat: "2006-01-02 15:04:05",
		HideKeys:        false,
		NoColors:        opts.File != "",
		FieldsOrder:     []string{"run_id", "mode", "frame"},
	})

	var console io.Writer = os.Stderr
	if opts.Stderr != nil {
		console = opts.Stderr
	}

	writers := []io.Writer{console}
	if opts.File != "" {
		writers = append(writers, &lumberjack.Logger{
			Filename:   opts.File,
			LocalTime:  true,
			Compress:   true,
			MaxSize:    50,
			MaxAge:     30,
			MaxBackups: 5,
		})
	}
	log.SetOutput(io.MultiWriter(writers...))
	return nil
}

// Discard returns a logger that drops everything, for tests.
func Discard() *logrus.Logger {
	log := logrus.New()
	log.SetOutput(io.Discard)
	return log
}
