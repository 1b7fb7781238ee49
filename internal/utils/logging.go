package utils

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/benmeehan/tms-heartbeat/pkg/file"
	"github.com/rs/zerolog"
)

// LoggingConfig is the content of logging-config.yaml.
type LoggingConfig struct {
	Level  string `yaml:"level"`  // trace, debug, info, warn, error
	Format string `yaml:"format"` // console or json
	Output string `yaml:"output"` // stdout, stderr or a file path
	Caller bool   `yaml:"caller"` // include the caller in every entry
}

// NoLoggingConfigMessage is printed when the logging config file is absent.
const NoLoggingConfigMessage = "No logging-config.yaml file found."

// SetupLogger builds the process logger from the logging config at path.
// When the file does not exist the notice is printed to console and the
// logger writes errors only, in console format. The returned close function
// releases a log file if one was opened.
func SetupLogger(path string, fileClient file.FileOperations, console io.Writer) (zerolog.Logger, func() error, error) {
	noop := func() error { return nil }

	exists, err := fileClient.IsFileExists(path)
	if err != nil {
		return zerolog.Nop(), noop, fmt.Errorf("logging config %s: %w", path, err)
	}
	if !exists {
		fmt.Fprintln(console, NoLoggingConfigMessage)
		return newLogger(LoggingConfig{Level: "error", Format: "console"}, console), noop, nil
	}

	var cfg LoggingConfig
	if err := fileClient.ReadYamlFile(path, &cfg); err != nil {
		return zerolog.Nop(), noop, fmt.Errorf("logging config problem in %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return zerolog.Nop(), noop, fmt.Errorf("logging config problem in %s: %w", path, err)
	}

	out := console
	closeFn := noop
	switch strings.ToLower(cfg.Output) {
	case "", "stdout":
	case "stderr":
		out = os.Stderr
	default:
		f, err := os.OpenFile(cfg.Output, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return zerolog.Nop(), noop, fmt.Errorf("open log output %s: %w", cfg.Output, err)
		}
		out = f
		closeFn = f.Close
	}

	return newLogger(cfg, out), closeFn, nil
}

// Validate checks level and format values.
func (c LoggingConfig) Validate() error {
	if _, err := parseLevel(c.Level); err != nil {
		return err
	}
	switch strings.ToLower(c.Format) {
	case "", "console", "json":
		return nil
	default:
		return fmt.Errorf("unknown log format %q", c.Format)
	}
}

func parseLevel(s string) (zerolog.Level, error) {
	if strings.TrimSpace(s) == "" {
		return zerolog.InfoLevel, nil
	}
	level, err := zerolog.ParseLevel(strings.ToLower(s))
	if err != nil {
		return zerolog.NoLevel, fmt.Errorf("unknown log level %q", s)
	}
	return level, nil
}

func newLogger(cfg LoggingConfig, out io.Writer) zerolog.Logger {
	level, err := parseLevel(cfg.Level)
	if err != nil {
		level = zerolog.InfoLevel
	}

	w := out
	if strings.ToLower(cfg.Format) != "json" {
		w = zerolog.ConsoleWriter{Out: out, TimeFormat: time.RFC3339}
	}

	ctx := zerolog.New(w).Level(level).With().Timestamp()
	if cfg.Caller {
		ctx = ctx.Caller()
	}
	return ctx.Logger()
}
