package common

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"gopkg.in/natefinch/lumberjack.v2"
)

// LogOptions selects log level, output format and an optional rotated file.
type LogOptions struct {
	Level  string
	Format string // json or console
	File   string
}

// SetupLogging configures the global zerolog logger. The returned closer
// flushes the log file, if any; it is never nil.
func SetupLogging(opts LogOptions) (io.Closer, error) {
	level, err := zerolog.ParseLevel(strings.ToLower(opts.Level))
	if err != nil || level == zerolog.NoLevel {
		return nopCloser{}, fmt.Errorf("invalid log level %q", opts.Level)
	}
	zerolog.SetGlobalLevel(level)

	var out io.Writer = os.Stderr
	if strings.EqualFold(opts.Format, "console") {
		out = zerolog.ConsoleWriter{Out: os.Stderr}
	}

	var closer io.Closer = nopCloser{}
	if opts.File != "" {
		file := &lumberjack.Logger{
			Filename:   opts.File,
			MaxSize:    LogMaxSizeMB,
			MaxBackups: LogMaxBackups,
			MaxAge:     LogMaxAgeDays,
			Compress:   true,
		}
		// The file always gets JSON regardless of the console format.
		out = zerolog.MultiLevelWriter(out, file)
		closer = file
	}

	log.Logger = zerolog.New(out).With().Timestamp().Logger()
	return closer, nil
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }
