package util

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	log "github.com/sirupsen/logrus"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/tunnelcore/tunnelcore/formatter"
)

// LogConsole is the log target that writes to stderr
const LogConsole = "console"

// rotation limits of file log targets
const (
	logMaxSizeMB  = 5
	logMaxBackups = 10
	logMaxAgeDays = 30
)

// InitLog sets the level and the outputs of the standard logger. logTargets is a comma
// separated list of LogConsole and file paths; files are rotated. Timestamps are dropped
// when the only target is the console of a systemd unit, journald adds its own.
func InitLog(logLevel string, logTargets string) error {
	level, err := log.ParseLevel(logLevel)
	if err != nil {
		return fmt.Errorf("invalid log level %q: %w", logLevel, err)
	}

	writers, consoleOnly, err := logWriters(logTargets)
	if err != nil {
		return err
	}

	if len(writers) == 1 {
		log.SetOutput(writers[0])
	} else {
		log.SetOutput(io.MultiWriter(writers...))
	}

	underSystemd := os.Getenv("INVOCATION_ID") != ""
	formatter.SetTextFormatter(log.StandardLogger(), !(consoleOnly && underSystemd))
	log.SetLevel(level)
	return nil
}

func logWriters(logTargets string) ([]io.Writer, bool, error) {
	var writers []io.Writer
	consoleOnly := true
	seen := make(map[string]bool)

	for _, target := range strings.Split(logTargets, ",") {
		target = strings.TrimSpace(target)
		if target == "" || seen[target] {
			continue
		}
		seen[target] = true

		if target == LogConsole {
			writers = append(writers, os.Stderr)
			continue
		}

		if err := os.MkdirAll(filepath.Dir(target), 0o750); err != nil {
			return nil, false, fmt.Errorf("create log directory for %s: %w", target, err)
		}
		consoleOnly = false
		writers = append(writers, &lumberjack.Logger{
			Filename:   filepath.ToSlash(target),
			MaxSize:    logMaxSizeMB,
			MaxBackups: logMaxBackups,
			MaxAge:     logMaxAgeDays,
			Compress:   true,
		})
	}

	if len(writers) == 0 {
		writers = append(writers, os.Stderr)
	}
	return writers, consoleOnly, nil
}
