package logging

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"
)

// Options selects the global logger's level, format, and sinks.
type Options struct {
	Level string // logrus level name, empty means info
	File  string // optional log file, stdout always stays on
	JSON  bool   // JSON formatter; text with timestamps otherwise
}

var (
	logMux        sync.Mutex
	logFileHandle *os.File
)

// Setup configures the global logrus logger. It is idempotent; the most
// recent call wins.
func Setup(opts Options) error {
	logMux.Lock()
	defer logMux.Unlock()

	if opts.JSON {
		log.SetFormatter(&log.JSONFormatter{TimestampFormat: time.RFC3339Nano})
	} else {
		log.SetFormatter(&log.TextFormatter{
			FullTimestamp:   true,
			TimestampFormat: time.RFC3339Nano,
		})
	}

	level := log.InfoLevel
	if opts.Level != "" {
		parsed, err := log.ParseLevel(opts.Level)
		if err != nil {
			return fmt.Errorf("invalid log level %q: %w", opts.Level, err)
		}
		level = parsed
	}
	log.SetLevel(level)

	if logFileHandle != nil {
		logFileHandle.Close()
		logFileHandle = nil
	}

	out := io.Writer(os.Stdout)
	if opts.File != "" {
		if err := os.MkdirAll(filepath.Dir(opts.File), 0o755); err != nil {
			return fmt.Errorf("create log dir: %w", err)
		}
		f, err := os.OpenFile(opts.File, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return fmt.Errorf("open log file: %w", err)
		}
		logFileHandle = f
		out = io.MultiWriter(os.Stdout, f)
	}
	log.SetOutput(out)
	return nil
}
