// Package logging configures the shared logrus logger and provides Gin
// middleware for HTTP request logging and panic recovery.
package logging

import (
	"io"
	"os"
	"path/filepath"

	log "github.com/sirupsen/logrus"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/1-Tawsif-1/Antigravity-great-2/internal/config"
)

// SetupBaseLogger applies the default formatter and level before the
// configuration file has been read.
func SetupBaseLogger() {
	log.SetFormatter(&log.TextFormatter{
		FullTimestamp:   true,
		TimestampFormat: "2006-01-02 15:04:05",
	})
	log.SetLevel(log.InfoLevel)
	log.SetOutput(os.Stderr)
}

// ConfigureLogOutput routes log output according to the configuration.
// With logging-to-file enabled, output goes to a size-rotated file and a
// copy is still written to stderr.
func ConfigureLogOutput(cfg *config.Config) error {
	if cfg == nil || !cfg.LoggingToFile {
		return nil
	}
	dir := cfg.LogDir
	if dir == "" {
		dir = "logs"
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	rotated := &lumberjack.Logger{
		Filename:   filepath.Join(dir, "gateway.log"),
		MaxSize:    50, // MB
		MaxBackups: 5,
		MaxAge:     14, // days
		Compress:   true,
	}
	log.SetOutput(io.MultiWriter(os.Stderr, rotated))
	return nil
}

// SetLogLevel applies the configured verbosity.
func SetLogLevel(cfg *config.Config) {
	if cfg != nil && cfg.Debug {
		log.SetLevel(log.DebugLevel)
		log.SetReportCaller(true)
		return
	}
	log.SetLevel(log.InfoLevel)
	log.SetReportCaller(false)
}
