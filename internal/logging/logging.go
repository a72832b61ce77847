// Package logging builds the ring-master's structured logger, an
// append-only file sink with a non-fatal fallback chain: the configured
// path, then the default log path, then stderr.
package logging

import (
	"fmt"
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// DefaultPath is the log file used when the configured path cannot be
// opened, and the path assumed when the caller passes an empty string.
const DefaultPath = "/var/log/nscldaq/ringmaster.log"

// Open builds a production-leveled zap.Logger appending to path. A
// failure to open path is not fatal: Open retries DefaultPath, and if
// that also fails, logs to stderr instead. The returned fallback string
// is empty unless a fallback occurred, for the caller to report through
// the returned logger.
func Open(path string) (*zap.Logger, string) {
	if path == "" {
		path = DefaultPath
	}

	if f, err := openAppend(path); err == nil {
		return newLogger(f), ""
	}

	if path != DefaultPath {
		if f, err := openAppend(DefaultPath); err == nil {
			return newLogger(f), fmt.Sprintf("could not open log file %s, falling back to %s", path, DefaultPath)
		}
	}

	return newLogger(os.Stderr), fmt.Sprintf("could not open log file %s or %s, falling back to stderr", path, DefaultPath)
}

func openAppend(path string) (*os.File, error) {
	return os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
}

func newLogger(w *os.File) *zap.Logger {
	encoderCfg := zap.NewProductionEncoderConfig()
	encoderCfg.TimeKey = "ts"
	encoderCfg.EncodeTime = zapcore.ISO8601TimeEncoder

	core := zapcore.NewCore(zapcore.NewJSONEncoder(encoderCfg), zapcore.AddSync(w), zapcore.InfoLevel)
	return zap.New(core)
}
