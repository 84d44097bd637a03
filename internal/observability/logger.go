// Package observability holds the process-wide CLI logger.
package observability

import (
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// CLILogger is the logger commands write through. It is a no-op logger
// until InitCLILogger runs.
var CLILogger = zap.NewNop()

// InitCLILogger configures CLILogger for the named binary. Verbose enables
// debug output with caller information.
func InitCLILogger(name string, verbose bool) {
	level := zapcore.InfoLevel
	if verbose {
		level = zapcore.DebugLevel
	}
	CLILogger = NewCLILogger(name, level, verbose)
}

// InitCLILoggerLevel is InitCLILogger with a level name such as "warn".
// Unknown names fall back to info.
func InitCLILoggerLevel(name, levelName string, verbose bool) {
	level := zapcore.InfoLevel
	if err := level.Set(levelName); err != nil {
		level = zapcore.InfoLevel
	}
	if verbose {
		level = zapcore.DebugLevel
	}
	CLILogger = NewCLILogger(name, level, verbose)
}

// NewCLILogger builds a console logger on stderr so stdout stays free for
// command output.
func NewCLILogger(name string, level zapcore.Level, withCaller bool) *zap.Logger {
	enc := zap.NewDevelopmentEncoderConfig()
	enc.TimeKey = ""
	if !withCaller {
		enc.CallerKey = ""
	}
	core := zapcore.NewCore(zapcore.NewConsoleEncoder(enc), zapcore.Lock(os.Stderr), level)

	opts := []zap.Option{}
	if withCaller {
		opts = append(opts, zap.AddCaller())
	}
	return zap.New(core, opts...).Named(name)
}
