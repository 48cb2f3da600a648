// Package observability owns the process-wide zap logger. The debug-log
// channel required by the observer boundary is the logger's debug level:
// flipping it on mirrors every internal loop decision to the console.
package observability

import (
	"os"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/vkotenko/go-web-pilot/internal/config"
)

var (
	globalLogger atomic.Pointer[zap.Logger]
	once         sync.Once
)

// Initialize builds the global logger from configuration. Console output
// goes to the given writer; when a log file is configured a JSON core with
// lumberjack rotation is teed in. Safe to call more than once; only the
// first call wins.
func Initialize(cfg config.LoggerConfig, console zapcore.WriteSyncer) {
	once.Do(func() {
		level := zap.NewAtomicLevel()
		if err := level.UnmarshalText([]byte(cfg.Level)); err != nil {
			level.SetLevel(zap.InfoLevel)
		}

		encCfg := zap.NewProductionEncoderConfig()
		encCfg.EncodeTime = zapcore.ISO8601TimeEncoder
		var consoleEnc zapcore.Encoder
		if cfg.Format == "json" {
			consoleEnc = zapcore.NewJSONEncoder(encCfg)
		} else {
			encCfg.EncodeLevel = zapcore.CapitalColorLevelEncoder
			consoleEnc = zapcore.NewConsoleEncoder(encCfg)
		}

		cores := []zapcore.Core{zapcore.NewCore(consoleEnc, console, level)}

		if cfg.LogFile != "" {
			fileEnc := zapcore.NewJSONEncoder(zap.NewProductionEncoderConfig())
			fileSink := zapcore.AddSync(&lumberjack.Logger{
				Filename:   cfg.LogFile,
				MaxSize:    cfg.MaxSize,
				MaxBackups: cfg.MaxBackups,
				MaxAge:     cfg.MaxAge,
				Compress:   cfg.Compress,
			})
			cores = append(cores, zapcore.NewCore(fileEnc, fileSink, level))
		}

		logger := zap.New(zapcore.NewTee(cores...), zap.AddStacktrace(zap.ErrorLevel))
		globalLogger.Store(logger)
		zap.ReplaceGlobals(logger)
	})
}

// InitializeLogger is the production entry point, logging to stdout.
func InitializeLogger(cfg config.LoggerConfig) {
	Initialize(cfg, zapcore.Lock(os.Stdout))
}

// Logger returns the global logger, or a no-op logger before Initialize.
func Logger() *zap.Logger {
	if l := globalLogger.Load(); l != nil {
		return l
	}
	return zap.NewNop()
}

// ResetForTest clears the global logger so each test can install its own.
// Only for tests.
func ResetForTest() {
	globalLogger.Store(nil)
	once = sync.Once{}
}
