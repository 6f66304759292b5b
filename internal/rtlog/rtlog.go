// Package rtlog constructs the zap logger shared by every runtime
// package, selected by the configured log format/level the way the
// teacher's CLI harness does at bootstrap (zap.NewDevelopment/
// zap.ReplaceGlobals), split into a dev console encoder and a prod JSON
// encoder here so the dev encoder can colorize level tags.
package rtlog

import (
	"fmt"
	"os"

	"github.com/fatih/color"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var levelColors = map[zapcore.Level]*color.Color{
	zapcore.DebugLevel:  color.New(color.FgMagenta),
	zapcore.InfoLevel:   color.New(color.FgCyan),
	zapcore.WarnLevel:   color.New(color.FgYellow),
	zapcore.ErrorLevel:  color.New(color.FgRed, color.Bold),
	zapcore.DPanicLevel: color.New(color.FgRed, color.Bold),
	zapcore.PanicLevel:  color.New(color.FgRed, color.Bold),
	zapcore.FatalLevel:  color.New(color.FgRed, color.Bold),
}

func colorLevelEncoder(l zapcore.Level, enc zapcore.PrimitiveArrayEncoder) {
	text := l.CapitalString()
	if c, ok := levelColors[l]; ok {
		text = c.Sprint(text)
	}
	enc.AppendString(text)
}

// New builds a *zap.Logger for format ("dev" or "json") at the given
// level ("debug", "info", "warn", "error"). An unrecognized format falls
// back to "dev"; an unrecognized level falls back to "info".
func New(format, level string) (*zap.Logger, error) {
	lvl, err := zapcore.ParseLevel(level)
	if err != nil {
		lvl = zapcore.InfoLevel
	}

	var encoder zapcore.Encoder
	switch format {
	case "json":
		encoder = zapcore.NewJSONEncoder(zap.NewProductionEncoderConfig())
	default:
		cfg := zap.NewDevelopmentEncoderConfig()
		cfg.EncodeLevel = colorLevelEncoder
		encoder = zapcore.NewConsoleEncoder(cfg)
	}

	core := zapcore.NewCore(encoder, zapcore.Lock(zapcore.AddSync(os.Stderr)), lvl)
	return zap.New(core, zap.AddCaller()), nil
}

// MustNew is New, panicking on error; used at process bootstrap where
// there is no sensible fallback.
func MustNew(format, level string) *zap.Logger {
	l, err := New(format, level)
	if err != nil {
		panic(fmt.Sprintf("rtlog: %v", err))
	}
	return l
}
