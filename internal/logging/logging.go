// Package logging wires up the structured logger every agentfox-bridge
// process uses. All three binaries speak a framed protocol on one of
// stdin/stdout, so diagnostics must never touch those streams — every
// logger built here writes exclusively to stderr.
package logging

import (
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// New builds a zap.SugaredLogger for component (e.g. "broker", "relay",
// "browser") that writes JSON lines to stderr. debug enables debug-level
// output; otherwise the floor is info.
func New(component string, debug bool) *zap.SugaredLogger {
	level := zapcore.InfoLevel
	if debug {
		level = zapcore.DebugLevel
	}

	encoderCfg := zap.NewProductionEncoderConfig()
	encoderCfg.TimeKey = "ts"
	encoderCfg.EncodeTime = zapcore.RFC3339NanoTimeEncoder

	core := zapcore.NewCore(
		zapcore.NewJSONEncoder(encoderCfg),
		zapcore.Lock(zapcore.AddSync(os.Stderr)),
		level,
	)
	logger := zap.New(core).Named(component)
	return logger.Sugar()
}

// Nop returns a logger that discards everything, for tests.
func Nop() *zap.SugaredLogger {
	return zap.NewNop().Sugar()
}
