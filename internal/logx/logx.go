package logx

import (
	"os"
	"path/filepath"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// New builds the harness logger: console at Info plus two append-mode files
// under dir, <name>.log at Info and <name>.debug.log at Debug. Operators
// diagnose fault-injection campaigns from these logs alone, so every
// component shares the one logger.
func New(dir, name string) (*zap.Logger, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}

	normal, err := openLog(filepath.Join(dir, name+".log"))
	if err != nil {
		return nil, err
	}
	debug, err := openLog(filepath.Join(dir, name+".debug.log"))
	if err != nil {
		_ = normal.Close()
		return nil, err
	}

	encCfg := zap.NewProductionEncoderConfig()
	encCfg.EncodeTime = zapcore.ISO8601TimeEncoder
	encCfg.EncodeLevel = zapcore.CapitalLevelEncoder
	enc := zapcore.NewConsoleEncoder(encCfg)

	core := zapcore.NewTee(
		zapcore.NewCore(enc, zapcore.Lock(os.Stdout), zapcore.InfoLevel),
		zapcore.NewCore(enc, zapcore.AddSync(normal), zapcore.InfoLevel),
		zapcore.NewCore(enc, zapcore.AddSync(debug), zapcore.DebugLevel),
	)

	return zap.New(core), nil
}

func openLog(path string) (*os.File, error) {
	return os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
}
