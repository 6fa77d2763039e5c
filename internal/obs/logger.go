package obs

import (
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/nhle/taskboard/internal/model"
)

// NewLogger builds the process logger. With cfg.File set the stream goes to
// a size-rotated file, which the terminal UI needs since it owns stdout.
func NewLogger(cfg model.LogConfig) (*zap.Logger, error) {
	level := new(zapcore.Level)
	if err := level.Set(cfg.Level); err != nil {
		*level = zapcore.InfoLevel
	}

	var encCfg zapcore.EncoderConfig
	if cfg.Pretty {
		encCfg = zap.NewDevelopmentEncoderConfig()
	} else {
		encCfg = zap.NewProductionEncoderConfig()
	}
	encCfg.TimeKey = "ts"
	encCfg.EncodeTime = zapcore.ISO8601TimeEncoder

	var enc zapcore.Encoder
	if cfg.Pretty {
		enc = zapcore.NewConsoleEncoder(encCfg)
	} else {
		enc = zapcore.NewJSONEncoder(encCfg)
	}

	var sink zapcore.WriteSyncer
	if cfg.File != "" {
		sink = zapcore.AddSync(&lumberjack.Logger{
			Filename:   cfg.File,
			MaxSize:    10, // megabytes
			MaxBackups: 3,
			MaxAge:     14, // days
		})
	} else {
		sink = zapcore.Lock(os.Stderr)
	}

	core := zapcore.NewCore(enc, sink, zap.NewAtomicLevelAt(*level))
	return zap.New(core, zap.AddCaller(), zap.Fields(zap.String("app", "taskboard"))), nil
}
