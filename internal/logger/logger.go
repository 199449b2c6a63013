package logger

import (
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Options controls how the process logger is built.
type Options struct {
	// JSON switches from the console encoder, used by the CLI, to JSON.
	JSON  bool
	Debug bool
	// Output is a zap sink such as "stdout", "stderr" or a file path.
	// Empty means stdout.
	Output string
	// Component is attached to every entry when set.
	Component string
}

func (o Options) encoding() string {
	if o.JSON {
		return "json"
	}
	return "console"
}

func (o Options) level() zapcore.Level {
	if o.Debug {
		return zapcore.DebugLevel
	}
	return zapcore.InfoLevel
}

func (o Options) outputs() []string {
	if out := strings.TrimSpace(o.Output); out != "" {
		return []string{out}
	}
	return []string{"stdout"}
}

// New builds the process logger.
func New(opts Options) (*zap.Logger, error) {
	cfg := zap.Config{
		Encoding:         opts.encoding(),
		Level:            zap.NewAtomicLevelAt(opts.level()),
		OutputPaths:      opts.outputs(),
		ErrorOutputPaths: []string{"stderr"},
		EncoderConfig: zapcore.EncoderConfig{
			MessageKey:   "step",
			LevelKey:     "level",
			TimeKey:      "time",
			CallerKey:    "caller",
			EncodeLevel:  zapcore.LowercaseLevelEncoder,
			EncodeTime:   zapcore.RFC3339TimeEncoder,
			EncodeCaller: zapcore.ShortCallerEncoder,
		},
	}

	logger, err := cfg.Build()
	if err != nil {
		return nil, err
	}
	if opts.Component != "" {
		logger = logger.With(zap.String("component", opts.Component))
	}
	return logger, nil
}
