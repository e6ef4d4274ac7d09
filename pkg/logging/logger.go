package logging

import (
	"fmt"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Options descreve como o logger deve ser construído
type Options struct {
	Level      string   // debug, info, warn, error
	Format     string   // json, console
	Outputs    []string // stdout, stderr ou caminhos de arquivo
	ErrorPaths []string
	Production bool
}

// NewLogger cria um logger zap a partir das opções
func NewLogger(opts Options) (*zap.Logger, error) {
	config := zap.NewProductionConfig()
	if !opts.Production {
		config = zap.NewDevelopmentConfig()
	}

	level, err := zapcore.ParseLevel(strings.ToLower(opts.Level))
	if err != nil && opts.Level != "" {
		return nil, fmt.Errorf("nível de log inválido %q: %w", opts.Level, err)
	}
	if opts.Level == "" {
		level = zapcore.InfoLevel
	}
	config.Level = zap.NewAtomicLevelAt(level)

	switch opts.Format {
	case "", "json":
		config.Encoding = "json"
	case "console":
		config.Encoding = "console"
	default:
		return nil, fmt.Errorf("formato de log inválido: %s", opts.Format)
	}

	if len(opts.Outputs) > 0 {
		config.OutputPaths = opts.Outputs
	}
	if len(opts.ErrorPaths) > 0 {
		config.ErrorOutputPaths = opts.ErrorPaths
	}

	config.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	config.EncoderConfig.EncodeDuration = zapcore.StringDurationEncoder

	return config.Build(zap.AddStacktrace(zapcore.ErrorLevel))
}
