package logger

import (
	"go.uber.org/zap"
)

// NewLogger builds the process-wide zap logger, writing to stderr and to
// the session log file.
func NewLogger(logFilePath string) (*zap.Logger, error) {
	cfg := zap.NewProductionConfig()
	cfg.OutputPaths = []string{"stderr", logFilePath}
	cfg.ErrorOutputPaths = []string{"stderr"}

	return cfg.Build()
}
