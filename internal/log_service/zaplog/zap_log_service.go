package zaplog

import (
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/AnishMulay/namestore/internal/log_service"
)

// ZapLogService backs the LogService interface with a zap production logger
// writing to stderr. Used when a node should log to the console instead of a
// file on disk.
type ZapLogService struct {
	logger *zap.Logger
	nodeID string
}

func NewZapLogService(nodeID string, minLogLevel string) *ZapLogService {
	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevelAt(zapLevel(minLogLevel))
	cfg.OutputPaths = []string{"stderr"}

	logger, err := cfg.Build()
	if err != nil {
		logger = zap.NewNop()
	}

	return &ZapLogService{
		logger: logger.With(zap.String("node", nodeID)),
		nodeID: nodeID,
	}
}

func zapLevel(level string) zapcore.Level {
	switch log_service.GetLevelValue(level) {
	case log_service.InfoLevelValue:
		return zapcore.InfoLevel
	case log_service.WarnLevelValue:
		return zapcore.WarnLevel
	case log_service.ErrorLevelValue:
		return zapcore.ErrorLevel
	default:
		return zapcore.DebugLevel
	}
}

func fields(event log_service.LogEvent) []zap.Field {
	out := make([]zap.Field, 0, len(event.Metadata))
	for k, v := range event.Metadata {
		out = append(out, zap.Any(k, v))
	}
	return out
}

func (z *ZapLogService) Debug(event log_service.LogEvent) {
	z.logger.Debug(event.Message, fields(event)...)
}

func (z *ZapLogService) Info(event log_service.LogEvent) {
	z.logger.Info(event.Message, fields(event)...)
}

func (z *ZapLogService) Warn(event log_service.LogEvent) {
	z.logger.Warn(event.Message, fields(event)...)
}

func (z *ZapLogService) Error(event log_service.LogEvent) {
	z.logger.Error(event.Message, fields(event)...)
}

// Sync flushes buffered log entries. Call on shutdown.
func (z *ZapLogService) Sync() error {
	return z.logger.Sync()
}
