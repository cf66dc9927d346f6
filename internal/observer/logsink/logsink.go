// Package logsink is an observer.Sink that writes every event through
// internal/logger, the same structured logger the rest of the daemon
// uses. It never blocks — slog's handler is synchronous but fast, and
// per spec.md §4.9 the bar is "bounded interval," which a log write
// comfortably clears.
package logsink

import (
	"time"

	"github.com/hors-sit/pesitd/internal/diag"
	"github.com/hors-sit/pesitd/internal/logger"
)

// Sink logs transfer progress at Debug, state transitions and completion
// at Info, and failures at Warn level.
type Sink struct{}

// New returns a logging observer.Sink.
func New() Sink { return Sink{} }

func (Sink) OnBytes(transferID uint32, bytesTransferred uint64, fileSize int64, fileSizeKnown bool, syncPoint uint32) {
	fields := []any{
		logger.TransferID(transferID),
		logger.Bytes(bytesTransferred),
	}
	if fileSizeKnown {
		fields = append(fields, "file_size", fileSize)
	}
	if syncPoint > 0 {
		fields = append(fields, logger.SyncNum(syncPoint))
	}
	logger.Debug("transfer progress", fields...)
}

func (Sink) OnState(sessionID string, old, new string) {
	logger.Info("session state transition",
		logger.SessionID(sessionID),
		"from", old,
		"to", new,
	)
}

func (Sink) OnComplete(transferID uint32, bytes uint64, duration time.Duration) {
	logger.Info("transfer complete",
		logger.TransferID(transferID),
		logger.Bytes(bytes),
		logger.DurationMs(float64(duration.Milliseconds())),
	)
}

func (Sink) OnFailed(transferID uint32, code diag.Code, message string) {
	logger.Warn("transfer failed",
		logger.TransferID(transferID),
		logger.Diag(code.String()),
		"message", message,
	)
}
