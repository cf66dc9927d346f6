// Package observer defines the narrow push interface (spec.md §4.9) the
// transfer engine and supervisor use to report progress without blocking
// the session goroutine. Implementations must be non-blocking or
// internally buffered.
package observer

import (
	"time"

	"github.com/hors-sit/pesitd/internal/diag"
)

// Sink receives transfer and session lifecycle events. Every method must
// return quickly — a slow or blocking sink stalls the session that calls
// it, so implementations that do real work (network calls, disk writes)
// must hand off internally (buffered channel, async batch writer) rather
// than doing it inline.
type Sink interface {
	// OnBytes reports cumulative progress for a transfer. fileSize is
	// (-1, false) when the total size isn't known up front. syncPoint is
	// the most recently acknowledged sync-point number, or 0 if sync
	// points are disabled for this transfer.
	OnBytes(transferID uint32, bytesTransferred uint64, fileSize int64, fileSizeKnown bool, syncPoint uint32)
	// OnState reports a session state-machine transition.
	OnState(sessionID string, old, new string)
	// OnComplete reports a transfer reaching TRANS_END successfully.
	OnComplete(transferID uint32, bytes uint64, duration time.Duration)
	// OnFailed reports a transfer or session ending in failure.
	OnFailed(transferID uint32, code diag.Code, message string)
}

// Multi fans events out to every sink in order. A panic in one sink is
// not recovered here — sinks are expected to be well-behaved; the
// supervisor recovers panics at the connection-goroutine boundary.
type Multi []Sink

func (m Multi) OnBytes(transferID uint32, bytesTransferred uint64, fileSize int64, fileSizeKnown bool, syncPoint uint32) {
	for _, s := range m {
		s.OnBytes(transferID, bytesTransferred, fileSize, fileSizeKnown, syncPoint)
	}
}

func (m Multi) OnState(sessionID string, old, new string) {
	for _, s := range m {
		s.OnState(sessionID, old, new)
	}
}

func (m Multi) OnComplete(transferID uint32, bytes uint64, duration time.Duration) {
	for _, s := range m {
		s.OnComplete(transferID, bytes, duration)
	}
}

func (m Multi) OnFailed(transferID uint32, code diag.Code, message string) {
	for _, s := range m {
		s.OnFailed(transferID, code, message)
	}
}

// Noop discards every event; the default when no sink is configured.
type Noop struct{}

func (Noop) OnBytes(uint32, uint64, int64, bool, uint32) {}
func (Noop) OnState(string, string, string)              {}
func (Noop) OnComplete(uint32, uint64, time.Duration)    {}
func (Noop) OnFailed(uint32, diag.Code, string)          {}
