// Package promsink adapts an internal/metrics.Set into an observer.Sink,
// grounded on the same pesitd_ metrics the supervisor and transfer engine
// otherwise only reach through internal/logger. Session duration isn't
// carried by observer.Sink's OnState signature, so the sink tracks each
// session's start time itself, the way the teacher's NFSAdapter tracks
// connection start times for its own duration histograms.
package promsink

import (
	"sync"
	"time"

	"github.com/hors-sit/pesitd/internal/diag"
	"github.com/hors-sit/pesitd/internal/metrics"
)

// Sink is an observer.Sink backed by a metrics.Set.
type Sink struct {
	metrics metrics.Set

	mu      sync.Mutex
	started map[string]time.Time
}

// New returns an observer.Sink that records every event against m.
func New(m metrics.Set) *Sink {
	return &Sink{metrics: m, started: make(map[string]time.Time)}
}

// OnBytes records cumulative transfer bytes. Direction isn't carried by
// this event, so byte counts are reported under the shared "transfer"
// label rather than split by send/receive.
func (s *Sink) OnBytes(transferID uint32, bytesTransferred uint64, fileSize int64, fileSizeKnown bool, syncPoint uint32) {
	s.metrics.Transfer().RecordBytes("transfer", bytesTransferred)
	if syncPoint > 0 {
		s.metrics.Transfer().RecordSyncPoint("transfer")
	}
}

// OnState tracks session creation/destruction against the sentinel
// transitions internal/supervisor emits ("" -> "CONNECTED" on accept,
// "CONNECTED" -> "TERMINAL" on teardown).
func (s *Sink) OnState(sessionID string, old, new string) {
	switch {
	case old == "" && new == "CONNECTED":
		s.mu.Lock()
		s.started[sessionID] = time.Now()
		s.mu.Unlock()
		s.metrics.Session().RecordCreated()
	case new == "TERMINAL":
		s.mu.Lock()
		start, ok := s.started[sessionID]
		delete(s.started, sessionID)
		s.mu.Unlock()
		duration := time.Duration(0)
		if ok {
			duration = time.Since(start)
		}
		s.metrics.Session().RecordDestroyed("session_closed", duration)
	}
}

func (s *Sink) OnComplete(transferID uint32, bytes uint64, duration time.Duration) {
	s.metrics.Transfer().RecordComplete("transfer", bytes, duration)
}

func (s *Sink) OnFailed(transferID uint32, code diag.Code, message string) {
	s.metrics.Transfer().RecordFailed("transfer", code.String())
}
