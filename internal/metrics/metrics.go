// Package metrics defines the daemon-wide metrics surface (spec.md §4.9):
// a narrow interface the transfer engine, session state machine and
// supervisor call into, independent of the backing collector. The
// concrete Prometheus implementation lives in internal/metrics/prometheus;
// tests and callers that don't care about metrics use Noop.
package metrics

import "time"

// Transfer tracks per-transfer counters and histograms: bytes moved,
// completions/failures by diagnostic code, and sync-point activity.
type Transfer interface {
	RecordBytes(direction string, n uint64)
	RecordComplete(direction string, bytes uint64, duration time.Duration)
	RecordFailed(direction string, diagCode string)
	RecordSyncPoint(direction string)
	SetActiveTransfers(n int)
}

// Session tracks connection/session lifecycle: how many are open, how
// long they live, and why they end.
type Session interface {
	RecordCreated()
	RecordDestroyed(reason string, duration time.Duration)
	SetActiveSessions(n int)
}

// Set bundles the metric groups the daemon wires through its components.
// Namespacing and registration are the concrete implementation's concern.
type Set interface {
	Transfer() Transfer
	Session() Session
}

// noop is the Set used when no collector is configured.
type noop struct{}

func (noop) Transfer() Transfer { return noopTransfer{} }
func (noop) Session() Session   { return noopSession{} }

type noopTransfer struct{}

func (noopTransfer) RecordBytes(string, uint64)                   {}
func (noopTransfer) RecordComplete(string, uint64, time.Duration) {}
func (noopTransfer) RecordFailed(string, string)                  {}
func (noopTransfer) RecordSyncPoint(string)                        {}
func (noopTransfer) SetActiveTransfers(int)                        {}

type noopSession struct{}

func (noopSession) RecordCreated()                        {}
func (noopSession) RecordDestroyed(string, time.Duration) {}
func (noopSession) SetActiveSessions(int)                 {}

// Noop returns a Set whose every method is a no-op.
func Noop() Set { return noop{} }
