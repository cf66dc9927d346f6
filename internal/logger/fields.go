package logger

import (
	"log/slog"
)

// Standard field keys for structured logging across the session, state
// machine, transfer engine and supervisor packages. Use these consistently
// so log lines can be aggregated and queried by connection/session/transfer.
const (
	KeyTraceID = "trace_id" // OpenTelemetry-style trace ID for request correlation
	KeySpanID  = "span_id"

	KeyConnectionID = "connection_id" // TCP/TLS connection identifier
	KeySessionID    = "session_id"    // PeSIT session identifier (xid)
	KeyTransferID   = "transfer_id"   // 24-bit PeSIT transfer ID
	KeyPartnerID    = "partner_id"    // PI_03/PI_04 partner identifier
	KeyVirtualFile  = "virtual_file"  // Virtual file ID

	KeyFPDUKind = "fpdu_kind" // FPDU kind (CONNECT, DTF, ...)
	KeyState    = "state"     // State machine state
	KeyDiag     = "diag"      // PeSIT diagnostic code (D3_301, ...)

	KeyClientIP = "client_ip"
	KeyBytes    = "bytes"
	KeySyncNum  = "sync_num"

	KeyDurationMs = "duration_ms"
	KeyError      = "error"
)

// TraceID returns a slog.Attr for the correlation trace ID.
func TraceID(id string) slog.Attr { return slog.String(KeyTraceID, id) }

// SpanID returns a slog.Attr for the correlation span ID.
func SpanID(id string) slog.Attr { return slog.String(KeySpanID, id) }

// ConnectionID returns a slog.Attr for a TCP/TLS connection identifier.
func ConnectionID(id string) slog.Attr { return slog.String(KeyConnectionID, id) }

// SessionID returns a slog.Attr for a session identifier.
func SessionID(id string) slog.Attr { return slog.String(KeySessionID, id) }

// TransferID returns a slog.Attr for a transfer identifier.
func TransferID(id uint32) slog.Attr { return slog.Uint64(KeyTransferID, uint64(id)) }

// PartnerID returns a slog.Attr for a partner identifier.
func PartnerID(id string) slog.Attr { return slog.String(KeyPartnerID, id) }

// VirtualFile returns a slog.Attr for a virtual file identifier.
func VirtualFile(id string) slog.Attr { return slog.String(KeyVirtualFile, id) }

// FPDUKind returns a slog.Attr for an FPDU kind name.
func FPDUKind(kind string) slog.Attr { return slog.String(KeyFPDUKind, kind) }

// State returns a slog.Attr for a state machine state name.
func State(s string) slog.Attr { return slog.String(KeyState, s) }

// Diag returns a slog.Attr for a PeSIT diagnostic code.
func Diag(code string) slog.Attr { return slog.String(KeyDiag, code) }

// ClientIP returns a slog.Attr for the remote peer's address.
func ClientIP(addr string) slog.Attr { return slog.String(KeyClientIP, addr) }

// Bytes returns a slog.Attr for a byte count.
func Bytes(n uint64) slog.Attr { return slog.Uint64(KeyBytes, n) }

// SyncNum returns a slog.Attr for a sync-point number.
func SyncNum(n uint32) slog.Attr { return slog.Uint64(KeySyncNum, uint64(n)) }

// DurationMs returns a slog.Attr for a duration in milliseconds.
func DurationMs(ms float64) slog.Attr { return slog.Float64(KeyDurationMs, ms) }

// Err returns a slog.Attr for an error, or a zero Attr if err is nil.
func Err(err error) slog.Attr {
	if err == nil {
		return slog.Attr{}
	}
	return slog.String(KeyError, err.Error())
}
