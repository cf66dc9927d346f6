// Package diag defines the PeSIT-E diagnostic code taxonomy (spec.md §6.2,
// §7) and the typed error that carries one through the codec, state
// machine, transfer engine and validator.
//
// A diag.Code is the 3-byte value carried in PI_02_DIAG. It is always
// preserved verbatim in failure records alongside a human-readable
// message, per spec.md §7 "User-visible behaviour".
package diag

import "fmt"

// Code is a PeSIT-E diagnostic code, encoded on the wire as 3 bytes
// (class, code_high, code_low) in PI_02_DIAG.
type Code struct {
	Class byte
	High  byte
	Low   byte
}

// Bytes returns the 3-byte wire encoding of the code.
func (c Code) Bytes() [3]byte {
	return [3]byte{c.Class, c.High, c.Low}
}

// String renders the code in the "Dclass_high-low" form used throughout
// spec.md (e.g. "D3_301").
func (c Code) String() string {
	return fmt.Sprintf("D%d_%d%02d", c.Class, c.High, c.Low)
}

// CodeFromBytes decodes a 3-byte PI_02_DIAG value.
func CodeFromBytes(b [3]byte) Code {
	return Code{Class: b[0], High: b[1], Low: b[2]}
}

// The diagnostic codes named in spec.md §6.2 (subset).
var (
	Success          = Code{Class: 0, High: 0, Low: 0}   // D0_000
	FileUnknown      = Code{Class: 2, High: 2, Low: 5}   // D2_205
	FileDirection    = Code{Class: 2, High: 2, Low: 26}  // D2_226
	ProtocolWindow   = Code{Class: 3, High: 3, Low: 0}   // D3_300
	UnexpectedFPDU   = Code{Class: 3, High: 3, Low: 1}   // D3_301
	PartnerAuth      = Code{Class: 3, High: 3, Low: 4}   // D3_304
	VersionNotSupp   = Code{Class: 3, High: 3, Low: 8}   // D3_308
)

// Error is the typed error surfaced by the codec, state machine, transfer
// engine and validator. It satisfies errors.Is/errors.As via Unwrap so
// callers can match on a specific sentinel cause while still recovering
// the wire-level diagnostic code.
type Error struct {
	Code    Code
	Message string
	Cause   error
}

// New constructs a diag.Error.
func New(code Code, message string, cause error) *Error {
	return &Error{Code: code, Message: message, Cause: cause}
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap allows errors.Is/errors.As to see through to the underlying cause.
func (e *Error) Unwrap() error { return e.Cause }

// Sentinel wire/codec errors (spec.md §4.1).
var (
	ErrTruncatedFrame     = fmt.Errorf("pesit: truncated frame")
	ErrTruncatedParameter = fmt.Errorf("pesit: truncated parameter")
	ErrUnknownPI          = fmt.Errorf("pesit: unknown parameter identifier")
	ErrUnknownPGI         = fmt.Errorf("pesit: unknown parameter group identifier")
	ErrUnknownFPDUKind    = fmt.Errorf("pesit: unknown fpdu kind")
)

// Sentinel engine/session errors (spec.md §5, §7).
var (
	ErrRemoteAbort        = fmt.Errorf("pesit: remote sent ABORT")
	ErrCancelled          = fmt.Errorf("pesit: transfer cancelled")
	ErrResumeIneligible   = fmt.Errorf("pesit: transfer is not eligible for resume")
	ErrSyncWindowExceeded = fmt.Errorf("pesit: sync acknowledgement window exceeded")
)

// RemoteAbort carries the diagnostic reported by the peer's ABORT FPDU.
type RemoteAbort struct {
	Diag       Code
	Diagnostic string
}

func (e *RemoteAbort) Error() string {
	return fmt.Sprintf("pesit: remote abort %s: %s", e.Diag, e.Diagnostic)
}

func (e *RemoteAbort) Unwrap() error { return ErrRemoteAbort }
