// Package session implements the PeSIT Session (spec.md §4.4): the
// serial request/reply discipline layered over a transport.Channel,
// using internal/codec to frame and parse FPDUs.
package session

import (
	"fmt"
	"sync"
	"time"

	"github.com/hors-sit/pesitd/internal/codec"
	"github.com/hors-sit/pesitd/internal/diag"
	"github.com/hors-sit/pesitd/internal/fpdu"
	"github.com/hors-sit/pesitd/internal/transport"
)

// Context carries the negotiated parameters of a session: connection
// IDs, the partner on the other end, and the effective chunk size agreed
// during CREATE/ACK_CREATE (spec.md §4.6.1).
type Context struct {
	LocalID        uint16
	PeerID         uint16
	PartnerID      string
	EffectiveChunk int
	SyncIntervalKB uint16
	UnknownPolicy  codec.UnknownPolicy
}

// Session owns one transport.Channel and one Context. Operations are
// strictly serial — there is no pipelining (spec.md §4.4 "Ordering").
type Session struct {
	ch  transport.Channel
	ctx *Context

	mu           sync.Mutex
	lastActivity time.Time
}

// New wraps a channel and context as a Session.
func New(ch transport.Channel, ctx *Context) *Session {
	return &Session{ch: ch, ctx: ctx, lastActivity: time.Now()}
}

// Context returns the session's negotiated parameters.
func (s *Session) Context() *Context { return s.ctx }

// Channel exposes the underlying transport, e.g. for TCP_INFO sampling
// on error paths.
func (s *Session) Channel() transport.Channel { return s.ch }

// LastActivity returns the timestamp of the most recent send or receive,
// for idle-timeout enforcement by the caller (mirrors the teacher's
// per-request deadline reset in NFSConnection.Serve).
func (s *Session) LastActivity() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastActivity
}

func (s *Session) touch() {
	s.mu.Lock()
	s.lastActivity = time.Now()
	s.mu.Unlock()
}

// SendFPDU encodes and writes f, touching the activity clock.
func (s *Session) SendFPDU(f *fpdu.FPDU) error {
	if err := f.Validate(); err != nil {
		return err
	}
	wire, err := codec.Encode(f)
	if err != nil {
		return fmt.Errorf("session: encode %s: %w", f.Kind, err)
	}
	if err := s.ch.WriteAll(wire); err != nil {
		return fmt.Errorf("session: write %s: %w", f.Kind, err)
	}
	s.touch()
	return nil
}

// SendFPDUWithData sends f with data appended inside the frame. Only
// valid for the DTF family (spec.md §4.4).
func (s *Session) SendFPDUWithData(f *fpdu.FPDU, data []byte) error {
	if !f.Kind.IsDataTransfer() {
		return fmt.Errorf("session: %s is not a DTF-family kind", f.Kind)
	}
	dtf := fpdu.NewDTF(f.Kind, f.IDSrc, f.IDDst, data)
	return s.SendFPDU(dtf)
}

// SendFPDUWithAck writes f, then blocks for the next inbound FPDU and
// returns it. An ABORT response is surfaced as a *diag.RemoteAbort error.
func (s *Session) SendFPDUWithAck(f *fpdu.FPDU) (*fpdu.FPDU, error) {
	if err := s.SendFPDU(f); err != nil {
		return nil, err
	}
	reply, err := s.ReceiveFPDU()
	if err != nil {
		return nil, err
	}
	if reply.Kind == fpdu.ABORT {
		diagnostic := ""
		if d, ok := reply.Param(fpdu.PI_99_FREE_MESSAGE); ok {
			diagnostic = d.StringValue()
		}
		var code diag.Code
		if raw, ok := reply.Diag(); ok {
			code = diag.CodeFromBytes(raw)
		}
		return reply, &diag.RemoteAbort{Diag: code, Diagnostic: diagnostic}
	}
	return reply, nil
}

// ReceiveFPDU blocks for one framed FPDU and parses it.
func (s *Session) ReceiveFPDU() (*fpdu.FPDU, error) {
	body, err := s.receiveRaw()
	if err != nil {
		return nil, err
	}
	defer releaseFrame(body)
	f, err := codec.Decode(body, s.ctx.UnknownPolicy)
	if err != nil {
		return nil, err
	}
	s.touch()
	return f, nil
}

// ReceiveRawFPDU blocks for one frame and returns its raw bytes (the
// frame body, after the length prefix) without parsing, for a caller
// that extracts a DTF payload without re-parsing the whole FPDU
// (spec.md §4.4). The transfer engine's receive path uses ReceiveFPDU.
func (s *Session) ReceiveRawFPDU() ([]byte, error) {
	body, err := s.receiveRaw()
	if err != nil {
		return nil, err
	}
	out := make([]byte, len(body))
	copy(out, body)
	releaseFrame(body)
	s.touch()
	return out, nil
}

func (s *Session) receiveRaw() ([]byte, error) {
	return readFrame(s.ch)
}

// Close closes the underlying channel.
func (s *Session) Close() error {
	return s.ch.Close()
}
