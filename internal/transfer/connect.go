package transfer

import (
	"fmt"
	"time"

	"github.com/hors-sit/pesitd/internal/diag"
	"github.com/hors-sit/pesitd/internal/fpdu"
	"github.com/hors-sit/pesitd/internal/statemachine"
)

// replyError turns an unexpected reply kind into a *diag.Error, pulling
// PI_02_DIAG and PI_99_FREE_MESSAGE out of the reply when present.
func replyError(want fpdu.Kind, reply *fpdu.FPDU) error {
	code := diag.UnexpectedFPDU
	if raw, ok := reply.Diag(); ok {
		code = diag.CodeFromBytes(raw)
	}
	msg := fmt.Sprintf("expected %s, got %s", want, reply.Kind)
	if m, ok := reply.Param(fpdu.PI_99_FREE_MESSAGE); ok {
		msg = m.StringValue()
	}
	return diag.New(code, msg, nil)
}

// abort transmits ABORT carrying code, the wire response the initiator
// owes its peer on an invalid state transition (spec.md §4.5), mirroring
// internal/responder.Responder.abortWith.
func (e *Engine) abort(idSrc, idDst uint16, code diag.Code) {
	b := code.Bytes()
	_ = e.sess.SendFPDU(fpdu.New(fpdu.ABORT, idSrc, idDst, fpdu.Atomic(fpdu.PI_02_DIAG, b[:])))
}

// sendAndExpect sends f and validates the reply against the state
// machine and the wanted kind, transmitting ABORT+D3_301 on either an
// invalid transition or a reply that doesn't match want — the
// initiator's side of Testable Property 3's closure case. A *diag.RemoteAbort
// from SendFPDUWithAck (the peer itself sent ABORT) is returned as-is,
// no reply needed.
func (e *Engine) sendAndExpect(f *fpdu.FPDU, want fpdu.Kind, m *statemachine.Machine, idSrc uint16) (*fpdu.FPDU, error) {
	reply, err := e.sess.SendFPDUWithAck(f)
	if err != nil {
		return nil, err
	}
	res := m.Step(reply.Kind)
	if res.Aborted || reply.Kind != want {
		e.abort(idSrc, reply.IDSrc, diag.UnexpectedFPDU)
		if !res.Aborted {
			m.Step(fpdu.ABORT)
		}
		return nil, replyError(want, reply)
	}
	return reply, nil
}

// recv blocks for the next inbound FPDU and validates it against the
// state machine, transmitting ABORT+D3_301 on an invalid transition.
func (e *Engine) recv(m *statemachine.Machine, idSrc uint16) (*fpdu.FPDU, error) {
	f, err := e.sess.ReceiveFPDU()
	if err != nil {
		return nil, err
	}
	res := m.Step(f.Kind)
	if res.Aborted {
		if f.Kind != fpdu.ABORT {
			e.abort(idSrc, f.IDSrc, diag.CodeFromBytes(res.Diag))
		}
		return nil, diag.New(diag.CodeFromBytes(res.Diag), fmt.Sprintf("unexpected %s", f.Kind), nil)
	}
	return f, nil
}

// connectResult is what a successful CONNECT/ACONNECT round-trip yields.
type connectResult struct {
	peerID             uint16
	syncIntervalBytes  uint32
	syncEnabled        bool
}

// negotiateConnect issues CONNECT with the given access type and returns
// the peer's assigned connection id plus the negotiated sync-point
// interval (spec.md §4.6.1 steps 1-2).
func (e *Engine) negotiateConnect(plan *Plan, accessType byte, m *statemachine.Machine) (connectResult, error) {
	desired := syncIntervalBytes(plan)

	b := fpdu.NewConnectBuilder().
		Demandeur(plan.Demandeur).
		Serveur(plan.Serveur)
	if plan.Password != "" {
		b = b.AccessControl(plan.Password)
	}
	b = b.Version(2)
	if desired > 0 {
		b = b.SyncPoints(uint16(desired/1024), plan.AckWindow)
	}
	b = b.AccessType(accessType)

	connect, err := b.Build(e.sess.Context().LocalID)
	if err != nil {
		return connectResult{}, err
	}

	reply, err := e.sendAndExpect(connect, fpdu.ACONNECT, m, e.sess.Context().LocalID)
	if err != nil {
		return connectResult{}, err
	}

	res := connectResult{peerID: reply.IDSrc}
	if p, ok := reply.Param(fpdu.PI_07_SYNC_POINTS); ok && len(p.Value) == 3 {
		intervalKB := uint16(p.Value[0])<<8 | uint16(p.Value[1])
		res.syncEnabled = intervalKB > 0
		res.syncIntervalBytes = uint32(intervalKB) * 1024
	} else {
		res.syncEnabled = desired > 0
		res.syncIntervalBytes = desired
	}
	return res, nil
}

// closeSequence runs CLOSE/DESELECT/RELEASE in order and closes the
// transport, mirroring the tail of both spec.md §4.6.1 step 8 and §4.6.2.
func (e *Engine) closeSequence(m *statemachine.Machine, idSrc, idDst uint16) error {
	close := fpdu.New(fpdu.CLOSE, idSrc, idDst, fpdu.Atomic(fpdu.PI_02_DIAG, sliceOf(diag.Success.Bytes())))
	if _, err := e.sendAndExpect(close, fpdu.ACK_CLOSE, m, idSrc); err != nil {
		return err
	}

	deselect := fpdu.New(fpdu.DESELECT, idSrc, idDst)
	if _, err := e.sendAndExpect(deselect, fpdu.ACK_DESELECT, m, idSrc); err != nil {
		return err
	}

	release := fpdu.New(fpdu.RELEASE, idSrc, idDst)
	if _, err := e.sendAndExpect(release, fpdu.RELCONF, m, idSrc); err != nil {
		return err
	}

	return e.sess.Close()
}

func sliceOf(b [3]byte) []byte { return b[:] }

func isoNow() string {
	return time.Now().UTC().Format(time.RFC3339)
}
