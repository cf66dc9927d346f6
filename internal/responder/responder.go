// Package responder implements the responder role of the Transfer Engine
// (spec.md §4.6): the CONNECT..RELEASE sequence driven from the accepting
// side of a session, dispatching into a receive (partner CREATE, daemon
// writes to a Sink) or send (partner SELECT, daemon reads from a Source)
// once the inbound request clears internal/validator. It plugs straight
// into internal/supervisor.Handler, mirroring runFakeResponder/
// runFakeSender in internal/transfer's tests — the same FPDU sequence,
// but driven for real against configured stores instead of a test double.
package responder

import (
	"context"
	"errors"
	"io"
	"time"

	"golang.org/x/time/rate"

	"github.com/hors-sit/pesitd/internal/diag"
	"github.com/hors-sit/pesitd/internal/fpdu"
	"github.com/hors-sit/pesitd/internal/logger"
	"github.com/hors-sit/pesitd/internal/observer"
	"github.com/hors-sit/pesitd/internal/session"
	"github.com/hors-sit/pesitd/internal/statemachine"
	"github.com/hors-sit/pesitd/internal/streamio"
	"github.com/hors-sit/pesitd/internal/transfer"
	"github.com/hors-sit/pesitd/internal/validator"
)

// SourceOpener resolves a virtual file id to a readable stream for a
// partner-initiated SELECT/READ (the daemon sends).
type SourceOpener func(virtualFileID string) (streamio.Source, error)

// SinkOpener resolves a virtual file id to a writable stream for a
// partner-initiated CREATE/WRITE (the daemon receives). resumeFrom is the
// stored restart offset (0 if this is a fresh transfer); backends that
// can avoid truncating an in-progress destination should honor it.
type SinkOpener func(virtualFileID string, resumeFrom uint32) (streamio.Sink, error)

// Config wires a Responder to its dependencies.
type Config struct {
	Validator  *validator.Validator
	Store      transfer.SyncPointStore
	OpenSource SourceOpener
	OpenSink   SinkOpener

	// Limiter optionally throttles inbound/outbound DTF bytes, shared
	// across transfers the way config.RateLimiter builds it.
	Limiter *rate.Limiter

	Obs observer.Sink
}

// Responder drives one accepted connection's protocol exchange as the
// responder side, stopping at the first protocol violation or I/O error.
type Responder struct {
	cfg Config
}

// New constructs a Responder. A nil Store becomes a fresh
// transfer.MemorySyncPointStore; a nil Obs becomes observer.Noop.
func New(cfg Config) *Responder {
	if cfg.Store == nil {
		cfg.Store = transfer.NewMemorySyncPointStore()
	}
	if cfg.Obs == nil {
		cfg.Obs = observer.Noop{}
	}
	return &Responder{cfg: cfg}
}

// Handle implements supervisor.Handler. It runs CONNECT validation, then
// CREATE (partner writes) or SELECT (partner reads) validation, then
// drives the resulting transfer to TRANS_END/CLOSE/DESELECT/RELEASE.
func (r *Responder) Handle(ctx context.Context, sess *session.Session, sessionID string) {
	m := statemachine.New(statemachine.Responder)

	connect, err := sess.ReceiveFPDU()
	if err != nil {
		logger.Debug("responder: failed to read CONNECT", "session_id", sessionID, "error", err)
		return
	}
	if connect.Kind != fpdu.CONNECT {
		r.reject(sess, connect.IDSrc, fpdu.RCONNECT, diag.UnexpectedFPDU, "expected CONNECT")
		return
	}
	m.Step(fpdu.CONNECT)

	localID := sess.Context().LocalID
	peerID := connect.IDSrc
	sess.Context().PeerID = peerID

	outcome := r.cfg.Validator.ValidateConnect(connect)
	if !outcome.OK {
		r.reject(sess, peerID, fpdu.RCONNECT, outcome.Code, outcome.Message)
		return
	}

	partnerID := ""
	if p, ok := connect.Param(fpdu.PI_03_DEMANDEUR); ok {
		partnerID = p.StringValue()
	}

	var syncIntervalBytes uint32
	ackParams := make([]fpdu.Param, 0, 1)
	if p, ok := connect.Param(fpdu.PI_07_SYNC_POINTS); ok && len(p.Value) == 3 {
		intervalKB := uint16(p.Value[0])<<8 | uint16(p.Value[1])
		syncIntervalBytes = uint32(intervalKB) * 1024
		ackParams = append(ackParams, p)
	}
	if err := sess.SendFPDU(fpdu.New(fpdu.ACONNECT, localID, peerID, ackParams...)); err != nil {
		logger.Debug("responder: failed to send ACONNECT", "session_id", sessionID, "error", err)
		return
	}

	f, err := sess.ReceiveFPDU()
	if err != nil {
		logger.Debug("responder: failed to read CREATE/SELECT", "session_id", sessionID, "error", err)
		return
	}

	res := m.Step(f.Kind)
	switch {
	case res.Aborted:
		if f.Kind != fpdu.ABORT {
			r.abortWith(sess, peerID, res.Diag)
		}
	case f.Kind == fpdu.CREATE:
		r.receiveFromPartner(ctx, sess, m, sessionID, partnerID, f, syncIntervalBytes)
	case f.Kind == fpdu.SELECT:
		r.sendToPartner(ctx, sess, m, sessionID, partnerID, f, syncIntervalBytes)
	default:
		// Valid per the state table (e.g. MSG/MSGDM/RELEASE) but this
		// responder has no handler for it.
		r.reject(sess, peerID, fpdu.ABORT, diag.UnexpectedFPDU, "expected CREATE or SELECT")
		m.Step(fpdu.ABORT)
	}
}

func (r *Responder) reject(sess *session.Session, peerID uint16, kind fpdu.Kind, code diag.Code, message string) {
	b := code.Bytes()
	_ = sess.SendFPDU(fpdu.New(kind, sess.Context().LocalID, peerID,
		fpdu.Atomic(fpdu.PI_02_DIAG, b[:]),
		fpdu.Str(fpdu.PI_99_FREE_MESSAGE, message)))
}

// abortWith transmits ABORT carrying the given diag code, the wire
// response to any invalid state transition (spec.md §4.5).
func (r *Responder) abortWith(sess *session.Session, peerID uint16, code [3]byte) {
	_ = sess.SendFPDU(fpdu.New(fpdu.ABORT, sess.Context().LocalID, peerID, fpdu.Atomic(fpdu.PI_02_DIAG, code[:])))
}

// validate steps f through the state machine and transmits ABORT+D3_301
// if the transition is invalid or f isn't the kind this call site needs
// next — the responder's side of Testable Property 3's closure case.
func (r *Responder) validate(sess *session.Session, m *statemachine.Machine, peerID uint16, f *fpdu.FPDU, want fpdu.Kind) bool {
	res := m.Step(f.Kind)
	switch {
	case res.Aborted:
		if f.Kind != fpdu.ABORT {
			r.abortWith(sess, peerID, res.Diag)
		}
		return false
	case f.Kind != want:
		r.abortWith(sess, peerID, diag.UnexpectedFPDU.Bytes())
		m.Step(fpdu.ABORT)
		return false
	}
	return true
}

// expect reads the next FPDU and validates it. ok is false if handling
// should stop (read error, or validate rejected the frame).
func (r *Responder) expect(sess *session.Session, m *statemachine.Machine, peerID uint16, want fpdu.Kind) (*fpdu.FPDU, bool) {
	f, err := sess.ReceiveFPDU()
	if err != nil {
		return nil, false
	}
	if !r.validate(sess, m, peerID, f, want) {
		return nil, false
	}
	return f, true
}

// receiveFromPartner handles a partner CREATE: the partner is writing, so
// the daemon opens a Sink and receives DTF frames (spec.md §4.6.1 mirrored
// from the responder's side).
func (r *Responder) receiveFromPartner(ctx context.Context, sess *session.Session, m *statemachine.Machine, sessionID, partnerID string, create *fpdu.FPDU, _ uint32) {
	localID, peerID := sess.Context().LocalID, sess.Context().PeerID

	virtualFileID := fileIdentification(create)
	transferID := uint32(0)
	if p, ok := create.Param(fpdu.PI_13_TRANSFER_ID); ok {
		transferID = p.Uint32Value()
	}
	outcome := r.cfg.Validator.ValidateFileOp(partnerID, virtualFileID, transfer.AccessWrite)
	if !outcome.OK {
		r.reject(sess, peerID, fpdu.ABORT, outcome.Code, outcome.Message)
		return
	}
	if r.cfg.OpenSink == nil {
		r.reject(sess, peerID, fpdu.ABORT, diag.FileUnknown, "no sink configured")
		return
	}

	key := transfer.TransferKey{Partner: partnerID, VirtualFile: virtualFileID, TransferID: transferID}
	var restartPoint uint32
	if rec, ok := r.cfg.Store.Load(key); ok {
		restartPoint = uint32(rec.BytesTransferred)
	}

	sink, err := r.cfg.OpenSink(virtualFileID, restartPoint)
	if err != nil {
		r.reject(sess, peerID, fpdu.ABORT, diag.FileUnknown, err.Error())
		return
	}
	defer sink.Close()

	maxEntity, _ := create.Param(fpdu.PI_25_MAX_ENTITY_SIZE)
	if err := sess.SendFPDU(fpdu.New(fpdu.ACK_CREATE, localID, peerID, maxEntity)); err != nil {
		return
	}

	if _, ok := r.expect(sess, m, peerID, fpdu.OPEN); !ok {
		return
	}
	if err := sess.SendFPDU(fpdu.New(fpdu.ACK_OPEN, localID, peerID)); err != nil {
		return
	}

	if _, ok := r.expect(sess, m, peerID, fpdu.WRITE); !ok {
		return
	}
	if err := sess.SendFPDU(fpdu.New(fpdu.ACK_WRITE, localID, peerID, fpdu.Uint(fpdu.PI_18_RESTART_POINT, 4, restartPoint))); err != nil {
		return
	}

	start := time.Now()
	bytesTransferred := uint64(restartPoint)
	var syncNum uint32
	fileSize := int64(-1)
	if pgi, ok := create.Param(fpdu.PGI_40_PHYSICAL_ATTRIBUTES); ok {
		if maxRes, ok := pgi.FindChild(fpdu.PI_42_MAX_RESERVATION); ok {
			fileSize = int64(maxRes.Uint32Value()) * 1024
		}
	}

	for {
		f, err := sess.ReceiveFPDU()
		if err != nil {
			return
		}
		res := m.Step(f.Kind)
		if res.Aborted {
			if f.Kind != fpdu.ABORT {
				r.abortWith(sess, peerID, res.Diag)
			}
			r.cfg.Obs.OnFailed(transferID, diag.CodeFromBytes(res.Diag), "unexpected FPDU during data transfer")
			return
		}
		switch {
		case f.Kind == fpdu.DTF_END:
			goto drained
		case f.Kind == fpdu.SYN:
			syncNum++
			ack := fpdu.New(fpdu.ACK_SYN, localID, peerID, fpdu.Uint(fpdu.PI_20_SYNC_NUM, 4, syncNum))
			if err := sess.SendFPDU(ack); err != nil {
				return
			}
			_ = r.cfg.Store.Save(key, transfer.SyncPointRecord{Number: syncNum, BytesTransferred: bytesTransferred})
		case f.Kind == fpdu.IDT:
			ack := fpdu.New(fpdu.ACK_IDT, localID, peerID)
			if err := sess.SendFPDU(ack); err != nil {
				return
			}
		case f.Kind == fpdu.ABORT:
			r.cfg.Obs.OnFailed(transferID, diag.UnexpectedFPDU, "partner aborted transfer")
			return
		case f.Kind.IsDataTransfer():
			if len(f.Data) > 0 {
				if r.cfg.Limiter != nil {
					if err := r.cfg.Limiter.WaitN(ctx, len(f.Data)); err != nil {
						return
					}
				}
				if _, err := sink.Write(f.Data); err != nil {
					r.cfg.Obs.OnFailed(transferID, diag.UnexpectedFPDU, err.Error())
					return
				}
				bytesTransferred += uint64(len(f.Data))
				r.cfg.Obs.OnBytes(transferID, bytesTransferred, fileSize, fileSize >= 0, syncNum)
			}
		default:
			// Unreachable: the table only admits SYN/IDT/DTF*/DTF_END here.
			r.abortWith(sess, peerID, diag.UnexpectedFPDU.Bytes())
			m.Step(fpdu.ABORT)
			return
		}
	}

drained:
	if _, ok := r.expect(sess, m, peerID, fpdu.TRANS_END); !ok {
		return
	}
	if err := sess.SendFPDU(fpdu.New(fpdu.ACK_TRANS_END, localID, peerID)); err != nil {
		return
	}
	r.closeSequence(sess, m, localID, peerID)
	r.cfg.Obs.OnComplete(transferID, bytesTransferred, time.Since(start))
}

// sendToPartner handles a partner SELECT: the partner is reading, so the
// daemon opens a Source and pushes DTF frames (spec.md §4.6.2 mirrored).
func (r *Responder) sendToPartner(ctx context.Context, sess *session.Session, m *statemachine.Machine, sessionID, partnerID string, sel *fpdu.FPDU, syncIntervalBytes uint32) {
	localID, peerID := sess.Context().LocalID, sess.Context().PeerID

	virtualFileID := fileIdentification(sel)
	transferID := transfer.NextTransferID()
	chunkSize := 4096
	if p, ok := sel.Param(fpdu.PI_25_MAX_ENTITY_SIZE); ok {
		if negotiated := int(p.Uint32Value()) - 6; negotiated > 0 {
			chunkSize = negotiated
		}
	}

	outcome := r.cfg.Validator.ValidateFileOp(partnerID, virtualFileID, transfer.AccessRead)
	if !outcome.OK {
		r.reject(sess, peerID, fpdu.ABORT, outcome.Code, outcome.Message)
		return
	}
	if r.cfg.OpenSource == nil {
		r.reject(sess, peerID, fpdu.ABORT, diag.FileUnknown, "no source configured")
		return
	}
	source, err := r.cfg.OpenSource(virtualFileID)
	if err != nil {
		r.reject(sess, peerID, fpdu.ABORT, diag.FileUnknown, err.Error())
		return
	}
	defer source.Close()

	maxEntity, _ := sel.Param(fpdu.PI_25_MAX_ENTITY_SIZE)
	if err := sess.SendFPDU(fpdu.New(fpdu.ACK_SELECT, localID, peerID, maxEntity)); err != nil {
		return
	}

	if _, ok := r.expect(sess, m, peerID, fpdu.OPEN); !ok {
		return
	}
	if err := sess.SendFPDU(fpdu.New(fpdu.ACK_OPEN, localID, peerID)); err != nil {
		return
	}

	f, ok := r.expect(sess, m, peerID, fpdu.READ)
	if !ok {
		return
	}
	var restartPoint uint32
	if p, ok := f.Param(fpdu.PI_18_RESTART_POINT); ok {
		restartPoint = p.Uint32Value()
	}
	if restartPoint > 0 {
		if seeker, ok := source.(io.Seeker); ok {
			if _, err := seeker.Seek(int64(restartPoint), io.SeekStart); err != nil {
				r.reject(sess, peerID, fpdu.ABORT, diag.UnexpectedFPDU, "restart point seek failed")
				return
			}
		}
	}
	if err := sess.SendFPDU(fpdu.New(fpdu.ACK_READ, localID, peerID)); err != nil {
		return
	}

	start := time.Now()
	bytesTransferred := uint64(restartPoint)
	var syncNum uint32
	var bytesSinceSync uint32
	fileSize, fileSizeKnown := source.Size()
	buf := make([]byte, chunkSize)

	key := transfer.TransferKey{Partner: partnerID, VirtualFile: virtualFileID, TransferID: transferID}

	for {
		n, readErr := source.Read(buf)
		if n > 0 {
			if r.cfg.Limiter != nil {
				if err := r.cfg.Limiter.WaitN(ctx, n); err != nil {
					return
				}
			}
			if err := sess.SendFPDUWithData(fpdu.New(fpdu.DTF, localID, peerID), buf[:n]); err != nil {
				r.cfg.Obs.OnFailed(transferID, diag.UnexpectedFPDU, err.Error())
				return
			}
			bytesTransferred += uint64(n)
			bytesSinceSync += uint32(n)
			r.cfg.Obs.OnBytes(transferID, bytesTransferred, fileSize, fileSizeKnown, syncNum)

			if syncIntervalBytes > 0 && bytesSinceSync >= syncIntervalBytes {
				syncNum++
				syn := fpdu.New(fpdu.SYN, localID, peerID, fpdu.Uint(fpdu.PI_20_SYNC_NUM, 4, syncNum))
				reply, err := sess.SendFPDUWithAck(syn)
				if err != nil {
					return
				}
				if !r.validate(sess, m, peerID, reply, fpdu.ACK_SYN) {
					return
				}
				_ = r.cfg.Store.Save(key, transfer.SyncPointRecord{Number: syncNum, BytesTransferred: bytesTransferred})
				bytesSinceSync = 0
			}
		}
		if readErr != nil {
			if errors.Is(readErr, io.EOF) {
				break
			}
			r.cfg.Obs.OnFailed(transferID, diag.UnexpectedFPDU, readErr.Error())
			return
		}
	}

	if err := sess.SendFPDU(fpdu.New(fpdu.DTF_END, localID, peerID)); err != nil {
		return
	}

	if _, ok := r.expect(sess, m, peerID, fpdu.TRANS_END); !ok {
		return
	}
	if err := sess.SendFPDU(fpdu.New(fpdu.ACK_TRANS_END, localID, peerID)); err != nil {
		return
	}
	r.closeSequence(sess, m, localID, peerID)
	r.cfg.Obs.OnComplete(transferID, bytesTransferred, time.Since(start))
}

// closeSequence answers the initiator's CLOSE/DESELECT/RELEASE tail,
// mirroring transfer.Engine.closeSequence's initiator-side counterpart.
func (r *Responder) closeSequence(sess *session.Session, m *statemachine.Machine, localID, peerID uint16) {
	if _, ok := r.expect(sess, m, peerID, fpdu.CLOSE); !ok {
		return
	}
	if err := sess.SendFPDU(fpdu.New(fpdu.ACK_CLOSE, localID, peerID)); err != nil {
		return
	}

	if _, ok := r.expect(sess, m, peerID, fpdu.DESELECT); !ok {
		return
	}
	if err := sess.SendFPDU(fpdu.New(fpdu.ACK_DESELECT, localID, peerID)); err != nil {
		return
	}

	if _, ok := r.expect(sess, m, peerID, fpdu.RELEASE); !ok {
		return
	}
	_ = sess.SendFPDU(fpdu.New(fpdu.RELCONF, localID, peerID))
}

func fileIdentification(f *fpdu.FPDU) string {
	if pgi, ok := f.Param(fpdu.PGI_09_FILE_IDENTIFICATION); ok {
		if name, ok := pgi.FindChild(fpdu.PI_12_FILE_NAME); ok {
			return name.StringValue()
		}
	}
	return ""
}
