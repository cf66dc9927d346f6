package transfer

import (
	"context"
	"errors"
	"io"
	"time"

	"github.com/hors-sit/pesitd/internal/diag"
	"github.com/hors-sit/pesitd/internal/fpdu"
	"github.com/hors-sit/pesitd/internal/statemachine"
)

// Send drives an initiator→responder transfer per spec.md §4.6.1. The
// session passed to New must already be connected at the transport layer
// (§4.3/§4.4); Send performs the CONNECT..RELEASE handshake itself.
func (e *Engine) Send(ctx context.Context, plan *Plan) (Result, error) {
	start := time.Now()
	transferID := plan.TransferID
	if transferID == 0 {
		transferID = NextTransferID()
	}

	m := statemachine.New(statemachine.Initiator)
	conn, err := e.negotiateConnect(plan, AccessWrite, m)
	if err != nil {
		return e.fail(transferID, err)
	}
	e.sess.Context().PeerID = conn.peerID
	idSrc, idDst := e.sess.Context().LocalID, conn.peerID

	fileSizeKnown := plan.FileSize >= 0

	create, err := fpdu.NewCreateBuilder().
		FileIdentification(0, plan.VirtualFile).
		TransferID(transferID).
		Priority(plan.Priority).
		MaxEntitySize(maxEntitySize(plan.RecordLength)).
		LogicalAttributes(plan.RecordLength).
		PhysicalAttributes(kib(plan.FileSize)).
		Historical(isoNow()).
		Build(idSrc, idDst)
	if err != nil {
		return e.fail(transferID, err)
	}
	reply, err := e.sendAndExpect(create, fpdu.ACK_CREATE, m, idSrc)
	if err != nil {
		return e.fail(transferID, err)
	}

	chunkSize := int(plan.RecordLength)
	if p, ok := reply.Param(fpdu.PI_25_MAX_ENTITY_SIZE); ok {
		negotiated := int(p.Uint32Value())
		if negotiated-6 < chunkSize {
			chunkSize = negotiated - 6
		}
	}
	if chunkSize <= 0 {
		return e.fail(transferID, errf("negotiated chunk size is non-positive"))
	}
	e.sess.Context().EffectiveChunk = chunkSize

	openFPDU := fpdu.New(fpdu.OPEN, idSrc, idDst)
	reply, err = e.sendAndExpect(openFPDU, fpdu.ACK_OPEN, m, idSrc)
	if err != nil {
		return e.fail(transferID, err)
	}

	key := TransferKey{Partner: plan.Demandeur, VirtualFile: plan.VirtualFile, TransferID: transferID}
	var syncNum uint32
	var startOffset int64
	if plan.Resume {
		rec, ok := plan.store().Load(key)
		if !ok || rec.Number == 0 {
			return e.fail(transferID, diag.New(diag.UnexpectedFPDU, "resume requested but no eligible sync point is stored", diag.ErrResumeIneligible))
		}
		syncNum = rec.Number
		startOffset = int64(rec.BytesTransferred)
	}

	write := fpdu.New(fpdu.WRITE, idSrc, idDst)
	reply, err = e.sendAndExpect(write, fpdu.ACK_WRITE, m, idSrc)
	if err != nil {
		return e.fail(transferID, err)
	}
	if p, ok := reply.Param(fpdu.PI_18_RESTART_POINT); ok {
		startOffset = int64(p.Uint32Value())
	}

	if startOffset > 0 {
		seeker, ok := plan.Source.(interface {
			Seek(offset int64, whence int) (int64, error)
		})
		if !ok {
			return e.fail(transferID, errf("restart point %d requires a seekable source", startOffset))
		}
		if _, err := seeker.Seek(startOffset, io.SeekStart); err != nil {
			return e.fail(transferID, errf("seeking source to restart point %d: %w", startOffset, err))
		}
	}

	bytesTransferred := uint64(startOffset)
	var bytesSinceSync uint32
	buf := make([]byte, chunkSize)

	for {
		if plan.Cancel != nil && plan.Cancel.Load() {
			abort := fpdu.New(fpdu.ABORT, idSrc, idDst, fpdu.Atomic(fpdu.PI_02_DIAG, sliceOf(diag.ProtocolWindow.Bytes())))
			_ = e.sess.SendFPDU(abort)
			m.Step(fpdu.ABORT)
			plan.store().Save(key, SyncPointRecord{Number: syncNum, BytesTransferred: bytesTransferred})
			return Result{Status: StatusCancelled, TransferID: transferID, BytesTransferred: bytesTransferred, LastSyncPoint: syncNum}, diag.ErrCancelled
		}

		n, readErr := plan.Source.Read(buf)
		if n > 0 {
			if plan.Limiter != nil {
				if err := plan.Limiter.WaitN(ctx, n); err != nil {
					return e.fail(transferID, err)
				}
			}
			dtf := fpdu.New(fpdu.DTF, idSrc, idDst)
			if err := e.sess.SendFPDUWithData(dtf, buf[:n]); err != nil {
				return e.fail(transferID, err)
			}
			bytesTransferred += uint64(n)
			bytesSinceSync += uint32(n)
			e.obs.OnBytes(transferID, bytesTransferred, plan.FileSize, fileSizeKnown, syncNum)

			if conn.syncEnabled && conn.syncIntervalBytes > 0 && bytesSinceSync >= conn.syncIntervalBytes {
				syncNum++
				syn := fpdu.New(fpdu.SYN, idSrc, idDst, fpdu.Uint(fpdu.PI_20_SYNC_NUM, 4, syncNum))
				if _, err := e.sendAndExpect(syn, fpdu.ACK_SYN, m, idSrc); err != nil {
					return e.fail(transferID, err)
				}
				rec := SyncPointRecord{Number: syncNum, BytesTransferred: bytesTransferred}
				if err := plan.store().Save(key, rec); err != nil {
					return e.fail(transferID, err)
				}
				bytesSinceSync = 0
			}
		}
		if readErr != nil {
			if errors.Is(readErr, io.EOF) {
				break
			}
			return e.fail(transferID, readErr)
		}
	}

	dtfEnd := fpdu.New(fpdu.DTF_END, idSrc, idDst)
	if err := e.sess.SendFPDU(dtfEnd); err != nil {
		return e.fail(transferID, err)
	}

	transEnd := fpdu.New(fpdu.TRANS_END, idSrc, idDst)
	if _, err := e.sendAndExpect(transEnd, fpdu.ACK_TRANS_END, m, idSrc); err != nil {
		return e.fail(transferID, err)
	}

	if err := e.closeSequence(m, idSrc, idDst); err != nil {
		return e.fail(transferID, err)
	}

	e.obs.OnComplete(transferID, bytesTransferred, time.Since(start))
	return Result{Status: StatusCompleted, TransferID: transferID, BytesTransferred: bytesTransferred, LastSyncPoint: syncNum}, nil
}

func (e *Engine) fail(transferID uint32, err error) (Result, error) {
	code := diag.UnexpectedFPDU
	var de *diag.Error
	if errors.As(err, &de) {
		code = de.Code
	}
	var ra *diag.RemoteAbort
	if errors.As(err, &ra) {
		code = ra.Diag
	}
	e.obs.OnFailed(transferID, code, err.Error())
	return Result{Status: StatusFailed, TransferID: transferID}, err
}
