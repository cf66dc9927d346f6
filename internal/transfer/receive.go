package transfer

import (
	"context"
	"time"

	"github.com/hors-sit/pesitd/internal/diag"
	"github.com/hors-sit/pesitd/internal/fpdu"
	"github.com/hors-sit/pesitd/internal/statemachine"
)

// Receive drives an initiator-reads transfer per spec.md §4.6.2: the
// initiator pulls a file from the responder and writes it to plan.Sink.
func (e *Engine) Receive(ctx context.Context, plan *Plan) (Result, error) {
	start := time.Now()
	transferID := plan.TransferID
	if transferID == 0 {
		transferID = NextTransferID()
	}

	m := statemachine.New(statemachine.Initiator)
	conn, err := e.negotiateConnect(plan, AccessRead, m)
	if err != nil {
		return e.fail(transferID, err)
	}
	e.sess.Context().PeerID = conn.peerID
	idSrc, idDst := e.sess.Context().LocalID, conn.peerID

	fileSizeKnown := plan.FileSize >= 0

	selectFPDU := fpdu.New(fpdu.SELECT, idSrc, idDst,
		fpdu.Group(fpdu.PGI_09_FILE_IDENTIFICATION,
			fpdu.Uint(fpdu.PI_11_FILE_TYPE, 1, 0),
			fpdu.Str(fpdu.PI_12_FILE_NAME, plan.VirtualFile),
		),
		fpdu.Uint(fpdu.PI_14_REQUESTED_ATTRIBUTES, 1, 0),
		fpdu.Uint(fpdu.PI_17_PRIORITY, 1, uint32(plan.Priority)),
		fpdu.Uint(fpdu.PI_25_MAX_ENTITY_SIZE, 2, uint32(maxEntitySize(plan.RecordLength))),
	)
	reply, err := e.sendAndExpect(selectFPDU, fpdu.ACK_SELECT, m, idSrc)
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
		chunkSize = int(plan.RecordLength)
	}
	e.sess.Context().EffectiveChunk = chunkSize

	openFPDU := fpdu.New(fpdu.OPEN, idSrc, idDst)
	reply, err = e.sendAndExpect(openFPDU, fpdu.ACK_OPEN, m, idSrc)
	if err != nil {
		return e.fail(transferID, err)
	}

	key := TransferKey{Partner: plan.Demandeur, VirtualFile: plan.VirtualFile, TransferID: transferID}
	var syncNum uint32
	var restartPoint uint32
	if plan.Resume {
		rec, ok := plan.store().Load(key)
		if !ok || rec.Number == 0 {
			return e.fail(transferID, diag.New(diag.UnexpectedFPDU, "resume requested but no eligible sync point is stored", diag.ErrResumeIneligible))
		}
		syncNum = rec.Number
		restartPoint = uint32(rec.BytesTransferred)
	}

	read := fpdu.New(fpdu.READ, idSrc, idDst, fpdu.Uint(fpdu.PI_18_RESTART_POINT, 4, restartPoint))
	reply, err = e.sendAndExpect(read, fpdu.ACK_READ, m, idSrc)
	if err != nil {
		return e.fail(transferID, err)
	}

	if restartPoint > 0 {
		seeker, ok := plan.Sink.(interface {
			Seek(offset int64, whence int) (int64, error)
		})
		if !ok {
			return e.fail(transferID, errf("restart point %d requires a seekable sink", restartPoint))
		}
		if _, err := seeker.Seek(int64(restartPoint), 0); err != nil {
			return e.fail(transferID, errf("seeking sink to restart point %d: %w", restartPoint, err))
		}
	}

	bytesTransferred := uint64(restartPoint)

	for {
		f, err := e.recv(m, idSrc)
		if err != nil {
			return e.fail(transferID, err)
		}

		switch {
		case f.Kind == fpdu.DTF_END:
			goto drained
		case f.Kind == fpdu.SYN:
			syncNum++
			ackSyn := fpdu.New(fpdu.ACK_SYN, idSrc, idDst, fpdu.Uint(fpdu.PI_20_SYNC_NUM, 4, syncNum))
			if err := e.sess.SendFPDU(ackSyn); err != nil {
				return e.fail(transferID, err)
			}
			if err := plan.store().Save(key, SyncPointRecord{Number: syncNum, BytesTransferred: bytesTransferred}); err != nil {
				return e.fail(transferID, err)
			}
		case f.Kind == fpdu.IDT:
			ackIdt := fpdu.New(fpdu.ACK_IDT, idSrc, idDst)
			if err := e.sess.SendFPDU(ackIdt); err != nil {
				return e.fail(transferID, err)
			}
		case f.Kind.IsDataTransfer():
			if len(f.Data) > 0 {
				if plan.Limiter != nil {
					if err := plan.Limiter.WaitN(ctx, len(f.Data)); err != nil {
						return e.fail(transferID, err)
					}
				}
				if _, err := plan.Sink.Write(f.Data); err != nil {
					return e.fail(transferID, err)
				}
				bytesTransferred += uint64(len(f.Data))
				e.obs.OnBytes(transferID, bytesTransferred, plan.FileSize, fileSizeKnown, syncNum)
			}
		default:
			e.abort(idSrc, f.IDSrc, diag.UnexpectedFPDU)
			m.Step(fpdu.ABORT)
			return e.fail(transferID, replyError(fpdu.DTF, f))
		}

		if plan.Cancel != nil && plan.Cancel.Load() {
			abort := fpdu.New(fpdu.ABORT, idSrc, idDst, fpdu.Atomic(fpdu.PI_02_DIAG, sliceOf(diag.ProtocolWindow.Bytes())))
			_ = e.sess.SendFPDU(abort)
			m.Step(fpdu.ABORT)
			return Result{Status: StatusCancelled, TransferID: transferID, BytesTransferred: bytesTransferred, LastSyncPoint: syncNum}, diag.ErrCancelled
		}
	}

drained:
	transEnd := fpdu.New(fpdu.TRANS_END, idSrc, idDst)
	reply, err = e.sendAndExpect(transEnd, fpdu.ACK_TRANS_END, m, idSrc)
	if err != nil {
		return e.fail(transferID, err)
	}

	if err := e.closeSequence(m, idSrc, idDst); err != nil {
		return e.fail(transferID, err)
	}

	e.obs.OnComplete(transferID, bytesTransferred, time.Since(start))
	return Result{Status: StatusCompleted, TransferID: transferID, BytesTransferred: bytesTransferred, LastSyncPoint: syncNum}, nil
}
