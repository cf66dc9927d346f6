package responder

import (
	"bytes"
	"context"
	"net"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hors-sit/pesitd/internal/codec"
	"github.com/hors-sit/pesitd/internal/diag"
	"github.com/hors-sit/pesitd/internal/fpdu"
	"github.com/hors-sit/pesitd/internal/session"
	"github.com/hors-sit/pesitd/internal/streamio"
	"github.com/hors-sit/pesitd/internal/transport"
	"github.com/hors-sit/pesitd/internal/validator"
)

// memSource/memSink mirror internal/transfer's test doubles of the same
// name, standing in for streamio/fileio.

type memSource struct{ *bytes.Reader }

func newMemSource(data []byte) *memSource { return &memSource{bytes.NewReader(data)} }
func (s *memSource) Close() error         { return nil }
func (s *memSource) Size() (int64, bool)  { return int64(s.Reader.Len()), true }

type memSink struct{ buf *bytes.Buffer }

func newMemSink() *memSink                     { return &memSink{buf: &bytes.Buffer{}} }
func (s *memSink) Write(p []byte) (int, error) { return s.buf.Write(p) }
func (s *memSink) Close() error                { return nil }

func pipeSessions() (initiator, responderSide *session.Session) {
	a, b := net.Pipe()
	initCtx := &session.Context{LocalID: 1, UnknownPolicy: codec.Strict}
	respCtx := &session.Context{LocalID: 2, UnknownPolicy: codec.Strict}
	return session.New(transport.NewTCPChannel(a), initCtx), session.New(transport.NewTCPChannel(b), respCtx)
}

func allowAllValidator() *validator.Validator {
	return validator.New("PESITD", 2, false, validator.MapPartnerStore{}, validator.MapFileStore{})
}

// runFakeInitiatorWrite plays the initiator side of a CREATE/WRITE exchange
// against a real Responder: CONNECT, CREATE, OPEN, WRITE, a handful of DTF
// chunks, then the CLOSE/DESELECT/RELEASE tail.
func runFakeInitiatorWrite(t *testing.T, init *session.Session, payload []byte, chunk int) <-chan error {
	t.Helper()
	done := make(chan error, 1)
	go func() {
		localID := init.Context().LocalID

		connect := fpdu.New(fpdu.CONNECT, localID, 0,
			fpdu.Str(fpdu.PI_03_DEMANDEUR, "INIT01"),
			fpdu.Str(fpdu.PI_04_SERVEUR, "PESITD"),
			fpdu.Uint(fpdu.PI_06_VERSION, 1, 2),
			fpdu.Uint(fpdu.PI_22_ACCESS_TYPE, 1, 0))
		reply, err := init.SendFPDUWithAck(connect)
		if err != nil {
			done <- err
			return
		}
		if reply.Kind != fpdu.ACONNECT {
			done <- errUnexpected(reply)
			return
		}
		peerID := reply.IDSrc

		create, err := fpdu.NewCreateBuilder().
			FileIdentification(0, "VF.TEST").
			TransferID(7).
			Priority(0).
			MaxEntitySize(uint16(chunk + 6)).
			LogicalAttributes(uint16(chunk)).
			PhysicalAttributes(uint32(len(payload)/1024 + 1)).
			Historical("2026-07-31T00:00:00Z").
			Build(localID, peerID)
		if err != nil {
			done <- err
			return
		}
		reply, err = init.SendFPDUWithAck(create)
		if err != nil {
			done <- err
			return
		}
		if reply.Kind != fpdu.ACK_CREATE {
			done <- errUnexpected(reply)
			return
		}

		reply, err = init.SendFPDUWithAck(fpdu.New(fpdu.OPEN, localID, peerID))
		if err != nil || reply.Kind != fpdu.ACK_OPEN {
			done <- errUnexpectedErr(reply, err)
			return
		}

		reply, err = init.SendFPDUWithAck(fpdu.New(fpdu.WRITE, localID, peerID))
		if err != nil || reply.Kind != fpdu.ACK_WRITE {
			done <- errUnexpectedErr(reply, err)
			return
		}

		for off := 0; off < len(payload); off += chunk {
			end := off + chunk
			if end > len(payload) {
				end = len(payload)
			}
			if err := init.SendFPDUWithData(fpdu.New(fpdu.DTF, localID, peerID), payload[off:end]); err != nil {
				done <- err
				return
			}
		}
		if err := init.SendFPDU(fpdu.New(fpdu.DTF_END, localID, peerID)); err != nil {
			done <- err
			return
		}

		reply, err = init.SendFPDUWithAck(fpdu.New(fpdu.TRANS_END, localID, peerID))
		if err != nil || reply.Kind != fpdu.ACK_TRANS_END {
			done <- errUnexpectedErr(reply, err)
			return
		}
		reply, err = init.SendFPDUWithAck(fpdu.New(fpdu.CLOSE, localID, peerID))
		if err != nil || reply.Kind != fpdu.ACK_CLOSE {
			done <- errUnexpectedErr(reply, err)
			return
		}
		reply, err = init.SendFPDUWithAck(fpdu.New(fpdu.DESELECT, localID, peerID))
		if err != nil || reply.Kind != fpdu.ACK_DESELECT {
			done <- errUnexpectedErr(reply, err)
			return
		}
		reply, err = init.SendFPDUWithAck(fpdu.New(fpdu.RELEASE, localID, peerID))
		if err != nil || reply.Kind != fpdu.RELCONF {
			done <- errUnexpectedErr(reply, err)
			return
		}
		done <- nil
	}()
	return done
}

func errUnexpected(reply *fpdu.FPDU) error { return errUnexpectedErr(reply, nil) }

func errUnexpectedErr(reply *fpdu.FPDU, err error) error {
	if err != nil {
		return err
	}
	return assert.AnError
}

func TestHandleReceivesPartnerWrite(t *testing.T) {
	init, resp := pipeSessions()
	defer init.Close()

	payload := bytes.Repeat([]byte("responder-receive-"), 200)
	respDone := runFakeInitiatorWrite(t, init, payload, 128)

	sink := newMemSink()
	r := New(Config{
		Validator: allowAllValidator(),
		OpenSink: func(id string, resumeFrom uint32) (streamio.Sink, error) {
			assert.Equal(t, "VF.TEST", id)
			assert.EqualValues(t, 0, resumeFrom)
			return sink, nil
		},
	})

	done := make(chan struct{})
	go func() {
		r.Handle(context.Background(), resp, "sess-1")
		close(done)
	}()

	require.NoError(t, <-respDone)
	<-done
	assert.Equal(t, payload, sink.buf.Bytes())
}

// runFakeInitiatorRead plays the initiator side of a SELECT/READ exchange.
func runFakeInitiatorRead(t *testing.T, init *session.Session, chunk int) (<-chan error, *bytes.Buffer) {
	t.Helper()
	done := make(chan error, 1)
	var received bytes.Buffer
	go func() {
		localID := init.Context().LocalID

		connect := fpdu.New(fpdu.CONNECT, localID, 0,
			fpdu.Str(fpdu.PI_03_DEMANDEUR, "INIT01"),
			fpdu.Str(fpdu.PI_04_SERVEUR, "PESITD"),
			fpdu.Uint(fpdu.PI_06_VERSION, 1, 2),
			fpdu.Uint(fpdu.PI_22_ACCESS_TYPE, 1, 1))
		reply, err := init.SendFPDUWithAck(connect)
		if err != nil || reply.Kind != fpdu.ACONNECT {
			done <- errUnexpectedErr(reply, err)
			return
		}
		peerID := reply.IDSrc

		sel := fpdu.New(fpdu.SELECT, localID, peerID,
			fpdu.Group(fpdu.PGI_09_FILE_IDENTIFICATION,
				fpdu.Uint(fpdu.PI_11_FILE_TYPE, 1, 0),
				fpdu.Str(fpdu.PI_12_FILE_NAME, "VF.TEST")),
			fpdu.Uint(fpdu.PI_25_MAX_ENTITY_SIZE, 2, uint32(chunk+6)))
		reply, err = init.SendFPDUWithAck(sel)
		if err != nil || reply.Kind != fpdu.ACK_SELECT {
			done <- errUnexpectedErr(reply, err)
			return
		}

		reply, err = init.SendFPDUWithAck(fpdu.New(fpdu.OPEN, localID, peerID))
		if err != nil || reply.Kind != fpdu.ACK_OPEN {
			done <- errUnexpectedErr(reply, err)
			return
		}

		reply, err = init.SendFPDUWithAck(fpdu.New(fpdu.READ, localID, peerID, fpdu.Uint(fpdu.PI_18_RESTART_POINT, 4, 0)))
		if err != nil || reply.Kind != fpdu.ACK_READ {
			done <- errUnexpectedErr(reply, err)
			return
		}

		for {
			f, err := init.ReceiveFPDU()
			if err != nil {
				done <- err
				return
			}
			if f.Kind == fpdu.DTF_END {
				break
			}
			received.Write(f.Data)
		}

		reply, err = init.SendFPDUWithAck(fpdu.New(fpdu.TRANS_END, localID, peerID))
		if err != nil || reply.Kind != fpdu.ACK_TRANS_END {
			done <- errUnexpectedErr(reply, err)
			return
		}
		reply, err = init.SendFPDUWithAck(fpdu.New(fpdu.CLOSE, localID, peerID))
		if err != nil || reply.Kind != fpdu.ACK_CLOSE {
			done <- errUnexpectedErr(reply, err)
			return
		}
		reply, err = init.SendFPDUWithAck(fpdu.New(fpdu.DESELECT, localID, peerID))
		if err != nil || reply.Kind != fpdu.ACK_DESELECT {
			done <- errUnexpectedErr(reply, err)
			return
		}
		reply, err = init.SendFPDUWithAck(fpdu.New(fpdu.RELEASE, localID, peerID))
		if err != nil || reply.Kind != fpdu.RELCONF {
			done <- errUnexpectedErr(reply, err)
			return
		}
		done <- nil
	}()
	return done, &received
}

func TestHandleSendsToPartner(t *testing.T) {
	init, resp := pipeSessions()
	defer init.Close()

	respDone, received := runFakeInitiatorRead(t, init, 64)

	payload := bytes.Repeat([]byte("responder-send-"), 300)
	r := New(Config{
		Validator: allowAllValidator(),
		OpenSource: func(id string) (streamio.Source, error) {
			assert.Equal(t, "VF.TEST", id)
			return newMemSource(payload), nil
		},
	})

	done := make(chan struct{})
	go func() {
		r.Handle(context.Background(), resp, "sess-2")
		close(done)
	}()

	require.NoError(t, <-respDone)
	<-done
	assert.Equal(t, payload, received.Bytes())
}

func TestHandleRejectsUnknownServerID(t *testing.T) {
	init, resp := pipeSessions()
	defer init.Close()

	r := New(Config{Validator: validator.New("OTHERSRV", 2, false, validator.MapPartnerStore{}, validator.MapFileStore{})})

	done := make(chan struct{})
	go func() {
		r.Handle(context.Background(), resp, "sess-3")
		close(done)
	}()

	connect := fpdu.New(fpdu.CONNECT, 1, 0,
		fpdu.Str(fpdu.PI_03_DEMANDEUR, "INIT01"),
		fpdu.Str(fpdu.PI_04_SERVEUR, "PESITD"),
		fpdu.Uint(fpdu.PI_06_VERSION, 1, 2))
	reply, err := init.SendFPDUWithAck(connect)
	require.NoError(t, err)
	assert.Equal(t, fpdu.RCONNECT, reply.Kind)
	_, ok := reply.Diag()
	assert.True(t, ok)

	<-done
}

// TestHandleAbortsOnSkippedCreateOpen reproduces spec.md §8 scenario S5:
// after ACONNECT, the initiator sends WRITE directly, skipping
// CREATE/OPEN/SELECT. The responder must reply ABORT carrying diag
// D3_301, not merely drop the FPDU.
func TestHandleAbortsOnSkippedCreateOpen(t *testing.T) {
	init, resp := pipeSessions()
	defer init.Close()

	r := New(Config{Validator: allowAllValidator()})

	done := make(chan struct{})
	go func() {
		r.Handle(context.Background(), resp, "sess-5")
		close(done)
	}()

	connect := fpdu.New(fpdu.CONNECT, 1, 0,
		fpdu.Str(fpdu.PI_03_DEMANDEUR, "INIT01"),
		fpdu.Str(fpdu.PI_04_SERVEUR, "PESITD"),
		fpdu.Uint(fpdu.PI_06_VERSION, 1, 2),
		fpdu.Uint(fpdu.PI_22_ACCESS_TYPE, 1, 0))
	reply, err := init.SendFPDUWithAck(connect)
	require.NoError(t, err)
	require.Equal(t, fpdu.ACONNECT, reply.Kind)
	peerID := reply.IDSrc

	write := fpdu.New(fpdu.WRITE, 1, peerID)
	reply, err = init.SendFPDUWithAck(write)
	require.Error(t, err)
	var remoteAbort *diag.RemoteAbort
	require.ErrorAs(t, err, &remoteAbort)
	assert.Equal(t, diag.UnexpectedFPDU, remoteAbort.Diag)
	assert.Equal(t, fpdu.ABORT, reply.Kind)

	<-done
}

func TestHandleRejectsDisabledPartner(t *testing.T) {
	init, resp := pipeSessions()
	defer init.Close()

	partners := validator.MapPartnerStore{"INIT01": validator.Partner{ID: "INIT01", Disabled: true}}
	r := New(Config{Validator: validator.New("PESITD", 2, false, partners, validator.MapFileStore{})})

	done := make(chan struct{})
	go func() {
		r.Handle(context.Background(), resp, "sess-4")
		close(done)
	}()

	connect := fpdu.New(fpdu.CONNECT, 1, 0,
		fpdu.Str(fpdu.PI_03_DEMANDEUR, "INIT01"),
		fpdu.Str(fpdu.PI_04_SERVEUR, "PESITD"),
		fpdu.Uint(fpdu.PI_06_VERSION, 1, 2))
	reply, err := init.SendFPDUWithAck(connect)
	require.NoError(t, err)
	assert.Equal(t, fpdu.RCONNECT, reply.Kind)

	<-done
}
