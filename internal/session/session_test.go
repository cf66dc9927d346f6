package session

import (
	"net"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hors-sit/pesitd/internal/codec"
	"github.com/hors-sit/pesitd/internal/diag"
	"github.com/hors-sit/pesitd/internal/fpdu"
	"github.com/hors-sit/pesitd/internal/transport"
)

func pipeSessions() (*Session, *Session) {
	a, b := net.Pipe()
	ctx := &Context{UnknownPolicy: codec.Strict}
	return New(transport.NewTCPChannel(a), ctx), New(transport.NewTCPChannel(b), &Context{UnknownPolicy: codec.Strict})
}

func TestSendReceiveFPDU(t *testing.T) {
	initiator, responder := pipeSessions()
	defer initiator.Close()
	defer responder.Close()

	sent := fpdu.New(fpdu.SYN, 1, 2, fpdu.Uint(fpdu.PI_20_SYNC_NUM, 4, 99))

	errc := make(chan error, 1)
	go func() { errc <- initiator.SendFPDU(sent) }()

	got, err := responder.ReceiveFPDU()
	require.NoError(t, err)
	require.NoError(t, <-errc)

	assert.Equal(t, sent.Kind, got.Kind)
	v, ok := got.Param(fpdu.PI_20_SYNC_NUM)
	require.True(t, ok)
	assert.EqualValues(t, 99, v.Uint32Value())
}

func TestSendFPDUWithDataRejectsNonDTF(t *testing.T) {
	initiator, responder := pipeSessions()
	defer initiator.Close()
	defer responder.Close()

	err := initiator.SendFPDUWithData(fpdu.New(fpdu.SYN, 1, 2), []byte("x"))
	assert.Error(t, err)
}

func TestSendFPDUWithAckReturnsReply(t *testing.T) {
	initiator, responder := pipeSessions()
	defer initiator.Close()
	defer responder.Close()

	go func() {
		f, err := responder.ReceiveFPDU()
		if err != nil {
			return
		}
		_ = f
		responder.SendFPDU(fpdu.New(fpdu.ACK_SYN, 2, 1))
	}()

	reply, err := initiator.SendFPDUWithAck(fpdu.New(fpdu.SYN, 1, 2))
	require.NoError(t, err)
	assert.Equal(t, fpdu.ACK_SYN, reply.Kind)
}

func TestSendFPDUWithAckSurfacesRemoteAbort(t *testing.T) {
	initiator, responder := pipeSessions()
	defer initiator.Close()
	defer responder.Close()

	go func() {
		_, err := responder.ReceiveFPDU()
		if err != nil {
			return
		}
		abort := fpdu.New(fpdu.ABORT, 2, 1,
			fpdu.Atomic(fpdu.PI_02_DIAG, diag.ProtocolWindow.Bytes()[:]),
			fpdu.Str(fpdu.PI_99_FREE_MESSAGE, "window overrun"),
		)
		responder.SendFPDU(abort)
	}()

	_, err := initiator.SendFPDUWithAck(fpdu.New(fpdu.SYN, 1, 2))
	require.Error(t, err)

	var remoteAbort *diag.RemoteAbort
	require.ErrorAs(t, err, &remoteAbort)
	assert.Equal(t, diag.ProtocolWindow, remoteAbort.Diag)
	assert.Equal(t, "window overrun", remoteAbort.Diagnostic)
}
