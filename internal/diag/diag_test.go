package diag

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCodeString(t *testing.T) {
	assert.Equal(t, "D3_301", UnexpectedFPDU.String())
	assert.Equal(t, "D2_205", FileUnknown.String())
	assert.Equal(t, "D0_000", Success.String())
}

func TestCodeRoundTrip(t *testing.T) {
	b := UnexpectedFPDU.Bytes()
	got := CodeFromBytes(b)
	assert.Equal(t, UnexpectedFPDU, got)
}

func TestErrorUnwrap(t *testing.T) {
	cause := errors.New("boom")
	err := New(PartnerAuth, "password mismatch", cause)

	assert.ErrorIs(t, err, cause)
	assert.Contains(t, err.Error(), "D3_304")
	assert.Contains(t, err.Error(), "password mismatch")
}

func TestRemoteAbort(t *testing.T) {
	err := &RemoteAbort{Diag: ProtocolWindow, Diagnostic: "window overrun"}
	assert.ErrorIs(t, err, ErrRemoteAbort)
	assert.Contains(t, err.Error(), "D3_300")
}
