package codec

import (
	"bytes"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hors-sit/pesitd/internal/diag"
	"github.com/hors-sit/pesitd/internal/fpdu"
)

func TestEncodeDecodeRoundTrip(t *testing.T) {
	f, err := fpdu.NewConnectBuilder().
		Demandeur("BANKAPARIS").
		Serveur("BANKBLYON").
		Version(2).
		AccessType(0).
		Build(7)
	require.NoError(t, err)

	wire, err := Encode(f)
	require.NoError(t, err)

	got, err := Decode(wire[2:], Strict)
	require.NoError(t, err)

	assert.Equal(t, f.Kind, got.Kind)
	assert.Equal(t, f.IDSrc, got.IDSrc)
	assert.Equal(t, f.IDDst, got.IDDst)
	assert.Equal(t, f.Params, got.Params)
}

func TestEncodeDecodeDTFRoundTrip(t *testing.T) {
	data := bytes.Repeat([]byte{0xAB}, 100)
	f := fpdu.NewDTF(fpdu.DTF, 7, 9, data)

	wire, err := Encode(f)
	require.NoError(t, err)

	got, err := Decode(wire[2:], Strict)
	require.NoError(t, err)
	assert.Equal(t, fpdu.DTF, got.Kind)
	assert.Equal(t, data, got.Data)
}

// TestFramingLengthLaw is Testable Property 2: "for all outputs of encode,
// the first two bytes equal the length of the remainder in big-endian."
func TestFramingLengthLaw(t *testing.T) {
	f := fpdu.New(fpdu.SYN, 1, 2, fpdu.Uint(fpdu.PI_20_SYNC_NUM, 4, 12345))
	wire, err := Encode(f)
	require.NoError(t, err)

	length := int(wire[0])<<8 | int(wire[1])
	assert.Equal(t, len(wire)-2, length)
}

func TestReadWriteFrame(t *testing.T) {
	f := fpdu.New(fpdu.ABORT, 1, 2, fpdu.Uint(fpdu.PI_02_DIAG, 1, 0))
	wire, err := Encode(f)
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, WriteFrame(&buf, wire[2:]))

	body, err := ReadFrame(&buf)
	require.NoError(t, err)
	assert.Equal(t, wire[2:], body)
}

func TestDecodeTruncatedFrame(t *testing.T) {
	_, err := Decode([]byte{1, 2, 3}, Strict)
	assert.ErrorIs(t, err, diag.ErrTruncatedFrame)
}

func TestDecodeTruncatedParameter(t *testing.T) {
	body := []byte{0, 1, 0, 2, 1, 1, 5} // CONNECT header + a lone id byte 0x05 with no length byte after it
	_, err := Decode(body, Strict)
	assert.ErrorIs(t, err, diag.ErrTruncatedParameter)
}

func TestDecodeUnknownFPDUKind(t *testing.T) {
	body := []byte{0, 1, 0, 2, 0xFE, 0xFE}
	_, err := Decode(body, Strict)
	assert.ErrorIs(t, err, diag.ErrUnknownFPDUKind)
}

func TestDecodeUnknownPIStrictVsLax(t *testing.T) {
	// 0xF0 is not in the closed PI/PGI set.
	body := []byte{0, 1, 0, 2, byte(fpdu.SYN.Phase()), byte(fpdu.SYN.Type()), 0xF0, 1, 0x42}

	_, err := Decode(body, Strict)
	assert.True(t, errors.Is(err, diag.ErrUnknownPI))

	got, err := Decode(body, Lax)
	require.NoError(t, err)
	p, ok := got.Param(0xF0)
	require.True(t, ok)
	assert.Equal(t, []byte{0x42}, p.Value)
}
