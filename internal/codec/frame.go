package codec

import (
	"encoding/binary"
	"fmt"
	"io"

	"github.com/hors-sit/pesitd/internal/bufpool"
	"github.com/hors-sit/pesitd/internal/diag"
)

// MaxFrameLength is the largest frame body spec.md §4.1 permits (the u16
// length prefix itself caps this at 65535, but a configured profile may
// want a tighter ceiling to bound memory use per connection).
const MaxFrameLength = 0xFFFF

// ReadFrame reads one length-prefixed frame from r: a u16 big-endian
// length followed by exactly that many bytes (spec.md §4.1 "Codec MUST
// read exactly length bytes after the prefix"). The returned slice is
// pooled via internal/bufpool — callers must return it with bufpool.Put
// once they are done decoding it.
func ReadFrame(r io.Reader) ([]byte, error) {
	var lenBuf [2]byte
	if _, err := io.ReadFull(r, lenBuf[:]); err != nil {
		return nil, err
	}
	length := binary.BigEndian.Uint16(lenBuf[:])
	if length < headerSize {
		return nil, fmt.Errorf("codec: frame length %d shorter than header: %w", length, diag.ErrTruncatedFrame)
	}

	body := bufpool.GetUint16(length)
	if _, err := io.ReadFull(r, body); err != nil {
		bufpool.Put(body)
		return nil, fmt.Errorf("codec: read frame body: %w", err)
	}
	return body, nil
}

// WriteFrame writes body prefixed with its u16 big-endian length. body
// must already be the encoded frame remainder (e.g. from Encode, minus
// the length prefix it adds itself — callers typically use Encode's
// output directly with net.Conn.Write instead of this lower-level helper,
// which exists for composing a header and payload written separately).
func WriteFrame(w io.Writer, body []byte) error {
	if len(body) > MaxFrameLength {
		return fmt.Errorf("codec: frame body of %d bytes exceeds max %d", len(body), MaxFrameLength)
	}
	var lenBuf [2]byte
	binary.BigEndian.PutUint16(lenBuf[:], uint16(len(body)))
	if _, err := w.Write(lenBuf[:]); err != nil {
		return err
	}
	_, err := w.Write(body)
	return err
}
