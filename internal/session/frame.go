package session

import (
	"encoding/binary"
	"fmt"

	"github.com/hors-sit/pesitd/internal/bufpool"
	"github.com/hors-sit/pesitd/internal/diag"
	"github.com/hors-sit/pesitd/internal/transport"
)

// readFrame reads one length-prefixed frame off ch using Channel's
// ReadExact (rather than codec.ReadFrame, which wants an io.Reader — a
// Channel's timeout/accounting semantics don't fit that interface). The
// returned slice is pooled; callers must releaseFrame it.
func readFrame(ch transport.Channel) ([]byte, error) {
	var lenBuf [2]byte
	if err := ch.ReadExact(lenBuf[:]); err != nil {
		return nil, err
	}
	length := binary.BigEndian.Uint16(lenBuf[:])
	if length < 6 {
		return nil, fmt.Errorf("session: frame length %d shorter than header: %w", length, diag.ErrTruncatedFrame)
	}
	body := bufpool.GetUint16(length)
	if err := ch.ReadExact(body); err != nil {
		bufpool.Put(body)
		return nil, fmt.Errorf("session: read frame body: %w", err)
	}
	return body, nil
}

func releaseFrame(body []byte) {
	bufpool.Put(body)
}
