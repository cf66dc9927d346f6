// Package codec implements the PeSIT-E wire codec (spec.md §4.1): the
// length-prefixed frame format, the FPDU header, and the PI/PGI TLV
// parameter area. It is pure — no I/O, no long-lived state — and is the
// single place the on-wire byte layout is known.
package codec

import (
	"encoding/binary"

	"github.com/hors-sit/pesitd/internal/diag"
	"github.com/hors-sit/pesitd/internal/fpdu"
)

// headerSize is the 6-byte fixed FPDU header: id_src(2) + id_dst(2) +
// phase(1) + type(1). DTF-family data bytes start right after it and
// extend to the end of the frame (spec.md §4.1).
const headerSize = 6

// UnknownPolicy controls how Decode handles a PI/PGI id outside the closed
// set (spec.md §4.1 Errors: "strict mode fails ... lax mode records raw
// bytes and continues").
type UnknownPolicy int

const (
	// Strict fails decode with diag.ErrUnknownPI for any id outside both
	// closed sets (the wire gives no way to tell an unknown PGI apart).
	Strict UnknownPolicy = iota
	// Lax keeps the raw (id, bytes) as an opaque atomic parameter.
	Lax
)

// Encode renders an FPDU to its wire form: u16 length prefix + body. It
// does not validate FPDU invariants; call (*fpdu.FPDU).Validate first.
func Encode(f *fpdu.FPDU) ([]byte, error) {
	body := make([]byte, headerSize, headerSize+estimateParamSize(f.Params)+len(f.Data))
	binary.BigEndian.PutUint16(body[0:2], f.IDSrc)
	binary.BigEndian.PutUint16(body[2:4], f.IDDst)
	body[4] = f.Kind.Phase()
	body[5] = f.Kind.Type()

	body, err := encodeParams(body, f.Params)
	if err != nil {
		return nil, err
	}
	if len(f.Data) > 0 {
		body = append(body, f.Data...)
	}

	out := make([]byte, 2+len(body))
	binary.BigEndian.PutUint16(out[0:2], uint16(len(body)))
	copy(out[2:], body)
	return out, nil
}

func estimateParamSize(params []fpdu.Param) int {
	n := 0
	for _, p := range params {
		if p.IsGroup {
			n += 2 + estimateParamSize(p.Children)
		} else {
			n += 2 + len(p.Value)
		}
	}
	return n
}

func encodeParams(dst []byte, params []fpdu.Param) ([]byte, error) {
	for _, p := range params {
		var value []byte
		if p.IsGroup {
			var err error
			value, err = encodeParams(nil, p.Children)
			if err != nil {
				return nil, err
			}
		} else {
			value = p.Value
		}
		if len(value) > 0xFF {
			return nil, diag.New(diag.ProtocolWindow, "parameter value exceeds 255 bytes", nil)
		}
		dst = append(dst, p.ID, byte(len(value)))
		dst = append(dst, value...)
	}
	return dst, nil
}

// Decode parses a frame body (the bytes after the length prefix, exactly
// `length` of them per ReadFrame) into an FPDU.
func Decode(body []byte, policy UnknownPolicy) (*fpdu.FPDU, error) {
	if len(body) < headerSize {
		return nil, diag.ErrTruncatedFrame
	}
	idSrc := binary.BigEndian.Uint16(body[0:2])
	idDst := binary.BigEndian.Uint16(body[2:4])
	kind := fpdu.MakeKind(body[4], body[5])
	if !kind.Known() {
		return nil, diag.ErrUnknownFPDUKind
	}

	rest := body[headerSize:]

	if kind.IsDataTransfer() {
		// DTF family carries no parameters on the wire in this profile;
		// everything after the header is raw article data.
		return fpdu.NewDTF(kind, idSrc, idDst, rest), nil
	}

	params, _, err := decodeParams(rest, policy)
	if err != nil {
		return nil, err
	}
	return fpdu.New(kind, idSrc, idDst, params...), nil
}

func decodeParams(b []byte, policy UnknownPolicy) ([]fpdu.Param, int, error) {
	var params []fpdu.Param
	i := 0
	for i < len(b) {
		if i+2 > len(b) {
			return nil, 0, diag.ErrTruncatedParameter
		}
		id := b[i]
		length := int(b[i+1])
		i += 2
		if i+length > len(b) {
			return nil, 0, diag.ErrTruncatedParameter
		}
		value := b[i : i+length]
		i += length

		isGroup := fpdu.IsKnownPGI(id)
		isAtomic := fpdu.IsKnownPI(id)
		switch {
		case isGroup:
			children, _, err := decodeParams(value, policy)
			if err != nil {
				return nil, 0, err
			}
			params = append(params, fpdu.Group(id, children...))
		case isAtomic:
			params = append(params, fpdu.Atomic(id, value))
		default:
			if policy == Strict {
				return nil, 0, diag.ErrUnknownPI
			}
			params = append(params, fpdu.Atomic(id, value))
		}
	}
	return params, i, nil
}
