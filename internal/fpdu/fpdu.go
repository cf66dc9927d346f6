package fpdu

import "fmt"

// FPDU is the immutable-after-build record described in spec.md §3: a
// kind, the two connection IDs, an ordered parameter list, and an optional
// data payload carried only by the DTF family.
type FPDU struct {
	Kind   Kind
	IDSrc  uint16
	IDDst  uint16
	Params []Param
	Data   []byte
}

// New builds a non-DTF FPDU. Use NewDTF for the data family, which is the
// only family permitted to carry a Data payload (spec.md §3 invariant).
func New(kind Kind, idSrc, idDst uint16, params ...Param) *FPDU {
	return &FPDU{Kind: kind, IDSrc: idSrc, IDDst: idDst, Params: params}
}

// NewDTF builds a DTF-family FPDU carrying a data payload.
func NewDTF(kind Kind, idSrc, idDst uint16, data []byte) *FPDU {
	return &FPDU{Kind: kind, IDSrc: idSrc, IDDst: idDst, Data: data}
}

// Validate checks the §3 invariant that only DTF-family FPDUs carry data.
func (f *FPDU) Validate() error {
	if f.Data != nil && !f.Kind.IsDataTransfer() {
		return fmt.Errorf("fpdu: %s must not carry a data payload", f.Kind)
	}
	return nil
}

// Param returns the first parameter with the given PI/PGI id.
func (f *FPDU) Param(id byte) (Param, bool) {
	return Find(f.Params, id)
}

// Diag extracts PI_02_DIAG from the FPDU, if present.
func (f *FPDU) Diag() ([3]byte, bool) {
	p, ok := f.Param(PI_02_DIAG)
	if !ok || len(p.Value) != 3 {
		return [3]byte{}, false
	}
	return [3]byte{p.Value[0], p.Value[1], p.Value[2]}, true
}
