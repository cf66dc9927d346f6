package fpdu

import "encoding/binary"

// PI identifiers (spec.md §6.2, selected/mandatory subset).
const (
	PI_02_DIAG                  = 0x02
	PI_03_DEMANDEUR             = 0x03
	PI_04_SERVEUR               = 0x04
	PI_05_ACCESS_CONTROL        = 0x05
	PI_06_VERSION               = 0x06
	PI_07_SYNC_POINTS           = 0x07
	PI_11_FILE_TYPE             = 0x11
	PI_12_FILE_NAME             = 0x12
	PI_13_TRANSFER_ID           = 0x13
	PI_14_REQUESTED_ATTRIBUTES  = 0x14
	PI_17_PRIORITY              = 0x17
	PI_18_RESTART_POINT         = 0x18
	PI_20_SYNC_NUM              = 0x20
	PI_21_COMPRESSION           = 0x21
	PI_22_ACCESS_TYPE           = 0x22
	PI_25_MAX_ENTITY_SIZE       = 0x25
	PI_31_RECORD_FORMAT         = 0x31
	PI_32_RECORD_LENGTH         = 0x32
	PI_33_RECORD_ATTR           = 0x33
	PI_41_ORGANIZATION          = 0x41
	PI_42_MAX_RESERVATION       = 0x42
	PI_51_CREATION_DATE         = 0x51
	PI_91_MESSAGE               = 0x91
	PI_99_FREE_MESSAGE          = 0x99
)

// PGI group identifiers (spec.md §6.2).
const (
	PGI_09_FILE_IDENTIFICATION = 0x09
	PGI_30_LOGICAL_ATTRIBUTES  = 0x30
	PGI_40_PHYSICAL_ATTRIBUTES = 0x40
	PGI_50_HISTORICAL          = 0x50
)

var knownPI = map[byte]bool{
	PI_02_DIAG: true, PI_03_DEMANDEUR: true, PI_04_SERVEUR: true,
	PI_05_ACCESS_CONTROL: true, PI_06_VERSION: true, PI_07_SYNC_POINTS: true,
	PI_11_FILE_TYPE: true, PI_12_FILE_NAME: true, PI_13_TRANSFER_ID: true,
	PI_14_REQUESTED_ATTRIBUTES: true, PI_17_PRIORITY: true, PI_18_RESTART_POINT: true,
	PI_20_SYNC_NUM: true, PI_21_COMPRESSION: true, PI_22_ACCESS_TYPE: true,
	PI_25_MAX_ENTITY_SIZE: true, PI_31_RECORD_FORMAT: true, PI_32_RECORD_LENGTH: true,
	PI_33_RECORD_ATTR: true, PI_41_ORGANIZATION: true, PI_42_MAX_RESERVATION: true,
	PI_51_CREATION_DATE: true, PI_91_MESSAGE: true, PI_99_FREE_MESSAGE: true,
}

var knownPGI = map[byte]bool{
	PGI_09_FILE_IDENTIFICATION: true, PGI_30_LOGICAL_ATTRIBUTES: true,
	PGI_40_PHYSICAL_ATTRIBUTES: true, PGI_50_HISTORICAL: true,
}

// IsKnownPI reports whether id is a member of the closed PI set.
func IsKnownPI(id byte) bool { return knownPI[id] }

// IsKnownPGI reports whether id is a member of the closed PGI set.
func IsKnownPGI(id byte) bool { return knownPGI[id] }

// Param is a single TLV parameter entry: either an atomic (PI, value) pair
// or a group (PGI, ordered children) — spec.md §3 "Parameter".
type Param struct {
	ID       byte
	IsGroup  bool
	Value    []byte
	Children []Param
}

// Atomic builds an atomic (PI, bytes) parameter.
func Atomic(id byte, value []byte) Param {
	return Param{ID: id, Value: value}
}

// Group builds a (PGI, children) parameter group, preserving the order of
// children exactly as given — CONNECT/CREATE ordering constraints (§6.2)
// apply inside groups too.
func Group(id byte, children ...Param) Param {
	return Param{ID: id, IsGroup: true, Children: children}
}

// Uint encodes a big-endian numeric PI of the given byte width (1..4),
// per spec.md §4.1 "Numeric PI encoding".
func Uint(id byte, width int, value uint32) Param {
	buf := make([]byte, width)
	switch width {
	case 1:
		buf[0] = byte(value)
	case 2:
		binary.BigEndian.PutUint16(buf, uint16(value))
	case 3:
		buf[0] = byte(value >> 16)
		buf[1] = byte(value >> 8)
		buf[2] = byte(value)
	case 4:
		binary.BigEndian.PutUint32(buf, value)
	default:
		panic("fpdu: unsupported numeric PI width")
	}
	return Atomic(id, buf)
}

// Str encodes a string PI as ISO-8859-1 bytes (spec.md §4.1 default).
// Only the Latin-1 subset (U+0000-U+00FF) is representable; callers must
// not pass characters outside that range.
func Str(id byte, value string) Param {
	return Atomic(id, []byte(value))
}

// Uint32Value decodes a big-endian numeric value from an atomic parameter.
func (p Param) Uint32Value() uint32 {
	var v uint32
	for _, b := range p.Value {
		v = v<<8 | uint32(b)
	}
	return v
}

// StringValue decodes an atomic parameter as an ISO-8859-1 string.
func (p Param) StringValue() string {
	return string(p.Value)
}

// Find returns the first atomic or group parameter with the given ID in an
// ordered parameter list, or (Param{}, false) if absent.
func Find(params []Param, id byte) (Param, bool) {
	for _, p := range params {
		if p.ID == id {
			return p, true
		}
	}
	return Param{}, false
}

// FindChild looks up a PI inside a PGI's children.
func (p Param) FindChild(id byte) (Param, bool) {
	if !p.IsGroup {
		return Param{}, false
	}
	return Find(p.Children, id)
}
