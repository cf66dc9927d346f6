package fpdu

import "fmt"

// ConnectBuilder constructs a CONNECT FPDU whose parameters must appear in
// the exact order spec.md §6.2 requires:
//
//	PI_03, PI_04, [PI_05], PI_06, [PI_07], PI_22, [message PIs]
//
// Each setter is only accepted if it represents forward progress through
// that sequence; calling one out of order returns an error at construction
// time rather than silently reordering parameters (spec.md §9 Design
// Notes — "do not rely on insertion-order hash maps").
type ConnectBuilder struct {
	params []Param
	stage  int
	haveDemandeur, haveServeur, haveVersion, haveAccessType bool
	err    error
}

// NewConnectBuilder starts a fresh CONNECT builder.
func NewConnectBuilder() *ConnectBuilder {
	return &ConnectBuilder{}
}

func (b *ConnectBuilder) advance(stage int, name string) bool {
	if b.err != nil {
		return false
	}
	if stage <= b.stage {
		b.err = fmt.Errorf("fpdu: CONNECT builder: %s is out of order", name)
		return false
	}
	b.stage = stage
	return true
}

// Demandeur sets PI_03 (initiator partner id). Must be called first.
func (b *ConnectBuilder) Demandeur(id string) *ConnectBuilder {
	if b.advance(1, "PI_03_DEMANDEUR") {
		b.params = append(b.params, Str(PI_03_DEMANDEUR, id))
		b.haveDemandeur = true
	}
	return b
}

// Serveur sets PI_04 (target server id).
func (b *ConnectBuilder) Serveur(id string) *ConnectBuilder {
	if b.advance(2, "PI_04_SERVEUR") {
		b.params = append(b.params, Str(PI_04_SERVEUR, id))
		b.haveServeur = true
	}
	return b
}

// AccessControl sets the optional PI_05 password.
func (b *ConnectBuilder) AccessControl(password string) *ConnectBuilder {
	if b.advance(3, "PI_05_ACCESS_CONTROL") {
		b.params = append(b.params, Str(PI_05_ACCESS_CONTROL, password))
	}
	return b
}

// Version sets PI_06 (protocol version, this spec: 2).
func (b *ConnectBuilder) Version(v byte) *ConnectBuilder {
	if b.advance(4, "PI_06_VERSION") {
		b.params = append(b.params, Uint(PI_06_VERSION, 1, uint32(v)))
		b.haveVersion = true
	}
	return b
}

// SyncPoints sets the optional PI_07 (interval_kb, ack_window) advertisement.
func (b *ConnectBuilder) SyncPoints(intervalKB uint16, ackWindow byte) *ConnectBuilder {
	if b.advance(5, "PI_07_SYNC_POINTS") {
		buf := []byte{byte(intervalKB >> 8), byte(intervalKB), ackWindow}
		b.params = append(b.params, Atomic(PI_07_SYNC_POINTS, buf))
	}
	return b
}

// AccessType sets PI_22 (0=write, 1=read).
func (b *ConnectBuilder) AccessType(t byte) *ConnectBuilder {
	if b.advance(6, "PI_22_ACCESS_TYPE") {
		b.params = append(b.params, Uint(PI_22_ACCESS_TYPE, 1, uint32(t)))
		b.haveAccessType = true
	}
	return b
}

// FreeMessage appends the optional trailing PI_99 free-text message.
func (b *ConnectBuilder) FreeMessage(msg string) *ConnectBuilder {
	if b.advance(7, "PI_99_FREE_MESSAGE") {
		b.params = append(b.params, Str(PI_99_FREE_MESSAGE, msg))
	}
	return b
}

// Build validates that all mandatory fields were set and returns the
// CONNECT FPDU. idSrc is the initiator's own connection id (0 before
// ACONNECT assigns one on the wire; the codec fills id_dst on reply).
func (b *ConnectBuilder) Build(idSrc uint16) (*FPDU, error) {
	if b.err != nil {
		return nil, b.err
	}
	if !b.haveDemandeur || !b.haveServeur || !b.haveVersion || !b.haveAccessType {
		return nil, fmt.Errorf("fpdu: CONNECT builder: missing mandatory parameter")
	}
	return New(CONNECT, idSrc, 0, b.params...), nil
}

// CreateBuilder constructs a CREATE FPDU in the order spec.md §4.6.1 step 3
// requires: PGI_09, PI_13, PI_17, PI_25, PGI_30, PGI_40, PGI_50.
type CreateBuilder struct {
	params []Param
	stage  int
	err    error
}

// NewCreateBuilder starts a fresh CREATE builder.
func NewCreateBuilder() *CreateBuilder {
	return &CreateBuilder{}
}

func (b *CreateBuilder) advance(stage int, name string) bool {
	if b.err != nil {
		return false
	}
	if stage <= b.stage {
		b.err = fmt.Errorf("fpdu: CREATE builder: %s is out of order", name)
		return false
	}
	b.stage = stage
	return true
}

// FileIdentification sets PGI_09 (PI_11 file type, PI_12 virtual file name).
func (b *CreateBuilder) FileIdentification(fileType byte, virtualFileID string) *CreateBuilder {
	if b.advance(1, "PGI_09") {
		b.params = append(b.params, Group(PGI_09_FILE_IDENTIFICATION,
			Uint(PI_11_FILE_TYPE, 1, uint32(fileType)),
			Str(PI_12_FILE_NAME, virtualFileID),
		))
	}
	return b
}

// TransferID sets PI_13 (new transfer id, 24-bit).
func (b *CreateBuilder) TransferID(id uint32) *CreateBuilder {
	if b.advance(2, "PI_13_TRANSFER_ID") {
		b.params = append(b.params, Uint(PI_13_TRANSFER_ID, 3, id&0xFFFFFF))
	}
	return b
}

// Priority sets PI_17.
func (b *CreateBuilder) Priority(p byte) *CreateBuilder {
	if b.advance(3, "PI_17_PRIORITY") {
		b.params = append(b.params, Uint(PI_17_PRIORITY, 1, uint32(p)))
	}
	return b
}

// MaxEntitySize sets PI_25 (record_length + 6).
func (b *CreateBuilder) MaxEntitySize(size uint16) *CreateBuilder {
	if b.advance(4, "PI_25_MAX_ENTITY_SIZE") {
		b.params = append(b.params, Uint(PI_25_MAX_ENTITY_SIZE, 2, uint32(size)))
	}
	return b
}

// LogicalAttributes sets PGI_30(PI_32_RECORD_LENGTH).
func (b *CreateBuilder) LogicalAttributes(recordLength uint16) *CreateBuilder {
	if b.advance(5, "PGI_30") {
		b.params = append(b.params, Group(PGI_30_LOGICAL_ATTRIBUTES,
			Uint(PI_32_RECORD_LENGTH, 2, uint32(recordLength)),
		))
	}
	return b
}

// PhysicalAttributes sets PGI_40(PI_42_MAX_RESERVATION) in KiB, rounded up.
func (b *CreateBuilder) PhysicalAttributes(maxReservationKB uint32) *CreateBuilder {
	if b.advance(6, "PGI_40") {
		b.params = append(b.params, Group(PGI_40_PHYSICAL_ATTRIBUTES,
			Uint(PI_42_MAX_RESERVATION, 4, maxReservationKB),
		))
	}
	return b
}

// Historical sets PGI_50(PI_51_CREATION_DATE) as an ISO-8601 string.
func (b *CreateBuilder) Historical(creationDate string) *CreateBuilder {
	if b.advance(7, "PGI_50") {
		b.params = append(b.params, Group(PGI_50_HISTORICAL,
			Str(PI_51_CREATION_DATE, creationDate),
		))
	}
	return b
}

// Build validates ordering errors and returns the CREATE FPDU.
func (b *CreateBuilder) Build(idSrc, idDst uint16) (*FPDU, error) {
	if b.err != nil {
		return nil, b.err
	}
	if b.stage < 2 {
		return nil, fmt.Errorf("fpdu: CREATE builder: missing mandatory parameter")
	}
	return New(CREATE, idSrc, idDst, b.params...), nil
}
