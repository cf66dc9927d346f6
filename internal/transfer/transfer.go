// Package transfer implements the Transfer Engine (spec.md §4.6): the
// initiator- and responder-side state sequences that drive one file
// transfer end to end over an already-dialed session.Session, grounded
// on the teacher's NFSConnection.Serve context-check-per-loop-iteration
// cancellation idiom and its request/response handler shape.
package transfer

import (
	"crypto/rand"
	"encoding/binary"
	"fmt"
	"sync/atomic"

	"golang.org/x/time/rate"

	"github.com/hors-sit/pesitd/internal/observer"
	"github.com/hors-sit/pesitd/internal/session"
	"github.com/hors-sit/pesitd/internal/streamio"
)

// transferIDCounter is the process-wide transfer-id generator (spec.md
// §5 "Shared resources": a process-wide monotonic counter mod 2^24).
// It's seeded from crypto/rand at process start so concurrently-started
// daemons don't hand out colliding ids from a predictable zero base.
var transferIDCounter atomic.Uint32

func init() {
	var seed [4]byte
	if _, err := rand.Read(seed[:]); err == nil {
		transferIDCounter.Store(binary.BigEndian.Uint32(seed[:]) & 0xFFFFFF)
	}
}

// NextTransferID returns a fresh 24-bit transfer id.
func NextTransferID() uint32 {
	return transferIDCounter.Add(1) & 0xFFFFFF
}

// AccessType values for PI_22.
const (
	AccessWrite byte = 0
	AccessRead  byte = 1
)

// SyncPointRecord is what the engine persists each time a SYN round-trips
// successfully, and what it reads back to compute a responder's restart
// point or an initiator's resume offset (spec.md §4.6.3, §4.6.4).
type SyncPointRecord struct {
	Number           uint32
	BytesTransferred uint64
}

// TransferKey identifies one transfer's persisted sync-point state.
type TransferKey struct {
	Partner     string
	VirtualFile string
	TransferID  uint32
}

// SyncPointStore persists and recalls the last acknowledged sync point
// for a transfer, mirroring the repository-interface pattern the
// validator's PartnerStore/FileStore also follow so a real store can be
// swapped for a test double.
type SyncPointStore interface {
	Save(key TransferKey, rec SyncPointRecord) error
	Load(key TransferKey) (SyncPointRecord, bool)
}

// MemorySyncPointStore is an in-memory SyncPointStore, the default when
// no durable store is configured and the implementation used by tests.
type MemorySyncPointStore struct {
	records map[TransferKey]SyncPointRecord
}

// NewMemorySyncPointStore returns an empty in-memory store.
func NewMemorySyncPointStore() *MemorySyncPointStore {
	return &MemorySyncPointStore{records: make(map[TransferKey]SyncPointRecord)}
}

func (m *MemorySyncPointStore) Save(key TransferKey, rec SyncPointRecord) error {
	m.records[key] = rec
	return nil
}

func (m *MemorySyncPointStore) Load(key TransferKey) (SyncPointRecord, bool) {
	rec, ok := m.records[key]
	return rec, ok
}

// Status is the terminal outcome of a Send or Receive call.
type Status int

const (
	StatusCompleted Status = iota
	StatusCancelled
	StatusFailed
)

func (s Status) String() string {
	switch s {
	case StatusCompleted:
		return "COMPLETED"
	case StatusCancelled:
		return "CANCELLED"
	case StatusFailed:
		return "FAILED"
	default:
		return "UNKNOWN"
	}
}

// Result reports how a transfer ended.
type Result struct {
	Status           Status
	TransferID       uint32
	BytesTransferred uint64
	LastSyncPoint    uint32
}

// Plan carries everything the engine needs to drive one transfer. Callers
// fill in the fields relevant to the direction they're using (Send reads
// Source, Receive writes Sink).
type Plan struct {
	Demandeur   string // PI_03, initiator partner id
	Serveur     string // PI_04, target server id
	Password    string // PI_05, optional
	VirtualFile string // PI_12

	// TransferID is used verbatim if non-zero (e.g. a replay reusing a
	// fresh id the caller already minted); otherwise the engine mints one
	// via NextTransferID.
	TransferID   uint32
	Priority     byte
	RecordLength uint16
	// FileSize is the total size in bytes if known, or -1. Drives
	// PI_42_MAX_RESERVATION and the fileSizeKnown flag reported to the
	// observer.
	FileSize int64

	// SyncIntervalKB is the caller's preferred sync-point interval; 0
	// means "apply the automatic policy" (spec.md §4.6.1).
	SyncIntervalKB uint16
	AckWindow      byte

	// Resume, when true, looks up the stored SyncPointRecord for this
	// (Demandeur, VirtualFile, TransferID) and starts from the recorded
	// offset instead of 0 (spec.md §4.6.4). Resume requires the stored
	// record to exist with Number > 0; otherwise the engine returns
	// diag.ErrResumeIneligible.
	Resume bool

	Source streamio.Source // required for Send
	Sink   streamio.Sink   // required for Receive

	// Limiter optionally caps outbound/inbound byte rate per DTF chunk
	// (golang.org/x/time/rate), grounded on nishisan-dev/n-backup's
	// transfer-throttling use of the same package.
	Limiter *rate.Limiter

	// Cancel, when non-nil, is polled once per chunk; setting it true
	// from another goroutine requests cooperative cancellation (spec.md
	// §5 "Cancellation semantics").
	Cancel *atomic.Bool

	Store SyncPointStore // defaults to a fresh MemorySyncPointStore if nil
}

// syncIntervalBytes applies spec.md §4.6.1's automatic sync-point
// interval policy when the caller didn't pin one, keyed on total file
// size. Returns 0 (disabled) when size is unknown and no explicit
// interval was given.
func syncIntervalBytes(plan *Plan) uint32 {
	if plan.SyncIntervalKB > 0 {
		return uint32(plan.SyncIntervalKB) * 1024
	}
	if plan.FileSize < 0 {
		return 0
	}
	const mib = 1 << 20
	switch {
	case plan.FileSize < mib:
		return 0
	case plan.FileSize < 10*mib:
		return 256 * 1024
	case plan.FileSize < 100*mib:
		return 1 * mib
	default:
		return 5 * mib
	}
}

func (p *Plan) store() SyncPointStore {
	if p.Store != nil {
		return p.Store
	}
	p.Store = NewMemorySyncPointStore()
	return p.Store
}

// Engine drives one Send or Receive over an established session.Session.
type Engine struct {
	sess *session.Session
	obs  observer.Sink
}

// New wraps a session and observer as an Engine. A nil observer becomes
// observer.Noop.
func New(sess *session.Session, obs observer.Sink) *Engine {
	if obs == nil {
		obs = observer.Noop{}
	}
	return &Engine{sess: sess, obs: obs}
}

func maxEntitySize(recordLength uint16) uint16 {
	return recordLength + 6
}

func kib(bytes int64) uint32 {
	if bytes <= 0 {
		return 0
	}
	return uint32((bytes + 1023) / 1024)
}

func errf(format string, args ...any) error {
	return fmt.Errorf("transfer: "+format, args...)
}
