package statemachine

import (
	"github.com/hors-sit/pesitd/internal/diag"
	"github.com/hors-sit/pesitd/internal/fpdu"
)

// Machine enforces one side's PeSIT session state graph. It is not
// goroutine-safe; the owning Session/Engine serializes calls.
type Machine struct {
	role  Role
	table transitions
	state State
}

// New starts a Machine in IDLE for the given role.
func New(role Role) *Machine {
	t := responderTable()
	if role == Initiator {
		t = initiatorTable()
	}
	return &Machine{role: role, table: t, state: IDLE}
}

// State returns the current state.
func (m *Machine) State() State { return m.state }

// Role returns which graph this machine enforces.
func (m *Machine) Role() Role { return m.role }

// Step validates an inbound FPDU kind against the current state and
// advances it. Every state accepts ABORT and moves to TERMINAL (spec.md
// §4.5 "Every state accepts ABORT and transitions to TERMINAL"). Any
// (state, kind) absent from the table is Testable Property 3's closure
// case: ABORT with diag D3_301, also moving to TERMINAL — so TERMINAL is
// the only sink state.
func (m *Machine) Step(kind fpdu.Kind) Result {
	if kind == fpdu.ABORT {
		m.state = TERMINAL
		return Result{Next: TERMINAL, Aborted: true, Diag: diag.UnexpectedFPDU.Bytes()}
	}
	if m.state == TERMINAL {
		return Result{Next: TERMINAL, Aborted: true, Diag: diag.UnexpectedFPDU.Bytes()}
	}

	next, ok := m.table[m.state][kind]
	if !ok {
		m.state = TERMINAL
		return Result{Next: TERMINAL, Aborted: true, Diag: diag.UnexpectedFPDU.Bytes()}
	}
	m.state = next
	return Result{Next: next}
}

// Reset returns the machine to IDLE, e.g. to reuse it across a
// supervisor's connection pool (each connection still gets its own
// Machine in practice; Reset exists for tests).
func (m *Machine) Reset() {
	m.state = IDLE
}
