// Package statemachine implements the PeSIT session state graph
// (spec.md §4.5): a total (state, received_kind) -> next_state table per
// role, closed under ABORT so no non-terminal state is a sink.
package statemachine

import "github.com/hors-sit/pesitd/internal/fpdu"

// State is a PeSIT session state (spec.md §4.5, responder view; the
// initiator graph is mirrored onto the same state names).
type State int

const (
	IDLE State = iota
	CONNECTED
	FILE_SELECTED
	TRANSFER_READY
	RECEIVING_DATA
	SENDING_DATA
	WRITE_END
	MSG_RECEIVING
	TERMINAL
)

var stateNames = map[State]string{
	IDLE:           "CN01_IDLE",
	CONNECTED:      "CN03_CONNECTED",
	FILE_SELECTED:  "SF03_FILE_SELECTED",
	TRANSFER_READY: "OF02_TRANSFER_READY",
	RECEIVING_DATA: "TDE02B_RECEIVING_DATA",
	SENDING_DATA:   "TDL02B_SENDING_DATA",
	WRITE_END:      "TDE07_WRITE_END",
	MSG_RECEIVING:  "MSG_RECEIVING",
	TERMINAL:       "TERMINAL",
}

func (s State) String() string {
	if name, ok := stateNames[s]; ok {
		return name
	}
	return "UNKNOWN_STATE"
}

// Role distinguishes which mirrored graph a Machine enforces.
type Role int

const (
	Responder Role = iota
	Initiator
)

// Result is the outcome of one Step: either a valid transition to Next,
// or Aborted with the diag code the machine assigns per spec.md §4.5
// ("unknown transitions always produce ABORT with diag D3_301").
type Result struct {
	Next    State
	Aborted bool
	Diag    [3]byte
}

// dtfKinds is the set of FPDU kinds treated identically by the data
// states, mirroring fpdu.Kind.IsDataTransfer's DTF/DTFDA/DTFMA/DTFFA set.
var dtfKinds = []fpdu.Kind{fpdu.DTF, fpdu.DTFDA, fpdu.DTFMA, fpdu.DTFFA}
