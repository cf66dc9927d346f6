package statemachine

import "github.com/hors-sit/pesitd/internal/fpdu"

type transitions map[State]map[fpdu.Kind]State

func addDTF(t map[fpdu.Kind]State, self State) {
	for _, k := range dtfKinds {
		t[k] = self
	}
}

// responderTable is the (state, received_kind) -> next_state table from
// the responder's point of view (spec.md §4.5 excerpt, filled out with
// the ordering the §8 S1 happy-path scenario and §4.6 transfer
// walkthroughs imply for the transitions the excerpt leaves unstated).
func responderTable() transitions {
	t := transitions{
		IDLE: {
			fpdu.CONNECT: CONNECTED,
		},
		CONNECTED: {
			fpdu.CREATE:  FILE_SELECTED,
			fpdu.SELECT:  FILE_SELECTED,
			fpdu.MSG:     CONNECTED,
			fpdu.MSGDM:   MSG_RECEIVING,
			fpdu.RELEASE: TERMINAL,
		},
		FILE_SELECTED: {
			fpdu.OPEN:     TRANSFER_READY,
			fpdu.DESELECT: CONNECTED,
		},
		TRANSFER_READY: {
			fpdu.WRITE: RECEIVING_DATA,
			fpdu.READ:  SENDING_DATA,
			fpdu.CLOSE: FILE_SELECTED,
		},
		RECEIVING_DATA: {
			fpdu.SYN:     RECEIVING_DATA,
			fpdu.IDT:     RECEIVING_DATA,
			fpdu.DTF_END: WRITE_END,
		},
		SENDING_DATA: {
			fpdu.ACK_SYN:   SENDING_DATA,
			fpdu.SYN:       SENDING_DATA,
			fpdu.TRANS_END: TRANSFER_READY,
		},
		WRITE_END: {
			fpdu.TRANS_END: TRANSFER_READY,
		},
		MSG_RECEIVING: {
			fpdu.MSGMM: MSG_RECEIVING,
			fpdu.MSGFM: CONNECTED,
		},
		TERMINAL: {},
	}
	addDTF(t[RECEIVING_DATA], RECEIVING_DATA)
	return t
}

// initiatorTable mirrors responderTable from the initiator's point of
// view: the initiator is the one emitting WRITE/READ, so the inbound
// kinds it must validate in the data states are the acknowledgements and
// the peer's DTF stream on a receive, not its own outbound traffic.
func initiatorTable() transitions {
	t := transitions{
		IDLE: {
			fpdu.ACONNECT: CONNECTED,
		},
		CONNECTED: {
			fpdu.ACK_CREATE: FILE_SELECTED,
			fpdu.ACK_SELECT: FILE_SELECTED,
			fpdu.MSG:        CONNECTED,
			fpdu.MSGDM:      MSG_RECEIVING,
			fpdu.RELCONF:    TERMINAL,
		},
		FILE_SELECTED: {
			fpdu.ACK_OPEN:     TRANSFER_READY,
			fpdu.ACK_DESELECT: CONNECTED,
		},
		TRANSFER_READY: {
			fpdu.ACK_WRITE: SENDING_DATA,
			fpdu.ACK_READ:  RECEIVING_DATA,
			fpdu.ACK_CLOSE: FILE_SELECTED,
		},
		RECEIVING_DATA: {
			fpdu.SYN:     RECEIVING_DATA,
			fpdu.IDT:     RECEIVING_DATA,
			fpdu.DTF_END: WRITE_END,
		},
		SENDING_DATA: {
			fpdu.ACK_SYN:       SENDING_DATA,
			fpdu.ACK_TRANS_END: TRANSFER_READY,
		},
		WRITE_END: {
			fpdu.ACK_TRANS_END: TRANSFER_READY,
		},
		MSG_RECEIVING: {
			fpdu.MSGMM: MSG_RECEIVING,
			fpdu.MSGFM: CONNECTED,
		},
		TERMINAL: {},
	}
	addDTF(t[RECEIVING_DATA], RECEIVING_DATA)
	return t
}
