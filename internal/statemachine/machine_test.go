package statemachine

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hors-sit/pesitd/internal/fpdu"
)

// TestResponderHappyPathS1 walks the responder side of spec.md §8's S1
// scenario order: CONNECT, CREATE, OPEN, WRITE, DTF, DTF_END, TRANS_END,
// CLOSE, DESELECT, RELEASE.
func TestResponderHappyPathS1(t *testing.T) {
	m := New(Responder)

	steps := []struct {
		kind fpdu.Kind
		want State
	}{
		{fpdu.CONNECT, CONNECTED},
		{fpdu.CREATE, FILE_SELECTED},
		{fpdu.OPEN, TRANSFER_READY},
		{fpdu.WRITE, RECEIVING_DATA},
		{fpdu.DTF, RECEIVING_DATA},
		{fpdu.DTF_END, WRITE_END},
		{fpdu.TRANS_END, TRANSFER_READY},
		{fpdu.CLOSE, FILE_SELECTED},
		{fpdu.DESELECT, CONNECTED},
		{fpdu.RELEASE, TERMINAL},
	}
	for _, step := range steps {
		result := m.Step(step.kind)
		require.False(t, result.Aborted, "kind %s should not abort", step.kind)
		assert.Equal(t, step.want, result.Next)
		assert.Equal(t, step.want, m.State())
	}
}

// TestResponderHappyPathS1Read walks the responder side of a READ transfer:
// the responder produces the data, sends DTF_END itself (never stepped),
// and then receives TRANS_END directly from SENDING_DATA.
func TestResponderHappyPathS1Read(t *testing.T) {
	m := New(Responder)

	steps := []struct {
		kind fpdu.Kind
		want State
	}{
		{fpdu.CONNECT, CONNECTED},
		{fpdu.SELECT, FILE_SELECTED},
		{fpdu.OPEN, TRANSFER_READY},
		{fpdu.READ, SENDING_DATA},
		{fpdu.ACK_SYN, SENDING_DATA},
		{fpdu.TRANS_END, TRANSFER_READY},
		{fpdu.CLOSE, FILE_SELECTED},
		{fpdu.DESELECT, CONNECTED},
		{fpdu.RELEASE, TERMINAL},
	}
	for _, step := range steps {
		result := m.Step(step.kind)
		require.False(t, result.Aborted, "kind %s should not abort", step.kind)
		assert.Equal(t, step.want, result.Next)
	}
}

// TestInitiatorHappyPathS1Receive walks the initiator side of a Receive
// (READ) transfer: the initiator pulls the file, so the inbound kinds it
// steps are SYN/IDT/DTF*/DTF_END from the responder, then its own
// TRANS_END round-trips as an ACK.
func TestInitiatorHappyPathS1Receive(t *testing.T) {
	m := New(Initiator)

	steps := []struct {
		kind fpdu.Kind
		want State
	}{
		{fpdu.ACONNECT, CONNECTED},
		{fpdu.ACK_SELECT, FILE_SELECTED},
		{fpdu.ACK_OPEN, TRANSFER_READY},
		{fpdu.ACK_READ, RECEIVING_DATA},
		{fpdu.DTF, RECEIVING_DATA},
		{fpdu.DTF_END, WRITE_END},
		{fpdu.ACK_TRANS_END, TRANSFER_READY},
		{fpdu.ACK_CLOSE, FILE_SELECTED},
		{fpdu.ACK_DESELECT, CONNECTED},
		{fpdu.RELCONF, TERMINAL},
	}
	for _, step := range steps {
		result := m.Step(step.kind)
		require.False(t, result.Aborted, "kind %s should not abort", step.kind)
		assert.Equal(t, step.want, result.Next)
	}
}

// TestInitiatorHappyPathS1Send walks the initiator side of a Send (WRITE)
// transfer: the initiator pushes the file and its own DTF/DTF_END frames
// are never stepped (they're outbound), so ACK_WRITE lands directly in
// SENDING_DATA and ACK_TRANS_END closes it out from there, skipping
// WRITE_END entirely.
func TestInitiatorHappyPathS1Send(t *testing.T) {
	m := New(Initiator)

	steps := []struct {
		kind fpdu.Kind
		want State
	}{
		{fpdu.ACONNECT, CONNECTED},
		{fpdu.ACK_CREATE, FILE_SELECTED},
		{fpdu.ACK_OPEN, TRANSFER_READY},
		{fpdu.ACK_WRITE, SENDING_DATA},
		{fpdu.ACK_SYN, SENDING_DATA},
		{fpdu.ACK_TRANS_END, TRANSFER_READY},
		{fpdu.ACK_CLOSE, FILE_SELECTED},
		{fpdu.ACK_DESELECT, CONNECTED},
		{fpdu.RELCONF, TERMINAL},
	}
	for _, step := range steps {
		result := m.Step(step.kind)
		require.False(t, result.Aborted, "kind %s should not abort", step.kind)
		assert.Equal(t, step.want, result.Next)
	}
}

// TestStateMachineClosure is Testable Property 3: every (state,
// received_kind) absent from the table produces ABORT->TERMINAL, and no
// state but TERMINAL is a sink.
func TestStateMachineClosure(t *testing.T) {
	allStates := []State{IDLE, CONNECTED, FILE_SELECTED, TRANSFER_READY, RECEIVING_DATA, SENDING_DATA, WRITE_END, MSG_RECEIVING}
	unexpectedKind := fpdu.RESYN // not wired into CONNECTED in the responder table

	for _, st := range allStates {
		m := New(Responder)
		m.state = st
		result := m.Step(unexpectedKind)
		assert.True(t, result.Aborted, "state %s should abort on unhandled kind", st)
		assert.Equal(t, TERMINAL, result.Next)
		assert.Equal(t, TERMINAL, m.State())
	}
}

func TestAbortAlwaysTerminates(t *testing.T) {
	m := New(Responder)
	m.Step(fpdu.CONNECT)
	m.Step(fpdu.CREATE)

	result := m.Step(fpdu.ABORT)
	assert.True(t, result.Aborted)
	assert.Equal(t, TERMINAL, m.State())
}

func TestTerminalIsSink(t *testing.T) {
	m := New(Responder)
	m.state = TERMINAL

	result := m.Step(fpdu.CONNECT)
	assert.True(t, result.Aborted)
	assert.Equal(t, TERMINAL, m.State())
}

func TestMsgReceivingRejectsOutsideState(t *testing.T) {
	m := New(Responder)
	m.Step(fpdu.CONNECT)

	result := m.Step(fpdu.MSGFM)
	assert.True(t, result.Aborted)
}
