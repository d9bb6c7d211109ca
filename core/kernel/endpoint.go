package kernel

import (
	"github.com/zeroos/zeroos/core/capability"
	"github.com/zeroos/zeroos/pkg/ids"
)

// EndpointState is the endpoint state machine: Active -> Closing ->
// (removed). Closing drains remaining receivers with EndpointClosed and
// queues no further messages.
type EndpointState uint8

const (
	EndpointActive EndpointState = iota
	EndpointClosing
)

// MaxPayloadBytes bounds a Message's payload to the mailbox transport's data
// region (16 KiB minus the fixed header fields). Services needing more must
// chunk and tag explicitly at the protocol level; the kernel enforces this
// bound independent of which mailbox transport is in use.
const MaxPayloadBytes = 16356

// DefaultPendingBound is the default maximum depth of an endpoint's pending
// message queue before ipc_send returns WouldBlock.
const DefaultPendingBound = 64

// Message is delivered over an endpoint: a tag, verified sender identity,
// destination endpoint, a bounded payload, and any capabilities transferred
// with the message.
type Message struct {
	Tag             uint32
	From            ids.ProcessId
	To              ids.EndpointId
	Payload         []byte
	TransferredCaps []capability.Capability
}

// endpointEntry is the kernel-internal mutable record for an endpoint.
//
// Invariant: at most one of receivers/pending is non-empty at rest — a
// pending message is always delivered to the head receiver if one is
// waiting, and ipc_send checks the receivers queue before ever enqueuing to
// pending.
type endpointEntry struct {
	id       ids.EndpointId
	owner    ids.ProcessId
	state    EndpointState
	receivers []ids.ProcessId // FIFO of processes blocked in ipc_receive
	pending   []Message       // FIFO of undelivered messages
	bound     int
}

func newEndpointEntry(id ids.EndpointId, owner ids.ProcessId) *endpointEntry {
	return &endpointEntry{
		id:    id,
		owner: owner,
		state: EndpointActive,
		bound: DefaultPendingBound,
	}
}

func (e *endpointEntry) popReceiver() (ids.ProcessId, bool) {
	if len(e.receivers) == 0 {
		return 0, false
	}
	pid := e.receivers[0]
	e.receivers = e.receivers[1:]
	return pid, true
}

func (e *endpointEntry) pushReceiver(pid ids.ProcessId) {
	e.receivers = append(e.receivers, pid)
}

func (e *endpointEntry) popPending() (Message, bool) {
	if len(e.pending) == 0 {
		return Message{}, false
	}
	m := e.pending[0]
	e.pending = e.pending[1:]
	return m, true
}

func (e *endpointEntry) pushPending(m Message) bool {
	if len(e.pending) >= e.bound {
		return false
	}
	e.pending = append(e.pending, m)
	return true
}

// Endpoint is a read-only snapshot of an endpoint.
type Endpoint struct {
	Id           ids.EndpointId
	Owner        ids.ProcessId
	State        EndpointState
	Receivers    int
	PendingDepth int
}

func (e *endpointEntry) snapshot() Endpoint {
	return Endpoint{
		Id:           e.id,
		Owner:        e.owner,
		State:        e.state,
		Receivers:    len(e.receivers),
		PendingDepth: len(e.pending),
	}
}
