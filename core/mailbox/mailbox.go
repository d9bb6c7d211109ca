// Package mailbox implements the fixed-layout shared mailbox that is the
// sole syscall transport between an isolate and the supervisor (spec.md
// §6). A real deployment target maps this as shared linear memory between
// the isolate and the host; Go's version is a plain struct with an atomic
// STATUS word standing in for the hardware memory-barrier contract that
// word provides in a true shared-memory mapping.
package mailbox

import "sync/atomic"

// DataBytes is the size of the mailbox's DATA region. It equals
// kernel.MaxPayloadBytes, so a maximal payload does not also fit the
// 12-byte framing that a received message carries.
const DataBytes = 16356

// Size is the Mailbox struct's nominal shared-memory footprint in bytes,
// as reported by hal.HAL.MemoryBytes for a freshly spawned isolate.
const Size = 4 + 4 + 4*4 + 4 + 4 + DataBytes + 4

// Status is the mailbox STATUS word. Only three values are ever observed;
// the isolate and the supervisor each only ever write the transition that
// is theirs to make, so the atomic word never needs a lock to be read
// safely across the two sides.
type Status uint32

const (
	// Idle: no syscall in flight. Only the isolate may transition this to
	// Pending.
	Idle Status = iota
	// Pending: the isolate has written SyscallNum/Args/Data and is
	// awaiting the supervisor. Only the supervisor may transition this to
	// Ready.
	Pending
	// Ready: the supervisor has written Result/Data and the isolate may
	// consume it. Only the isolate may transition this back to Idle.
	Ready
)

// Mailbox is the fixed-layout syscall mailbox. Fields other than status
// are touched by exactly one side at a time under the STATUS protocol
// above, matching how a real shared-memory mailbox enforces exclusivity
// without a lock.
type Mailbox struct {
	status Status32

	// Request fields, written by the isolate before raising Pending.
	SyscallNum uint32
	Args       [4]uint32

	// Response fields, written by the supervisor before raising Ready.
	Result int32

	DataLen uint32
	Data    [DataBytes]byte

	// PID is stamped once at isolate creation and never mutated again; it
	// lets the supervisor's mailbox pump identify the caller without a
	// side table.
	PID uint32
}

// Status32 is an atomic.Uint32 typed as a Status, giving Mailbox.status a
// lock-free load/store/CAS surface.
type Status32 struct {
	v atomic.Uint32
}

func (s *Status32) Load() Status       { return Status(s.v.Load()) }
func (s *Status32) Store(v Status)     { s.v.Store(uint32(v)) }
func (s *Status32) CompareAndSwap(old, new Status) bool {
	return s.v.CompareAndSwap(uint32(old), uint32(new))
}

// New returns an Idle mailbox.
func New() *Mailbox {
	return &Mailbox{}
}

// Status returns the current STATUS word.
func (m *Mailbox) Status() Status { return m.status.Load() }

// SubmitSyscall is called by isolate code: it writes the request fields
// and raises Pending. It panics if the mailbox is not Idle, since the ABI
// only ever issues one syscall at a time per isolate (spec.md §6: the
// isolate blocks, in its own cooperative sense, until Ready).
func (m *Mailbox) SubmitSyscall(num uint32, args [4]uint32, data []byte) {
	if m.status.Load() != Idle {
		panic("mailbox: SubmitSyscall called while not Idle")
	}
	m.SyscallNum = num
	m.Args = args
	m.DataLen = uint32(len(data))
	copy(m.Data[:], data)
	m.status.Store(Pending)
}

// TryTakePending is called by the supervisor's poll loop. It reports
// whether a request was waiting and, if so, copies it out, leaving STATUS
// at Pending until CompleteSyscall raises Ready. This is safe only because
// exactly one goroutine ever polls a given mailbox (Supervisor.Run's single
// pump loop, per spec.md invariant 6); it is not itself safe against two
// concurrent pollers racing the same mailbox, since no exchange here stops
// both from reading the same pending request as "waiting."
func (m *Mailbox) TryTakePending() (num uint32, args [4]uint32, data []byte, ok bool) {
	if m.status.Load() != Pending {
		return 0, args, nil, false
	}
	data = make([]byte, m.DataLen)
	copy(data, m.Data[:m.DataLen])
	return m.SyscallNum, m.Args, data, true
}

// CompleteSyscall is called by the supervisor once Axiom has returned a
// result: it writes the response fields and raises Ready.
func (m *Mailbox) CompleteSyscall(result int32, data []byte) {
	m.Result = result
	m.DataLen = uint32(len(data))
	copy(m.Data[:], data)
	m.status.Store(Ready)
}

// TryTakeReady is called by isolate code polling for its syscall result.
// On success it resets STATUS to Idle, since the isolate is the only
// party allowed to make that transition.
func (m *Mailbox) TryTakeReady() (result int32, data []byte, ok bool) {
	if m.status.Load() != Ready {
		return 0, nil, false
	}
	data = make([]byte, m.DataLen)
	copy(data, m.Data[:m.DataLen])
	m.status.Store(Idle)
	return m.Result, data, true
}
