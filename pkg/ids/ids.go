// Package ids defines the opaque, monotonically allocated identifiers used
// throughout the kernel: process, endpoint, capability slot, commit
// sequence, syscall sequence, and async request identifiers. None of these
// except CapSlot are ever reused within a boot.
package ids

import "sync/atomic"

// ProcessId identifies a process for the lifetime of a boot.
type ProcessId uint64

// EndpointId identifies an IPC endpoint for the lifetime of a boot.
type EndpointId uint64

// CapSlot identifies a slot in a process's capability space. Slots are
// dense per-process and may be reused after the capability occupying them
// is revoked and the slot freed. Each capability space hands out slots from
// its own counter, starting at 0; the Allocator below is not used for them.
type CapSlot uint32

// CommitSeq orders entries in the CommitLog.
type CommitSeq uint64

// SyscallSeq orders entries in the SysLog.
type SyscallSeq uint64

// RequestId ties an asynchronous I/O request to its eventual completion.
type RequestId uint64

// Allocator hands out monotonically increasing identifiers starting at 1.
// Next never returns zero, so zero can serve as a "no id" sentinel for the
// identifiers it allocates. Capability slots and CommitLog sequence numbers
// are not allocated here and do start at zero.
//
// A plain atomic counter is all that is required here: the allocator has no
// domain logic (no collision resolution, no persistence, no distribution)
// for a third-party library to improve on. See DESIGN.md.
type Allocator struct {
	next atomic.Uint64
}

// Next returns the next identifier, starting at 1.
func (a *Allocator) Next() uint64 {
	return a.next.Add(1)
}

// NextProcessId allocates the next ProcessId.
func (a *Allocator) NextProcessId() ProcessId { return ProcessId(a.Next()) }

// NextEndpointId allocates the next EndpointId.
func (a *Allocator) NextEndpointId() EndpointId { return EndpointId(a.Next()) }

// NextCommitSeq allocates the next CommitSeq.
func (a *Allocator) NextCommitSeq() CommitSeq { return CommitSeq(a.Next()) }

// NextSyscallSeq allocates the next SyscallSeq.
func (a *Allocator) NextSyscallSeq() SyscallSeq { return SyscallSeq(a.Next()) }

// NextRequestId allocates the next RequestId.
func (a *Allocator) NextRequestId() RequestId { return RequestId(a.Next()) }
