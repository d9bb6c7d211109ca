// Package kernel holds the private KernelInterior: the sole owner of all
// mutable kernel state (processes, capability spaces, endpoints, the
// pending-request table), behind unexported fields reachable only by this
// package's own methods. Every mutation method returns the commits it
// produced and nothing else mutates this state. New is exported because the
// composition root (cmd/zosd) must construct the one Interior the whole
// daemon shares, but from that point on the Axiom-first invariant is
// enforced by distribution, not by hiding the constructor: core/axiom is
// the only package ever handed the concrete *Interior (via New, by the
// composition root), and it never lets that reference escape — Gateway.
// Interior returns the narrower ReadOnlyInterior, so every mutation method
// is reachable only from inside Op closures run through Syscall or
// InternalOperation.
package kernel

import (
	"fmt"
	"sync"

	"github.com/zeroos/zeroos/core/capability"
	"github.com/zeroos/zeroos/core/commit"
	"github.com/zeroos/zeroos/pkg/ids"
)

// objectKey identifies a kernel object whose generation counter governs
// capability validity: (object type, object id).
type objectKey struct {
	t  capability.ObjectType
	id uint64
}

// PendingRequest records an in-flight asynchronous I/O request so its
// eventual completion can be routed back to the waiting process by
// HandleCompletion.
type PendingRequest struct {
	WaitingPid ids.ProcessId
	Kind       string
}

// Interior is the private mutable kernel state. It is constructed once by
// the supervisor composition root and from then on reachable only through
// Axiom.Syscall / Axiom.InternalOperation closures.
type Interior struct {
	mu sync.RWMutex

	allocIds ids.Allocator

	processes map[ids.ProcessId]*processEntry
	capSpaces map[ids.ProcessId]*capSpace
	endpoints map[ids.EndpointId]*endpointEntry
	pending   map[ids.RequestId]PendingRequest

	generations map[objectKey]uint64

	scheduler *Scheduler

	// deliveryChans carries a Message to a process blocked in a
	// receive/call/notification wait. Each channel is buffered to depth 1:
	// exactly one outstanding delivery may be in flight per process at a
	// time, which holds because a process can only be in one blocking wait
	// at once. Sends happen under mu and must never block — see
	// deliver().
	deliveryChans map[ids.ProcessId]chan Message

	bootNs uint64 // monotonic ns at kernel construction, for uptime_ns
	nowNs  func() uint64
}

// New constructs an empty Interior. nowNs supplies monotonic time for
// uptime_ns and LastActivity bookkeeping (normally hal.HAL.NowMonotonicNs).
func New(nowNs func() uint64) *Interior {
	return &Interior{
		processes:     make(map[ids.ProcessId]*processEntry),
		capSpaces:     make(map[ids.ProcessId]*capSpace),
		endpoints:     make(map[ids.EndpointId]*endpointEntry),
		pending:       make(map[ids.RequestId]PendingRequest),
		generations:   make(map[objectKey]uint64),
		scheduler:     newScheduler(),
		deliveryChans: make(map[ids.ProcessId]chan Message),
		bootNs:        nowNs(),
		nowNs:         nowNs,
	}
}

func (k *Interior) deliveryChan(pid ids.ProcessId) chan Message {
	ch, ok := k.deliveryChans[pid]
	if !ok {
		ch = make(chan Message, 1)
		k.deliveryChans[pid] = ch
	}
	return ch
}

// deliver hands msg to pid's blocking wait. Callers must hold mu. The send
// is non-blocking by construction (capacity 1, and a process can have only
// one outstanding wait), so this never suspends the mutation method.
func (k *Interior) deliver(pid ids.ProcessId, msg Message) {
	ch := k.deliveryChan(pid)
	select {
	case ch <- msg:
	default:
		// A process can only be blocked on one wait at a time; a full
		// channel here indicates a kernel invariant violation rather than
		// a condition a caller can recover from.
		panic(fmt.Sprintf("zeroos/kernel: delivery channel for pid %d already full", pid))
	}
}

// DeliveryChan returns the channel a process-runtime loop should wait on
// after a blocking ipc_receive, ipc_call, or notification wait returned
// Blocked. It must be read outside of any kernel lock — this is the one
// real suspension point the spec allows outside the mailbox STATUS wait.
func (k *Interior) DeliveryChan(pid ids.ProcessId) <-chan Message {
	k.mu.Lock()
	defer k.mu.Unlock()
	return k.deliveryChan(pid)
}

func (k *Interior) bumpGeneration(t capability.ObjectType, id uint64) uint64 {
	key := objectKey{t, id}
	k.generations[key]++
	return k.generations[key]
}

func (k *Interior) generation(t capability.ObjectType, id uint64) uint64 {
	return k.generations[objectKey{t, id}]
}

// ReadOnlyInterior is the view of Interior safe to hand out directly,
// without going through Axiom: every method here only reads state or
// (DeliveryChan) lazily allocates bookkeeping that is never itself part of
// committed kernel state. core/axiom.Gateway.Interior returns this
// interface rather than *Interior so that a caller outside this package
// can query kernel state directly (spec.md §4.C) but cannot reach any
// mutation method — those stay reachable only through Syscall/
// InternalOperation closures, which see the concrete *Interior.
type ReadOnlyInterior interface {
	GetProcess(pid ids.ProcessId) (Process, error)
	ListProcesses() []Process
	ListEndpoints() []Endpoint
	GetCapabilitySpace(pid ids.ProcessId) (map[ids.CapSlot]capability.Capability, error)
	UptimeNs() uint64
	Runnable() []ids.ProcessId
	DeliveryChan(pid ids.ProcessId) <-chan Message
}

// ---- Read-only queries: safe for concurrent callers, no commits. ----

// GetProcess returns a snapshot of pid, or ErrProcessNotFound.
func (k *Interior) GetProcess(pid ids.ProcessId) (Process, error) {
	k.mu.RLock()
	defer k.mu.RUnlock()
	p, ok := k.processes[pid]
	if !ok {
		return Process{}, ErrProcessNotFound
	}
	return p.snapshot(), nil
}

// ListProcesses returns a snapshot of every process, including zombies
// awaiting reap.
func (k *Interior) ListProcesses() []Process {
	k.mu.RLock()
	defer k.mu.RUnlock()
	out := make([]Process, 0, len(k.processes))
	for _, p := range k.processes {
		out = append(out, p.snapshot())
	}
	return out
}

// ListEndpoints returns a snapshot of every live endpoint.
func (k *Interior) ListEndpoints() []Endpoint {
	k.mu.RLock()
	defer k.mu.RUnlock()
	out := make([]Endpoint, 0, len(k.endpoints))
	for _, e := range k.endpoints {
		out = append(out, e.snapshot())
	}
	return out
}

// GetCapabilitySpace returns a copy of pid's slot -> capability mapping.
func (k *Interior) GetCapabilitySpace(pid ids.ProcessId) (map[ids.CapSlot]capability.Capability, error) {
	k.mu.RLock()
	defer k.mu.RUnlock()
	cs, ok := k.capSpaces[pid]
	if !ok {
		return nil, ErrProcessNotFound
	}
	out := make(map[ids.CapSlot]capability.Capability, len(cs.slots))
	for slot, cap := range cs.slots {
		out[slot] = cap
	}
	return out, nil
}

// UptimeNs returns nanoseconds of monotonic time since this Interior was
// constructed.
func (k *Interior) UptimeNs() uint64 {
	return k.nowNs() - k.bootNs
}

// Runnable returns the current logical scheduler order, for introspection.
func (k *Interior) Runnable() []ids.ProcessId {
	k.mu.RLock()
	defer k.mu.RUnlock()
	return k.scheduler.Runnable()
}
