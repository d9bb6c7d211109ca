// Package supervisor is the trusted host loop: it polls every isolate's
// mailbox, identifies the caller from the mailbox's own stamped PID (never
// from the syscall payload — this is what Sender Faithfulness rests on),
// dispatches the request through Axiom.Syscall, and writes the result
// back. It also drains HAL completions and routes them into the kernel via
// Axiom.InternalOperation + Interior.HandleCompletion. It is modeled on
// the teacher's shim/task run loop: a single poller goroutine drives every
// concern, no isolate ever mutates kernel state directly.
package supervisor

import (
	"context"
	"encoding/binary"
	"fmt"
	"time"

	"github.com/containerd/log"

	"github.com/zeroos/zeroos/core/axiom"
	"github.com/zeroos/zeroos/core/capability"
	"github.com/zeroos/zeroos/core/commit"
	"github.com/zeroos/zeroos/core/hal"
	"github.com/zeroos/zeroos/core/kernel"
	"github.com/zeroos/zeroos/core/mailbox"
	"github.com/zeroos/zeroos/pkg/ids"
)

// Syscall numbers, per spec.md §6. Kept here rather than in core/kernel
// since they name the ABI boundary, not kernel-internal structure.
const (
	SysDebugWrite uint32 = iota
	SysGetTime
	SysGetWallclock
	SysProcSpawn
	SysProcExit
	SysProcKill
	SysProcYield
	SysProcReap
	SysEndpointCreate
	SysIpcSend
	SysIpcReceive
	SysIpcCall
	SysIpcReply
	SysCapGrant
	SysCapRevoke
	SysCapInspect
	SysProcList
	SysIssueAsync
	SysPollCompletions
)

// Mailboxed pairs a mailbox with the hal.Handle the supervisor uses to
// push kernel-notification bytes to it, and the pid it belongs to.
type Mailboxed struct {
	Pid     ids.ProcessId
	Mailbox *mailbox.Mailbox
	Handle  hal.Handle
}

// Supervisor owns the mailbox poll loop and the completion drain loop. It
// holds no kernel state of its own beyond the registry of live mailboxes —
// all real state lives behind Axiom.
type Supervisor struct {
	gateway     *axiom.Gateway
	h           hal.HAL
	mailboxes   map[ids.ProcessId]*Mailboxed
	pollEvery   time.Duration
}

// New constructs a Supervisor driving gateway's kernel through h.
func New(gateway *axiom.Gateway, h hal.HAL) *Supervisor {
	return &Supervisor{
		gateway:   gateway,
		h:         h,
		mailboxes: make(map[ids.ProcessId]*Mailboxed),
		pollEvery: time.Millisecond,
	}
}

// Attach registers pid's mailbox for the poll loop, typically right after
// RegisterProcess + Spawn have both succeeded for a freshly created
// process.
func (s *Supervisor) Attach(pid ids.ProcessId, mb *mailbox.Mailbox, h hal.Handle) {
	s.mailboxes[pid] = &Mailboxed{Pid: pid, Mailbox: mb, Handle: h}
}

// Detach removes pid's mailbox once its process has been reaped.
func (s *Supervisor) Detach(pid ids.ProcessId) {
	delete(s.mailboxes, pid)
}

// Run drives the mailbox poll loop and the completion drain loop until ctx
// is canceled. Both loops share one goroutine deliberately: the spec
// requires the supervisor never block inside a kernel mutation, and a
// single-threaded pump trivially preserves the "one gateway call in
// flight at a time" simplicity this implementation relies on rather than
// adding fine-grained kernel locking beyond Interior's own RWMutex.
func (s *Supervisor) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.pollEvery)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			s.pollMailboxes(ctx)
			s.drainCompletions(ctx)
			s.drainFaults(ctx)
		}
	}
}

func (s *Supervisor) pollMailboxes(ctx context.Context) {
	for pid, mb := range s.mailboxes {
		num, args, data, ok := mb.Mailbox.TryTakePending()
		if !ok {
			continue
		}
		result, respData := s.dispatch(ctx, pid, num, args, data)
		// A blocked ipc_receive and an accepted ipc_call are completed
		// later by awaitDelivery/awaitReply, not here.
		if result == 0 && respData == nil && (num == SysIpcReceive || num == SysIpcCall) {
			continue
		}
		mb.Mailbox.CompleteSyscall(result, respData)
	}
}

// dispatch runs one syscall through Axiom and encodes its result back
// into the mailbox's flat result/data convention. Every case below is a
// thin adapter from mailbox bytes to a typed kernel.Interior call, wrapped
// in exactly one axiom.Syscall so each isolate request produces at most
// one atomic commit batch, per spec.md invariant 6.
func (s *Supervisor) dispatch(ctx context.Context, pid ids.ProcessId, num uint32, args [4]uint32, data []byte) (int32, []byte) {
	switch num {
	case SysDebugWrite:
		_, err := axiom.Syscall(ctx, s.gateway, pid, num, args, func(k *kernel.Interior) (struct{}, []commit.Commit, error) {
			return struct{}{}, nil, nil
		})
		if err != nil {
			return resultCode(err), nil
		}
		s.h.DebugWrite(string(data))
		return 0, nil

	case SysGetTime:
		ns, err := axiom.Syscall(ctx, s.gateway, pid, num, args, func(k *kernel.Interior) (uint64, []commit.Commit, error) {
			return s.h.NowMonotonicNs(), nil, nil
		})
		return resultCode(err), encodeU64(ns)

	case SysGetWallclock:
		ms, err := axiom.Syscall(ctx, s.gateway, pid, num, args, func(k *kernel.Interior) (uint64, []commit.Commit, error) {
			return s.h.NowWallclockMs(), nil, nil
		})
		return resultCode(err), encodeU64(ms)

	case SysProcSpawn:
		name, image := splitNameBinary(data)
		childPid, err := axiom.Syscall(ctx, s.gateway, pid, num, args, func(k *kernel.Interior) (ids.ProcessId, []commit.Commit, error) {
			return k.SpawnProcess(pid, ids.CapSlot(args[0]), name)
		})
		if err != nil {
			return resultCode(err), nil
		}
		handle, spawnErr := s.h.Spawn(ctx, name, image)
		if spawnErr != nil {
			log.L.WithError(spawnErr).WithField("pid", childPid).Warn("zeroos/supervisor: process registered but isolate spawn failed")
			return resultCode(spawnErr), nil
		}
		mb, mbErr := s.h.Mailbox(handle)
		if mbErr != nil {
			return resultCode(mbErr), nil
		}
		mb.PID = uint32(childPid)
		s.Attach(childPid, mb, handle)
		return 0, encodeU64(uint64(childPid))

	case SysProcKill:
		target := ids.ProcessId(args[1])
		_, err := axiom.Syscall(ctx, s.gateway, pid, num, args, func(k *kernel.Interior) (struct{}, []commit.Commit, error) {
			commits, err := k.KillProcess(pid, ids.CapSlot(args[0]), target, int32(args[2]))
			return struct{}{}, commits, err
		})
		if err == nil {
			if mb, ok := s.mailboxes[target]; ok {
				_ = s.h.Kill(ctx, mb.Handle)
				s.Detach(target)
			}
		}
		return resultCode(err), nil

	case SysProcReap:
		target := ids.ProcessId(args[0])
		_, err := axiom.Syscall(ctx, s.gateway, pid, num, args, func(k *kernel.Interior) (struct{}, []commit.Commit, error) {
			commits, err := k.ReapProcess(target)
			return struct{}{}, commits, err
		})
		return resultCode(err), nil

	case SysProcList:
		procs, err := axiom.Syscall(ctx, s.gateway, pid, num, args, func(k *kernel.Interior) ([]kernel.Process, []commit.Commit, error) {
			return k.ListProcesses(), nil, nil
		})
		return resultCode(err), encodeProcessList(procs)

	case SysCapInspect:
		cap, err := axiom.Syscall(ctx, s.gateway, pid, num, args, func(k *kernel.Interior) (capability.Capability, []commit.Commit, error) {
			return k.InspectCapability(pid, ids.CapSlot(args[0]))
		})
		return resultCode(err), encodeCapability(cap)

	case SysIpcSend:
		_, err := axiom.Syscall(ctx, s.gateway, pid, num, args, func(k *kernel.Interior) (struct{}, []commit.Commit, error) {
			commits, err := k.IpcSend(pid, ids.EndpointId(args[0]), ids.CapSlot(args[1]), args[2], data, nil)
			return struct{}{}, commits, err
		})
		return resultCode(err), nil

	case SysIpcReceive:
		blocking := args[2] != 0
		msg, err := axiom.Syscall(ctx, s.gateway, pid, num, args, func(k *kernel.Interior) (*kernel.Message, []commit.Commit, error) {
			m, didBlock, commits, err := k.IpcReceive(pid, ids.EndpointId(args[0]), ids.CapSlot(args[1]), blocking)
			if didBlock {
				return nil, commits, errBlocked
			}
			return m, commits, err
		})
		if err == errBlocked {
			go s.awaitDelivery(ctx, pid)
			return 0, nil
		}
		if err != nil {
			return resultCode(err), nil
		}
		return 0, encodeMessage(msg)

	case SysIpcCall:
		deadlineMs := args[3]
		_, err := axiom.Syscall(ctx, s.gateway, pid, num, args, func(k *kernel.Interior) (struct{}, []commit.Commit, error) {
			commits, err := k.IpcCall(pid, ids.EndpointId(args[0]), ids.CapSlot(args[1]), args[2], data, nil)
			return struct{}{}, commits, err
		})
		if err != nil {
			return resultCode(err), nil
		}
		go s.awaitReply(ctx, pid, deadlineMs)
		return 0, nil

	case SysIpcReply:
		_, err := axiom.Syscall(ctx, s.gateway, pid, num, args, func(k *kernel.Interior) (struct{}, []commit.Commit, error) {
			commits, err := k.IpcReply(pid, ids.ProcessId(args[0]), args[1], data)
			return struct{}{}, commits, err
		})
		return resultCode(err), nil

	case SysEndpointCreate:
		ep, err := axiom.Syscall(ctx, s.gateway, pid, num, args, func(k *kernel.Interior) (ids.EndpointId, []commit.Commit, error) {
			return k.CreateEndpoint(pid)
		})
		return resultCode(err), encodeU64(uint64(ep))

	case SysCapGrant:
		slot, err := axiom.Syscall(ctx, s.gateway, pid, num, args, func(k *kernel.Interior) (ids.CapSlot, []commit.Commit, error) {
			return k.GrantCapability(pid, ids.CapSlot(args[0]), ids.ProcessId(args[1]), capability.Perms(args[2]))
		})
		return resultCode(err), encodeU64(uint64(slot))

	case SysCapRevoke:
		_, err := axiom.Syscall(ctx, s.gateway, pid, num, args, func(k *kernel.Interior) (struct{}, []commit.Commit, error) {
			commits, err := k.RevokeCapability(pid, ids.CapSlot(args[0]))
			return struct{}{}, commits, err
		})
		return resultCode(err), nil

	case SysProcYield:
		_, err := axiom.InternalOperation(ctx, s.gateway, func(k *kernel.Interior) (struct{}, []commit.Commit, error) {
			return struct{}{}, nil, k.Yield(pid)
		})
		return resultCode(err), nil

	case SysProcExit:
		_, err := axiom.Syscall(ctx, s.gateway, pid, num, args, func(k *kernel.Interior) (struct{}, []commit.Commit, error) {
			commits, err := k.TerminateProcess(pid, int32(args[0]))
			return struct{}{}, commits, err
		})
		return resultCode(err), nil

	case SysIssueAsync:
		kind := hal.Kind(args[0])
		reqID, err := s.h.IssueAsync(ctx, kind, data)
		if err != nil {
			return resultCode(err), nil
		}
		_, opErr := axiom.InternalOperation(ctx, s.gateway, func(k *kernel.Interior) (struct{}, []commit.Commit, error) {
			k.RegisterPendingRequest(ids.RequestId(reqID), pid, kind.String())
			return struct{}{}, nil, nil
		})
		if opErr != nil {
			return resultCode(opErr), nil
		}
		return 0, encodeU64(reqID)

	case SysPollCompletions:
		// Completions are pushed to the owning process's notification
		// endpoint by drainCompletions/HandleCompletion as they resolve;
		// this syscall is kept reserved in the ABI for a future pull-style
		// variant but has no work to do today.
		_, err := axiom.Syscall(ctx, s.gateway, pid, num, args, func(k *kernel.Interior) (struct{}, []commit.Commit, error) {
			return struct{}{}, nil, nil
		})
		return resultCode(err), nil

	default:
		return resultCode(fmt.Errorf("unknown syscall number %d", num)), nil
	}
}

var errBlocked = fmt.Errorf("blocked")
var errCallTimedOut = fmt.Errorf("ipc call timed out")

// awaitDelivery waits on pid's delivery channel (the one real suspension
// point outside the mailbox protocol, per core/kernel/interior.go) and
// writes the eventual message straight into pid's mailbox once it
// arrives, completing the ipc_receive the isolate is parked in.
func (s *Supervisor) awaitDelivery(ctx context.Context, pid ids.ProcessId) {
	ch := s.gateway.Interior().DeliveryChan(pid)
	select {
	case msg := <-ch:
		if mb, ok := s.mailboxes[pid]; ok {
			mb.Mailbox.CompleteSyscall(0, encodeMessage(&msg))
		}
	case <-ctx.Done():
	}
}

// awaitReply is awaitDelivery for ipc_call: deadlineMs is the caller-supplied
// reply timeout (args[3] of SysIpcCall; 0 means wait indefinitely). When the
// timer fires before a reply arrives, ExpireCall is run through
// InternalOperation to wake pid and produce CallTimedOut, per spec.md §5 —
// without this, a reply that never comes would park pid forever instead of
// returning a Timeout result.
func (s *Supervisor) awaitReply(ctx context.Context, pid ids.ProcessId, deadlineMs uint32) {
	ch := s.gateway.Interior().DeliveryChan(pid)

	var timeout <-chan time.Time
	if deadlineMs != 0 {
		timer := time.NewTimer(time.Duration(deadlineMs) * time.Millisecond)
		defer timer.Stop()
		timeout = timer.C
	}

	select {
	case msg := <-ch:
		if mb, ok := s.mailboxes[pid]; ok {
			mb.Mailbox.CompleteSyscall(0, encodeMessage(&msg))
		}
	case <-timeout:
		_, err := axiom.InternalOperation(ctx, s.gateway, func(k *kernel.Interior) (struct{}, []commit.Commit, error) {
			commits, err := k.ExpireCall(pid)
			return struct{}{}, commits, err
		})
		if err != nil {
			log.L.WithError(err).WithField("pid", pid).Warn("zeroos/supervisor: expire call failed")
		}
		if mb, ok := s.mailboxes[pid]; ok {
			mb.Mailbox.CompleteSyscall(resultCode(errCallTimedOut), nil)
		}
	case <-ctx.Done():
	}
}

// drainCompletions pulls every HAL completion observed since the last
// tick and routes it through HandleCompletion, matching spec.md §4.C's
// handle_completion. This never touches a mailbox directly — delivery
// happens through the process's own notification endpoint exactly like
// any other message, so a process must be (or become) a receiver on that
// endpoint to observe it.
func (s *Supervisor) drainCompletions(ctx context.Context) {
	for _, c := range s.h.PollCompletions() {
		payload := encodeCompletion(c)
		_, err := axiom.InternalOperation(ctx, s.gateway, func(k *kernel.Interior) (struct{}, []commit.Commit, error) {
			commits, err := k.HandleCompletion(ids.RequestId(c.RequestID), payload)
			return struct{}{}, commits, err
		})
		if err != nil {
			log.L.WithError(err).WithField("request_id", c.RequestID).Warn("zeroos/supervisor: completion for unknown or exited request")
		}
	}
}

// drainFaults routes isolate crashes observed by the HAL into MarkFaulted,
// completing spec.md S6's fault-isolation scenario end to end: a panicked
// isolate becomes a Zombie via ProcessFaulted -> ProcessTerminated instead
// of silently falling out of the mailbox poll loop with no kernel record.
func (s *Supervisor) drainFaults(ctx context.Context) {
	for _, hd := range s.h.PollFaults() {
		pid, ok := s.pidForHandle(hd)
		if !ok {
			continue
		}
		_, err := axiom.InternalOperation(ctx, s.gateway, func(k *kernel.Interior) (struct{}, []commit.Commit, error) {
			commits, err := k.MarkFaulted(pid, "isolate panicked")
			return struct{}{}, commits, err
		})
		if err != nil {
			log.L.WithError(err).WithField("pid", pid).Warn("zeroos/supervisor: mark faulted failed")
		}
		s.Detach(pid)
	}
}

// pidForHandle reverse-looks-up the pid owning hd. The mailbox registry is
// keyed by pid, not handle, since that's the direction every other lookup
// in this file needs; faults are rare enough that a linear scan here is not
// worth a second index.
func (s *Supervisor) pidForHandle(hd hal.Handle) (ids.ProcessId, bool) {
	for pid, mb := range s.mailboxes {
		if mb.Handle == hd {
			return pid, true
		}
	}
	return 0, false
}

func resultCode(err error) int32 {
	if err == nil {
		return 0
	}
	return -1
}

func encodeU64(v uint64) []byte {
	b := make([]byte, 8)
	binary.BigEndian.PutUint64(b, v)
	return b
}

func encodeCompletion(c hal.Completion) []byte {
	b := make([]byte, 2+len(c.Data))
	b[0] = uint8(c.Kind)
	b[1] = uint8(c.Status)
	copy(b[2:], c.Data)
	return b
}

// splitNameBinary divides a PROC_CREATE payload into the child's process
// name and its relocatable image, split on the first NUL byte — the same
// flat convention simhal's store uses for its key/value payloads.
func splitNameBinary(data []byte) (string, []byte) {
	for i, b := range data {
		if b == 0 {
			return string(data[:i]), data[i+1:]
		}
	}
	return string(data), nil
}

func encodeProcessList(procs []kernel.Process) []byte {
	var b []byte
	for _, p := range procs {
		entry := make([]byte, 8+1+1+len(p.Name))
		binary.BigEndian.PutUint64(entry[0:8], uint64(p.Pid))
		entry[8] = uint8(p.State)
		entry[9] = uint8(len(p.Name))
		copy(entry[10:], p.Name)
		b = append(b, entry...)
	}
	return b
}

func encodeCapability(c capability.Capability) []byte {
	b := make([]byte, 1+8+1+8)
	b[0] = uint8(c.ObjectType)
	binary.BigEndian.PutUint64(b[1:9], c.ObjectId)
	b[9] = uint8(c.Perms)
	binary.BigEndian.PutUint64(b[10:18], c.Generation)
	return b
}

func encodeMessage(m *kernel.Message) []byte {
	if m == nil {
		return nil
	}
	b := make([]byte, 4+8+len(m.Payload))
	binary.BigEndian.PutUint32(b[0:4], m.Tag)
	binary.BigEndian.PutUint64(b[4:12], uint64(m.From))
	copy(b[12:], m.Payload)
	return b
}
