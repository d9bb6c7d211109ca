package kernel

import (
	"fmt"

	"github.com/zeroos/zeroos/pkg/ids"
)

// ProcessState is the process state machine: Running -> Blocked(reason) ->
// Running -> Zombie. Zombie is terminal; the entry is retained until an
// explicit PROC_REAP.
type ProcessState uint8

const (
	StateRunning ProcessState = iota
	StateBlocked
	StateZombie
)

func (s ProcessState) String() string {
	switch s {
	case StateRunning:
		return "Running"
	case StateBlocked:
		return "Blocked"
	case StateZombie:
		return "Zombie"
	default:
		return fmt.Sprintf("ProcessState(%d)", uint8(s))
	}
}

// BlockKind discriminates the reason a process is blocked.
type BlockKind uint8

const (
	BlockNone BlockKind = iota
	BlockReceiving
	BlockWaitingReply
	BlockWaitingNotification
)

// BlockReason names why a process is currently Blocked, matching spec.md
// §4.C: Receiving(ep), WaitingReply(thread), WaitingNotification(req_id).
type BlockReason struct {
	Kind     BlockKind
	Endpoint ids.EndpointId // valid when Kind == BlockReceiving
	Thread   ids.ProcessId  // valid when Kind == BlockWaitingReply
	Request  ids.RequestId  // valid when Kind == BlockWaitingNotification
}

// Priority is the scheduler's priority class for a process's runnable
// queue.
type Priority uint8

const (
	PriorityHigh Priority = iota
	PriorityNormal
	PriorityLow
)

// processEntry is the kernel-internal mutable record for a live process.
// It is never exposed directly; read accessors copy out a Process snapshot.
type processEntry struct {
	pid          ids.ProcessId
	name         string
	state        ProcessState
	reason       BlockReason
	priority     Priority
	exitCode     int32
	faultReason  string
	isolateAlive bool
	notifyEp     ids.EndpointId
	lastActivity uint64 // monotonic ns, set by Touch on every syscall entry
}

// Process is a read-only snapshot of a process, safe to hand to callers
// outside the kernel lock.
type Process struct {
	Pid          ids.ProcessId
	Name         string
	State        ProcessState
	Reason       BlockReason
	ExitCode     int32
	FaultReason  string
	NotifyEp     ids.EndpointId
	LastActivity uint64
}

func (p *processEntry) snapshot() Process {
	return Process{
		Pid:          p.pid,
		Name:         p.name,
		State:        p.state,
		Reason:       p.reason,
		ExitCode:     p.exitCode,
		FaultReason:  p.faultReason,
		NotifyEp:     p.notifyEp,
		LastActivity: p.lastActivity,
	}
}
