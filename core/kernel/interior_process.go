package kernel

import (
	"fmt"

	"github.com/zeroos/zeroos/core/capability"
	"github.com/zeroos/zeroos/core/commit"
	"github.com/zeroos/zeroos/pkg/identifiers"
	"github.com/zeroos/zeroos/pkg/ids"
)

// SpawnProcess is RegisterProcess gated by a capability check: spawnerSlot
// must resolve to a live ObjectProcess capability with oid 0 (the
// category-wide "may create processes" right BootstrapInit hands Init) and
// PermWrite. This is the path PROC_CREATE takes; RegisterProcess itself
// stays uncapped for supervisor-driven bootstrap.
func (k *Interior) SpawnProcess(spawnerPid ids.ProcessId, spawnerSlot ids.CapSlot, name string) (ids.ProcessId, []commit.Commit, error) {
	if err := identifiers.Validate(name); err != nil {
		return 0, nil, err
	}

	k.mu.Lock()
	defer k.mu.Unlock()

	if err := k.checkCapability(spawnerPid, spawnerSlot, capability.ObjectProcess, 0, capability.PermWrite); err != nil {
		return 0, nil, err
	}
	return k.registerProcessLocked(name)
}

// RegisterProcess creates a new process, its implicit notification
// endpoint, and its (initially empty) capability space in one atomic
// mutation. It returns the new pid and the commits produced: always
// [ProcessCreated, EndpointCreated] for the notification endpoint. It is
// uncapped — reserved for supervisor-driven bootstrap (InternalOperation
// only); ordinary syscalls spawn through SpawnProcess instead.
func (k *Interior) RegisterProcess(name string) (ids.ProcessId, []commit.Commit, error) {
	if err := identifiers.Validate(name); err != nil {
		return 0, nil, err
	}

	k.mu.Lock()
	defer k.mu.Unlock()
	return k.registerProcessLocked(name)
}

func (k *Interior) registerProcessLocked(name string) (ids.ProcessId, []commit.Commit, error) {
	pid := k.allocIds.NextProcessId()
	notifyEp := k.allocIds.NextEndpointId()

	k.processes[pid] = &processEntry{
		pid:      pid,
		name:     name,
		state:    StateRunning,
		priority: PriorityNormal,
		notifyEp: notifyEp,
	}
	k.capSpaces[pid] = newCapSpace()
	k.endpoints[notifyEp] = newEndpointEntry(notifyEp, pid)
	k.scheduler.Enqueue(pid, PriorityNormal)

	return pid, []commit.Commit{
		commit.NewProcessCreated(pid, name),
		commit.NewEndpointCreated(notifyEp, pid),
	}, nil
}

// TerminateProcess moves pid to Zombie(exitCode), destroys its capability
// space, closes every endpoint it owns (bumping generations so outstanding
// capabilities referencing them become Revoked), and wakes anything
// blocked waiting on it. Idempotent after the first call: terminating an
// already-Zombie process returns success with no further commits.
func (k *Interior) TerminateProcess(pid ids.ProcessId, exitCode int32) ([]commit.Commit, error) {
	k.mu.Lock()
	defer k.mu.Unlock()
	return k.terminateLocked(pid, exitCode, "")
}

// MarkFaulted records a fault and immediately terminates the process with
// exit code -1, per the fault policy in spec.md §4.C: ProcessFaulted is
// always immediately followed by ProcessTerminated, and faults never
// propagate to the kernel caller.
func (k *Interior) MarkFaulted(pid ids.ProcessId, reason string) ([]commit.Commit, error) {
	k.mu.Lock()
	defer k.mu.Unlock()

	p, ok := k.processes[pid]
	if !ok {
		return nil, ErrProcessNotFound
	}
	if p.state == StateZombie {
		return nil, nil
	}
	p.faultReason = reason

	commits, err := k.terminateLocked(pid, -1, reason)
	if err != nil {
		return nil, err
	}
	return append([]commit.Commit{commit.NewProcessFaulted(pid, reason)}, commits...), nil
}

func (k *Interior) terminateLocked(pid ids.ProcessId, exitCode int32, faultReason string) ([]commit.Commit, error) {
	p, ok := k.processes[pid]
	if !ok {
		return nil, ErrProcessNotFound
	}
	if p.state == StateZombie {
		return nil, nil // idempotent
	}

	var commits []commit.Commit

	// Close every endpoint pid owns: bump its generation so outstanding
	// capabilities referencing it become Revoked, reject any waiting
	// receivers, and drop queued messages.
	for _, ep := range k.endpoints {
		if ep.owner != pid {
			continue
		}
		ep.state = EndpointClosing
		k.bumpGeneration(capability.ObjectEndpoint, uint64(ep.id))
		for _, waiter := range ep.receivers {
			if waiterProc, ok := k.processes[waiter]; ok && waiterProc.state == StateBlocked {
				waiterProc.state = StateRunning
				waiterProc.reason = BlockReason{}
				k.scheduler.Enqueue(waiter, waiterProc.priority)
			}
		}
		ep.receivers = nil
		ep.pending = nil
		commits = append(commits, commit.NewEndpointClosed(ep.id))
		delete(k.endpoints, ep.id)
	}

	// Bump the process's own generation so capabilities referencing it
	// (ObjectProcess) are revoked too.
	k.bumpGeneration(capability.ObjectProcess, uint64(pid))

	delete(k.capSpaces, pid)

	// Garbage-collect stale pending-request table entries owned by pid:
	// the process has no further way to observe their completion.
	for reqID, preq := range k.pending {
		if preq.WaitingPid == pid {
			delete(k.pending, reqID)
		}
	}

	p.state = StateZombie
	p.exitCode = exitCode
	k.scheduler.Remove(pid)
	delete(k.deliveryChans, pid)

	commits = append(commits, commit.NewProcessTerminated(pid, exitCode))
	return commits, nil
}

// KillProcess is TerminateProcess gated by a capability check: killerSlot
// must resolve to a live ObjectProcess capability over target with
// PermWrite. A process killing itself (killerPid == target) still needs
// the capability, matching how every other capability-governed operation
// is checked uniformly regardless of who the target happens to be.
func (k *Interior) KillProcess(killerPid ids.ProcessId, killerSlot ids.CapSlot, target ids.ProcessId, exitCode int32) ([]commit.Commit, error) {
	k.mu.Lock()
	defer k.mu.Unlock()

	if err := k.checkCapability(killerPid, killerSlot, capability.ObjectProcess, uint64(target), capability.PermWrite); err != nil {
		return nil, err
	}
	return k.terminateLocked(target, exitCode, "")
}

// ReapProcess removes a Zombie's process table entry entirely. Calling it
// on a process that is not a Zombie is a protocol error (BadArg); calling
// it on an unknown pid is ErrProcessNotFound.
func (k *Interior) ReapProcess(pid ids.ProcessId) ([]commit.Commit, error) {
	k.mu.Lock()
	defer k.mu.Unlock()

	p, ok := k.processes[pid]
	if !ok {
		return nil, ErrProcessNotFound
	}
	if p.state != StateZombie {
		return nil, fmt.Errorf("process %d is not a zombie: %w", pid, ErrBadArg)
	}
	delete(k.processes, pid)
	return []commit.Commit{commit.NewProcessReaped(pid)}, nil
}

// Yield reinserts pid at the back of its priority's runnable queue,
// implementing the voluntary-yield tie-break rule. It produces no commit:
// scheduling order is not itself observable kernel state.
func (k *Interior) Yield(pid ids.ProcessId) error {
	k.mu.Lock()
	defer k.mu.Unlock()
	p, ok := k.processes[pid]
	if !ok {
		return ErrProcessNotFound
	}
	if p.state != StateRunning {
		return nil
	}
	k.scheduler.Remove(pid)
	k.scheduler.Enqueue(pid, p.priority)
	return nil
}

// Touch records syscall activity on pid for last_activity bookkeeping.
func (k *Interior) Touch(pid ids.ProcessId, nowNs uint64) {
	k.mu.Lock()
	defer k.mu.Unlock()
	if p, ok := k.processes[pid]; ok {
		p.lastActivity = nowNs
	}
}
