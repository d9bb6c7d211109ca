package kernel

import (
	"fmt"

	"github.com/zeroos/zeroos/core/capability"
	"github.com/zeroos/zeroos/core/commit"
	"github.com/zeroos/zeroos/pkg/ids"
)

// SupervisorSentinel is the reserved "from" identity for commits produced
// by the supervisor's internal_operation path (completion delivery,
// bootstrap) rather than by a verified isolate syscall. The process id
// allocator starts at 1, so 0 is never assigned to a real process — it is
// reserved exactly so that "no MessageSent from PID 0" (spec.md S4) can be
// checked as a property of ordinary syscalls without also forbidding the
// one legitimate path that uses it.
const SupervisorSentinel ids.ProcessId = 0

// IpcSend sends a message to ep. from must hold a capability at slot
// referencing ep with PermWrite. transferSlots names capability slots in
// from's own space to remove and re-insert (rights-intersected with the
// endpoint capability is not required — transferred capabilities keep
// their own rights, only the addressing endpoint capability is checked)
// into the receiver's space on delivery.
// That move happens only on inline delivery below: for a message that is
// queued and later taken by IpcReceive, the transferred capabilities stay
// in from's space and are not inserted into the receiver's.
//
// If a receiver is already waiting in ep's receivers FIFO, delivery happens
// inline in this call (MessageSent + MessageDelivered, plus a
// CapabilityInserted per transferred capability). Otherwise the message is
// queued in ep's pending FIFO (MessageSent only) or, if the queue is at its
// bound, WouldBlock is returned with no commit.
func (k *Interior) IpcSend(from ids.ProcessId, ep ids.EndpointId, slot ids.CapSlot, tag uint32, payload []byte, transferSlots []ids.CapSlot) ([]commit.Commit, error) {
	if len(payload) > MaxPayloadBytes {
		return nil, ErrTooLarge
	}

	k.mu.Lock()
	defer k.mu.Unlock()

	if err := k.checkCapability(from, slot, capability.ObjectEndpoint, uint64(ep), capability.PermWrite); err != nil {
		return nil, err
	}
	e, ok := k.endpoints[ep]
	if !ok {
		return nil, fmt.Errorf("endpoint %d: %w", ep, errEndpointNotFound)
	}
	if e.state != EndpointActive {
		return nil, ErrEndpointClosed
	}

	fromCs := k.capSpaces[from]
	transferred := make([]capability.Capability, 0, len(transferSlots))
	for _, ts := range transferSlots {
		cap, ok := fromCs.lookup(ts)
		if !ok {
			return nil, ErrInvalidSlot
		}
		transferred = append(transferred, cap)
	}

	msg := Message{Tag: tag, From: from, To: ep, Payload: append([]byte(nil), payload...), TransferredCaps: transferred}

	commits := []commit.Commit{commit.NewMessageSent(from, ep, tag, uint32(len(payload)))}

	if receiver, ok := e.popReceiver(); ok {
		// Inline delivery: remove transferred capabilities from the
		// sender now that we know delivery is happening, wake the
		// receiver, and deposit the message on its delivery channel.
		for _, ts := range transferSlots {
			fromCs.free(ts)
		}
		for _, tc := range transferred {
			if _, c, err := k.insertCapabilityLocked(receiver, tc.ObjectType, tc.ObjectId, tc.Perms); err == nil {
				commits = append(commits, c)
			}
		}
		if rp, ok := k.processes[receiver]; ok && rp.state == StateBlocked {
			rp.state = StateRunning
			rp.reason = BlockReason{}
			k.scheduler.Enqueue(receiver, rp.priority)
		}
		commits = append(commits, commit.NewMessageDelivered(ep, receiver, tag))
		k.deliver(receiver, msg)
		return commits, nil
	}

	if !e.pushPending(msg) {
		return nil, ErrWouldBlock
	}
	return commits, nil
}

// IpcReceive attempts to receive a message addressed to ep on behalf of
// pid, who must hold a capability at slot referencing ep with PermRead. If
// a message is already queued, it is returned immediately (no blocking).
// If none is queued and blocking is false, ErrWouldBlock is returned. If
// none is queued and blocking is true, pid is parked in ep's receivers FIFO
// and Blocked(Receiving(ep)); the caller must then read from
// k.DeliveryChan(pid) outside of any lock to obtain the eventual message —
// KernelInterior methods never suspend themselves.
func (k *Interior) IpcReceive(pid ids.ProcessId, ep ids.EndpointId, slot ids.CapSlot, blocking bool) (*Message, bool, []commit.Commit, error) {
	k.mu.Lock()
	defer k.mu.Unlock()

	if err := k.checkCapability(pid, slot, capability.ObjectEndpoint, uint64(ep), capability.PermRead); err != nil {
		return nil, false, nil, err
	}
	e, ok := k.endpoints[ep]
	if !ok {
		return nil, false, nil, fmt.Errorf("endpoint %d: %w", ep, errEndpointNotFound)
	}

	if msg, ok := e.popPending(); ok {
		return &msg, false, []commit.Commit{commit.NewMessageDelivered(ep, pid, msg.Tag)}, nil
	}
	if e.state != EndpointActive {
		return nil, false, nil, ErrEndpointClosed
	}
	if !blocking {
		return nil, false, nil, ErrWouldBlock
	}

	p, ok := k.processes[pid]
	if !ok {
		return nil, false, nil, ErrProcessNotFound
	}
	e.pushReceiver(pid)
	p.state = StateBlocked
	p.reason = BlockReason{Kind: BlockReceiving, Endpoint: ep}
	k.scheduler.Remove(pid)
	return nil, true, nil, nil
}

// IpcCall sends msg to ep (as IpcSend) and, if the send itself succeeded,
// parks from in WaitingReply(from) so the eventual ipc_reply wakes it. The
// caller reads k.DeliveryChan(from) to obtain the reply, with its own
// deadline; on expiry it calls ExpireCall.
func (k *Interior) IpcCall(from ids.ProcessId, ep ids.EndpointId, slot ids.CapSlot, tag uint32, payload []byte, transferSlots []ids.CapSlot) ([]commit.Commit, error) {
	commits, err := k.IpcSend(from, ep, slot, tag, payload, transferSlots)
	if err != nil {
		return commits, err
	}

	k.mu.Lock()
	defer k.mu.Unlock()
	p, ok := k.processes[from]
	if !ok {
		return commits, ErrProcessNotFound
	}
	p.state = StateBlocked
	p.reason = BlockReason{Kind: BlockWaitingReply, Thread: from}
	k.scheduler.Remove(from)
	k.deliveryChan(from) // ensure it exists before the caller selects on it
	return commits, nil
}

// IpcReply delivers msg to toThread, which must currently be
// Blocked(WaitingReply(toThread)). from is recorded as the message's
// sender identity exactly as with any other delivery.
func (k *Interior) IpcReply(from ids.ProcessId, toThread ids.ProcessId, tag uint32, payload []byte) ([]commit.Commit, error) {
	if len(payload) > MaxPayloadBytes {
		return nil, ErrTooLarge
	}

	k.mu.Lock()
	defer k.mu.Unlock()

	p, ok := k.processes[toThread]
	if !ok {
		return nil, ErrProcessNotFound
	}
	if p.state != StateBlocked || p.reason.Kind != BlockWaitingReply || p.reason.Thread != toThread {
		return nil, fmt.Errorf("pid %d is not waiting for a reply: %w", toThread, ErrBadArg)
	}

	p.state = StateRunning
	p.reason = BlockReason{}
	k.scheduler.Enqueue(toThread, p.priority)

	msg := Message{Tag: tag, From: from, To: 0, Payload: append([]byte(nil), payload...)}
	k.deliver(toThread, msg)

	return []commit.Commit{commit.NewMessageDelivered(0, toThread, tag)}, nil
}

// ExpireCall wakes a process blocked in WaitingReply whose deadline has
// passed, producing CallTimedOut. It is a no-op (no error) if the process
// is no longer in that wait, since the reply may have raced the deadline.
func (k *Interior) ExpireCall(pid ids.ProcessId) ([]commit.Commit, error) {
	k.mu.Lock()
	defer k.mu.Unlock()

	p, ok := k.processes[pid]
	if !ok {
		return nil, ErrProcessNotFound
	}
	if p.state != StateBlocked || p.reason.Kind != BlockWaitingReply {
		return nil, nil
	}
	p.state = StateRunning
	p.reason = BlockReason{}
	k.scheduler.Enqueue(pid, p.priority)
	return []commit.Commit{commit.NewCallTimedOut(pid)}, nil
}

// RegisterPendingRequest records that pid is awaiting the async completion
// of reqID (an issue_async call already returned reqID synchronously to
// pid). kind names the HAL operation kind for diagnostics.
func (k *Interior) RegisterPendingRequest(reqID ids.RequestId, pid ids.ProcessId, kind string) {
	k.mu.Lock()
	defer k.mu.Unlock()
	k.pending[reqID] = PendingRequest{WaitingPid: pid, Kind: kind}
}

// HandleCompletion is the kernel side of the supervisor's completion-drain
// loop (spec.md §4.C handle_completion): it looks reqID up in the
// pending-request table, and if found, delivers payload to the waiting
// process's notification endpoint as if sent by SupervisorSentinel. The
// process must already be (or become) a blocking receiver on its own
// notification endpoint to observe it — it is never blocked inside the
// kernel waiting for I/O.
func (k *Interior) HandleCompletion(reqID ids.RequestId, payload []byte) ([]commit.Commit, error) {
	k.mu.Lock()
	defer k.mu.Unlock()

	preq, ok := k.pending[reqID]
	if !ok {
		return nil, errNoSuchRequest
	}
	delete(k.pending, reqID)

	p, ok := k.processes[preq.WaitingPid]
	if !ok {
		// The process exited before its completion arrived; drop it.
		return nil, nil
	}
	ep, ok := k.endpoints[p.notifyEp]
	if !ok {
		return nil, nil
	}

	tag := uint32(0x3000)
	msg := Message{Tag: tag, From: SupervisorSentinel, To: p.notifyEp, Payload: append([]byte(nil), payload...)}
	commits := []commit.Commit{commit.NewMessageSent(SupervisorSentinel, p.notifyEp, tag, uint32(len(payload)))}

	if receiver, ok := ep.popReceiver(); ok {
		if rp, ok := k.processes[receiver]; ok && rp.state == StateBlocked {
			rp.state = StateRunning
			rp.reason = BlockReason{}
			k.scheduler.Enqueue(receiver, rp.priority)
		}
		commits = append(commits, commit.NewMessageDelivered(p.notifyEp, receiver, tag))
		k.deliver(receiver, msg)
		return commits, nil
	}

	if !ep.pushPending(msg) {
		return nil, ErrQueueFull
	}
	return commits, nil
}
