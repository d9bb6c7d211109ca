package supervisor

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/zeroos/zeroos/core/axiom"
	"github.com/zeroos/zeroos/core/capability"
	"github.com/zeroos/zeroos/core/commit"
	"github.com/zeroos/zeroos/core/events"
	"github.com/zeroos/zeroos/core/hal/simhal"
	"github.com/zeroos/zeroos/core/kernel"
	"github.com/zeroos/zeroos/core/mailbox"
	"github.com/zeroos/zeroos/core/syslog"
	"github.com/zeroos/zeroos/pkg/ids"
)

type fixedClock struct{ ns uint64 }

func (c *fixedClock) NowNs() uint64 { c.ns++; return c.ns }

func newTestSupervisor(t *testing.T) (*Supervisor, *axiom.Gateway, *simhal.HAL) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "commit.db")
	commitLog, err := commit.Open(path)
	require.NoError(t, err)
	t.Cleanup(func() { commitLog.Close() })

	clock := &fixedClock{}
	interior := kernel.New(clock.NowNs)
	sysLog := syslog.New(16)
	exchange := events.NewExchange()
	t.Cleanup(func() { exchange.Close() })

	gateway := axiom.New(interior, sysLog, commitLog, exchange, clock)
	h := simhal.New()
	return New(gateway, h), gateway, h
}

// registerTestProcess seeds a live process the way BootstrapInit does,
// bypassing the mailbox protocol since these tests drive dispatch directly.
func registerTestProcess(t *testing.T, ctx context.Context, g *axiom.Gateway, name string) ids.ProcessId {
	t.Helper()
	pid, err := axiom.InternalOperation(ctx, g, func(k *kernel.Interior) (ids.ProcessId, []commit.Commit, error) {
		return k.RegisterProcess(name)
	})
	require.NoError(t, err)
	return pid
}

func createTestEndpoint(t *testing.T, ctx context.Context, g *axiom.Gateway, owner ids.ProcessId) ids.EndpointId {
	t.Helper()
	ep, err := axiom.InternalOperation(ctx, g, func(k *kernel.Interior) (ids.EndpointId, []commit.Commit, error) {
		return k.CreateEndpoint(owner)
	})
	require.NoError(t, err)
	return ep
}

// endpointSlot finds the capability slot in owner's space referencing ep.
// CreateEndpoint grants it there directly but doesn't thread the slot back
// through its own return value, so callers who need it (like these tests)
// look it up via the read-only capability space query.
func endpointSlot(t *testing.T, g *axiom.Gateway, owner ids.ProcessId, ep ids.EndpointId) ids.CapSlot {
	t.Helper()
	caps, err := g.Interior().GetCapabilitySpace(owner)
	require.NoError(t, err)
	for slot, c := range caps {
		if c.ObjectType == capability.ObjectEndpoint && c.ObjectId == uint64(ep) {
			return slot
		}
	}
	t.Fatalf("no capability in pid %d's space references endpoint %d", owner, ep)
	return 0
}

func TestDispatchIpcReceiveNonBlockingWouldBlock(t *testing.T) {
	s, g, _ := newTestSupervisor(t)
	ctx := context.Background()

	pid := registerTestProcess(t, ctx, g, "p1")
	ep := createTestEndpoint(t, ctx, g, pid)
	slot := endpointSlot(t, g, pid, ep)

	// args: [ep, slot, blocking=0, reserved]
	result, data := s.dispatch(ctx, pid, SysIpcReceive, [4]uint32{uint32(ep), uint32(slot), 0, 0}, nil)
	require.NotEqual(t, int32(0), result, "a non-blocking receive with nothing queued must report WouldBlock, not success")
	require.Nil(t, data)
}

func TestDispatchIpcSendThenReceiveDeliversMessage(t *testing.T) {
	s, g, _ := newTestSupervisor(t)
	ctx := context.Background()

	receiver := registerTestProcess(t, ctx, g, "receiver")
	sender := registerTestProcess(t, ctx, g, "sender")
	ep := createTestEndpoint(t, ctx, g, receiver)
	recvSlot := endpointSlot(t, g, receiver, ep)

	// Grant the sender a capability on the same endpoint so IpcSend's own
	// capability check passes.
	sendSlot, err := axiom.InternalOperation(ctx, g, func(k *kernel.Interior) (ids.CapSlot, []commit.Commit, error) {
		return k.GrantCapability(receiver, recvSlot, sender, capability.PermWrite)
	})
	require.NoError(t, err)

	result, _ := s.dispatch(ctx, sender, SysIpcSend, [4]uint32{uint32(ep), uint32(sendSlot), 7, 0}, []byte("hello"))
	require.Equal(t, int32(0), result)

	result, data := s.dispatch(ctx, receiver, SysIpcReceive, [4]uint32{uint32(ep), uint32(recvSlot), 0, 0}, nil)
	require.Equal(t, int32(0), result)
	require.NotNil(t, data)
}

func TestDispatchProcSpawnRequiresCapability(t *testing.T) {
	s, g, _ := newTestSupervisor(t)
	ctx := context.Background()

	pid := registerTestProcess(t, ctx, g, "uncapped")

	result, _ := s.dispatch(ctx, pid, SysProcSpawn, [4]uint32{0, 0, 0, 0}, []byte("child\x00ignored"))
	require.NotEqual(t, int32(0), result, "spawning without an ObjectProcess/oid-0 capability must be denied")
}

func TestDispatchProcSpawnAndKill(t *testing.T) {
	s, g, h := newTestSupervisor(t)
	ctx := context.Background()

	h.RegisterProgram("child", func(rt *simhal.IsolateRuntime) { <-rt.Done() })

	parent := registerTestProcess(t, ctx, g, "parent")
	spawnSlot, err := axiom.InternalOperation(ctx, g, func(k *kernel.Interior) (ids.CapSlot, []commit.Commit, error) {
		return k.BootstrapGrant(parent, capability.ObjectProcess, 0, capability.PermWrite)
	})
	require.NoError(t, err)

	result, data := s.dispatch(ctx, parent, SysProcSpawn, [4]uint32{uint32(spawnSlot), 0, 0, 0}, []byte("child\x00child"))
	require.Equal(t, int32(0), result)
	require.Len(t, data, 8)
	childPid := ids.ProcessId(beUint64(data))
	require.NotZero(t, childPid)

	childHandle := s.mailboxes[childPid].Handle
	require.True(t, h.IsAlive(childHandle))

	killSlot, err := axiom.InternalOperation(ctx, g, func(k *kernel.Interior) (ids.CapSlot, []commit.Commit, error) {
		return k.BootstrapGrant(parent, capability.ObjectProcess, uint64(childPid), capability.PermWrite)
	})
	require.NoError(t, err)

	result, _ = s.dispatch(ctx, parent, SysProcKill, [4]uint32{uint32(killSlot), uint32(childPid), 0, 0}, nil)
	require.Equal(t, int32(0), result)
	require.False(t, h.IsAlive(childHandle))

	_, attached := s.mailboxes[childPid]
	require.False(t, attached, "SysProcKill must detach the killed process's mailbox")
}

func TestDispatchIpcCallTimesOut(t *testing.T) {
	s, g, _ := newTestSupervisor(t)
	ctx := context.Background()

	caller := registerTestProcess(t, ctx, g, "caller")
	callee := registerTestProcess(t, ctx, g, "callee")
	ep := createTestEndpoint(t, ctx, g, callee)
	calleeSlot := endpointSlot(t, g, callee, ep)
	callerSlot, err := axiom.InternalOperation(ctx, g, func(k *kernel.Interior) (ids.CapSlot, []commit.Commit, error) {
		return k.GrantCapability(callee, calleeSlot, caller, capability.PermWrite)
	})
	require.NoError(t, err)

	// A mailbox must be attached before the call's deadline fires: the
	// timeout path writes its result back into it exactly like a normal
	// completion would.
	s.Attach(caller, mailbox.New(), nil)

	// args: [ep, slot, tag, deadline_ms]
	result, _ := s.dispatch(ctx, caller, SysIpcCall, [4]uint32{uint32(ep), uint32(callerSlot), 1, 10}, []byte("ping"))
	require.Equal(t, int32(0), result, "the call itself enqueues the message and parks the caller; the deadline fires later")

	p, err := g.Interior().GetProcess(caller)
	require.NoError(t, err)
	require.Equal(t, kernel.StateBlocked, p.State)

	require.Eventually(t, func() bool {
		p, err := g.Interior().GetProcess(caller)
		require.NoError(t, err)
		return p.State == kernel.StateRunning
	}, time.Second, 5*time.Millisecond, "ExpireCall must wake the caller once its 10ms deadline passes")
}

func beUint64(b []byte) uint64 {
	var v uint64
	for _, x := range b {
		v = v<<8 | uint64(x)
	}
	return v
}
