package kernel

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/zeroos/zeroos/core/capability"
	"github.com/zeroos/zeroos/pkg/ids"
)

func newTestInterior() *Interior {
	var ns uint64
	return New(func() uint64 { ns++; return ns })
}

func TestRegisterProcessCreatesNotificationEndpoint(t *testing.T) {
	k := newTestInterior()
	pid, commits, err := k.RegisterProcess("svc")
	require.NoError(t, err)
	require.Len(t, commits, 2)

	p, err := k.GetProcess(pid)
	require.NoError(t, err)
	require.Equal(t, "svc", p.Name)
	require.Equal(t, StateRunning, p.State)

	eps := k.ListEndpoints()
	require.Len(t, eps, 1)
	require.Equal(t, p.NotifyEp, eps[0].Id)
}

func TestRegisterProcessRejectsBadName(t *testing.T) {
	k := newTestInterior()
	_, _, err := k.RegisterProcess("../bad name")
	require.Error(t, err)
}

func TestTerminateProcessRevokesCapabilities(t *testing.T) {
	k := newTestInterior()
	pid, _, err := k.RegisterProcess("svc")
	require.NoError(t, err)

	ep, _, err := k.CreateEndpoint(pid)
	require.NoError(t, err)

	cs, err := k.GetCapabilitySpace(pid)
	require.NoError(t, err)
	var slot ids.CapSlot
	for s, c := range cs {
		if c.ObjectType == capability.ObjectEndpoint && c.ObjectId == uint64(ep) {
			slot = s
		}
	}

	_, err = k.InspectCapability(pid, slot)
	require.NoError(t, err)

	_, err = k.TerminateProcess(pid, 0)
	require.NoError(t, err)

	p, err := k.GetProcess(pid)
	require.NoError(t, err)
	require.Equal(t, StateZombie, p.State)

	_, err = k.GetCapabilitySpace(pid)
	require.ErrorIs(t, err, ErrProcessNotFound)
}

func TestTerminateProcessIsIdempotent(t *testing.T) {
	k := newTestInterior()
	pid, _, err := k.RegisterProcess("svc")
	require.NoError(t, err)

	commits1, err := k.TerminateProcess(pid, 3)
	require.NoError(t, err)
	require.NotEmpty(t, commits1)

	commits2, err := k.TerminateProcess(pid, 9)
	require.NoError(t, err)
	require.Empty(t, commits2)

	p, err := k.GetProcess(pid)
	require.NoError(t, err)
	require.Equal(t, int32(3), p.ExitCode, "second terminate must not overwrite the first exit code")
}

func TestGrantCapabilityRequiresGrantRight(t *testing.T) {
	k := newTestInterior()
	granter, _, err := k.RegisterProcess("granter")
	require.NoError(t, err)
	grantee, _, err := k.RegisterProcess("grantee")
	require.NoError(t, err)

	ep, _, err := k.CreateEndpoint(granter)
	require.NoError(t, err)

	cs, err := k.GetCapabilitySpace(granter)
	require.NoError(t, err)
	var rwOnlySlot ids.CapSlot
	for s, c := range cs {
		if c.ObjectType == capability.ObjectEndpoint && c.ObjectId == uint64(ep) {
			rwOnlySlot = s
		}
	}

	// The creator's own capability carries PermGrant (CreateEndpoint
	// inserts read+write+grant), so first confirm a grant-less delegation
	// actually gets rejected by delegating from a narrowed copy: revoke
	// the original and re-insert one without PermGrant via BootstrapGrant
	// to set up the negative case deterministically.
	_, err = k.RevokeCapability(granter, rwOnlySlot)
	require.NoError(t, err)
	noGrantSlot, _, err := k.BootstrapGrant(granter, capability.ObjectEndpoint, uint64(ep), capability.PermRead|capability.PermWrite)
	require.NoError(t, err)

	_, _, err = k.GrantCapability(granter, noGrantSlot, grantee, capability.PermRead)
	require.ErrorIs(t, err, ErrCapabilityDenied)
}

func TestGrantCapabilityIntersectsPerms(t *testing.T) {
	k := newTestInterior()
	granter, _, err := k.RegisterProcess("granter")
	require.NoError(t, err)
	grantee, _, err := k.RegisterProcess("grantee")
	require.NoError(t, err)

	ep, _, err := k.CreateEndpoint(granter)
	require.NoError(t, err)

	cs, err := k.GetCapabilitySpace(granter)
	require.NoError(t, err)
	var slot ids.CapSlot
	for s, c := range cs {
		if c.ObjectType == capability.ObjectEndpoint && c.ObjectId == uint64(ep) {
			slot = s
		}
	}

	newSlot, _, err := k.GrantCapability(granter, slot, grantee, capability.PermRead|capability.PermGrant)
	require.NoError(t, err)

	got, err := k.InspectCapability(grantee, newSlot)
	require.NoError(t, err)
	require.True(t, got.Perms.CanRead())
	require.True(t, got.Perms.CanGrant())
}

func TestIpcSendReceiveInlineDelivery(t *testing.T) {
	k := newTestInterior()
	sender, _, err := k.RegisterProcess("sender")
	require.NoError(t, err)
	receiver, _, err := k.RegisterProcess("receiver")
	require.NoError(t, err)

	ep, _, err := k.CreateEndpoint(sender)
	require.NoError(t, err)

	senderCs, err := k.GetCapabilitySpace(sender)
	require.NoError(t, err)
	var sendSlot ids.CapSlot
	for s, c := range senderCs {
		if c.ObjectType == capability.ObjectEndpoint && c.ObjectId == uint64(ep) {
			sendSlot = s
		}
	}

	recvSlot, _, err := k.GrantCapability(sender, sendSlot, receiver, capability.PermRead)
	require.NoError(t, err)

	_, blocked, commits, err := k.IpcReceive(receiver, ep, recvSlot, true)
	require.NoError(t, err)
	require.True(t, blocked)
	require.Empty(t, commits)

	p, err := k.GetProcess(receiver)
	require.NoError(t, err)
	require.Equal(t, StateBlocked, p.State)
	require.Equal(t, BlockReceiving, p.Reason.Kind)

	sendCommits, err := k.IpcSend(sender, ep, sendSlot, 0xAB, []byte("hi"), nil)
	require.NoError(t, err)
	require.NotEmpty(t, sendCommits)

	select {
	case msg := <-k.DeliveryChan(receiver):
		require.Equal(t, uint32(0xAB), msg.Tag)
		require.Equal(t, sender, msg.From)
		require.Equal(t, []byte("hi"), msg.Payload)
	default:
		t.Fatal("expected a message on receiver's delivery channel")
	}

	p, err = k.GetProcess(receiver)
	require.NoError(t, err)
	require.Equal(t, StateRunning, p.State)
}

func TestIpcReceiveNonBlockingWouldBlock(t *testing.T) {
	k := newTestInterior()
	pid, _, err := k.RegisterProcess("p")
	require.NoError(t, err)
	ep, _, err := k.CreateEndpoint(pid)
	require.NoError(t, err)

	cs, err := k.GetCapabilitySpace(pid)
	require.NoError(t, err)
	var slot ids.CapSlot
	for s, c := range cs {
		if c.ObjectType == capability.ObjectEndpoint && c.ObjectId == uint64(ep) {
			slot = s
		}
	}

	_, _, _, err = k.IpcReceive(pid, ep, slot, false)
	require.ErrorIs(t, err, ErrWouldBlock)
}
