package kernel

import (
	"fmt"

	"github.com/zeroos/zeroos/core/capability"
	"github.com/zeroos/zeroos/core/commit"
	"github.com/zeroos/zeroos/pkg/ids"
)

// CreateEndpoint creates an endpoint owned by owner and inserts a
// read+write+grant capability for it into owner's own capability space (the creator always
// holds a usable reference to what it created).
func (k *Interior) CreateEndpoint(owner ids.ProcessId) (ids.EndpointId, []commit.Commit, error) {
	k.mu.Lock()
	defer k.mu.Unlock()

	if _, ok := k.processes[owner]; !ok {
		return 0, nil, ErrProcessNotFound
	}

	ep := k.allocIds.NextEndpointId()
	k.endpoints[ep] = newEndpointEntry(ep, owner)

	commits := []commit.Commit{commit.NewEndpointCreated(ep, owner)}
	slot, insCommit, err := k.insertCapabilityLocked(owner, capability.ObjectEndpoint, uint64(ep), capability.PermRead|capability.PermWrite|capability.PermGrant)
	if err != nil {
		return 0, nil, err
	}
	_ = slot
	commits = append(commits, insCommit)
	return ep, commits, nil
}

func (k *Interior) insertCapabilityLocked(pid ids.ProcessId, ot capability.ObjectType, oid uint64, perms capability.Perms) (ids.CapSlot, commit.Commit, error) {
	cs, ok := k.capSpaces[pid]
	if !ok {
		return 0, commit.Commit{}, ErrProcessNotFound
	}
	slot := cs.allocSlot()
	gen := k.generation(ot, oid)
	cap := capability.Capability{ObjectType: ot, ObjectId: oid, Perms: perms, Generation: gen}
	cs.insert(slot, cap)
	return slot, commit.NewCapabilityInserted(pid, slot, ot, oid, perms, gen), nil
}

// GrantCapability delegates a capability owned by granterPid at granterSlot
// to granteePid, intersecting reqPerms with the grantor's own rights. It
// fails with CapabilityDenied unless the source capability carries
// PermGrant, with InvalidSlot/Revoked if the source slot does not resolve
// to a valid capability, and with ProcessNotFound if either pid is unknown.
func (k *Interior) GrantCapability(granterPid ids.ProcessId, granterSlot ids.CapSlot, granteePid ids.ProcessId, reqPerms capability.Perms) (ids.CapSlot, []commit.Commit, error) {
	k.mu.Lock()
	defer k.mu.Unlock()

	granterCs, ok := k.capSpaces[granterPid]
	if !ok {
		return 0, nil, ErrProcessNotFound
	}
	if _, ok := k.capSpaces[granteePid]; !ok {
		return 0, nil, ErrProcessNotFound
	}

	src, ok := granterCs.lookup(granterSlot)
	if !ok {
		return 0, nil, ErrInvalidSlot
	}
	if src.Generation != k.generation(src.ObjectType, src.ObjectId) {
		return 0, nil, ErrRevoked
	}
	if !src.Perms.CanGrant() {
		return 0, []commit.Commit{commit.NewMessageRejected(granterPid, 0, "grant attempted without grant right")}, ErrCapabilityDenied
	}

	delegated := src.Delegate(reqPerms)
	slot, c, err := k.insertCapabilityLocked(granteePid, delegated.ObjectType, delegated.ObjectId, delegated.Perms)
	if err != nil {
		return 0, nil, err
	}
	return slot, []commit.Commit{c}, nil
}

// BootstrapGrant inserts a capability directly without checking a source
// capability. It is reserved for supervisor-driven bootstrap
// (internal_operation granting Init its root capability set) and must
// never be reachable from an ordinary syscall path.
func (k *Interior) BootstrapGrant(pid ids.ProcessId, ot capability.ObjectType, oid uint64, perms capability.Perms) (ids.CapSlot, []commit.Commit, error) {
	k.mu.Lock()
	defer k.mu.Unlock()
	slot, c, err := k.insertCapabilityLocked(pid, ot, oid, perms)
	if err != nil {
		return 0, nil, err
	}
	return slot, []commit.Commit{c}, nil
}

// RevokeCapability removes slot from pid's capability space. It does not
// affect the referenced object's generation (that only happens on owner
// termination / explicit object destruction); it only removes this one
// reference.
func (k *Interior) RevokeCapability(pid ids.ProcessId, slot ids.CapSlot) ([]commit.Commit, error) {
	k.mu.Lock()
	defer k.mu.Unlock()

	cs, ok := k.capSpaces[pid]
	if !ok {
		return nil, ErrProcessNotFound
	}
	if _, ok := cs.lookup(slot); !ok {
		return nil, ErrInvalidSlot
	}
	cs.free(slot)
	return []commit.Commit{commit.NewCapabilityRevoked(pid, slot)}, nil
}

// InspectCapability returns slot's capability without consuming it. Purely
// read-only; produces no commit. Returns Revoked if the slot's generation
// no longer matches its referent's current generation (the capability is
// present but stale).
func (k *Interior) InspectCapability(pid ids.ProcessId, slot ids.CapSlot) (capability.Capability, error) {
	k.mu.RLock()
	defer k.mu.RUnlock()

	cs, ok := k.capSpaces[pid]
	if !ok {
		return capability.Capability{}, ErrProcessNotFound
	}
	cap, ok := cs.lookup(slot)
	if !ok {
		return capability.Capability{}, ErrInvalidSlot
	}
	if cap.Generation != k.generation(cap.ObjectType, cap.ObjectId) {
		return capability.Capability{}, ErrRevoked
	}
	return cap, nil
}

// checkCapability is a helper used by IPC operations to verify pid holds a
// valid, non-revoked capability at slot referencing the expected object
// with at least the required permission.
func (k *Interior) checkCapability(pid ids.ProcessId, slot ids.CapSlot, ot capability.ObjectType, oid uint64, need capability.Perms) error {
	cs, ok := k.capSpaces[pid]
	if !ok {
		return ErrProcessNotFound
	}
	cap, ok := cs.lookup(slot)
	if !ok {
		return ErrInvalidSlot
	}
	if cap.Generation != k.generation(cap.ObjectType, cap.ObjectId) {
		return ErrRevoked
	}
	if cap.ObjectType != ot || cap.ObjectId != oid {
		return fmt.Errorf("capability slot %d does not reference the requested object: %w", slot, ErrBadArg)
	}
	if cap.Perms&need != need {
		return ErrCapabilityDenied
	}
	return nil
}
