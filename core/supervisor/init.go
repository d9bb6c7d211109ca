package supervisor

import (
	"context"
	"fmt"

	"github.com/zeroos/zeroos/core/axiom"
	"github.com/zeroos/zeroos/core/capability"
	"github.com/zeroos/zeroos/core/commit"
	"github.com/zeroos/zeroos/core/hal"
	"github.com/zeroos/zeroos/core/kernel"
	"github.com/zeroos/zeroos/pkg/ids"
)

// BootstrapInit creates the first process (PID 1, named "init"), hands it
// the root capability set over every object type the kernel mediates (with
// PermGrant so it can delegate subsets downstream — spec.md's description
// of Init as "the one userspace policy authority" that every other
// delegation traces back to), spawns its isolate on h, and attaches its
// mailbox to the supervisor's poll loop.
//
// This is the one place BootstrapGrant is called: a supervisor-driven
// internal_operation, never reachable from an ordinary syscall path.
func (s *Supervisor) BootstrapInit(ctx context.Context, h hal.HAL, initBinary []byte) (ids.ProcessId, error) {
	pid, err := axiom.InternalOperation(ctx, s.gateway, func(k *kernel.Interior) (ids.ProcessId, []commit.Commit, error) {
		pid, commits, err := k.RegisterProcess("init")
		return pid, commits, err
	})
	if err != nil {
		return 0, fmt.Errorf("zeroos/supervisor: bootstrap init process: %w", err)
	}

	rootObjects := []capability.ObjectType{
		capability.ObjectConsole,
		capability.ObjectStorage,
		capability.ObjectNetwork,
		capability.ObjectProcess,
		capability.ObjectMemory,
		capability.ObjectIrq,
		capability.ObjectIoPort,
	}
	for _, ot := range rootObjects {
		_, err := axiom.InternalOperation(ctx, s.gateway, func(k *kernel.Interior) (ids.CapSlot, []commit.Commit, error) {
			return k.BootstrapGrant(pid, ot, 0, capability.PermRead|capability.PermWrite|capability.PermGrant)
		})
		if err != nil {
			return 0, fmt.Errorf("zeroos/supervisor: bootstrap init root capability %s: %w", ot, err)
		}
	}

	handle, err := h.Spawn(ctx, "init", initBinary)
	if err != nil {
		return 0, fmt.Errorf("zeroos/supervisor: spawn init isolate: %w", err)
	}

	mb, err := h.Mailbox(handle)
	if err != nil {
		return 0, fmt.Errorf("zeroos/supervisor: locate init isolate's mailbox: %w", err)
	}
	mb.PID = uint32(pid)
	s.Attach(pid, mb, handle)

	return pid, nil
}
