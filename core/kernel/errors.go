package kernel

import (
	"fmt"

	"github.com/containerd/errdefs"
)

// Sentinel errors for the kernel's access/resource/protocol taxonomy
// (spec.md §7). Each wraps one of containerd's errdefs sentinels so callers
// can use errdefs.Is* instead of matching on a kernel-private enum; see
// SPEC_FULL.md §7 for the full mapping table.
var (
	ErrProcessNotFound  = fmt.Errorf("process not found: %w", errdefs.ErrNotFound)
	ErrInvalidSlot      = fmt.Errorf("invalid capability slot: %w", errdefs.ErrInvalidArgument)
	ErrRevoked          = fmt.Errorf("capability revoked: %w", errdefs.ErrFailedPrecondition)
	ErrCapabilityDenied = fmt.Errorf("capability denied: %w", errdefs.ErrPermissionDenied)
	ErrQueueFull        = fmt.Errorf("endpoint queue full: %w", errdefs.ErrUnavailable)
	ErrWouldBlock       = fmt.Errorf("would block: %w", errdefs.ErrUnavailable)
	ErrTooLarge         = fmt.Errorf("payload too large: %w", errdefs.ErrInvalidArgument)
	ErrEndpointClosed   = fmt.Errorf("endpoint closed: %w", errdefs.ErrFailedPrecondition)
	ErrBadArg           = fmt.Errorf("bad argument: %w", errdefs.ErrInvalidArgument)
	ErrTimeout          = fmt.Errorf("timeout: %w", errdefs.ErrDeadlineExceeded)
)

// errEndpointNotFound and errNoSuchRequest are internal lookup failures,
// both surfaced to callers as ErrProcessNotFound-equivalent NotFound errors.
var (
	errEndpointNotFound = fmt.Errorf("endpoint not found: %w", errdefs.ErrNotFound)
	errNoSuchRequest    = fmt.Errorf("no such pending request: %w", errdefs.ErrNotFound)
)
