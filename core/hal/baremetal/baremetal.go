// Package baremetal is a placeholder HAL backend for the bare-metal
// x86_64 deployment target named in spec.md §1. A real implementation
// would own isolate scheduling and memory mapping directly rather than
// delegating to an OS or a guest agent; that is out of scope here, so
// only the primitives a bare-metal host can trivially provide without an
// isolate runtime — clock and entropy — are implemented.
package baremetal

import (
	"context"
	"crypto/rand"
	"fmt"
	"time"

	"github.com/zeroos/zeroos/core/hal"
	"github.com/zeroos/zeroos/core/mailbox"
)

// HAL is the bare-metal stub.
type HAL struct {
	bootNs int64
}

// New constructs a baremetal.HAL.
func New() *HAL {
	return &HAL{bootNs: time.Now().UnixNano()}
}

func (h *HAL) Spawn(ctx context.Context, name string, binary []byte) (hal.Handle, error) {
	return nil, fmt.Errorf("baremetal: isolate hosting not implemented: %w", hal.ErrNotSupported)
}

func (h *HAL) Kill(ctx context.Context, hd hal.Handle) error {
	return fmt.Errorf("baremetal: isolate hosting not implemented: %w", hal.ErrNotSupported)
}

func (h *HAL) PostTo(ctx context.Context, hd hal.Handle, data []byte) error {
	return fmt.Errorf("baremetal: isolate hosting not implemented: %w", hal.ErrNotSupported)
}

func (h *HAL) IsAlive(hd hal.Handle) bool {
	return false
}

func (h *HAL) PollFaults() []hal.Handle {
	return nil
}

func (h *HAL) MemoryBytes(hd hal.Handle) (uint64, error) {
	return 0, fmt.Errorf("baremetal: isolate hosting not implemented: %w", hal.ErrNotSupported)
}

func (h *HAL) Mailbox(hd hal.Handle) (*mailbox.Mailbox, error) {
	return nil, fmt.Errorf("baremetal: isolate hosting not implemented: %w", hal.ErrNotSupported)
}

func (h *HAL) NowMonotonicNs() uint64 {
	return uint64(time.Now().UnixNano() - h.bootNs)
}

func (h *HAL) NowWallclockMs() uint64 {
	return uint64(time.Now().UnixNano() / int64(time.Millisecond))
}

func (h *HAL) RandomBytes(buf []byte) {
	_, _ = rand.Read(buf)
}

func (h *HAL) DebugWrite(s string) {
	fmt.Println(s)
}

func (h *HAL) IssueAsync(ctx context.Context, kind hal.Kind, payload []byte) (uint64, error) {
	return 0, fmt.Errorf("baremetal: async I/O not implemented: %w", hal.ErrNotSupported)
}

func (h *HAL) PollCompletions() []hal.Completion {
	return nil
}
