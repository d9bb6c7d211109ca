// Package qemuhal implements the HAL backend for the QEMU VM deployment
// target: isolates are guest processes supervised by a guest agent, and
// this HAL is the client side of that agent's control protocol. The
// control-plane transport (spec.md leaves the concrete wire format to the
// deployment, naming only the semantics each HAL method must provide) is
// not yet implemented; every method here is a documented stub returning
// hal.ErrNotSupported except the clock and entropy primitives, which need
// no guest agent round trip.
package qemuhal

import (
	"context"
	"crypto/rand"
	"fmt"
	"time"

	"github.com/zeroos/zeroos/core/hal"
	"github.com/zeroos/zeroos/core/mailbox"
)

type handle struct {
	id uint64
}

func (*handle) isHandle() {}

// Config names the guest agent endpoint this HAL would dial. Held here so
// the composition root (cmd/zosd) can construct a qemuhal.HAL from config
// today even though Dial is not yet implemented.
type Config struct {
	AgentSocketPath string
}

// HAL is the QEMU guest-agent client. Zero value is usable for the
// clock/entropy primitives; every isolate-lifecycle method returns
// hal.ErrNotSupported until the guest agent protocol is implemented.
type HAL struct {
	cfg    Config
	bootNs int64
}

// New constructs a qemuhal.HAL against cfg. It does not dial the guest
// agent; Dial is left for the control-protocol implementation.
func New(cfg Config) *HAL {
	return &HAL{cfg: cfg, bootNs: time.Now().UnixNano()}
}

func (h *HAL) Spawn(ctx context.Context, name string, binary []byte) (hal.Handle, error) {
	return nil, fmt.Errorf("qemuhal: guest agent spawn not implemented: %w", hal.ErrNotSupported)
}

func (h *HAL) Kill(ctx context.Context, hd hal.Handle) error {
	return fmt.Errorf("qemuhal: guest agent kill not implemented: %w", hal.ErrNotSupported)
}

func (h *HAL) PostTo(ctx context.Context, hd hal.Handle, data []byte) error {
	return fmt.Errorf("qemuhal: guest agent transport not implemented: %w", hal.ErrNotSupported)
}

func (h *HAL) IsAlive(hd hal.Handle) bool {
	return false
}

func (h *HAL) PollFaults() []hal.Handle {
	return nil
}

func (h *HAL) MemoryBytes(hd hal.Handle) (uint64, error) {
	return 0, fmt.Errorf("qemuhal: guest agent query not implemented: %w", hal.ErrNotSupported)
}

func (h *HAL) Mailbox(hd hal.Handle) (*mailbox.Mailbox, error) {
	return nil, fmt.Errorf("qemuhal: guest agent mailbox mapping not implemented: %w", hal.ErrNotSupported)
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
	// The guest agent protocol would forward this to the host console;
	// until then this is a no-op rather than a misleading local print.
}

func (h *HAL) IssueAsync(ctx context.Context, kind hal.Kind, payload []byte) (uint64, error) {
	return 0, fmt.Errorf("qemuhal: guest agent async I/O not implemented: %w", hal.ErrNotSupported)
}

func (h *HAL) PollCompletions() []hal.Completion {
	return nil
}
