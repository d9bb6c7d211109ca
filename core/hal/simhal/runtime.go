package simhal

import (
	"context"
	"runtime"

	"github.com/zeroos/zeroos/core/hal"
)

// IsolateRuntime is the surface a Program sees: the cooperative stand-in
// for the ABI primitives an isolate calls into (spec.md §6) —
// zos_syscall, zos_send_bytes/zos_recv_bytes, zos_yield. A real WASM
// front end would expose these as host-imported functions; Program calls
// them as ordinary Go methods instead.
type IsolateRuntime struct {
	hal *HAL
	iso *isolate
}

// Syscall submits num/args/data to the isolate's own mailbox and blocks
// (cooperatively — this is a goroutine, not the real isolate thread)
// until the supervisor's mailbox pump has written back a result. This is
// zos_syscall.
func (rt *IsolateRuntime) Syscall(num uint32, args [4]uint32, data []byte) (int32, []byte) {
	rt.iso.mailbox.SubmitSyscall(num, args, data)
	for {
		if result, respData, ok := rt.iso.mailbox.TryTakeReady(); ok {
			return result, respData
		}
		if !rt.iso.alive.Load() {
			return -1, nil
		}
		runtimeGosched()
	}
}

// RecvBytes blocks until PostTo delivers a notification payload — the
// cooperative analogue of zos_recv_bytes for the kernel-notification
// channel a process's implicit endpoint carries. It also returns (nil,
// false) once the isolate itself is killed, so a Program's receive loop
// exits instead of leaking.
func (rt *IsolateRuntime) RecvBytes(ctx context.Context) ([]byte, bool) {
	select {
	case b := <-rt.iso.inbox:
		return b, true
	case <-ctx.Done():
		return nil, false
	case <-rt.iso.ctx.Done():
		return nil, false
	}
}

// Done returns a channel closed once the isolate has been killed, for
// Programs that need to select on cancellation directly rather than
// through RecvBytes.
func (rt *IsolateRuntime) Done() <-chan struct{} {
	return rt.iso.ctx.Done()
}

// Yield cooperatively yields the logical processor — zos_yield. In a
// goroutine-backed HAL this is a scheduling hint only; the Go runtime
// scheduler is free to ignore it, which matches the spec's framing of
// Scheduler as advisory bookkeeping rather than a mechanism.
func (rt *IsolateRuntime) Yield() {
	runtimeGosched()
}

// Pid returns the PID this mailbox was stamped with at creation —
// zos_get_pid.
func (rt *IsolateRuntime) Pid() uint32 {
	return rt.iso.mailbox.PID
}

// IssueAsync exposes hal.HAL.IssueAsync directly to isolate code so a
// Program can drive the async storage/network syscalls without a syscall
// round trip through the mailbox — used for HAL-level test programs, not
// by real ABI-calling isolates (those always go through Syscall above).
func (rt *IsolateRuntime) IssueAsync(ctx context.Context, kind hal.Kind, payload []byte) (uint64, error) {
	return rt.hal.IssueAsync(ctx, kind, payload)
}

func runtimeGosched() {
	runtime.Gosched()
}
