// Package hal defines the Hardware/Host Abstraction Layer: the minimum set
// of platform primitives the kernel cannot express itself. Everything else
// in Zero OS is userspace. See spec.md §4.A.
package hal

import (
	"context"
	"errors"
	"fmt"

	"github.com/zeroos/zeroos/core/mailbox"
)

// Handle is an opaque, non-forgeable reference to a live isolate. Its
// concrete representation is chosen by the HAL implementation (simhal and
// qemuhal both use a small struct carrying a numeric isolate id).
type Handle interface {
	isHandle()
}

// Kind names the class of asynchronous I/O operation issued through
// IssueAsync, matching the async syscall ranges in spec.md §6.
type Kind uint8

const (
	KindStorageRead Kind = iota
	KindStorageWrite
	KindStorageExists
	KindStorageList
	KindStorageDelete
	KindKeystoreOp
	KindNetworkHTTP
)

func (k Kind) String() string {
	switch k {
	case KindStorageRead:
		return "storage.read"
	case KindStorageWrite:
		return "storage.write"
	case KindStorageExists:
		return "storage.exists"
	case KindStorageList:
		return "storage.list"
	case KindStorageDelete:
		return "storage.delete"
	case KindKeystoreOp:
		return "keystore.op"
	case KindNetworkHTTP:
		return "network.http"
	default:
		return fmt.Sprintf("Kind(%d)", uint8(k))
	}
}

// CompletionStatus reports how an asynchronous operation finished.
type CompletionStatus uint8

const (
	StatusOK CompletionStatus = iota
	StatusError
)

// Completion is one finished asynchronous I/O operation, as drained by
// PollCompletions.
type Completion struct {
	RequestID uint64
	Kind      Kind
	Status    CompletionStatus
	Data      []byte
	Err       string
}

// Error is the HAL's flat error enum (spec.md §4.A). No HAL operation
// retries; retry is the caller's policy.
type Error struct {
	Kind string
}

func (e *Error) Error() string { return "hal: " + e.Kind }

var (
	ErrOutOfMemory   = &Error{"OutOfMemory"}
	ErrSpawnFailed   = &Error{"SpawnFailed"}
	ErrNotFound      = &Error{"NotFound"}
	ErrTooLarge      = &Error{"TooLarge"}
	ErrNotSupported  = &Error{"NotSupported"}
	ErrIo            = &Error{"Io"}
	ErrBadArg        = &Error{"BadArg"}
)

// Is supports errors.Is against the HAL's sentinel values.
func (e *Error) Is(target error) bool {
	var t *Error
	if errors.As(target, &t) {
		return t.Kind == e.Kind
	}
	return false
}

// HAL is the platform substrate the kernel and supervisor depend on. Three
// implementations exist in this repository, one per deployment target
// named in spec.md §1: simhal (cooperative, goroutine-backed — stands in
// for the browser WASM worker target), qemuhal (a guest-agent client for
// the QEMU VM target), and baremetal (a documented stub for the bare-metal
// x86_64 target, out of scope beyond its clock/entropy primitives). All
// three satisfy this one interface.
type HAL interface {
	// Spawn creates an isolate loaded with the named relocatable process
	// image (an opaque blob the HAL implementation knows how to load —
	// for simhal, the name of a Program registered with it).
	Spawn(ctx context.Context, name string, binary []byte) (Handle, error)
	// Kill terminates the isolate. Idempotent for already-dead handles.
	Kill(ctx context.Context, h Handle) error
	// PostTo delivers bytes to the isolate via the platform's transport,
	// preserving per-destination byte ordering.
	PostTo(ctx context.Context, h Handle, data []byte) error
	// IsAlive reports whether h's isolate is still running.
	IsAlive(h Handle) bool
	// PollFaults drains every isolate crash (panic or other unrecoverable
	// runtime error) observed since the last call, mirroring
	// PollCompletions' drain-accumulated-events shape. A faulted isolate's
	// IsAlive is already false by the time its Handle appears here; this is
	// how the supervisor tells "crashed" apart from "merely killed" so it
	// can route the former through kernel.Interior.MarkFaulted.
	PollFaults() []Handle
	// MemoryBytes reports h's isolate's live memory footprint.
	MemoryBytes(h Handle) (uint64, error)
	// Mailbox returns the fixed-layout syscall mailbox backing h's isolate —
	// the region a real WASM front end would expose at a known linear-memory
	// offset. The supervisor attaches exactly this mailbox to its poll loop;
	// it never constructs one of its own, since a freestanding Mailbox value
	// would not be the memory the isolate actually submits syscalls into.
	Mailbox(h Handle) (*mailbox.Mailbox, error)

	// NowMonotonicNs returns nanoseconds since an arbitrary, monotonic
	// epoch — used for uptime_ns, LastActivity, and CommitLog timestamps.
	NowMonotonicNs() uint64
	// NowWallclockMs returns milliseconds since the Unix epoch.
	NowWallclockMs() uint64
	// RandomBytes fills buf with cryptographically secure entropy.
	RandomBytes(buf []byte)

	// DebugWrite is a best-effort debug channel; failures are not
	// reported to the caller.
	DebugWrite(s string)

	// IssueAsync begins an asynchronous I/O operation and returns a
	// RequestId immediately; the caller learns of completion only through
	// PollCompletions, never through a callback.
	IssueAsync(ctx context.Context, kind Kind, payload []byte) (uint64, error)
	// PollCompletions drains every I/O completion observed since the
	// last call.
	PollCompletions() []Completion
}
