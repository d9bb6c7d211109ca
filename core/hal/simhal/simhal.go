// Package simhal implements the cooperative HAL backend: isolates are
// goroutines with their own byte-slice "linear memory" (a mailbox.Mailbox),
// standing in for a single-threaded WASM worker host. There is no real
// memory isolation — simhal exists to exercise the kernel, Axiom, and
// mailbox protocol end to end without a real WASM runtime, matching the
// single-logical-thread cooperative model spec.md §5 describes.
package simhal

import (
	"context"
	"crypto/rand"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/containerd/log"

	"github.com/zeroos/zeroos/core/hal"
	"github.com/zeroos/zeroos/core/mailbox"
)

// Program is the Go stand-in for a relocatable process image: the code an
// isolate runs, expressed as a closure over its IsolateRuntime rather than
// compiled WASM. Real front ends would replace this with an actual WASM
// module load; simhal's job is to exercise everything downstream of that
// boundary faithfully.
type Program func(rt *IsolateRuntime)

// handle is simhal's opaque, non-forgeable isolate reference.
type handle struct {
	id uint64
}

func (*handle) isHandle() {}

type isolate struct {
	id      uint64
	name    string
	mailbox *mailbox.Mailbox
	// inbox carries bytes pushed by PostTo — kernel notification delivery
	// (e.g. HandleCompletion's notification-endpoint message), which rides
	// a separate transport from the syscall mailbox above.
	inbox  chan []byte
	ctx    context.Context
	cancel context.CancelFunc
	alive  atomic.Bool
	done   chan struct{}
}

// HAL is the cooperative, goroutine-backed HAL.
type HAL struct {
	mu        sync.Mutex
	isolates  map[uint64]*isolate
	nextID    atomic.Uint64
	bootNs    int64
	programs  map[string]Program

	store       store // simulated async storage backend
	completions chan hal.Completion
	reqIDs      atomic.Uint64
	faults      chan hal.Handle
}

// New constructs an empty simhal.HAL.
func New() *HAL {
	return &HAL{
		isolates:    make(map[uint64]*isolate),
		bootNs:      time.Now().UnixNano(),
		programs:    make(map[string]Program),
		store:       newStore(),
		completions: make(chan hal.Completion, 256),
		faults:      make(chan hal.Handle, 256),
	}
}

// RegisterProgram names a Program so Spawn(ctx, name, []byte(name)) can
// load it; Spawn's binary argument is the registered name's bytes, since
// simhal has no real loader.
func (h *HAL) RegisterProgram(name string, prog Program) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.programs[name] = prog
}

func (h *HAL) Spawn(ctx context.Context, name string, binary []byte) (hal.Handle, error) {
	h.mu.Lock()
	prog, ok := h.programs[string(binary)]
	h.mu.Unlock()
	if !ok {
		return nil, fmt.Errorf("simhal: no program registered for %q: %w", string(binary), hal.ErrSpawnFailed)
	}

	id := h.nextID.Add(1)
	mb := mailbox.New()
	isoCtx, cancel := context.WithCancel(ctx)
	iso := &isolate{id: id, name: name, mailbox: mb, inbox: make(chan []byte, 64), ctx: isoCtx, cancel: cancel, done: make(chan struct{})}
	iso.alive.Store(true)

	h.mu.Lock()
	h.isolates[id] = iso
	h.mu.Unlock()

	rt := &IsolateRuntime{hal: h, iso: iso}
	go func() {
		defer close(iso.done)
		defer iso.alive.Store(false)
		defer func() {
			if r := recover(); r != nil {
				log.L.WithField("isolate", name).Errorf("simhal: isolate panicked: %v", r)
				iso.alive.Store(false)
				select {
				case h.faults <- &handle{id: id}:
				default:
				}
			}
		}()
		select {
		case <-isoCtx.Done():
			return
		default:
		}
		prog(rt)
	}()

	return &handle{id: id}, nil
}

func (h *HAL) Kill(ctx context.Context, hd hal.Handle) error {
	id, ok := hd.(*handle)
	if !ok {
		return fmt.Errorf("simhal: wrong handle type: %w", hal.ErrBadArg)
	}
	h.mu.Lock()
	iso, ok := h.isolates[id.id]
	h.mu.Unlock()
	if !ok {
		return nil // idempotent for already-dead handles
	}
	iso.cancel()
	iso.alive.Store(false)
	return nil
}

func (h *HAL) PostTo(ctx context.Context, hd hal.Handle, data []byte) error {
	id, ok := hd.(*handle)
	if !ok {
		return fmt.Errorf("simhal: wrong handle type: %w", hal.ErrBadArg)
	}
	h.mu.Lock()
	iso, ok := h.isolates[id.id]
	h.mu.Unlock()
	if !ok {
		return hal.ErrNotFound
	}
	if len(data) > mailbox.DataBytes {
		return hal.ErrTooLarge
	}
	select {
	case iso.inbox <- data:
	default:
		return fmt.Errorf("simhal: inbox full: %w", hal.ErrIo)
	}
	return nil
}

func (h *HAL) IsAlive(hd hal.Handle) bool {
	id, ok := hd.(*handle)
	if !ok {
		return false
	}
	h.mu.Lock()
	iso, ok := h.isolates[id.id]
	h.mu.Unlock()
	return ok && iso.alive.Load()
}

func (h *HAL) MemoryBytes(hd hal.Handle) (uint64, error) {
	id, ok := hd.(*handle)
	if !ok {
		return 0, hal.ErrBadArg
	}
	h.mu.Lock()
	_, ok = h.isolates[id.id]
	h.mu.Unlock()
	if !ok {
		return 0, hal.ErrNotFound
	}
	return mailbox.Size, nil
}

func (h *HAL) Mailbox(hd hal.Handle) (*mailbox.Mailbox, error) {
	id, ok := hd.(*handle)
	if !ok {
		return nil, hal.ErrBadArg
	}
	h.mu.Lock()
	iso, ok := h.isolates[id.id]
	h.mu.Unlock()
	if !ok {
		return nil, hal.ErrNotFound
	}
	return iso.mailbox, nil
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
	log.L.WithField("source", "isolate").Debug(s)
}

func (h *HAL) IssueAsync(ctx context.Context, kind hal.Kind, payload []byte) (uint64, error) {
	reqID := h.reqIDs.Add(1)
	go h.runAsync(reqID, kind, payload)
	return reqID, nil
}

func (h *HAL) PollCompletions() []hal.Completion {
	var out []hal.Completion
	for {
		select {
		case c := <-h.completions:
			out = append(out, c)
		default:
			return out
		}
	}
}

func (h *HAL) PollFaults() []hal.Handle {
	var out []hal.Handle
	for {
		select {
		case hd := <-h.faults:
			out = append(out, hd)
		default:
			return out
		}
	}
}

// runAsync simulates the latency of a real I/O backend with a small sleep,
// then resolves against the in-memory store and enqueues a Completion.
func (h *HAL) runAsync(reqID uint64, kind hal.Kind, payload []byte) {
	time.Sleep(time.Millisecond)

	var c hal.Completion
	c.RequestID = reqID
	c.Kind = kind

	switch kind {
	case hal.KindStorageRead:
		data, ok := h.store.get(string(payload))
		if !ok {
			c.Status = hal.StatusError
			c.Err = "NotFound"
		} else {
			c.Status = hal.StatusOK
			c.Data = data
		}
	case hal.KindStorageWrite:
		key, value := splitKV(payload)
		h.store.put(key, value)
		c.Status = hal.StatusOK
	case hal.KindStorageExists:
		_, ok := h.store.get(string(payload))
		c.Status = hal.StatusOK
		if ok {
			c.Data = []byte{1}
		} else {
			c.Data = []byte{0}
		}
	case hal.KindStorageList:
		c.Status = hal.StatusOK
		c.Data = []byte(h.store.list(string(payload)))
	case hal.KindStorageDelete:
		h.store.delete(string(payload))
		c.Status = hal.StatusOK
	case hal.KindKeystoreOp, hal.KindNetworkHTTP:
		// Out of scope leaf services; acknowledged but not implemented.
		c.Status = hal.StatusError
		c.Err = "NotSupported"
	default:
		c.Status = hal.StatusError
		c.Err = "BadArg"
	}

	h.completions <- c
}

func splitKV(payload []byte) (string, []byte) {
	for i, b := range payload {
		if b == 0 {
			return string(payload[:i]), payload[i+1:]
		}
	}
	return string(payload), nil
}
