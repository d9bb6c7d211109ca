// Package syslog implements SysLog: the append-only, best-effort durable,
// discardable record of syscall requests and responses used for audit and
// debugging. Unlike the CommitLog, its loss never changes system
// correctness, so it is kept as a bounded in-memory ring buffer rather than
// persisted — persisting it would imply a durability guarantee the spec
// explicitly declines to make (spec.md §9, open questions).
package syslog

import (
	"sync"

	"github.com/zeroos/zeroos/pkg/ids"
)

// Entry is one SysLog record: a syscall request, and — once the kernel has
// run — its response.
type Entry struct {
	Seq        ids.SyscallSeq
	TsNs       uint64
	CallerPid  ids.ProcessId
	SyscallNum uint32
	Args       [4]uint32

	Responded bool
	Result    int32
	ErrorKind string // empty if Result >= 0
}

// DefaultCapacity is the default number of entries retained before the
// oldest is discarded.
const DefaultCapacity = 4096

// Log is a bounded, append-only ring buffer of SysLog entries.
type Log struct {
	mu       sync.Mutex
	alloc    ids.Allocator
	capacity int
	entries  []Entry
	start    int // index of oldest entry in entries, once full
	count    int
}

// New creates a SysLog with room for capacity entries.
func New(capacity int) *Log {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Log{capacity: capacity, entries: make([]Entry, capacity)}
}

// LogRequest appends a request entry and returns its SyscallSeq, to be
// passed to LogResponse once the kernel operation completes.
func (l *Log) LogRequest(tsNs uint64, caller ids.ProcessId, num uint32, args [4]uint32) ids.SyscallSeq {
	l.mu.Lock()
	defer l.mu.Unlock()

	seq := l.alloc.NextSyscallSeq()
	e := Entry{Seq: seq, TsNs: tsNs, CallerPid: caller, SyscallNum: num, Args: args}
	l.push(e)
	return seq
}

// LogResponse records the outcome of the request identified by seq. If seq
// has already been evicted by ring-buffer wraparound, this is a silent
// no-op — consistent with SysLog's documented discardability.
func (l *Log) LogResponse(seq ids.SyscallSeq, result int32, errorKind string) {
	l.mu.Lock()
	defer l.mu.Unlock()

	for i := 0; i < l.count; i++ {
		idx := (l.start + i) % l.capacity
		if l.entries[idx].Seq == seq {
			l.entries[idx].Responded = true
			l.entries[idx].Result = result
			l.entries[idx].ErrorKind = errorKind
			return
		}
	}
}

func (l *Log) push(e Entry) {
	if l.count < l.capacity {
		l.entries[(l.start+l.count)%l.capacity] = e
		l.count++
		return
	}
	l.entries[l.start] = e
	l.start = (l.start + 1) % l.capacity
}

// Recent returns the up-to-n most recent entries, oldest first.
func (l *Log) Recent(n int) []Entry {
	l.mu.Lock()
	defer l.mu.Unlock()

	if n <= 0 || n > l.count {
		n = l.count
	}
	out := make([]Entry, 0, n)
	skip := l.count - n
	for i := skip; i < l.count; i++ {
		idx := (l.start + i) % l.capacity
		out = append(out, l.entries[idx])
	}
	return out
}
