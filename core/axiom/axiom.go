// Package axiom implements the Axiom Gateway: the single public entry
// point to kernel mutation. Every mutation flows through Syscall or
// InternalOperation; nothing else may append to the CommitLog or call a
// KernelInterior mutation method directly. See spec.md §4.D.
package axiom

import (
	"context"
	"fmt"

	"github.com/containerd/log"

	"github.com/zeroos/zeroos/core/commit"
	"github.com/zeroos/zeroos/core/events"
	"github.com/zeroos/zeroos/core/kernel"
	"github.com/zeroos/zeroos/core/syslog"
	"github.com/zeroos/zeroos/pkg/ids"
)

// Op is a kernel mutation closure: given the private Interior, it performs
// exactly one logical operation and returns a result plus the commits that
// operation produced. Op must not suspend and must not call back into
// Axiom — see spec.md §5.
type Op[R any] func(interior *kernel.Interior) (R, []commit.Commit, error)

// Clock supplies the timestamps Axiom stamps onto SysLog entries and
// CommitLog entries. In production this is hal.HAL.NowWallclockMs /
// NowMonotonicNs; tests supply a fixed or incrementing clock.
type Clock interface {
	NowNs() uint64
}

// Gateway is the Axiom Gateway. It owns no kernel state itself — it holds
// references to the Interior it mediates, the SysLog and CommitLog it
// writes to, and the Exchange it broadcasts appended commits through.
type Gateway struct {
	interior  *kernel.Interior
	sysLog    *syslog.Log
	commitLog *commit.Log
	exchange  *events.Exchange
	clock     Clock

	// isLive reports whether a caller pid names a live, non-zombie
	// process — the "trusted execution context" check from spec.md §4.D.
	// New sets it to a check over kernel.Interior.GetProcess that treats
	// a missing or zombie process as not live.
	isLive func(pid ids.ProcessId) bool
}

// New constructs a Gateway over interior, logging to sysLog and
// commitLog, broadcasting through exchange, using clock for timestamps.
func New(interior *kernel.Interior, sysLog *syslog.Log, commitLog *commit.Log, exchange *events.Exchange, clock Clock) *Gateway {
	g := &Gateway{interior: interior, sysLog: sysLog, commitLog: commitLog, exchange: exchange, clock: clock}
	g.isLive = func(pid ids.ProcessId) bool {
		p, err := interior.GetProcess(pid)
		return err == nil && p.State != kernel.StateZombie
	}
	return g
}

// errDenied is returned as the syscall result when caller identity does not
// resolve to a live process — spec.md §4.D step 2: "synthesize a Denied
// result and log response without executing op."
var errDenied = fmt.Errorf("caller pid does not resolve to a live process")

// Syscall is the syscall-path gateway operation (spec.md §4.D operation 1):
// it logs the request, verifies caller identity against the trusted
// execution context (never payload-derived), runs op, appends every commit
// op produced as one atomic batch, logs the response, and returns op's
// result.
//
// callerPid must be the pid the supervisor's mailbox pump observed raising
// PENDING — it is never taken from the syscall payload itself, which is
// what makes Sender Faithfulness (spec.md invariant 4) hold.
func Syscall[R any](ctx context.Context, g *Gateway, callerPid ids.ProcessId, num uint32, args [4]uint32, op Op[R]) (R, error) {
	var zero R
	ts := g.clock.NowNs()
	seq := g.sysLog.LogRequest(ts, callerPid, num, args)

	if !g.isLive(callerPid) {
		g.sysLog.LogResponse(seq, -1, "Denied")
		return zero, errDenied
	}
	g.interior.Touch(callerPid, ts)

	result, commits, opErr := op(g.interior)

	if len(commits) > 0 {
		entries, appendErr := g.commitLog.Append(ts, commits)
		if appendErr != nil {
			// Fatal per spec.md §4.D step 4: the commit log is the
			// source of truth and a failed append is unrecoverable.
			log.L.WithError(appendErr).Fatal("zeroos/axiom: commit log append failed, shutting down")
		}
		for _, e := range entries {
			g.exchange.Publish(ctx, e)
		}
	}

	resultCode, errKind := classify(opErr)
	g.sysLog.LogResponse(seq, resultCode, errKind)

	return result, opErr
}

// InternalOperation is the supervisor-path gateway operation (spec.md §4.D
// operation 2): identical to Syscall but without SysLog request/response
// bookkeeping, since the caller is the supervisor itself (bootstrap,
// completion delivery) rather than an isolate syscall. Commits still flow
// through the CommitLog and the Exchange.
func InternalOperation[R any](ctx context.Context, g *Gateway, op Op[R]) (R, error) {
	var zero R
	ts := g.clock.NowNs()

	result, commits, opErr := op(g.interior)
	if len(commits) > 0 {
		entries, appendErr := g.commitLog.Append(ts, commits)
		if appendErr != nil {
			log.L.WithError(appendErr).Fatal("zeroos/axiom: commit log append failed, shutting down")
		}
		for _, e := range entries {
			g.exchange.Publish(ctx, e)
		}
	}
	if opErr != nil {
		return zero, opErr
	}
	return result, nil
}

// classify maps an operation error to the (result_code, error_kind) pair
// SysLog stores, per spec.md §7: a negative result code, with the error
// kind recorded separately for audit.
func classify(err error) (int32, string) {
	if err == nil {
		return 0, ""
	}
	return -1, err.Error()
}

// Interior exposes the read-only kernel queries, which are safe to call
// directly without going through Axiom (spec.md §4.C). The returned
// ReadOnlyInterior has no mutation methods — every one of those stays
// reachable only from inside an Op run through Syscall or
// InternalOperation, which is what makes Axiom the sole mutation gateway a
// static property of the code rather than a convention callers must honor.
func (g *Gateway) Interior() kernel.ReadOnlyInterior { return g.interior }

// SysLog exposes the audit log for debug tooling (zosctl, tests).
func (g *Gateway) SysLog() *syslog.Log { return g.sysLog }

// CommitLog exposes the durable chain for debug tooling and replay tests.
func (g *Gateway) CommitLog() *commit.Log { return g.commitLog }

// Exchange exposes the commit broadcaster for metrics and zosctl events.
func (g *Gateway) Exchange() *events.Exchange { return g.exchange }
