package kernel

import "github.com/zeroos/zeroos/pkg/ids"

// Scheduler tracks the logical runnable order of processes. It is advisory
// bookkeeping, not a mechanism: on the cooperative target a single isolate
// runs per syscall slice and the pump returns to the host loop; on
// preemptive targets a timer IRQ drives timer_tick. Either mechanism
// consults the same queue and tie-break rules defined here.
//
// Tie-breaks: equal-priority queues are round-robin. A process unblocked by
// an IPC delivery is inserted at the back of its priority queue. A process
// that voluntarily yielded is inserted at the back of the same queue. Both
// rules prevent starvation of processes that block frequently.
type Scheduler struct {
	queues [3][]ids.ProcessId // indexed by Priority
}

func newScheduler() *Scheduler {
	return &Scheduler{}
}

// Enqueue adds pid to the back of its priority's runnable queue. Used when
// a process is created or unblocks.
func (s *Scheduler) Enqueue(pid ids.ProcessId, pr Priority) {
	s.queues[pr] = append(s.queues[pr], pid)
}

// Remove removes pid from whichever runnable queue it occupies, used when a
// process blocks or terminates.
func (s *Scheduler) Remove(pid ids.ProcessId) {
	for pr := range s.queues {
		q := s.queues[pr]
		for i, p := range q {
			if p == pid {
				s.queues[pr] = append(q[:i], q[i+1:]...)
				return
			}
		}
	}
}

// Next pops the next runnable pid in priority order (High, then Normal,
// then Low), round-robin within a priority.
func (s *Scheduler) Next() (ids.ProcessId, bool) {
	for pr := range s.queues {
		if len(s.queues[pr]) > 0 {
			pid := s.queues[pr][0]
			s.queues[pr] = s.queues[pr][1:]
			return pid, true
		}
	}
	return 0, false
}

// Runnable returns a snapshot of every pid currently in a runnable queue,
// highest priority first, for introspection (tests).
func (s *Scheduler) Runnable() []ids.ProcessId {
	var out []ids.ProcessId
	for pr := range s.queues {
		out = append(out, s.queues[pr]...)
	}
	return out
}
