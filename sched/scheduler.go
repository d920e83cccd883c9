// Package sched implements the single-threaded cooperative scheduler that
// picks the next runnable guest thread and drives the CPU engine (spec.md
// §4.5, §5).
package sched

import (
	"github.com/mobcore/emu/cpuengine"
	"github.com/mobcore/emu/kernel"
)

// Scheduler owns the ready queue and the notion of "current thread". It
// implements kernel.SchedulerHooks so the kernel can tell it when a thread
// transitions to ready without depending on this package.
type Scheduler struct {
	k   *kernel.Kernel
	cpu cpuengine.Engine

	ready   []*kernel.Thread
	current *kernel.Thread

	pendingReschedule bool
}

// New creates a scheduler bound to k, driving threads through cpu.
func New(k *kernel.Kernel, cpu cpuengine.Engine) *Scheduler {
	return &Scheduler{k: k, cpu: cpu}
}

// Current returns the thread presently selected to run, or nil.
func (s *Scheduler) Current() *kernel.Thread {
	return s.current
}

// ThreadBecameReady implements kernel.SchedulerHooks: t joins the ready
// queue if it isn't already there.
func (s *Scheduler) ThreadBecameReady(t *kernel.Thread) {
	for _, x := range s.ready {
		if x == t {
			return
		}
	}
	s.ready = append(s.ready, t)
}

// pickNext removes and returns the highest-priority ready thread, breaking
// ties in FIFO (enqueue) order, or nil if none is ready.
func (s *Scheduler) pickNext() *kernel.Thread {
	best := -1
	for i, t := range s.ready {
		if t.State != kernel.ThreadReady {
			continue
		}
		if best == -1 || t.Priority > s.ready[best].Priority {
			best = i
		}
	}
	if best == -1 {
		return nil
	}
	t := s.ready[best]
	s.ready = append(s.ready[:best], s.ready[best+1:]...)
	return t
}

// shouldTerminate reports whether the main loop should exit: the current
// process has exited and no others remain.
func (s *Scheduler) shouldTerminate() bool {
	return s.k.ProcessCount() == 0
}

// PrepareReschedule asks the CPU engine to leave its execution loop at the
// next safe point and records that a reschedule is pending (spec.md §4.5).
func (s *Scheduler) PrepareReschedule() {
	s.pendingReschedule = true
	if s.cpu != nil {
		s.cpu.PrepareRescheduling()
	}
}

// Reschedule picks the next runnable thread and hands it to the CPU engine.
// It returns false when the main loop should exit (no processes remain).
func (s *Scheduler) Reschedule() bool {
	s.pendingReschedule = false

	for {
		next := s.pickNext()
		if next != nil {
			if s.current != nil && s.current.State == kernel.ThreadRunning {
				s.current.State = kernel.ThreadReady
				s.ready = append(s.ready, s.current)
			}

			s.current = next
			next.State = kernel.ThreadRunning
			if s.cpu != nil {
				s.cpu.LoadRegisters(next.Registers)
			}
			return true
		}

		if s.shouldTerminate() {
			return false
		}

		s.k.Clock.Idle()
	}
}

// Run drives the scheduling loop until shouldTerminate. Each iteration asks
// the CPU engine to execute the current thread until it yields (a message
// send, a wait, or a pending reschedule), then asks the kernel to pick the
// next thread.
func (s *Scheduler) Run() error {
	for s.Reschedule() {
		if s.cpu == nil {
			continue
		}
		if err := s.cpu.Run(s.k.AS); err != nil {
			return err
		}
		if s.current != nil {
			s.current.Registers = s.cpu.SaveRegisters()
		}
	}
	return nil
}
