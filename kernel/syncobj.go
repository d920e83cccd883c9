package kernel

// Mutex is a guest-visible kernel mutex object. Unlike a message send, a
// wait on a Mutex or Semaphore puts the thread in ThreadWaitingOnObject
// rather than ThreadWaitingOnRequest -- there is no associated status cell,
// only a wake-up (spec.md §3, §5 "Suspension points").
type Mutex struct {
	Name    string
	Holder  *Thread
	Waiters []*Thread
}

// Acquire attempts to take the mutex for t, returning true if it succeeded
// immediately. If false, t has been appended to the waiter queue and the
// caller must set t.State = ThreadWaitingOnObject.
func (m *Mutex) Acquire(t *Thread) bool {
	if m.Holder == nil {
		m.Holder = t
		return true
	}
	if m.Holder == t {
		return true
	}
	m.Waiters = append(m.Waiters, t)
	return false
}

// Release gives up the mutex, waking the next waiter (if any) by handing it
// the mutex directly (FIFO). It returns the thread that should be marked
// ready, or nil.
func (m *Mutex) Release(t *Thread) *Thread {
	if m.Holder != t {
		return nil
	}
	if len(m.Waiters) == 0 {
		m.Holder = nil
		return nil
	}
	next := m.Waiters[0]
	m.Waiters = m.Waiters[1:]
	m.Holder = next
	return next
}

// Semaphore is a guest-visible counting semaphore.
type Semaphore struct {
	Name    string
	Count   int
	Waiters []*Thread
}

// Signal increments the count, or -- if threads are waiting -- wakes the
// first waiter instead of incrementing. It returns the thread to mark
// ready, or nil.
func (s *Semaphore) Signal() *Thread {
	if len(s.Waiters) > 0 {
		next := s.Waiters[0]
		s.Waiters = s.Waiters[1:]
		return next
	}
	s.Count++
	return nil
}

// Wait attempts to decrement the count for t, returning true if it
// succeeded immediately. If false, t has been appended to the waiter queue.
func (s *Semaphore) Wait(t *Thread) bool {
	if s.Count > 0 {
		s.Count--
		return true
	}
	s.Waiters = append(s.Waiters, t)
	return false
}
