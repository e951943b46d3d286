package core

import "time"

// Timer represents a scheduled event
type Timer struct {
	WakeTime uint64 // microseconds on the scheduler clock
	Handler  func(*Timer) uint8
	Next     *Timer
}

const (
	SF_DONE       = 0
	SF_RESCHEDULE = 1
)

// Scheduler is a virtual microsecond clock with a sorted timer list.
// Time only moves inside Advance and Sleep, which run due handlers in
// WakeTime order on the calling goroutine. It stands in for the hardware
// timer in simulation and tests.
type Scheduler struct {
	timerList *Timer
	now       uint64
}

// NewScheduler creates a scheduler at time zero
func NewScheduler() *Scheduler {
	return &Scheduler{}
}

// Now returns the scheduler clock in microseconds
func (s *Scheduler) Now() uint64 {
	return s.now
}

// ScheduleTimer adds a timer to the schedule
func (s *Scheduler) ScheduleTimer(t *Timer) {
	state := enterCritical()
	defer exitCritical(state)

	s.insertTimer(t)
}

// DeleteTimer removes a timer if it is scheduled
func (s *Scheduler) DeleteTimer(t *Timer) {
	state := enterCritical()
	defer exitCritical(state)

	if s.timerList == t {
		s.timerList = t.Next
		t.Next = nil
		return
	}
	for cur := s.timerList; cur != nil; cur = cur.Next {
		if cur.Next == t {
			cur.Next = t.Next
			t.Next = nil
			return
		}
	}
}

// insertTimer inserts a timer in sorted order by WakeTime.
// Timers with equal WakeTime fire in insertion order.
func (s *Scheduler) insertTimer(t *Timer) {
	if s.timerList == nil || t.WakeTime < s.timerList.WakeTime {
		t.Next = s.timerList
		s.timerList = t
		return
	}

	current := s.timerList
	for current.Next != nil && current.Next.WakeTime <= t.WakeTime {
		current = current.Next
	}

	t.Next = current.Next
	current.Next = t
}

// Advance moves the clock forward by d, dispatching every timer that
// falls due on the way.
func (s *Scheduler) Advance(d time.Duration) {
	s.dispatchUntil(s.now + uint64(DurationToUs(d)))
}

// Sleep implements Sleeper by advancing the virtual clock.
func (s *Scheduler) Sleep(d time.Duration) {
	s.Advance(d)
}

func (s *Scheduler) dispatchUntil(target uint64) {
	for {
		state := enterCritical()
		timer := s.timerList
		if timer == nil || timer.WakeTime > target {
			exitCritical(state)
			break
		}
		s.timerList = timer.Next
		timer.Next = nil // Clear Next pointer to avoid circular references
		if timer.WakeTime > s.now {
			s.now = timer.WakeTime
		}
		exitCritical(state)

		SetTime(uint32(s.now))
		if timer.Handler(timer) == SF_RESCHEDULE {
			s.ScheduleTimer(timer)
		}
	}
	s.now = target
	SetTime(uint32(s.now))
}

// SimTicker implements Ticker on a Scheduler.
type SimTicker struct {
	sched    *Scheduler
	timer    Timer
	fn       func()
	period   uint64
	attached bool
	gen      uint32
}

// NewTicker allocates a ticker on the scheduler. Its method value is a
// TickerFactory.
func (s *Scheduler) NewTicker() Ticker {
	t := &SimTicker{sched: s}
	t.timer.Handler = t.event
	return t
}

func (t *SimTicker) Attach(fn func(), period time.Duration) {
	t.sched.DeleteTimer(&t.timer)
	t.gen++
	t.fn = fn
	t.period = uint64(DurationToUs(ClampPeriod(period)))
	t.attached = true
	t.timer.WakeTime = t.sched.now + t.period
	t.sched.ScheduleTimer(&t.timer)
}

func (t *SimTicker) Detach() {
	t.sched.DeleteTimer(&t.timer)
	t.gen++
	t.attached = false
}

// Attached reports whether the ticker is running
func (t *SimTicker) Attached() bool {
	return t.attached
}

// Period returns the attached period
func (t *SimTicker) Period() time.Duration {
	return time.Duration(t.period) * time.Microsecond
}

// event runs the callback. A callback that re-attached or detached its
// own ticker has already rescheduled (or cancelled) the timer.
func (t *SimTicker) event(tm *Timer) uint8 {
	gen := t.gen
	t.fn()
	if t.gen != gen || !t.attached {
		return SF_DONE
	}
	tm.WakeTime += t.period
	return SF_RESCHEDULE
}
