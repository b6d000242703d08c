/*
expiry.go - Deferred removal of unpaid orders

PURPOSE:
  Every order gets a job that discards it once the payment window elapses.
  Jobs are keyed by memo and can be cancelled; completing an order cancels
  its job. A job that fires anyway only removes the booking if it is still
  pending and past its deadline (see Reservations.Expire), so a late timer
  can never delete a booking that was just completed.

IMPLEMENTATIONS:
  TimerScheduler:  time.AfterFunc per memo (production)
  ManualScheduler: jobs fire only when the test says so
*/
package insurance

import (
	"sort"
	"sync"
	"time"
)

// Scheduler runs fn once after a delay unless the key is cancelled first.
type Scheduler interface {
	// Schedule replaces any job already registered under key.
	Schedule(key string, after time.Duration, fn func())

	// Cancel stops the job under key and reports whether one was pending.
	Cancel(key string) bool
}

// =============================================================================
// TIMER SCHEDULER
// =============================================================================

// TimerScheduler backs each job with a time.Timer.
type TimerScheduler struct {
	mu     sync.Mutex
	timers map[string]*time.Timer
}

func NewTimerScheduler() *TimerScheduler {
	return &TimerScheduler{timers: make(map[string]*time.Timer)}
}

func (s *TimerScheduler) Schedule(key string, after time.Duration, fn func()) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if old, ok := s.timers[key]; ok {
		old.Stop()
	}

	var t *time.Timer
	t = time.AfterFunc(after, func() {
		s.mu.Lock()
		if s.timers[key] == t {
			delete(s.timers, key)
		}
		s.mu.Unlock()
		fn()
	})
	s.timers[key] = t
}

func (s *TimerScheduler) Cancel(key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.timers[key]
	if !ok {
		return false
	}
	delete(s.timers, key)
	return t.Stop()
}

// Pending returns the number of jobs not yet fired or cancelled.
func (s *TimerScheduler) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.timers)
}

// Stop cancels every job.
func (s *TimerScheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for key, t := range s.timers {
		t.Stop()
		delete(s.timers, key)
	}
}

// =============================================================================
// MANUAL SCHEDULER
// =============================================================================

// ManualScheduler records jobs and runs them on Fire.
type ManualScheduler struct {
	mu   sync.Mutex
	jobs map[string]manualJob
}

type manualJob struct {
	after time.Duration
	fn    func()
}

func NewManualScheduler() *ManualScheduler {
	return &ManualScheduler{jobs: make(map[string]manualJob)}
}

func (s *ManualScheduler) Schedule(key string, after time.Duration, fn func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.jobs[key] = manualJob{after: after, fn: fn}
}

func (s *ManualScheduler) Cancel(key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.jobs[key]
	delete(s.jobs, key)
	return ok
}

// Fire runs the job under key, as if its timer elapsed.
func (s *ManualScheduler) Fire(key string) bool {
	s.mu.Lock()
	job, ok := s.jobs[key]
	delete(s.jobs, key)
	s.mu.Unlock()

	if ok {
		job.fn()
	}
	return ok
}

// Delay returns the delay the job under key was scheduled with.
func (s *ManualScheduler) Delay(key string) (time.Duration, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[key]
	return job.after, ok
}

// Keys returns the keys of all scheduled jobs, sorted.
func (s *ManualScheduler) Keys() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	keys := make([]string, 0, len(s.jobs))
	for k := range s.jobs {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
