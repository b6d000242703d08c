// Package events publishes reservation lifecycle events to interested services.
package events

import (
	"context"
	"sync"
	"time"
)

// Event types, used as routing keys.
const (
	ReservationOrdered   = "reservation.ordered"
	ReservationCompleted = "reservation.completed"
	ReservationExpired   = "reservation.expired"
	ReservationEnded     = "reservation.ended"
	ReservationRefunded  = "reservation.refunded"
)

// Event is a single booking lifecycle notification.
type Event struct {
	Type       string    `json:"type"`
	PolicyID   string    `json:"policy_id"`
	Memo       string    `json:"memo,omitempty"`
	Payer      string    `json:"payer,omitempty"`
	Amount     uint64    `json:"amount,omitempty"`
	BlockIndex *uint64   `json:"block_index,omitempty"`
	At         time.Time `json:"at"`
}

// Publisher delivers events. Publishing is best effort: callers log failures
// and carry on, a lost event never rolls back a booking.
type Publisher interface {
	Publish(ctx context.Context, e Event) error
}

// Nop discards every event.
type Nop struct{}

func (Nop) Publish(context.Context, Event) error { return nil }

// Recorder keeps published events in memory.
type Recorder struct {
	mu     sync.Mutex
	events []Event
}

func (r *Recorder) Publish(_ context.Context, e Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
	return nil
}

// Events returns a copy of everything recorded so far.
func (r *Recorder) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Event(nil), r.events...)
}

// Types returns the recorded event types in order.
func (r *Recorder) Types() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	types := make([]string, len(r.events))
	for i, e := range r.events {
		types[i] = e.Type
	}
	return types
}
