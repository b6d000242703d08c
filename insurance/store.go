/*
store.go - Storage interfaces for policies and bookings

PURPOSE:
  The host environment supplies the storage medium: an ordered key-value map.
  These interfaces are the only contract between the workflow and storage.

KEY INTERFACES:
  PolicyStore:  policy-id -> Policy, listed in key order
  BookingStore: pending bookings keyed by memo, completed bookings keyed by payer

MISSES:
  Getters return (nil, nil) on a miss. Lookup failures become ErrNotFound in
  the services, not in the stores.

TAKE:
  BookingStore.TakePending is remove-if-present and returns whether it removed
  anything. It is the only way a pending booking leaves the store, so when
  completion and expiry race on the same memo exactly one of them gets
  ok == true.

IMPLEMENTATIONS:
  - insurance/store/memory.go: In-memory (tests, dev)
  - store/sqlite/sqlite.go:    SQLite
*/
package insurance

import "context"

// PolicyStore persists policies.
type PolicyStore interface {
	GetPolicy(ctx context.Context, id string) (*Policy, error)

	// PutPolicy inserts or replaces the policy stored under p.ID.
	PutPolicy(ctx context.Context, p Policy) error

	// DeletePolicy removes the policy; deleting a missing id is not an error.
	DeletePolicy(ctx context.Context, id string) error

	// ListPolicies returns every policy ordered by id.
	ListPolicies(ctx context.Context) ([]Policy, error)
}

// BookingStore persists pending and completed bookings.
type BookingStore interface {
	// PutPending inserts or replaces the pending booking stored under b.Memo.
	PutPending(ctx context.Context, b Booking) error

	GetPending(ctx context.Context, memo string) (*Booking, error)

	// TakePending removes and returns the pending booking if present.
	TakePending(ctx context.Context, memo string) (Booking, bool, error)

	// ListPending returns pending bookings ordered by memo.
	ListPending(ctx context.Context) ([]Booking, error)

	// PutCompleted stores b as the completed booking of b.Payer,
	// replacing any earlier one.
	PutCompleted(ctx context.Context, b Booking) error

	GetCompleted(ctx context.Context, payer Principal) (*Booking, error)

	// ListCompleted returns completed bookings ordered by payer.
	ListCompleted(ctx context.Context) ([]Booking, error)
}

// Store is a host store supplying both maps.
type Store interface {
	PolicyStore
	BookingStore
}
