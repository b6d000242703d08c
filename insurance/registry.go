/*
registry.go - Policy CRUD

PURPOSE:
  Create, read, update, delete, filter and claim policies. Every operation
  either completes or leaves the store untouched: validation and lookups run
  before the single write.

RULES:
  - Create/Update require a holder name and both dates
  - Only the creator may delete a policy, and never while it is reserved
  - Claims are one-way: IsClaimed goes false -> true exactly once
  - Update never touches identity, claim or reservation fields

FILTERS:
  Filters are exact-match predicates on the named field, except the date
  filter which keeps policies whose [start, end] lies within the given range.

SEE ALSO:
  - reservation.go: Shares the registry lock for policy read-modify-write
*/
package insurance

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
)

// Registry manages the policy store.
type Registry struct {
	store  PolicyStore
	clock  Clock
	newID  func() string
	logger *slog.Logger

	// mu serializes every read-modify-write of a policy, including the
	// ones made by Reservations.
	mu sync.Mutex
}

// NewRegistry creates a registry over store.
func NewRegistry(store PolicyStore, opts ...Option) *Registry {
	o := buildOptions(opts)
	return &Registry{
		store:  store,
		clock:  o.clock,
		newID:  o.newID,
		logger: o.logger,
	}
}

// Create validates the payload and stores a new policy owned by caller.
func (r *Registry) Create(ctx context.Context, caller Principal, payload PolicyPayload) (Policy, error) {
	if err := ValidatePayload(payload); err != nil {
		return Policy{}, err
	}

	p := Policy{
		ID:          r.newID(),
		IsAvailable: true,
		Creator:     caller,
		CreatedAt:   r.clock.Now(),
	}
	payload.applyTo(&p)

	r.mu.Lock()
	defer r.mu.Unlock()

	if err := r.store.PutPolicy(ctx, p); err != nil {
		return Policy{}, fmt.Errorf("store policy %s: %w", p.ID, err)
	}

	r.logger.Info("policy created", "policy_id", p.ID, "creator", string(caller))
	return p, nil
}

// Get returns the policy or ErrNotFound.
func (r *Registry) Get(ctx context.Context, id string) (Policy, error) {
	p, err := r.load(ctx, id)
	if err != nil {
		return Policy{}, err
	}
	return *p, nil
}

// List returns every policy in storage order.
func (r *Registry) List(ctx context.Context) ([]Policy, error) {
	policies, err := r.store.ListPolicies(ctx)
	if err != nil {
		return nil, fmt.Errorf("list policies: %w", err)
	}
	if policies == nil {
		policies = []Policy{}
	}
	return policies, nil
}

// FilterByHolderName returns policies whose holder name equals name.
func (r *Registry) FilterByHolderName(ctx context.Context, name string) ([]Policy, error) {
	return r.filter(ctx, func(p Policy) bool { return p.PolicyHolderName == name })
}

// FilterByClaimed returns policies whose claim flag equals claimed.
func (r *Registry) FilterByClaimed(ctx context.Context, claimed bool) ([]Policy, error) {
	return r.filter(ctx, func(p Policy) bool { return p.IsClaimed == claimed })
}

// FilterByDateRange returns policies running entirely within [start, end].
func (r *Registry) FilterByDateRange(ctx context.Context, start, end uint64) ([]Policy, error) {
	return r.filter(ctx, func(p Policy) bool {
		return p.PolicyStartDate >= start && p.PolicyEndDate <= end
	})
}

func (r *Registry) filter(ctx context.Context, keep func(Policy) bool) ([]Policy, error) {
	all, err := r.List(ctx)
	if err != nil {
		return nil, err
	}
	matched := make([]Policy, 0, len(all))
	for _, p := range all {
		if keep(p) {
			matched = append(matched, p)
		}
	}
	return matched, nil
}

// Update replaces the descriptive fields of a policy.
func (r *Registry) Update(ctx context.Context, id string, payload PolicyPayload) (Policy, error) {
	if err := ValidatePayload(payload); err != nil {
		return Policy{}, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	p, err := r.load(ctx, id)
	if err != nil {
		return Policy{}, err
	}

	payload.applyTo(p)
	now := r.clock.Now()
	p.UpdatedAt = &now

	if err := r.store.PutPolicy(ctx, *p); err != nil {
		return Policy{}, fmt.Errorf("store policy %s: %w", id, err)
	}
	return *p, nil
}

// Delete removes a policy owned by caller and returns its id.
func (r *Registry) Delete(ctx context.Context, caller Principal, id string) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	p, err := r.load(ctx, id)
	if err != nil {
		return "", err
	}
	if p.Creator != caller {
		return "", fmt.Errorf("delete policy %s: %w", id, ErrNotOwner)
	}
	if p.IsReserved {
		return "", &BookedError{PolicyID: id, Reason: "policy is currently reserved"}
	}

	if err := r.store.DeletePolicy(ctx, id); err != nil {
		return "", fmt.Errorf("delete policy %s: %w", id, err)
	}

	r.logger.Info("policy deleted", "policy_id", id, "caller", string(caller))
	return id, nil
}

// FileClaim marks the policy as claimed.
func (r *Registry) FileClaim(ctx context.Context, id string) (Policy, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	p, err := r.load(ctx, id)
	if err != nil {
		return Policy{}, err
	}
	if p.IsClaimed {
		return Policy{}, fmt.Errorf("policy %s: %w", id, ErrAlreadyClaimed)
	}

	p.IsClaimed = true
	now := r.clock.Now()
	p.UpdatedAt = &now

	if err := r.store.PutPolicy(ctx, *p); err != nil {
		return Policy{}, fmt.Errorf("store policy %s: %w", id, err)
	}

	r.logger.Info("claim filed", "policy_id", id)
	return *p, nil
}

func (r *Registry) load(ctx context.Context, id string) (*Policy, error) {
	p, err := r.store.GetPolicy(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("load policy %s: %w", id, err)
	}
	if p == nil {
		return nil, notFound("policy", id)
	}
	return p, nil
}
