/*
reservation.go - Reservation workflow

PURPOSE:
  Orchestrates reserving a policy against a ledger payment:

    CreateOrder ──▶ caller pays on ledger ──▶ Complete ──▶ (duration) ──▶ End
         │
         └── payment window elapses ──▶ Expire (order discarded)

FLOW:
  1. CreateOrder: amount = quantity * price + reservation fee. A pending
     booking is stored under a fresh random memo and an expiry job is
     scheduled for the payment window.
  2. Complete: the quantity must match the order and the block the caller
     points at must hold a transfer of exactly the ordered amount, from the
     caller's ledger account to the service account, carrying the memo. Then
     the pending booking is taken, stored as the payer's completed booking,
     and the policy is reserved to the caller. If someone else reserved the
     policy meanwhile, the payment is returned minus the transfer fee.
  3. End: after the reservation duration the reserver gets the reservation
     fee back (minus the ledger transfer fee) and the policy is freed.

SUSPENSION POINTS:
  Ledger calls run without holding the registry lock. Everything read before
  a ledger call is read again afterwards before any write. TakePending is the
  arbiter between Complete and Expire racing on the same memo: the loser sees
  ErrNotFound (Complete) or a no-op (Expire).

CONFIGURATION:
  The reservation fee is fixed at construction. Without it every reservation
  operation fails with ErrNotFound.

SEE ALSO:
  - expiry.go: Scheduler implementations
  - ledger/verify.go: Payment confirmation
*/
package insurance

import (
	"context"
	"fmt"
	"log/slog"
	"math/bits"
	"time"

	"github.com/warp/insurance-engine/events"
	"github.com/warp/insurance-engine/ledger"
)

const (
	DefaultPendingWindow       = 120 * time.Second
	DefaultReservationDuration = time.Minute
)

// ReservationConfig is fixed for the lifetime of the service.
type ReservationConfig struct {
	// Fee is the refundable deposit added to every order; nil disables reservations.
	Fee *uint64

	// PendingWindow is how long an order waits for payment.
	PendingWindow time.Duration

	// ReservationDuration is how long a completed reservation holds the policy.
	ReservationDuration time.Duration

	// ServicePrincipal owns the ledger account payments go to.
	ServicePrincipal Principal
}

// Reservations runs the reservation workflow.
type Reservations struct {
	registry *Registry
	bookings BookingStore
	ledger   ledger.Client
	cfg      ReservationConfig

	clock     Clock
	logger    *slog.Logger
	newMemo   func() string
	scheduler Scheduler
	publisher events.Publisher

	// ending holds policies with a refund in flight; guarded by registry.mu
	ending map[string]bool
}

// NewReservations wires the workflow. The registry's store and lock are shared.
func NewReservations(registry *Registry, bookings BookingStore, client ledger.Client, cfg ReservationConfig, opts ...Option) *Reservations {
	o := buildOptions(opts)
	if o.scheduler == nil {
		o.scheduler = NewTimerScheduler()
	}
	if cfg.PendingWindow <= 0 {
		cfg.PendingWindow = DefaultPendingWindow
	}
	if cfg.ReservationDuration <= 0 {
		cfg.ReservationDuration = DefaultReservationDuration
	}
	if cfg.Fee != nil {
		fee := *cfg.Fee
		cfg.Fee = &fee
	}

	return &Reservations{
		registry:  registry,
		bookings:  bookings,
		ledger:    client,
		cfg:       cfg,
		clock:     o.clock,
		logger:    o.logger,
		newMemo:   o.newMemo,
		scheduler: o.scheduler,
		publisher: o.publisher,
		ending:    make(map[string]bool),
	}
}

// ReservationFee returns the configured fee, if any.
func (r *Reservations) ReservationFee() (uint64, bool) {
	if r.cfg.Fee == nil {
		return 0, false
	}
	return *r.cfg.Fee, true
}

// ServiceAddress is the ledger account callers pay orders into.
func (r *Reservations) ServiceAddress() ledger.AccountIdentifier {
	return ledger.AccountID(string(r.cfg.ServicePrincipal), nil)
}

// PendingWindow returns the payment window of new orders.
func (r *Reservations) PendingWindow() time.Duration {
	return r.cfg.PendingWindow
}

func (r *Reservations) fee() (uint64, error) {
	fee, ok := r.ReservationFee()
	if !ok {
		return 0, fmt.Errorf("reservation fee not configured: %w", ErrNotFound)
	}
	return fee, nil
}

// orderAmount computes quantity*price + fee, rejecting overflow.
func orderAmount(quantity, price, fee uint64) (uint64, error) {
	hi, lo := bits.Mul64(quantity, price)
	if hi != 0 {
		return 0, &ValidationError{Field: "noOfPolicy", Message: "amount overflows"}
	}
	sum, carry := bits.Add64(lo, fee, 0)
	if carry != 0 {
		return 0, &ValidationError{Field: "noOfPolicy", Message: "amount overflows"}
	}
	return sum, nil
}

// =============================================================================
// ORDER
// =============================================================================

// CreateOrder places a pending booking for quantity units of a policy.
func (r *Reservations) CreateOrder(ctx context.Context, caller Principal, policyID string, quantity uint64) (Booking, error) {
	fee, err := r.fee()
	if err != nil {
		return Booking{}, err
	}
	if quantity == 0 {
		return Booking{}, &ValidationError{Field: "noOfPolicy", Message: "must be positive"}
	}

	r.registry.mu.Lock()
	defer r.registry.mu.Unlock()

	p, err := r.registry.load(ctx, policyID)
	if err != nil {
		return Booking{}, err
	}
	if p.IsReserved {
		return Booking{}, &BookedError{PolicyID: policyID, Reason: "policy is already reserved"}
	}

	amount, err := orderAmount(quantity, p.PricePerPolicy, fee)
	if err != nil {
		return Booking{}, err
	}

	now := r.clock.Now()
	b := Booking{
		PolicyID:   policyID,
		Amount:     amount,
		NoOfPolicy: quantity,
		Status:     BookingPaymentPending,
		Payer:      caller,
		Memo:       r.newMemo(),
		CreatedAt:  now,
		ExpiresAt:  now.Add(r.cfg.PendingWindow),
	}

	if err := r.bookings.PutPending(ctx, b); err != nil {
		return Booking{}, fmt.Errorf("store pending booking: %w", err)
	}

	memo := b.Memo
	r.scheduler.Schedule(memo, r.cfg.PendingWindow, func() {
		if _, err := r.Expire(context.Background(), memo); err != nil {
			r.logger.Error("expire pending booking", "memo", memo, "error", err)
		}
	})

	r.logger.Info("reservation ordered",
		"policy_id", policyID, "payer", string(caller), "memo", memo, "amount", amount)
	r.publish(ctx, events.Event{
		Type: events.ReservationOrdered, PolicyID: policyID, Memo: memo,
		Payer: string(caller), Amount: amount, At: now,
	})
	return b, nil
}

// =============================================================================
// COMPLETE
// =============================================================================

// Complete verifies the caller's payment and reserves the policy. The quantity
// must match the order, and the payment is checked against the ordered amount.
func (r *Reservations) Complete(ctx context.Context, caller Principal, policyID string, quantity, blockIndex uint64, memo string) (Booking, error) {
	if _, err := r.fee(); err != nil {
		return Booking{}, err
	}
	if _, err := r.registry.load(ctx, policyID); err != nil {
		return Booking{}, err
	}

	pending, err := r.bookings.GetPending(ctx, memo)
	if err != nil {
		return Booking{}, fmt.Errorf("load pending booking: %w", err)
	}
	if pending == nil || pending.Payer != caller || pending.PolicyID != policyID {
		return Booking{}, notFound("pending booking", memo)
	}
	if quantity != pending.NoOfPolicy {
		return Booking{}, &ValidationError{
			Field:   "noOfPolicy",
			Message: fmt.Sprintf("is %d, order %s was placed for %d", quantity, memo, pending.NoOfPolicy),
		}
	}

	verified, err := ledger.VerifyPayment(ctx, r.ledger, ledger.PaymentCheck{
		Block:  blockIndex,
		From:   ledger.AccountID(string(caller), nil),
		To:     r.ServiceAddress(),
		Amount: pending.Amount,
		Memo:   memo,
	})
	if err != nil {
		return Booking{}, &PaymentError{PolicyID: policyID, Memo: memo, Err: err}
	}
	if !verified {
		return Booking{}, &PaymentError{
			PolicyID: policyID,
			Memo:     memo,
			Err:      fmt.Errorf("block %d holds no transfer of %d with memo %s", blockIndex, pending.Amount, memo),
		}
	}

	// The ledger call may have interleaved with other operations.
	r.registry.mu.Lock()
	b, outbid, err := r.settle(ctx, caller, policyID, blockIndex, memo, *pending)
	r.registry.mu.Unlock()
	if err != nil {
		return Booking{}, err
	}
	if outbid {
		return Booking{}, r.returnPayment(ctx, b, blockIndex)
	}

	r.logger.Info("reservation completed",
		"policy_id", policyID, "payer", string(caller), "memo", memo, "block", blockIndex)
	r.publish(ctx, events.Event{
		Type: events.ReservationCompleted, PolicyID: policyID, Memo: memo,
		Payer: string(caller), Amount: b.Amount, BlockIndex: &blockIndex, At: r.clock.Now(),
	})
	return b, nil
}

// settle moves a verified order from pending to completed and reserves the
// policy. If another caller reserved the policy first, the order is still
// taken, so it cannot expire as unpaid, and outbid is true. Callers hold the
// registry lock.
func (r *Reservations) settle(ctx context.Context, caller Principal, policyID string, blockIndex uint64, memo string, pending Booking) (b Booking, outbid bool, err error) {
	p, err := r.registry.load(ctx, policyID)
	if err != nil {
		return Booking{}, false, err
	}

	b, took, err := r.bookings.TakePending(ctx, memo)
	if err != nil {
		return Booking{}, false, fmt.Errorf("take pending booking: %w", err)
	}
	if !took {
		return Booking{}, false, notFound("pending booking", memo)
	}
	r.scheduler.Cancel(memo)

	if p.IsReserved {
		return b, true, nil
	}

	b.Status = BookingCompleted
	b.PaidAtBlock = &blockIndex
	if err := r.bookings.PutCompleted(ctx, b); err != nil {
		if restoreErr := r.bookings.PutPending(ctx, pending); restoreErr != nil {
			r.logger.Error("paid booking lost, reconcile manually",
				"memo", memo, "block", blockIndex, "payer", string(caller), "error", restoreErr)
		}
		return Booking{}, false, fmt.Errorf("store completed booking: %w", err)
	}

	p.reserve(caller, r.clock.Now().Add(r.cfg.ReservationDuration))
	if err := r.registry.store.PutPolicy(ctx, *p); err != nil {
		r.logger.Error("booking completed but policy not reserved, reconcile manually",
			"policy_id", policyID, "memo", memo, "block", blockIndex, "error", err)
		return Booking{}, false, fmt.Errorf("store policy %s: %w", policyID, err)
	}
	return b, false, nil
}

// returnPayment refunds a verified order whose policy was reserved by someone
// else, minus the ledger transfer fee. The result is always a PaymentError.
func (r *Reservations) returnPayment(ctx context.Context, b Booking, paidAt uint64) error {
	lost := func(err error) error {
		r.logger.Error("paid order not refunded, reconcile manually",
			"policy_id", b.PolicyID, "memo", b.Memo, "block", paidAt,
			"payer", string(b.Payer), "amount", b.Amount, "error", err)
		return &PaymentError{
			PolicyID: b.PolicyID,
			Memo:     b.Memo,
			Err:      fmt.Errorf("policy was reserved by another caller, refund failed: %w", err),
		}
	}

	txFee, err := r.ledger.TransferFee(ctx)
	if err != nil {
		return lost(err)
	}
	if b.Amount <= txFee {
		return lost(fmt.Errorf("payment %d does not cover transfer fee %d", b.Amount, txFee))
	}

	block, err := r.ledger.Transfer(ctx, ledger.TransferArgs{
		To:     ledger.AccountID(string(b.Payer), nil),
		Amount: b.Amount - txFee,
		Fee:    txFee,
		Memo:   "refund:" + b.Memo,
	})
	if err != nil {
		return lost(err)
	}

	r.logger.Warn("policy reserved by another caller, payment returned",
		"policy_id", b.PolicyID, "memo", b.Memo, "paid_block", paidAt,
		"payer", string(b.Payer), "refunded", b.Amount-txFee, "refund_block", block)
	r.publish(ctx, events.Event{
		Type: events.ReservationRefunded, PolicyID: b.PolicyID, Memo: b.Memo,
		Payer: string(b.Payer), Amount: b.Amount - txFee, BlockIndex: &block, At: r.clock.Now(),
	})
	return &PaymentError{
		PolicyID: b.PolicyID,
		Memo:     b.Memo,
		Err:      fmt.Errorf("policy was reserved by another caller, %d refunded at block %d", b.Amount-txFee, block),
	}
}

// =============================================================================
// END
// =============================================================================

// End releases the caller's reservation and refunds the reservation fee.
func (r *Reservations) End(ctx context.Context, caller Principal, policyID string) (PaymentCompleted, error) {
	fee, err := r.beginEnd(ctx, caller, policyID)
	if err != nil {
		return PaymentCompleted{}, err
	}

	result, refundErr := r.refund(ctx, caller, policyID, fee)

	r.registry.mu.Lock()
	defer r.registry.mu.Unlock()
	delete(r.ending, policyID)

	if refundErr != nil {
		return PaymentCompleted{}, refundErr
	}

	p, err := r.registry.load(ctx, policyID)
	if err != nil {
		return PaymentCompleted{}, err
	}
	p.release()
	if err := r.registry.store.PutPolicy(ctx, *p); err != nil {
		r.logger.Error("fee refunded but policy still reserved, reconcile manually",
			"policy_id", policyID, "block", result.BlockIndex, "error", err)
		return PaymentCompleted{}, fmt.Errorf("store policy %s: %w", policyID, err)
	}

	r.logger.Info("reservation ended",
		"policy_id", policyID, "payer", string(caller), "refunded", result.Refunded, "block", result.BlockIndex)
	r.publish(ctx, events.Event{
		Type: events.ReservationEnded, PolicyID: policyID, Payer: string(caller),
		Amount: result.Refunded, BlockIndex: &result.BlockIndex, At: r.clock.Now(),
	})
	return result, nil
}

// beginEnd runs the checks and marks the policy as ending so a concurrent
// End cannot refund twice.
func (r *Reservations) beginEnd(ctx context.Context, caller Principal, policyID string) (uint64, error) {
	r.registry.mu.Lock()
	defer r.registry.mu.Unlock()

	p, err := r.registry.load(ctx, policyID)
	if err != nil {
		return 0, err
	}
	if !p.IsReserved || p.CurrentReservedTo == nil || p.CurrentReservationEnds == nil {
		return 0, fmt.Errorf("policy %s: %w", policyID, ErrNotBooked)
	}
	if r.clock.Now().Before(*p.CurrentReservationEnds) {
		return 0, &BookedError{PolicyID: policyID, Reason: "reservation time not yet over"}
	}
	if *p.CurrentReservedTo != caller {
		return 0, &BookedError{PolicyID: policyID, Reason: "only the booker can end the reservation"}
	}
	fee, err := r.fee()
	if err != nil {
		return 0, err
	}
	if r.ending[policyID] {
		return 0, &BookedError{PolicyID: policyID, Reason: "reservation is already ending"}
	}
	r.ending[policyID] = true
	return fee, nil
}

func (r *Reservations) refund(ctx context.Context, caller Principal, policyID string, fee uint64) (PaymentCompleted, error) {
	txFee, err := r.ledger.TransferFee(ctx)
	if err != nil {
		return PaymentCompleted{}, &PaymentError{PolicyID: policyID, Err: err}
	}
	if fee <= txFee {
		return PaymentCompleted{}, &PaymentError{
			PolicyID: policyID,
			Err:      fmt.Errorf("reservation fee %d does not cover transfer fee %d", fee, txFee),
		}
	}

	block, err := r.ledger.Transfer(ctx, ledger.TransferArgs{
		To:     ledger.AccountID(string(caller), nil),
		Amount: fee - txFee,
		Fee:    txFee,
		Memo:   "refund:" + policyID,
	})
	if err != nil {
		r.logger.Warn("refund transfer rejected", "policy_id", policyID, "payer", string(caller), "error", err)
		return PaymentCompleted{}, &PaymentError{PolicyID: policyID, Err: err}
	}

	return PaymentCompleted{
		PolicyID:   policyID,
		Payer:      caller,
		Refunded:   fee - txFee,
		Fee:        txFee,
		BlockIndex: block,
	}, nil
}

// =============================================================================
// EXPIRY
// =============================================================================

// Expire discards the pending booking under memo if its payment window has
// elapsed. It reports whether it removed the booking.
func (r *Reservations) Expire(ctx context.Context, memo string) (bool, error) {
	b, err := r.bookings.GetPending(ctx, memo)
	if err != nil {
		return false, fmt.Errorf("load pending booking: %w", err)
	}
	if b == nil {
		return false, nil
	}
	now := r.clock.Now()
	if now.Before(b.ExpiresAt) {
		return false, nil
	}

	taken, took, err := r.bookings.TakePending(ctx, memo)
	if err != nil {
		return false, fmt.Errorf("take pending booking: %w", err)
	}
	if !took {
		return false, nil
	}
	r.scheduler.Cancel(memo)

	r.logger.Info("pending booking expired", "policy_id", taken.PolicyID, "memo", memo)
	r.publish(ctx, events.Event{
		Type: events.ReservationExpired, PolicyID: taken.PolicyID, Memo: memo,
		Payer: string(taken.Payer), Amount: taken.Amount, At: now,
	})
	return true, nil
}

// ExpireElapsed discards every pending booking past its window and returns
// how many it removed.
func (r *Reservations) ExpireElapsed(ctx context.Context) (int, error) {
	pending, err := r.bookings.ListPending(ctx)
	if err != nil {
		return 0, fmt.Errorf("list pending bookings: %w", err)
	}
	removed := 0
	for _, b := range pending {
		ok, err := r.Expire(ctx, b.Memo)
		if err != nil {
			return removed, err
		}
		if ok {
			removed++
		}
	}
	return removed, nil
}

// ResumeExpiry schedules expiry jobs for pending bookings loaded from a
// persistent store, e.g. after a restart. Bookings already past their window
// are expired right away. It returns the number of jobs scheduled.
func (r *Reservations) ResumeExpiry(ctx context.Context) (int, error) {
	if _, err := r.ExpireElapsed(ctx); err != nil {
		return 0, err
	}
	pending, err := r.bookings.ListPending(ctx)
	if err != nil {
		return 0, fmt.Errorf("list pending bookings: %w", err)
	}

	now := r.clock.Now()
	for _, b := range pending {
		memo := b.Memo
		r.scheduler.Schedule(memo, b.ExpiresAt.Sub(now), func() {
			if _, err := r.Expire(context.Background(), memo); err != nil {
				r.logger.Error("expire pending booking", "memo", memo, "error", err)
			}
		})
	}
	return len(pending), nil
}

// =============================================================================
// QUERIES
// =============================================================================

// ListPending returns orders awaiting payment.
func (r *Reservations) ListPending(ctx context.Context) ([]Booking, error) {
	bookings, err := r.bookings.ListPending(ctx)
	if err != nil {
		return nil, fmt.Errorf("list pending bookings: %w", err)
	}
	if bookings == nil {
		bookings = []Booking{}
	}
	return bookings, nil
}

// ListBookings returns the completed booking of every payer.
func (r *Reservations) ListBookings(ctx context.Context) ([]Booking, error) {
	bookings, err := r.bookings.ListCompleted(ctx)
	if err != nil {
		return nil, fmt.Errorf("list bookings: %w", err)
	}
	if bookings == nil {
		bookings = []Booking{}
	}
	return bookings, nil
}

// BookingFor returns the latest completed booking of payer.
func (r *Reservations) BookingFor(ctx context.Context, payer Principal) (Booking, error) {
	b, err := r.bookings.GetCompleted(ctx, payer)
	if err != nil {
		return Booking{}, fmt.Errorf("load booking: %w", err)
	}
	if b == nil {
		return Booking{}, notFound("booking for", string(payer))
	}
	return *b, nil
}

func (r *Reservations) publish(ctx context.Context, e events.Event) {
	if err := r.publisher.Publish(ctx, e); err != nil {
		r.logger.Warn("publish event", "type", e.Type, "policy_id", e.PolicyID, "error", err)
	}
}
