package insurance_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/insurance-engine/events"
	"github.com/warp/insurance-engine/insurance"
	"github.com/warp/insurance-engine/insurance/store"
	"github.com/warp/insurance-engine/ledger"
	"github.com/warp/insurance-engine/store/sqlite"
)

const (
	service  = insurance.Principal("service")
	ledgerTx = uint64(10)
)

type fixture struct {
	ctx    context.Context
	clock  *insurance.ManualClock
	sched  *insurance.ManualScheduler
	ledger *ledger.Memory
	events *events.Recorder
	store  insurance.Store
	reg    *insurance.Registry
	res    *insurance.Reservations
}

func newFixture(t *testing.T, fee *uint64) *fixture {
	t.Helper()
	return newFixtureOn(t, fee, store.NewMemory())
}

func newFixtureOn(t *testing.T, fee *uint64, st insurance.Store) *fixture {
	t.Helper()
	f := &fixture{
		ctx:    context.Background(),
		clock:  insurance.NewManualClock(t0),
		sched:  insurance.NewManualScheduler(),
		ledger: ledger.NewMemory(string(service), ledgerTx),
		events: &events.Recorder{},
		store:  st,
	}
	opts := []insurance.Option{
		insurance.WithClock(f.clock),
		insurance.WithLogger(quietLogger()),
		insurance.WithIDGenerator(sequence("policy")),
		insurance.WithMemoGenerator(sequence("memo")),
		insurance.WithScheduler(f.sched),
		insurance.WithPublisher(f.events),
	}
	f.reg = insurance.NewRegistry(f.store, opts...)
	f.res = insurance.NewReservations(f.reg, f.store, f.ledger, insurance.ReservationConfig{
		Fee:              fee,
		ServicePrincipal: service,
	}, opts...)
	return f
}

func feeOf(v uint64) *uint64 { return &v }

// policy creates a policy priced at 50 per unit.
func (f *fixture) policy(t *testing.T) insurance.Policy {
	t.Helper()
	p, err := f.reg.Create(f.ctx, "owner", payload("Alice", 10, 20))
	require.NoError(t, err)
	return p
}

// pay funds payer and transfers the booking amount to the service account.
func (f *fixture) pay(t *testing.T, payer insurance.Principal, b insurance.Booking) uint64 {
	t.Helper()
	f.ledger.Mint(ledger.AccountID(string(payer), nil), b.Amount+ledgerTx, "")
	block, err := f.ledger.TransferFrom(string(payer), ledger.TransferArgs{
		To:     f.res.ServiceAddress(),
		Amount: b.Amount,
		Fee:    ledgerTx,
		Memo:   b.Memo,
	})
	require.NoError(t, err)
	return block
}

// reserve runs order, payment and completion for payer.
func (f *fixture) reserve(t *testing.T, payer insurance.Principal, policyID string) insurance.Booking {
	t.Helper()
	order, err := f.res.CreateOrder(f.ctx, payer, policyID, 2)
	require.NoError(t, err)
	block := f.pay(t, payer, order)
	b, err := f.res.Complete(f.ctx, payer, policyID, 2, block, order.Memo)
	require.NoError(t, err)
	return b
}

// =============================================================================
// CONFIGURATION
// =============================================================================

func TestReservations_WithoutFee(t *testing.T) {
	f := newFixture(t, nil)
	p := f.policy(t)

	_, ok := f.res.ReservationFee()
	assert.False(t, ok)

	_, err := f.res.CreateOrder(f.ctx, "alice", p.ID, 1)
	assert.ErrorIs(t, err, insurance.ErrNotFound)

	_, err = f.res.Complete(f.ctx, "alice", p.ID, 1, 0, "memo-1")
	assert.ErrorIs(t, err, insurance.ErrNotFound)

	// Reservation state is checked before the fee
	_, err = f.res.End(f.ctx, "alice", p.ID)
	assert.ErrorIs(t, err, insurance.ErrNotBooked)
}

func TestReservations_FeeIsCopied(t *testing.T) {
	fee := uint64(100)
	f := newFixture(t, &fee)
	fee = 1

	got, ok := f.res.ReservationFee()
	require.True(t, ok)
	assert.Equal(t, uint64(100), got)
}

func TestReservations_ServiceAddress(t *testing.T) {
	f := newFixture(t, feeOf(100))
	assert.Equal(t, ledger.AccountID("service", nil), f.res.ServiceAddress())
	assert.Equal(t, insurance.DefaultPendingWindow, f.res.PendingWindow())
}

// =============================================================================
// CREATE ORDER
// =============================================================================

func TestCreateOrder_PricesAndSchedulesExpiry(t *testing.T) {
	// GIVEN: fee 100 and a policy priced at 50
	f := newFixture(t, feeOf(100))
	p := f.policy(t)

	// WHEN: Ordering two units
	b, err := f.res.CreateOrder(f.ctx, "alice", p.ID, 2)
	require.NoError(t, err)

	// THEN: 2 * 50 + 100 is due under a fresh memo
	assert.Equal(t, uint64(200), b.Amount)
	assert.Equal(t, uint64(2), b.NoOfPolicy)
	assert.Equal(t, insurance.BookingPaymentPending, b.Status)
	assert.Equal(t, insurance.Principal("alice"), b.Payer)
	assert.Equal(t, "memo-1", b.Memo)
	assert.Nil(t, b.PaidAtBlock)
	assert.Equal(t, t0.Add(120*time.Second), b.ExpiresAt)

	pending, _ := f.res.ListPending(f.ctx)
	assert.Equal(t, []insurance.Booking{b}, pending)

	delay, ok := f.sched.Delay("memo-1")
	require.True(t, ok)
	assert.Equal(t, 120*time.Second, delay)
	assert.Equal(t, []string{events.ReservationOrdered}, f.events.Types())

	// Ordering does not reserve
	got, _ := f.reg.Get(f.ctx, p.ID)
	assert.False(t, got.IsReserved)
}

func TestCreateOrder_Rejections(t *testing.T) {
	f := newFixture(t, feeOf(100))
	p := f.policy(t)

	_, err := f.res.CreateOrder(f.ctx, "alice", "nope", 1)
	assert.ErrorIs(t, err, insurance.ErrNotFound)

	_, err = f.res.CreateOrder(f.ctx, "alice", p.ID, 0)
	assert.ErrorIs(t, err, insurance.ErrInvalidPayload)

	f.reserve(t, "alice", p.ID)
	_, err = f.res.CreateOrder(f.ctx, "bob", p.ID, 1)
	assert.ErrorIs(t, err, insurance.ErrBooked)
}

func TestCreateOrder_AmountOverflow(t *testing.T) {
	f := newFixture(t, feeOf(100))
	p := f.policy(t)

	_, err := f.res.CreateOrder(f.ctx, "alice", p.ID, ^uint64(0))

	assert.ErrorIs(t, err, insurance.ErrInvalidPayload)
	pending, _ := f.res.ListPending(f.ctx)
	assert.Empty(t, pending)
}

// =============================================================================
// COMPLETE
// =============================================================================

func TestComplete_ReservesPolicy(t *testing.T) {
	// GIVEN: A paid order
	f := newFixture(t, feeOf(100))
	p := f.policy(t)
	order, err := f.res.CreateOrder(f.ctx, "alice", p.ID, 2)
	require.NoError(t, err)
	block := f.pay(t, "alice", order)

	// WHEN: Completing with the payment block
	b, err := f.res.Complete(f.ctx, "alice", p.ID, 2, block, order.Memo)
	require.NoError(t, err)

	// THEN: The booking moved from pending to completed
	assert.Equal(t, insurance.BookingCompleted, b.Status)
	require.NotNil(t, b.PaidAtBlock)
	assert.Equal(t, block, *b.PaidAtBlock)

	pending, _ := f.res.ListPending(f.ctx)
	assert.Empty(t, pending)
	mine, err := f.res.BookingFor(f.ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, b, mine)

	// AND: The policy is reserved to alice for the reservation duration
	got, _ := f.reg.Get(f.ctx, p.ID)
	assert.True(t, got.IsReserved)
	require.NotNil(t, got.CurrentReservedTo)
	assert.Equal(t, insurance.Principal("alice"), *got.CurrentReservedTo)
	require.NotNil(t, got.CurrentReservationEnds)
	assert.Equal(t, t0.Add(insurance.DefaultReservationDuration), *got.CurrentReservationEnds)
	assert.True(t, got.ReservationConsistent())

	// AND: The expiry job is gone
	assert.Empty(t, f.sched.Keys())
	assert.Equal(t, []string{events.ReservationOrdered, events.ReservationCompleted}, f.events.Types())
	assert.Equal(t, uint64(200), f.ledger.Balance(f.res.ServiceAddress()))
}

func TestComplete_WrongPaymentFails(t *testing.T) {
	f := newFixture(t, feeOf(100))
	p := f.policy(t)
	order, _ := f.res.CreateOrder(f.ctx, "alice", p.ID, 2)
	block := f.pay(t, "alice", order)

	t.Run("quantity differs from the order", func(t *testing.T) {
		_, err := f.res.Complete(f.ctx, "alice", p.ID, 3, block, order.Memo)
		assert.ErrorIs(t, err, insurance.ErrInvalidPayload)
	})

	t.Run("block without the transfer", func(t *testing.T) {
		_, err := f.res.Complete(f.ctx, "alice", p.ID, 2, block-1, order.Memo)
		assert.ErrorIs(t, err, insurance.ErrPaymentFailed)
	})

	t.Run("block beyond the chain", func(t *testing.T) {
		_, err := f.res.Complete(f.ctx, "alice", p.ID, 2, block+100, order.Memo)
		assert.ErrorIs(t, err, insurance.ErrPaymentFailed)
	})

	// Failures leave the order pending
	pending, _ := f.res.ListPending(f.ctx)
	assert.Len(t, pending, 1)
	got, _ := f.reg.Get(f.ctx, p.ID)
	assert.False(t, got.IsReserved)
}

func TestComplete_PaymentFromSomeoneElseFails(t *testing.T) {
	// GIVEN: bob pays alice's order
	f := newFixture(t, feeOf(100))
	p := f.policy(t)
	order, _ := f.res.CreateOrder(f.ctx, "alice", p.ID, 2)
	block := f.pay(t, "bob", order)

	// WHEN: alice completes
	_, err := f.res.Complete(f.ctx, "alice", p.ID, 2, block, order.Memo)

	// THEN: The transfer does not come from alice's account
	assert.ErrorIs(t, err, insurance.ErrPaymentFailed)
}

func TestComplete_UnknownOrForeignMemo(t *testing.T) {
	f := newFixture(t, feeOf(100))
	p := f.policy(t)
	other := f.policy(t)
	order, _ := f.res.CreateOrder(f.ctx, "alice", p.ID, 2)
	block := f.pay(t, "alice", order)

	_, err := f.res.Complete(f.ctx, "alice", p.ID, 2, block, "memo-unknown")
	assert.ErrorIs(t, err, insurance.ErrNotFound)

	_, err = f.res.Complete(f.ctx, "bob", p.ID, 2, block, order.Memo)
	assert.ErrorIs(t, err, insurance.ErrNotFound)

	_, err = f.res.Complete(f.ctx, "alice", other.ID, 2, block, order.Memo)
	assert.ErrorIs(t, err, insurance.ErrNotFound)

	_, err = f.res.Complete(f.ctx, "alice", "nope", 2, block, order.Memo)
	assert.ErrorIs(t, err, insurance.ErrNotFound)
}

func TestComplete_SecondCompletionOfSameMemo(t *testing.T) {
	f := newFixture(t, feeOf(100))
	p := f.policy(t)
	order, _ := f.res.CreateOrder(f.ctx, "alice", p.ID, 2)
	block := f.pay(t, "alice", order)

	_, err := f.res.Complete(f.ctx, "alice", p.ID, 2, block, order.Memo)
	require.NoError(t, err)

	_, err = f.res.Complete(f.ctx, "alice", p.ID, 2, block, order.Memo)
	assert.Error(t, err)
	assert.True(t, insurance.IsClientError(err))
}

func TestComplete_PolicyReservedInTheMeantime(t *testing.T) {
	// GIVEN: alice and bob both ordered and paid
	f := newFixture(t, feeOf(100))
	p := f.policy(t)
	aliceOrder, _ := f.res.CreateOrder(f.ctx, "alice", p.ID, 2)
	bobOrder, _ := f.res.CreateOrder(f.ctx, "bob", p.ID, 2)
	aliceBlock := f.pay(t, "alice", aliceOrder)
	bobBlock := f.pay(t, "bob", bobOrder)

	// WHEN: alice completes first
	_, err := f.res.Complete(f.ctx, "alice", p.ID, 2, aliceBlock, aliceOrder.Memo)
	require.NoError(t, err)
	_, err = f.res.Complete(f.ctx, "bob", p.ID, 2, bobBlock, bobOrder.Memo)

	// THEN: bob's payment fails and the reservation stays alice's
	assert.ErrorIs(t, err, insurance.ErrPaymentFailed)
	got, _ := f.reg.Get(f.ctx, p.ID)
	assert.Equal(t, insurance.Principal("alice"), *got.CurrentReservedTo)
	_, err = f.res.BookingFor(f.ctx, "bob")
	assert.ErrorIs(t, err, insurance.ErrNotFound)

	// AND: bob gets his payment back minus the transfer fee
	assert.Equal(t, uint64(200-ledgerTx), f.ledger.Balance(ledger.AccountID("bob", nil)))
	assert.Equal(t, uint64(200), f.ledger.Balance(f.res.ServiceAddress()))

	// AND: bob's order is settled, not left to expire as unpaid
	pending, _ := f.res.ListPending(f.ctx)
	assert.Empty(t, pending)
	assert.Empty(t, f.sched.Keys())
	assert.Equal(t, []string{
		events.ReservationOrdered, events.ReservationOrdered,
		events.ReservationCompleted, events.ReservationRefunded,
	}, f.events.Types())
}

func TestComplete_QuantityMustMatchOrder(t *testing.T) {
	// GIVEN: alice orders 100 units but pays for one
	f := newFixture(t, feeOf(100))
	p := f.policy(t)
	order, err := f.res.CreateOrder(f.ctx, "alice", p.ID, 100)
	require.NoError(t, err)
	require.Equal(t, uint64(100*50+100), order.Amount)

	short := order
	short.Amount = 50 + 100
	block := f.pay(t, "alice", short)

	// WHEN: Completing with the quantity she paid for
	_, err = f.res.Complete(f.ctx, "alice", p.ID, 1, block, order.Memo)

	// THEN: The quantity is rejected
	assert.ErrorIs(t, err, insurance.ErrInvalidPayload)

	// AND: The ordered quantity does not match the payment either
	_, err = f.res.Complete(f.ctx, "alice", p.ID, 100, block, order.Memo)
	assert.ErrorIs(t, err, insurance.ErrPaymentFailed)

	// AND: Nothing was booked
	_, err = f.res.BookingFor(f.ctx, "alice")
	assert.ErrorIs(t, err, insurance.ErrNotFound)
	got, _ := f.reg.Get(f.ctx, p.ID)
	assert.False(t, got.IsReserved)
	pending, _ := f.res.ListPending(f.ctx)
	assert.Len(t, pending, 1)
}

func TestComplete_PriceChangeAfterOrderKeepsQuote(t *testing.T) {
	// GIVEN: A paid order, then the owner raises the price
	f := newFixture(t, feeOf(100))
	p := f.policy(t)
	order, _ := f.res.CreateOrder(f.ctx, "alice", p.ID, 2)
	block := f.pay(t, "alice", order)

	raised := payload("Alice", 10, 20)
	raised.PricePerPolicy = 500
	_, err := f.reg.Update(f.ctx, p.ID, raised)
	require.NoError(t, err)

	// WHEN: alice completes
	b, err := f.res.Complete(f.ctx, "alice", p.ID, 2, block, order.Memo)

	// THEN: The payment matched the amount quoted at order time
	require.NoError(t, err)
	assert.Equal(t, order.Amount, b.Amount)
}

func TestReservation_DeleteReservedPolicyIsBooked(t *testing.T) {
	f := newFixture(t, feeOf(100))
	p := f.policy(t)
	f.reserve(t, "alice", p.ID)

	_, err := f.reg.Delete(f.ctx, "owner", p.ID)

	assert.ErrorIs(t, err, insurance.ErrBooked)
	_, err = f.reg.Get(f.ctx, p.ID)
	assert.NoError(t, err)
}

// =============================================================================
// END
// =============================================================================

func TestEnd_RefundsFeeAfterDuration(t *testing.T) {
	// GIVEN: alice holds a reservation
	f := newFixture(t, feeOf(100))
	p := f.policy(t)
	f.reserve(t, "alice", p.ID)
	alice := ledger.AccountID("alice", nil)
	before := f.ledger.Balance(alice)

	// WHEN: The duration has passed and alice ends it
	f.clock.Advance(insurance.DefaultReservationDuration)
	result, err := f.res.End(f.ctx, "alice", p.ID)
	require.NoError(t, err)

	// THEN: The fee minus the ledger fee comes back
	assert.Equal(t, uint64(90), result.Refunded)
	assert.Equal(t, ledgerTx, result.Fee)
	assert.Equal(t, insurance.Principal("alice"), result.Payer)
	assert.Equal(t, before+90, f.ledger.Balance(alice))
	assert.Equal(t, uint64(200-100), f.ledger.Balance(f.res.ServiceAddress()))

	blocks, _ := f.ledger.QueryBlocks(f.ctx, result.BlockIndex, 1)
	require.Len(t, blocks, 1)
	assert.Equal(t, "refund:"+p.ID, blocks[0].Transaction.Memo)

	// AND: The policy is free again
	got, _ := f.reg.Get(f.ctx, p.ID)
	assert.False(t, got.IsReserved)
	assert.True(t, got.ReservationConsistent())
	assert.Equal(t, events.ReservationEnded, f.events.Types()[len(f.events.Types())-1])

	// AND: It cannot be ended twice
	_, err = f.res.End(f.ctx, "alice", p.ID)
	assert.ErrorIs(t, err, insurance.ErrNotBooked)
}

func TestEnd_Rejections(t *testing.T) {
	f := newFixture(t, feeOf(100))
	p := f.policy(t)

	_, err := f.res.End(f.ctx, "alice", "nope")
	assert.ErrorIs(t, err, insurance.ErrNotFound)

	_, err = f.res.End(f.ctx, "alice", p.ID)
	assert.ErrorIs(t, err, insurance.ErrNotBooked)

	f.reserve(t, "alice", p.ID)

	f.clock.Advance(insurance.DefaultReservationDuration - time.Second)
	_, err = f.res.End(f.ctx, "alice", p.ID)
	assert.ErrorIs(t, err, insurance.ErrBooked, "before the reservation ends")

	f.clock.Advance(time.Second)
	_, err = f.res.End(f.ctx, "bob", p.ID)
	assert.ErrorIs(t, err, insurance.ErrBooked, "someone else's reservation")

	got, _ := f.reg.Get(f.ctx, p.ID)
	assert.True(t, got.IsReserved)
}

func TestEnd_FeeNotCoveringTransferFee(t *testing.T) {
	// GIVEN: A reservation fee equal to the ledger fee
	f := newFixture(t, feeOf(ledgerTx))
	p := f.policy(t)
	f.reserve(t, "alice", p.ID)
	f.clock.Advance(insurance.DefaultReservationDuration)

	// WHEN: Ending
	_, err := f.res.End(f.ctx, "alice", p.ID)

	// THEN: No refund is attempted and the policy stays reserved
	assert.ErrorIs(t, err, insurance.ErrPaymentFailed)
	got, _ := f.reg.Get(f.ctx, p.ID)
	assert.True(t, got.IsReserved)

	// AND: A later attempt is not blocked by the failed one
	_, err = f.res.End(f.ctx, "alice", p.ID)
	assert.ErrorIs(t, err, insurance.ErrPaymentFailed)
}

// =============================================================================
// EXPIRY
// =============================================================================

func TestExpiry_DiscardsUnpaidOrder(t *testing.T) {
	f := newFixture(t, feeOf(100))
	p := f.policy(t)
	order, _ := f.res.CreateOrder(f.ctx, "alice", p.ID, 2)

	// WHEN: The window elapses and the job fires
	f.clock.Advance(120 * time.Second)
	require.True(t, f.sched.Fire(order.Memo))

	// THEN: The order is gone and completing it is NotFound
	pending, _ := f.res.ListPending(f.ctx)
	assert.Empty(t, pending)
	block := f.pay(t, "alice", order)
	_, err := f.res.Complete(f.ctx, "alice", p.ID, 2, block, order.Memo)
	assert.ErrorIs(t, err, insurance.ErrNotFound)
	assert.Contains(t, f.events.Types(), events.ReservationExpired)
}

func TestExpiry_EarlyFireIsNoOp(t *testing.T) {
	f := newFixture(t, feeOf(100))
	p := f.policy(t)
	order, _ := f.res.CreateOrder(f.ctx, "alice", p.ID, 2)

	f.clock.Advance(119 * time.Second)
	removed, err := f.res.Expire(f.ctx, order.Memo)

	require.NoError(t, err)
	assert.False(t, removed)
	pending, _ := f.res.ListPending(f.ctx)
	assert.Len(t, pending, 1)
}

func TestExpiry_AfterCompletionIsNoOp(t *testing.T) {
	// GIVEN: A completed reservation
	f := newFixture(t, feeOf(100))
	p := f.policy(t)
	b := f.reserve(t, "alice", p.ID)

	// WHEN: A stale expiry runs for its memo past the deadline
	f.clock.Advance(time.Hour)
	removed, err := f.res.Expire(f.ctx, b.Memo)

	// THEN: Nothing changes
	require.NoError(t, err)
	assert.False(t, removed)
	mine, err := f.res.BookingFor(f.ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, insurance.BookingCompleted, mine.Status)
	got, _ := f.reg.Get(f.ctx, p.ID)
	assert.True(t, got.IsReserved)
}

func TestCompleteAndExpire_RaceHasOneWinner(t *testing.T) {
	stores := []struct {
		name string
		open func(t *testing.T) insurance.Store
	}{
		{"memory", func(*testing.T) insurance.Store { return store.NewMemory() }},
		{"sqlite", func(t *testing.T) insurance.Store {
			st, err := sqlite.New(":memory:")
			require.NoError(t, err)
			t.Cleanup(func() { _ = st.Close() })
			return st
		}},
	}

	for _, tc := range stores {
		t.Run(tc.name, func(t *testing.T) {
			for i := 0; i < 50; i++ {
				// GIVEN: A paid order whose window has just elapsed
				f := newFixtureOn(t, feeOf(100), tc.open(t))
				p := f.policy(t)
				order, err := f.res.CreateOrder(f.ctx, "alice", p.ID, 2)
				require.NoError(t, err)
				block := f.pay(t, "alice", order)
				f.clock.Advance(f.res.PendingWindow())

				// WHEN: Completion and expiry run at the same time
				var (
					wg          sync.WaitGroup
					completeErr error
					expired     bool
					expireErr   error
				)
				start := make(chan struct{})
				wg.Add(2)
				go func() {
					defer wg.Done()
					<-start
					_, completeErr = f.res.Complete(f.ctx, "alice", p.ID, 2, block, order.Memo)
				}()
				go func() {
					defer wg.Done()
					<-start
					expired, expireErr = f.res.Expire(f.ctx, order.Memo)
				}()
				close(start)
				wg.Wait()

				// THEN: Exactly one of them took the order
				require.NoError(t, expireErr)
				completed := completeErr == nil
				if !completed {
					require.ErrorIs(t, completeErr, insurance.ErrNotFound)
				}
				require.NotEqual(t, completed, expired, "iteration %d", i)

				pending, err := f.res.ListPending(f.ctx)
				require.NoError(t, err)
				require.Empty(t, pending)
				got, err := f.reg.Get(f.ctx, p.ID)
				require.NoError(t, err)
				require.Equal(t, completed, got.IsReserved, "iteration %d", i)
			}
		})
	}
}

func TestExpireElapsed_SweepsOnlyOverdue(t *testing.T) {
	f := newFixture(t, feeOf(100))
	p := f.policy(t)
	first, _ := f.res.CreateOrder(f.ctx, "alice", p.ID, 1)
	f.clock.Advance(60 * time.Second)
	second, _ := f.res.CreateOrder(f.ctx, "bob", p.ID, 1)
	f.clock.Advance(60 * time.Second)

	n, err := f.res.ExpireElapsed(f.ctx)

	require.NoError(t, err)
	assert.Equal(t, 1, n)
	pending, _ := f.res.ListPending(f.ctx)
	require.Len(t, pending, 1)
	assert.Equal(t, second.Memo, pending[0].Memo)
	assert.NotContains(t, f.sched.Keys(), first.Memo)
}

func TestResumeExpiry_ReschedulesStoredOrders(t *testing.T) {
	// GIVEN: Orders persisted by a previous process
	f := newFixture(t, feeOf(100))
	p := f.policy(t)
	_ = f.store.PutPending(f.ctx, insurance.Booking{
		PolicyID: p.ID, Payer: "alice", Memo: "old", Status: insurance.BookingPaymentPending,
		CreatedAt: t0.Add(-time.Hour), ExpiresAt: t0.Add(-time.Minute),
	})
	_ = f.store.PutPending(f.ctx, insurance.Booking{
		PolicyID: p.ID, Payer: "bob", Memo: "fresh", Status: insurance.BookingPaymentPending,
		CreatedAt: t0, ExpiresAt: t0.Add(30 * time.Second),
	})

	// WHEN: Resuming
	n, err := f.res.ResumeExpiry(f.ctx)
	require.NoError(t, err)

	// THEN: The overdue order is gone and the fresh one is scheduled
	assert.Equal(t, 1, n)
	assert.Equal(t, []string{"fresh"}, f.sched.Keys())
	delay, _ := f.sched.Delay("fresh")
	assert.Equal(t, 30*time.Second, delay)
}

func TestTimerScheduler_CancelAndFire(t *testing.T) {
	s := insurance.NewTimerScheduler()
	defer s.Stop()

	fired := make(chan string, 2)
	s.Schedule("cancelled", 50*time.Millisecond, func() { fired <- "cancelled" })
	s.Schedule("fires", time.Millisecond, func() { fired <- "fires" })
	assert.True(t, s.Cancel("cancelled"))
	assert.False(t, s.Cancel("missing"))

	select {
	case key := <-fired:
		assert.Equal(t, "fires", key)
	case <-time.After(time.Second):
		t.Fatal("timer did not fire")
	}

	select {
	case key := <-fired:
		t.Fatalf("unexpected fire of %s", key)
	case <-time.After(100 * time.Millisecond):
	}
	assert.Equal(t, 0, s.Pending())
}
