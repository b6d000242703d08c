/*
Package insurance provides the policy registry and the reservation workflow.

PURPOSE:
  Life-insurance policies are kept in an ordered policy store and can be
  created, read, updated, deleted, filtered and claimed. A policy can also be
  reserved: the caller places an order, pays on the ledger, and completes the
  reservation by pointing at the block holding the payment. Reservations run
  for a fixed duration after which the reserver can end them and receive the
  reservation fee back.

KEY CONCEPTS IN THIS FILE (types.go):
  - Principal: Opaque caller identity used for ownership and authorization
  - Policy: Insurance record with coverage terms and reservation/claim state
  - PolicyPayload: Caller-supplied descriptive fields for create/update
  - Booking: Payment order linking a payer to a reservation attempt
  - PaymentCompleted: Result of ending a reservation (the refund)

STATE MACHINES:
  Policy:  Free ──complete──▶ Reserved ──end──▶ Free
  Booking: PaymentPending ──complete──▶ Completed
           PaymentPending ──window elapsed──▶ (discarded, no state)

SEE ALSO:
  - registry.go: Policy CRUD
  - reservation.go: Order / complete / end
  - expiry.go: Deferred removal of unpaid orders
  - store.go: Storage interfaces
*/
package insurance

import "time"

// Principal identifies a caller.
type Principal string

// AnonymousPrincipal is the identity of unauthenticated callers.
const AnonymousPrincipal Principal = "2vxsx-fae"

// =============================================================================
// POLICY
// =============================================================================

// Policy is a life-insurance policy record.
type Policy struct {
	ID               string
	PolicyHolderName string
	ImageURL         string
	Description      string

	// Amounts in the smallest currency unit
	PricePerPolicy uint64
	CoverageAmount uint64
	PremiumAmount  uint64

	// Caller-defined timestamps
	PolicyStartDate uint64
	PolicyEndDate   uint64

	IsClaimed   bool
	IsAvailable bool

	// Reservation state; IsReserved iff both pointers are set
	IsReserved             bool
	CurrentReservedTo      *Principal
	CurrentReservationEnds *time.Time

	Creator   Principal
	CreatedAt time.Time
	UpdatedAt *time.Time
}

// ReservationConsistent reports whether the reservation fields agree with IsReserved.
func (p Policy) ReservationConsistent() bool {
	both := p.CurrentReservedTo != nil && p.CurrentReservationEnds != nil
	none := p.CurrentReservedTo == nil && p.CurrentReservationEnds == nil
	if p.IsReserved {
		return both
	}
	return none
}

func (p *Policy) reserve(to Principal, until time.Time) {
	p.IsReserved = true
	p.CurrentReservedTo = &to
	p.CurrentReservationEnds = &until
}

func (p *Policy) release() {
	p.IsReserved = false
	p.CurrentReservedTo = nil
	p.CurrentReservationEnds = nil
}

// PolicyPayload carries the caller-editable fields of a policy.
// Claim state is not editable here; it only moves through FileClaim.
type PolicyPayload struct {
	PolicyHolderName string
	ImageURL         string
	Description      string
	PricePerPolicy   uint64
	CoverageAmount   uint64
	PremiumAmount    uint64
	PolicyStartDate  uint64
	PolicyEndDate    uint64
}

func (pl PolicyPayload) applyTo(p *Policy) {
	p.PolicyHolderName = pl.PolicyHolderName
	p.ImageURL = pl.ImageURL
	p.Description = pl.Description
	p.PricePerPolicy = pl.PricePerPolicy
	p.CoverageAmount = pl.CoverageAmount
	p.PremiumAmount = pl.PremiumAmount
	p.PolicyStartDate = pl.PolicyStartDate
	p.PolicyEndDate = pl.PolicyEndDate
}

// =============================================================================
// BOOKING
// =============================================================================

type BookingStatus string

const (
	BookingPaymentPending BookingStatus = "PaymentPending"
	BookingCompleted      BookingStatus = "Completed"
)

// Booking is a reservation order.
type Booking struct {
	PolicyID    string
	Amount      uint64 // NoOfPolicy * PricePerPolicy + reservation fee
	NoOfPolicy  uint64
	Status      BookingStatus
	Payer       Principal
	PaidAtBlock *uint64
	Memo        string

	CreatedAt time.Time
	ExpiresAt time.Time // end of the payment window while pending
}

// PaymentCompleted is returned when a reservation ends and the fee is refunded.
type PaymentCompleted struct {
	PolicyID   string
	Payer      Principal
	Refunded   uint64 // fee minus the ledger transfer fee
	Fee        uint64 // ledger transfer fee paid out of the reservation fee
	BlockIndex uint64
}
