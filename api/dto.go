/*
dto.go - Data Transfer Objects for API requests and responses

PURPOSE:
  Defines the JSON structures for API communication. These types decouple
  the insurance domain model from the external API contract.

NAMING CONVENTION:
  - *DTO: Response types returned to clients
  - *Request: Request body types from clients

TYPES:
  Policy:
    PolicyDTO, PolicyRequest

  Reservation:
    BookingDTO, CreateOrderRequest, CompleteReservationRequest,
    PaymentCompletedDTO, ReservationFeeDTO, AddressDTO

  Scenarios:
    ScenarioDTO, LoadScenarioRequest

AMOUNTS:
  Ledger amounts are integers in the smallest unit (1e-8 token). Responses
  carry the raw integer plus a fixed-point token string next to it.

VALIDATION:
  Validation is done by the insurance package, not in DTOs. DTOs are pure
  data carriers.

SEE ALSO:
  - handlers.go: Uses these types
  - insurance/types.go: Domain types
*/
package api

import (
	"math/big"
	"time"

	"github.com/shopspring/decimal"
	"github.com/warp/insurance-engine/insurance"
)

// TokenDecimals is the number of fractional digits of one ledger token.
const TokenDecimals = 8

// =============================================================================
// REQUEST/RESPONSE TYPES
// =============================================================================

// PolicyDTO represents a policy in API responses.
type PolicyDTO struct {
	ID                     string  `json:"id"`
	PolicyHolderName       string  `json:"policy_holder_name"`
	ImageURL               string  `json:"image_url"`
	Description            string  `json:"description"`
	PricePerPolicy         uint64  `json:"price_per_policy"`
	PricePerPolicyTokens   string  `json:"price_per_policy_tokens"`
	CoverageAmount         uint64  `json:"coverage_amount"`
	PremiumAmount          uint64  `json:"premium_amount"`
	PolicyStartDate        uint64  `json:"policy_start_date"`
	PolicyEndDate          uint64  `json:"policy_end_date"`
	IsClaimed              bool    `json:"is_claimed"`
	IsAvailable            bool    `json:"is_available"`
	IsReserved             bool    `json:"is_reserved"`
	CurrentReservedTo      *string `json:"current_reserved_to"`
	CurrentReservationEnds *string `json:"current_reservation_ends"`
	Creator                string  `json:"creator"`
	CreatedAt              string  `json:"created_at"`
	UpdatedAt              *string `json:"updated_at"`
}

// PolicyRequest is the body of create and update.
type PolicyRequest struct {
	PolicyHolderName string `json:"policy_holder_name"`
	ImageURL         string `json:"image_url"`
	Description      string `json:"description"`
	PricePerPolicy   uint64 `json:"price_per_policy"`
	CoverageAmount   uint64 `json:"coverage_amount"`
	PremiumAmount    uint64 `json:"premium_amount"`
	PolicyStartDate  uint64 `json:"policy_start_date"`
	PolicyEndDate    uint64 `json:"policy_end_date"`
}

// BookingDTO represents a pending or completed booking.
type BookingDTO struct {
	PolicyID     string  `json:"policy_id"`
	Amount       uint64  `json:"amount"`
	AmountTokens string  `json:"amount_tokens"`
	NoOfPolicy   uint64  `json:"no_of_policy"`
	Status       string  `json:"status"`
	Payer        string  `json:"payer"`
	PaidAtBlock  *uint64 `json:"paid_at_block"`
	Memo         string  `json:"memo"`
	CreatedAt    string  `json:"created_at"`
	ExpiresAt    string  `json:"expires_at,omitempty"`
}

// CreateOrderRequest is the body of POST /policies/{id}/reservations.
type CreateOrderRequest struct {
	NoOfPolicy uint64 `json:"no_of_policy"`
}

// CompleteReservationRequest points at the ledger block holding the payment.
type CompleteReservationRequest struct {
	NoOfPolicy uint64 `json:"no_of_policy"`
	BlockIndex uint64 `json:"block_index"`
	Memo       string `json:"memo"`
}

// PaymentCompletedDTO is the refund issued when a reservation ends.
type PaymentCompletedDTO struct {
	PolicyID       string `json:"policy_id"`
	Payer          string `json:"payer"`
	Refunded       uint64 `json:"refunded"`
	RefundedTokens string `json:"refunded_tokens"`
	Fee            uint64 `json:"fee"`
	BlockIndex     uint64 `json:"block_index"`
}

// ReservationFeeDTO is the configured reservation fee.
type ReservationFeeDTO struct {
	Fee       uint64 `json:"fee"`
	FeeTokens string `json:"fee_tokens"`
}

// AddressDTO is the ledger account orders are paid into.
type AddressDTO struct {
	AccountID string `json:"account_id"`
}

// DeleteResponse echoes the id of a deleted policy.
type DeleteResponse struct {
	ID string `json:"id"`
}

// ScenarioDTO represents a demo scenario.
type ScenarioDTO struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
}

// LoadScenarioRequest selects the scenario to load.
type LoadScenarioRequest struct {
	ScenarioID string `json:"scenario_id"`
}

// ErrorResponse is the standard error response.
type ErrorResponse struct {
	Error   string `json:"error"`
	Code    string `json:"code,omitempty"`
	Details any    `json:"details,omitempty"`
}

// =============================================================================
// CONVERSION HELPERS
// =============================================================================

// tokens renders an amount in the smallest unit as a token string.
func tokens(amount uint64) string {
	return decimal.NewFromBigInt(new(big.Int).SetUint64(amount), -TokenDecimals).StringFixed(TokenDecimals)
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339)
}

func formatTimePtr(t *time.Time) *string {
	if t == nil {
		return nil
	}
	s := formatTime(*t)
	return &s
}

func toPolicyDTO(p insurance.Policy) PolicyDTO {
	dto := PolicyDTO{
		ID:                     p.ID,
		PolicyHolderName:       p.PolicyHolderName,
		ImageURL:               p.ImageURL,
		Description:            p.Description,
		PricePerPolicy:         p.PricePerPolicy,
		PricePerPolicyTokens:   tokens(p.PricePerPolicy),
		CoverageAmount:         p.CoverageAmount,
		PremiumAmount:          p.PremiumAmount,
		PolicyStartDate:        p.PolicyStartDate,
		PolicyEndDate:          p.PolicyEndDate,
		IsClaimed:              p.IsClaimed,
		IsAvailable:            p.IsAvailable,
		IsReserved:             p.IsReserved,
		CurrentReservationEnds: formatTimePtr(p.CurrentReservationEnds),
		Creator:                string(p.Creator),
		CreatedAt:              formatTime(p.CreatedAt),
		UpdatedAt:              formatTimePtr(p.UpdatedAt),
	}
	if p.CurrentReservedTo != nil {
		to := string(*p.CurrentReservedTo)
		dto.CurrentReservedTo = &to
	}
	return dto
}

func toPolicyDTOs(ps []insurance.Policy) []PolicyDTO {
	dtos := make([]PolicyDTO, len(ps))
	for i, p := range ps {
		dtos[i] = toPolicyDTO(p)
	}
	return dtos
}

func (req PolicyRequest) payload() insurance.PolicyPayload {
	return insurance.PolicyPayload{
		PolicyHolderName: req.PolicyHolderName,
		ImageURL:         req.ImageURL,
		Description:      req.Description,
		PricePerPolicy:   req.PricePerPolicy,
		CoverageAmount:   req.CoverageAmount,
		PremiumAmount:    req.PremiumAmount,
		PolicyStartDate:  req.PolicyStartDate,
		PolicyEndDate:    req.PolicyEndDate,
	}
}

func toBookingDTO(b insurance.Booking) BookingDTO {
	dto := BookingDTO{
		PolicyID:     b.PolicyID,
		Amount:       b.Amount,
		AmountTokens: tokens(b.Amount),
		NoOfPolicy:   b.NoOfPolicy,
		Status:       string(b.Status),
		Payer:        string(b.Payer),
		PaidAtBlock:  b.PaidAtBlock,
		Memo:         b.Memo,
		CreatedAt:    formatTime(b.CreatedAt),
	}
	if b.Status == insurance.BookingPaymentPending {
		dto.ExpiresAt = formatTime(b.ExpiresAt)
	}
	return dto
}

func toBookingDTOs(bs []insurance.Booking) []BookingDTO {
	dtos := make([]BookingDTO, len(bs))
	for i, b := range bs {
		dtos[i] = toBookingDTO(b)
	}
	return dtos
}

func toPaymentCompletedDTO(pc insurance.PaymentCompleted) PaymentCompletedDTO {
	return PaymentCompletedDTO{
		PolicyID:       pc.PolicyID,
		Payer:          string(pc.Payer),
		Refunded:       pc.Refunded,
		RefundedTokens: tokens(pc.Refunded),
		Fee:            pc.Fee,
		BlockIndex:     pc.BlockIndex,
	}
}
