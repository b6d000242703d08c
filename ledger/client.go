/*
client.go - Ledger client interface and wire types

PURPOSE:
  The account ledger is an external service. This file defines the three calls
  the reservation workflow needs from it:

    TransferFee()            fee charged by the ledger for every transfer
    Transfer(args)           move funds out of the service's own account
    QueryBlocks(start, len)  read committed blocks to confirm a payment

IMPLEMENTATIONS:
  - memory.go: In-process ledger (development and tests)
  - http.go:   JSON/HTTP client for a remote ledger bridge

SEE ALSO:
  - verify.go: Payment confirmation on top of QueryBlocks
  - insurance/reservation.go: The only caller
*/
package ledger

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Client is the subset of the ledger API used by the service.
type Client interface {
	// TransferFee returns the fee the ledger charges per transfer.
	TransferFee(ctx context.Context) (uint64, error)

	// Transfer sends funds from the caller's account and returns the block index.
	Transfer(ctx context.Context, args TransferArgs) (uint64, error)

	// QueryBlocks returns up to length blocks starting at start.
	QueryBlocks(ctx context.Context, start, length uint64) ([]Block, error)
}

// TransferArgs describes an outgoing transfer.
type TransferArgs struct {
	FromSubaccount *Subaccount       `json:"from_subaccount,omitempty"`
	To             AccountIdentifier `json:"to"`
	Amount         uint64            `json:"amount"`
	Fee            uint64            `json:"fee"`
	Memo           string            `json:"memo"`
}

// =============================================================================
// BLOCKS
// =============================================================================

// Block is a committed ledger entry.
type Block struct {
	Index       uint64      `json:"index"`
	Timestamp   time.Time   `json:"timestamp"`
	Transaction Transaction `json:"transaction"`
}

type Transaction struct {
	Memo      string    `json:"memo"`
	Operation Operation `json:"operation"`
}

// Operation holds exactly one of its fields.
type Operation struct {
	Transfer *Transfer `json:"transfer,omitempty"`
	Mint     *Mint     `json:"mint,omitempty"`
}

type Transfer struct {
	From   AccountIdentifier `json:"from"`
	To     AccountIdentifier `json:"to"`
	Amount uint64            `json:"amount"`
	Fee    uint64            `json:"fee"`
}

type Mint struct {
	To     AccountIdentifier `json:"to"`
	Amount uint64            `json:"amount"`
}

// =============================================================================
// ERRORS
// =============================================================================

var (
	// ErrBadFee is returned when the fee in TransferArgs differs from the ledger fee.
	ErrBadFee = errors.New("bad fee")

	// ErrInsufficientFunds is returned when the sender cannot cover amount + fee.
	ErrInsufficientFunds = errors.New("insufficient funds")

	// ErrUnavailable is returned when the ledger cannot be reached.
	ErrUnavailable = errors.New("ledger unavailable")
)

// TransferError is a rejected transfer with the ledger's reason.
type TransferError struct {
	Reason      error
	ExpectedFee uint64
	Balance     uint64
}

func (e *TransferError) Error() string {
	switch {
	case errors.Is(e.Reason, ErrBadFee):
		return fmt.Sprintf("transfer rejected: %v (expected fee %d)", e.Reason, e.ExpectedFee)
	case errors.Is(e.Reason, ErrInsufficientFunds):
		return fmt.Sprintf("transfer rejected: %v (balance %d)", e.Reason, e.Balance)
	default:
		return fmt.Sprintf("transfer rejected: %v", e.Reason)
	}
}

func (e *TransferError) Unwrap() error {
	return e.Reason
}
