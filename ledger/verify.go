package ledger

import (
	"context"
	"fmt"
)

// PaymentCheck describes the transfer a caller claims to have made.
type PaymentCheck struct {
	Block  uint64
	From   AccountIdentifier
	To     AccountIdentifier
	Amount uint64
	Memo   string
}

// VerifyPayment reports whether the block at chk.Block holds a transfer of
// exactly chk.Amount from chk.From to chk.To carrying chk.Memo.
// A missing block is not an error; it simply does not match.
func VerifyPayment(ctx context.Context, c Client, chk PaymentCheck) (bool, error) {
	blocks, err := c.QueryBlocks(ctx, chk.Block, 1)
	if err != nil {
		return false, fmt.Errorf("query block %d: %w", chk.Block, err)
	}

	for _, b := range blocks {
		if b.Index != chk.Block {
			continue
		}
		tr := b.Transaction.Operation.Transfer
		if tr == nil {
			continue
		}
		if b.Transaction.Memo == chk.Memo &&
			tr.From == chk.From &&
			tr.To == chk.To &&
			tr.Amount == chk.Amount {
			return true, nil
		}
	}
	return false, nil
}
