package ledger

import (
	"context"
	"sync"
	"time"
)

// =============================================================================
// MEMORY LEDGER - In-process implementation (for testing/dev)
// =============================================================================

// Memory is an in-process ledger. Transfer and TransferFee act on behalf of
// the owner principal; TransferFrom simulates other principals paying in.
type Memory struct {
	mu       sync.RWMutex
	owner    string
	fee      uint64
	balances map[AccountIdentifier]uint64
	blocks   []Block
	now      func() time.Time
}

// NewMemory creates an empty ledger whose client identity is owner.
func NewMemory(owner string, fee uint64) *Memory {
	return &Memory{
		owner:    owner,
		fee:      fee,
		balances: make(map[AccountIdentifier]uint64),
		now:      time.Now,
	}
}

func (m *Memory) TransferFee(_ context.Context) (uint64, error) {
	return m.fee, nil
}

func (m *Memory) Transfer(_ context.Context, args TransferArgs) (uint64, error) {
	return m.TransferFrom(m.owner, args)
}

// TransferFrom transfers out of from's account.
func (m *Memory) TransferFrom(from string, args TransferArgs) (uint64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if args.Fee != m.fee {
		return 0, &TransferError{Reason: ErrBadFee, ExpectedFee: m.fee}
	}

	src := AccountID(from, args.FromSubaccount)
	total := args.Amount + args.Fee
	balance := m.balances[src]
	if total < args.Amount || balance < total {
		return 0, &TransferError{Reason: ErrInsufficientFunds, Balance: balance}
	}

	m.balances[src] = balance - total
	m.balances[args.To] += args.Amount

	return m.appendLocked(Transaction{
		Memo: args.Memo,
		Operation: Operation{Transfer: &Transfer{
			From:   src,
			To:     args.To,
			Amount: args.Amount,
			Fee:    args.Fee,
		}},
	}), nil
}

// Mint credits an account out of thin air.
func (m *Memory) Mint(to AccountIdentifier, amount uint64, memo string) uint64 {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.balances[to] += amount
	return m.appendLocked(Transaction{
		Memo:      memo,
		Operation: Operation{Mint: &Mint{To: to, Amount: amount}},
	})
}

func (m *Memory) appendLocked(tx Transaction) uint64 {
	index := uint64(len(m.blocks))
	m.blocks = append(m.blocks, Block{
		Index:       index,
		Timestamp:   m.now().UTC(),
		Transaction: tx,
	})
	return index
}

func (m *Memory) QueryBlocks(_ context.Context, start, length uint64) ([]Block, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	n := uint64(len(m.blocks))
	if start >= n || length == 0 {
		return []Block{}, nil
	}
	end := start + length
	if end > n || end < start {
		end = n
	}
	result := make([]Block, end-start)
	copy(result, m.blocks[start:end])
	return result, nil
}

// Balance returns the balance of an account.
func (m *Memory) Balance(account AccountIdentifier) uint64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.balances[account]
}

// Owner returns the principal Transfer acts on behalf of.
func (m *Memory) Owner() string {
	return m.owner
}
