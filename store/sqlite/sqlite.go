/*
Package sqlite provides a SQLite-backed implementation of insurance.Store.

PURPOSE:
  Persists the policy map and both booking maps so policies, orders and
  completed reservations survive restarts.

KEY TABLES:
  policies:          policy-id -> policy record
  pending_bookings:  memo      -> booking awaiting payment
  bookings:          payer     -> latest completed booking

ORDERING:
  List queries order by primary key, matching the ordered-map contract of
  insurance.PolicyStore and insurance.BookingStore.

UNSIGNED AMOUNTS:
  SQLite integers are signed 64-bit. uint64 values are stored through a
  bit-preserving int64 conversion and converted back on read.

CONCURRENCY:
  Uses sync.RWMutex for thread-safety. TakePending runs select + delete in a
  single database transaction under the write lock, which makes it the
  arbiter between completion and expiry.

USAGE:
  store, err := sqlite.New("./data/insurance.db")
  if err != nil {
      log.Fatal(err)
  }
  defer store.Close()

SEE ALSO:
  - insurance/store.go: Interface definitions
  - insurance/store/memory.go: In-memory implementation for testing
*/
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/warp/insurance-engine/insurance"
)

// Store implements insurance.Store using SQLite.
type Store struct {
	db *sql.DB
	mu sync.RWMutex
}

var _ insurance.Store = (*Store)(nil)

// New creates a new SQLite store with the given database path.
// Use ":memory:" for an in-memory database.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// An in-memory database exists per connection; keep exactly one.
	db.SetMaxOpenConns(1)

	store := &Store{db: db}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return store, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// migrate creates the database schema.
func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS policies (
		id TEXT PRIMARY KEY,
		holder_name TEXT NOT NULL,
		image_url TEXT NOT NULL DEFAULT '',
		description TEXT NOT NULL DEFAULT '',
		price_per_policy INTEGER NOT NULL DEFAULT 0,
		coverage_amount INTEGER NOT NULL DEFAULT 0,
		premium_amount INTEGER NOT NULL DEFAULT 0,
		start_date INTEGER NOT NULL,
		end_date INTEGER NOT NULL,
		is_claimed BOOLEAN NOT NULL DEFAULT FALSE,
		is_available BOOLEAN NOT NULL DEFAULT TRUE,
		is_reserved BOOLEAN NOT NULL DEFAULT FALSE,
		reserved_to TEXT,
		reservation_ends TEXT,
		creator TEXT NOT NULL,
		created_at TEXT NOT NULL,
		updated_at TEXT
	);

	CREATE INDEX IF NOT EXISTS idx_policies_holder
		ON policies(holder_name);

	-- Orders awaiting payment, keyed by correlation memo
	CREATE TABLE IF NOT EXISTS pending_bookings (
		memo TEXT PRIMARY KEY,
		policy_id TEXT NOT NULL,
		amount INTEGER NOT NULL,
		no_of_policy INTEGER NOT NULL,
		status TEXT NOT NULL,
		payer TEXT NOT NULL,
		paid_at_block INTEGER,
		created_at TEXT NOT NULL,
		expires_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_pending_bookings_expires
		ON pending_bookings(expires_at);

	-- Latest completed booking per payer
	CREATE TABLE IF NOT EXISTS bookings (
		payer TEXT PRIMARY KEY,
		memo TEXT NOT NULL,
		policy_id TEXT NOT NULL,
		amount INTEGER NOT NULL,
		no_of_policy INTEGER NOT NULL,
		status TEXT NOT NULL,
		paid_at_block INTEGER,
		created_at TEXT NOT NULL,
		expires_at TEXT NOT NULL
	);
	`

	_, err := s.db.Exec(schema)
	return err
}

// =============================================================================
// POLICY STORE (insurance.PolicyStore interface)
// =============================================================================

const policyColumns = `id, holder_name, image_url, description, price_per_policy,
	coverage_amount, premium_amount, start_date, end_date, is_claimed, is_available,
	is_reserved, reserved_to, reservation_ends, creator, created_at, updated_at`

// PutPolicy inserts or replaces a policy.
func (s *Store) PutPolicy(ctx context.Context, p insurance.Policy) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	query := `
		INSERT INTO policies (` + policyColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			holder_name = excluded.holder_name,
			image_url = excluded.image_url,
			description = excluded.description,
			price_per_policy = excluded.price_per_policy,
			coverage_amount = excluded.coverage_amount,
			premium_amount = excluded.premium_amount,
			start_date = excluded.start_date,
			end_date = excluded.end_date,
			is_claimed = excluded.is_claimed,
			is_available = excluded.is_available,
			is_reserved = excluded.is_reserved,
			reserved_to = excluded.reserved_to,
			reservation_ends = excluded.reservation_ends,
			updated_at = excluded.updated_at
	`

	var reservedTo sql.NullString
	if p.CurrentReservedTo != nil {
		reservedTo = sql.NullString{String: string(*p.CurrentReservedTo), Valid: true}
	}

	_, err := s.db.ExecContext(ctx, query,
		p.ID, p.PolicyHolderName, p.ImageURL, p.Description,
		int64(p.PricePerPolicy), int64(p.CoverageAmount), int64(p.PremiumAmount),
		int64(p.PolicyStartDate), int64(p.PolicyEndDate),
		p.IsClaimed, p.IsAvailable, p.IsReserved,
		reservedTo, formatTimePtr(p.CurrentReservationEnds),
		string(p.Creator), formatTime(p.CreatedAt), formatTimePtr(p.UpdatedAt),
	)
	return err
}

// GetPolicy retrieves a policy by ID. Returns nil if absent.
func (s *Store) GetPolicy(ctx context.Context, id string) (*insurance.Policy, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	row := s.db.QueryRowContext(ctx, "SELECT "+policyColumns+" FROM policies WHERE id = ?", id)
	p, err := scanPolicy(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// DeletePolicy removes a policy.
func (s *Store) DeletePolicy(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx, "DELETE FROM policies WHERE id = ?", id)
	return err
}

// ListPolicies returns all policies ordered by id.
func (s *Store) ListPolicies(ctx context.Context) ([]insurance.Policy, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, "SELECT "+policyColumns+" FROM policies ORDER BY id")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	policies := []insurance.Policy{}
	for rows.Next() {
		p, err := scanPolicy(rows)
		if err != nil {
			return nil, err
		}
		policies = append(policies, p)
	}
	return policies, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanPolicy(row scanner) (insurance.Policy, error) {
	var p insurance.Policy
	var price, coverage, premium, start, end int64
	var reservedTo, reservationEnds, updatedAt sql.NullString
	var creator, createdAt string

	err := row.Scan(
		&p.ID, &p.PolicyHolderName, &p.ImageURL, &p.Description,
		&price, &coverage, &premium, &start, &end,
		&p.IsClaimed, &p.IsAvailable, &p.IsReserved,
		&reservedTo, &reservationEnds, &creator, &createdAt, &updatedAt,
	)
	if err != nil {
		return p, err
	}

	p.PricePerPolicy = uint64(price)
	p.CoverageAmount = uint64(coverage)
	p.PremiumAmount = uint64(premium)
	p.PolicyStartDate = uint64(start)
	p.PolicyEndDate = uint64(end)
	p.Creator = insurance.Principal(creator)
	p.CreatedAt = parseTime(createdAt)
	p.UpdatedAt = parseTimePtr(updatedAt)
	p.CurrentReservationEnds = parseTimePtr(reservationEnds)
	if reservedTo.Valid {
		to := insurance.Principal(reservedTo.String)
		p.CurrentReservedTo = &to
	}
	return p, nil
}

// =============================================================================
// BOOKING STORE (insurance.BookingStore interface)
// =============================================================================

const bookingColumns = `memo, policy_id, amount, no_of_policy, status, payer,
	paid_at_block, created_at, expires_at`

// PutPending inserts or replaces a pending booking.
func (s *Store) PutPending(ctx context.Context, b insurance.Booking) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.putBooking(ctx, s.db, "pending_bookings", "memo", b)
}

// PutCompleted stores the payer's completed booking, replacing any earlier one.
func (s *Store) PutCompleted(ctx context.Context, b insurance.Booking) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.putBooking(ctx, s.db, "bookings", "payer", b)
}

func (s *Store) putBooking(ctx context.Context, db interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}, table, key string, b insurance.Booking) error {
	query := fmt.Sprintf(`
		INSERT INTO %s (%s)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(%s) DO UPDATE SET
			memo = excluded.memo,
			policy_id = excluded.policy_id,
			amount = excluded.amount,
			no_of_policy = excluded.no_of_policy,
			status = excluded.status,
			payer = excluded.payer,
			paid_at_block = excluded.paid_at_block,
			created_at = excluded.created_at,
			expires_at = excluded.expires_at
	`, table, bookingColumns, key)

	var paidAt sql.NullInt64
	if b.PaidAtBlock != nil {
		paidAt = sql.NullInt64{Int64: int64(*b.PaidAtBlock), Valid: true}
	}

	_, err := db.ExecContext(ctx, query,
		b.Memo, b.PolicyID, int64(b.Amount), int64(b.NoOfPolicy), string(b.Status),
		string(b.Payer), paidAt, formatTime(b.CreatedAt), formatTime(b.ExpiresAt),
	)
	return err
}

// GetPending retrieves a pending booking by memo. Returns nil if absent.
func (s *Store) GetPending(ctx context.Context, memo string) (*insurance.Booking, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.getBooking(ctx, "SELECT "+bookingColumns+" FROM pending_bookings WHERE memo = ?", memo)
}

// GetCompleted retrieves the payer's completed booking. Returns nil if absent.
func (s *Store) GetCompleted(ctx context.Context, payer insurance.Principal) (*insurance.Booking, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.getBooking(ctx, "SELECT "+bookingColumns+" FROM bookings WHERE payer = ?", string(payer))
}

func (s *Store) getBooking(ctx context.Context, query string, key string) (*insurance.Booking, error) {
	b, err := scanBooking(s.db.QueryRowContext(ctx, query, key))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &b, nil
}

// TakePending removes and returns the pending booking under memo.
func (s *Store) TakePending(ctx context.Context, memo string) (insurance.Booking, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return insurance.Booking{}, false, err
	}
	defer tx.Rollback()

	b, err := scanBooking(tx.QueryRowContext(ctx,
		"SELECT "+bookingColumns+" FROM pending_bookings WHERE memo = ?", memo))
	if err == sql.ErrNoRows {
		return insurance.Booking{}, false, nil
	}
	if err != nil {
		return insurance.Booking{}, false, err
	}

	if _, err := tx.ExecContext(ctx, "DELETE FROM pending_bookings WHERE memo = ?", memo); err != nil {
		return insurance.Booking{}, false, err
	}
	if err := tx.Commit(); err != nil {
		return insurance.Booking{}, false, err
	}
	return b, true, nil
}

// ListPending returns pending bookings ordered by memo.
func (s *Store) ListPending(ctx context.Context) ([]insurance.Booking, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.queryBookings(ctx, "SELECT "+bookingColumns+" FROM pending_bookings ORDER BY memo")
}

// ListCompleted returns completed bookings ordered by payer.
func (s *Store) ListCompleted(ctx context.Context) ([]insurance.Booking, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.queryBookings(ctx, "SELECT "+bookingColumns+" FROM bookings ORDER BY payer")
}

func (s *Store) queryBookings(ctx context.Context, query string, args ...any) ([]insurance.Booking, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	bookings := []insurance.Booking{}
	for rows.Next() {
		b, err := scanBooking(rows)
		if err != nil {
			return nil, err
		}
		bookings = append(bookings, b)
	}
	return bookings, rows.Err()
}

func scanBooking(row scanner) (insurance.Booking, error) {
	var b insurance.Booking
	var amount, quantity int64
	var status, payer, createdAt, expiresAt string
	var paidAt sql.NullInt64

	err := row.Scan(&b.Memo, &b.PolicyID, &amount, &quantity, &status, &payer,
		&paidAt, &createdAt, &expiresAt)
	if err != nil {
		return b, err
	}

	b.Amount = uint64(amount)
	b.NoOfPolicy = uint64(quantity)
	b.Status = insurance.BookingStatus(status)
	b.Payer = insurance.Principal(payer)
	b.CreatedAt = parseTime(createdAt)
	b.ExpiresAt = parseTime(expiresAt)
	if paidAt.Valid {
		block := uint64(paidAt.Int64)
		b.PaidAtBlock = &block
	}
	return b, nil
}

// =============================================================================
// ADMIN
// =============================================================================

// Reset clears all data (for demo scenarios).
func (s *Store) Reset(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, table := range []string{"bookings", "pending_bookings", "policies"} {
		if _, err := s.db.ExecContext(ctx, "DELETE FROM "+table); err != nil {
			return fmt.Errorf("reset %s: %w", table, err)
		}
	}
	return nil
}

// Helper functions

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func formatTimePtr(t *time.Time) sql.NullString {
	if t == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: formatTime(*t), Valid: true}
}

func parseTime(s string) time.Time {
	t, _ := time.Parse(time.RFC3339Nano, s)
	return t
}

func parseTimePtr(s sql.NullString) *time.Time {
	if !s.Valid {
		return nil
	}
	t := parseTime(s.String)
	return &t
}
