// Package postgres provides a PostgreSQL store.Store on Grove's pg driver.
package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/xraph/grove"
	"github.com/xraph/grove/drivers/pgdriver"
	_ "github.com/xraph/grove/drivers/pgdriver/pgmigrate" // registers the pg migration executor
	"github.com/xraph/grove/migrate"

	"github.com/xraph/patron"
	"github.com/xraph/patron/account"
	"github.com/xraph/patron/creator"
	"github.com/xraph/patron/payment"
	"github.com/xraph/patron/store"
	"github.com/xraph/patron/subscription"
	"github.com/xraph/patron/types"
)

// uniqueViolation is the SQLSTATE for unique_violation.
const uniqueViolation = "23505"

// compile-time interface check
var _ store.Store = (*Store)(nil)

// querier builds queries against the pool or an open transaction.
type querier interface {
	NewSelect(model ...any) *pgdriver.SelectQuery
	NewInsert(model any) *pgdriver.InsertQuery
	NewUpdate(model any) *pgdriver.UpdateQuery
	NewRaw(query string, args ...any) *pgdriver.RawQuery
}

var (
	_ querier = (*pgdriver.PgDB)(nil)
	_ querier = (*pgdriver.PgTx)(nil)
)

// Store implements store.Store using PostgreSQL via Grove ORM.
type Store struct {
	db *grove.DB
	pg *pgdriver.PgDB
	q  querier
	tx *pgdriver.PgTx
}

// Open connects to the database at dsn, a postgres:// URL.
func Open(ctx context.Context, dsn string) (*Store, error) {
	pgdb := pgdriver.New()
	if err := pgdb.Open(ctx, dsn); err != nil {
		return nil, fmt.Errorf("patron/postgres: %w", err)
	}
	db, err := grove.Open(pgdb)
	if err != nil {
		_ = pgdb.Close() //nolint:errcheck // open error wins
		return nil, fmt.Errorf("patron/postgres: %w", err)
	}
	return New(db), nil
}

// New creates a new PostgreSQL store backed by Grove ORM.
func New(db *grove.DB) *Store {
	pg := pgdriver.Unwrap(db)
	return &Store{
		db: db,
		pg: pg,
		q:  pg,
	}
}

// DB returns the underlying grove database for direct access.
func (s *Store) DB() *grove.DB { return s.db }

// Atomic implements store.Store. Nested calls join the outer transaction.
func (s *Store) Atomic(ctx context.Context, fn store.TxFunc) (err error) {
	if s.tx != nil {
		return fn(ctx, s)
	}

	tx, err := s.pg.BeginTxQuery(ctx, nil)
	if err != nil {
		return fmt.Errorf("patron/postgres: begin: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback() //nolint:errcheck // the original error wins
		}
	}()

	if err = fn(ctx, &Store{db: s.db, pg: s.pg, q: tx, tx: tx}); err != nil {
		return err
	}
	if err = tx.Commit(); err != nil {
		return fmt.Errorf("patron/postgres: commit: %w", err)
	}
	return nil
}

// Migrate creates the required tables and indexes using the grove orchestrator.
func (s *Store) Migrate(ctx context.Context) error {
	executor, err := migrate.NewExecutorFor(s.pg)
	if err != nil {
		return fmt.Errorf("%w: patron/postgres: create migration executor: %w", patron.ErrMigrationFailed, err)
	}
	orch := migrate.NewOrchestrator(executor, Migrations)
	if _, err := orch.Migrate(ctx); err != nil {
		return fmt.Errorf("%w: patron/postgres: %w", patron.ErrMigrationFailed, err)
	}
	return nil
}

// Ping checks database connectivity.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.Ping(ctx)
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// IsUniqueViolation reports whether err is a primary key or unique
// constraint violation.
func IsUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolation
}

// ==================== Account Store ====================

func (s *Store) GetAccount(ctx context.Context, accountID string) (*account.Account, error) {
	m := new(accountModel)
	err := s.q.NewSelect(m).Where("id = $1", accountID).Scan(ctx)
	if err != nil {
		if isNoRows(err) {
			return nil, fmt.Errorf("%w: %q", patron.ErrAccountNotFound, accountID)
		}
		return nil, err
	}
	return fromAccountModel(m), nil
}

// CreditAccount adds amount in a single upsert. The update only applies
// while the sum stays within MaxMicro, so no rows affected means overflow.
func (s *Store) CreditAccount(ctx context.Context, accountID string, amount types.Micro, at time.Time) error {
	if !amount.Valid() {
		return fmt.Errorf("%w: %w: %d", patron.ErrAmountOverflow, types.ErrOverflow, amount)
	}

	res, err := s.q.NewRaw(`
INSERT INTO patron_accounts (id, balance, created_at, updated_at)
VALUES ($1, $2, $3, $3)
ON CONFLICT (id) DO UPDATE
SET balance = patron_accounts.balance + EXCLUDED.balance, updated_at = EXCLUDED.updated_at
WHERE patron_accounts.balance <= $4`,
		accountID, int64(amount), toNanos(at), int64(types.MaxMicro-amount),
	).Exec(ctx)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("%w: %w: %q + %d", patron.ErrAmountOverflow, types.ErrOverflow, accountID, amount)
	}
	return nil
}

func (s *Store) DebitAccount(ctx context.Context, accountID string, amount types.Micro, at time.Time) error {
	res, err := s.q.NewRaw(`
UPDATE patron_accounts SET balance = balance - $1, updated_at = $2
WHERE id = $3 AND balance >= $1`,
		int64(amount), toNanos(at), accountID,
	).Exec(ctx)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("%w: %q cannot cover %d", patron.ErrInsufficientFunds, accountID, amount)
	}
	return nil
}

func (s *Store) RecordTransfer(ctx context.Context, t *account.Transfer) error {
	_, err := s.q.NewInsert(toTransferModel(t)).Exec(ctx)
	return err
}

func (s *Store) ListTransfers(ctx context.Context, opts account.ListOpts) ([]*account.Transfer, error) {
	var models []transferModel
	q := s.q.NewSelect(&models)

	argIdx := 0
	if opts.AccountID != "" {
		argIdx++
		q = q.Where(fmt.Sprintf("(from_account = $%d OR to_account = $%d)", argIdx, argIdx), opts.AccountID)
	}
	if opts.Kind != "" {
		argIdx++
		q = q.Where(fmt.Sprintf("kind = $%d", argIdx), string(opts.Kind))
	}
	q = q.OrderExpr("created_at ASC, id ASC")
	if opts.Limit > 0 {
		q = q.Limit(opts.Limit)
	}
	if opts.Offset > 0 {
		q = q.Offset(opts.Offset)
	}

	if err := q.Scan(ctx); err != nil {
		return nil, err
	}
	result := make([]*account.Transfer, 0, len(models))
	for i := range models {
		t, err := fromTransferModel(&models[i])
		if err != nil {
			return nil, err
		}
		result = append(result, t)
	}
	return result, nil
}

// ==================== Creator Store ====================

func (s *Store) CreateCreator(ctx context.Context, c *creator.Creator) error {
	_, err := s.q.NewInsert(toCreatorModel(c)).Exec(ctx)
	if err != nil && IsUniqueViolation(err) {
		return fmt.Errorf("%w: %q", patron.ErrDuplicateCreator, c.ID)
	}
	return err
}

// GetCreator locks the row inside Atomic so the caller's read-modify-write
// of fee and earnings cannot interleave with another process.
func (s *Store) GetCreator(ctx context.Context, creatorID string) (*creator.Creator, error) {
	m := new(creatorModel)
	q := s.q.NewSelect(m).Where("id = $1", creatorID)
	if s.tx != nil {
		q = q.ForUpdate()
	}
	err := q.Scan(ctx)
	if err != nil {
		if isNoRows(err) {
			return nil, fmt.Errorf("%w: %q", patron.ErrCreatorNotFound, creatorID)
		}
		return nil, err
	}
	return fromCreatorModel(m), nil
}

func (s *Store) UpdateCreator(ctx context.Context, c *creator.Creator) error {
	res, err := s.q.NewUpdate(toCreatorModel(c)).WherePK().Exec(ctx)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("%w: %q", patron.ErrCreatorNotFound, c.ID)
	}
	return nil
}

func (s *Store) ListCreators(ctx context.Context, opts creator.ListOpts) ([]*creator.Creator, error) {
	var models []creatorModel
	q := s.q.NewSelect(&models).OrderExpr("id ASC")
	if opts.Limit > 0 {
		q = q.Limit(opts.Limit)
	}
	if opts.Offset > 0 {
		q = q.Offset(opts.Offset)
	}

	if err := q.Scan(ctx); err != nil {
		return nil, err
	}
	result := make([]*creator.Creator, 0, len(models))
	for i := range models {
		result = append(result, fromCreatorModel(&models[i]))
	}
	return result, nil
}

// ==================== Subscription Store ====================

// GetSubscription locks the row inside Atomic, as GetCreator does.
func (s *Store) GetSubscription(ctx context.Context, creatorID, fanID string) (*subscription.Subscription, error) {
	m := new(subscriptionModel)
	q := s.q.NewSelect(m).
		Where("creator_id = $1", creatorID).
		Where("fan_id = $2", fanID)
	if s.tx != nil {
		q = q.ForUpdate()
	}
	err := q.Scan(ctx)
	if err != nil {
		if isNoRows(err) {
			return nil, fmt.Errorf("%w: creator %q fan %q", patron.ErrNoSubscription, creatorID, fanID)
		}
		return nil, err
	}
	return fromSubscriptionModel(m)
}

func (s *Store) SaveSubscription(ctx context.Context, sub *subscription.Subscription) error {
	_, err := s.q.NewInsert(toSubscriptionModel(sub)).
		OnConflict("(creator_id, fan_id) DO UPDATE").
		Set("id = EXCLUDED.id").
		Set("started_at = EXCLUDED.started_at").
		Set("expires_at = EXCLUDED.expires_at").
		Set("auto_renew = EXCLUDED.auto_renew").
		Set("payment_attempts = EXCLUDED.payment_attempts").
		Set("next_retry_at = EXCLUDED.next_retry_at").
		Set("cancelled_at = EXCLUDED.cancelled_at").
		Set("last_payment_id = EXCLUDED.last_payment_id").
		Set("updated_at = EXCLUDED.updated_at").
		Exec(ctx)
	return err
}

func (s *Store) ListSubscriptions(ctx context.Context, opts subscription.ListOpts) ([]*subscription.Subscription, error) {
	var models []subscriptionModel
	q := s.q.NewSelect(&models)

	argIdx := 0
	if opts.CreatorID != "" {
		argIdx++
		q = q.Where(fmt.Sprintf("creator_id = $%d", argIdx), opts.CreatorID)
	}
	if opts.FanID != "" {
		argIdx++
		q = q.Where(fmt.Sprintf("fan_id = $%d", argIdx), opts.FanID)
	}
	q = q.OrderExpr("creator_id ASC, fan_id ASC")
	if opts.Limit > 0 {
		q = q.Limit(opts.Limit)
	}
	if opts.Offset > 0 {
		q = q.Offset(opts.Offset)
	}

	if err := q.Scan(ctx); err != nil {
		return nil, err
	}
	return fromSubscriptionModels(models)
}

func (s *Store) ListDueRenewals(ctx context.Context, now time.Time, after subscription.DueCursor, limit int) ([]*subscription.Subscription, error) {
	var models []subscriptionModel
	q := s.q.NewSelect(&models).
		Where("auto_renew = TRUE").
		Where("cancelled_at IS NULL").
		Where("expires_at <= $1", toNanos(now)).
		Where("next_retry_at <= $2", toNanos(now))
	if !after.IsZero() {
		q = q.Where("(next_retry_at, creator_id, fan_id) > ($3, $4, $5)",
			toNanos(after.NextRetryAt), after.CreatorID, after.FanID)
	}
	q = q.OrderExpr("next_retry_at ASC, creator_id ASC, fan_id ASC")
	if limit > 0 {
		q = q.Limit(limit)
	}

	if err := q.Scan(ctx); err != nil {
		return nil, err
	}
	return fromSubscriptionModels(models)
}

func fromSubscriptionModels(models []subscriptionModel) ([]*subscription.Subscription, error) {
	result := make([]*subscription.Subscription, 0, len(models))
	for i := range models {
		sub, err := fromSubscriptionModel(&models[i])
		if err != nil {
			return nil, err
		}
		result = append(result, sub)
	}
	return result, nil
}

// ==================== Payment Store ====================

// AppendPayment assigns the next sequential ID, starting at zero. The
// engine serializes writers, so reading the maximum inside the transaction
// is enough.
func (s *Store) AppendPayment(ctx context.Context, e *payment.Entry) error {
	var next int64
	if err := s.q.NewRaw(`SELECT COALESCE(MAX(id), -1) + 1 FROM patron_payments`).Scan(ctx, &next); err != nil {
		return err
	}
	e.ID = uint64(next)

	_, err := s.q.NewInsert(toPaymentModel(e)).Exec(ctx)
	return err
}

func (s *Store) GetPayment(ctx context.Context, paymentID uint64) (*payment.Entry, error) {
	if paymentID > math.MaxInt64 {
		return nil, fmt.Errorf("%w: payment %d", patron.ErrNotFound, paymentID)
	}
	m := new(paymentModel)
	err := s.q.NewSelect(m).Where("id = $1", int64(paymentID)).Scan(ctx)
	if err != nil {
		if isNoRows(err) {
			return nil, fmt.Errorf("%w: payment %d", patron.ErrNotFound, paymentID)
		}
		return nil, err
	}
	return fromPaymentModel(m)
}

func (s *Store) ListPayments(ctx context.Context, opts payment.ListOpts) ([]*payment.Entry, error) {
	var models []paymentModel
	q := s.q.NewSelect(&models)

	argIdx := 0
	if opts.CreatorID != "" {
		argIdx++
		q = q.Where(fmt.Sprintf("creator_id = $%d", argIdx), opts.CreatorID)
	}
	if opts.FanID != "" {
		argIdx++
		q = q.Where(fmt.Sprintf("fan_id = $%d", argIdx), opts.FanID)
	}
	if opts.Outcome != "" {
		argIdx++
		q = q.Where(fmt.Sprintf("outcome = $%d", argIdx), string(opts.Outcome))
	}
	q = q.OrderExpr("id ASC")
	if opts.Limit > 0 {
		q = q.Limit(opts.Limit)
	}
	if opts.Offset > 0 {
		q = q.Offset(opts.Offset)
	}

	if err := q.Scan(ctx); err != nil {
		return nil, err
	}
	result := make([]*payment.Entry, 0, len(models))
	for i := range models {
		e, err := fromPaymentModel(&models[i])
		if err != nil {
			return nil, err
		}
		result = append(result, e)
	}
	return result, nil
}

// isNoRows checks for the standard sql.ErrNoRows, which pgx's no-rows
// error also matches.
func isNoRows(err error) bool {
	return errors.Is(err, sql.ErrNoRows)
}
