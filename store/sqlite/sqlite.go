/*
Package sqlite provides a SQLite-backed implementation of ledger.TxStore.

PURPOSE:
  Default store for single-node deployments and for tests (":memory:").
  store/postgres implements the same interface for production.

KEY TABLES:
  users:                 Participant profiles (role, active, first_login_at)
  balances:              Lazily created zero baseline per user
  transactions:          Append-only points ledger
  redemption_decisions:  Who approved/rejected what, with notes

APPEND-ONLY ENFORCEMENT:
  - No DELETE statements on transactions (a trigger aborts them)
  - amount, tx_type and user_id cannot be updated (trigger)
  - status can only leave 'pending' (trigger + conditional UPDATE)

INDEXES:
  - idx_transactions_user:        history paging and balance fold (hot path)
  - idx_unique_signup_bonus:      one signup bonus per user
  - idx_unique_report_award:      one report_resolved per (user, report)
  - idx_transactions_redemptions: admin queue and monthly cap sums

CONCURRENCY:
  The pool is limited to one connection. WithTx holds that connection for
  the whole callback, so every check-then-append is serialized.

TIMESTAMPS:
  Stored as fixed-width UTC text so lexical order is chronological order.

USAGE:
  store, err := sqlite.New("./data/rewards.db")
  if err != nil {
      log.Fatal(err)
  }
  defer store.Close()

SEE ALSO:
  - ledger/store.go: Interface definitions
  - ledger/store/memory.go: In-memory implementation for testing
*/
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/mattn/go-sqlite3"

	"github.com/cleanjamaica/rewards-ledger/ledger"
)

const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

// Store implements ledger.TxStore using SQLite.
type Store struct {
	*queries
	db *sql.DB
}

var _ ledger.TxStore = (*Store)(nil)

// New creates a new SQLite store with the given database path.
// Use ":memory:" for an in-memory database.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(1)

	store := &Store{queries: &queries{db: db}, db: db}
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

// Ping checks the database connection.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// migrate creates the database schema.
func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS users (
		id TEXT PRIMARY KEY,
		email TEXT NOT NULL,
		name TEXT NOT NULL,
		community TEXT NOT NULL DEFAULT '',
		role TEXT NOT NULL DEFAULT 'resident'
			CHECK (role IN ('resident', 'admin', 'supadmin')),
		active INTEGER NOT NULL DEFAULT 1,
		first_login_at TEXT,
		created_at TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS balances (
		user_id TEXT PRIMARY KEY REFERENCES users(id),
		created_at TEXT NOT NULL
	);

	-- Transactions (append-only ledger)
	CREATE TABLE IF NOT EXISTS transactions (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		user_id TEXT NOT NULL REFERENCES users(id),
		amount INTEGER NOT NULL,
		tx_type TEXT NOT NULL
			CHECK (tx_type IN ('signup_bonus', 'report_resolved', 'redemption_approved', 'redemption_rejected')),
		status TEXT NOT NULL
			CHECK (status IN ('pending', 'completed', 'failed')),
		related_report_id TEXT,
		processed_by TEXT,
		description TEXT NOT NULL DEFAULT '',
		created_at TEXT NOT NULL,
		CHECK ((tx_type = 'redemption_approved' AND amount <= 0)
			OR (tx_type <> 'redemption_approved' AND amount >= 0))
	);

	CREATE INDEX IF NOT EXISTS idx_transactions_user
		ON transactions(user_id, id);
	CREATE INDEX IF NOT EXISTS idx_transactions_redemptions
		ON transactions(tx_type, status, created_at);

	-- CRITICAL: bonus idempotency is enforced by the database, not by reads
	CREATE UNIQUE INDEX IF NOT EXISTS idx_unique_signup_bonus
		ON transactions(user_id)
		WHERE tx_type = 'signup_bonus';
	CREATE UNIQUE INDEX IF NOT EXISTS idx_unique_report_award
		ON transactions(user_id, related_report_id, tx_type)
		WHERE related_report_id IS NOT NULL;

	CREATE TRIGGER IF NOT EXISTS trg_transactions_no_delete
	BEFORE DELETE ON transactions
	BEGIN
		SELECT RAISE(ABORT, 'transactions are append-only');
	END;

	CREATE TRIGGER IF NOT EXISTS trg_transactions_immutable
	BEFORE UPDATE OF user_id, amount, tx_type ON transactions
	BEGIN
		SELECT RAISE(ABORT, 'transaction amount, type and owner are immutable');
	END;

	CREATE TRIGGER IF NOT EXISTS trg_transactions_status_once
	BEFORE UPDATE OF status ON transactions
	WHEN OLD.status <> 'pending'
	BEGIN
		SELECT RAISE(ABORT, 'only pending transactions may change status');
	END;

	CREATE TABLE IF NOT EXISTS redemption_decisions (
		id TEXT PRIMARY KEY,
		transaction_id INTEGER NOT NULL REFERENCES transactions(id),
		actor_id TEXT NOT NULL,
		action TEXT NOT NULL CHECK (action IN ('approve', 'reject')),
		notes TEXT NOT NULL DEFAULT '',
		decided_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_redemption_decisions_tx
		ON redemption_decisions(transaction_id);
	`

	_, err := s.db.Exec(schema)
	return err
}

// =============================================================================
// TRANSACTIONAL STORE (ledger.TxStore interface)
// =============================================================================

// WithTx executes a function within a database transaction.
func (s *Store) WithTx(ctx context.Context, fn func(store ledger.Store) error) error {
	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer sqlTx.Rollback()

	if err := fn(&queries{db: sqlTx}); err != nil {
		return err
	}

	return sqlTx.Commit()
}

// dbtx is satisfied by both *sql.DB and *sql.Tx.
type dbtx interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// queries implements ledger.Store over either the pool or an open transaction.
type queries struct {
	db dbtx
}

// =============================================================================
// USER STORE
// =============================================================================

const userColumns = `id, email, name, community, role, active, first_login_at, created_at`

func (q *queries) GetUser(ctx context.Context, id ledger.UserID) (*ledger.User, error) {
	row := q.db.QueryRowContext(ctx, "SELECT "+userColumns+" FROM users WHERE id = ?", id)
	u, err := scanUser(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &u, nil
}

func (q *queries) SaveUser(ctx context.Context, u ledger.User) error {
	query := `
		INSERT INTO users (id, email, name, community, role, active, first_login_at, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			email = excluded.email,
			name = excluded.name,
			community = excluded.community,
			role = excluded.role,
			active = excluded.active
	`
	createdAt := u.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}

	_, err := q.db.ExecContext(ctx, query,
		u.ID, u.Email, u.Name, u.Community, u.Role, u.Active,
		nullTime(u.FirstLoginAt), formatTime(createdAt),
	)
	return err
}

func (q *queries) MarkFirstLogin(ctx context.Context, id ledger.UserID, at time.Time) (bool, error) {
	res, err := q.db.ExecContext(ctx,
		"UPDATE users SET first_login_at = ? WHERE id = ? AND first_login_at IS NULL",
		formatTime(at), id,
	)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n == 1, err
}

// LockUser is a no-op: the single connection already serializes writers.
func (q *queries) LockUser(context.Context, ledger.UserID) error { return nil }

func (q *queries) EnsureBaseline(ctx context.Context, id ledger.UserID) error {
	_, err := q.db.ExecContext(ctx,
		"INSERT INTO balances (user_id, created_at) VALUES (?, ?) ON CONFLICT(user_id) DO NOTHING",
		id, formatTime(time.Now()),
	)
	return err
}

func (q *queries) HasBaseline(ctx context.Context, id ledger.UserID) (bool, error) {
	var exists bool
	err := q.db.QueryRowContext(ctx,
		"SELECT EXISTS(SELECT 1 FROM balances WHERE user_id = ?)", id,
	).Scan(&exists)
	return exists, err
}

// =============================================================================
// TRANSACTION STORE
// =============================================================================

const txColumns = `id, user_id, amount, tx_type, status, related_report_id, processed_by, description, created_at`

// Append adds a transaction to the ledger.
func (q *queries) Append(ctx context.Context, tx ledger.Transaction) (ledger.Transaction, error) {
	if tx.CreatedAt.IsZero() {
		tx.CreatedAt = time.Now()
	}
	tx.CreatedAt = tx.CreatedAt.UTC()

	query := `
		INSERT INTO transactions
		(user_id, amount, tx_type, status, related_report_id, processed_by, description, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`

	res, err := q.db.ExecContext(ctx, query,
		tx.UserID,
		int64(tx.Amount),
		tx.Type,
		tx.Status,
		nullString(tx.RelatedReportID),
		nullString(string(tx.ProcessedBy)),
		tx.Description,
		formatTime(tx.CreatedAt),
	)
	if err != nil {
		if isUniqueConstraintError(err) {
			return ledger.Transaction{}, ledger.ErrDuplicateAward
		}
		return ledger.Transaction{}, fmt.Errorf("failed to append transaction: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return ledger.Transaction{}, fmt.Errorf("failed to read transaction id: %w", err)
	}
	tx.ID = ledger.TransactionID(id)
	return tx, nil
}

func (q *queries) GetTransaction(ctx context.Context, id ledger.TransactionID) (*ledger.Transaction, error) {
	row := q.db.QueryRowContext(ctx, "SELECT "+txColumns+" FROM transactions WHERE id = ?", id)
	tx, err := scanTransaction(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &tx, nil
}

func (q *queries) LoadByUser(ctx context.Context, userID ledger.UserID) ([]ledger.Transaction, error) {
	return q.queryTransactions(ctx,
		"SELECT "+txColumns+" FROM transactions WHERE user_id = ? ORDER BY id ASC", userID)
}

func (q *queries) ListByUser(ctx context.Context, userID ledger.UserID, page ledger.Page) ([]ledger.Transaction, int, error) {
	var total int
	if err := q.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM transactions WHERE user_id = ?", userID,
	).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count transactions: %w", err)
	}

	txs, err := q.queryTransactions(ctx,
		"SELECT "+txColumns+" FROM transactions WHERE user_id = ? ORDER BY id DESC LIMIT ? OFFSET ?",
		userID, page.Limit, page.Offset)
	return txs, total, err
}

func (q *queries) FindReportAward(ctx context.Context, userID ledger.UserID, reportID string) (*ledger.Transaction, error) {
	row := q.db.QueryRowContext(ctx,
		"SELECT "+txColumns+" FROM transactions WHERE user_id = ? AND related_report_id = ? AND tx_type = ?",
		userID, reportID, ledger.TxReportResolved)
	tx, err := scanTransaction(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &tx, nil
}

func (q *queries) SumRedemptions(ctx context.Context, userID ledger.UserID, statuses []ledger.Status, from, to time.Time) (ledger.Points, error) {
	if len(statuses) == 0 {
		return 0, nil
	}
	args := []any{userID, ledger.TxRedemption}
	for _, st := range statuses {
		args = append(args, st)
	}
	args = append(args, formatTime(from), formatTime(to))

	query := fmt.Sprintf(`
		SELECT COALESCE(SUM(-amount), 0) FROM transactions
		WHERE user_id = ? AND tx_type = ? AND status IN (%s)
		  AND created_at >= ? AND created_at < ?
	`, placeholders(len(statuses)))

	var total int64
	if err := q.db.QueryRowContext(ctx, query, args...).Scan(&total); err != nil {
		return 0, fmt.Errorf("failed to sum redemptions: %w", err)
	}
	return ledger.Points(total), nil
}

func (q *queries) UpdateStatus(ctx context.Context, id ledger.TransactionID, from, to ledger.Status, processedBy ledger.UserID) error {
	res, err := q.db.ExecContext(ctx,
		"UPDATE transactions SET status = ?, processed_by = ? WHERE id = ? AND status = ?",
		to, nullString(string(processedBy)), id, from,
	)
	if err != nil {
		return fmt.Errorf("failed to update transaction status: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ledger.ErrConcurrentModification
	}
	return nil
}

func (q *queries) ListRedemptions(ctx context.Context, filter ledger.RedemptionFilter) ([]ledger.RedemptionView, int, error) {
	where := []string{"t.tx_type = ?"}
	args := []any{ledger.TxRedemption}
	if filter.Status != "" {
		where = append(where, "t.status = ?")
		args = append(args, filter.Status)
	}
	if filter.CreatedBefore != nil {
		where = append(where, "t.created_at < ?")
		args = append(args, formatTime(*filter.CreatedBefore))
	}
	clause := strings.Join(where, " AND ")

	var total int
	if err := q.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM transactions t WHERE "+clause, args...,
	).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count redemptions: %w", err)
	}

	query := `
		SELECT t.id, t.user_id, t.amount, t.tx_type, t.status, t.related_report_id,
		       t.processed_by, t.description, t.created_at,
		       COALESCE(u.name, ''), COALESCE(u.email, ''), COALESCE(u.community, '')
		FROM transactions t
		LEFT JOIN users u ON u.id = t.user_id
		WHERE ` + clause + `
		ORDER BY t.id DESC
		LIMIT ? OFFSET ?
	`
	rows, err := q.db.QueryContext(ctx, query, append(args, filter.Page.Limit, filter.Page.Offset)...)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to query redemptions: %w", err)
	}
	defer rows.Close()

	var views []ledger.RedemptionView
	for rows.Next() {
		var v ledger.RedemptionView
		tx, err := scanTransaction(rows, &v.UserName, &v.UserEmail, &v.Community)
		if err != nil {
			return nil, 0, err
		}
		v.Transaction = tx
		views = append(views, v)
	}
	return views, total, rows.Err()
}

func (q *queries) queryTransactions(ctx context.Context, query string, args ...any) ([]ledger.Transaction, error) {
	rows, err := q.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query transactions: %w", err)
	}
	defer rows.Close()

	var transactions []ledger.Transaction
	for rows.Next() {
		tx, err := scanTransaction(rows)
		if err != nil {
			return nil, err
		}
		transactions = append(transactions, tx)
	}

	return transactions, rows.Err()
}

// =============================================================================
// AUDIT LOG
// =============================================================================

func (q *queries) AppendAudit(ctx context.Context, e ledger.AuditEntry) error {
	_, err := q.db.ExecContext(ctx, `
		INSERT INTO redemption_decisions (id, transaction_id, actor_id, action, notes, decided_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`, e.ID, e.TransactionID, e.ActorID, e.Action, e.Notes, formatTime(e.At))
	if err != nil {
		return fmt.Errorf("failed to append decision: %w", err)
	}
	return nil
}

func (q *queries) ListAudit(ctx context.Context, txID ledger.TransactionID) ([]ledger.AuditEntry, error) {
	rows, err := q.db.QueryContext(ctx, `
		SELECT id, transaction_id, actor_id, action, notes, decided_at
		FROM redemption_decisions WHERE transaction_id = ? ORDER BY decided_at ASC
	`, txID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []ledger.AuditEntry
	for rows.Next() {
		var (
			e  ledger.AuditEntry
			at string
		)
		if err := rows.Scan(&e.ID, &e.TransactionID, &e.ActorID, &e.Action, &e.Notes, &at); err != nil {
			return nil, err
		}
		e.At = parseTime(at)
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// =============================================================================
// SCANNING
// =============================================================================

type scanner interface {
	Scan(dest ...any) error
}

func scanUser(row scanner) (ledger.User, error) {
	var (
		u            ledger.User
		firstLoginAt sql.NullString
		createdAt    string
	)
	err := row.Scan(&u.ID, &u.Email, &u.Name, &u.Community, &u.Role, &u.Active, &firstLoginAt, &createdAt)
	if err != nil {
		return u, err
	}
	if firstLoginAt.Valid {
		t := parseTime(firstLoginAt.String)
		u.FirstLoginAt = &t
	}
	u.CreatedAt = parseTime(createdAt)
	return u, nil
}

// scanTransaction reads txColumns followed by any extra destinations.
func scanTransaction(row scanner, extra ...any) (ledger.Transaction, error) {
	var (
		tx          ledger.Transaction
		amount      int64
		reportID    sql.NullString
		processedBy sql.NullString
		createdAt   string
	)

	dest := append([]any{
		&tx.ID, &tx.UserID, &amount, &tx.Type, &tx.Status,
		&reportID, &processedBy, &tx.Description, &createdAt,
	}, extra...)
	if err := row.Scan(dest...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return tx, sql.ErrNoRows
		}
		return tx, fmt.Errorf("failed to scan transaction: %w", err)
	}

	tx.Amount = ledger.Points(amount)
	tx.RelatedReportID = reportID.String
	tx.ProcessedBy = ledger.UserID(processedBy.String)
	tx.CreatedAt = parseTime(createdAt)
	return tx, nil
}

// Helper functions

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) time.Time {
	t, _ := time.Parse(timeLayout, s)
	return t.UTC()
}

func nullTime(t *time.Time) sql.NullString {
	if t == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: formatTime(*t), Valid: true}
}

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?, ", n), ", ")
}

func isUniqueConstraintError(err error) bool {
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		return sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique
	}
	return false
}
