package store

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/mattn/go-sqlite3"

	"yellowsdk/internal/logging"
)

var (
	ErrNotFound              = errors.New("not found")
	ErrDuplicateNotification = errors.New("notification already recorded")
)

// SQLiteStore implements Store using SQLite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore creates a new SQLite-backed store.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, err
	}
	// A single connection keeps ":memory:" databases shared and serialises writers.
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		return nil, err
	}

	if err := migrate(db); err != nil {
		return nil, err
	}

	return &SQLiteStore{db: db}, nil
}

func migrate(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS invoices (
			id TEXT PRIMARY KEY,
			base_ccy TEXT NOT NULL DEFAULT '',
			base_price TEXT NOT NULL DEFAULT '',
			order_id TEXT NOT NULL DEFAULT '',
			status TEXT NOT NULL,
			url TEXT NOT NULL DEFAULT '',
			address TEXT NOT NULL DEFAULT '',
			raw BLOB,
			created_at DATETIME NOT NULL,
			updated_at DATETIME NOT NULL
		)
	`)
	if err != nil {
		return err
	}

	_, err = db.Exec(`
		CREATE TABLE IF NOT EXISTS notifications (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			invoice_id TEXT NOT NULL,
			nonce TEXT NOT NULL,
			signature TEXT NOT NULL,
			status TEXT NOT NULL DEFAULT '',
			archive_key TEXT NOT NULL DEFAULT '',
			received_at DATETIME NOT NULL,
			UNIQUE (nonce, signature)
		)
	`)
	if err != nil {
		return err
	}

	_, err = db.Exec(`CREATE INDEX IF NOT EXISTS idx_notifications_invoice ON notifications (invoice_id)`)
	return err
}

// execer is satisfied by both *sql.DB and *sql.Tx.
type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// SaveInvoice inserts inv or replaces the stored record with the same ID,
// keeping the original creation time.
func (s *SQLiteStore) SaveInvoice(ctx context.Context, inv *InvoiceRecord) error {
	return saveInvoice(ctx, s.db, inv)
}

func saveInvoice(ctx context.Context, ex execer, inv *InvoiceRecord) error {
	now := time.Now().UTC()
	if inv.CreatedAt.IsZero() {
		inv.CreatedAt = now
	}
	inv.UpdatedAt = now

	_, err := ex.ExecContext(ctx, `
		INSERT INTO invoices (id, base_ccy, base_price, order_id, status, url, address, raw, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			base_ccy = excluded.base_ccy,
			base_price = excluded.base_price,
			order_id = excluded.order_id,
			status = excluded.status,
			url = excluded.url,
			address = excluded.address,
			raw = excluded.raw,
			updated_at = excluded.updated_at
	`, inv.ID, inv.BaseCcy, inv.BasePrice, inv.Order, inv.Status, inv.URL, inv.Address, inv.Raw,
		inv.CreatedAt.UTC(), inv.UpdatedAt)
	return err
}

const invoiceColumns = `id, base_ccy, base_price, order_id, status, url, address, raw, created_at, updated_at`

type scanner interface {
	Scan(dest ...any) error
}

func scanInvoice(row scanner) (*InvoiceRecord, error) {
	var inv InvoiceRecord
	err := row.Scan(&inv.ID, &inv.BaseCcy, &inv.BasePrice, &inv.Order, &inv.Status,
		&inv.URL, &inv.Address, &inv.Raw, &inv.CreatedAt, &inv.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &inv, nil
}

func (s *SQLiteStore) GetInvoice(ctx context.Context, id string) (*InvoiceRecord, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+invoiceColumns+` FROM invoices WHERE id = ?`, id)

	inv, err := scanInvoice(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return inv, nil
}

// UpdateInvoiceStatus sets the status of a stored invoice and returns the
// status it had before. An empty status keeps the stored one and a nil raw
// keeps the previously stored payload.
func (s *SQLiteStore) UpdateInvoiceStatus(ctx context.Context, id, status string, raw []byte) (string, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return "", err
	}
	defer tx.Rollback()

	var prev string
	err = tx.QueryRowContext(ctx, `SELECT status FROM invoices WHERE id = ?`, id).Scan(&prev)
	if errors.Is(err, sql.ErrNoRows) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", err
	}

	if err := updateStatus(ctx, tx, id, status, raw, time.Now().UTC()); err != nil {
		return "", err
	}
	return prev, tx.Commit()
}

func updateStatus(ctx context.Context, ex execer, id, status string, raw []byte, now time.Time) error {
	var rawArg any
	if raw != nil {
		rawArg = raw
	}
	_, err := ex.ExecContext(ctx, `
		UPDATE invoices
		SET status = COALESCE(NULLIF(?, ''), status), raw = COALESCE(?, raw), updated_at = ?
		WHERE id = ?
	`, status, rawArg, now, id)
	return err
}

// ListOpenInvoices returns invoices whose status is not final, oldest first.
func (s *SQLiteStore) ListOpenInvoices(ctx context.Context) ([]*InvoiceRecord, error) {
	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(finalStatuses)), ",")
	args := make([]any, len(finalStatuses))
	for i, st := range finalStatuses {
		args[i] = st
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT `+invoiceColumns+`
		FROM invoices WHERE status NOT IN (`+placeholders+`)
		ORDER BY created_at
	`, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var invoices []*InvoiceRecord
	for rows.Next() {
		inv, err := scanInvoice(rows)
		if err != nil {
			return nil, err
		}
		invoices = append(invoices, inv)
	}
	return invoices, rows.Err()
}

// ApplyNotification records an accepted IPN and moves its invoice to n.Status
// in one transaction. When the invoice is not stored yet, adopt is inserted in
// its place; with a nil adopt the call fails with ErrNotFound. It returns the
// invoice as stored afterwards and its status before the notification, which
// is empty for an adopted invoice.
//
// A second delivery with the same nonce and signature returns
// ErrDuplicateNotification. On any error nothing is recorded, so the sender
// can redeliver.
func (s *SQLiteStore) ApplyNotification(ctx context.Context, n *Notification, adopt *InvoiceRecord, raw []byte) (*InvoiceRecord, string, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, "", err
	}
	defer tx.Rollback()

	if err := insertNotification(ctx, tx, n); err != nil {
		return nil, "", err
	}

	row := tx.QueryRowContext(ctx, `SELECT `+invoiceColumns+` FROM invoices WHERE id = ?`, n.InvoiceID)
	inv, err := scanInvoice(row)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		if adopt == nil {
			return nil, "", ErrNotFound
		}
		if err := saveInvoice(ctx, tx, adopt); err != nil {
			return nil, "", err
		}
		if err := tx.Commit(); err != nil {
			return nil, "", err
		}
		return adopt, "", nil
	case err != nil:
		return nil, "", err
	}

	prev := inv.Status
	if n.Status != "" && n.Status != prev {
		now := time.Now().UTC()
		if err := updateStatus(ctx, tx, inv.ID, n.Status, raw, now); err != nil {
			return nil, "", err
		}
		inv.Status = n.Status
		if raw != nil {
			inv.Raw = raw
		}
		inv.UpdatedAt = now
	}
	if err := tx.Commit(); err != nil {
		return nil, "", err
	}
	return inv, prev, nil
}

func insertNotification(ctx context.Context, ex execer, n *Notification) error {
	if n.ReceivedAt.IsZero() {
		n.ReceivedAt = time.Now().UTC()
	}

	_, err := ex.ExecContext(ctx, `
		INSERT INTO notifications (invoice_id, nonce, signature, status, archive_key, received_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`, n.InvoiceID, n.Nonce, n.Signature, n.Status, n.ArchiveKey, n.ReceivedAt.UTC())

	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) && sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique {
		logging.Store.Printf("duplicate notification for invoice %s (nonce %s)", n.InvoiceID, n.Nonce)
		return ErrDuplicateNotification
	}
	return err
}

func (s *SQLiteStore) GetStats(ctx context.Context) (*Stats, error) {
	stats := &Stats{}

	row := s.db.QueryRowContext(ctx, `
		SELECT
			COUNT(*) as total,
			COALESCE(SUM(CASE WHEN status = ? THEN 1 ELSE 0 END), 0) as paid_count,
			COALESCE(SUM(CASE WHEN status = ? THEN 1 ELSE 0 END), 0) as expired_count,
			COALESCE(SUM(CASE WHEN status NOT IN (?, ?, ?) THEN 1 ELSE 0 END), 0) as open_count,
			COALESCE(MIN(created_at), '') as oldest,
			COALESCE(MAX(created_at), '') as newest
		FROM invoices
	`, StatusPaid, StatusExpired, StatusPaid, StatusExpired, StatusRefundPaid)

	var oldest, newest string
	err := row.Scan(
		&stats.TotalInvoices,
		&stats.PaidInvoices,
		&stats.ExpiredInvoices,
		&stats.OpenInvoices,
		&oldest,
		&newest,
	)
	if err != nil {
		return nil, err
	}

	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM notifications`).Scan(&stats.Notifications); err != nil {
		return nil, err
	}

	stats.OldestInvoice = parseSQLiteTime(oldest)
	stats.NewestInvoice = parseSQLiteTime(newest)

	return stats, nil
}

func parseSQLiteTime(v string) time.Time {
	if v == "" {
		return time.Time{}
	}
	for _, layout := range []string{"2006-01-02 15:04:05-07:00", "2006-01-02T15:04:05Z", "2006-01-02 15:04:05"} {
		if t, err := time.Parse(layout, v); err == nil {
			return t
		}
	}
	return time.Time{}
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
