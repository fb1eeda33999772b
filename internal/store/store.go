package store

import (
	"context"
	"time"
)

// Invoice statuses reported by the API. A status outside finalStatuses may
// still change and is re-checked by the reconciler.
const (
	StatusNew         = "new"
	StatusAuthorizing = "authorizing"
	StatusPaid        = "paid"
	StatusExpired     = "expired"
	StatusRefundOwed  = "refund_owed"
	StatusRefundPaid  = "refund_paid"
)

var finalStatuses = []string{StatusPaid, StatusExpired, StatusRefundPaid}

// IsFinal reports whether an invoice in status can no longer change.
func IsFinal(status string) bool {
	for _, s := range finalStatuses {
		if s == status {
			return true
		}
	}
	return false
}

// InvoiceRecord is the merchant's copy of an invoice created through the API.
type InvoiceRecord struct {
	ID        string
	BaseCcy   string
	BasePrice string
	Order     string
	Status    string
	URL       string // hosted payment page
	Address   string
	Raw       []byte // last payload received from the API
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Notification is one accepted IPN delivery.
type Notification struct {
	InvoiceID  string
	Nonce      string
	Signature  string
	Status     string
	ArchiveKey string // key of the raw payload in archive storage, if archived
	ReceivedAt time.Time
}

// Stats contains aggregate statistics about the ledger.
type Stats struct {
	TotalInvoices   int
	OpenInvoices    int
	PaidInvoices    int
	ExpiredInvoices int
	Notifications   int
	OldestInvoice   time.Time
	NewestInvoice   time.Time
}

// Store defines the interface for invoice persistence.
type Store interface {
	SaveInvoice(ctx context.Context, inv *InvoiceRecord) error
	GetInvoice(ctx context.Context, id string) (*InvoiceRecord, error)
	UpdateInvoiceStatus(ctx context.Context, id, status string, raw []byte) (string, error)
	ListOpenInvoices(ctx context.Context) ([]*InvoiceRecord, error)
	ApplyNotification(ctx context.Context, n *Notification, adopt *InvoiceRecord, raw []byte) (*InvoiceRecord, string, error)
	GetStats(ctx context.Context) (*Stats, error)
	Close() error
}
