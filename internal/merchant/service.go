// Package merchant keeps the merchant's ledger in step with the invoice API:
// invoices it creates, notifications it receives and periodic re-checks of
// invoices that have not settled yet.
package merchant

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"yellowsdk/internal/logging"
	"yellowsdk/internal/store"
	"yellowsdk/yellow"
)

var (
	ErrInvoiceNotFound       = errors.New("invoice not found")
	ErrInvalidPrice          = errors.New("base_price must be a positive decimal")
	ErrMalformedNotification = errors.New("malformed notification payload")
)

// InvoiceAPI is the part of *yellow.Client the service drives.
type InvoiceAPI interface {
	CreateInvoice(ctx context.Context, fields *yellow.Fields) (yellow.Invoice, error)
	QueryInvoice(ctx context.Context, invoiceID string) (yellow.Invoice, error)
}

// PaymentCallback is called once when an invoice transitions to paid.
type PaymentCallback func(invoiceID string)

// Service handles invoice bookkeeping.
type Service struct {
	api   InvoiceAPI
	store store.Store

	mu        sync.RWMutex
	onPayment PaymentCallback // optional callback when payment received
}

// NewService creates a new merchant service.
func NewService(api InvoiceAPI, st store.Store) *Service {
	return &Service{
		api:   api,
		store: st,
	}
}

// SetPaymentCallback sets a callback function that will be called when an
// invoice is paid. This allows external components (like the pending invoice
// limiter) to be notified of payments.
func (s *Service) SetPaymentCallback(cb PaymentCallback) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onPayment = cb
}

// CreateInvoice normalises base_price, creates the invoice through the API and
// records it. fields is not modified. Errors from the API are returned as-is
// so callers can still tell *yellow.RequestError from *yellow.APIError.
func (s *Service) CreateInvoice(ctx context.Context, fields *yellow.Fields) (*store.InvoiceRecord, error) {
	req := fields.Clone()
	if v, ok := req.Get(yellow.FieldBasePrice); ok {
		price, err := normalizePrice(v)
		if err != nil {
			return nil, err
		}
		req.Set(yellow.FieldBasePrice, price)
	}

	inv, err := s.api.CreateInvoice(ctx, req)
	if err != nil {
		return nil, err
	}
	if inv.ID() == "" {
		return nil, fmt.Errorf("create invoice: response has no id")
	}

	rec, err := recordFromInvoice(inv)
	if err != nil {
		return nil, err
	}
	if rec.Order == "" {
		rec.Order = fieldString(req, yellow.FieldOrder)
	}
	if err := s.store.SaveInvoice(ctx, rec); err != nil {
		logging.Internal.Printf("CRITICAL: invoice %s created upstream but not recorded: %v", rec.ID, err)
		return nil, err
	}

	logging.Internal.Printf("invoice %s created: %s %s (status %s)", rec.ID, rec.BasePrice, rec.BaseCcy, rec.Status)
	return rec, nil
}

// GetInvoice returns the stored copy of an invoice.
func (s *Service) GetInvoice(ctx context.Context, id string) (*store.InvoiceRecord, error) {
	rec, err := s.store.GetInvoice(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		return nil, ErrInvoiceNotFound
	}
	return rec, err
}

// Refresh queries the API for id and stores the returned status.
func (s *Service) Refresh(ctx context.Context, id string) (*store.InvoiceRecord, error) {
	rec, err := s.GetInvoice(ctx, id)
	if err != nil {
		return nil, err
	}

	inv, err := s.api.QueryInvoice(ctx, id)
	if err != nil {
		return nil, err
	}

	raw, err := json.Marshal(inv)
	if err != nil {
		return nil, err
	}
	prev, err := s.store.UpdateInvoiceStatus(ctx, id, inv.Status(), raw)
	if errors.Is(err, store.ErrNotFound) {
		return nil, ErrInvoiceNotFound
	}
	if err != nil {
		return nil, err
	}

	status := inv.Status()
	if status == "" {
		status = prev
	}
	if status != prev {
		logging.Internal.Printf("invoice %s: %s -> %s", id, prev, status)
		s.statusChanged(id, prev, status)
	}
	rec.Status = status
	rec.Raw = raw
	return rec, nil
}

// ApplyNotification records a verified IPN and applies the status it carries.
// The caller must have verified the signature. Recording the delivery and
// updating the invoice happen together: a redelivered notification returns
// store.ErrDuplicateNotification and changes nothing, and a failed one leaves
// no trace so the sender's retry is applied.
func (s *Service) ApplyNotification(ctx context.Context, n *yellow.IPN, archiveID string) (*store.InvoiceRecord, error) {
	var inv yellow.Invoice
	if err := json.Unmarshal(n.Body, &inv); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedNotification, err)
	}
	id := inv.ID()
	if id == "" {
		return nil, fmt.Errorf("%w: no invoice id", ErrMalformedNotification)
	}

	// Used only if the invoice was created outside this service.
	adopt, err := recordFromInvoice(inv)
	if err != nil {
		return nil, err
	}

	rec, prev, err := s.store.ApplyNotification(ctx, &store.Notification{
		InvoiceID:  id,
		Nonce:      n.Nonce,
		Signature:  n.Signature,
		Status:     inv.Status(),
		ArchiveKey: archiveID,
	}, adopt, n.Body)
	if err != nil {
		return nil, err
	}

	switch {
	case prev == "":
		logging.IPN.Printf("adopted unknown invoice %s (status %s)", id, rec.Status)
	case prev != rec.Status:
		logging.IPN.Printf("invoice %s: %s -> %s", id, prev, rec.Status)
	}
	s.statusChanged(id, prev, rec.Status)
	return rec, nil
}

// ReconcileOnce refreshes every open invoice and returns how many changed
// status. Failures on individual invoices are logged and skipped.
func (s *Service) ReconcileOnce(ctx context.Context) (int, error) {
	open, err := s.store.ListOpenInvoices(ctx)
	if err != nil {
		return 0, err
	}

	changed := 0
	for _, rec := range open {
		if ctx.Err() != nil {
			return changed, ctx.Err()
		}
		updated, err := s.Refresh(ctx, rec.ID)
		if err != nil {
			logging.Internal.Printf("reconcile: invoice %s: %v", rec.ID, err)
			continue
		}
		if updated.Status != rec.Status {
			changed++
		}
	}
	return changed, nil
}

// StartReconciler refreshes open invoices every interval until ctx is done.
func (s *Service) StartReconciler(ctx context.Context, interval time.Duration) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				count, err := s.ReconcileOnce(ctx)
				if err != nil {
					logging.Internal.Printf("reconcile error: %v", err)
				} else if count > 0 {
					logging.Internal.Printf("reconciled %d invoices", count)
				}
			}
		}
	}()
}

func (s *Service) statusChanged(id, from, to string) {
	if to != store.StatusPaid || from == store.StatusPaid {
		return
	}

	s.mu.RLock()
	cb := s.onPayment
	s.mu.RUnlock()
	if cb == nil {
		return
	}

	defer func() {
		if r := recover(); r != nil {
			logging.Internal.Printf("payment callback panic for invoice %s: %v", id, r)
		}
	}()
	cb(id)
}

func recordFromInvoice(inv yellow.Invoice) (*store.InvoiceRecord, error) {
	raw, err := json.Marshal(inv)
	if err != nil {
		return nil, err
	}
	status := inv.Status()
	if status == "" {
		status = store.StatusNew
	}
	return &store.InvoiceRecord{
		ID:        inv.ID(),
		BaseCcy:   inv.Field("base_ccy"),
		BasePrice: inv.Field("base_price"),
		Order:     inv.Field("order"),
		Status:    status,
		URL:       inv.Field("url"),
		Address:   inv.Field("address"),
		Raw:       raw,
	}, nil
}

// normalizePrice accepts a string or number and returns its canonical decimal
// form, e.g. "0.10" -> "0.1".
func normalizePrice(v any) (string, error) {
	var d decimal.Decimal
	var err error
	switch p := v.(type) {
	case string:
		d, err = decimal.NewFromString(p)
	case json.Number:
		d, err = decimal.NewFromString(p.String())
	case int:
		d = decimal.NewFromInt(int64(p))
	case int64:
		d = decimal.NewFromInt(p)
	case float64:
		d = decimal.NewFromFloat(p)
	case decimal.Decimal:
		d = p
	default:
		return "", ErrInvalidPrice
	}
	if err != nil || !d.IsPositive() {
		return "", ErrInvalidPrice
	}
	return d.String(), nil
}

func fieldString(f *yellow.Fields, key string) string {
	v, ok := f.Get(key)
	if !ok || v == nil {
		return ""
	}
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprint(v)
}
