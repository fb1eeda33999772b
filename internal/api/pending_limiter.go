package api

import (
	"sync"
	"time"
)

// PendingInvoiceLimiter caps how many unpaid invoices a single IP may hold
// open, so a client cannot make the server mint invoices upstream without end.
type PendingInvoiceLimiter struct {
	mu          sync.RWMutex
	maxPending  int
	pendingByIP map[string]map[string]time.Time // IP -> invoiceID -> tracked time
	invoiceToIP map[string]string
}

// NewPendingInvoiceLimiter creates a limiter allowing maxPending open invoices per IP.
func NewPendingInvoiceLimiter(maxPending int) *PendingInvoiceLimiter {
	return &PendingInvoiceLimiter{
		maxPending:  maxPending,
		pendingByIP: make(map[string]map[string]time.Time),
		invoiceToIP: make(map[string]string),
	}
}

// CanCreate reports whether ip is under its limit.
func (l *PendingInvoiceLimiter) CanCreate(ip string) bool {
	l.mu.RLock()
	defer l.mu.RUnlock()

	return len(l.pendingByIP[ip]) < l.maxPending
}

// PendingCount returns the number of open invoices tracked for ip.
func (l *PendingInvoiceLimiter) PendingCount(ip string) int {
	l.mu.RLock()
	defer l.mu.RUnlock()

	return len(l.pendingByIP[ip])
}

func (l *PendingInvoiceLimiter) MaxPending() int {
	return l.maxPending
}

// TrackPendingInvoice records a newly created invoice against ip.
func (l *PendingInvoiceLimiter) TrackPendingInvoice(ip, invoiceID string) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if prev, ok := l.invoiceToIP[invoiceID]; ok && prev != ip {
		l.untrackLocked(invoiceID)
	}
	if l.pendingByIP[ip] == nil {
		l.pendingByIP[ip] = make(map[string]time.Time)
	}
	l.pendingByIP[ip][invoiceID] = time.Now()
	l.invoiceToIP[invoiceID] = ip
}

// OnPaymentReceived stops tracking invoiceID. It matches
// merchant.PaymentCallback so it can be handed to the service directly.
func (l *PendingInvoiceLimiter) OnPaymentReceived(invoiceID string) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.untrackLocked(invoiceID)
}

func (l *PendingInvoiceLimiter) untrackLocked(invoiceID string) {
	ip, ok := l.invoiceToIP[invoiceID]
	if !ok {
		return
	}

	delete(l.invoiceToIP, invoiceID)
	if invoices := l.pendingByIP[ip]; invoices != nil {
		delete(invoices, invoiceID)
		if len(invoices) == 0 {
			delete(l.pendingByIP, ip)
		}
	}
}

// CleanupExpired drops entries tracked longer than maxAge and returns how many
// were removed. Invoices that expire upstream are never reported as paid, so
// this is what eventually frees their slot.
func (l *PendingInvoiceLimiter) CleanupExpired(maxAge time.Duration) int {
	l.mu.Lock()
	defer l.mu.Unlock()

	cutoff := time.Now().Add(-maxAge)
	removed := 0

	for ip, invoices := range l.pendingByIP {
		for id, trackedAt := range invoices {
			if trackedAt.Before(cutoff) {
				delete(invoices, id)
				delete(l.invoiceToIP, id)
				removed++
			}
		}
		if len(invoices) == 0 {
			delete(l.pendingByIP, ip)
		}
	}

	return removed
}
