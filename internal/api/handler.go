package api

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"regexp"
	"time"

	"yellowsdk/internal/archive"
	"yellowsdk/internal/logging"
	"yellowsdk/internal/merchant"
	"yellowsdk/internal/store"
	"yellowsdk/yellow"
)

var validInvoiceIDPattern = regexp.MustCompile(`^[a-zA-Z0-9_-]+$`)

// maxCreateBodySize bounds POST /api/invoices bodies.
const maxCreateBodySize = 64 << 10

// IPNConfig is what the notification endpoint verifies against.
type IPNConfig struct {
	Secret      string
	CallbackURL string // exact URL registered as the invoice callback
}

// Handler handles HTTP requests.
type Handler struct {
	invoices       *merchant.Service
	archive        archive.Storage
	ipn            IPNConfig
	pendingLimiter *PendingInvoiceLimiter
	mux            *http.ServeMux
}

// NewHandler creates a new HTTP handler.
// If pendingLimiter is nil, no pending invoice limit is enforced. If archiver is
// nil, notification payloads are not archived.
func NewHandler(invoices *merchant.Service, archiver archive.Storage, ipn IPNConfig, pendingLimiter *PendingInvoiceLimiter) *Handler {
	h := &Handler{
		invoices:       invoices,
		archive:        archiver,
		ipn:            ipn,
		pendingLimiter: pendingLimiter,
		mux:            http.NewServeMux(),
	}
	h.registerRoutes()
	return h
}

func (h *Handler) registerRoutes() {
	h.mux.HandleFunc("POST /api/invoices", h.handleCreateInvoice)
	h.mux.HandleFunc("GET /api/invoices/{id}", h.handleGetInvoice)
	h.mux.HandleFunc("POST /api/ipn", h.handleIPN)
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.mux.ServeHTTP(w, r)
}

func isValidInvoiceID(id string) bool {
	return id != "" && len(id) <= 64 && validInvoiceIDPattern.MatchString(id)
}

// InvoiceResponse is the JSON view of a stored invoice.
type InvoiceResponse struct {
	ID        string    `json:"id"`
	Status    string    `json:"status"`
	BaseCcy   string    `json:"base_ccy"`
	BasePrice string    `json:"base_price"`
	Order     string    `json:"order,omitempty"`
	URL       string    `json:"url,omitempty"`
	Address   string    `json:"address,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func invoiceResponse(rec *store.InvoiceRecord) InvoiceResponse {
	return InvoiceResponse{
		ID:        rec.ID,
		Status:    rec.Status,
		BaseCcy:   rec.BaseCcy,
		BasePrice: rec.BasePrice,
		Order:     rec.Order,
		URL:       rec.URL,
		Address:   rec.Address,
		CreatedAt: rec.CreatedAt,
		UpdatedAt: rec.UpdatedAt,
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logging.Internal.Printf("failed to encode response: %v", err)
	}
}

// upstreamError maps an SDK error to a response. Validation errors reported by
// the invoice API are passed through as 400 so the caller can fix the request.
func upstreamError(w http.ResponseWriter, err error) {
	var apiErr *yellow.APIError
	var reqErr *yellow.RequestError
	switch {
	case errors.As(err, &apiErr) && apiErr.StatusCode >= 400 && apiErr.StatusCode < 500:
		if apiErr.StatusCode == http.StatusNotFound {
			http.Error(w, "invoice not found upstream", http.StatusNotFound)
			return
		}
		http.Error(w, apiErr.Message, http.StatusBadRequest)
	case errors.As(err, &apiErr), errors.As(err, &reqErr):
		http.Error(w, "invoice service unavailable", http.StatusBadGateway)
	default:
		http.Error(w, "internal error", http.StatusInternalServerError)
	}
}

func (h *Handler) handleCreateInvoice(w http.ResponseWriter, r *http.Request) {
	ip := extractIP(r)

	if h.pendingLimiter != nil && !h.pendingLimiter.CanCreate(ip) {
		msg := fmt.Sprintf("pending invoice limit reached: you have %d unpaid invoice(s) (max %d)",
			h.pendingLimiter.PendingCount(ip), h.pendingLimiter.MaxPending())
		http.Error(w, msg, http.StatusTooManyRequests)
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, maxCreateBodySize)
	var fields yellow.Fields
	if err := json.NewDecoder(r.Body).Decode(&fields); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if _, ok := fields.Get(yellow.FieldCallback); !ok && h.ipn.CallbackURL != "" {
		fields.Set(yellow.FieldCallback, h.ipn.CallbackURL)
	}

	rec, err := h.invoices.CreateInvoice(r.Context(), &fields)
	if errors.Is(err, merchant.ErrInvalidPrice) {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if err != nil {
		logging.Internal.Printf("failed to create invoice: %v", err)
		upstreamError(w, err)
		return
	}

	if h.pendingLimiter != nil && ip != "" && !store.IsFinal(rec.Status) {
		h.pendingLimiter.TrackPendingInvoice(ip, rec.ID)
	}

	writeJSON(w, http.StatusCreated, invoiceResponse(rec))
}

// handleGetInvoice returns the stored invoice. With ?refresh=1 the status is
// re-read from the invoice API first.
func (h *Handler) handleGetInvoice(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if !isValidInvoiceID(id) {
		http.Error(w, "invalid invoice id", http.StatusBadRequest)
		return
	}

	var rec *store.InvoiceRecord
	var err error
	if r.URL.Query().Get("refresh") == "1" {
		rec, err = h.invoices.Refresh(r.Context(), id)
	} else {
		rec, err = h.invoices.GetInvoice(r.Context(), id)
	}
	if errors.Is(err, merchant.ErrInvoiceNotFound) {
		http.Error(w, "invoice not found", http.StatusNotFound)
		return
	}
	if err != nil {
		logging.Internal.Printf("failed to get invoice %s: %v", id, err)
		upstreamError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, invoiceResponse(rec))
}

func (h *Handler) handleIPN(w http.ResponseWriter, r *http.Request) {
	n, err := yellow.ParseIPN(r)
	if err != nil {
		logging.IPN.Printf("rejected notification from %s: %v", extractIP(r), err)
		http.Error(w, "invalid notification", http.StatusBadRequest)
		return
	}

	if !n.Verify(h.ipn.Secret, h.ipn.CallbackURL) {
		logging.IPN.Printf("bad signature from %s (nonce %s)", extractIP(r), n.Nonce)
		http.Error(w, "invalid signature", http.StatusUnauthorized)
		return
	}

	archiveID := ""
	if h.archive != nil {
		id := archive.NewID()
		if _, err := h.archive.Save(r.Context(), id, bytes.NewReader(n.Body)); err != nil {
			// The ledger update matters more than the raw copy.
			logging.IPN.Printf("failed to archive notification: %v", err)
		} else {
			archiveID = id
		}
	}

	rec, err := h.invoices.ApplyNotification(r.Context(), n, archiveID)
	if err != nil && archiveID != "" {
		// Nothing in the ledger points at this copy.
		if derr := h.archive.Delete(r.Context(), archiveID); derr != nil {
			logging.IPN.Printf("failed to remove archived notification %s: %v", archiveID, derr)
		}
	}
	if errors.Is(err, store.ErrDuplicateNotification) {
		http.Error(w, "notification already processed", http.StatusConflict)
		return
	}
	if errors.Is(err, merchant.ErrMalformedNotification) {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if err != nil {
		logging.IPN.Printf("failed to apply notification: %v", err)
		http.Error(w, "failed to process notification", http.StatusInternalServerError)
		return
	}

	logging.IPN.Printf("invoice %s is %s", rec.ID, rec.Status)
	w.WriteHeader(http.StatusOK)
}
