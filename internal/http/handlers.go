package http

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/cockroachdb/errors"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	mongoadapter "github.com/robertarktes/activity-bookings/internal/adapters/mongo"
	"github.com/robertarktes/activity-bookings/internal/booking"
	"github.com/robertarktes/activity-bookings/internal/config"
	"github.com/robertarktes/activity-bookings/internal/domain"
	"github.com/robertarktes/activity-bookings/internal/idempotency"
	"github.com/robertarktes/activity-bookings/internal/observability"
)

// IdempotencyStore is the replay cache behind Idempotency-Key
// handling; *idempotency.Idempotency is the production implementation.
type IdempotencyStore interface {
	Get(ctx context.Context, key string) (*idempotency.Response, error)
	Set(ctx context.Context, key string, resp idempotency.Response) error
}

type Handlers struct {
	cfg     *config.Config
	service *booking.Service
	idemp   IdempotencyStore
	audit   *mongoadapter.AuditLogger
	proofs  *mongoadapter.ProofArchive
}

func NewHandlers(cfg *config.Config, service *booking.Service, idemp IdempotencyStore, audit *mongoadapter.AuditLogger, proofs *mongoadapter.ProofArchive) *Handlers {
	return &Handlers{cfg: cfg, service: service, idemp: idemp, audit: audit, proofs: proofs}
}

type errorResponse struct {
	Code      domain.Code `json:"code"`
	Message   string      `json:"message"`
	Remaining *int        `json:"remaining,omitempty"`
	Requested *int        `json:"requested,omitempty"`
}

// writeError maps domain error codes onto HTTP statuses. The UI
// switches on the stable code, never on message text.
func writeError(w http.ResponseWriter, err error) {
	if errors.Is(err, domain.ErrSerializationFailure) {
		writeJSON(w, http.StatusConflict, errorResponse{Code: domain.CodePersistence, Message: "conflict, try again"})
		return
	}

	de, ok := domain.AsError(err)
	if !ok {
		writeJSON(w, http.StatusInternalServerError, errorResponse{Code: domain.CodePersistence, Message: "internal error"})
		return
	}

	resp := errorResponse{Code: de.Code, Message: de.Message}
	var status int
	switch de.Code {
	case domain.CodeValidation, domain.CodeInvalidRole:
		status = http.StatusBadRequest
	case domain.CodeNotFound:
		status = http.StatusNotFound
	case domain.CodeCapacityExceeded, domain.CodeRoleFull:
		status = http.StatusConflict
		resp.Remaining = &de.Remaining
		resp.Requested = &de.Requested
	case domain.CodeIllegalTransition, domain.CodeDuplicateOrderNumber:
		status = http.StatusConflict
	default:
		status = http.StatusInternalServerError
	}
	writeJSON(w, status, resp)
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

type orderItemRequest struct {
	SessionID uuid.UUID `json:"session_id"`
	ChildID   uuid.UUID `json:"child_id,omitempty"`
	ChildName string    `json:"child_name,omitempty"`
	ChildAge  int       `json:"child_age,omitempty"`
	RoleID    string    `json:"role_id,omitempty"`
}

type createOrderRequest struct {
	ParentID      uuid.UUID          `json:"parent_id"`
	Items         []orderItemRequest `json:"items"`
	PaymentMethod string             `json:"payment_method"`
	Notes         string             `json:"notes,omitempty"`
	GroupCode     string             `json:"group_code,omitempty"`
}

type orderResponse struct {
	OrderNumber     string             `json:"order_number"`
	Status          domain.OrderStatus `json:"status"`
	TotalAmount     int64              `json:"total_amount"`
	DiscountAmount  int64              `json:"discount_amount"`
	FinalAmount     int64              `json:"final_amount"`
	PaymentDeadline string             `json:"payment_deadline"`
	Items           int                `json:"items"`
}

func toOrderResponse(o *domain.Order) orderResponse {
	return orderResponse{
		OrderNumber:     o.OrderNumber,
		Status:          o.Status,
		TotalAmount:     o.TotalAmount,
		DiscountAmount:  o.DiscountAmount,
		FinalAmount:     o.FinalAmount,
		PaymentDeadline: o.PaymentDeadline.UTC().Format("2006-01-02T15:04:05Z07:00"),
		Items:           len(o.Items),
	}
}

// withIdempotency replays a stored response for a repeated key, or
// runs fn and stores the outcome.
func (h *Handlers) withIdempotency(w http.ResponseWriter, r *http.Request, fn func() (int, interface{}, error)) {
	key := r.Header.Get("Idempotency-Key")
	existing, err := h.idemp.Get(r.Context(), key)
	if err != nil {
		writeError(w, err)
		return
	}
	if existing != nil {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(existing.Status)
		w.Write(existing.Result)
		return
	}

	status, body, err := fn()
	if err != nil {
		writeError(w, err)
		return
	}
	data, _ := json.Marshal(body)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	w.Write(data)

	// Replay-cache misses only cost a repeated execution, so a failed
	// store must not fail the request that already succeeded.
	if err := h.idemp.Set(r.Context(), key, idempotency.Response{Status: status, Result: data}); err != nil {
		requestLogger(r.Context()).Error("idempotency store failed: ", err)
	}
}

// requestLogger pulls the request-scoped logger the middleware stashed
// in the context, falling back to a process logger.
func requestLogger(ctx context.Context) observability.Logger {
	if l, ok := ctx.Value("logger").(observability.Logger); ok {
		return l
	}
	return observability.NewLogger()
}

func (h *Handlers) CreateOrder(w http.ResponseWriter, r *http.Request) {
	var req createOrderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, domain.NewValidation("invalid request body: %v", err))
		return
	}

	h.withIdempotency(w, r, func() (int, interface{}, error) {
		items := make([]booking.ItemRequest, len(req.Items))
		for i, it := range req.Items {
			items[i] = booking.ItemRequest{
				SessionID: it.SessionID,
				ChildID:   it.ChildID,
				ChildName: it.ChildName,
				ChildAge:  it.ChildAge,
				RoleID:    it.RoleID,
			}
		}
		order, err := h.service.ComposeAndPersistOrder(r.Context(), booking.OrderRequest{
			ParentID:      req.ParentID,
			Items:         items,
			PaymentMethod: req.PaymentMethod,
			Notes:         req.Notes,
			GroupCode:     req.GroupCode,
		})
		if err != nil {
			return 0, nil, err
		}
		return http.StatusCreated, toOrderResponse(order), nil
	})
}

func (h *Handlers) GetOrder(w http.ResponseWriter, r *http.Request) {
	order, err := h.service.GetOrder(r.Context(), chi.URLParam(r, "number"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toOrderResponse(order))
}

func (h *Handlers) SubmitPaymentProof(w http.ResponseWriter, r *http.Request) {
	var req struct {
		ProofURL string `json:"proof_url"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, domain.NewValidation("invalid request body: %v", err))
		return
	}

	order, err := h.service.SubmitPaymentProof(r.Context(), chi.URLParam(r, "number"), req.ProofURL)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toOrderResponse(order))
}

func (h *Handlers) ConfirmPayment(w http.ResponseWriter, r *http.Request) {
	order, err := h.service.ConfirmPayment(r.Context(), chi.URLParam(r, "number"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toOrderResponse(order))
}

func (h *Handlers) CancelOrder(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Reason  string `json:"reason"`
		IsAdmin bool   `json:"is_admin"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, domain.NewValidation("invalid request body: %v", err))
		return
	}

	order, err := h.service.CancelOrder(r.Context(), chi.URLParam(r, "number"), req.Reason, req.IsAdmin)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toOrderResponse(order))
}

// ListPaymentProofs returns every archived proof submission for an
// order, superseded ones included, for bank-transfer reconciliation.
func (h *Handlers) ListPaymentProofs(w http.ResponseWriter, r *http.Request) {
	number := chi.URLParam(r, "number")
	if _, err := h.service.GetOrder(r.Context(), number); err != nil {
		writeError(w, err)
		return
	}

	docs, err := h.proofs.ListByOrder(r.Context(), number)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, docs)
}

func (h *Handlers) GetOrderAuditTrail(w http.ResponseWriter, r *http.Request) {
	order, err := h.service.GetOrder(r.Context(), chi.URLParam(r, "number"))
	if err != nil {
		writeError(w, err)
		return
	}

	logs, err := h.audit.History(r.Context(), order.ID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, logs)
}

func (h *Handlers) GetSessionAvailability(w http.ResponseWriter, r *http.Request) {
	sessionID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, domain.NewValidation("invalid session id"))
		return
	}

	availability, err := h.service.GetSessionAvailability(r.Context(), sessionID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, availability)
}

func (h *Handlers) ValidateRole(w http.ResponseWriter, r *http.Request) {
	sessionID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, domain.NewValidation("invalid session id"))
		return
	}

	v, err := h.service.ValidateRoleAssignment(r.Context(), sessionID, chi.URLParam(r, "roleID"))
	if err != nil {
		writeError(w, err)
		return
	}

	resp := map[string]interface{}{"valid": v.Valid}
	if v.Err != nil {
		resp["error"] = errorResponse{Code: v.Err.Code, Message: v.Err.Message}
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *Handlers) GetNextWaitlistCandidate(w http.ResponseWriter, r *http.Request) {
	sessionID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, domain.NewValidation("invalid session id"))
		return
	}

	entry, err := h.service.NextWaitlistCandidate(r.Context(), sessionID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"entry_id":   entry.ID,
		"child_id":   entry.ChildID,
		"position":   entry.Position,
		"expires_at": entry.ExpiresAt,
	})
}

func (h *Handlers) JoinWaitlist(w http.ResponseWriter, r *http.Request) {
	var req struct {
		SessionID uuid.UUID `json:"session_id"`
		ParentID  uuid.UUID `json:"parent_id"`
		ChildID   uuid.UUID `json:"child_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, domain.NewValidation("invalid request body: %v", err))
		return
	}

	h.withIdempotency(w, r, func() (int, interface{}, error) {
		entry, err := h.service.JoinWaitlist(r.Context(), req.SessionID, req.ParentID, req.ChildID)
		if err != nil {
			return 0, nil, err
		}
		return http.StatusCreated, map[string]interface{}{
			"entry_id":   entry.ID,
			"position":   entry.Position,
			"expires_at": entry.ExpiresAt,
		}, nil
	})
}

func (h *Handlers) PromoteWaitlistEntry(w http.ResponseWriter, r *http.Request) {
	entryID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, domain.NewValidation("invalid waitlist entry id"))
		return
	}

	order, err := h.service.PromoteWaitlistEntry(r.Context(), entryID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toOrderResponse(order))
}

func (h *Handlers) RemoveWaitlistEntry(w http.ResponseWriter, r *http.Request) {
	entryID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, domain.NewValidation("invalid waitlist entry id"))
		return
	}

	if err := h.service.RemoveWaitlistEntry(r.Context(), entryID); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handlers) Healthz(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("OK"))
}

func (h *Handlers) Readyz(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("Ready"))
}
