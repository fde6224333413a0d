package handler

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/shopspring/decimal"
	"github.com/tenana/wallet-service/internal/infrastructure/auth"
	"github.com/tenana/wallet-service/internal/models"
	service "github.com/tenana/wallet-service/internal/services"
	pkgerrors "github.com/tenana/wallet-service/pkg/errors"
)

const maxBodyBytes = 1 << 20

type Handler struct {
	wallet service.WalletService
	admin  service.AdminService
	auth   service.AuthService
}

func NewHandler(wallet service.WalletService, admin service.AdminService, authService service.AuthService) *Handler {
	return &Handler{wallet: wallet, admin: admin, auth: authService}
}

type errorResponse struct {
	Error string `json:"error"`
}

type transitionResponse struct {
	Status string `json:"status"`
}

// statusFor maps the error taxonomy onto HTTP. Store and internal failures
// get a generic message that makes no claim about partial state.
func statusFor(err error) (int, string) {
	switch {
	case errors.Is(err, pkgerrors.ErrInvalidInput):
		return http.StatusBadRequest, err.Error()
	case errors.Is(err, pkgerrors.ErrInsufficientFunds):
		return http.StatusPaymentRequired, err.Error()
	case errors.Is(err, pkgerrors.ErrInvalidCredentials),
		errors.Is(err, pkgerrors.ErrUnauthorized):
		return http.StatusUnauthorized, err.Error()
	case errors.Is(err, pkgerrors.ErrForbidden):
		return http.StatusForbidden, err.Error()
	case errors.Is(err, pkgerrors.ErrUserNotFound),
		errors.Is(err, pkgerrors.ErrDepositNotFound),
		errors.Is(err, pkgerrors.ErrOrderNotFound),
		errors.Is(err, pkgerrors.ErrProductNotFound):
		return http.StatusNotFound, err.Error()
	case errors.Is(err, pkgerrors.ErrUsernameExists),
		errors.Is(err, pkgerrors.ErrRequestAlreadyProcessed),
		errors.Is(err, pkgerrors.ErrInvalidTransition),
		errors.Is(err, pkgerrors.ErrOrderNotFulfilled):
		return http.StatusConflict, err.Error()
	case errors.Is(err, pkgerrors.ErrStoreUnavailable):
		return http.StatusServiceUnavailable, "service temporarily unavailable, please try again"
	default:
		return http.StatusInternalServerError, "something went wrong, please try again"
	}
}

func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status, msg := statusFor(err)
	if status >= http.StatusInternalServerError {
		slog.Error("request failed", "method", r.Method, "path", r.URL.Path, "error", err)
	}
	writeJSON(w, status, errorResponse{Error: msg})
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		slog.Error("failed to encode response", "error", err)
	}
}

func decode(w http.ResponseWriter, r *http.Request, dst any) error {
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(dst); err != nil {
		return errors.Join(pkgerrors.ErrInvalidInput, err)
	}
	return nil
}

func pathID(r *http.Request) (uuid.UUID, error) {
	id, err := uuid.Parse(mux.Vars(r)["id"])
	if err != nil {
		return uuid.Nil, errors.Join(pkgerrors.ErrInvalidInput, err)
	}
	return id, nil
}

func (h *Handler) RegisterPublicRoutes(r *mux.Router) {
	r.HandleFunc("/auth/register", h.Register).Methods(http.MethodPost)
	r.HandleFunc("/auth/login", h.Login).Methods(http.MethodPost)
}

func (h *Handler) RegisterUserRoutes(r *mux.Router) {
	r.HandleFunc("/auth/logout", h.Logout).Methods(http.MethodPost)
	r.HandleFunc("/auth/bootstrap-admin", h.BootstrapAdmin).Methods(http.MethodPost)
	r.HandleFunc("/wallet/balance", h.GetBalance).Methods(http.MethodGet)
	r.HandleFunc("/purchase", h.Purchase).Methods(http.MethodPost)
	r.HandleFunc("/checkout", h.Checkout).Methods(http.MethodPost)
	r.HandleFunc("/deposits", h.TopUp).Methods(http.MethodPost)
	r.HandleFunc("/deposits", h.ListDeposits).Methods(http.MethodGet)
	r.HandleFunc("/orders", h.ListOrders).Methods(http.MethodGet)
	r.HandleFunc("/orders/{id}/delivery", h.GetDelivery).Methods(http.MethodGet)
}

func (h *Handler) RegisterAdminRoutes(r *mux.Router) {
	r.HandleFunc("/deposits", h.AdminListDeposits).Methods(http.MethodGet)
	r.HandleFunc("/deposits/{id}/approve", h.AdminApproveDeposit).Methods(http.MethodPost)
	r.HandleFunc("/deposits/{id}/reject", h.AdminRejectDeposit).Methods(http.MethodPost)
	r.HandleFunc("/orders", h.AdminListOrders).Methods(http.MethodGet)
	r.HandleFunc("/orders/{id}/approve", h.AdminApproveOrder).Methods(http.MethodPost)
	r.HandleFunc("/orders/{id}/cancel", h.AdminCancelOrder).Methods(http.MethodPost)
	r.HandleFunc("/overview", h.AdminOverview).Methods(http.MethodGet)
}

func (h *Handler) Register(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email    string `json:"email"`
		Username string `json:"username"`
		Password string `json:"password"`
	}
	if err := decode(w, r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}

	user, err := h.auth.Register(r.Context(), req.Email, req.Username, req.Password)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, user)
}

func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := decode(w, r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}

	session, err := h.auth.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, session)
}

func (h *Handler) Logout(w http.ResponseWriter, r *http.Request) {
	userID, ok := auth.UserIDFromContext(r.Context())
	if !ok {
		h.writeError(w, r, pkgerrors.ErrUnauthorized)
		return
	}
	if err := h.auth.Logout(r.Context(), userID); err != nil {
		h.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) BootstrapAdmin(w http.ResponseWriter, r *http.Request) {
	userID, ok := auth.UserIDFromContext(r.Context())
	if !ok {
		h.writeError(w, r, pkgerrors.ErrUnauthorized)
		return
	}
	if err := h.auth.BootstrapAdmin(r.Context(), userID); err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"is_admin": true})
}

func (h *Handler) GetBalance(w http.ResponseWriter, r *http.Request) {
	userID, ok := auth.UserIDFromContext(r.Context())
	if !ok {
		h.writeError(w, r, pkgerrors.ErrUnauthorized)
		return
	}

	balance, err := h.wallet.GetBalance(r.Context(), userID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]decimal.Decimal{"balance": balance})
}

// Purchase answers 402 with success=false when the wallet cannot cover the
// price, so the client can offer a top-up.
func (h *Handler) Purchase(w http.ResponseWriter, r *http.Request) {
	userID, ok := auth.UserIDFromContext(r.Context())
	if !ok {
		h.writeError(w, r, pkgerrors.ErrUnauthorized)
		return
	}

	var req service.PurchaseRequest
	if err := decode(w, r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}

	res, err := h.wallet.Purchase(r.Context(), userID, req)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writePurchase(w, res)
}

func (h *Handler) Checkout(w http.ResponseWriter, r *http.Request) {
	userID, ok := auth.UserIDFromContext(r.Context())
	if !ok {
		h.writeError(w, r, pkgerrors.ErrUnauthorized)
		return
	}

	var req service.CheckoutRequest
	if err := decode(w, r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}

	res, err := h.wallet.Checkout(r.Context(), userID, req)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writePurchase(w, res)
}

func writePurchase(w http.ResponseWriter, res *service.PurchaseResult) {
	if !res.Success {
		writeJSON(w, http.StatusPaymentRequired, struct {
			*service.PurchaseResult
			Error string `json:"error"`
		}{res, pkgerrors.ErrInsufficientFunds.Error()})
		return
	}
	writeJSON(w, http.StatusCreated, res)
}

func (h *Handler) TopUp(w http.ResponseWriter, r *http.Request) {
	userID, ok := auth.UserIDFromContext(r.Context())
	if !ok {
		h.writeError(w, r, pkgerrors.ErrUnauthorized)
		return
	}

	var req service.TopUpRequest
	if err := decode(w, r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}

	deposit, err := h.wallet.TopUp(r.Context(), userID, req)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, deposit)
}

func (h *Handler) ListDeposits(w http.ResponseWriter, r *http.Request) {
	userID, ok := auth.UserIDFromContext(r.Context())
	if !ok {
		h.writeError(w, r, pkgerrors.ErrUnauthorized)
		return
	}

	deposits, err := h.wallet.ListDeposits(r.Context(), userID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, deposits)
}

func (h *Handler) ListOrders(w http.ResponseWriter, r *http.Request) {
	userID, ok := auth.UserIDFromContext(r.Context())
	if !ok {
		h.writeError(w, r, pkgerrors.ErrUnauthorized)
		return
	}

	orders, err := h.wallet.ListOrders(r.Context(), userID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, orders)
}

func (h *Handler) GetDelivery(w http.ResponseWriter, r *http.Request) {
	userID, ok := auth.UserIDFromContext(r.Context())
	if !ok {
		h.writeError(w, r, pkgerrors.ErrUnauthorized)
		return
	}
	orderID, err := pathID(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	delivery, err := h.wallet.GetDelivery(r.Context(), userID, orderID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, delivery)
}

func (h *Handler) AdminListDeposits(w http.ResponseWriter, r *http.Request) {
	var status models.DepositStatus
	if s := r.URL.Query().Get("status"); s != "" {
		parsed, err := models.ParseDepositStatus(s)
		if err != nil {
			h.writeError(w, r, errors.Join(pkgerrors.ErrInvalidInput, err))
			return
		}
		status = parsed
	}

	deposits, err := h.admin.ListDeposits(r.Context(), status)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, deposits)
}

func (h *Handler) AdminListOrders(w http.ResponseWriter, r *http.Request) {
	var status models.OrderStatus
	if s := r.URL.Query().Get("status"); s != "" {
		parsed, err := models.ParseOrderStatus(s)
		if err != nil {
			h.writeError(w, r, errors.Join(pkgerrors.ErrInvalidInput, err))
			return
		}
		status = parsed
	}

	orders, err := h.admin.ListOrders(r.Context(), status)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, orders)
}

func (h *Handler) AdminApproveDeposit(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, h.admin.ApproveDeposit)
}

func (h *Handler) AdminRejectDeposit(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Notes string `json:"notes"`
	}
	// the body is optional; an empty one, chunked or not, means no notes
	if err := decode(w, r, &req); err != nil && !errors.Is(err, io.EOF) {
		h.writeError(w, r, err)
		return
	}
	h.transition(w, r, func(ctx context.Context, id uuid.UUID) (bool, error) {
		return h.admin.RejectDeposit(ctx, id, req.Notes)
	})
}

func (h *Handler) AdminApproveOrder(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, h.admin.ApproveOrder)
}

func (h *Handler) AdminCancelOrder(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, h.admin.CancelOrder)
}

// transition runs an idempotent admin state change. An already-handled
// target is reported as 200 already_processed, never as a retryable error.
func (h *Handler) transition(w http.ResponseWriter, r *http.Request, apply func(context.Context, uuid.UUID) (bool, error)) {
	id, err := pathID(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	applied, err := apply(r.Context(), id)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	status := "already_processed"
	if applied {
		status = "applied"
	}
	writeJSON(w, http.StatusOK, transitionResponse{Status: status})
}

func (h *Handler) AdminOverview(w http.ResponseWriter, r *http.Request) {
	overview, err := h.admin.Overview(r.Context())
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, overview)
}
