package handler

import (
	"context"
	"net/http"

	"github.com/busqai/internal/logger"
	"github.com/busqai/internal/model"
	"github.com/busqai/internal/service"
)

// Пополнение за один раз, Bs.
const maxRecharge = 10000

type WalletStore interface {
	Get(ctx context.Context, userID string) (*model.Wallet, error)
	Movements(ctx context.Context, userID string, limit int) ([]model.WalletMovement, error)
	Recharge(ctx context.Context, userID string, amount float64) (*model.Wallet, error)
}

// SalesStore — продажи и метрики продавца (repository.DealRepository).
type SalesStore interface {
	SalesBySeller(ctx context.Context, sellerID string, limit int) ([]model.Sale, error)
	Metrics(ctx context.Context, sellerID string) (*model.SellerMetrics, error)
}

type WalletHandler struct {
	wallets WalletStore
	sales   SalesStore
}

func NewWalletHandler(wallets WalletStore, sales SalesStore) *WalletHandler {
	return &WalletHandler{wallets: wallets, sales: sales}
}

func (h *WalletHandler) Get(w http.ResponseWriter, r *http.Request) {
	userID := currentUser(w, r)
	if userID == "" {
		return
	}
	wallet, err := h.wallets.Get(r.Context(), userID)
	if err != nil {
		logger.Errorf("wallet get %s: %v", userID, err)
		writeError(w, http.StatusInternalServerError, "failed to load wallet")
		return
	}
	writeJSON(w, http.StatusOK, wallet)
}

func (h *WalletHandler) Movements(w http.ResponseWriter, r *http.Request) {
	userID := currentUser(w, r)
	if userID == "" {
		return
	}
	list, err := h.wallets.Movements(r.Context(), userID, queryInt(r, "limit", 20))
	if err != nil {
		logger.Errorf("wallet movements %s: %v", userID, err)
		writeError(w, http.StatusInternalServerError, "failed to load movements")
		return
	}
	if list == nil {
		list = []model.WalletMovement{}
	}
	writeJSON(w, http.StatusOK, list)
}

func (h *WalletHandler) Recharge(w http.ResponseWriter, r *http.Request) {
	userID := currentUser(w, r)
	if userID == "" {
		return
	}
	var req model.RechargeRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	amount := service.RoundCents(req.Amount)
	if !validAmount(amount) || amount > maxRecharge {
		writeError(w, http.StatusUnprocessableEntity, "amount must be between 0.01 and 10000")
		return
	}
	wallet, err := h.wallets.Recharge(r.Context(), userID, amount)
	if err != nil {
		logger.Errorf("wallet recharge %s: %v", userID, err)
		writeError(w, http.StatusInternalServerError, "recharge failed")
		return
	}
	logger.Infof("wallet recharge user=%s amount=%.2f", userID, amount)
	writeJSON(w, http.StatusOK, wallet)
}

func (h *WalletHandler) Sales(w http.ResponseWriter, r *http.Request) {
	userID := currentUser(w, r)
	if userID == "" {
		return
	}
	list, err := h.sales.SalesBySeller(r.Context(), userID, queryInt(r, "limit", 20))
	if err != nil {
		logger.Errorf("seller sales %s: %v", userID, err)
		writeError(w, http.StatusInternalServerError, "failed to load sales")
		return
	}
	if list == nil {
		list = []model.Sale{}
	}
	writeJSON(w, http.StatusOK, list)
}

func (h *WalletHandler) Metrics(w http.ResponseWriter, r *http.Request) {
	userID := currentUser(w, r)
	if userID == "" {
		return
	}
	m, err := h.sales.Metrics(r.Context(), userID)
	if err != nil {
		logger.Errorf("seller metrics %s: %v", userID, err)
		writeError(w, http.StatusInternalServerError, "failed to load metrics")
		return
	}
	writeJSON(w, http.StatusOK, m)
}
