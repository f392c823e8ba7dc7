// Package handler содержит HTTP-обработчики API сервиса краудфандинга.
package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/mmeshcher/crowdfund-system/internal/campaign"
	"github.com/mmeshcher/crowdfund-system/internal/middleware"
	"github.com/mmeshcher/crowdfund-system/internal/model"
	"github.com/mmeshcher/crowdfund-system/internal/repository"
	"github.com/mmeshcher/crowdfund-system/internal/settlement"
	"github.com/mmeshcher/crowdfund-system/internal/validation"
)

// Service определяет контракт бизнес-логики, используемой HTTP-обработчиками.
type Service interface {
	CreateCampaign(ctx context.Context, owner string, goal int64) (*model.Campaign, error)
	GetCampaign(ctx context.Context, id string) (*model.Campaign, error)
	ListCampaigns(ctx context.Context) ([]model.Campaign, error)
	Contribute(ctx context.Context, campaignID, contributor string, amount int64) ([]int64, error)
	CloseCampaign(ctx context.Context, campaignID, caller string) (*settlement.Report, error)
	Refund(ctx context.Context, campaignID, contributor string) (int64, error)
	Withdraw(ctx context.Context, campaignID, caller string) (int64, error)
	GetEvents(ctx context.Context, campaignID string) ([]model.Event, error)
}

// Handler реализует HTTP-обработчики API сервиса краудфандинга.
type Handler struct {
	service        Service
	logger         *zap.Logger
	authMiddleware *middleware.AuthMiddleware
}

// NewHandler создаёт новый экземпляр обработчика HTTP-запросов.
func NewHandler(s Service, logger *zap.Logger, auth *middleware.AuthMiddleware) *Handler {
	return &Handler{
		service:        s,
		logger:         logger,
		authMiddleware: auth,
	}
}

// writeDomainError переводит доменные ошибки в HTTP-статусы: нарушенное
// предусловие уходит клиенту, всё остальное логируется как 500.
func (h *Handler) writeDomainError(w http.ResponseWriter, err error, msg string) {
	switch {
	case errors.Is(err, campaign.ErrValidation):
		http.Error(w, err.Error(), http.StatusBadRequest)
	case errors.Is(err, campaign.ErrPermission):
		http.Error(w, err.Error(), http.StatusForbidden)
	case errors.Is(err, repository.ErrCampaignNotFound):
		http.Error(w, http.StatusText(http.StatusNotFound), http.StatusNotFound)
	case errors.Is(err, campaign.ErrState):
		http.Error(w, err.Error(), http.StatusConflict)
	case errors.Is(err, campaign.ErrTransfer):
		http.Error(w, err.Error(), http.StatusBadGateway)
	default:
		h.logger.Error(msg, zap.Error(err))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
	}
}

type authRequest struct {
	Identity string `json:"identity"`
}

// Authenticate выдаёт подписанный cookie для указанного идентификатора.
func (h *Handler) Authenticate(w http.ResponseWriter, r *http.Request) {
	var req authRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	if !validation.IsValidIdentity(req.Identity) {
		http.Error(w, http.StatusText(http.StatusUnprocessableEntity), http.StatusUnprocessableEntity)
		return
	}

	h.authMiddleware.SetAuthCookie(w, req.Identity)
	w.WriteHeader(http.StatusOK)
}

type createCampaignRequest struct {
	Goal int64 `json:"goal"`
}

type campaignResponse struct {
	ID           string `json:"id"`
	Owner        string `json:"owner"`
	Goal         int64  `json:"goal"`
	Current      int64  `json:"current"`
	Withdrawable int64  `json:"withdrawable"`
	Status       string `json:"status"`
	CloseReason  string `json:"close_reason,omitempty"`
	Deadline     string `json:"deadline"`
	CreatedAt    string `json:"created_at"`
}

func toCampaignResponse(c *model.Campaign) campaignResponse {
	return campaignResponse{
		ID:           c.ID,
		Owner:        c.Owner,
		Goal:         c.Goal,
		Current:      c.Current,
		Withdrawable: c.Withdrawable,
		Status:       string(c.Status),
		CloseReason:  string(c.CloseReason),
		Deadline:     c.Deadline.Format(time.RFC3339),
		CreatedAt:    c.CreatedAt.Format(time.RFC3339),
	}
}

// CreateCampaign создаёт кампанию с вызвавшей стороной в роли владельца.
func (h *Handler) CreateCampaign(w http.ResponseWriter, r *http.Request) {
	identity, ok := middleware.GetIdentityFromContext(r.Context())
	if !ok {
		http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
		return
	}

	var req createCampaignRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	c, err := h.service.CreateCampaign(r.Context(), identity, req.Goal)
	if err != nil {
		h.writeDomainError(w, err, "create campaign error")
		return
	}

	writeJSON(w, http.StatusCreated, toCampaignResponse(c))
}

// GetCampaign возвращает текущее состояние кампании.
func (h *Handler) GetCampaign(w http.ResponseWriter, r *http.Request) {
	c, err := h.service.GetCampaign(r.Context(), campaignIDFromRequest(r))
	if err != nil {
		h.writeDomainError(w, err, "get campaign error")
		return
	}

	writeJSON(w, http.StatusOK, toCampaignResponse(c))
}

// ListCampaigns возвращает список всех кампаний.
func (h *Handler) ListCampaigns(w http.ResponseWriter, r *http.Request) {
	list, err := h.service.ListCampaigns(r.Context())
	if err != nil {
		h.writeDomainError(w, err, "list campaigns error")
		return
	}

	resp := make([]campaignResponse, 0, len(list))
	for i := range list {
		resp = append(resp, toCampaignResponse(&list[i]))
	}

	writeJSON(w, http.StatusOK, resp)
}

type contributeRequest struct {
	Amount int64 `json:"amount"`
}

type contributeResponse struct {
	Credentials []int64 `json:"credentials"`
}

// Contribute принимает взнос от вызвавшей стороны.
func (h *Handler) Contribute(w http.ResponseWriter, r *http.Request) {
	identity, ok := middleware.GetIdentityFromContext(r.Context())
	if !ok {
		http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
		return
	}

	var req contributeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	ids, err := h.service.Contribute(r.Context(), campaignIDFromRequest(r), identity, req.Amount)
	if err != nil {
		h.writeDomainError(w, err, "contribute error")
		return
	}

	if ids == nil {
		ids = []int64{}
	}

	writeJSON(w, http.StatusOK, contributeResponse{Credentials: ids})
}

// CloseCampaign закрывает кампанию и возвращает отчёт об урегулировании.
func (h *Handler) CloseCampaign(w http.ResponseWriter, r *http.Request) {
	identity, ok := middleware.GetIdentityFromContext(r.Context())
	if !ok {
		http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
		return
	}

	report, err := h.service.CloseCampaign(r.Context(), campaignIDFromRequest(r), identity)
	if err != nil {
		h.writeDomainError(w, err, "close campaign error")
		return
	}

	writeJSON(w, http.StatusOK, report)
}

type amountResponse struct {
	Amount int64 `json:"amount"`
}

// Refund возвращает средства вызвавшей стороне.
func (h *Handler) Refund(w http.ResponseWriter, r *http.Request) {
	identity, ok := middleware.GetIdentityFromContext(r.Context())
	if !ok {
		http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
		return
	}

	amount, err := h.service.Refund(r.Context(), campaignIDFromRequest(r), identity)
	if err != nil {
		h.writeDomainError(w, err, "refund error")
		return
	}

	writeJSON(w, http.StatusOK, amountResponse{Amount: amount})
}

// Withdraw переводит собранные средства владельцу кампании.
func (h *Handler) Withdraw(w http.ResponseWriter, r *http.Request) {
	identity, ok := middleware.GetIdentityFromContext(r.Context())
	if !ok {
		http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
		return
	}

	amount, err := h.service.Withdraw(r.Context(), campaignIDFromRequest(r), identity)
	if err != nil {
		h.writeDomainError(w, err, "withdraw error")
		return
	}

	writeJSON(w, http.StatusOK, amountResponse{Amount: amount})
}

type eventResponse struct {
	Type      string          `json:"type"`
	Payload   json.RawMessage `json:"payload"`
	CreatedAt string          `json:"created_at"`
}

// GetEvents возвращает журнал кампании.
func (h *Handler) GetEvents(w http.ResponseWriter, r *http.Request) {
	events, err := h.service.GetEvents(r.Context(), campaignIDFromRequest(r))
	if err != nil {
		h.writeDomainError(w, err, "get events error")
		return
	}

	resp := make([]eventResponse, 0, len(events))
	for _, e := range events {
		resp = append(resp, eventResponse{
			Type:      string(e.Type),
			Payload:   e.Payload,
			CreatedAt: e.CreatedAt.Format(time.RFC3339),
		})
	}

	writeJSON(w, http.StatusOK, resp)
}
