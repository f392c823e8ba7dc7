package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"go.uber.org/zap"

	"github.com/mmeshcher/crowdfund-system/internal/campaign"
	"github.com/mmeshcher/crowdfund-system/internal/middleware"
	"github.com/mmeshcher/crowdfund-system/internal/model"
	"github.com/mmeshcher/crowdfund-system/internal/repository"
	"github.com/mmeshcher/crowdfund-system/internal/settlement"
)

type stubService struct {
	createFn     func(ctx context.Context, owner string, goal int64) (*model.Campaign, error)
	getFn        func(ctx context.Context, id string) (*model.Campaign, error)
	contributeFn func(ctx context.Context, campaignID, contributor string, amount int64) ([]int64, error)
	closeFn      func(ctx context.Context, campaignID, caller string) (*settlement.Report, error)
	refundFn     func(ctx context.Context, campaignID, contributor string) (int64, error)
	withdrawFn   func(ctx context.Context, campaignID, caller string) (int64, error)
	eventsFn     func(ctx context.Context, campaignID string) ([]model.Event, error)
}

func (s *stubService) CreateCampaign(ctx context.Context, owner string, goal int64) (*model.Campaign, error) {
	return s.createFn(ctx, owner, goal)
}

func (s *stubService) GetCampaign(ctx context.Context, id string) (*model.Campaign, error) {
	return s.getFn(ctx, id)
}

func (s *stubService) ListCampaigns(ctx context.Context) ([]model.Campaign, error) {
	return nil, nil
}

func (s *stubService) Contribute(ctx context.Context, campaignID, contributor string, amount int64) ([]int64, error) {
	return s.contributeFn(ctx, campaignID, contributor, amount)
}

func (s *stubService) CloseCampaign(ctx context.Context, campaignID, caller string) (*settlement.Report, error) {
	return s.closeFn(ctx, campaignID, caller)
}

func (s *stubService) Refund(ctx context.Context, campaignID, contributor string) (int64, error) {
	return s.refundFn(ctx, campaignID, contributor)
}

func (s *stubService) Withdraw(ctx context.Context, campaignID, caller string) (int64, error) {
	return s.withdrawFn(ctx, campaignID, caller)
}

func (s *stubService) GetEvents(ctx context.Context, campaignID string) ([]model.Event, error) {
	return s.eventsFn(ctx, campaignID)
}

func newTestHandler(svc Service) *Handler {
	auth := middleware.NewAuthMiddleware("test-secret")
	return NewHandler(svc, zap.NewNop(), auth)
}

func authCookie(t *testing.T, h *Handler, identity string) *http.Cookie {
	t.Helper()
	w := httptest.NewRecorder()
	h.authMiddleware.SetAuthCookie(w, identity)
	cookies := w.Result().Cookies()
	if len(cookies) == 0 {
		t.Fatalf("no auth cookie issued")
	}
	return cookies[0]
}

func TestAuthenticate(t *testing.T) {
	h := newTestHandler(&stubService{})
	router := h.SetupRouter()

	tests := []struct {
		name       string
		body       string
		wantStatus int
		wantCookie bool
	}{
		{name: "valid identity", body: `{"identity":"alice"}`, wantStatus: http.StatusOK, wantCookie: true},
		{name: "invalid identity", body: `{"identity":"has spaces"}`, wantStatus: http.StatusUnprocessableEntity},
		{name: "empty identity", body: `{"identity":""}`, wantStatus: http.StatusUnprocessableEntity},
		{name: "bad json", body: `{`, wantStatus: http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/api/auth", bytes.NewBufferString(tt.body))
			w := httptest.NewRecorder()

			router.ServeHTTP(w, req)

			res := w.Result()
			defer res.Body.Close()

			if res.StatusCode != tt.wantStatus {
				t.Fatalf("status = %d, want %d", res.StatusCode, tt.wantStatus)
			}
			if tt.wantCookie && len(res.Cookies()) == 0 {
				t.Fatalf("expected auth cookie to be set")
			}
		})
	}
}

func TestCreateCampaign(t *testing.T) {
	svc := &stubService{
		createFn: func(ctx context.Context, owner string, goal int64) (*model.Campaign, error) {
			if goal <= 0 {
				return nil, campaign.ErrInvalidGoal
			}
			return &model.Campaign{ID: "camp-1", Owner: owner, Goal: goal, Status: model.CampaignStatusActive}, nil
		},
	}
	h := newTestHandler(svc)
	router := h.SetupRouter()
	cookie := authCookie(t, h, "alice")

	req := httptest.NewRequest(http.MethodPost, "/api/campaigns", bytes.NewBufferString(`{"goal":100}`))
	req.AddCookie(cookie)
	w := httptest.NewRecorder()

	router.ServeHTTP(w, req)

	res := w.Result()
	defer res.Body.Close()

	if res.StatusCode != http.StatusCreated {
		t.Fatalf("status = %d, want %d", res.StatusCode, http.StatusCreated)
	}

	var resp campaignResponse
	if err := json.NewDecoder(res.Body).Decode(&resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.ID != "camp-1" || resp.Owner != "alice" || resp.Goal != 100 {
		t.Fatalf("unexpected response: %+v", resp)
	}
}

func TestCreateCampaign_InvalidGoal(t *testing.T) {
	svc := &stubService{
		createFn: func(ctx context.Context, owner string, goal int64) (*model.Campaign, error) {
			return nil, campaign.ErrInvalidGoal
		},
	}
	h := newTestHandler(svc)
	router := h.SetupRouter()

	req := httptest.NewRequest(http.MethodPost, "/api/campaigns", bytes.NewBufferString(`{"goal":0}`))
	req.AddCookie(authCookie(t, h, "alice"))
	w := httptest.NewRecorder()

	router.ServeHTTP(w, req)

	if w.Result().StatusCode != http.StatusBadRequest {
		t.Fatalf("status = %d, want %d", w.Result().StatusCode, http.StatusBadRequest)
	}
}

func TestContribute(t *testing.T) {
	svc := &stubService{
		contributeFn: func(ctx context.Context, campaignID, contributor string, amount int64) ([]int64, error) {
			if campaignID != "camp-1" {
				return nil, repository.ErrCampaignNotFound
			}
			if contributor != "alice" {
				t.Fatalf("contributor = %q, want alice", contributor)
			}
			return []int64{1, 2}, nil
		},
	}
	h := newTestHandler(svc)
	router := h.SetupRouter()

	req := httptest.NewRequest(http.MethodPost, "/api/campaigns/camp-1/contributions", bytes.NewBufferString(`{"amount":250}`))
	req.AddCookie(authCookie(t, h, "alice"))
	w := httptest.NewRecorder()

	router.ServeHTTP(w, req)

	res := w.Result()
	defer res.Body.Close()

	if res.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want %d", res.StatusCode, http.StatusOK)
	}

	var resp contributeResponse
	if err := json.NewDecoder(res.Body).Decode(&resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if len(resp.Credentials) != 2 {
		t.Fatalf("credentials = %v, want two ids", resp.Credentials)
	}
}

func TestContribute_WithoutCookie(t *testing.T) {
	h := newTestHandler(&stubService{})
	router := h.SetupRouter()

	req := httptest.NewRequest(http.MethodPost, "/api/campaigns/camp-1/contributions", bytes.NewBufferString(`{"amount":10}`))
	w := httptest.NewRecorder()

	router.ServeHTTP(w, req)

	if w.Result().StatusCode != http.StatusUnauthorized {
		t.Fatalf("status = %d, want %d", w.Result().StatusCode, http.StatusUnauthorized)
	}
}

func TestDomainErrorMapping(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
	}{
		{name: "closed campaign", err: campaign.ErrCampaignClosed, wantStatus: http.StatusConflict},
		{name: "below minimum", err: campaign.ErrBelowMinimum, wantStatus: http.StatusBadRequest},
		{name: "not found", err: repository.ErrCampaignNotFound, wantStatus: http.StatusNotFound},
		{name: "transfer failed", err: campaign.ErrTransfer, wantStatus: http.StatusBadGateway},
		{name: "issuance failed", err: campaign.ErrIssuance, wantStatus: http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := &stubService{
				contributeFn: func(ctx context.Context, campaignID, contributor string, amount int64) ([]int64, error) {
					return nil, tt.err
				},
			}
			h := newTestHandler(svc)
			router := h.SetupRouter()

			req := httptest.NewRequest(http.MethodPost, "/api/campaigns/camp-1/contributions", bytes.NewBufferString(`{"amount":10}`))
			req.AddCookie(authCookie(t, h, "alice"))
			w := httptest.NewRecorder()

			router.ServeHTTP(w, req)

			if w.Result().StatusCode != tt.wantStatus {
				t.Fatalf("status = %d, want %d", w.Result().StatusCode, tt.wantStatus)
			}
		})
	}
}

func TestCloseCampaign_ReturnsReport(t *testing.T) {
	svc := &stubService{
		closeFn: func(ctx context.Context, campaignID, caller string) (*settlement.Report, error) {
			if caller != "owner" {
				return nil, campaign.ErrNotOwner
			}
			return &settlement.Report{
				Succeeded: []settlement.Entry{{Contributor: "alice", Amount: 4}},
				Failed:    []settlement.Failure{{Contributor: "bob", Amount: 2, Reason: "account frozen"}},
			}, nil
		},
	}
	h := newTestHandler(svc)
	router := h.SetupRouter()

	req := httptest.NewRequest(http.MethodPost, "/api/campaigns/camp-1/close", nil)
	req.AddCookie(authCookie(t, h, "owner"))
	w := httptest.NewRecorder()

	router.ServeHTTP(w, req)

	res := w.Result()
	defer res.Body.Close()

	if res.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want %d", res.StatusCode, http.StatusOK)
	}

	var report settlement.Report
	if err := json.NewDecoder(res.Body).Decode(&report); err != nil {
		t.Fatalf("decode report: %v", err)
	}
	if len(report.Succeeded) != 1 || len(report.Failed) != 1 {
		t.Fatalf("unexpected report: %+v", report)
	}
	if report.Failed[0].Reason != "account frozen" {
		t.Fatalf("failure reason = %q", report.Failed[0].Reason)
	}
}

func TestCloseCampaign_NotOwner(t *testing.T) {
	svc := &stubService{
		closeFn: func(ctx context.Context, campaignID, caller string) (*settlement.Report, error) {
			return nil, campaign.ErrNotOwner
		},
	}
	h := newTestHandler(svc)
	router := h.SetupRouter()

	req := httptest.NewRequest(http.MethodPost, "/api/campaigns/camp-1/close", nil)
	req.AddCookie(authCookie(t, h, "mallory"))
	w := httptest.NewRecorder()

	router.ServeHTTP(w, req)

	if w.Result().StatusCode != http.StatusForbidden {
		t.Fatalf("status = %d, want %d", w.Result().StatusCode, http.StatusForbidden)
	}
}

func TestRefund(t *testing.T) {
	svc := &stubService{
		refundFn: func(ctx context.Context, campaignID, contributor string) (int64, error) {
			return 42, nil
		},
	}
	h := newTestHandler(svc)
	router := h.SetupRouter()

	req := httptest.NewRequest(http.MethodPost, "/api/campaigns/camp-1/refund", nil)
	req.AddCookie(authCookie(t, h, "alice"))
	w := httptest.NewRecorder()

	router.ServeHTTP(w, req)

	res := w.Result()
	defer res.Body.Close()

	if res.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want %d", res.StatusCode, http.StatusOK)
	}

	var resp amountResponse
	if err := json.NewDecoder(res.Body).Decode(&resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.Amount != 42 {
		t.Fatalf("amount = %d, want 42", resp.Amount)
	}
}

func TestWithdraw_NothingToWithdraw(t *testing.T) {
	svc := &stubService{
		withdrawFn: func(ctx context.Context, campaignID, caller string) (int64, error) {
			return 0, campaign.ErrNothingToWithdraw
		},
	}
	h := newTestHandler(svc)
	router := h.SetupRouter()

	req := httptest.NewRequest(http.MethodPost, "/api/campaigns/camp-1/withdraw", nil)
	req.AddCookie(authCookie(t, h, "owner"))
	w := httptest.NewRecorder()

	router.ServeHTTP(w, req)

	if w.Result().StatusCode != http.StatusConflict {
		t.Fatalf("status = %d, want %d", w.Result().StatusCode, http.StatusConflict)
	}
}

func TestGetCampaign(t *testing.T) {
	svc := &stubService{
		getFn: func(ctx context.Context, id string) (*model.Campaign, error) {
			if id != "camp-1" {
				return nil, repository.ErrCampaignNotFound
			}
			return &model.Campaign{ID: id, Owner: "owner", Goal: 100, Current: 40, Status: model.CampaignStatusActive}, nil
		},
	}
	h := newTestHandler(svc)
	router := h.SetupRouter()

	t.Run("found", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/api/campaigns/camp-1", nil)
		w := httptest.NewRecorder()

		router.ServeHTTP(w, req)

		res := w.Result()
		defer res.Body.Close()

		if res.StatusCode != http.StatusOK {
			t.Fatalf("status = %d, want %d", res.StatusCode, http.StatusOK)
		}

		var resp campaignResponse
		if err := json.NewDecoder(res.Body).Decode(&resp); err != nil {
			t.Fatalf("decode response: %v", err)
		}
		if resp.Current != 40 || resp.Status != string(model.CampaignStatusActive) {
			t.Fatalf("unexpected response: %+v", resp)
		}
	})

	t.Run("not found", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/api/campaigns/unknown", nil)
		w := httptest.NewRecorder()

		router.ServeHTTP(w, req)

		if w.Result().StatusCode != http.StatusNotFound {
			t.Fatalf("status = %d, want %d", w.Result().StatusCode, http.StatusNotFound)
		}
	})
}

func TestGetEvents(t *testing.T) {
	svc := &stubService{
		eventsFn: func(ctx context.Context, campaignID string) ([]model.Event, error) {
			return []model.Event{
				{CampaignID: campaignID, Type: model.EventContributed, Payload: json.RawMessage(`{"contributor":"alice","amount":10}`)},
			}, nil
		},
	}
	h := newTestHandler(svc)
	router := h.SetupRouter()

	req := httptest.NewRequest(http.MethodGet, "/api/campaigns/camp-1/events", nil)
	w := httptest.NewRecorder()

	router.ServeHTTP(w, req)

	res := w.Result()
	defer res.Body.Close()

	if res.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want %d", res.StatusCode, http.StatusOK)
	}

	var resp []eventResponse
	if err := json.NewDecoder(res.Body).Decode(&resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if len(resp) != 1 || resp[0].Type != string(model.EventContributed) {
		t.Fatalf("unexpected events: %+v", resp)
	}
}
