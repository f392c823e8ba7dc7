// Package service реализует бизнес-логику сервиса краудфандинга.
package service

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/mmeshcher/crowdfund-system/internal/campaign"
	"github.com/mmeshcher/crowdfund-system/internal/model"
	"github.com/mmeshcher/crowdfund-system/internal/repository"
	"github.com/mmeshcher/crowdfund-system/internal/settlement"
)

// Repository описывает контракт доступа к данным, используемый сервисом.
type Repository interface {
	Close() error
	CreateCampaign(ctx context.Context, c model.Campaign) error
	GetCampaign(ctx context.Context, id string) (*model.Campaign, error)
	ListCampaigns(ctx context.Context) ([]model.Campaign, error)
	UpdateCampaignState(ctx context.Context, c model.Campaign) error
	SaveContribution(ctx context.Context, campaignID, contributor string, amount int64) error
	SaveCredentials(ctx context.Context, campaignID, owner string, ids []int64) error
	SaveSettlements(ctx context.Context, campaignID string, entries []model.SettlementEntry) error
	GetBalances(ctx context.Context, campaignID string) ([]model.ContributorBalance, error)
	AppendEvent(ctx context.Context, campaignID string, eventType model.EventType, payload any) error
	GetEvents(ctx context.Context, campaignID string) ([]model.Event, error)
}

// Options задаёт параметры кампаний, создаваемых сервисом.
type Options struct {
	MinContribution  int64
	CredentialUnit   int64
	CampaignDuration time.Duration
}

// Service содержит бизнес-логику сервиса краудфандинга. Живые кампании
// держатся в памяти; хранилище ведёт аудит и используется для восстановления
// состояния при запуске.
type Service struct {
	repo     Repository
	issuer   campaign.CredentialIssuer
	transfer settlement.TransferFunc
	opts     Options
	logger   *zap.Logger

	mu        sync.RWMutex
	campaigns map[string]*campaign.Campaign
}

// NewService создаёт новый сервис с указанным репозиторием и внешними
// способностями выпуска сертификатов и перевода средств.
func NewService(repo Repository, issuer campaign.CredentialIssuer, transfer settlement.TransferFunc, opts Options, logger *zap.Logger) *Service {
	if transfer == nil {
		transfer = func(ctx context.Context, to string, amount int64) error {
			return fmt.Errorf("transfer capability not configured")
		}
	}

	return &Service{
		repo:      repo,
		issuer:    issuer,
		transfer:  transfer,
		opts:      opts,
		logger:    logger,
		campaigns: make(map[string]*campaign.Campaign),
	}
}

// Close закрывает ресурсы сервиса.
func (s *Service) Close() error {
	if s.repo != nil {
		return s.repo.Close()
	}
	return nil
}

// Restore загружает сохранённые кампании в память. Закрытые кампании
// загружаются тоже: они продолжают обслуживать возвраты и вывод средств.
func (s *Service) Restore(ctx context.Context) error {
	list, err := s.repo.ListCampaigns(ctx)
	if err != nil {
		return fmt.Errorf("list campaigns: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for _, mc := range list {
		balances, err := s.repo.GetBalances(ctx, mc.ID)
		if err != nil {
			return fmt.Errorf("get balances for %s: %w", mc.ID, err)
		}

		snap := campaign.Snapshot{
			Current:      mc.Current,
			Withdrawable: mc.Withdrawable,
			Status:       mc.Status,
			CloseReason:  mc.CloseReason,
		}
		for _, b := range balances {
			snap.Balances = append(snap.Balances, campaign.Balance{
				Contributor: b.Contributor,
				Amount:      b.Amount,
			})
		}

		s.campaigns[mc.ID] = campaign.Restore(s.campaignConfig(mc), snap, s.issuer, s.transfer)
	}

	return nil
}

func (s *Service) campaignConfig(mc model.Campaign) campaign.Config {
	return campaign.Config{
		ID:              mc.ID,
		Owner:           mc.Owner,
		Goal:            mc.Goal,
		Deadline:        mc.Deadline,
		CreatedAt:       mc.CreatedAt,
		MinContribution: s.opts.MinContribution,
		CredentialUnit:  s.opts.CredentialUnit,
	}
}

// CreateCampaign создаёт новую кампанию. Дедлайн отсчитывается от момента
// создания на настроенную длительность.
func (s *Service) CreateCampaign(ctx context.Context, owner string, goal int64) (*model.Campaign, error) {
	if goal <= 0 {
		return nil, campaign.ErrInvalidGoal
	}

	now := time.Now()
	mc := model.Campaign{
		ID:        uuid.NewString(),
		Owner:     owner,
		Goal:      goal,
		Status:    model.CampaignStatusActive,
		Deadline:  now.Add(s.opts.CampaignDuration),
		CreatedAt: now,
	}

	if err := s.repo.CreateCampaign(ctx, mc); err != nil {
		return nil, err
	}

	c := campaign.New(s.campaignConfig(mc), s.issuer, s.transfer)

	s.mu.Lock()
	s.campaigns[mc.ID] = c
	s.mu.Unlock()

	return &mc, nil
}

func (s *Service) campaignByID(id string) (*campaign.Campaign, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	c, ok := s.campaigns[id]
	if !ok {
		return nil, repository.ErrCampaignNotFound
	}
	return c, nil
}

// GetCampaign возвращает текущее состояние кампании.
func (s *Service) GetCampaign(ctx context.Context, id string) (*model.Campaign, error) {
	c, err := s.campaignByID(id)
	if err != nil {
		return nil, err
	}

	state := c.State()
	return &state, nil
}

// ListCampaigns возвращает состояние всех кампаний в порядке создания.
func (s *Service) ListCampaigns(ctx context.Context) ([]model.Campaign, error) {
	s.mu.RLock()
	res := make([]model.Campaign, 0, len(s.campaigns))
	for _, c := range s.campaigns {
		res = append(res, c.State())
	}
	s.mu.RUnlock()

	sort.Slice(res, func(i, j int) bool {
		return res[i].CreatedAt.Before(res[j].CreatedAt)
	})

	return res, nil
}

type contributedPayload struct {
	Contributor string  `json:"contributor"`
	Amount      int64   `json:"amount"`
	Credentials []int64 `json:"credentials,omitempty"`
}

type closedPayload struct {
	Owner  string             `json:"owner"`
	Report *settlement.Report `json:"report"`
}

type refundedPayload struct {
	Contributor string `json:"contributor"`
	Amount      int64  `json:"amount"`
}

type withdrawnPayload struct {
	Owner  string `json:"owner"`
	Amount int64  `json:"amount"`
}

// Contribute принимает взнос в кампанию и возвращает номера выпущенных
// сертификатов.
func (s *Service) Contribute(ctx context.Context, campaignID, contributor string, amount int64) ([]int64, error) {
	c, err := s.campaignByID(campaignID)
	if err != nil {
		return nil, err
	}

	ids, err := c.Contribute(ctx, contributor, amount)
	if err != nil {
		return nil, err
	}

	if err := s.repo.SaveContribution(ctx, campaignID, contributor, amount); err != nil {
		s.logger.Error("save contribution", zap.Error(err), zap.String("campaignID", campaignID))
	}
	if err := s.repo.SaveCredentials(ctx, campaignID, contributor, ids); err != nil {
		s.logger.Error("save credentials", zap.Error(err), zap.String("campaignID", campaignID))
	}

	s.syncCampaign(ctx, c)
	s.appendEvent(ctx, campaignID, model.EventContributed, contributedPayload{
		Contributor: contributor,
		Amount:      amount,
		Credentials: ids,
	})

	return ids, nil
}

// CloseCampaign закрывает кампанию по команде владельца и возвращает отчёт
// об урегулировании.
func (s *Service) CloseCampaign(ctx context.Context, campaignID, caller string) (*settlement.Report, error) {
	c, err := s.campaignByID(campaignID)
	if err != nil {
		return nil, err
	}

	report, err := c.Close(ctx, caller)
	if err != nil {
		return nil, err
	}

	entries := make([]model.SettlementEntry, 0, len(report.Succeeded)+len(report.Failed))
	for _, e := range report.Succeeded {
		entries = append(entries, model.SettlementEntry{
			CampaignID:  campaignID,
			Contributor: e.Contributor,
			Amount:      e.Amount,
			OK:          true,
		})
	}
	for _, f := range report.Failed {
		entries = append(entries, model.SettlementEntry{
			CampaignID:  campaignID,
			Contributor: f.Contributor,
			Amount:      f.Amount,
			OK:          false,
			Reason:      f.Reason,
		})
	}

	if err := s.repo.SaveSettlements(ctx, campaignID, entries); err != nil {
		s.logger.Error("save settlements", zap.Error(err), zap.String("campaignID", campaignID))
	}

	s.syncCampaign(ctx, c)
	s.appendEvent(ctx, campaignID, model.EventClosed, closedPayload{Owner: caller, Report: report})

	return report, nil
}

// Refund возвращает средства вызвавшему участнику после неудачного
// завершения кампании.
func (s *Service) Refund(ctx context.Context, campaignID, contributor string) (int64, error) {
	c, err := s.campaignByID(campaignID)
	if err != nil {
		return 0, err
	}

	amount, err := c.Refund(ctx, contributor)
	if err != nil {
		return 0, err
	}

	if amount == 0 {
		// Идемпотентный повтор: ничего не урегулировано, журнал не пополняется.
		return 0, nil
	}

	entry := model.SettlementEntry{
		CampaignID:  campaignID,
		Contributor: contributor,
		Amount:      amount,
		OK:          true,
	}
	if err := s.repo.SaveSettlements(ctx, campaignID, []model.SettlementEntry{entry}); err != nil {
		s.logger.Error("save settlement", zap.Error(err), zap.String("campaignID", campaignID))
	}

	s.syncCampaign(ctx, c)
	s.appendEvent(ctx, campaignID, model.EventRefunded, refundedPayload{
		Contributor: contributor,
		Amount:      amount,
	})

	return amount, nil
}

// Withdraw переводит собранные средства владельцу успешной кампании.
func (s *Service) Withdraw(ctx context.Context, campaignID, caller string) (int64, error) {
	c, err := s.campaignByID(campaignID)
	if err != nil {
		return 0, err
	}

	amount, err := c.Withdraw(ctx, caller)
	if err != nil {
		return 0, err
	}

	s.syncCampaign(ctx, c)
	s.appendEvent(ctx, campaignID, model.EventWithdrawn, withdrawnPayload{
		Owner:  caller,
		Amount: amount,
	})

	return amount, nil
}

// GetEvents возвращает журнал кампании.
func (s *Service) GetEvents(ctx context.Context, campaignID string) ([]model.Event, error) {
	if _, err := s.campaignByID(campaignID); err != nil {
		return nil, err
	}
	return s.repo.GetEvents(ctx, campaignID)
}

// syncCampaign сохраняет изменяемую часть состояния кампании. Ошибка записи
// аудита не откатывает уже выполненную операцию и поэтому только логируется.
func (s *Service) syncCampaign(ctx context.Context, c *campaign.Campaign) {
	state := c.State()
	if err := s.repo.UpdateCampaignState(ctx, state); err != nil {
		s.logger.Error("update campaign state", zap.Error(err), zap.String("campaignID", state.ID))
	}
}

func (s *Service) appendEvent(ctx context.Context, campaignID string, eventType model.EventType, payload any) {
	if err := s.repo.AppendEvent(ctx, campaignID, eventType, payload); err != nil {
		s.logger.Error("append event", zap.Error(err),
			zap.String("campaignID", campaignID), zap.String("type", string(eventType)))
	}
}
