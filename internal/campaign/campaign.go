// Package campaign реализует машину состояний кампании и её публичные операции.
package campaign

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/mmeshcher/crowdfund-system/internal/ledger"
	"github.com/mmeshcher/crowdfund-system/internal/model"
	"github.com/mmeshcher/crowdfund-system/internal/settlement"
)

// CredentialIssuer выпускает уникальные, монотонно нумеруемые сертификаты
// участия. Отказ эмитента прерывает вызвавший его взнос целиком.
type CredentialIssuer interface {
	Issue(ctx context.Context, owner string) (int64, error)
}

// Config задаёт неизменяемые параметры кампании.
type Config struct {
	ID              string
	Owner           string
	Goal            int64
	Deadline        time.Time
	CreatedAt       time.Time
	MinContribution int64
	CredentialUnit  int64
}

// Balance описывает восстановленный остаток участника.
type Balance struct {
	Contributor string
	Amount      int64
}

// Snapshot описывает сохранённое состояние кампании для восстановления.
type Snapshot struct {
	Current      int64
	Withdrawable int64
	Status       model.CampaignStatus
	CloseReason  model.CloseReason
	Balances     []Balance
}

// Campaign объединяет реестр взносов, машину состояний и движок выплат за
// операциями contribute/close/refund/withdraw. Все операции выполняются под
// одним мьютексом: операции разных кампаний независимы, операции одной
// кампании строго последовательны, чтение и запись внутри операции не
// перемежаются с другими операциями.
type Campaign struct {
	mu sync.Mutex

	id              string
	owner           string
	createdAt       time.Time
	minContribution int64
	credentialUnit  int64

	sm     *StateMachine
	ledger *ledger.Ledger
	engine *settlement.Engine

	current      int64
	withdrawable int64
	issued       int64

	issuer   CredentialIssuer
	transfer settlement.TransferFunc

	clock func() time.Time
}

// New создаёт кампанию в состоянии Active с нулевой собранной суммой.
func New(cfg Config, issuer CredentialIssuer, transfer settlement.TransferFunc) *Campaign {
	unit := cfg.CredentialUnit
	if unit <= 0 {
		unit = 1
	}

	return &Campaign{
		id:              cfg.ID,
		owner:           cfg.Owner,
		createdAt:       cfg.CreatedAt,
		minContribution: cfg.MinContribution,
		credentialUnit:  unit,
		sm:              NewStateMachine(cfg.Goal, cfg.Deadline),
		ledger:          ledger.New(),
		engine:          settlement.NewEngine(),
		issuer:          issuer,
		transfer:        transfer,
		clock:           time.Now,
	}
}

// Restore воссоздаёт кампанию из сохранённого состояния.
func Restore(cfg Config, snap Snapshot, issuer CredentialIssuer, transfer settlement.TransferFunc) *Campaign {
	c := New(cfg, issuer, transfer)

	for _, b := range snap.Balances {
		if b.Amount <= 0 {
			continue
		}
		c.ledger.Record(b.Contributor, b.Amount)
	}

	c.current = snap.Current
	c.withdrawable = snap.Withdrawable

	if snap.Status == model.CampaignStatusClosed {
		c.sm.Close(snap.CloseReason)
	}

	return c
}

// Contribute принимает взнос и возвращает номера выпущенных сертификатов.
// Число сертификатов равно числу целых единиц, пересечённых накопленной
// суммой участника: floor(new/unit) - floor(old/unit). Если собранная сумма
// достигает цели, кампания закрывается как успешная.
func (c *Campaign) Contribute(ctx context.Context, contributor string, amount int64) ([]int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.observeDeadline()

	if !c.sm.IsActive(c.clock()) {
		return nil, ErrCampaignClosed
	}
	if amount <= 0 || amount < c.minContribution {
		return nil, ErrBelowMinimum
	}

	oldTotal, newTotal := c.ledger.Record(contributor, amount)
	count := newTotal/c.credentialUnit - oldTotal/c.credentialUnit

	ids := make([]int64, 0, count)
	for i := int64(0); i < count; i++ {
		id, err := c.issuer.Issue(ctx, contributor)
		if err != nil {
			// Отказ эмитента прерывает взнос целиком: остаток участника
			// возвращается к прежнему значению.
			c.ledger.Settle(contributor)
			if oldTotal > 0 {
				c.ledger.Record(contributor, oldTotal)
			}
			return nil, fmt.Errorf("%w: %v", ErrIssuance, err)
		}
		ids = append(ids, id)
	}

	c.current += amount
	c.issued += count

	if c.sm.IsSuccessful(c.current) {
		c.sm.Close(model.CloseReasonGoal)
		c.withdrawable = c.current
	}

	return ids, nil
}

// Close закрывает кампанию по решению владельца и возвращает средства всем
// участникам независимо от достижения цели. Доступный к выводу остаток
// обнуляется в той же критической секции, поэтому последующий Withdraw не
// сможет повторно переместить уже возвращённые средства.
func (c *Campaign) Close(ctx context.Context, caller string) (*settlement.Report, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.observeDeadline()

	if caller != c.owner {
		return nil, ErrNotOwner
	}
	if !c.sm.IsActive(c.clock()) {
		return nil, ErrCampaignClosed
	}

	c.sm.Close(model.CloseReasonOwner)
	report := c.engine.DistributeAll(ctx, c.ledger, c.transfer)
	c.withdrawable = 0

	return report, nil
}

// Refund возвращает средства одному участнику после неудачного завершения
// кампании. Нулевой остаток — идемпотентный успех с суммой 0.
func (c *Campaign) Refund(ctx context.Context, contributor string) (int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.observeDeadline()

	if !c.sm.IsClosed(c.clock()) {
		return 0, ErrCampaignActive
	}
	if c.sm.IsSuccessful(c.current) {
		return 0, ErrGoalReached
	}

	amount, err := c.engine.RefundOne(ctx, c.ledger, contributor, c.transfer)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrTransfer, err)
	}

	return amount, nil
}

// Withdraw переводит собранные средства владельцу успешно завершённой
// кампании. Остаток списывается только после подтверждённого перевода,
// поэтому неудавшийся вызов безопасно повторить; повторный вызов после
// успешного вывода отклоняется.
func (c *Campaign) Withdraw(ctx context.Context, caller string) (int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.observeDeadline()

	if caller != c.owner {
		return 0, ErrNotOwner
	}
	if !c.sm.IsClosed(c.clock()) {
		return 0, ErrCampaignActive
	}
	if c.sm.IsFailed(c.current) {
		return 0, ErrGoalNotReached
	}
	if c.withdrawable == 0 {
		return 0, ErrNothingToWithdraw
	}

	amount := c.withdrawable
	if err := c.engine.WithdrawToOwner(ctx, c.owner, amount, c.transfer); err != nil {
		return 0, fmt.Errorf("%w: %v", ErrTransfer, err)
	}

	c.withdrawable -= amount
	return amount, nil
}

// State возвращает снимок текущего состояния кампании.
func (c *Campaign) State() model.Campaign {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.observeDeadline()

	return model.Campaign{
		ID:           c.id,
		Owner:        c.owner,
		Goal:         c.sm.Goal(),
		Current:      c.current,
		Withdrawable: c.withdrawable,
		Status:       c.sm.Status(),
		CloseReason:  c.sm.Reason(),
		Deadline:     c.sm.Deadline(),
		CreatedAt:    c.createdAt,
	}
}

// observeDeadline лениво фиксирует истечение срока кампании. Вызывается в
// начале каждой операции под мьютексом.
func (c *Campaign) observeDeadline() {
	if c.sm.Status() == model.CampaignStatusActive && !c.clock().Before(c.sm.Deadline()) {
		c.sm.Close(model.CloseReasonDeadline)
	}
}
