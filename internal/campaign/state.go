package campaign

import (
	"time"

	"github.com/mmeshcher/crowdfund-system/internal/model"
)

// StateMachine отвечает за цель, дедлайн и статус кампании. Переход в
// закрытое состояние односторонний; истечение дедлайна фиксируется лениво,
// при очередной операции, без фоновых проверок.
type StateMachine struct {
	goal     int64
	deadline time.Time
	status   model.CampaignStatus
	reason   model.CloseReason
}

// NewStateMachine создаёт машину состояний в статусе Active.
func NewStateMachine(goal int64, deadline time.Time) *StateMachine {
	return &StateMachine{
		goal:     goal,
		deadline: deadline,
		status:   model.CampaignStatusActive,
	}
}

// IsActive сообщает, принимает ли кампания операции: статус Active и
// дедлайн ещё не наступил.
func (m *StateMachine) IsActive(now time.Time) bool {
	return m.status == model.CampaignStatusActive && now.Before(m.deadline)
}

// IsClosed сообщает, завершена ли кампания: статус Closed либо дедлайн наступил.
func (m *StateMachine) IsClosed(now time.Time) bool {
	return m.status == model.CampaignStatusClosed || !now.Before(m.deadline)
}

// IsSuccessful сообщает, достигнута ли цель при указанной собранной сумме.
func (m *StateMachine) IsSuccessful(current int64) bool {
	return current >= m.goal
}

// IsFailed сообщает, что цель не достигнута.
func (m *StateMachine) IsFailed(current int64) bool {
	return !m.IsSuccessful(current)
}

// Close переводит кампанию в закрытое состояние. Повторные вызовы не меняют
// ни статус, ни зафиксированную причину закрытия.
func (m *StateMachine) Close(reason model.CloseReason) {
	if m.status == model.CampaignStatusClosed {
		return
	}

	m.status = model.CampaignStatusClosed
	m.reason = reason
}

// Status возвращает текущий статус.
func (m *StateMachine) Status() model.CampaignStatus {
	return m.status
}

// Reason возвращает причину закрытия.
func (m *StateMachine) Reason() model.CloseReason {
	return m.reason
}

// Goal возвращает целевую сумму кампании.
func (m *StateMachine) Goal() int64 {
	return m.goal
}

// Deadline возвращает дедлайн кампании.
func (m *StateMachine) Deadline() time.Time {
	return m.deadline
}
