// Package model содержит доменные сущности сервиса краудфандинга.
package model

import (
	"encoding/json"
	"time"
)

// CampaignStatus описывает статус кампании.
type CampaignStatus string

const (
	CampaignStatusActive CampaignStatus = "ACTIVE"
	CampaignStatusClosed CampaignStatus = "CLOSED"
)

// CloseReason описывает причину перехода кампании в закрытое состояние.
type CloseReason string

const (
	CloseReasonNone     CloseReason = ""
	CloseReasonGoal     CloseReason = "GOAL_REACHED"
	CloseReasonDeadline CloseReason = "DEADLINE"
	CloseReasonOwner    CloseReason = "OWNER"
)

// Campaign описывает кампанию сбора средств. Current растёт монотонно до
// начала урегулирования; Withdrawable учитывает остаток, доступный владельцу
// после успешного завершения.
type Campaign struct {
	ID           string
	Owner        string
	Goal         int64
	Current      int64
	Withdrawable int64
	Status       CampaignStatus
	CloseReason  CloseReason
	Deadline     time.Time
	CreatedAt    time.Time
}

// Contribution — запись аудита о принятом взносе.
type Contribution struct {
	CampaignID  string
	Contributor string
	Amount      int64
	CreatedAt   time.Time
}

// ContributorBalance содержит текущий остаток участника.
type ContributorBalance struct {
	Contributor string
	Amount      int64
}

// SettlementEntry — запись аудита об одной попытке урегулирования.
type SettlementEntry struct {
	CampaignID  string
	Contributor string
	Amount      int64
	OK          bool
	Reason      string
	CreatedAt   time.Time
}

// Credential — запись аудита о выпущенном сертификате участия.
type Credential struct {
	ID         int64
	CampaignID string
	Owner      string
	IssuedAt   time.Time
}

// EventType описывает тип события журнала кампании.
type EventType string

const (
	EventContributed EventType = "CONTRIBUTED"
	EventClosed      EventType = "CLOSED"
	EventRefunded    EventType = "REFUNDED"
	EventWithdrawn   EventType = "WITHDRAWN"
)

// Event — запись журнала кампании для внешних наблюдателей.
type Event struct {
	ID         int64
	CampaignID string
	Type       EventType
	Payload    json.RawMessage
	CreatedAt  time.Time
}
