package campaign

import (
	"errors"
	"fmt"
)

// Базовые классы ошибок доменных операций.
var (
	// ErrPermission возвращается, когда операцию вызывает не тот участник.
	ErrPermission = errors.New("permission denied")
	// ErrState возвращается при попытке выполнить операцию в неподходящем состоянии кампании.
	ErrState = errors.New("invalid campaign state")
	// ErrValidation возвращается при недопустимых входных данных.
	ErrValidation = errors.New("validation failed")
	// ErrTransfer возвращается, когда единичный перевод средств не удался.
	ErrTransfer = errors.New("transfer failed")
	// ErrIssuance возвращается при отказе эмитента сертификатов; взнос прерывается целиком.
	ErrIssuance = errors.New("credential issuance failed")
)

// Конкретные нарушения предусловий. Каждая ошибка называет нарушенное
// условие и оборачивает свой базовый класс.
var (
	ErrNotOwner          = fmt.Errorf("%w: caller is not the campaign owner", ErrPermission)
	ErrCampaignClosed    = fmt.Errorf("%w: campaign is closed", ErrState)
	ErrCampaignActive    = fmt.Errorf("%w: campaign is still active", ErrState)
	ErrGoalNotReached    = fmt.Errorf("%w: campaign goal is not reached", ErrState)
	ErrGoalReached       = fmt.Errorf("%w: campaign goal is reached, refunds are not available", ErrState)
	ErrNothingToWithdraw = fmt.Errorf("%w: nothing left to withdraw", ErrState)
	ErrBelowMinimum      = fmt.Errorf("%w: contribution is below the minimum amount", ErrValidation)
	ErrInvalidGoal       = fmt.Errorf("%w: goal must be positive", ErrValidation)
)
