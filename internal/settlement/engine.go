// Package settlement реализует движение средств при завершении кампании.
package settlement

import (
	"context"

	"github.com/mmeshcher/crowdfund-system/internal/ledger"
)

// TransferFunc выполняет перевод средств указанному получателю. Сбой
// перевода находится вне контроля сервиса: получатель может отклонить
// платёж, внешняя система может быть недоступна.
type TransferFunc func(ctx context.Context, to string, amount int64) error

// Entry описывает успешный перевод одному участнику.
type Entry struct {
	Contributor string `json:"contributor"`
	Amount      int64  `json:"amount"`
}

// Failure описывает неудавшийся перевод одному участнику.
type Failure struct {
	Contributor string `json:"contributor"`
	Amount      int64  `json:"amount"`
	Reason      string `json:"reason"`
}

// Report содержит итог пакетного урегулирования.
type Report struct {
	Succeeded []Entry   `json:"succeeded"`
	Failed    []Failure `json:"failed"`
}

// Engine выполняет выплаты по реестру взносов. Движок гарантирует не более
// одного урегулирования на участника за цикл выплат.
type Engine struct{}

// NewEngine создаёт движок выплат.
func NewEngine() *Engine {
	return &Engine{}
}

// DistributeAll возвращает средства всем участникам реестра. Остаток
// участника обнуляется до попытки перевода: повторное урегулирование того же
// участника невозможно, даже если транспортный слой вызовет сервис обратно.
// Неудача одного перевода не прерывает пакет и не откатывает уже выполненные
// переводы — она фиксируется в отчёте для последующего разбора.
func (e *Engine) DistributeAll(ctx context.Context, l *ledger.Ledger, transfer TransferFunc) *Report {
	report := &Report{}

	for _, contributor := range l.Contributors() {
		amount := l.Settle(contributor)
		if amount == 0 {
			continue
		}

		if err := transfer(ctx, contributor, amount); err != nil {
			report.Failed = append(report.Failed, Failure{
				Contributor: contributor,
				Amount:      amount,
				Reason:      err.Error(),
			})
			continue
		}

		report.Succeeded = append(report.Succeeded, Entry{
			Contributor: contributor,
			Amount:      amount,
		})
	}

	return report
}

// WithdrawToOwner переводит сумму владельцу кампании. Остаток здесь не
// списывается: вызывающая сторона уменьшает его только после успешного
// перевода, поэтому неудавшийся вызов безопасно повторить.
func (e *Engine) WithdrawToOwner(ctx context.Context, owner string, amount int64, transfer TransferFunc) error {
	return transfer(ctx, owner, amount)
}

// RefundOne урегулирует и возвращает средства одному участнику. Нулевой
// остаток — идемпотентный успех с суммой 0. При неудаче перевода остаток
// восстанавливается, и вызов можно повторить.
func (e *Engine) RefundOne(ctx context.Context, l *ledger.Ledger, contributor string, transfer TransferFunc) (int64, error) {
	amount := l.Settle(contributor)
	if amount == 0 {
		return 0, nil
	}

	if err := transfer(ctx, contributor, amount); err != nil {
		l.Record(contributor, amount)
		return 0, err
	}

	return amount, nil
}
