// Package ledger реализует учёт накопленных взносов участников кампании.
package ledger

// Ledger хранит накопленные суммы взносов и упорядоченный список участников.
// Участник попадает в индекс один раз, при первом взносе. Ledger не
// потокобезопасен: доступ сериализует владеющая кампания.
type Ledger struct {
	balances map[string]int64
	index    []string
}

// New создаёт пустой реестр взносов.
func New() *Ledger {
	return &Ledger{
		balances: make(map[string]int64),
	}
}

// Record добавляет amount к накопленной сумме участника и возвращает старое
// и новое значения, чтобы вызывающая сторона могла вычислить число
// причитающихся сертификатов без повторного чтения.
func (l *Ledger) Record(contributor string, amount int64) (int64, int64) {
	old, exists := l.balances[contributor]
	if !exists {
		l.index = append(l.index, contributor)
	}

	updated := old + amount
	l.balances[contributor] = updated

	return old, updated
}

// Settle возвращает текущий остаток участника и обнуляет его. Повторный
// вызов возвращает 0 и побочных эффектов не имеет.
func (l *Ledger) Settle(contributor string) int64 {
	amount := l.balances[contributor]
	if amount == 0 {
		return 0
	}

	l.balances[contributor] = 0
	return amount
}

// Balance возвращает накопленную сумму участника.
func (l *Ledger) Balance(contributor string) int64 {
	return l.balances[contributor]
}

// Contributors возвращает копию индекса участников в порядке первого взноса.
func (l *Ledger) Contributors() []string {
	res := make([]string, len(l.index))
	copy(res, l.index)
	return res
}

// TotalOutstanding возвращает сумму всех ненулевых остатков. Метод линейный
// по числу участников и предназначен для проверок согласованности, а не для
// рабочих путей: кампания ведёт собственный накопленный итог.
func (l *Ledger) TotalOutstanding() int64 {
	var sum int64
	for _, amount := range l.balances {
		sum += amount
	}
	return sum
}
