package engine

import (
	"context"

	"github.com/shopspring/decimal"
)

// maybeBuyOnRise ведёт скользящий минимум и ставит BUY, когда цена
// отрастает от минимума на rise_step_pct. Якорь после срабатывания
// сбрасывается на наблюдаемую цену независимо от судьбы ордера.
func (e *Engine) maybeBuyOnRise(ctx context.Context, m *marketState, last decimal.Decimal) {
	market := e.cfg.Bot.Markets[m.symbol]

	e.mu.Lock()
	anchor := m.anchor
	e.mu.Unlock()

	if !anchor.Valid {
		e.setAnchor(m, last)
		e.logEntry(m.symbol).WithField("anchor", last).Info("Устанавливаем якорь минимума.")
		e.saveState()
		return
	}

	if last.LessThan(anchor.Decimal) {
		e.setAnchor(m, last)
		e.logEntry(m.symbol).WithField("anchor", last).Debug("Новый минимум.")
		e.saveState()
		return
	}

	trigger := anchor.Decimal.Mul(one.Add(decimal.NewFromFloat(market.RiseStepPct)))
	if last.LessThan(trigger) {
		return
	}

	e.logEntry(m.symbol).WithFields(map[string]interface{}{
		"last":    last,
		"anchor":  anchor.Decimal,
		"trigger": trigger,
	}).Info("Сработал триггер роста.")

	e.placeRiseBuy(ctx, m)

	e.setAnchor(m, last)
	e.saveState()
}

func (e *Engine) setAnchor(m *marketState, price decimal.Decimal) {
	e.mu.Lock()
	m.anchor = decimal.NullDecimal{Decimal: price, Valid: true}
	e.mu.Unlock()
}
