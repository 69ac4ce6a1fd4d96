package engine

import (
	"context"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

var mismatchThreshold = decimal.RequireFromString("0.0001")

func (e *Engine) logEntry(symbol string) *logrus.Entry {
	return e.log.WithComponent("engine").WithField("symbol", symbol)
}

func (e *Engine) logBranchState(symbol string, b *Branch, note string) {
	entry := e.logEntry(symbol).WithFields(map[string]interface{}{
		"branch_id":  b.BranchID,
		"buy_price":  b.BuyPrice,
		"size":       b.Size,
		"wap":        b.WAP,
		"stop_price": b.StopPrice,
		"active":     b.Active,
	})
	if note != "" {
		entry = entry.WithField("note", note)
	}
	entry.Info("Состояние ветки.")
}

// logPositionMismatch сверяет сумму активных веток с позицией на бирже.
// Коррекция размера делается в ensureBranchSells, тут только диагностика.
func (e *Engine) logPositionMismatch(ctx context.Context, m *marketState) {
	e.mu.Lock()
	total := m.totalActiveSize()
	branches := m.activeBranches()
	e.mu.Unlock()
	if len(branches) == 0 {
		return
	}

	pos, err := e.client.GetPosition(ctx, m.symbol)
	if err != nil {
		e.logEntry(m.symbol).WithError(err).Warn("Не удалось получить позицию для сверки веток.")
		return
	}

	diff := total.Sub(pos.Size)
	if diff.Abs().LessThanOrEqual(mismatchThreshold) {
		return
	}

	e.logEntry(m.symbol).WithFields(map[string]interface{}{
		"branches_total": total,
		"position":       pos.Size,
		"diff":           diff,
	}).Warn("Расхождение между ветками и позицией.")
	for _, b := range branches {
		e.logEntry(m.symbol).WithFields(map[string]interface{}{
			"branch_id": b.BranchID,
			"size":      b.Size,
			"wap":       b.WAP,
		}).Debug("Ветка при расхождении.")
	}
}
