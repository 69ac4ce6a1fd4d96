package engine

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"risebot/internal/models"
)

// settleDelay — пауза после IOC, чтобы биржа успела отразить закрытие.
var settleDelay = 1 * time.Second

// checkBranchSL закрывает ветки, чья стоп-цена пробита последней ценой.
func (e *Engine) checkBranchSL(ctx context.Context, m *marketState, last decimal.Decimal) {
	e.mu.Lock()
	var toClose []*Branch
	for _, b := range m.activeBranches() {
		if last.LessThanOrEqual(b.StopPrice) {
			toClose = append(toClose, b)
		}
	}
	e.mu.Unlock()
	if len(toClose) == 0 {
		return
	}

	ids := make([]string, 0, len(toClose))
	for _, b := range toClose {
		ids = append(ids, fmt.Sprintf("%d", b.BranchID))
	}
	e.logEntry(m.symbol).WithFields(map[string]interface{}{
		"branches": strings.Join(ids, ","),
		"last":     last,
	}).Warn("Сработал стоп-лосс веток.")

	for _, b := range toClose {
		e.marketCloseBranch(ctx, m, b)
	}
}

// marketCloseBranch продаёт min(размер ветки, позиция) маркетабельным IOC,
// ждёт settleDelay, затем снимает оставшиеся SELL ветки и деактивирует её
// навсегда. Ошибка размещения оставляет ветку активной до следующего тика.
func (e *Engine) marketCloseBranch(ctx context.Context, m *marketState, b *Branch) {
	pos, err := e.client.GetPosition(ctx, m.symbol)
	if err != nil {
		e.logEntry(m.symbol).WithError(err).Warn("Не удалось получить позицию перед закрытием ветки.")
		return
	}

	e.mu.Lock()
	size := b.Size
	e.mu.Unlock()
	rem := e.norm.Size(m.symbol, decimal.Min(size, pos.Size))

	if !rem.IsPositive() {
		e.cancelBranchSells(ctx, m, b.BranchID)
		e.deactivateBranch(b)
		e.logBranchState(m.symbol, b, "deactivated-no-position")
		e.saveState()
		return
	}

	stats, err := e.client.GetMarketStatistics(ctx, m.symbol)
	if err != nil {
		e.logEntry(m.symbol).WithError(err).Warn("Не удалось получить цену для закрытия ветки.")
		return
	}

	order := models.Order{
		Symbol:      m.symbol,
		Side:        models.OrderSideSell,
		Type:        models.OrderTypeLimit,
		Price:       e.norm.Price(m.symbol, stats.Last),
		Qty:         rem,
		TimeInForce: models.TimeInForceIOC,
		ReduceOnly:  true,
		ExternalID:  newCloseClientID(m.symbol, b.BranchID),
	}
	if _, err := e.client.PlaceOrder(ctx, order); err != nil {
		e.logEntry(m.symbol).WithError(err).WithField("branch_id", b.BranchID).Error("Не удалось разместить IOC для стоп-лосса.")
		return
	}
	e.logEntry(m.symbol).WithFields(map[string]interface{}{
		"branch_id": b.BranchID,
		"qty":       rem,
		"price":     order.Price,
	}).Warn("Ветка закрывается маркетабельным IOC.")

	select {
	case <-ctx.Done():
		return
	case <-time.After(settleDelay):
	}

	note := "deactivated-after-sl"
	if cur, err := e.client.GetPosition(ctx, m.symbol); err != nil || cur.Size.IsPositive() {
		note = "deactivated-forced"
	}

	e.cancelBranchSells(ctx, m, b.BranchID)
	e.deactivateBranch(b)
	e.logBranchState(m.symbol, b, note)
	e.saveState()
}

// cancelBranchSells снимает все открытые SELL из неймспейса ветки.
func (e *Engine) cancelBranchSells(ctx context.Context, m *marketState, branchID int64) {
	opens, err := e.client.GetOpenOrders(ctx, m.symbol, models.OrderSideSell)
	if err != nil {
		e.logEntry(m.symbol).WithError(err).Warn("Не удалось получить SELL для отмены.")
		return
	}

	marker := branchSellMarker(branchID)
	cancelled := 0
	for _, ord := range opens {
		if !strings.Contains(ord.ExternalID, marker) {
			continue
		}
		if err := e.client.CancelOrder(ctx, ord.ID); err != nil {
			e.logEntry(m.symbol).WithError(err).WithField("order_id", ord.ID).Warn("Не удалось отменить SELL ветки.")
			continue
		}
		cancelled++
	}
	if cancelled > 0 {
		e.logEntry(m.symbol).WithFields(map[string]interface{}{
			"branch_id": branchID,
			"cancelled": cancelled,
		}).Info("Сняты SELL ветки.")
	}
}

func (e *Engine) deactivateBranch(b *Branch) {
	e.mu.Lock()
	b.Active = false
	b.LastUpdated = time.Now().UTC()
	e.mu.Unlock()
}
