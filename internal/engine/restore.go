package engine

import (
	"context"
	"time"

	"risebot/internal/models"
)

// restorePendingBuys принимает после рестарта открытые BUY-ордера из нашего
// неймспейса client id. posBefore восстанавливается как текущая позиция
// минус уже исполненная часть ордера.
func (e *Engine) restorePendingBuys(ctx context.Context, symbol string) {
	m := e.markets[symbol]

	opens, err := e.client.GetOpenOrders(ctx, symbol, models.OrderSideBuy)
	if err != nil {
		e.logEntry(symbol).WithError(err).Warn("Не удалось получить открытые BUY для восстановления.")
		return
	}

	var pos models.Position
	posLoaded := false
	for _, ord := range opens {
		if !isRiseClientID(symbol, ord.ExternalID) {
			continue
		}
		if !posLoaded {
			pos, err = e.client.GetPosition(ctx, symbol)
			if err != nil {
				e.logEntry(symbol).WithError(err).Warn("Не удалось получить позицию для восстановления BUY.")
				return
			}
			posLoaded = true
		}

		placedAt := ord.CreateTime
		if placedAt.IsZero() {
			placedAt = time.Now()
		}

		e.mu.Lock()
		m.pendingBuys[ord.ID] = &pendingBuy{
			orderID:   ord.ID,
			clientID:  ord.ExternalID,
			price:     ord.Price,
			size:      ord.Qty,
			placedAt:  placedAt,
			posBefore: pos.Size.Sub(ord.FilledQty),
		}
		e.mu.Unlock()

		e.logEntry(symbol).WithFields(map[string]interface{}{
			"order_id":  ord.ID,
			"client_id": ord.ExternalID,
			"price":     ord.Price,
			"size":      ord.Qty,
			"filled":    ord.FilledQty,
		}).Info("Принят существующий BUY после рестарта.")
	}
}
