package engine

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"risebot/internal/models"
)

// placeRiseBuy ставит лимитный BUY по лучшему bid. На рынок допускается
// ровно одно незакрытое BUY-намерение.
func (e *Engine) placeRiseBuy(ctx context.Context, m *marketState) {
	e.mu.Lock()
	pending := len(m.pendingBuys) > 0
	activeCnt := len(m.activeBranches())
	e.mu.Unlock()

	if pending {
		e.logEntry(m.symbol).Info("BUY уже размещён, ждём исполнения.")
		return
	}
	if e.cfg.Bot.MaxBranches > 0 && activeCnt >= e.cfg.Bot.MaxBranches {
		e.logEntry(m.symbol).WithField("branches", activeCnt).Info("Достигнут лимит веток, BUY не размещаем.")
		return
	}

	stats, err := e.client.GetMarketStatistics(ctx, m.symbol)
	if err != nil {
		e.logEntry(m.symbol).WithError(err).Warn("Не удалось получить лучший bid для BUY.")
		return
	}

	pos, err := e.client.GetPosition(ctx, m.symbol)
	if err != nil {
		e.logEntry(m.symbol).WithError(err).Warn("Не удалось получить позицию перед BUY.")
		return
	}

	market := e.cfg.Bot.Markets[m.symbol]
	price := e.norm.Price(m.symbol, stats.Bid)
	size := e.norm.Size(m.symbol, decimal.NewFromFloat(market.MinOrderSize*market.OrderMultiplier))
	clientID := newBuyClientID(m.symbol)

	placed, err := e.placeLimit(ctx, m.symbol, models.OrderSideBuy, price, size, clientID, e.buyTTL())
	if err != nil {
		e.logEntry(m.symbol).WithError(err).Warn("Не удалось разместить BUY.")
		return
	}

	e.mu.Lock()
	m.pendingBuys[placed.ID] = &pendingBuy{
		orderID:   placed.ID,
		clientID:  clientID,
		price:     price,
		size:      size,
		placedAt:  time.Now(),
		posBefore: pos.Size,
	}
	e.mu.Unlock()

	e.logEntry(m.symbol).WithFields(map[string]interface{}{
		"order_id":  placed.ID,
		"client_id": clientID,
		"price":     price,
		"size":      size,
	}).Info("BUY размещён.")
}

// enforceBuyTTLs сверяет незакрытые BUY-намерения с открытыми ордерами:
// пропавший ордер разбирается по дельте позиции, живой истёкший ордер
// снимается и переставляется.
func (e *Engine) enforceBuyTTLs(ctx context.Context, m *marketState) {
	e.mu.Lock()
	intents := make([]*pendingBuy, 0, len(m.pendingBuys))
	for _, intent := range m.pendingBuys {
		intents = append(intents, intent)
	}
	e.mu.Unlock()
	if len(intents) == 0 {
		return
	}

	opens, err := e.client.GetOpenOrders(ctx, m.symbol, models.OrderSideBuy)
	if err != nil {
		e.logEntry(m.symbol).WithError(err).Warn("Не удалось получить открытые BUY.")
		return
	}
	openByID := make(map[string]models.Order, len(opens))
	for _, ord := range opens {
		openByID[ord.ID] = ord
	}

	for _, intent := range intents {
		ord, open := openByID[intent.orderID]
		if !open {
			e.resolveVanishedBuy(ctx, m, intent)
			continue
		}

		if ord.Qty.IsPositive() && ord.FilledQty.GreaterThanOrEqual(ord.Qty) {
			e.dropPendingBuy(m, intent.orderID)
			e.logEntry(m.symbol).WithField("order_id", intent.orderID).Info("BUY полностью исполнен по статусу ордера.")
			e.onBuyFilled(m, intent.price, intent.size)
			continue
		}

		if time.Since(intent.placedAt) >= e.buyTTL() {
			e.requoteExpiredBuy(ctx, m, intent)
		}
	}
}

// resolveVanishedBuy: ордера нет в открытых, истину даёт дельта позиции
// относительно posBefore.
func (e *Engine) resolveVanishedBuy(ctx context.Context, m *marketState, intent *pendingBuy) {
	pos, err := e.client.GetPosition(ctx, m.symbol)
	if err != nil {
		e.logEntry(m.symbol).WithError(err).Warn("Не удалось получить позицию для сверки BUY.")
		return
	}

	e.dropPendingBuy(m, intent.orderID)
	delta := pos.Size.Sub(intent.posBefore)

	switch {
	case delta.GreaterThanOrEqual(intent.size):
		e.logEntry(m.symbol).WithFields(map[string]interface{}{
			"order_id": intent.orderID,
			"delta":    delta,
			"size":     intent.size,
		}).Info("BUY исполнен полностью по дельте позиции.")
		e.onBuyFilled(m, intent.price, intent.size)
	case delta.IsPositive():
		e.logEntry(m.symbol).WithFields(map[string]interface{}{
			"order_id": intent.orderID,
			"delta":    delta,
			"size":     intent.size,
		}).Info("BUY исполнен частично, остаток переставляем.")
		e.onBuyFilled(m, intent.price, delta)
		remaining := e.norm.Size(m.symbol, intent.size.Sub(delta))
		e.requoteBuy(ctx, m, remaining, intent.clientID, pos.Size)
	default:
		e.logEntry(m.symbol).WithField("order_id", intent.orderID).Info("BUY пропал без исполнения, переставляем.")
		e.requoteBuy(ctx, m, intent.size, intent.clientID, pos.Size)
	}
}

func (e *Engine) requoteExpiredBuy(ctx context.Context, m *marketState, intent *pendingBuy) {
	if err := e.client.CancelOrder(ctx, intent.orderID); err != nil {
		e.logEntry(m.symbol).WithError(err).WithField("order_id", intent.orderID).Warn("Не удалось отменить BUY по TTL.")
	} else {
		e.logEntry(m.symbol).WithFields(map[string]interface{}{
			"order_id": intent.orderID,
			"price":    intent.price,
			"size":     intent.size,
		}).Info("Отменяем BUY по TTL.")
	}
	e.dropPendingBuy(m, intent.orderID)

	pos, err := e.client.GetPosition(ctx, m.symbol)
	if err != nil {
		e.logEntry(m.symbol).WithError(err).Warn("Не удалось получить позицию перед перестановкой BUY.")
		return
	}
	e.requoteBuy(ctx, m, intent.size, intent.clientID, pos.Size)
}

func (e *Engine) requoteBuy(ctx context.Context, m *marketState, size decimal.Decimal, prevClientID string, posBefore decimal.Decimal) {
	if !size.IsPositive() {
		return
	}

	stats, err := e.client.GetMarketStatistics(ctx, m.symbol)
	if err != nil {
		e.logEntry(m.symbol).WithError(err).Warn("Не удалось получить bid для перестановки BUY.")
		return
	}

	price := e.norm.Price(m.symbol, stats.Bid)
	clientID := rotateClientID(prevClientID)
	placed, err := e.placeLimit(ctx, m.symbol, models.OrderSideBuy, price, size, clientID, e.buyTTL())
	if err != nil {
		e.logEntry(m.symbol).WithError(err).Warn("Не удалось переставить BUY.")
		return
	}

	e.mu.Lock()
	m.pendingBuys[placed.ID] = &pendingBuy{
		orderID:   placed.ID,
		clientID:  clientID,
		price:     price,
		size:      size,
		placedAt:  time.Now(),
		posBefore: posBefore,
	}
	e.mu.Unlock()

	e.logEntry(m.symbol).WithFields(map[string]interface{}{
		"order_id":  placed.ID,
		"client_id": clientID,
		"price":     price,
		"size":      size,
	}).Info("BUY переставлен.")
}

func (e *Engine) dropPendingBuy(m *marketState, orderID string) {
	e.mu.Lock()
	delete(m.pendingBuys, orderID)
	e.mu.Unlock()
}
