package engine

import (
	"context"
	"sort"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"risebot/internal/models"
)

// onBuyFilled создаёт новую ветку с лесенкой из трёх SELL-ног.
func (e *Engine) onBuyFilled(m *marketState, price, size decimal.Decimal) {
	market := e.cfg.Bot.Markets[m.symbol]

	e.mu.Lock()
	branchID := m.newBranchID()
	stop := e.norm.Price(m.symbol, price.Mul(one.Add(decimal.NewFromFloat(e.cfg.Bot.BranchSLPct))))
	now := time.Now().UTC()
	branch := &Branch{
		BranchID:    branchID,
		Symbol:      m.symbol,
		BuyPrice:    price,
		Size:        size,
		WAP:         price,
		StopPrice:   stop,
		Active:      true,
		Sells:       make(map[string]*SellLeg, len(legOrder)),
		CreatedAt:   now,
		LastUpdated: now,
	}
	for i, leg := range legOrder {
		branch.Sells[leg] = &SellLeg{
			Leg:       leg,
			TargetPct: decimal.NewFromFloat(market.SellStepsPct[i]),
			Size:      e.norm.Size(m.symbol, size.Mul(decimal.NewFromFloat(e.cfg.Bot.SellSplit[i]))),
		}
	}
	m.branches[branchID] = branch
	e.mu.Unlock()

	e.logEntry(m.symbol).WithFields(map[string]interface{}{
		"branch_id": branchID,
		"buy_price": price,
		"size":      size,
	}).Info("Новая ветка.")
	e.logBranchState(m.symbol, branch, "created")
	e.saveState()
}

// ensureBranchSells — главный сверочный проход по SELL-лесенкам: принятие
// чужих по рестарту ордеров, дедупликация, подгон веток под позицию и
// довыставление недостающих ног.
func (e *Engine) ensureBranchSells(ctx context.Context, m *marketState) {
	e.mu.Lock()
	has := m.hasActive()
	e.mu.Unlock()
	if !has {
		return
	}

	pos, err := e.client.GetPosition(ctx, m.symbol)
	if err != nil {
		e.logEntry(m.symbol).WithError(err).Warn("Не удалось получить позицию для SELL.")
		return
	}
	if !pos.Size.IsPositive() {
		e.logEntry(m.symbol).Debug("Нет позиции, SELL не выставляем.")
		return
	}

	opens, err := e.client.GetOpenOrders(ctx, m.symbol, models.OrderSideSell)
	if err != nil {
		e.logEntry(m.symbol).WithError(err).Warn("Не удалось получить открытые SELL.")
		return
	}
	openByCID := make(map[string]models.Order, len(opens))
	for _, ord := range opens {
		if ord.ExternalID != "" {
			openByCID[ord.ExternalID] = ord
		}
	}

	e.scaleDownBranches(m, pos.Size)

	e.mu.Lock()
	branches := m.activeBranches()
	e.mu.Unlock()
	for _, b := range branches {
		e.ensureBranchLadder(ctx, m, b, openByCID)
	}
}

// scaleDownBranches пропорционально ужимает все активные ветки, когда их
// суммарный размер превышает позицию на бирже.
func (e *Engine) scaleDownBranches(m *marketState, posSize decimal.Decimal) {
	e.mu.Lock()
	total := m.totalActiveSize()
	if !total.IsPositive() || total.LessThanOrEqual(posSize) {
		e.mu.Unlock()
		return
	}

	scale := posSize.Div(total)
	var scaled []*Branch
	for _, b := range m.activeBranches() {
		newSize := e.norm.Size(m.symbol, b.Size.Mul(scale))
		if newSize.Equal(b.Size) {
			continue
		}
		b.Size = newSize
		for i, leg := range legOrder {
			if sl, ok := b.Sells[leg]; ok {
				sl.Size = e.norm.Size(m.symbol, b.Size.Mul(decimal.NewFromFloat(e.cfg.Bot.SellSplit[i])))
			}
		}
		b.LastUpdated = time.Now().UTC()
		scaled = append(scaled, b)
	}
	e.mu.Unlock()

	if len(scaled) == 0 {
		return
	}
	for _, b := range scaled {
		e.logEntry(m.symbol).WithFields(map[string]interface{}{
			"branch_id": b.BranchID,
			"size":      b.Size,
			"scale":     scale,
		}).Warn("Ветка ужата под позицию.")
	}
	e.saveState()
}

func (e *Engine) ensureBranchLadder(ctx context.Context, m *marketState, b *Branch, openByCID map[string]models.Order) {
	changed := false

	// принятие и дедупликация по неймспейсу client id
	for _, legName := range legOrder {
		e.mu.Lock()
		leg := b.Sells[legName]
		e.mu.Unlock()
		if leg == nil {
			continue
		}

		prefix := sellClientPrefix(m.symbol, b.BranchID, legName)
		var matching []models.Order
		for cid, ord := range openByCID {
			if strings.HasPrefix(cid, prefix) {
				matching = append(matching, ord)
			}
		}
		if len(matching) == 0 {
			continue
		}
		sort.Slice(matching, func(i, j int) bool {
			return matching[i].CreateTime.Before(matching[j].CreateTime)
		})

		keep := matching[0]
		e.mu.Lock()
		adopted := leg.ClientID == ""
		if leg.ClientID != keep.ExternalID {
			leg.ClientID = keep.ExternalID
			leg.OrderID = keep.ID
			leg.Price = keep.Price
			b.LastUpdated = time.Now().UTC()
			changed = true
		}
		e.mu.Unlock()
		if adopted {
			e.logEntry(m.symbol).WithFields(map[string]interface{}{
				"branch_id": b.BranchID,
				"leg":       legName,
				"order_id":  keep.ID,
				"price":     keep.Price,
				"qty":       keep.Qty,
			}).Info("Принят существующий SELL.")
		}

		for _, extra := range matching[1:] {
			if err := e.client.CancelOrder(ctx, extra.ID); err != nil {
				e.logEntry(m.symbol).WithError(err).WithField("order_id", extra.ID).Warn("Не удалось отменить дубликат SELL.")
				continue
			}
			delete(openByCID, extra.ExternalID)
			e.logEntry(m.symbol).WithFields(map[string]interface{}{
				"branch_id": b.BranchID,
				"leg":       legName,
				"order_id":  extra.ID,
			}).Warn("Отменён дубликат SELL.")
		}
	}

	e.mu.Lock()
	wap := b.WAP
	if wap.IsZero() {
		wap = b.BuyPrice
	}
	buyPrice := b.BuyPrice
	branchSize := b.Size
	e.mu.Unlock()
	pnlFloor := wap.Mul(one.Add(decimal.NewFromFloat(e.cfg.Bot.PnlMinPct)))

	// открытые ноги, оказавшиеся ниже актуального ценового пола, снимаются
	for _, legName := range legOrder {
		e.mu.Lock()
		leg := b.Sells[legName]
		var cid string
		if leg != nil {
			cid = leg.ClientID
		}
		e.mu.Unlock()
		if leg == nil || cid == "" {
			continue
		}
		ord, open := openByCID[cid]
		if !open {
			continue
		}

		target := buyPrice.Mul(one.Add(leg.TargetPct))
		minPrice := e.norm.Price(m.symbol, decimal.Max(target, pnlFloor))
		if ord.Price.GreaterThanOrEqual(minPrice) {
			continue
		}
		if err := e.client.CancelOrder(ctx, ord.ID); err != nil {
			e.logEntry(m.symbol).WithError(err).WithField("order_id", ord.ID).Warn("Не удалось отменить SELL ниже пола.")
			continue
		}
		delete(openByCID, cid)
		e.mu.Lock()
		leg.ClientID = ""
		leg.OrderID = ""
		leg.Price = decimal.Zero
		b.LastUpdated = time.Now().UTC()
		e.mu.Unlock()
		changed = true
		e.logEntry(m.symbol).WithFields(map[string]interface{}{
			"branch_id": b.BranchID,
			"leg":       legName,
			"old_price": ord.Price,
			"min_price": minPrice,
		}).Info("SELL ниже нового пола, снят для перестановки.")
	}

	// сумма уже выставленного, чтобы не продать больше размера ветки
	placedTotal := decimal.Zero
	for _, legName := range legOrder {
		e.mu.Lock()
		leg := b.Sells[legName]
		var cid string
		if leg != nil {
			cid = leg.ClientID
		}
		e.mu.Unlock()
		if cid == "" {
			continue
		}
		if ord, ok := openByCID[cid]; ok {
			placedTotal = placedTotal.Add(ord.Qty)
		}
	}

	for _, legName := range legOrder {
		e.mu.Lock()
		leg := b.Sells[legName]
		var cid string
		var legSize, targetPct decimal.Decimal
		if leg != nil {
			cid = leg.ClientID
			legSize = leg.Size
			targetPct = leg.TargetPct
		}
		e.mu.Unlock()
		if leg == nil {
			continue
		}
		if cid != "" {
			if _, ok := openByCID[cid]; ok {
				continue
			}
		}

		target := buyPrice.Mul(one.Add(targetPct))
		if target.LessThanOrEqual(wap) {
			e.logEntry(m.symbol).WithFields(map[string]interface{}{
				"branch_id": b.BranchID,
				"leg":       legName,
				"target":    target,
				"wap":       wap,
			}).Warn("SELL пропущен: цель не выше средней цены.")
			continue
		}
		minPrice := e.norm.Price(m.symbol, decimal.Max(target, pnlFloor))

		remaining := branchSize.Sub(placedTotal)
		if !remaining.IsPositive() {
			continue
		}
		placeSize := e.norm.Size(m.symbol, decimal.Min(legSize, remaining))
		if !placeSize.IsPositive() {
			continue
		}

		clientID := newSellClientID(m.symbol, b.BranchID, legName)
		placed, err := e.placeLimit(ctx, m.symbol, models.OrderSideSell, minPrice, placeSize, clientID, e.sellTTL())
		if err != nil {
			e.logEntry(m.symbol).WithError(err).WithFields(map[string]interface{}{
				"branch_id": b.BranchID,
				"leg":       legName,
			}).Warn("Не удалось разместить SELL.")
			continue
		}

		e.mu.Lock()
		leg.ClientID = clientID
		leg.OrderID = placed.ID
		leg.Price = minPrice
		b.LastUpdated = time.Now().UTC()
		e.mu.Unlock()
		placedTotal = placedTotal.Add(placeSize)
		changed = true

		e.logEntry(m.symbol).WithFields(map[string]interface{}{
			"branch_id": b.BranchID,
			"leg":       legName,
			"order_id":  placed.ID,
			"price":     minPrice,
			"size":      placeSize,
			"pnl_floor": pnlFloor,
		}).Info("SELL выставлен.")
	}

	if changed {
		e.saveState()
	}
}

// trackSellExecutions: пропавшая из открытых нога считается исполненной
// целиком, размер ветки уменьшается, нулевой размер деактивирует ветку.
func (e *Engine) trackSellExecutions(ctx context.Context, m *marketState) {
	e.mu.Lock()
	has := m.hasActive()
	e.mu.Unlock()
	if !has {
		return
	}

	opens, err := e.client.GetOpenOrders(ctx, m.symbol, models.OrderSideSell)
	if err != nil {
		e.logEntry(m.symbol).WithError(err).Warn("Не удалось получить SELL для отслеживания исполнений.")
		return
	}
	openByCID := make(map[string]bool, len(opens))
	for _, ord := range opens {
		if ord.ExternalID != "" {
			openByCID[ord.ExternalID] = true
		}
	}

	type branchChange struct {
		branch   *Branch
		executed decimal.Decimal
		oldSize  decimal.Decimal
		closed   bool
	}
	var changes []branchChange

	e.mu.Lock()
	for _, b := range m.activeBranches() {
		executed := decimal.Zero
		for _, legName := range legOrder {
			leg := b.Sells[legName]
			if leg == nil || leg.ClientID == "" {
				continue
			}
			if openByCID[leg.ClientID] {
				continue
			}
			executed = executed.Add(leg.Size)
			leg.OrderID = ""
			leg.ClientID = ""
			leg.Price = decimal.Zero
		}
		if !executed.IsPositive() {
			continue
		}

		change := branchChange{branch: b, executed: executed, oldSize: b.Size}
		if executed.GreaterThanOrEqual(b.Size) {
			b.Size = decimal.Zero
			b.Active = false
			change.closed = true
		} else {
			b.Size = e.norm.Size(m.symbol, b.Size.Sub(executed))
		}
		b.LastUpdated = time.Now().UTC()
		changes = append(changes, change)
	}
	e.mu.Unlock()

	if len(changes) == 0 {
		return
	}
	for _, ch := range changes {
		if ch.closed {
			e.logEntry(m.symbol).WithFields(map[string]interface{}{
				"branch_id": ch.branch.BranchID,
				"executed":  ch.executed,
			}).Info("Ветка продана полностью.")
		} else {
			e.logEntry(m.symbol).WithFields(map[string]interface{}{
				"branch_id": ch.branch.BranchID,
				"executed":  ch.executed,
				"old_size":  ch.oldSize,
				"new_size":  ch.branch.Size,
			}).Info("Размер ветки уменьшен по исполнениям SELL.")
		}
		e.logBranchState(m.symbol, ch.branch, "sell-executed")
	}
	e.saveState()
}

// checkSellTTLs снимает SELL, провисевшие дольше sell_ttl_seconds. Новая
// нога будет выставлена следующим проходом ensureBranchSells.
func (e *Engine) checkSellTTLs(ctx context.Context, m *marketState) {
	e.mu.Lock()
	has := m.hasActive()
	e.mu.Unlock()
	if !has {
		return
	}

	opens, err := e.client.GetOpenOrders(ctx, m.symbol, models.OrderSideSell)
	if err != nil {
		e.logEntry(m.symbol).WithError(err).Warn("Не удалось получить SELL для проверки TTL.")
		return
	}

	changed := false
	for _, ord := range opens {
		branchID, legName, ok := parseSellClientID(ord.ExternalID)
		if !ok {
			continue
		}
		if ord.CreateTime.IsZero() || time.Since(ord.CreateTime) < e.sellTTL() {
			continue
		}

		e.mu.Lock()
		b := m.branches[branchID]
		var leg *SellLeg
		if b != nil && b.Active {
			leg = b.Sells[legName]
		}
		e.mu.Unlock()
		if leg == nil {
			continue
		}

		if err := e.client.CancelOrder(ctx, ord.ID); err != nil {
			e.logEntry(m.symbol).WithError(err).WithField("order_id", ord.ID).Warn("Не удалось отменить SELL по TTL.")
			continue
		}

		e.mu.Lock()
		if leg.ClientID == ord.ExternalID {
			leg.ClientID = ""
			leg.OrderID = ""
			leg.Price = decimal.Zero
		}
		b.LastUpdated = time.Now().UTC()
		e.mu.Unlock()
		changed = true

		e.logEntry(m.symbol).WithFields(map[string]interface{}{
			"branch_id": branchID,
			"leg":       legName,
			"order_id":  ord.ID,
		}).Info("SELL снят по TTL.")
	}
	if changed {
		e.saveState()
	}
}
