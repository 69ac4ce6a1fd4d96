package engine

import (
	"context"
	"fmt"
	"math"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"risebot/internal/config"
	"risebot/internal/exchange"
	"risebot/internal/logger"
	"risebot/internal/precision"
)

type Engine struct {
	cfg    *config.Config
	client exchange.Client
	log    *logger.Logger
	norm   *precision.Normalizer
	store  *Store

	mu      sync.Mutex
	markets map[string]*marketState
}

func New(cfg *config.Config, client exchange.Client, log *logger.Logger) *Engine {
	rules := make(map[string]precision.MarketRule, len(cfg.Bot.Markets))
	for symbol, market := range cfg.Bot.Markets {
		rules[symbol] = precision.MarketRule{
			PricePrecision: int32(market.PricePrecision),
			SizePrecision:  int32(market.SizePrecision),
			MinOrderSize:   decimal.NewFromFloat(market.MinOrderSize),
		}
	}

	e := &Engine{
		cfg:     cfg,
		client:  client,
		log:     log,
		norm:    precision.New(rules),
		store:   NewStore(cfg.Bot.StateFile, log),
		markets: make(map[string]*marketState, len(cfg.Bot.Markets)),
	}
	for symbol := range cfg.Bot.Markets {
		e.markets[symbol] = newMarketState(symbol)
	}
	return e
}

func (e *Engine) Start(ctx context.Context) error {
	e.restoreState()

	if err := e.probeExchange(ctx); err != nil {
		return err
	}

	for _, symbol := range e.cfg.Bot.Symbols() {
		e.restorePendingBuys(ctx, symbol)
	}

	ticker := time.NewTicker(time.Duration(e.cfg.Bot.TickSeconds) * time.Second)
	defer ticker.Stop()

	for {
		e.runTick(ctx)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

func (e *Engine) runTick(ctx context.Context) {
	var wg sync.WaitGroup
	for symbol := range e.markets {
		wg.Add(1)
		go func(symbol string) {
			defer wg.Done()
			defer func() {
				if r := recover(); r != nil {
					e.logEntry(symbol).Error(fmt.Sprintf("Паника в проходе рынка: %v", r))
				}
			}()
			e.runOnce(ctx, symbol)
		}(symbol)
	}
	wg.Wait()
}

func (e *Engine) runOnce(ctx context.Context, symbol string) {
	m := e.markets[symbol]

	stats, err := e.client.GetMarketStatistics(ctx, symbol)
	if err != nil {
		e.logEntry(symbol).WithError(err).Warn("Не удалось получить статистику рынка, пропуск тика.")
		return
	}
	last := stats.Last

	pos, err := e.client.GetPosition(ctx, symbol)
	if err != nil {
		e.logEntry(symbol).WithError(err).Warn("Не удалось получить позицию, пропуск тика.")
		return
	}

	e.mu.Lock()
	activeCnt := len(m.activeBranches())
	e.mu.Unlock()
	e.logEntry(symbol).WithFields(map[string]interface{}{
		"last":     last,
		"pos":      pos.Size,
		"wap":      pos.OpenPrice,
		"branches": activeCnt,
	}).Debug("tick")

	if !pos.Size.IsPositive() {
		e.deactivateAllBranches(ctx, m)
	}

	e.maybeBuyOnRise(ctx, m, last)
	e.trackSellExecutions(ctx, m)
	e.logPositionMismatch(ctx, m)

	e.mu.Lock()
	due := time.Since(m.lastSellCheck) >= time.Duration(e.cfg.Bot.SellCheckSeconds)*time.Second
	if due {
		m.lastSellCheck = time.Now()
	}
	e.mu.Unlock()
	if due {
		e.ensureBranchSells(ctx, m)
	}

	e.checkBranchSL(ctx, m, last)
	e.checkSellTTLs(ctx, m)
	e.enforceBuyTTLs(ctx, m)
}

// deactivateAllBranches — уборка сирот: позиции нет, значит все активные
// ветки потеряли покрытие и их SELL висят без обеспечения.
func (e *Engine) deactivateAllBranches(ctx context.Context, m *marketState) {
	e.mu.Lock()
	branches := m.activeBranches()
	e.mu.Unlock()
	if len(branches) == 0 {
		return
	}

	for _, b := range branches {
		e.cancelBranchSells(ctx, m, b.BranchID)
		e.mu.Lock()
		b.Active = false
		b.Size = decimal.Zero
		b.LastUpdated = time.Now().UTC()
		e.mu.Unlock()
		e.logEntry(m.symbol).WithField("branch_id", b.BranchID).Warn("Ветка деактивирована: позиции на бирже нет.")
	}
	e.saveState()
}

func (e *Engine) restoreState() {
	snap := e.store.Load()

	e.mu.Lock()
	restored := 0
	for symbol, m := range e.markets {
		if branches, ok := snap.Branches[symbol]; ok {
			for id, b := range branches {
				if b == nil {
					continue
				}
				if b.Sells == nil {
					b.Sells = map[string]*SellLeg{}
				}
				m.branches[id] = b
				restored++
			}
		}
		if next, ok := snap.NextBranchID[symbol]; ok && next > 0 {
			m.nextBranchID = next
		}
		if anchor, ok := snap.RiseAnchor[symbol]; ok {
			m.anchor = anchor
		}
	}
	e.mu.Unlock()

	e.log.WithComponent("engine").WithFields(map[string]interface{}{
		"branches": restored,
		"markets":  len(e.markets),
	}).Info("Состояние восстановлено из файла.")
}

func (e *Engine) saveState() {
	e.mu.Lock()
	defer e.mu.Unlock()

	snap := emptySnapshot()
	for symbol, m := range e.markets {
		if len(m.branches) > 0 {
			snap.Branches[symbol] = m.branches
		}
		snap.NextBranchID[symbol] = m.nextBranchID
		snap.RiseAnchor[symbol] = m.anchor
	}

	if err := e.store.Save(snap); err != nil {
		e.log.WithComponent("engine").WithError(err).Error("Не удалось сохранить состояние.")
	}
}

func (e *Engine) probeExchange(ctx context.Context) error {
	for _, symbol := range e.cfg.Bot.Symbols() {
		if err := e.probeMarket(ctx, symbol); err != nil {
			return fmt.Errorf("Биржа недоступна для %s: %w", symbol, err)
		}
	}
	return nil
}

func (e *Engine) probeMarket(ctx context.Context, symbol string) error {
	var lastErr error
	var backoff time.Duration = 1 * time.Second
	for i := 0; i < 5; i++ {
		stats, err := e.client.GetMarketStatistics(ctx, symbol)
		if err == nil {
			e.logEntry(symbol).WithField("last", stats.Last).Info("Рынок доступен.")
			return nil
		}
		lastErr = err
		wait := backoff
		if isRateLimitError(err) {
			wait = time.Duration(math.Min(float64(backoff*4), float64(30*time.Second)))
		}
		e.logEntry(symbol).WithError(lastErr).Warn("Ошибка, повторяем запрос.")
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(wait):
		}
		backoff *= 2
	}
	return lastErr
}

func isRateLimitError(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "Превышен лимит запросов") || strings.Contains(msg, "429") || strings.Contains(msg, "RATE_LIMIT")
}
