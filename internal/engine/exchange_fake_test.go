package engine

import (
	"context"
	"fmt"
	"path/filepath"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"risebot/internal/config"
	"risebot/internal/logger"
	"risebot/internal/models"
)

const testSymbol = "SOL-USD"

func d(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

type fakeExchange struct {
	mu        sync.Mutex
	stats     map[string]models.MarketStats
	positions map[string]models.Position
	open      []models.Order
	placed    []models.Order
	cancelled []string
	nextID    int

	statsErr error
	posErr   error
	placeErr error
}

func newFakeExchange() *fakeExchange {
	return &fakeExchange{
		stats:     map[string]models.MarketStats{},
		positions: map[string]models.Position{},
	}
}

func (f *fakeExchange) setStats(symbol string, bid, ask, last string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stats[symbol] = models.MarketStats{
		Symbol:    symbol,
		Bid:       d(bid),
		Ask:       d(ask),
		Last:      d(last),
		Timestamp: time.Now(),
	}
}

func (f *fakeExchange) setPosition(symbol string, size, wap string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.positions[symbol] = models.Position{
		Symbol:    symbol,
		Size:      d(size),
		OpenPrice: d(wap),
	}
}

func (f *fakeExchange) GetMarketStatistics(ctx context.Context, symbol string) (models.MarketStats, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.statsErr != nil {
		return models.MarketStats{}, f.statsErr
	}
	st, ok := f.stats[symbol]
	if !ok {
		return models.MarketStats{}, fmt.Errorf("нет статистики для %s", symbol)
	}
	return st, nil
}

func (f *fakeExchange) GetPosition(ctx context.Context, symbol string) (models.Position, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.posErr != nil {
		return models.Position{}, f.posErr
	}
	pos, ok := f.positions[symbol]
	if !ok {
		return models.Position{Symbol: symbol}, nil
	}
	return pos, nil
}

func (f *fakeExchange) GetOpenOrders(ctx context.Context, symbol string, side models.OrderSide) ([]models.Order, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []models.Order
	for _, ord := range f.open {
		if ord.Symbol != symbol {
			continue
		}
		if side != "" && ord.Side != side {
			continue
		}
		out = append(out, ord)
	}
	return out, nil
}

func (f *fakeExchange) PlaceOrder(ctx context.Context, order models.Order) (models.Order, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.placeErr != nil {
		return models.Order{}, f.placeErr
	}
	f.nextID++
	order.ID = strconv.Itoa(f.nextID)
	order.Status = models.OrderStatusNew
	order.CreateTime = time.Now()
	f.placed = append(f.placed, order)
	if order.TimeInForce != models.TimeInForceIOC {
		f.open = append(f.open, order)
	}
	return order, nil
}

func (f *fakeExchange) CancelOrder(ctx context.Context, orderID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cancelled = append(f.cancelled, orderID)
	for i, ord := range f.open {
		if ord.ID == orderID {
			f.open = append(f.open[:i], f.open[i+1:]...)
			break
		}
	}
	return nil
}

// removeOpen имитирует исполнение: ордер исчезает из открытых без отмены.
func (f *fakeExchange) removeOpen(orderID string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i, ord := range f.open {
		if ord.ID == orderID {
			f.open = append(f.open[:i], f.open[i+1:]...)
			return
		}
	}
}

func (f *fakeExchange) placedBySide(side models.OrderSide) []models.Order {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []models.Order
	for _, ord := range f.placed {
		if ord.Side == side {
			out = append(out, ord)
		}
	}
	return out
}

func (f *fakeExchange) openOrders() []models.Order {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]models.Order, len(f.open))
	copy(out, f.open)
	return out
}

func (f *fakeExchange) setOpenCreateTime(orderID string, ts time.Time) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := range f.open {
		if f.open[i].ID == orderID {
			f.open[i].CreateTime = ts
			return
		}
	}
}

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	return &config.Config{
		Bot: config.BotConfig{
			Markets: map[string]config.MarketConfig{
				testSymbol: {
					Symbol:          testSymbol,
					MinOrderSize:    1,
					OrderMultiplier: 10,
					PricePrecision:  3,
					SizePrecision:   1,
					RiseStepPct:     0.003,
					SellStepsPct:    []float64{0.003, 0.006, 0.009},
				},
			},
			TickSeconds:      3,
			BuyTTLSeconds:    300,
			SellTTLSeconds:   2592000,
			SellCheckSeconds: 0,
			SellSplit:        []float64{0.30, 0.30, 0.40},
			PnlMinPct:        0.0005,
			BranchSLPct:      -0.02,
			StateFile:        filepath.Join(t.TempDir(), "state.json"),
		},
	}
}

func newTestEngine(t *testing.T, fake *fakeExchange) *Engine {
	t.Helper()
	log := logger.New(logger.Config{Level: "error"})
	return New(testConfig(t), fake, log)
}
