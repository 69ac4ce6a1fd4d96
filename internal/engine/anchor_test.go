package engine

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"

	"risebot/internal/models"
)

func TestAnchorFollowsMinimumAndTriggersOnRise(t *testing.T) {
	fake := newFakeExchange()
	fake.setStats(testSymbol, "99.9", "100.1", "100")
	e := newTestEngine(t, fake)
	m := e.markets[testSymbol]
	ctx := context.Background()

	for _, p := range []string{"100", "98", "97"} {
		e.maybeBuyOnRise(ctx, m, d(p))
		require.Empty(t, fake.placedBySide(models.OrderSideBuy))
	}
	require.True(t, m.anchor.Valid)
	require.True(t, m.anchor.Decimal.Equal(d("97")), "anchor %s", m.anchor.Decimal)

	// 97.2 < 97*1.003 = 97.291: ещё не триггер и не новый минимум
	e.maybeBuyOnRise(ctx, m, d("97.2"))
	require.Empty(t, fake.placedBySide(models.OrderSideBuy))
	require.True(t, m.anchor.Decimal.Equal(d("97")))

	e.maybeBuyOnRise(ctx, m, d("100"))
	buys := fake.placedBySide(models.OrderSideBuy)
	require.Len(t, buys, 1)
	require.True(t, buys[0].Price.Equal(d("99.9")), "price %s", buys[0].Price)
	require.True(t, buys[0].Qty.Equal(d("10")), "qty %s", buys[0].Qty)
	require.Equal(t, models.TimeInForceGTT, buys[0].TimeInForce)
	require.True(t, m.anchor.Decimal.Equal(d("100")), "anchor %s", m.anchor.Decimal)
}

func TestAnchorResetsEvenWhenPlacementFails(t *testing.T) {
	fake := newFakeExchange()
	fake.setStats(testSymbol, "99.9", "100.1", "100")
	fake.placeErr = fmt.Errorf("биржа недоступна")
	e := newTestEngine(t, fake)
	m := e.markets[testSymbol]
	ctx := context.Background()

	e.maybeBuyOnRise(ctx, m, d("97"))
	e.maybeBuyOnRise(ctx, m, d("100"))

	require.Empty(t, m.pendingBuys)
	require.True(t, m.anchor.Decimal.Equal(d("100")), "anchor %s", m.anchor.Decimal)
}

func TestSingleFlightBuyIntent(t *testing.T) {
	fake := newFakeExchange()
	fake.setStats(testSymbol, "99.9", "100.1", "100")
	e := newTestEngine(t, fake)
	m := e.markets[testSymbol]
	ctx := context.Background()

	e.maybeBuyOnRise(ctx, m, d("97"))
	e.maybeBuyOnRise(ctx, m, d("100"))
	require.Len(t, fake.placedBySide(models.OrderSideBuy), 1)
	require.Len(t, m.pendingBuys, 1)

	// новый минимум и новый триггер при висящем BUY не дают второго ордера
	e.maybeBuyOnRise(ctx, m, d("90"))
	e.maybeBuyOnRise(ctx, m, d("95"))
	require.Len(t, fake.placedBySide(models.OrderSideBuy), 1)
	require.Len(t, m.pendingBuys, 1)
}

func TestMaxBranchesBlocksBuy(t *testing.T) {
	fake := newFakeExchange()
	fake.setStats(testSymbol, "99.9", "100.1", "100")
	e := newTestEngine(t, fake)
	e.cfg.Bot.MaxBranches = 1
	m := e.markets[testSymbol]
	ctx := context.Background()

	e.onBuyFilled(m, d("100"), d("10"))
	e.maybeBuyOnRise(ctx, m, d("97"))
	e.maybeBuyOnRise(ctx, m, d("100"))

	require.Empty(t, fake.placedBySide(models.OrderSideBuy))
}
