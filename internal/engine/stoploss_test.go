package engine

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"risebot/internal/models"
)

func fastSettle(t *testing.T) {
	t.Helper()
	old := settleDelay
	settleDelay = time.Millisecond
	t.Cleanup(func() { settleDelay = old })
}

func TestStopLossClosesBranchWithIOC(t *testing.T) {
	fastSettle(t)
	fake := newFakeExchange()
	fake.setStats(testSymbol, "97.9", "98.1", "97.5")
	fake.setPosition(testSymbol, "8", "100")
	e := newTestEngine(t, fake)
	m := e.markets[testSymbol]
	ctx := context.Background()

	e.onBuyFilled(m, d("100"), d("10"))
	b := m.branches[1]
	require.True(t, b.StopPrice.Equal(d("98")))

	e.checkBranchSL(ctx, m, d("97.5"))

	var ioc []models.Order
	for _, ord := range fake.placedBySide(models.OrderSideSell) {
		if ord.TimeInForce == models.TimeInForceIOC {
			ioc = append(ioc, ord)
		}
	}
	require.Len(t, ioc, 1)
	require.True(t, ioc[0].Qty.Equal(d("8")), "qty %s", ioc[0].Qty)
	require.True(t, ioc[0].Price.Equal(d("97.5")))
	require.True(t, ioc[0].ReduceOnly)

	require.False(t, b.Active)
}

func TestStopLossCancelsLadderOrders(t *testing.T) {
	fastSettle(t)
	fake := newFakeExchange()
	fake.setStats(testSymbol, "99.9", "100.1", "100")
	fake.setPosition(testSymbol, "10", "100")
	e := newTestEngine(t, fake)
	m := e.markets[testSymbol]
	ctx := context.Background()

	e.onBuyFilled(m, d("100"), d("10"))
	e.ensureBranchSells(ctx, m)
	require.Len(t, fake.openOrders(), 3)

	fake.setStats(testSymbol, "97.9", "98.1", "97.5")
	e.checkBranchSL(ctx, m, d("97.5"))

	require.False(t, m.branches[1].Active)
	require.Len(t, fake.cancelled, 3)
	for _, ord := range fake.openOrders() {
		require.NotContains(t, ord.ExternalID, ":BR1:S:")
	}
}

func TestStopLossAboveStopPriceDoesNothing(t *testing.T) {
	fake := newFakeExchange()
	fake.setStats(testSymbol, "99.9", "100.1", "100")
	fake.setPosition(testSymbol, "10", "100")
	e := newTestEngine(t, fake)
	m := e.markets[testSymbol]

	e.onBuyFilled(m, d("100"), d("10"))
	e.checkBranchSL(context.Background(), m, d("98.5"))

	require.True(t, m.branches[1].Active)
	require.Empty(t, fake.placedBySide(models.OrderSideSell))
}

func TestStopLossWithoutPositionDeactivatesQuietly(t *testing.T) {
	fake := newFakeExchange()
	fake.setStats(testSymbol, "97.9", "98.1", "97.5")
	fake.setPosition(testSymbol, "0", "0")
	e := newTestEngine(t, fake)
	m := e.markets[testSymbol]

	e.onBuyFilled(m, d("100"), d("10"))
	e.checkBranchSL(context.Background(), m, d("97.5"))

	require.False(t, m.branches[1].Active)
	require.Empty(t, fake.placedBySide(models.OrderSideSell))
}

func TestOrphanCleanupOnFlatPosition(t *testing.T) {
	fake := newFakeExchange()
	fake.setStats(testSymbol, "99.9", "100.1", "100")
	fake.setPosition(testSymbol, "10", "100")
	e := newTestEngine(t, fake)
	m := e.markets[testSymbol]
	ctx := context.Background()

	e.onBuyFilled(m, d("100"), d("10"))
	e.ensureBranchSells(ctx, m)
	require.Len(t, fake.openOrders(), 3)

	fake.setPosition(testSymbol, "0", "0")
	e.runOnce(ctx, testSymbol)

	require.False(t, m.branches[1].Active)
	require.True(t, m.branches[1].Size.IsZero())
	for _, ord := range fake.openOrders() {
		require.NotContains(t, ord.ExternalID, ":BR1:S:")
	}
}
