package engine

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"risebot/internal/models"
)

func pendingIntent(m *marketState, orderID string, price, size, posBefore decimal.Decimal, placedAt time.Time) *pendingBuy {
	intent := &pendingBuy{
		orderID:   orderID,
		clientID:  testSymbol + ":RISE:abcd1234",
		price:     price,
		size:      size,
		placedAt:  placedAt,
		posBefore: posBefore,
	}
	m.pendingBuys[orderID] = intent
	return intent
}

func TestVanishedBuyFullFillCreatesBranch(t *testing.T) {
	fake := newFakeExchange()
	fake.setStats(testSymbol, "99.9", "100.1", "100")
	fake.setPosition(testSymbol, "10", "100")
	e := newTestEngine(t, fake)
	m := e.markets[testSymbol]

	pendingIntent(m, "42", d("100"), d("10"), d("0"), time.Now())
	e.enforceBuyTTLs(context.Background(), m)

	require.Empty(t, m.pendingBuys)
	require.Len(t, m.branches, 1)
	b := m.branches[1]
	require.True(t, b.Active)
	require.True(t, b.Size.Equal(d("10")))
	require.True(t, b.BuyPrice.Equal(d("100")))
	require.Empty(t, fake.placedBySide(models.OrderSideBuy))
}

func TestVanishedBuyPartialFillRequotesRemainder(t *testing.T) {
	fake := newFakeExchange()
	fake.setStats(testSymbol, "99.5", "99.7", "99.6")
	fake.setPosition(testSymbol, "4", "100")
	e := newTestEngine(t, fake)
	m := e.markets[testSymbol]

	pendingIntent(m, "42", d("100"), d("10"), d("0"), time.Now())
	e.enforceBuyTTLs(context.Background(), m)

	require.Len(t, m.branches, 1)
	require.True(t, m.branches[1].Size.Equal(d("4")), "size %s", m.branches[1].Size)

	buys := fake.placedBySide(models.OrderSideBuy)
	require.Len(t, buys, 1)
	require.True(t, buys[0].Qty.Equal(d("6")), "qty %s", buys[0].Qty)
	require.True(t, buys[0].Price.Equal(d("99.5")))

	require.Len(t, m.pendingBuys, 1)
	for _, intent := range m.pendingBuys {
		require.True(t, intent.posBefore.Equal(d("4")), "posBefore %s", intent.posBefore)
	}
}

func TestVanishedBuyWithoutFillRequotesFullSize(t *testing.T) {
	fake := newFakeExchange()
	fake.setStats(testSymbol, "99.5", "99.7", "99.6")
	fake.setPosition(testSymbol, "0", "0")
	e := newTestEngine(t, fake)
	m := e.markets[testSymbol]

	pendingIntent(m, "42", d("100"), d("10"), d("0"), time.Now())
	e.enforceBuyTTLs(context.Background(), m)

	require.Empty(t, m.branches)
	buys := fake.placedBySide(models.OrderSideBuy)
	require.Len(t, buys, 1)
	require.True(t, buys[0].Qty.Equal(d("10")))
	require.Len(t, m.pendingBuys, 1)
}

func TestExpiredBuyCancelledAndRequoted(t *testing.T) {
	fake := newFakeExchange()
	fake.setStats(testSymbol, "99.9", "100.1", "100")
	e := newTestEngine(t, fake)
	m := e.markets[testSymbol]
	ctx := context.Background()

	e.maybeBuyOnRise(ctx, m, d("97"))
	e.maybeBuyOnRise(ctx, m, d("100"))
	buys := fake.placedBySide(models.OrderSideBuy)
	require.Len(t, buys, 1)
	firstID := buys[0].ID

	fake.setPosition(testSymbol, "2", "100")
	m.pendingBuys[firstID].placedAt = time.Now().Add(-10 * time.Minute)
	fake.setStats(testSymbol, "99.0", "99.2", "99.1")

	e.enforceBuyTTLs(ctx, m)

	require.Contains(t, fake.cancelled, firstID)
	buys = fake.placedBySide(models.OrderSideBuy)
	require.Len(t, buys, 2)
	require.True(t, buys[1].Price.Equal(d("99")), "price %s", buys[1].Price)
	require.True(t, buys[1].Qty.Equal(d("10")))

	require.Len(t, m.pendingBuys, 1)
	for _, intent := range m.pendingBuys {
		require.NotEqual(t, firstID, intent.orderID)
		require.True(t, intent.posBefore.Equal(d("2")), "posBefore %s", intent.posBefore)
	}
}

func TestOpenBuyReportedFilledCreatesBranch(t *testing.T) {
	fake := newFakeExchange()
	fake.setStats(testSymbol, "99.9", "100.1", "100")
	e := newTestEngine(t, fake)
	m := e.markets[testSymbol]
	ctx := context.Background()

	e.maybeBuyOnRise(ctx, m, d("97"))
	e.maybeBuyOnRise(ctx, m, d("100"))
	buys := fake.placedBySide(models.OrderSideBuy)
	require.Len(t, buys, 1)

	fake.mu.Lock()
	for i := range fake.open {
		if fake.open[i].ID == buys[0].ID {
			fake.open[i].FilledQty = fake.open[i].Qty
		}
	}
	fake.mu.Unlock()

	e.enforceBuyTTLs(ctx, m)

	require.Empty(t, m.pendingBuys)
	require.Len(t, m.branches, 1)
	require.True(t, m.branches[1].Size.Equal(d("10")))
}

func TestRestorePendingBuysAdoptsNamespaceOrders(t *testing.T) {
	fake := newFakeExchange()
	fake.setPosition(testSymbol, "5", "100")
	fake.open = append(fake.open, models.Order{
		ID:         "77",
		ExternalID: testSymbol + ":RISE:deadbeef",
		Symbol:     testSymbol,
		Side:       models.OrderSideBuy,
		Type:       models.OrderTypeLimit,
		Price:      d("100"),
		Qty:        d("10"),
		FilledQty:  d("2"),
		CreateTime: time.Now().Add(-time.Minute),
	}, models.Order{
		ID:         "78",
		ExternalID: "чужой-ордер",
		Symbol:     testSymbol,
		Side:       models.OrderSideBuy,
		Type:       models.OrderTypeLimit,
		Price:      d("99"),
		Qty:        d("1"),
	})
	e := newTestEngine(t, fake)
	m := e.markets[testSymbol]

	e.restorePendingBuys(context.Background(), testSymbol)

	require.Len(t, m.pendingBuys, 1)
	intent := m.pendingBuys["77"]
	require.NotNil(t, intent)
	require.True(t, intent.posBefore.Equal(d("3")), "posBefore %s", intent.posBefore)
	require.True(t, intent.size.Equal(d("10")))
}
