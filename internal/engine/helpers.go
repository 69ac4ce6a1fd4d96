package engine

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"risebot/internal/models"
)

var one = decimal.NewFromInt(1)

func (e *Engine) buyTTL() time.Duration {
	return time.Duration(e.cfg.Bot.BuyTTLSeconds) * time.Second
}

func (e *Engine) sellTTL() time.Duration {
	return time.Duration(e.cfg.Bot.SellTTLSeconds) * time.Second
}

func (e *Engine) placeLimit(ctx context.Context, symbol string, side models.OrderSide, price, size decimal.Decimal, clientID string, ttl time.Duration) (models.Order, error) {
	order := models.Order{
		Symbol:      symbol,
		Side:        side,
		Type:        models.OrderTypeLimit,
		Price:       price,
		Qty:         size,
		TimeInForce: models.TimeInForceGTT,
		ExternalID:  clientID,
	}
	if ttl > 0 {
		order.ExpireTime = time.Now().Add(ttl).UTC()
	}

	placed, err := e.client.PlaceOrder(ctx, order)
	if err != nil {
		return models.Order{}, err
	}
	if placed.ID == "" {
		return models.Order{}, fmt.Errorf("Биржа не вернула id ордера.")
	}
	return placed, nil
}

func shortHex(n int) string {
	raw := strings.ReplaceAll(uuid.New().String(), "-", "")
	if len(raw) > n {
		return raw[:n]
	}
	return raw
}

func newBuyClientID(symbol string) string {
	return fmt.Sprintf("%s:RISE:%s", symbol, shortHex(8))
}

// rotateClientID меняет только случайный суффикс, неймспейс сохраняется.
func rotateClientID(prev string) string {
	parts := strings.Split(prev, ":")
	if len(parts) < 2 {
		return prev + ":" + shortHex(8)
	}
	parts[len(parts)-1] = shortHex(8)
	return strings.Join(parts, ":")
}

func isRiseClientID(symbol, clientID string) bool {
	return strings.HasPrefix(clientID, symbol+":RISE:")
}

func sellClientPrefix(symbol string, branchID int64, leg string) string {
	return fmt.Sprintf("%s:BR%d:S:%s:", symbol, branchID, leg)
}

func newSellClientID(symbol string, branchID int64, leg string) string {
	return sellClientPrefix(symbol, branchID, leg) + shortHex(6)
}

func newCloseClientID(symbol string, branchID int64) string {
	return fmt.Sprintf("%s:BR%d:SL:%s", symbol, branchID, shortHex(6))
}

func branchSellMarker(branchID int64) string {
	return fmt.Sprintf(":BR%d:S:", branchID)
}

func parseSellClientID(clientID string) (int64, string, bool) {
	parts := strings.Split(clientID, ":")
	if len(parts) < 5 || parts[2] != "S" {
		return 0, "", false
	}
	if !strings.HasPrefix(parts[1], "BR") {
		return 0, "", false
	}
	branchID, err := strconv.ParseInt(strings.TrimPrefix(parts[1], "BR"), 10, 64)
	if err != nil {
		return 0, "", false
	}
	return branchID, parts[3], true
}
