package exchange

import (
	"context"

	"risebot/internal/models"
)

type Client interface {
	GetMarketStatistics(ctx context.Context, symbol string) (models.MarketStats, error)
	GetPosition(ctx context.Context, symbol string) (models.Position, error)
	GetOpenOrders(ctx context.Context, symbol string, side models.OrderSide) ([]models.Order, error)
	PlaceOrder(ctx context.Context, order models.Order) (models.Order, error)
	CancelOrder(ctx context.Context, orderID string) error
}
