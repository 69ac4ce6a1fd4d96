package extended

import (
	"context"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"risebot/internal/models"
)

func (c *Client) PlaceOrder(ctx context.Context, order models.Order) (models.Order, error) {
	body := map[string]any{
		"market":      order.Symbol,
		"side":        order.Side,
		"type":        order.Type,
		"qty":         order.Qty,
		"price":       order.Price,
		"timeInForce": order.TimeInForce,
		"externalId":  order.ExternalID,
		"reduceOnly":  order.ReduceOnly,
	}
	if !order.ExpireTime.IsZero() {
		body["expiryTime"] = order.ExpireTime.UnixMilli()
	}

	var resp extendedResponse[placedOrderData]
	if err := c.doRequest(ctx, http.MethodPost, "/api/v1/user/order", nil, body, true, &resp); err != nil {
		return models.Order{}, err
	}

	if resp.Data.ID != 0 {
		order.ID = strconv.FormatInt(resp.Data.ID, 10)
	}
	order.Status = models.OrderStatusNew
	order.CreateTime = time.Now()
	return order, nil
}

func (c *Client) CancelOrder(ctx context.Context, orderID string) error {
	var resp extendedResponse[struct{}]
	return c.doRequest(ctx, http.MethodDelete, "/api/v1/user/order/"+orderID, nil, nil, true, &resp)
}

func (c *Client) GetOpenOrders(ctx context.Context, symbol string, side models.OrderSide) ([]models.Order, error) {
	params := url.Values{}
	params.Set("market", symbol)
	if side != "" {
		params.Set("side", string(side))
	}

	var resp extendedResponse[[]orderData]
	if err := c.doRequest(ctx, http.MethodGet, "/api/v1/user/orders", params, nil, true, &resp); err != nil {
		return nil, err
	}

	orders := make([]models.Order, 0, len(resp.Data))
	for _, item := range resp.Data {
		ord := models.Order{
			ID:          strconv.FormatInt(item.ID, 10),
			ExternalID:  item.ExternalID,
			Symbol:      item.Market,
			Side:        models.OrderSide(item.Side),
			Type:        models.OrderType(item.Type),
			Price:       item.Price,
			Qty:         item.Qty,
			FilledQty:   item.FilledQty,
			Status:      models.OrderStatus(item.Status),
			TimeInForce: models.TimeInForce(item.TimeInForce),
			ReduceOnly:  item.ReduceOnly,
		}
		if item.CreatedTime > 0 {
			ord.CreateTime = time.UnixMilli(item.CreatedTime)
		}
		if item.ExpiryTime > 0 {
			ord.ExpireTime = time.UnixMilli(item.ExpiryTime)
		}
		orders = append(orders, ord)
	}
	return orders, nil
}
