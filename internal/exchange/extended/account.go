package extended

import (
	"context"
	"net/http"
	"net/url"

	"risebot/internal/models"
)

// GetPosition возвращает LONG-позицию по рынку; отсутствие позиции — не
// ошибка, а нулевой размер.
func (c *Client) GetPosition(ctx context.Context, symbol string) (models.Position, error) {
	params := url.Values{}
	params.Set("market", symbol)
	params.Set("side", "LONG")

	var resp extendedResponse[[]positionData]
	if err := c.doRequest(ctx, http.MethodGet, "/api/v1/user/positions", params, nil, true, &resp); err != nil {
		return models.Position{}, err
	}

	for _, item := range resp.Data {
		if item.Market != symbol {
			continue
		}
		if item.Size.IsPositive() {
			return models.Position{
				Symbol:    symbol,
				Size:      item.Size,
				OpenPrice: item.OpenPrice,
			}, nil
		}
	}
	return models.Position{Symbol: symbol}, nil
}
