package extended

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"risebot/internal/models"
)

func (c *Client) GetMarketStatistics(ctx context.Context, symbol string) (models.MarketStats, error) {
	if st, ok := c.cachedStats(symbol); ok {
		return st, nil
	}

	var resp extendedResponse[marketStatsData]
	path := fmt.Sprintf("/api/v1/info/markets/%s/stats", symbol)
	if err := c.doRequest(ctx, http.MethodGet, path, nil, nil, false, &resp); err != nil {
		return models.MarketStats{}, err
	}

	last := resp.Data.LastPrice
	if last.IsZero() {
		last = resp.Data.MarkPrice
	}
	st := models.MarketStats{
		Symbol:    symbol,
		Bid:       resp.Data.BidPrice,
		Ask:       resp.Data.AskPrice,
		Last:      last,
		Timestamp: time.Now(),
	}

	c.mu.Lock()
	c.stats[symbol] = st
	c.mu.Unlock()
	return st, nil
}
