package extended

import (
	"context"
	"net/http"
	"time"

	"golang.org/x/time/rate"

	"risebot/internal/exchange/extended/ws"
	"risebot/internal/logger"
	"risebot/internal/models"
)

// statsTTL — возраст, после которого кэшированный тикер считается протухшим
// и статистика берётся по REST.
const statsTTL = 2 * time.Second

func New(baseURL, wsURL, apiKey, secret string, log *logger.Logger) *Client {
	return &Client{
		baseURL: baseURL,
		wsURL:   wsURL,
		apiKey:  apiKey,
		secret:  secret,
		httpClient: &http.Client{
			Timeout: 15 * time.Second,
		},
		limiter: rate.NewLimiter(rate.Limit(10), 20),
		log:     log,
		stats:   map[string]models.MarketStats{},
	}
}

// StartTicker поднимает публичный WS-поток тикеров и начинает наполнять
// кэш статистики. Без ws_url клиент работает только по REST.
func (c *Client) StartTicker(ctx context.Context, symbols []string) error {
	if c.wsURL == "" {
		return nil
	}

	wsClient := ws.New(c.wsURL, c.log)
	if err := wsClient.Connect(ctx); err != nil {
		return err
	}
	if err := wsClient.SubscribeTickers(symbols); err != nil {
		return err
	}
	c.wsPublic = wsClient

	go c.consumeTickers(ctx, wsClient.Tickers())
	return nil
}

func (c *Client) consumeTickers(ctx context.Context, tickers <-chan models.MarketStats) {
	for {
		select {
		case <-ctx.Done():
			c.wsPublic.Close()
			return
		case st, ok := <-tickers:
			if !ok {
				return
			}
			c.mu.Lock()
			c.stats[st.Symbol] = st
			c.mu.Unlock()
		}
	}
}

func (c *Client) cachedStats(symbol string) (models.MarketStats, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	st, ok := c.stats[symbol]
	if !ok || time.Since(st.Timestamp) > statsTTL {
		return models.MarketStats{}, false
	}
	return st, true
}
