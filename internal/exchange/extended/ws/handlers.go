package ws

import (
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"

	"risebot/internal/models"
)

func (w *Client) handleTicker(msg Message) {
	var data struct {
		Market    string          `json:"market"`
		BestBid   decimal.Decimal `json:"bestBid"`
		BestAsk   decimal.Decimal `json:"bestAsk"`
		LastPrice decimal.Decimal `json:"lastPrice"`
		TS        int64           `json:"ts"`
	}

	if err := json.Unmarshal(msg.Data, &data); err != nil {
		w.logEntry().WithError(err).Warn("Не удалось разобрать ticker.")
		return
	}
	if data.Market == "" {
		return
	}

	ts := data.TS
	if ts == 0 {
		ts = msg.TS
	}
	timestamp := time.Now()
	if ts > 0 {
		timestamp = time.UnixMilli(ts)
	}

	w.logEntry().WithFields(map[string]interface{}{
		"symbol": data.Market,
		"bid":    data.BestBid,
		"ask":    data.BestAsk,
		"last":   data.LastPrice,
		"ts":     ts,
	}).Debug("ticker")

	st := models.MarketStats{
		Symbol:    data.Market,
		Bid:       data.BestBid,
		Ask:       data.BestAsk,
		Last:      data.LastPrice,
		Timestamp: timestamp,
	}

	select {
	case w.tickers <- st:
	default:
	}
}
