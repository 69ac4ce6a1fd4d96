package ws

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"risebot/internal/logger"
	"risebot/internal/models"
)

type Client struct {
	url          string
	log          *logger.Logger
	conn         *websocket.Conn
	tickers      chan models.MarketStats
	stopCh       chan struct{}
	stopOnce     sync.Once
	markets      []string
	reconnectMin time.Duration
	reconnectMax time.Duration
}

type Message struct {
	Type  string          `json:"type"`
	Topic string          `json:"topic"`
	TS    int64           `json:"ts"`
	Data  json.RawMessage `json:"data"`
}

type SubscribeMessage struct {
	Type    string   `json:"type"`
	Markets []string `json:"markets"`
}
