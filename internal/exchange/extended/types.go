package extended

import (
	"net/http"
	"sync"

	"github.com/shopspring/decimal"
	"golang.org/x/time/rate"

	"risebot/internal/exchange/extended/ws"
	"risebot/internal/logger"
	"risebot/internal/models"
)

type Client struct {
	baseURL    string
	wsURL      string
	apiKey     string
	secret     string
	httpClient *http.Client
	limiter    *rate.Limiter
	log        *logger.Logger

	mu       sync.Mutex
	stats    map[string]models.MarketStats
	wsPublic *ws.Client
}

type extendedResponse[T any] struct {
	Status string    `json:"status"`
	Data   T         `json:"data"`
	Error  *apiError `json:"error"`
}

type apiError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (r extendedResponse[T]) apiStatus() (string, *apiError) {
	return r.Status, r.Error
}

type statusCarrier interface {
	apiStatus() (string, *apiError)
}

type marketStatsData struct {
	MarketName string          `json:"marketName"`
	BidPrice   decimal.Decimal `json:"bidPrice"`
	AskPrice   decimal.Decimal `json:"askPrice"`
	LastPrice  decimal.Decimal `json:"lastPrice"`
	MarkPrice  decimal.Decimal `json:"markPrice"`
}

type positionData struct {
	Market    string          `json:"market"`
	Side      string          `json:"side"`
	Size      decimal.Decimal `json:"size"`
	OpenPrice decimal.Decimal `json:"openPrice"`
}

type orderData struct {
	ID          int64           `json:"id"`
	ExternalID  string          `json:"externalId"`
	Market      string          `json:"market"`
	Side        string          `json:"side"`
	Type        string          `json:"type"`
	Price       decimal.Decimal `json:"price"`
	Qty         decimal.Decimal `json:"qty"`
	FilledQty   decimal.Decimal `json:"filledQty"`
	Status      string          `json:"status"`
	TimeInForce string          `json:"timeInForce"`
	ReduceOnly  bool            `json:"reduceOnly"`
	CreatedTime int64           `json:"createdTime"`
	ExpiryTime  int64           `json:"expiryTime"`
}

type placedOrderData struct {
	ID         int64  `json:"id"`
	ExternalID string `json:"externalId"`
}
