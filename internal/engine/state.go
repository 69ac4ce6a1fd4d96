package engine

import (
	"sort"
	"time"

	"github.com/shopspring/decimal"
)

const (
	LegL1 = "L1"
	LegL2 = "L2"
	LegL3 = "L3"
)

var legOrder = []string{LegL1, LegL2, LegL3}

type SellLeg struct {
	Leg       string          `json:"leg"`
	TargetPct decimal.Decimal `json:"target_pct"`
	Size      decimal.Decimal `json:"size"`
	OrderID   string          `json:"order_id,omitempty"`
	ClientID  string          `json:"client_id,omitempty"`
	Price     decimal.Decimal `json:"price"`
}

type Branch struct {
	BranchID    int64               `json:"branch_id"`
	Symbol      string              `json:"symbol"`
	BuyPrice    decimal.Decimal     `json:"buy_price"`
	Size        decimal.Decimal     `json:"size"`
	WAP         decimal.Decimal     `json:"wap"`
	StopPrice   decimal.Decimal     `json:"stop_price"`
	Active      bool                `json:"active"`
	Sells       map[string]*SellLeg `json:"sells"`
	CreatedAt   time.Time           `json:"created_at"`
	LastUpdated time.Time           `json:"last_updated"`
}

// pendingBuy не персистится: после рестарта намерения восстанавливаются
// по открытым BUY-ордерам в нашем неймспейсе client id.
type pendingBuy struct {
	orderID   string
	clientID  string
	price     decimal.Decimal
	size      decimal.Decimal
	placedAt  time.Time
	posBefore decimal.Decimal
}

type marketState struct {
	symbol        string
	branches      map[int64]*Branch
	nextBranchID  int64
	anchor        decimal.NullDecimal
	pendingBuys   map[string]*pendingBuy
	lastSellCheck time.Time
}

func newMarketState(symbol string) *marketState {
	return &marketState{
		symbol:       symbol,
		branches:     map[int64]*Branch{},
		nextBranchID: 1,
		pendingBuys:  map[string]*pendingBuy{},
	}
}

func (m *marketState) newBranchID() int64 {
	id := m.nextBranchID
	m.nextBranchID++
	return id
}

func (m *marketState) hasActive() bool {
	for _, b := range m.branches {
		if b.Active {
			return true
		}
	}
	return false
}

func (m *marketState) activeBranches() []*Branch {
	var out []*Branch
	for _, b := range m.branches {
		if b.Active {
			out = append(out, b)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].BranchID < out[j].BranchID })
	return out
}

func (m *marketState) totalActiveSize() decimal.Decimal {
	total := decimal.Zero
	for _, b := range m.branches {
		if b.Active {
			total = total.Add(b.Size)
		}
	}
	return total
}
