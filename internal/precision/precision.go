package precision

import "github.com/shopspring/decimal"

const (
	DefaultPricePrecision = 2
	DefaultSizePrecision  = 6
)

type MarketRule struct {
	PricePrecision int32
	SizePrecision  int32
	MinOrderSize   decimal.Decimal
}

// Normalizer приводит цены и размеры к сетке конкретного рынка.
type Normalizer struct {
	rules map[string]MarketRule
}

func New(rules map[string]MarketRule) *Normalizer {
	if rules == nil {
		rules = map[string]MarketRule{}
	}
	return &Normalizer{rules: rules}
}

func (n *Normalizer) Price(symbol string, value decimal.Decimal) decimal.Decimal {
	p := int32(DefaultPricePrecision)
	if rule, ok := n.rules[symbol]; ok {
		p = rule.PricePrecision
	}
	return value.Round(p)
}

// Size округляет размер и не даёт положительному размеру превратиться в ноль:
// нулевой результат поднимается до одного шага сетки, результат ниже минимума
// ордера поднимается до минимума.
func (n *Normalizer) Size(symbol string, value decimal.Decimal) decimal.Decimal {
	p := int32(DefaultSizePrecision)
	minSize := decimal.Zero
	if rule, ok := n.rules[symbol]; ok {
		p = rule.SizePrecision
		minSize = rule.MinOrderSize
	}

	rounded := value.Round(p)
	if !value.IsPositive() {
		return rounded
	}
	if rounded.IsZero() {
		rounded = decimal.New(1, -p)
	}
	if minSize.IsPositive() && rounded.LessThan(minSize) {
		return minSize
	}
	return rounded
}
