package config

import (
	"fmt"
	"math"
	"os"
	"regexp"
	"sort"
	"strings"

	"github.com/spf13/cast"
	"github.com/spf13/viper"
)

type Config struct {
	Exchange ExchangeConfig
	Bot      BotConfig
	Runtime  RuntimeConfig
}

type ExchangeConfig struct {
	BaseUrl string
	WSUrl   string
	ApiKey  string
	Secret  string
}

type MarketConfig struct {
	Symbol          string
	MinOrderSize    float64
	OrderMultiplier float64
	PricePrecision  int
	SizePrecision   int
	RiseStepPct     float64
	SellStepsPct    []float64
}

type BotConfig struct {
	Markets          map[string]MarketConfig
	TickSeconds      int
	BuyTTLSeconds    int
	SellTTLSeconds   int
	SellCheckSeconds int
	SellSplit        []float64
	PnlMinPct        float64
	BranchSLPct      float64
	MaxBranches      int
	StateFile        string
}

type LogConfig struct {
	Level      string
	Format     string
	File       string
	MaxSize    int
	MaxBackups int
	MaxAge     int
	Compress   bool
}

type RuntimeConfig struct {
	Log LogConfig
}

func Load() (*Config, error) {
	viper.AddConfigPath("configs")
	viper.SetConfigName("config")
	if err := viper.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("Не удалось прочитать конфигурацию: %w", err)
	}

	viper.SetDefault("bot.tick_seconds", 3)
	viper.SetDefault("bot.buy_ttl_seconds", 300)
	viper.SetDefault("bot.sell_ttl_seconds", 30*24*60*60)
	viper.SetDefault("bot.sell_check_seconds", 30)
	viper.SetDefault("bot.pnl_min_pct", 0.0005)
	viper.SetDefault("bot.branch_sl_pct", -0.02)
	viper.SetDefault("bot.state_file", "bot_state.json")
	viper.SetDefault("runtime.log.level", "info")
	viper.SetDefault("runtime.log.format", "text")
	viper.SetDefault("runtime.log.max_size", 50)
	viper.SetDefault("runtime.log.max_backups", 5)
	viper.SetDefault("runtime.log.max_age", 14)

	cfg := &Config{}

	cfg.Exchange = ExchangeConfig{
		BaseUrl: viper.GetString("exchange.base_url"),
		WSUrl:   viper.GetString("exchange.ws_url"),
		ApiKey:  envSub("exchange.api_key"),
		Secret:  envSub("exchange.secret"),
	}

	markets, err := loadMarkets()
	if err != nil {
		return nil, err
	}

	sellSplit := floatSlice(viper.Get("bot.sell_split"))
	if len(sellSplit) == 0 {
		sellSplit = []float64{0.30, 0.30, 0.40}
	}
	if len(sellSplit) != 3 {
		return nil, fmt.Errorf("Ожидаются три доли в bot.sell_split, получено %d.", len(sellSplit))
	}
	var splitSum float64
	for _, v := range sellSplit {
		splitSum += v
	}
	if math.Abs(splitSum-1.0) > 1e-9 {
		return nil, fmt.Errorf("Сумма долей bot.sell_split должна быть 1.0, получено %v.", splitSum)
	}

	cfg.Bot = BotConfig{
		Markets:          markets,
		TickSeconds:      viper.GetInt("bot.tick_seconds"),
		BuyTTLSeconds:    viper.GetInt("bot.buy_ttl_seconds"),
		SellTTLSeconds:   viper.GetInt("bot.sell_ttl_seconds"),
		SellCheckSeconds: viper.GetInt("bot.sell_check_seconds"),
		SellSplit:        sellSplit,
		PnlMinPct:        viper.GetFloat64("bot.pnl_min_pct"),
		BranchSLPct:      viper.GetFloat64("bot.branch_sl_pct"),
		MaxBranches:      viper.GetInt("bot.max_branches"),
		StateFile:        viper.GetString("bot.state_file"),
	}

	cfg.Runtime = RuntimeConfig{
		Log: LogConfig{
			Level:      viper.GetString("runtime.log.level"),
			Format:     viper.GetString("runtime.log.format"),
			File:       viper.GetString("runtime.log.file"),
			MaxSize:    viper.GetInt("runtime.log.max_size"),
			MaxBackups: viper.GetInt("runtime.log.max_backups"),
			MaxAge:     viper.GetInt("runtime.log.max_age"),
			Compress:   viper.GetBool("runtime.log.compress"),
		},
	}

	if cfg.Bot.BranchSLPct >= 0 {
		return nil, fmt.Errorf("bot.branch_sl_pct должен быть отрицательным, получено %v.", cfg.Bot.BranchSLPct)
	}

	return cfg, nil
}

func (b BotConfig) Symbols() []string {
	symbols := make([]string, 0, len(b.Markets))
	for symbol := range b.Markets {
		symbols = append(symbols, symbol)
	}
	sort.Strings(symbols)
	return symbols
}

func loadMarkets() (map[string]MarketConfig, error) {
	items, ok := viper.Get("bot.markets").([]interface{})
	if !ok || len(items) == 0 {
		return nil, fmt.Errorf("Не задан список рынков (bot.markets).")
	}

	markets := make(map[string]MarketConfig, len(items))
	for _, item := range items {
		entry := cast.ToStringMap(item)
		if entry == nil {
			return nil, fmt.Errorf("Некорректная запись в bot.markets.")
		}

		m := MarketConfig{
			Symbol:          cast.ToString(entry["symbol"]),
			MinOrderSize:    cast.ToFloat64(entry["min_order_size"]),
			OrderMultiplier: cast.ToFloat64(entry["order_multiplier"]),
			PricePrecision:  cast.ToInt(entry["price_precision"]),
			RiseStepPct:     cast.ToFloat64(entry["rise_step_pct"]),
			SellStepsPct:    floatSlice(entry["sell_steps_pct"]),
		}
		if m.Symbol == "" {
			return nil, fmt.Errorf("У рынка в bot.markets не задан symbol.")
		}
		if m.MinOrderSize <= 0 {
			return nil, fmt.Errorf("У рынка %s не задан min_order_size.", m.Symbol)
		}
		if m.OrderMultiplier <= 0 {
			m.OrderMultiplier = 1
		}
		if m.RiseStepPct <= 0 {
			return nil, fmt.Errorf("У рынка %s не задан rise_step_pct.", m.Symbol)
		}
		if len(m.SellStepsPct) != 3 {
			return nil, fmt.Errorf("У рынка %s ожидаются три шага в sell_steps_pct.", m.Symbol)
		}
		if raw, found := entry["size_precision"]; found {
			m.SizePrecision = cast.ToInt(raw)
		} else {
			m.SizePrecision = precisionFromMinOrder(m.MinOrderSize)
		}

		markets[m.Symbol] = m
	}
	return markets, nil
}

// precisionFromMinOrder выводит точность размера из минимального ордера:
// 0.0001 -> 4, 0.1 -> 1, 100 -> 0.
func precisionFromMinOrder(minOrder float64) int {
	if minOrder <= 0 {
		return 0
	}
	p := int(math.Ceil(-math.Log10(minOrder) - 1e-9))
	if p < 0 {
		return 0
	}
	return p
}

func floatSlice(raw interface{}) []float64 {
	items, ok := raw.([]interface{})
	if !ok {
		return nil
	}
	out := make([]float64, 0, len(items))
	for _, item := range items {
		out = append(out, cast.ToFloat64(item))
	}
	return out
}

func envSub(key string) string {
	val := viper.GetString(key)
	if val == "" {
		return ""
	}

	re := regexp.MustCompile(`\$\{(\w+)\}`)
	return re.ReplaceAllStringFunc(val, func(match string) string {
		envKey := strings.TrimSuffix(strings.TrimPrefix(match, "${"), "}")
		return os.Getenv(envKey)
	})
}
