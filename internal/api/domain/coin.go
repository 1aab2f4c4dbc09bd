package domain

import "time"

// CoinMarket is one row of the market snapshot returned to clients. Field
// names follow the upstream CoinGecko /coins/markets payload.
type CoinMarket struct {
	ID                       string    `json:"id"`
	Symbol                   string    `json:"symbol"`
	Name                     string    `json:"name"`
	Image                    string    `json:"image,omitempty"`
	CurrentPrice             float64   `json:"current_price"`
	MarketCap                float64   `json:"market_cap"`
	MarketCapRank            int       `json:"market_cap_rank"`
	TotalVolume              float64   `json:"total_volume"`
	High24h                  float64   `json:"high_24h"`
	Low24h                   float64   `json:"low_24h"`
	PriceChange24h           float64   `json:"price_change_24h"`
	PriceChangePercentage24h float64   `json:"price_change_percentage_24h"`
	CirculatingSupply        float64   `json:"circulating_supply"`
	LastUpdated              time.Time `json:"last_updated"`
}

// CoinQuery selects which coins to price and in which fiat currency.
type CoinQuery struct {
	Coins    []string // coin names, e.g. "Bitcoin"
	Currency string   // vs_currency, e.g. "usd"
}
