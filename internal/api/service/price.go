package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"time"

	"github.com/coinpulse/coinpulse/internal/api/domain"
	"github.com/coinpulse/coinpulse/internal/api/store"
	"github.com/coinpulse/coinpulse/pkg/slogx"
)

const (
	DefaultCoinGeckoURL  = "https://api.coingecko.com/api/v3/coins/markets"
	DefaultPriceCacheTTL = 60 * time.Second

	priceCachePrefix = "cache:coins:"
	maxCoinsPerQuery = 50
)

// DefaultCoinQuery is what the background refresh keeps warm.
var DefaultCoinQuery = domain.CoinQuery{
	Coins:    []string{"Bitcoin", "Ethereum", "Matic-Network"},
	Currency: "usd",
}

// PriceService reads market data from CoinGecko through a cache-aside
// wrapper on the ephemeral store.
type PriceService struct {
	Cache      store.Ephemeral
	HTTPClient *http.Client
	BaseURL    string
	APIKey     string
	CacheTTL   time.Duration

	StoreTimeout    time.Duration
	ProviderTimeout time.Duration
}

// Markets returns market rows for q, served from cache when fresh.
func (s *PriceService) Markets(ctx context.Context, q domain.CoinQuery) ([]domain.CoinMarket, error) {
	q, err := normalizeQuery(q)
	if err != nil {
		return nil, err
	}

	key := cacheKey(q)
	if cached, ok := s.fromCache(ctx, key); ok {
		return cached, nil
	}

	markets, err := s.fetch(ctx, q)
	if err != nil {
		return nil, err
	}

	s.toCache(ctx, key, markets)
	return markets, nil
}

// Refresh fetches q upstream and overwrites the cache entry.
func (s *PriceService) Refresh(ctx context.Context, q domain.CoinQuery) error {
	q, err := normalizeQuery(q)
	if err != nil {
		return err
	}
	markets, err := s.fetch(ctx, q)
	if err != nil {
		return err
	}
	s.toCache(ctx, cacheKey(q), markets)
	return nil
}

func normalizeQuery(q domain.CoinQuery) (domain.CoinQuery, error) {
	currency := strings.ToLower(strings.TrimSpace(q.Currency))
	coins := make([]string, 0, len(q.Coins))
	seen := make(map[string]struct{}, len(q.Coins))
	for _, c := range q.Coins {
		for _, part := range strings.Split(c, ",") {
			part = strings.TrimSpace(part)
			k := strings.ToLower(part)
			if part == "" {
				continue
			}
			if _, dup := seen[k]; dup {
				continue
			}
			seen[k] = struct{}{}
			coins = append(coins, part)
		}
	}

	if currency == "" || len(coins) == 0 {
		return domain.CoinQuery{}, badRequest("coins and currency are required")
	}
	if len(coins) > maxCoinsPerQuery {
		return domain.CoinQuery{}, badRequest(fmt.Sprintf("at most %d coins per request", maxCoinsPerQuery))
	}

	sort.Slice(coins, func(i, j int) bool { return strings.ToLower(coins[i]) < strings.ToLower(coins[j]) })
	return domain.CoinQuery{Coins: coins, Currency: currency}, nil
}

func cacheKey(q domain.CoinQuery) string {
	return priceCachePrefix + q.Currency + ":" + strings.ToLower(strings.Join(q.Coins, ","))
}

func (s *PriceService) fromCache(ctx context.Context, key string) ([]domain.CoinMarket, bool) {
	if s.Cache == nil {
		return nil, false
	}
	sctx, cancel := withTimeout(ctx, s.StoreTimeout)
	defer cancel()

	raw, err := s.Cache.Get(sctx, key)
	if err != nil {
		if !errors.Is(err, store.ErrNotFound) {
			slogx.FromContext(ctx).Warn("price cache read failed", slog.String("key", key), slog.Any("error", err))
		}
		return nil, false
	}

	var markets []domain.CoinMarket
	if err := json.Unmarshal([]byte(raw), &markets); err != nil {
		return nil, false
	}
	return markets, true
}

// toCache is best effort: a failed write only costs a later upstream call.
func (s *PriceService) toCache(ctx context.Context, key string, markets []domain.CoinMarket) {
	if s.Cache == nil {
		return
	}
	raw, err := json.Marshal(markets)
	if err != nil {
		return
	}

	ttl := s.CacheTTL
	if ttl <= 0 {
		ttl = DefaultPriceCacheTTL
	}

	sctx, cancel := withTimeout(ctx, s.StoreTimeout)
	defer cancel()

	if err := s.Cache.Set(sctx, key, string(raw), ttl); err != nil {
		slogx.FromContext(ctx).Warn("price cache write failed", slog.String("key", key), slog.Any("error", err))
	}
}

func (s *PriceService) fetch(ctx context.Context, q domain.CoinQuery) ([]domain.CoinMarket, error) {
	l := slogx.FromContext(ctx)

	base := s.BaseURL
	if base == "" {
		base = DefaultCoinGeckoURL
	}
	u, err := url.Parse(base)
	if err != nil {
		return nil, internalError(err)
	}
	params := u.Query()
	params.Set("vs_currency", q.Currency)
	params.Set("names", strings.Join(q.Coins, ","))
	u.RawQuery = params.Encode()

	pctx, cancel := withTimeout(ctx, s.ProviderTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(pctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, internalError(err)
	}
	req.Header.Set("Accept", "application/json")
	if s.APIKey != "" {
		req.Header.Set("x-cg-api-key", s.APIKey)
	}

	client := s.HTTPClient
	if client == nil {
		client = http.DefaultClient
	}

	resp, err := client.Do(req)
	if err != nil {
		l.Warn("coin market request failed", slog.Any("error", err))
		return nil, externalService("coins not fetched due to upstream error", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4<<10))
		l.Warn("coin market request rejected",
			slog.Int("status", resp.StatusCode),
			slog.String("body", string(body)),
		)
		return nil, externalService("coins not fetched due to upstream error",
			fmt.Errorf("coingecko returned %d", resp.StatusCode))
	}

	var markets []domain.CoinMarket
	if err := json.NewDecoder(io.LimitReader(resp.Body, 8<<20)).Decode(&markets); err != nil {
		return nil, externalService("coins not fetched due to upstream error", err)
	}
	return markets, nil
}
