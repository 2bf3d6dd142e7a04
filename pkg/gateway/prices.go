package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/restakelabs/restakex/pkg/cache"
	"github.com/restakelabs/restakex/pkg/retry"
	"github.com/shopspring/decimal"
)

// USDPrice returns the USD price for one CoinGecko coin id, cached under the
// prices namespace. Prices are decoded as decimal strings so no float64 ever
// touches a valuation.
func (g *Gateway) USDPrice(ctx context.Context, coinID string) (decimal.Decimal, error) {
	prices, err := g.USDPrices(ctx, []string{coinID})
	if err != nil {
		return decimal.Decimal{}, err
	}
	price, ok := prices[coinID]
	if !ok {
		return decimal.Decimal{}, fmt.Errorf("no price for %q", coinID)
	}
	return price, nil
}

// USDPrices returns USD prices for a set of coin ids. Cached ids are served
// from the prices namespace; only the misses go to the API, in one call.
func (g *Gateway) USDPrices(ctx context.Context, coinIDs []string) (map[string]decimal.Decimal, error) {
	out := make(map[string]decimal.Decimal, len(coinIDs))

	var misses []string
	for _, id := range coinIDs {
		var cachedPrice string
		if g.cache.Get(ctx, cache.NamespacePrices, id, &cachedPrice) {
			price, err := decimal.NewFromString(cachedPrice)
			if err == nil {
				out[id] = price
				continue
			}
		}
		misses = append(misses, id)
	}
	if len(misses) == 0 {
		return out, nil
	}

	var fetched map[string]decimal.Decimal
	err := retry.Do(ctx, g.retryCfg, g.Logger, "prices:"+strings.Join(misses, ","), func() error {
		var fetchErr error
		fetched, fetchErr = g.fetchPrices(ctx, misses)
		return fetchErr
	})
	if err != nil {
		return nil, err
	}
	for id, price := range fetched {
		g.cache.Put(ctx, cache.NamespacePrices, id, price.String(), g.pricesTTL)
		out[id] = price
	}
	return out, nil
}

func (g *Gateway) fetchPrices(ctx context.Context, coinIDs []string) (map[string]decimal.Decimal, error) {
	path := fmt.Sprintf("/simple/price?ids=%s&vs_currencies=usd",
		url.QueryEscape(strings.Join(coinIDs, ",")))

	// id -> {"usd": <number>}; json.Number keeps the API's decimal digits.
	var body map[string]map[string]json.Number
	if err := g.prices.doJSON(ctx, http.MethodGet, path, nil, &body); err != nil {
		return nil, fmt.Errorf("fetch prices: %w", err)
	}

	out := make(map[string]decimal.Decimal, len(body))
	for id, quote := range body {
		raw, ok := quote["usd"]
		if !ok {
			continue
		}
		price, err := decimal.NewFromString(raw.String())
		if err != nil {
			return nil, fmt.Errorf("price for %s: %w", id, err)
		}
		out[id] = price
	}
	return out, nil
}

func decode(in, out any) error {
	raw, err := json.Marshal(in)
	if err != nil {
		return err
	}
	return json.Unmarshal(raw, out)
}
