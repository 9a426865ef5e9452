package dataflows

import (
	"context"
	"fmt"
	"time"

	finance "github.com/piquette/finance-go"
	"github.com/piquette/finance-go/chart"
	"github.com/piquette/finance-go/datetime"

	"github.com/dyike/tsladash/config"
	"github.com/dyike/tsladash/models"
)

// YahooSource downloads daily history through the Yahoo chart API.
type YahooSource struct {
	cache *CacheManager
	retry *RetryConfig
	now   func() time.Time
}

func NewYahooSource(cache *CacheManager) *YahooSource {
	return &YahooSource{cache: cache, retry: DefaultRetryConfig(), now: time.Now}
}

func (y *YahooSource) Name() string { return config.SourceYahoo }

func (y *YahooSource) Bars(ctx context.Context, symbol string, days int) ([]*models.Bar, error) {
	if err := ValidateSymbol(symbol); err != nil {
		return nil, err
	}
	symbol = NormalizeSymbol(symbol)
	end := y.now().UTC().Truncate(24 * time.Hour).Add(24 * time.Hour)
	start := end.AddDate(0, 0, -days)

	cacheKey := map[string]any{
		"symbol": symbol,
		"start":  start.Format("2006-01-02"),
		"end":    end.Format("2006-01-02"),
	}
	var cached []*models.Bar
	if y.cache.Get("yahoo", "historical", cacheKey, &cached) && len(cached) > 0 {
		return cached, nil
	}

	var result []*models.Bar
	err := WithRetry(ctx, y.retry, func() error {
		iter := chart.Get(&chart.Params{
			Symbol:   symbol,
			Start:    datetime.New(&start),
			End:      datetime.New(&end),
			Interval: datetime.OneDay,
		})

		result = result[:0]
		for iter.Next() {
			if b := convertYahooBar(symbol, iter.Bar()); b != nil {
				result = append(result, b)
			}
		}
		if err := iter.Err(); err != nil {
			return fmt.Errorf("failed to get historical data for %s: %w", symbol, err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	_ = y.cache.Set("yahoo", "historical", cacheKey, result)
	return result, nil
}

func convertYahooBar(symbol string, bar *finance.ChartBar) *models.Bar {
	if bar == nil || bar.Close.IsZero() {
		return nil
	}
	return &models.Bar{
		Symbol:    symbol,
		Date:      time.Unix(int64(bar.Timestamp), 0).UTC(),
		Open:      bar.Open.InexactFloat64(),
		High:      bar.High.InexactFloat64(),
		Low:       bar.Low.InexactFloat64(),
		Close:     bar.Close.InexactFloat64(),
		Volume:    int64(bar.Volume),
		Direction: models.DirectionNeutral,
	}
}
