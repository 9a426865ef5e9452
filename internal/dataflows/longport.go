package dataflows

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	lpconfig "github.com/longportapp/openapi-go/config"
	"github.com/longportapp/openapi-go/quote"
	"github.com/shopspring/decimal"

	"github.com/dyike/tsladash/config"
	"github.com/dyike/tsladash/models"
)

var ErrMissingLongportCredentials = errors.New("longport credentials are not configured")

// longport caps a single candlestick request at 1000 bars.
const longportMaxCount = 1000

type LongportCredentials struct {
	AppKey      string
	AppSecret   string
	AccessToken string
}

func (c LongportCredentials) complete() bool {
	return c.AppKey != "" && c.AppSecret != "" && c.AccessToken != ""
}

// LongportSource pulls daily candlesticks from the Longport quote API. The
// quote context is created on first use.
type LongportSource struct {
	creds LongportCredentials

	once     sync.Once
	quoteCtx *quote.QuoteContext
	initErr  error
}

func NewLongportSource(creds LongportCredentials) *LongportSource {
	return &LongportSource{creds: creds}
}

func (l *LongportSource) Name() string { return config.SourceLongport }

func (l *LongportSource) quoteContext() (*quote.QuoteContext, error) {
	if !l.creds.complete() {
		return nil, ErrMissingLongportCredentials
	}
	l.once.Do(func() {
		conf, err := lpconfig.New(lpconfig.WithConfigKey(l.creds.AppKey, l.creds.AppSecret, l.creds.AccessToken))
		if err != nil {
			l.initErr = fmt.Errorf("longport config: %w", err)
			return
		}
		l.quoteCtx, l.initErr = quote.NewFromCfg(conf)
	})
	return l.quoteCtx, l.initErr
}

func (l *LongportSource) Bars(ctx context.Context, symbol string, days int) ([]*models.Bar, error) {
	if err := ValidateSymbol(symbol); err != nil {
		return nil, err
	}
	qc, err := l.quoteContext()
	if err != nil {
		return nil, err
	}

	count := days
	if count > longportMaxCount {
		count = longportMaxCount
	}
	var sticks []*quote.Candlestick
	err = WithRetry(ctx, DefaultRetryConfig(), func() error {
		var cerr error
		sticks, cerr = qc.Candlesticks(ctx, LongportSymbol(symbol), quote.PeriodDay, int32(count), quote.AdjustTypeNo)
		return cerr
	})
	if err != nil {
		return nil, fmt.Errorf("candlesticks for %s: %w", symbol, err)
	}

	bars := make([]*models.Bar, 0, len(sticks))
	for _, c := range sticks {
		if c == nil {
			continue
		}
		bars = append(bars, &models.Bar{
			Symbol:    NormalizeSymbol(symbol),
			Date:      time.Unix(c.Timestamp, 0).UTC(),
			Open:      decimalValue(c.Open),
			High:      decimalValue(c.High),
			Low:       decimalValue(c.Low),
			Close:     decimalValue(c.Close),
			Volume:    c.Volume,
			Direction: models.DirectionNeutral,
		})
	}
	return bars, nil
}

// LongportSymbol turns TSLA into TSLA.US; symbols with a market suffix pass through.
func LongportSymbol(symbol string) string {
	symbol = NormalizeSymbol(symbol)
	if strings.Contains(symbol, ".") {
		return symbol
	}
	return symbol + ".US"
}

func decimalValue(d *decimal.Decimal) float64 {
	if d == nil {
		return 0
	}
	return d.InexactFloat64()
}
