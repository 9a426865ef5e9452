package dataflows

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/dyike/tsladash/config"
	"github.com/dyike/tsladash/internal/logger"
	"github.com/dyike/tsladash/models"
)

// Source produces daily bars for a symbol covering roughly the last days.
type Source interface {
	Name() string
	Bars(ctx context.Context, symbol string, days int) ([]*models.Bar, error)
}

// CSVSource serves bars from a local file and ignores days.
type CSVSource struct {
	Path string
}

func (s *CSVSource) Name() string { return config.SourceCSV }

func (s *CSVSource) Bars(ctx context.Context, symbol string, _ int) ([]*models.Bar, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return LoadCSV(s.Path, symbol)
}

// DataFlow resolves the configured source and feeds the dashboard.
type DataFlow struct {
	cfg     *config.Config
	log     logrus.FieldLogger
	sources map[string]Source
}

func NewDataFlow(cfg *config.Config, log logrus.FieldLogger) *DataFlow {
	cacheDir := cfg.DataCacheDir
	if cacheDir == "" {
		cacheDir = filepath.Join(cfg.DataDir, "cache")
	}
	df := &DataFlow{
		cfg: cfg,
		log: logger.Component(log, "dataflows"),
		sources: map[string]Source{
			config.SourceCSV:   &CSVSource{Path: cfg.DataFile},
			config.SourceYahoo: NewYahooSource(NewCacheManager(filepath.Join(cacheDir, "yahoo_finance"), 12*time.Hour, cfg.CacheEnabled)),
			config.SourceLongport: NewLongportSource(LongportCredentials{
				AppKey:      cfg.LongportAppKey,
				AppSecret:   cfg.LongportAppSecret,
				AccessToken: cfg.LongportAccessToken,
			}),
		},
	}
	return df
}

// Register replaces or adds a source.
func (d *DataFlow) Register(src Source) {
	d.sources[src.Name()] = src
}

func (d *DataFlow) Source(name string) (Source, error) {
	src, ok := d.sources[name]
	if !ok {
		return nil, fmt.Errorf("unknown data source %q", name)
	}
	return src, nil
}

// Load returns the bars of the configured source.
func (d *DataFlow) Load(ctx context.Context) ([]*models.Bar, error) {
	src, err := d.Source(d.cfg.DataSource)
	if err != nil {
		return nil, err
	}
	start := time.Now()
	bars, err := src.Bars(ctx, d.cfg.Ticker, d.cfg.LookbackDays)
	if err != nil {
		return nil, fmt.Errorf("%s source: %w", src.Name(), err)
	}
	d.log.WithFields(logrus.Fields{
		"source":  src.Name(),
		"symbol":  d.cfg.Ticker,
		"bars":    len(bars),
		"elapsed": time.Since(start).Round(time.Millisecond),
	}).Debug("bars loaded")
	return bars, nil
}

// Fetch downloads days of history from an online source and writes them to
// out in the CSV format.
func (d *DataFlow) Fetch(ctx context.Context, sourceName string, days int, out string) ([]*models.Bar, error) {
	if sourceName == config.SourceCSV {
		return nil, fmt.Errorf("fetch needs an online source, got %q", sourceName)
	}
	if days < 1 {
		return nil, fmt.Errorf("days must be positive, got %d", days)
	}
	src, err := d.Source(sourceName)
	if err != nil {
		return nil, err
	}
	bars, err := src.Bars(ctx, d.cfg.Ticker, days)
	if err != nil {
		return nil, fmt.Errorf("%s source: %w", src.Name(), err)
	}
	if len(bars) == 0 {
		return nil, fmt.Errorf("%s returned no bars for %s", src.Name(), d.cfg.Ticker)
	}
	if err := WriteCSV(out, bars); err != nil {
		return nil, err
	}
	d.log.WithFields(logrus.Fields{"source": src.Name(), "bars": len(bars), "out": out}).Info("history written")
	return bars, nil
}
