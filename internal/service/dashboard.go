// Package service holds the dashboard state shared by the CLI and the HTTP
// server: the loaded series, its summary and the assistant.
package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/cloudwego/eino/schema"
	"github.com/sirupsen/logrus"

	"github.com/dyike/tsladash/config"
	"github.com/dyike/tsladash/internal/dataflows"
	"github.com/dyike/tsladash/internal/indicators"
	"github.com/dyike/tsladash/internal/llm"
	"github.com/dyike/tsladash/internal/logger"
	"github.com/dyike/tsladash/internal/storage"
	"github.com/dyike/tsladash/models"
)

var ErrNoData = errors.New("no data loaded")

// Asker is the part of llm.Assistant the dashboard needs.
type Asker interface {
	Reply(ctx context.Context, question, summary string) (*schema.Message, error)
	Provider() string
}

type Snapshot struct {
	Bars     []*models.Bar
	Summary  models.Summary
	LoadedAt time.Time
	Version  uint64
}

type Event struct {
	Type    string `json:"type"`
	Version uint64 `json:"version"`
	Error   string `json:"error,omitempty"`
}

type Answer struct {
	Question     string `json:"question"`
	Text         string `json:"answer"`
	FinishReason string `json:"finish_reason,omitempty"`
	SessionID    string `json:"session_id,omitempty"`
}

type Dashboard struct {
	// reloadMu serialises loads and guards cfg and flow.
	reloadMu sync.Mutex
	cfg      *config.Config
	flow     *dataflows.DataFlow

	mu        sync.RWMutex
	snap      *Snapshot
	assistant Asker
	recorder  *storage.Recorder

	newAssistant func(*config.Config) Asker

	// dataFileMoved tells the data-file watcher to follow a new DataFile.
	dataFileMoved chan struct{}

	subMu  sync.Mutex
	subs   map[int]chan Event
	nextID int

	log logrus.FieldLogger
}

type Option func(*Dashboard)

func WithDataFlow(flow *dataflows.DataFlow) Option {
	return func(d *Dashboard) { d.flow = flow }
}

// WithAssistant fixes the assistant; Reconfigure will not replace it.
func WithAssistant(a Asker) Option {
	return func(d *Dashboard) {
		d.assistant = a
		d.newAssistant = nil
	}
}

func WithRecorder(r *storage.Recorder) Option {
	return func(d *Dashboard) { d.recorder = r }
}

func WithLogger(l logrus.FieldLogger) Option {
	return func(d *Dashboard) { d.log = logger.Component(l, "dashboard") }
}

func New(cfg *config.Config, opts ...Option) *Dashboard {
	c := *cfg
	d := &Dashboard{
		cfg:           &c,
		subs:          make(map[int]chan Event),
		dataFileMoved: make(chan struct{}, 1),
		log:           logger.Component(nil, "dashboard"),
	}
	d.newAssistant = func(cfg *config.Config) Asker {
		return llm.NewFromConfig(context.Background(), cfg, d.log)
	}
	for _, opt := range opts {
		opt(d)
	}
	if d.flow == nil {
		d.flow = dataflows.NewDataFlow(d.cfg, d.log)
	}
	if d.assistant == nil && d.newAssistant != nil {
		d.assistant = d.newAssistant(d.cfg)
	}
	return d
}

// Config returns a copy of the active configuration.
func (d *Dashboard) Config() config.Config {
	d.reloadMu.Lock()
	defer d.reloadMu.Unlock()
	return *d.cfg
}

func (d *Dashboard) Snapshot() (*Snapshot, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.snap == nil {
		return nil, ErrNoData
	}
	return d.snap, nil
}

// Bars returns the last limit bars, or all of them when limit <= 0.
func (d *Dashboard) Bars(limit int) ([]*models.Bar, error) {
	snap, err := d.Snapshot()
	if err != nil {
		return nil, err
	}
	bars := snap.Bars
	if limit > 0 && len(bars) > limit {
		bars = bars[len(bars)-limit:]
	}
	return bars, nil
}

// Reload loads the series, derives bands and labels and swaps the snapshot.
func (d *Dashboard) Reload(ctx context.Context) (*Snapshot, error) {
	d.reloadMu.Lock()
	defer d.reloadMu.Unlock()
	return d.reloadLocked(ctx)
}

func (d *Dashboard) reloadLocked(ctx context.Context) (*Snapshot, error) {
	bars, err := d.flow.Load(ctx)
	if err != nil {
		d.publish(Event{Type: "error", Error: err.Error()})
		return nil, err
	}
	if err := indicators.ApplyBands(bars, d.cfg.BandMethod, d.cfg.BandWindow, d.cfg.BandK); err != nil {
		return nil, fmt.Errorf("bands: %w", err)
	}
	indicators.ApplySignals(bars, d.cfg.SignalThreshold)

	d.mu.Lock()
	var version uint64 = 1
	if d.snap != nil {
		version = d.snap.Version + 1
	}
	snap := &Snapshot{
		Bars:     bars,
		Summary:  indicators.Summarize(d.cfg.Ticker, bars),
		LoadedAt: time.Now(),
		Version:  version,
	}
	d.snap = snap
	d.mu.Unlock()

	d.log.WithFields(logrus.Fields{
		"bars":    len(bars),
		"long":    snap.Summary.Long,
		"short":   snap.Summary.Short,
		"version": version,
	}).Info("dashboard reloaded")
	d.publish(Event{Type: "reload", Version: version})
	return snap, nil
}

// Reconfigure applies cfg and reloads. Secrets are carried over from the
// running configuration when cfg has none.
func (d *Dashboard) Reconfigure(ctx context.Context, cfg config.Config) (*Snapshot, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	d.reloadMu.Lock()
	defer d.reloadMu.Unlock()

	if cfg.GeminiAPIKey == "" {
		cfg.CopySecrets(d.cfg)
	}
	prev := *d.cfg
	*d.cfg = cfg

	if prev.DataFile != cfg.DataFile || prev.DataCacheDir != cfg.DataCacheDir || prev.CacheEnabled != cfg.CacheEnabled {
		d.flow = dataflows.NewDataFlow(d.cfg, d.log)
	}
	if prev.DataFile != cfg.DataFile {
		select {
		case d.dataFileMoved <- struct{}{}:
		default:
		}
	}
	if d.newAssistant != nil && llmChanged(prev, cfg) {
		a := d.newAssistant(d.cfg)
		d.mu.Lock()
		d.assistant = a
		d.mu.Unlock()
	}
	return d.reloadLocked(ctx)
}

func llmChanged(a, b config.Config) bool {
	return a.LLMProvider != b.LLMProvider || a.GeminiModel != b.GeminiModel ||
		a.GeminiBaseURL != b.GeminiBaseURL || a.OpenAIBaseURL != b.OpenAIBaseURL ||
		a.OpenAIModel != b.OpenAIModel || a.GeminiAPIKey != b.GeminiAPIKey ||
		a.LLMTimeout != b.LLMTimeout || a.MaxTokens != b.MaxTokens || a.Ticker != b.Ticker
}

// Ask forwards question with the current summary. On failure the returned
// Answer carries the text to show instead of an answer.
func (d *Dashboard) Ask(ctx context.Context, question string) (Answer, error) {
	ans := Answer{Question: question}
	snap, err := d.Snapshot()
	if err != nil {
		ans.Text = err.Error()
		return ans, err
	}

	d.mu.RLock()
	a := d.assistant
	d.mu.RUnlock()
	if a == nil {
		err := llm.ErrMissingAPIKey
		ans.Text = llm.UserMessage(err)
		return ans, err
	}

	summary := snap.Summary.String()
	msg, err := a.Reply(ctx, question, summary)
	ex := storage.Exchange{
		Symbol:   snap.Summary.Symbol,
		Question: question,
		Summary:  summary,
		Provider: a.Provider(),
	}
	if err != nil {
		ans.Text = llm.UserMessage(err)
		ex.Err, ex.ErrText = err, ans.Text
	} else {
		ans.Text = msg.Content
		if msg.ResponseMeta != nil {
			ans.FinishReason = msg.ResponseMeta.FinishReason
		}
		ex.Answer, ex.FinishReason = ans.Text, ans.FinishReason
	}

	if d.recorder != nil && !errors.Is(err, llm.ErrEmptyQuestion) {
		id, rerr := d.recorder.Record(context.WithoutCancel(ctx), ex)
		if rerr != nil {
			d.log.WithError(rerr).Warn("failed to record exchange")
		}
		ans.SessionID = id
	}
	return ans, err
}

type HistoryParams struct {
	Cursor int64 `json:"cursor" form:"cursor"`
	Limit  int   `json:"limit" form:"limit"`
}

// History lists recorded exchanges newest first.
func (d *Dashboard) History(ctx context.Context, params HistoryParams) ([]models.HistoryItem, error) {
	if d.recorder == nil {
		return []models.HistoryItem{}, nil
	}
	return d.recorder.History(ctx, params.Cursor, params.Limit)
}

// Subscribe returns a channel of snapshot events and a cancel func.
// Slow subscribers miss events rather than block reloads.
func (d *Dashboard) Subscribe() (<-chan Event, func()) {
	d.subMu.Lock()
	defer d.subMu.Unlock()
	id := d.nextID
	d.nextID++
	ch := make(chan Event, 8)
	d.subs[id] = ch
	return ch, func() {
		d.subMu.Lock()
		defer d.subMu.Unlock()
		if c, ok := d.subs[id]; ok {
			delete(d.subs, id)
			close(c)
		}
	}
}

func (d *Dashboard) publish(ev Event) {
	d.subMu.Lock()
	defer d.subMu.Unlock()
	for _, ch := range d.subs {
		select {
		case ch <- ev:
		default:
		}
	}
}
