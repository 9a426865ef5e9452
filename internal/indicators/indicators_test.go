package indicators

import (
	"math"
	"reflect"
	"testing"
	"time"

	"github.com/dyike/tsladash/config"
	"github.com/dyike/tsladash/models"
)

func series(closes ...float64) []*models.Bar {
	start := time.Date(2024, 1, 29, 0, 0, 0, 0, time.UTC)
	bars := make([]*models.Bar, len(closes))
	for i, c := range closes {
		bars[i] = &models.Bar{
			Symbol: "TSLA",
			Date:   start.AddDate(0, 0, i),
			Open:   c,
			High:   c + 1,
			Low:    c - 1,
			Close:  c,
		}
	}
	return bars
}

func TestRollingBandsMinMax(t *testing.T) {
	bars := series(10, 12, 11, 15)
	bands, err := RollingBands(bars, config.BandMethodMinMax, 3, 2)
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(bands[0], Band{Support: []float64{9, 10}, Resistance: []float64{10, 11}}) {
		t.Fatalf("partial window band wrong: %+v", bands[0])
	}
	// window 12,11,15
	if !reflect.DeepEqual(bands[3], Band{Support: []float64{10, 11}, Resistance: []float64{15, 16}}) {
		t.Fatalf("full window band wrong: %+v", bands[3])
	}
}

func TestRollingBandsEnvelope(t *testing.T) {
	bars := series(2, 4, 4, 4, 5, 5, 7, 9)
	bands, err := RollingBands(bars, config.BandMethodEnvelope, 8, 2)
	if err != nil {
		t.Fatal(err)
	}
	last := bands[len(bands)-1]
	// mean 5, population std 2
	if last.Support[0] != 1 || last.Resistance[0] != 9 {
		t.Fatalf("unexpected envelope %+v", last)
	}
	if bands[0].Support[0] != 2 || bands[0].Resistance[0] != 2 {
		t.Fatalf("single-bar envelope should collapse onto the close: %+v", bands[0])
	}
}

func TestRollingBandsErrors(t *testing.T) {
	if _, err := RollingBands(series(1), "median", 3, 2); err == nil {
		t.Fatal("expected unknown method error")
	}
	if _, err := RollingBands(series(1), config.BandMethodMinMax, 0, 2); err == nil {
		t.Fatal("expected window error")
	}
}

func TestApplyBandsKeepsProvidedLevels(t *testing.T) {
	bars := series(10, 12)
	bars[1].Support = []float64{5}
	if err := ApplyBands(bars, config.BandMethodMinMax, 20, 2); err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(bars[1].Support, []float64{5}) {
		t.Fatalf("provided support overwritten: %v", bars[1].Support)
	}
	if len(bars[1].Resistance) == 0 || len(bars[0].Support) == 0 {
		t.Fatal("missing levels not filled")
	}
}

func TestClassify(t *testing.T) {
	tests := []struct {
		name string
		bar  models.Bar
		thr  float64
		want models.Direction
	}{
		{"at support", models.Bar{Close: 100, Support: []float64{99, 100}, Resistance: []float64{110, 112}}, 0.01, models.DirectionLong},
		{"within threshold of support", models.Bar{Close: 100.9, Support: []float64{100}, Resistance: []float64{110}}, 0.01, models.DirectionLong},
		{"at resistance", models.Bar{Close: 109, Support: []float64{100}, Resistance: []float64{110}}, 0.01, models.DirectionShort},
		{"between", models.Bar{Close: 105, Support: []float64{100}, Resistance: []float64{110}}, 0.01, models.DirectionNeutral},
		{"no resistance", models.Bar{Close: 100, Support: []float64{100}}, 0.01, models.DirectionNeutral},
		{"no support", models.Bar{Close: 110, Resistance: []float64{110}}, 0.01, models.DirectionNeutral},
		{"touching zones", models.Bar{Close: 100, Support: []float64{100}, Resistance: []float64{100}}, 0, models.DirectionNeutral},
		{"overlapping zones", models.Bar{Close: 100, Support: []float64{95, 104}, Resistance: []float64{102, 110}}, 0.01, models.DirectionNeutral},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Classify(&tt.bar, tt.thr); got != tt.want {
				t.Fatalf("got %s, want %s", got, tt.want)
			}
		})
	}
}

func TestSignalsWithoutSpread(t *testing.T) {
	for _, method := range []string{config.BandMethodMinMax, config.BandMethodEnvelope} {
		t.Run(method, func(t *testing.T) {
			flat := series(100, 100, 100, 100, 100)
			if err := ApplyBands(flat, method, 20, 2); err != nil {
				t.Fatal(err)
			}
			ApplySignals(flat, 0.01)
			for i, b := range flat {
				if b.Direction != models.DirectionNeutral {
					t.Errorf("flat bar %d: got %s, want NEUTRAL", i, b.Direction)
				}
			}

			rising := series(100, 110, 120, 130, 140)
			if err := ApplyBands(rising, method, 20, 2); err != nil {
				t.Fatal(err)
			}
			ApplySignals(rising, 0.01)
			if rising[0].Direction != models.DirectionNeutral {
				t.Errorf("first bar: got %s, want NEUTRAL", rising[0].Direction)
			}
		})
	}
}

func TestApplySignalsRespectsSourceLabels(t *testing.T) {
	bars := []*models.Bar{
		{Close: 100, Support: []float64{100}, Resistance: []float64{110}},
		{Close: 100, Support: []float64{100}, Resistance: []float64{110}, Direction: models.DirectionShort, HasDirection: true},
		{Close: 100, Support: []float64{100}, Resistance: []float64{110}, Direction: models.DirectionNeutral, HasDirection: true},
	}
	ApplySignals(bars, 0.01)
	got := []models.Direction{bars[0].Direction, bars[1].Direction, bars[2].Direction}
	want := []models.Direction{models.DirectionLong, models.DirectionShort, models.DirectionNeutral}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("got %v, want %v", got, want)
	}
}

func TestSummarize(t *testing.T) {
	if s := Summarize("TSLA", nil); s.Records != 0 || s.MostVolatileMonth != "" {
		t.Fatalf("empty summary should be blank: %+v", s)
	}

	// Jan 29-31 then Feb 1-3.
	bars := series(100, 101, 102, 150, 200, 120)
	bars[0].Direction = models.DirectionLong
	bars[4].Direction = models.DirectionShort
	bars[5].Direction = models.DirectionShort

	s := Summarize("TSLA", bars)
	if s.Records != 6 || s.Long != 1 || s.Short != 2 || s.Neutral != 3 {
		t.Fatalf("unexpected counts %+v", s)
	}
	if s.LastClose != 120 || s.High != 201 || s.HighDate.Day() != 2 || s.Low != 99 {
		t.Fatalf("unexpected extremes %+v", s)
	}
	if s.MostVolatileMonth != "2024-02" {
		t.Fatalf("expected February, got %s", s.MostVolatileMonth)
	}
	// (201 - 119) / mean(150, 200, 120)
	want := 82 / (470.0 / 3) * 100
	if math.Abs(s.MonthRangePct-want) > 1e-9 {
		t.Fatalf("range pct %f, want %f", s.MonthRangePct, want)
	}
	if s.Start.Day() != 29 || s.End.Day() != 3 {
		t.Fatalf("unexpected range %s..%s", s.Start, s.End)
	}
}
