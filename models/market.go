package models

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Direction is the directional bias label attached to a bar.
type Direction string

const (
	DirectionLong    Direction = "LONG"
	DirectionShort   Direction = "SHORT"
	DirectionNeutral Direction = "NEUTRAL"
)

// ParseDirection maps free-form labels onto the three known directions.
// Anything unrecognised, including NONE and empty cells, is NEUTRAL.
func ParseDirection(s string) Direction {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "LONG", "BUY", "BULLISH":
		return DirectionLong
	case "SHORT", "SELL", "BEARISH":
		return DirectionShort
	default:
		return DirectionNeutral
	}
}

// Bar is one daily OHLC record plus its support/resistance levels.
type Bar struct {
	Symbol     string    `json:"symbol"`
	Date       time.Time `json:"date"`
	Open       float64   `json:"open"`
	High       float64   `json:"high"`
	Low        float64   `json:"low"`
	Close      float64   `json:"close"`
	Volume     int64     `json:"volume"`
	Support    []float64 `json:"support,omitempty"`
	Resistance []float64 `json:"resistance,omitempty"`
	Direction  Direction `json:"direction"`

	// HasDirection is set when the source supplied a label.
	HasDirection bool `json:"-"`
}

// Zone is a closed price interval.
type Zone struct {
	Lower float64 `json:"lower"`
	Upper float64 `json:"upper"`
}

func (z Zone) Height() float64 { return z.Upper - z.Lower }

func zoneOf(levels []float64) (Zone, bool) {
	if len(levels) == 0 {
		return Zone{}, false
	}
	z := Zone{Lower: levels[0], Upper: levels[0]}
	for _, v := range levels[1:] {
		if v < z.Lower {
			z.Lower = v
		}
		if v > z.Upper {
			z.Upper = v
		}
	}
	return z, true
}

func (b *Bar) SupportZone() (Zone, bool)    { return zoneOf(b.Support) }
func (b *Bar) ResistanceZone() (Zone, bool) { return zoneOf(b.Resistance) }

func (b *Bar) Day() string { return b.Date.Format("2006-01-02") }

// Summary is the compact description of a loaded series that is shown on the
// dashboard and handed to the assistant.
type Summary struct {
	Symbol    string    `json:"symbol"`
	Records   int       `json:"records"`
	Start     time.Time `json:"start"`
	End       time.Time `json:"end"`
	LastClose float64   `json:"last_close"`

	Long    int `json:"long"`
	Short   int `json:"short"`
	Neutral int `json:"neutral"`

	High     float64   `json:"high"`
	HighDate time.Time `json:"high_date"`
	Low      float64   `json:"low"`
	LowDate  time.Time `json:"low_date"`

	MostVolatileMonth string  `json:"most_volatile_month,omitempty"`
	MonthRangePct     float64 `json:"month_range_pct,omitempty"`
}

// Stats is the headline line: record count and date range.
func (s Summary) Stats() string {
	return fmt.Sprintf("Records: %d, Range: %s to %s",
		s.Records, s.Start.Format("2006-01-02"), s.End.Format("2006-01-02"))
}

func (s Summary) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s, Close: $%s, LONG: %d, SHORT: %d",
		s.Stats(), money(s.LastClose), s.Long, s.Short)
	fmt.Fprintf(&b, ", NEUTRAL: %d", s.Neutral)
	if s.Records > 0 {
		fmt.Fprintf(&b, ", High: $%s on %s, Low: $%s on %s",
			money(s.High), s.HighDate.Format("2006-01-02"),
			money(s.Low), s.LowDate.Format("2006-01-02"))
	}
	if s.MostVolatileMonth != "" {
		fmt.Fprintf(&b, ", Most volatile month: %s (range %s%% of avg close)",
			s.MostVolatileMonth, decimal.NewFromFloat(s.MonthRangePct).StringFixed(1))
	}
	return b.String()
}

func money(v float64) string {
	return decimal.NewFromFloat(v).StringFixed(2)
}
