// Package indicators derives support/resistance bands, directional labels and
// the summary statistics of a bar series.
package indicators

import (
	"fmt"
	"math"

	"github.com/dyike/tsladash/config"
	"github.com/dyike/tsladash/models"
)

// Band holds the levels computed for one bar.
type Band struct {
	Support    []float64
	Resistance []float64
}

// RollingBands computes a band for every bar from the trailing window ending
// at that bar. Bars before the first full window use whatever history exists.
func RollingBands(bars []*models.Bar, method string, window int, k float64) ([]Band, error) {
	if window < 1 {
		return nil, fmt.Errorf("window must be positive, got %d", window)
	}
	var calc func([]*models.Bar) Band
	switch method {
	case config.BandMethodMinMax, "":
		calc = minMaxBand
	case config.BandMethodEnvelope:
		calc = func(w []*models.Bar) Band { return envelopeBand(w, k) }
	default:
		return nil, fmt.Errorf("unknown band method %q", method)
	}

	bands := make([]Band, len(bars))
	for i := range bars {
		start := i - window + 1
		if start < 0 {
			start = 0
		}
		bands[i] = calc(bars[start : i+1])
	}
	return bands, nil
}

func minMaxBand(w []*models.Bar) Band {
	minLow, minClose := math.Inf(1), math.Inf(1)
	maxHigh, maxClose := math.Inf(-1), math.Inf(-1)
	for _, b := range w {
		minLow = math.Min(minLow, b.Low)
		minClose = math.Min(minClose, b.Close)
		maxHigh = math.Max(maxHigh, b.High)
		maxClose = math.Max(maxClose, b.Close)
	}
	return Band{
		Support:    []float64{round(minLow), round(minClose)},
		Resistance: []float64{round(maxClose), round(maxHigh)},
	}
}

func envelopeBand(w []*models.Bar, k float64) Band {
	var sum float64
	for _, b := range w {
		sum += b.Close
	}
	mean := sum / float64(len(w))

	var variance float64
	for _, b := range w {
		d := b.Close - mean
		variance += d * d
	}
	std := math.Sqrt(variance / float64(len(w)))

	return Band{
		Support:    []float64{round(mean - k*std)},
		Resistance: []float64{round(mean + k*std)},
	}
}

func round(v float64) float64 {
	return math.Round(v*10000) / 10000
}

// ApplyBands fills in levels for bars whose source carried none. Levels that
// came with the data are left untouched.
func ApplyBands(bars []*models.Bar, method string, window int, k float64) error {
	bands, err := RollingBands(bars, method, window, k)
	if err != nil {
		return err
	}
	for i, b := range bars {
		if len(b.Support) == 0 {
			b.Support = bands[i].Support
		}
		if len(b.Resistance) == 0 {
			b.Resistance = bands[i].Resistance
		}
	}
	return nil
}
