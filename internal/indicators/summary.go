package indicators

import (
	"github.com/dyike/tsladash/models"
)

type monthStats struct {
	key      string
	high     float64
	low      float64
	closeSum float64
	n        int
}

// Summarize builds the dashboard summary. bars must be sorted by date.
func Summarize(symbol string, bars []*models.Bar) models.Summary {
	s := models.Summary{Symbol: symbol, Records: len(bars)}
	if len(bars) == 0 {
		return s
	}

	first, last := bars[0], bars[len(bars)-1]
	s.Start, s.End, s.LastClose = first.Date, last.Date, last.Close
	s.Long, s.Short, s.Neutral = Counts(bars)

	s.High, s.HighDate = first.High, first.Date
	s.Low, s.LowDate = first.Low, first.Date

	var months []*monthStats
	index := map[string]*monthStats{}
	for _, b := range bars {
		if b.High > s.High {
			s.High, s.HighDate = b.High, b.Date
		}
		if b.Low < s.Low {
			s.Low, s.LowDate = b.Low, b.Date
		}

		key := b.Date.Format("2006-01")
		m, ok := index[key]
		if !ok {
			m = &monthStats{key: key, high: b.High, low: b.Low}
			index[key] = m
			months = append(months, m)
		}
		if b.High > m.high {
			m.high = b.High
		}
		if b.Low < m.low {
			m.low = b.Low
		}
		m.closeSum += b.Close
		m.n++
	}

	best := -1.0
	for _, m := range months {
		mean := m.closeSum / float64(m.n)
		if mean <= 0 {
			continue
		}
		pct := (m.high - m.low) / mean * 100
		if pct > best {
			best = pct
			s.MostVolatileMonth = m.key
			s.MonthRangePct = pct
		}
	}
	return s
}
