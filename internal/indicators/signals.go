package indicators

import "github.com/dyike/tsladash/models"

// Classify labels a bar LONG when its close sits at or just above the top of
// the support zone, SHORT when it reaches the bottom of the resistance zone,
// and NEUTRAL otherwise. Zones that touch or overlap carry no signal; that
// covers single-bar windows and flat stretches, where both collapse onto the
// close.
func Classify(b *models.Bar, threshold float64) models.Direction {
	s, okS := b.SupportZone()
	r, okR := b.ResistanceZone()
	if !okS || !okR || s.Upper >= r.Lower {
		return models.DirectionNeutral
	}
	switch {
	case b.Close <= s.Upper*(1+threshold):
		return models.DirectionLong
	case b.Close >= r.Lower*(1-threshold):
		return models.DirectionShort
	default:
		return models.DirectionNeutral
	}
}

// ApplySignals labels every bar the source left unlabelled.
func ApplySignals(bars []*models.Bar, threshold float64) {
	for _, b := range bars {
		if b.HasDirection {
			continue
		}
		b.Direction = Classify(b, threshold)
	}
}

// Counts tallies labels.
func Counts(bars []*models.Bar) (long, short, neutral int) {
	for _, b := range bars {
		switch b.Direction {
		case models.DirectionLong:
			long++
		case models.DirectionShort:
			short++
		default:
			neutral++
		}
	}
	return long, short, neutral
}
