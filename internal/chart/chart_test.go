package chart

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/dyike/tsladash/models"
)

func bars(n int) []*models.Bar {
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	out := make([]*models.Bar, n)
	for i := range out {
		c := 200 + float64(i)
		out[i] = &models.Bar{
			Symbol:     "TSLA",
			Date:       start.AddDate(0, 0, i),
			Open:       c - 1,
			High:       c + 2,
			Low:        c - 3,
			Close:      c,
			Support:    []float64{c - 3, c - 2},
			Resistance: []float64{c + 1, c + 2},
			Direction:  models.DirectionNeutral,
		}
	}
	return out
}

func TestMarkers(t *testing.T) {
	b := []*models.Bar{
		{Date: time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC), High: 110, Low: 100, Direction: models.DirectionLong},
		{Date: time.Date(2024, 1, 3, 0, 0, 0, 0, time.UTC), High: 110, Low: 100, Direction: models.DirectionShort},
		{Date: time.Date(2024, 1, 4, 0, 0, 0, 0, time.UTC), High: 110, Low: 100, Direction: models.DirectionNeutral},
		{Date: time.Date(2024, 1, 5, 0, 0, 0, 0, time.UTC), High: 110, Low: 100},
	}
	got := Markers(b)
	want := []Marker{
		{Date: "2024-01-02", Price: 98, Direction: models.DirectionLong},
		{Date: "2024-01-03", Price: 112.2, Direction: models.DirectionShort},
		{Date: "2024-01-04", Price: 105, Direction: models.DirectionNeutral},
		{Date: "2024-01-05", Price: 105, Direction: models.DirectionNeutral},
	}
	if len(got) != len(want) {
		t.Fatalf("got %d markers", len(got))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("marker %d = %+v, want %+v", i, got[i], want[i])
		}
	}
}

func TestTitle(t *testing.T) {
	if got := Title(Options{}); got != "TSLA Chart (Last 100 Rows)" {
		t.Fatalf("got %q", got)
	}
	if got := Title(Options{Symbol: "NVDA", MaxRows: 30}); got != "NVDA Chart (Last 30 Rows)" {
		t.Fatalf("got %q", got)
	}
}

func TestBuildSeries(t *testing.T) {
	in := bars(5)
	in[3].Direction = models.DirectionLong
	in[4].Direction = models.DirectionShort

	k := Build(in, Options{MaxRows: 3})
	var names []string
	for _, s := range k.MultiSeries {
		names = append(names, s.Name)
	}
	want := []string{"TSLA", "Support", "Resistance", "LONG", "SHORT", "NEUTRAL"}
	if strings.Join(names, ",") != strings.Join(want, ",") {
		t.Fatalf("series = %v, want %v", names, want)
	}
}

func TestBuildSkipsEmptyMarkerGroups(t *testing.T) {
	k := Build(bars(4), Options{})
	for _, s := range k.MultiSeries {
		if s.Name == "LONG" || s.Name == "SHORT" {
			t.Fatalf("unexpected %s series for an all-neutral input", s.Name)
		}
	}
}

func TestZoneAreasOnlyCoverRecentRows(t *testing.T) {
	in := bars(10)
	areas := zoneAreas(in, 7)
	if len(areas) != 6 {
		t.Fatalf("expected 2 zones for each of 3 bars, got %d", len(areas))
	}
	if areas[0].Coordinate0[0] != "2024-01-08" || areas[0].Coordinate1[0] != "2024-01-09" {
		t.Fatalf("zone should span to the next bar: %v %v", areas[0].Coordinate0, areas[0].Coordinate1)
	}
	last := areas[len(areas)-1]
	if last.Coordinate0[0] != last.Coordinate1[0] {
		t.Fatal("last zone has no next bar to span to")
	}
	if areas[0].ItemStyle.Color != supportFill || areas[1].ItemStyle.Color != resistanceFill {
		t.Fatal("zone colours swapped")
	}
}

func TestRender(t *testing.T) {
	var buf bytes.Buffer
	if err := Render(&buf, bars(20), Options{}); err != nil {
		t.Fatalf("Render: %v", err)
	}
	html := buf.String()
	for _, want := range []string{"TSLA Chart (Last 100 Rows)", "Price ($)", "candlestick", supportFill, resistanceFill} {
		if !strings.Contains(html, want) {
			t.Errorf("rendered page missing %q", want)
		}
	}
}
