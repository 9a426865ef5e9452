package dataflows

import (
	"errors"
	"path/filepath"
	"reflect"
	"strings"
	"testing"

	"github.com/dyike/tsladash/models"
)

const sampleCSV = ` Timestamp ,Open,High,Low,Close,Volume,Support,Resistance,Direction
2024-01-03,250.1,252.0,240.2,238.45,100,"[240.0, 241.5]","[251.0]",long
2024-01-02,248.5,251.3,244.4,248.42,120,[],"[252.1, 253]",None
2024-01-04,abc,240,230,235,90,,,SHORT
2024-01-05 00:00:00,236.0,239.9,233.1,237.5,,"(233, 234)",,
not-a-date,1,2,0.5,1.5,1,,,
`

func TestReadCSV(t *testing.T) {
	bars, err := ReadCSV(strings.NewReader(sampleCSV), "tsla")
	if err != nil {
		t.Fatalf("ReadCSV: %v", err)
	}
	if len(bars) != 3 {
		t.Fatalf("expected 3 valid rows, got %d", len(bars))
	}

	if got := bars[0].Day(); got != "2024-01-02" {
		t.Fatalf("rows not sorted, first is %s", got)
	}
	first := bars[0]
	if first.Symbol != "TSLA" || first.Close != 248.42 || first.Volume != 120 {
		t.Fatalf("unexpected first bar %+v", first)
	}
	if len(first.Support) != 0 || !reflect.DeepEqual(first.Resistance, []float64{252.1, 253}) {
		t.Fatalf("unexpected levels %v / %v", first.Support, first.Resistance)
	}
	if first.Direction != models.DirectionNeutral || !first.HasDirection {
		t.Fatalf("None should be an explicit neutral label, got %s (%v)", first.Direction, first.HasDirection)
	}

	if bars[1].Direction != models.DirectionLong {
		t.Fatalf("expected LONG, got %s", bars[1].Direction)
	}
	last := bars[2]
	if last.HasDirection {
		t.Fatal("empty direction cell should leave the label unset")
	}
	if !reflect.DeepEqual(last.Support, []float64{233, 234}) {
		t.Fatalf("tuple support not parsed: %v", last.Support)
	}
}

func TestReadCSVErrors(t *testing.T) {
	if _, err := ReadCSV(strings.NewReader("date,open,high,low,close\n2024-01-02,1,2,0,1\n"), "TSLA"); !errors.Is(err, ErrMissingTimestamp) {
		t.Fatalf("expected ErrMissingTimestamp, got %v", err)
	}
	if _, err := ReadCSV(strings.NewReader(""), "TSLA"); !errors.Is(err, ErrMissingTimestamp) {
		t.Fatalf("expected ErrMissingTimestamp for empty input, got %v", err)
	}
	if _, err := ReadCSV(strings.NewReader("timestamp,open,high,low,close\n2024-01-02,x,2,0,1\n"), "TSLA"); !errors.Is(err, ErrNoRows) {
		t.Fatalf("expected ErrNoRows, got %v", err)
	}
	if _, err := LoadCSV(filepath.Join(t.TempDir(), "missing.csv"), "TSLA"); err == nil {
		t.Fatal("expected error for missing file")
	}
}

func TestParseLevels(t *testing.T) {
	tests := []struct {
		in   string
		want []float64
	}{
		{"[1, 2.5]", []float64{1, 2.5}},
		{"(3,4)", []float64{3, 4}},
		{"7.25", []float64{7.25}},
		{"[]", nil},
		{"", nil},
		{"[1, oops]", nil},
		{"nan", nil},
	}
	for _, tt := range tests {
		if got := ParseLevels(tt.in); !reflect.DeepEqual(got, tt.want) {
			t.Errorf("ParseLevels(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestWriteCSVRoundTrip(t *testing.T) {
	in, err := ReadCSV(strings.NewReader(sampleCSV), "TSLA")
	if err != nil {
		t.Fatal(err)
	}
	path := filepath.Join(t.TempDir(), "out", "bars.csv")
	if err := WriteCSV(path, in); err != nil {
		t.Fatalf("WriteCSV: %v", err)
	}
	out, err := LoadCSV(path, "TSLA")
	if err != nil {
		t.Fatalf("LoadCSV: %v", err)
	}
	if len(out) != len(in) {
		t.Fatalf("expected %d bars, got %d", len(in), len(out))
	}
	for i := range in {
		a, b := in[i], out[i]
		if a.Day() != b.Day() || a.Close != b.Close || a.Direction != b.Direction || a.HasDirection != b.HasDirection {
			t.Fatalf("bar %d differs: %+v vs %+v", i, a, b)
		}
		if !reflect.DeepEqual(a.Support, b.Support) || !reflect.DeepEqual(a.Resistance, b.Resistance) {
			t.Fatalf("bar %d levels differ: %v/%v vs %v/%v", i, a.Support, a.Resistance, b.Support, b.Resistance)
		}
	}
}
