package dataflows

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/dyike/tsladash/models"
)

var (
	ErrMissingTimestamp = errors.New("csv has no timestamp column")
	ErrNoRows           = errors.New("csv has no valid rows")
)

var csvHeaders = []string{"timestamp", "open", "high", "low", "close", "volume", "support", "resistance", "direction"}

// LoadCSV reads a price file. Headers are matched case-insensitively, rows
// with an unparseable timestamp or OHLC value are dropped and the result is
// sorted by date.
func LoadCSV(path, symbol string) ([]*models.Bar, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	bars, err := ReadCSV(f, symbol)
	if err != nil {
		return nil, fmt.Errorf("load %s: %w", path, err)
	}
	return bars, nil
}

// ReadCSV is LoadCSV over an arbitrary reader.
func ReadCSV(r io.Reader, symbol string) ([]*models.Bar, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err == io.EOF {
		return nil, ErrMissingTimestamp
	}
	if err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}

	cols := make(map[string]int, len(header))
	for i, h := range header {
		h = strings.ToLower(strings.TrimSpace(strings.TrimPrefix(h, "\ufeff")))
		if _, dup := cols[h]; !dup {
			cols[h] = i
		}
	}
	if _, ok := cols["timestamp"]; !ok {
		return nil, ErrMissingTimestamp
	}
	cell := func(rec []string, name string) (string, bool) {
		i, ok := cols[name]
		if !ok || i >= len(rec) {
			return "", false
		}
		return strings.TrimSpace(rec[i]), true
	}

	symbol = NormalizeSymbol(symbol)
	var bars []*models.Bar
	for {
		rec, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read row: %w", err)
		}

		ts, _ := cell(rec, "timestamp")
		date, err := ParseDateString(ts)
		if err != nil {
			continue
		}
		bar := &models.Bar{Symbol: symbol, Date: date}

		ok := true
		for _, f := range []struct {
			name string
			dst  *float64
		}{
			{"open", &bar.Open}, {"high", &bar.High}, {"low", &bar.Low}, {"close", &bar.Close},
		} {
			raw, _ := cell(rec, f.name)
			v, perr := parseNumber(raw)
			if perr != nil {
				ok = false
				break
			}
			*f.dst = v
		}
		if !ok {
			continue
		}

		if raw, present := cell(rec, "volume"); present {
			if v, perr := parseNumber(raw); perr == nil {
				bar.Volume = int64(v)
			}
		}
		if raw, present := cell(rec, "support"); present {
			bar.Support = ParseLevels(raw)
		}
		if raw, present := cell(rec, "resistance"); present {
			bar.Resistance = ParseLevels(raw)
		}
		if raw, present := cell(rec, "direction"); present && raw != "" {
			bar.Direction = models.ParseDirection(raw)
			bar.HasDirection = true
		} else {
			bar.Direction = models.DirectionNeutral
		}

		bars = append(bars, bar)
	}

	if len(bars) == 0 {
		return nil, ErrNoRows
	}
	sort.SliceStable(bars, func(i, j int) bool { return bars[i].Date.Before(bars[j].Date) })
	return bars, nil
}

func parseNumber(s string) (float64, error) {
	s = strings.ReplaceAll(strings.TrimPrefix(strings.TrimSpace(s), "$"), ",", "")
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, err
	}
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, fmt.Errorf("not a finite number: %q", s)
	}
	return v, nil
}

// ParseLevels reads a list literal such as "[245.1, 246.8]", "(1,2)" or a
// bare number. Anything malformed yields an empty list.
func ParseLevels(s string) []float64 {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	if (strings.HasPrefix(s, "[") && strings.HasSuffix(s, "]")) ||
		(strings.HasPrefix(s, "(") && strings.HasSuffix(s, ")")) {
		s = s[1 : len(s)-1]
	}
	var out []float64
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		v, err := parseNumber(part)
		if err != nil {
			return nil
		}
		out = append(out, v)
	}
	return out
}

func formatLevels(levels []float64) string {
	if len(levels) == 0 {
		return ""
	}
	parts := make([]string, len(levels))
	for i, v := range levels {
		parts[i] = strconv.FormatFloat(v, 'f', -1, 64)
	}
	return "[" + strings.Join(parts, ", ") + "]"
}

// WriteCSV writes bars in the format LoadCSV reads, replacing path atomically.
func WriteCSV(path string, bars []*models.Bar) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), ".bars-*.csv")
	if err != nil {
		return fmt.Errorf("failed to create CSV file: %w", err)
	}
	defer os.Remove(tmp.Name())

	writer := csv.NewWriter(tmp)
	if err := writer.Write(csvHeaders); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write headers: %w", err)
	}
	for _, b := range bars {
		direction := ""
		if b.HasDirection {
			direction = string(b.Direction)
		}
		row := []string{
			b.Date.Format("2006-01-02"),
			strconv.FormatFloat(b.Open, 'f', 4, 64),
			strconv.FormatFloat(b.High, 'f', 4, 64),
			strconv.FormatFloat(b.Low, 'f', 4, 64),
			strconv.FormatFloat(b.Close, 'f', 4, 64),
			strconv.FormatInt(b.Volume, 10),
			formatLevels(b.Support),
			formatLevels(b.Resistance),
			direction,
		}
		if err := writer.Write(row); err != nil {
			tmp.Close()
			return fmt.Errorf("failed to write row: %w", err)
		}
	}
	writer.Flush()
	if err := writer.Error(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), path)
}
