package series

import (
	"encoding/csv"
	"fmt"
	"math"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"
)

// LoadCSV reads long-format bar data into a Frame. The expected header is
//
//	tstamp,asset,open,high,low,close[,volume]
//
// with timestamps in RFC 3339 or plain 2006-01-02 form. Rows are pivoted
// into per-asset Open/High/Low/Close/Volume columns.
func LoadCSV(path string) (*Frame, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open bars file: %w", err)
	}
	defer file.Close()

	r := csv.NewReader(file)
	records, err := r.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("read bars file: %w", err)
	}
	if len(records) < 2 {
		return nil, fmt.Errorf("bars file %s has no data rows", path)
	}

	header := records[0]
	col := make(map[string]int, len(header))
	for i, name := range header {
		col[strings.ToLower(strings.TrimSpace(name))] = i
	}
	for _, required := range []string{"tstamp", "asset", "open", "high", "low", "close"} {
		if _, ok := col[required]; !ok {
			return nil, fmt.Errorf("bars file %s missing column %q", path, required)
		}
	}
	volIdx, hasVolume := col["volume"]

	type bar struct {
		open, high, low, close, volume float64
	}
	bars := make(map[time.Time]map[string]bar)
	assets := make(map[string]bool)

	for line, rec := range records[1:] {
		tst, err := parseTime(rec[col["tstamp"]])
		if err != nil {
			return nil, fmt.Errorf("bars file line %d: %w", line+2, err)
		}
		asset := strings.TrimSpace(rec[col["asset"]])
		b := bar{volume: math.NaN()}
		if b.open, err = strconv.ParseFloat(rec[col["open"]], 64); err != nil {
			return nil, fmt.Errorf("bars file line %d: %w", line+2, err)
		}
		if b.high, err = strconv.ParseFloat(rec[col["high"]], 64); err != nil {
			return nil, fmt.Errorf("bars file line %d: %w", line+2, err)
		}
		if b.low, err = strconv.ParseFloat(rec[col["low"]], 64); err != nil {
			return nil, fmt.Errorf("bars file line %d: %w", line+2, err)
		}
		if b.close, err = strconv.ParseFloat(rec[col["close"]], 64); err != nil {
			return nil, fmt.Errorf("bars file line %d: %w", line+2, err)
		}
		if hasVolume && rec[volIdx] != "" {
			if b.volume, err = strconv.ParseFloat(rec[volIdx], 64); err != nil {
				return nil, fmt.Errorf("bars file line %d: %w", line+2, err)
			}
		}
		if bars[tst] == nil {
			bars[tst] = make(map[string]bar)
		}
		bars[tst][asset] = b
		assets[asset] = true
	}

	index := make([]time.Time, 0, len(bars))
	for tst := range bars {
		index = append(index, tst)
	}
	sort.Slice(index, func(i, j int) bool { return index[i].Before(index[j]) })

	names := make([]string, 0, len(assets))
	for a := range assets {
		names = append(names, a)
	}
	sort.Strings(names)

	frame := New(index)
	for _, asset := range names {
		cols := map[string][]float64{
			Open: make([]float64, len(index)), High: make([]float64, len(index)),
			Low: make([]float64, len(index)), Close: make([]float64, len(index)),
			Volume: make([]float64, len(index)),
		}
		for i, tst := range index {
			b, ok := bars[tst][asset]
			if !ok {
				b = bar{open: math.NaN(), high: math.NaN(), low: math.NaN(), close: math.NaN(), volume: math.NaN()}
			}
			cols[Open][i], cols[High][i], cols[Low][i] = b.open, b.high, b.low
			cols[Close][i], cols[Volume][i] = b.close, b.volume
		}
		for _, field := range []string{Open, High, Low, Close, Volume} {
			frame.SetColumn(Key{Asset: asset, Column: field}, cols[field])
		}
	}
	return frame, nil
}

func parseTime(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	for _, layout := range []string{time.RFC3339, "2006-01-02 15:04:05", "2006-01-02"} {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("unparseable timestamp %q", s)
}
