// Package series provides a minimal time-indexed column store for bar data
// and derived portfolio timeseries. Columns are keyed by (asset, field) and
// aligned to a shared timestamp index; missing values are NaN.
package series

import (
	"fmt"
	"math"
	"sort"
	"time"
)

// Standard bar column names used by the replay ticker.
const (
	Open   = "Open"
	High   = "High"
	Low    = "Low"
	Close  = "Close"
	Volume = "Volume"
)

// Key addresses one column of a Frame.
type Key struct {
	Asset  string
	Column string
}

// Frame is a two-level pivot table: rows are timestamps, columns are
// (asset, field) pairs. The zero value is not usable, use New.
type Frame struct {
	index []time.Time
	keys  []Key
	cols  map[Key][]float64
}

// New creates an empty frame over the given (ascending) timestamp index.
func New(index []time.Time) *Frame {
	return &Frame{
		index: index,
		cols:  make(map[Key][]float64),
	}
}

// Index returns the frame's timestamp index.
func (f *Frame) Index() []time.Time { return f.index }

// Len returns the number of rows.
func (f *Frame) Len() int { return len(f.index) }

// Keys returns the column keys in insertion order.
func (f *Frame) Keys() []Key { return f.keys }

// Assets returns the distinct asset names in column order.
func (f *Frame) Assets() []string {
	seen := make(map[string]bool)
	var assets []string
	for _, k := range f.keys {
		if !seen[k.Asset] {
			seen[k.Asset] = true
			assets = append(assets, k.Asset)
		}
	}
	return assets
}

// SetColumn stores a column; values must be aligned to the index.
func (f *Frame) SetColumn(key Key, values []float64) error {
	if len(values) != len(f.index) {
		return fmt.Errorf("column %s/%s has %d values, index has %d", key.Asset, key.Column, len(values), len(f.index))
	}
	if _, ok := f.cols[key]; !ok {
		f.keys = append(f.keys, key)
	}
	f.cols[key] = values
	return nil
}

// Column returns a column by key, or false if absent.
func (f *Frame) Column(asset, column string) ([]float64, bool) {
	vals, ok := f.cols[Key{Asset: asset, Column: column}]
	return vals, ok
}

// At returns the value at row i, or NaN when the column is absent.
func (f *Frame) At(i int, asset, column string) float64 {
	vals, ok := f.cols[Key{Asset: asset, Column: column}]
	if !ok || i < 0 || i >= len(vals) {
		return math.NaN()
	}
	return vals[i]
}

// Truncate returns a view of the frame containing all rows with
// timestamp <= t. The view shares column storage with the original.
func (f *Frame) Truncate(t time.Time) *Frame {
	n := sort.Search(len(f.index), func(i int) bool { return f.index[i].After(t) })
	out := &Frame{
		index: f.index[:n],
		keys:  f.keys,
		cols:  make(map[Key][]float64, len(f.cols)),
	}
	for k, vals := range f.cols {
		out.cols[k] = vals[:n]
	}
	return out
}

// ForwardFill returns a copy of the frame with NaN values replaced by the
// most recent preceding value of the same column. Leading NaNs remain.
func (f *Frame) ForwardFill() *Frame {
	out := New(f.index)
	for _, k := range f.keys {
		src := f.cols[k]
		vals := make([]float64, len(src))
		last := math.NaN()
		for i, v := range src {
			if !math.IsNaN(v) {
				last = v
			}
			vals[i] = last
		}
		out.SetColumn(k, vals)
	}
	return out
}

// RollingMean computes a simple moving average over the given window.
// The first window-1 entries are NaN.
func RollingMean(vals []float64, window int) []float64 {
	out := make([]float64, len(vals))
	sum := 0.0
	for i, v := range vals {
		sum += v
		if i >= window {
			sum -= vals[i-window]
		}
		if i >= window-1 {
			out[i] = sum / float64(window)
		} else {
			out[i] = math.NaN()
		}
	}
	return out
}
