package tickers

import (
	"math"
	"testing"
	"time"

	"tradesim/internal/series"
	"tradesim/internal/ticks"
)

type captureSink struct {
	batches [][]ticks.Tick
}

func (c *captureSink) OnTicks(batch []ticks.Tick) error {
	c.batches = append(c.batches, batch)
	return nil
}

func day(n int) time.Time {
	return time.Date(2020, 1, n, 0, 0, 0, 0, time.UTC)
}

func barFrame(t *testing.T) *series.Frame {
	t.Helper()
	f := series.New([]time.Time{day(1), day(2)})
	set := func(column string, values []float64) {
		if err := f.SetColumn(series.Key{Asset: "abc", Column: column}, values); err != nil {
			t.Fatalf("SetColumn: %v", err)
		}
	}
	set(series.Open, []float64{100, 110})
	set(series.High, []float64{108, 118})
	set(series.Low, []float64{98, 106})
	set(series.Close, []float64{105, 112})
	return f
}

func TestReplayEmitsBarTriples(t *testing.T) {
	t.Parallel()
	sink := &captureSink{}
	r := NewReplayTicker(sink, barFrame(t))

	if err := r.Start(7, nil); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if len(sink.batches) != 6 {
		t.Fatalf("batches = %d, want 3 per bar x 2 bars", len(sink.batches))
	}

	open, probe, close_ := sink.batches[0][0], sink.batches[1][0], sink.batches[2][0]
	if open.Bid != 100 || open.Ask != 100 {
		t.Errorf("open tick = %v/%v, want 100/100", open.Bid, open.Ask)
	}
	if !probe.IsLimitProbe() || probe.Bid != 108 || probe.Ask != 98 {
		t.Errorf("probe tick = %v/%v, want high/low 108/98", probe.Bid, probe.Ask)
	}
	if close_.Bid != 105 || close_.Ask != 105 {
		t.Errorf("close tick = %v/%v, want 105/105", close_.Bid, close_.Ask)
	}
	if open.EpochID != 7 || !open.Tst.Equal(day(1)) {
		t.Errorf("tick meta = epoch %d @ %v", open.EpochID, open.Tst)
	}
}

func TestReplayCallbackSeesTruncatedFrame(t *testing.T) {
	t.Parallel()
	sink := &captureSink{}
	r := NewReplayTicker(sink, barFrame(t))

	var lengths []int
	callback := func(barTicks []ticks.Tick, features *series.Frame) error {
		if len(barTicks) != 1 {
			t.Errorf("bar ticks = %d, want 1", len(barTicks))
		}
		lengths = append(lengths, features.Len())
		return nil
	}
	if err := r.Start(1, callback); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if len(lengths) != 2 || lengths[0] != 1 || lengths[1] != 2 {
		t.Errorf("feature lengths = %v, want [1 2]", lengths)
	}
}

func TestReplayFixedSlippageWidensQuotes(t *testing.T) {
	t.Parallel()
	sink := &captureSink{}
	r := NewReplayTicker(sink, barFrame(t), WithSlippage(0.5, 0))

	if err := r.Start(1, nil); err != nil {
		t.Fatalf("Start: %v", err)
	}

	open := sink.batches[0][0]
	if open.Bid != 99.5 || open.Ask != 100.5 {
		t.Errorf("open = %v/%v, want 99.5/100.5", open.Bid, open.Ask)
	}
	// the probe pair is left untouched
	probe := sink.batches[1][0]
	if probe.Bid != 108 || probe.Ask != 98 {
		t.Errorf("probe = %v/%v, want unslipped 108/98", probe.Bid, probe.Ask)
	}
}

func TestReplaySkipsMissingBars(t *testing.T) {
	t.Parallel()
	f := series.New([]time.Time{day(1)})
	f.SetColumn(series.Key{Asset: "abc", Column: series.Open}, []float64{100})
	f.SetColumn(series.Key{Asset: "abc", Column: series.High}, []float64{101})
	f.SetColumn(series.Key{Asset: "abc", Column: series.Low}, []float64{99})
	f.SetColumn(series.Key{Asset: "abc", Column: series.Close}, []float64{100.5})
	// xyz has no bar on day 1
	for _, column := range []string{series.Open, series.High, series.Low, series.Close} {
		f.SetColumn(series.Key{Asset: "xyz", Column: column}, []float64{math.NaN()})
	}

	sink := &captureSink{}
	if err := NewReplayTicker(sink, f).Start(1, nil); err != nil {
		t.Fatalf("Start: %v", err)
	}
	for _, batch := range sink.batches {
		if len(batch) != 1 {
			t.Errorf("batch size = %d, want 1", len(batch))
		}
	}
}
