package observability

import (
	"sync"
	"testing"
	"time"
)

// TestRecordColumnConcurrent tests concurrent RecordColumn calls for race conditions.
func TestRecordColumnConcurrent(t *testing.T) {
	qs := NewQueryStats(1 * time.Hour)
	var wg sync.WaitGroup
	numGoroutines := 10
	recordsPerGoroutine := 100

	for i := 0; i < numGoroutines; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < recordsPerGoroutine; j++ {
				qs.RecordColumn("/points:example.MyPoint", "component")
				qs.RecordColumn("frame_nr", "time")
				qs.RecordIndex("frame_nr")
			}
		}()
	}

	wg.Wait()

	top := qs.GetTopColumns(10)
	if len(top) != 2 {
		t.Fatalf("expected 2 columns, got %d", len(top))
	}

	expectedFreq := int64(numGoroutines * recordsPerGoroutine)
	for _, stat := range top {
		if stat.Frequency != expectedFreq {
			t.Errorf("expected frequency %d for %s, got %d", expectedFreq, stat.Column, stat.Frequency)
		}
	}

	indexes := qs.GetTopIndexes(10)
	if len(indexes) != 1 || indexes[0].Frequency != expectedFreq {
		t.Errorf("expected frame_nr recorded %d times, got %+v", expectedFreq, indexes)
	}
}

// TestGetTopColumnsOrdering tests that GetTopColumns returns results sorted by frequency.
func TestGetTopColumnsOrdering(t *testing.T) {
	qs := NewQueryStats(1 * time.Hour)

	for i := 0; i < 10; i++ {
		qs.RecordColumn("/points:example.MyPoint", "component")
	}
	for i := 0; i < 5; i++ {
		qs.RecordColumn("/points:example.MyColor", "component")
	}
	for i := 0; i < 20; i++ {
		qs.RecordColumn("frame_nr", "time")
	}

	top := qs.GetTopColumns(3)
	if len(top) != 3 {
		t.Fatalf("expected 3 columns, got %d", len(top))
	}

	if top[0].Column != "frame_nr" || top[0].Frequency != 20 {
		t.Errorf("expected frame_nr with frequency 20, got %s with %d", top[0].Column, top[0].Frequency)
	}
	if top[1].Column != "/points:example.MyPoint" || top[1].Frequency != 10 {
		t.Errorf("expected MyPoint with frequency 10, got %s with %d", top[1].Column, top[1].Frequency)
	}
	if top[2].Column != "/points:example.MyColor" || top[2].Frequency != 5 {
		t.Errorf("expected MyColor with frequency 5, got %s with %d", top[2].Column, top[2].Frequency)
	}
}

// TestGetTopColumnsTieBreak tests that equal frequencies are ordered by name.
func TestGetTopColumnsTieBreak(t *testing.T) {
	qs := NewQueryStats(1 * time.Hour)
	qs.RecordColumn("b", "time")
	qs.RecordColumn("a", "time")

	top := qs.GetTopColumns(2)
	if top[0].Column != "a" || top[1].Column != "b" {
		t.Errorf("expected [a b], got [%s %s]", top[0].Column, top[1].Column)
	}
}

// TestPruneRemovesOldEntries tests that Prune removes entries older than the window.
func TestPruneRemovesOldEntries(t *testing.T) {
	window := 100 * time.Millisecond
	qs := NewQueryStats(window)

	qs.RecordColumn("frame_nr", "time")
	qs.RecordIndex("frame_nr")

	if top := qs.GetTopColumns(10); len(top) != 1 {
		t.Errorf("expected 1 column before prune, got %d", len(top))
	}

	time.Sleep(window + 50*time.Millisecond)
	qs.Prune()

	if top := qs.GetTopColumns(10); len(top) != 0 {
		t.Errorf("expected 0 columns after prune, got %d", len(top))
	}
	if top := qs.GetTopIndexes(10); len(top) != 0 {
		t.Errorf("expected 0 indexes after prune, got %d", len(top))
	}
}

// TestRecordColumnTracksKinds tests that RecordColumn tracks how selections resolved.
func TestRecordColumnTracksKinds(t *testing.T) {
	qs := NewQueryStats(1 * time.Hour)

	for i := 0; i < 5; i++ {
		qs.RecordColumn("/points:example.MyPoint", "component")
	}
	for i := 0; i < 2; i++ {
		qs.RecordColumn("/points:example.MyPoint", "missing")
	}

	top := qs.GetTopColumns(1)
	if len(top) != 1 {
		t.Fatalf("expected 1 column, got %d", len(top))
	}

	stat := top[0]
	if stat.Frequency != 7 {
		t.Errorf("expected frequency 7, got %d", stat.Frequency)
	}
	if stat.Kinds["component"] != 5 {
		t.Errorf("expected 5 component resolutions, got %d", stat.Kinds["component"])
	}
	if stat.Kinds["missing"] != 2 {
		t.Errorf("expected 2 missing resolutions, got %d", stat.Kinds["missing"])
	}

	// Returned stats are copies.
	stat.Kinds["component"] = 100
	if again := qs.GetTopColumns(1); again[0].Kinds["component"] != 5 {
		t.Errorf("expected tracked state to be unaffected, got %d", again[0].Kinds["component"])
	}
}

// TestGetTopEmpty tests the accessors with no data.
func TestGetTopEmpty(t *testing.T) {
	qs := NewQueryStats(1 * time.Hour)
	if top := qs.GetTopColumns(10); len(top) != 0 {
		t.Errorf("expected 0 columns, got %d", len(top))
	}
	if top := qs.GetTopIndexes(10); len(top) != 0 {
		t.Errorf("expected 0 indexes, got %d", len(top))
	}
	qs.RecordColumn("frame_nr", "time")
	if top := qs.GetTopColumns(0); len(top) != 0 {
		t.Errorf("expected 0 columns for n=0, got %d", len(top))
	}
}

// TestGetTopColumnsLimitExceedsData tests GetTopColumns when n exceeds available data.
func TestGetTopColumnsLimitExceedsData(t *testing.T) {
	qs := NewQueryStats(1 * time.Hour)
	qs.RecordColumn("frame_nr", "time")
	qs.RecordColumn("log_time", "time")

	if top := qs.GetTopColumns(100); len(top) != 2 {
		t.Errorf("expected 2 columns, got %d", len(top))
	}
}
