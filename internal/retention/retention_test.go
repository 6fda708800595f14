package retention

import (
	"fmt"
	"math/rand"
	"testing"
	"time"

	"github.com/frederikb96/kube-borg-backup/internal/config"
)

func keys(items []Item) map[string]bool {
	m := make(map[string]bool, len(items))
	for _, it := range items {
		m[it.Key] = true
	}
	return m
}

func TestSelectAllZeroKeepsNothing(t *testing.T) {
	items := []Item{{Key: "a", Timestamp: time.Now()}}
	if got := Select(items, config.Retention{}); got != nil {
		t.Errorf("expected nil, got %v", got)
	}
}

// 15-minute cadence over 48h with hourly=6/daily=2: the kept set is the
// union of the newest item of the newest 6 hour buckets and of the newest
// 2 day buckets.
func TestSelectScenarioFive(t *testing.T) {
	base := time.Date(2026, 8, 3, 0, 0, 0, 0, time.UTC)
	var items []Item
	for i := 0; i < 48*4; i++ {
		ts := base.Add(-time.Duration(i) * 15 * time.Minute)
		items = append(items, Item{Key: fmt.Sprintf("item-%d", i), Timestamp: ts})
	}

	kept := Select(items, config.Retention{Hourly: 6, Daily: 2})

	hourBuckets := make(map[string]bool)
	dayBuckets := make(map[string]bool)
	for _, it := range items {
		hourBuckets[it.Timestamp.UTC().Format("2006-01-02T15")] = true
		dayBuckets[it.Timestamp.UTC().Format("2006-01-02")] = true
	}

	// newest 6 hour buckets and newest 2 day buckets, deduplicated by union.
	wantHours := 6
	if len(hourBuckets) < wantHours {
		wantHours = len(hourBuckets)
	}
	wantDays := 2
	if len(dayBuckets) < wantDays {
		wantDays = len(dayBuckets)
	}

	keptKeys := keys(kept)
	keptHours := make(map[string]bool)
	keptDays := make(map[string]bool)
	for _, it := range kept {
		keptHours[it.Timestamp.UTC().Format("2006-01-02T15")] = true
		keptDays[it.Timestamp.UTC().Format("2006-01-02")] = true
	}
	if len(keptHours) != wantHours {
		t.Errorf("hourly buckets represented = %d, want %d", len(keptHours), wantHours)
	}
	if len(keptDays) != wantDays {
		t.Errorf("daily buckets represented = %d, want %d", len(keptDays), wantDays)
	}
	if len(keptKeys) == 0 {
		t.Fatal("expected a non-empty kept set")
	}
}

func TestSelectIdempotent(t *testing.T) {
	base := time.Date(2026, 8, 3, 12, 0, 0, 0, time.UTC)
	var items []Item
	for i := 0; i < 50; i++ {
		items = append(items, Item{Key: fmt.Sprintf("item-%d", i), Timestamp: base.Add(-time.Duration(i) * time.Hour)})
	}
	policy := config.Retention{Hourly: 5, Daily: 3}

	first := Select(items, policy)
	second := Select(first, policy)

	if !sameKeySet(first, second) {
		t.Errorf("retention not idempotent: first=%v second=%v", keys(first), keys(second))
	}
}

func TestSelectDeterministicUnderPermutation(t *testing.T) {
	base := time.Date(2026, 8, 3, 0, 0, 0, 0, time.UTC)
	var items []Item
	for i := 0; i < 30; i++ {
		items = append(items, Item{Key: fmt.Sprintf("item-%d", i), Timestamp: base.Add(-time.Duration(i) * time.Hour)})
	}
	policy := config.Retention{Hourly: 8, Daily: 2}

	want := keys(Select(items, policy))

	shuffled := make([]Item, len(items))
	copy(shuffled, items)
	rand.New(rand.NewSource(1)).Shuffle(len(shuffled), func(i, j int) {
		shuffled[i], shuffled[j] = shuffled[j], shuffled[i]
	})
	got := keys(Select(shuffled, policy))

	if len(want) != len(got) {
		t.Fatalf("kept set size differs: want %d got %d", len(want), len(got))
	}
	for k := range want {
		if !got[k] {
			t.Errorf("kept set differs under permutation: missing %q", k)
		}
	}
}

func sameKeySet(a, b []Item) bool {
	ka, kb := keys(a), keys(b)
	if len(ka) != len(kb) {
		return false
	}
	for k := range ka {
		if !kb[k] {
			return false
		}
	}
	return true
}
