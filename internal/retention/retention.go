// Package retention implements the tiered time-bucket selection algorithm
// shared by the snapshot controller and the backup runner's prune step.
package retention

import (
	"fmt"
	"sort"
	"time"

	"github.com/frederikb96/kube-borg-backup/internal/config"
)

// Item is anything the retention engine can decide to keep, identified by a
// UTC timestamp. Key is an opaque caller identifier (e.g. a snapshot name)
// used only to report which items were selected.
type Item struct {
	Key       string
	Timestamp time.Time
}

// Select returns the subset of items to keep under the given policy.
// Items must carry UTC timestamps; the result preserves no particular order.
// An item kept by any non-zero tier is kept overall. All-zero policy keeps
// nothing. The function is pure and performs no I/O.
func Select(items []Item, policy config.Retention) []Item {
	if policy.Hourly == 0 && policy.Daily == 0 && policy.Weekly == 0 && policy.Monthly == 0 {
		return nil
	}

	sorted := make([]Item, len(items))
	copy(sorted, items)
	sort.SliceStable(sorted, func(i, j int) bool {
		if !sorted[i].Timestamp.Equal(sorted[j].Timestamp) {
			return sorted[i].Timestamp.After(sorted[j].Timestamp)
		}
		// Equal timestamps are ordered by Key so the kept set does not
		// depend on input order.
		return sorted[i].Key < sorted[j].Key
	})

	keep := make(map[string]bool, len(sorted))

	if policy.Hourly > 0 {
		bucketKeep(sorted, policy.Hourly, keep, func(t time.Time) string {
			return t.UTC().Format("2006-01-02T15")
		})
	}
	if policy.Daily > 0 {
		bucketKeep(sorted, policy.Daily, keep, func(t time.Time) string {
			return t.UTC().Format("2006-01-02")
		})
	}
	if policy.Weekly > 0 {
		bucketKeep(sorted, policy.Weekly, keep, func(t time.Time) string {
			y, w := t.UTC().ISOWeek()
			return fmt.Sprintf("%d-W%02d", y, w)
		})
	}
	if policy.Monthly > 0 {
		bucketKeep(sorted, policy.Monthly, keep, func(t time.Time) string {
			return t.UTC().Format("2006-01")
		})
	}

	var result []Item
	for _, it := range sorted {
		if keep[it.Key] {
			result = append(result, it)
		}
	}
	return result
}

// bucketKeep walks items newest-first, keeping the first (newest) item seen
// in each distinct bucket until count buckets have been filled.
func bucketKeep(sorted []Item, count int, keep map[string]bool, bucketKey func(time.Time) string) {
	seen := 0
	lastBucket := ""
	first := true
	for _, it := range sorted {
		b := bucketKey(it.Timestamp)
		if first || b != lastBucket {
			first = false
			lastBucket = b
			seen++
			if seen > count {
				break
			}
			keep[it.Key] = true
		}
	}
}
