package podmonitor

import (
	"fmt"

	corev1 "k8s.io/api/core/v1"
)

// emitIfNew prints the event unless its UID has been seen already, so a
// re-list or watch replay never emits the same event twice.
func (m *Monitor) emitIfNew(kev *corev1.Event, seen *uidSet) {
	if !seen.seenBefore(string(kev.UID)) {
		fmt.Fprintf(m.Out, "[EVENT] %s %s: %s\n", kev.Type, kev.Reason, kev.Message)
	}
}

// uidSet is a bounded, insertion-ordered set used to drop duplicate events
// replayed across watch reconnects, capped so a long-lived pod cannot grow
// the dedup window without bound.
type uidSet struct {
	capacity int
	order    []string
	members  map[string]struct{}
}

func newUIDSet(capacity int) *uidSet {
	return &uidSet{
		capacity: capacity,
		members:  make(map[string]struct{}, capacity),
	}
}

// seenBefore reports whether uid was already recorded, and records it
// (evicting the oldest entry if at capacity) when it was not.
func (s *uidSet) seenBefore(uid string) bool {
	if uid == "" {
		return false
	}
	if _, ok := s.members[uid]; ok {
		return true
	}
	if len(s.order) >= s.capacity {
		oldest := s.order[0]
		s.order = s.order[1:]
		delete(s.members, oldest)
	}
	s.order = append(s.order, uid)
	s.members[uid] = struct{}{}
	return false
}
