package podmonitor

import (
	"bytes"
	"strings"
	"testing"

	corev1 "k8s.io/api/core/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
)

func TestUIDSetDropsDuplicates(t *testing.T) {
	s := newUIDSet(3)
	if s.seenBefore("a") {
		t.Fatal("first sighting of a should not be seen before")
	}
	if !s.seenBefore("a") {
		t.Fatal("second sighting of a should be seen before")
	}
}

func TestUIDSetEvictsOldestAtCapacity(t *testing.T) {
	s := newUIDSet(2)
	s.seenBefore("a")
	s.seenBefore("b")
	s.seenBefore("c") // evicts "a"
	if s.seenBefore("a") {
		t.Error("a should have been evicted and reported as new again")
	}
}

func TestEmitIfNewSkipsDuplicate(t *testing.T) {
	var buf bytes.Buffer
	m := &Monitor{Pod: "p", Out: &buf}
	seen := newUIDSet(200)

	kev := &corev1.Event{
		ObjectMeta: metav1.ObjectMeta{UID: "uid-1"},
		Type:       corev1.EventTypeNormal,
		Reason:     "Scheduled",
		Message:    "assigned node",
	}

	m.emitIfNew(kev, seen)
	m.emitIfNew(kev, seen)

	if got := strings.Count(buf.String(), "Scheduled"); got != 1 {
		t.Errorf("expected the duplicate event to print exactly once, printed %d times", got)
	}
	if !strings.Contains(buf.String(), "[EVENT] Normal Scheduled: assigned node") {
		t.Errorf("unexpected event line format: %q", buf.String())
	}
}
