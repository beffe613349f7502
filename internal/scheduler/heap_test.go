package scheduler

import (
	"testing"
	"time"
)

var heapBase = time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)

func allLive(string, uint64) bool { return true }

func TestTriggers_DueInTriggerOrder(t *testing.T) {
	h := &triggers{}
	h.arm("late", heapBase.Add(3*time.Hour), 1)
	h.arm("early", heapBase.Add(time.Hour), 1)
	h.arm("middle", heapBase.Add(2*time.Hour), 1)

	got := h.due(heapBase.Add(2*time.Hour), allLive)
	if len(got) != 2 || got[0].JobID != "early" || got[1].JobID != "middle" {
		t.Fatalf("due: got %+v", got)
	}
	if at, ok := h.next(allLive); !ok || !at.Equal(heapBase.Add(3*time.Hour)) {
		t.Fatalf("next: got %v %v", at, ok)
	}
}

func TestTriggers_StaleEntriesSkipped(t *testing.T) {
	h := &triggers{}
	h.arm("a", heapBase.Add(time.Minute), 1)
	h.arm("a", heapBase.Add(2*time.Minute), 2)
	h.arm("b", heapBase.Add(3*time.Minute), 3)
	current := map[string]uint64{"a": 2, "b": 3}
	live := func(id string, gen uint64) bool { return current[id] == gen }

	if at, ok := h.next(live); !ok || !at.Equal(heapBase.Add(2*time.Minute)) {
		t.Fatalf("next: got %v %v", at, ok)
	}
	if h.Len() != 2 {
		t.Fatalf("stale head not discarded, len=%d", h.Len())
	}

	got := h.due(heapBase.Add(time.Hour), live)
	if len(got) != 2 || got[0].gen != 2 || got[1].JobID != "b" {
		t.Fatalf("due: got %+v", got)
	}
}

func TestTriggers_Disarm(t *testing.T) {
	tests := []struct {
		name    string
		remove  string
		removed int
		remains []string
	}{
		{"middle", "b", 2, []string{"a", "c"}},
		{"head", "a", 1, []string{"b", "c"}},
		{"missing", "zzz", 0, []string{"a", "b", "b", "c"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := &triggers{}
			for i, id := range []string{"a", "b", "c", "b"} {
				at := heapBase.Add(time.Duration(i) * time.Minute)
				if i == 3 {
					at = heapBase.Add(90 * time.Second)
				}
				h.arm(id, at, uint64(i))
			}
			if got := h.disarm(tt.remove); got != tt.removed {
				t.Fatalf("removed = %d, want %d", got, tt.removed)
			}
			got := h.due(heapBase.Add(time.Hour), allLive)
			if len(got) != len(tt.remains) {
				t.Fatalf("remaining: got %+v", got)
			}
			for i, want := range tt.remains {
				if got[i].JobID != want {
					t.Fatalf("position %d: got %s, want %s", i, got[i].JobID, want)
				}
			}
		})
	}
}

func TestTriggers_Pending(t *testing.T) {
	h := triggers{}
	h.arm("a", heapBase.Add(time.Minute), 1)
	h.arm("a", heapBase.Add(time.Hour), 2)
	if at, ok := h.pending("a", 2); !ok || !at.Equal(heapBase.Add(time.Hour)) {
		t.Fatalf("pending: got %v %v", at, ok)
	}
	if _, ok := h.pending("b", 1); ok {
		t.Fatal("unknown job reported pending")
	}
}
