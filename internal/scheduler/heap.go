package scheduler

import (
	"container/heap"
	"time"
)

// triggers is a min-heap of pending fires ordered by TriggerAt. Each entry
// carries the generation of the registration that armed it. An entry whose
// generation no longer matches its job's registration is stale and is
// discarded when it reaches the head.
type triggers []ScheduleEvent

func (h triggers) Len() int           { return len(h) }
func (h triggers) Less(i, j int) bool { return h[i].TriggerAt.Before(h[j].TriggerAt) }
func (h triggers) Swap(i, j int)      { h[i], h[j] = h[j], h[i] }

func (h *triggers) Push(x any) { *h = append(*h, x.(ScheduleEvent)) }

func (h *triggers) Pop() any {
	old := *h
	x := old[len(old)-1]
	*h = old[:len(old)-1]
	return x
}

// liveFunc reports whether gen is still the current registration of a job.
type liveFunc func(jobID string, gen uint64) bool

// arm queues a fire of jobID at at on behalf of registration gen.
func (h *triggers) arm(jobID string, at time.Time, gen uint64) {
	heap.Push(h, ScheduleEvent{JobID: jobID, TriggerAt: at, gen: gen})
}

// next returns the trigger time of the earliest live entry, discarding
// stale entries it finds at the head.
func (h *triggers) next(live liveFunc) (time.Time, bool) {
	for h.Len() > 0 {
		head := (*h)[0]
		if live(head.JobID, head.gen) {
			return head.TriggerAt, true
		}
		heap.Pop(h)
	}
	return time.Time{}, false
}

// due pops every entry with TriggerAt at or before now and returns the live
// ones, earliest first.
func (h *triggers) due(now time.Time, live liveFunc) []ScheduleEvent {
	var out []ScheduleEvent
	for h.Len() > 0 && !(*h)[0].TriggerAt.After(now) {
		ev := heap.Pop(h).(ScheduleEvent)
		if live(ev.JobID, ev.gen) {
			out = append(out, ev)
		}
	}
	return out
}

// disarm drops every entry of jobID, stale or not, and returns how many
// were removed.
func (h *triggers) disarm(jobID string) int {
	kept := (*h)[:0]
	for _, e := range *h {
		if e.JobID != jobID {
			kept = append(kept, e)
		}
	}
	n := len(*h) - len(kept)
	*h = kept
	if n > 0 {
		heap.Init(h)
	}
	return n
}

// pending returns when registration gen of jobID fires next.
func (h triggers) pending(jobID string, gen uint64) (time.Time, bool) {
	for _, e := range h {
		if e.JobID == jobID && e.gen == gen {
			return e.TriggerAt, true
		}
	}
	return time.Time{}, false
}
