package coach

import (
	"apexcoach/pkg/model"
	"apexcoach/pkg/queues"
)

const (
	defaultCapacity = 8
	congestedDepth  = 3
	staleDistanceM  = 400.0
	staleAgeSec     = 10.0
)

// CueQueue paces cue delivery. Under congestion only urgent cues are
// admitted, and cues the car has long driven past are shed on the way
// out instead of being delivered late.
type CueQueue struct {
	items   *queues.Queue[model.Cue]
	cap     int
	dropped uint64
}

func NewCueQueue(capacity int) *CueQueue {
	if capacity <= 0 {
		capacity = defaultCapacity
	}
	return &CueQueue{items: queues.NewQueue[model.Cue](), cap: capacity}
}

// Offer applies the admission policy: a full queue drops everything,
// and a backlog of congestedDepth or more admits only High and above.
func (q *CueQueue) Offer(c model.Cue) bool {
	if q.items.Len() >= q.cap {
		q.dropped++
		return false
	}
	if q.items.Len() >= congestedDepth && c.Priority > model.PriorityHigh {
		q.dropped++
		return false
	}
	q.items.Push(c)
	return true
}

// Next pops the first cue still worth delivering. travel and now are
// the current cumulative distance and session time.
func (q *CueQueue) Next(travel, now float64) (model.Cue, bool) {
	for !q.items.IsEmpty() {
		c := q.items.Pop()
		if travel-c.Distance > staleDistanceM || now-c.Timestamp > staleAgeSec {
			q.dropped++
			continue
		}
		return c, true
	}
	return model.Cue{}, false
}

func (q *CueQueue) Len() int        { return q.items.Len() }
func (q *CueQueue) Dropped() uint64 { return q.dropped }
