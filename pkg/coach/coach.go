package coach

import (
	"fmt"

	"apexcoach/pkg/model"
	"apexcoach/pkg/stats"
)

// Cooldown distances per category, in meters of cumulative travel.
// Travel keeps ticking across the start line, so a cue fired late in
// one lap still suppresses its category early in the next.
var defaultCooldowns = map[model.CueCategory]float64{
	model.CueBraking:  120,
	model.CueGear:     80,
	model.CueThrottle: 150,
	model.CueSpeed:    200,
	model.CueCorner:   200,
}

// Seconds lost in a corner before the generic fallback cue fires.
const minCornerLoss = 0.15

// Coach turns corner measurements into a handful of cues per lap.
// All gating is distance-based, so a paused sim burns no cooldowns.
type Coach struct {
	th    stats.Thresholds
	queue *CueQueue

	cooldowns map[model.CueCategory]float64
	lastAt    map[model.CueCategory]float64
	budget    int
	used      int
	called    map[int]bool
}

func New(budget int, th stats.Thresholds) *Coach {
	if budget <= 0 {
		budget = 4
	}
	return &Coach{
		th:        th,
		queue:     NewCueQueue(defaultCapacity),
		cooldowns: defaultCooldowns,
		lastAt:    make(map[model.CueCategory]float64),
		budget:    budget,
		called:    make(map[int]bool),
	}
}

func (c *Coach) Queue() *CueQueue { return c.queue }

// LapReset clears the per-lap callout budget. Cooldowns carry across
// the line; they are measured in travel, not laps.
func (c *Coach) LapReset() {
	c.used = 0
	c.called = make(map[int]bool)
}

func (c *Coach) Reset() {
	c.LapReset()
	c.lastAt = make(map[model.CueCategory]float64)
	c.queue = NewCueQueue(defaultCapacity)
}

// CornerCue evaluates one completed corner against the reference and
// emits at most one cue. A corner is spoken about once per lap, the
// lap carries a hard budget, and each category has its own cooldown.
// A category on cooldown falls through to the next observation.
func (c *Coach) CornerCue(travel, now float64, m, ref model.CornerMetric) *model.Cue {
	if c.used >= c.budget || c.called[m.TurnNumber] {
		return nil
	}
	for _, adv := range c.advise(m, ref) {
		if !c.ready(adv.cat, travel) {
			continue
		}
		cue := model.Cue{
			Category:  adv.cat,
			Text:      adv.text,
			Priority:  adv.priority,
			Distance:  travel,
			Timestamp: now,
		}
		if !c.queue.Offer(cue) {
			return nil
		}
		c.lastAt[adv.cat] = travel
		c.used++
		c.called[m.TurnNumber] = true
		return &cue
	}
	return nil
}

// Status enqueues a session event cue. Events bypass the budget and
// the cooldowns but still go through queue admission.
func (c *Coach) Status(travel, now float64, cat model.CueCategory, p model.CuePriority, text string) *model.Cue {
	cue := model.Cue{Category: cat, Text: text, Priority: p, Distance: travel, Timestamp: now}
	if !c.queue.Offer(cue) {
		return nil
	}
	return &cue
}

// Next hands out the next deliverable cue, if any.
func (c *Coach) Next(travel, now float64) (model.Cue, bool) {
	return c.queue.Next(travel, now)
}

func (c *Coach) ready(cat model.CueCategory, travel float64) bool {
	last, ok := c.lastAt[cat]
	if !ok {
		return true
	}
	return travel-last >= c.cooldowns[cat]
}

type advice struct {
	cat      model.CueCategory
	priority model.CuePriority
	text     string
}

// advise lists the observations that clear their thresholds, most
// urgent first. A data point missing on either side never produces
// advice.
func (c *Coach) advise(m, ref model.CornerMetric) []advice {
	var out []advice
	n := m.TurnNumber

	if m.BrakePoint != nil && ref.BrakePoint != nil {
		diff := *m.BrakePoint - *ref.BrakePoint
		if diff > c.th.BrakeDiff {
			out = append(out, advice{model.CueBraking, model.PriorityHigh,
				fmt.Sprintf("Brake earlier into turn %d", n)})
		} else if diff < -c.th.BrakeDiff {
			out = append(out, advice{model.CueBraking, model.PriorityMedium,
				fmt.Sprintf("You can brake later into turn %d", n)})
		}
	}
	if m.ApexGear > 0 && ref.ApexGear > 0 && m.ApexGear != ref.ApexGear {
		if m.ApexGear < ref.ApexGear {
			out = append(out, advice{model.CueGear, model.PriorityHigh,
				fmt.Sprintf("Try turn %d a gear higher", n)})
		} else {
			out = append(out, advice{model.CueGear, model.PriorityHigh,
				fmt.Sprintf("Try turn %d a gear lower", n)})
		}
	}
	if m.EntrySpeed-ref.EntrySpeed > c.th.SpeedDiff {
		out = append(out, advice{model.CueSpeed, model.PriorityHigh,
			fmt.Sprintf("Too hot into turn %d, slow the entry", n)})
	} else if ref.ApexSpeed-m.ApexSpeed > c.th.SpeedDiff {
		out = append(out, advice{model.CueSpeed, model.PriorityMedium,
			fmt.Sprintf("Carry more speed through turn %d", n)})
	}
	if m.ThrottlePoint != nil && ref.ThrottlePoint != nil &&
		*m.ThrottlePoint-*ref.ThrottlePoint > c.th.ThrottleDiff {
		out = append(out, advice{model.CueThrottle, model.PriorityMedium,
			fmt.Sprintf("Open the throttle sooner out of turn %d", n)})
	} else if ref.ExitSpeed-m.ExitSpeed > c.th.SpeedDiff {
		out = append(out, advice{model.CueThrottle, model.PriorityMedium,
			fmt.Sprintf("Get on the power earlier out of turn %d", n)})
	}
	if m.Delta != nil && *m.Delta > minCornerLoss {
		out = append(out, advice{model.CueCorner, model.PriorityLow,
			fmt.Sprintf("Losing %.1fs in turn %d", *m.Delta, n)})
	}
	return out
}
