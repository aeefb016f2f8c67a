// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package scheduler

import (
	"math/rand"
	"sync"
	"time"
)

// ContentSource is one weighted input to the Balance strategy.
type ContentSource struct {
	CollectionRef   string
	Weight          float64
	CooldownMinutes int
	MaxConsecutive  int
}

// BalanceState is the persisted picker state the strategy reads and
// mutates; BalancePicker owns a mutable copy, but the struct itself can be
// round-tripped to storage between process restarts.
type BalanceState struct {
	LastPickedAt      map[string]time.Time
	ConsecutiveCount  map[string]int
}

func newBalanceState() BalanceState {
	return BalanceState{
		LastPickedAt:     make(map[string]time.Time),
		ConsecutiveCount: make(map[string]int),
	}
}

// BalancePicker implements Picker per spec §4.6's Balance strategy.
type BalancePicker struct {
	mu      sync.Mutex
	sources []ContentSource
	items   CollectionItems
	state   BalanceState
	rng     *rand.Rand
}

// NewBalancePicker constructs a picker with the given sources and an item
// resolver. If state is nil, fresh state is created.
func NewBalancePicker(sources []ContentSource, items CollectionItems, state *BalanceState, seed int64) *BalancePicker {
	s := newBalanceState()
	if state != nil {
		s = *state
	}
	return &BalancePicker{sources: sources, items: items, state: s, rng: rand.New(rand.NewSource(seed))}
}

// State returns a copy of the current picker state, for persistence.
func (p *BalancePicker) State() BalanceState {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

// PickNext implements Picker: filter by cooldown, then by max-consecutive;
// if the filtered set is empty, relax max-consecutive first, then cooldown;
// weighted-random pick among survivors; update cooldown/consecutive state.
func (p *BalancePicker) PickNext(contextTime time.Time) (MediaRef, WarnSlotOverflow, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if len(p.sources) == 0 {
		return MediaRef{}, WarnSlotOverflow{}, false
	}

	candidates := p.filterByCooldown(contextTime)
	candidates = p.filterByMaxConsecutive(candidates)
	if len(candidates) == 0 {
		candidates = p.filterByCooldown(contextTime) // relax max-consecutive first
	}
	if len(candidates) == 0 {
		candidates = p.sources // relax cooldown too
	}
	if len(candidates) == 0 {
		return MediaRef{}, WarnSlotOverflow{}, false
	}

	chosen := p.weightedPick(candidates)

	items := p.items(chosen.CollectionRef)
	id, ok := pickByOrder(items, OrderShuffle, p.rng.Int63())
	if !ok {
		return MediaRef{}, WarnSlotOverflow{}, false
	}

	p.state.LastPickedAt[chosen.CollectionRef] = contextTime
	p.state.ConsecutiveCount[chosen.CollectionRef]++
	for _, s := range p.sources {
		if s.CollectionRef != chosen.CollectionRef {
			p.state.ConsecutiveCount[s.CollectionRef] = 0
		}
	}

	return MediaRef{CollectionRef: chosen.CollectionRef, ItemID: id}, WarnSlotOverflow{}, true
}

func (p *BalancePicker) filterByCooldown(contextTime time.Time) []ContentSource {
	var out []ContentSource
	for _, s := range p.sources {
		last, ok := p.state.LastPickedAt[s.CollectionRef]
		if !ok || contextTime.Sub(last) >= time.Duration(s.CooldownMinutes)*time.Minute {
			out = append(out, s)
		}
	}
	return out
}

func (p *BalancePicker) filterByMaxConsecutive(in []ContentSource) []ContentSource {
	var out []ContentSource
	for _, s := range in {
		if s.MaxConsecutive <= 0 || p.state.ConsecutiveCount[s.CollectionRef] < s.MaxConsecutive {
			out = append(out, s)
		}
	}
	return out
}

func (p *BalancePicker) weightedPick(candidates []ContentSource) ContentSource {
	var total float64
	for _, c := range candidates {
		if c.Weight <= 0 {
			continue
		}
		total += c.Weight
	}
	if total <= 0 {
		return candidates[0]
	}
	r := p.rng.Float64() * total
	var acc float64
	for _, c := range candidates {
		acc += c.Weight
		if r <= acc {
			return c
		}
	}
	return candidates[len(candidates)-1]
}
