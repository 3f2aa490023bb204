// Simulation ties a population to the tick loop and keeps running statistics.
package engine

import (
	"fmt"
	"log/slog"
	"sync"

	"github.com/dustin/go-humanize"

	"github.com/talgya/creatures/internal/creature"
)

const maxEvents = 1000

// Simulation holds the population and its history. All access goes through
// its mutex so readers (reporters, the API) never observe a half-applied tick.
type Simulation struct {
	mu sync.RWMutex

	pop      *Population
	lastTick uint64
	events   []Event
	stats    SimStats
	last     TickReport
	seen     map[creature.TypeID]bool // types that have ever had a live instance

	// StopOnExtinction makes Step report false once nothing is alive.
	StopOnExtinction bool
}

// Event is a notable occurrence in the population.
type Event struct {
	Tick        uint64 `json:"tick" db:"tick"`
	Description string `json:"description" db:"description"`
	Category    string `json:"category" db:"category"` // "emergence", "extinction", "dangling", ...
}

// SimStats tracks aggregate statistics since the simulation started.
type SimStats struct {
	Alive        int `json:"alive"`
	Peak         int `json:"peak"`
	Deaths       int `json:"deaths"`
	Births       int `json:"births"`
	Replications int `json:"replications"`
	Mutations    int `json:"mutations"`
	Unresolved   int `json:"unresolved"`
}

// TypeCount is the live count of one tracked type.
type TypeCount struct {
	TypeID creature.TypeID `json:"type_id"`
	Count  int             `json:"count"`
}

// Snapshot is a consistent read-only view for reporters.
type Snapshot struct {
	Tick   uint64      `json:"tick"`
	Alive  int         `json:"alive"`
	Stats  SimStats    `json:"stats"`
	Last   TickReport  `json:"last_tick"`
	Counts []TypeCount `json:"counts"`
}

// NewSimulation wraps an already seeded population.
func NewSimulation(pop *Population) *Simulation {
	s := &Simulation{
		pop:  pop,
		seen: make(map[creature.TypeID]bool),
	}
	for id, n := range pop.Counts() {
		if n > 0 {
			s.seen[id] = true
		}
	}
	s.stats.Alive = pop.TotalAlive()
	s.stats.Peak = s.stats.Alive
	return s
}

// CurrentTick returns the most recently processed tick number.
func (s *Simulation) CurrentTick() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastTick
}

// SetTick sets the tick counter when resuming a saved run.
func (s *Simulation) SetTick(tick uint64) {
	s.mu.Lock()
	s.lastTick = tick
	s.mu.Unlock()
}

// Step runs one population tick. It returns false when the population is
// extinct and StopOnExtinction is set.
func (s *Simulation) Step(tick uint64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	before := s.pop.TotalAlive()
	report := s.pop.Tick()
	s.lastTick = tick
	s.last = report

	s.stats.Deaths += report.Deaths
	s.stats.Births += report.Births
	s.stats.Replications += report.Replications
	s.stats.Mutations += report.Mutations
	s.stats.Unresolved += report.Unresolved

	for _, target := range report.Dangling {
		s.addEvent(tick, "dangling", fmt.Sprintf("mutation into unregistered type %d discarded", target))
	}

	counts := s.pop.Counts()
	for _, id := range s.pop.order {
		n := counts[id]
		switch {
		case n > 0 && !s.seen[id]:
			s.seen[id] = true
			s.addEvent(tick, "emergence", fmt.Sprintf("type %d appears", id))
		case n == 0 && s.seen[id]:
			s.seen[id] = false
			s.addEvent(tick, "extinction", fmt.Sprintf("type %d has died out", id))
		}
	}

	alive := s.pop.TotalAlive()
	s.stats.Alive = alive
	if alive > s.stats.Peak {
		s.stats.Peak = alive
	}

	if alive == 0 && before > 0 {
		s.addEvent(tick, "collapse", "population is extinct")
	}

	return !(s.StopOnExtinction && alive == 0)
}

func (s *Simulation) addEvent(tick uint64, category, desc string) {
	s.events = append(s.events, Event{Tick: tick, Description: desc, Category: category})
	if len(s.events) > maxEvents {
		s.events = s.events[len(s.events)-maxEvents:]
	}
}

// Snapshot returns the current counts and statistics.
func (s *Simulation) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snapshotLocked()
}

func (s *Simulation) snapshotLocked() Snapshot {
	counts := s.pop.Counts()
	tracked := s.pop.TrackedTypes()
	out := Snapshot{
		Tick:   s.lastTick,
		Alive:  s.stats.Alive,
		Stats:  s.stats,
		Last:   s.last,
		Counts: make([]TypeCount, 0, len(tracked)),
	}
	for _, id := range tracked {
		out.Counts = append(out.Counts, TypeCount{TypeID: id, Count: counts[id]})
	}
	return out
}

// RestoreStats carries cumulative counters over from a saved run. Alive
// always reflects the current population; Peak never drops below it.
func (s *Simulation) RestoreStats(saved SimStats) {
	s.mu.Lock()
	defer s.mu.Unlock()
	alive := s.pop.TotalAlive()
	s.stats = saved
	s.stats.Alive = alive
	if s.stats.Peak < alive {
		s.stats.Peak = alive
	}
}

// Checkpoint is everything a full save needs, taken under one lock.
type Checkpoint struct {
	Snapshot  Snapshot
	Templates []*creature.Creature
	LiveTypes []creature.TypeID
	Events    []Event
}

// Checkpoint captures a consistent view of the simulation and drains the
// buffered events.
func (s *Simulation) Checkpoint() Checkpoint {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := Checkpoint{
		Snapshot:  s.snapshotLocked(),
		Templates: s.templatesLocked(),
		LiveTypes: s.liveTypesLocked(),
		Events:    s.events,
	}
	s.events = nil
	return cp
}

// Events returns up to limit most recent events, oldest first.
func (s *Simulation) Events(limit int) []Event {
	s.mu.RLock()
	defer s.mu.RUnlock()

	start := 0
	if limit > 0 && len(s.events) > limit {
		start = len(s.events) - limit
	}
	out := make([]Event, len(s.events)-start)
	copy(out, s.events[start:])
	return out
}

// Template returns a copy of the registered template for id.
func (s *Simulation) Template(id creature.TypeID) (*creature.Creature, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	tmpl, ok := s.pop.Template(id)
	if !ok {
		return nil, false
	}
	c := tmpl.Clone()
	c.Alive = tmpl.Alive
	return c, true
}

// Templates returns copies of all templates in registration order.
func (s *Simulation) Templates() []*creature.Creature {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.templatesLocked()
}

func (s *Simulation) templatesLocked() []*creature.Creature {
	ids := s.pop.TrackedTypes()
	out := make([]*creature.Creature, 0, len(ids))
	for _, id := range ids {
		tmpl, _ := s.pop.Template(id)
		out = append(out, tmpl.Clone())
	}
	return out
}

// LiveTypes returns the type of every live creature, in live-set order.
func (s *Simulation) LiveTypes() []creature.TypeID {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.liveTypesLocked()
}

func (s *Simulation) liveTypesLocked() []creature.TypeID {
	out := make([]creature.TypeID, 0, len(s.pop.live))
	for _, c := range s.pop.live {
		if c.Alive {
			out = append(out, c.TypeID)
		}
	}
	return out
}

// LogReport writes a population report line.
func (s *Simulation) LogReport(tick uint64) {
	snap := s.Snapshot()

	args := []any{
		"tick", tick,
		"alive", humanize.Comma(int64(snap.Alive)),
		"peak", humanize.Comma(int64(snap.Stats.Peak)),
		"deaths", humanize.Comma(int64(snap.Stats.Deaths)),
		"births", humanize.Comma(int64(snap.Stats.Births)),
		"replications", humanize.Comma(int64(snap.Stats.Replications)),
		"mutations", humanize.Comma(int64(snap.Stats.Mutations)),
	}
	if snap.Stats.Unresolved > 0 {
		args = append(args, "unresolved", snap.Stats.Unresolved)
	}
	for _, tc := range snap.Counts {
		args = append(args, fmt.Sprintf("type_%d", tc.TypeID), tc.Count)
	}
	slog.Info("population report", args...)
}
