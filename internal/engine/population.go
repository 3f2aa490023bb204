// Population dynamics: outcome resolution, offspring, spontaneous births.
package engine

import (
	"log/slog"

	"github.com/talgya/creatures/internal/creature"
	"github.com/talgya/creatures/internal/entropy"
)

// BirthMode selects how spontaneous births are rolled.
type BirthMode uint8

const (
	// BirthScaled draws one roll scaled to the sum of all positive birth
	// chances, so exactly one birth-capable type spawns every tick.
	BirthScaled BirthMode = iota
	// BirthAbsolute treats birth chances as per-tick probabilities against a
	// single roll in [0,1). At most one type spawns; a tick may have none.
	// Chances summing above 1 are not renormalised.
	BirthAbsolute
	// BirthOff disables spontaneous births.
	BirthOff
)

// ParseBirthMode maps a config string to a BirthMode.
func ParseBirthMode(s string) (BirthMode, bool) {
	switch s {
	case "", "scaled":
		return BirthScaled, true
	case "absolute":
		return BirthAbsolute, true
	case "off":
		return BirthOff, true
	}
	return BirthScaled, false
}

func (m BirthMode) String() string {
	switch m {
	case BirthScaled:
		return "scaled"
	case BirthAbsolute:
		return "absolute"
	case BirthOff:
		return "off"
	}
	return "unknown"
}

// TickReport summarises one population tick.
type TickReport struct {
	Visited      int               `json:"visited"`
	Deaths       int               `json:"deaths"`
	Replications int               `json:"replications"`
	Mutations    int               `json:"mutations"`
	Births       int               `json:"births"`
	Unresolved   int               `json:"unresolved"` // mutation targets with no template
	BornType     creature.TypeID   `json:"born_type,omitempty"`
	Dangling     []creature.TypeID `json:"dangling,omitempty"`
}

// Population owns the live creatures and the registered type templates.
// It is not safe for concurrent use.
type Population struct {
	rng       entropy.Source
	birthMode BirthMode

	live      []*creature.Creature
	templates map[creature.TypeID]*creature.Creature
	order     []creature.TypeID // registration order

	// OnOutcome, if set, observes every resolved outcome during Tick.
	OnOutcome func(c *creature.Creature, o creature.Outcome)
}

// PopulationOption configures a Population.
type PopulationOption func(*Population)

// WithBirthMode selects the spontaneous birth algorithm.
func WithBirthMode(m BirthMode) PopulationOption {
	return func(p *Population) {
		p.birthMode = m
	}
}

// NewPopulation creates an empty population drawing all randomness from rng.
func NewPopulation(rng entropy.Source, opts ...PopulationOption) *Population {
	p := &Population{
		rng:       rng,
		templates: make(map[creature.TypeID]*creature.Creature),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// BirthMode returns the configured spontaneous birth algorithm.
func (p *Population) BirthMode() BirthMode {
	return p.birthMode
}

// RegisterTemplate tracks c's type. The first registration wins; later calls
// for the same type are no-ops and return false. The template is a clone, so
// mutations registered on c afterwards do not reach it: register mutations
// before handing c over.
func (p *Population) RegisterTemplate(c *creature.Creature) bool {
	if c == nil {
		return false
	}
	if _, ok := p.templates[c.TypeID]; ok {
		return false
	}
	p.templates[c.TypeID] = c.Clone()
	p.order = append(p.order, c.TypeID)
	return true
}

// Add registers c's type if needed and appends c to the live set. When c
// registers the type, its mutation table is copied at this point; later
// RegisterMutation calls on c change only that live instance.
func (p *Population) Add(c *creature.Creature) {
	if c == nil {
		return
	}
	p.RegisterTemplate(c)
	p.live = append(p.live, c)
}

// Spawn returns a fresh instance of the given type, or false when the type
// has no registered template.
func (p *Population) Spawn(id creature.TypeID) (*creature.Creature, bool) {
	tmpl, ok := p.templates[id]
	if !ok {
		return nil, false
	}
	return tmpl.Clone(), true
}

// Template returns the registered template for id.
func (p *Population) Template(id creature.TypeID) (*creature.Creature, bool) {
	tmpl, ok := p.templates[id]
	return tmpl, ok
}

// TotalAlive counts living creatures.
func (p *Population) TotalAlive() int {
	n := 0
	for _, c := range p.live {
		if c.Alive {
			n++
		}
	}
	return n
}

// CountOf counts living creatures of the given type.
func (p *Population) CountOf(id creature.TypeID) int {
	n := 0
	for _, c := range p.live {
		if c.Alive && c.TypeID == id {
			n++
		}
	}
	return n
}

// Counts returns living creatures per type in one pass.
func (p *Population) Counts() map[creature.TypeID]int {
	counts := make(map[creature.TypeID]int, len(p.order))
	for _, c := range p.live {
		if c.Alive {
			counts[c.TypeID]++
		}
	}
	return counts
}

// TrackedTypes returns all registered type ids in registration order.
func (p *Population) TrackedTypes() []creature.TypeID {
	out := make([]creature.TypeID, len(p.order))
	copy(out, p.order)
	return out
}

// Live returns a copy of the live set.
func (p *Population) Live() []*creature.Creature {
	out := make([]*creature.Creature, len(p.live))
	copy(out, p.live)
	return out
}

// Tick advances the population by one step. Only creatures live at the
// start of the tick are resolved; everything born during the tick is
// committed at the end and first resolved on the next tick.
func (p *Population) Tick() TickReport {
	var report TickReport

	births := p.spontaneousBirths(&report)

	snapshot := p.live
	var (
		removed   map[*creature.Creature]struct{}
		offspring []*creature.Creature
		stale     bool
	)

	for _, c := range snapshot {
		if !c.Alive {
			// Added already dead; reaped at commit without resolving.
			stale = true
			continue
		}
		report.Visited++

		outcome := c.Resolve(p.rng)
		if p.OnOutcome != nil {
			p.OnOutcome(c, outcome)
		}

		switch outcome.Kind {
		case creature.Died:
			if removed == nil {
				removed = make(map[*creature.Creature]struct{})
			}
			removed[c] = struct{}{}
			report.Deaths++
		case creature.Replicated:
			offspring = append(offspring, c.Clone())
			report.Replications++
		case creature.Mutated:
			child, ok := p.Spawn(outcome.Target)
			if !ok {
				report.Unresolved++
				report.Dangling = append(report.Dangling, outcome.Target)
				slog.Debug("mutation target not registered",
					"parent", c.TypeID,
					"target", outcome.Target,
				)
				continue
			}
			offspring = append(offspring, child)
			report.Mutations++
		}
	}

	p.commit(removed, stale, births, offspring)
	return report
}

// commit applies a tick's queued changes: removals by identity first, then
// spontaneous births, then offspring.
func (p *Population) commit(removed map[*creature.Creature]struct{}, stale bool, births, offspring []*creature.Creature) {
	if len(removed) > 0 || stale {
		kept := make([]*creature.Creature, 0, len(p.live)+len(births)+len(offspring))
		for _, c := range p.live {
			if _, dead := removed[c]; dead || !c.Alive {
				continue
			}
			kept = append(kept, c)
		}
		p.live = kept
	}
	p.live = append(p.live, births...)
	p.live = append(p.live, offspring...)
}

// spontaneousBirths picks at most one birth-capable template from the
// pre-tick registry and returns the new instance to be committed.
func (p *Population) spontaneousBirths(report *TickReport) []*creature.Creature {
	if p.birthMode == BirthOff {
		return nil
	}

	total := 0.0
	for _, id := range p.order {
		if b := p.templates[id].BirthChance; b > 0 {
			total += b
		}
	}
	if total <= 0 {
		return nil
	}

	roll := p.rng.Float()
	if p.birthMode == BirthScaled {
		roll *= total
	}

	for _, id := range p.order {
		b := p.templates[id].BirthChance
		if b <= 0 {
			continue
		}
		if b > roll {
			child, _ := p.Spawn(id)
			report.Births++
			report.BornType = id
			return []*creature.Creature{child}
		}
		roll -= b
	}
	return nil
}
