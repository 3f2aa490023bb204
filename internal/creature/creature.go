package creature

import (
	"fmt"

	"github.com/talgya/creatures/internal/entropy"
)

// Params are the construction parameters of a creature type.
type Params struct {
	TypeID            TypeID
	DeathChance       float64
	ReplicationChance float64
	BirthChance       float64
}

// Creature is both a registered type template and a live instance.
type Creature struct {
	TypeID            TypeID  `json:"type_id"`
	DeathChance       float64 `json:"death_chance"`
	ReplicationChance float64 `json:"replication_chance"`
	StandbyChance     float64 `json:"standby_chance"`
	BirthChance       float64 `json:"birth_chance"`
	Alive             bool    `json:"alive"`

	Mutations *MutationTable `json:"-"`
}

// New builds a creature from p. Death and replication chances summing above
// 1 are scaled back onto the simplex, leaving standby at 0.
func New(p Params) (*Creature, error) {
	if p.TypeID == 0 {
		return nil, ErrReservedTypeID
	}
	if p.DeathChance < 0 || p.ReplicationChance < 0 || p.BirthChance < 0 {
		return nil, fmt.Errorf("type %d: %w", p.TypeID, ErrNegativeChance)
	}

	death, repl := p.DeathChance, p.ReplicationChance
	if sum := death + repl; sum > 1 {
		death /= sum
		repl /= sum
	}

	return &Creature{
		TypeID:            p.TypeID,
		DeathChance:       death,
		ReplicationChance: repl,
		StandbyChance:     standby(death, repl),
		BirthChance:       p.BirthChance,
		Alive:             true,
		Mutations:         NewMutationTable(),
	}, nil
}

// MustNew is like New but panics on error. Intended for tests and literals.
func MustNew(p Params) *Creature {
	c, err := New(p)
	if err != nil {
		panic(err)
	}
	return c
}

func standby(death, repl float64) float64 {
	s := 1 - death - repl
	if s < 0 {
		// Rounding after normalisation.
		return 0
	}
	return s
}

// RegisterMutation sets the chance that replication yields target instead
// of a faithful copy. No renormalisation is done.
func (c *Creature) RegisterMutation(target TypeID, chance float64) {
	if c.Mutations == nil {
		c.Mutations = NewMutationTable()
	}
	c.Mutations.Set(target, chance)
}

// Resolve rolls this tick's outcome using rng. A Died outcome marks the
// creature dead; resolving a dead creature draws nothing and returns Died.
func (c *Creature) Resolve(rng entropy.Source) Outcome {
	if !c.Alive {
		return Outcome{Kind: Died}
	}

	roll := rng.Float()
	if roll < c.DeathChance {
		c.Alive = false
		return Outcome{Kind: Died}
	}

	roll -= c.DeathChance
	if roll >= c.ReplicationChance {
		return Outcome{Kind: Idle}
	}

	// Second, nested roll: mutation targets compete with faithful copying.
	mutationRoll := rng.Float() * (c.Mutations.Total() + c.ReplicationChance)
	var entries []Mutation
	if c.Mutations != nil {
		entries = c.Mutations.entries
	}
	for _, m := range entries {
		if m.Chance > mutationRoll {
			return MutatedTo(m.Target)
		}
		mutationRoll -= m.Chance
	}
	return Outcome{Kind: Replicated}
}

// Clone returns a fresh, living instance of the same type with its own
// mutation table.
func (c *Creature) Clone() *Creature {
	return &Creature{
		TypeID:            c.TypeID,
		DeathChance:       c.DeathChance,
		ReplicationChance: c.ReplicationChance,
		StandbyChance:     standby(c.DeathChance, c.ReplicationChance),
		BirthChance:       c.BirthChance,
		Alive:             true,
		Mutations:         c.Mutations.Clone(),
	}
}

func (c *Creature) String() string {
	return fmt.Sprintf("creature{type=%d death=%.3f repl=%.3f standby=%.3f birth=%.3f mutations=%d alive=%t}",
		c.TypeID, c.DeathChance, c.ReplicationChance, c.StandbyChance, c.BirthChance, c.Mutations.Len(), c.Alive)
}
