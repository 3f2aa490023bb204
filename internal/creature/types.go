// Package creature provides the creature type model and per-tick outcome
// resolution: each call rolls die, replicate (possibly mutating into another
// type) or idle.
package creature

import (
	"errors"
	"fmt"
)

// TypeID identifies a creature type. Zero is reserved and never valid.
type TypeID int

var (
	// ErrReservedTypeID is returned when a creature is built with type 0.
	ErrReservedTypeID = errors.New("creature: type id 0 is reserved")
	// ErrNegativeChance is returned for a negative probability.
	ErrNegativeChance = errors.New("creature: chance must not be negative")
)

// OutcomeKind is the tag of an Outcome.
type OutcomeKind uint8

const (
	Idle       OutcomeKind = iota // Nothing happened
	Died                          // Creature died this tick
	Replicated                    // Produced a faithful copy of itself
	Mutated                       // Produced an offspring of another type
)

func (k OutcomeKind) String() string {
	switch k {
	case Idle:
		return "idle"
	case Died:
		return "died"
	case Replicated:
		return "replicated"
	case Mutated:
		return "mutated"
	}
	return fmt.Sprintf("outcome(%d)", uint8(k))
}

// Outcome is the result of one resolution. Target is only meaningful when
// Kind is Mutated.
type Outcome struct {
	Kind   OutcomeKind `json:"kind"`
	Target TypeID      `json:"target,omitempty"`
}

// MutatedTo builds a Mutated outcome for the given target type.
func MutatedTo(target TypeID) Outcome {
	return Outcome{Kind: Mutated, Target: target}
}

func (o Outcome) String() string {
	if o.Kind == Mutated {
		return fmt.Sprintf("mutated->%d", o.Target)
	}
	return o.Kind.String()
}

// Mutation is one entry of a MutationTable.
type Mutation struct {
	Target TypeID  `json:"target" yaml:"target"`
	Chance float64 `json:"chance" yaml:"chance"`
}

// MutationTable maps target types to their chance in case of replication.
// Iteration order is insertion order; re-setting a target keeps its slot.
type MutationTable struct {
	entries []Mutation
	index   map[TypeID]int
}

// NewMutationTable creates an empty table.
func NewMutationTable() *MutationTable {
	return &MutationTable{index: make(map[TypeID]int)}
}

// Set inserts or overwrites the chance for target.
func (t *MutationTable) Set(target TypeID, chance float64) {
	if i, ok := t.index[target]; ok {
		t.entries[i].Chance = chance
		return
	}
	if t.index == nil {
		t.index = make(map[TypeID]int)
	}
	t.index[target] = len(t.entries)
	t.entries = append(t.entries, Mutation{Target: target, Chance: chance})
}

// Get returns the chance registered for target.
func (t *MutationTable) Get(target TypeID) (float64, bool) {
	if t == nil {
		return 0, false
	}
	i, ok := t.index[target]
	if !ok {
		return 0, false
	}
	return t.entries[i].Chance, true
}

// Len returns the number of targets.
func (t *MutationTable) Len() int {
	if t == nil {
		return 0
	}
	return len(t.entries)
}

// Total returns the sum of all mutation chances.
func (t *MutationTable) Total() float64 {
	if t == nil {
		return 0
	}
	sum := 0.0
	for _, e := range t.entries {
		sum += e.Chance
	}
	return sum
}

// Entries returns a copy of the entries in insertion order.
func (t *MutationTable) Entries() []Mutation {
	if t == nil {
		return nil
	}
	out := make([]Mutation, len(t.entries))
	copy(out, t.entries)
	return out
}

// Clone returns an independent copy.
func (t *MutationTable) Clone() *MutationTable {
	if t == nil {
		return NewMutationTable()
	}
	c := &MutationTable{
		entries: make([]Mutation, len(t.entries)),
		index:   make(map[TypeID]int, len(t.index)),
	}
	copy(c.entries, t.entries)
	for k, v := range t.index {
		c.index[k] = v
	}
	return c
}
