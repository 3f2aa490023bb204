// Package species loads creature type definitions and seeds a population
// from them. Definition files are YAML; JSON files parse the same way.
package species

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"

	"gopkg.in/yaml.v3"

	"github.com/talgya/creatures/internal/creature"
	"github.com/talgya/creatures/internal/engine"
)

// ErrUnknownSpecies is returned when seeding references an unregistered type.
var ErrUnknownSpecies = errors.New("species: unknown type")

// File is the top-level layout of a definitions file.
type File struct {
	Species []Definition `yaml:"species" json:"species"`
}

// Definition describes one creature type and how many start alive.
type Definition struct {
	ID                creature.TypeID `yaml:"id" json:"id"`
	Name              string          `yaml:"name,omitempty" json:"name,omitempty"`
	DeathChance       float64         `yaml:"death_chance" json:"death_chance"`
	ReplicationChance float64         `yaml:"replication_chance" json:"replication_chance"`
	BirthChance       float64         `yaml:"birth_chance,omitempty" json:"birth_chance,omitempty"`
	Initial           int             `yaml:"initial,omitempty" json:"initial,omitempty"`
	Mutations         MutationList    `yaml:"mutations,omitempty" json:"mutations,omitempty"`
}

// MutationList keeps mutation targets in file order. It decodes from either
// a mapping (target: chance) or a list of {target, chance}.
type MutationList []creature.Mutation

// UnmarshalYAML implements yaml.Unmarshaler.
func (m *MutationList) UnmarshalYAML(node *yaml.Node) error {
	switch node.Kind {
	case yaml.MappingNode:
		out := make(MutationList, 0, len(node.Content)/2)
		for i := 0; i+1 < len(node.Content); i += 2 {
			key, val := node.Content[i], node.Content[i+1]
			id, err := strconv.Atoi(key.Value)
			if err != nil {
				return fmt.Errorf("line %d: mutation target %q is not an integer", key.Line, key.Value)
			}
			var chance float64
			if err := val.Decode(&chance); err != nil {
				return fmt.Errorf("line %d: mutation chance: %w", val.Line, err)
			}
			out = append(out, creature.Mutation{Target: creature.TypeID(id), Chance: chance})
		}
		*m = out
		return nil
	case yaml.SequenceNode:
		var list []creature.Mutation
		if err := node.Decode(&list); err != nil {
			return err
		}
		*m = list
		return nil
	}
	return fmt.Errorf("line %d: mutations must be a mapping or a list", node.Line)
}

// Load reads and parses a definitions file.
func Load(path string) ([]Definition, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading species file: %w", err)
	}
	defs, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return defs, nil
}

// Parse decodes definitions from YAML or JSON bytes.
func Parse(data []byte) ([]Definition, error) {
	var f File
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parsing species: %w", err)
	}
	return f.Species, nil
}

// Build turns a definition into a template creature.
func (d Definition) Build() (*creature.Creature, error) {
	c, err := creature.New(creature.Params{
		TypeID:            d.ID,
		DeathChance:       d.DeathChance,
		ReplicationChance: d.ReplicationChance,
		BirthChance:       d.BirthChance,
	})
	if err != nil {
		return nil, err
	}
	if d.DeathChance+d.ReplicationChance > 1 {
		slog.Debug("species chances normalized",
			"type", d.ID,
			"death", c.DeathChance,
			"replication", c.ReplicationChance,
		)
	}
	for _, m := range d.Mutations {
		c.RegisterMutation(m.Target, m.Chance)
	}
	return c, nil
}

// Validate returns a warning for every mutation target that no definition
// provides. Dangling targets are legal; they only produce nothing when rolled.
func Validate(defs []Definition) []string {
	known := make(map[creature.TypeID]bool, len(defs))
	for _, d := range defs {
		known[d.ID] = true
	}

	var warnings []string
	for _, d := range defs {
		for _, m := range d.Mutations {
			if !known[m.Target] {
				warnings = append(warnings, fmt.Sprintf("type %d mutates into unregistered type %d", d.ID, m.Target))
			}
		}
		if d.ReplicationChance == 0 && len(d.Mutations) > 0 {
			warnings = append(warnings, fmt.Sprintf("type %d has mutations but never replicates", d.ID))
		}
	}
	return warnings
}

// Register registers every definition as a template, in file order.
func Register(pop *engine.Population, defs []Definition) error {
	for _, d := range defs {
		c, err := d.Build()
		if err != nil {
			return fmt.Errorf("species %d: %w", d.ID, err)
		}
		pop.RegisterTemplate(c)
	}
	return nil
}

// Seed registers all definitions and adds each type's initial instances.
func Seed(pop *engine.Population, defs []Definition) error {
	for _, w := range Validate(defs) {
		slog.Warn("species definition", "warning", w)
	}
	if err := Register(pop, defs); err != nil {
		return err
	}
	for _, d := range defs {
		for i := 0; i < d.Initial; i++ {
			c, ok := pop.Spawn(d.ID)
			if !ok {
				return fmt.Errorf("seeding %d: %w", d.ID, ErrUnknownSpecies)
			}
			pop.Add(c)
		}
	}
	slog.Info("population seeded",
		"types", len(pop.TrackedTypes()),
		"alive", pop.TotalAlive(),
	)
	return nil
}
