package species

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/talgya/creatures/internal/creature"
	"github.com/talgya/creatures/internal/engine"
	"github.com/talgya/creatures/internal/entropy"
)

const yamlDefs = `
species:
  - id: 1
    name: grazer
    death_chance: 0.1
    replication_chance: 0.2
    initial: 3
    mutations:
      3: 0.05
      2: 0.01
  - id: 2
    death_chance: 0.8
    replication_chance: 0.6
    birth_chance: 0.02
  - id: 3
    death_chance: 0.2
    replication_chance: 0.2
    initial: 1
    mutations:
      - target: 1
        chance: 0.1
`

const jsonDefs = `{
  "species": [
    {"id": 7, "death_chance": 0.5, "replication_chance": 0.0, "initial": 2,
     "mutations": {"9": 0.3, "8": 0.2}},
    {"id": 8, "death_chance": 0.1, "replication_chance": 0.1}
  ]
}`

func TestParseYAML(t *testing.T) {
	defs, err := Parse([]byte(yamlDefs))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if len(defs) != 3 {
		t.Fatalf("len = %d, want 3", len(defs))
	}
	if defs[0].Name != "grazer" || defs[0].Initial != 3 {
		t.Errorf("defs[0] = %+v", defs[0])
	}

	muts := defs[0].Mutations
	if len(muts) != 2 || muts[0].Target != 3 || muts[1].Target != 2 {
		t.Errorf("mapping order not preserved: %+v", muts)
	}
	if len(defs[2].Mutations) != 1 || defs[2].Mutations[0].Chance != 0.1 {
		t.Errorf("list mutations = %+v", defs[2].Mutations)
	}
}

func TestParseJSON(t *testing.T) {
	defs, err := Parse([]byte(jsonDefs))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if len(defs) != 2 || defs[0].ID != 7 {
		t.Fatalf("defs = %+v", defs)
	}
	muts := defs[0].Mutations
	if len(muts) != 2 || muts[0].Target != 9 || muts[1].Target != 8 {
		t.Errorf("mutations = %+v", muts)
	}
}

func TestParseBadMutations(t *testing.T) {
	tests := []string{
		"species:\n  - id: 1\n    mutations:\n      abc: 0.1\n",
		"species:\n  - id: 1\n    mutations: 3\n",
	}
	for _, in := range tests {
		if _, err := Parse([]byte(in)); err == nil {
			t.Errorf("Parse(%q) should fail", in)
		}
	}
}

func TestBuildNormalizes(t *testing.T) {
	defs, _ := Parse([]byte(yamlDefs))
	c, err := defs[1].Build()
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if sum := c.DeathChance + c.ReplicationChance; sum < 0.999999 || sum > 1.000001 {
		t.Errorf("normalized sum = %v", sum)
	}
	if c.StandbyChance > 1e-9 {
		t.Errorf("StandbyChance = %v, want 0", c.StandbyChance)
	}
}

func TestBuildRejectsZeroID(t *testing.T) {
	if _, err := (Definition{ID: 0}).Build(); err == nil {
		t.Error("type 0 should be rejected")
	}
}

func TestValidate(t *testing.T) {
	defs := []Definition{
		{ID: 1, ReplicationChance: 0.5, Mutations: MutationList{{Target: 2, Chance: 0.1}, {Target: 99, Chance: 0.1}}},
		{ID: 2, Mutations: MutationList{{Target: 1, Chance: 0.1}}},
	}
	warnings := Validate(defs)
	if len(warnings) != 2 {
		t.Fatalf("warnings = %v", warnings)
	}
	if !strings.Contains(warnings[0], "99") {
		t.Errorf("warnings[0] = %q", warnings[0])
	}
	if !strings.Contains(warnings[1], "never replicates") {
		t.Errorf("warnings[1] = %q", warnings[1])
	}
}

func TestSeed(t *testing.T) {
	defs, err := Parse([]byte(yamlDefs))
	if err != nil {
		t.Fatal(err)
	}
	pop := engine.NewPopulation(entropy.Fixed(0.5))
	if err := Seed(pop, defs); err != nil {
		t.Fatalf("Seed: %v", err)
	}

	ids := pop.TrackedTypes()
	want := []creature.TypeID{1, 2, 3}
	if len(ids) != len(want) {
		t.Fatalf("TrackedTypes() = %v", ids)
	}
	for i := range want {
		if ids[i] != want[i] {
			t.Errorf("TrackedTypes()[%d] = %d, want %d", i, ids[i], want[i])
		}
	}
	if pop.CountOf(1) != 3 || pop.CountOf(2) != 0 || pop.CountOf(3) != 1 {
		t.Errorf("counts = %v", pop.Counts())
	}

	tmpl, _ := pop.Template(1)
	if tmpl.Mutations.Len() != 2 {
		t.Errorf("template mutations = %d, want 2", tmpl.Mutations.Len())
	}
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "species.json")
	if err := os.WriteFile(path, []byte(jsonDefs), 0644); err != nil {
		t.Fatal(err)
	}
	defs, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(defs) != 2 {
		t.Errorf("len = %d, want 2", len(defs))
	}

	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("Load of a missing file should fail")
	}
}
