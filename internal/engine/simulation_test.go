package engine

import (
	"testing"

	"github.com/talgya/creatures/internal/creature"
	"github.com/talgya/creatures/internal/entropy"
)

func TestSimulationStepStats(t *testing.T) {
	p := NewPopulation(entropy.Fixed(0.0))
	p.Add(newType(t, 1, 0, 1, 0))
	sim := NewSimulation(p)

	for tick := uint64(1); tick <= 3; tick++ {
		if !sim.Step(tick) {
			t.Fatalf("Step(%d) returned false", tick)
		}
	}

	snap := sim.Snapshot()
	if snap.Tick != 3 {
		t.Errorf("Tick = %d, want 3", snap.Tick)
	}
	if snap.Alive != 8 {
		t.Errorf("Alive = %d, want 8", snap.Alive)
	}
	if snap.Stats.Replications != 7 {
		t.Errorf("Replications = %d, want 7", snap.Stats.Replications)
	}
	if snap.Stats.Peak != 8 {
		t.Errorf("Peak = %d, want 8", snap.Stats.Peak)
	}
	if len(snap.Counts) != 1 || snap.Counts[0].TypeID != 1 || snap.Counts[0].Count != 8 {
		t.Errorf("Counts = %+v", snap.Counts)
	}
	if snap.Last.Visited != 4 {
		t.Errorf("Last.Visited = %d, want 4", snap.Last.Visited)
	}
}

func TestSimulationExtinction(t *testing.T) {
	p := NewPopulation(entropy.Fixed(0.1))
	p.Add(newType(t, 1, 0.5, 0, 0))
	sim := NewSimulation(p)
	sim.StopOnExtinction = true

	if sim.Step(1) {
		t.Error("Step should report false once the population is extinct")
	}

	cats := map[string]int{}
	for _, e := range sim.Events(0) {
		cats[e.Category]++
	}
	if cats["extinction"] != 1 || cats["collapse"] != 1 {
		t.Errorf("events = %v, want one extinction and one collapse", cats)
	}
	if sim.Snapshot().Stats.Deaths != 1 {
		t.Errorf("Deaths = %d, want 1", sim.Snapshot().Stats.Deaths)
	}
}

func TestSimulationContinuesWithoutStopFlag(t *testing.T) {
	p := NewPopulation(entropy.Fixed(0.1))
	p.Add(newType(t, 1, 0.5, 0, 0))
	sim := NewSimulation(p)

	if !sim.Step(1) {
		t.Error("Step should keep going when StopOnExtinction is off")
	}
}

func TestSimulationEmergenceAndDangling(t *testing.T) {
	p := NewPopulation(entropy.Fixed(0.0))
	p.RegisterTemplate(newType(t, 2, 0, 0, 0))
	parent := newType(t, 1, 0, 1, 0)
	parent.RegisterMutation(2, 0.2)
	parent.RegisterMutation(77, 0.2)
	p.Add(parent)
	sim := NewSimulation(p)

	sim.Step(1)

	events := sim.Events(10)
	if len(events) != 1 || events[0].Category != "emergence" {
		t.Fatalf("events = %+v, want one emergence", events)
	}

	// Second tick: both type 1 and type 2 resolve with roll 0, so type 1
	// mutates into 2 again and type 2 idles.
	sim.Step(2)
	if got := sim.Snapshot().Counts[0].Count; got != 2 { // type 2 was registered first
		t.Errorf("type 2 count = %d, want 2", got)
	}

	cp := sim.Checkpoint()
	if len(cp.Events) != 1 {
		t.Errorf("checkpoint drained %d events, want 1", len(cp.Events))
	}
	if len(sim.Events(0)) != 0 {
		t.Error("events not cleared by Checkpoint")
	}
}

func TestSimulationDanglingEvent(t *testing.T) {
	p := NewPopulation(entropy.Fixed(0.0))
	parent := newType(t, 1, 0, 1, 0)
	parent.RegisterMutation(77, 1)
	p.Add(parent)
	sim := NewSimulation(p)

	sim.Step(1)
	events := sim.Events(0)
	if len(events) != 1 || events[0].Category != "dangling" {
		t.Fatalf("events = %+v, want one dangling", events)
	}
	if sim.Snapshot().Stats.Unresolved != 1 {
		t.Errorf("Unresolved = %d, want 1", sim.Snapshot().Stats.Unresolved)
	}
}

func TestSimulationTemplatesAndLiveTypes(t *testing.T) {
	p := NewPopulation(entropy.Fixed(0.9))
	p.Add(newType(t, 5, 0, 0, 0))
	p.Add(newType(t, 6, 0, 0, 0))
	p.Add(newType(t, 5, 0, 0, 0))
	sim := NewSimulation(p)

	tmpls := sim.Templates()
	if len(tmpls) != 2 || tmpls[0].TypeID != 5 || tmpls[1].TypeID != 6 {
		t.Errorf("Templates() = %v", tmpls)
	}
	types := sim.LiveTypes()
	if len(types) != 3 || types[2] != 5 {
		t.Errorf("LiveTypes() = %v", types)
	}
	if _, ok := sim.Template(9); ok {
		t.Error("Template(9) should miss")
	}
}

func TestSimulationCheckpointIsConsistent(t *testing.T) {
	p := NewPopulation(entropy.Fixed(0.0))
	p.RegisterTemplate(newType(t, 2, 0, 0, 0))
	parent := newType(t, 1, 0, 1, 0)
	parent.RegisterMutation(2, 0.5)
	p.Add(parent)
	sim := NewSimulation(p)
	sim.Step(1)
	sim.Step(2)

	cp := sim.Checkpoint()
	if cp.Snapshot.Tick != 2 {
		t.Errorf("Tick = %d, want 2", cp.Snapshot.Tick)
	}
	if len(cp.LiveTypes) != cp.Snapshot.Alive {
		t.Errorf("LiveTypes = %d, Alive = %d", len(cp.LiveTypes), cp.Snapshot.Alive)
	}
	perType := make(map[creature.TypeID]int)
	for _, id := range cp.LiveTypes {
		perType[id]++
	}
	for _, tc := range cp.Snapshot.Counts {
		if perType[tc.TypeID] != tc.Count {
			t.Errorf("type %d: live %d, snapshot %d", tc.TypeID, perType[tc.TypeID], tc.Count)
		}
	}
	if len(cp.Templates) != 2 || cp.Templates[0].TypeID != 2 {
		t.Errorf("Templates = %v", cp.Templates)
	}
	if len(cp.Events) == 0 {
		t.Error("expected the emergence event in the checkpoint")
	}
	if again := sim.Checkpoint(); len(again.Events) != 0 {
		t.Errorf("second checkpoint events = %+v", again.Events)
	}
}

func TestSimulationRestoreStats(t *testing.T) {
	p := NewPopulation(entropy.Fixed(0.0))
	for i := 0; i < 3; i++ {
		p.Add(newType(t, 1, 0, 1, 0))
	}
	sim := NewSimulation(p)

	sim.RestoreStats(SimStats{Alive: 99, Peak: 2, Deaths: 5, Births: 4, Replications: 10, Mutations: 1})
	snap := sim.Snapshot()
	if snap.Alive != 3 {
		t.Errorf("Alive = %d, want current population 3", snap.Alive)
	}
	if snap.Stats.Peak != 3 {
		t.Errorf("Peak = %d, want 3", snap.Stats.Peak)
	}

	sim.Step(1)
	snap = sim.Snapshot()
	if snap.Stats.Replications != 13 || snap.Stats.Deaths != 5 || snap.Stats.Births != 4 {
		t.Errorf("Stats = %+v, want counters carried over", snap.Stats)
	}
	if snap.Stats.Peak != 6 {
		t.Errorf("Peak = %d, want 6", snap.Stats.Peak)
	}
}
