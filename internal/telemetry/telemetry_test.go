package telemetry

import (
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/talgya/creatures/internal/config"
	"github.com/talgya/creatures/internal/engine"
)

func TestDiversity(t *testing.T) {
	tests := []struct {
		name   string
		counts []int
		want   float64
	}{
		{"empty", nil, 0},
		{"all zero", []int{0, 0}, 0},
		{"single type", []int{10}, 0},
		{"single live type", []int{10, 0}, 0},
		{"even pair", []int{5, 5}, math.Ln2},
		{"even four", []int{1, 1, 1, 1}, math.Log(4)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Diversity(tt.counts)
			if math.Abs(got-tt.want) > 1e-9 {
				t.Errorf("Diversity(%v) = %v, want %v", tt.counts, got, tt.want)
			}
		})
	}
}

func TestCountSpread(t *testing.T) {
	if m, s := CountSpread(nil); m != 0 || s != 0 {
		t.Errorf("empty = %v, %v", m, s)
	}
	if m, s := CountSpread([]int{4}); m != 4 || s != 0 {
		t.Errorf("single = %v, %v", m, s)
	}
	m, s := CountSpread([]int{2, 4, 4, 4, 5, 5, 7, 9})
	if math.Abs(m-5) > 1e-9 {
		t.Errorf("mean = %v, want 5", m)
	}
	// Sample standard deviation.
	if math.Abs(s-2.138089935) > 1e-6 {
		t.Errorf("stddev = %v, want ~2.138", s)
	}
}

func testSnapshot() engine.Snapshot {
	return engine.Snapshot{
		Tick:  12,
		Alive: 4,
		Last:  engine.TickReport{Visited: 5, Deaths: 2, Replications: 1},
		Counts: []engine.TypeCount{
			{TypeID: 1, Count: 3},
			{TypeID: 2, Count: 1},
			{TypeID: 3, Count: 0},
		},
	}
}

func TestNewRecords(t *testing.T) {
	snap := testSnapshot()

	rec := NewTickRecord("run", snap)
	if rec.Tick != 12 || rec.Alive != 4 || rec.Deaths != 2 || rec.Visited != 5 {
		t.Errorf("tick record = %+v", rec)
	}
	if rec.LiveTypes != 2 {
		t.Errorf("LiveTypes = %d, want 2", rec.LiveTypes)
	}
	if rec.Diversity <= 0 {
		t.Errorf("Diversity = %v, want > 0", rec.Diversity)
	}

	types := NewTypeRecords("run", snap)
	if len(types) != 3 {
		t.Fatalf("len = %d, want 3", len(types))
	}
	if types[0].Share != 0.75 || types[2].Share != 0 {
		t.Errorf("shares = %v, %v", types[0].Share, types[2].Share)
	}
}

func TestOutputManagerDisabled(t *testing.T) {
	om, err := NewOutputManager("")
	if err != nil || om != nil {
		t.Fatalf("NewOutputManager(\"\") = %v, %v", om, err)
	}
	if err := om.WriteTick(TickRecord{}); err != nil {
		t.Errorf("nil WriteTick: %v", err)
	}
	if err := om.Close(); err != nil {
		t.Errorf("nil Close: %v", err)
	}
}

func TestOutputManagerWrites(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "out")
	om, err := NewOutputManager(dir)
	if err != nil {
		t.Fatalf("NewOutputManager: %v", err)
	}

	snap := testSnapshot()
	for i := 0; i < 3; i++ {
		snap.Tick = uint64(i + 1)
		if err := om.WriteTick(NewTickRecord("run", snap)); err != nil {
			t.Fatalf("WriteTick: %v", err)
		}
		if err := om.WriteTypes(NewTypeRecords("run", snap)); err != nil {
			t.Fatalf("WriteTypes: %v", err)
		}
	}
	if err := om.WriteConfig(config.Default()); err != nil {
		t.Fatalf("WriteConfig: %v", err)
	}
	if err := om.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	data, err := os.ReadFile(filepath.Join(dir, "ticks.csv"))
	if err != nil {
		t.Fatal(err)
	}
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	if len(lines) != 4 {
		t.Errorf("ticks.csv has %d lines, want 4", len(lines))
	}
	if !strings.HasPrefix(lines[0], "run_id,tick,alive") {
		t.Errorf("header = %q", lines[0])
	}

	data, err = os.ReadFile(filepath.Join(dir, "types.csv"))
	if err != nil {
		t.Fatal(err)
	}
	lines = strings.Split(strings.TrimSpace(string(data)), "\n")
	if len(lines) != 10 {
		t.Errorf("types.csv has %d lines, want 10", len(lines))
	}

	if _, err := os.Stat(filepath.Join(dir, "config.yaml")); err != nil {
		t.Errorf("config.yaml missing: %v", err)
	}
}
