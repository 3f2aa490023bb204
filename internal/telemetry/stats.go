// Package telemetry computes population statistics and writes them as CSV.
package telemetry

import (
	"gonum.org/v1/gonum/stat"

	"github.com/talgya/creatures/internal/engine"
)

// TickRecord is one row of ticks.csv.
type TickRecord struct {
	RunID        string  `csv:"run_id"`
	Tick         uint64  `csv:"tick"`
	Alive        int     `csv:"alive"`
	Visited      int     `csv:"visited"`
	Deaths       int     `csv:"deaths"`
	Replications int     `csv:"replications"`
	Mutations    int     `csv:"mutations"`
	Births       int     `csv:"births"`
	Unresolved   int     `csv:"unresolved"`
	LiveTypes    int     `csv:"live_types"`
	Diversity    float64 `csv:"diversity"`
	MeanCount    float64 `csv:"mean_count"`
	StdDevCount  float64 `csv:"stddev_count"`
}

// TypeRecord is one row of types.csv.
type TypeRecord struct {
	RunID  string  `csv:"run_id"`
	Tick   uint64  `csv:"tick"`
	TypeID int     `csv:"type_id"`
	Count  int     `csv:"count"`
	Share  float64 `csv:"share"`
}

// Diversity returns the Shannon entropy (nats) of the type distribution.
// Zero for an empty or single-type population.
func Diversity(counts []int) float64 {
	total := 0
	for _, c := range counts {
		total += c
	}
	if total == 0 {
		return 0
	}
	p := make([]float64, len(counts))
	for i, c := range counts {
		p[i] = float64(c) / float64(total)
	}
	return stat.Entropy(p)
}

// CountSpread returns the mean and sample standard deviation of per-type
// counts.
func CountSpread(counts []int) (mean, stddev float64) {
	if len(counts) == 0 {
		return 0, 0
	}
	x := make([]float64, len(counts))
	for i, c := range counts {
		x[i] = float64(c)
	}
	if len(x) < 2 {
		return x[0], 0
	}
	return stat.MeanStdDev(x, nil)
}

// NewTickRecord builds a ticks.csv row from a simulation snapshot.
func NewTickRecord(runID string, snap engine.Snapshot) TickRecord {
	counts := make([]int, len(snap.Counts))
	live := 0
	for i, tc := range snap.Counts {
		counts[i] = tc.Count
		if tc.Count > 0 {
			live++
		}
	}
	mean, sd := CountSpread(counts)

	return TickRecord{
		RunID:        runID,
		Tick:         snap.Tick,
		Alive:        snap.Alive,
		Visited:      snap.Last.Visited,
		Deaths:       snap.Last.Deaths,
		Replications: snap.Last.Replications,
		Mutations:    snap.Last.Mutations,
		Births:       snap.Last.Births,
		Unresolved:   snap.Last.Unresolved,
		LiveTypes:    live,
		Diversity:    Diversity(counts),
		MeanCount:    mean,
		StdDevCount:  sd,
	}
}

// NewTypeRecords builds types.csv rows, one per tracked type.
func NewTypeRecords(runID string, snap engine.Snapshot) []TypeRecord {
	records := make([]TypeRecord, 0, len(snap.Counts))
	for _, tc := range snap.Counts {
		share := 0.0
		if snap.Alive > 0 {
			share = float64(tc.Count) / float64(snap.Alive)
		}
		records = append(records, TypeRecord{
			RunID:  runID,
			Tick:   snap.Tick,
			TypeID: int(tc.TypeID),
			Count:  tc.Count,
			Share:  share,
		})
	}
	return records
}
