// Package persistence provides SQLite-based storage for species templates,
// the live population, per-tick statistics and run metadata.
package persistence

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"

	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"

	"github.com/talgya/creatures/internal/creature"
	"github.com/talgya/creatures/internal/engine"
)

// DB wraps a SQLite connection for simulation state.
type DB struct {
	conn *sqlx.DB
}

// Open opens or creates a SQLite database at the given path.
func Open(path string) (*DB, error) {
	conn, err := sqlx.Open("sqlite", path+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	conn.SetMaxOpenConns(1)

	db := &DB{conn: conn}
	if err := db.migrate(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	return db, nil
}

// Close closes the database connection.
func (db *DB) Close() error {
	return db.conn.Close()
}

func (db *DB) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS species (
		type_id INTEGER PRIMARY KEY,
		position INTEGER NOT NULL,
		death_chance REAL NOT NULL,
		replication_chance REAL NOT NULL,
		birth_chance REAL NOT NULL,
		mutations_json TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS creatures (
		id INTEGER PRIMARY KEY,
		type_id INTEGER NOT NULL
	);

	CREATE TABLE IF NOT EXISTS stats_history (
		tick INTEGER PRIMARY KEY,
		alive INTEGER NOT NULL,
		deaths INTEGER NOT NULL,
		births INTEGER NOT NULL,
		replications INTEGER NOT NULL,
		mutations INTEGER NOT NULL,
		unresolved INTEGER NOT NULL,
		counts_json TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS events (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		tick INTEGER NOT NULL,
		description TEXT NOT NULL,
		category TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS world_meta (
		key TEXT PRIMARY KEY,
		value TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_events_tick ON events(tick);
	CREATE INDEX IF NOT EXISTS idx_creatures_type ON creatures(type_id);
	`
	_, err := db.conn.Exec(schema)
	return err
}

type speciesRow struct {
	TypeID            int     `db:"type_id"`
	Position          int     `db:"position"`
	DeathChance       float64 `db:"death_chance"`
	ReplicationChance float64 `db:"replication_chance"`
	BirthChance       float64 `db:"birth_chance"`
	MutationsJSON     string  `db:"mutations_json"`
}

// SaveSpecies writes all templates in registration order (full replace).
func (db *DB) SaveSpecies(templates []*creature.Creature) error {
	tx, err := db.conn.Beginx()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.Exec("DELETE FROM species"); err != nil {
		return err
	}

	for i, c := range templates {
		mutsJSON, err := json.Marshal(c.Mutations.Entries())
		if err != nil {
			return fmt.Errorf("marshal mutations %d: %w", c.TypeID, err)
		}
		_, err = tx.NamedExec(`INSERT INTO species
			(type_id, position, death_chance, replication_chance, birth_chance, mutations_json)
			VALUES (:type_id, :position, :death_chance, :replication_chance, :birth_chance, :mutations_json)`,
			speciesRow{
				TypeID:            int(c.TypeID),
				Position:          i,
				DeathChance:       c.DeathChance,
				ReplicationChance: c.ReplicationChance,
				BirthChance:       c.BirthChance,
				MutationsJSON:     string(mutsJSON),
			})
		if err != nil {
			return fmt.Errorf("insert species %d: %w", c.TypeID, err)
		}
	}

	return tx.Commit()
}

// LoadSpecies returns the stored templates in registration order.
func (db *DB) LoadSpecies() ([]*creature.Creature, error) {
	var rows []speciesRow
	if err := db.conn.Select(&rows, "SELECT * FROM species ORDER BY position"); err != nil {
		return nil, err
	}

	out := make([]*creature.Creature, 0, len(rows))
	for _, r := range rows {
		c, err := creature.New(creature.Params{
			TypeID:            creature.TypeID(r.TypeID),
			DeathChance:       r.DeathChance,
			ReplicationChance: r.ReplicationChance,
			BirthChance:       r.BirthChance,
		})
		if err != nil {
			return nil, fmt.Errorf("species %d: %w", r.TypeID, err)
		}
		var muts []creature.Mutation
		if err := json.Unmarshal([]byte(r.MutationsJSON), &muts); err != nil {
			return nil, fmt.Errorf("species %d mutations: %w", r.TypeID, err)
		}
		for _, m := range muts {
			c.RegisterMutation(m.Target, m.Chance)
		}
		out = append(out, c)
	}
	return out, nil
}

// SaveCreatures writes the type of every live creature (full replace).
func (db *DB) SaveCreatures(types []creature.TypeID) error {
	tx, err := db.conn.Beginx()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.Exec("DELETE FROM creatures"); err != nil {
		return err
	}

	stmt, err := tx.Preparex("INSERT INTO creatures (id, type_id) VALUES (?, ?)")
	if err != nil {
		return err
	}
	defer stmt.Close()

	for i, id := range types {
		if _, err := stmt.Exec(i+1, int(id)); err != nil {
			return fmt.Errorf("insert creature %d: %w", i+1, err)
		}
	}

	return tx.Commit()
}

// LoadCreatures returns stored creature types in live-set order.
func (db *DB) LoadCreatures() ([]creature.TypeID, error) {
	var ids []int
	if err := db.conn.Select(&ids, "SELECT type_id FROM creatures ORDER BY id"); err != nil {
		return nil, err
	}
	out := make([]creature.TypeID, len(ids))
	for i, id := range ids {
		out[i] = creature.TypeID(id)
	}
	return out, nil
}

// Restore registers stored templates on pop and rebuilds the live set from
// stored creature types. Returns the number of creatures restored.
func (db *DB) Restore(pop *engine.Population) (int, error) {
	templates, err := db.LoadSpecies()
	if err != nil {
		return 0, fmt.Errorf("load species: %w", err)
	}
	for _, t := range templates {
		pop.RegisterTemplate(t)
	}

	types, err := db.LoadCreatures()
	if err != nil {
		return 0, fmt.Errorf("load creatures: %w", err)
	}
	restored := 0
	for _, id := range types {
		c, ok := pop.Spawn(id)
		if !ok {
			slog.Warn("stored creature has no template", "type", id)
			continue
		}
		pop.Add(c)
		restored++
	}
	return restored, nil
}

// StatsRow is one stored snapshot of population statistics.
type StatsRow struct {
	Tick         uint64             `db:"tick" json:"tick"`
	Alive        int                `db:"alive" json:"alive"`
	Deaths       int                `db:"deaths" json:"deaths"`
	Births       int                `db:"births" json:"births"`
	Replications int                `db:"replications" json:"replications"`
	Mutations    int                `db:"mutations" json:"mutations"`
	Unresolved   int                `db:"unresolved" json:"unresolved"`
	CountsJSON   string             `db:"counts_json" json:"-"`
	Counts       []engine.TypeCount `db:"-" json:"counts"`
}

// SaveStats stores a snapshot's cumulative statistics and per-type counts.
func (db *DB) SaveStats(snap engine.Snapshot) error {
	countsJSON, err := json.Marshal(snap.Counts)
	if err != nil {
		return fmt.Errorf("marshal counts: %w", err)
	}
	_, err = db.conn.Exec(`INSERT OR REPLACE INTO stats_history
		(tick, alive, deaths, births, replications, mutations, unresolved, counts_json)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		int64(snap.Tick), snap.Alive, snap.Stats.Deaths, snap.Stats.Births,
		snap.Stats.Replications, snap.Stats.Mutations, snap.Stats.Unresolved,
		string(countsJSON),
	)
	return err
}

// LoadStatsHistory returns up to limit snapshots with from <= tick <= to,
// oldest first.
func (db *DB) LoadStatsHistory(from, to uint64, limit int) ([]StatsRow, error) {
	var rows []StatsRow
	err := db.conn.Select(&rows, `SELECT * FROM (
			SELECT * FROM stats_history WHERE tick >= ? AND tick <= ? ORDER BY tick DESC LIMIT ?
		) ORDER BY tick ASC`,
		int64(from), int64(to), limit,
	)
	if err != nil {
		return nil, err
	}
	for i := range rows {
		if err := json.Unmarshal([]byte(rows[i].CountsJSON), &rows[i].Counts); err != nil {
			return nil, fmt.Errorf("stats %d counts: %w", rows[i].Tick, err)
		}
	}
	return rows, nil
}

// SaveEvents appends events to the database.
func (db *DB) SaveEvents(events []engine.Event) error {
	if len(events) == 0 {
		return nil
	}

	tx, err := db.conn.Beginx()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	for _, e := range events {
		_, err := tx.Exec(
			"INSERT INTO events (tick, description, category) VALUES (?, ?, ?)",
			int64(e.Tick), e.Description, e.Category,
		)
		if err != nil {
			return err
		}
	}

	return tx.Commit()
}

// RecentEvents returns the most recent N events, newest first.
func (db *DB) RecentEvents(limit int) ([]engine.Event, error) {
	var events []engine.Event
	err := db.conn.Select(&events,
		"SELECT tick, description, category FROM events ORDER BY id DESC LIMIT ?",
		limit,
	)
	return events, err
}

// SaveMeta stores a key-value pair in run metadata.
func (db *DB) SaveMeta(key, value string) error {
	_, err := db.conn.Exec(
		"INSERT OR REPLACE INTO world_meta (key, value) VALUES (?, ?)",
		key, value,
	)
	return err
}

// GetMeta retrieves a metadata value. A missing key returns sql.ErrNoRows.
func (db *DB) GetMeta(key string) (string, error) {
	var value string
	err := db.conn.Get(&value, "SELECT value FROM world_meta WHERE key = ?", key)
	return value, err
}

// HasWorldState reports whether a previous run left species behind.
func (db *DB) HasWorldState() bool {
	var n int
	if err := db.conn.Get(&n, "SELECT COUNT(*) FROM species"); err != nil {
		return false
	}
	return n > 0
}

// LastTick returns the stored tick counter, 0 when none was saved.
func (db *DB) LastTick() (uint64, error) {
	v, err := db.GetMeta("last_tick")
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return strconv.ParseUint(v, 10, 64)
}

// LoadSimStats returns the cumulative counters stored by the last full
// save. ok is false when none were saved.
func (db *DB) LoadSimStats() (stats engine.SimStats, ok bool, err error) {
	v, err := db.GetMeta("sim_stats")
	if errors.Is(err, sql.ErrNoRows) {
		return stats, false, nil
	}
	if err != nil {
		return stats, false, err
	}
	if err := json.Unmarshal([]byte(v), &stats); err != nil {
		return stats, false, fmt.Errorf("parse sim stats: %w", err)
	}
	return stats, true, nil
}

// SaveWorldState performs a full save of the simulation from a single
// checkpoint. Buffered events are drained into the events table.
func (db *DB) SaveWorldState(sim *engine.Simulation) error {
	cp := sim.Checkpoint()
	snap := cp.Snapshot
	slog.Info("saving simulation state", "tick", snap.Tick, "alive", snap.Alive)

	if err := db.SaveSpecies(cp.Templates); err != nil {
		return fmt.Errorf("save species: %w", err)
	}
	if err := db.SaveCreatures(cp.LiveTypes); err != nil {
		return fmt.Errorf("save creatures: %w", err)
	}
	if err := db.SaveStats(snap); err != nil {
		return fmt.Errorf("save stats: %w", err)
	}
	if err := db.SaveEvents(cp.Events); err != nil {
		return fmt.Errorf("save events: %w", err)
	}
	statsJSON, err := json.Marshal(snap.Stats)
	if err != nil {
		return fmt.Errorf("marshal sim stats: %w", err)
	}
	if err := db.SaveMeta("sim_stats", string(statsJSON)); err != nil {
		return fmt.Errorf("save meta: %w", err)
	}
	if err := db.SaveMeta("last_tick", strconv.FormatUint(snap.Tick, 10)); err != nil {
		return fmt.Errorf("save meta: %w", err)
	}

	slog.Info("simulation state saved")
	return nil
}
