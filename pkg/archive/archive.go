// Package archive persists per-generation evolution results to SQLite so
// runs can be inspected and compared after the fact.
package archive

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/XiaoConstantine/evo-go/pkg/core"
	"github.com/XiaoConstantine/evo-go/pkg/errors"
	"github.com/XiaoConstantine/evo-go/pkg/evolution"
)

// Archive is a SQLite-backed generation recorder. It implements
// evolution.Recorder. Safe for concurrent use through database/sql's pool.
type Archive struct {
	db     *sql.DB
	retain int
}

// agentSnapshot is the persisted shape of one top agent.
type agentSnapshot struct {
	ID           string               `json:"id"`
	Fitness      float64              `json:"fitness"`
	Age          int                  `json:"age"`
	Generation   int                  `json:"generation"`
	Capabilities []capabilitySnapshot `json:"capabilities"`
}

type capabilitySnapshot struct {
	ID              string   `json:"id"`
	Strength        float64  `json:"strength"`
	AdaptationRate  float64  `json:"adaptation_rate"`
	Specializations []string `json:"specializations,omitempty"`
}

// Open creates or opens the archive database at path. retainGenerations
// bounds stored rows per run; zero keeps everything.
func Open(path string, retainGenerations int) (*Archive, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, errors.Wrap(err, errors.ArchiveFailed, "failed to open archive database")
	}
	db.SetMaxOpenConns(4)
	db.SetConnMaxLifetime(time.Hour)

	a := &Archive{db: db, retain: retainGenerations}
	if err := a.initDB(); err != nil {
		db.Close()
		return nil, err
	}

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, errors.Wrap(err, errors.ArchiveFailed, "failed to enable WAL mode")
	}
	if _, err := db.Exec("PRAGMA synchronous=NORMAL"); err != nil {
		db.Close()
		return nil, errors.Wrap(err, errors.ArchiveFailed, "failed to set synchronous pragma")
	}
	return a, nil
}

func (a *Archive) initDB() error {
	query := `
	CREATE TABLE IF NOT EXISTS generations (
		run_id TEXT NOT NULL,
		generation INTEGER NOT NULL,
		recorded_at INTEGER NOT NULL,
		metrics TEXT NOT NULL,
		best_agents TEXT NOT NULL,
		PRIMARY KEY (run_id, generation)
	);

	CREATE INDEX IF NOT EXISTS idx_generations_run ON generations(run_id, generation);
	`
	if _, err := a.db.Exec(query); err != nil {
		return errors.Wrap(err, errors.ArchiveFailed, "failed to initialize archive schema")
	}
	return nil
}

// RecordGeneration stores one generation snapshot and prunes rows beyond the
// retention bound, oldest first.
func (a *Archive) RecordGeneration(ctx context.Context, runID string, metrics evolution.PopulationMetrics, best []*core.Agent) error {
	metricsJSON, err := json.Marshal(metrics)
	if err != nil {
		return errors.Wrap(err, errors.ArchiveFailed, "failed to encode metrics")
	}
	bestJSON, err := json.Marshal(snapshotAgents(best))
	if err != nil {
		return errors.Wrap(err, errors.ArchiveFailed, "failed to encode best agents")
	}

	_, err = a.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO generations (run_id, generation, recorded_at, metrics, best_agents)
		 VALUES (?, ?, ?, ?, ?)`,
		runID, metrics.Generation, time.Now().UnixNano(), string(metricsJSON), string(bestJSON))
	if err != nil {
		return errors.Wrap(err, errors.ArchiveFailed, "failed to insert generation row")
	}

	if a.retain > 0 {
		return a.prune(ctx, runID)
	}
	return nil
}

// prune drops the oldest rows of a run beyond the retention bound.
func (a *Archive) prune(ctx context.Context, runID string) error {
	_, err := a.db.ExecContext(ctx,
		`DELETE FROM generations
		 WHERE run_id = ? AND generation <= (
			SELECT MAX(generation) FROM generations WHERE run_id = ?
		 ) - ?`,
		runID, runID, a.retain)
	if err != nil {
		return errors.Wrap(err, errors.ArchiveFailed, "failed to prune old generations")
	}
	return nil
}

// GenerationRecord is one row read back from the archive.
type GenerationRecord struct {
	RunID      string
	Generation int
	RecordedAt time.Time
	Metrics    evolution.PopulationMetrics
	BestAgents []AgentRecord
}

// AgentRecord is the decoded form of one archived top agent.
type AgentRecord struct {
	ID           string
	Fitness      float64
	Age          int
	Generation   int
	Capabilities []capabilitySnapshot
}

// LoadRun reads back every stored generation of a run, oldest first.
func (a *Archive) LoadRun(ctx context.Context, runID string) ([]GenerationRecord, error) {
	rows, err := a.db.QueryContext(ctx,
		`SELECT run_id, generation, recorded_at, metrics, best_agents
		 FROM generations WHERE run_id = ? ORDER BY generation ASC`, runID)
	if err != nil {
		return nil, errors.Wrap(err, errors.ArchiveFailed, "failed to query run")
	}
	defer rows.Close()

	var records []GenerationRecord
	for rows.Next() {
		var (
			rec         GenerationRecord
			recordedAt  int64
			metricsJSON string
			bestJSON    string
		)
		if err := rows.Scan(&rec.RunID, &rec.Generation, &recordedAt, &metricsJSON, &bestJSON); err != nil {
			return nil, errors.Wrap(err, errors.ArchiveFailed, "failed to scan generation row")
		}
		rec.RecordedAt = time.Unix(0, recordedAt)
		if err := json.Unmarshal([]byte(metricsJSON), &rec.Metrics); err != nil {
			return nil, errors.Wrap(err, errors.ArchiveFailed, "failed to decode metrics")
		}
		var snapshots []agentSnapshot
		if err := json.Unmarshal([]byte(bestJSON), &snapshots); err != nil {
			return nil, errors.Wrap(err, errors.ArchiveFailed, "failed to decode best agents")
		}
		for _, s := range snapshots {
			rec.BestAgents = append(rec.BestAgents, AgentRecord(s))
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

// Runs lists the distinct run IDs stored in the archive.
func (a *Archive) Runs(ctx context.Context) ([]string, error) {
	rows, err := a.db.QueryContext(ctx, `SELECT DISTINCT run_id FROM generations ORDER BY run_id`)
	if err != nil {
		return nil, errors.Wrap(err, errors.ArchiveFailed, "failed to list runs")
	}
	defer rows.Close()

	var runs []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, errors.Wrap(err, errors.ArchiveFailed, "failed to scan run id")
		}
		runs = append(runs, id)
	}
	return runs, rows.Err()
}

// Close closes the underlying database.
func (a *Archive) Close() error {
	if err := a.db.Close(); err != nil {
		return fmt.Errorf("failed to close archive: %w", err)
	}
	return nil
}

func snapshotAgents(agents []*core.Agent) []agentSnapshot {
	out := make([]agentSnapshot, 0, len(agents))
	for _, agent := range agents {
		snap := agentSnapshot{
			ID:         agent.ID,
			Fitness:    agent.Fitness,
			Age:        agent.Age,
			Generation: agent.Generation,
		}
		for _, c := range agent.Capabilities {
			snap.Capabilities = append(snap.Capabilities, capabilitySnapshot{
				ID:              c.ID,
				Strength:        c.Strength,
				AdaptationRate:  c.AdaptationRate,
				Specializations: c.Specializations,
			})
		}
		out = append(out, snap)
	}
	return out
}
