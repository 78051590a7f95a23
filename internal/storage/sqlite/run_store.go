package sqlite

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Run represents one benchmark invocation over a test-case stream.
type Run struct {
	RunID      string          `json:"run_id"`
	InputPath  string          `json:"input_path"`
	RefPath    string          `json:"ref_path"`
	TuningJSON json.RawMessage `json:"tuning_json,omitempty"`
	CaseCount  int             `json:"case_count"`
	PassCount  int             `json:"pass_count"`
	MaxDelta   float64         `json:"max_delta"`
	MeanDelta  float64         `json:"mean_delta"`
	StartedAt  int64           `json:"started_at"`
	FinishedAt int64           `json:"finished_at"`
}

// CaseResult represents the registration of a single test case within a run.
type CaseResult struct {
	RunID          string  `json:"run_id"`
	CaseIndex      int     `json:"case_index"`
	Converged      bool    `json:"converged"`
	RefConverged   bool    `json:"ref_converged"`
	FitnessScore   float64 `json:"fitness_score"`
	MaxDelta       float64 `json:"max_delta"`
	CanonicalDelta float64 `json:"canonical_delta"`
	Iterations     int     `json:"iterations"`
	Pass           bool    `json:"pass"`
	RegisterNanos  int64   `json:"register_nanos"`
}

// RunStore provides persistence for benchmark runs and their case results.
type RunStore struct {
	db *DB
}

// NewRunStore creates a RunStore backed by the given database.
func NewRunStore(db *DB) *RunStore {
	return &RunStore{db: db}
}

// InsertRun persists a new run row. If RunID is empty, a UUID is generated.
func (s *RunStore) InsertRun(run *Run) error {
	if run.RunID == "" {
		run.RunID = uuid.New().String()
	}
	if run.StartedAt == 0 {
		run.StartedAt = time.Now().UnixNano()
	}

	var tuningStr interface{}
	if len(run.TuningJSON) > 0 {
		tuningStr = string(run.TuningJSON)
	}

	return retryOnBusy(func() error {
		_, err := s.db.Exec(`
			INSERT INTO benchmark_runs (
				run_id, input_path, ref_path, tuning_json,
				case_count, pass_count, max_delta, mean_delta,
				started_at, finished_at
			) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			run.RunID, run.InputPath, run.RefPath, tuningStr,
			run.CaseCount, run.PassCount, run.MaxDelta, run.MeanDelta,
			run.StartedAt, run.FinishedAt,
		)
		return err
	})
}

// FinishRun updates the aggregate columns of a run after it completes.
func (s *RunStore) FinishRun(run *Run) error {
	if run.FinishedAt == 0 {
		run.FinishedAt = time.Now().UnixNano()
	}
	return retryOnBusy(func() error {
		res, err := s.db.Exec(`
			UPDATE benchmark_runs
			SET case_count = ?, pass_count = ?, max_delta = ?, mean_delta = ?, finished_at = ?
			WHERE run_id = ?`,
			run.CaseCount, run.PassCount, run.MaxDelta, run.MeanDelta, run.FinishedAt,
			run.RunID,
		)
		if err != nil {
			return err
		}
		n, err := res.RowsAffected()
		if err != nil {
			return err
		}
		if n == 0 {
			return fmt.Errorf("run %s not found", run.RunID)
		}
		return nil
	})
}

// GetRun returns a single run by ID.
func (s *RunStore) GetRun(runID string) (*Run, error) {
	row := s.db.QueryRow(`
		SELECT run_id, input_path, ref_path, tuning_json,
		       case_count, pass_count, max_delta, mean_delta,
		       started_at, finished_at
		FROM benchmark_runs
		WHERE run_id = ?`, runID)

	var run Run
	var tuningStr sql.NullString
	err := row.Scan(
		&run.RunID, &run.InputPath, &run.RefPath, &tuningStr,
		&run.CaseCount, &run.PassCount, &run.MaxDelta, &run.MeanDelta,
		&run.StartedAt, &run.FinishedAt,
	)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("run %s not found", runID)
	}
	if err != nil {
		return nil, fmt.Errorf("scan run: %w", err)
	}
	if tuningStr.Valid {
		run.TuningJSON = json.RawMessage(tuningStr.String)
	}
	return &run, nil
}

// ListRecentRuns returns up to limit runs ordered by start time descending.
func (s *RunStore) ListRecentRuns(limit int) ([]*Run, error) {
	rows, err := s.db.Query(`
		SELECT run_id, input_path, ref_path, tuning_json,
		       case_count, pass_count, max_delta, mean_delta,
		       started_at, finished_at
		FROM benchmark_runs
		ORDER BY started_at DESC
		LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("query runs: %w", err)
	}
	defer rows.Close()

	var runs []*Run
	for rows.Next() {
		var run Run
		var tuningStr sql.NullString
		if err := rows.Scan(
			&run.RunID, &run.InputPath, &run.RefPath, &tuningStr,
			&run.CaseCount, &run.PassCount, &run.MaxDelta, &run.MeanDelta,
			&run.StartedAt, &run.FinishedAt,
		); err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		if tuningStr.Valid {
			run.TuningJSON = json.RawMessage(tuningStr.String)
		}
		runs = append(runs, &run)
	}
	return runs, rows.Err()
}

// InsertCaseResults persists the case rows of a run in one transaction.
func (s *RunStore) InsertCaseResults(results []*CaseResult) error {
	if len(results) == 0 {
		return nil
	}
	return retryOnBusy(func() error {
		tx, err := s.db.Begin()
		if err != nil {
			return err
		}
		defer tx.Rollback()

		stmt, err := tx.Prepare(`
			INSERT INTO benchmark_case_results (
				run_id, case_index, converged, ref_converged,
				fitness_score, max_delta, canonical_delta,
				iterations, pass, register_nanos
			) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
		if err != nil {
			return err
		}
		defer stmt.Close()

		for _, r := range results {
			if _, err := stmt.Exec(
				r.RunID, r.CaseIndex, r.Converged, r.RefConverged,
				r.FitnessScore, r.MaxDelta, r.CanonicalDelta,
				r.Iterations, r.Pass, r.RegisterNanos,
			); err != nil {
				return err
			}
		}
		return tx.Commit()
	})
}

// ListCaseResults returns the case rows of a run in case order.
func (s *RunStore) ListCaseResults(runID string) ([]*CaseResult, error) {
	rows, err := s.db.Query(`
		SELECT run_id, case_index, converged, ref_converged,
		       fitness_score, max_delta, canonical_delta,
		       iterations, pass, register_nanos
		FROM benchmark_case_results
		WHERE run_id = ?
		ORDER BY case_index ASC`, runID)
	if err != nil {
		return nil, fmt.Errorf("query case results: %w", err)
	}
	defer rows.Close()

	var results []*CaseResult
	for rows.Next() {
		var r CaseResult
		if err := rows.Scan(
			&r.RunID, &r.CaseIndex, &r.Converged, &r.RefConverged,
			&r.FitnessScore, &r.MaxDelta, &r.CanonicalDelta,
			&r.Iterations, &r.Pass, &r.RegisterNanos,
		); err != nil {
			return nil, fmt.Errorf("scan case result: %w", err)
		}
		results = append(results, &r)
	}
	return results, rows.Err()
}
