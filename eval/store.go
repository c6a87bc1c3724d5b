package eval

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

// RunRecord is one persisted evaluation run.
type RunRecord struct {
	RunID           string
	MapFile         string
	GroundTruthFile string
	MaximumDistance float64
	MeanError       float64
	StdError        float64
	RMSE            float64
	TotalPoints     int
	UnknownPoints   int
	TruncatedPoints int
	CreatedAt       int64
}

// EvaluationStore persists run records in a sqlite database, so repeated
// runs against the same map can be compared over time.
type EvaluationStore struct {
	db *sql.DB
}

const storeSchema = `
CREATE TABLE IF NOT EXISTS evaluation_runs (
	run_id            TEXT PRIMARY KEY,
	map_file          TEXT NOT NULL,
	ground_truth_file TEXT NOT NULL,
	maximum_distance  REAL NOT NULL,
	mean_error        REAL NOT NULL,
	std_error         REAL NOT NULL,
	rmse              REAL NOT NULL,
	total_points      INTEGER NOT NULL,
	unknown_points    INTEGER NOT NULL,
	truncated_points  INTEGER NOT NULL,
	created_at        INTEGER NOT NULL
)`

// OpenEvaluationStore opens (creating if needed) a results database.
func OpenEvaluationStore(path string) (*EvaluationStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open results db: %w", err)
	}
	if _, err := db.Exec(storeSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("create results schema: %w", err)
	}
	return &EvaluationStore{db: db}, nil
}

// Close releases the database handle.
func (s *EvaluationStore) Close() error {
	return s.db.Close()
}

// Insert persists a run record. An empty RunID is replaced by a fresh
// UUID; a zero CreatedAt by the current time.
func (s *EvaluationStore) Insert(rec *RunRecord) error {
	if rec.RunID == "" {
		rec.RunID = uuid.New().String()
	}
	if rec.CreatedAt == 0 {
		rec.CreatedAt = time.Now().UnixNano()
	}
	_, err := s.db.Exec(`
		INSERT INTO evaluation_runs (
			run_id, map_file, ground_truth_file, maximum_distance,
			mean_error, std_error, rmse,
			total_points, unknown_points, truncated_points, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.RunID, rec.MapFile, rec.GroundTruthFile, rec.MaximumDistance,
		rec.MeanError, rec.StdError, rec.RMSE,
		rec.TotalPoints, rec.UnknownPoints, rec.TruncatedPoints, rec.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert run record: %w", err)
	}
	return nil
}

// Get returns a single run record by id.
func (s *EvaluationStore) Get(runID string) (*RunRecord, error) {
	row := s.db.QueryRow(`
		SELECT run_id, map_file, ground_truth_file, maximum_distance,
		       mean_error, std_error, rmse,
		       total_points, unknown_points, truncated_points, created_at
		FROM evaluation_runs WHERE run_id = ?`, runID)
	var rec RunRecord
	err := row.Scan(
		&rec.RunID, &rec.MapFile, &rec.GroundTruthFile, &rec.MaximumDistance,
		&rec.MeanError, &rec.StdError, &rec.RMSE,
		&rec.TotalPoints, &rec.UnknownPoints, &rec.TruncatedPoints, &rec.CreatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("run record %s not found", runID)
	}
	if err != nil {
		return nil, fmt.Errorf("scan run record: %w", err)
	}
	return &rec, nil
}

// ListByMap returns all run records for a map file, newest first.
func (s *EvaluationStore) ListByMap(mapFile string) ([]*RunRecord, error) {
	rows, err := s.db.Query(`
		SELECT run_id, map_file, ground_truth_file, maximum_distance,
		       mean_error, std_error, rmse,
		       total_points, unknown_points, truncated_points, created_at
		FROM evaluation_runs WHERE map_file = ?
		ORDER BY created_at DESC`, mapFile)
	if err != nil {
		return nil, fmt.Errorf("query run records: %w", err)
	}
	defer rows.Close()

	var recs []*RunRecord
	for rows.Next() {
		var rec RunRecord
		if err := rows.Scan(
			&rec.RunID, &rec.MapFile, &rec.GroundTruthFile, &rec.MaximumDistance,
			&rec.MeanError, &rec.StdError, &rec.RMSE,
			&rec.TotalPoints, &rec.UnknownPoints, &rec.TruncatedPoints, &rec.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan run record: %w", err)
		}
		recs = append(recs, &rec)
	}
	return recs, rows.Err()
}
