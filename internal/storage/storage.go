// Package storage persists stitching runs in SQLite.
package storage

import (
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

// Store wraps SQLite-backed persistence for stitching runs.
type Store struct {
	DB *sql.DB
}

// New opens (or creates) the database at path and ensures schema.
// All callers share one connection, which serialises concurrent writers.
func New(path string) (*Store, error) {
	db, err := sql.Open("sqlite", dsn(path))
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)
	s := &Store{DB: db}
	if err := s.ensureSchema(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func dsn(path string) string {
	sep := "?"
	if strings.Contains(path, "?") {
		sep = "&"
	}
	return path + sep + "_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"
}

func (s *Store) ensureSchema() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS runs (
            id TEXT PRIMARY KEY,
            method TEXT NOT NULL,
            image_a TEXT,
            image_b TEXT,
            output_path TEXT,
            correspondences INTEGER,
            inliers INTEGER,
            iterations INTEGER,
            canvas_width INTEGER,
            canvas_height INTEGER,
            total_ms INTEGER,
            error_message TEXT,
            created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
        );`,
		`CREATE INDEX IF NOT EXISTS idx_runs_method ON runs(method);`,
	}
	for _, stmt := range stmts {
		if _, err := s.DB.Exec(stmt); err != nil {
			return err
		}
	}
	return nil
}

// Close closes the underlying DB.
func (s *Store) Close() error {
	if s == nil || s.DB == nil {
		return nil
	}
	return s.DB.Close()
}

// RunRecord captures one persisted stitching attempt.
type RunRecord struct {
	ID              string
	Method          string
	ImageA          string
	ImageB          string
	OutputPath      string
	Correspondences int
	Inliers         int
	Iterations      int
	CanvasWidth     int
	CanvasHeight    int
	Total           time.Duration
	Error           string
	CreatedAt       time.Time
}

// Record inserts rec, assigning an ID when it has none, and returns the ID.
func (s *Store) Record(rec RunRecord) (string, error) {
	if s == nil {
		return "", nil
	}
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	_, err := s.DB.Exec(`INSERT OR REPLACE INTO runs (id, method, image_a, image_b, output_path, correspondences, inliers, iterations, canvas_width, canvas_height, total_ms, error_message) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?);`,
		rec.ID, rec.Method, rec.ImageA, rec.ImageB, rec.OutputPath, rec.Correspondences, rec.Inliers, rec.Iterations,
		rec.CanvasWidth, rec.CanvasHeight, rec.Total.Milliseconds(), rec.Error)
	if err != nil {
		return "", err
	}
	return rec.ID, nil
}

// List returns runs newest first. An empty method lists every method.
func (s *Store) List(method string, limit int) ([]RunRecord, error) {
	if s == nil {
		return nil, errors.New("store not initialized")
	}
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.DB.Query(`SELECT id, method, image_a, image_b, output_path, correspondences, inliers, iterations, canvas_width, canvas_height, total_ms, error_message, created_at
        FROM runs WHERE (? = '' OR method = ?) ORDER BY created_at DESC, rowid DESC LIMIT ?;`, method, method, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var recs []RunRecord
	for rows.Next() {
		var rec RunRecord
		var totalMS int64
		var errMsg sql.NullString
		if err := rows.Scan(&rec.ID, &rec.Method, &rec.ImageA, &rec.ImageB, &rec.OutputPath, &rec.Correspondences,
			&rec.Inliers, &rec.Iterations, &rec.CanvasWidth, &rec.CanvasHeight, &totalMS, &errMsg, &rec.CreatedAt); err != nil {
			return nil, err
		}
		rec.Total = time.Duration(totalMS) * time.Millisecond
		if errMsg.Valid {
			rec.Error = errMsg.String
		}
		recs = append(recs, rec)
	}
	return recs, rows.Err()
}
