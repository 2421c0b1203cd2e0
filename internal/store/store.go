// SPDX-License-Identifier: GPL-3.0-or-later

// Package store persists the working topology, student submissions,
// and grades in a SQLite database.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/ZhuChongjing/NetLabX/topo"
	_ "modernc.org/sqlite"
)

// Store wraps the SQLite database.
type Store struct {
	db *sql.DB
}

// Open opens (creating if needed) the database at path and applies
// the schema.
func Open(path string) (*Store, error) {
	dsn := "file:" + path + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)&_time_format=sqlite"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	st := &Store{db: db}
	if err := st.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrating database: %w", err)
	}
	return st, nil
}

func (st *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS topology (
		id INTEGER PRIMARY KEY CHECK (id = 1),
		data JSON NOT NULL,
		updated_at DATETIME NOT NULL
	);

	CREATE TABLE IF NOT EXISTS submissions (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		student TEXT NOT NULL,
		assignment TEXT NOT NULL DEFAULT '',
		topology JSON NOT NULL,
		created_at DATETIME NOT NULL
	);

	CREATE TABLE IF NOT EXISTS grades (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		submission_id INTEGER REFERENCES submissions(id) ON DELETE CASCADE,
		assignment TEXT NOT NULL,
		student TEXT NOT NULL,
		earned INTEGER NOT NULL,
		total INTEGER NOT NULL,
		detail JSON NOT NULL,
		created_at DATETIME NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_submissions_student ON submissions(student);
	CREATE INDEX IF NOT EXISTS idx_grades_assignment ON grades(assignment);
	`
	_, err := st.db.Exec(schema)
	return err
}

// SaveTopology replaces the stored working topology.
func (st *Store) SaveTopology(ctx context.Context, s *topo.Snapshot) error {
	data, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("marshaling topology: %w", err)
	}
	_, err = st.db.ExecContext(ctx, `
		INSERT INTO topology (id, data, updated_at) VALUES (1, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			data = excluded.data,
			updated_at = excluded.updated_at
	`, data, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("saving topology: %w", err)
	}
	return nil
}

// LoadTopology returns the stored working topology, or nil when none
// has been saved yet.
func (st *Store) LoadTopology(ctx context.Context) (*topo.Snapshot, error) {
	var data []byte
	err := st.db.QueryRowContext(ctx,
		`SELECT data FROM topology WHERE id = 1`).Scan(&data)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("loading topology: %w", err)
	}

	var s topo.Snapshot
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("unmarshaling topology: %w", err)
	}
	return &s, nil
}

// Submission is a student's saved topology.
type Submission struct {
	ID         int64          `json:"id"`
	Student    string         `json:"student"`
	Assignment string         `json:"assignment,omitempty"`
	CreatedAt  time.Time      `json:"createdAt"`
	Topology   *topo.Snapshot `json:"topology,omitempty"`
}

// AddSubmission records a student's topology and returns the
// submission ID.
func (st *Store) AddSubmission(ctx context.Context, student, assignment string, s *topo.Snapshot) (int64, error) {
	data, err := json.Marshal(s)
	if err != nil {
		return 0, fmt.Errorf("marshaling topology: %w", err)
	}
	res, err := st.db.ExecContext(ctx, `
		INSERT INTO submissions (student, assignment, topology, created_at)
		VALUES (?, ?, ?, ?)
	`, student, assignment, data, time.Now().UTC())
	if err != nil {
		return 0, fmt.Errorf("adding submission: %w", err)
	}
	return res.LastInsertId()
}

// Submission returns one submission with its topology, or nil when
// the ID is unknown.
func (st *Store) Submission(ctx context.Context, id int64) (*Submission, error) {
	var (
		sub  Submission
		data []byte
	)
	err := st.db.QueryRowContext(ctx, `
		SELECT id, student, assignment, topology, created_at
		FROM submissions WHERE id = ?
	`, id).Scan(&sub.ID, &sub.Student, &sub.Assignment, &data, &sub.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("loading submission: %w", err)
	}

	sub.Topology = &topo.Snapshot{}
	if err := json.Unmarshal(data, sub.Topology); err != nil {
		return nil, fmt.Errorf("unmarshaling submission topology: %w", err)
	}
	return &sub, nil
}

// ListSubmissions returns submission headers (no topology payload),
// newest first.
func (st *Store) ListSubmissions(ctx context.Context) ([]Submission, error) {
	rows, err := st.db.QueryContext(ctx, `
		SELECT id, student, assignment, created_at
		FROM submissions ORDER BY id DESC
	`)
	if err != nil {
		return nil, fmt.Errorf("listing submissions: %w", err)
	}
	defer rows.Close()

	var out []Submission
	for rows.Next() {
		var sub Submission
		if err := rows.Scan(&sub.ID, &sub.Student, &sub.Assignment, &sub.CreatedAt); err != nil {
			return nil, fmt.Errorf("scanning submission: %w", err)
		}
		out = append(out, sub)
	}
	return out, rows.Err()
}

// GradeRecord is a stored grading outcome. Detail carries the full
// per-check breakdown as produced by the grading engine.
type GradeRecord struct {
	ID           int64           `json:"id"`
	SubmissionID int64           `json:"submissionId,omitempty"`
	Assignment   string          `json:"assignment"`
	Student      string          `json:"student"`
	Earned       int             `json:"earned"`
	Total        int             `json:"total"`
	Detail       json.RawMessage `json:"detail"`
	CreatedAt    time.Time       `json:"createdAt"`
}

// SaveGrade records a grading outcome. SubmissionID may be zero for
// grades computed outside a stored submission; detail may be any
// JSON-marshalable value.
func (st *Store) SaveGrade(ctx context.Context, rec *GradeRecord, detail any) (int64, error) {
	data, err := json.Marshal(detail)
	if err != nil {
		return 0, fmt.Errorf("marshaling grade detail: %w", err)
	}
	var submission sql.NullInt64
	if rec.SubmissionID != 0 {
		submission = sql.NullInt64{Int64: rec.SubmissionID, Valid: true}
	}
	res, err := st.db.ExecContext(ctx, `
		INSERT INTO grades (submission_id, assignment, student, earned, total, detail, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, submission, rec.Assignment, rec.Student, rec.Earned, rec.Total, data, time.Now().UTC())
	if err != nil {
		return 0, fmt.Errorf("saving grade: %w", err)
	}
	return res.LastInsertId()
}

// ListGrades returns grades for an assignment (all assignments when
// empty), newest first.
func (st *Store) ListGrades(ctx context.Context, assignment string) ([]GradeRecord, error) {
	query := `
		SELECT id, COALESCE(submission_id, 0), assignment, student, earned, total, detail, created_at
		FROM grades
	`
	args := []any{}
	if assignment != "" {
		query += ` WHERE assignment = ?`
		args = append(args, assignment)
	}
	query += ` ORDER BY id DESC`

	rows, err := st.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("listing grades: %w", err)
	}
	defer rows.Close()

	var out []GradeRecord
	for rows.Next() {
		var rec GradeRecord
		if err := rows.Scan(&rec.ID, &rec.SubmissionID, &rec.Assignment, &rec.Student,
			&rec.Earned, &rec.Total, &rec.Detail, &rec.CreatedAt); err != nil {
			return nil, fmt.Errorf("scanning grade: %w", err)
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

// Close closes the database.
func (st *Store) Close() error {
	return st.db.Close()
}
