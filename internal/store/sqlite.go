package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/mattn/go-sqlite3"

	"github.com/gandretiraghu/gptr-road-safety/internal/models"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS reports (
    seq              INTEGER PRIMARY KEY AUTOINCREMENT,
    id               TEXT NOT NULL UNIQUE,
    device_id        TEXT NOT NULL,
    kind             TEXT NOT NULL,
    parent_report_id TEXT,
    lat              REAL NOT NULL,
    lng              REAL NOT NULL,
    timestamp_ns     INTEGER NOT NULL,
    dedup_key        TEXT UNIQUE,
    body             TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_reports_timestamp ON reports(timestamp_ns, seq);
CREATE INDEX IF NOT EXISTS idx_reports_parent ON reports(parent_report_id);
CREATE INDEX IF NOT EXISTS idx_reports_device ON reports(device_id, kind);
`

// SQLiteStore persists reports in a single SQLite file. The full report is
// kept as JSON in body; the other columns exist for filtering and uniqueness.
type SQLiteStore struct {
	db *sql.DB
}

// OpenSQLite opens or creates the database at path and applies the schema.
func OpenSQLite(path string) (*SQLiteStore, error) {
	if path == "" {
		return nil, fmt.Errorf("sqlite store: path is required")
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("create database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	// one writer at a time; uniqueness is still enforced by the schema
	db.SetMaxOpenConns(1)
	if _, err := db.Exec(sqliteSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

func (s *SQLiteStore) Append(ctx context.Context, r models.Report) error {
	if err := validateForAppend(r); err != nil {
		return err
	}
	body, err := json.Marshal(r)
	if err != nil {
		return fmt.Errorf("encode report %s: %w", r.ID, err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO reports (id, device_id, kind, parent_report_id, lat, lng, timestamp_ns, dedup_key, body)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.ID, r.DeviceID, string(r.Kind), nullable(r.ParentReportID), r.Location.Lat, r.Location.Lng,
		r.Timestamp.UnixNano(), nullable(r.DedupKey), string(body),
	)
	if err != nil {
		return classifySQLiteError(err)
	}
	return nil
}

func (s *SQLiteStore) Query(ctx context.Context, f Filter) ([]models.Report, error) {
	var (
		where []string
		args  []any
	)
	if f.ID != "" {
		where, args = append(where, "id = ?"), append(args, f.ID)
	}
	if f.Kind != "" {
		where, args = append(where, "kind = ?"), append(args, string(f.Kind))
	}
	if f.DeviceID != "" {
		where, args = append(where, "device_id = ?"), append(args, f.DeviceID)
	}
	if f.ParentReportID != "" {
		where, args = append(where, "parent_report_id = ?"), append(args, f.ParentReportID)
	}
	if f.BBox != nil {
		where = append(where, "lng >= ? AND lng <= ? AND lat >= ? AND lat <= ?")
		args = append(args, f.BBox.MinLng, f.BBox.MaxLng, f.BBox.MinLat, f.BBox.MaxLat)
	}

	q := "SELECT body, dedup_key FROM reports"
	if len(where) > 0 {
		q += " WHERE " + strings.Join(where, " AND ")
	}
	q += " ORDER BY timestamp_ns, seq"
	if f.Limit > 0 {
		q += " LIMIT ?"
		args = append(args, f.Limit)
	}

	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("query reports: %w: %w", ErrUnavailable, err)
	}
	defer rows.Close()

	var out []models.Report
	for rows.Next() {
		var (
			body  string
			dedup sql.NullString
		)
		if err := rows.Scan(&body, &dedup); err != nil {
			return nil, fmt.Errorf("scan report: %w: %w", ErrUnavailable, err)
		}
		var r models.Report
		if err := json.Unmarshal([]byte(body), &r); err != nil {
			// a corrupt row must not hide the rest of the history
			continue
		}
		r.DedupKey = dedup.String
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate reports: %w: %w", ErrUnavailable, err)
	}
	return out, nil
}

func (s *SQLiteStore) Ping(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		return fmt.Errorf("%w: %w", ErrUnavailable, err)
	}
	return nil
}

func (s *SQLiteStore) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

func classifySQLiteError(err error) error {
	var se sqlite3.Error
	if errors.As(err, &se) && se.Code == sqlite3.ErrConstraint {
		msg := se.Error()
		switch {
		case strings.Contains(msg, "reports.dedup_key"):
			return ErrDuplicateRepair
		case strings.Contains(msg, "reports.id"):
			return ErrDuplicateID
		}
	}
	return fmt.Errorf("insert report: %w: %w", ErrUnavailable, err)
}

func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}
