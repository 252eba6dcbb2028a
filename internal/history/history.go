// File: internal/history/history.go
// Brief: SQLite-backed record of package launches.

package history

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

// FileName is the history database kept in the application directory.
const FileName = "history.sqlite"

type Entry struct {
	ID        string     `json:"id" yaml:"id"`
	Package   string     `json:"package" yaml:"package"`
	Version   string     `json:"version,omitempty" yaml:"version,omitempty"`
	Via       string     `json:"via" yaml:"via"`
	Command   string     `json:"command" yaml:"command"`
	Argv      []string   `json:"argv" yaml:"argv"`
	Appended  []string   `json:"appended,omitempty" yaml:"appended,omitempty"`
	PID       int        `json:"pid" yaml:"pid"`
	Detached  bool       `json:"detached" yaml:"detached"`
	StartedAt time.Time  `json:"startedAt" yaml:"startedAt"`
	EndedAt   *time.Time `json:"endedAt,omitempty" yaml:"endedAt,omitempty"`
	ExitCode  *int       `json:"exitCode,omitempty" yaml:"exitCode,omitempty"`
}

type Store struct {
	db   *sql.DB
	path string
}

// Open creates or opens the history database at path.
func Open(path string) (*Store, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, errors.New("history path is required")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}
	s := &Store{db: db, path: path}
	if err := s.initSchema(ctx); err != nil {
		_ = s.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *Store) Path() string { return s.path }

func (s *Store) initSchema(ctx context.Context) error {
	stmts := []string{
		`PRAGMA journal_mode=WAL;`,
		`PRAGMA synchronous=NORMAL;`,
		`PRAGMA busy_timeout=5000;`,
		`
CREATE TABLE IF NOT EXISTS vat_launches (
  id TEXT PRIMARY KEY,
  package TEXT NOT NULL,
  version TEXT NOT NULL,
  via TEXT NOT NULL,
  command TEXT NOT NULL,
  argv_json TEXT NOT NULL,
  appended_json TEXT NOT NULL,
  pid INTEGER NOT NULL,
  detached INTEGER NOT NULL,
  started_at_ns INTEGER NOT NULL,
  ended_at_ns INTEGER,
  exit_code INTEGER
);`,
		`CREATE INDEX IF NOT EXISTS vat_launches_started ON vat_launches(started_at_ns DESC);`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("init history schema: %w", err)
		}
	}
	return nil
}

// Record stores a new launch and returns its ID.
func (s *Store) Record(ctx context.Context, e Entry) (string, error) {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.StartedAt.IsZero() {
		e.StartedAt = time.Now()
	}
	argv, err := json.Marshal(nonNil(e.Argv))
	if err != nil {
		return "", err
	}
	appended, err := json.Marshal(nonNil(e.Appended))
	if err != nil {
		return "", err
	}
	detached := 0
	if e.Detached {
		detached = 1
	}
	_, err = s.db.ExecContext(ctx, `
INSERT INTO vat_launches (id, package, version, via, command, argv_json, appended_json, pid, detached, started_at_ns)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.ID, e.Package, e.Version, e.Via, e.Command, string(argv), string(appended), e.PID, detached, e.StartedAt.UnixNano())
	if err != nil {
		return "", fmt.Errorf("record launch: %w", err)
	}
	return e.ID, nil
}

// Finish stores the exit code of an attached launch.
func (s *Store) Finish(ctx context.Context, id string, exitCode int, endedAt time.Time) error {
	res, err := s.db.ExecContext(ctx, `UPDATE vat_launches SET exit_code = ?, ended_at_ns = ? WHERE id = ?`,
		exitCode, endedAt.UnixNano(), id)
	if err != nil {
		return fmt.Errorf("finish launch: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("finish launch: unknown id %s", id)
	}
	return nil
}

// List returns the most recent launches first. limit <= 0 means all.
func (s *Store) List(ctx context.Context, limit int) ([]Entry, error) {
	query := `SELECT id, package, version, via, command, argv_json, appended_json, pid, detached, started_at_ns, ended_at_ns, exit_code
FROM vat_launches ORDER BY started_at_ns DESC`
	var args []any
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list launches: %w", err)
	}
	defer rows.Close()

	var out []Entry
	for rows.Next() {
		var (
			e            Entry
			argvJSON     string
			appendedJSON string
			detached     int
			startedNS    int64
			endedNS      sql.NullInt64
			exitCode     sql.NullInt64
		)
		if err := rows.Scan(&e.ID, &e.Package, &e.Version, &e.Via, &e.Command, &argvJSON, &appendedJSON,
			&e.PID, &detached, &startedNS, &endedNS, &exitCode); err != nil {
			return nil, fmt.Errorf("scan launch: %w", err)
		}
		if err := json.Unmarshal([]byte(argvJSON), &e.Argv); err != nil {
			return nil, fmt.Errorf("decode argv of %s: %w", e.ID, err)
		}
		if err := json.Unmarshal([]byte(appendedJSON), &e.Appended); err != nil {
			return nil, fmt.Errorf("decode appended of %s: %w", e.ID, err)
		}
		e.Detached = detached != 0
		e.StartedAt = time.Unix(0, startedNS).UTC()
		if endedNS.Valid {
			ended := time.Unix(0, endedNS.Int64).UTC()
			e.EndedAt = &ended
		}
		if exitCode.Valid {
			code := int(exitCode.Int64)
			e.ExitCode = &code
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate launches: %w", err)
	}
	return out, nil
}

func nonNil(values []string) []string {
	if values == nil {
		return []string{}
	}
	return values
}
