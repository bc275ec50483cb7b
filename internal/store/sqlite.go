package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/park285/cubetimer/internal/domain"
	_ "modernc.org/sqlite"
)

// SQLite is the local/offline backend. Timestamps are stored as unix
// nanoseconds so ordering is exact.
type SQLite struct {
	db  *sql.DB
	now func() time.Time
}

const sqliteSchema = `
	CREATE TABLE IF NOT EXISTS solves (
		id TEXT PRIMARY KEY,
		owner_id TEXT NOT NULL,
		time_ms INTEGER NOT NULL,
		scramble TEXT NOT NULL,
		penalty TEXT NOT NULL DEFAULT 'none',
		created_at INTEGER NOT NULL,
		deleted_at INTEGER
	);
	CREATE INDEX IF NOT EXISTS solves_owner_created_idx ON solves (owner_id, created_at);
	CREATE TABLE IF NOT EXISTS profiles (
		id TEXT PRIMARY KEY,
		total_solves INTEGER NOT NULL DEFAULT 0,
		pb_single INTEGER,
		pb_single_date INTEGER,
		pb_single_scramble TEXT,
		pb_ao5 INTEGER,
		pb_ao5_date INTEGER,
		pb_ao12 INTEGER,
		pb_ao12_date INTEGER,
		updated_at INTEGER NOT NULL
	);
`

// OpenSQLite opens (creating if needed) the database at path. ":memory:"
// gives a private in-memory database pinned to a single connection. now
// stamps created_at and defaults to time.Now.
func OpenSQLite(path string, now func() time.Time) (*SQLite, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, os.ErrInvalid
	}

	dsn := path
	memory := path == ":memory:"
	if !memory {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, err
		}
		dsn = path + "?_foreign_keys=1&_journal=WAL"
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	if memory {
		db.SetMaxOpenConns(1)
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}
	if _, err := db.Exec(sqliteSchema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create sqlite schema: %w", err)
	}
	if now == nil {
		now = time.Now
	}
	return &SQLite{db: db, now: now}, nil
}

func (s *SQLite) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *SQLite) CreateSolve(ctx context.Context, in domain.NewSolve) (*domain.Solve, error) {
	owner := strings.TrimSpace(in.OwnerID)
	if owner == "" {
		return nil, fmt.Errorf("create solve: empty owner")
	}
	solve := &domain.Solve{
		ID:        uuid.NewString(),
		OwnerID:   owner,
		TimeMs:    in.TimeMs,
		Scramble:  in.Scramble,
		Penalty:   normalizePenalty(in.Penalty),
		CreatedAt: s.now().UTC(),
	}
	_, err := s.db.ExecContext(ctx,
		"INSERT INTO solves (id, owner_id, time_ms, scramble, penalty, created_at) VALUES (?, ?, ?, ?, ?, ?)",
		solve.ID, solve.OwnerID, solve.TimeMs, solve.Scramble, solve.Penalty.String(), solve.CreatedAt.UnixNano(),
	)
	if err != nil {
		return nil, fmt.Errorf("insert solve: %w", err)
	}
	return solve, nil
}

func (s *SQLite) UpdateSolvePenalty(ctx context.Context, ownerID, solveID string, penalty domain.Penalty) error {
	res, err := s.db.ExecContext(ctx,
		"UPDATE solves SET penalty = ? WHERE id = ? AND owner_id = ? AND deleted_at IS NULL",
		normalizePenalty(penalty).String(), solveID, ownerID,
	)
	if err != nil {
		return fmt.Errorf("update solve penalty: %w", err)
	}
	return requireAffected(res)
}

func (s *SQLite) SoftDeleteSolve(ctx context.Context, ownerID, solveID string) error {
	res, err := s.db.ExecContext(ctx,
		"UPDATE solves SET deleted_at = ? WHERE id = ? AND owner_id = ? AND deleted_at IS NULL",
		s.now().UTC().UnixNano(), solveID, ownerID,
	)
	if err != nil {
		return fmt.Errorf("soft delete solve: %w", err)
	}
	return requireAffected(res)
}

const sqliteSolveColumns = "id, owner_id, time_ms, scramble, penalty, created_at, deleted_at"

func (s *SQLite) ListSolves(ctx context.Context, ownerID string, page Page) ([]*domain.Solve, error) {
	page = page.normalized()
	rows, err := s.db.QueryContext(ctx,
		"SELECT "+sqliteSolveColumns+" FROM solves WHERE owner_id = ? AND deleted_at IS NULL ORDER BY created_at DESC, rowid DESC LIMIT ? OFFSET ?",
		ownerID, page.Limit, page.Offset,
	)
	if err != nil {
		return nil, fmt.Errorf("select solves: %w", err)
	}
	return collectSQLiteSolves(rows)
}

func (s *SQLite) CountSolves(ctx context.Context, ownerID string) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM solves WHERE owner_id = ? AND deleted_at IS NULL", ownerID).Scan(&n); err != nil {
		return 0, fmt.Errorf("count solves: %w", err)
	}
	return n, nil
}

func (s *SQLite) GetAllSolves(ctx context.Context, ownerID string, limit int) ([]*domain.Solve, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT "+sqliteSolveColumns+" FROM solves WHERE owner_id = ? AND deleted_at IS NULL ORDER BY created_at ASC, rowid ASC LIMIT ?",
		ownerID, historyLimit(limit),
	)
	if err != nil {
		return nil, fmt.Errorf("select solve history: %w", err)
	}
	return collectSQLiteSolves(rows)
}

func (s *SQLite) GetProfileSnapshot(ctx context.Context, ownerID string) (*domain.ProfileSnapshot, error) {
	var (
		snap     domain.ProfileSnapshot
		single   sql.NullInt64
		singleAt sql.NullInt64
		scramble sql.NullString
		ao5      sql.NullInt64
		ao5At    sql.NullInt64
		ao12     sql.NullInt64
		ao12At   sql.NullInt64
		updated  int64
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT id, total_solves, pb_single, pb_single_date, pb_single_scramble,
			pb_ao5, pb_ao5_date, pb_ao12, pb_ao12_date, updated_at
		FROM profiles WHERE id = ?`, ownerID,
	).Scan(&snap.OwnerID, &snap.TotalSolves, &single, &singleAt, &scramble, &ao5, &ao5At, &ao12, &ao12At, &updated)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("select profile: %w", err)
	}
	snap.PBSingle = int64Ptr(single)
	snap.PBSingleDate = unixNanoPtr(singleAt)
	snap.PBSingleScramble = stringPtr(scramble)
	snap.PBAo5 = int64Ptr(ao5)
	snap.PBAo5Date = unixNanoPtr(ao5At)
	snap.PBAo12 = int64Ptr(ao12)
	snap.PBAo12Date = unixNanoPtr(ao12At)
	snap.UpdatedAt = time.Unix(0, updated).UTC()
	return &snap, nil
}

func (s *SQLite) UpdateProfileSnapshot(ctx context.Context, snap *domain.ProfileSnapshot) error {
	if snap == nil {
		return fmt.Errorf("nil profile snapshot")
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO profiles (id, total_solves, pb_single, pb_single_date, pb_single_scramble,
			pb_ao5, pb_ao5_date, pb_ao12, pb_ao12_date, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			total_solves = excluded.total_solves,
			pb_single = excluded.pb_single,
			pb_single_date = excluded.pb_single_date,
			pb_single_scramble = excluded.pb_single_scramble,
			pb_ao5 = excluded.pb_ao5,
			pb_ao5_date = excluded.pb_ao5_date,
			pb_ao12 = excluded.pb_ao12,
			pb_ao12_date = excluded.pb_ao12_date,
			updated_at = excluded.updated_at`,
		snap.OwnerID,
		snap.TotalSolves,
		nullableInt64(snap.PBSingle),
		nullableUnixNano(snap.PBSingleDate),
		nullableString(snap.PBSingleScramble),
		nullableInt64(snap.PBAo5),
		nullableUnixNano(snap.PBAo5Date),
		nullableInt64(snap.PBAo12),
		nullableUnixNano(snap.PBAo12Date),
		s.now().UTC().UnixNano(),
	)
	if err != nil {
		return fmt.Errorf("upsert profile: %w", err)
	}
	return nil
}

func collectSQLiteSolves(rows *sql.Rows) ([]*domain.Solve, error) {
	defer rows.Close()
	var out []*domain.Solve
	for rows.Next() {
		var (
			solve   domain.Solve
			penalty string
			created int64
			deleted sql.NullInt64
		)
		if err := rows.Scan(&solve.ID, &solve.OwnerID, &solve.TimeMs, &solve.Scramble, &penalty, &created, &deleted); err != nil {
			return nil, fmt.Errorf("scan solve: %w", err)
		}
		solve.Penalty = parseStoredPenalty(penalty)
		solve.CreatedAt = time.Unix(0, created).UTC()
		solve.DeletedAt = unixNanoPtr(deleted)
		out = append(out, &solve)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate solves: %w", err)
	}
	if out == nil {
		out = []*domain.Solve{}
	}
	return out, nil
}

func unixNanoPtr(v sql.NullInt64) *time.Time {
	if !v.Valid {
		return nil
	}
	t := time.Unix(0, v.Int64).UTC()
	return &t
}

func nullableUnixNano(p *time.Time) any {
	if p == nil {
		return nil
	}
	return p.UTC().UnixNano()
}

func (s *SQLite) Ping(ctx context.Context) error { return s.db.PingContext(ctx) }

func (s *SQLite) ListOwners(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT DISTINCT owner_id FROM solves WHERE deleted_at IS NULL ORDER BY owner_id`)
	if err != nil {
		return nil, fmt.Errorf("list owners: %w", err)
	}
	defer rows.Close()
	return collectOwners(rows)
}
