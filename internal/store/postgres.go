package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "github.com/lib/pq"
	"github.com/park285/cubetimer/internal/domain"
)

// Postgres stores solves in `solves` and snapshots in `profiles`. The schema
// is owned by the hosted backend; ids are generated by the database.
type Postgres struct {
	db *sql.DB
}

func NewPostgres(db *sql.DB) *Postgres {
	return &Postgres{db: db}
}

// OpenPostgres opens a pooled connection and pings it.
func OpenPostgres(ctx context.Context, dsn string) (*sql.DB, error) {
	if strings.TrimSpace(dsn) == "" {
		return nil, fmt.Errorf("empty postgres dsn")
	}
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	db.SetMaxOpenConns(16)
	db.SetMaxIdleConns(8)
	db.SetConnMaxLifetime(30 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return db, nil
}

const pgSolveColumns = `id, owner_id, time_ms, scramble, penalty, created_at, deleted_at`

// Both orderings break created_at ties on id, so a page listing is always
// the exact reverse of the history.
const (
	pgListSolvesQuery = `
		SELECT ` + pgSolveColumns + `
		FROM solves
		WHERE owner_id = $1 AND deleted_at IS NULL
		ORDER BY created_at DESC, id DESC
		LIMIT $2 OFFSET $3`

	pgHistoryQuery = `
		SELECT ` + pgSolveColumns + `
		FROM solves
		WHERE owner_id = $1 AND deleted_at IS NULL
		ORDER BY created_at ASC, id ASC
		LIMIT $2`
)

func (r *Postgres) CreateSolve(ctx context.Context, in domain.NewSolve) (*domain.Solve, error) {
	const query = `
		INSERT INTO solves (owner_id, time_ms, scramble, penalty)
		VALUES ($1, $2, $3, $4)
		RETURNING ` + pgSolveColumns

	row := r.db.QueryRowContext(ctx, query, in.OwnerID, in.TimeMs, in.Scramble, normalizePenalty(in.Penalty).String())
	s, err := scanPgSolve(row)
	if err != nil {
		return nil, fmt.Errorf("insert solve: %w", err)
	}
	return s, nil
}

func (r *Postgres) UpdateSolvePenalty(ctx context.Context, ownerID, solveID string, penalty domain.Penalty) error {
	const query = `
		UPDATE solves
		SET penalty = $3
		WHERE id = $1 AND owner_id = $2 AND deleted_at IS NULL`

	res, err := r.db.ExecContext(ctx, query, solveID, ownerID, normalizePenalty(penalty).String())
	if err != nil {
		return fmt.Errorf("update solve penalty: %w", err)
	}
	return requireAffected(res)
}

func (r *Postgres) SoftDeleteSolve(ctx context.Context, ownerID, solveID string) error {
	const query = `
		UPDATE solves
		SET deleted_at = NOW()
		WHERE id = $1 AND owner_id = $2 AND deleted_at IS NULL`

	res, err := r.db.ExecContext(ctx, query, solveID, ownerID)
	if err != nil {
		return fmt.Errorf("soft delete solve: %w", err)
	}
	return requireAffected(res)
}

func (r *Postgres) ListSolves(ctx context.Context, ownerID string, page Page) ([]*domain.Solve, error) {
	page = page.normalized()
	rows, err := r.db.QueryContext(ctx, pgListSolvesQuery, ownerID, page.Limit, page.Offset)
	if err != nil {
		return nil, fmt.Errorf("select solves: %w", err)
	}
	return collectPgSolves(rows, page.Limit)
}

func (r *Postgres) CountSolves(ctx context.Context, ownerID string) (int, error) {
	const query = `SELECT COUNT(*) FROM solves WHERE owner_id = $1 AND deleted_at IS NULL`
	var n int
	if err := r.db.QueryRowContext(ctx, query, ownerID).Scan(&n); err != nil {
		return 0, fmt.Errorf("count solves: %w", err)
	}
	return n, nil
}

func (r *Postgres) GetAllSolves(ctx context.Context, ownerID string, limit int) ([]*domain.Solve, error) {
	limit = historyLimit(limit)
	rows, err := r.db.QueryContext(ctx, pgHistoryQuery, ownerID, limit)
	if err != nil {
		return nil, fmt.Errorf("select solve history: %w", err)
	}
	return collectPgSolves(rows, 64)
}

func (r *Postgres) GetProfileSnapshot(ctx context.Context, ownerID string) (*domain.ProfileSnapshot, error) {
	const query = `
		SELECT
			id,
			total_solves,
			pb_single,
			pb_single_date,
			pb_single_scramble,
			pb_ao5,
			pb_ao5_date,
			pb_ao12,
			pb_ao12_date,
			updated_at
		FROM profiles
		WHERE id = $1
		LIMIT 1`

	var (
		snap     domain.ProfileSnapshot
		single   sql.NullInt64
		singleAt sql.NullTime
		scramble sql.NullString
		ao5      sql.NullInt64
		ao5At    sql.NullTime
		ao12     sql.NullInt64
		ao12At   sql.NullTime
		updated  sql.NullTime
	)
	err := r.db.QueryRowContext(ctx, query, ownerID).Scan(
		&snap.OwnerID,
		&snap.TotalSolves,
		&single,
		&singleAt,
		&scramble,
		&ao5,
		&ao5At,
		&ao12,
		&ao12At,
		&updated,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("select profile: %w", err)
	}
	snap.PBSingle = int64Ptr(single)
	snap.PBSingleDate = timePtr(singleAt)
	snap.PBSingleScramble = stringPtr(scramble)
	snap.PBAo5 = int64Ptr(ao5)
	snap.PBAo5Date = timePtr(ao5At)
	snap.PBAo12 = int64Ptr(ao12)
	snap.PBAo12Date = timePtr(ao12At)
	if updated.Valid {
		snap.UpdatedAt = updated.Time
	}
	return &snap, nil
}

func (r *Postgres) UpdateProfileSnapshot(ctx context.Context, snap *domain.ProfileSnapshot) error {
	if snap == nil {
		return fmt.Errorf("nil profile snapshot")
	}
	const query = `
		INSERT INTO profiles (
			id,
			total_solves,
			pb_single,
			pb_single_date,
			pb_single_scramble,
			pb_ao5,
			pb_ao5_date,
			pb_ao12,
			pb_ao12_date,
			updated_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, NOW())
		ON CONFLICT (id)
		DO UPDATE SET
			total_solves = EXCLUDED.total_solves,
			pb_single = EXCLUDED.pb_single,
			pb_single_date = EXCLUDED.pb_single_date,
			pb_single_scramble = EXCLUDED.pb_single_scramble,
			pb_ao5 = EXCLUDED.pb_ao5,
			pb_ao5_date = EXCLUDED.pb_ao5_date,
			pb_ao12 = EXCLUDED.pb_ao12,
			pb_ao12_date = EXCLUDED.pb_ao12_date,
			updated_at = NOW()`

	_, err := r.db.ExecContext(
		ctx,
		query,
		snap.OwnerID,
		snap.TotalSolves,
		nullableInt64(snap.PBSingle),
		nullableTime(snap.PBSingleDate),
		nullableString(snap.PBSingleScramble),
		nullableInt64(snap.PBAo5),
		nullableTime(snap.PBAo5Date),
		nullableInt64(snap.PBAo12),
		nullableTime(snap.PBAo12Date),
	)
	if err != nil {
		return fmt.Errorf("upsert profile: %w", err)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanPgSolve(row rowScanner) (*domain.Solve, error) {
	var (
		s       domain.Solve
		penalty string
		deleted sql.NullTime
	)
	if err := row.Scan(&s.ID, &s.OwnerID, &s.TimeMs, &s.Scramble, &penalty, &s.CreatedAt, &deleted); err != nil {
		return nil, err
	}
	s.Penalty = parseStoredPenalty(penalty)
	s.DeletedAt = timePtr(deleted)
	return &s, nil
}

func collectPgSolves(rows *sql.Rows, capHint int) ([]*domain.Solve, error) {
	defer rows.Close()
	out := make([]*domain.Solve, 0, capHint)
	for rows.Next() {
		s, err := scanPgSolve(rows)
		if err != nil {
			return nil, fmt.Errorf("scan solve: %w", err)
		}
		out = append(out, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate solves: %w", err)
	}
	return out, nil
}

func requireAffected(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *Postgres) Ping(ctx context.Context) error { return r.db.PingContext(ctx) }

func (r *Postgres) ListOwners(ctx context.Context) ([]string, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT DISTINCT owner_id FROM solves WHERE deleted_at IS NULL ORDER BY owner_id`)
	if err != nil {
		return nil, fmt.Errorf("list owners: %w", err)
	}
	defer rows.Close()
	return collectOwners(rows)
}

func collectOwners(rows *sql.Rows) ([]string, error) {
	var out []string
	for rows.Next() {
		var owner string
		if err := rows.Scan(&owner); err != nil {
			return nil, err
		}
		out = append(out, owner)
	}
	return out, rows.Err()
}
