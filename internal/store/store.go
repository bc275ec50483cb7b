// Package store defines the persistence contract for solves and profile
// snapshots, with memory, postgres and sqlite backends.
package store

import (
	"context"
	"errors"

	"github.com/park285/cubetimer/internal/domain"
)

// ErrNotFound is returned by writes that target a solve which does not
// exist, belongs to another owner, or is already soft-deleted.
var ErrNotFound = errors.New("solve not found")

// DefaultHistoryCap bounds GetAllSolves when the caller passes no limit.
const DefaultHistoryCap = 10000

const defaultPageSize = 50

// Page selects a slice of the created_at descending listing.
type Page struct {
	Limit  int
	Offset int
}

func (p Page) normalized() Page {
	if p.Limit <= 0 {
		p.Limit = defaultPageSize
	}
	if p.Offset < 0 {
		p.Offset = 0
	}
	return p
}

type SolveStore interface {
	CreateSolve(ctx context.Context, in domain.NewSolve) (*domain.Solve, error)
	UpdateSolvePenalty(ctx context.Context, ownerID, solveID string, penalty domain.Penalty) error
	SoftDeleteSolve(ctx context.Context, ownerID, solveID string) error
	// ListSolves returns non-deleted solves newest first.
	ListSolves(ctx context.Context, ownerID string, page Page) ([]*domain.Solve, error)
	CountSolves(ctx context.Context, ownerID string) (int, error)
	// GetAllSolves returns non-deleted solves oldest first, at most limit of them.
	GetAllSolves(ctx context.Context, ownerID string, limit int) ([]*domain.Solve, error)
}

type ProfileStore interface {
	// GetProfileSnapshot returns nil, nil when the owner has no snapshot yet.
	GetProfileSnapshot(ctx context.Context, ownerID string) (*domain.ProfileSnapshot, error)
	// UpdateProfileSnapshot overwrites every statistic field in one write.
	UpdateProfileSnapshot(ctx context.Context, snap *domain.ProfileSnapshot) error
}

type Store interface {
	SolveStore
	ProfileStore
}

func historyLimit(limit int) int {
	if limit <= 0 {
		return DefaultHistoryCap
	}
	return limit
}

// OwnerLister is implemented by backends that can enumerate every owner
// with live solves, sorted.
type OwnerLister interface {
	ListOwners(ctx context.Context) ([]string, error)
}

// Pinger reports whether the backend is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}
