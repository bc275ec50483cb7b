package store

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/park285/cubetimer/internal/domain"
)

// Memory is an in-process Store used by tests and when no backend is configured.
type Memory struct {
	mu sync.RWMutex

	now func() time.Time

	solvesByID    map[string]*domain.Solve
	solvesByOwner map[string][]*domain.Solve // created order, oldest first
	profiles      map[string]*domain.ProfileSnapshot
}

type MemoryOption func(*Memory)

// WithNow overrides the created_at source.
func WithNow(fn func() time.Time) MemoryOption {
	return func(m *Memory) {
		if fn != nil {
			m.now = fn
		}
	}
}

func NewMemory(opts ...MemoryOption) *Memory {
	m := &Memory{
		now:           time.Now,
		solvesByID:    make(map[string]*domain.Solve),
		solvesByOwner: make(map[string][]*domain.Solve),
		profiles:      make(map[string]*domain.ProfileSnapshot),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

func (m *Memory) CreateSolve(ctx context.Context, in domain.NewSolve) (*domain.Solve, error) {
	owner := strings.TrimSpace(in.OwnerID)
	if owner == "" {
		return nil, fmt.Errorf("create solve: empty owner")
	}
	s := &domain.Solve{
		ID:        uuid.NewString(),
		OwnerID:   owner,
		TimeMs:    in.TimeMs,
		Scramble:  in.Scramble,
		Penalty:   normalizePenalty(in.Penalty),
		CreatedAt: m.now().UTC(),
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.solvesByID[s.ID] = s
	m.solvesByOwner[owner] = insertChronological(m.solvesByOwner[owner], s)
	return copySolve(s), nil
}

func (m *Memory) UpdateSolvePenalty(ctx context.Context, ownerID, solveID string, penalty domain.Penalty) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.liveLocked(ownerID, solveID)
	if !ok {
		return ErrNotFound
	}
	s.Penalty = normalizePenalty(penalty)
	return nil
}

func (m *Memory) SoftDeleteSolve(ctx context.Context, ownerID, solveID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.liveLocked(ownerID, solveID)
	if !ok {
		return ErrNotFound
	}
	at := m.now().UTC()
	s.DeletedAt = &at
	return nil
}

func (m *Memory) ListSolves(ctx context.Context, ownerID string, page Page) ([]*domain.Solve, error) {
	page = page.normalized()
	m.mu.RLock()
	defer m.mu.RUnlock()

	live := m.liveByOwnerLocked(ownerID)
	out := make([]*domain.Solve, 0, page.Limit)
	skipped := 0
	for i := len(live) - 1; i >= 0 && len(out) < page.Limit; i-- {
		if skipped < page.Offset {
			skipped++
			continue
		}
		out = append(out, copySolve(live[i]))
	}
	return out, nil
}

func (m *Memory) CountSolves(ctx context.Context, ownerID string) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.liveByOwnerLocked(ownerID)), nil
}

func (m *Memory) GetAllSolves(ctx context.Context, ownerID string, limit int) ([]*domain.Solve, error) {
	limit = historyLimit(limit)
	m.mu.RLock()
	defer m.mu.RUnlock()

	live := m.liveByOwnerLocked(ownerID)
	if len(live) > limit {
		live = live[:limit]
	}
	out := make([]*domain.Solve, 0, len(live))
	for _, s := range live {
		out = append(out, copySolve(s))
	}
	return out, nil
}

func (m *Memory) GetProfileSnapshot(ctx context.Context, ownerID string) (*domain.ProfileSnapshot, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if p, ok := m.profiles[strings.TrimSpace(ownerID)]; ok && p != nil {
		cp := *p
		return &cp, nil
	}
	return nil, nil
}

func (m *Memory) UpdateProfileSnapshot(ctx context.Context, snap *domain.ProfileSnapshot) error {
	if snap == nil {
		return fmt.Errorf("nil profile snapshot")
	}
	cp := *snap
	cp.UpdatedAt = m.now().UTC()
	m.mu.Lock()
	m.profiles[strings.TrimSpace(snap.OwnerID)] = &cp
	m.mu.Unlock()
	return nil
}

func (m *Memory) liveLocked(ownerID, solveID string) (*domain.Solve, bool) {
	s, ok := m.solvesByID[solveID]
	if !ok || s == nil || s.OwnerID != strings.TrimSpace(ownerID) || s.Deleted() {
		return nil, false
	}
	return s, true
}

func (m *Memory) liveByOwnerLocked(ownerID string) []*domain.Solve {
	all := m.solvesByOwner[strings.TrimSpace(ownerID)]
	live := make([]*domain.Solve, 0, len(all))
	for _, s := range all {
		if !s.Deleted() {
			live = append(live, s)
		}
	}
	return live
}

// insertChronological keeps the slice ordered by created_at, ties by insertion.
func insertChronological(list []*domain.Solve, s *domain.Solve) []*domain.Solve {
	i := sort.Search(len(list), func(i int) bool { return list[i].CreatedAt.After(s.CreatedAt) })
	list = append(list, nil)
	copy(list[i+1:], list[i:])
	list[i] = s
	return list
}

func copySolve(s *domain.Solve) *domain.Solve {
	cp := *s
	if s.DeletedAt != nil {
		at := *s.DeletedAt
		cp.DeletedAt = &at
	}
	return &cp
}

func normalizePenalty(p domain.Penalty) domain.Penalty {
	if p == "" {
		return domain.PenaltyNone
	}
	return p
}

func (m *Memory) ListOwners(ctx context.Context) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]string, 0, len(m.solvesByOwner))
	for owner := range m.solvesByOwner {
		if len(m.liveByOwnerLocked(owner)) > 0 {
			out = append(out, owner)
		}
	}
	sort.Strings(out)
	return out, nil
}
