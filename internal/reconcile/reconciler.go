// Package reconcile rebuilds a user's profile statistics from their full
// solve history and announces new personal bests.
package reconcile

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/park285/cubetimer/internal/domain"
	"github.com/park285/cubetimer/internal/eventbus"
	"github.com/park285/cubetimer/internal/stats"
	"github.com/park285/cubetimer/internal/store"
	"go.uber.org/zap"
)

var (
	ErrNoOwner    = errors.New("reconcile: missing owner id")
	ErrInProgress = errors.New("reconcile: already running for owner")
)

const defaultLockTTL = 30 * time.Second

// Locker is a cross-process guard; cache.CacheService satisfies it.
type Locker interface {
	TryLock(ctx context.Context, key string, ttl time.Duration) (release func(), ok bool, err error)
}

// Outcome is what one reconciliation computed and persisted.
type Outcome struct {
	Previous *domain.ProfileSnapshot
	Snapshot *domain.ProfileSnapshot
	Events   []domain.RecordEvent
}

type Option func(*Reconciler)

func WithLogger(l *zap.Logger) Option {
	return func(r *Reconciler) {
		if l != nil {
			r.logger = l
		}
	}
}

// WithHistoryCap bounds how many solves are fetched per owner.
func WithHistoryCap(n int) Option {
	return func(r *Reconciler) {
		if n > 0 {
			r.cap = n
		}
	}
}

// WithLocker adds a shared lock on top of the in-process guard, for
// deployments running more than one instance.
func WithLocker(l Locker, ttl time.Duration) Option {
	return func(r *Reconciler) {
		r.locker = l
		if ttl > 0 {
			r.lockTTL = ttl
		}
	}
}

// WithGuard shares the per-owner in-process guard between reconcilers, so
// several reconcilers over one history still drop overlapping runs.
func WithGuard(g *Guard) Option {
	return func(r *Reconciler) {
		if g != nil {
			r.guard = g
		}
	}
}

func WithNow(fn func() time.Time) Option {
	return func(r *Reconciler) {
		if fn != nil {
			r.now = fn
		}
	}
}

type Reconciler struct {
	store   store.Store
	bus     *eventbus.Bus[domain.RecordEvent]
	logger  *zap.Logger
	cap     int
	locker  Locker
	lockTTL time.Duration
	now     func() time.Time
	guard   *Guard
}

// New builds a reconciler. bus may be nil when nobody listens for records.
func New(st store.Store, bus *eventbus.Bus[domain.RecordEvent], opts ...Option) *Reconciler {
	r := &Reconciler{
		store:    st,
		bus:      bus,
		logger:   zap.NewNop(),
		cap:      store.DefaultHistoryCap,
		lockTTL:  defaultLockTTL,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.guard == nil {
		r.guard = NewGuard()
	}
	return r
}

// SyncAfterSolveChange runs after every solve creation, penalty change or
// deletion. It never returns an error: the solve is already saved and the
// snapshot can be rebuilt on the next change. A call that overlaps a
// running reconciliation for the same owner is dropped.
func (r *Reconciler) SyncAfterSolveChange(ctx context.Context, ownerID string) {
	out, err := r.run(ctx, ownerID)
	switch {
	case err == nil:
	case errors.Is(err, ErrInProgress):
		r.logger.Debug("profile_reconcile_skipped", zap.String("owner_id", ownerID))
		return
	case errors.Is(err, ErrNoOwner):
		r.logger.Error("profile_reconcile_aborted", zap.Error(err))
		return
	default:
		r.logger.Error("profile_reconcile_failed", zap.String("owner_id", ownerID), zap.Error(err))
		return
	}

	for _, ev := range out.Events {
		r.bus.Publish(ev)
	}
	if len(out.Events) > 0 {
		r.logger.Info("profile_records_improved",
			zap.String("owner_id", ownerID),
			zap.Int("count", len(out.Events)),
		)
	}
}

// Recompute is SyncAfterSolveChange without publishing, returning what it did.
func (r *Reconciler) Recompute(ctx context.Context, ownerID string) (*Outcome, error) {
	return r.run(ctx, ownerID)
}

func (r *Reconciler) run(ctx context.Context, ownerID string) (*Outcome, error) {
	ownerID = strings.TrimSpace(ownerID)
	if ownerID == "" {
		return nil, ErrNoOwner
	}
	if !r.guard.TryAcquire(ownerID) {
		return nil, ErrInProgress
	}
	defer r.guard.Release(ownerID)

	if r.locker != nil {
		unlock, ok, err := r.locker.TryLock(ctx, "reconcile:"+ownerID, r.lockTTL)
		if err != nil {
			return nil, fmt.Errorf("acquire reconcile lock: %w", err)
		}
		if !ok {
			return nil, ErrInProgress
		}
		defer unlock()
	}

	solves, err := r.store.GetAllSolves(ctx, ownerID, r.cap)
	if err != nil {
		return nil, fmt.Errorf("load solves: %w", err)
	}
	prev, err := r.store.GetProfileSnapshot(ctx, ownerID)
	if err != nil {
		return nil, fmt.Errorf("load profile: %w", err)
	}

	next := Compute(ownerID, solves)
	next.UpdatedAt = r.now().UTC()
	if err := r.store.UpdateProfileSnapshot(ctx, next); err != nil {
		return nil, fmt.Errorf("update profile: %w", err)
	}

	return &Outcome{
		Previous: prev,
		Snapshot: next,
		Events:   Improvements(prev, next),
	}, nil
}

// Guard marks owners with a reconciliation in flight.
type Guard struct {
	mu       sync.Mutex
	inFlight map[string]struct{}
}

func NewGuard() *Guard {
	return &Guard{inFlight: make(map[string]struct{})}
}

// TryAcquire reports false when ownerID is already held.
func (g *Guard) TryAcquire(ownerID string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	if _, busy := g.inFlight[ownerID]; busy {
		return false
	}
	g.inFlight[ownerID] = struct{}{}
	return true
}

func (g *Guard) Release(ownerID string) {
	g.mu.Lock()
	delete(g.inFlight, ownerID)
	g.mu.Unlock()
}

// Compute derives a snapshot from chronologically ordered, non-deleted
// solves. Metrics without a valid value stay nil.
func Compute(ownerID string, solves []*domain.Solve) *domain.ProfileSnapshot {
	snap := &domain.ProfileSnapshot{
		OwnerID:     ownerID,
		TotalSolves: len(solves),
	}

	if pb := stats.FindPersonalBest(solves); pb != nil {
		ms, _ := stats.EffectiveOf(pb)
		created := pb.CreatedAt
		scramble := pb.Scramble
		snap.PBSingle = &ms
		snap.PBSingleDate = &created
		snap.PBSingleScramble = &scramble
	}
	if w := stats.FindBestWindow(solves, 5); w != nil {
		avg, date := w.Average, w.Date
		snap.PBAo5 = &avg
		snap.PBAo5Date = &date
	}
	if w := stats.FindBestWindow(solves, 12); w != nil {
		avg, date := w.Average, w.Date
		snap.PBAo12 = &avg
		snap.PBAo12Date = &date
	}
	return snap
}

// Improvements lists the metrics on which next strictly beats prev. A
// metric that had no previous value counts as improved once it has one.
func Improvements(prev, next *domain.ProfileSnapshot) []domain.RecordEvent {
	if next == nil {
		return nil
	}
	if prev == nil {
		prev = &domain.ProfileSnapshot{}
	}

	var events []domain.RecordEvent
	add := func(kind domain.RecordKind, cur, old *int64) {
		if cur == nil || !stats.IsNewPersonalBest(*cur, old) {
			return
		}
		events = append(events, domain.RecordEvent{
			Kind:           kind,
			OwnerID:        next.OwnerID,
			ValueMs:        *cur,
			FormattedValue: stats.FormatTime(*cur),
		})
	}
	add(domain.RecordSingle, next.PBSingle, prev.PBSingle)
	add(domain.RecordAo5, next.PBAo5, prev.PBAo5)
	add(domain.RecordAo12, next.PBAo12, prev.PBAo12)
	return events
}
