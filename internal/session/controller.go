// Package session ties one signed-in user's timer to persistence, stats
// reconciliation and the UI event stream.
package session

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/park285/cubetimer/internal/domain"
	"github.com/park285/cubetimer/internal/eventbus"
	"github.com/park285/cubetimer/internal/msgcat"
	"github.com/park285/cubetimer/internal/reconcile"
	"github.com/park285/cubetimer/internal/scramble"
	"github.com/park285/cubetimer/internal/stats"
	"github.com/park285/cubetimer/internal/store"
	"github.com/park285/cubetimer/internal/timer"
	"go.uber.org/zap"
)

var (
	ErrUnauthenticated = errors.New("session: not signed in")
	ErrNonPositiveTime = errors.New("session: solve time must be positive")
	ErrNotStopped      = errors.New("session: timer is not stopped")
)

const saveTimeout = 15 * time.Second

type Config struct {
	HoldDelay       time.Duration
	RefreshInterval time.Duration
	HistoryCap      int
}

type Deps struct {
	Store      store.Store
	Reconciler *reconcile.Reconciler
	// Records is the bus the reconciler publishes to; the controller
	// forwards the events that belong to its owner.
	Records   *eventbus.Bus[domain.RecordEvent]
	Scrambles *scramble.Generator
	Messages  *msgcat.Catalog
	Clock     timer.Clock
	Logger    *zap.Logger
}

// pendingSolve tracks the asynchronous create started when the timer stops.
// created closes once solve/err are set; settled closes after the
// follow-up reconciliation.
type pendingSolve struct {
	timeMs  int64
	created chan struct{}
	settled chan struct{}
	solve   *domain.Solve
	err     error
}

type Controller struct {
	ownerID  string
	store    store.Store
	recon    *reconcile.Reconciler
	scram    *scramble.Generator
	msgs     *msgcat.Catalog
	logger   *zap.Logger
	cfg      Config
	machine  *timer.Machine
	events   *eventbus.Bus[Event]
	unsubs   []func()
	ctx      context.Context
	cancel   context.CancelFunc
	inflight sync.WaitGroup

	mu       sync.Mutex
	scramble string
	pending  *pendingSolve
	closed   bool
}

// New builds a controller for ownerID. An empty owner is allowed so the
// shell can run an unsigned timer; every persisting call then fails with
// ErrUnauthenticated.
func New(ownerID string, deps Deps, cfg Config) *Controller {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	if deps.Scrambles == nil {
		deps.Scrambles = scramble.NewGenerator(scramble.DefaultLength, nil)
	}
	if cfg.HistoryCap <= 0 {
		cfg.HistoryCap = store.DefaultHistoryCap
	}
	ctx, cancel := context.WithCancel(context.Background())

	c := &Controller{
		ownerID: strings.TrimSpace(ownerID),
		store:   deps.Store,
		recon:   deps.Reconciler,
		scram:   deps.Scrambles,
		msgs:    deps.Messages,
		logger:  logger.With(zap.String("owner_id", strings.TrimSpace(ownerID))),
		cfg:     cfg,
		events:  eventbus.New[Event](),
		ctx:     ctx,
		cancel:  cancel,
	}

	opts := []timer.Option{timer.WithLogger(logger), timer.OnStop(c.onStop)}
	if deps.Clock != nil {
		opts = append(opts, timer.WithClock(deps.Clock))
	}
	if cfg.HoldDelay > 0 {
		opts = append(opts, timer.WithHoldDelay(cfg.HoldDelay))
	}
	if cfg.RefreshInterval > 0 {
		opts = append(opts, timer.WithRefreshInterval(cfg.RefreshInterval))
	}
	c.machine = timer.NewMachine(opts...)
	c.unsubs = append(c.unsubs, c.machine.OnChange(func(s timer.Snapshot) {
		snap := s
		c.publish(Event{Type: EventState, State: &snap})
	}))
	if deps.Records != nil {
		c.unsubs = append(c.unsubs, deps.Records.Subscribe(c.forwardRecord))
	}

	c.scramble = c.scram.Next().String()
	return c
}

func (c *Controller) OwnerID() string { return c.ownerID }

// Subscribe registers fn for every event this controller emits.
func (c *Controller) Subscribe(fn func(Event)) (unsubscribe func()) {
	return c.events.Subscribe(fn)
}

func (c *Controller) Press()   { c.machine.Press() }
func (c *Controller) Release() { c.machine.Release() }

func (c *Controller) Snapshot() timer.Snapshot { return c.machine.Snapshot() }

func (c *Controller) Scramble() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.scramble
}

// Reset abandons the current attempt without recording anything.
func (c *Controller) Reset() {
	c.machine.Reset()
	c.mu.Lock()
	c.pending = nil
	c.mu.Unlock()
}

// onStop runs on the pressing goroutine right after the timer stops.
func (c *Controller) onStop(timeMs int64) {
	p := &pendingSolve{
		timeMs:  timeMs,
		created: make(chan struct{}),
		settled: make(chan struct{}),
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.pending = p
	scr := c.scramble
	willSave := timeMs > 0 && c.ownerID != ""
	if willSave {
		c.inflight.Add(1)
	}
	c.mu.Unlock()

	switch {
	case timeMs <= 0:
		c.logger.Error("solve_rejected", zap.Int64("time_ms", timeMs), zap.Error(ErrNonPositiveTime))
		p.err = ErrNonPositiveTime
		close(p.created)
		close(p.settled)
		c.publish(Event{
			Type:    EventError,
			Err:     ErrNonPositiveTime,
			Message: c.msgs.RenderOr("solve.rejected", nil, "Ignored a solve with an invalid time."),
		})
		return
	case c.ownerID == "":
		p.err = ErrUnauthenticated
		close(p.created)
		close(p.settled)
		c.publishSaveFailed(ErrUnauthenticated)
		return
	}

	go func() {
		defer c.inflight.Done()
		defer close(p.settled)

		ctx, cancel := context.WithTimeout(c.ctx, saveTimeout)
		defer cancel()
		solve, err := c.store.CreateSolve(ctx, domain.NewSolve{
			OwnerID:  c.ownerID,
			TimeMs:   timeMs,
			Scramble: scr,
			Penalty:  domain.PenaltyNone,
		})
		if err != nil {
			p.err = fmt.Errorf("save solve: %w", err)
			c.logger.Error("solve_save_failed", zap.Int64("time_ms", timeMs), zap.Error(err))
			c.publishSaveFailed(p.err)
			close(p.created)
			return
		}
		p.solve = solve

		c.logger.Info("solve_saved", zap.String("solve_id", solve.ID), zap.Int64("time_ms", timeMs))
		// subscribers own their copy; p.solve stays private to the session
		published := *solve
		c.publish(Event{
			Type:    EventSolveSaved,
			Solve:   &published,
			Message: c.msgs.RenderOr("solve.saved", map[string]any{"Value": stats.FormatSolve(solve)}, "Solve saved."),
		})
		close(p.created)
		c.reconcile(ctx)
	}()
}

// ChoosePenalty finalizes the stopped solve. DNF and +2 wait for the save
// to land and then update it; OK keeps it as recorded. The timer returns to
// idle with a fresh scramble even when the save failed, and that failure
// is returned.
func (c *Controller) ChoosePenalty(ctx context.Context, choice PenaltyChoice) error {
	if c.machine.State() != timer.StateStopped {
		return ErrNotStopped
	}
	c.mu.Lock()
	p := c.pending
	c.mu.Unlock()

	var err error
	if p != nil {
		select {
		case <-p.created:
		case <-ctx.Done():
			return ctx.Err()
		}
		err = p.err
		if err == nil && choice.penalty() != domain.PenaltyNone {
			// the create's own reconciliation must finish or ours is dropped
			select {
			case <-p.settled:
			case <-ctx.Done():
				return ctx.Err()
			}
			err = c.applyPenalty(ctx, p.solve, choice.penalty())
		}
	}

	c.machine.Finish()
	c.mu.Lock()
	if c.pending == p {
		c.pending = nil
	}
	c.scramble = c.scram.Next().String()
	next := c.scramble
	c.mu.Unlock()
	c.publish(Event{Type: EventScramble, Scramble: next})
	return err
}

func (c *Controller) applyPenalty(ctx context.Context, solve *domain.Solve, penalty domain.Penalty) error {
	if err := c.store.UpdateSolvePenalty(ctx, c.ownerID, solve.ID, penalty); err != nil {
		c.logger.Error("solve_penalty_failed", zap.String("solve_id", solve.ID), zap.Error(err))
		c.publish(Event{Type: EventError, Err: err, Message: err.Error()})
		return fmt.Errorf("update penalty: %w", err)
	}
	c.reconcile(ctx)
	return nil
}

// DeleteSolve tombstones one of the owner's solves and rebuilds the profile.
func (c *Controller) DeleteSolve(ctx context.Context, solveID string) error {
	if c.ownerID == "" {
		return ErrUnauthenticated
	}
	if err := c.store.SoftDeleteSolve(ctx, c.ownerID, solveID); err != nil {
		return fmt.Errorf("delete solve: %w", err)
	}
	c.publish(Event{
		Type:    EventSolveDeleted,
		Solve:   &domain.Solve{ID: solveID, OwnerID: c.ownerID},
		Message: c.msgs.RenderOr("solve.deleted", nil, "Solve deleted."),
	})
	c.reconcile(ctx)
	return nil
}

// History lists non-deleted solves newest first.
func (c *Controller) History(ctx context.Context, limit, offset int) ([]*domain.Solve, error) {
	if c.ownerID == "" {
		return nil, ErrUnauthenticated
	}
	return c.store.ListSolves(ctx, c.ownerID, store.Page{Limit: limit, Offset: offset})
}

func (c *Controller) Count(ctx context.Context) (int, error) {
	if c.ownerID == "" {
		return 0, ErrUnauthenticated
	}
	return c.store.CountSolves(ctx, c.ownerID)
}

// Stats is the live view over the current history plus the stored records.
type Stats struct {
	Count    int
	Best     *domain.Solve
	Ao5      *int64
	Ao12     *int64
	Ao100    *int64
	Mean     *int64
	Practice time.Duration
	Profile  *domain.ProfileSnapshot
}

// Summary renders the stats block through the message catalog.
func (s *Stats) Summary(msgs *msgcat.Catalog) string {
	data := map[string]any{
		"Count":    s.Count,
		"Best":     stats.FormatSolve(s.Best),
		"Ao5":      stats.FormatOptional(s.Ao5),
		"Ao12":     stats.FormatOptional(s.Ao12),
		"Ao100":    stats.FormatOptional(s.Ao100),
		"Mean":     stats.FormatOptional(s.Mean),
		"Practice": stats.FormatPractice(s.Practice),
	}
	fallback := fmt.Sprintf("Solves: %d  Ao5: %s  Ao12: %s", s.Count, data["Ao5"], data["Ao12"])
	return msgs.RenderOr("stats.summary", data, fallback)
}

func (c *Controller) CurrentStats(ctx context.Context) (*Stats, error) {
	if c.ownerID == "" {
		return nil, ErrUnauthenticated
	}
	solves, err := c.store.GetAllSolves(ctx, c.ownerID, c.cfg.HistoryCap)
	if err != nil {
		return nil, fmt.Errorf("load solves: %w", err)
	}
	profile, err := c.store.GetProfileSnapshot(ctx, c.ownerID)
	if err != nil {
		return nil, fmt.Errorf("load profile: %w", err)
	}
	return &Stats{
		Count:    len(solves),
		Best:     stats.FindPersonalBest(solves),
		Ao5:      stats.CalculateAo5(solves),
		Ao12:     stats.CalculateAo12(solves),
		Ao100:    stats.CalculateAo100(solves),
		Mean:     stats.Mean(solves),
		Practice: stats.TotalPractice(solves),
		Profile:  profile,
	}, nil
}

// Close stops the timer, detaches every subscription and waits for
// in-flight saves to give up.
func (c *Controller) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	c.mu.Unlock()

	c.machine.Close()
	for _, unsub := range c.unsubs {
		unsub()
	}
	c.cancel()
	c.inflight.Wait()
}

func (c *Controller) reconcile(ctx context.Context) {
	if c.recon == nil {
		return
	}
	c.recon.SyncAfterSolveChange(ctx, c.ownerID)
}

func (c *Controller) forwardRecord(ev domain.RecordEvent) {
	if ev.OwnerID != c.ownerID {
		return
	}
	rec := ev
	c.publish(Event{
		Type:    EventRecord,
		Record:  &rec,
		Message: c.msgs.RenderOr("record."+string(ev.Kind), map[string]any{"Value": ev.FormattedValue}, ev.FormattedValue),
	})
}

func (c *Controller) publishSaveFailed(err error) {
	reason := err.Error()
	key := "solve.save_failed"
	if errors.Is(err, ErrUnauthenticated) {
		key = "session.unauthenticated"
	}
	c.publish(Event{
		Type:    EventSolveSaveFailed,
		Err:     err,
		Message: c.msgs.RenderOr(key, map[string]any{"Reason": reason}, reason),
	})
}

func (c *Controller) publish(ev Event) {
	ev.OwnerID = c.ownerID
	c.events.Publish(ev)
}
