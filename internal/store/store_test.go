package store

import (
	"context"
	"errors"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/park285/cubetimer/internal/cache"
	"github.com/park285/cubetimer/internal/domain"
	"github.com/redis/go-redis/v9"
)

// steppingNow returns a clock that advances one second per call.
func steppingNow() func() time.Time {
	var mu sync.Mutex
	t := time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)
	return func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		t = t.Add(time.Second)
		return t
	}
}

func backends(t *testing.T) map[string]Store {
	t.Helper()
	out := map[string]Store{
		"memory": NewMemory(WithNow(steppingNow())),
	}

	lite, err := OpenSQLite(":memory:", steppingNow())
	if err != nil {
		t.Fatalf("OpenSQLite: %v", err)
	}
	t.Cleanup(func() { _ = lite.Close() })
	out["sqlite"] = lite

	if dsn := os.Getenv("CUBETIMER_TEST_DATABASE_URL"); dsn != "" {
		db, err := OpenPostgres(context.Background(), dsn)
		if err != nil {
			t.Fatalf("OpenPostgres: %v", err)
		}
		t.Cleanup(func() { _ = db.Close() })
		out["postgres"] = NewPostgres(db)
	}
	return out
}

func create(t *testing.T, s Store, owner string, ms int64) *domain.Solve {
	t.Helper()
	solve, err := s.CreateSolve(context.Background(), domain.NewSolve{OwnerID: owner, TimeMs: ms, Scramble: "R U F"})
	if err != nil {
		t.Fatalf("CreateSolve: %v", err)
	}
	return solve
}

func TestStoreContract(t *testing.T) {
	for name, s := range backends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			owner := "owner-" + name + "-" + time.Now().Format("150405.000000")

			a := create(t, s, owner, 10000)
			b := create(t, s, owner, 11000)
			c := create(t, s, owner, 12000)
			create(t, s, owner+"-other", 9000)

			if a.ID == "" || a.Penalty != domain.PenaltyNone || a.CreatedAt.IsZero() {
				t.Fatalf("unexpected created solve %+v", a)
			}

			all, err := s.GetAllSolves(ctx, owner, 0)
			if err != nil {
				t.Fatalf("GetAllSolves: %v", err)
			}
			if len(all) != 3 || all[0].ID != a.ID || all[2].ID != c.ID {
				t.Fatalf("history should be oldest first and owner scoped: %+v", all)
			}

			page, err := s.ListSolves(ctx, owner, Page{Limit: 2})
			if err != nil {
				t.Fatalf("ListSolves: %v", err)
			}
			if len(page) != 2 || page[0].ID != c.ID || page[1].ID != b.ID {
				t.Fatalf("listing should be newest first: %+v", page)
			}
			page, _ = s.ListSolves(ctx, owner, Page{Limit: 2, Offset: 2})
			if len(page) != 1 || page[0].ID != a.ID {
				t.Fatalf("second page should hold the oldest solve: %+v", page)
			}

			if err := s.UpdateSolvePenalty(ctx, owner, b.ID, domain.PenaltyPlusTwo); err != nil {
				t.Fatalf("UpdateSolvePenalty: %v", err)
			}
			if err := s.UpdateSolvePenalty(ctx, owner+"-other", b.ID, domain.PenaltyDNF); !errors.Is(err, ErrNotFound) {
				t.Fatalf("foreign owner update should be ErrNotFound, got %v", err)
			}

			if err := s.SoftDeleteSolve(ctx, owner, a.ID); err != nil {
				t.Fatalf("SoftDeleteSolve: %v", err)
			}
			if err := s.SoftDeleteSolve(ctx, owner, a.ID); !errors.Is(err, ErrNotFound) {
				t.Fatalf("second delete should be ErrNotFound, got %v", err)
			}
			if err := s.UpdateSolvePenalty(ctx, owner, a.ID, domain.PenaltyDNF); !errors.Is(err, ErrNotFound) {
				t.Fatalf("deleted solve must not be updated, got %v", err)
			}

			n, err := s.CountSolves(ctx, owner)
			if err != nil || n != 2 {
				t.Fatalf("CountSolves = %d, %v; want 2", n, err)
			}
			all, _ = s.GetAllSolves(ctx, owner, 0)
			if len(all) != 2 || all[0].ID != b.ID || all[0].Penalty != domain.PenaltyPlusTwo {
				t.Fatalf("deleted solve should be gone and penalty kept: %+v", all)
			}
			if all[0].TimeMs != 11000 {
				t.Fatalf("raw time must not change with the penalty, got %d", all[0].TimeMs)
			}

			limited, _ := s.GetAllSolves(ctx, owner, 1)
			if len(limited) != 1 || limited[0].ID != b.ID {
				t.Fatalf("limit should keep the oldest solves: %+v", limited)
			}
		})
	}
}

func TestTiedTimestampsOrderConsistently(t *testing.T) {
	frozen := func() time.Time { return time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC) }
	lite, err := OpenSQLite(":memory:", frozen)
	if err != nil {
		t.Fatalf("OpenSQLite: %v", err)
	}
	t.Cleanup(func() { _ = lite.Close() })
	stores := map[string]Store{
		"memory": NewMemory(WithNow(frozen)),
		"sqlite": lite,
	}

	for name, s := range stores {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			for i := 0; i < 5; i++ {
				create(t, s, "tied", int64(10000+i))
			}
			history, err := s.GetAllSolves(ctx, "tied", 0)
			if err != nil {
				t.Fatalf("GetAllSolves: %v", err)
			}
			var listed []*domain.Solve
			for offset := 0; offset < 5; offset += 2 {
				page, err := s.ListSolves(ctx, "tied", Page{Limit: 2, Offset: offset})
				if err != nil {
					t.Fatalf("ListSolves: %v", err)
				}
				listed = append(listed, page...)
			}
			if len(history) != 5 || len(listed) != 5 {
				t.Fatalf("history=%d listed=%d; want 5 each", len(history), len(listed))
			}
			for i := range history {
				if listed[len(listed)-1-i].ID != history[i].ID {
					t.Fatalf("listing is not the reverse of history at %d", i)
				}
			}
		})
	}
}

func TestPostgresOrderingHasTieBreak(t *testing.T) {
	compact := func(q string) string { return strings.Join(strings.Fields(q), " ") }
	if !strings.Contains(compact(pgListSolvesQuery), "ORDER BY created_at DESC, id DESC") {
		t.Fatalf("listing query must break ties on id: %s", compact(pgListSolvesQuery))
	}
	if !strings.Contains(compact(pgHistoryQuery), "ORDER BY created_at ASC, id ASC") {
		t.Fatalf("history query must break ties on id: %s", compact(pgHistoryQuery))
	}
}

func TestProfileSnapshotOverwrite(t *testing.T) {
	for name, s := range backends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			owner := "profile-" + name + "-" + time.Now().Format("150405.000000")

			got, err := s.GetProfileSnapshot(ctx, owner)
			if err != nil || got != nil {
				t.Fatalf("missing profile should be nil, nil; got %+v %v", got, err)
			}

			single := int64(9000)
			when := time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC)
			scr := "R U R'"
			ao5 := int64(10500)
			first := &domain.ProfileSnapshot{
				OwnerID: owner, TotalSolves: 5,
				PBSingle: &single, PBSingleDate: &when, PBSingleScramble: &scr,
				PBAo5: &ao5, PBAo5Date: &when,
			}
			if err := s.UpdateProfileSnapshot(ctx, first); err != nil {
				t.Fatalf("UpdateProfileSnapshot: %v", err)
			}
			got, err = s.GetProfileSnapshot(ctx, owner)
			if err != nil || !got.Equal(first) {
				t.Fatalf("round trip mismatch: %+v %v", got, err)
			}

			// nil fields must clear what was there
			cleared := &domain.ProfileSnapshot{OwnerID: owner, TotalSolves: 0}
			if err := s.UpdateProfileSnapshot(ctx, cleared); err != nil {
				t.Fatalf("UpdateProfileSnapshot: %v", err)
			}
			got, _ = s.GetProfileSnapshot(ctx, owner)
			if got.PBSingle != nil || got.PBAo5 != nil || got.PBSingleScramble != nil || got.TotalSolves != 0 {
				t.Fatalf("overwrite should clear fields, got %+v", got)
			}
		})
	}
}

func TestCachedProfilesWriteThrough(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis: %v", err)
	}
	t.Cleanup(mr.Close)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	inner := NewMemory()
	s := NewCachedProfiles(inner, cache.NewFromClient(rdb, "ct:", nil), time.Hour, nil)
	ctx := context.Background()

	pb := int64(8000)
	if err := s.UpdateProfileSnapshot(ctx, &domain.ProfileSnapshot{OwnerID: "u1", TotalSolves: 1, PBSingle: &pb}); err != nil {
		t.Fatalf("UpdateProfileSnapshot: %v", err)
	}
	if !mr.Exists("ct:profile:u1") {
		t.Fatalf("update should write through to redis")
	}

	// change the inner store behind the cache; reads keep hitting redis
	_ = inner.UpdateProfileSnapshot(ctx, &domain.ProfileSnapshot{OwnerID: "u1", TotalSolves: 99})
	got, err := s.GetProfileSnapshot(ctx, "u1")
	if err != nil || got.TotalSolves != 1 || got.PBSingle == nil || *got.PBSingle != 8000 {
		t.Fatalf("expected cached snapshot, got %+v %v", got, err)
	}

	mr.FlushAll()
	got, _ = s.GetProfileSnapshot(ctx, "u1")
	if got.TotalSolves != 99 {
		t.Fatalf("miss should fall through to the inner store, got %+v", got)
	}
	if !mr.Exists("ct:profile:u1") {
		t.Fatalf("miss should repopulate the cache")
	}

	// solve operations pass straight through
	if _, err := s.CreateSolve(ctx, domain.NewSolve{OwnerID: "u1", TimeMs: 1000}); err != nil {
		t.Fatalf("CreateSolve: %v", err)
	}
	if n, _ := s.CountSolves(ctx, "u1"); n != 1 {
		t.Fatalf("expected 1 solve through the decorator, got %d", n)
	}
}

func TestMemoryRejectsEmptyOwner(t *testing.T) {
	if _, err := NewMemory().CreateSolve(context.Background(), domain.NewSolve{TimeMs: 1}); err == nil {
		t.Fatalf("expected error for empty owner")
	}
}

func TestListOwners(t *testing.T) {
	ctx := context.Background()
	for name, s := range backends(t) {
		if name == "postgres" {
			continue
		}
		t.Run(name, func(t *testing.T) {
			lister, ok := s.(OwnerLister)
			if !ok {
				t.Fatalf("%s should list owners", name)
			}
			create(t, s, "zeta", 9000)
			gone := create(t, s, "alpha", 8000)
			create(t, s, "mid", 7000)
			if err := s.SoftDeleteSolve(ctx, "alpha", gone.ID); err != nil {
				t.Fatalf("SoftDeleteSolve: %v", err)
			}
			owners, err := lister.ListOwners(ctx)
			if err != nil {
				t.Fatalf("ListOwners: %v", err)
			}
			if strings.Join(owners, ",") != "mid,zeta" {
				t.Fatalf("unexpected owners %v", owners)
			}
		})
	}
}
