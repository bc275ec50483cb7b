package backend

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/park285/cubetimer/internal/domain"
	"github.com/park285/cubetimer/internal/store"
)

var _ store.Store = (*Client)(nil)

// solveRow mirrors the solves table; the owner column is user_id.
type solveRow struct {
	ID        string     `json:"id,omitempty"`
	UserID    string     `json:"user_id"`
	TimeMs    int64      `json:"time_ms"`
	Scramble  string     `json:"scramble"`
	Penalty   string     `json:"penalty"`
	CreatedAt *time.Time `json:"created_at,omitempty"`
	DeletedAt *time.Time `json:"deleted_at,omitempty"`
}

func (r solveRow) toDomain() *domain.Solve {
	p, ok := domain.ParsePenalty(r.Penalty)
	if !ok {
		p = domain.PenaltyNone
	}
	s := &domain.Solve{
		ID:       r.ID,
		OwnerID:  r.UserID,
		TimeMs:   r.TimeMs,
		Scramble: r.Scramble,
		Penalty:  p,
	}
	if r.CreatedAt != nil {
		s.CreatedAt = r.CreatedAt.UTC()
	}
	if r.DeletedAt != nil {
		at := r.DeletedAt.UTC()
		s.DeletedAt = &at
	}
	return s
}

// profileRow is sent in full on every update so nil values clear columns.
type profileRow struct {
	ID               string     `json:"id"`
	TotalSolves      int        `json:"total_solves"`
	PBSingle         *int64     `json:"pb_single"`
	PBSingleDate     *time.Time `json:"pb_single_date"`
	PBSingleScramble *string    `json:"pb_single_scramble"`
	PBAo5            *int64     `json:"pb_ao5"`
	PBAo5Date        *time.Time `json:"pb_ao5_date"`
	PBAo12           *int64     `json:"pb_ao12"`
	PBAo12Date       *time.Time `json:"pb_ao12_date"`
	UpdatedAt        *time.Time `json:"updated_at,omitempty"`
}

func eq(v string) string { return "eq." + v }

func solvesQuery(ownerID string, extra url.Values) string {
	q := url.Values{}
	q.Set("user_id", eq(ownerID))
	q.Set("deleted_at", "is.null")
	for k, vs := range extra {
		for _, v := range vs {
			q.Add(k, v)
		}
	}
	return "/solves?" + q.Encode()
}

func (c *Client) CreateSolve(ctx context.Context, in domain.NewSolve) (*domain.Solve, error) {
	row := solveRow{
		UserID:   in.OwnerID,
		TimeMs:   in.TimeMs,
		Scramble: in.Scramble,
		Penalty:  in.Penalty.String(),
	}
	var created []solveRow
	_, err := c.do(ctx, request{
		method: "POST",
		path:   "/solves",
		body:   row,
		prefer: "return=representation",
		out:    &created,
	})
	if err != nil {
		return nil, fmt.Errorf("insert solve: %w", err)
	}
	if len(created) == 0 {
		return nil, fmt.Errorf("insert solve: empty representation")
	}
	return created[0].toDomain(), nil
}

func (c *Client) patchLive(ctx context.Context, ownerID, solveID string, body map[string]any) error {
	extra := url.Values{}
	extra.Set("id", eq(solveID))
	extra.Set("select", "id")
	var touched []solveRow
	if _, err := c.do(ctx, request{
		method: "PATCH",
		path:   solvesQuery(ownerID, extra),
		body:   body,
		prefer: "return=representation",
		out:    &touched,
	}); err != nil {
		return err
	}
	if len(touched) == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (c *Client) UpdateSolvePenalty(ctx context.Context, ownerID, solveID string, penalty domain.Penalty) error {
	if err := c.patchLive(ctx, ownerID, solveID, map[string]any{"penalty": penalty.String()}); err != nil {
		return fmt.Errorf("update solve penalty: %w", err)
	}
	return nil
}

func (c *Client) SoftDeleteSolve(ctx context.Context, ownerID, solveID string) error {
	now := time.Now().UTC().Format(time.RFC3339Nano)
	if err := c.patchLive(ctx, ownerID, solveID, map[string]any{"deleted_at": now}); err != nil {
		return fmt.Errorf("soft delete solve: %w", err)
	}
	return nil
}

func (c *Client) listSolves(ctx context.Context, ownerID, order string, limit, offset int) ([]*domain.Solve, error) {
	extra := url.Values{}
	extra.Set("select", "*")
	extra.Set("order", order)
	extra.Set("limit", strconv.Itoa(limit))
	if offset > 0 {
		extra.Set("offset", strconv.Itoa(offset))
	}
	var rows []solveRow
	if _, err := c.do(ctx, request{method: "GET", path: solvesQuery(ownerID, extra), out: &rows}); err != nil {
		return nil, err
	}
	out := make([]*domain.Solve, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.toDomain())
	}
	return out, nil
}

func (c *Client) ListSolves(ctx context.Context, ownerID string, page store.Page) ([]*domain.Solve, error) {
	limit := page.Limit
	if limit <= 0 {
		limit = 50
	}
	solves, err := c.listSolves(ctx, ownerID, "created_at.desc,id.desc", limit, page.Offset)
	if err != nil {
		return nil, fmt.Errorf("select solves: %w", err)
	}
	return solves, nil
}

func (c *Client) GetAllSolves(ctx context.Context, ownerID string, limit int) ([]*domain.Solve, error) {
	if limit <= 0 {
		limit = store.DefaultHistoryCap
	}
	solves, err := c.listSolves(ctx, ownerID, "created_at.asc,id.asc", limit, 0)
	if err != nil {
		return nil, fmt.Errorf("select solve history: %w", err)
	}
	return solves, nil
}

func (c *Client) CountSolves(ctx context.Context, ownerID string) (int, error) {
	extra := url.Values{}
	extra.Set("select", "id")
	extra.Set("limit", "1")
	resp, err := c.do(ctx, request{method: "GET", path: solvesQuery(ownerID, extra), prefer: "count=exact"})
	if err != nil {
		return 0, fmt.Errorf("count solves: %w", err)
	}
	n, err := parseContentRangeTotal(resp.contentRange)
	if err != nil {
		return 0, fmt.Errorf("count solves: %w", err)
	}
	return n, nil
}

// parseContentRangeTotal reads N from "0-0/N" or "*/N".
func parseContentRangeTotal(v string) (int, error) {
	i := strings.LastIndexByte(v, '/')
	if i < 0 || i == len(v)-1 {
		return 0, fmt.Errorf("missing total in content-range %q", v)
	}
	total := v[i+1:]
	if total == "*" {
		return 0, fmt.Errorf("server did not report a total")
	}
	return strconv.Atoi(total)
}

func (c *Client) GetProfileSnapshot(ctx context.Context, ownerID string) (*domain.ProfileSnapshot, error) {
	q := url.Values{}
	q.Set("id", eq(ownerID))
	q.Set("select", "*")
	q.Set("limit", "1")
	var rows []profileRow
	if _, err := c.do(ctx, request{method: "GET", path: "/profiles?" + q.Encode(), out: &rows}); err != nil {
		return nil, fmt.Errorf("select profile: %w", err)
	}
	if len(rows) == 0 {
		return nil, nil
	}
	r := rows[0]
	snap := &domain.ProfileSnapshot{
		OwnerID:          r.ID,
		TotalSolves:      r.TotalSolves,
		PBSingle:         r.PBSingle,
		PBSingleDate:     r.PBSingleDate,
		PBSingleScramble: r.PBSingleScramble,
		PBAo5:            r.PBAo5,
		PBAo5Date:        r.PBAo5Date,
		PBAo12:           r.PBAo12,
		PBAo12Date:       r.PBAo12Date,
	}
	if r.UpdatedAt != nil {
		snap.UpdatedAt = *r.UpdatedAt
	}
	return snap, nil
}

func (c *Client) UpdateProfileSnapshot(ctx context.Context, snap *domain.ProfileSnapshot) error {
	if snap == nil {
		return fmt.Errorf("nil profile snapshot")
	}
	now := time.Now().UTC()
	row := profileRow{
		ID:               snap.OwnerID,
		TotalSolves:      snap.TotalSolves,
		PBSingle:         snap.PBSingle,
		PBSingleDate:     snap.PBSingleDate,
		PBSingleScramble: snap.PBSingleScramble,
		PBAo5:            snap.PBAo5,
		PBAo5Date:        snap.PBAo5Date,
		PBAo12:           snap.PBAo12,
		PBAo12Date:       snap.PBAo12Date,
		UpdatedAt:        &now,
	}
	_, err := c.do(ctx, request{
		method: "POST",
		path:   "/profiles?on_conflict=id",
		body:   row,
		prefer: "resolution=merge-duplicates,return=minimal",
	})
	if err != nil {
		return fmt.Errorf("upsert profile: %w", err)
	}
	return nil
}
