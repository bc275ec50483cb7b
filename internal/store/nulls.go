package store

import (
	"database/sql"
	"time"

	"github.com/park285/cubetimer/internal/domain"
)

func int64Ptr(v sql.NullInt64) *int64 {
	if !v.Valid {
		return nil
	}
	n := v.Int64
	return &n
}

func timePtr(v sql.NullTime) *time.Time {
	if !v.Valid {
		return nil
	}
	t := v.Time
	return &t
}

func stringPtr(v sql.NullString) *string {
	if !v.Valid {
		return nil
	}
	s := v.String
	return &s
}

func nullableInt64(p *int64) any {
	if p == nil {
		return nil
	}
	return *p
}

func nullableTime(p *time.Time) any {
	if p == nil {
		return nil
	}
	return p.UTC()
}

func nullableString(p *string) any {
	if p == nil {
		return nil
	}
	return *p
}

// parseStoredPenalty maps unknown values to none, matching Effective.
func parseStoredPenalty(s string) domain.Penalty {
	p, ok := domain.ParsePenalty(s)
	if !ok {
		return domain.PenaltyNone
	}
	return p
}
