package domain

import (
	"strings"
	"time"
)

// Penalty is the judge's adjustment applied on top of a raw solve time.
type Penalty string

const (
	PenaltyNone    Penalty = "none"
	PenaltyPlusTwo Penalty = "+2"
	PenaltyDNF     Penalty = "DNF"
)

// PlusTwoMillis is the amount a +2 penalty adds to the raw time.
const PlusTwoMillis int64 = 2000

// ParsePenalty accepts the wire values plus a few shell aliases.
func ParsePenalty(s string) (Penalty, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "none", "ok":
		return PenaltyNone, true
	case "+2", "plus_two", "plus2":
		return PenaltyPlusTwo, true
	case "dnf":
		return PenaltyDNF, true
	default:
		return PenaltyNone, false
	}
}

func (p Penalty) String() string {
	if p == "" {
		return string(PenaltyNone)
	}
	return string(p)
}

// Solve is one timed attempt. TimeMs is the raw measurement and is never
// changed after creation; only Penalty and DeletedAt move.
type Solve struct {
	ID        string     `json:"id"`
	OwnerID   string     `json:"owner_id"`
	TimeMs    int64      `json:"time_ms"`
	Scramble  string     `json:"scramble"`
	Penalty   Penalty    `json:"penalty"`
	CreatedAt time.Time  `json:"created_at"`
	DeletedAt *time.Time `json:"deleted_at,omitempty"`
}

// Deleted reports whether the solve carries a tombstone.
func (s *Solve) Deleted() bool {
	return s != nil && s.DeletedAt != nil
}

// NewSolve is the payload for creating a solve; id and created_at come from the store.
type NewSolve struct {
	OwnerID  string  `json:"owner_id"`
	TimeMs   int64   `json:"time_ms"`
	Scramble string  `json:"scramble"`
	Penalty  Penalty `json:"penalty"`
}

// ProfileSnapshot is the cached per-user summary derived from the live solve set.
// Nil pointers mean "no valid value".
type ProfileSnapshot struct {
	OwnerID          string     `json:"owner_id"`
	TotalSolves      int        `json:"total_solves"`
	PBSingle         *int64     `json:"pb_single"`
	PBSingleDate     *time.Time `json:"pb_single_date"`
	PBSingleScramble *string    `json:"pb_single_scramble"`
	PBAo5            *int64     `json:"pb_ao5"`
	PBAo5Date        *time.Time `json:"pb_ao5_date"`
	PBAo12           *int64     `json:"pb_ao12"`
	PBAo12Date       *time.Time `json:"pb_ao12_date"`
	UpdatedAt        time.Time  `json:"updated_at"`
}

// Equal compares the statistic fields, ignoring UpdatedAt.
func (p *ProfileSnapshot) Equal(o *ProfileSnapshot) bool {
	if p == nil || o == nil {
		return p == o
	}
	return p.OwnerID == o.OwnerID &&
		p.TotalSolves == o.TotalSolves &&
		eqInt(p.PBSingle, o.PBSingle) &&
		eqTime(p.PBSingleDate, o.PBSingleDate) &&
		eqString(p.PBSingleScramble, o.PBSingleScramble) &&
		eqInt(p.PBAo5, o.PBAo5) &&
		eqTime(p.PBAo5Date, o.PBAo5Date) &&
		eqInt(p.PBAo12, o.PBAo12) &&
		eqTime(p.PBAo12Date, o.PBAo12Date)
}

func eqInt(a, b *int64) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

func eqTime(a, b *time.Time) bool {
	if a == nil || b == nil {
		return a == b
	}
	return a.Equal(*b)
}

func eqString(a, b *string) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}
