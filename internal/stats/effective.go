// Package stats holds the solve statistics used for personal bests and
// rolling averages. Every function expects solves in created_at ascending
// order and never re-sorts by time.
package stats

import "github.com/park285/cubetimer/internal/domain"

// Effective resolves a raw time and penalty into a comparable value.
// ok is false for DNF; the returned ms must not be used in that case.
func Effective(timeMs int64, penalty domain.Penalty) (ms int64, ok bool) {
	switch penalty {
	case domain.PenaltyDNF:
		return 0, false
	case domain.PenaltyPlusTwo:
		return timeMs + domain.PlusTwoMillis, true
	default:
		return timeMs, true
	}
}

// EffectiveOf is Effective applied to a solve. A nil solve counts as DNF.
func EffectiveOf(s *domain.Solve) (int64, bool) {
	if s == nil {
		return 0, false
	}
	return Effective(s.TimeMs, s.Penalty)
}

// IsDNF reports whether the solve has no valid time.
func IsDNF(s *domain.Solve) bool {
	_, ok := EffectiveOf(s)
	return !ok
}
