package stats

import (
	"time"

	"github.com/park285/cubetimer/internal/domain"
)

// WindowResult is the best trimmed average found over all history.
type WindowResult struct {
	Average int64
	Solves  []*domain.Solve
	// Date is the created_at of the window's last solve.
	Date time.Time
}

// FindBestWindow slides a windowSize window over the whole history and
// returns the lowest valid average. The earliest window wins a tie.
func FindBestWindow(solves []*domain.Solve, windowSize int) *WindowResult {
	if windowSize <= 0 || len(solves) < windowSize {
		return nil
	}
	rule := RuleFor(windowSize)

	var best *WindowResult
	for i := 0; i+windowSize <= len(solves); i++ {
		window := solves[i : i+windowSize]
		avg := CalculateAverage(window, windowSize, rule.Exclude, rule.MaxDNFs)
		if avg == nil {
			continue
		}
		if best != nil && *avg >= best.Average {
			continue
		}
		last := window[len(window)-1]
		best = &WindowResult{
			Average: *avg,
			Solves:  append([]*domain.Solve(nil), window...),
			Date:    last.CreatedAt,
		}
	}
	return best
}

// FindPersonalBest returns the solve with the lowest effective time,
// ignoring DNFs. The earliest solve wins a tie.
func FindPersonalBest(solves []*domain.Solve) *domain.Solve {
	var (
		best   *domain.Solve
		bestMs int64
	)
	for _, s := range solves {
		ms, ok := EffectiveOf(s)
		if !ok {
			continue
		}
		if best == nil || ms < bestMs {
			best, bestMs = s, ms
		}
	}
	return best
}

// IsNewPersonalBest reports a strict improvement; no prior record always counts.
func IsNewPersonalBest(newTime int64, currentPB *int64) bool {
	if currentPB == nil {
		return true
	}
	return newTime < *currentPB
}
