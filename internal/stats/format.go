package stats

import (
	"fmt"
	"time"

	"github.com/hako/durafmt"
	"github.com/park285/cubetimer/internal/domain"
)

const notAvailable = "N/A"

// FormatTime renders milliseconds the way cubers read them: 9.87, 1:02.34,
// 1:00:02.34. Centiseconds are truncated, not rounded.
func FormatTime(ms int64) string {
	if ms < 0 {
		ms = 0
	}
	cs := (ms % 1000) / 10
	totalSec := ms / 1000
	sec := totalSec % 60
	min := (totalSec / 60) % 60
	hours := totalSec / 3600

	switch {
	case hours > 0:
		return fmt.Sprintf("%d:%02d:%02d.%02d", hours, min, sec, cs)
	case min > 0:
		return fmt.Sprintf("%d:%02d.%02d", min, sec, cs)
	default:
		return fmt.Sprintf("%d.%02d", sec, cs)
	}
}

// FormatOptional renders a nullable statistic, N/A when absent.
func FormatOptional(ms *int64) string {
	if ms == nil {
		return notAvailable
	}
	return FormatTime(*ms)
}

// FormatSolve includes the penalty: "DNF", or the effective time with a trailing "+".
func FormatSolve(s *domain.Solve) string {
	if s == nil {
		return notAvailable
	}
	ms, ok := EffectiveOf(s)
	if !ok {
		return "DNF"
	}
	if s.Penalty == domain.PenaltyPlusTwo {
		return FormatTime(ms) + "+"
	}
	return FormatTime(ms)
}

// FormatPractice describes accumulated solving time, e.g. "2 hours 5 minutes".
func FormatPractice(d time.Duration) string {
	if d <= 0 {
		return "0 seconds"
	}
	return durafmt.Parse(d.Truncate(time.Second)).LimitFirstN(2).String()
}

// TotalPractice sums raw times of every solve including DNFs.
func TotalPractice(solves []*domain.Solve) time.Duration {
	var total int64
	for _, s := range solves {
		if s != nil {
			total += s.TimeMs
		}
	}
	return time.Duration(total) * time.Millisecond
}
