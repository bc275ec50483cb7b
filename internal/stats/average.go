package stats

import (
	"math"
	"sort"

	"github.com/park285/cubetimer/internal/domain"
)

// WindowRule is the trimming policy for an average of Size solves.
type WindowRule struct {
	Size    int
	Exclude int
	MaxDNFs int
}

var (
	RuleAo5   = WindowRule{Size: 5, Exclude: 1, MaxDNFs: 1}
	RuleAo12  = WindowRule{Size: 12, Exclude: 1, MaxDNFs: 1}
	RuleAo50  = WindowRule{Size: 50, Exclude: 3, MaxDNFs: 3}
	RuleAo100 = WindowRule{Size: 100, Exclude: 5, MaxDNFs: 5}
)

// RuleFor returns the trimming rule for a window size. Sizes without a fixed
// rule trim 5% from each end, rounded up, and tolerate as many DNFs as they trim.
func RuleFor(size int) WindowRule {
	switch size {
	case 5:
		return RuleAo5
	case 12:
		return RuleAo12
	case 50:
		return RuleAo50
	case 100:
		return RuleAo100
	}
	trim := int(math.Ceil(float64(size) * 0.05))
	if trim < 1 {
		trim = 1
	}
	return WindowRule{Size: size, Exclude: trim, MaxDNFs: trim}
}

type windowEntry struct {
	ms  int64
	dnf bool
}

// CalculateAverage returns the trimmed mean of the last requiredCount solves,
// rounded to the nearest millisecond. DNFs that survive trimming are left out
// of the mean. nil means there is no valid average: not enough solves, more
// than maxDNFs DNFs, or no numeric value left after trimming.
func CalculateAverage(solves []*domain.Solve, requiredCount, excludeCount, maxDNFs int) *int64 {
	if requiredCount <= 0 || len(solves) < requiredCount {
		return nil
	}
	window := solves[len(solves)-requiredCount:]

	entries := make([]windowEntry, 0, len(window))
	dnfs := 0
	for _, s := range window {
		ms, ok := EffectiveOf(s)
		if !ok {
			dnfs++
		}
		entries = append(entries, windowEntry{ms: ms, dnf: !ok})
	}
	if dnfs > maxDNFs {
		return nil
	}

	// DNF sorts after every numeric value.
	sort.SliceStable(entries, func(i, j int) bool {
		if entries[i].dnf != entries[j].dnf {
			return !entries[i].dnf
		}
		return entries[i].ms < entries[j].ms
	})

	if excludeCount < 0 {
		excludeCount = 0
	}
	if 2*excludeCount >= len(entries) {
		return nil
	}
	kept := entries[excludeCount : len(entries)-excludeCount]

	var sum int64
	n := 0
	for _, e := range kept {
		if e.dnf {
			continue
		}
		sum += e.ms
		n++
	}
	if n == 0 {
		return nil
	}
	avg := int64(math.Round(float64(sum) / float64(n)))
	return &avg
}

// Average applies a WindowRule to the most recent solves.
func Average(solves []*domain.Solve, rule WindowRule) *int64 {
	return CalculateAverage(solves, rule.Size, rule.Exclude, rule.MaxDNFs)
}

func CalculateAo5(solves []*domain.Solve) *int64   { return Average(solves, RuleAo5) }
func CalculateAo12(solves []*domain.Solve) *int64  { return Average(solves, RuleAo12) }
func CalculateAo100(solves []*domain.Solve) *int64 { return Average(solves, RuleAo100) }

// Mean is the plain mean of every non-DNF solve, nil when there are none.
func Mean(solves []*domain.Solve) *int64 {
	var sum int64
	n := 0
	for _, s := range solves {
		if ms, ok := EffectiveOf(s); ok {
			sum += ms
			n++
		}
	}
	if n == 0 {
		return nil
	}
	m := int64(math.Round(float64(sum) / float64(n)))
	return &m
}
