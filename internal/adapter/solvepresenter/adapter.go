package solvepresenter

import (
	"time"

	"github.com/park285/cubetimer/internal/domain"
	"github.com/park285/cubetimer/internal/msgcat"
	"github.com/park285/cubetimer/internal/session"
	"github.com/park285/cubetimer/internal/stats"
	"github.com/park285/cubetimer/internal/timer"
	"github.com/park285/cubetimer/pkg/solvedto"
)

func ToDTOSolve(s *domain.Solve) *solvedto.Solve {
	if s == nil {
		return nil
	}
	return &solvedto.Solve{
		ID:        s.ID,
		TimeMs:    s.TimeMs,
		Display:   stats.FormatSolve(s),
		Penalty:   s.Penalty.String(),
		Scramble:  s.Scramble,
		CreatedAt: s.CreatedAt,
	}
}

func ToDTOHistory(solves []*domain.Solve, total, limit, offset int) *solvedto.HistoryPage {
	page := &solvedto.HistoryPage{
		Items:  make([]solvedto.Solve, 0, len(solves)),
		Total:  total,
		Limit:  limit,
		Offset: offset,
	}
	for _, s := range solves {
		if dto := ToDTOSolve(s); dto != nil {
			page.Items = append(page.Items, *dto)
		}
	}
	return page
}

func ToDTOProfile(p *domain.ProfileSnapshot) *solvedto.Profile {
	if p == nil {
		return nil
	}
	single := metric(p.PBSingle, p.PBSingleDate)
	if p.PBSingleScramble != nil {
		single.Scramble = *p.PBSingleScramble
	}
	return &solvedto.Profile{
		TotalSolves: p.TotalSolves,
		Single:      single,
		Ao5:         metric(p.PBAo5, p.PBAo5Date),
		Ao12:        metric(p.PBAo12, p.PBAo12Date),
		UpdatedAt:   p.UpdatedAt,
	}
}

func metric(v *int64, date *time.Time) solvedto.Metric {
	m := solvedto.Metric{Display: stats.FormatOptional(v), Date: date}
	if v != nil {
		val := *v
		m.Value = &val
	}
	return m
}

func ToDTOStats(s *session.Stats, msgs *msgcat.Catalog) *solvedto.Stats {
	if s == nil {
		return nil
	}
	return &solvedto.Stats{
		Count:    s.Count,
		Best:     stats.FormatSolve(s.Best),
		Ao5:      stats.FormatOptional(s.Ao5),
		Ao12:     stats.FormatOptional(s.Ao12),
		Ao100:    stats.FormatOptional(s.Ao100),
		Mean:     stats.FormatOptional(s.Mean),
		Practice: stats.FormatPractice(s.Practice),
		Summary:  s.Summary(msgs),
		Profile:  ToDTOProfile(s.Profile),
	}
}

func ToDTOTimer(s timer.Snapshot) *solvedto.TimerState {
	return &solvedto.TimerState{
		State:       string(s.State),
		ElapsedMs:   s.ElapsedMs(),
		Display:     stats.FormatTime(timer.RoundMs(s.Elapsed)),
		LastSolveMs: s.LastSolveMs(),
		KeyDown:     s.KeyDown,
	}
}

func ToDTORecord(r *domain.RecordEvent) *solvedto.Record {
	if r == nil {
		return nil
	}
	return &solvedto.Record{Kind: string(r.Kind), ValueMs: r.ValueMs, Display: r.FormattedValue}
}

// ToServerFrame maps a controller event onto the websocket frame.
func ToServerFrame(ev session.Event) solvedto.ServerFrame {
	frame := solvedto.ServerFrame{
		Type:     string(ev.Type),
		Scramble: ev.Scramble,
		Record:   ToDTORecord(ev.Record),
		Solve:    ToDTOSolve(ev.Solve),
		Message:  ev.Message,
	}
	if ev.State != nil {
		frame.State = ToDTOTimer(*ev.State)
	}
	if frame.Message == "" && ev.Err != nil {
		frame.Message = ev.Err.Error()
	}
	return frame
}
