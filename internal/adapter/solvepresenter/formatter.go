package solvepresenter

import (
	"fmt"
	"strings"

	"github.com/park285/cubetimer/pkg/solvedto"
)

const (
	historyTitle = "Recent solves"
	profileTitle = "Personal records"
	dateLayout   = "2006-01-02 15:04"
)

// FormatHistory renders a page as numbered lines, newest first.
func FormatHistory(page *solvedto.HistoryPage) string {
	if page == nil || len(page.Items) == 0 {
		return historyTitle + "\n(no solves yet)"
	}
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("%s (%d of %d)\n", historyTitle, len(page.Items), page.Total))
	for i, s := range page.Items {
		sb.WriteString(fmt.Sprintf("%3d. %-9s %s  %s\n", page.Offset+i+1, s.Display, s.CreatedAt.Format(dateLayout), s.Scramble))
	}
	return strings.TrimRight(sb.String(), "\n")
}

func FormatProfile(p *solvedto.Profile) string {
	if p == nil {
		return profileTitle + "\n(no records yet)"
	}
	var sb strings.Builder
	sb.WriteString(profileTitle + "\n")
	sb.WriteString(fmt.Sprintf("• Solves: %d\n", p.TotalSolves))
	sb.WriteString(formatMetric("Single", p.Single))
	sb.WriteString(formatMetric("Ao5", p.Ao5))
	sb.WriteString(formatMetric("Ao12", p.Ao12))
	return strings.TrimRight(sb.String(), "\n")
}

func formatMetric(label string, m solvedto.Metric) string {
	line := fmt.Sprintf("• %s: %s", label, m.Display)
	if m.Date != nil {
		line += " (" + m.Date.Format(dateLayout) + ")"
	}
	return line + "\n"
}
