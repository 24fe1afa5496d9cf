// Package report renders an analysis summary for the terminal.
package report

import (
	"fmt"
	"sort"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/vibhavm/logsage/internal/types"
)

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#FAFAFA")).
			Background(lipgloss.Color("#7D56F4")).
			PaddingLeft(1).
			PaddingRight(1)
	sectionStyle = lipgloss.NewStyle().Bold(true)
	boxStyle     = lipgloss.NewStyle().BorderStyle(lipgloss.RoundedBorder()).Padding(1)
	alertStyle   = lipgloss.NewStyle().BorderStyle(lipgloss.RoundedBorder()).Padding(1).Foreground(lipgloss.Color("9"))
	warnStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("11"))
)

// Render produces the full terminal report for a completed analysis run.
func Render(sum types.DashboardSummary) string {
	var s strings.Builder

	s.WriteString(titleStyle.Render("LogSage"))
	s.WriteString("\n\n")

	overview := fmt.Sprintf(
		"Records: %d | Parsed: %d (%.1f%%) | Format: %s (%.2f) | Unique IPs: %d",
		sum.TotalRecords,
		sum.ParsedRecords,
		sum.ParseRate,
		sum.FormatUsed,
		sum.Confidence,
		sum.UniqueIPs,
	)
	s.WriteString(boxStyle.Render(overview))
	s.WriteString("\n\n")

	risk := fmt.Sprintf("Overall Risk: %s (%d/100)", strings.ToUpper(string(sum.OverallRiskLevel)), sum.RiskScore)
	if sum.OverallRiskLevel == types.RiskHigh {
		s.WriteString(alertStyle.Render(risk))
	} else {
		s.WriteString(boxStyle.Render(risk))
	}
	s.WriteString("\n\n")

	s.WriteString(sectionStyle.Render("Severity"))
	s.WriteString("\n")
	s.WriteString(boxStyle.Render(countLines(stringCounts(sum.SeverityCounts))))
	s.WriteString("\n\n")

	s.WriteString(sectionStyle.Render("Categories"))
	s.WriteString("\n")
	s.WriteString(boxStyle.Render(countLines(stringCounts(sum.CategoryCounts))))
	s.WriteString("\n\n")

	if len(sum.StatusDistribution) > 0 {
		s.WriteString(sectionStyle.Render("Status Codes"))
		s.WriteString("\n")
		s.WriteString(boxStyle.Render(statusLines(sum.StatusDistribution)))
		s.WriteString("\n\n")
	}

	if len(sum.TopAttackers) > 0 {
		s.WriteString(sectionStyle.Render("Top Attackers"))
		s.WriteString("\n")
		s.WriteString(alertStyle.Render(attackerLines(sum.TopAttackers)))
		s.WriteString("\n\n")
	}

	if sum.AnomalyCount > 0 {
		s.WriteString(alertStyle.Render(fmt.Sprintf("Anomalies detected: %d", sum.AnomalyCount)))
		s.WriteString("\n\n")
	}

	if len(sum.AttackTimeline) > 0 {
		s.WriteString(sectionStyle.Render("Attack Timeline"))
		s.WriteString("\n")
		s.WriteString(boxStyle.Render(timelineLines(sum.AttackTimeline)))
		s.WriteString("\n\n")
	}

	if len(sum.Recommendations) > 0 {
		s.WriteString(sectionStyle.Render("Recommendations"))
		s.WriteString("\n")
		var recs strings.Builder
		for i, r := range sum.Recommendations {
			if i > 0 {
				recs.WriteString("\n")
			}
			recs.WriteString("- " + r)
		}
		s.WriteString(boxStyle.Render(recs.String()))
		s.WriteString("\n\n")
	}

	if sum.DegradedConfidence {
		s.WriteString(warnStyle.Render("Note: results computed with reduced confidence (fallback heuristics in use)."))
		s.WriteString("\n")
	}

	return s.String()
}

func stringCounts[K ~string](m map[K]int) []kv {
	out := make([]kv, 0, len(m))
	for k, v := range m {
		out = append(out, kv{string(k), v})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].count != out[j].count {
			return out[i].count > out[j].count
		}
		return out[i].key < out[j].key
	})
	return out
}

type kv struct {
	key   string
	count int
}

func countLines(entries []kv) string {
	if len(entries) == 0 {
		return "(none)"
	}
	var b strings.Builder
	for i, e := range entries {
		if i > 0 {
			b.WriteString("\n")
		}
		b.WriteString(fmt.Sprintf("%s: %d", e.key, e.count))
	}
	return b.String()
}

func statusLines(m map[int]int) string {
	codes := make([]int, 0, len(m))
	for code := range m {
		codes = append(codes, code)
	}
	sort.Ints(codes)
	var b strings.Builder
	for i, code := range codes {
		if i > 0 {
			b.WriteString("\n")
		}
		b.WriteString(fmt.Sprintf("%d: %d", code, m[code]))
	}
	return b.String()
}

func attackerLines(profiles []types.IPProfile) string {
	var b strings.Builder
	for i, p := range profiles {
		if i >= 10 {
			b.WriteString(fmt.Sprintf("\n... and %d more", len(profiles)-i))
			break
		}
		if i > 0 {
			b.WriteString("\n")
		}
		sigs := "-"
		if len(p.AttackTypes) > 0 {
			sigs = strings.Join(p.AttackTypes, ", ")
		}
		b.WriteString(fmt.Sprintf("%-15s  score %3d (%s)  requests %d  %s",
			p.Address, p.RiskScore, p.RiskLevel, p.RequestCount, sigs))
	}
	return b.String()
}

func timelineLines(buckets []types.TimelineBucket) string {
	var b strings.Builder
	shown := 0
	for _, tb := range buckets {
		if tb.Total == 0 {
			continue
		}
		if shown > 0 {
			b.WriteString("\n")
		}
		kinds := stringCounts(tb.ByType)
		names := make([]string, 0, len(kinds))
		for _, k := range kinds {
			names = append(names, fmt.Sprintf("%s x%d", k.key, k.count))
		}
		b.WriteString(fmt.Sprintf("%s  %d attack(s): %s",
			tb.Hour.Format("2006-01-02 15:04"), tb.Total, strings.Join(names, ", ")))
		shown++
		if shown >= 12 {
			b.WriteString("\n...")
			break
		}
	}
	if shown == 0 {
		return "no attack activity"
	}
	return b.String()
}
