package services

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"ratingrisk/internal/backtest"
	"ratingrisk/internal/hazard"
)

// RiskReport collects everything the text renderer needs: bank metadata,
// portfolio assessments, and an optional backtest result.
type RiskReport struct {
	GeneratedAt time.Time
	HorizonDays int
	Bank        *BankInfo
	Assessments []*hazard.RiskAssessment
	Backtest    *backtest.Result
}

// RenderText produces the plain-text risk assessment report
func (r *RiskReport) RenderText() string {
	var b strings.Builder

	line := strings.Repeat("=", 72)
	fmt.Fprintln(&b, line)
	fmt.Fprintln(&b, "RATING TRANSITION RISK REPORT")
	fmt.Fprintf(&b, "Generated: %s\n", r.GeneratedAt.UTC().Format("2006-01-02 15:04:05 UTC"))
	fmt.Fprintf(&b, "Horizon:   %d days\n", r.HorizonDays)
	fmt.Fprintln(&b, line)

	if r.Bank != nil {
		fmt.Fprintln(&b, "\nMODEL BANK")
		fmt.Fprintf(&b, "  Bank ID:     %s\n", r.Bank.BankID)
		fmt.Fprintf(&b, "  Trained:     %s\n", r.Bank.TrainedAt.UTC().Format("2006-01-02 15:04:05 UTC"))
		fmt.Fprintf(&b, "  Episodes:    %d across %d entities\n", r.Bank.Episodes, r.Bank.Entities)
		fmt.Fprintf(&b, "  Covariates:  %s\n", strings.Join(r.Bank.Covariates, ", "))
		fmt.Fprintf(&b, "  Fitted:      %s\n", strings.Join(r.Bank.Fitted, ", "))
		if len(r.Bank.Unavailable) > 0 {
			fmt.Fprintf(&b, "  Unavailable: %s (insufficient events)\n", strings.Join(r.Bank.Unavailable, ", "))
		}
	}

	r.renderPortfolio(&b)
	r.renderBacktest(&b)

	fmt.Fprintln(&b, "\n"+line)
	fmt.Fprintln(&b, "END OF REPORT")
	fmt.Fprintln(&b, line)
	return b.String()
}

func (r *RiskReport) renderPortfolio(b *strings.Builder) {
	if len(r.Assessments) == 0 {
		return
	}

	// Riskiest first, entity ID as tiebreaker
	sorted := make([]*hazard.RiskAssessment, len(r.Assessments))
	copy(sorted, r.Assessments)
	sort.SliceStable(sorted, func(i, j int) bool {
		if sorted[i].Overall != sorted[j].Overall {
			return sorted[i].Overall > sorted[j].Overall
		}
		return sorted[i].EntityID < sorted[j].EntityID
	})

	counts := map[hazard.RiskLevel]int{}
	for _, a := range sorted {
		counts[a.Level]++
	}

	fmt.Fprintln(b, "\nPORTFOLIO SUMMARY")
	fmt.Fprintf(b, "  Entities scored: %d\n", len(sorted))
	fmt.Fprintf(b, "  HIGH: %d  MEDIUM: %d  LOW: %d  VERY_LOW: %d\n",
		counts[hazard.RiskHigh], counts[hazard.RiskMedium],
		counts[hazard.RiskLow], counts[hazard.RiskVeryLow])

	fmt.Fprintln(b, "\nENTITY ASSESSMENTS")
	fmt.Fprintf(b, "  %-16s %-6s %-9s %-9s  %s\n", "ENTITY", "GRADE", "OVERALL", "LEVEL", "PER-TRANSITION")
	for _, a := range sorted {
		fmt.Fprintf(b, "  %-16s %-6s %8.4f  %-9s %s\n",
			a.EntityID, a.Grade.String(), a.Overall, string(a.Level), formatPerTransition(a))
	}
}

func formatPerTransition(a *hazard.RiskAssessment) string {
	parts := make([]string, 0, len(hazard.TransitionTypes))
	for _, transition := range hazard.TransitionTypes {
		if p, ok := a.PerTransition[transition]; ok {
			parts = append(parts, fmt.Sprintf("%s=%.4f", transition, p))
		}
	}
	for _, transition := range a.Unavailable {
		parts = append(parts, fmt.Sprintf("%s=n/a", transition))
	}
	return strings.Join(parts, " ")
}

func (r *RiskReport) renderBacktest(b *strings.Builder) {
	if r.Backtest == nil {
		return
	}

	fmt.Fprintln(b, "\nBACKTEST")
	fmt.Fprintf(b, "  Folds: %d  Horizon: %d days\n", len(r.Backtest.Folds), r.Backtest.HorizonDays)

	fmt.Fprintf(b, "\n  %-5s %-5s %-12s %-12s %-10s %-8s %-8s %-7s %s\n",
		"FOLD", "SPLIT", "START", "END", "TRANSITION", "C-INDEX", "BRIER", "AUC", "FLAGS")
	for _, fold := range r.Backtest.Folds {
		if fold.Skipped {
			fmt.Fprintf(b, "  %-5d %-5s %-12s %-12s skipped: %s\n",
				fold.Fold.Index, "-",
				fold.Fold.Test.Start.Format("2006-01-02"),
				fold.Fold.Test.End.Format("2006-01-02"),
				fold.SkipReason)
			continue
		}
		splits := []struct {
			name    string
			window  backtest.Window
			metrics backtest.SplitMetrics
		}{
			{"val", fold.Fold.Validation, fold.Validation},
			{"test", fold.Fold.Test, fold.Test},
		}
		for _, split := range splits {
			for _, transition := range hazard.TransitionTypes {
				m, ok := split.metrics.Metrics[transition]
				if !ok {
					continue
				}
				flags := ""
				if fold.Stress {
					flags = "stress"
				}
				if fold.StressFlagged {
					flags += " DEGRADED"
				}
				fmt.Fprintf(b, "  %-5d %-5s %-12s %-12s %-10s %-8s %-8s %-7s %s\n",
					fold.Fold.Index,
					split.name,
					split.window.Start.Format("2006-01-02"),
					split.window.End.Format("2006-01-02"),
					transition.String(),
					formatMetric(m.Concordance),
					formatMetric(m.Brier),
					formatMetric(m.AUC),
					strings.TrimSpace(flags))
			}
		}
	}

	if len(r.Backtest.Stress) > 0 {
		fmt.Fprintln(b, "\n  STRESS ANALYSIS")
		for _, s := range r.Backtest.Stress {
			degradation := "n/a"
			if s.ConcordanceDegradation.Defined {
				degradation = fmt.Sprintf("%.1f%%", s.ConcordanceDegradation.Value)
			}
			fmt.Fprintf(b, "    %-10s normal C=%s stress C=%s degradation=%s [%s]\n",
				s.Transition.String(),
				formatMetric(s.NormalConcordance),
				formatMetric(s.StressConcordance),
				degradation, string(s.Level))
		}
	}
}

// formatMetric renders a metric value, showing undefined metrics as absent
// rather than zero.
func formatMetric(m backtest.MetricValue) string {
	if !m.Defined {
		return "n/a"
	}
	return fmt.Sprintf("%.4f", m.Value)
}
