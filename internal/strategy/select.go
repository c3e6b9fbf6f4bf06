package strategy

import (
	"fmt"
	"sort"
	"strings"

	"github.com/sells-group/ingest-cli/internal/model"
)

// Legal risk levels declared per source.
const (
	LegalRiskLow    = "low"
	LegalRiskMedium = "medium"
	LegalRiskHigh   = "high"
)

// DefaultStrongRate is the rolling success and yield rate a strategy must
// exceed to be preferred over the configured order.
const DefaultStrongRate = 0.6

// Input is everything selection looks at for one source.
type Input struct {
	Preferences []string
	Performance map[string]model.StrategyPerformance
	Signals     Signals
	LegalRisk   string
	StrongRate  float64
}

// Selection is the ranked outcome with an auditable explanation trail.
type Selection struct {
	SelectedPrimary Strategy   `json:"selected_primary"`
	RankedOrder     []Strategy `json:"ranked_order"`
	Reasoning       []string   `json:"reasoning"`
}

// Select ranks strategies for a source.
//
// A strategy with a positive structural signal whose rolling success and
// yield rates both exceed the strong rate goes first. Otherwise the
// configured order stands, except that render moves to the front when
// dynamic hints are present and no static structural signal exists.
func Select(in Input) Selection {
	var reasons []string
	strong := in.StrongRate
	if strong <= 0 || strong > 1 {
		strong = DefaultStrongRate
	}

	order := Normalize(in.Preferences)
	if dropped := len(in.Preferences) - len(order); dropped > 0 {
		reasons = append(reasons, fmt.Sprintf("dropped %d unrecognized or duplicate preference(s)", dropped))
	}
	if len(order) == 0 {
		order = append([]Strategy(nil), DefaultOrder...)
		reasons = append(reasons, "no usable preferences; using default order")
	}

	if strings.EqualFold(in.LegalRisk, LegalRiskHigh) {
		filtered := without(order, Render)
		if len(filtered) != len(order) {
			reasons = append(reasons, "legal risk high; render excluded")
		}
		if len(filtered) == 0 {
			filtered = without(DefaultOrder, Render)
			reasons = append(reasons, "no static strategy configured; using default static order")
		}
		order = filtered
	}

	type scored struct {
		st    Strategy
		pos   int
		score float64
	}
	var strongSet []scored
	for i, st := range order {
		sig := in.Signals.Count(st)
		if sig <= 0 {
			continue
		}
		perf, ok := in.Performance[string(st)]
		if !ok {
			reasons = append(reasons, fmt.Sprintf("%s: %d structural signal(s), no performance history", st, sig))
			continue
		}
		if perf.RollingSuccessRate > strong && perf.RollingYieldRate > strong {
			strongSet = append(strongSet, scored{st: st, pos: i, score: perf.RollingSuccessRate + perf.RollingYieldRate})
			reasons = append(reasons, fmt.Sprintf("%s: strong (signals=%d success=%.3f yield=%.3f)", st, sig, perf.RollingSuccessRate, perf.RollingYieldRate))
		} else {
			reasons = append(reasons, fmt.Sprintf("%s: below strong rate %.2f (success=%.3f yield=%.3f)", st, strong, perf.RollingSuccessRate, perf.RollingYieldRate))
		}
	}

	if len(strongSet) > 0 {
		sort.SliceStable(strongSet, func(i, j int) bool {
			if strongSet[i].score != strongSet[j].score {
				return strongSet[i].score > strongSet[j].score
			}
			return strongSet[i].pos < strongSet[j].pos
		})
		ranked := make([]Strategy, 0, len(order))
		for _, s := range strongSet {
			ranked = append(ranked, s.st)
		}
		for _, st := range order {
			if !contains(ranked, st) {
				ranked = append(ranked, st)
			}
		}
		reasons = append(reasons, fmt.Sprintf("selected %s: strongest signal-backed strategy", ranked[0]))
		return Selection{SelectedPrimary: ranked[0], RankedOrder: ranked, Reasoning: reasons}
	}

	if in.Signals.DynamicHints > 0 && in.Signals.Static() == 0 && contains(order, Render) {
		ranked := append([]Strategy{Render}, without(order, Render)...)
		reasons = append(reasons, fmt.Sprintf("selected render: %d dynamic hint(s) and no static structural signal", in.Signals.DynamicHints))
		return Selection{SelectedPrimary: Render, RankedOrder: ranked, Reasoning: reasons}
	}

	reasons = append(reasons, fmt.Sprintf("selected %s: configured order", order[0]))
	return Selection{SelectedPrimary: order[0], RankedOrder: order, Reasoning: reasons}
}

// Names returns the ranked order as plain strings.
func (s Selection) Names() []string {
	out := make([]string, len(s.RankedOrder))
	for i, st := range s.RankedOrder {
		out[i] = string(st)
	}
	return out
}

func without(in []Strategy, drop Strategy) []Strategy {
	out := make([]Strategy, 0, len(in))
	for _, st := range in {
		if st != drop {
			out = append(out, st)
		}
	}
	return out
}

func contains(in []Strategy, st Strategy) bool {
	for _, s := range in {
		if s == st {
			return true
		}
	}
	return false
}
