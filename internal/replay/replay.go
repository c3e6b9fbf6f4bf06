// Package replay checks that two runs of the same source produce the same
// candidates within a tolerated drift.
package replay

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"sort"

	"github.com/rotisserie/eris"

	"github.com/sells-group/ingest-cli/internal/config"
	"github.com/sells-group/ingest-cli/internal/model"
	"github.com/sells-group/ingest-cli/internal/store"
)

// Failure codes.
const (
	CodeTotalDeltaExceeded      = "total_count_delta_exceeded"
	CodeCuratedDeltaExceeded    = "curated_count_delta_exceeded"
	CodeFilteredDeltaExceeded   = "quality_filtered_count_delta_exceeded"
	CodeKeyOverlapBelow         = "candidate_key_overlap_below_threshold"
	CodeCuratedKeyOverlapBelow  = "curated_key_overlap_below_threshold"
	CodeConfigVersionMismatched = "source_config_version_mismatch"
)

// Tolerance is the drift a replay may show before it fails.
type Tolerance struct {
	TotalDeltaRatio           float64 `json:"total_delta_ratio"`
	TotalDeltaMin             int     `json:"total_delta_min"`
	CuratedDeltaRatio         float64 `json:"curated_delta_ratio"`
	CuratedDeltaMin           int     `json:"curated_delta_min"`
	FilteredDeltaRatio        float64 `json:"filtered_delta_ratio"`
	FilteredDeltaMin          int     `json:"filtered_delta_min"`
	MinCandidateKeyOverlap    float64 `json:"min_candidate_key_overlap_ratio"`
	MinCuratedKeyOverlapRatio float64 `json:"min_curated_key_overlap_ratio"`
}

// ToleranceFromConfig maps replay config onto a Tolerance.
func ToleranceFromConfig(cfg config.ReplayConfig) Tolerance {
	return Tolerance{
		TotalDeltaRatio:           cfg.TotalDeltaRatio,
		TotalDeltaMin:             cfg.TotalDeltaMin,
		CuratedDeltaRatio:         cfg.CuratedDeltaRatio,
		CuratedDeltaMin:           cfg.CuratedDeltaMin,
		FilteredDeltaRatio:        cfg.FilteredDeltaRatio,
		FilteredDeltaMin:          cfg.FilteredDeltaMin,
		MinCandidateKeyOverlap:    cfg.MinCandidateKeyOverlap,
		MinCuratedKeyOverlapRatio: cfg.MinCuratedKeyOverlapRatio,
	}
}

// Counts are the per-status totals of a candidate set.
type Counts struct {
	Total    int `json:"total"`
	Curated  int `json:"curated"`
	Filtered int `json:"quality_filtered"`
}

// Delta describes the drift of one count.
type Delta struct {
	Original int     `json:"original"`
	Replay   int     `json:"replay"`
	Absolute int     `json:"absolute"`
	Ratio    float64 `json:"ratio"`
}

// Overlap holds the Jaccard overlap of candidate keys.
type Overlap struct {
	CandidateKeyRatio float64 `json:"candidate_key_overlap_ratio"`
	CuratedKeyRatio   float64 `json:"curated_key_overlap_ratio"`
	SharedKeys        int     `json:"shared_keys"`
	UnionKeys         int     `json:"union_keys"`
}

// Result is the outcome of a replay comparison.
type Result struct {
	Passed         bool             `json:"passed"`
	FailureReasons []string         `json:"failure_reasons"`
	Overlap        Overlap          `json:"overlap"`
	Deltas         map[string]Delta `json:"deltas"`
}

// Evaluate compares an original and a replay candidate set. A count fails
// only when its delta exceeds both the ratio and the absolute floor.
func Evaluate(original, replay []model.Candidate, tol Tolerance) Result {
	oc, rc := count(original), count(replay)
	res := Result{
		FailureReasons: []string{},
		Deltas: map[string]Delta{
			"total":            delta(oc.Total, rc.Total),
			"curated":          delta(oc.Curated, rc.Curated),
			"quality_filtered": delta(oc.Filtered, rc.Filtered),
		},
	}

	checks := []struct {
		name  string
		ratio float64
		floor int
		code  string
	}{
		{"total", tol.TotalDeltaRatio, tol.TotalDeltaMin, CodeTotalDeltaExceeded},
		{"curated", tol.CuratedDeltaRatio, tol.CuratedDeltaMin, CodeCuratedDeltaExceeded},
		{"quality_filtered", tol.FilteredDeltaRatio, tol.FilteredDeltaMin, CodeFilteredDeltaExceeded},
	}
	for _, c := range checks {
		d := res.Deltas[c.name]
		if d.Ratio > c.ratio && d.Absolute > c.floor {
			res.FailureReasons = append(res.FailureReasons, c.code)
		}
	}

	allRatio, shared, union := jaccard(keys(original, false), keys(replay, false))
	curatedRatio, _, _ := jaccard(keys(original, true), keys(replay, true))
	res.Overlap = Overlap{
		CandidateKeyRatio: allRatio,
		CuratedKeyRatio:   curatedRatio,
		SharedKeys:        shared,
		UnionKeys:         union,
	}
	if allRatio < tol.MinCandidateKeyOverlap {
		res.FailureReasons = append(res.FailureReasons, CodeKeyOverlapBelow)
	}
	if curatedRatio < tol.MinCuratedKeyOverlapRatio {
		res.FailureReasons = append(res.FailureReasons, CodeCuratedKeyOverlapBelow)
	}
	res.Passed = len(res.FailureReasons) == 0
	return res
}

func count(cands []model.Candidate) Counts {
	var c Counts
	for _, cand := range cands {
		c.Total++
		switch cand.Status {
		case model.CandidateStatusCurated, model.CandidateStatusPromoted:
			c.Curated++
		case model.CandidateStatusQualityFiltered:
			c.Filtered++
		}
	}
	return c
}

func delta(original, replay int) Delta {
	abs := int(math.Abs(float64(replay - original)))
	return Delta{
		Original: original,
		Replay:   replay,
		Absolute: abs,
		Ratio:    round4(float64(abs) / float64(max(original, 1))),
	}
}

func keys(cands []model.Candidate, curatedOnly bool) map[string]struct{} {
	out := make(map[string]struct{}, len(cands))
	for _, c := range cands {
		if curatedOnly && c.Status != model.CandidateStatusCurated && c.Status != model.CandidateStatusPromoted {
			continue
		}
		out[c.CandidateKey] = struct{}{}
	}
	return out
}

// jaccard returns |a∩b| / |a∪b|. Two empty sets overlap fully.
func jaccard(a, b map[string]struct{}) (ratio float64, shared, union int) {
	for k := range a {
		if _, ok := b[k]; ok {
			shared++
		}
	}
	union = len(a) + len(b) - shared
	if union == 0 {
		return 1, 0, 0
	}
	return round4(float64(shared) / float64(union)), shared, union
}

func round4(v float64) float64 {
	return math.Round(v*10000) / 10000
}

// ConfigVersion reads the source-config version recorded with a run,
// preferring versions.source_config, then strategy_selection.source_config_version,
// then a top-level source_config_version. The first present value wins.
func ConfigVersion(summary map[string]any) (string, bool) {
	if summary == nil {
		return "", false
	}
	if v, ok := nested(summary, "versions", "source_config"); ok {
		return v, true
	}
	if v, ok := nested(summary, "strategy_selection", "source_config_version"); ok {
		return v, true
	}
	if v, ok := summary["source_config_version"]; ok && v != nil {
		return stringify(v), true
	}
	return "", false
}

func nested(m map[string]any, outer, inner string) (string, bool) {
	sub, ok := m[outer].(map[string]any)
	if !ok {
		return "", false
	}
	v, ok := sub[inner]
	if !ok || v == nil {
		return "", false
	}
	return stringify(v), true
}

func stringify(v any) string {
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprint(v)
}

// Report is the replay comparison of two stored runs.
type Report struct {
	SourceKey             string `json:"source_key"`
	OriginalRunID         string `json:"original_run_id"`
	ReplayRunID           string `json:"replay_run_id"`
	OriginalConfigVersion string `json:"original_config_version,omitempty"`
	ReplayConfigVersion   string `json:"replay_config_version,omitempty"`
	Result
}

// CompareRuns loads two runs of the same source and evaluates them. Runs of
// different sources are an error. Differing recorded config versions add a
// failure reason.
func CompareRuns(ctx context.Context, st store.Store, originalID, replayID string, tol Tolerance) (*Report, error) {
	orig, err := st.GetRun(ctx, originalID)
	if err != nil {
		return nil, eris.Wrapf(err, "replay: get run %s", originalID)
	}
	rep, err := st.GetRun(ctx, replayID)
	if err != nil {
		return nil, eris.Wrapf(err, "replay: get run %s", replayID)
	}
	if orig.SourceKey != rep.SourceKey {
		return nil, eris.Errorf("replay: runs belong to different sources (%s, %s)", orig.SourceKey, rep.SourceKey)
	}

	origCands, err := st.ListCandidatesByRun(ctx, originalID)
	if err != nil {
		return nil, eris.Wrapf(err, "replay: list candidates for %s", originalID)
	}
	repCands, err := st.ListCandidatesByRun(ctx, replayID)
	if err != nil {
		return nil, eris.Wrapf(err, "replay: list candidates for %s", replayID)
	}

	report := &Report{
		SourceKey:     orig.SourceKey,
		OriginalRunID: originalID,
		ReplayRunID:   replayID,
		Result:        Evaluate(origCands, repCands, tol),
	}
	ov, okO := ConfigVersion(summaryMap(orig))
	rv, okR := ConfigVersion(summaryMap(rep))
	report.OriginalConfigVersion, report.ReplayConfigVersion = ov, rv
	if okO && okR && ov != rv {
		report.FailureReasons = append(report.FailureReasons, CodeConfigVersionMismatched)
		report.Passed = false
	}
	sort.Strings(report.FailureReasons)
	return report, nil
}

// summaryMap decodes a run's summary into the loosely-typed shape
// ConfigVersion reads.
func summaryMap(r *model.Run) map[string]any {
	if r.Summary == nil {
		return nil
	}
	b, err := json.Marshal(r.Summary)
	if err != nil {
		return nil
	}
	var out map[string]any
	if err := json.Unmarshal(b, &out); err != nil {
		return nil
	}
	return out
}
