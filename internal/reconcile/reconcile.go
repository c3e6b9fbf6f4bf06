// Package reconcile detects drift between candidates, downstream drafts, and
// the promotion sync log, and plans the repairs.
package reconcile

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/ingest-cli/internal/model"
	"github.com/sells-group/ingest-cli/internal/store"
)

// SyncLogRepair is a candidate/draft pair missing its success sync log row.
type SyncLogRepair struct {
	CandidateID string `json:"candidate_id"`
	DraftID     string `json:"draft_id"`
}

// Plan lists the repairs needed to bring promotion state back in line.
type Plan struct {
	ScannedDraftCount        int             `json:"scanned_draft_count"`
	MissingCandidateCount    int             `json:"missing_candidate_count"`
	MissingCandidateIDs      []string        `json:"missing_candidate_ids"`
	StatusRepairCandidateIDs []string        `json:"status_repair_candidate_ids"`
	SyncLogRepairs           []SyncLogRepair `json:"sync_log_repairs"`
}

// Empty reports whether the plan has nothing to repair.
func (p Plan) Empty() bool {
	return len(p.StatusRepairCandidateIDs) == 0 && len(p.SyncLogRepairs) == 0
}

// BuildPlan cross-references draft links, candidate states, and success sync
// log rows. It never writes. Mismatched data is reported in the plan; only a
// link with an empty draft or candidate id is an error.
//
// MissingCandidateCount counts draft links whose candidate has no row, so a
// duplicated link to a missing candidate counts twice. Output order follows
// the first appearance in links.
func BuildPlan(links []model.DraftLink, states []model.CandidateState, logs []model.SyncLogEntry) (Plan, error) {
	plan := Plan{
		ScannedDraftCount:        len(links),
		MissingCandidateIDs:      []string{},
		StatusRepairCandidateIDs: []string{},
		SyncLogRepairs:           []SyncLogRepair{},
	}

	status := make(map[string]model.CandidateStatus, len(states))
	for _, s := range states {
		status[s.ID] = s.Status
	}

	synced := make(map[SyncLogRepair]bool, len(logs))
	for _, l := range logs {
		if l.Outcome != model.SyncOutcomeSuccess || l.TargetID == nil {
			continue
		}
		synced[SyncLogRepair{CandidateID: l.CandidateID, DraftID: *l.TargetID}] = true
	}

	seenCandidate := make(map[string]bool)
	seenPair := make(map[SyncLogRepair]bool)
	for i, link := range links {
		if link.CandidateID == "" || link.DraftID == "" {
			return Plan{}, eris.Errorf("reconcile: draft link %d has an empty id (draft %q, candidate %q)", i, link.DraftID, link.CandidateID)
		}

		st, exists := status[link.CandidateID]
		if !exists {
			plan.MissingCandidateCount++
		}
		if !seenCandidate[link.CandidateID] {
			seenCandidate[link.CandidateID] = true
			switch {
			case !exists:
				plan.MissingCandidateIDs = append(plan.MissingCandidateIDs, link.CandidateID)
			case st != model.CandidateStatusPromoted:
				plan.StatusRepairCandidateIDs = append(plan.StatusRepairCandidateIDs, link.CandidateID)
			}
		}

		pair := SyncLogRepair{CandidateID: link.CandidateID, DraftID: link.DraftID}
		if seenPair[pair] {
			continue
		}
		seenPair[pair] = true
		if !synced[pair] {
			plan.SyncLogRepairs = append(plan.SyncLogRepairs, pair)
		}
	}
	return plan, nil
}

// ApplyResult counts the repairs written.
type ApplyResult struct {
	StatusRepaired    int `json:"status_repaired"`
	SyncLogsInserted  int `json:"sync_logs_inserted"`
	SkippedSyncRepair int `json:"skipped_sync_repairs"`
}

// Reconciler loads promotion state from the store and applies plans.
type Reconciler struct {
	store store.Store
	now   func() time.Time
}

// New creates a Reconciler.
func New(st store.Store) *Reconciler {
	return &Reconciler{store: st, now: time.Now}
}

// Plan loads the current promotion state and builds a plan.
func (r *Reconciler) Plan(ctx context.Context) (Plan, error) {
	links, err := r.store.ListDraftLinks(ctx)
	if err != nil {
		return Plan{}, eris.Wrap(err, "reconcile: list draft links")
	}
	ids := make([]string, 0, len(links))
	seen := make(map[string]bool, len(links))
	for _, l := range links {
		if l.CandidateID != "" && !seen[l.CandidateID] {
			seen[l.CandidateID] = true
			ids = append(ids, l.CandidateID)
		}
	}
	states, err := r.store.ListCandidateStates(ctx, ids)
	if err != nil {
		return Plan{}, eris.Wrap(err, "reconcile: list candidate states")
	}
	logs, err := r.store.ListSuccessSyncLogs(ctx)
	if err != nil {
		return Plan{}, eris.Wrap(err, "reconcile: list sync logs")
	}
	return BuildPlan(links, states, logs)
}

// Apply marks the planned candidates promoted and writes the missing success
// sync log rows. Sync repairs for candidates with no row are skipped.
func (r *Reconciler) Apply(ctx context.Context, p Plan) (ApplyResult, error) {
	log := zap.L().With(zap.String("component", "reconcile"))
	var res ApplyResult

	if len(p.StatusRepairCandidateIDs) > 0 {
		n, err := r.store.MarkCandidatesPromoted(ctx, p.StatusRepairCandidateIDs)
		if err != nil {
			return res, eris.Wrap(err, "reconcile: mark candidates promoted")
		}
		res.StatusRepaired = n
		log.Info("candidate statuses repaired", zap.Int("count", n), zap.Strings("candidate_ids", p.StatusRepairCandidateIDs))
	}

	missing := make(map[string]bool, len(p.MissingCandidateIDs))
	for _, id := range p.MissingCandidateIDs {
		missing[id] = true
	}
	now := r.now().UTC()
	entries := make([]model.SyncLogEntry, 0, len(p.SyncLogRepairs))
	for _, rep := range p.SyncLogRepairs {
		if missing[rep.CandidateID] {
			res.SkippedSyncRepair++
			log.Warn("skipping sync repair for missing candidate",
				zap.String("candidate_id", rep.CandidateID),
				zap.String("draft_id", rep.DraftID),
			)
			continue
		}
		target := rep.DraftID
		entries = append(entries, model.SyncLogEntry{
			CandidateID: rep.CandidateID,
			TargetID:    &target,
			Outcome:     model.SyncOutcomeSuccess,
			CreatedAt:   now,
		})
	}
	if len(entries) > 0 {
		n, err := r.store.InsertSyncLogs(ctx, entries)
		if err != nil {
			return res, eris.Wrap(err, "reconcile: insert sync logs")
		}
		res.SyncLogsInserted = n
		for _, e := range entries {
			log.Info("sync log repaired", zap.String("candidate_id", e.CandidateID), zap.String("draft_id", *e.TargetID))
		}
	}
	return res, nil
}
