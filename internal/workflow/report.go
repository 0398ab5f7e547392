package workflow

import (
	"errors"
	"slices"
	"sync"

	"audiothek/internal/download"
	"audiothek/internal/planner"
	"audiothek/internal/services"
)

// Outcome classifies what happened to one episode.
type Outcome string

const (
	OutcomeCreated     Outcome = "created"
	OutcomeReplaced    Outcome = "replaced"
	OutcomeRepaired    Outcome = "repaired"
	OutcomeSkipped     Outcome = "skipped"
	OutcomeUnavailable Outcome = "unavailable"
	OutcomeFailed      Outcome = "failed"
)

// Failure records why an episode or container was not fully mirrored.
type Failure struct {
	Resource string
	ID       string
	Title    string
	Err      error
}

// ListingError records a listing that could not be completed.
type ListingError struct {
	Resource string
	Folder   string
	Err      error
}

// Report aggregates the outcomes of one or more sync runs.
type Report struct {
	RunID       string
	Resources   []string
	Listed      int
	Created     int
	Replaced    int
	Repaired    int
	Skipped     int
	Unavailable int
	Failed      int
	// NotDispatched counts listed episodes left alone because of an abort.
	NotDispatched int
	Failures      []Failure
	// Stale lists folders whose id no longer resolves remotely.
	Stale         []string
	ListingErrors []ListingError
	DryRun        bool
	Aborted       bool
}

// Count returns the number of episodes with the given outcome.
func (r Report) Count(outcome Outcome) int {
	switch outcome {
	case OutcomeCreated:
		return r.Created
	case OutcomeReplaced:
		return r.Replaced
	case OutcomeRepaired:
		return r.Repaired
	case OutcomeSkipped:
		return r.Skipped
	case OutcomeUnavailable:
		return r.Unavailable
	case OutcomeFailed:
		return r.Failed
	default:
		return 0
	}
}

// Merge folds other into r.
func (r *Report) Merge(other Report) {
	r.Resources = append(r.Resources, other.Resources...)
	r.Listed += other.Listed
	r.Created += other.Created
	r.Replaced += other.Replaced
	r.Repaired += other.Repaired
	r.Skipped += other.Skipped
	r.Unavailable += other.Unavailable
	r.Failed += other.Failed
	r.NotDispatched += other.NotDispatched
	r.Failures = append(r.Failures, other.Failures...)
	r.Stale = append(r.Stale, other.Stale...)
	r.ListingErrors = append(r.ListingErrors, other.ListingErrors...)
	r.Aborted = r.Aborted || other.Aborted
}

// tally is the mutex-guarded report shared by workers.
type tally struct {
	mu     sync.Mutex
	report Report
}

func (t *tally) record(outcome Outcome, failure *Failure) {
	t.mu.Lock()
	defer t.mu.Unlock()
	switch outcome {
	case OutcomeCreated:
		t.report.Created++
	case OutcomeReplaced:
		t.report.Replaced++
	case OutcomeRepaired:
		t.report.Repaired++
	case OutcomeSkipped:
		t.report.Skipped++
	case OutcomeUnavailable:
		t.report.Unavailable++
	case OutcomeFailed:
		t.report.Failed++
	}
	if failure != nil {
		t.report.Failures = append(t.report.Failures, *failure)
	}
}

func (t *tally) snapshot() Report {
	t.mu.Lock()
	defer t.mu.Unlock()
	report := t.report
	report.Failures = slices.Clone(t.report.Failures)
	return report
}

// actionRank orders plan actions by how they are reported when an episode
// needs several.
var actionRank = map[planner.Action]int{
	planner.ActionReplace: 3,
	planner.ActionRepair:  2,
	planner.ActionCreate:  1,
}

var actionOutcome = map[planner.Action]Outcome{
	planner.ActionReplace: OutcomeReplaced,
	planner.ActionRepair:  OutcomeRepaired,
	planner.ActionCreate:  OutcomeCreated,
}

// classify folds the per-file results of one plan into a single outcome:
// failed, then unavailable, then the strongest action performed.
func classify(results []download.Result) (Outcome, error) {
	var failures, unavailable []error
	best := planner.ActionNoop
	for _, r := range results {
		switch {
		case r.Err == nil:
			if actionRank[r.Action] > actionRank[best] {
				best = r.Action
			}
		case errors.Is(r.Err, services.ErrUnavailable):
			unavailable = append(unavailable, r.Err)
		default:
			failures = append(failures, r.Err)
		}
	}
	switch {
	case len(failures) > 0:
		return OutcomeFailed, errors.Join(failures...)
	case len(unavailable) > 0:
		return OutcomeUnavailable, errors.Join(unavailable...)
	case best == planner.ActionNoop:
		return OutcomeSkipped, nil
	default:
		return actionOutcome[best], nil
	}
}

// plannedOutcome is the outcome a dry run reports for plan.
func plannedOutcome(plan planner.Plan) Outcome {
	results := make([]download.Result, 0, len(plan.Steps))
	for _, step := range plan.Pending() {
		results = append(results, download.Result{Kind: step.Kind, Action: step.Action})
	}
	outcome, _ := classify(results)
	return outcome
}
