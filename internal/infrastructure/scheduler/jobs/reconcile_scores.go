// Package jobs contains the scheduled background jobs.
package jobs

import (
	"context"

	"github.com/fato-hub/comportamento-hub/internal/application/command"
)

// DefaultReconcileBatch bounds how many stranded occurrences one sweep
// processes.
const DefaultReconcileBatch = 100

// ReconcileScores periodically replays consolidated occurrences whose score
// delta never reached the student record.
type ReconcileScores struct {
	handler *command.ReconcileScoresHandler
	batch   int
}

// NewReconcileScores creates the job.
func NewReconcileScores(handler *command.ReconcileScoresHandler, batch int) *ReconcileScores {
	if batch <= 0 {
		batch = DefaultReconcileBatch
	}
	return &ReconcileScores{handler: handler, batch: batch}
}

// Name implements scheduler.Job.
func (j *ReconcileScores) Name() string { return "reconcile_scores" }

// Description implements scheduler.Job.
func (j *ReconcileScores) Description() string {
	return "replays score deltas stranded by a crash between the two consolidation writes"
}

// Run implements scheduler.Job.
func (j *ReconcileScores) Run(ctx context.Context) error {
	_, err := j.handler.Handle(ctx, command.ReconcileScoresCommand{Limit: j.batch})
	return err
}
