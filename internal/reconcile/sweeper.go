package reconcile

import (
	"context"
	"time"

	"sponsorrail/internal/ledger"
	"sponsorrail/internal/logtrace"
)

// OwnerReader reads an object's current owning account.
type OwnerReader interface {
	Observe(ctx context.Context, objectID string) (string, error)
}

// SweepReport summarises one sweep.
type SweepReport struct {
	Checked  int     `json:"checked"`
	Resolved int     `json:"resolved"`
	Skipped  int     `json:"skipped"`
	Pending  []Entry `json:"pending"`
}

// Sweeper re-reads ownership of journaled objects and resolves entries
// whose object reached the user. It only reads; stuck objects stay pending
// for an operator.
type Sweeper struct {
	store  Store
	owners OwnerReader
	now    func() time.Time
}

func NewSweeper(store Store, owners OwnerReader) *Sweeper {
	return &Sweeper{store: store, owners: owners, now: time.Now}
}

func (s *Sweeper) Sweep(ctx context.Context) (SweepReport, error) {
	entries, err := s.store.Pending(ctx)
	if err != nil {
		return SweepReport{}, err
	}

	var report SweepReport
	for _, e := range entries {
		fields := logtrace.Fields{
			logtrace.FieldModule:   "reconcile",
			logtrace.FieldObjectID: e.ObjectID,
			logtrace.FieldWorkflow: e.Workflow,
			"entry_id":             e.ID,
		}
		if e.ObjectID == "" {
			report.Skipped++
			report.Pending = append(report.Pending, e)
			continue
		}

		report.Checked++
		owner, err := s.owners.Observe(ctx, e.ObjectID)
		if err != nil {
			fields[logtrace.FieldError] = err.Error()
			logtrace.Warn(ctx, "reconcile read failed", fields)
			report.Pending = append(report.Pending, e)
			continue
		}
		if !ledger.SameAddress(owner, e.User) {
			report.Pending = append(report.Pending, e)
			continue
		}

		if err := s.store.Resolve(ctx, e.ID, s.now()); err != nil {
			return report, err
		}
		report.Resolved++
		logtrace.Info(ctx, "reconcile entry resolved", fields)
	}
	return report, nil
}

// Run sweeps every interval until ctx ends. onReport, if set, receives every
// successful report.
func (s *Sweeper) Run(ctx context.Context, interval time.Duration, onReport func(SweepReport)) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		report, err := s.Sweep(ctx)
		if err != nil {
			logtrace.Error(ctx, "reconcile sweep failed", logtrace.Fields{
				logtrace.FieldModule: "reconcile",
				logtrace.FieldError:  err.Error(),
			})
		} else if onReport != nil {
			onReport(report)
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}
