package workflow

import (
	"context"
	"fmt"

	"sponsorrail/internal/logtrace"
)

// State is how far a run has progressed. States only move forward.
type State int

const (
	StateStart State = iota
	StateFundingChecked
	StatePhaseExecuted
	StateMintExecuted
	StateObjectsExtracted
	StateMintConfirmed
	StateTransferExecuted
	StateOwnershipPolled
	StateTerminal
)

var stateNames = [...]string{
	StateStart:            "start",
	StateFundingChecked:   "funding_checked",
	StatePhaseExecuted:    "phase_executed",
	StateMintExecuted:     "mint_executed",
	StateObjectsExtracted: "objects_extracted",
	StateMintConfirmed:    "mint_confirmed",
	StateTransferExecuted: "transfer_executed",
	StateOwnershipPolled:  "ownership_polled",
	StateTerminal:         "terminal",
}

func (s State) String() string {
	if s < 0 || int(s) >= len(stateNames) {
		return fmt.Sprintf("state(%d)", int(s))
	}
	return stateNames[s]
}

// step is one saga stage. Required steps must reach a later state; optional
// steps leave the state alone and never fail the run. Once an irreversible
// step succeeds, later steps run detached from caller cancellation and their
// failures are reported to the residual hook.
type step struct {
	name         string
	reaches      State
	optional     bool
	irreversible bool
	run          func(ctx context.Context) error
}

type saga struct {
	workflow  Kind
	state     State
	committed bool
	trail     []State

	// residual is called when a required step fails after the run
	// committed something on the ledger.
	residual func(ctx context.Context, failed string, err error)
}

func newSaga(kind Kind) *saga {
	return &saga{workflow: kind, state: StateStart, trail: []State{StateStart}}
}

func (s *saga) run(ctx context.Context, steps []step) error {
	for _, st := range steps {
		fields := logtrace.Fields{
			logtrace.FieldModule:   "workflow",
			logtrace.FieldWorkflow: string(s.workflow),
			logtrace.FieldStep:     st.name,
		}

		if !st.optional && st.reaches <= s.state {
			return fmt.Errorf("workflow: step %s cannot move %s back to %s", st.name, s.state, st.reaches)
		}

		err := st.run(ctx)
		if err != nil {
			fields[logtrace.FieldError] = err.Error()
			fields[logtrace.FieldState] = s.state.String()
			if st.optional {
				logtrace.Warn(ctx, "optional step failed", fields)
				continue
			}
			logtrace.Error(ctx, "workflow step failed", fields)
			if s.committed && s.residual != nil {
				s.residual(ctx, st.name, err)
			}
			return err
		}

		if st.irreversible && !s.committed {
			s.committed = true
			// The ledger effect persists whether or not the caller is still
			// waiting; finish and journal on a context that cannot be cancelled.
			ctx = context.WithoutCancel(ctx)
		}
		if !st.optional {
			s.advance(st.reaches)
		}
		fields[logtrace.FieldState] = s.state.String()
		logtrace.Debug(ctx, "workflow step completed", fields)
	}
	s.advance(StateTerminal)
	return nil
}

func (s *saga) advance(to State) {
	if to <= s.state {
		return
	}
	s.state = to
	s.trail = append(s.trail, to)
}
