// Package workflow sequences sponsored ledger transactions into the kiosk
// provisioning and credential issuance workflows.
package workflow

import (
	"context"
	"errors"

	"sponsorrail/internal/apperr"
	"sponsorrail/internal/custody"
	"sponsorrail/internal/effects"
	"sponsorrail/internal/executor"
	"sponsorrail/internal/funding"
	"sponsorrail/internal/logtrace"
	"sponsorrail/internal/poll"
	"sponsorrail/internal/reconcile"
	"sponsorrail/internal/sponsor"
	"sponsorrail/internal/txplan"
)

type FundingChecker interface {
	Check(ctx context.Context, address string) (funding.Status, error)
}

type Executor interface {
	Execute(ctx context.Context, plan *txplan.Plan, signer sponsor.Signer) (executor.Outcome, error)
}

type OwnershipVerifier interface {
	Verify(ctx context.Context, objectID, expectedOwner string, policy poll.Policy) custody.Claim
}

// Journal records objects that need out-of-band reconciliation.
type Journal interface {
	Record(ctx context.Context, e reconcile.Entry) (reconcile.Entry, error)
}

// Observer is told how every run ended. outcome is the result status or the
// error kind.
type Observer interface {
	ObserveWorkflow(kind Kind, outcome string)
}

// KioskTargets names the calls and types used to provision a kiosk.
type KioskTargets struct {
	NewTarget   string          `json:"newTarget" yaml:"newTarget"`
	ShareTarget string          `json:"shareTarget" yaml:"shareTarget"`
	KioskType   string          `json:"kioskType" yaml:"kioskType"`
	Kiosk       effects.Matcher `json:"kiosk" yaml:"kiosk"`
	OwnerCap    effects.Matcher `json:"ownerCap" yaml:"ownerCap"`

	// CreatorMetadataTarget is an optional call made with (kiosk, user)
	// after provisioning. Empty disables it.
	CreatorMetadataTarget string `json:"creatorMetadataTarget,omitempty" yaml:"creatorMetadataTarget,omitempty"`
}

// CredentialTargets names the mint call inside the caller's package.
type CredentialTargets struct {
	Module   string          `json:"module" yaml:"module"`
	Function string          `json:"function" yaml:"function"`
	Token    effects.Matcher `json:"token" yaml:"token"`
}

type Deployment struct {
	Kiosk      KioskTargets      `json:"kiosk" yaml:"kiosk"`
	Credential CredentialTargets `json:"credential" yaml:"credential"`
}

// DefaultDeployment uses the framework kiosk module and a credential module
// named therapist_nft.
func DefaultDeployment() Deployment {
	return Deployment{
		Kiosk: KioskTargets{
			NewTarget:   "0x2::kiosk::new",
			ShareTarget: "0x2::transfer::public_share_object",
			KioskType:   "0x2::kiosk::Kiosk",
			Kiosk:       effects.Matcher{Name: "kiosk", Contains: "kiosk::Kiosk", Excludes: []string{"KioskOwnerCap"}, Required: true},
			OwnerCap:    effects.Matcher{Name: "ownerCap", Contains: "kiosk::KioskOwnerCap", Required: true},
		},
		Credential: CredentialTargets{
			Module:   "therapist_nft",
			Function: "mint_therapist_nft",
			Token:    effects.Matcher{Name: "token", Contains: "therapist_nft::TherapistNFT", Required: true},
		},
	}
}

// Policies bound each ownership poll.
type Policies struct {
	KioskVerify    poll.Policy
	MintConfirm    poll.Policy
	DeliveryVerify poll.Policy
}

// Budgets are fee budgets per transaction plus the minimum sponsor balance
// required to start a run.
type Budgets struct {
	Kiosk      uint64
	Mint       uint64
	Transfer   uint64
	Metadata   uint64
	MinBalance uint64
}

type Config struct {
	Identity   sponsor.Source
	Funding    FundingChecker
	Executor   Executor
	Verifier   OwnershipVerifier
	Journal    Journal
	Observer   Observer
	Deployment Deployment
	Policies   Policies
	Budgets    Budgets
}

// Orchestrator runs workflows. It keeps no state between runs and takes no
// locks; concurrent runs from the same sponsor are ordered by the ledger.
type Orchestrator struct {
	identity   sponsor.Source
	funding    FundingChecker
	executor   Executor
	verifier   OwnershipVerifier
	journal    Journal
	observer   Observer
	deployment Deployment
	policies   Policies
	budgets    Budgets
}

func New(cfg Config) (*Orchestrator, error) {
	switch {
	case cfg.Identity == nil:
		return nil, errors.New("workflow: identity source is required")
	case cfg.Funding == nil:
		return nil, errors.New("workflow: funding checker is required")
	case cfg.Executor == nil:
		return nil, errors.New("workflow: executor is required")
	case cfg.Verifier == nil:
		return nil, errors.New("workflow: ownership verifier is required")
	}
	for _, b := range []uint64{cfg.Budgets.Kiosk, cfg.Budgets.Mint, cfg.Budgets.Transfer} {
		if b == 0 {
			return nil, errors.New("workflow: fee budgets must be positive")
		}
	}
	if cfg.Budgets.Metadata == 0 {
		cfg.Budgets.Metadata = cfg.Budgets.Transfer
	}
	return &Orchestrator{
		identity:   cfg.Identity,
		funding:    cfg.Funding,
		executor:   cfg.Executor,
		verifier:   cfg.Verifier,
		journal:    cfg.Journal,
		observer:   cfg.Observer,
		deployment: cfg.Deployment,
		policies:   cfg.Policies,
		budgets:    cfg.Budgets,
	}, nil
}

// preflight loads the sponsor and requires it to hold coins. Nothing is
// built or submitted when this fails.
func (o *Orchestrator) preflight(ctx context.Context) (sponsor.Signer, funding.Status, error) {
	signer, err := o.identity.Load()
	if err != nil {
		return nil, funding.Status{}, err
	}
	status, err := o.funding.Check(ctx, signer.Address())
	if err != nil {
		return nil, status, err
	}
	if err := status.Require(o.budgets.MinBalance); err != nil {
		return nil, status, err
	}
	return signer, status, nil
}

// submit builds and executes one plan. A failed outcome becomes a
// TransactionFailed error carrying the digest, if any.
func (o *Orchestrator) submit(ctx context.Context, op string, signer sponsor.Signer, budget uint64, calls ...txplan.CallSpec) (executor.Outcome, error) {
	plan, err := txplan.Build(calls, signer.Address(), signer.Address(), budget)
	if err != nil {
		return executor.Outcome{}, apperr.Wrap(apperr.KindConfiguration, op, err)
	}
	outcome, err := o.executor.Execute(ctx, plan, signer)
	if err != nil {
		return outcome, err
	}
	if !outcome.Success {
		return outcome, apperr.New(apperr.KindTransactionFailed, op, "transaction %s failed: %s", outcome.Digest, outcome.FailureReason)
	}
	return outcome, nil
}

// record journals a residual entry. Journal failures are logged only.
func (o *Orchestrator) record(ctx context.Context, e reconcile.Entry) {
	if o.journal == nil {
		return
	}
	fields := logtrace.Fields{
		logtrace.FieldModule:   "workflow",
		logtrace.FieldWorkflow: e.Workflow,
		logtrace.FieldObjectID: e.ObjectID,
		"reason":               string(e.Reason),
	}
	saved, err := o.journal.Record(ctx, e)
	if err != nil {
		fields[logtrace.FieldError] = err.Error()
		logtrace.Error(ctx, "failed to journal residual custody", fields)
		return
	}
	fields["entry_id"] = saved.ID
	logtrace.Warn(ctx, "residual custody journaled", fields)
}

func (o *Orchestrator) finish(ctx context.Context, kind Kind, res Result, err error) {
	outcome := "error"
	switch {
	case err == nil:
		outcome = string(res.Outcome())
	case apperr.KindOf(err) != "":
		outcome = string(apperr.KindOf(err))
	}
	logtrace.Info(ctx, "workflow finished", logtrace.Fields{
		logtrace.FieldModule:   "workflow",
		logtrace.FieldWorkflow: string(kind),
		logtrace.FieldStatus:   outcome,
	})
	if o.observer != nil {
		o.observer.ObserveWorkflow(kind, outcome)
	}
}
