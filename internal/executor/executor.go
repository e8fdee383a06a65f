// Package executor resolves, signs and submits transaction plans as the
// sponsor and reports what happened.
package executor

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"

	"sponsorrail/internal/apperr"
	"sponsorrail/internal/ledger"
	"sponsorrail/internal/logtrace"
	"sponsorrail/internal/sponsor"
	"sponsorrail/internal/txplan"
)

// maxGasCoins is the most coins a single transaction may pay with.
const maxGasCoins = 256

const coinPageSize = 50

// CreatedObject is one object the transaction created.
type CreatedObject struct {
	ObjectID   string
	ObjectType string
	Owner      *ledger.Owner
}

// Outcome is the result of one submission. Success is true only when the
// ledger reported a successful execution status.
type Outcome struct {
	Digest        string
	Success       bool
	FailureReason string
	Created       []CreatedObject
	RawEffects    json.RawMessage
}

// Observer is told about every finished submission attempt.
type Observer interface {
	ObserveSubmission(label string, outcome Outcome)
}

type Option func(*Executor)

// WithCoinType sets the coin type used for gas payment.
func WithCoinType(coinType string) Option {
	return func(x *Executor) { x.coinType = coinType }
}

func WithObserver(o Observer) Option {
	return func(x *Executor) { x.observer = o }
}

// Executor submits plans on behalf of the sponsor. It never retries a
// submission.
type Executor struct {
	client   ledger.Client
	coinType string
	observer Observer
}

func New(client ledger.Client, opts ...Option) *Executor {
	x := &Executor{client: client, coinType: ledger.SUICoinType}
	for _, opt := range opts {
		opt(x)
	}
	return x
}

// Execute runs plan signed by signer. Problems with the plan itself are
// returned as errors; everything that goes wrong while talking to the ledger
// ends up in a failed Outcome.
func (x *Executor) Execute(ctx context.Context, plan *txplan.Plan, signer sponsor.Signer) (Outcome, error) {
	if plan == nil {
		return Outcome{}, apperr.New(apperr.KindConfiguration, "executor", "nil plan")
	}
	if signer == nil {
		return Outcome{}, apperr.New(apperr.KindConfiguration, "executor", "nil signer")
	}
	if !ledger.SameAddress(signer.Address(), plan.Sender) {
		return Outcome{}, apperr.New(apperr.KindConfiguration, "executor",
			"signer %s is not the plan sender %s", signer.Address(), plan.Sender)
	}

	label := planLabel(plan)
	fields := logtrace.Fields{
		logtrace.FieldModule:  "executor",
		logtrace.FieldSponsor: plan.Sender,
		logtrace.FieldStep:    label,
	}

	outcome := x.execute(ctx, plan, signer)
	if outcome.Success {
		logtrace.Info(ctx, "transaction executed", logtrace.WithFields(fields, logtrace.Fields{
			logtrace.FieldDigest: outcome.Digest,
		}))
	} else {
		logtrace.Warn(ctx, "transaction failed", logtrace.WithFields(fields, logtrace.Fields{
			logtrace.FieldDigest: outcome.Digest,
			logtrace.FieldError:  outcome.FailureReason,
		}))
	}
	if x.observer != nil {
		x.observer.ObserveSubmission(label, outcome)
	}
	return outcome, nil
}

func (x *Executor) execute(ctx context.Context, plan *txplan.Plan, signer sponsor.Signer) Outcome {
	objects, err := x.resolveObjects(ctx, plan)
	if err != nil {
		return failed(err)
	}

	price, err := x.client.GetReferenceGasPrice(ctx)
	if err != nil {
		return failed(fmt.Errorf("reference gas price: %w", err))
	}

	payment, err := x.selectGas(ctx, plan, objects)
	if err != nil {
		return failed(err)
	}

	txBytes, err := plan.MarshalBCS(objects, txplan.GasData{
		Payment: payment,
		Price:   price,
		Budget:  plan.FeeBudget,
	})
	if err != nil {
		return failed(fmt.Errorf("serialize: %w", err))
	}

	sig, err := signer.SignTransaction(txBytes)
	if err != nil {
		return failed(fmt.Errorf("sign: %w", err))
	}

	// Once handed to the ledger the submission is awaited even if the caller
	// gives up.
	resp, err := x.client.ExecuteTransactionBlock(
		context.WithoutCancel(ctx),
		base64.StdEncoding.EncodeToString(txBytes),
		[]string{sig},
		ledger.TransactionResponseOptions{ShowEffects: true, ShowObjectChanges: true, ShowEvents: true},
	)
	if err != nil {
		return failed(fmt.Errorf("submit: %w", err))
	}
	return fromResponse(resp)
}

func fromResponse(resp *ledger.TransactionBlockResponse) Outcome {
	out := Outcome{Digest: resp.Digest, RawEffects: resp.Raw}
	for _, c := range resp.ObjectChanges {
		if c.Type != ledger.ChangeCreated {
			continue
		}
		out.Created = append(out.Created, CreatedObject{
			ObjectID:   c.ObjectID,
			ObjectType: c.ObjectType,
			Owner:      c.Owner,
		})
	}

	switch {
	case len(resp.Errors) > 0:
		out.FailureReason = fmt.Sprintf("ledger errors: %v", resp.Errors)
	case resp.Effects == nil:
		out.FailureReason = "ledger returned no effects"
	case resp.Effects.Status.Status != ledger.StatusSuccess:
		out.FailureReason = fmt.Sprintf("execution %s: %s", resp.Effects.Status.Status, resp.Effects.Status.Error)
	default:
		out.Success = true
	}
	return out
}

func failed(err error) Outcome {
	return Outcome{FailureReason: err.Error()}
}

func (x *Executor) resolveObjects(ctx context.Context, plan *txplan.Plan) (map[string]txplan.ObjectArg, error) {
	ids := plan.ObjectInputs()
	objects := make(map[string]txplan.ObjectArg, len(ids))
	for _, id := range ids {
		resp, err := x.client.GetObject(ctx, id, ledger.ObjectDataOptions{ShowOwner: true})
		if err != nil {
			return nil, fmt.Errorf("resolve object %s: %w", id, err)
		}
		if resp.Error != nil || resp.Data == nil {
			code := "missing data"
			if resp.Error != nil {
				code = resp.Error.Code
			}
			return nil, fmt.Errorf("resolve object %s: %s", id, code)
		}

		d := resp.Data
		if d.Owner != nil && d.Owner.Kind == ledger.OwnerShared {
			objects[id] = txplan.ObjectArg{
				Shared:               true,
				InitialSharedVersion: uint64(d.Owner.InitialSharedVersion),
				Mutable:              true,
			}
			continue
		}
		objects[id] = txplan.ObjectArg{Ref: txplan.ObjectRef{
			ObjectID: d.ObjectID,
			Version:  uint64(d.Version),
			Digest:   d.Digest,
		}}
	}
	return objects, nil
}

// selectGas picks sponsor coins until their balance covers the budget. Coins
// already used as inputs are skipped.
func (x *Executor) selectGas(ctx context.Context, plan *txplan.Plan, inputs map[string]txplan.ObjectArg) ([]txplan.ObjectRef, error) {
	var (
		payment []txplan.ObjectRef
		total   uint64
		cursor  *string
	)
	for {
		page, err := x.client.GetCoins(ctx, plan.FeePayer, x.coinType, cursor, coinPageSize)
		if err != nil {
			return nil, fmt.Errorf("list gas coins: %w", err)
		}
		for _, c := range page.Data {
			id, err := ledger.NormalizeAddress(c.CoinObjectID)
			if err != nil {
				continue
			}
			if _, used := inputs[id]; used {
				continue
			}
			payment = append(payment, txplan.ObjectRef{ObjectID: c.CoinObjectID, Version: uint64(c.Version), Digest: c.Digest})
			total += uint64(c.Balance)
			if total >= plan.FeeBudget {
				return payment, nil
			}
			if len(payment) == maxGasCoins {
				return nil, fmt.Errorf("gas budget %d not covered by %d coins", plan.FeeBudget, maxGasCoins)
			}
		}
		if !page.HasNextPage || page.NextCursor == nil {
			break
		}
		cursor = page.NextCursor
	}
	return nil, fmt.Errorf("sponsor gas coins hold %d, budget needs %d", total, plan.FeeBudget)
}

func planLabel(plan *txplan.Plan) string {
	if len(plan.Calls) == 0 {
		return ""
	}
	return plan.Calls[0].Label()
}
