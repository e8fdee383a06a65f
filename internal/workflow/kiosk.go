package workflow

import (
	"context"
	"fmt"

	"sponsorrail/internal/apperr"
	"sponsorrail/internal/custody"
	"sponsorrail/internal/effects"
	"sponsorrail/internal/executor"
	"sponsorrail/internal/logtrace"
	"sponsorrail/internal/reconcile"
	"sponsorrail/internal/sponsor"
	"sponsorrail/internal/txplan"
)

const opKiosk = "workflow.kiosk"

// ProvisionKiosk creates a kiosk, hands its owner cap to the user and shares
// the kiosk, all in one transaction, then confirms the cap arrived. Two calls
// for the same user create two kiosks.
func (o *Orchestrator) ProvisionKiosk(ctx context.Context, req KioskRequest) (*KioskResult, error) {
	user, err := validateAddress(opKiosk, "userAddress", req.UserAddress)
	if err != nil {
		return nil, err
	}
	ctx = logtrace.EnsureCorrelationID(ctx)

	var (
		targets = o.deployment.Kiosk
		res     = &KioskResult{User: user}
		signer  sponsor.Signer
		outcome executor.Outcome
	)

	s := newSaga(KindKiosk)
	s.residual = func(ctx context.Context, failed string, err error) {
		o.record(ctx, reconcile.Entry{
			Workflow:   string(KindKiosk),
			Sponsor:    res.Sponsor,
			User:       user,
			MintDigest: res.Digest,
			Reason:     reconcile.ReasonUntrackedObject,
			Detail:     fmt.Sprintf("%s: %v", failed, err),
		})
	}

	err = s.run(ctx, []step{
		{name: "preflight", reaches: StateFundingChecked, run: func(ctx context.Context) error {
			var err error
			signer, _, err = o.preflight(ctx)
			if err == nil {
				res.Sponsor = signer.Address()
			}
			return err
		}},
		{name: "create_kiosk", reaches: StatePhaseExecuted, irreversible: true, run: func(ctx context.Context) error {
			var err error
			outcome, err = o.submit(ctx, opKiosk, signer, o.budgets.Kiosk,
				txplan.MoveCall(targets.NewTarget, nil),
				txplan.TransferObjects([]txplan.Arg{txplan.NestedResult(0, 1)}, txplan.Address(user)),
				txplan.MoveCall(targets.ShareTarget, []string{targets.KioskType}, txplan.NestedResult(0, 0)),
			)
			res.Digest = outcome.Digest
			return err
		}},
		{name: "extract_objects", reaches: StateObjectsExtracted, run: func(ctx context.Context) error {
			m, err := effects.Extract(outcome, targets.Kiosk, targets.OwnerCap)
			if err != nil {
				return err
			}
			kiosk, _ := m.First(targets.Kiosk.Name)
			ownerCap, _ := m.First(targets.OwnerCap.Name)
			if kiosk.ObjectID == "" || ownerCap.ObjectID == "" {
				return apperr.New(apperr.KindExpectedObjectNotFound, opKiosk, "transaction %s did not report both kiosk and owner cap", outcome.Digest)
			}
			res.KioskID, res.KioskOwnerCapID = kiosk.ObjectID, ownerCap.ObjectID
			res.Notes = append(res.Notes, "kiosk created and shared")
			return nil
		}},
		{name: "verify_owner_cap", reaches: StateOwnershipPolled, run: func(ctx context.Context) error {
			res.Ownership = o.verifier.Verify(ctx, res.KioskOwnerCapID, user, o.policies.KioskVerify)
			res.Verified = res.Ownership.Verified
			if res.Verified {
				res.Notes = append(res.Notes, "owner cap confirmed in user custody")
				return nil
			}
			res.Notes = append(res.Notes, "owner cap transfer submitted but not yet visible; re-check ownership later")
			o.record(ctx, reconcile.Entry{
				Workflow:   string(KindKiosk),
				ObjectID:   res.KioskOwnerCapID,
				Sponsor:    res.Sponsor,
				User:       user,
				MintDigest: res.Digest,
				Reason:     reconcile.ReasonKioskUnverified,
				Detail:     custodyDetail(res.Ownership),
			})
			return nil
		}},
		{name: "creator_metadata", optional: true, run: func(ctx context.Context) error {
			return o.recordCreator(ctx, signer, res)
		}},
	})
	if err != nil {
		o.finish(ctx, KindKiosk, nil, err)
		return nil, err
	}

	res.Status = statusFor(res.Verified)
	o.finish(ctx, KindKiosk, res, nil)
	return res, nil
}

// recordCreator runs the optional creator-metadata call. Its errors are
// noted on the result and otherwise ignored.
func (o *Orchestrator) recordCreator(ctx context.Context, signer sponsor.Signer, res *KioskResult) error {
	target := o.deployment.Kiosk.CreatorMetadataTarget
	if target == "" {
		res.Notes = append(res.Notes, "creator metadata not configured")
		return nil
	}
	outcome, err := o.submit(ctx, opKiosk, signer, o.budgets.Metadata,
		txplan.MoveCall(target, nil, txplan.Object(res.KioskID), txplan.Address(res.User)),
	)
	if err != nil {
		res.Notes = append(res.Notes, "creator metadata not recorded")
		return err
	}
	res.MetadataDigest = outcome.Digest
	res.Notes = append(res.Notes, "creator metadata recorded")
	return nil
}

func custodyDetail(c custody.Claim) string {
	observed := c.ObservedOwner
	if observed == "" {
		observed = "unknown"
	}
	return fmt.Sprintf("owner %s after %d reads", observed, c.Attempts)
}
