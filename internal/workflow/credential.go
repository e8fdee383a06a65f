package workflow

import (
	"context"
	"fmt"

	"sponsorrail/internal/apperr"
	"sponsorrail/internal/effects"
	"sponsorrail/internal/executor"
	"sponsorrail/internal/logtrace"
	"sponsorrail/internal/reconcile"
	"sponsorrail/internal/sponsor"
	"sponsorrail/internal/txplan"
)

const opCredential = "workflow.credential"

// IssueCredential mints a credential token to the sponsor, confirms the
// sponsor holds it, transfers it to the user and polls for delivery. The
// mint cannot target the user directly, so the token sits in sponsor custody
// between the two transactions.
func (o *Orchestrator) IssueCredential(ctx context.Context, req CredentialRequest) (*CredentialResult, error) {
	user, err := validateAddress(opCredential, "userAddress", req.UserAddress)
	if err != nil {
		return nil, err
	}
	pkg, err := validateAddress(opCredential, "packageId", req.PackageID)
	if err != nil {
		return nil, err
	}
	ctx = logtrace.EnsureCorrelationID(ctx)

	var (
		targets = o.deployment.Credential
		res     = &CredentialResult{User: user}
		signer  sponsor.Signer
		mint    executor.Outcome
	)

	s := newSaga(KindCredential)
	s.residual = func(ctx context.Context, failed string, err error) {
		reason := reconcile.ReasonUntrackedObject
		switch {
		case apperr.KindOf(err) == apperr.KindMintNotConfirmed:
			reason = reconcile.ReasonMintNotConfirmed
		case res.TokenID != "":
			reason = reconcile.ReasonTransferFailed
		}
		o.record(ctx, reconcile.Entry{
			Workflow:       string(KindCredential),
			ObjectID:       res.TokenID,
			Sponsor:        res.Sponsor,
			User:           user,
			MintDigest:     res.MintDigest,
			TransferDigest: res.TransferDigest,
			Reason:         reason,
			Detail:         fmt.Sprintf("%s: %v", failed, err),
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
		{name: "mint", reaches: StateMintExecuted, irreversible: true, run: func(ctx context.Context) error {
			var err error
			mint, err = o.submit(ctx, opCredential, signer, o.budgets.Mint, mintCall(pkg, targets, req))
			res.MintDigest = mint.Digest
			return err
		}},
		{name: "extract_token", reaches: StateObjectsExtracted, run: func(ctx context.Context) error {
			m, err := effects.Extract(mint, targets.Token)
			if err != nil {
				return err
			}
			token, ok := m.First(targets.Token.Name)
			if !ok {
				return apperr.New(apperr.KindExpectedObjectNotFound, opCredential, "mint %s created no credential token", mint.Digest)
			}
			res.TokenID = token.ObjectID
			return nil
		}},
		{name: "confirm_mint", reaches: StateMintConfirmed, run: func(ctx context.Context) error {
			claim := o.verifier.Verify(ctx, res.TokenID, res.Sponsor, o.policies.MintConfirm)
			if !claim.Verified {
				return apperr.New(apperr.KindMintNotConfirmed, opCredential,
					"token %s not observed in sponsor custody (%s)", res.TokenID, custodyDetail(claim))
			}
			res.Notes = append(res.Notes, "credential minted and held by sponsor")
			return nil
		}},
		{name: "transfer", reaches: StateTransferExecuted, run: func(ctx context.Context) error {
			outcome, err := o.submit(ctx, opCredential, signer, o.budgets.Transfer,
				txplan.TransferObjects([]txplan.Arg{txplan.Object(res.TokenID)}, txplan.Address(user)),
			)
			res.TransferDigest = outcome.Digest
			return err
		}},
		{name: "verify_delivery", reaches: StateOwnershipPolled, run: func(ctx context.Context) error {
			res.Ownership = o.verifier.Verify(ctx, res.TokenID, user, o.policies.DeliveryVerify)
			res.Verified = res.Ownership.Verified
			if res.Verified {
				res.Notes = append(res.Notes, "credential confirmed in user custody")
				return nil
			}
			res.Notes = append(res.Notes, "credential transferred but delivery not yet visible; re-check ownership later")
			o.record(ctx, reconcile.Entry{
				Workflow:       string(KindCredential),
				ObjectID:       res.TokenID,
				Sponsor:        res.Sponsor,
				User:           user,
				MintDigest:     res.MintDigest,
				TransferDigest: res.TransferDigest,
				Reason:         reconcile.ReasonDeliveryUnverified,
				Detail:         custodyDetail(res.Ownership),
			})
			return nil
		}},
	})
	if err != nil {
		o.finish(ctx, KindCredential, nil, err)
		return nil, err
	}

	res.Status = statusFor(res.Verified)
	o.finish(ctx, KindCredential, res, nil)
	return res, nil
}

// mintCall passes the descriptive fields in declaration order.
func mintCall(pkg string, t CredentialTargets, req CredentialRequest) txplan.CallSpec {
	return txplan.MoveCall(fmt.Sprintf("%s::%s::%s", pkg, t.Module, t.Function), nil,
		txplan.String(req.Name),
		txplan.String(req.Specialization),
		txplan.String(req.Credentials),
		txplan.U64(req.YearsExperience),
		txplan.String(req.Bio),
		txplan.Strings(req.SessionTypes),
		txplan.Strings(req.Languages),
		txplan.U64(req.Rating),
		txplan.U64(req.TotalSessions),
		txplan.String(req.ProfileImageURL),
		txplan.String(req.CertificationURL),
	)
}
