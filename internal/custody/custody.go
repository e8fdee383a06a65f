// Package custody checks who currently owns an object on the ledger.
package custody

import (
	"context"
	"errors"
	"fmt"
	"time"

	"sponsorrail/internal/ledger"
	"sponsorrail/internal/logtrace"
	"sponsorrail/internal/poll"
)

// ErrNoOwner is returned by Observe when the object has no account owner
// (missing, shared, wrapped or immutable).
var ErrNoOwner = errors.New("custody: object has no account owner")

// Claim is one ownership observation. Only the latest claim for an object
// matters.
type Claim struct {
	ObjectID      string    `json:"objectId"`
	ExpectedOwner string    `json:"expectedOwner"`
	ObservedOwner string    `json:"observedOwner,omitempty"`
	Verified      bool      `json:"verified"`
	CheckedAt     time.Time `json:"checkedAt"`
	Attempts      int       `json:"attempts"`
}

// Observer is told how each verification ended.
type Observer interface {
	ObserveOwnershipPoll(verified bool, attempts int)
}

type Verifier struct {
	client   ledger.Client
	observer Observer
	now      func() time.Time
}

func NewVerifier(client ledger.Client, observer Observer) *Verifier {
	return &Verifier{client: client, observer: observer, now: time.Now}
}

// Observe reads the object once and returns its owning account.
func (v *Verifier) Observe(ctx context.Context, objectID string) (string, error) {
	resp, err := v.client.GetObject(ctx, objectID, ledger.ObjectDataOptions{ShowOwner: true, ShowType: true})
	if err != nil {
		return "", err
	}
	if resp.Error != nil {
		return "", fmt.Errorf("object %s: %s", objectID, resp.Error.Code)
	}
	if resp.Data == nil {
		return "", fmt.Errorf("object %s: %w", objectID, ErrNoOwner)
	}
	owner, ok := resp.Data.Owner.AccountAddress()
	if !ok {
		return "", fmt.Errorf("object %s owned by %q: %w", objectID, resp.Data.Owner.String(), ErrNoOwner)
	}
	return owner, nil
}

// Verify polls until objectID is owned by expectedOwner or the policy is
// spent. It never fails: exhaustion yields the last claim with Verified
// false.
func (v *Verifier) Verify(ctx context.Context, objectID, expectedOwner string, policy poll.Policy) Claim {
	claim := Claim{ObjectID: objectID, ExpectedOwner: expectedOwner}

	attempts, err := poll.Until(ctx, policy, func(ctx context.Context) (bool, error) {
		owner, err := v.Observe(ctx, objectID)
		claim.CheckedAt = v.now()
		if err != nil {
			claim.ObservedOwner = ""
			return false, err
		}
		claim.ObservedOwner = owner
		return ledger.SameAddress(owner, expectedOwner), nil
	})
	claim.Attempts = attempts
	claim.Verified = err == nil

	fields := logtrace.Fields{
		logtrace.FieldModule:   "custody",
		logtrace.FieldObjectID: objectID,
		logtrace.FieldUser:     expectedOwner,
		logtrace.FieldAttempts: attempts,
		"observed_owner":       claim.ObservedOwner,
	}
	if claim.Verified {
		logtrace.Debug(ctx, "ownership confirmed", fields)
	} else {
		fields[logtrace.FieldError] = err.Error()
		logtrace.Warn(ctx, "ownership not confirmed", fields)
	}
	if v.observer != nil {
		v.observer.ObserveOwnershipPoll(claim.Verified, attempts)
	}
	return claim
}
