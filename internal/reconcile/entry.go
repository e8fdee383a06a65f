// Package reconcile tracks objects left in sponsor custody, or delivered
// without confirmation, after a workflow ended. Entries are resolved by a
// read-only sweep; nothing here resubmits transactions.
package reconcile

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

type Reason string

const (
	ReasonMintNotConfirmed   Reason = "mint_not_confirmed"
	ReasonTransferFailed     Reason = "transfer_failed"
	ReasonDeliveryUnverified Reason = "delivery_unverified"
	ReasonKioskUnverified    Reason = "kiosk_unverified"
	ReasonUntrackedObject    Reason = "untracked_object"
)

var ErrNotFound = errors.New("reconcile: entry not found")

// Entry is one residual-custody record. ObjectID may be empty when the
// created object could not be identified.
type Entry struct {
	ID             string     `json:"id"`
	Workflow       string     `json:"workflow"`
	ObjectID       string     `json:"objectId"`
	Sponsor        string     `json:"sponsor"`
	User           string     `json:"user"`
	MintDigest     string     `json:"mintDigest,omitempty"`
	TransferDigest string     `json:"transferDigest,omitempty"`
	Reason         Reason     `json:"reason"`
	Detail         string     `json:"detail,omitempty"`
	CreatedAt      time.Time  `json:"createdAt"`
	ResolvedAt     *time.Time `json:"resolvedAt,omitempty"`
}

// Store persists entries.
type Store interface {
	Record(ctx context.Context, e Entry) (Entry, error)
	Pending(ctx context.Context) ([]Entry, error)
	Resolve(ctx context.Context, id string, at time.Time) error
}

// prepare fills in the id and timestamp of a new entry.
func prepare(e Entry, now time.Time) Entry {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = now.UTC()
	}
	e.ResolvedAt = nil
	return e
}
