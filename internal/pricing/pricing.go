// Package pricing looks up kiosk listing prices. Results are advisory.
package pricing

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"sponsorrail/internal/ledger"
)

const (
	listingMarker = "kiosk::Listing"
	pageSize      = 50
)

type Lookup struct {
	client ledger.Client
}

func NewLookup(client ledger.Client) *Lookup {
	return &Lookup{client: client}
}

type listingKey struct {
	ID string `json:"id"`
}

type fieldContent struct {
	Fields struct {
		Value ledger.Uint64 `json:"value"`
	} `json:"fields"`
}

// ListingPrice returns the price of itemID in kioskID. The bool is false when
// the item is not listed.
func (l *Lookup) ListingPrice(ctx context.Context, kioskID, itemID string) (uint64, bool, error) {
	var cursor *string
	for {
		page, err := l.client.GetDynamicFields(ctx, kioskID, cursor, pageSize)
		if err != nil {
			return 0, false, fmt.Errorf("list kiosk fields: %w", err)
		}
		for _, f := range page.Data {
			if !strings.Contains(f.Name.Type, listingMarker) {
				continue
			}
			var key listingKey
			if err := json.Unmarshal(f.Name.Value, &key); err != nil || !ledger.SameAddress(key.ID, itemID) {
				continue
			}
			return l.readValue(ctx, f.ObjectID)
		}
		if !page.HasNextPage || page.NextCursor == nil {
			return 0, false, nil
		}
		cursor = page.NextCursor
	}
}

func (l *Lookup) readValue(ctx context.Context, fieldID string) (uint64, bool, error) {
	resp, err := l.client.GetObject(ctx, fieldID, ledger.ObjectDataOptions{ShowContent: true})
	if err != nil {
		return 0, false, fmt.Errorf("read listing %s: %w", fieldID, err)
	}
	if resp.Data == nil || len(resp.Data.Content) == 0 {
		return 0, false, nil
	}
	var c fieldContent
	if err := json.Unmarshal(resp.Data.Content, &c); err != nil {
		return 0, false, fmt.Errorf("decode listing %s: %w", fieldID, err)
	}
	return uint64(c.Fields.Value), true, nil
}
