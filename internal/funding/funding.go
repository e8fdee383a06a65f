// Package funding checks that the sponsor can pay for a workflow before any
// transaction is built.
package funding

import (
	"context"

	"sponsorrail/internal/apperr"
	"sponsorrail/internal/ledger"
	"sponsorrail/internal/logtrace"
)

// Status is a point-in-time view of the sponsor's spendable coins. It is
// never cached.
type Status struct {
	Address      string `json:"address"`
	CoinType     string `json:"coinType"`
	TotalBalance uint64 `json:"totalBalance"`
	CoinCount    int    `json:"coinCount"`
}

// Require fails with InsufficientFunds when there are no coins at all or the
// balance is below minBalance.
func (s Status) Require(minBalance uint64) error {
	if s.CoinCount == 0 {
		return apperr.New(apperr.KindInsufficientFunds, "funding", "sponsor %s holds no %s coins", s.Address, s.CoinType)
	}
	if s.TotalBalance < minBalance {
		return apperr.New(apperr.KindInsufficientFunds, "funding",
			"sponsor %s balance %d is below the minimum %d", s.Address, s.TotalBalance, minBalance)
	}
	return nil
}

type Checker struct {
	client   ledger.Client
	coinType string
}

func NewChecker(client ledger.Client, coinType string) *Checker {
	if coinType == "" {
		coinType = ledger.SUICoinType
	}
	return &Checker{client: client, coinType: coinType}
}

// Check queries the balance of address. A failed query is LedgerUnavailable.
func (c *Checker) Check(ctx context.Context, address string) (Status, error) {
	bal, err := c.client.GetBalance(ctx, address, c.coinType)
	if err != nil {
		return Status{}, apperr.Wrap(apperr.KindLedgerUnavailable, "funding", err)
	}
	st := Status{
		Address:      address,
		CoinType:     c.coinType,
		TotalBalance: uint64(bal.TotalBalance),
		CoinCount:    bal.CoinObjectCount,
	}
	logtrace.Debug(ctx, "sponsor funding checked", logtrace.Fields{
		logtrace.FieldModule:    "funding",
		logtrace.FieldSponsor:   address,
		logtrace.FieldBalance:   st.TotalBalance,
		logtrace.FieldCoinCount: st.CoinCount,
	})
	return st, nil
}
