package ledger

import (
	"context"
)

// Client is the read/submit surface of a ledger fullnode.
type Client interface {
	GetBalance(ctx context.Context, owner, coinType string) (*Balance, error)
	GetCoins(ctx context.Context, owner, coinType string, cursor *string, limit int) (*CoinPage, error)
	GetReferenceGasPrice(ctx context.Context) (uint64, error)
	GetObject(ctx context.Context, objectID string, opts ObjectDataOptions) (*ObjectResponse, error)
	GetDynamicFields(ctx context.Context, parentID string, cursor *string, limit int) (*DynamicFieldPage, error)
	ExecuteTransactionBlock(ctx context.Context, txBytes string, signatures []string, opts TransactionResponseOptions) (*TransactionBlockResponse, error)
}

// HealthChecker is implemented by clients that can probe node reachability.
type HealthChecker interface {
	Ping(ctx context.Context) error
}
