package ledger

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/ethereum/go-ethereum/rpc"
	gocache "github.com/patrickmn/go-cache"
	"github.com/pkg/errors"
	"go.uber.org/ratelimit"
	"golang.org/x/sync/singleflight"

	"sponsorrail/internal/apperr"
	"sponsorrail/internal/logtrace"
)

const (
	requestTypeWaitForLocalExecution = "WaitForLocalExecution"
	gasPriceCacheKey                 = "reference_gas_price"
	defaultGasPriceTTL               = 10 * time.Minute
	defaultHTTPTimeout               = 30 * time.Second
)

// RPCClient talks to a fullnode over JSON-RPC 2.0.
type RPCClient struct {
	rpc      *rpc.Client
	limiter  ratelimit.Limiter
	gasCache *gocache.Cache
	sf       singleflight.Group
}

type RPCClientConfig struct {
	URL string
	// RequestsPerSecond caps outbound calls; 0 disables the limiter.
	RequestsPerSecond int
	GasPriceTTL       time.Duration
	HTTPTimeout       time.Duration
}

func NewRPCClient(ctx context.Context, cfg RPCClientConfig) (*RPCClient, error) {
	if cfg.URL == "" {
		return nil, fmt.Errorf("rpc url is required")
	}
	timeout := cfg.HTTPTimeout
	if timeout <= 0 {
		timeout = defaultHTTPTimeout
	}
	ttl := cfg.GasPriceTTL
	if ttl <= 0 {
		ttl = defaultGasPriceTTL
	}

	cli, err := rpc.DialOptions(ctx, cfg.URL, rpc.WithHTTPClient(&http.Client{Timeout: timeout}))
	if err != nil {
		return nil, fmt.Errorf("dial rpc: %w", err)
	}

	c := &RPCClient{
		rpc:      cli,
		gasCache: gocache.New(ttl, 2*ttl),
	}
	if cfg.RequestsPerSecond > 0 {
		c.limiter = ratelimit.New(cfg.RequestsPerSecond)
	}
	return c, nil
}

func (c *RPCClient) Close() {
	if c.rpc != nil {
		c.rpc.Close()
	}
}

func (c *RPCClient) call(ctx context.Context, result any, method string, args ...any) error {
	if c.limiter != nil {
		c.limiter.Take()
	}
	err := c.rpc.CallContext(ctx, result, method, args...)
	if err == nil {
		return nil
	}

	logtrace.Debug(ctx, "rpc call failed", logtrace.Fields{
		logtrace.FieldModule: "ledger",
		logtrace.FieldMethod: method,
		logtrace.FieldError:  err.Error(),
	})

	// A JSON-RPC error object means the node answered; anything else is transport.
	var rpcErr rpc.Error
	if errors.As(err, &rpcErr) {
		return errors.Wrapf(err, "rpc %s (code %d)", method, rpcErr.ErrorCode())
	}
	return apperr.Wrap(apperr.KindLedgerUnavailable, method, errors.Wrap(err, "rpc transport"))
}

func (c *RPCClient) GetBalance(ctx context.Context, owner, coinType string) (*Balance, error) {
	var out Balance
	if err := c.call(ctx, &out, "suix_getBalance", owner, coinType); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *RPCClient) GetCoins(ctx context.Context, owner, coinType string, cursor *string, limit int) (*CoinPage, error) {
	var out CoinPage
	if err := c.call(ctx, &out, "suix_getCoins", owner, coinType, cursor, limit); err != nil {
		return nil, err
	}
	return &out, nil
}

// GetReferenceGasPrice is cached; the price only moves at epoch boundaries.
func (c *RPCClient) GetReferenceGasPrice(ctx context.Context) (uint64, error) {
	if v, ok := c.gasCache.Get(gasPriceCacheKey); ok {
		return v.(uint64), nil
	}

	res, err, _ := c.sf.Do(gasPriceCacheKey, func() (any, error) {
		var price Uint64
		if err := c.call(ctx, &price, "suix_getReferenceGasPrice"); err != nil {
			return nil, err
		}
		c.gasCache.SetDefault(gasPriceCacheKey, uint64(price))
		return uint64(price), nil
	})
	if err != nil {
		return 0, err
	}
	return res.(uint64), nil
}

func (c *RPCClient) GetObject(ctx context.Context, objectID string, opts ObjectDataOptions) (*ObjectResponse, error) {
	var out ObjectResponse
	if err := c.call(ctx, &out, "sui_getObject", objectID, opts); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *RPCClient) GetDynamicFields(ctx context.Context, parentID string, cursor *string, limit int) (*DynamicFieldPage, error) {
	var out DynamicFieldPage
	if err := c.call(ctx, &out, "suix_getDynamicFields", parentID, cursor, limit); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *RPCClient) ExecuteTransactionBlock(ctx context.Context, txBytes string, signatures []string, opts TransactionResponseOptions) (*TransactionBlockResponse, error) {
	var raw json.RawMessage
	if err := c.call(ctx, &raw, "sui_executeTransactionBlock", txBytes, signatures, opts, requestTypeWaitForLocalExecution); err != nil {
		return nil, err
	}
	var out TransactionBlockResponse
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, errors.Wrap(err, "decode execute response")
	}
	out.Raw = raw
	return &out, nil
}

// Ping checks the node answers a cheap query.
func (c *RPCClient) Ping(ctx context.Context) error {
	var seq Uint64
	return c.call(ctx, &seq, "sui_getLatestCheckpointSequenceNumber")
}
