package ledger

import (
	"context"
	"fmt"
	"sync"
)

// Submission records one ExecuteTransactionBlock call seen by FakeClient.
type Submission struct {
	TxBytes    string
	Signatures []string
	Options    TransactionResponseOptions
}

// FakeClient is an in-memory scripted ledger for tests and dry runs.
// Object reads return the queued responses for an id in order and then keep
// returning the last one.
type FakeClient struct {
	mu sync.Mutex

	Balances      map[string]Balance
	BalanceErr    error
	Coins         map[string][]Coin
	GasPrice      uint64
	Objects       map[string][]ObjectResponse
	ObjectErr     error
	DynamicFields map[string][]DynamicFieldInfo

	// OnExecute, when set, answers submissions. Otherwise ExecuteResponses
	// are consumed in order.
	OnExecute        func(sub Submission) (*TransactionBlockResponse, error)
	ExecuteResponses []*TransactionBlockResponse

	submissions  []Submission
	objectReads  map[string]int
	balanceReads int
}

func NewFakeClient() *FakeClient {
	return &FakeClient{
		Balances:      map[string]Balance{},
		Coins:         map[string][]Coin{},
		GasPrice:      1000,
		Objects:       map[string][]ObjectResponse{},
		DynamicFields: map[string][]DynamicFieldInfo{},
		objectReads:   map[string]int{},
	}
}

// PutObject queues a read response for id owned by owner.
func (f *FakeClient) PutObject(id, objectType string, owner *Owner) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Objects[id] = append(f.Objects[id], ObjectResponse{Data: &ObjectData{
		ObjectID: id,
		Version:  1,
		Digest:   fakeDigest,
		Type:     objectType,
		Owner:    owner,
	}})
}

// Submissions returns a copy of every submission so far.
func (f *FakeClient) Submissions() []Submission {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]Submission, len(f.submissions))
	copy(out, f.submissions)
	return out
}

func (f *FakeClient) ObjectReads(id string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.objectReads[id]
}

func (f *FakeClient) BalanceReads() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.balanceReads
}

func (f *FakeClient) GetBalance(_ context.Context, owner, coinType string) (*Balance, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.balanceReads++
	if f.BalanceErr != nil {
		return nil, f.BalanceErr
	}
	b, ok := f.Balances[owner]
	if !ok {
		return &Balance{CoinType: coinType}, nil
	}
	return &b, nil
}

func (f *FakeClient) GetCoins(_ context.Context, owner, _ string, _ *string, _ int) (*CoinPage, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	coins := f.Coins[owner]
	return &CoinPage{Data: append([]Coin(nil), coins...)}, nil
}

func (f *FakeClient) GetReferenceGasPrice(context.Context) (uint64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.GasPrice, nil
}

func (f *FakeClient) GetObject(_ context.Context, objectID string, _ ObjectDataOptions) (*ObjectResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.ObjectErr != nil {
		return nil, f.ObjectErr
	}
	idx := f.objectReads[objectID]
	f.objectReads[objectID]++

	queued := f.Objects[objectID]
	if len(queued) == 0 {
		return &ObjectResponse{Error: &ObjectError{Code: "notExists", ObjectID: objectID}}, nil
	}
	if idx >= len(queued) {
		idx = len(queued) - 1
	}
	resp := queued[idx]
	return &resp, nil
}

func (f *FakeClient) GetDynamicFields(_ context.Context, parentID string, _ *string, _ int) (*DynamicFieldPage, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return &DynamicFieldPage{Data: append([]DynamicFieldInfo(nil), f.DynamicFields[parentID]...)}, nil
}

func (f *FakeClient) ExecuteTransactionBlock(_ context.Context, txBytes string, signatures []string, opts TransactionResponseOptions) (*TransactionBlockResponse, error) {
	f.mu.Lock()
	sub := Submission{TxBytes: txBytes, Signatures: signatures, Options: opts}
	f.submissions = append(f.submissions, sub)
	n := len(f.submissions)
	hook := f.OnExecute
	f.mu.Unlock()

	if hook != nil {
		return hook(sub)
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if n > len(f.ExecuteResponses) {
		return nil, fmt.Errorf("fake ledger: no response scripted for submission %d", n)
	}
	return f.ExecuteResponses[n-1], nil
}

// fakeDigest is a valid base58 encoding of 32 zero bytes.
const fakeDigest = "11111111111111111111111111111111"
