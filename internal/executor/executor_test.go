package executor

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/binary"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sponsorrail/internal/apperr"
	"sponsorrail/internal/ledger"
	"sponsorrail/internal/sponsor"
	"sponsorrail/internal/txplan"
)

const (
	userAddr   = "0xb0b"
	zeroDigest = "11111111111111111111111111111111"
)

func testIdentity(t *testing.T) *sponsor.Identity {
	t.Helper()
	id, err := sponsor.ParseSecret(base64.StdEncoding.EncodeToString(bytes.Repeat([]byte{0x42}, 32)))
	require.NoError(t, err)
	return id
}

func fundedLedger(owner string, balances ...uint64) *ledger.FakeClient {
	fake := ledger.NewFakeClient()
	for i, b := range balances {
		fake.Coins[owner] = append(fake.Coins[owner], ledger.Coin{
			CoinType:     ledger.SUICoinType,
			CoinObjectID: "0xc0" + string(rune('0'+i)),
			Version:      3,
			Digest:       zeroDigest,
			Balance:      ledger.Uint64(b),
		})
	}
	return fake
}

func successResponse(created ...ledger.ObjectChange) *ledger.TransactionBlockResponse {
	return &ledger.TransactionBlockResponse{
		Digest:        "D1",
		Effects:       &ledger.TransactionEffects{Status: ledger.ExecutionStatus{Status: ledger.StatusSuccess}},
		ObjectChanges: created,
		Raw:           []byte(`{"digest":"D1"}`),
	}
}

func kioskPlan(t *testing.T, sender string) *txplan.Plan {
	t.Helper()
	p, err := txplan.Build([]txplan.CallSpec{
		txplan.MoveCall("0x2::kiosk::new", nil),
		txplan.TransferObjects([]txplan.Arg{txplan.NestedResult(0, 1)}, txplan.Address(userAddr)),
	}, sender, sender, 1000)
	require.NoError(t, err)
	return p
}

type recordingObserver struct{ outcomes []Outcome }

func (r *recordingObserver) ObserveSubmission(_ string, o Outcome) { r.outcomes = append(r.outcomes, o) }

func TestExecuteSuccess(t *testing.T) {
	id := testIdentity(t)
	fake := fundedLedger(id.Address(), 600, 600, 600)
	fake.ExecuteResponses = []*ledger.TransactionBlockResponse{successResponse(
		ledger.ObjectChange{Type: ledger.ChangeMutated, ObjectID: "0xc00", ObjectType: "0x2::coin::Coin<0x2::sui::SUI>"},
		ledger.ObjectChange{Type: ledger.ChangeCreated, ObjectID: "0x77", ObjectType: "0x2::kiosk::Kiosk", Owner: &ledger.Owner{Kind: ledger.OwnerShared, InitialSharedVersion: 5}},
	)}
	obs := &recordingObserver{}

	out, err := New(fake, WithObserver(obs)).Execute(context.Background(), kioskPlan(t, id.Address()), id)
	require.NoError(t, err)

	assert.True(t, out.Success)
	assert.Equal(t, "D1", out.Digest)
	require.Len(t, out.Created, 1)
	assert.Equal(t, "0x77", out.Created[0].ObjectID)
	assert.JSONEq(t, `{"digest":"D1"}`, string(out.RawEffects))
	require.Len(t, obs.outcomes, 1)

	subs := fake.Submissions()
	require.Len(t, subs, 1)
	assert.Len(t, subs[0].Signatures, 1)
	assert.True(t, subs[0].Options.ShowEffects)
	assert.True(t, subs[0].Options.ShowObjectChanges)
	assert.True(t, subs[0].Options.ShowEvents)

	txBytes, err := base64.StdEncoding.DecodeString(subs[0].TxBytes)
	require.NoError(t, err)
	// Tail: payment vector, owner, price, budget, expiration. Two coins of
	// 600 cover the budget of 1000.
	n := len(txBytes)
	assert.Equal(t, byte(0x00), txBytes[n-1])
	assert.Equal(t, le64(1000), txBytes[n-9:n-1], "budget")
	assert.Equal(t, le64(1000), txBytes[n-17:n-9], "reference gas price")
	assert.Equal(t, byte(0x02), txBytes[n-1-8-8-32-2*73-1], "payment vector length")
}

func TestExecuteOnChainFailureKeepsDigest(t *testing.T) {
	id := testIdentity(t)
	fake := fundedLedger(id.Address(), 5000)
	fake.ExecuteResponses = []*ledger.TransactionBlockResponse{{
		Digest:  "D2",
		Effects: &ledger.TransactionEffects{Status: ledger.ExecutionStatus{Status: "failure", Error: "MoveAbort(7)"}},
	}}

	out, err := New(fake).Execute(context.Background(), kioskPlan(t, id.Address()), id)
	require.NoError(t, err)
	assert.False(t, out.Success)
	assert.Equal(t, "D2", out.Digest)
	assert.Contains(t, out.FailureReason, "MoveAbort(7)")
}

func TestExecuteFailuresBecomeOutcomes(t *testing.T) {
	id := testIdentity(t)

	t.Run("not enough gas", func(t *testing.T) {
		fake := fundedLedger(id.Address(), 10, 20)
		out, err := New(fake).Execute(context.Background(), kioskPlan(t, id.Address()), id)
		require.NoError(t, err)
		assert.False(t, out.Success)
		assert.Contains(t, out.FailureReason, "budget needs 1000")
		assert.Empty(t, fake.Submissions())
	})

	t.Run("submission error", func(t *testing.T) {
		fake := fundedLedger(id.Address(), 5000)
		fake.OnExecute = func(ledger.Submission) (*ledger.TransactionBlockResponse, error) {
			return nil, apperr.Wrap(apperr.KindLedgerUnavailable, "sui_executeTransactionBlock", errors.New("connection reset"))
		}
		out, err := New(fake).Execute(context.Background(), kioskPlan(t, id.Address()), id)
		require.NoError(t, err)
		assert.False(t, out.Success)
		assert.Contains(t, out.FailureReason, "connection reset")
		assert.Len(t, fake.Submissions(), 1, "never retried")
	})

	t.Run("missing object input", func(t *testing.T) {
		fake := fundedLedger(id.Address(), 5000)
		p, err := txplan.Build([]txplan.CallSpec{
			txplan.MoveCall("0x2::kiosk::touch", nil, txplan.Object("0x99")),
		}, id.Address(), id.Address(), 1000)
		require.NoError(t, err)

		out, err := New(fake).Execute(context.Background(), p, id)
		require.NoError(t, err)
		assert.False(t, out.Success)
		assert.Contains(t, out.FailureReason, "notExists")
		assert.Empty(t, fake.Submissions())
	})
}

func TestExecuteResolvesSharedAndOwnedObjects(t *testing.T) {
	id := testIdentity(t)
	fake := fundedLedger(id.Address(), 5000)
	fake.Objects["0x"+zeros(62)+"10"] = []ledger.ObjectResponse{{Data: &ledger.ObjectData{
		ObjectID: "0x10",
		Version:  9,
		Digest:   zeroDigest,
		Owner:    &ledger.Owner{Kind: ledger.OwnerShared, InitialSharedVersion: 4},
	}}}
	fake.PutObject("0x"+zeros(62)+"11", "0x2::kiosk::KioskOwnerCap", ledger.AddressOwnedBy(id.Address()))
	fake.ExecuteResponses = []*ledger.TransactionBlockResponse{successResponse()}

	p, err := txplan.Build([]txplan.CallSpec{
		txplan.MoveCall("0x2::kiosk::set_owner", nil, txplan.Object("0x10"), txplan.Object("0x11")),
	}, id.Address(), id.Address(), 1000)
	require.NoError(t, err)

	out, err := New(fake).Execute(context.Background(), p, id)
	require.NoError(t, err)
	assert.True(t, out.Success, out.FailureReason)
	assert.Equal(t, 1, fake.ObjectReads("0x"+zeros(62)+"10"))
	assert.Equal(t, 1, fake.ObjectReads("0x"+zeros(62)+"11"))
}

func TestExecuteRejectsForeignSigner(t *testing.T) {
	id := testIdentity(t)
	p := kioskPlan(t, "0xdead")
	_, err := New(ledger.NewFakeClient()).Execute(context.Background(), p, id)
	assert.ErrorIs(t, err, apperr.ErrConfiguration)

	_, err = New(ledger.NewFakeClient()).Execute(context.Background(), nil, id)
	assert.ErrorIs(t, err, apperr.ErrConfiguration)
}

type cancellingClient struct {
	*ledger.FakeClient
	cancel    context.CancelFunc
	submitErr error
}

func (c *cancellingClient) ExecuteTransactionBlock(ctx context.Context, txBytes string, sigs []string, opts ledger.TransactionResponseOptions) (*ledger.TransactionBlockResponse, error) {
	c.cancel()
	c.submitErr = ctx.Err()
	return c.FakeClient.ExecuteTransactionBlock(ctx, txBytes, sigs, opts)
}

func TestExecuteSubmissionSurvivesCallerCancel(t *testing.T) {
	id := testIdentity(t)
	fake := fundedLedger(id.Address(), 5000)
	fake.ExecuteResponses = []*ledger.TransactionBlockResponse{successResponse()}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	client := &cancellingClient{FakeClient: fake, cancel: cancel}

	out, err := New(client).Execute(ctx, kioskPlan(t, id.Address()), id)
	require.NoError(t, err)
	assert.True(t, out.Success)
	assert.NoError(t, client.submitErr)
	assert.Error(t, ctx.Err())
}

func zeros(n int) string { return string(bytes.Repeat([]byte{'0'}, n)) }

func le64(v uint64) []byte {
	b := make([]byte, 8)
	binary.LittleEndian.PutUint64(b, v)
	return b
}
