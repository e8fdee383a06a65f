package workflow

import (
	"bytes"
	"context"
	"encoding/base64"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sponsorrail/internal/apperr"
	"sponsorrail/internal/custody"
	"sponsorrail/internal/executor"
	"sponsorrail/internal/funding"
	"sponsorrail/internal/ledger"
	"sponsorrail/internal/poll"
	"sponsorrail/internal/reconcile"
	"sponsorrail/internal/sponsor"
)

const (
	zeroDigest  = "11111111111111111111111111111111"
	userInput   = "0xb0b"
	tokenType   = "0xfeed::therapist_nft::TherapistNFT"
	packageAddr = "0xfeed"
)

func objID(suffix string) string {
	return "0x" + strings.Repeat("0", 64-len(suffix)) + suffix
}

var (
	userAddr = objID("b0b")
	kioskID  = objID("1c")
	capID    = objID("ca")
	tokenID  = objID("70")
)

type workflowObserver struct{ outcomes []string }

func (w *workflowObserver) ObserveWorkflow(kind Kind, outcome string) {
	w.outcomes = append(w.outcomes, string(kind)+":"+outcome)
}

type harness struct {
	t        *testing.T
	fake     *ledger.FakeClient
	sponsor  *sponsor.Identity
	journal  *reconcile.MemoryStore
	observer *workflowObserver
	orch     *Orchestrator
}

func newHarness(t *testing.T, mutate ...func(*Config)) *harness {
	t.Helper()
	id, err := sponsor.ParseSecret(base64.StdEncoding.EncodeToString(bytes.Repeat([]byte{0x11}, 32)))
	require.NoError(t, err)

	fake := ledger.NewFakeClient()
	fake.Balances[id.Address()] = ledger.Balance{CoinType: ledger.SUICoinType, CoinObjectCount: 1, TotalBalance: 1_000_000}
	fake.Coins[id.Address()] = []ledger.Coin{{CoinObjectID: objID("c0"), Version: 1, Digest: zeroDigest, Balance: 1_000_000}}

	quick := poll.Policy{Attempts: 3, Interval: time.Millisecond, MaxInterval: time.Millisecond}
	h := &harness{t: t, fake: fake, sponsor: id, journal: reconcile.NewMemoryStore(), observer: &workflowObserver{}}
	cfg := Config{
		Identity:   sponsor.Static(id),
		Funding:    funding.NewChecker(fake, ""),
		Executor:   executor.New(fake),
		Verifier:   custody.NewVerifier(fake, nil),
		Journal:    h.journal,
		Observer:   h.observer,
		Deployment: DefaultDeployment(),
		Policies:   Policies{KioskVerify: quick, MintConfirm: quick, DeliveryVerify: quick},
		Budgets:    Budgets{Kiosk: 10_000, Mint: 10_000, Transfer: 5_000},
	}
	for _, m := range mutate {
		m(&cfg)
	}
	h.orch, err = New(cfg)
	require.NoError(t, err)
	return h
}

func (h *harness) pending() []reconcile.Entry {
	entries, err := h.journal.Pending(context.Background())
	require.NoError(h.t, err)
	return entries
}

func success(digest string, created ...ledger.ObjectChange) *ledger.TransactionBlockResponse {
	return &ledger.TransactionBlockResponse{
		Digest:        digest,
		Effects:       &ledger.TransactionEffects{Status: ledger.ExecutionStatus{Status: ledger.StatusSuccess}},
		ObjectChanges: created,
	}
}

func failure(digest, reason string) *ledger.TransactionBlockResponse {
	return &ledger.TransactionBlockResponse{
		Digest:  digest,
		Effects: &ledger.TransactionEffects{Status: ledger.ExecutionStatus{Status: "failure", Error: reason}},
	}
}

func created(id, objectType string, owner *ledger.Owner) ledger.ObjectChange {
	return ledger.ObjectChange{Type: ledger.ChangeCreated, ObjectID: id, ObjectType: objectType, Owner: owner}
}

func kioskCreated() *ledger.TransactionBlockResponse {
	return success("KIOSK",
		created(kioskID, "0x2::kiosk::Kiosk", &ledger.Owner{Kind: ledger.OwnerShared, InitialSharedVersion: 8}),
		created(capID, "0x2::kiosk::KioskOwnerCap", ledger.AddressOwnedBy(userAddr)),
	)
}

func validCredential() CredentialRequest {
	return CredentialRequest{
		UserAddress:      userInput,
		PackageID:        packageAddr,
		Name:             "Dr. Ada",
		Specialization:   "CBT",
		Credentials:      "PhD",
		YearsExperience:  12,
		Bio:              "hello",
		SessionTypes:     []string{"video", "chat"},
		Languages:        []string{"en"},
		Rating:           5,
		TotalSessions:    120,
		ProfileImageURL:  "https://example.org/p.png",
		CertificationURL: "https://example.org/c.pdf",
	}
}

func decodeTx(t *testing.T, sub ledger.Submission) []byte {
	t.Helper()
	b, err := base64.StdEncoding.DecodeString(sub.TxBytes)
	require.NoError(t, err)
	return b
}

func TestProvisionKioskSingleTransaction(t *testing.T) {
	h := newHarness(t)
	h.fake.ExecuteResponses = []*ledger.TransactionBlockResponse{kioskCreated()}
	h.fake.PutObject(capID, "0x2::kiosk::KioskOwnerCap", ledger.AddressOwnedBy(userAddr))

	res, err := h.orch.ProvisionKiosk(context.Background(), KioskRequest{UserAddress: userInput})
	require.NoError(t, err)

	assert.Equal(t, kioskID, res.KioskID)
	assert.Equal(t, capID, res.KioskOwnerCapID)
	assert.Equal(t, "KIOSK", res.Digest)
	assert.Equal(t, h.sponsor.Address(), res.Sponsor)
	assert.Equal(t, userAddr, res.User)
	assert.True(t, res.Verified)
	assert.Equal(t, StatusSuccess, res.Status)
	assert.Contains(t, res.Notes, "creator metadata not configured")
	assert.Empty(t, h.pending())
	assert.Equal(t, []string{"kiosk:success"}, h.observer.outcomes)

	subs := h.fake.Submissions()
	require.Len(t, subs, 1, "create, transfer and share travel in one transaction")
	tx := decodeTx(t, subs[0])
	// V1, programmable, one pure input (the user address), then three commands.
	require.Greater(t, len(tx), 37)
	assert.Equal(t, byte(0x01), tx[2])
	assert.Equal(t, byte(0x03), tx[2+1+1+1+32])
	assert.True(t, bytes.Contains(tx, []byte("public_share_object")))
}

func TestProvisionKioskTwiceCreatesTwoKiosks(t *testing.T) {
	h := newHarness(t)
	h.fake.ExecuteResponses = []*ledger.TransactionBlockResponse{kioskCreated(), kioskCreated()}
	h.fake.PutObject(capID, "0x2::kiosk::KioskOwnerCap", ledger.AddressOwnedBy(userAddr))

	for i := 0; i < 2; i++ {
		_, err := h.orch.ProvisionKiosk(context.Background(), KioskRequest{UserAddress: userInput})
		require.NoError(t, err)
	}
	assert.Len(t, h.fake.Submissions(), 2)
	assert.Equal(t, 2, h.fake.BalanceReads(), "funding is checked on every run")
}

func TestProvisionKioskValidation(t *testing.T) {
	h := newHarness(t)
	for _, addr := range []string{"", "   ", "not-an-address"} {
		_, err := h.orch.ProvisionKiosk(context.Background(), KioskRequest{UserAddress: addr})
		assert.ErrorIs(t, err, apperr.ErrValidation, addr)
	}
	assert.Zero(t, h.fake.BalanceReads())
	assert.Empty(t, h.fake.Submissions())
}

func TestProvisionKioskWithoutCoins(t *testing.T) {
	h := newHarness(t)
	h.fake.Balances[h.sponsor.Address()] = ledger.Balance{CoinType: ledger.SUICoinType}

	_, err := h.orch.ProvisionKiosk(context.Background(), KioskRequest{UserAddress: userInput})
	assert.ErrorIs(t, err, apperr.ErrInsufficientFunds)
	assert.Empty(t, h.fake.Submissions())
	assert.Equal(t, []string{"kiosk:insufficient_funds"}, h.observer.outcomes)
}

func TestProvisionKioskBelowMinimumBalance(t *testing.T) {
	h := newHarness(t, func(c *Config) { c.Budgets.MinBalance = 2_000_000 })
	_, err := h.orch.ProvisionKiosk(context.Background(), KioskRequest{UserAddress: userInput})
	assert.ErrorIs(t, err, apperr.ErrInsufficientFunds)
	assert.Empty(t, h.fake.Submissions())
}

func TestProvisionKioskUnusableSponsor(t *testing.T) {
	h := newHarness(t, func(c *Config) { c.Identity = sponsor.NewLoader("") })
	_, err := h.orch.ProvisionKiosk(context.Background(), KioskRequest{UserAddress: userInput})
	assert.ErrorIs(t, err, apperr.ErrConfiguration)
	assert.Zero(t, h.fake.BalanceReads())
}

func TestProvisionKioskTransactionFailureStopsRun(t *testing.T) {
	h := newHarness(t)
	h.fake.ExecuteResponses = []*ledger.TransactionBlockResponse{failure("BAD", "InsufficientGas")}

	_, err := h.orch.ProvisionKiosk(context.Background(), KioskRequest{UserAddress: userInput})
	require.ErrorIs(t, err, apperr.ErrTransactionFailed)
	assert.Contains(t, err.Error(), "InsufficientGas")
	assert.Zero(t, h.fake.ObjectReads(capID), "no verification after a failed transaction")
	assert.Empty(t, h.pending())
}

func TestProvisionKioskMissingCapIsJournaled(t *testing.T) {
	h := newHarness(t)
	h.fake.ExecuteResponses = []*ledger.TransactionBlockResponse{success("KIOSK",
		created(kioskID, "0x2::kiosk::Kiosk", &ledger.Owner{Kind: ledger.OwnerShared, InitialSharedVersion: 8}),
	)}

	_, err := h.orch.ProvisionKiosk(context.Background(), KioskRequest{UserAddress: userInput})
	require.ErrorIs(t, err, apperr.ErrExpectedObjectNotFound)

	pending := h.pending()
	require.Len(t, pending, 1)
	assert.Equal(t, reconcile.ReasonUntrackedObject, pending[0].Reason)
	assert.Equal(t, "KIOSK", pending[0].MintDigest)
}

func TestProvisionKioskUnverifiedCapIsPartialSuccess(t *testing.T) {
	h := newHarness(t)
	h.fake.ExecuteResponses = []*ledger.TransactionBlockResponse{kioskCreated()}
	h.fake.PutObject(capID, "0x2::kiosk::KioskOwnerCap", ledger.AddressOwnedBy(h.sponsor.Address()))

	res, err := h.orch.ProvisionKiosk(context.Background(), KioskRequest{UserAddress: userInput})
	require.NoError(t, err)
	assert.False(t, res.Verified)
	assert.Equal(t, StatusPartialSuccess, res.Status)
	assert.Equal(t, 3, h.fake.ObjectReads(capID), "polling stops at the budget")
	assert.Equal(t, 3, res.Ownership.Attempts)

	pending := h.pending()
	require.Len(t, pending, 1)
	assert.Equal(t, reconcile.ReasonKioskUnverified, pending[0].Reason)
	assert.Equal(t, capID, pending[0].ObjectID)
}

func TestProvisionKioskCreatorMetadataIsOptional(t *testing.T) {
	h := newHarness(t, func(c *Config) {
		c.Deployment.Kiosk.CreatorMetadataTarget = "0xfeed::kiosk_profile::set_creator"
	})
	h.fake.ExecuteResponses = []*ledger.TransactionBlockResponse{kioskCreated(), failure("META", "MoveAbort(1)")}
	h.fake.PutObject(capID, "0x2::kiosk::KioskOwnerCap", ledger.AddressOwnedBy(userAddr))
	h.fake.Objects[kioskID] = []ledger.ObjectResponse{{Data: &ledger.ObjectData{
		ObjectID: kioskID,
		Version:  8,
		Digest:   zeroDigest,
		Owner:    &ledger.Owner{Kind: ledger.OwnerShared, InitialSharedVersion: 8},
	}}}

	res, err := h.orch.ProvisionKiosk(context.Background(), KioskRequest{UserAddress: userInput})
	require.NoError(t, err)
	assert.True(t, res.Verified)
	assert.Equal(t, StatusSuccess, res.Status)
	assert.Empty(t, res.MetadataDigest)
	assert.Contains(t, res.Notes, "creator metadata not recorded")
	assert.Len(t, h.fake.Submissions(), 2)
}

func TestProvisionKioskCreatorMetadataRecorded(t *testing.T) {
	h := newHarness(t, func(c *Config) {
		c.Deployment.Kiosk.CreatorMetadataTarget = "0xfeed::kiosk_profile::set_creator"
	})
	h.fake.ExecuteResponses = []*ledger.TransactionBlockResponse{kioskCreated(), success("META")}
	h.fake.PutObject(capID, "0x2::kiosk::KioskOwnerCap", ledger.AddressOwnedBy(userAddr))
	h.fake.Objects[kioskID] = []ledger.ObjectResponse{{Data: &ledger.ObjectData{
		ObjectID: kioskID,
		Owner:    &ledger.Owner{Kind: ledger.OwnerShared, InitialSharedVersion: 8},
	}}}

	res, err := h.orch.ProvisionKiosk(context.Background(), KioskRequest{UserAddress: userInput})
	require.NoError(t, err)
	assert.Equal(t, "META", res.MetadataDigest)
	assert.Contains(t, res.Notes, "creator metadata recorded")
}

// tokenReads scripts reads of the minted token: mint confirmation, the
// executor resolving it for the transfer, then the delivery polls.
func (h *harness) tokenReads(owners ...string) {
	for _, o := range owners {
		h.fake.PutObject(tokenID, tokenType, ledger.AddressOwnedBy(o))
	}
}

func TestIssueCredentialDelivered(t *testing.T) {
	h := newHarness(t)
	h.fake.ExecuteResponses = []*ledger.TransactionBlockResponse{
		success("MINT", created(tokenID, tokenType, ledger.AddressOwnedBy(h.sponsor.Address()))),
		success("XFER"),
	}
	h.tokenReads(h.sponsor.Address(), h.sponsor.Address(), userAddr)

	res, err := h.orch.IssueCredential(context.Background(), validCredential())
	require.NoError(t, err)

	assert.Equal(t, tokenID, res.TokenID)
	assert.Equal(t, "MINT", res.MintDigest)
	assert.Equal(t, "XFER", res.TransferDigest)
	assert.True(t, res.Verified)
	assert.Equal(t, StatusSuccess, res.Status)
	assert.Equal(t, userAddr, res.Ownership.ObservedOwner)
	assert.Empty(t, h.pending())

	subs := h.fake.Submissions()
	require.Len(t, subs, 2)
	mintTx := decodeTx(t, subs[0])
	assert.True(t, bytes.Contains(mintTx, []byte("mint_therapist_nft")))
	assert.True(t, bytes.Contains(mintTx, []byte("https://example.org/c.pdf")))
}

func TestIssueCredentialValidation(t *testing.T) {
	h := newHarness(t)

	req := validCredential()
	req.UserAddress = ""
	_, err := h.orch.IssueCredential(context.Background(), req)
	assert.ErrorIs(t, err, apperr.ErrValidation)

	req = validCredential()
	req.PackageID = ""
	_, err = h.orch.IssueCredential(context.Background(), req)
	require.ErrorIs(t, err, apperr.ErrValidation)
	assert.Contains(t, err.Error(), "packageId")

	assert.Zero(t, h.fake.BalanceReads())
}

func TestIssueCredentialWithoutCoins(t *testing.T) {
	h := newHarness(t)
	h.fake.Balances[h.sponsor.Address()] = ledger.Balance{}

	_, err := h.orch.IssueCredential(context.Background(), validCredential())
	assert.ErrorIs(t, err, apperr.ErrInsufficientFunds)
	assert.Empty(t, h.fake.Submissions())
}

func TestIssueCredentialMintFailure(t *testing.T) {
	h := newHarness(t)
	h.fake.ExecuteResponses = []*ledger.TransactionBlockResponse{failure("MINT", "MoveAbort(3)")}

	_, err := h.orch.IssueCredential(context.Background(), validCredential())
	assert.ErrorIs(t, err, apperr.ErrTransactionFailed)
	assert.Len(t, h.fake.Submissions(), 1)
	assert.Empty(t, h.pending(), "nothing was created")
}

func TestIssueCredentialTokenMissing(t *testing.T) {
	h := newHarness(t)
	h.fake.ExecuteResponses = []*ledger.TransactionBlockResponse{success("MINT")}

	_, err := h.orch.IssueCredential(context.Background(), validCredential())
	assert.ErrorIs(t, err, apperr.ErrExpectedObjectNotFound)
	assert.Len(t, h.fake.Submissions(), 1)

	pending := h.pending()
	require.Len(t, pending, 1)
	assert.Equal(t, reconcile.ReasonUntrackedObject, pending[0].Reason)
}

func TestIssueCredentialMintNotConfirmed(t *testing.T) {
	h := newHarness(t)
	h.fake.ExecuteResponses = []*ledger.TransactionBlockResponse{
		success("MINT", created(tokenID, tokenType, ledger.AddressOwnedBy(h.sponsor.Address()))),
		success("XFER"),
	}
	h.tokenReads(objID("bad"))

	_, err := h.orch.IssueCredential(context.Background(), validCredential())
	require.ErrorIs(t, err, apperr.ErrMintNotConfirmed)
	assert.Len(t, h.fake.Submissions(), 1, "transfer never attempted")

	pending := h.pending()
	require.Len(t, pending, 1)
	assert.Equal(t, reconcile.ReasonMintNotConfirmed, pending[0].Reason)
	assert.Equal(t, tokenID, pending[0].ObjectID)
	assert.Equal(t, "MINT", pending[0].MintDigest)
}

func TestIssueCredentialTransferFailure(t *testing.T) {
	h := newHarness(t)
	h.fake.ExecuteResponses = []*ledger.TransactionBlockResponse{
		success("MINT", created(tokenID, tokenType, ledger.AddressOwnedBy(h.sponsor.Address()))),
		failure("XFER", "ObjectVersionUnavailable"),
	}
	h.tokenReads(h.sponsor.Address())

	_, err := h.orch.IssueCredential(context.Background(), validCredential())
	require.ErrorIs(t, err, apperr.ErrTransactionFailed)

	pending := h.pending()
	require.Len(t, pending, 1)
	assert.Equal(t, reconcile.ReasonTransferFailed, pending[0].Reason)
	assert.Equal(t, "XFER", pending[0].TransferDigest)
}

func TestIssueCredentialUndeliveredIsPartialSuccess(t *testing.T) {
	h := newHarness(t)
	h.fake.ExecuteResponses = []*ledger.TransactionBlockResponse{
		success("MINT", created(tokenID, tokenType, ledger.AddressOwnedBy(h.sponsor.Address()))),
		success("XFER"),
	}
	h.tokenReads(h.sponsor.Address())

	res, err := h.orch.IssueCredential(context.Background(), validCredential())
	require.NoError(t, err)
	assert.False(t, res.Verified)
	assert.Equal(t, StatusPartialSuccess, res.Status)
	assert.Equal(t, "MINT", res.MintDigest)
	assert.Equal(t, "XFER", res.TransferDigest)
	// one confirmation read, one resolution read, three delivery polls
	assert.Equal(t, 5, h.fake.ObjectReads(tokenID))
	assert.Equal(t, []string{"credential:partial_success"}, h.observer.outcomes)

	pending := h.pending()
	require.Len(t, pending, 1)
	assert.Equal(t, reconcile.ReasonDeliveryUnverified, pending[0].Reason)
}

func TestNewRequiresCollaborators(t *testing.T) {
	_, err := New(Config{})
	assert.Error(t, err)

	h := newHarness(t)
	_, err = New(Config{
		Identity: sponsor.Static(h.sponsor),
		Funding:  funding.NewChecker(h.fake, ""),
		Executor: executor.New(h.fake),
		Verifier: custody.NewVerifier(h.fake, nil),
	})
	assert.Error(t, err, "zero budgets")
}

// cancellableLedger fails reads once the caller's context is done, the way
// the JSON-RPC client does.
type cancellableLedger struct {
	*ledger.FakeClient
}

func (c cancellableLedger) GetBalance(ctx context.Context, owner, coinType string) (*ledger.Balance, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return c.FakeClient.GetBalance(ctx, owner, coinType)
}

func (c cancellableLedger) GetCoins(ctx context.Context, owner, coinType string, cursor *string, limit int) (*ledger.CoinPage, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return c.FakeClient.GetCoins(ctx, owner, coinType, cursor, limit)
}

func (c cancellableLedger) GetReferenceGasPrice(ctx context.Context) (uint64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	return c.FakeClient.GetReferenceGasPrice(ctx)
}

func (c cancellableLedger) GetObject(ctx context.Context, objectID string, opts ledger.ObjectDataOptions) (*ledger.ObjectResponse, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return c.FakeClient.GetObject(ctx, objectID, opts)
}

// cancellableJournal rejects writes on a done context, like the SQL stores.
type cancellableJournal struct {
	*reconcile.MemoryStore
}

func (j cancellableJournal) Record(ctx context.Context, e reconcile.Entry) (reconcile.Entry, error) {
	if err := ctx.Err(); err != nil {
		return reconcile.Entry{}, err
	}
	return j.MemoryStore.Record(ctx, e)
}

// abandonedAfterMint returns an orchestrator over h whose caller context is
// cancelled while the mint is being submitted.
func abandonedAfterMint(t *testing.T, h *harness, xfer *ledger.TransactionBlockResponse) (*Orchestrator, context.Context) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	mint := success("MINT", created(tokenID, tokenType, ledger.AddressOwnedBy(h.sponsor.Address())))
	h.fake.OnExecute = func(ledger.Submission) (*ledger.TransactionBlockResponse, error) {
		if len(h.fake.Submissions()) == 1 {
			cancel()
			return mint, nil
		}
		return xfer, nil
	}

	client := cancellableLedger{FakeClient: h.fake}
	quick := poll.Policy{Attempts: 3, Interval: time.Millisecond, MaxInterval: time.Millisecond}
	orch, err := New(Config{
		Identity:   sponsor.Static(h.sponsor),
		Funding:    funding.NewChecker(client, ""),
		Executor:   executor.New(client),
		Verifier:   custody.NewVerifier(client, nil),
		Journal:    cancellableJournal{MemoryStore: h.journal},
		Deployment: DefaultDeployment(),
		Policies:   Policies{KioskVerify: quick, MintConfirm: quick, DeliveryVerify: quick},
		Budgets:    Budgets{Kiosk: 10_000, Mint: 10_000, Transfer: 5_000},
	})
	require.NoError(t, err)
	return orch, ctx
}

func TestIssueCredentialFinishesAfterCallerLeaves(t *testing.T) {
	h := newHarness(t)
	h.tokenReads(h.sponsor.Address(), h.sponsor.Address(), userAddr)
	orch, ctx := abandonedAfterMint(t, h, success("XFER"))

	res, err := orch.IssueCredential(ctx, validCredential())
	require.NoError(t, err)
	assert.Error(t, ctx.Err())
	assert.True(t, res.Verified)
	assert.Equal(t, "XFER", res.TransferDigest)
	assert.Len(t, h.fake.Submissions(), 2, "transfer still runs")
	assert.Empty(t, h.pending())
}

func TestIssueCredentialJournalsAfterCallerLeaves(t *testing.T) {
	h := newHarness(t)
	h.tokenReads(h.sponsor.Address())
	orch, ctx := abandonedAfterMint(t, h, failure("XFER", "ObjectVersionUnavailable"))

	_, err := orch.IssueCredential(ctx, validCredential())
	require.ErrorIs(t, err, apperr.ErrTransactionFailed)

	pending := h.pending()
	require.Len(t, pending, 1, "token left in sponsor custody must be journaled")
	assert.Equal(t, reconcile.ReasonTransferFailed, pending[0].Reason)
	assert.Equal(t, tokenID, pending[0].ObjectID)
	assert.Equal(t, "MINT", pending[0].MintDigest)
}

func TestIssueCredentialUndeliveredJournaledAfterCallerLeaves(t *testing.T) {
	h := newHarness(t)
	h.tokenReads(h.sponsor.Address())
	orch, ctx := abandonedAfterMint(t, h, success("XFER"))

	res, err := orch.IssueCredential(ctx, validCredential())
	require.NoError(t, err)
	assert.Equal(t, StatusPartialSuccess, res.Status)

	pending := h.pending()
	require.Len(t, pending, 1)
	assert.Equal(t, reconcile.ReasonDeliveryUnverified, pending[0].Reason)
}
