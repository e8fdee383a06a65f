// Package server exposes the issuance workflows over HTTP.
package server

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	jsoniter "github.com/json-iterator/go"

	"sponsorrail/internal/apperr"
	"sponsorrail/internal/config"
	"sponsorrail/internal/funding"
	"sponsorrail/internal/hmacauth"
	"sponsorrail/internal/idempotency"
	"sponsorrail/internal/ledger"
	"sponsorrail/internal/logtrace"
	"sponsorrail/internal/reconcile"
	"sponsorrail/internal/sponsor"
	"sponsorrail/internal/workflow"
)

const (
	headerRequestID = "X-Request-Id"
	headerErrorKind = "X-Error-Kind"

	healthTimeout = 2 * time.Second
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Workflows is the orchestrator as seen by the handlers.
type Workflows interface {
	ProvisionKiosk(ctx context.Context, req workflow.KioskRequest) (*workflow.KioskResult, error)
	IssueCredential(ctx context.Context, req workflow.CredentialRequest) (*workflow.CredentialResult, error)
}

type FundingChecker interface {
	Check(ctx context.Context, address string) (funding.Status, error)
}

type PriceLookup interface {
	ListingPrice(ctx context.Context, kioskID, itemID string) (uint64, bool, error)
}

// Deps are the collaborators behind the routes. Prices, Reconcile and
// Idempotency are optional.
type Deps struct {
	Workflows   Workflows
	Identity    sponsor.Source
	Funding     FundingChecker
	Prices      PriceLookup
	Reconcile   reconcile.Store
	Idempotency idempotency.Store
	Ledger      ledger.Client
	Metrics     *Metrics
}

type Server struct {
	cfg        *config.AppConfig
	deps       Deps
	hmac       *hmacauth.Verifier
	replay     *idempotency.Replayer
	metrics    *Metrics
	handler    http.Handler
	httpServer *http.Server
}

func NewServer(cfg *config.AppConfig, deps Deps) *Server {
	metrics := deps.Metrics
	if metrics == nil {
		metrics = NewMetrics()
	}

	s := &Server{
		cfg:  cfg,
		deps: deps,
		hmac: &hmacauth.Verifier{
			Secrets: cfg.Service.HMACSecrets,
			MaxSkew: cfg.Service.HMACClockSkew,
		},
		replay: &idempotency.Replayer{
			Store:     deps.Idempotency,
			Window:    cfg.Service.IdempotencyWindow,
			Cacheable: cacheable,
		},
		metrics: metrics,
	}

	mux := http.NewServeMux()
	mux.Handle("/api/v1/kiosks", s.mutating(s.handleKiosks))
	mux.Handle("/api/v1/credentials", s.mutating(s.handleCredentials))
	mux.HandleFunc("/api/v1/kiosks/{kioskId}/listings/{itemId}", s.handleListingPrice)
	mux.HandleFunc("/api/v1/sponsor", s.handleSponsor)
	mux.Handle("/api/v1/metrics", metrics.handler())
	mux.HandleFunc("/api/v1/health", s.handleHealth)

	s.handler = requestIDMiddleware(mux)
	s.httpServer = &http.Server{
		Addr:              ":" + strconv.Itoa(cfg.Service.HTTPPort),
		Handler:           s.handler,
		ReadHeaderTimeout: 15 * time.Second,
	}
	return s
}

// Handler returns the routed handler, for tests and embedding.
func (s *Server) Handler() http.Handler { return s.handler }

func (s *Server) Start() error {
	logtrace.Info(context.Background(), "API listening", logtrace.Fields{
		logtrace.FieldModule: "server",
		"addr":               s.httpServer.Addr,
		"hmac":               s.hmac.Enabled(),
		"idempotency":        s.deps.Idempotency != nil,
	})
	return s.httpServer.ListenAndServe()
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

// mutating wraps a POST-only handler with signature checking and replay.
func (s *Server) mutating(h http.HandlerFunc) http.Handler {
	inner := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			writeError(w, http.StatusMethodNotAllowed, errors.New("method not allowed"))
			return
		}
		s.replay.Middleware(h).ServeHTTP(w, r)
	})
	return s.hmac.Middleware(inner)
}

// cacheable keeps transient failures out of the replay store so the caller
// can retry with the same key.
func cacheable(_ int, h http.Header) bool {
	return h.Get(headerErrorKind) != string(apperr.KindLedgerUnavailable)
}

func (s *Server) handleKiosks(w http.ResponseWriter, r *http.Request) {
	var req workflow.KioskRequest
	if err := decode(r, &req); err != nil {
		writeFailure(w, err)
		return
	}
	res, err := s.deps.Workflows.ProvisionKiosk(r.Context(), req)
	if err != nil {
		writeFailure(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, res)
}

func (s *Server) handleCredentials(w http.ResponseWriter, r *http.Request) {
	var req workflow.CredentialRequest
	if err := decode(r, &req); err != nil {
		writeFailure(w, err)
		return
	}
	res, err := s.deps.Workflows.IssueCredential(r.Context(), req)
	if err != nil {
		writeFailure(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, res)
}

type sponsorResponse struct {
	Address string         `json:"address"`
	Funding funding.Status `json:"funding"`
}

func (s *Server) handleSponsor(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, errors.New("method not allowed"))
		return
	}
	signer, err := s.deps.Identity.Load()
	if err != nil {
		writeFailure(w, err)
		return
	}
	status, err := s.deps.Funding.Check(r.Context(), signer.Address())
	if err != nil {
		writeFailure(w, err)
		return
	}
	writeJSON(w, http.StatusOK, sponsorResponse{Address: signer.Address(), Funding: status})
}

type listingResponse struct {
	KioskID string `json:"kioskId"`
	ItemID  string `json:"itemId"`
	Listed  bool   `json:"listed"`
	Price   uint64 `json:"price,string"`
}

func (s *Server) handleListingPrice(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, errors.New("method not allowed"))
		return
	}
	if s.deps.Prices == nil {
		writeError(w, http.StatusNotFound, errors.New("price lookup is not enabled"))
		return
	}
	kioskID, itemID := r.PathValue("kioskId"), r.PathValue("itemId")
	if _, err := ledger.AddressBytes(kioskID); err != nil {
		writeFailure(w, apperr.New(apperr.KindValidation, "pricing", "invalid kioskId %q", kioskID))
		return
	}
	if _, err := ledger.AddressBytes(itemID); err != nil {
		writeFailure(w, apperr.New(apperr.KindValidation, "pricing", "invalid itemId %q", itemID))
		return
	}

	price, listed, err := s.deps.Prices.ListingPrice(r.Context(), kioskID, itemID)
	if err != nil {
		writeFailure(w, apperr.Wrap(apperr.KindLedgerUnavailable, "pricing", err))
		return
	}
	writeJSON(w, http.StatusOK, listingResponse{KioskID: kioskID, ItemID: itemID, Listed: listed, Price: price})
}

type componentHealth struct {
	Connected bool    `json:"connected"`
	LatencyMs float64 `json:"latency_ms,omitempty"`
	Error     string  `json:"error,omitempty"`
}

type healthResponse struct {
	Status           string          `json:"status"`
	RPC              componentHealth `json:"rpc"`
	Database         componentHealth `json:"database"`
	ReconcilePending int             `json:"reconcile_pending"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	resp := healthResponse{
		Status:   "healthy",
		RPC:      componentHealth{Connected: true},
		Database: componentHealth{Connected: true},
	}

	if checker, ok := s.deps.Ledger.(ledger.HealthChecker); ok {
		resp.RPC = probe(ctx, checker.Ping)
	}
	if checker, ok := s.deps.Idempotency.(interface{ Ping(context.Context) error }); ok {
		resp.Database = probe(ctx, checker.Ping)
	}
	if s.deps.Reconcile != nil {
		pending, err := s.deps.Reconcile.Pending(ctx)
		if err != nil {
			resp.Database = componentHealth{Error: err.Error()}
		} else {
			resp.ReconcilePending = len(pending)
			s.metrics.SetReconcilePending(len(pending))
		}
	}

	code := http.StatusOK
	if !resp.RPC.Connected || !resp.Database.Connected {
		resp.Status = "degraded"
		code = http.StatusServiceUnavailable
	}
	writeJSON(w, code, resp)
}

func probe(ctx context.Context, ping func(context.Context) error) componentHealth {
	ctx, cancel := context.WithTimeout(ctx, healthTimeout)
	defer cancel()
	start := time.Now()
	if err := ping(ctx); err != nil {
		return componentHealth{Error: err.Error()}
	}
	return componentHealth{
		Connected: true,
		LatencyMs: float64(time.Since(start).Microseconds()) / 1000.0,
	}
}

func decode(r *http.Request, v any) error {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		return apperr.New(apperr.KindValidation, "decode", "cannot read request body")
	}
	if len(body) == 0 {
		return apperr.New(apperr.KindValidation, "decode", "request body is required")
	}
	if err := json.Unmarshal(body, v); err != nil {
		return apperr.New(apperr.KindValidation, "decode", "invalid json payload")
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

// writeFailure maps a workflow error onto the response contract and exposes
// its kind in a header.
func writeFailure(w http.ResponseWriter, err error) {
	if kind := apperr.KindOf(err); kind != "" {
		w.Header().Set(headerErrorKind, string(kind))
	}
	writeError(w, apperr.HTTPStatus(err), err)
}

func requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := logtrace.CtxWithCorrelationID(r.Context(), r.Header.Get(headerRequestID))
		id := logtrace.CorrelationID(ctx)
		w.Header().Set(headerRequestID, id)
		logtrace.Debug(ctx, "request received", logtrace.Fields{
			logtrace.FieldModule: "server",
			logtrace.FieldMethod: r.Method,
			logtrace.FieldPath:   r.URL.Path,
		})
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
