package gateway

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"math/big"
	"net/http"
	"strconv"
	"strings"
	"time"

	ethcrypto "github.com/ethereum/go-ethereum/crypto"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"escrowd/escrow"
	"escrowd/journal"
	"escrowd/observability"
)

type contextKey string

const principalKey contextKey = "principal"

// maxEventPageSize bounds one journal read so a single request cannot drain
// an arbitrarily large backlog.
const maxEventPageSize = 1000

// FundingAuthorizer grants and reports the custody vault's right to pull the
// settlement asset from a buyer account. Funding pulls consume the grant, so
// the orchestrator authorizes before each trade submission.
type FundingAuthorizer interface {
	Authorize(owner [20]byte, amount *big.Int) error
	Authorized(owner [20]byte) *big.Int
}

// Server exposes the settlement engine to the off-chain orchestrator. Every
// mutating endpoint requires an authenticated principal whose address becomes
// the caller identity passed to the engine.
type Server struct {
	engine  *escrow.Engine
	journal *journal.Store
	auth    *Authenticator
	funding FundingAuthorizer
	log     *slog.Logger
}

// NewServer wires the HTTP surface.
func NewServer(engine *escrow.Engine, store *journal.Store, auth *Authenticator, funding FundingAuthorizer, log *slog.Logger) *Server {
	if log == nil {
		log = slog.Default()
	}
	return &Server{engine: engine, journal: store, auth: auth, funding: funding, log: log}
}

// Router builds the route tree. Health and metrics endpoints are
// unauthenticated; everything under /v1 requires a valid HMAC signature.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/v1", func(v1 chi.Router) {
		v1.Use(s.authenticate)
		v1.Post("/allowance", s.instrument("grant_allowance", s.handleGrantAllowance))
		v1.Get("/allowance", s.instrument("get_allowance", s.handleGetAllowance))
		v1.Post("/trades", s.instrument("create_and_fund", s.handleCreateAndFund))
		v1.Get("/trades/{id}", s.instrument("get_trade", s.handleGetTrade))
		v1.Get("/links/{externalId}", s.instrument("lookup_link", s.handleLookupLink))
		v1.Post("/trades/{id}/deliver", s.instrument("mark_delivered", s.handleMarkDelivered))
		v1.Post("/trades/{id}/approve", s.instrument("approve_delivery", s.handleApproveDelivery))
		v1.Post("/trades/{id}/release", s.instrument("release_after_timeout", s.handleReleaseAfterTimeout))
		v1.Post("/trades/{id}/dispute", s.instrument("open_dispute", s.handleOpenDispute))
		v1.Post("/trades/{id}/resolve", s.instrument("resolve_dispute", s.handleResolveDispute))
		v1.Post("/trades/{id}/refund", s.instrument("refund_buyer", s.handleRefundBuyer))
		v1.Post("/roles/operator", s.instrument("set_operator", s.handleSetOperator))
		v1.Post("/roles/fee-receiver", s.instrument("set_fee_receiver", s.handleSetFeeReceiver))
		v1.Post("/withdraw", s.instrument("emergency_withdraw", s.handleEmergencyWithdraw))
		v1.Get("/events", s.instrument("list_events", s.handleListEvents))
	})
	return r
}

func (s *Server) authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, err := io.ReadAll(io.LimitReader(r.Body, int64(MaxBodyForSignature)+1))
		if err != nil {
			writeError(w, http.StatusBadRequest, "read body: "+err.Error())
			return
		}
		_ = r.Body.Close()
		principal, err := s.auth.Authenticate(r, body)
		if err != nil {
			requestID := uuid.NewString()
			s.log.Warn("authentication rejected", "requestId", requestID, "path", r.URL.Path, "err", err)
			writeError(w, http.StatusUnauthorized, "authentication failed")
			return
		}
		r.Body = io.NopCloser(strings.NewReader(string(body)))
		ctx := context.WithValue(r.Context(), principalKey, principal)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (s *Server) instrument(op string, handler http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		recorder := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		handler(recorder, r)
		outcome := "ok"
		if recorder.status >= 400 {
			outcome = "error"
		}
		observability.Gateway().Observe(op, outcome, time.Since(start))
	}
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func principalFrom(r *http.Request) *Principal {
	principal, _ := r.Context().Value(principalKey).(*Principal)
	return principal
}

// ExternalLinkID normalises an opaque external reference into the fixed-width
// identifier used for duplicate-funding protection.
func ExternalLinkID(reference string) [32]byte {
	return ethcrypto.Keccak256Hash([]byte(strings.TrimSpace(reference)))
}

type tradeResponse struct {
	ID          uint64 `json:"id"`
	Buyer       string `json:"buyer"`
	Seller      string `json:"seller"`
	Principal   string `json:"principal"`
	PendingFee  string `json:"pendingFee"`
	Status      string `json:"status"`
	CreatedAt   int64  `json:"createdAt"`
	DeliveredAt int64  `json:"deliveredAt,omitempty"`
}

func renderTrade(t *escrow.Trade) tradeResponse {
	return tradeResponse{
		ID:          t.ID,
		Buyer:       "0x" + hex.EncodeToString(t.Buyer[:]),
		Seller:      "0x" + hex.EncodeToString(t.Seller[:]),
		Principal:   t.Principal.String(),
		PendingFee:  t.PendingFee.String(),
		Status:      t.Status.String(),
		CreatedAt:   t.CreatedAt,
		DeliveredAt: t.DeliveredAt,
	}
}

func (s *Server) handleGrantAllowance(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Amount string `json:"amount"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "decode request: "+err.Error())
		return
	}
	amount, ok := new(big.Int).SetString(strings.TrimSpace(req.Amount), 10)
	if !ok || amount.Sign() < 0 {
		writeError(w, http.StatusBadRequest, "amount must be a non-negative decimal integer")
		return
	}
	caller := principalFrom(r)
	if err := s.funding.Authorize(caller.Address, amount); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"allowance": amount.String()})
}

func (s *Server) handleGetAllowance(w http.ResponseWriter, r *http.Request) {
	caller := principalFrom(r)
	writeJSON(w, http.StatusOK, map[string]string{
		"allowance": s.funding.Authorized(caller.Address).String(),
	})
}

func (s *Server) handleCreateAndFund(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Seller     string `json:"seller"`
		Principal  string `json:"principal"`
		ExternalID string `json:"externalId"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "decode request: "+err.Error())
		return
	}
	seller, err := parseAddressParam(req.Seller)
	if err != nil {
		writeError(w, http.StatusBadRequest, "seller: "+err.Error())
		return
	}
	principal, ok := new(big.Int).SetString(strings.TrimSpace(req.Principal), 10)
	if !ok {
		writeError(w, http.StatusBadRequest, "principal must be a decimal integer")
		return
	}
	if strings.TrimSpace(req.ExternalID) == "" {
		writeError(w, http.StatusBadRequest, "externalId required")
		return
	}
	caller := principalFrom(r)
	id, err := s.engine.CreateAndFund(caller.Address, seller, principal, ExternalLinkID(req.ExternalID))
	if err != nil {
		s.writeEngineError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]uint64{"tradeId": id})
}

func (s *Server) handleGetTrade(w http.ResponseWriter, r *http.Request) {
	id, err := tradeIDParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	trade, ok := s.engine.Trade(id)
	if !ok {
		writeError(w, http.StatusNotFound, "trade not found")
		return
	}
	writeJSON(w, http.StatusOK, renderTrade(trade))
}

func (s *Server) handleLookupLink(w http.ResponseWriter, r *http.Request) {
	reference := chi.URLParam(r, "externalId")
	if strings.TrimSpace(reference) == "" {
		writeError(w, http.StatusBadRequest, "externalId required")
		return
	}
	funded := s.engine.IsExternalIDFunded(ExternalLinkID(reference))
	writeJSON(w, http.StatusOK, map[string]bool{"funded": funded})
}

func (s *Server) handleMarkDelivered(w http.ResponseWriter, r *http.Request) {
	s.simpleTransition(w, r, s.engine.MarkDelivered)
}

func (s *Server) handleApproveDelivery(w http.ResponseWriter, r *http.Request) {
	s.simpleTransition(w, r, s.engine.ApproveDelivery)
}

func (s *Server) handleReleaseAfterTimeout(w http.ResponseWriter, r *http.Request) {
	s.simpleTransition(w, r, s.engine.ReleaseAfterTimeout)
}

func (s *Server) handleRefundBuyer(w http.ResponseWriter, r *http.Request) {
	s.simpleTransition(w, r, s.engine.RefundBuyer)
}

func (s *Server) simpleTransition(w http.ResponseWriter, r *http.Request, op func([20]byte, uint64) error) {
	id, err := tradeIDParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := op(principalFrom(r).Address, id); err != nil {
		s.writeEngineError(w, r, err)
		return
	}
	s.writeTradeState(w, id)
}

func (s *Server) handleOpenDispute(w http.ResponseWriter, r *http.Request) {
	id, err := tradeIDParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	var req struct {
		RaisedBy string `json:"raisedBy"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "decode request: "+err.Error())
		return
	}
	raisedBy, err := parseAddressParam(req.RaisedBy)
	if err != nil {
		writeError(w, http.StatusBadRequest, "raisedBy: "+err.Error())
		return
	}
	if err := s.engine.OpenDispute(principalFrom(r).Address, id, raisedBy); err != nil {
		s.writeEngineError(w, r, err)
		return
	}
	s.writeTradeState(w, id)
}

func (s *Server) handleResolveDispute(w http.ResponseWriter, r *http.Request) {
	id, err := tradeIDParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	var req struct {
		BuyerBps  uint32 `json:"buyerBps"`
		SellerBps uint32 `json:"sellerBps"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "decode request: "+err.Error())
		return
	}
	if err := s.engine.ResolveDispute(principalFrom(r).Address, id, req.BuyerBps, req.SellerBps); err != nil {
		s.writeEngineError(w, r, err)
		return
	}
	s.writeTradeState(w, id)
}

func (s *Server) handleSetOperator(w http.ResponseWriter, r *http.Request) {
	s.roleUpdate(w, r, s.engine.SetOperator)
}

func (s *Server) handleSetFeeReceiver(w http.ResponseWriter, r *http.Request) {
	s.roleUpdate(w, r, s.engine.SetFeeReceiver)
}

func (s *Server) roleUpdate(w http.ResponseWriter, r *http.Request, op func([20]byte, [20]byte) error) {
	var req struct {
		Address string `json:"address"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "decode request: "+err.Error())
		return
	}
	next, err := parseAddressParam(req.Address)
	if err != nil {
		writeError(w, http.StatusBadRequest, "address: "+err.Error())
		return
	}
	if err := op(principalFrom(r).Address, next); err != nil {
		s.writeEngineError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleEmergencyWithdraw(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Token  string `json:"token"`
		Amount string `json:"amount"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "decode request: "+err.Error())
		return
	}
	amount, ok := new(big.Int).SetString(strings.TrimSpace(req.Amount), 10)
	if !ok {
		writeError(w, http.StatusBadRequest, "amount must be a decimal integer")
		return
	}
	if err := s.engine.EmergencyWithdraw(principalFrom(r).Address, req.Token, amount); err != nil {
		s.writeEngineError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleListEvents(w http.ResponseWriter, r *http.Request) {
	after := int64(0)
	if raw := r.URL.Query().Get("after"); raw != "" {
		parsed, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			writeError(w, http.StatusBadRequest, "after must be an integer")
			return
		}
		after = parsed
	}
	limit := 100
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			writeError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		if parsed > maxEventPageSize {
			parsed = maxEventPageSize
		}
		limit = parsed
	}
	records, err := s.journal.After(after, limit)
	if err != nil {
		s.log.Error("journal read failed", "err", err)
		writeError(w, http.StatusInternalServerError, "journal unavailable")
		return
	}
	if records == nil {
		records = []journal.Record{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"events": records})
}

func (s *Server) writeTradeState(w http.ResponseWriter, id uint64) {
	trade, ok := s.engine.Trade(id)
	if !ok {
		writeError(w, http.StatusNotFound, "trade not found")
		return
	}
	writeJSON(w, http.StatusOK, renderTrade(trade))
}

func (s *Server) writeEngineError(w http.ResponseWriter, r *http.Request, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, escrow.ErrUnauthorized):
		status = http.StatusForbidden
	case errors.Is(err, escrow.ErrInvalidParty),
		errors.Is(err, escrow.ErrInvalidAmount),
		errors.Is(err, escrow.ErrInvalidSplit):
		status = http.StatusBadRequest
	case errors.Is(err, escrow.ErrTradeNotFound):
		status = http.StatusNotFound
	case errors.Is(err, escrow.ErrDuplicateLink),
		errors.Is(err, escrow.ErrInvalidState),
		errors.Is(err, escrow.ErrAlreadyCompleted),
		errors.Is(err, escrow.ErrTimeoutNotReached),
		errors.Is(err, escrow.ErrReentrantCall):
		status = http.StatusConflict
	case errors.Is(err, escrow.ErrTransferFailed):
		status = http.StatusUnprocessableEntity
	default:
		s.log.Error("operation failed", "path", r.URL.Path, "err", err)
	}
	writeError(w, status, err.Error())
}

func tradeIDParam(r *http.Request) (uint64, error) {
	raw := chi.URLParam(r, "id")
	id, err := strconv.ParseUint(raw, 10, 64)
	if err != nil || id == 0 {
		return 0, errors.New("id must be a positive integer")
	}
	return id, nil
}

func parseAddressParam(raw string) ([20]byte, error) {
	var addr [20]byte
	trimmed := strings.TrimPrefix(strings.TrimSpace(raw), "0x")
	decoded, err := hex.DecodeString(trimmed)
	if err != nil {
		return addr, errors.New("must be a hex-encoded address")
	}
	if len(decoded) != 20 {
		return addr, errors.New("must be 20 bytes")
	}
	copy(addr[:], decoded)
	if addr == ([20]byte{}) {
		return addr, errors.New("zero address not allowed")
	}
	return addr, nil
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
