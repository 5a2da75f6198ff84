// Package server exposes the platform over HTTP. Caller identity and the
// attached native deposit travel in headers, mirroring how a contract call
// carries its signer and attached value.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog/log"

	"casino-core/internal/config"
	"casino-core/internal/engine"
	"casino-core/internal/ledger"
	"casino-core/internal/model"
	"casino-core/internal/platform"
	"casino-core/internal/registry"
	"casino-core/internal/treasury"
)

// Call metadata headers.
const (
	HeaderCaller   = "X-Caller"
	HeaderAttached = "X-Attached-Units"
)

// Server routes HTTP requests into the platform.
type Server struct {
	platform *platform.Platform
	http     *http.Server
}

// New builds the server over the platform. metrics may be nil; when set its
// handler is mounted at /metrics.
func New(cfg config.ServerConfig, p *platform.Platform, metrics http.Handler) *Server {
	s := &Server{platform: p}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	if cfg.WriteTimeout > 0 {
		r.Use(middleware.Timeout(cfg.WriteTimeout))
	}

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	if metrics != nil {
		r.Handle("/metrics", metrics)
	}

	r.Route("/v1", func(r chi.Router) {
		r.Get("/state", s.handleState)
		r.Get("/games/{id}", s.handleGetGame)
		r.Get("/accounts/{id}", s.handleGetAccount)
		r.Get("/accounts/{id}/credits/{token}", s.handleGetCredits)

		r.Post("/storage/deposit", s.handleStorageDeposit)
		r.Post("/storage/withdraw", s.handleStorageWithdraw)

		r.Post("/games", s.handleCreateGame)
		r.Put("/games/{id}", s.handleAlterGame)
		r.Post("/games/{id}/play", s.handlePlay)
		r.Post("/games/{id}/partner-balance/withdraw", s.handlePartnerBalance)
		r.Post("/games/{id}/house-funds/withdraw", s.handleHouseFunds)

		r.Post("/credits/withdraw", s.handleRetrieveCredits)
		r.Post("/treasury/owner/{index}/withdraw", s.handleOwnerFunds)
		r.Post("/treasury/nft/{index}/withdraw", s.handleNFTFunds)

		r.Post("/admin/halt", s.handleHalt)
		r.Post("/admin/owner", s.handleTransferOwnership)

		r.Post("/token-transfer", s.handleTokenTransfer)
	})

	s.http = &http.Server{
		Addr:         cfg.Addr,
		Handler:      r,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	}
	return s
}

// Handler returns the router, for tests.
func (s *Server) Handler() http.Handler { return s.http.Handler }

// Start listens until the server is shut down.
func (s *Server) Start() error {
	log.Info().Str("addr", s.http.Addr).Msg("HTTP server starting")
	if err := s.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown drains in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.http.Shutdown(ctx)
}

func (s *Server) handleState(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.platform.State())
}

func (s *Server) handleGetGame(w http.ResponseWriter, r *http.Request) {
	game, err := s.platform.Game(model.GameID(chi.URLParam(r, "id")))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, game)
}

func (s *Server) handleGetAccount(w http.ResponseWriter, r *http.Request) {
	account, err := s.platform.Account(model.AccountID(chi.URLParam(r, "id")))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, account)
}

func (s *Server) handleGetCredits(w http.ResponseWriter, r *http.Request) {
	balance := s.platform.Credits(
		model.AccountID(chi.URLParam(r, "id")),
		model.TokenID(chi.URLParam(r, "token")),
	)
	writeJSON(w, http.StatusOK, map[string]uint64{"balance": balance})
}

func (s *Server) handleStorageDeposit(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Amount uint64 `json:"amount"`
	}
	caller, ok := decodeCall(w, r, &body)
	if !ok {
		return
	}
	if err := s.platform.DepositStorageCollateral(r.Context(), caller, body.Amount); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleStorageWithdraw(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Amount uint64 `json:"amount"`
	}
	caller, ok := decodeCall(w, r, &body)
	if !ok {
		return
	}
	if err := s.platform.WithdrawStorageCollateral(r.Context(), caller, body.Amount); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleCreateGame(w http.ResponseWriter, r *http.Request) {
	var body struct {
		ID     model.GameID     `json:"id"`
		Config model.GameConfig `json:"config"`
	}
	caller, ok := decodeCall(w, r, &body)
	if !ok {
		return
	}
	if err := s.platform.CreateGame(r.Context(), caller, attached(r), body.ID, body.Config); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusCreated)
}

func (s *Server) handleAlterGame(w http.ResponseWriter, r *http.Request) {
	var body model.GameConfig
	caller, ok := decodeCall(w, r, &body)
	if !ok {
		return
	}
	id := model.GameID(chi.URLParam(r, "id"))
	if err := s.platform.AlterGame(r.Context(), caller, attached(r), id, body); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handlePlay(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Stake       uint64 `json:"stake"`
		Odds        uint8  `json:"odds"`
		DisplayHint string `json:"display_hint"`
	}
	caller, ok := decodeCall(w, r, &body)
	if !ok {
		return
	}
	id := model.GameID(chi.URLParam(r, "id"))
	won, err := s.platform.Play(r.Context(), caller, id, body.Stake, body.Odds, body.DisplayHint)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"won": won})
}

func (s *Server) handlePartnerBalance(w http.ResponseWriter, r *http.Request) {
	caller, ok := decodeCall(w, r, nil)
	if !ok {
		return
	}
	id := model.GameID(chi.URLParam(r, "id"))
	if err := s.platform.RetrievePartnerBalance(r.Context(), caller, id); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleHouseFunds(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Quantity uint64 `json:"quantity"`
	}
	caller, ok := decodeCall(w, r, &body)
	if !ok {
		return
	}
	id := model.GameID(chi.URLParam(r, "id"))
	if err := s.platform.RetrieveHouseFunds(r.Context(), caller, id, body.Quantity); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleRetrieveCredits(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Token  model.TokenID `json:"token"`
		Amount uint64        `json:"amount"`
	}
	caller, ok := decodeCall(w, r, &body)
	if !ok {
		return
	}
	if err := s.platform.RetrieveCredits(r.Context(), caller, body.Token, body.Amount); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleOwnerFunds(w http.ResponseWriter, r *http.Request) {
	caller, index, ok := decodeIndexCall(w, r)
	if !ok {
		return
	}
	if err := s.platform.RetrieveOwnerFunds(r.Context(), caller, attached(r), index); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleNFTFunds(w http.ResponseWriter, r *http.Request) {
	caller, index, ok := decodeIndexCall(w, r)
	if !ok {
		return
	}
	if err := s.platform.RetrieveNFTFunds(r.Context(), caller, attached(r), index); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleHalt(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Halted bool `json:"halted"`
	}
	caller, ok := decodeCall(w, r, &body)
	if !ok {
		return
	}
	halted, err := s.platform.SetHalt(r.Context(), caller, attached(r), body.Halted)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"halted": halted})
}

func (s *Server) handleTransferOwnership(w http.ResponseWriter, r *http.Request) {
	var body struct {
		NewOwner model.AccountID `json:"new_owner"`
	}
	caller, ok := decodeCall(w, r, &body)
	if !ok {
		return
	}
	if err := s.platform.TransferOwnership(r.Context(), caller, attached(r), body.NewOwner); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleTokenTransfer(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Sender  model.AccountID `json:"sender"`
		Token   model.TokenID   `json:"token"`
		Amount  uint64          `json:"amount"`
		Message string          `json:"msg"`
	}
	if _, ok := decodeCall(w, r, &body); !ok {
		return
	}
	unused, err := s.platform.OnTokenTransfer(r.Context(), body.Sender, body.Token, body.Amount, body.Message)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]uint64{"unused": unused})
}

// decodeCall extracts the caller identity and, when body is non-nil, decodes
// the JSON request body into it. On failure it writes the error response and
// returns ok=false.
func decodeCall(w http.ResponseWriter, r *http.Request, body any) (model.AccountID, bool) {
	caller := model.AccountID(r.Header.Get(HeaderCaller))
	if caller == "" {
		writeJSON(w, http.StatusUnauthorized, errorBody("missing "+HeaderCaller+" header"))
		return "", false
	}
	if body != nil {
		if err := json.NewDecoder(r.Body).Decode(body); err != nil {
			writeJSON(w, http.StatusBadRequest, errorBody("invalid request body"))
			return "", false
		}
	}
	return caller, true
}

func decodeIndexCall(w http.ResponseWriter, r *http.Request) (model.AccountID, int, bool) {
	caller, ok := decodeCall(w, r, nil)
	if !ok {
		return "", 0, false
	}
	index, err := strconv.Atoi(chi.URLParam(r, "index"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid token index"))
		return "", 0, false
	}
	return caller, index, true
}

// attached reads the attached native units header; absent means zero.
func attached(r *http.Request) uint64 {
	units, err := strconv.ParseUint(r.Header.Get(HeaderAttached), 10, 64)
	if err != nil {
		return 0
	}
	return units
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		log.Error().Err(err).Msg("Failed to encode response")
	}
}

func errorBody(message string) map[string]string {
	return map[string]string{"error": message}
}

// writeError maps domain errors onto HTTP statuses.
func writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, platform.ErrNotOwner),
		errors.Is(err, platform.ErrIntentProofRequired),
		errors.Is(err, registry.ErrNotPartnerOwner):
		status = http.StatusForbidden
	case errors.Is(err, platform.ErrOperationsSuspended):
		status = http.StatusServiceUnavailable
	case errors.Is(err, ledger.ErrAccountNotRegistered),
		errors.Is(err, registry.ErrGameNotFound):
		status = http.StatusNotFound
	case errors.Is(err, registry.ErrDuplicateGame):
		status = http.StatusConflict
	case errors.Is(err, ledger.ErrInsufficientBalance),
		errors.Is(err, ledger.ErrInsufficientStorageCollateral),
		errors.Is(err, registry.ErrInsufficientReserve),
		errors.Is(err, treasury.ErrZeroBalance):
		status = http.StatusPaymentRequired
	case errors.Is(err, platform.ErrMalformedTransferMessage),
		errors.Is(err, registry.ErrInvalidRange),
		errors.Is(err, registry.ErrFeeOutOfRange),
		errors.Is(err, registry.ErrTokenMismatch),
		errors.Is(err, treasury.ErrTokenIndexOutOfRange),
		errors.Is(err, ledger.ErrAmountOverflow),
		errors.Is(err, registry.ErrReserveOverflow),
		errors.Is(err, engine.ErrBetTooSmall),
		errors.Is(err, engine.ErrBetTooLarge),
		errors.Is(err, engine.ErrOddsTooLow),
		errors.Is(err, engine.ErrOddsTooHigh):
		status = http.StatusBadRequest
	}
	writeJSON(w, status, errorBody(err.Error()))
}
