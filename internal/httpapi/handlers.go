// internal/httpapi/handlers.go
package httpapi

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	json "github.com/goccy/go-json"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/rovshanmuradov/solana-hft/internal/portfolio"
	"github.com/rovshanmuradov/solana-hft/internal/resolver"
	"github.com/rovshanmuradov/solana-hft/internal/source"
	"github.com/rovshanmuradov/solana-hft/internal/strategy"
	"github.com/rovshanmuradov/solana-hft/internal/wallet"
)

// errWalletRequired is answered with 412 when starting without a wallet.
var errWalletRequired = errors.New("connect a wallet before starting a strategy")

type balanceResponse struct {
	Identity string `json:"identity"`
	resolver.BalanceResult
	Degraded bool `json:"degraded"`
}

type portfolioResponse struct {
	portfolio.Snapshot
	Degraded bool `json:"degraded"`
}

type strategiesResponse struct {
	Strategies []strategy.View `json:"strategies"`
	TotalPnl   decimal.Decimal `json:"totalPnl"`
}

type tokensResponse struct {
	Source    string         `json:"source"`
	FetchedAt time.Time      `json:"fetchedAt"`
	Count     int            `json:"count"`
	Tokens    []source.Token `json:"tokens"`
}

type resourcePayload struct {
	Resource string `json:"resource"`
}

type walletPayload struct {
	Identity string `json:"identity"`
}

func (s *Server) getBalance(w http.ResponseWriter, r *http.Request) {
	identity := r.PathValue("identity")
	res, err := s.deps.Balance.ResolveBalance(r.Context(), identity)
	if err != nil {
		s.writeFailure(w, err)
		return
	}
	writeJSON(w, http.StatusOK, balanceResponse{Identity: identity, BalanceResult: res, Degraded: res.Degraded()})
}

func (s *Server) getPrice(w http.ResponseWriter, r *http.Request) {
	quote, err := s.deps.Price.ResolvePrice(r.Context())
	if err != nil {
		s.writeFailure(w, err)
		return
	}
	writeJSON(w, http.StatusOK, quote)
}

func (s *Server) getPortfolio(w http.ResponseWriter, r *http.Request) {
	identity := r.PathValue("identity")

	var (
		snap portfolio.Snapshot
		err  error
	)
	if truthy(r.URL.Query().Get("cached")) {
		snap, err = s.deps.Portfolio.Get(r.Context(), identity)
	} else {
		snap, err = s.deps.Portfolio.Refresh(r.Context(), identity)
	}
	if err != nil {
		s.writeFailure(w, err)
		return
	}
	writeJSON(w, http.StatusOK, portfolioResponse{Snapshot: snap, Degraded: snap.Degraded()})
}

func (s *Server) getTokens(w http.ResponseWriter, r *http.Request) {
	if s.deps.Tokens == nil {
		writeError(w, http.StatusNotFound, "token list is not configured")
		return
	}

	if mint := r.URL.Query().Get("mint"); mint != "" {
		token, ok, err := s.deps.Tokens.Token(r.Context(), mint)
		if err != nil {
			s.writeFailure(w, err)
			return
		}
		if !ok {
			writeError(w, http.StatusNotFound, fmt.Sprintf("token %s not found", mint))
			return
		}
		writeJSON(w, http.StatusOK, token)
		return
	}

	list, err := s.deps.Tokens.ResolveTokens(r.Context())
	if err != nil {
		s.writeFailure(w, err)
		return
	}

	tokens := list.Tokens
	if symbol := strings.TrimSpace(r.URL.Query().Get("symbol")); symbol != "" {
		filtered := make([]source.Token, 0, 1)
		for _, t := range tokens {
			if strings.EqualFold(t.Symbol, symbol) {
				filtered = append(filtered, t)
			}
		}
		tokens = filtered
	}
	writeJSON(w, http.StatusOK, tokensResponse{
		Source:    list.Source,
		FetchedAt: list.FetchedAt,
		Count:     len(tokens),
		Tokens:    tokens,
	})
}

func (s *Server) listStrategies(w http.ResponseWriter, _ *http.Request) {
	views := s.deps.Strategies.Snapshot()
	total := decimal.Zero
	for _, v := range views {
		total = total.Add(v.AccruedPnl)
	}
	writeJSON(w, http.StatusOK, strategiesResponse{Strategies: views, TotalPnl: total})
}

func (s *Server) getStrategy(w http.ResponseWriter, r *http.Request) {
	s.withKind(w, r, s.deps.Strategies.Get)
}

func (s *Server) startStrategy(w http.ResponseWriter, r *http.Request) {
	if s.deps.RequireWallet {
		if _, ok := s.deps.Wallet.Current(); !ok {
			writeError(w, http.StatusPreconditionFailed, errWalletRequired.Error())
			return
		}
	}
	s.withKind(w, r, s.deps.Strategies.Start)
}

func (s *Server) stopStrategy(w http.ResponseWriter, r *http.Request) {
	s.withKind(w, r, s.deps.Strategies.Stop)
}

func (s *Server) assignResource(w http.ResponseWriter, r *http.Request) {
	var payload resourcePayload
	if !decodeJSON(w, r, &payload) {
		return
	}
	s.withKind(w, r, func(kind strategy.Kind) (strategy.View, error) {
		return s.deps.Strategies.AssignResource(kind, payload.Resource)
	})
}

func (s *Server) updateConfig(w http.ResponseWriter, r *http.Request) {
	var patch strategy.Patch
	if !decodeJSON(w, r, &patch) {
		return
	}
	s.withKind(w, r, func(kind strategy.Kind) (strategy.View, error) {
		return s.deps.Strategies.UpdateConfiguration(kind, patch)
	})
}

func (s *Server) withKind(w http.ResponseWriter, r *http.Request, op func(strategy.Kind) (strategy.View, error)) {
	kind, err := strategy.ParseKind(r.PathValue("kind"))
	if err != nil {
		s.writeFailure(w, err)
		return
	}
	view, err := op(kind)
	if err != nil {
		s.writeFailure(w, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (s *Server) getWallet(w http.ResponseWriter, _ *http.Request) {
	info, _ := s.deps.Wallet.Current()
	writeJSON(w, http.StatusOK, info)
}

func (s *Server) connectWallet(w http.ResponseWriter, r *http.Request) {
	var payload walletPayload
	if !decodeJSON(w, r, &payload) {
		return
	}
	info, err := s.deps.Wallet.Connect(payload.Identity)
	if err != nil {
		s.writeFailure(w, err)
		return
	}
	writeJSON(w, http.StatusOK, info)
}

func (s *Server) disconnectWallet(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.deps.Wallet.Disconnect())
}

func (s *Server) getLogs(w http.ResponseWriter, r *http.Request) {
	if s.deps.Logs == nil {
		writeJSON(w, http.StatusOK, []any{})
		return
	}
	limit := defaultLogLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			writeError(w, http.StatusBadRequest, "limit must be a non-negative integer")
			return
		}
		limit = n
	}
	writeJSON(w, http.StatusOK, s.deps.Logs.Recent(limit))
}

func (s *Server) health(w http.ResponseWriter, _ *http.Request) {
	body := map[string]any{
		"status": "ok",
		"uptime": time.Since(s.started).Round(time.Second).String(),
	}
	if s.deps.Bus != nil {
		body["events"] = s.deps.Bus.Stats()
	}
	writeJSON(w, http.StatusOK, body)
}

// writeFailure maps domain errors onto status codes.
func (s *Server) writeFailure(w http.ResponseWriter, err error) {
	var notAssigned *strategy.ResourceNotAssignedError
	switch {
	case errors.Is(err, resolver.ErrCanceled):
		writeError(w, http.StatusServiceUnavailable, "canceled")
	case errors.Is(err, strategy.ErrUnknownKind):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.As(err, &notAssigned):
		writeJSON(w, http.StatusConflict, map[string]string{
			"status": "error",
			"error":  err.Error(),
			"kind":   string(notAssigned.Kind),
		})
	case errors.Is(err, strategy.ErrResourceNotAssigned):
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, wallet.ErrInvalidIdentity):
		writeError(w, http.StatusBadRequest, err.Error())
	default:
		s.logger.Error("Request failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, err.Error())
	}
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxJSONBodyBytes))
	if err := dec.Decode(dst); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid JSON payload: %v", err))
		return false
	}
	return true
}

func truthy(v string) bool {
	b, err := strconv.ParseBool(v)
	return err == nil && b
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"status": "error", "error": message})
}
