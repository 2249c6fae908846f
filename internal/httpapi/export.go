// internal/httpapi/export.go
package httpapi

import (
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/rovshanmuradov/solana-hft/internal/export"
	"github.com/rovshanmuradov/solana-hft/internal/portfolio"
)

// exportPortfolio serves the latest snapshot (refreshed when stale) as a
// CSV or JSON download.
func (s *Server) exportPortfolio(w http.ResponseWriter, r *http.Request) {
	format, err := export.ParseFormat(r.URL.Query().Get("format"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	snap, err := s.deps.Portfolio.Get(r.Context(), r.PathValue("identity"))
	if err != nil {
		s.writeFailure(w, err)
		return
	}

	now := time.Now().UTC()
	setDownload(w, format, export.Filename("portfolio_"+shortID(snap), format, now))
	if err := export.WritePortfolio(w, snap, format, now); err != nil {
		s.logger.Warn("Portfolio export failed", zap.Error(err))
	}
}

func (s *Server) exportStrategies(w http.ResponseWriter, r *http.Request) {
	format, err := export.ParseFormat(r.URL.Query().Get("format"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	now := time.Now().UTC()
	setDownload(w, format, export.Filename("strategies", format, now))
	if err := export.WriteStrategies(w, s.deps.Strategies.Snapshot(), format, now); err != nil {
		s.logger.Warn("Strategy export failed", zap.Error(err))
	}
}

func setDownload(w http.ResponseWriter, format export.Format, filename string) {
	w.Header().Set("Content-Type", format.ContentType())
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	w.WriteHeader(http.StatusOK)
}

func shortID(snap portfolio.Snapshot) string {
	if len(snap.Identity) > 8 {
		return snap.Identity[:8]
	}
	return snap.Identity
}
