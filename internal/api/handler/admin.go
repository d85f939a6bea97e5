package handler

import (
	"net/http"

	"github.com/ayo6706/wallet-policy/internal/service"
	"go.uber.org/zap"
)

type AdminHandler struct {
	loader *service.SnapshotLoader
	logger *zap.Logger
}

func NewAdminHandler(loader *service.SnapshotLoader, logger *zap.Logger) *AdminHandler {
	return &AdminHandler{loader: loader, logger: logger}
}

// RefreshSnapshot reloads the rule snapshot outside the worker schedule.
func (h *AdminHandler) RefreshSnapshot(w http.ResponseWriter, r *http.Request) {
	stats, err := h.loader.Refresh(r.Context())
	if err != nil {
		h.logger.Error("manual snapshot refresh failed", zap.Error(err))
		RespondError(w, r, http.StatusServiceUnavailable, "policy/snapshot-refresh-failed", "snapshot refresh failed")
		return
	}
	RespondJSON(w, http.StatusOK, map[string]int{
		"limit_rules":      stats.LimitRules,
		"commission_rules": stats.CommissionRules,
		"campaigns":        stats.Campaigns,
		"skipped":          stats.Skipped,
	})
}
