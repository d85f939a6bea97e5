package handler

import (
	"net/http"

	"github.com/ayo6706/wallet-policy/internal/service"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type CampaignHandler struct {
	snapshots   *service.SnapshotStore
	accumulator *service.CashbackAccumulator
}

func NewCampaignHandler(snapshots *service.SnapshotStore, accumulator *service.CashbackAccumulator) *CampaignHandler {
	return &CampaignHandler{snapshots: snapshots, accumulator: accumulator}
}

type campaignUsageResponse struct {
	CampaignID      uuid.UUID        `json:"campaign_id"`
	Currency        string           `json:"currency"`
	UsageTotal      decimal.Decimal  `json:"usage_total"`
	MaximumCashback *decimal.Decimal `json:"maximum_cashback"`
	Remaining       *decimal.Decimal `json:"remaining"`
}

// GetUsage reports a live campaign's usage against its cap.
func (h *CampaignHandler) GetUsage(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		RespondError(w, r, http.StatusBadRequest, "request/invalid-id", "Invalid campaign id")
		return
	}

	snap := h.snapshots.Load()
	if snap == nil {
		RespondError(w, r, http.StatusServiceUnavailable, "policy/snapshot-unavailable", "policy rules are not loaded yet")
		return
	}
	campaign, ok := snap.Campaign(id)
	if !ok {
		RespondError(w, r, http.StatusNotFound, "campaign/not-found", "Campaign not found")
		return
	}

	usage, err := h.accumulator.Usage(r.Context(), id)
	if err != nil {
		respondServiceError(w, r, err)
		return
	}

	resp := campaignUsageResponse{
		CampaignID:      id,
		Currency:        campaign.Currency,
		UsageTotal:      usage,
		MaximumCashback: campaign.MaximumCashback,
	}
	if campaign.MaximumCashback != nil {
		remaining := decimal.Max(campaign.MaximumCashback.Sub(usage), decimal.Zero)
		resp.Remaining = &remaining
	}
	RespondJSON(w, http.StatusOK, resp)
}
