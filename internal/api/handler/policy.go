package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/ayo6706/wallet-policy/internal/api/middleware"
	"github.com/ayo6706/wallet-policy/internal/domain"
	"github.com/ayo6706/wallet-policy/internal/models"
	"github.com/ayo6706/wallet-policy/internal/service"
	"github.com/ayo6706/wallet-policy/internal/validation"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

type PolicyHandler struct {
	svc     *service.PolicyService
	timeout time.Duration
	logger  *zap.Logger
}

func NewPolicyHandler(svc *service.PolicyService, timeout time.Duration, logger *zap.Logger) *PolicyHandler {
	return &PolicyHandler{svc: svc, timeout: timeout, logger: logger}
}

type policyRequest struct {
	CustomerID             string            `json:"customer_id" validate:"required"`
	Currency               string            `json:"currency" validate:"required,len=3"`
	TransactionType        string            `json:"transaction_type" validate:"required"`
	SubType                string            `json:"sub_type"`
	ATMType                string            `json:"atm_type"`
	Amount                 *decimal.Decimal  `json:"amount" validate:"required"`
	PeriodTransactionCount *int              `json:"period_transaction_count" validate:"omitempty,gte=0"`
	KYCTier                string            `json:"kyc_tier" validate:"required,oneof=verified unverified"`
	TargetAttributes       map[string]string `json:"target_attributes"`
	Timestamp              *time.Time        `json:"timestamp"`
}

// transactionContext treats a missing period count as this transaction being the first.
func (req policyRequest) transactionContext() models.TransactionContext {
	tc := models.TransactionContext{
		CustomerID:             req.CustomerID,
		Currency:               domain.NormalizeCurrency(req.Currency),
		TransactionType:        req.TransactionType,
		SubType:                req.SubType,
		ATMType:                req.ATMType,
		Amount:                 *req.Amount,
		PeriodTransactionCount: 1,
		KYCTier:                domain.KYCTier(req.KYCTier),
		TargetAttributes:       req.TargetAttributes,
	}
	if req.PeriodTransactionCount != nil {
		tc.PeriodTransactionCount = *req.PeriodTransactionCount
	}
	if req.Timestamp != nil {
		tc.Timestamp = *req.Timestamp
	}
	return tc
}

// Quote evaluates a transaction without granting cashback.
func (h *PolicyHandler) Quote(w http.ResponseWriter, r *http.Request) {
	h.evaluate(w, r, h.svc.Quote)
}

// Resolve evaluates a transaction and grants cashback.
func (h *PolicyHandler) Resolve(w http.ResponseWriter, r *http.Request) {
	h.evaluate(w, r, h.svc.Resolve)
}

func (h *PolicyHandler) evaluate(w http.ResponseWriter, r *http.Request, fn func(context.Context, models.TransactionContext) (*models.PolicyDecision, error)) {
	var req policyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		RespondError(w, r, http.StatusBadRequest, "request/invalid-body", "Invalid request body")
		return
	}
	middleware.AnnotateRequest(r.Context(), zap.String("customer_id", req.CustomerID))
	if err := validation.ValidateStruct(req); err != nil {
		respondServiceError(w, r, err)
		return
	}

	ctx := r.Context()
	if h.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, h.timeout)
		defer cancel()
	}

	decision, err := fn(ctx, req.transactionContext())
	if err != nil {
		h.logger.Warn("policy evaluation failed", zap.String("customer_id", req.CustomerID), zap.Error(err))
		respondServiceError(w, r, err)
		return
	}
	middleware.AnnotateRequest(r.Context(), decisionFields(decision)...)
	RespondJSON(w, http.StatusOK, decision)
}

// decisionFields summarises a decision for the access log.
func decisionFields(d *models.PolicyDecision) []zap.Field {
	granted := decimal.Zero
	deferred := 0
	for _, c := range d.Campaigns {
		granted = granted.Add(c.Granted)
		if c.Deferred {
			deferred++
		}
	}
	fields := []zap.Field{
		zap.Bool("rejected", d.Rejected),
		zap.Int("campaigns", len(d.Campaigns)),
		zap.Int("campaigns_deferred", deferred),
		zap.String("cashback_granted", granted.String()),
	}
	if d.Error != nil {
		fields = append(fields, zap.String("decision_error", d.Error.Code))
	}
	if d.Commission.Fee != nil {
		fields = append(fields, zap.String("commission_fee", d.Commission.Fee.String()))
	}
	return fields
}
