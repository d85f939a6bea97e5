package service

import (
	"context"
	"testing"

	"github.com/ayo6706/wallet-policy/internal/domain"
	"github.com/ayo6706/wallet-policy/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestCapAuditRun(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()
	audit := NewCapAuditService(e.store, e.usage)

	_, err := audit.Run(ctx)
	assert.ErrorIs(t, err, domain.ErrSnapshotUnavailable)

	capped := campaign("capped", domain.CashbackAmount, "1", decPtr("50"))
	capped.UsageTotal = dec("50")
	open := campaign("open", domain.CashbackAmount, "1", nil)
	open.UsageTotal = dec("5000")
	for _, c := range []models.Campaign{capped, open} {
		require.NoError(t, e.rules.CreateCampaign(ctx, &c))
	}
	e.refresh(t)

	breaches, err := audit.Run(ctx)
	require.NoError(t, err)
	assert.Empty(t, breaches)

	ok, err := e.usage.CompareAndSwapUsage(ctx, capped.ID, dec("50"), dec("50.01"))
	require.NoError(t, err)
	require.True(t, ok)

	breaches, err = audit.Run(ctx)
	require.NoError(t, err)
	require.Len(t, breaches, 1)
	assert.Equal(t, capped.ID, breaches[0].CampaignID)
	assert.True(t, breaches[0].Usage.Equal(dec("50.01")))
}

func TestCapAuditRun_LogsBreachInCurrency(t *testing.T) {
	core, logs := observer.New(zapcore.ErrorLevel)
	t.Cleanup(zap.ReplaceGlobals(zap.New(core)))

	e := newTestEngine(t)
	ctx := context.Background()
	capped := campaign("capped", domain.CashbackAmount, "1", decPtr("50"))
	capped.UsageTotal = dec("50.5")
	require.NoError(t, e.rules.CreateCampaign(ctx, &capped))
	e.refresh(t)

	breaches, err := NewCapAuditService(e.store, e.usage).Run(ctx)
	require.NoError(t, err)
	require.Len(t, breaches, 1)

	entries := logs.FilterField(zap.String("campaign_id", capped.ID.String())).All()
	require.Len(t, entries, 1)
	fields := entries[0].ContextMap()
	assert.Equal(t, "50.50 USD", fields["usage"])
	assert.Equal(t, "50.00 USD", fields["cap"])
}
