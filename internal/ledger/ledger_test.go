package ledger

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"orchestrator/internal/config"
	"orchestrator/internal/domain"
	"orchestrator/internal/store"
)

func newTestLedger(t *testing.T) *Ledger {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "ledger.db")
	require.NoError(t, store.Initialize(dbPath))
	t.Cleanup(func() {
		require.NoError(t, store.Reset())
	})
	return New(store.Store(), config.DefaultCreditConfig())
}

func seedBalance(t *testing.T, l *Ledger, userID string, balance float64) {
	t.Helper()
	err := l.docs.Save(balanceCollection, userID, &domain.CreditBalance{
		UserID:  userID,
		Balance: balance,
	})
	require.NoError(t, err)
}

func TestReserve_SucceedsWithinBalance(t *testing.T) {
	l := newTestLedger(t)
	seedBalance(t, l, "user-1", 10)

	resID, err := l.Reserve("user-1", 4)
	require.NoError(t, err)
	assert.NotEmpty(t, resID)

	balance, err := l.Balance("user-1")
	require.NoError(t, err)
	assert.InDelta(t, 4, balance.Reserved, 0.001)
	assert.InDelta(t, 6, balance.Available(), 0.001)
}

func TestReserve_FailsWhenInsufficient(t *testing.T) {
	l := newTestLedger(t)
	seedBalance(t, l, "user-1", 2)

	_, err := l.Reserve("user-1", 4)
	assert.ErrorIs(t, err, ErrInsufficientCredits)
}

func TestCommit_DebitsActualAndReleasesReservation(t *testing.T) {
	l := newTestLedger(t)
	seedBalance(t, l, "user-1", 10)

	resID, err := l.Reserve("user-1", 4)
	require.NoError(t, err)

	require.NoError(t, l.Commit(resID, 3))

	balance, err := l.Balance("user-1")
	require.NoError(t, err)
	assert.InDelta(t, 7, balance.Balance, 0.001)
	assert.InDelta(t, 0, balance.Reserved, 0.001)
	assert.InDelta(t, 3, balance.LifetimeUsed, 0.001)

	err = l.Commit(resID, 1)
	assert.ErrorIs(t, err, ErrReservationNotFound)
}

func TestCommit_CapsOverrunAtReservedAmount(t *testing.T) {
	l := newTestLedger(t)
	seedBalance(t, l, "user-1", 10)

	resID, err := l.Reserve("user-1", 4)
	require.NoError(t, err)

	require.NoError(t, l.Commit(resID, 9))

	balance, err := l.Balance("user-1")
	require.NoError(t, err)
	assert.InDelta(t, 6, balance.Balance, 0.001)
	assert.InDelta(t, 4, balance.LifetimeUsed, 0.001)
}

func TestRefund_ReleasesReservationWithNoBalanceChange(t *testing.T) {
	l := newTestLedger(t)
	seedBalance(t, l, "user-1", 10)

	resID, err := l.Reserve("user-1", 4)
	require.NoError(t, err)

	require.NoError(t, l.Refund(resID))

	balance, err := l.Balance("user-1")
	require.NoError(t, err)
	assert.InDelta(t, 10, balance.Balance, 0.001)
	assert.InDelta(t, 0, balance.Reserved, 0.001)
}

func TestEstimateTextCredits_FloorsAtMinimum(t *testing.T) {
	l := newTestLedger(t)

	credits := l.EstimateTextCredits("claude-sonnet-4-20250514", 10, 5)
	assert.InDelta(t, l.credit.MinimumReservation, credits, 0.0001)
}

func TestEstimateTextCredits_ScalesWithTokens(t *testing.T) {
	l := newTestLedger(t)

	credits := l.EstimateTextCredits("claude-sonnet-4-20250514", 10000, 0)
	assert.Greater(t, credits, l.credit.MinimumReservation)
}

func TestAppend_WritesUsageLogRow(t *testing.T) {
	l := newTestLedger(t)

	require.NoError(t, l.Append(domain.UsageEntry{
		UserID:       "user-1",
		TaskType:     "suggest",
		Model:        "claude-sonnet-4-20250514",
		InputTokens:  100,
		OutputTokens: 50,
		CreditsUsed:  0.5,
		Status:       domain.UsageStatusOK,
	}))

	records, err := l.docs.UsageByUser("user-1")
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, store.UsageKindCommit, records[0].Kind)
}
