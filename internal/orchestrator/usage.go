package orchestrator

import (
	"time"

	"orchestrator/internal/domain"
)

// storeUsageEntry builds the append-only usage row for one task invocation
// (C6 pipeline step 10, emitted via the Credit Ledger's Append).
func storeUsageEntry(userID, jobID, taskType, provider, model string, promptTokens, completionTokens int, credits float64, status, errorReason string) domain.UsageEntry {
	return domain.UsageEntry{
		UserID:       userID,
		JobID:        jobID,
		TaskType:     taskType,
		Provider:     provider,
		Model:        model,
		InputTokens:  promptTokens,
		OutputTokens: completionTokens,
		CreditsUsed:  credits,
		Status:       status,
		ErrorReason:  errorReason,
		Timestamp:    time.Now().UTC(),
	}
}
