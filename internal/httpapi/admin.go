package httpapi

import (
	"net/http"

	"orchestrator/internal/metrics"
	"orchestrator/internal/store"
)

// handleAdminUsage implements GET /admin/usage?userId=…, an internal-only
// rollup of a user's credit burn. Prefers the Prometheus-backed
// QueryService when one is configured,
// falling back to aggregating the document store's append-only usage log
// directly so the endpoint still works without a running Prometheus.
func (s *Server) handleAdminUsage(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	userID := r.URL.Query().Get("userId")
	if userID == "" {
		writeError(w, http.StatusBadRequest, "userId required")
		return
	}

	if s.usageQuery != nil {
		usage, err := s.usageQuery.GetUserUsage(r.Context(), userID)
		if err != nil {
			s.logger.Warn("prometheus usage query failed for %s, falling back to store: %v", userID, err)
		} else {
			writeJSON(w, http.StatusOK, map[string]any{"result": usage})
			return
		}
	}

	writeJSON(w, http.StatusOK, map[string]any{"result": aggregateStoreUsage(s.docs, userID)})
}

func aggregateStoreUsage(docs *store.Documents, userID string) metrics.UserUsage {
	usage := metrics.UserUsage{UserID: userID}
	records, err := docs.UsageByUser(userID)
	if err != nil {
		return usage
	}
	for _, rec := range records {
		if rec.Kind != store.UsageKindCommit {
			continue
		}
		usage.PromptTokens += int64(rec.PromptTokens)
		usage.CompletionTokens += int64(rec.CompletionTokens)
		usage.TotalCredits += rec.CreditsCharged
	}
	usage.TotalTokens = usage.PromptTokens + usage.CompletionTokens
	return usage
}
