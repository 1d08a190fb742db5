package httpapi

import (
	"net/http"

	"orchestrator/internal/domain"
)

const copilotChatCollection = "wizardCopilotChats"

// handleCopilotChat implements GET /copilot/chat?jobId=…, returning up to
// DefaultChatRetention messages of a job's copilot history (<=20).
func (s *Server) handleCopilotChat(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	jobID := r.URL.Query().Get("jobId")
	if jobID == "" {
		writeError(w, http.StatusBadRequest, "jobId required")
		return
	}

	var job domain.Job
	if err := s.docs.Get("jobs", jobID, &job); err != nil {
		writeStoreError(w, err)
		return
	}
	if job.UserID != userIDFrom(r) {
		writeError(w, http.StatusForbidden, "caller does not own this job")
		return
	}

	var chat domain.CopilotChat
	if err := s.docs.Get(copilotChatCollection, jobID, &chat); err != nil {
		writeJSON(w, http.StatusOK, map[string]any{"result": domain.CopilotChat{JobID: jobID, CurrentStage: domain.StageWizard}})
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"result": chat})
}
