package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"

	"orchestrator/internal/copilot"
	"orchestrator/internal/domain"
	"orchestrator/internal/orchestrator"
	"orchestrator/internal/store"
)

// llmRequest is the POST /api/llm body: {taskType, context}.
type llmRequest struct {
	TaskType string         `json:"taskType"`
	Context  map[string]any `json:"context"`
}

// handleLLM implements POST /api/llm. Core and orchestrator task types
// route through the Task Orchestrator's registered handlers; copilot_agent
// and the video_* orchestrator tasks carry different looping/state-machine
// semantics than the one-shot pipeline, so they're dispatched directly to
// the Copilot Agent Loop and the video manifest/render controllers.
func (s *Server) handleLLM(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	var req llmRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Context == nil {
		req.Context = map[string]any{}
	}
	userID := userIDFrom(r)

	switch req.TaskType {
	case orchestrator.TaskCopilotAgent:
		s.dispatchCopilotAgent(w, r, req, userID)
	case orchestrator.TaskVideoCreateManifest:
		s.dispatchVideoCreateManifest(w, r, req, userID)
	case orchestrator.TaskVideoRegenerate:
		s.dispatchVideoRegenerate(w, r, req, userID)
	case orchestrator.TaskVideoCaptionUpdate:
		s.dispatchVideoCaptionUpdate(w, r, req)
	case orchestrator.TaskVideoRender:
		s.dispatchVideoRender(w, r, req, userID)
	case orchestrator.TaskCompanyIntel:
		s.dispatchCompanyIntel(w, r, req, userID)
	default:
		s.dispatchOrchestrator(w, r, req, userID)
	}
}

// dispatchCompanyIntel bypasses the Task Orchestrator's one-shot pipeline:
// the Company Intel loader owns its own TTL-cache/refresh decision before
// ever reaching a provider call, which doesn't fit the Handler interface's
// reserve-then-invoke-then-persist shape.
func (s *Server) dispatchCompanyIntel(w http.ResponseWriter, r *http.Request, req llmRequest, userID string) {
	companyName := stringField(req.Context, "companyName")
	if companyName == "" {
		writeError(w, http.StatusBadRequest, "company_intel requires companyName")
		return
	}

	ctx, err := s.companies.Load(r.Context(), companyName, userID, boolField(req.Context, "forceRefresh"))
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"result": ctx})
}

func (s *Server) dispatchOrchestrator(w http.ResponseWriter, r *http.Request, req llmRequest, userID string) {
	jobID := stringField(req.Context, "jobId")
	if jobID == "" {
		jobID = s.jobIDForVideoSubtask(req)
	}
	tc := orchestrator.TaskContext{
		JobID:        jobID,
		ForceRefresh: boolField(req.Context, "forceRefresh"),
		Raw:          req.Context,
	}
	caller := orchestrator.Caller{UserID: userID, Logger: s.logger}

	result, err := s.orch.RunTask(r.Context(), req.TaskType, tc, caller)
	if err != nil {
		writeTaskError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"result": result})
}

func (s *Server) dispatchCopilotAgent(w http.ResponseWriter, r *http.Request, req llmRequest, userID string) {
	jobID := stringField(req.Context, "jobId")
	message := stringField(req.Context, "message")
	if jobID == "" || message == "" {
		writeError(w, http.StatusBadRequest, "copilot_agent requires jobId and message")
		return
	}

	caller := orchestrator.Caller{UserID: userID, Logger: s.logger}
	turn, err := s.copilot.Run(r.Context(), jobID, message, caller)
	if err != nil {
		writeCopilotError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"result": turn})
}

func (s *Server) dispatchVideoCreateManifest(w http.ResponseWriter, r *http.Request, req llmRequest, userID string) {
	jobID := stringField(req.Context, "jobId")
	channelID := stringField(req.Context, "channelId")
	videoID := stringField(req.Context, "videoId")
	if jobID == "" || channelID == "" || videoID == "" {
		writeError(w, http.StatusBadRequest, "video_create_manifest requires jobId, channelId, videoId")
		return
	}

	item, err := s.manifests.Create(r.Context(), videoID, jobID, channelID, userID)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"result": item})
}

func (s *Server) dispatchVideoRegenerate(w http.ResponseWriter, r *http.Request, req llmRequest, userID string) {
	videoID := stringField(req.Context, "videoId")
	if videoID == "" {
		writeError(w, http.StatusBadRequest, "video_regenerate requires videoId")
		return
	}

	item, err := s.manifests.Regenerate(r.Context(), videoID, userID)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"result": item})
}

func (s *Server) dispatchVideoCaptionUpdate(w http.ResponseWriter, r *http.Request, req llmRequest) {
	videoID := stringField(req.Context, "videoId")
	if videoID == "" {
		writeError(w, http.StatusBadRequest, "video_caption_update requires videoId")
		return
	}

	captionRaw, _ := req.Context["caption"].(map[string]any)
	caption := domain.Caption{Text: stringField(captionRaw, "text")}
	if hashtags, ok := captionRaw["hashtags"].([]any); ok {
		for _, h := range hashtags {
			if hs, ok := h.(string); ok {
				caption.Hashtags = append(caption.Hashtags, hs)
			}
		}
	}

	item, err := s.manifests.UpdateCaption(videoID, caption)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"result": item})
}

func (s *Server) dispatchVideoRender(w http.ResponseWriter, r *http.Request, req llmRequest, userID string) {
	videoID := stringField(req.Context, "videoId")
	if videoID == "" {
		writeError(w, http.StatusBadRequest, "video_render requires videoId")
		return
	}

	item, err := s.renders.Trigger(r.Context(), videoID, userID)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"result": item})
}

// jobIDForVideoSubtask resolves the owning jobId for video_storyboard/
// video_caption/video_compliance, whose context carries videoId rather
// than jobId.
func (s *Server) jobIDForVideoSubtask(req llmRequest) string {
	switch req.TaskType {
	case orchestrator.TaskVideoStoryboard, orchestrator.TaskVideoCaption, orchestrator.TaskVideoCompliance:
	default:
		return ""
	}
	videoID := stringField(req.Context, "videoId")
	if videoID == "" {
		return ""
	}
	var video domain.VideoItem
	if err := s.docs.Get(videosCollection, videoID, &video); err != nil {
		return ""
	}
	return video.JobID
}

func writeCopilotError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, copilot.ErrUnauthorized):
		writeError(w, http.StatusForbidden, err.Error())
	case errors.Is(err, store.ErrNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	default:
		writeError(w, http.StatusInternalServerError, err.Error())
	}
}

func writeStoreError(w http.ResponseWriter, err error) {
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}
	writeError(w, http.StatusInternalServerError, err.Error())
}

func stringField(m map[string]any, key string) string {
	if m == nil {
		return ""
	}
	s, _ := m[key].(string)
	return s
}

func boolField(m map[string]any, key string) bool {
	if m == nil {
		return false
	}
	b, _ := m[key].(bool)
	return b
}
