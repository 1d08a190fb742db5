package httpapi

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"orchestrator/internal/domain"
)

const videosCollection = "videos"

// handleVideos implements GET /videos, optionally filtered by ?jobId=.
func (s *Server) handleVideos(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	var items []domain.VideoItem
	if err := s.docs.List(videosCollection, &items); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	if jobID := r.URL.Query().Get("jobId"); jobID != "" {
		filtered := items[:0]
		for _, item := range items {
			if item.JobID == jobID {
				filtered = append(filtered, item)
			}
		}
		items = filtered
	}

	writeJSON(w, http.StatusOK, map[string]any{"result": items})
}

// handleVideoByID implements GET /videos/:id, POST /videos/:id/approve, and
// POST /videos/:id/publish.
func (s *Server) handleVideoByID(w http.ResponseWriter, r *http.Request) {
	path := strings.TrimPrefix(r.URL.Path, "/videos/")
	if path == "" {
		writeError(w, http.StatusBadRequest, "video id required")
		return
	}

	if videoID, ok := strings.CutSuffix(path, "/approve"); ok {
		s.handleVideoApprove(w, r, videoID)
		return
	}
	if videoID, ok := strings.CutSuffix(path, "/publish"); ok {
		s.handleVideoPublish(w, r, videoID)
		return
	}
	s.handleVideoGet(w, r, path)
}

// handleVideoGet loads videoID and, if a render is in flight, polls the
// provider once before responding, so a client driving GET /videos/:id in a
// loop observes render progress without a separate poll endpoint.
func (s *Server) handleVideoGet(w http.ResponseWriter, r *http.Request, videoID string) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	var item domain.VideoItem
	if err := s.docs.Get(videosCollection, videoID, &item); err != nil {
		writeStoreError(w, err)
		return
	}

	if item.Status == domain.VideoStateGenerating || item.Status == domain.VideoStateExtending {
		polled, err := s.renders.Poll(r.Context(), videoID, userIDFrom(r))
		if err != nil {
			writeStoreError(w, err)
			return
		}
		item = *polled
	}

	writeJSON(w, http.StatusOK, map[string]any{"result": item})
}

func (s *Server) handleVideoApprove(w http.ResponseWriter, r *http.Request, videoID string) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	item, err := s.renders.Approve(videoID)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"result": item})
}

func (s *Server) handleVideoPublish(w http.ResponseWriter, r *http.Request, videoID string) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	item, err := s.renders.Publish(videoID)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"result": item})
}

// bulkVideoRequest creates one video per channel for a job in a single
// POST /videos/bulk call, building a manifest and triggering its render
// for each.
type bulkVideoRequest struct {
	JobID      string   `json:"jobId"`
	ChannelIDs []string `json:"channelIds"`
}

func (s *Server) handleVideosBulk(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	var req bulkVideoRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.JobID == "" || len(req.ChannelIDs) == 0 {
		writeError(w, http.StatusBadRequest, "jobId and channelIds required")
		return
	}

	userID := userIDFrom(r)
	created := make([]*domain.VideoItem, 0, len(req.ChannelIDs))
	for _, channelID := range req.ChannelIDs {
		videoID := fmt.Sprintf("%s-%s-%d", req.JobID, channelID, time.Now().UTC().UnixNano())
		item, err := s.manifests.Create(r.Context(), videoID, req.JobID, channelID, userID)
		if err != nil {
			writeStoreError(w, err)
			return
		}
		if _, err := s.renders.Trigger(r.Context(), item.VideoID, userID); err != nil {
			writeStoreError(w, err)
			return
		}
		refreshed, err := s.reloadVideo(r.Context(), item.VideoID)
		if err != nil {
			writeStoreError(w, err)
			return
		}
		created = append(created, refreshed)
	}

	writeJSON(w, http.StatusOK, map[string]any{"result": created})
}

func (s *Server) reloadVideo(_ context.Context, videoID string) (*domain.VideoItem, error) {
	var item domain.VideoItem
	if err := s.docs.Get(videosCollection, videoID, &item); err != nil {
		return nil, err
	}
	return &item, nil
}
