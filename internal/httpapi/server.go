// Package httpapi exposes the gateway's HTTP surface: a single
// net/http.ServeMux wired to the Task Orchestrator, the Copilot Agent Loop,
// and the video manifest/render pipeline. Routing uses a hand-rolled mux
// rather than a third-party router.
package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"orchestrator/internal/companyintel"
	"orchestrator/internal/copilot"
	"orchestrator/internal/ledger"
	"orchestrator/internal/logx"
	"orchestrator/internal/metrics"
	"orchestrator/internal/orchestrator"
	"orchestrator/internal/store"
	"orchestrator/internal/video/manifest"
	"orchestrator/internal/video/render"
)

// Server wires every C6-C12 component to the HTTP surface.
type Server struct {
	docs       *store.Documents
	orch       *orchestrator.Orchestrator
	copilot    *copilot.Loop
	manifests  *manifest.Builder
	renders    *render.Controller
	companies  *companyintel.Loader
	ledger     *ledger.Ledger
	usageQuery *metrics.QueryService // optional; nil falls back to the document store's usage log
	logger     *logx.Logger
}

// New returns a Server wired to its dependencies. usageQuery may be nil when
// no Prometheus instance is configured; GET /admin/usage then falls back to
// a document-store aggregate.
func New(
	docs *store.Documents,
	orch *orchestrator.Orchestrator,
	copilotLoop *copilot.Loop,
	manifests *manifest.Builder,
	renders *render.Controller,
	companies *companyintel.Loader,
	led *ledger.Ledger,
	usageQuery *metrics.QueryService,
) *Server {
	return &Server{
		docs:       docs,
		orch:       orch,
		copilot:    copilotLoop,
		manifests:  manifests,
		renders:    renders,
		companies:  companies,
		ledger:     led,
		usageQuery: usageQuery,
		logger:     logx.NewLogger("httpapi"),
	}
}

// RegisterRoutes registers every handler on mux.
func (s *Server) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/api/llm", s.requireAuth(s.handleLLM))
	mux.HandleFunc("/videos", s.requireAuth(s.handleVideos))
	mux.HandleFunc("/videos/bulk", s.requireAuth(s.handleVideosBulk))
	mux.HandleFunc("/videos/", s.requireAuth(s.handleVideoByID))
	mux.HandleFunc("/copilot/chat", s.requireAuth(s.handleCopilotChat))
	mux.HandleFunc("/admin/usage", s.requireAuth(s.handleAdminUsage))
	mux.HandleFunc("/healthz", s.handleHealth)
}

type userIDKey struct{}

// requireAuth extracts the bearer token as the authenticated userId and
// rejects unauthenticated requests with 401 before any handler runs.
func (s *Server) requireAuth(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		auth := r.Header.Get("Authorization")
		token := strings.TrimPrefix(auth, "Bearer ")
		if token == "" || token == auth {
			s.logger.Warn("rejected unauthenticated request to %s", r.URL.Path)
			writeError(w, http.StatusUnauthorized, "missing bearer token")
			return
		}
		ctx := context.WithValue(r.Context(), userIDKey{}, token)
		next(w, r.WithContext(ctx))
	}
}

func userIDFrom(r *http.Request) string {
	uid, _ := r.Context().Value(userIDKey{}).(string)
	return uid
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		http.Error(w, "failed to encode response", http.StatusInternalServerError)
	}
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]any{"error": map[string]string{"message": message}})
}

// writeTaskError maps a *orchestrator.TaskError to its HTTP status; any
// other error is an unclassified 500.
func writeTaskError(w http.ResponseWriter, err error) {
	if taskErr, ok := err.(*orchestrator.TaskError); ok {
		writeError(w, taskErr.HTTPStatus(), taskErr.Message)
		return
	}
	writeError(w, http.StatusInternalServerError, err.Error())
}

// handleHealth implements GET /healthz.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok", "version": "v1.0"})
}
