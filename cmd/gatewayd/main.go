// Command gatewayd runs the task orchestration gateway's HTTP server: it
// wires the store, credit ledger, prompt registry, LLM client factory, and
// the orchestrator/copilot/video components to internal/httpapi and serves
// them until SIGINT/SIGTERM.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"orchestrator/internal/companyintel"
	"orchestrator/internal/config"
	"orchestrator/internal/copilot"
	"orchestrator/internal/httpapi"
	"orchestrator/internal/ledger"
	"orchestrator/internal/llm"
	"orchestrator/internal/logx"
	"orchestrator/internal/metrics"
	"orchestrator/internal/orchestrator"
	"orchestrator/internal/promptregistry"
	"orchestrator/internal/store"
	"orchestrator/internal/video/manifest"
	"orchestrator/internal/video/render"
)

func main() {
	var projectDir string
	var host string
	var port int
	var promptsDir string
	flag.StringVar(&projectDir, "projectdir", "", "Project directory containing gateway.yaml (default: current directory)")
	flag.StringVar(&host, "host", "0.0.0.0", "HTTP listen host")
	flag.IntVar(&port, "port", 8080, "HTTP listen port")
	flag.StringVar(&promptsDir, "promptsdir", "configs/prompts", "Directory of task prompt YAML files")
	flag.Parse()

	if projectDir == "" {
		wd, err := os.Getwd()
		if err != nil {
			log.Fatalf("failed to determine working directory: %v", err)
		}
		projectDir = wd
	}

	if password := os.Getenv("GATEWAY_SECRETS_PASSWORD"); password != "" {
		if err := config.LoadSecretsFile(projectDir, password); err != nil {
			log.Fatalf("failed to load encrypted secrets file: %v", err)
		}
	}

	if err := config.LoadConfig(projectDir); err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	cfg, err := config.GetConfig()
	if err != nil {
		log.Fatalf("failed to get config: %v", err)
	}

	logger := logx.NewLogger("gatewayd")

	dbPath := cfg.Gateway.DBPath
	if !filepath.IsAbs(dbPath) {
		dbPath = filepath.Join(projectDir, dbPath)
	}
	if err := store.Initialize(dbPath); err != nil {
		log.Fatalf("failed to open store at %s: %v", dbPath, err)
	}
	defer func() {
		if err := store.Close(); err != nil {
			logger.Error("failed to close store: %v", err)
		}
	}()
	docs := store.Store()

	prompts := promptregistry.New()
	if _, statErr := os.Stat(promptsDir); statErr == nil {
		if err := prompts.Load(promptsDir); err != nil {
			log.Fatalf("failed to load prompts from %s: %v", promptsDir, err)
		}
	} else {
		logger.Warn("prompts directory %s not found, starting with an empty registry", promptsDir)
	}

	factory := llm.NewClientFactory(cfg)
	led := ledger.New(docs, cfg.Gateway.Credit)

	orch := orchestrator.New(docs, prompts, led, factory)
	orch.RegisterHandler(config.TaskSuggest, &orchestrator.SuggestHandler{Docs: docs})
	orch.RegisterHandler(config.TaskRefine, &orchestrator.RefineHandler{Docs: docs})
	orch.RegisterHandler(config.TaskChannels, &orchestrator.ChannelsHandler{Docs: docs})
	orch.RegisterHandler(orchestrator.TaskAssetMaster, &orchestrator.AssetMasterHandler{Docs: docs})
	orch.RegisterHandler(orchestrator.TaskAssetChannelBatch, &orchestrator.AssetChannelBatchHandler{Docs: docs})
	orch.RegisterHandler(orchestrator.TaskAssetAdapt, &orchestrator.AssetAdaptHandler{Docs: docs})
	orch.RegisterHandler(orchestrator.TaskGenerateCampaignAssets, &orchestrator.GenerateCampaignAssetsHandler{Docs: docs})
	orch.RegisterHandler(orchestrator.TaskVideoStoryboard, &orchestrator.VideoStoryboardHandler{Docs: docs})
	orch.RegisterHandler(orchestrator.TaskVideoCaption, &orchestrator.VideoCaptionHandler{Docs: docs})
	orch.RegisterHandler(orchestrator.TaskVideoCompliance, &orchestrator.VideoComplianceHandler{Docs: docs})
	orch.RegisterHandler(orchestrator.TaskImagePromptGeneration, &orchestrator.ImagePromptGenerationHandler{Docs: docs})
	orch.RegisterHandler(orchestrator.TaskImageGeneration, &orchestrator.ImageGenerationHandler{Docs: docs})
	orch.RegisterHandler(orchestrator.TaskImageCaption, &orchestrator.ImageCaptionHandler{Docs: docs})
	orch.RegisterHandler(orchestrator.TaskHeroImage, &orchestrator.HeroImageHandler{Docs: docs})

	copilotLoop := copilot.New(docs, led, factory)
	manifestBuilder := manifest.New(docs, led, factory)
	companyLoader := companyintel.New(docs, led, factory)

	veoAPIKey, err := config.GetAPIKey(config.ProviderGoogle)
	if err != nil {
		log.Fatalf("failed to resolve video provider API key: %v", err)
	}
	veoProvider, err := render.NewVeoProviderFromModel(veoAPIKey)
	if err != nil {
		log.Fatalf("failed to construct video render provider: %v", err)
	}
	renderController := render.New(docs, led, veoProvider)

	var usageQuery *metrics.QueryService
	if cfg.Gateway.Metrics.PrometheusURL != "" {
		usageQuery, err = metrics.NewQueryService(cfg.Gateway.Metrics.PrometheusURL)
		if err != nil {
			logger.Warn("failed to construct prometheus usage query service: %v, /admin/usage will use the document store fallback", err)
			usageQuery = nil
		}
	}

	srv := httpapi.New(docs, orch, copilotLoop, manifestBuilder, renderController, companyLoader, led, usageQuery)
	mux := http.NewServeMux()
	srv.RegisterRoutes(mux)

	addr := fmt.Sprintf("%s:%d", host, port)
	httpServer := &http.Server{
		Addr:    addr,
		Handler: mux,
	}

	go func() {
		logger.Info("gateway listening on %s", addr)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("http server error: %v", err)
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigChan
	logger.Info("received signal %v, initiating graceful shutdown", sig)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Duration(config.GracefulShutdownTimeoutSec)*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown failed: %v", err)
		os.Exit(1)
	}
	logger.Info("gateway shutdown completed successfully")
}
