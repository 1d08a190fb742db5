// Package config provides configuration loading, validation, and management for the
// LLM orchestration gateway.
//
// ARCHITECTURE OVERVIEW:
//
//  1. SEPARATION OF CONCERNS: provider/model defaults and resilience settings are
//     system-wide constants; credit ratios and task-family routing are the only
//     operator-overridable settings; job/video/usage state lives in the document
//     store (internal/store), never here.
//  2. SCHEMA VERSIONING: config changes increment SchemaVersion to avoid silently
//     breaking a running deployment.
//  3. GLOBAL SINGLETON: one Config instance in memory, guarded by a mutex.
//  4. ATOMIC UPDATES: changes happen through Update* functions with validation and
//     optional persistence to gateway.yaml.
//  5. VALUE-BASED ACCESS: GetConfig() returns a copy; callers never mutate shared state.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"gopkg.in/yaml.v3"
)

//nolint:gochecknoglobals // intentional singleton pattern for config management
var (
	config  *Config
	baseDir string
	mu      sync.RWMutex
)

// Model represents a provider model with its capabilities and limits.
type Model struct {
	Name           string  `json:"name"`            // e.g. "claude-sonnet-4-20250514"
	MaxTPM         int     `json:"max_tpm"`         // tokens per minute
	MaxConnections int     `json:"max_connections"` // max concurrent connections
	CPM            float64 `json:"cpm"`             // cost per million tokens (USD)
	DailyBudget    float64 `json:"daily_budget"`    // max spend per day (USD)
}

// ModelDefaults defines default parameters for all supported models.
//
//nolint:gochecknoglobals // intentional global for model definitions
var ModelDefaults = map[string]Model{
	ModelClaudeSonnet4: {
		Name:           ModelClaudeSonnet4,
		MaxTPM:         3000000,
		MaxConnections: 8,
		CPM:            3.0,
		DailyBudget:    50.0,
	},
	ModelClaudeHaiku: {
		Name:           ModelClaudeHaiku,
		MaxTPM:         1000000,
		MaxConnections: 8,
		CPM:            0.8,
		DailyBudget:    20.0,
	},
	ModelOpenAIGPT5: {
		Name:           ModelOpenAIGPT5,
		MaxTPM:         150000,
		MaxConnections: 5,
		CPM:            30.0,
		DailyBudget:    100.0,
	},
	ModelGeminiFlash: {
		Name:           ModelGeminiFlash,
		MaxTPM:         1000000,
		MaxConnections: 10,
		CPM:            0.5,
		DailyBudget:    30.0,
	},
	ModelGeminiPro: {
		Name:           ModelGeminiPro,
		MaxTPM:         500000,
		MaxConnections: 6,
		CPM:            3.5,
		DailyBudget:    50.0,
	},
	ModelOllamaLocal: {
		Name:           ModelOllamaLocal,
		MaxTPM:         0, // unmetered, local inference
		MaxConnections: 2,
		CPM:            0,
		DailyBudget:    0,
	},
}

// ModelProviders maps each model to its API provider for middleware configuration.
//
//nolint:gochecknoglobals // intentional global for model-to-provider mapping
var ModelProviders = map[string]string{
	ModelClaudeSonnet4: ProviderAnthropic,
	ModelClaudeHaiku:   ProviderAnthropic,
	ModelOpenAIGPT5:    ProviderOpenAI,
	ModelGeminiFlash:   ProviderGoogle,
	ModelGeminiPro:     ProviderGoogle,
	ModelOllamaLocal:   ProviderOllama,
}

// TaskFamilyModels maps a task family to the model it is routed to by
// default. Operators can override per-family via UpdateTaskFamilyModel.
//
//nolint:gochecknoglobals // default routing table, mutated only through Update*
var TaskFamilyModels = map[string]string{
	TaskFamilyChat:        ModelClaudeSonnet4,
	TaskFamilySuggestions: ModelClaudeSonnet4,
	TaskFamilyRefinement:  ModelClaudeSonnet4,
	TaskFamilyChannels:    ModelClaudeHaiku,
	TaskFamilyAssetCopy:   ModelOpenAIGPT5,
	TaskFamilyCompanyIntel: ModelGeminiFlash,
	TaskFamilyVideoScript: ModelGeminiPro,
	TaskFamilyImage:       ModelGeminiFlash,
}

// IsModelSupported checks if we have defaults for this model.
func IsModelSupported(modelName string) bool {
	_, exists := ModelDefaults[modelName]
	return exists
}

// GetModelProvider returns the API provider for a given model.
func GetModelProvider(modelName string) (string, error) {
	provider, exists := ModelProviders[modelName]
	if !exists {
		return "", fmt.Errorf("unknown model: %s", modelName)
	}
	return provider, nil
}

// GetTaskFamilyModel returns the model currently routed to for a task family.
func GetTaskFamilyModel(family string) (string, error) {
	mu.RLock()
	defer mu.RUnlock()
	model, exists := TaskFamilyModels[family]
	if !exists {
		return "", fmt.Errorf("unknown task family: %s", family)
	}
	return model, nil
}

// CircuitBreakerConfig defines configuration for circuit breaker behavior.
type CircuitBreakerConfig struct {
	FailureThreshold int           `json:"failure_threshold"`
	SuccessThreshold int           `json:"success_threshold"`
	Timeout          time.Duration `json:"timeout"`
}

// RetryConfig defines configuration for retry behavior.
type RetryConfig struct {
	MaxAttempts   int           `json:"max_attempts"`
	InitialDelay  time.Duration `json:"initial_delay"`
	MaxDelay      time.Duration `json:"max_delay"`
	BackoffFactor float64       `json:"backoff_factor"`
	Jitter        bool          `json:"jitter"`
}

// ProviderLimits defines rate limiting configuration for a specific provider.
type ProviderLimits struct {
	TokensPerMinute int `json:"tokens_per_minute"`
	Burst           int `json:"burst"`
	MaxConcurrency  int `json:"max_concurrency"`
}

// RateLimitConfig defines rate limiting configuration grouped by provider.
type RateLimitConfig struct {
	Anthropic ProviderLimits `json:"anthropic"`
	OpenAI    ProviderLimits `json:"openai"`
	Google    ProviderLimits `json:"google"`
	Ollama    ProviderLimits `json:"ollama"`
}

// ResilienceConfig bundles all resilience-related middleware configuration.
type ResilienceConfig struct {
	CircuitBreaker CircuitBreakerConfig `json:"circuit_breaker"`
	Retry          RetryConfig          `json:"retry"`
	RateLimit      RateLimitConfig      `json:"rate_limit"`
	Timeout        time.Duration        `json:"timeout"`
}

// MetricsConfig defines configuration for metrics collection.
type MetricsConfig struct {
	Enabled       bool   `json:"enabled"`
	Namespace     string `json:"namespace"`
	PrometheusURL string `json:"prometheus_url"`
}

// CreditConfig defines the credit ratio applied per model when reserving
// credits against a user's balance.
type CreditConfig struct {
	// CreditsPerThousandTokens maps model name to credits charged per 1000
	// estimated tokens (prompt+completion combined).
	CreditsPerThousandTokens map[string]float64 `json:"credits_per_thousand_tokens"`
	// MinimumReservation is the floor applied to any single reservation,
	// so a near-empty prompt still reserves a nonzero amount.
	MinimumReservation float64 `json:"minimum_reservation"`
	// ImageCreditsPerUnit is the flat credit charge per generated image.
	ImageCreditsPerUnit float64 `json:"image_credits_per_unit"`
	// VideoCreditsPerSecond is the credit charge per second of generated
	// video footage.
	VideoCreditsPerSecond float64 `json:"video_credits_per_second"`
}

// DefaultCreditConfig returns the built-in credit ratio table.
func DefaultCreditConfig() CreditConfig {
	return CreditConfig{
		CreditsPerThousandTokens: map[string]float64{
			ModelClaudeSonnet4: 1.5,
			ModelClaudeHaiku:   0.4,
			ModelOpenAIGPT5:    6.0,
			ModelGeminiFlash:   0.3,
			ModelGeminiPro:     1.8,
			ModelOllamaLocal:   0,
		},
		MinimumReservation:    0.1,
		ImageCreditsPerUnit:   2.0,
		VideoCreditsPerSecond: 0.8,
	}
}

// GatewayConfig holds process-wide settings for the gateway.
type GatewayConfig struct {
	Metrics    MetricsConfig    `json:"metrics"`
	Resilience ResilienceConfig `json:"resilience"`
	Credit     CreditConfig     `json:"credit"`
	DBPath     string           `json:"db_path"`
}

// Config represents the main configuration for the gateway.
type Config struct {
	SchemaVersion string        `json:"schema_version"`
	Gateway       GatewayConfig `json:"gateway"`
}

const (
	// Model name constants.
	ModelClaudeSonnet4 = "claude-sonnet-4-20250514"
	ModelClaudeHaiku   = "claude-haiku-4-20250514"
	ModelOpenAIGPT5    = "gpt-5"
	ModelGeminiFlash   = "gemini-2.5-flash"
	ModelGeminiPro     = "gemini-2.5-pro"
	ModelOllamaLocal   = "llama3.1"

	// Provider constants for middleware rate limiting and adapter selection.
	ProviderAnthropic = "anthropic"
	ProviderOpenAI    = "openai"
	ProviderGoogle    = "google"
	ProviderOllama    = "ollama"

	// Task family constants.
	TaskFamilyChat         = "chat"
	TaskFamilySuggestions  = "suggestions"
	TaskFamilyRefinement   = "refinement"
	TaskFamilyChannels     = "channel_recommendations"
	TaskFamilyAssetCopy    = "asset_copy"
	TaskFamilyCompanyIntel = "company_intel"
	TaskFamilyVideoScript  = "video_script"
	TaskFamilyImage        = "image"

	// API key / endpoint environment variable names.
	EnvAnthropicAPIKey = "ANTHROPIC_API_KEY"
	EnvOpenAIAPIKey    = "OPENAI_API_KEY"
	EnvGoogleAPIKey    = "GOOGLE_API_KEY"
	EnvOllamaHost      = "OLLAMA_HOST"

	// Gateway-wide constants.
	GracefulShutdownTimeoutSec = 30
	DefaultDBPath              = "gateway.db"
	SchemaVersion              = "1.0"
	ConfigFilename             = "gateway.yaml"
)

func createDefaultConfig() *Config {
	return &Config{
		SchemaVersion: SchemaVersion,
		Gateway: GatewayConfig{
			Metrics: MetricsConfig{
				Enabled:   true,
				Namespace: "gateway",
			},
			Resilience: ResilienceConfig{
				CircuitBreaker: CircuitBreakerConfig{
					FailureThreshold: 5,
					SuccessThreshold: 2,
					Timeout:          30 * time.Second,
				},
				Retry: RetryConfig{
					MaxAttempts:   3,
					InitialDelay:  500 * time.Millisecond,
					MaxDelay:      10 * time.Second,
					BackoffFactor: 2.0,
					Jitter:        true,
				},
				RateLimit: RateLimitConfig{
					Anthropic: ProviderLimits{TokensPerMinute: 300000, Burst: 50000, MaxConcurrency: 8},
					OpenAI:    ProviderLimits{TokensPerMinute: 150000, Burst: 30000, MaxConcurrency: 5},
					Google:    ProviderLimits{TokensPerMinute: 500000, Burst: 50000, MaxConcurrency: 10},
					Ollama:    ProviderLimits{TokensPerMinute: 0, Burst: 0, MaxConcurrency: 2},
				},
				Timeout: 60 * time.Second,
			},
			Credit: DefaultCreditConfig(),
			DBPath: DefaultDBPath,
		},
	}
}

// GetConfig returns the current global config by value, preventing external mutation.
func GetConfig() (Config, error) {
	mu.RLock()
	defer mu.RUnlock()
	if config == nil {
		return Config{}, fmt.Errorf("config not initialized - call LoadConfig first")
	}
	return *config, nil
}

// LoadConfig loads configuration from <dir>/gateway.yaml into the global singleton,
// falling back to built-in defaults plus environment overrides when the file is
// absent. This should be called once at process startup.
func LoadConfig(dir string) error {
	mu.Lock()
	defer mu.Unlock()

	baseDir = dir
	configPath := filepath.Join(dir, ConfigFilename)

	cfg := createDefaultConfig()

	if data, err := os.ReadFile(configPath); err == nil {
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return fmt.Errorf("fatal: config file exists but cannot be parsed: %w", err)
		}
	} else if !os.IsNotExist(err) {
		return fmt.Errorf("failed to read config file: %w", err)
	}

	if dbPath := os.Getenv("GATEWAY_DB_PATH"); dbPath != "" {
		cfg.Gateway.DBPath = dbPath
	}

	if err := validateConfig(cfg); err != nil {
		return fmt.Errorf("config validation failed: %w", err)
	}

	config = cfg
	return nil
}

func validateConfig(cfg *Config) error {
	if cfg.Gateway.DBPath == "" {
		return fmt.Errorf("gateway.db_path must not be empty")
	}
	if cfg.Gateway.Resilience.Retry.MaxAttempts < 1 {
		return fmt.Errorf("gateway.resilience.retry.max_attempts must be >= 1")
	}
	return nil
}

// UpdateTaskFamilyModel atomically repoints a task family at a different model.
func UpdateTaskFamilyModel(family, modelName string) error {
	mu.Lock()
	defer mu.Unlock()

	if !IsModelSupported(modelName) {
		return fmt.Errorf("unknown model: %s", modelName)
	}
	TaskFamilyModels[family] = modelName
	return nil
}

// UpdateCredit atomically replaces the credit configuration and persists it.
func UpdateCredit(credit CreditConfig) error {
	mu.Lock()
	defer mu.Unlock()

	if config == nil {
		return fmt.Errorf("config not initialized - call LoadConfig first")
	}
	config.Gateway.Credit = credit
	return saveConfigLocked()
}

func saveConfigLocked() error {
	if baseDir == "" {
		return nil
	}
	data, err := json.MarshalIndent(config, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	configPath := filepath.Join(baseDir, ConfigFilename)
	if err := os.WriteFile(configPath, data, 0644); err != nil {
		return fmt.Errorf("failed to save config: %w", err)
	}
	return nil
}

// GetAPIKey returns the credential for a provider, preferring the
// encrypted secrets file (see LoadSecretsFile) over its environment
// variable. For Ollama this is the host URL rather than a key.
func GetAPIKey(provider string) (string, error) {
	switch provider {
	case ProviderAnthropic:
		if key, err := GetSecret(EnvAnthropicAPIKey); err == nil {
			return key, nil
		}
	case ProviderOpenAI:
		if key, err := GetSecret(EnvOpenAIAPIKey); err == nil {
			return key, nil
		}
	case ProviderGoogle:
		if key, err := GetSecret(EnvGoogleAPIKey); err == nil {
			return key, nil
		}
	case ProviderOllama:
		if host := os.Getenv(EnvOllamaHost); host != "" {
			return host, nil
		}
		return "http://localhost:11434", nil
	default:
		return "", fmt.Errorf("unknown provider: %s", provider)
	}
	return "", fmt.Errorf("no credential configured for provider %s", provider)
}
