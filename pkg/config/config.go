package config

import "os"

// Config holds server configuration.
type Config struct {
	Port          string
	LogLevel      string
	DatabaseURL   string
	LLMServiceURL string
	ShadowMode    bool

	// GovernanceMode mirrors pkg/llm.EnvGovernanceMode (HANDSHAKE_GOVERNANCE_MODE);
	// kept as a plain string here (not llm.RuntimeGovernanceMode) so pkg/config
	// never imports pkg/llm — callers that need the parsed/validated enum call
	// llm.PolicyFromEnv() directly, which reads the same env var.
	GovernanceMode string
	// LLMProvider holds HANDSHAKE_LLM_PROVIDER as read by Load. No package
	// in this module reads the field; pkg/llm does not select a provider
	// from it.
	LLMProvider string
	// ModelTier holds MODEL_TIER as read by Load. No package in this module
	// reads the field; model profiles keep their own tier.
	ModelTier string
	// WorkspaceRoot holds HANDSHAKE_WORKSPACE_ROOT as read by Load. No
	// package in this module reads the field: pkg/mcpgate and pkg/artifacts'
	// FileStore take their roots from their own callers, not from it.
	WorkspaceRoot string
	// OTLPEndpoint, when set, enables pkg/observability's OTel tracer/meter
	// providers against the given OTLP gRPC collector address. Empty
	// disables tracing/metrics export entirely (the default for local runs).
	OTLPEndpoint string
}

const (
	envGovernanceMode = "HANDSHAKE_GOVERNANCE_MODE"
	envLLMProvider    = "HANDSHAKE_LLM_PROVIDER"
	envModelTier      = "MODEL_TIER"
	envWorkspaceRoot  = "HANDSHAKE_WORKSPACE_ROOT"
	envOTLPEndpoint   = "HANDSHAKE_OTLP_ENDPOINT"
)

// Load loads configuration from environment variables.
func Load() *Config {
	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}

	logLevel := os.Getenv("LOG_LEVEL")
	if logLevel == "" {
		logLevel = "INFO"
	}

	dbURL := os.Getenv("DATABASE_URL")
	if dbURL == "" {
		// Default to local generic postgres
		dbURL = "postgres://handshake@localhost:5433/handshake?sslmode=disable"
	}

	llmURL := os.Getenv("LLM_SERVICE_URL")
	if llmURL == "" {
		// Default to LM Studio Local
		llmURL = "http://host.docker.internal:1234/v1/chat/completions"
	}

	shadowMode := os.Getenv("SHADOW_MODE") == "true"

	return &Config{
		Port:           port,
		LogLevel:       logLevel,
		DatabaseURL:    dbURL,
		LLMServiceURL:  llmURL,
		ShadowMode:     shadowMode,
		GovernanceMode: os.Getenv(envGovernanceMode),
		LLMProvider:    os.Getenv(envLLMProvider),
		ModelTier:      os.Getenv(envModelTier),
		WorkspaceRoot:  os.Getenv(envWorkspaceRoot),
		OTLPEndpoint:   os.Getenv(envOTLPEndpoint),
	}
}
