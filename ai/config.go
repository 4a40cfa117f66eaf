// Copyright 2025 Poiesic Systems
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package ai

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Provider names accepted by Config.Provider.
const (
	ProviderOpenAI = "openai" // any OpenAI-compatible server (Ollama, vLLM, LocalAI)
	ProviderGemini = "gemini"
	ProviderLocal  = "local" // hashing embedder only, no network
)

// Config holds configuration for AI service providers.
type Config struct {
	// Provider selects the remote embedding backend.
	// Default: "openai"
	Provider string

	// EmbeddingHost is the base URL for the embedding service API.
	// Example: "http://localhost:11434/v1" for local OpenAI-compatible server
	EmbeddingHost string

	// DescriberHost is the base URL for the vision chat API used to describe page images.
	// Example: "http://localhost:11434/v1"
	DescriberHost string

	// EmbeddingModel is the model identifier to use for text embeddings.
	// Example: "embeddinggemma", "text-embedding-3-small", "text-embedding-004"
	EmbeddingModel string

	// DescriberModel is the vision model used to describe page images.
	// Empty disables page descriptions.
	// Example: "qwen2.5vl:3b", "gpt-4o-mini"
	DescriberModel string

	// APIKey authenticates against hosted services. Local servers ignore it.
	APIKey string

	// Timeout bounds each remote request.
	// Default: 60s
	Timeout time.Duration

	// MaxRetries is the number of retries for retryable HTTP statuses.
	// Default: 3
	MaxRetries int

	// RequestsPerSecond rate-limits remote calls. Zero disables limiting.
	RequestsPerSecond float64
}

// ConfigOption is a functional option for configuring a Config.
type ConfigOption func(*Config)

// WithProvider selects the embedding backend.
func WithProvider(provider string) ConfigOption {
	return func(c *Config) {
		c.Provider = provider
	}
}

// WithEmbeddingHost sets the embedding service host URL.
func WithEmbeddingHost(host string) ConfigOption {
	return func(c *Config) {
		c.EmbeddingHost = host
	}
}

// WithDescriberHost sets the page describer host URL.
func WithDescriberHost(host string) ConfigOption {
	return func(c *Config) {
		c.DescriberHost = host
	}
}

// WithHost sets both embedding and describer hosts to the same URL.
func WithHost(host string) ConfigOption {
	return func(c *Config) {
		c.EmbeddingHost = host
		c.DescriberHost = host
	}
}

// WithEmbeddingModel sets the embedding model identifier.
func WithEmbeddingModel(model string) ConfigOption {
	return func(c *Config) {
		c.EmbeddingModel = model
	}
}

// WithDescriberModel sets the page describer model. Empty disables descriptions.
func WithDescriberModel(model string) ConfigOption {
	return func(c *Config) {
		c.DescriberModel = model
	}
}

// WithAPIKey sets the API key for hosted services.
func WithAPIKey(key string) ConfigOption {
	return func(c *Config) {
		c.APIKey = key
	}
}

// WithTimeout sets the per-request timeout.
func WithTimeout(d time.Duration) ConfigOption {
	return func(c *Config) {
		c.Timeout = d
	}
}

// WithMaxRetries sets the retry budget for retryable responses.
func WithMaxRetries(n int) ConfigOption {
	return func(c *Config) {
		c.MaxRetries = n
	}
}

// WithRequestsPerSecond rate-limits remote calls.
func WithRequestsPerSecond(rps float64) ConfigOption {
	return func(c *Config) {
		c.RequestsPerSecond = rps
	}
}

// DefaultConfig returns a Config with sensible defaults for local OpenAI-compatible services.
// By default, both embedding and describer use the same host.
func DefaultConfig() *Config {
	defaultHost := "http://localhost:11434/v1"
	return &Config{
		Provider:       ProviderOpenAI,
		EmbeddingHost:  defaultHost,
		DescriberHost:  defaultHost,
		EmbeddingModel: "embeddinggemma",
		DescriberModel: "qwen2.5vl:3b",
		Timeout:        60 * time.Second,
		MaxRetries:     3,
	}
}

// NewConfig creates a Config with the default values and applies the provided options.
//
// Example:
//
//	cfg := NewConfig(
//	    WithHost("http://localhost:11434/v1"),
//	    WithEmbeddingModel("text-embedding-3-small"),
//	)
func NewConfig(opts ...ConfigOption) *Config {
	cfg := DefaultConfig()
	for _, opt := range opts {
		opt(cfg)
	}
	return cfg
}

// Normalize ensures the configuration is in a canonical form.
// For the OpenAI provider it adds the /v1 suffix to hosts if missing, which
// is required by most OpenAI-compatible APIs (Ollama, LocalAI, vLLM, etc).
func (c *Config) Normalize() {
	c.Provider = strings.ToLower(strings.TrimSpace(c.Provider))
	if c.Provider == "" {
		c.Provider = ProviderOpenAI
	}
	if c.Provider != ProviderOpenAI {
		return
	}
	c.EmbeddingHost = withV1(c.EmbeddingHost)
	c.DescriberHost = withV1(c.DescriberHost)
}

func withV1(host string) string {
	if host == "" || strings.HasSuffix(host, "/v1") {
		return host
	}
	// Remove trailing slash if present before adding /v1
	return strings.TrimSuffix(host, "/") + "/v1"
}

// Validate checks that the configuration is valid and complete.
// It automatically normalizes the configuration before validation.
func (c *Config) Validate() error {
	c.Normalize()

	switch c.Provider {
	case ProviderOpenAI:
		if c.EmbeddingHost == "" {
			return errors.New("ai config: EmbeddingHost is required")
		}
		if c.DescriberModel != "" && c.DescriberHost == "" {
			return errors.New("ai config: DescriberHost is required when DescriberModel is set")
		}
	case ProviderGemini:
		if c.APIKey == "" {
			return errors.New("ai config: APIKey is required for gemini")
		}
	case ProviderLocal:
	default:
		return fmt.Errorf("ai config: %w: %q", ErrUnknownProvider, c.Provider)
	}
	if c.Provider != ProviderLocal && c.EmbeddingModel == "" {
		return errors.New("ai config: EmbeddingModel is required")
	}
	if c.Timeout < 0 {
		return errors.New("ai config: Timeout must not be negative")
	}
	if c.MaxRetries < 0 {
		return errors.New("ai config: MaxRetries must not be negative")
	}
	if c.RequestsPerSecond < 0 {
		return errors.New("ai config: RequestsPerSecond must not be negative")
	}
	return nil
}
