// Copyright 2024 Google, LLC
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     https://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package cloud provides components for interacting with Google Cloud services.
// This file contains general-purpose helpers: hierarchical configuration
// loading, configuration validation and the Gemini call wrapper used by every
// command that talks to a model.
//
// Functions:
//   - LoadConfig: Reads `.env.toml` and then overlays `.env.<runtime>.toml`.
//   - Validate: Rejects configurations the server cannot start with.
//   - GenerateMultiModalResponse: Calls a model, records token metrics and
//     concatenates the text of every candidate part.
//   - NewTextPart, NewInlineData: Small factories for genai parts.
package cloud

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"go.opentelemetry.io/otel/metric"

	"github.com/BurntSushi/toml"
	"google.golang.org/genai"
)

// Cloud Constants define key strings used for configuration loading.
const (
	ConfigFileBaseName  = ".env"              // The base name for configuration files (e.g., ".env.toml").
	ConfigFileExtension = ".toml"             // The file extension for configuration files.
	ConfigSeparator     = "."                 // The separator used in config file names (e.g., ".env.local.toml").
	EnvConfigFilePrefix = "GCP_CONFIG_PREFIX" // The environment variable for specifying the config directory.
	EnvConfigRuntime    = "GCP_RUNTIME"       // The environment variable for specifying the runtime (e.g., "local", "test").
	EnvAPIKey           = "GOOGLE_API_KEY"    // Fills Application.APIKey when the file leaves it empty.
)

var (
	// ErrMissingCredentials is returned when the selected backend has no way
	// to authenticate. The server treats it as fatal on startup.
	ErrMissingCredentials = errors.New("missing credentials")
	// ErrInvalidConfig is returned for any other configuration the server
	// cannot run with.
	ErrInvalidConfig = errors.New("invalid configuration")
)

// fileExists checks if a file or directory exists at the given path.
func fileExists(in string) bool {
	_, err := os.Stat(in)
	return !errors.Is(err, os.ErrNotExist)
}

// ConfigFiles returns the base and runtime-specific configuration file names
// derived from the GCP_CONFIG_PREFIX and GCP_RUNTIME environment variables.
// The runtime defaults to "test".
func ConfigFiles() (base string, runtime string) {
	configurationFilePrefix := os.Getenv(EnvConfigFilePrefix)
	if len(configurationFilePrefix) > 0 && !strings.HasSuffix(configurationFilePrefix, string(os.PathSeparator)) {
		configurationFilePrefix = configurationFilePrefix + string(os.PathSeparator)
	}

	runtimeEnvironment := os.Getenv(EnvConfigRuntime)
	if runtimeEnvironment == "" {
		runtimeEnvironment = "test"
	}

	base = configurationFilePrefix + ConfigFileBaseName + ConfigFileExtension
	runtime = configurationFilePrefix + ConfigFileBaseName + ConfigSeparator + runtimeEnvironment + ConfigFileExtension
	return base, runtime
}

// LoadConfig provides a hierarchical configuration loading mechanism. It first
// loads the base configuration file and then overwrites its values with the
// runtime-specific file. Missing files are skipped; malformed files are errors.
//
// Inputs:
//   - baseConfig: A pointer to the struct that will be populated.
//
// Outputs:
//   - error: A decode error naming the offending file.
func LoadConfig(baseConfig interface{}) error {
	baseConfigFileName, envConfigFileName := ConfigFiles()

	for _, name := range []string{baseConfigFileName, envConfigFileName} {
		if !fileExists(name) {
			slog.Debug("configuration file not found, skipping", "file", name)
			continue
		}
		if _, err := toml.DecodeFile(name, baseConfig); err != nil {
			return fmt.Errorf("failed to decode configuration file %s: %w", name, err)
		}
		slog.Info("loaded configuration file", "file", name)
	}

	if c, ok := baseConfig.(*Config); ok && c.Application.APIKey == "" {
		c.Application.APIKey = os.Getenv(EnvAPIKey)
	}
	return nil
}

// Validate checks a loaded configuration before any client is created.
func Validate(config *Config) error {
	switch config.Application.Backend {
	case BackendGeminiAPI:
		if config.Application.APIKey == "" {
			return fmt.Errorf("%w: the gemini backend requires application.api_key or %s", ErrMissingCredentials, EnvAPIKey)
		}
	case BackendVertexAI:
		if config.Application.GoogleProjectId == "" {
			return fmt.Errorf("%w: the vertex backend requires application.google_project_id", ErrMissingCredentials)
		}
	default:
		return fmt.Errorf("%w: unknown backend %q", ErrInvalidConfig, config.Application.Backend)
	}

	for _, name := range []string{ChatModelName, VisionModelName} {
		if m, ok := config.AgentModels[name]; !ok || m.Model == "" {
			return fmt.Errorf("%w: agent_models.%s.model is required", ErrInvalidConfig, name)
		}
	}

	switch config.Memory.Backend {
	case MemoryBackendInProcess:
	case MemoryBackendRedis:
		if config.Memory.RedisAddr == "" {
			return fmt.Errorf("%w: memory.redis_addr is required for the redis backend", ErrInvalidConfig)
		}
	default:
		return fmt.Errorf("%w: unknown memory backend %q", ErrInvalidConfig, config.Memory.Backend)
	}

	if config.Memory.MaxPairs <= 0 {
		return fmt.Errorf("%w: memory.max_pairs must be positive", ErrInvalidConfig)
	}
	if config.Video.MaxFrames <= 0 || config.Video.IntervalSeconds <= 0 {
		return fmt.Errorf("%w: video.max_frames and video.interval_seconds must be positive", ErrInvalidConfig)
	}
	if config.BigQueryDataSource.Enabled && config.BigQueryDataSource.DatasetName == "" {
		return fmt.Errorf("%w: big_query_data_source.dataset is required when enabled", ErrInvalidConfig)
	}
	return nil
}

// GenerateMultiModalResponse executes a request against a generative model,
// retrying up to maxRetries extra times, and returns the concatenated text of
// every candidate part.
//
// Inputs:
//   - ctx: The context for the request, which controls cancellation and tracing.
//   - inputTokenCounter: Counter for prompt tokens used.
//   - outputTokenCounter: Counter for response tokens generated.
//   - retryCounter: Counter for retries.
//   - maxRetries: Extra attempts after the first failure. Zero disables retry.
//   - model: The model to call.
//   - content: The prompt contents.
//
// Outputs:
//   - string: The concatenated response text.
//   - error: The last error when every attempt failed.
func GenerateMultiModalResponse(
	ctx context.Context,
	inputTokenCounter metric.Int64Counter,
	outputTokenCounter metric.Int64Counter,
	retryCounter metric.Int64Counter,
	maxRetries int,
	model ContentGenerator,
	content []*genai.Content) (value string, err error) {
	var resp *genai.GenerateContentResponse
	for attempt := 0; ; attempt++ {
		resp, err = model.GenerateContent(ctx, content)
		if err == nil {
			break
		}
		if attempt >= maxRetries || ctx.Err() != nil {
			return "", err
		}
		retryCounter.Add(ctx, 1)
		slog.WarnContext(ctx, "generation failed, retrying", "attempt", attempt+1, "error", err)
	}

	if resp.UsageMetadata != nil {
		inputTokenCounter.Add(ctx, int64(resp.UsageMetadata.PromptTokenCount))
		outputTokenCounter.Add(ctx, int64(resp.UsageMetadata.CandidatesTokenCount))
	}

	var sb strings.Builder
	for _, candidate := range resp.Candidates {
		if candidate.Content == nil {
			continue
		}
		for _, part := range candidate.Content.Parts {
			sb.WriteString(part.Text)
		}
	}
	return sb.String(), nil
}

// NewTextPart creates a text part.
func NewTextPart(in string) *genai.Part {
	return &genai.Part{Text: in}
}

// NewInlineData creates a part carrying raw bytes such as a JPEG frame.
func NewInlineData(data []byte, mimeType string) *genai.Part {
	return &genai.Part{InlineData: &genai.Blob{Data: data, MIMEType: mimeType}}
}

// NewUserContent wraps parts into a single user turn.
func NewUserContent(parts ...*genai.Part) []*genai.Content {
	return []*genai.Content{{Parts: parts, Role: genai.RoleUser}}
}
