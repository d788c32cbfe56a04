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

// Package cloud defines the data structures for application configuration,
// loaded from TOML files, and the clients used to talk to Google Cloud and
// the Gemini API.
//
// This file centralizes all configuration-related structs.
//
// Structs:
//   - Storage: The upload archive bucket.
//   - BigQueryDataSource: The dataset and tables of the message archive.
//   - VideoSampling: Frame sampling cadence, budget and scene-change threshold.
//   - Memory: The conversation window size and the session store backend.
//   - PromptTemplates: Optional overrides for the compiled-in prompt templates.
//   - VertexAiLLMModel: Configuration for one Gemini model.
//   - Topic: A Pub/Sub topic that turn events are published to.
//   - Config: The top-level struct that aggregates all of the above.
//
// Functions:
//   - NewConfig: Returns a Config populated with working defaults.
package cloud

import (
	"time"

	"google.golang.org/genai"
)

// Backends supported for the Gemini client.
const (
	BackendVertexAI  = "vertex"
	BackendGeminiAPI = "gemini"
)

// Session store backends.
const (
	MemoryBackendInProcess = "memory"
	MemoryBackendRedis     = "redis"
)

// Logical model names looked up in Config.AgentModels.
const (
	ChatModelName   = "chat"
	VisionModelName = "vision"
)

// DefaultSafetySettings is applied to every configured model.
var DefaultSafetySettings = []*genai.SafetySetting{
	{
		Category:  genai.HarmCategoryDangerousContent,
		Threshold: genai.HarmBlockThresholdBlockNone,
	},
	{
		Category:  genai.HarmCategoryHarassment,
		Threshold: genai.HarmBlockThresholdBlockNone,
	},
	{
		Category:  genai.HarmCategoryHateSpeech,
		Threshold: genai.HarmBlockThresholdBlockNone,
	},
	{
		Category:  genai.HarmCategorySexuallyExplicit,
		Threshold: genai.HarmBlockThresholdBlockNone,
	},
}

// Storage holds the Cloud Storage settings. An empty bucket disables archiving.
type Storage struct {
	UploadBucket  string `toml:"upload_bucket"`   // Bucket receiving the original uploads.
	ObjectPrefix  string `toml:"object_prefix"`   // Prefix prepended to every object name.
	SignedURLTTL  int    `toml:"signed_url_ttl"`  // Lifetime of signed URLs, in minutes.
	MaxUploadSize int64  `toml:"max_upload_size"` // Maximum size of one attachment, in bytes.
}

// BigQueryDataSource holds the message archive settings.
type BigQueryDataSource struct {
	Enabled      bool   `toml:"enabled"`       // Whether turns are archived to BigQuery.
	DatasetName  string `toml:"dataset"`       // The BigQuery dataset.
	SessionTable string `toml:"session_table"` // One row per session.
	MessageTable string `toml:"message_table"` // One row per conversation entry.
}

// VideoSampling holds the frame sampler settings.
type VideoSampling struct {
	IntervalSeconds float64 `toml:"interval_seconds"` // Target cadence between sampled frames.
	MaxFrames       int     `toml:"max_frames"`       // Hard ceiling on retained frames.
	SceneThreshold  float64 `toml:"scene_threshold"`  // Mean grayscale difference, 0-255.
	FFmpegPath      string  `toml:"ffmpeg_path"`
	FFprobePath     string  `toml:"ffprobe_path"`
	FrameWidth      int     `toml:"frame_width"` // Width frames are scaled to before description.
}

// Memory holds the conversation window and session store settings.
type Memory struct {
	MaxPairs          int    `toml:"max_pairs"`           // Turn pairs kept per session.
	Backend           string `toml:"backend"`             // "memory" or "redis".
	RedisAddr         string `toml:"redis_addr"`          // host:port of the Redis server.
	RedisPassword     string `toml:"redis_password"`      // Optional.
	RedisDB           int    `toml:"redis_db"`            // Database index.
	KeyPrefix         string `toml:"key_prefix"`          // Prefix of every Redis key.
	SessionTTLMinutes int    `toml:"session_ttl_minutes"` // Idle time before a session is evicted.
	SweepSeconds      int    `toml:"sweep_seconds"`       // Interval of the idle session sweep.
}

// SessionTTL returns the idle lifetime of a session.
func (m Memory) SessionTTL() time.Duration {
	return time.Duration(m.SessionTTLMinutes) * time.Minute
}

// PromptTemplates holds optional text/template overrides. Empty values keep
// the compiled-in defaults.
type PromptTemplates struct {
	Language   string `toml:"language"` // Language the assistant answers in.
	Text       string `toml:"text"`
	Image      string `toml:"image"`
	Video      string `toml:"video"`
	Mixed      string `toml:"mixed"`
	Extraction string `toml:"extraction"` // Instruction sent with every image or frame.
}

// VertexAiLLMModel is the configuration for one Gemini model.
type VertexAiLLMModel struct {
	Model              string  `toml:"model"`               // The model name, e.g. gemini-2.0-flash.
	SystemInstructions string  `toml:"system_instructions"` // System instructions for the model.
	Temperature        float32 `toml:"temperature"`
	TopP               float32 `toml:"top_p"`
	TopK               float32 `toml:"top_k"`
	MaxTokens          int32   `toml:"max_tokens"`    // Maximum output tokens.
	OutputFormat       string  `toml:"output_format"` // Response MIME type, e.g. text/plain.
	RateLimit          int     `toml:"rate_limit"`    // Requests per second.
	MaxRetries         int     `toml:"max_retries"`   // Extra attempts after a failed call.
}

// Topic is a Pub/Sub topic turn events are published to.
type Topic struct {
	Name string `toml:"name"`
}

// Config is the top-level application configuration.
type Config struct {
	Application struct {
		Name                      string `toml:"name"`                         // The name of the application.
		GoogleProjectId           string `toml:"google_project_id"`            // The Google Cloud project ID.
		GoogleLocation            string `toml:"location"`                     // The Google Cloud location.
		Backend                   string `toml:"backend"`                      // "vertex" or "gemini".
		APIKey                    string `toml:"api_key"`                      // Required by the gemini backend.
		ThreadPoolSize            int    `toml:"thread_pool_size"`             // Workers used to describe frames and images.
		SignerServiceAccountEmail string `toml:"signer_service_account_email"` // Service account used to sign GCS URLs.
	} `toml:"application"`
	Server struct {
		Port            int      `toml:"port"`
		ReadTimeout     int      `toml:"read_timeout"`     // Seconds.
		WriteTimeout    int      `toml:"write_timeout"`    // Seconds.
		ShutdownTimeout int      `toml:"shutdown_timeout"` // Seconds.
		AllowedOrigins  []string `toml:"allowed_origins"`  // Empty means any origin.
		MaxMultipartMB  int64    `toml:"max_multipart_mb"`
	} `toml:"server"`
	Telemetry struct {
		Enabled  bool   `toml:"enabled"`   // Export traces and metrics to Google Cloud.
		LogLevel string `toml:"log_level"` // debug, info, warn or error.
		LogFile  string `toml:"log_file"`  // Optional file the JSON log is copied to.
	} `toml:"telemetry"`
	Storage            Storage                     `toml:"storage"`
	BigQueryDataSource BigQueryDataSource          `toml:"big_query_data_source"`
	Video              VideoSampling               `toml:"video"`
	Memory             Memory                      `toml:"memory"`
	PromptTemplates    PromptTemplates             `toml:"prompt_templates"`
	AgentModels        map[string]VertexAiLLMModel `toml:"agent_models"` // Keyed by logical name; "chat" and "vision" are required.
	Topics             map[string]Topic            `toml:"topics"`       // Keyed by logical name, e.g. "turns".
}

// NewConfig returns a configuration holding the defaults every field falls
// back to when the TOML files leave it unset.
func NewConfig() *Config {
	c := &Config{
		AgentModels: make(map[string]VertexAiLLMModel),
		Topics:      make(map[string]Topic),
	}
	c.Application.Name = "multimodal-chat"
	c.Application.Backend = BackendVertexAI
	c.Application.GoogleLocation = "us-central1"
	c.Application.ThreadPoolSize = 4

	c.Server.Port = 8080
	c.Server.ReadTimeout = 60
	c.Server.WriteTimeout = 300
	c.Server.ShutdownTimeout = 5
	c.Server.MaxMultipartMB = 64

	c.Telemetry.LogLevel = "info"

	c.Storage.SignedURLTTL = 15
	c.Storage.MaxUploadSize = 50 << 20

	c.BigQueryDataSource.SessionTable = "chat_sessions"
	c.BigQueryDataSource.MessageTable = "chat_messages"

	c.Video.IntervalSeconds = 5
	c.Video.MaxFrames = 30
	c.Video.SceneThreshold = 30.0
	c.Video.FFmpegPath = "ffmpeg"
	c.Video.FFprobePath = "ffprobe"
	c.Video.FrameWidth = 768

	c.Memory.MaxPairs = 10
	c.Memory.Backend = MemoryBackendInProcess
	c.Memory.KeyPrefix = "chat"
	c.Memory.SessionTTLMinutes = 24 * 60
	c.Memory.SweepSeconds = 300

	c.PromptTemplates.Language = "English"
	return c
}
