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

package cloud_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"

	"github.com/jaycherian/gcp-go-multimodal-chat/internal/cloud"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"google.golang.org/genai"
)

func writeFile(t *testing.T, dir, name, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0o600))
}

// TestLoadConfigOverlaysRuntimeFile verifies the base file is read first and
// the runtime file overrides only the keys it sets.
func TestLoadConfigOverlaysRuntimeFile(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, ".env.toml", `
[application]
name = "chat"
backend = "gemini"

[video]
max_frames = 50

[agent_models.chat]
model = "gemini-2.0-flash"
`)
	writeFile(t, dir, ".env.unit.toml", `
[video]
max_frames = 12
`)
	t.Setenv(cloud.EnvConfigFilePrefix, dir)
	t.Setenv(cloud.EnvConfigRuntime, "unit")
	t.Setenv(cloud.EnvAPIKey, "from-env")

	config := cloud.NewConfig()
	require.NoError(t, cloud.LoadConfig(config))

	assert.Equal(t, "chat", config.Application.Name)
	assert.Equal(t, cloud.BackendGeminiAPI, config.Application.Backend)
	assert.Equal(t, 12, config.Video.MaxFrames)
	assert.Equal(t, 30.0, config.Video.SceneThreshold, "defaults survive when a file leaves a key unset")
	assert.Equal(t, "gemini-2.0-flash", config.AgentModels["chat"].Model)
	assert.Equal(t, "from-env", config.Application.APIKey)
}

func TestLoadConfigRejectsMalformedFile(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, ".env.toml", "[application\nname=")
	t.Setenv(cloud.EnvConfigFilePrefix, dir)
	t.Setenv(cloud.EnvConfigRuntime, "unit")

	err := cloud.LoadConfig(cloud.NewConfig())
	require.Error(t, err)
	assert.Contains(t, err.Error(), ".env.toml")
}

func validConfig() *cloud.Config {
	config := cloud.NewConfig()
	config.Application.Backend = cloud.BackendGeminiAPI
	config.Application.APIKey = "key"
	config.AgentModels[cloud.ChatModelName] = cloud.VertexAiLLMModel{Model: "gemini-2.0-flash"}
	config.AgentModels[cloud.VisionModelName] = cloud.VertexAiLLMModel{Model: "gemini-2.0-flash"}
	return config
}

func TestValidate(t *testing.T) {
	assert.NoError(t, cloud.Validate(validConfig()))

	missingKey := validConfig()
	missingKey.Application.APIKey = ""
	assert.ErrorIs(t, cloud.Validate(missingKey), cloud.ErrMissingCredentials)

	missingProject := validConfig()
	missingProject.Application.Backend = cloud.BackendVertexAI
	assert.ErrorIs(t, cloud.Validate(missingProject), cloud.ErrMissingCredentials)

	noVision := validConfig()
	delete(noVision.AgentModels, cloud.VisionModelName)
	assert.ErrorIs(t, cloud.Validate(noVision), cloud.ErrInvalidConfig)

	redisWithoutAddr := validConfig()
	redisWithoutAddr.Memory.Backend = cloud.MemoryBackendRedis
	assert.ErrorIs(t, cloud.Validate(redisWithoutAddr), cloud.ErrInvalidConfig)
}

// scriptedGenerator fails a fixed number of times before answering.
type scriptedGenerator struct {
	failures int
	calls    int
}

func (s *scriptedGenerator) GenerateContent(_ context.Context, _ []*genai.Content) (*genai.GenerateContentResponse, error) {
	s.calls++
	if s.calls <= s.failures {
		return nil, errors.New("unavailable")
	}
	return &genai.GenerateContentResponse{
		Candidates: []*genai.Candidate{
			{Content: &genai.Content{Parts: []*genai.Part{{Text: "Hello "}, {Text: "there"}}}},
		},
	}, nil
}

func TestGenerateMultiModalResponse(t *testing.T) {
	meter := otel.Meter("cloud-test")
	counter, err := meter.Int64Counter("test.counter")
	require.NoError(t, err)
	ctx := context.Background()
	content := cloud.NewUserContent(cloud.NewTextPart("hi"))

	gen := &scriptedGenerator{}
	out, err := cloud.GenerateMultiModalResponse(ctx, counter, counter, counter, 0, gen, content)
	require.NoError(t, err)
	assert.Equal(t, "Hello there", out)

	noRetry := &scriptedGenerator{failures: 1}
	_, err = cloud.GenerateMultiModalResponse(ctx, counter, counter, counter, 0, noRetry, content)
	assert.Error(t, err)
	assert.Equal(t, 1, noRetry.calls)

	retried := &scriptedGenerator{failures: 2}
	out, err = cloud.GenerateMultiModalResponse(ctx, counter, counter, counter, 2, retried, content)
	require.NoError(t, err)
	assert.Equal(t, "Hello there", out)
	assert.Equal(t, 3, retried.calls)
}

// recordingCaller records the model name it was called with.
type recordingCaller struct {
	model string
}

func (r *recordingCaller) GenerateContent(_ context.Context, model string, _ []*genai.Content, _ *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error) {
	r.model = model
	return &genai.GenerateContentResponse{}, nil
}

func TestQuotaAwareModelHonoursCancellation(t *testing.T) {
	caller := &recordingCaller{}
	model := cloud.NewQuotaAwareModel(cloud.NewGenerateContentConfig(cloud.VertexAiLLMModel{}), "gemini-test", caller, 1)

	_, err := model.GenerateContent(context.Background(), nil)
	require.NoError(t, err)
	assert.Equal(t, "gemini-test", caller.model)

	// The single token has been spent, so a cancelled context must fail fast.
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = model.GenerateContent(ctx, nil)
	assert.Error(t, err)
}

func TestVisionHandleInitializesOnce(t *testing.T) {
	var inits atomic.Int32
	handle := cloud.NewVisionHandle(func() (cloud.ContentGenerator, error) {
		inits.Add(1)
		return &scriptedGenerator{}, nil
	})
	assert.Equal(t, int32(0), inits.Load())

	for i := 0; i < 3; i++ {
		_, err := handle.GenerateContent(context.Background(), nil)
		require.NoError(t, err)
	}
	assert.Equal(t, int32(1), inits.Load())

	failing := cloud.NewVisionHandle(func() (cloud.ContentGenerator, error) {
		return nil, cloud.ErrInvalidConfig
	})
	_, err := failing.GenerateContent(context.Background(), nil)
	assert.ErrorIs(t, err, cloud.ErrInvalidConfig)
}

func TestParseGCSURI(t *testing.T) {
	obj, err := cloud.ParseGCSURI("gs://uploads/sessions/a/b.mp4")
	require.NoError(t, err)
	assert.Equal(t, "uploads", obj.Bucket)
	assert.Equal(t, "sessions/a/b.mp4", obj.Name)
	assert.Equal(t, "gs://uploads/sessions/a/b.mp4", obj.URI())

	_, err = cloud.ParseGCSURI("https://example.com/x")
	assert.Error(t, err)
	_, err = cloud.ParseGCSURI("gs://bucket-only")
	assert.Error(t, err)
}
