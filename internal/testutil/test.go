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

// Package test provides utility functions and fakes to support the
// application's test suite: a test configuration that needs no cloud project,
// a scripted generative model, and synthetic videos that can be sampled
// without ffmpeg.
package test

import (
	"github.com/jaycherian/gcp-go-multimodal-chat/internal/cloud"
)

// GetConfig returns a configuration that passes cloud.Validate and points at
// the in-process memory backend. Every call returns a fresh copy so tests can
// modify it freely.
func GetConfig() *cloud.Config {
	config := cloud.NewConfig()
	config.Application.Backend = cloud.BackendGeminiAPI
	config.Application.APIKey = "test-key"
	config.Application.ThreadPoolSize = 2
	config.AgentModels[cloud.ChatModelName] = cloud.VertexAiLLMModel{
		Model:      "gemini-test",
		RateLimit:  100,
		MaxRetries: 0,
	}
	config.AgentModels[cloud.VisionModelName] = cloud.VertexAiLLMModel{
		Model:     "gemini-test",
		RateLimit: 100,
	}
	config.Video.IntervalSeconds = 10
	config.Video.FrameWidth = 64
	return config
}
