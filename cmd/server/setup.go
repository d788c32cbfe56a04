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

package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/jaycherian/gcp-go-multimodal-chat/internal/cloud"
	"github.com/jaycherian/gcp-go-multimodal-chat/internal/core/memory"
	"github.com/jaycherian/gcp-go-multimodal-chat/internal/core/prompt"
	"github.com/jaycherian/gcp-go-multimodal-chat/internal/core/services"
	"github.com/jaycherian/gcp-go-multimodal-chat/internal/core/video"
	"github.com/jaycherian/gcp-go-multimodal-chat/internal/core/workflow"
)

// TurnsTopic is the key of config.Topics that receives turn events.
const TurnsTopic = "turns"

// StateManager holds the dependencies shared by the HTTP handlers and the
// background sweep.
type StateManager struct {
	config       *cloud.Config
	cloud        *cloud.ServiceClients
	store        memory.Store
	chatService  *services.ChatService
	mediaService *services.MediaService
	expiry       *workflow.SessionExpiryWorkflow
}

// Close stops the sweep and releases every client.
func (s *StateManager) Close() error {
	if s.expiry != nil {
		s.expiry.Stop()
	}
	if s.cloud != nil {
		return s.cloud.Close()
	}
	return nil
}

// SetupOS points the configuration loader at configDir and selects the
// runtime overlay. Empty arguments keep the current environment, falling back
// to "configs" and "local".
func SetupOS(configDir, runtime string) error {
	if configDir == "" {
		configDir = os.Getenv(cloud.EnvConfigFilePrefix)
	}
	if configDir == "" {
		configDir = "configs"
	}
	if runtime == "" {
		runtime = os.Getenv(cloud.EnvConfigRuntime)
	}
	if runtime == "" {
		runtime = "local"
	}
	if err := os.Setenv(cloud.EnvConfigFilePrefix, configDir); err != nil {
		return err
	}
	return os.Setenv(cloud.EnvConfigRuntime, runtime)
}

// GetConfig loads and validates the configuration.
func GetConfig() (*cloud.Config, error) {
	config := cloud.NewConfig()
	if err := cloud.LoadConfig(config); err != nil {
		return nil, err
	}
	if err := cloud.Validate(config); err != nil {
		return nil, err
	}
	return config, nil
}

// NewStore returns the conversation store selected by memory.backend.
func NewStore(config *cloud.Config, clients *cloud.ServiceClients) (memory.Store, error) {
	switch config.Memory.Backend {
	case cloud.MemoryBackendRedis:
		if clients.RedisClient == nil {
			return nil, fmt.Errorf("%w: redis client not initialized", cloud.ErrInvalidConfig)
		}
		return memory.NewRedisStore(clients.RedisClient, config.Memory.MaxPairs,
			memory.WithTTL(config.Memory.SessionTTL()),
			memory.WithPrefix(config.Memory.KeyPrefix),
		), nil
	default:
		return memory.NewInMemoryStore(config.Memory.MaxPairs), nil
	}
}

// InitState creates the cloud clients, the conversation store, the chat and
// media services, and starts the idle session sweep.
func InitState(ctx context.Context, config *cloud.Config) (_ *StateManager, err error) {
	state := &StateManager{config: config}
	defer func() {
		if err != nil {
			err = errors.Join(err, state.Close())
		}
	}()

	if state.cloud, err = cloud.NewCloudServiceClients(ctx, config); err != nil {
		return nil, err
	}
	if state.store, err = NewStore(config, state.cloud); err != nil {
		return nil, err
	}

	builder, err := prompt.NewBuilder(config.PromptTemplates)
	if err != nil {
		return nil, err
	}
	chatModel := state.cloud.ChatModel()
	if chatModel == nil {
		return nil, fmt.Errorf("%w: agent_models.%s is not configured", cloud.ErrInvalidConfig, cloud.ChatModelName)
	}

	deps := workflow.Dependencies{
		Builder:   builder,
		ChatModel: chatModel,
		Vision:    state.cloud.Vision,
		Sampler:   video.NewSamplerFromConfig(video.NewFFmpegOpener(config.Video.FFmpegPath, config.Video.FFprobePath), config.Video),
	}
	if state.cloud.StorageClient != nil {
		state.mediaService = &services.MediaService{
			StorageClient: state.cloud.StorageClient,
			IAMClient:     state.cloud.IAMClient,
			SignerEmail:   config.Application.SignerServiceAccountEmail,
			Bucket:        config.Storage.UploadBucket,
			ObjectPrefix:  config.Storage.ObjectPrefix,
			SignedURLTTL:  time.Duration(config.Storage.SignedURLTTL) * time.Minute,
		}
		deps.Archiver = state.mediaService
	}

	workflows, err := workflow.NewTurnWorkflows(config, deps)
	if err != nil {
		return nil, err
	}

	var opts []services.ChatOption
	if state.cloud.BigQueryClient != nil {
		opts = append(opts, services.WithHistory(&services.HistoryService{
			BigqueryClient: state.cloud.BigQueryClient,
			DatasetName:    config.BigQueryDataSource.DatasetName,
			SessionTable:   config.BigQueryDataSource.SessionTable,
			MessageTable:   config.BigQueryDataSource.MessageTable,
		}))
	}
	publisher, hasPublisher := state.cloud.Publishers[TurnsTopic]
	if hasPublisher {
		opts = append(opts, services.WithPublisher(publisher))
	}

	if state.chatService, err = services.NewChatService(state.store, workflows, config.Memory.MaxPairs, opts...); err != nil {
		return nil, err
	}

	state.expiry = workflow.NewSessionExpiryWorkflow(config, state.store)
	state.expiry.StartTimer()

	slog.Info("initialized state",
		"memory_backend", config.Memory.Backend,
		"archive", state.mediaService != nil,
		"history", state.cloud.BigQueryClient != nil,
		"publisher", hasPublisher,
	)
	return state, nil
}
