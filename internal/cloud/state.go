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
// This file creates and holds every external client the server needs. It acts
// as a small dependency injection container: `NewCloudServiceClients` is
// called once at startup and the resulting `ServiceClients` is passed to the
// services and workflows that need it.
//
// Only the Gemini client is mandatory. Storage, BigQuery, Pub/Sub, IAM and
// Redis clients are created only when the configuration turns the matching
// feature on, so a local run needs nothing but an API key.
package cloud

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"cloud.google.com/go/bigquery"
	credentials "cloud.google.com/go/iam/credentials/apiv1"
	"cloud.google.com/go/pubsub"
	"cloud.google.com/go/storage"
	"github.com/redis/go-redis/v9"
	"google.golang.org/genai"
)

// ServiceClients is the container for all external clients.
type ServiceClients struct {
	GenAIClient    *genai.Client                           // Always set.
	StorageClient  *storage.Client                         // Set when storage.upload_bucket is configured.
	BigQueryClient *bigquery.Client                        // Set when big_query_data_source.enabled.
	PubsubClient   *pubsub.Client                          // Set when at least one topic is configured.
	IAMClient      *credentials.IamCredentialsClient       // Set when a signer service account is configured.
	RedisClient    *redis.Client                           // Set when memory.backend is "redis".
	AgentModels    map[string]*QuotaAwareGenerativeAIModel // Keyed by the logical names of the configuration.
	Publishers     map[string]*TurnPublisher               // Keyed by the logical topic names.
	Vision         *VisionHandle                           // Shared, lazily resolved vision model.
}

// ChatModel returns the model used to generate replies.
func (c *ServiceClients) ChatModel() *QuotaAwareGenerativeAIModel {
	return c.AgentModels[ChatModelName]
}

// Close releases every client that was created.
func (c *ServiceClients) Close() error {
	var err error
	for _, p := range c.Publishers {
		p.Stop()
	}
	if c.StorageClient != nil {
		err = errors.Join(err, c.StorageClient.Close())
	}
	if c.BigQueryClient != nil {
		err = errors.Join(err, c.BigQueryClient.Close())
	}
	if c.PubsubClient != nil {
		err = errors.Join(err, c.PubsubClient.Close())
	}
	if c.IAMClient != nil {
		err = errors.Join(err, c.IAMClient.Close())
	}
	if c.RedisClient != nil {
		err = errors.Join(err, c.RedisClient.Close())
	}
	return err
}

// NewGenAIClient creates the Gemini client for the configured backend.
func NewGenAIClient(ctx context.Context, config *Config) (*genai.Client, error) {
	cc := &genai.ClientConfig{}
	switch config.Application.Backend {
	case BackendGeminiAPI:
		if config.Application.APIKey == "" {
			return nil, ErrMissingCredentials
		}
		cc.APIKey = config.Application.APIKey
		cc.Backend = genai.BackendGeminiAPI
	default:
		cc.Project = config.Application.GoogleProjectId
		cc.Location = config.Application.GoogleLocation
		cc.Backend = genai.BackendVertexAI
	}
	return genai.NewClient(ctx, cc)
}

// NewCloudServiceClients initializes the clients required by the configuration.
//
// Inputs:
//   - ctx: The root context of the application.
//   - config: The validated configuration.
//
// Outputs:
//   - *ServiceClients: The initialized clients.
//   - error: The first client that failed to initialize. Clients created before
//     the failure are closed.
func NewCloudServiceClients(ctx context.Context, config *Config) (_ *ServiceClients, err error) {
	cloud := &ServiceClients{
		AgentModels: make(map[string]*QuotaAwareGenerativeAIModel),
		Publishers:  make(map[string]*TurnPublisher),
	}
	defer func() {
		if err != nil {
			_ = cloud.Close()
		}
	}()

	cloud.GenAIClient, err = NewGenAIClient(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("error creating genai client: %w", err)
	}
	slog.Info("created genai client", "backend", config.Application.Backend, "project", config.Application.GoogleProjectId, "location", config.Application.GoogleLocation)

	for amKey, values := range config.AgentModels {
		wrapped := NewQuotaAwareModel(NewGenerateContentConfig(values), values.Model, cloud.GenAIClient.Models, values.RateLimit)
		wrapped.MaxRetries = values.MaxRetries
		cloud.AgentModels[amKey] = wrapped
		slog.Debug("configured agent model", "key", amKey, "model", values.Model)
	}

	cloud.Vision = NewVisionHandle(func() (ContentGenerator, error) {
		m, ok := cloud.AgentModels[VisionModelName]
		if !ok {
			return nil, fmt.Errorf("%w: agent_models.%s is not configured", ErrInvalidConfig, VisionModelName)
		}
		slog.Info("vision model ready", "model", m.ModelName)
		return m, nil
	})

	if config.Storage.UploadBucket != "" {
		if cloud.StorageClient, err = storage.NewClient(ctx); err != nil {
			return nil, fmt.Errorf("error creating storage client: %w", err)
		}
		if config.Application.SignerServiceAccountEmail != "" {
			if cloud.IAMClient, err = credentials.NewIamCredentialsClient(ctx); err != nil {
				return nil, fmt.Errorf("error creating iam credentials client: %w", err)
			}
		}
	}

	if config.BigQueryDataSource.Enabled {
		if cloud.BigQueryClient, err = bigquery.NewClient(ctx, config.Application.GoogleProjectId); err != nil {
			return nil, fmt.Errorf("error creating bigquery client: %w", err)
		}
	}

	if len(config.Topics) > 0 {
		if cloud.PubsubClient, err = pubsub.NewClient(ctx, config.Application.GoogleProjectId); err != nil {
			return nil, fmt.Errorf("error creating pubsub client: %w", err)
		}
		for key, topic := range config.Topics {
			cloud.Publishers[key] = NewTurnPublisher(cloud.PubsubClient, topic.Name)
		}
	}

	if config.Memory.Backend == MemoryBackendRedis {
		cloud.RedisClient = redis.NewClient(&redis.Options{
			Addr:     config.Memory.RedisAddr,
			Password: config.Memory.RedisPassword,
			DB:       config.Memory.RedisDB,
		})
		if err = cloud.RedisClient.Ping(ctx).Err(); err != nil {
			return nil, fmt.Errorf("error connecting to redis at %s: %w", config.Memory.RedisAddr, err)
		}
	}

	return cloud, nil
}
