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
// This file defines the Pub/Sub publisher that announces every completed chat
// turn. Downstream consumers (analytics, moderation) subscribe to the topic;
// the chat service never waits on them.
package cloud

import (
	"context"
	"encoding/json"
	"fmt"

	"cloud.google.com/go/pubsub"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

// Publisher publishes a JSON encoded event.
type Publisher interface {
	Publish(ctx context.Context, event interface{}, attributes map[string]string) error
}

// TurnPublisher publishes events to a single Pub/Sub topic.
type TurnPublisher struct {
	topic *pubsub.Topic
}

// NewTurnPublisher creates a publisher for topicID.
func NewTurnPublisher(client *pubsub.Client, topicID string) *TurnPublisher {
	return &TurnPublisher{topic: client.Topic(topicID)}
}

// Publish encodes event as JSON and waits for the server to acknowledge it.
//
// Inputs:
//   - ctx: Controls the publish and carries the trace.
//   - event: Any JSON encodable value.
//   - attributes: Optional message attributes, e.g. the session id.
//
// Outputs:
//   - error: Encoding or publish failure.
func (p *TurnPublisher) Publish(ctx context.Context, event interface{}, attributes map[string]string) error {
	ctx, span := otel.Tracer("turn-publisher").Start(ctx, "publish-turn")
	defer span.End()
	span.SetAttributes(attribute.String("topic", p.topic.ID()))

	data, err := json.Marshal(event)
	if err != nil {
		span.SetStatus(codes.Error, "encode failed")
		return fmt.Errorf("failed to encode event: %w", err)
	}

	result := p.topic.Publish(ctx, &pubsub.Message{Data: data, Attributes: attributes})
	if _, err := result.Get(ctx); err != nil {
		span.SetStatus(codes.Error, "publish failed")
		return fmt.Errorf("failed to publish to %s: %w", p.topic.ID(), err)
	}
	span.SetStatus(codes.Ok, "published")
	return nil
}

// Stop flushes pending messages and releases the topic's goroutines.
func (p *TurnPublisher) Stop() {
	p.topic.Stop()
}
