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

package workflow

import (
	goctx "context"
	"log/slog"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/jaycherian/gcp-go-multimodal-chat/internal/cloud"
	"github.com/jaycherian/gcp-go-multimodal-chat/internal/core/cor"
	"github.com/jaycherian/gcp-go-multimodal-chat/internal/core/memory"
)

const DefaultSweepInterval = 60 * time.Second

// SessionExpiryWorkflow periodically removes sessions that have been idle
// longer than the configured TTL. The ids evicted by a run are left on
// cor.CtxOut.
type SessionExpiryWorkflow struct {
	cor.BaseCommand
	store    memory.Store
	idleFor  time.Duration
	interval time.Duration
	stopOnce sync.Once
	stop     chan struct{}
}

func NewSessionExpiryWorkflow(config *cloud.Config, store memory.Store) *SessionExpiryWorkflow {
	interval := time.Duration(config.Memory.SweepSeconds) * time.Second
	if interval <= 0 {
		interval = DefaultSweepInterval
	}
	return &SessionExpiryWorkflow{
		BaseCommand: *cor.NewBaseCommand("session-expiry"),
		store:       store,
		idleFor:     config.Memory.SessionTTL(),
		interval:    interval,
		stop:        make(chan struct{}),
	}
}

func (s *SessionExpiryWorkflow) IsExecutable(_ cor.Context) bool {
	return s.store != nil && s.idleFor > 0
}

func (s *SessionExpiryWorkflow) Execute(context cor.Context) {
	ids, err := s.store.Evict(context.GetContext(), s.idleFor)
	if err != nil {
		s.GetErrorCounter().Add(context.GetContext(), 1)
		context.AddError(s.GetName(), err)
		return
	}
	if len(ids) > 0 {
		slog.InfoContext(context.GetContext(), "evicted idle sessions", "count", len(ids), "idle_for", s.idleFor.String())
	}
	s.GetSuccessCounter().Add(context.GetContext(), 1)
	context.Add(cor.CtxOut, ids)
}

// StartTimer runs the workflow every interval until Stop is called.
func (s *SessionExpiryWorkflow) StartTimer() {
	ticker := time.NewTicker(s.interval)

	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				s.runOnce()
			case <-s.stop:
				return
			}
		}
	}()
}

// Stop ends the timer started by StartTimer. It is safe to call more than once.
func (s *SessionExpiryWorkflow) Stop() {
	s.stopOnce.Do(func() { close(s.stop) })
}

func (s *SessionExpiryWorkflow) runOnce() {
	traceCtx, span := s.GetTracer().Start(goctx.Background(), "session-expiry-sweep")
	defer span.End()

	chainCtx := cor.NewBaseContext()
	defer chainCtx.Close()
	chainCtx.SetContext(traceCtx)

	if !s.IsExecutable(chainCtx) {
		return
	}
	s.Execute(chainCtx)

	if chainCtx.HasErrors() {
		slog.WarnContext(traceCtx, "session sweep failed", "error", chainCtx.FirstError())
		span.SetStatus(codes.Error, "failed to evict idle sessions")
		return
	}
	if ids, ok := cor.Value[[]string](chainCtx, cor.CtxOut); ok {
		span.SetAttributes(attribute.Int("sessions.evicted", len(ids)))
	}
	span.SetStatus(codes.Ok, "evicted idle sessions")
}
