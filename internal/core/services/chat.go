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

// Package services holds the application services used by the HTTP layer:
// the chat orchestrator, the BigQuery message archive and the Cloud Storage
// upload archive.
package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/jaycherian/gcp-go-multimodal-chat/internal/cloud"
	"github.com/jaycherian/gcp-go-multimodal-chat/internal/core/commands"
	"github.com/jaycherian/gcp-go-multimodal-chat/internal/core/cor"
	"github.com/jaycherian/gcp-go-multimodal-chat/internal/core/memory"
	"github.com/jaycherian/gcp-go-multimodal-chat/internal/core/model"
	"github.com/jaycherian/gcp-go-multimodal-chat/internal/core/workflow"
)

// ErrEmptyMessage is returned for a request carrying neither text nor media.
var ErrEmptyMessage = errors.New("message is empty")

// ApologyPrefix starts the reply returned when the turn failed.
const ApologyPrefix = "Sorry, an error occurred: "

// Default user text per mode, used when the request carries media only.
const (
	DefaultImageText      = "Analyze this image"
	DefaultMultiImageText = "Analyze these images"
	DefaultVideoText      = "Analyze this video"
	DefaultMixedText      = "Analyze these media"
)

// SelectMode picks the conversation mode from the content of a request.
//
//   - text only: text
//   - exactly one image: image
//   - several images: multi_image
//   - images and videos: mixed
//   - videos only: video
func SelectMode(req *model.ChatRequest) (model.Mode, error) {
	if req.IsEmpty() {
		return "", ErrEmptyMessage
	}
	images, videos := len(req.Images), len(req.Videos)
	switch {
	case images == 0 && videos == 0:
		return model.ModeText, nil
	case videos == 0 && images == 1:
		return model.ModeImage, nil
	case videos == 0:
		return model.ModeMultiImage, nil
	case images == 0:
		return model.ModeVideo, nil
	default:
		return model.ModeMixed, nil
	}
}

// MessageText returns the user text of the turn, substituting the mode's
// default when the request has none.
func MessageText(mode model.Mode, text string) string {
	if text != "" {
		return text
	}
	switch mode {
	case model.ModeImage:
		return DefaultImageText
	case model.ModeMultiImage:
		return DefaultMultiImageText
	case model.ModeVideo:
		return DefaultVideoText
	case model.ModeMixed:
		return DefaultMixedText
	}
	return text
}

// MemoryEntry is the user entry recorded in the conversation window.
func MemoryEntry(mode model.Mode, message string, videoDuration int) string {
	switch mode {
	case model.ModeImage:
		return "[Image] " + message
	case model.ModeMultiImage, model.ModeMixed:
		return "[Mixed media] " + message
	case model.ModeVideo:
		return fmt.Sprintf("[Video %ds] %s", videoDuration, message)
	}
	return message
}

// HistoryRecorder archives sessions and conversation entries.
type HistoryRecorder interface {
	// RecordSession inserts or refreshes the session row.
	RecordSession(ctx context.Context, session *model.Session) error
	// Messages returns the archived entries recorded after the session's
	// archived clear time, oldest first.
	RecordMessages(ctx context.Context, records ...*model.MessageRecord) error
	Messages(ctx context.Context, sessionID string) ([]*model.MessageRecord, error)
}

// ChatService runs chat turns. Turns of the same session are serialised;
// turns of different sessions run concurrently.
type ChatService struct {
	store     memory.Store
	locks     *memory.KeyedMutex
	workflows map[model.Mode]*workflow.TurnWorkflow
	history   HistoryRecorder
	publisher cloud.Publisher
	maxPairs  int
}

// ChatOption configures optional collaborators of a ChatService.
type ChatOption func(*ChatService)

// WithHistory archives every turn to recorder.
func WithHistory(recorder HistoryRecorder) ChatOption {
	return func(s *ChatService) { s.history = recorder }
}

// WithPublisher publishes a model.TurnEvent after every turn.
func WithPublisher(publisher cloud.Publisher) ChatOption {
	return func(s *ChatService) { s.publisher = publisher }
}

// NewChatService creates the service. Every conversation mode must have a workflow.
func NewChatService(store memory.Store, workflows map[model.Mode]*workflow.TurnWorkflow, maxPairs int, opts ...ChatOption) (*ChatService, error) {
	for _, mode := range []model.Mode{model.ModeText, model.ModeImage, model.ModeMultiImage, model.ModeMixed, model.ModeVideo} {
		if workflows[mode] == nil {
			return nil, fmt.Errorf("no workflow configured for mode %s", mode)
		}
	}
	if maxPairs <= 0 {
		maxPairs = memory.DefaultMaxPairs
	}
	s := &ChatService{
		store:     store,
		locks:     memory.NewKeyedMutex(),
		workflows: workflows,
		maxPairs:  maxPairs,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Send runs one chat turn. Failures of the models are returned to the user
// as an apology, still recorded in the conversation window; only an empty
// request or a session store failure return an error.
func (s *ChatService) Send(ctx context.Context, req *model.ChatRequest) (*model.ChatReply, error) {
	mode, err := SelectMode(req)
	if err != nil {
		return nil, err
	}
	if req.SessionID == "" {
		req.SessionID = uuid.NewString()
	}

	ctx, span := otel.Tracer("chat-service").Start(ctx, "chat-turn")
	defer span.End()
	span.SetAttributes(
		attribute.String("session.id", req.SessionID),
		attribute.String("mode", string(mode)),
		attribute.Int("images", len(req.Images)),
		attribute.Int("videos", len(req.Videos)))

	unlock := s.locks.Lock(req.SessionID)
	defer unlock()

	session, created, err := s.store.Touch(ctx, req.SessionID)
	if err != nil {
		span.SetStatus(codes.Error, "session store unavailable")
		return nil, fmt.Errorf("failed to record session activity: %w", err)
	}
	span.SetAttributes(attribute.Bool("session.created", created))
	if created {
		slog.DebugContext(ctx, "session created", "session_id", req.SessionID)
	}
	window, err := s.store.Load(ctx, req.SessionID)
	if err != nil {
		span.SetStatus(codes.Error, "session store unavailable")
		return nil, fmt.Errorf("failed to load conversation: %w", err)
	}

	message := MessageText(mode, req.Text)
	slog.InfoContext(ctx, "chat turn", "session_id", req.SessionID, "mode", mode, "images", len(req.Images), "videos", len(req.Videos))

	chainCtx := cor.NewBaseContext()
	defer chainCtx.Close()
	chainCtx.SetContext(ctx)
	chainCtx.Add(commands.ParamRequest, req)
	chainCtx.Add(commands.ParamMode, mode)
	chainCtx.Add(commands.ParamMessage, message)
	if mode.IncludesHistory() {
		if digest := window.Digest(); digest != "" {
			chainCtx.Add(commands.ParamHistory, digest)
		}
	}

	s.workflows[mode].Execute(chainCtx)

	reply := &model.ChatReply{SessionID: req.SessionID, Mode: mode}
	if err := chainCtx.FirstError(); err != nil {
		detail := errors.Unwrap(err)
		if detail == nil {
			detail = err
		}
		slog.ErrorContext(ctx, "chat turn failed", "session_id", req.SessionID, "mode", mode, "error", err)
		span.RecordError(err)
		span.SetStatus(codes.Error, "turn failed")
		reply.Text = ApologyPrefix + detail.Error()
		reply.Degraded = true
	} else {
		reply.Text, _ = cor.Value[string](chainCtx, commands.ParamResponse)
		span.SetStatus(codes.Ok, "turn completed")
	}

	duration := 0
	if digests, ok := cor.Value[[]*model.VideoDigest](chainCtx, commands.ParamVideoDigests); ok && len(digests) > 0 {
		duration = digests[0].Metadata.Duration
	}
	userEntry := model.NewMessage(model.RoleUser, MemoryEntry(mode, message, duration))
	assistantEntry := model.NewMessage(model.RoleAssistant, reply.Text)
	if err := s.store.Append(ctx, req.SessionID, userEntry, assistantEntry); err != nil {
		return nil, fmt.Errorf("failed to record conversation: %w", err)
	}

	archived, _ := cor.Value[[]*cloud.GCSObject](chainCtx, cloud.GetGCSObjectName())
	s.archive(ctx, session, mode, req, userEntry, assistantEntry, duration, archived)
	s.publish(ctx, req, reply)
	return reply, nil
}

func (s *ChatService) archive(ctx context.Context, session *model.Session, mode model.Mode, req *model.ChatRequest,
	user model.Message, assistant model.Message, duration int, archived []*cloud.GCSObject) {
	if s.history == nil {
		return
	}
	if err := s.history.RecordSession(ctx, session); err != nil {
		slog.WarnContext(ctx, "failed to archive session", "session_id", session.ID, "error", err)
	}

	metadata := map[string]interface{}{}
	if len(req.Images) > 0 {
		metadata["images"] = len(req.Images)
	}
	if len(req.Videos) > 0 {
		metadata["videos"] = len(req.Videos)
		metadata["duration"] = duration
	}
	userRecord := model.NewMessageRecord(req.SessionID, mode.Kind(), user, metadata)
	if len(archived) > 0 {
		userRecord.FilePath = archived[0].Name
	}
	assistantRecord := model.NewMessageRecord(req.SessionID, model.KindText, assistant, nil)
	if err := s.history.RecordMessages(ctx, userRecord, assistantRecord); err != nil {
		slog.WarnContext(ctx, "failed to archive messages", "session_id", req.SessionID, "error", err)
	}
}

func (s *ChatService) publish(ctx context.Context, req *model.ChatRequest, reply *model.ChatReply) {
	if s.publisher == nil {
		return
	}
	event := &model.TurnEvent{
		SessionID: reply.SessionID,
		Mode:      reply.Mode,
		Degraded:  reply.Degraded,
		Images:    len(req.Images),
		Videos:    len(req.Videos),
		Timestamp: time.Now(),
	}
	if err := s.publisher.Publish(ctx, event, map[string]string{"session_id": reply.SessionID, "mode": string(reply.Mode)}); err != nil {
		slog.WarnContext(ctx, "failed to publish turn event", "session_id", reply.SessionID, "error", err)
	}
}

// History returns the conversation window of a session, oldest first. For a
// session the store no longer knows, such as one evicted while idle, the most
// recent archived entries are returned instead when an archive is configured.
func (s *ChatService) History(ctx context.Context, sessionID string) ([]model.Message, error) {
	if sessionID == "" {
		return []model.Message{}, nil
	}
	window, err := s.store.Load(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to load conversation: %w", err)
	}
	out := window.Messages()
	if len(out) > 0 || s.history == nil {
		return out, nil
	}
	// A known session with an empty window was cleared, or never had a turn.
	_, err = s.store.Get(ctx, sessionID)
	if err == nil {
		return out, nil
	}
	if !errors.Is(err, memory.ErrSessionNotFound) {
		return nil, fmt.Errorf("failed to load session: %w", err)
	}

	records, err := s.history.Messages(ctx, sessionID)
	if err != nil {
		slog.WarnContext(ctx, "failed to read archived messages", "session_id", sessionID, "error", err)
		return out, nil
	}
	if limit := 2 * s.maxPairs; len(records) > limit {
		records = records[len(records)-limit:]
	}
	for _, r := range records {
		out = append(out, r.AsMessage())
	}
	return out, nil
}

// Clear empties the conversation window of a session. The clear time is
// archived with the session row so the cleared entries are never restored.
func (s *ChatService) Clear(ctx context.Context, sessionID string) error {
	if sessionID == "" {
		return nil
	}
	unlock := s.locks.Lock(sessionID)
	defer unlock()
	if err := s.store.Clear(ctx, sessionID); err != nil {
		return err
	}
	if s.history == nil {
		return nil
	}
	session, err := s.store.Get(ctx, sessionID)
	if errors.Is(err, memory.ErrSessionNotFound) {
		// Evicted sessions may still have archived entries.
		now := time.Now()
		session, err = &model.Session{ID: sessionID, CreatedAt: now, LastActivity: now, ClearedAt: now}, nil
	}
	if err != nil {
		return fmt.Errorf("failed to load session: %w", err)
	}
	if err := s.history.RecordSession(ctx, session); err != nil {
		slog.WarnContext(ctx, "failed to archive session clear", "session_id", sessionID, "error", err)
	}
	return nil
}

// Sessions lists the known sessions, most recently active first.
func (s *ChatService) Sessions(ctx context.Context) ([]*model.Session, error) {
	return s.store.Sessions(ctx)
}
