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

// Package api exposes the chat service over HTTP using gin.
package api

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/jaycherian/gcp-go-multimodal-chat/internal/core/model"
	"github.com/jaycherian/gcp-go-multimodal-chat/internal/core/services"
)

// SessionCookie carries the session id between requests.
const SessionCookie = "chat_session"

// Form fields of the send endpoint.
const (
	FieldMessage   = "message"
	FieldSessionID = "session_id"
	FieldImages    = "images[]"
	FieldVideos    = "videos[]"
)

// ErrUploadTooLarge is returned for an attachment above the configured limit.
var ErrUploadTooLarge = errors.New("attachment exceeds the maximum upload size")

// ChatBackend is the chat service as seen by the HTTP layer.
type ChatBackend interface {
	Send(ctx context.Context, req *model.ChatRequest) (*model.ChatReply, error)
	History(ctx context.Context, sessionID string) ([]model.Message, error)
	Clear(ctx context.Context, sessionID string) error
	Sessions(ctx context.Context) ([]*model.Session, error)
}

// ChatOptions tunes the chat routes.
type ChatOptions struct {
	MaxUploadSize int64 // Per attachment, in bytes. Zero disables the check.
	CookieMaxAge  int   // Seconds; zero makes the cookie a session cookie.
}

// ChatRouter registers the chat endpoints under /chat.
func ChatRouter(r *gin.RouterGroup, chat ChatBackend, opts ChatOptions) {
	h := &chatHandler{chat: chat, opts: opts}
	group := r.Group("/chat")
	{
		group.POST("/send", h.send)
		group.POST("/send-message", h.send)
		group.GET("/history", h.history)
		group.POST("/clear", h.clear)
		group.POST("/clear-history", h.clear)
		group.GET("/sessions", h.sessions)
	}
}

type chatHandler struct {
	chat ChatBackend
	opts ChatOptions
}

func (h *chatHandler) sessionID(c *gin.Context) string {
	return requestSessionID(c)
}

// requestSessionID reads the session from the form, the query string or the
// session cookie, in that order.
func requestSessionID(c *gin.Context) string {
	if id := strings.TrimSpace(c.PostForm(FieldSessionID)); id != "" {
		return id
	}
	if id := strings.TrimSpace(c.Query(FieldSessionID)); id != "" {
		return id
	}
	if id, err := c.Cookie(SessionCookie); err == nil {
		return id
	}
	return ""
}

func (h *chatHandler) setSession(c *gin.Context, id string) {
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(SessionCookie, id, h.opts.CookieMaxAge, "/", "", false, true)
}

func (h *chatHandler) send(c *gin.Context) {
	req := &model.ChatRequest{
		SessionID: h.sessionID(c),
		Text:      strings.TrimSpace(c.PostForm(FieldMessage)),
	}

	form, err := c.MultipartForm()
	if err != nil && !errors.Is(err, http.ErrNotMultipart) {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": fmt.Sprintf("invalid form: %v", err)})
		return
	}
	if form != nil {
		if req.Images, err = h.readFiles(form.File[FieldImages], form.File["images"]); err == nil {
			req.Videos, err = h.readFiles(form.File[FieldVideos], form.File["videos"])
		}
		if err != nil {
			status := http.StatusInternalServerError
			if errors.Is(err, ErrUploadTooLarge) {
				status = http.StatusRequestEntityTooLarge
			}
			c.JSON(status, gin.H{"success": false, "error": err.Error()})
			return
		}
	}

	if req.IsEmpty() {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": "Empty message"})
		return
	}

	reply, err := h.chat.Send(c.Request.Context(), req)
	if err != nil {
		if errors.Is(err, services.ErrEmptyMessage) {
			c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": "Empty message"})
			return
		}
		slog.ErrorContext(c.Request.Context(), "chat request failed", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"success": false, "error": err.Error()})
		return
	}

	h.setSession(c, reply.SessionID)
	c.JSON(http.StatusOK, gin.H{
		"success":    true,
		"response":   reply.Text,
		"session_id": reply.SessionID,
	})
}

func (h *chatHandler) readFiles(groups ...[]*multipart.FileHeader) ([]*model.MediaItem, error) {
	out := make([]*model.MediaItem, 0)
	for _, files := range groups {
		for _, file := range files {
			if h.opts.MaxUploadSize > 0 && file.Size > h.opts.MaxUploadSize {
				return nil, fmt.Errorf("%w: %s is %d bytes", ErrUploadTooLarge, file.Filename, file.Size)
			}
			f, err := file.Open()
			if err != nil {
				return nil, fmt.Errorf("failed to open %s: %w", file.Filename, err)
			}
			data, err := io.ReadAll(f)
			_ = f.Close()
			if err != nil {
				return nil, fmt.Errorf("failed to read %s: %w", file.Filename, err)
			}
			if len(data) == 0 {
				continue
			}
			out = append(out, &model.MediaItem{
				Filename: file.Filename,
				MIMEType: file.Header.Get("Content-Type"),
				Data:     data,
			})
		}
	}
	return out, nil
}

func (h *chatHandler) history(c *gin.Context) {
	id := h.sessionID(c)
	messages, err := h.chat.History(c.Request.Context(), id)
	if err != nil {
		slog.ErrorContext(c.Request.Context(), "failed to read history", "session_id", id, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if messages == nil {
		messages = []model.Message{}
	}
	c.JSON(http.StatusOK, gin.H{"messages": messages, "session_id": id})
}

func (h *chatHandler) clear(c *gin.Context) {
	id := h.sessionID(c)
	if err := h.chat.Clear(c.Request.Context(), id); err != nil {
		slog.ErrorContext(c.Request.Context(), "failed to clear history", "session_id", id, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"success": false, "error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}

func (h *chatHandler) sessions(c *gin.Context) {
	sessions, err := h.chat.Sessions(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if sessions == nil {
		sessions = []*model.Session{}
	}
	c.JSON(http.StatusOK, gin.H{"sessions": sessions})
}
