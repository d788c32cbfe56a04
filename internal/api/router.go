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

package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"github.com/jaycherian/gcp-go-multimodal-chat/internal/cloud"
	"github.com/jaycherian/gcp-go-multimodal-chat/internal/core/services"
)

// SignedURLGenerator produces time limited URLs for archived uploads. It
// returns services.ErrForbiddenObject for objects outside the session.
type SignedURLGenerator interface {
	GenerateSignedURL(ctx context.Context, gcsURI string, sessionID string, expires time.Duration) (string, error)
}

// RouterOptions configures NewRouter.
type RouterOptions struct {
	ServiceName    string
	AllowedOrigins []string // Empty allows any origin.
	Chat           ChatOptions
	Media          SignedURLGenerator // Optional.
}

// NewRouter builds the gin engine serving the chat API and the health check.
// Requests with a method a route does not accept get a 405 JSON error.
func NewRouter(chat ChatBackend, opts RouterOptions) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(otelgin.Middleware(opts.ServiceName))

	corsConfig := cors.DefaultConfig()
	if len(opts.AllowedOrigins) == 0 {
		corsConfig.AllowAllOrigins = true
	} else {
		corsConfig.AllowOrigins = opts.AllowedOrigins
		corsConfig.AllowCredentials = true
	}
	r.Use(cors.New(corsConfig))

	r.HandleMethodNotAllowed = true
	r.NoMethod(func(c *gin.Context) {
		c.JSON(http.StatusMethodNotAllowed, gin.H{"error": "Method not allowed"})
	})
	r.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, gin.H{"error": "Not found"})
	})

	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	apiV1 := r.Group("/api/v1")
	{
		ChatRouter(apiV1, chat, opts.Chat)
		if opts.Media != nil {
			MediaRouter(apiV1, opts.Media)
		}
	}
	return r
}

// MediaRouter registers the signed URL endpoint for archived uploads. Only
// uploads of the caller's session are signed.
func MediaRouter(r *gin.RouterGroup, media SignedURLGenerator) {
	group := r.Group("/media")
	{
		group.GET("/signed-url", func(c *gin.Context) {
			uri := c.Query("uri")
			if _, err := cloud.ParseGCSURI(uri); err != nil {
				c.JSON(http.StatusBadRequest, gin.H{"error": "uri must be a gs://bucket/object URI"})
				return
			}
			sessionID := requestSessionID(c)
			if sessionID == "" {
				c.JSON(http.StatusForbidden, gin.H{"error": "No session"})
				return
			}
			u, err := media.GenerateSignedURL(c.Request.Context(), uri, sessionID, 0)
			if errors.Is(err, services.ErrForbiddenObject) {
				c.JSON(http.StatusForbidden, gin.H{"error": "Object does not belong to this session"})
				return
			}
			if err != nil {
				c.JSON(http.StatusInternalServerError, gin.H{"error": "Could not generate URL"})
				return
			}
			c.JSON(http.StatusOK, gin.H{"url": u})
		})
	}
}
