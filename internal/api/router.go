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

// Package api exposes the narrator over HTTP. All routes live under /api/v1:
// the video library (listing, streaming, segments, signed URLs, summaries),
// narration runs (start, history) and a websocket feed of run progress.
package api

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"github.com/jaycherian/go-media-narrator/internal/core/model"
	"github.com/jaycherian/go-media-narrator/internal/core/services"
	"github.com/jaycherian/go-media-narrator/internal/telemetry"
)

// Narrator starts narration runs in the background.
type Narrator interface {
	Start(ctx context.Context, req *model.NarrationRequest) (string, <-chan *model.RunReport)
}

// RunHistory reads finished and running runs back.
type RunHistory interface {
	Get(ctx context.Context, runID string) (*model.RunReport, error)
	List(ctx context.Context, limit int) ([]*model.RunReport, error)
}

// Server holds what the handlers need. Runs may be nil when the run journal
// is disabled.
type Server struct {
	Videos   *services.VideoService
	Narrator Narrator
	Runs     RunHistory
	Events   *Hub
	// BaseContext bounds the background runs, usually the server lifetime.
	BaseContext context.Context

	log *slog.Logger
}

// NewRouter builds the gin engine with tracing and CORS in front of the
// /api/v1 routes.
func NewRouter(s *Server, serviceName string) *gin.Engine {
	if s.BaseContext == nil {
		s.BaseContext = context.Background()
	}
	if s.Events == nil {
		s.Events = NewHub(0)
	}
	s.log = telemetry.Component("api")

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(otelgin.Middleware(serviceName))
	r.Use(cors.Default())

	apiV1 := r.Group("/api/v1")
	{
		Dashboard(apiV1, s)
		s.VideoRouter(apiV1)
		s.RunRouter(apiV1)
	}
	return r
}

// statusOf maps the error kinds onto HTTP status codes.
func statusOf(err error) int {
	switch {
	case errors.Is(err, model.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, model.ErrConfiguration):
		return http.StatusBadRequest
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	}
	return http.StatusInternalServerError
}

func (s *Server) fail(c *gin.Context, err error) {
	status := statusOf(err)
	if status >= http.StatusInternalServerError {
		s.log.ErrorContext(c.Request.Context(), "request failed", "path", c.FullPath(), "error", err)
	}
	c.JSON(status, gin.H{"error": err.Error()})
}

// VideoRouter sets up the routes of the video library.
func (s *Server) VideoRouter(r *gin.RouterGroup) {
	videos := r.Group("/videos")
	{
		videos.GET("", func(c *gin.Context) {
			out, err := s.Videos.ListByStatus(model.Status(c.Query("status")))
			if err != nil {
				s.fail(c, err)
				return
			}
			c.JSON(http.StatusOK, out)
		})

		videos.GET("/latest", func(c *gin.Context) {
			out, err := s.Videos.Latest()
			if err != nil {
				s.fail(c, err)
				return
			}
			c.JSON(http.StatusOK, out)
		})

		videos.GET("/:id", func(c *gin.Context) {
			out, err := s.Videos.Get(c.Param("id"))
			if err != nil {
				s.fail(c, err)
				return
			}
			c.JSON(http.StatusOK, out)
		})

		videos.DELETE("/:id", func(c *gin.Context) {
			if err := s.Videos.Delete(c.Param("id")); err != nil {
				s.fail(c, err)
				return
			}
			c.Status(http.StatusNoContent)
		})

		videos.GET("/:id/content", func(c *gin.Context) {
			kind, err := model.ParseArtifactKind(c.Query("kind"))
			if err != nil {
				s.fail(c, err)
				return
			}
			f, rec, err := s.Videos.Open(c.Param("id"), kind)
			if err != nil {
				s.fail(c, err)
				return
			}
			defer f.Close()
			info, err := f.Stat()
			if err != nil {
				s.fail(c, err)
				return
			}
			c.Header("Content-Type", "video/mp4")
			http.ServeContent(c.Writer, c.Request, info.Name(), rec.CreatedAt, f)
		})

		videos.GET("/:id/url", func(c *gin.Context) {
			url, err := s.Videos.SignedURL(c.Request.Context(), c.Param("id"))
			if err != nil {
				s.fail(c, err)
				return
			}
			c.JSON(http.StatusOK, gin.H{"url": url, "expires_in": int(s.Videos.URLExpiry / time.Second)})
		})

		videos.GET("/:id/segments", func(c *gin.Context) {
			out, err := s.Videos.Segments(c.Param("id"))
			if err != nil {
				s.fail(c, err)
				return
			}
			c.JSON(http.StatusOK, out)
		})

		videos.POST("/:id/summary", func(c *gin.Context) {
			out, err := s.Videos.Summarize(c.Request.Context(), c.Param("id"))
			if err != nil {
				s.fail(c, err)
				return
			}
			c.JSON(http.StatusOK, out)
		})
	}
}

// RunRouter sets up the routes that start and inspect narration runs.
func (s *Server) RunRouter(r *gin.RouterGroup) {
	r.POST("/narrations", func(c *gin.Context) {
		req := &model.NarrationRequest{}
		if err := c.ShouldBindJSON(req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		if _, err := req.Validate(); err != nil {
			s.fail(c, err)
			return
		}
		runID, done := s.Narrator.Start(s.BaseContext, req)
		go func() {
			if report := <-done; report != nil {
				s.log.Info("background run finished", "run_id", runID, "status", report.Status, "summary", report.Summary())
			}
		}()
		c.JSON(http.StatusAccepted, gin.H{"run_id": runID, "events": "/api/v1/runs/" + runID + "/events"})
	})

	runs := r.Group("/runs")
	{
		runs.GET("", func(c *gin.Context) {
			if s.Runs == nil {
				s.fail(c, errJournalDisabled)
				return
			}
			limit, err := strconv.Atoi(c.DefaultQuery("limit", "50"))
			if err != nil {
				limit = 50
			}
			out, err := s.Runs.List(c.Request.Context(), limit)
			if err != nil {
				s.fail(c, err)
				return
			}
			c.JSON(http.StatusOK, out)
		})

		runs.GET("/:id", func(c *gin.Context) {
			if s.Runs == nil {
				s.fail(c, errJournalDisabled)
				return
			}
			out, err := s.Runs.Get(c.Request.Context(), c.Param("id"))
			if err != nil {
				s.fail(c, err)
				return
			}
			c.JSON(http.StatusOK, out)
		})

		runs.GET("/:id/events", s.streamEvents)
	}
}

var errJournalDisabled = fmt.Errorf("%w: run journal is disabled", model.ErrNotFound)
