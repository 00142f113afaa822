package httpiface

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	domain "github.com/AIENGINE/online-cs-backend/domain/chat"
	"github.com/AIENGINE/online-cs-backend/internal/metrics"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
)

// ThreadIDHeader carries the opaque conversation token between client,
// edge and upstream. Forwarded unchanged when present.
const ThreadIDHeader = "lb-thread-id"

type ChatService interface {
	Stream(ctx context.Context, req *domain.Request, onThread domain.ThreadHandler, emit domain.StreamHandler[domain.StreamChunk]) error
}

type Router struct {
	service     ChatService
	corsOrigins []string
}

func NewRouter(service ChatService, corsOrigins []string) *Router {
	return &Router{
		service:     service,
		corsOrigins: corsOrigins,
	}
}

func (r *Router) SetupRoutes() *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Logger())
	router.Use(gin.Recovery())
	router.Use(r.corsMiddleware())

	// Anything that is not POST or OPTIONS on a known path is rejected.
	router.HandleMethodNotAllowed = true
	router.NoMethod(func(c *gin.Context) {
		c.String(http.StatusMethodNotAllowed, "Method Not Allowed")
	})

	// Health endpoints - no request ID required for monitoring tools
	router.GET("/live", r.liveness)
	router.GET("/ready", r.readiness)
	router.GET("/health", r.healthCheck)
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	api := router.Group("/")
	api.Use(r.requestIDMiddleware())
	api.POST("/v1/chat", r.chat)

	return router
}

func (r *Router) corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		reqOrigin := c.GetHeader("Origin")
		if reqOrigin == "" {
			c.Header("Access-Control-Allow-Origin", strings.Join(r.corsOrigins, ", "))
		} else {
			allowOrigin := ""
			if len(r.corsOrigins) == 1 && r.corsOrigins[0] == "*" {
				allowOrigin = "*"
			} else {
				for _, allowed := range r.corsOrigins {
					if allowed == reqOrigin {
						allowOrigin = reqOrigin
						break
					}
				}
			}
			if allowOrigin != "" {
				c.Header("Access-Control-Allow-Origin", allowOrigin)
			}
		}
		c.Header("Access-Control-Allow-Methods", "POST, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Content-Type, "+ThreadIDHeader)
		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}

func (r *Router) requestIDMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		requestID := c.GetHeader("X-Request-ID")
		if requestID == "" {
			requestID = uuid.New().String()
		}
		c.Header("X-Request-ID", requestID)
		c.Set("request_id", requestID)
		c.Next()
	}
}

func (r *Router) liveness(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":    "alive",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

func (r *Router) readiness(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":    "ready",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

func (r *Router) healthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":    "healthy",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
		"service":   "online-cs-backend",
		"version":   "1.0.0",
	})
}

// chat handles one support exchange: validate, stream the orchestrated SSE
// body, terminate with the [DONE] sentinel.
func (r *Router) chat(c *gin.Context) {
	requestID, _ := c.Get("request_id")

	if r.service == nil {
		metrics.RequestsTotal.WithLabelValues("config_error").Inc()
		c.String(http.StatusInternalServerError, "Chat service not configured")
		return
	}

	var req domain.Request
	if err := c.ShouldBindJSON(&req); err != nil {
		logrus.WithError(err).WithField("request_id", requestID).Error("Failed to bind request")
		metrics.RequestsTotal.WithLabelValues("bad_request").Inc()
		c.JSON(http.StatusBadRequest, domain.ErrorResponse{Error: "Invalid request body"})
		return
	}

	if len(req.Messages) == 0 {
		metrics.RequestsTotal.WithLabelValues("bad_request").Inc()
		c.JSON(http.StatusBadRequest, domain.ErrorResponse{Error: "Invalid or empty messages array"})
		return
	}

	// Body value takes precedence over the header when both carry a thread id.
	if req.ThreadID == "" {
		req.ThreadID = c.GetHeader(ThreadIDHeader)
	}

	flusher, ok := c.Writer.(http.Flusher)
	if !ok {
		metrics.RequestsTotal.WithLabelValues("error").Inc()
		c.String(http.StatusInternalServerError, "Streaming not supported by server")
		return
	}

	// SSE headers are committed only once the upstream has answered, so an
	// upstream fault can still be reported as a plain 500.
	streaming := false
	onThread := func(threadID string) {
		c.Header("Content-Type", "text/event-stream")
		c.Header("Cache-Control", "no-cache")
		c.Header("Connection", "keep-alive")
		c.Header(ThreadIDHeader, threadID)
		c.Status(http.StatusOK)
	}

	err := r.service.Stream(c.Request.Context(), &req, onThread, func(chunk domain.StreamChunk) error {
		data, err := json.Marshal(chunk)
		if err != nil {
			return err
		}
		if _, err := c.Writer.Write([]byte("data: ")); err != nil {
			return err
		}
		if _, err := c.Writer.Write(data); err != nil {
			return err
		}
		if _, err := c.Writer.Write([]byte("\n\n")); err != nil {
			return err
		}
		flusher.Flush()
		streaming = true
		return nil
	})
	if err != nil {
		logrus.WithError(err).WithField("request_id", requestID).Error("Streaming failed")
		metrics.RequestsTotal.WithLabelValues("error").Inc()
		if !streaming {
			c.String(http.StatusInternalServerError, "Internal Server Error")
		}
		return
	}

	c.Writer.Write([]byte("data: [DONE]\n\n"))
	flusher.Flush()
	metrics.RequestsTotal.WithLabelValues("ok").Inc()
}
