package api

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"segment-research/internal/common/logger"
	"segment-research/internal/common/observability"
)

const requestIDHeader = "X-Request-ID"

// Pinger is satisfied by dependencies checked by /ready.
type Pinger interface {
	Ping(ctx context.Context) error
}

type RouterConfig struct {
	ServiceName    string
	AllowedOrigins []string
	Stages         *StageHandler
	Sessions       *SessionHandler
	Observability  *observability.Observability
	Logger         logger.Logger
	// Ready lists dependencies that must answer before /ready reports ok.
	Ready map[string]Pinger
}

func NewRouter(cfg RouterConfig) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(otelgin.Middleware(cfg.ServiceName))
	r.Use(corsMiddleware(cfg.AllowedOrigins))
	r.Use(requestContext(cfg.Logger, cfg.Observability))

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "healthy"})
	})
	r.GET("/ready", readyHandler(cfg.Ready))

	api := r.Group("/api")
	if cfg.Stages != nil {
		api.POST("/generate-segments", cfg.Stages.GenerateSegments)
		api.POST("/enhance-segments", cfg.Stages.EnhanceSegments)
		api.POST("/sales-nav", cfg.Stages.SalesNav)
		api.POST("/deep-segment", cfg.Stages.DeepSegment)
	}
	if cfg.Sessions != nil {
		api.POST("/sessions", cfg.Sessions.Create)
		api.GET("/sessions/:id", cfg.Sessions.Get)
		api.POST("/sessions/:id/advance", cfg.Sessions.Advance)
		api.POST("/sessions/:id/reset", cfg.Sessions.Reset)
		api.DELETE("/sessions/:id", cfg.Sessions.Delete)
	}
	return r
}

func corsMiddleware(origins []string) gin.HandlerFunc {
	conf := cors.Config{
		AllowMethods:  []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowHeaders:  []string{"Content-Type", "Authorization", requestIDHeader},
		ExposeHeaders: []string{requestIDHeader},
		MaxAge:        12 * time.Hour,
	}
	if len(origins) == 0 {
		conf.AllowAllOrigins = true
	} else {
		conf.AllowOrigins = origins
	}
	return cors.New(conf)
}

// requestContext tags each request with an id and records its outcome.
func requestContext(log logger.Logger, obs *observability.Observability) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		reqID := c.GetHeader(requestIDHeader)
		if reqID == "" {
			reqID = uuid.NewString()
		}
		c.Header(requestIDHeader, reqID)
		c.Set("requestId", reqID)

		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		duration := time.Since(start)
		obs.RecordRequest(c.Request.Context(), route, c.Writer.Status(), duration)
		if log != nil {
			log.Info("request handled", map[string]interface{}{
				"requestId":  reqID,
				"method":     c.Request.Method,
				"route":      route,
				"status":     c.Writer.Status(),
				"durationMs": duration.Milliseconds(),
			})
		}
	}
}

func readyHandler(deps map[string]Pinger) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
		defer cancel()

		checks := gin.H{}
		ready := true
		for name, dep := range deps {
			if err := dep.Ping(ctx); err != nil {
				checks[name] = err.Error()
				ready = false
				continue
			}
			checks[name] = "ok"
		}
		if !ready {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "not ready", "checks": checks})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ready", "checks": checks})
	}
}
