package http

import (
	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	httpH "github.com/yungbote/memoir-studio-backend/internal/http/handlers"
	httpMW "github.com/yungbote/memoir-studio-backend/internal/http/middleware"
	"github.com/yungbote/memoir-studio-backend/internal/observability"
	"github.com/yungbote/memoir-studio-backend/internal/platform/logger"
)

const serviceName = "memoir-studio"

type RouterConfig struct {
	Log         *logger.Logger
	Metrics     *observability.Metrics
	CORSOrigins []string

	HealthHandler   *httpH.HealthHandler
	StudioHandler   *httpH.StudioHandler
	RealtimeHandler *httpH.RealtimeHandler
}

func NewRouter(cfg RouterConfig) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(otelgin.Middleware(serviceName))
	r.Use(httpMW.AttachTraceContext())
	r.Use(httpMW.AttachRequestContext())
	r.Use(httpMW.CORS(cfg.CORSOrigins))
	if cfg.Log != nil {
		r.Use(httpMW.RequestLogger(cfg.Log))
	}
	if cfg.Metrics != nil {
		r.Use(httpMW.Metrics(cfg.Metrics))
		r.GET("/metrics", gin.WrapF(cfg.Metrics.WriteHTTP))
	}

	// Health
	if cfg.HealthHandler != nil {
		r.GET("/healthcheck", cfg.HealthHandler.HealthCheck)
		r.GET("/readyz", cfg.HealthHandler.Ready)
	}

	api := r.Group("/api")

	// Versions
	if h := cfg.StudioHandler; h != nil {
		api.POST("/chapters/:id/versions/:kind", h.BeginVersion)
		api.GET("/chapters/:id/versions/:kind/latest-ready", h.GetLatestReady)
		api.POST("/versions/:kind/:versionId/ready", h.SetVersionReady)
		api.POST("/versions/:kind/:versionId/error", h.SetVersionError)

		// Media
		api.POST("/media/by-source", h.CreateOrGetMedia)

		// Studio
		api.POST("/chapters/populate", h.PopulateMany)
		api.POST("/chapters/:id/populate", h.PopulateChapter)
		api.GET("/chapters/:id/studio", h.GetStudio)
		api.PUT("/chapters/:id/template", h.SetTemplate)
		api.POST("/chapters/:id/nodes/:nodeId/edited", h.MarkEdited)
		api.POST("/chapters/:id/finalize", h.Finalize)
		api.POST("/chapters/:id/generate/draft", h.GenerateDraft)
		api.POST("/chapters/:id/generate/illustrations", h.GenerateIllustrations)
		api.POST("/chapters/:id/actions", h.Dispatch)
	}

	// Realtime (SSE)
	if cfg.RealtimeHandler != nil {
		api.GET("/chapters/:id/events", cfg.RealtimeHandler.ChapterEvents)
	}

	return r
}
