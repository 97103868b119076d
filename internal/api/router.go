package api

import (
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/your-org/ema/internal/api/handlers"
	"github.com/your-org/ema/internal/api/ws"
	"github.com/your-org/ema/internal/auth"
	"github.com/your-org/ema/internal/catalog"
	"github.com/your-org/ema/internal/jobs"
)

type RouterConfig struct {
	APIKey  string
	Service *catalog.Service
	Jobs    *jobs.Manager
	Hub     *ws.Hub
	// ReadyChecks are probed by /readyz next to the repository root, keyed by
	// dependency name.
	ReadyChecks map[string]handlers.Check
}

func NewRouter(cfg RouterConfig) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(LoggingMiddleware())
	r.Use(cors.Default())
	r.MaxMultipartMemory = 32 << 20

	// System endpoints (no auth)
	systemH := handlers.NewSystemHandler(cfg.Service.Root(), cfg.ReadyChecks)
	r.GET("/healthz", systemH.Healthz)
	r.GET("/readyz", systemH.Readyz)
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// API v1 (with auth)
	v1 := r.Group("/v1")
	v1.Use(auth.APIKeyMiddleware(cfg.APIKey))

	// WebSocket
	v1.GET("/ws", cfg.Hub.HandleWS)

	// Persons
	personH := handlers.NewPersonHandler(cfg.Service)
	v1.GET("/persons", personH.List)
	v1.POST("/persons", personH.Create)
	v1.GET("/persons/:id", personH.Get)
	v1.PATCH("/persons/:id", personH.Update)
	v1.DELETE("/persons/:id", personH.Delete)
	v1.POST("/persons/:id/information", personH.AddInformation)
	v1.PUT("/persons/:id/information/:infoId", personH.UpdateInformation)
	v1.DELETE("/persons/:id/information/:infoId", personH.RemoveInformation)
	v1.POST("/persons/:id/quotes", personH.AddQuote)
	v1.DELETE("/persons/:id/quotes/:quoteId", personH.RemoveQuote)

	// Evidence
	evidenceH := handlers.NewEvidenceHandler(cfg.Service)
	v1.GET("/persons/:id/evidence", evidenceH.List)
	v1.POST("/persons/:id/evidence", evidenceH.Add)
	v1.GET("/persons/:id/evidence/file", evidenceH.Download)
	v1.PATCH("/persons/:id/evidence", evidenceH.Rename)
	v1.DELETE("/persons/:id/evidence", evidenceH.Delete)

	// Archives & jobs
	archiveH := handlers.NewArchiveHandler(cfg.Service, cfg.Jobs)
	v1.POST("/archives/export", archiveH.Export)
	v1.POST("/archives/import", archiveH.Import)
	v1.GET("/archives/remote", archiveH.Remote)

	jobH := handlers.NewJobHandler(cfg.Jobs)
	v1.GET("/jobs", jobH.List)
	v1.GET("/jobs/:id", jobH.Get)

	return r
}
