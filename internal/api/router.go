package api

import (
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/pulsefeed/npcmind/internal/cache"
	"github.com/pulsefeed/npcmind/internal/coverage"
	"github.com/pulsefeed/npcmind/internal/db"
	"github.com/pulsefeed/npcmind/internal/generator"
	"github.com/pulsefeed/npcmind/internal/processor"
	"github.com/pulsefeed/npcmind/pkg/config"
	"github.com/pulsefeed/npcmind/pkg/logging"
)

// Router sets up API routes
type Router struct {
	personas  *db.PersonaRepository
	queue     *db.QueueRepository
	gen       *generator.Generator
	proc      *processor.Processor
	reporter  *coverage.Reporter
	processor *config.ProcessorConfig
	cache     *cache.Cache
	logger    *zap.Logger
}

// NewRouter creates a new API router
func NewRouter(repo *db.Repository, redisCache *cache.Cache, gen *generator.Generator, proc *processor.Processor, reporter *coverage.Reporter, processorCfg *config.ProcessorConfig) *Router {
	return &Router{
		personas:  db.NewPersonaRepository(repo),
		queue:     db.NewQueueRepository(repo),
		gen:       gen,
		proc:      proc,
		reporter:  reporter,
		processor: processorCfg,
		cache:     redisCache,
		logger:    logging.GetLogger().With(zap.String("component", "api-router")),
	}
}

// SetupRoutes sets up all API routes
func (r *Router) SetupRoutes(engine *gin.Engine) {
	// Health check endpoints
	engine.GET("/health", r.healthHandler)
	engine.GET("/.well-known/healthcheck.json", r.healthHandler)

	// Processing trigger
	engine.POST("/process", r.processHandler)

	// Content generation and queue management
	engine.POST("/generate", r.generateHandler)
	engine.GET("/queue", r.listQueueHandler)
	engine.DELETE("/queue", r.deleteQueueHandler)
	engine.GET("/schedule", r.scheduleHandler)

	// Persona administration
	engine.GET("/personas", r.listPersonasHandler)
	engine.POST("/personas", r.createPersonaHandler)
	engine.GET("/personas/:id", r.getPersonaHandler)
	engine.PUT("/personas/:id", r.updatePersonaHandler)
	engine.DELETE("/personas/:id", r.deletePersonaHandler)
	engine.POST("/personas/:id/visual-persona", r.visualPersonaHandler)
	engine.POST("/personas/:id/reference-image", r.referenceImageHandler)
}

// healthHandler handles health check requests
func (r *Router) healthHandler(c *gin.Context) {
	c.JSON(200, gin.H{
		"status":  "OK",
		"service": "npcmind-api",
	})
}
