package handlers

import (
	"time"

	"desalination_plant/internal/logger"
	"desalination_plant/internal/service"

	"github.com/gin-gonic/gin"

	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
)

// Handler wires the HMI HTTP layer to services and logging.
type Handler struct {
	services *service.Service
	log      *logger.Logger
	sim      FaultInjector // nil unless simulating
}

func NewHandler(services *service.Service, log *logger.Logger) *Handler {
	return &Handler{services: services, log: log}
}

// InitRoutes builds and returns the Gin router with all routes registered.
func (h *Handler) InitRoutes() *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery(), h.requestLogger)

	router.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	router.GET("/health", h.health)

	h.registerAuthRoutes(router)
	h.registerAPIRoutes(router)

	// HMI state stream, same port
	router.GET("/ws", h.wsConnect)

	return router
}

func (h *Handler) registerAuthRoutes(r *gin.Engine) {
	auth := r.Group("/auth")
	{
		auth.POST("/sign-up", h.signUp)
		auth.POST("/sign-in", h.signIn)
	}
}

func (h *Handler) registerAPIRoutes(r *gin.Engine) {
	api := r.Group("/api/v1", h.userIdMiddleware)
	{
		h.registerPlantRoutes(api)
		h.registerLogRoutes(api)
		h.registerSimRoutes(api)
	}
}

func (h *Handler) registerPlantRoutes(api *gin.RouterGroup) {
	plantAPI := api.Group("/plant")
	{
		plantAPI.POST("/start", h.command(cmdStart))
		plantAPI.POST("/stop", h.command(cmdStop))
		plantAPI.POST("/clean", h.command(cmdClean))
		plantAPI.POST("/reset", h.command(cmdReset))
		// Body example: {"membrane_pressure_bar":58,"ph":7.2}
		plantAPI.POST("/setpoints", h.setSetpoints)
		plantAPI.GET("/state", h.getState)
		plantAPI.GET("/pumps", h.getPumps)
	}
}

func (h *Handler) registerLogRoutes(api *gin.RouterGroup) {
	logs := api.Group("/logs")
	{
		logs.GET("/", h.getLogs)
	}
}

func (h *Handler) requestLogger(c *gin.Context) {
	start := time.Now()
	c.Next()
	if h.log == nil || c.Request.URL.Path == "/health" {
		return
	}
	h.log.Debugw("http_request",
		"method", c.Request.Method,
		"path", c.FullPath(),
		"status", c.Writer.Status(),
		"duration_ms", time.Since(start).Milliseconds())
}
