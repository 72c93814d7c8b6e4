package httpapi

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/lumisalon/salon-chat/internal/common"
	"github.com/lumisalon/salon-chat/internal/httpapi/handlers"
	"github.com/lumisalon/salon-chat/internal/httpapi/middleware"
)

func NewRouter(h *handlers.Handler, adminJWTSecret string) *gin.Engine {
	r := gin.New()
	r.HandleMethodNotAllowed = true
	r.Use(gin.Logger())
	r.Use(middleware.Recovery())
	r.Use(middleware.RequestID())

	r.NoRoute(func(c *gin.Context) {
		common.Fail(c, http.StatusNotFound, 40400, "route not found")
	})
	r.NoMethod(func(c *gin.Context) {
		common.Fail(c, http.StatusMethodNotAllowed, 40500, "method not allowed")
	})

	// liveness only, no dependency checks
	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	// chat widget surface
	r.POST("/chat", h.SendChat)
	r.GET("/chat/:session_id", h.GetHistory)
	r.DELETE("/chat/:session_id", h.ClearSession)

	// completion model selection
	r.GET("/models", h.ListModels)
	r.GET("/model", h.GetActiveModel)
	r.PUT("/model", h.SetActiveModel)

	admin := r.Group("/admin")
	admin.Use(middleware.AuthRequired(adminJWTSecret))
	admin.POST("/reindex", h.Reindex)
	admin.GET("/jobs/:job_id", h.GetIndexJob)
	admin.POST("/index/reload", h.ReloadIndex)
	admin.GET("/index/stat", h.IndexStat)

	return r
}
