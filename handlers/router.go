package handlers

import (
	"github.com/gin-gonic/gin"

	"wbs/collab-client/middleware"
	"wbs/collab-client/utils"
)

// NewRouter wires the local status API. A non-empty secret puts
// /api/v1 behind the bearer guard; /health stays open.
func NewRouter(session *SessionHandler, wbs *WBSHandler, secret string, logger *utils.Logger) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.Logger(logger))

	router.GET("/health", HealthCheck)

	v1 := router.Group("/api/v1")
	v1.Use(middleware.Auth(secret))
	{
		v1.GET("/status", session.GetStatus)
		v1.GET("/presence/online", session.GetOnlineUsers)
		v1.POST("/reconnect", session.Reconnect)

		v1.GET("/save-status", wbs.GetSaveStatus)

		tasks := v1.Group("/wbs")
		{
			tasks.GET("", wbs.GetWBS)
			tasks.POST("/tasks", wbs.CreateTask)
			tasks.PUT("/tasks/:id", wbs.UpdateTask)
			tasks.DELETE("/tasks/:id", wbs.DeleteTask)
		}

		projects := v1.Group("/projects")
		{
			projects.GET("", wbs.ListProjects)
			projects.POST("/select", wbs.SelectProject)
		}
	}

	return router
}
