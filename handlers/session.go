package handlers

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"wbs/collab-client/models"
	"wbs/collab-client/services"
	"wbs/collab-client/utils"
)

// Collaboration is the live session view the handlers read.
// *services.Workspace satisfies it.
type Collaboration interface {
	State() (models.ConnectionState, bool)
	Reconnect(ctx context.Context) error
}

type OnlineUsersResponse struct {
	ProjectID string              `json:"project_id"`
	Count     int                 `json:"count"`
	Users     []models.OnlineUser `json:"users"`
}

type SessionHandler struct {
	session Collaboration
	logger  *utils.Logger
}

func NewSessionHandler(session Collaboration, logger *utils.Logger) *SessionHandler {
	return &SessionHandler{
		session: session,
		logger:  logger,
	}
}

// GetStatus handles GET /api/v1/status
func (h *SessionHandler) GetStatus(c *gin.Context) {
	state, ok := h.session.State()
	if !ok {
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"error": "No active project",
		})
		return
	}
	c.JSON(http.StatusOK, state)
}

// GetOnlineUsers handles GET /api/v1/presence/online
func (h *SessionHandler) GetOnlineUsers(c *gin.Context) {
	state, ok := h.session.State()
	if !ok {
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"error": "No active project",
		})
		return
	}

	users := state.OnlineUsers
	if users == nil {
		users = []models.OnlineUser{}
	}
	c.JSON(http.StatusOK, OnlineUsersResponse{
		ProjectID: state.ProjectID,
		Count:     len(users),
		Users:     users,
	})
}

// Reconnect handles POST /api/v1/reconnect
func (h *SessionHandler) Reconnect(c *gin.Context) {
	err := h.session.Reconnect(c.Request.Context())
	switch {
	case errors.Is(err, services.ErrNoActiveProject):
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"error": "No active project",
		})
		return
	case errors.Is(err, services.ErrSessionClosed):
		c.JSON(http.StatusConflict, gin.H{
			"error": "Session is shutting down",
		})
		return
	}

	state, _ := h.session.State()
	if err != nil {
		h.logger.Warn("Manual reconnect failed", "error", err)
		c.JSON(http.StatusBadGateway, gin.H{
			"error": err.Error(),
			"state": state,
		})
		return
	}
	c.JSON(http.StatusOK, state)
}
