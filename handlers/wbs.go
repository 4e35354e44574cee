package handlers

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"wbs/collab-client/client"
	"wbs/collab-client/models"
	"wbs/collab-client/services"
	"wbs/collab-client/utils"
)

// Tasks is the task layer the handlers drive. *services.WBSService
// satisfies it.
type Tasks interface {
	Data() *models.WBSData
	SaveStatus() models.SaveStatus
	CreateTask(ctx context.Context, projectID string, data models.TaskCreate) (*models.WBSTask, error)
	UpdateTask(ctx context.Context, projectID, taskID string, data models.TaskUpdate) (*models.WBSTask, error)
	DeleteTask(ctx context.Context, projectID, taskID string) (models.DeleteResult, error)
}

// Projects is the project selection the handlers read and change.
// *services.ProjectService satisfies it.
type Projects interface {
	Projects() []models.Project
	Current() (models.Project, bool)
	SelectByID(ctx context.Context, projectID string) error
}

type SaveStatusResponse struct {
	models.SaveStatus
	Display models.SaveState `json:"display"`
	Text    string           `json:"text"`
}

type SelectProjectRequest struct {
	ProjectID string `json:"project_id" binding:"required"`
}

type WBSHandler struct {
	tasks    Tasks
	projects Projects
	logger   *utils.Logger
	now      func() time.Time
}

func NewWBSHandler(tasks Tasks, projects Projects, logger *utils.Logger) *WBSHandler {
	return &WBSHandler{
		tasks:    tasks,
		projects: projects,
		logger:   logger,
		now:      time.Now,
	}
}

// GetWBS handles GET /api/v1/wbs
func (h *WBSHandler) GetWBS(c *gin.Context) {
	data := h.tasks.Data()
	if data == nil {
		c.JSON(http.StatusNotFound, gin.H{
			"error": "WBS not loaded",
		})
		return
	}
	c.JSON(http.StatusOK, data)
}

// GetSaveStatus handles GET /api/v1/save-status
func (h *WBSHandler) GetSaveStatus(c *gin.Context) {
	status := h.tasks.SaveStatus()
	c.JSON(http.StatusOK, SaveStatusResponse{
		SaveStatus: status,
		Display:    status.Display(),
		Text:       status.Text(h.now()),
	})
}

// CreateTask handles POST /api/v1/wbs/tasks
func (h *WBSHandler) CreateTask(c *gin.Context) {
	project, ok := h.currentProject(c)
	if !ok {
		return
	}

	var req models.TaskCreate
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "Invalid request body",
			"details": err.Error(),
		})
		return
	}

	task, err := h.tasks.CreateTask(c.Request.Context(), project.ProjectID, req)
	if err != nil {
		h.mutationError(c, err, "Failed to create task")
		return
	}
	c.JSON(http.StatusCreated, task)
}

// UpdateTask handles PUT /api/v1/wbs/tasks/:id
func (h *WBSHandler) UpdateTask(c *gin.Context) {
	project, ok := h.currentProject(c)
	if !ok {
		return
	}

	var req models.TaskUpdate
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "Invalid request body",
			"details": err.Error(),
		})
		return
	}

	task, err := h.tasks.UpdateTask(c.Request.Context(), project.ProjectID, c.Param("id"), req)
	if err != nil {
		h.mutationError(c, err, "Failed to update task")
		return
	}
	c.JSON(http.StatusOK, task)
}

// DeleteTask handles DELETE /api/v1/wbs/tasks/:id
func (h *WBSHandler) DeleteTask(c *gin.Context) {
	project, ok := h.currentProject(c)
	if !ok {
		return
	}

	result, err := h.tasks.DeleteTask(c.Request.Context(), project.ProjectID, c.Param("id"))
	if err != nil {
		h.mutationError(c, err, "Failed to delete task")
		return
	}
	if result == nil {
		result = models.DeleteResult{}
	}
	c.JSON(http.StatusOK, result)
}

// ListProjects handles GET /api/v1/projects
func (h *WBSHandler) ListProjects(c *gin.Context) {
	resp := gin.H{"projects": h.projects.Projects()}
	if current, ok := h.projects.Current(); ok {
		resp["current_project_id"] = current.ProjectID
	}
	c.JSON(http.StatusOK, resp)
}

// SelectProject handles POST /api/v1/projects/select
func (h *WBSHandler) SelectProject(c *gin.Context) {
	var req SelectProjectRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "Invalid request body",
			"details": err.Error(),
		})
		return
	}

	err := h.projects.SelectByID(c.Request.Context(), req.ProjectID)
	if errors.Is(err, services.ErrInvalidProject) {
		c.JSON(http.StatusNotFound, gin.H{
			"error": "Project not found",
		})
		return
	}
	if err != nil {
		h.logger.Warn("Project selected but session failed to open", "project_id", req.ProjectID, "error", err)
		c.JSON(http.StatusAccepted, gin.H{
			"project_id": req.ProjectID,
			"warning":    err.Error(),
		})
		return
	}
	c.JSON(http.StatusOK, gin.H{"project_id": req.ProjectID})
}

func (h *WBSHandler) currentProject(c *gin.Context) (models.Project, bool) {
	project, ok := h.projects.Current()
	if !ok {
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"error": "No active project",
		})
	}
	return project, ok
}

func (h *WBSHandler) mutationError(c *gin.Context, err error, message string) {
	var apiErr *client.APIError
	switch {
	case errors.Is(err, models.ErrInvalidTask):
		c.JSON(http.StatusBadRequest, gin.H{
			"error": err.Error(),
		})
	case errors.Is(err, services.ErrNotAuthenticated), errors.Is(err, client.ErrNotAuthenticated):
		c.JSON(http.StatusUnauthorized, gin.H{
			"error": "Not authenticated",
		})
	case errors.As(err, &apiErr):
		c.JSON(http.StatusBadGateway, gin.H{
			"error":       message,
			"detail":      apiErr.Detail,
			"status_code": apiErr.StatusCode,
		})
	default:
		h.logger.Error(message, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":  message,
			"detail": err.Error(),
		})
	}
}
