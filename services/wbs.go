package services

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"wbs/collab-client/client"
	"wbs/collab-client/clock"
	"wbs/collab-client/models"
	"wbs/collab-client/utils"
)

// TaskAPI is the part of the backend client the task layer uses.
type TaskAPI interface {
	Authenticated() bool
	GetWBS(ctx context.Context, projectID string) (*models.WBSData, error)
	CreateTask(ctx context.Context, projectID string, data models.TaskCreate) (*models.WBSTask, error)
	UpdateTask(ctx context.Context, projectID, taskID string, data models.TaskUpdate) (*models.WBSTask, error)
	DeleteTask(ctx context.Context, projectID, taskID string) (models.DeleteResult, error)
}

// WBSService holds the loaded task tree of the current project and runs
// task mutations through the save tracker.
type WBSService struct {
	api    TaskAPI
	logger *utils.Logger
	saves  *SaveTracker

	mu        sync.RWMutex
	self      string
	projectID string
	data      *models.WBSData
	loading   int
	lastErr   string
	expanded  map[string]bool
}

func NewWBSService(api TaskAPI, c clock.Clock, logger *utils.Logger) *WBSService {
	if c == nil {
		c = clock.Real()
	}
	s := &WBSService{
		api:      api,
		logger:   logger,
		expanded: make(map[string]bool),
	}
	s.saves = NewSaveTracker(c, func(status models.SaveStatus) {
		logger.Debug("Save status changed", "status", status.State, "pending", status.PendingChanges)
	})
	return s
}

// SetIdentity records the signed-in user so their own task events are
// not treated as remote changes.
func (s *WBSService) SetIdentity(email string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.self = email
}

func (s *WBSService) LoadWBS(ctx context.Context, projectID string) error {
	if !s.api.Authenticated() {
		s.setErr(client.ErrNotAuthenticated.Error())
		return ErrNotAuthenticated
	}

	s.mu.Lock()
	s.loading++
	s.lastErr = ""
	s.mu.Unlock()

	data, err := s.api.GetWBS(ctx, projectID)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.loading--
	if err != nil {
		s.lastErr = client.Detail(err)
		return fmt.Errorf("failed to load WBS for project %s: %w", projectID, err)
	}
	if s.projectID != projectID {
		s.expanded = make(map[string]bool)
	}
	s.projectID = projectID
	s.data = data
	return nil
}

func (s *WBSService) CreateTask(ctx context.Context, projectID string, data models.TaskCreate) (*models.WBSTask, error) {
	if err := data.Validate(); err != nil {
		return nil, err
	}
	if !s.api.Authenticated() {
		return nil, ErrNotAuthenticated
	}

	var task *models.WBSTask
	err := s.mutate(ctx, projectID, "create", func() error {
		var err error
		task, err = s.api.CreateTask(ctx, projectID, data)
		return err
	})
	return task, err
}

func (s *WBSService) UpdateTask(ctx context.Context, projectID, taskID string, data models.TaskUpdate) (*models.WBSTask, error) {
	if err := data.Validate(); err != nil {
		return nil, err
	}
	if !s.api.Authenticated() {
		return nil, ErrNotAuthenticated
	}

	var task *models.WBSTask
	err := s.mutate(ctx, projectID, "update", func() error {
		var err error
		task, err = s.api.UpdateTask(ctx, projectID, taskID, data)
		return err
	})
	return task, err
}

func (s *WBSService) DeleteTask(ctx context.Context, projectID, taskID string) (models.DeleteResult, error) {
	if !s.api.Authenticated() {
		return nil, ErrNotAuthenticated
	}

	var result models.DeleteResult
	err := s.mutate(ctx, projectID, "delete", func() error {
		var err error
		result, err = s.api.DeleteTask(ctx, projectID, taskID)
		return err
	})
	return result, err
}

// mutate brackets call with the save tracker. The tree is reloaded after
// a successful call; a failed reload does not undo the save.
func (s *WBSService) mutate(ctx context.Context, projectID, op string, call func() error) error {
	s.mu.Lock()
	s.loading++
	s.lastErr = ""
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		s.loading--
		s.mu.Unlock()
	}()

	s.saves.Begin()
	if err := call(); err != nil {
		detail := client.Detail(err)
		s.setErr(detail)
		s.saves.Fail(errors.New(detail))
		s.logger.Warn("Task mutation failed", "op", op, "project_id", projectID, "error", err)
		return err
	}

	if err := s.LoadWBS(ctx, projectID); err != nil {
		s.logger.Warn("Failed to reload WBS after mutation", "op", op, "project_id", projectID, "error", err)
	}
	s.saves.Succeed()
	return nil
}

// HandleRemoteEvent pulls the tree again when another user changed a task
// of the loaded project.
func (s *WBSService) HandleRemoteEvent(ctx context.Context, msg models.Message) {
	if !msg.Type.IsTaskEvent() {
		return
	}

	s.mu.RLock()
	projectID, self := s.projectID, s.self
	s.mu.RUnlock()

	if projectID == "" || msg.ProjectID != projectID {
		return
	}
	if self != "" && msg.UserEmail == self {
		return
	}

	if err := s.LoadWBS(ctx, projectID); err != nil {
		s.logger.Warn("Failed to sync remote task change", "type", msg.Type, "error", err)
		return
	}
	s.saves.MarkSynced()
}

// Data returns the loaded tree, or nil before the first load.
func (s *WBSService) Data() *models.WBSData {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.data
}

// ProjectID is the project of the loaded tree.
func (s *WBSService) ProjectID() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.projectID
}

func (s *WBSService) Loading() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.loading > 0
}

func (s *WBSService) Err() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastErr
}

func (s *WBSService) ClearError() {
	s.setErr("")
}

func (s *WBSService) ToggleExpansion(taskID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.expanded[taskID] {
		delete(s.expanded, taskID)
		return false
	}
	s.expanded[taskID] = true
	return true
}

func (s *WBSService) Expanded(taskID string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.expanded[taskID]
}

func (s *WBSService) SaveStatus() models.SaveStatus {
	return s.saves.Snapshot()
}

func (s *WBSService) setErr(message string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastErr = message
}
