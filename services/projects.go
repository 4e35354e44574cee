package services

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"wbs/collab-client/clock"
	"wbs/collab-client/db"
	"wbs/collab-client/models"
	"wbs/collab-client/utils"
)

// ProjectAPI is the part of the backend client the project layer uses.
type ProjectAPI interface {
	ListProjects(ctx context.Context) ([]models.Project, error)
	CreateProject(ctx context.Context, data models.ProjectCreate) (*models.Project, error)
}

// StateStore persists small pieces of agent state across restarts.
// *db.Store satisfies it.
type StateStore interface {
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key, value string) error
	Delete(ctx context.Context, key string) error
}

// ProjectService tracks the user's projects and the selected one.
type ProjectService struct {
	api    ProjectAPI
	store  StateStore
	clock  clock.Clock
	logger *utils.Logger

	mu       sync.RWMutex
	projects []models.Project
	current  *models.Project
	onSelect func(context.Context, models.Project) error
}

func NewProjectService(api ProjectAPI, store StateStore, c clock.Clock, logger *utils.Logger) *ProjectService {
	if c == nil {
		c = clock.Real()
	}
	return &ProjectService{api: api, store: store, clock: c, logger: logger}
}

// OnSelect registers the observer called after every selection.
func (s *ProjectService) OnSelect(fn func(context.Context, models.Project) error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onSelect = fn
}

// LoadProjects refreshes the project list. The persisted selection is
// restored when it is still listed; otherwise the first project is
// selected if nothing is.
func (s *ProjectService) LoadProjects(ctx context.Context) ([]models.Project, error) {
	list, err := s.api.ListProjects(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load projects: %w", err)
	}

	s.mu.Lock()
	s.projects = list
	current := s.current
	s.mu.Unlock()

	saved, ok, err := s.store.Get(ctx, db.KeyCurrentProject)
	if err != nil {
		s.logger.Warn("Failed to read saved project selection", "error", err)
	}
	if ok {
		if p, found := findProject(list, saved); found {
			if current == nil || current.ProjectID != p.ProjectID {
				return list, s.SelectProject(ctx, p)
			}
			return list, nil
		}
	}

	if current == nil && len(list) > 0 {
		return list, s.SelectProject(ctx, list[0])
	}
	return list, nil
}

// CreateProject creates a project, puts it first in the list and selects
// it.
func (s *ProjectService) CreateProject(ctx context.Context, data models.ProjectCreate) (*models.Project, error) {
	data.Name = strings.TrimSpace(data.Name)
	if data.Name == "" {
		return nil, fmt.Errorf("%w: name is required", ErrInvalidProject)
	}

	project, err := s.api.CreateProject(ctx, data)
	if err != nil {
		return nil, fmt.Errorf("failed to create project: %w", err)
	}
	if project.LastModified == "" {
		project.LastModified = models.FormatTimestamp(s.clock.Now())
	}

	s.mu.Lock()
	s.projects = append([]models.Project{*project}, s.projects...)
	s.mu.Unlock()

	s.logger.Info("Project created", "project_id", project.ProjectID, "name", project.Name)
	return project, s.SelectProject(ctx, *project)
}

// SelectProject makes project current, persists the choice and notifies
// the observer.
func (s *ProjectService) SelectProject(ctx context.Context, project models.Project) error {
	if project.ProjectID == "" {
		return fmt.Errorf("%w: project id is required", ErrInvalidProject)
	}

	s.mu.Lock()
	p := project
	s.current = &p
	onSelect := s.onSelect
	s.mu.Unlock()

	if err := s.store.Set(ctx, db.KeyCurrentProject, project.ProjectID); err != nil {
		s.logger.Warn("Failed to persist project selection", "project_id", project.ProjectID, "error", err)
	}

	s.logger.Info("Project selected", "project_id", project.ProjectID)
	if onSelect != nil {
		return onSelect(ctx, project)
	}
	return nil
}

// SelectByID selects a project from the loaded list.
func (s *ProjectService) SelectByID(ctx context.Context, projectID string) error {
	s.mu.RLock()
	p, ok := findProject(s.projects, projectID)
	s.mu.RUnlock()
	if !ok {
		return fmt.Errorf("%w: %s not found", ErrInvalidProject, projectID)
	}
	return s.SelectProject(ctx, p)
}

func (s *ProjectService) Projects() []models.Project {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]models.Project, len(s.projects))
	copy(out, s.projects)
	return out
}

// Current returns the selected project, if any.
func (s *ProjectService) Current() (models.Project, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.current == nil {
		return models.Project{}, false
	}
	return *s.current, true
}

func findProject(list []models.Project, id string) (models.Project, bool) {
	for _, p := range list {
		if p.ProjectID == id {
			return p, true
		}
	}
	return models.Project{}, false
}
