package client

import (
	"context"
	"net/http"

	"wbs/collab-client/models"
)

func (c *Client) ListProjects(ctx context.Context) ([]models.Project, error) {
	req, err := c.authed(request{
		method:   http.MethodGet,
		path:     "/projects/",
		fallback: "Failed to load projects",
	})
	if err != nil {
		return nil, err
	}

	var projects []models.Project
	if err := c.do(ctx, req, &projects); err != nil {
		return nil, err
	}
	return projects, nil
}

func (c *Client) CreateProject(ctx context.Context, data models.ProjectCreate) (*models.Project, error) {
	req, err := c.authed(request{
		method:   http.MethodPost,
		path:     "/projects/",
		body:     data,
		fallback: "Failed to create project",
	})
	if err != nil {
		return nil, err
	}

	var project models.Project
	if err := c.do(ctx, req, &project); err != nil {
		return nil, err
	}
	return &project, nil
}
