package client

import (
	"context"
	"net/http"
	"net/url"

	"wbs/collab-client/models"
)

func wbsPath(projectID string) string {
	return "/projects/" + url.PathEscape(projectID) + "/wbs/"
}

func taskPath(projectID, taskID string) string {
	path := "/projects/" + url.PathEscape(projectID) + "/wbs/tasks"
	if taskID != "" {
		path += "/" + url.PathEscape(taskID)
	}
	return path
}

func (c *Client) GetWBS(ctx context.Context, projectID string) (*models.WBSData, error) {
	req, err := c.authed(request{
		method:   http.MethodGet,
		path:     wbsPath(projectID),
		fallback: "Failed to load WBS data",
	})
	if err != nil {
		return nil, err
	}

	var data models.WBSData
	if err := c.do(ctx, req, &data); err != nil {
		return nil, err
	}
	return &data, nil
}

func (c *Client) CreateTask(ctx context.Context, projectID string, data models.TaskCreate) (*models.WBSTask, error) {
	req, err := c.authed(request{
		method:   http.MethodPost,
		path:     taskPath(projectID, ""),
		body:     data,
		fallback: "Failed to create task",
	})
	if err != nil {
		return nil, err
	}

	var task models.WBSTask
	if err := c.do(ctx, req, &task); err != nil {
		return nil, err
	}
	return &task, nil
}

func (c *Client) UpdateTask(ctx context.Context, projectID, taskID string, data models.TaskUpdate) (*models.WBSTask, error) {
	req, err := c.authed(request{
		method:   http.MethodPut,
		path:     taskPath(projectID, taskID),
		body:     data,
		fallback: "Failed to update task",
	})
	if err != nil {
		return nil, err
	}

	var task models.WBSTask
	if err := c.do(ctx, req, &task); err != nil {
		return nil, err
	}
	return &task, nil
}

func (c *Client) DeleteTask(ctx context.Context, projectID, taskID string) (models.DeleteResult, error) {
	req, err := c.authed(request{
		method:   http.MethodDelete,
		path:     taskPath(projectID, taskID),
		fallback: "Failed to delete task",
	})
	if err != nil {
		return nil, err
	}

	result := models.DeleteResult{}
	if err := c.do(ctx, req, &result); err != nil {
		return nil, err
	}
	return result, nil
}
