package models

import (
	"errors"
	"fmt"
	"strings"
)

var ErrInvalidTask = errors.New("invalid task")

const (
	MinComplexity = 1
	MaxComplexity = 10
	MinProgress   = 0
	MaxProgress   = 100
)

type Permission string

const (
	PermissionRead   Permission = "Read"
	PermissionEdit   Permission = "Edit"
	PermissionManage Permission = "Manage"
)

type Project struct {
	ProjectID    string     `json:"project_id"`
	Name         string     `json:"name"`
	Permission   Permission `json:"permission"`
	LastModified string     `json:"last_modified"`
}

type ProjectCreate struct {
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
}

// WBSTask is one node of a project's work breakdown tree.
type WBSTask struct {
	ID           string     `json:"id"`
	Description  string     `json:"description"`
	Owner        string     `json:"owner,omitempty"`
	StartDate    string     `json:"start_date,omitempty"`
	FinishDate   string     `json:"finish_date,omitempty"`
	Complexity   int        `json:"complexity"`
	Progress     int        `json:"progress"`
	Notes        string     `json:"notes"`
	Creator      string     `json:"creator"`
	CreatedAt    string     `json:"created_at"`
	LastEditor   string     `json:"last_editor,omitempty"`
	LastEditedAt string     `json:"last_edited_at,omitempty"`
	ParentID     string     `json:"parent_id,omitempty"`
	Children     []*WBSTask `json:"children"`
}

type WBSData struct {
	ProjectID    string     `json:"project_id"`
	Version      int        `json:"version"`
	LastModified string     `json:"last_modified"`
	RootTasks    []*WBSTask `json:"root_tasks"`
}

// Find returns the task with the given id anywhere in the tree.
func (d *WBSData) Find(id string) *WBSTask {
	if d == nil {
		return nil
	}
	var found *WBSTask
	walkTasks(d.RootTasks, func(t *WBSTask) bool {
		if t.ID == id {
			found = t
			return false
		}
		return true
	})
	return found
}

// Count returns the number of tasks in the tree.
func (d *WBSData) Count() int {
	if d == nil {
		return 0
	}
	n := 0
	walkTasks(d.RootTasks, func(*WBSTask) bool {
		n++
		return true
	})
	return n
}

// walkTasks visits tasks depth-first until visit returns false.
func walkTasks(tasks []*WBSTask, visit func(*WBSTask) bool) bool {
	for _, t := range tasks {
		if t == nil {
			continue
		}
		if !visit(t) || !walkTasks(t.Children, visit) {
			return false
		}
	}
	return true
}

type TaskCreate struct {
	Description string `json:"description"`
	ParentID    string `json:"parent_id,omitempty"`
	Owner       string `json:"owner,omitempty"`
	StartDate   string `json:"start_date,omitempty"`
	FinishDate  string `json:"finish_date,omitempty"`
	Complexity  *int   `json:"complexity,omitempty"`
	Progress    *int   `json:"progress,omitempty"`
	Notes       string `json:"notes,omitempty"`
}

func (c TaskCreate) Validate() error {
	if strings.TrimSpace(c.Description) == "" {
		return fmt.Errorf("%w: description is required", ErrInvalidTask)
	}
	return validateRanges(c.Complexity, c.Progress)
}

// TaskUpdate carries only the fields being changed.
type TaskUpdate struct {
	Description *string `json:"description,omitempty"`
	Owner       *string `json:"owner,omitempty"`
	StartDate   *string `json:"start_date,omitempty"`
	FinishDate  *string `json:"finish_date,omitempty"`
	Complexity  *int    `json:"complexity,omitempty"`
	Progress    *int    `json:"progress,omitempty"`
	Notes       *string `json:"notes,omitempty"`
}

func (u TaskUpdate) Validate() error {
	if u.Description != nil && strings.TrimSpace(*u.Description) == "" {
		return fmt.Errorf("%w: description cannot be empty", ErrInvalidTask)
	}
	return validateRanges(u.Complexity, u.Progress)
}

func validateRanges(complexity, progress *int) error {
	if complexity != nil && (*complexity < MinComplexity || *complexity > MaxComplexity) {
		return fmt.Errorf("%w: complexity must be between %d and %d", ErrInvalidTask, MinComplexity, MaxComplexity)
	}
	if progress != nil && (*progress < MinProgress || *progress > MaxProgress) {
		return fmt.Errorf("%w: progress must be between %d and %d", ErrInvalidTask, MinProgress, MaxProgress)
	}
	return nil
}

// DeleteResult is whatever the backend returns for a task deletion.
type DeleteResult map[string]any
