package services

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"wbs/collab-client/client"
	"wbs/collab-client/clock"
	"wbs/collab-client/models"
)

type fakeTaskAPI struct {
	mu    sync.Mutex
	loads int

	authenticated bool
	getWBS        func(ctx context.Context, projectID string) (*models.WBSData, error)
	createTask    func(ctx context.Context, projectID string, data models.TaskCreate) (*models.WBSTask, error)
	updateTask    func(ctx context.Context, projectID, taskID string, data models.TaskUpdate) (*models.WBSTask, error)
	deleteTask    func(ctx context.Context, projectID, taskID string) (models.DeleteResult, error)
}

func newFakeTaskAPI() *fakeTaskAPI {
	return &fakeTaskAPI{
		authenticated: true,
		getWBS: func(_ context.Context, projectID string) (*models.WBSData, error) {
			return &models.WBSData{
				ProjectID: projectID,
				Version:   1,
				RootTasks: []*models.WBSTask{{ID: "t1", Description: "Root"}},
			}, nil
		},
	}
}

func (f *fakeTaskAPI) Authenticated() bool { return f.authenticated }

func (f *fakeTaskAPI) GetWBS(ctx context.Context, projectID string) (*models.WBSData, error) {
	f.mu.Lock()
	f.loads++
	f.mu.Unlock()
	return f.getWBS(ctx, projectID)
}

func (f *fakeTaskAPI) CreateTask(ctx context.Context, projectID string, data models.TaskCreate) (*models.WBSTask, error) {
	return f.createTask(ctx, projectID, data)
}

func (f *fakeTaskAPI) UpdateTask(ctx context.Context, projectID, taskID string, data models.TaskUpdate) (*models.WBSTask, error) {
	return f.updateTask(ctx, projectID, taskID, data)
}

func (f *fakeTaskAPI) DeleteTask(ctx context.Context, projectID, taskID string) (models.DeleteResult, error) {
	return f.deleteTask(ctx, projectID, taskID)
}

func (f *fakeTaskAPI) loadCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.loads
}

func TestCreateTaskSavesAndReloads(t *testing.T) {
	t.Parallel()

	api := newFakeTaskAPI()
	c := clock.Fake(epoch)
	svc := NewWBSService(api, c, testLogger())

	var during models.SaveStatus
	api.createTask = func(_ context.Context, projectID string, data models.TaskCreate) (*models.WBSTask, error) {
		during = svc.SaveStatus()
		c.Advance(2 * time.Second)
		return &models.WBSTask{ID: "t2", Description: data.Description}, nil
	}

	task, err := svc.CreateTask(context.Background(), "p1", models.TaskCreate{Description: "Design"})
	if err != nil {
		t.Fatalf("CreateTask: %v", err)
	}
	if task.ID != "t2" {
		t.Fatalf("unexpected task %+v", task)
	}

	if during.State != models.SaveSaving || during.PendingChanges != 1 {
		t.Fatalf("expected saving with 1 pending during the call, got %+v", during)
	}
	status := svc.SaveStatus()
	if status.State != models.SaveSaved || status.PendingChanges != 0 {
		t.Fatalf("expected saved with 0 pending, got %+v", status)
	}
	if status.LastSaved == nil || !status.LastSaved.Equal(epoch.Add(2*time.Second)) {
		t.Fatalf("unexpected last saved %v", status.LastSaved)
	}
	if api.loadCount() != 1 || svc.Data() == nil || svc.ProjectID() != "p1" {
		t.Fatalf("expected the tree to be reloaded after the save")
	}
	if svc.Loading() {
		t.Fatalf("loading flag left set")
	}
}

func TestUpdateTaskFailureRecordsError(t *testing.T) {
	t.Parallel()

	api := newFakeTaskAPI()
	api.updateTask = func(context.Context, string, string, models.TaskUpdate) (*models.WBSTask, error) {
		return nil, &client.APIError{StatusCode: 404, Detail: "Task not found"}
	}
	svc := NewWBSService(api, clock.Fake(epoch), testLogger())

	progress := 50
	_, err := svc.UpdateTask(context.Background(), "p1", "missing", models.TaskUpdate{Progress: &progress})
	var apiErr *client.APIError
	if !errors.As(err, &apiErr) || apiErr.StatusCode != 404 {
		t.Fatalf("expected the API error back, got %v", err)
	}

	status := svc.SaveStatus()
	if status.State != models.SaveError || status.Error != "Task not found" || status.PendingChanges != 0 {
		t.Fatalf("unexpected save status %+v", status)
	}
	if svc.Err() != "Task not found" {
		t.Fatalf("unexpected service error %q", svc.Err())
	}
	if api.loadCount() != 0 {
		t.Fatalf("failed mutation must not reload")
	}

	svc.ClearError()
	if svc.Err() != "" {
		t.Fatalf("ClearError did not clear")
	}
}

func TestMutationsRejectedBeforeSaving(t *testing.T) {
	t.Parallel()

	tooComplex := 11
	tests := []struct {
		name          string
		authenticated bool
		run           func(*WBSService) error
		want          error
	}{
		{
			name:          "invalid create",
			authenticated: true,
			run: func(s *WBSService) error {
				_, err := s.CreateTask(context.Background(), "p1", models.TaskCreate{Description: "x", Complexity: &tooComplex})
				return err
			},
			want: models.ErrInvalidTask,
		},
		{
			name:          "invalid update",
			authenticated: true,
			run: func(s *WBSService) error {
				empty := " "
				_, err := s.UpdateTask(context.Background(), "p1", "t1", models.TaskUpdate{Description: &empty})
				return err
			},
			want: models.ErrInvalidTask,
		},
		{
			name:          "no token",
			authenticated: false,
			run: func(s *WBSService) error {
				_, err := s.DeleteTask(context.Background(), "p1", "t1")
				return err
			},
			want: ErrNotAuthenticated,
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			api := newFakeTaskAPI()
			api.authenticated = tt.authenticated
			svc := NewWBSService(api, clock.Fake(epoch), testLogger())

			if err := tt.run(svc); !errors.Is(err, tt.want) {
				t.Fatalf("expected %v, got %v", tt.want, err)
			}
			if status := svc.SaveStatus(); status.State != models.SaveIdle || status.PendingChanges != 0 {
				t.Fatalf("rejected mutation touched save status: %+v", status)
			}
		})
	}
}

func TestReloadFailureStillCountsAsSaved(t *testing.T) {
	t.Parallel()

	api := newFakeTaskAPI()
	api.deleteTask = func(context.Context, string, string) (models.DeleteResult, error) {
		return models.DeleteResult{"message": "deleted"}, nil
	}
	api.getWBS = func(context.Context, string) (*models.WBSData, error) {
		return nil, &client.APIError{StatusCode: 500, Detail: "Failed to load WBS data"}
	}
	svc := NewWBSService(api, clock.Fake(epoch), testLogger())

	result, err := svc.DeleteTask(context.Background(), "p1", "t1")
	if err != nil {
		t.Fatalf("DeleteTask: %v", err)
	}
	if result["message"] != "deleted" {
		t.Fatalf("unexpected result %v", result)
	}
	if status := svc.SaveStatus(); status.State != models.SaveSaved {
		t.Fatalf("expected saved despite reload failure, got %+v", status)
	}
	if svc.Err() != "Failed to load WBS data" {
		t.Fatalf("reload failure not recorded: %q", svc.Err())
	}
}

func TestHandleRemoteEventSyncsOthersChanges(t *testing.T) {
	t.Parallel()

	api := newFakeTaskAPI()
	c := clock.Fake(epoch)
	svc := NewWBSService(api, c, testLogger())
	svc.SetIdentity("a@x.com")
	ctx := context.Background()

	// Nothing loaded yet.
	svc.HandleRemoteEvent(ctx, models.Message{Type: models.TypeTaskCreated, ProjectID: "p1", UserEmail: "b@x.com"})
	if api.loadCount() != 0 {
		t.Fatalf("event before any load triggered a reload")
	}

	if err := svc.LoadWBS(ctx, "p1"); err != nil {
		t.Fatalf("LoadWBS: %v", err)
	}

	ignored := []models.Message{
		{Type: models.TypeTaskUpdated, ProjectID: "p1", UserEmail: "a@x.com"},
		{Type: models.TypeTaskUpdated, ProjectID: "p2", UserEmail: "b@x.com"},
		{Type: models.TypeUserJoined, ProjectID: "p1", UserEmail: "b@x.com"},
	}
	for _, msg := range ignored {
		svc.HandleRemoteEvent(ctx, msg)
	}
	if api.loadCount() != 1 {
		t.Fatalf("ignored events triggered %d reloads", api.loadCount()-1)
	}

	c.Advance(time.Minute)
	svc.HandleRemoteEvent(ctx, models.Message{Type: models.TypeTaskDeleted, ProjectID: "p1", UserEmail: "b@x.com"})
	if api.loadCount() != 2 {
		t.Fatalf("remote change was not pulled")
	}
	status := svc.SaveStatus()
	if status.LastSynced == nil || !status.LastSynced.Equal(epoch.Add(time.Minute)) {
		t.Fatalf("unexpected last synced %v", status.LastSynced)
	}
	if status.State != models.SaveIdle {
		t.Fatalf("remote sync changed save state to %s", status.State)
	}
}

func TestExpansionResetsOnProjectChange(t *testing.T) {
	t.Parallel()

	svc := NewWBSService(newFakeTaskAPI(), clock.Fake(epoch), testLogger())
	ctx := context.Background()
	if err := svc.LoadWBS(ctx, "p1"); err != nil {
		t.Fatalf("LoadWBS: %v", err)
	}

	if !svc.ToggleExpansion("t1") || !svc.Expanded("t1") {
		t.Fatalf("expected t1 expanded")
	}
	if svc.ToggleExpansion("t1") || svc.Expanded("t1") {
		t.Fatalf("expected t1 collapsed")
	}

	svc.ToggleExpansion("t1")
	if err := svc.LoadWBS(ctx, "p1"); err != nil {
		t.Fatalf("LoadWBS: %v", err)
	}
	if !svc.Expanded("t1") {
		t.Fatalf("reloading the same project must keep expansion")
	}
	if err := svc.LoadWBS(ctx, "p2"); err != nil {
		t.Fatalf("LoadWBS: %v", err)
	}
	if svc.Expanded("t1") {
		t.Fatalf("switching projects must reset expansion")
	}
}

func TestLoadWBSWithoutToken(t *testing.T) {
	t.Parallel()

	api := newFakeTaskAPI()
	api.authenticated = false
	svc := NewWBSService(api, clock.Fake(epoch), testLogger())

	if err := svc.LoadWBS(context.Background(), "p1"); !errors.Is(err, ErrNotAuthenticated) {
		t.Fatalf("expected ErrNotAuthenticated, got %v", err)
	}
	if svc.Err() == "" {
		t.Fatalf("expected the error to be recorded")
	}
}
