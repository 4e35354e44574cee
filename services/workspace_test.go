package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"wbs/collab-client/clock"
	"wbs/collab-client/models"
)

type staticCredentials struct {
	token string
	user  models.User
}

func (s staticCredentials) Token() string { return s.token }

func (s staticCredentials) User() (models.User, bool) {
	return s.user, s.token != ""
}

func newTestWorkspace(t *testing.T, s *wsServer, creds Credentials) (*Workspace, *fakeTaskAPI) {
	t.Helper()

	api := newFakeTaskAPI()
	c := clock.Fake(epoch)
	w := NewWorkspace(WorkspaceOptions{
		WSURL: s.wsURL(),
		Clock: c,
	}, creds, NewWBSService(api, c, testLogger()), testLogger())
	t.Cleanup(w.Close)
	return w, api
}

func TestWorkspaceKeepsOneSessionPerActiveProject(t *testing.T) {
	t.Parallel()

	s := newWSServer(t)
	w, api := newTestWorkspace(t, s, staticCredentials{token: "tok", user: models.User{Email: "a@x.com"}})
	ctx := context.Background()

	if err := w.Activate(ctx, models.Project{ProjectID: "p1"}); err != nil {
		t.Fatalf("Activate p1: %v", err)
	}
	if err := w.Activate(ctx, models.Project{ProjectID: "p1"}); err != nil {
		t.Fatalf("re-Activate p1: %v", err)
	}
	if got := s.handshakes(); got != 1 {
		t.Fatalf("re-activating the same project opened %d sockets", got)
	}
	if w.WBS().ProjectID() != "p1" || api.loadCount() != 1 {
		t.Fatalf("expected p1's tree to be loaded")
	}
	first := s.conn(0)

	if err := w.Activate(ctx, models.Project{ProjectID: "p2"}); err != nil {
		t.Fatalf("Activate p2: %v", err)
	}
	select {
	case <-first.done:
	case <-time.After(3 * time.Second):
		t.Fatalf("p1 session was not torn down")
	}
	if _, ok := w.Session("p1"); ok {
		t.Fatalf("p1 session still registered")
	}

	state, ok := w.State()
	if !ok || state.ProjectID != "p2" || state.Status != models.StatusConnected {
		t.Fatalf("unexpected active state %+v", state)
	}
	uris := s.requests()
	if len(uris) != 2 || uris[1] != "/ws/p2?token=tok" {
		t.Fatalf("unexpected handshakes %v", uris)
	}
}

func TestWorkspaceSyncsRemoteTaskEvents(t *testing.T) {
	t.Parallel()

	s := newWSServer(t)
	w, api := newTestWorkspace(t, s, staticCredentials{token: "tok", user: models.User{Email: "a@x.com"}})
	if err := w.Activate(context.Background(), models.Project{ProjectID: "p1"}); err != nil {
		t.Fatalf("Activate: %v", err)
	}

	s.sendRaw(0, `{"type":"task_created","project_id":"p1","user_email":"b@x.com","timestamp":"2026-03-02T09:00:00.000Z","data":{"task_id":"t5"}}`)
	waitFor(t, "remote sync", func() bool { return api.loadCount() == 2 })

	if w.WBS().SaveStatus().LastSynced == nil {
		t.Fatalf("remote sync not recorded")
	}
}

func TestWorkspaceReconnectAndClose(t *testing.T) {
	t.Parallel()

	s := newWSServer(t)
	w, _ := newTestWorkspace(t, s, staticCredentials{token: "tok", user: models.User{Email: "a@x.com"}})
	ctx := context.Background()

	if err := w.Reconnect(ctx); !errors.Is(err, ErrNoActiveProject) {
		t.Fatalf("expected ErrNoActiveProject, got %v", err)
	}
	if err := w.Activate(ctx, models.Project{ProjectID: "p1"}); err != nil {
		t.Fatalf("Activate: %v", err)
	}
	if err := w.Reconnect(ctx); err != nil {
		t.Fatalf("Reconnect: %v", err)
	}
	if got := s.handshakes(); got != 2 {
		t.Fatalf("expected 2 handshakes, got %d", got)
	}

	w.Close()
	w.Close()
	if _, ok := w.State(); ok {
		t.Fatalf("closed workspace still reports a session")
	}
	if err := w.Activate(ctx, models.Project{ProjectID: "p1"}); !errors.Is(err, ErrSessionClosed) {
		t.Fatalf("expected ErrSessionClosed, got %v", err)
	}
}

func TestWorkspaceRequiresSignIn(t *testing.T) {
	t.Parallel()

	s := newWSServer(t)
	w, _ := newTestWorkspace(t, s, staticCredentials{})

	if err := w.Activate(context.Background(), models.Project{ProjectID: "p1"}); !errors.Is(err, ErrNotAuthenticated) {
		t.Fatalf("expected ErrNotAuthenticated, got %v", err)
	}
	if s.handshakes() != 0 {
		t.Fatalf("no socket should be opened without a session")
	}
}
