package services

import (
	"context"
	"fmt"
	"sync"
	"time"

	"wbs/collab-client/clock"
	"wbs/collab-client/models"
	"wbs/collab-client/utils"
)

// Credentials supplies the signed-in identity. *AuthService satisfies it.
type Credentials interface {
	Token() string
	User() (models.User, bool)
}

type WorkspaceOptions struct {
	WSURL             string
	Clock             clock.Clock
	Dialer            Dialer
	ReconnectDelay    time.Duration
	HeartbeatInterval time.Duration
	HandshakeTimeout  time.Duration
	Mirror            PresenceSink
}

// Workspace owns the collaboration session of the active project.
// Sessions are never shared between projects: activating a project tears
// the previous session down before the new one connects.
type Workspace struct {
	opts   WorkspaceOptions
	creds  Credentials
	wbs    *WBSService
	logger *utils.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	activateMu sync.Mutex

	mu       sync.Mutex
	sessions map[string]*Connection
	active   string
	closed   bool
}

func NewWorkspace(opts WorkspaceOptions, creds Credentials, wbs *WBSService, logger *utils.Logger) *Workspace {
	ctx, cancel := context.WithCancel(context.Background())
	return &Workspace{
		opts:     opts,
		creds:    creds,
		wbs:      wbs,
		logger:   logger,
		ctx:      ctx,
		cancel:   cancel,
		sessions: make(map[string]*Connection),
	}
}

// Activate switches the workspace to project. Re-activating the current
// project is a no-op. The project's task tree is loaded alongside the
// connect; a failed load does not prevent the session.
func (w *Workspace) Activate(ctx context.Context, project models.Project) error {
	if project.ProjectID == "" {
		return fmt.Errorf("%w: project id is required", ErrInvalidProject)
	}
	user, ok := w.creds.User()
	if !ok {
		return ErrNotAuthenticated
	}

	w.activateMu.Lock()
	defer w.activateMu.Unlock()

	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return ErrSessionClosed
	}
	if _, ok := w.sessions[project.ProjectID]; ok && w.active == project.ProjectID {
		w.mu.Unlock()
		return nil
	}
	previous := w.sessions
	w.sessions = make(map[string]*Connection)
	w.active = ""
	w.mu.Unlock()

	for id, conn := range previous {
		conn.Close()
		w.logger.Info("Left project", "project_id", id)
	}

	conn := NewConnection(ConnectionOptions{
		BaseURL:           w.opts.WSURL,
		ProjectID:         project.ProjectID,
		Token:             w.creds.Token(),
		User:              user,
		Clock:             w.opts.Clock,
		Dialer:            w.opts.Dialer,
		ReconnectDelay:    w.opts.ReconnectDelay,
		HeartbeatInterval: w.opts.HeartbeatInterval,
		HandshakeTimeout:  w.opts.HandshakeTimeout,
		Mirror:            w.opts.Mirror,
		OnTaskEvent:       w.onTaskEvent,
	}, w.logger)

	w.mu.Lock()
	w.sessions[project.ProjectID] = conn
	w.active = project.ProjectID
	w.mu.Unlock()

	w.wbs.SetIdentity(user.Email)
	if err := w.wbs.LoadWBS(ctx, project.ProjectID); err != nil {
		w.logger.Warn("Failed to load WBS", "project_id", project.ProjectID, "error", err)
	}

	if err := conn.Connect(ctx); err != nil {
		return fmt.Errorf("failed to open session for project %s: %w", project.ProjectID, err)
	}
	w.logger.Info("Joined project", "project_id", project.ProjectID, "name", project.Name)
	return nil
}

// Active returns the session of the active project.
func (w *Workspace) Active() (*Connection, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	conn, ok := w.sessions[w.active]
	return conn, ok
}

// Session returns the session of projectID, if it is live.
func (w *Workspace) Session(projectID string) (*Connection, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	conn, ok := w.sessions[projectID]
	return conn, ok
}

// State returns the active session's state.
func (w *Workspace) State() (models.ConnectionState, bool) {
	conn, ok := w.Active()
	if !ok {
		return models.ConnectionState{}, false
	}
	return conn.State(), true
}

// Reconnect forces the active session to reconnect now.
func (w *Workspace) Reconnect(ctx context.Context) error {
	conn, ok := w.Active()
	if !ok {
		return ErrNoActiveProject
	}
	return conn.Reconnect(ctx)
}

func (w *Workspace) WBS() *WBSService {
	return w.wbs
}

// Close tears down every session and waits for in-flight syncs.
func (w *Workspace) Close() {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return
	}
	w.closed = true
	sessions := w.sessions
	w.sessions = make(map[string]*Connection)
	w.active = ""
	w.mu.Unlock()

	for _, conn := range sessions {
		conn.Close()
	}
	w.cancel()
	w.wg.Wait()
}

// onTaskEvent runs the sync off the reader goroutine.
func (w *Workspace) onTaskEvent(msg models.Message) {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return
	}
	w.wg.Add(1)
	w.mu.Unlock()

	go func() {
		defer w.wg.Done()
		w.wbs.HandleRemoteEvent(w.ctx, msg)
	}()
}
