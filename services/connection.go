package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"wbs/collab-client/clock"
	"wbs/collab-client/models"
	"wbs/collab-client/utils"
)

const (
	writeWait               = 10 * time.Second
	mirrorTimeout           = 2 * time.Second
	DefaultHandshakeTimeout = 10 * time.Second
)

// Dialer opens the project WebSocket. *websocket.Dialer satisfies it.
type Dialer interface {
	DialContext(ctx context.Context, urlStr string, requestHeader http.Header) (*websocket.Conn, *http.Response, error)
}

// PresenceSink receives the online-user list of a project whenever it
// changes, and is cleared when the session is torn down.
type PresenceSink interface {
	Publish(ctx context.Context, projectID string, users []models.OnlineUser) error
	Clear(ctx context.Context, projectID string) error
}

type ConnectionOptions struct {
	// BaseURL is the ws:// or wss:// origin of the backend.
	BaseURL   string
	ProjectID string
	Token     string
	User      models.User

	Clock             clock.Clock
	Dialer            Dialer
	ReconnectDelay    time.Duration
	HeartbeatInterval time.Duration
	HandshakeTimeout  time.Duration

	Mirror      PresenceSink
	OnTaskEvent func(models.Message)
}

// Connection is the collaboration session of one project. It owns at
// most one socket at a time, its heartbeat and its reconnect timer.
//
// Every connect attempt and every explicit close starts a new
// generation. Socket events, heartbeats and retries created under an
// older generation are ignored, so a manual reconnect can never leave a
// second socket or a second scheduled retry behind.
type Connection struct {
	opts      ConnectionOptions
	logger    *utils.Logger
	clock     clock.Clock
	dialer    Dialer
	presence  *PresenceTracker
	heartbeat *Heartbeat
	reconnect *ReconnectPolicy
	routes    map[models.MessageType]func(models.Message)

	ctx    context.Context
	cancel context.CancelFunc

	mu         sync.Mutex
	status     models.ConnectionStatus
	lastErr    string
	conn       *websocket.Conn
	generation uint64
	closed     bool

	writeMu sync.Mutex

	// mirrorMu orders presence publishes against the final Clear.
	mirrorMu     sync.Mutex
	mirrorClosed bool
}

func NewConnection(opts ConnectionOptions, logger *utils.Logger) *Connection {
	if opts.Clock == nil {
		opts.Clock = clock.Real()
	}
	if opts.HandshakeTimeout <= 0 {
		opts.HandshakeTimeout = DefaultHandshakeTimeout
	}
	if opts.Dialer == nil {
		opts.Dialer = &websocket.Dialer{
			Proxy:            http.ProxyFromEnvironment,
			HandshakeTimeout: opts.HandshakeTimeout,
		}
	}

	ctx, cancel := context.WithCancel(context.Background())
	c := &Connection{
		opts:      opts,
		logger:    logger.With("project_id", opts.ProjectID),
		clock:     opts.Clock,
		dialer:    opts.Dialer,
		heartbeat: NewHeartbeat(opts.Clock, opts.HeartbeatInterval),
		reconnect: NewReconnectPolicy(opts.Clock, opts.ReconnectDelay),
		ctx:       ctx,
		cancel:    cancel,
		status:    models.StatusDisconnected,
	}
	c.presence = NewPresenceTracker(c.mirrorPresence)
	c.routes = c.buildRoutes()
	return c
}

// URL is the socket address for this session.
func (c *Connection) URL() string {
	return strings.TrimRight(c.opts.BaseURL, "/") +
		"/ws/" + url.PathEscape(c.opts.ProjectID) +
		"?token=" + url.QueryEscape(c.opts.Token)
}

func (c *Connection) ProjectID() string {
	return c.opts.ProjectID
}

func (c *Connection) Presence() *PresenceTracker {
	return c.presence
}

// Connect opens the socket. It is a no-op while a socket is open or
// being opened. A failed dial is retried after the reconnect delay,
// except when the server rejects the token.
func (c *Connection) Connect(ctx context.Context) error {
	if c.opts.ProjectID == "" || c.opts.Token == "" || c.opts.User.Email == "" {
		return ErrMissingCredentials
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrSessionClosed
	}
	if c.status == models.StatusConnected || c.status == models.StatusConnecting {
		c.mu.Unlock()
		return nil
	}
	gen := c.beginAttemptLocked()
	c.mu.Unlock()

	return c.dial(ctx, gen)
}

// Reconnect closes the current socket, drops any scheduled retry and
// connects again immediately.
func (c *Connection) Reconnect(ctx context.Context) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrSessionClosed
	}
	conn := c.detachLocked()
	c.mu.Unlock()

	c.closeSocket(conn)
	c.logger.Info("Manual reconnect requested")
	return c.Connect(ctx)
}

// Close tears the session down: pending retry and heartbeat are
// cancelled, the socket is closed and mirrored presence is cleared.
// Close is idempotent.
func (c *Connection) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	conn := c.detachLocked()
	c.mu.Unlock()

	c.cancel()
	c.closeSocket(conn)

	if c.opts.Mirror != nil {
		c.mirrorMu.Lock()
		c.mirrorClosed = true
		ctx, cancel := context.WithTimeout(context.Background(), mirrorTimeout)
		if err := c.opts.Mirror.Clear(ctx, c.opts.ProjectID); err != nil {
			c.logger.Warn("Failed to clear mirrored presence", "error", err)
		}
		cancel()
		c.mirrorMu.Unlock()
	}

	c.logger.Info("Collaboration session closed")
	return nil
}

// SendMessage fills in project, identity and timestamp and sends msg if
// the socket is open. It reports whether the message went out.
func (c *Connection) SendMessage(msg models.Message) bool {
	c.mu.Lock()
	gen := c.generation
	c.mu.Unlock()
	return c.sendFor(gen, msg)
}

// State returns a snapshot of the session.
func (c *Connection) State() models.ConnectionState {
	c.mu.Lock()
	status, lastErr := c.status, c.lastErr
	c.mu.Unlock()

	state := models.ConnectionState{
		ProjectID:   c.opts.ProjectID,
		Status:      status,
		Error:       lastErr,
		OnlineUsers: c.presence.Users(),
	}
	if latency, ok := c.heartbeat.Latency(); ok {
		ms := latency.Milliseconds()
		state.LatencyMS = &ms
	}
	if last := c.heartbeat.LastHeartbeat(); !last.IsZero() {
		state.LastHeartbeat = &last
	}
	return state
}

func (c *Connection) Status() models.ConnectionStatus {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.status
}

// ReconnectPending reports whether a retry is scheduled.
func (c *Connection) ReconnectPending() bool {
	return c.reconnect.Pending()
}

func (c *Connection) beginAttemptLocked() uint64 {
	c.generation++
	c.status = models.StatusConnecting
	c.lastErr = ""
	c.reconnect.Cancel()
	return c.generation
}

// detachLocked ends the current generation and hands back its socket
// for closing outside the lock.
func (c *Connection) detachLocked() *websocket.Conn {
	c.generation++
	c.reconnect.Cancel()
	c.heartbeat.Stop()
	conn := c.conn
	c.conn = nil
	c.status = models.StatusDisconnected
	return conn
}

func (c *Connection) dial(ctx context.Context, gen uint64) error {
	if claims, err := InspectToken(c.opts.Token); err == nil && claims.Expired(c.clock.Now()) {
		c.fail(gen, "Session expired, please sign in again")
		return ErrTokenExpired
	}

	conn, resp, err := c.dialer.DialContext(ctx, c.URL(), nil)
	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}
	if err != nil {
		if resp != nil && (resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden) {
			c.fail(gen, "Authentication failed")
			return fmt.Errorf("%w: %s", ErrAuthRejected, resp.Status)
		}
		c.logger.Warn("Failed to connect WebSocket", "generation", gen, "error", err)
		c.lost(gen, "Failed to establish connection")
		return fmt.Errorf("failed to connect to project %s: %w", c.opts.ProjectID, err)
	}

	c.mu.Lock()
	if c.closed || gen != c.generation {
		closed := c.closed
		c.mu.Unlock()
		conn.Close()
		if closed {
			return ErrSessionClosed
		}
		return nil
	}
	c.conn = conn
	c.status = models.StatusConnected
	c.lastErr = ""
	c.heartbeat.Start(func(msg models.Message) bool {
		return c.sendFor(gen, msg)
	})
	c.mu.Unlock()

	c.logger.Info("WebSocket connected", "generation", gen)
	go c.readLoop(gen, conn)
	return nil
}

func (c *Connection) readLoop(gen uint64, conn *websocket.Conn) {
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			conn.Close()
			c.handleReadError(gen, err)
			return
		}
		c.handleFrame(gen, data)
	}
}

func (c *Connection) handleFrame(gen uint64, data []byte) {
	msg, err := models.DecodeMessage(data)
	if errors.Is(err, models.ErrUnknownMessageType) {
		c.logger.Debug("Ignoring WebSocket message", "error", err)
		return
	}
	if err != nil {
		c.logger.Warn("Dropping malformed WebSocket message", "error", err)
		return
	}

	c.mu.Lock()
	stale := gen != c.generation
	c.mu.Unlock()
	if stale {
		return
	}

	if route, ok := c.routes[msg.Type]; ok {
		route(msg)
	}
}

// handleReadError classifies the end of a socket. A close frame from
// the server is a clean close; anything else, including gorilla's
// synthesized 1006, is a drop and gets a retry.
func (c *Connection) handleReadError(gen uint64, err error) {
	var closeErr *websocket.CloseError
	if errors.As(err, &closeErr) && closeErr.Code != websocket.CloseAbnormalClosure {
		c.mu.Lock()
		if gen != c.generation {
			c.mu.Unlock()
			return
		}
		c.conn = nil
		c.status = models.StatusDisconnected
		c.heartbeat.Stop()
		c.mu.Unlock()

		c.logger.Info("WebSocket closed", "code", closeErr.Code, "reason", closeErr.Text)
		return
	}

	c.mu.Lock()
	stale := gen != c.generation
	c.mu.Unlock()
	if stale {
		return
	}
	c.logger.Warn("WebSocket connection lost", "generation", gen, "error", err)
	c.lost(gen, "Connection failed")
}

// lost handles an unclean end of generation gen and arms one retry.
func (c *Connection) lost(gen uint64, message string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed || gen != c.generation {
		return
	}
	c.conn = nil
	c.status = models.StatusDisconnected
	c.lastErr = message
	c.heartbeat.Stop()
	if c.reconnect.Schedule(gen, c.retry) {
		c.logger.Info("Reconnect scheduled", "generation", gen, "delay", c.reconnect.Delay().String())
	}
}

// fail records an error that must not be retried.
func (c *Connection) fail(gen uint64, message string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if gen != c.generation {
		return
	}
	c.conn = nil
	c.status = models.StatusError
	c.lastErr = message
	c.heartbeat.Stop()
	c.logger.Error("Collaboration session failed", "error", message)
}

func (c *Connection) retry(gen uint64) {
	c.mu.Lock()
	if c.closed || gen != c.generation || c.status != models.StatusDisconnected {
		c.mu.Unlock()
		return
	}
	next := c.beginAttemptLocked()
	c.mu.Unlock()

	c.logger.Info("Reconnecting", "generation", next)
	ctx, cancel := context.WithTimeout(c.ctx, c.opts.HandshakeTimeout)
	defer cancel()
	if err := c.dial(ctx, next); err != nil {
		c.logger.Warn("Reconnect attempt failed", "error", err)
	}
}

func (c *Connection) sendFor(gen uint64, msg models.Message) bool {
	c.mu.Lock()
	if gen != c.generation || c.status != models.StatusConnected || c.conn == nil {
		c.mu.Unlock()
		return false
	}
	conn := c.conn
	c.mu.Unlock()

	c.stamp(&msg)
	data, err := json.Marshal(msg)
	if err != nil {
		c.logger.Error("Failed to encode outbound message", "type", msg.Type, "error", err)
		return false
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
	if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
		c.logger.Debug("Failed to send message", "type", msg.Type, "error", err)
		return false
	}
	return true
}

// stamp fills in the envelope fields every outbound message carries.
func (c *Connection) stamp(msg *models.Message) {
	if msg.Type == "" {
		msg.Type = models.TypeHeartbeat
	}
	msg.ProjectID = c.opts.ProjectID
	msg.UserID = c.opts.User.Email
	msg.UserName = c.opts.User.DisplayName()
	msg.UserEmail = c.opts.User.Email
	if msg.Timestamp == "" {
		msg.Timestamp = models.FormatTimestamp(c.clock.Now())
	}
}

func (c *Connection) closeSocket(conn *websocket.Conn) {
	if conn == nil {
		return
	}
	_ = conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(time.Second))
	conn.Close()
}

func (c *Connection) mirrorPresence(users []models.OnlineUser) {
	if c.opts.Mirror == nil {
		return
	}
	c.mirrorMu.Lock()
	defer c.mirrorMu.Unlock()
	if c.mirrorClosed {
		return
	}
	ctx, cancel := context.WithTimeout(c.ctx, mirrorTimeout)
	defer cancel()
	if err := c.opts.Mirror.Publish(ctx, c.opts.ProjectID, users); err != nil {
		c.logger.Warn("Failed to mirror presence", "error", err)
	}
}
