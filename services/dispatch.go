package services

import (
	"time"

	"wbs/collab-client/models"
)

// buildRoutes maps every inbound message type the session reacts to.
// Types missing here are read and ignored.
func (c *Connection) buildRoutes() map[models.MessageType]func(models.Message) {
	return map[models.MessageType]func(models.Message){
		models.TypeConnectionEstablished: c.onConnectionEstablished,
		models.TypeUserJoined:            c.onUserJoined,
		models.TypeUserLeft:              c.onUserLeft,
		models.TypeEditingStart:          c.onEditingStart,
		models.TypeEditingEnd:            c.onEditingEnd,
		models.TypeHeartbeat:             c.heartbeat.Observe,
		models.TypeTaskCreated:           c.forwardTaskEvent,
		models.TypeTaskUpdated:           c.forwardTaskEvent,
		models.TypeTaskDeleted:           c.forwardTaskEvent,
	}
}

// onConnectionEstablished replaces presence with the server's snapshot.
// A frame without a user list leaves presence alone.
func (c *Connection) onConnectionEstablished(msg models.Message) {
	p, ok := msg.ConnectionEstablished()
	if !ok || p == nil || p.ProjectUsers == nil {
		return
	}

	users := make([]models.OnlineUser, 0, len(p.ProjectUsers))
	for _, pu := range p.ProjectUsers {
		users = append(users, models.OnlineUser{
			ID:       pu.Email,
			Name:     pu.Name,
			Email:    pu.Email,
			JoinedAt: c.parseTime(pu.ConnectedAt),
		})
	}
	c.presence.Replace(users)
	c.logger.Debug("Presence snapshot received", "users", len(users))
}

func (c *Connection) onUserJoined(msg models.Message) {
	if msg.UserEmail == "" {
		return
	}
	joined := c.presence.Join(models.OnlineUser{
		ID:       msg.UserID,
		Name:     msg.UserName,
		Email:    msg.UserEmail,
		JoinedAt: c.parseTime(msg.Timestamp),
	})
	if joined {
		c.logger.Debug("User joined", "email", msg.UserEmail)
	}
}

func (c *Connection) onUserLeft(msg models.Message) {
	if c.presence.Leave(msg.UserEmail) {
		c.logger.Debug("User left", "email", msg.UserEmail)
	}
}

func (c *Connection) onEditingStart(msg models.Message) {
	p, ok := msg.Editing()
	if !ok || p == nil {
		return
	}
	c.presence.StartEditing(msg.UserEmail, p.TaskID)
}

func (c *Connection) onEditingEnd(msg models.Message) {
	c.presence.StopEditing(msg.UserEmail)
}

func (c *Connection) forwardTaskEvent(msg models.Message) {
	if c.opts.OnTaskEvent != nil {
		c.opts.OnTaskEvent(msg)
	}
}

// parseTime reads a wire timestamp, falling back to the session clock.
func (c *Connection) parseTime(s string) time.Time {
	if s != "" {
		if t, err := models.ParseTimestamp(s); err == nil {
			return t
		}
	}
	return c.clock.Now()
}
