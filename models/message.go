package models

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

type MessageType string

const (
	TypeTaskCreated           MessageType = "task_created"
	TypeTaskUpdated           MessageType = "task_updated"
	TypeTaskDeleted           MessageType = "task_deleted"
	TypeUserJoined            MessageType = "user_joined"
	TypeUserLeft              MessageType = "user_left"
	TypeEditingStart          MessageType = "editing_start"
	TypeEditingEnd            MessageType = "editing_end"
	TypeHeartbeat             MessageType = "heartbeat"
	TypeConnectionEstablished MessageType = "connection.established"
)

var (
	ErrUnknownMessageType = errors.New("unknown message type")
	ErrMalformedMessage   = errors.New("malformed message")
)

// TimestampLayout matches the millisecond ISO-8601 form browsers emit.
const TimestampLayout = "2006-01-02T15:04:05.000Z07:00"

// Payload is the typed body carried in a message's data field. Which
// concrete type is present is determined by the message type.
type Payload interface {
	isPayload()
}

// ProjectUser is one entry of the server's connection snapshot.
type ProjectUser struct {
	Email       string `json:"email"`
	Name        string `json:"name"`
	ConnectedAt string `json:"connected_at"`
}

type ConnectionEstablished struct {
	ProjectUsers []ProjectUser `json:"project_users"`
}

type EditingPayload struct {
	TaskID string `json:"task_id"`
}

type HeartbeatPayload struct {
	PingID string `json:"ping_id,omitempty"`
}

type TaskEventPayload struct {
	TaskID string   `json:"task_id,omitempty"`
	Task   *WBSTask `json:"task,omitempty"`
}

func (*ConnectionEstablished) isPayload() {}
func (*EditingPayload) isPayload() {}
func (*HeartbeatPayload) isPayload() {}
func (*TaskEventPayload) isPayload() {}

// payloadTypes maps each message type to a constructor for its payload.
// A nil constructor means the type carries no payload.
var payloadTypes = map[MessageType]func() Payload{
	TypeConnectionEstablished: func() Payload { return &ConnectionEstablished{} },
	TypeEditingStart:          func() Payload { return &EditingPayload{} },
	TypeEditingEnd:            func() Payload { return &EditingPayload{} },
	TypeHeartbeat:             func() Payload { return &HeartbeatPayload{} },
	TypeTaskCreated:           func() Payload { return &TaskEventPayload{} },
	TypeTaskUpdated:           func() Payload { return &TaskEventPayload{} },
	TypeTaskDeleted:           func() Payload { return &TaskEventPayload{} },
	TypeUserJoined:            nil,
	TypeUserLeft:              nil,
}

// Known reports whether t is a message type of the protocol.
func (t MessageType) Known() bool {
	_, ok := payloadTypes[t]
	return ok
}

// IsTaskEvent reports whether t is one of the task_* data events.
func (t MessageType) IsTaskEvent() bool {
	return t == TypeTaskCreated || t == TypeTaskUpdated || t == TypeTaskDeleted
}

// Message is the envelope exchanged over the project WebSocket.
type Message struct {
	Type      MessageType
	ProjectID string
	UserID    string
	UserName  string
	UserEmail string
	Timestamp string
	Payload   Payload
}

type envelope struct {
	Type      MessageType     `json:"type"`
	ProjectID string          `json:"project_id"`
	UserID    string          `json:"user_id"`
	UserName  string          `json:"user_name"`
	UserEmail string          `json:"user_email"`
	Timestamp string          `json:"timestamp"`
	Data      json.RawMessage `json:"data,omitempty"`
}

func (m Message) MarshalJSON() ([]byte, error) {
	env := envelope{
		Type:      m.Type,
		ProjectID: m.ProjectID,
		UserID:    m.UserID,
		UserName:  m.UserName,
		UserEmail: m.UserEmail,
		Timestamp: m.Timestamp,
	}
	if m.Payload != nil {
		data, err := json.Marshal(m.Payload)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal %s payload: %w", m.Type, err)
		}
		env.Data = data
	}
	return json.Marshal(env)
}

// DecodeMessage parses a wire frame into a Message with its typed payload.
func DecodeMessage(raw []byte) (Message, error) {
	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return Message{}, fmt.Errorf("%w: %v", ErrMalformedMessage, err)
	}

	newPayload, ok := payloadTypes[env.Type]
	if !ok {
		return Message{}, fmt.Errorf("%w: %q", ErrUnknownMessageType, env.Type)
	}

	msg := Message{
		Type:      env.Type,
		ProjectID: env.ProjectID,
		UserID:    env.UserID,
		UserName:  env.UserName,
		UserEmail: env.UserEmail,
		Timestamp: env.Timestamp,
	}
	if newPayload == nil {
		return msg, nil
	}

	payload := newPayload()
	if len(env.Data) > 0 && string(env.Data) != "null" {
		if err := json.Unmarshal(env.Data, payload); err != nil {
			return Message{}, fmt.Errorf("%w: %s data: %v", ErrMalformedMessage, env.Type, err)
		}
	}
	msg.Payload = payload
	return msg, nil
}

func (m Message) ConnectionEstablished() (*ConnectionEstablished, bool) {
	p, ok := m.Payload.(*ConnectionEstablished)
	return p, ok
}

func (m Message) Editing() (*EditingPayload, bool) {
	p, ok := m.Payload.(*EditingPayload)
	return p, ok
}

func (m Message) Heartbeat() (*HeartbeatPayload, bool) {
	p, ok := m.Payload.(*HeartbeatPayload)
	return p, ok
}

func (m Message) TaskEvent() (*TaskEventPayload, bool) {
	p, ok := m.Payload.(*TaskEventPayload)
	return p, ok
}

// FormatTimestamp renders t in the wire timestamp form.
func FormatTimestamp(t time.Time) string {
	return t.UTC().Format(TimestampLayout)
}

var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999Z07:00",
	"2006-01-02 15:04:05.999999999",
}

// ParseTimestamp accepts ISO-8601 timestamps with or without a zone.
// Timestamps without a zone are taken as UTC.
func ParseTimestamp(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized timestamp %q", s)
}
