package models

import (
	"fmt"
	"time"
)

// OnlineUser is a collaborator currently connected to the project session.
type OnlineUser struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Email       string    `json:"email"`
	JoinedAt    time.Time `json:"joined_at"`
	IsEditing   bool      `json:"is_editing"`
	EditingTask string    `json:"editing_task,omitempty"`
}

type ConnectionStatus string

const (
	StatusConnecting   ConnectionStatus = "connecting"
	StatusConnected    ConnectionStatus = "connected"
	StatusDisconnected ConnectionStatus = "disconnected"
	StatusError        ConnectionStatus = "error"
)

// ConnectionState is a point-in-time view of one project session.
type ConnectionState struct {
	ProjectID     string           `json:"project_id"`
	Status        ConnectionStatus `json:"status"`
	Error         string           `json:"error,omitempty"`
	LatencyMS     *int64           `json:"latency_ms,omitempty"`
	LastHeartbeat *time.Time       `json:"last_heartbeat,omitempty"`
	OnlineUsers   []OnlineUser     `json:"online_users"`
}

type SaveState string

const (
	SaveIdle    SaveState = "idle"
	SaveSaving  SaveState = "saving"
	SaveSaved   SaveState = "saved"
	SaveError   SaveState = "error"
	SavePending SaveState = "pending"
)

// SaveStatus reflects the outcome of the most recent task mutation.
type SaveStatus struct {
	State          SaveState  `json:"status"`
	LastSaved      *time.Time `json:"last_saved,omitempty"`
	LastSynced     *time.Time `json:"last_synced,omitempty"`
	PendingChanges int        `json:"pending_changes"`
	Error          string     `json:"error,omitempty"`
}

// Display folds several in-flight mutations into the pending state.
func (s SaveStatus) Display() SaveState {
	if s.State == SaveSaving && s.PendingChanges > 1 {
		return SavePending
	}
	return s.State
}

// Text renders the save indicator line.
func (s SaveStatus) Text(now time.Time) string {
	switch s.Display() {
	case SaveSaved:
		return "Saved " + sinceSaved(s.LastSaved, now)
	case SaveSaving:
		return "Saving changes..."
	case SaveError:
		return "Save failed"
	case SavePending:
		return fmt.Sprintf("%d changes pending", s.PendingChanges)
	default:
		return "No changes"
	}
}

func sinceSaved(at *time.Time, now time.Time) string {
	if at == nil {
		return "never"
	}
	minutes := int(now.Sub(*at) / time.Minute)
	switch {
	case minutes < 1:
		return "just now"
	case minutes < 60:
		return fmt.Sprintf("%dm ago", minutes)
	default:
		return fmt.Sprintf("%dh ago", minutes/60)
	}
}
