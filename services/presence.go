package services

import (
	"sync"

	"wbs/collab-client/models"
)

// PresenceTracker holds the online collaborators of one project session.
// Users are keyed by email; join order is preserved.
type PresenceTracker struct {
	mu       sync.RWMutex
	users    []models.OnlineUser
	onChange func([]models.OnlineUser)
}

// NewPresenceTracker returns an empty tracker. onChange, if non-nil,
// receives a copy of the user list after every effective change.
func NewPresenceTracker(onChange func([]models.OnlineUser)) *PresenceTracker {
	return &PresenceTracker{onChange: onChange}
}

// Replace swaps the whole user list. Duplicate emails in users keep
// their first occurrence.
func (p *PresenceTracker) Replace(users []models.OnlineUser) {
	next := make([]models.OnlineUser, 0, len(users))
	seen := make(map[string]bool, len(users))
	for _, u := range users {
		if seen[u.Email] {
			continue
		}
		seen[u.Email] = true
		next = append(next, u)
	}

	p.mu.Lock()
	p.users = next
	snapshot := p.copyLocked()
	p.mu.Unlock()

	p.notify(snapshot)
}

// Join adds u unless a user with the same email is already present.
func (p *PresenceTracker) Join(u models.OnlineUser) bool {
	p.mu.Lock()
	if p.indexLocked(u.Email) >= 0 {
		p.mu.Unlock()
		return false
	}
	p.users = append(p.users, u)
	snapshot := p.copyLocked()
	p.mu.Unlock()

	p.notify(snapshot)
	return true
}

// Leave removes the user with the given email, if present.
func (p *PresenceTracker) Leave(email string) bool {
	p.mu.Lock()
	i := p.indexLocked(email)
	if i < 0 {
		p.mu.Unlock()
		return false
	}
	p.users = append(p.users[:i:i], p.users[i+1:]...)
	snapshot := p.copyLocked()
	p.mu.Unlock()

	p.notify(snapshot)
	return true
}

func (p *PresenceTracker) StartEditing(email, taskID string) bool {
	return p.update(email, func(u *models.OnlineUser) {
		u.IsEditing = true
		u.EditingTask = taskID
	})
}

func (p *PresenceTracker) StopEditing(email string) bool {
	return p.update(email, func(u *models.OnlineUser) {
		u.IsEditing = false
		u.EditingTask = ""
	})
}

func (p *PresenceTracker) update(email string, patch func(*models.OnlineUser)) bool {
	p.mu.Lock()
	i := p.indexLocked(email)
	if i < 0 {
		p.mu.Unlock()
		return false
	}
	patch(&p.users[i])
	snapshot := p.copyLocked()
	p.mu.Unlock()

	p.notify(snapshot)
	return true
}

func (p *PresenceTracker) Users() []models.OnlineUser {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.copyLocked()
}

func (p *PresenceTracker) Count() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return len(p.users)
}

// Reset empties the tracker without notifying.
func (p *PresenceTracker) Reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.users = nil
}

func (p *PresenceTracker) indexLocked(email string) int {
	for i := range p.users {
		if p.users[i].Email == email {
			return i
		}
	}
	return -1
}

func (p *PresenceTracker) copyLocked() []models.OnlineUser {
	out := make([]models.OnlineUser, len(p.users))
	copy(out, p.users)
	return out
}

func (p *PresenceTracker) notify(users []models.OnlineUser) {
	if p.onChange != nil {
		p.onChange(users)
	}
}
