package services

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/redis/go-redis/v9"

	"wbs/collab-client/models"
	"wbs/collab-client/utils"
)

const (
	presenceKeyPrefix = "wbs:presence:"
	activeProjectsKey = "wbs:active_projects"

	DefaultPresenceTTL = 120 * time.Second
)

// RedisPresenceMirror publishes each project's online users to Redis so
// other local tools can read them. Entries expire on their own if the
// agent dies without clearing them.
type RedisPresenceMirror struct {
	redis  *redis.Client
	logger *utils.Logger
	ttl    time.Duration
}

func NewRedisPresenceMirror(redisClient *redis.Client, logger *utils.Logger) *RedisPresenceMirror {
	return &RedisPresenceMirror{
		redis:  redisClient,
		logger: logger,
		ttl:    DefaultPresenceTTL,
	}
}

func (m *RedisPresenceMirror) SetPresenceTTL(ttl time.Duration) {
	if ttl > 0 {
		m.ttl = ttl
	}
}

func presenceKey(projectID string) string {
	return presenceKeyPrefix + projectID
}

// Publish replaces the mirrored user list of a project.
func (m *RedisPresenceMirror) Publish(ctx context.Context, projectID string, users []models.OnlineUser) error {
	key := presenceKey(projectID)

	fields := make(map[string]interface{}, len(users))
	for _, u := range users {
		data, err := json.Marshal(u)
		if err != nil {
			return fmt.Errorf("failed to marshal presence for %s: %w", u.Email, err)
		}
		fields[u.Email] = data
	}

	pipe := m.redis.TxPipeline()
	pipe.Del(ctx, key)
	if len(fields) > 0 {
		pipe.HSet(ctx, key, fields)
		pipe.Expire(ctx, key, m.ttl)
		pipe.SAdd(ctx, activeProjectsKey, projectID)
		pipe.Expire(ctx, activeProjectsKey, m.ttl*2)
	} else {
		pipe.SRem(ctx, activeProjectsKey, projectID)
	}

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to publish presence: %w", err)
	}

	m.logger.Debug("Mirrored presence", "project_id", projectID, "users", len(users))
	return nil
}

// Snapshot reads the mirrored users of a project, oldest join first.
func (m *RedisPresenceMirror) Snapshot(ctx context.Context, projectID string) ([]models.OnlineUser, error) {
	entries, err := m.redis.HGetAll(ctx, presenceKey(projectID)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read presence: %w", err)
	}

	users := make([]models.OnlineUser, 0, len(entries))
	for email, data := range entries {
		var u models.OnlineUser
		if err := json.Unmarshal([]byte(data), &u); err != nil {
			m.logger.Warn("Skipping unreadable presence entry", "project_id", projectID, "email", email, "error", err)
			continue
		}
		users = append(users, u)
	}

	sort.Slice(users, func(i, j int) bool {
		if users[i].JoinedAt.Equal(users[j].JoinedAt) {
			return users[i].Email < users[j].Email
		}
		return users[i].JoinedAt.Before(users[j].JoinedAt)
	})
	return users, nil
}

// ActiveProjects lists projects with mirrored presence. Projects whose
// entry has expired are pruned from the index.
func (m *RedisPresenceMirror) ActiveProjects(ctx context.Context) ([]string, error) {
	projectIDs, err := m.redis.SMembers(ctx, activeProjectsKey).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to get active projects: %w", err)
	}
	if len(projectIDs) == 0 {
		return []string{}, nil
	}

	pipe := m.redis.Pipeline()
	cmds := make([]*redis.IntCmd, len(projectIDs))
	for i, id := range projectIDs {
		cmds[i] = pipe.Exists(ctx, presenceKey(id))
	}
	if _, err := pipe.Exec(ctx); err != nil && err != redis.Nil {
		return nil, fmt.Errorf("failed to check presence keys: %w", err)
	}

	active := make([]string, 0, len(projectIDs))
	var expired []interface{}
	for i, cmd := range cmds {
		if n, err := cmd.Result(); err == nil && n > 0 {
			active = append(active, projectIDs[i])
		} else {
			expired = append(expired, projectIDs[i])
		}
	}
	if len(expired) > 0 {
		if err := m.redis.SRem(ctx, activeProjectsKey, expired...).Err(); err != nil {
			m.logger.Warn("Failed to prune active projects", "error", err)
		}
	}

	sort.Strings(active)
	return active, nil
}

// Clear removes a project's mirrored presence.
func (m *RedisPresenceMirror) Clear(ctx context.Context, projectID string) error {
	pipe := m.redis.Pipeline()
	pipe.Del(ctx, presenceKey(projectID))
	pipe.SRem(ctx, activeProjectsKey, projectID)

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to clear presence: %w", err)
	}

	m.logger.Info("Cleared mirrored presence", "project_id", projectID)
	return nil
}
