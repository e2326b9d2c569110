package tasks

import (
	"slices"
	"time"

	"github.com/Keksclan/goRawrShaper/cache"
)

// KeyPrefix starts every project task-list key.
const KeyPrefix = "tasks_"

// ProjectKey returns the cache key of a project's task list.
func ProjectKey(projectID string) string { return KeyPrefix + projectID }

// Cache stores per-project task lists in a TTL cache under
// [ProjectKey] keys. Lists are copied in and out so callers cannot mutate
// cached state.
type Cache struct {
	ttl *cache.TTL[[]Task]
}

// NewCache wraps c.
func NewCache(c *cache.TTL[[]Task]) *Cache {
	return &Cache{ttl: c}
}

// CacheProjectTasks stores the project's tasks with the cache's default TTL.
func (c *Cache) CacheProjectTasks(projectID string, ts []Task) {
	c.ttl.Set(ProjectKey(projectID), slices.Clone(ts))
}

// CacheProjectTasksFor stores the project's tasks for ttl.
func (c *Cache) CacheProjectTasksFor(projectID string, ts []Task, ttl time.Duration) {
	c.ttl.SetWithTTL(ProjectKey(projectID), slices.Clone(ts), ttl)
}

// GetCachedProjectTasks returns the cached list, if present and fresh.
func (c *Cache) GetCachedProjectTasks(projectID string) ([]Task, bool) {
	ts, ok := c.ttl.Get(ProjectKey(projectID))
	if !ok {
		return nil, false
	}
	return slices.Clone(ts), true
}

// InvalidateProjectTasksCache drops the project's cached list.
func (c *Cache) InvalidateProjectTasksCache(projectID string) {
	c.ttl.Invalidate(ProjectKey(projectID))
}

// InvalidateAllProjectTasks drops every cached task list and returns how
// many were dropped.
func (c *Cache) InvalidateAllProjectTasks() int {
	return c.ttl.InvalidateByPrefix(KeyPrefix)
}
