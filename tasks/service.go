package tasks

import (
	"cmp"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/Keksclan/goRawrShaper/cache"
	"github.com/Keksclan/goRawrShaper/retry"
	"github.com/benbjohnson/clock"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

// ServiceOption configures a [Service].
type ServiceOption func(*Service)

// WithRetry sets the retry policy for repository reads. A nil Retryable
// is replaced by [Transient].
func WithRetry(cfg retry.Config) ServiceOption {
	return func(s *Service) { s.retry = cfg }
}

// WithClock sets the clock used for CreatedAt and UpdatedAt.
func WithClock(c clock.Clock) ServiceOption {
	return func(s *Service) { s.clock = c }
}

// WithLogger sets the service logger.
func WithLogger(l *zap.Logger) ServiceOption {
	return func(s *Service) { s.log = l }
}

// WithIDGenerator replaces the UUIDv4 generator for task IDs.
func WithIDGenerator(fn func() string) ServiceOption {
	return func(s *Service) { s.newID = fn }
}

// WithSharedCache adds a byte cache consulted after the in-process cache,
// typically a [cache.Tiered] shared by several replicas. Lists are stored
// as JSON for ttl.
func WithSharedCache(c cache.Cache, ttl time.Duration) ServiceOption {
	return func(s *Service) {
		s.shared = c
		s.sharedTTL = ttl
	}
}

// Transient reports whether a repository error may succeed on retry.
func Transient(err error) bool {
	return !errors.Is(err, ErrNotFound) &&
		!errors.Is(err, ErrInvalidTask) &&
		!errors.Is(err, context.Canceled) &&
		!errors.Is(err, context.DeadlineExceeded)
}

// Service reads project task lists through the cache and invalidates them
// on every write.
//
// Concurrent List calls for an uncached project share one repository read.
// A read that overlaps a write to the same project is returned to its
// callers but not cached, so a write is never masked by a stale list.
type Service struct {
	repo  Repository
	cache *Cache
	retry retry.Config
	clock clock.Clock
	log   *zap.Logger
	newID func() string

	shared    cache.Cache
	sharedTTL time.Duration

	sf singleflight.Group

	mu  sync.Mutex
	gen map[string]uint64
}

// NewService creates a Service.
func NewService(repo Repository, c *Cache, opts ...ServiceOption) *Service {
	s := &Service{
		repo:  repo,
		cache: c,
		retry: retry.DefaultConfig(),
		clock: clock.New(),
		log:   zap.NewNop(),
		newID: uuid.NewString,
		gen:   make(map[string]uint64),
	}
	for _, o := range opts {
		o(s)
	}
	if s.retry.Retryable == nil {
		s.retry.Retryable = Transient
	}
	return s
}

func (s *Service) generation(projectID string) uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.gen[projectID]
}

// InvalidateProject drops the project's cached list from every layer.
func (s *Service) InvalidateProject(ctx context.Context, projectID string) {
	s.mu.Lock()
	s.gen[projectID]++
	s.mu.Unlock()

	s.sf.Forget(projectID)
	s.cache.InvalidateProjectTasksCache(projectID)
	if s.shared != nil {
		if err := s.shared.Invalidate(ctx, ProjectKey(projectID)); err != nil {
			s.log.Warn("shared cache invalidation failed",
				zap.String("project_id", projectID),
				zap.Error(err),
			)
		}
	}
}

// InvalidateAll drops every cached task list and returns how many were
// dropped from the in-process cache.
func (s *Service) InvalidateAll(ctx context.Context) int {
	s.mu.Lock()
	for p := range s.gen {
		s.gen[p]++
	}
	s.mu.Unlock()

	n := s.cache.InvalidateAllProjectTasks()
	if s.shared != nil {
		if err := s.shared.InvalidateByPrefix(ctx, KeyPrefix); err != nil {
			s.log.Warn("shared cache invalidation failed", zap.Error(err))
		}
	}
	return n
}

// List returns the project's tasks, from the cache when fresh.
func (s *Service) List(ctx context.Context, projectID string) ([]Task, error) {
	if strings.TrimSpace(projectID) == "" {
		return nil, fmt.Errorf("%w: project id is required", ErrInvalidTask)
	}
	if ts, ok := s.cache.GetCachedProjectTasks(projectID); ok {
		return ts, nil
	}

	v, err, shared := s.sf.Do(projectID, func() (any, error) {
		gen := s.generation(projectID)
		if ts, ok := s.sharedGet(ctx, projectID); ok {
			if s.generation(projectID) == gen {
				s.cache.CacheProjectTasks(projectID, ts)
			}
			return ts, nil
		}

		ts, err := retry.Do(ctx, s.retry, func(ctx context.Context) ([]Task, error) {
			return s.repo.ListByProject(ctx, projectID)
		})
		if err != nil {
			return nil, err
		}
		if s.generation(projectID) == gen {
			s.cache.CacheProjectTasks(projectID, ts)
			s.sharedSet(ctx, projectID, ts)
		}
		return ts, nil
	})
	if err != nil {
		return nil, fmt.Errorf("list tasks of %q: %w", projectID, err)
	}
	if shared {
		s.log.Debug("joined in-flight task list read", zap.String("project_id", projectID))
	}
	return slices.Clone(v.([]Task)), nil
}

func (s *Service) sharedGet(ctx context.Context, projectID string) ([]Task, bool) {
	if s.shared == nil {
		return nil, false
	}
	b, ok, err := s.shared.Get(ctx, ProjectKey(projectID))
	if err != nil || !ok {
		return nil, false
	}
	var ts []Task
	if err := json.Unmarshal(b, &ts); err != nil {
		s.log.Warn("discarding undecodable shared task list",
			zap.String("project_id", projectID),
			zap.Error(err),
		)
		return nil, false
	}
	return ts, true
}

func (s *Service) sharedSet(ctx context.Context, projectID string, ts []Task) {
	if s.shared == nil {
		return
	}
	b, err := json.Marshal(ts)
	if err != nil {
		return
	}
	if err := s.shared.Set(ctx, ProjectKey(projectID), b, s.sharedTTL); err != nil {
		s.log.Warn("shared cache write failed",
			zap.String("project_id", projectID),
			zap.Error(err),
		)
	}
}

// Get returns a task by ID. It always reads the repository.
func (s *Service) Get(ctx context.Context, id string) (Task, error) {
	return retry.Do(ctx, s.retry, func(ctx context.Context) (Task, error) {
		return s.repo.Get(ctx, id)
	})
}

// Create validates and stores a new task, then invalidates its project.
func (s *Service) Create(ctx context.Context, in NewTask) (Task, error) {
	now := s.clock.Now().UTC()
	t := Task{
		ID:            s.newID(),
		ProjectID:     strings.TrimSpace(in.ProjectID),
		Title:         strings.TrimSpace(in.Title),
		Description:   in.Description,
		Status:        cmp.Or(in.Status, StatusTodo),
		Priority:      cmp.Or(in.Priority, PriorityMedium),
		AssigneeAgent: in.AssigneeAgent,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if err := Validate(t); err != nil {
		return Task{}, err
	}
	if err := s.repo.Create(ctx, t); err != nil {
		return Task{}, fmt.Errorf("create task: %w", err)
	}
	s.InvalidateProject(ctx, t.ProjectID)

	s.log.Info("task created",
		zap.String("task_id", t.ID),
		zap.String("project_id", t.ProjectID),
	)
	return t, nil
}

// Update applies p to the task. Moving a task invalidates both projects.
func (s *Service) Update(ctx context.Context, id string, p Patch) (Task, error) {
	old, err := s.repo.Get(ctx, id)
	if err != nil {
		return Task{}, fmt.Errorf("update task %q: %w", id, err)
	}

	t := p.Apply(old)
	t.ProjectID = strings.TrimSpace(t.ProjectID)
	t.Title = strings.TrimSpace(t.Title)
	t.UpdatedAt = s.clock.Now().UTC()
	if err := Validate(t); err != nil {
		return Task{}, err
	}
	if err := s.repo.Update(ctx, t); err != nil {
		return Task{}, fmt.Errorf("update task %q: %w", id, err)
	}

	s.InvalidateProject(ctx, t.ProjectID)
	if old.ProjectID != t.ProjectID {
		s.InvalidateProject(ctx, old.ProjectID)
	}
	return t, nil
}

// Delete removes the task and invalidates its project.
func (s *Service) Delete(ctx context.Context, id string) error {
	t, err := s.repo.Get(ctx, id)
	if err != nil {
		return fmt.Errorf("delete task %q: %w", id, err)
	}
	if err := s.repo.Delete(ctx, id); err != nil {
		return fmt.Errorf("delete task %q: %w", id, err)
	}
	s.InvalidateProject(ctx, t.ProjectID)
	return nil
}
