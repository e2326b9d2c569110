package tasks

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/Keksclan/goRawrShaper/cache"
	"github.com/Keksclan/goRawrShaper/retry"
	"github.com/benbjohnson/clock"
)

// countingRepo counts ListByProject calls and can block or fail them.
type countingRepo struct {
	*MemoryRepository

	lists   atomic.Int32
	failN   atomic.Int32
	release chan struct{}
	entered chan struct{}
}

func (r *countingRepo) ListByProject(ctx context.Context, projectID string) ([]Task, error) {
	r.lists.Add(1)
	if r.entered != nil {
		r.entered <- struct{}{}
	}
	if r.release != nil {
		<-r.release
	}
	if r.failN.Add(-1) >= 0 {
		return nil, errors.New("connection reset")
	}
	return r.MemoryRepository.ListByProject(ctx, projectID)
}

func newTestService(t *testing.T) (*Service, *countingRepo, *clock.Mock) {
	t.Helper()
	mock := clock.NewMock()
	repo := &countingRepo{MemoryRepository: NewMemoryRepository()}
	c := NewCache(cache.NewTTL[[]Task](cache.WithClock(mock)))
	n := 0
	svc := NewService(repo, c,
		WithClock(mock),
		WithRetry(retry.Config{MaxAttempts: 3, BaseDelay: time.Millisecond}),
		WithIDGenerator(func() string { n++; return fmt.Sprintf("task-%d", n) }),
	)
	return svc, repo, mock
}

func mustCreate(t *testing.T, svc *Service, projectID, title string) Task {
	t.Helper()
	task, err := svc.Create(t.Context(), NewTask{ProjectID: projectID, Title: title})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	return task
}

func TestCreateDefaults(t *testing.T) {
	svc, _, mock := newTestService(t)

	task := mustCreate(t, svc, " p1 ", "  Draft plan ")
	if task.ID != "task-1" || task.ProjectID != "p1" || task.Title != "Draft plan" {
		t.Fatalf("unexpected task %+v", task)
	}
	if task.Status != StatusTodo || task.Priority != PriorityMedium {
		t.Fatalf("expected defaults, got %s/%s", task.Status, task.Priority)
	}
	if !task.CreatedAt.Equal(mock.Now()) || !task.UpdatedAt.Equal(task.CreatedAt) {
		t.Fatalf("unexpected timestamps %v %v", task.CreatedAt, task.UpdatedAt)
	}
}

func TestCreateRejectsInvalid(t *testing.T) {
	svc, repo, _ := newTestService(t)

	_, err := svc.Create(t.Context(), NewTask{ProjectID: "p1"})
	if !errors.Is(err, ErrInvalidTask) {
		t.Fatalf("expected ErrInvalidTask, got %v", err)
	}
	if ts, _ := repo.MemoryRepository.ListByProject(t.Context(), "p1"); len(ts) != 0 {
		t.Fatal("invalid task must not be stored")
	}
}

func TestListReadsThroughCache(t *testing.T) {
	svc, repo, _ := newTestService(t)
	mustCreate(t, svc, "p1", "a")

	for range 3 {
		ts, err := svc.List(t.Context(), "p1")
		if err != nil {
			t.Fatal(err)
		}
		if len(ts) != 1 {
			t.Fatalf("expected 1 task, got %d", len(ts))
		}
	}
	if n := repo.lists.Load(); n != 1 {
		t.Fatalf("expected a single repository read, got %d", n)
	}
}

func TestListRefetchesAfterTTL(t *testing.T) {
	svc, repo, mock := newTestService(t)
	mustCreate(t, svc, "p1", "a")

	_, _ = svc.List(t.Context(), "p1")
	mock.Add(cache.DefaultTTL)
	_, _ = svc.List(t.Context(), "p1")

	if n := repo.lists.Load(); n != 2 {
		t.Fatalf("expected a second read after expiry, got %d reads", n)
	}
}

func TestListRejectsEmptyProject(t *testing.T) {
	svc, _, _ := newTestService(t)
	if _, err := svc.List(t.Context(), " "); !errors.Is(err, ErrInvalidTask) {
		t.Fatalf("expected ErrInvalidTask, got %v", err)
	}
}

func TestListRetriesTransientErrors(t *testing.T) {
	svc, repo, _ := newTestService(t)
	mustCreate(t, svc, "p1", "a")
	repo.failN.Store(2)

	ts, err := svc.List(t.Context(), "p1")
	if err != nil {
		t.Fatalf("expected retries to recover, got %v", err)
	}
	if len(ts) != 1 || repo.lists.Load() != 3 {
		t.Fatalf("got %d tasks after %d reads", len(ts), repo.lists.Load())
	}
}

func TestListGivesUpAfterMaxAttempts(t *testing.T) {
	svc, repo, _ := newTestService(t)
	repo.failN.Store(10)

	if _, err := svc.List(t.Context(), "p1"); err == nil {
		t.Fatal("expected error")
	}
	if _, ok := svc.cache.GetCachedProjectTasks("p1"); ok {
		t.Fatal("failed read must not be cached")
	}
}

func TestWritesInvalidateProject(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := t.Context()

	a := mustCreate(t, svc, "p1", "a")
	if ts, _ := svc.List(ctx, "p1"); len(ts) != 1 {
		t.Fatalf("expected 1 task, got %d", len(ts))
	}

	mustCreate(t, svc, "p1", "b")
	if ts, _ := svc.List(ctx, "p1"); len(ts) != 2 {
		t.Fatalf("create should invalidate: got %d tasks", len(ts))
	}

	done := StatusDone
	if _, err := svc.Update(ctx, a.ID, Patch{Status: &done}); err != nil {
		t.Fatal(err)
	}
	ts, _ := svc.List(ctx, "p1")
	if ts[0].Status != StatusDone {
		t.Fatalf("update should invalidate: got %s", ts[0].Status)
	}

	if err := svc.Delete(ctx, a.ID); err != nil {
		t.Fatal(err)
	}
	if ts, _ := svc.List(ctx, "p1"); len(ts) != 1 {
		t.Fatalf("delete should invalidate: got %d tasks", len(ts))
	}
}

func TestMoveInvalidatesBothProjects(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := t.Context()

	a := mustCreate(t, svc, "p1", "a")
	_, _ = svc.List(ctx, "p1")
	_, _ = svc.List(ctx, "p2")

	dest := "p2"
	if _, err := svc.Update(ctx, a.ID, Patch{ProjectID: &dest}); err != nil {
		t.Fatal(err)
	}

	if ts, _ := svc.List(ctx, "p1"); len(ts) != 0 {
		t.Fatalf("source project still lists the task: %v", ts)
	}
	if ts, _ := svc.List(ctx, "p2"); len(ts) != 1 {
		t.Fatalf("destination project misses the task: %v", ts)
	}
}

func TestUpdateAndDeleteUnknown(t *testing.T) {
	svc, _, _ := newTestService(t)
	title := "x"
	if _, err := svc.Update(t.Context(), "nope", Patch{Title: &title}); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if err := svc.Delete(t.Context(), "nope"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestUpdateRejectsInvalidPatch(t *testing.T) {
	svc, _, _ := newTestService(t)
	a := mustCreate(t, svc, "p1", "a")

	bad := Status("blocked")
	if _, err := svc.Update(t.Context(), a.ID, Patch{Status: &bad}); !errors.Is(err, ErrInvalidTask) {
		t.Fatalf("expected ErrInvalidTask, got %v", err)
	}
	got, _ := svc.Get(t.Context(), a.ID)
	if got.Status != StatusTodo {
		t.Fatalf("invalid patch must not be stored: %+v", got)
	}
}

func TestConcurrentListsShareOneRead(t *testing.T) {
	svc, repo, _ := newTestService(t)
	mustCreate(t, svc, "p1", "a")

	repo.entered = make(chan struct{}, 1)
	repo.release = make(chan struct{})

	const callers = 8
	var wg sync.WaitGroup
	errs := make(chan error, callers)
	wg.Add(1)
	go func() {
		defer wg.Done()
		_, err := svc.List(t.Context(), "p1")
		errs <- err
	}()
	<-repo.entered

	for range callers - 1 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := svc.List(t.Context(), "p1")
			errs <- err
		}()
	}
	// Give the followers time to join the in-flight read.
	time.Sleep(50 * time.Millisecond)
	close(repo.release)
	wg.Wait()
	close(errs)

	for err := range errs {
		if err != nil {
			t.Fatal(err)
		}
	}
	if n := repo.lists.Load(); n != 1 {
		t.Fatalf("expected 1 shared read, got %d", n)
	}
}

func TestReadOverlappingWriteIsNotCached(t *testing.T) {
	svc, repo, _ := newTestService(t)
	ctx := t.Context()
	a := mustCreate(t, svc, "p1", "a")

	repo.entered = make(chan struct{}, 1)
	repo.release = make(chan struct{})

	done := make(chan struct{})
	go func() {
		defer close(done)
		_, _ = svc.List(ctx, "p1")
	}()
	<-repo.entered

	svc.InvalidateProject(t.Context(), a.ProjectID)
	close(repo.release)
	<-done

	if _, ok := svc.cache.GetCachedProjectTasks("p1"); ok {
		t.Fatal("a read that overlapped an invalidation must not be cached")
	}
}

// gatedCache reads the value, then holds it until release is closed.
type gatedCache struct {
	cache.Cache
	entered chan struct{}
	release chan struct{}
}

func (c *gatedCache) Get(ctx context.Context, key string) ([]byte, bool, error) {
	v, ok, err := c.Cache.Get(ctx, key)
	c.entered <- struct{}{}
	<-c.release
	return v, ok, err
}

func TestSharedHitOverlappingWriteIsNotCached(t *testing.T) {
	l1, err := cache.NewL1(1000)
	if err != nil {
		t.Fatalf("NewL1: %v", err)
	}
	t.Cleanup(l1.Close)
	_ = l1.Set(t.Context(), ProjectKey("p1"), []byte(`[{"id":"old","project_id":"p1"}]`), time.Minute)

	shared := &gatedCache{Cache: l1, entered: make(chan struct{}, 1), release: make(chan struct{})}
	repo := &countingRepo{MemoryRepository: NewMemoryRepository()}
	svc := NewService(repo, NewCache(cache.NewTTL[[]Task]()), WithSharedCache(shared, time.Minute))

	done := make(chan struct{})
	go func() {
		defer close(done)
		_, _ = svc.List(t.Context(), "p1")
	}()
	<-shared.entered

	svc.InvalidateProject(t.Context(), "p1")
	close(shared.release)
	<-done

	if _, ok := svc.cache.GetCachedProjectTasks("p1"); ok {
		t.Fatal("a shared hit that overlapped an invalidation must not be cached")
	}
	if n := repo.lists.Load(); n != 0 {
		t.Fatalf("expected the shared hit to skip the repository, got %d reads", n)
	}
}

func TestInvalidateAll(t *testing.T) {
	svc, repo, _ := newTestService(t)
	mustCreate(t, svc, "p1", "a")
	mustCreate(t, svc, "p2", "b")
	_, _ = svc.List(t.Context(), "p1")
	_, _ = svc.List(t.Context(), "p2")

	if n := svc.InvalidateAll(t.Context()); n != 2 {
		t.Fatalf("expected 2 invalidated lists, got %d", n)
	}
	_, _ = svc.List(t.Context(), "p1")
	if n := repo.lists.Load(); n != 3 {
		t.Fatalf("expected re-read after InvalidateAll, got %d reads", n)
	}
}

func TestTransient(t *testing.T) {
	if Transient(ErrNotFound) || Transient(fmt.Errorf("wrap: %w", ErrInvalidTask)) || Transient(context.Canceled) {
		t.Fatal("permanent errors must not be retried")
	}
	if !Transient(errors.New("connection reset")) {
		t.Fatal("unknown errors should be retried")
	}
}

func TestSharedCacheServesOtherReplicas(t *testing.T) {
	l1, err := cache.NewL1(1000)
	if err != nil {
		t.Fatalf("NewL1: %v", err)
	}
	t.Cleanup(l1.Close)

	repo := &countingRepo{MemoryRepository: NewMemoryRepository()}
	replica := func() *Service {
		return NewService(repo, NewCache(cache.NewTTL[[]Task]()), WithSharedCache(l1, time.Minute))
	}
	a, b := replica(), replica()
	ctx := t.Context()

	mustCreate(t, a, "p1", "shared")
	if _, err := a.List(ctx, "p1"); err != nil {
		t.Fatalf("list on a: %v", err)
	}
	ts, err := b.List(ctx, "p1")
	if err != nil {
		t.Fatalf("list on b: %v", err)
	}
	if len(ts) != 1 || ts[0].Title != "shared" {
		t.Fatalf("unexpected list from shared cache: %+v", ts)
	}
	if n := repo.lists.Load(); n != 1 {
		t.Fatalf("expected 1 repository read, got %d", n)
	}

	// A write on a drops the shared entry; a fresh replica reads through.
	mustCreate(t, a, "p1", "second")
	ts, err = replica().List(ctx, "p1")
	if err != nil {
		t.Fatalf("list on fresh replica: %v", err)
	}
	if len(ts) != 2 {
		t.Fatalf("expected 2 tasks after write, got %d", len(ts))
	}
	if n := repo.lists.Load(); n != 2 {
		t.Fatalf("expected 2 repository reads, got %d", n)
	}

	a.InvalidateAll(ctx)
	if _, ok, _ := l1.Get(ctx, ProjectKey("p1")); ok {
		t.Fatal("InvalidateAll left the shared entry in place")
	}
}

func TestSharedCacheIgnoresUndecodableEntry(t *testing.T) {
	l1, err := cache.NewL1(1000)
	if err != nil {
		t.Fatalf("NewL1: %v", err)
	}
	t.Cleanup(l1.Close)

	repo := &countingRepo{MemoryRepository: NewMemoryRepository()}
	svc := NewService(repo, NewCache(cache.NewTTL[[]Task]()), WithSharedCache(l1, time.Minute))
	_ = l1.Set(t.Context(), ProjectKey("p1"), []byte("not json"), time.Minute)

	if _, err := svc.List(t.Context(), "p1"); err != nil {
		t.Fatalf("List: %v", err)
	}
	if n := repo.lists.Load(); n != 1 {
		t.Fatalf("expected a repository read, got %d", n)
	}
}
