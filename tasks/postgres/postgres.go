// Package postgres stores tasks in PostgreSQL through a pgx pool. The
// schema is embedded and applied with golang-migrate.
package postgres

import (
	"context"
	"embed"
	"errors"
	"fmt"

	"github.com/Keksclan/goRawrShaper/tasks"
	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
)

//go:embed migrations/*.sql
var migrationFiles embed.FS

// Migrate brings the schema at dsn up to date. A database left dirty by an
// interrupted migration is forced back to its recorded version first.
func Migrate(dsn string, log *zap.Logger) error {
	src, err := iofs.New(migrationFiles, "migrations")
	if err != nil {
		return fmt.Errorf("migrations source: %w", err)
	}
	m, err := migrate.NewWithSourceInstance("iofs", src, dsn)
	if err != nil {
		return fmt.Errorf("migrate instance: %w", err)
	}
	defer m.Close()

	version, dirty, err := m.Version()
	if err != nil && !errors.Is(err, migrate.ErrNilVersion) {
		return fmt.Errorf("migration version: %w", err)
	}
	if dirty {
		log.Warn("database is dirty, forcing version", zap.Uint("version", version))
		if err := m.Force(int(version)); err != nil {
			return fmt.Errorf("force migration version: %w", err)
		}
	}

	switch err := m.Up(); {
	case errors.Is(err, migrate.ErrNoChange):
		log.Debug("no new migrations")
	case err != nil:
		return fmt.Errorf("apply migrations: %w", err)
	default:
		to, _, _ := m.Version()
		log.Info("migrations applied", zap.Uint("from_version", version), zap.Uint("to_version", to))
	}
	return nil
}

// Repository implements tasks.Repository on a pgx pool.
type Repository struct {
	pool *pgxpool.Pool
}

// New runs the migrations and opens a pool.
func New(ctx context.Context, dsn string, log *zap.Logger) (*Repository, error) {
	if err := Migrate(dsn, log); err != nil {
		return nil, err
	}
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("postgres pool: %w", err)
	}
	return &Repository{pool: pool}, nil
}

// Ping checks connectivity.
func (r *Repository) Ping(ctx context.Context) error { return r.pool.Ping(ctx) }

// Close closes the pool.
func (r *Repository) Close() { r.pool.Close() }

const taskColumns = `id::text, project_id, title, description, status, priority, assignee_agent, created_at, updated_at`

func scanTask(row pgx.Row) (tasks.Task, error) {
	var t tasks.Task
	err := row.Scan(&t.ID, &t.ProjectID, &t.Title, &t.Description, &t.Status, &t.Priority,
		&t.AssigneeAgent, &t.CreatedAt, &t.UpdatedAt)
	return t, err
}

func (r *Repository) ListByProject(ctx context.Context, projectID string) ([]tasks.Task, error) {
	rows, err := r.pool.Query(ctx, `
		select `+taskColumns+`
		from tasks where project_id = $1
		order by created_at, id`, projectID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]tasks.Task, 0)
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func (r *Repository) Get(ctx context.Context, id string) (tasks.Task, error) {
	t, err := scanTask(r.pool.QueryRow(ctx, `
		select `+taskColumns+`
		from tasks where id::text = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return tasks.Task{}, tasks.ErrNotFound
	}
	return t, err
}

func (r *Repository) Create(ctx context.Context, t tasks.Task) error {
	_, err := r.pool.Exec(ctx, `
		insert into tasks (
			id, project_id, title, description, status, priority, assignee_agent, created_at, updated_at
		) values (
			$1::uuid, $2, $3, $4, $5, $6, $7, $8, $9
		)`, t.ID, t.ProjectID, t.Title, t.Description, string(t.Status), string(t.Priority),
		t.AssigneeAgent, t.CreatedAt, t.UpdatedAt)
	return err
}

func (r *Repository) Update(ctx context.Context, t tasks.Task) error {
	tag, err := r.pool.Exec(ctx, `
		update tasks
		set project_id = $2, title = $3, description = $4, status = $5,
		    priority = $6, assignee_agent = $7, updated_at = $8
		where id::text = $1`, t.ID, t.ProjectID, t.Title, t.Description, string(t.Status),
		string(t.Priority), t.AssigneeAgent, t.UpdatedAt)
	return affected(tag, err)
}

func (r *Repository) Delete(ctx context.Context, id string) error {
	tag, err := r.pool.Exec(ctx, `delete from tasks where id::text = $1`, id)
	return affected(tag, err)
}

func affected(tag pgconn.CommandTag, err error) error {
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return tasks.ErrNotFound
	}
	return nil
}

var _ tasks.Repository = (*Repository)(nil)
