package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	_ "github.com/mattn/go-sqlite3"

	"taskherd/src/internal/tasks"
)

// ErrNotFound is returned when a task id does not resolve, including the
// case of completing a task that is already completed: the completion
// UPDATE is scoped to pending rows, so a second call sees no row.
var ErrNotFound = errors.New("task not found")

type Storage struct {
	db *sql.DB
}

const schema = `
CREATE TABLE IF NOT EXISTS tasks (
	id        INTEGER PRIMARY KEY AUTOINCREMENT,
	user      TEXT NOT NULL,
	creator   TEXT NOT NULL,
	text      TEXT NOT NULL,
	deadline  TEXT NOT NULL,
	completed INTEGER NOT NULL DEFAULT 0
);
CREATE INDEX IF NOT EXISTS idx_tasks_user ON tasks(user, completed);
CREATE INDEX IF NOT EXISTS idx_tasks_deadline ON tasks(completed, deadline);
`

// New opens (creating if needed) the task database under baseDir.
func New(baseDir string) (*Storage, error) {
	if _, err := os.Stat(baseDir); os.IsNotExist(err) {
		if err := os.MkdirAll(baseDir, 0755); err != nil {
			return nil, err
		}
	}
	dsn := "file:" + filepath.Join(baseDir, "tasks.db") + "?_foreign_keys=on"
	return Open(dsn)
}

// Open connects to an explicit sqlite DSN. Tests use ":memory:".
func Open(dsn string) (*Storage, error) {
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("open task db: %w", err)
	}
	// One connection: the store is a single shared resource and sqlite
	// serializes writers anyway.
	db.SetMaxOpenConns(1)
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate task db: %w", err)
	}
	return &Storage{db: db}, nil
}

func (s *Storage) Close() error {
	return s.db.Close()
}

// Create inserts a new pending task and returns the assigned id.
func (s *Storage) Create(ctx context.Context, d tasks.Draft) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO tasks (user, creator, text, deadline, completed) VALUES (?, ?, ?, ?, 0)`,
		d.Assignee, d.Creator, d.Text, d.Deadline)
	if err != nil {
		return 0, fmt.Errorf("insert task: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("task id: %w", err)
	}
	return id, nil
}

func (s *Storage) GetByID(ctx context.Context, id int64) (*tasks.Task, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, user, creator, text, deadline, completed FROM tasks WHERE id = ?`, id)
	t, err := scanTask(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return t, err
}

// ListByAssignee returns one user's tasks with the given status. Pending
// tasks come back soonest-deadline first; completed tasks newest first.
func (s *Storage) ListByAssignee(ctx context.Context, user string, status tasks.Status) ([]*tasks.Task, error) {
	query := `SELECT id, user, creator, text, deadline, completed FROM tasks
		WHERE user = ? AND completed = ? ORDER BY deadline ` + orderFor(status)
	return s.list(ctx, query, user, completedFlag(status))
}

// ListAll returns every task with the given status across assignees,
// ordered like ListByAssignee.
func (s *Storage) ListAll(ctx context.Context, status tasks.Status) ([]*tasks.Task, error) {
	query := `SELECT id, user, creator, text, deadline, completed FROM tasks
		WHERE completed = ? ORDER BY deadline ` + orderFor(status)
	return s.list(ctx, query, completedFlag(status))
}

// ListOverdue returns pending tasks whose deadline is strictly before
// asOf, soonest first. Comparison is lexicographic, which is correct for
// ISO dates.
func (s *Storage) ListOverdue(ctx context.Context, asOf string) ([]*tasks.Task, error) {
	query := `SELECT id, user, creator, text, deadline, completed FROM tasks
		WHERE completed = 0 AND deadline < ? ORDER BY deadline ASC`
	return s.list(ctx, query, asOf)
}

// MarkCompleted flips a pending task to completed. The update only
// matches pending rows, so completion is one-way: a repeat call (or an
// unknown id) reports ErrNotFound.
func (s *Storage) MarkCompleted(ctx context.Context, id int64) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE tasks SET completed = 1 WHERE id = ? AND completed = 0`, id)
	if err != nil {
		return fmt.Errorf("complete task %d: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("complete task %d: %w", id, err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *Storage) list(ctx context.Context, query string, args ...any) ([]*tasks.Task, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query tasks: %w", err)
	}
	defer rows.Close()

	var res []*tasks.Task
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, t)
	}
	return res, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanTask(row scanner) (*tasks.Task, error) {
	var t tasks.Task
	var completed int
	if err := row.Scan(&t.ID, &t.Assignee, &t.Creator, &t.Text, &t.Deadline, &completed); err != nil {
		return nil, err
	}
	if completed != 0 {
		t.Status = tasks.StatusCompleted
	}
	return &t, nil
}

func completedFlag(status tasks.Status) int {
	if status == tasks.StatusCompleted {
		return 1
	}
	return 0
}

func orderFor(status tasks.Status) string {
	if status == tasks.StatusCompleted {
		return "DESC"
	}
	return "ASC"
}
