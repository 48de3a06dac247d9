package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/hylla/stamp/internal/app"
	"github.com/hylla/stamp/internal/domain"
	_ "modernc.org/sqlite"
)

// driverName defines a package constant value.
const driverName = "sqlite"

// tsLayout is fixed-width so stored timestamps sort correctly as text.
const tsLayout = "2006-01-02T15:04:05.000000000Z07:00"

// Repository stores the event log and the task and tag catalogs in one sqlite database.
type Repository struct {
	db *sql.DB
}

// Open opens the requested operation.
func Open(path string) (*Repository, error) {
	if strings.TrimSpace(path) == "" {
		return nil, errors.New("sqlite path is required")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create sqlite dir: %w", err)
	}
	db, err := sql.Open(driverName, path+"?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	repo := &Repository{db: db}
	if err := repo.migrate(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return repo, nil
}

// OpenInMemory opens a private in-memory database pinned to a single connection.
func OpenInMemory() (*Repository, error) {
	db, err := sql.Open(driverName, ":memory:?_pragma=foreign_keys(1)")
	if err != nil {
		return nil, fmt.Errorf("open sqlite memory: %w", err)
	}
	db.SetMaxOpenConns(1)
	repo := &Repository{db: db}
	if err := repo.migrate(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return repo, nil
}

// Close closes the requested operation.
func (r *Repository) Close() error {
	return r.db.Close()
}

// migrate handles migrate.
func (r *Repository) migrate(ctx context.Context) error {
	stmts := []string{
		`PRAGMA foreign_keys = ON;`,
		`CREATE TABLE IF NOT EXISTS tags (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			name TEXT NOT NULL UNIQUE
		);`,
		`CREATE TABLE IF NOT EXISTS tasks (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			name TEXT NOT NULL,
			tags TEXT NOT NULL DEFAULT '',
			created_at TEXT NOT NULL,
			updated_at TEXT NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS timestamps (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			task INTEGER NOT NULL,
			timestamp TEXT NOT NULL,
			type INTEGER NOT NULL CHECK (type IN (0, 1)),
			FOREIGN KEY(task) REFERENCES tasks(id) ON DELETE CASCADE
		);`,
		`CREATE INDEX IF NOT EXISTS idx_timestamps_task_ts ON timestamps(task, timestamp, id);`,
		`CREATE INDEX IF NOT EXISTS idx_timestamps_ts ON timestamps(timestamp, id);`,
	}
	for _, stmt := range stmts {
		if _, err := r.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migrate sqlite: %w", err)
		}
	}
	return nil
}

// ListEvents lists events in (timestamp, id) order.
func (r *Repository) ListEvents(ctx context.Context, filter app.EventFilter) ([]domain.TimestampEvent, error) {
	var (
		where []string
		args  []any
	)
	if filter.TaskID != nil {
		where = append(where, "task = ?")
		args = append(args, int64(*filter.TaskID))
	}
	if filter.From != nil {
		where = append(where, "timestamp >= ?")
		args = append(args, ts(*filter.From))
	}
	if filter.To != nil {
		where = append(where, "timestamp <= ?")
		args = append(args, ts(*filter.To))
	}
	query := `SELECT id, task, timestamp, type FROM timestamps`
	if len(where) > 0 {
		query += ` WHERE ` + strings.Join(where, " AND ")
	}
	query += ` ORDER BY timestamp ASC, id ASC`

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]domain.TimestampEvent, 0)
	for rows.Next() {
		ev, err := scanEvent(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, ev)
	}
	return out, rows.Err()
}

// GetEvent returns event.
func (r *Repository) GetEvent(ctx context.Context, id domain.EventID) (domain.TimestampEvent, error) {
	row := r.db.QueryRowContext(ctx, `SELECT id, task, timestamp, type FROM timestamps WHERE id = ?`, int64(id))
	return scanEvent(row)
}

// CreateEvent inserts an event. A zero id lets sqlite assign the next one.
func (r *Repository) CreateEvent(ctx context.Context, ev domain.TimestampEvent) (domain.EventID, error) {
	res, err := r.db.ExecContext(ctx,
		`INSERT INTO timestamps(id, task, timestamp, type) VALUES(?, ?, ?, ?)`,
		nullableID(int64(ev.ID)), int64(ev.Task), ts(ev.Timestamp), int(ev.Type),
	)
	if err != nil {
		return 0, translateWriteErr(err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, err
	}
	return domain.EventID(id), nil
}

// UpdateEvent updates event.
func (r *Repository) UpdateEvent(ctx context.Context, id domain.EventID, at time.Time, typ domain.EventType) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE timestamps SET timestamp = ?, type = ? WHERE id = ?`,
		ts(at), int(typ), int64(id),
	)
	if err != nil {
		return translateWriteErr(err)
	}
	return translateNoRows(res)
}

// DeleteEvent deletes event.
func (r *Repository) DeleteEvent(ctx context.Context, id domain.EventID) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM timestamps WHERE id = ?`, int64(id))
	if err != nil {
		return err
	}
	return translateNoRows(res)
}

// ListTasks lists tasks ordered by id.
func (r *Repository) ListTasks(ctx context.Context) ([]domain.Task, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT id, name, tags, created_at, updated_at FROM tasks ORDER BY id ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]domain.Task, 0)
	for rows.Next() {
		task, err := scanTask(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, task)
	}
	return out, rows.Err()
}

// GetTask returns task.
func (r *Repository) GetTask(ctx context.Context, id domain.TaskID) (domain.Task, error) {
	row := r.db.QueryRowContext(ctx, `SELECT id, name, tags, created_at, updated_at FROM tasks WHERE id = ?`, int64(id))
	return scanTask(row)
}

// CreateTask creates task.
func (r *Repository) CreateTask(ctx context.Context, t domain.Task) (domain.TaskID, error) {
	res, err := r.db.ExecContext(ctx,
		`INSERT INTO tasks(id, name, tags, created_at, updated_at) VALUES(?, ?, ?, ?, ?)`,
		nullableID(int64(t.ID)), t.Name, t.Tags.String(), ts(t.CreatedAt), ts(t.UpdatedAt),
	)
	if err != nil {
		return 0, translateWriteErr(err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, err
	}
	return domain.TaskID(id), nil
}

// UpdateTask updates task.
func (r *Repository) UpdateTask(ctx context.Context, t domain.Task) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE tasks SET name = ?, tags = ?, updated_at = ? WHERE id = ?`,
		t.Name, t.Tags.String(), ts(t.UpdatedAt), int64(t.ID),
	)
	if err != nil {
		return translateWriteErr(err)
	}
	return translateNoRows(res)
}

// DeleteTask deletes a task and its events in one transaction.
func (r *Repository) DeleteTask(ctx context.Context, id domain.TaskID) (err error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if _, err = tx.ExecContext(ctx, `DELETE FROM timestamps WHERE task = ?`, int64(id)); err != nil {
		return err
	}
	res, err := tx.ExecContext(ctx, `DELETE FROM tasks WHERE id = ?`, int64(id))
	if err != nil {
		return err
	}
	if err = translateNoRows(res); err != nil {
		return err
	}
	err = tx.Commit()
	return err
}

// ListTags lists tags ordered by id.
func (r *Repository) ListTags(ctx context.Context) ([]domain.Tag, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT id, name FROM tags ORDER BY id ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]domain.Tag, 0)
	for rows.Next() {
		tag, err := scanTag(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, tag)
	}
	return out, rows.Err()
}

// GetTag returns tag.
func (r *Repository) GetTag(ctx context.Context, id domain.TagID) (domain.Tag, error) {
	row := r.db.QueryRowContext(ctx, `SELECT id, name FROM tags WHERE id = ?`, int64(id))
	return scanTag(row)
}

// CreateTag creates tag.
func (r *Repository) CreateTag(ctx context.Context, tag domain.Tag) (domain.TagID, error) {
	res, err := r.db.ExecContext(ctx, `INSERT INTO tags(id, name) VALUES(?, ?)`, nullableID(int64(tag.ID)), tag.Name)
	if err != nil {
		return 0, translateWriteErr(err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, err
	}
	return domain.TagID(id), nil
}

// UpdateTag updates tag.
func (r *Repository) UpdateTag(ctx context.Context, tag domain.Tag) error {
	res, err := r.db.ExecContext(ctx, `UPDATE tags SET name = ? WHERE id = ?`, tag.Name, int64(tag.ID))
	if err != nil {
		return translateWriteErr(err)
	}
	return translateNoRows(res)
}

// DeleteTag deletes a tag and removes it from every task that carries it.
func (r *Repository) DeleteTag(ctx context.Context, id domain.TagID) (err error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	res, err := tx.ExecContext(ctx, `DELETE FROM tags WHERE id = ?`, int64(id))
	if err != nil {
		return err
	}
	if err = translateNoRows(res); err != nil {
		return err
	}

	rows, err := tx.QueryContext(ctx, `SELECT id, tags FROM tasks WHERE tags != ''`)
	if err != nil {
		return err
	}
	type retag struct {
		id   int64
		tags domain.TagSet
	}
	var pending []retag
	for rows.Next() {
		var (
			taskID int64
			raw    string
		)
		if err = rows.Scan(&taskID, &raw); err != nil {
			_ = rows.Close()
			return err
		}
		set := domain.ParseTagSet(raw)
		if set.Contains(id) {
			pending = append(pending, retag{id: taskID, tags: set.Without(id)})
		}
	}
	if err = rows.Close(); err != nil {
		return err
	}
	if err = rows.Err(); err != nil {
		return err
	}
	for _, p := range pending {
		if _, err = tx.ExecContext(ctx, `UPDATE tasks SET tags = ? WHERE id = ?`, p.tags.String(), p.id); err != nil {
			return err
		}
	}
	err = tx.Commit()
	return err
}

// scanner represents scanner data used by this package.
type scanner interface {
	Scan(dest ...any) error
}

func scanEvent(s scanner) (domain.TimestampEvent, error) {
	var (
		id, task int64
		raw      string
		typ      int
	)
	if err := s.Scan(&id, &task, &raw, &typ); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.TimestampEvent{}, app.ErrNotFound
		}
		return domain.TimestampEvent{}, err
	}
	return domain.TimestampEvent{
		ID:        domain.EventID(id),
		Task:      domain.TaskID(task),
		Timestamp: parseTS(raw),
		Type:      domain.EventType(typ),
	}, nil
}

func scanTask(s scanner) (domain.Task, error) {
	var (
		t          domain.Task
		id         int64
		tagsRaw    string
		createdRaw string
		updatedRaw string
	)
	if err := s.Scan(&id, &t.Name, &tagsRaw, &createdRaw, &updatedRaw); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Task{}, app.ErrNotFound
		}
		return domain.Task{}, err
	}
	t.ID = domain.TaskID(id)
	t.Tags = domain.ParseTagSet(tagsRaw)
	t.CreatedAt = parseTS(createdRaw)
	t.UpdatedAt = parseTS(updatedRaw)
	return t, nil
}

func scanTag(s scanner) (domain.Tag, error) {
	var (
		tag domain.Tag
		id  int64
	)
	if err := s.Scan(&id, &tag.Name); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Tag{}, app.ErrNotFound
		}
		return domain.Tag{}, err
	}
	tag.ID = domain.TagID(id)
	return tag, nil
}

// translateNoRows handles translate no rows.
func translateNoRows(res sql.Result) error {
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return app.ErrNotFound
	}
	return nil
}

// translateWriteErr maps constraint failures onto app errors.
func translateWriteErr(err error) error {
	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "unique constraint failed"), strings.Contains(msg, "primary key"):
		return fmt.Errorf("%w: %v", app.ErrConflict, err)
	case strings.Contains(msg, "foreign key constraint failed"):
		return fmt.Errorf("%w: %v", app.ErrNotFound, err)
	default:
		return err
	}
}

// nullableID passes zero ids as NULL so AUTOINCREMENT assigns one.
func nullableID(id int64) any {
	if id <= 0 {
		return nil
	}
	return id
}

// ts handles ts.
func ts(t time.Time) string {
	return t.UTC().Format(tsLayout)
}

// parseTS parses input into a normalized form.
func parseTS(v string) time.Time {
	ts, err := time.Parse(time.RFC3339Nano, v)
	if err != nil {
		return time.Time{}
	}
	return ts.UTC()
}
