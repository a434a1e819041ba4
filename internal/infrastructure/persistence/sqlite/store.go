// Package sqlite is a single-file backend for the user directory and the
// course module store. It suits a single plannerd instance without Postgres.
package sqlite

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/brainamp/planner-engine/internal/domain/course"
	"github.com/brainamp/planner-engine/internal/domain/shared"
	"github.com/brainamp/planner-engine/pkg/logger"
)

//go:embed schema.sql
var schemaFS embed.FS

// Config configures the SQLite file.
type Config struct {
	Path        string
	BusyTimeout time.Duration
}

// DB owns the database handle shared by the directory and module store.
type DB struct {
	db  *sql.DB
	log *logger.Logger
}

// Open creates the parent directory, opens the file and applies the schema.
// Path ":memory:" opens a private in-memory database.
func Open(ctx context.Context, cfg Config, log *logger.Logger) (*DB, error) {
	path := strings.TrimSpace(cfg.Path)
	if path == "" {
		return nil, errors.New("sqlite: path is required")
	}
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("sqlite: create directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("sqlite: open: %w", err)
	}
	// One writer; also keeps ":memory:" on a single connection.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	s := &DB{db: db, log: log.With(logger.Component("sqlite"))}

	var pragmas []string
	if cfg.BusyTimeout > 0 {
		pragmas = append(pragmas, fmt.Sprintf("PRAGMA busy_timeout = %d", cfg.BusyTimeout.Milliseconds()))
	}
	if path != ":memory:" {
		pragmas = append(pragmas, "PRAGMA journal_mode = WAL", "PRAGMA synchronous = NORMAL")
	}
	for _, pragma := range pragmas {
		if _, err := db.ExecContext(ctx, pragma); err != nil {
			s.log.Warn("sqlite pragma failed", logger.String("pragma", pragma), logger.Err(err))
		}
	}

	if err := s.migrate(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	s.log.Info("sqlite ready", logger.String("path", path))
	return s, nil
}

func (s *DB) migrate(ctx context.Context) error {
	b, err := schemaFS.ReadFile("schema.sql")
	if err != nil {
		return err
	}
	if _, err := s.db.ExecContext(ctx, string(b)); err != nil {
		return fmt.Errorf("sqlite: apply schema: %w", err)
	}
	return nil
}

// Ping checks the handle.
func (s *DB) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the handle.
func (s *DB) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// ═══════════════════════════════════════════════════════════════════════════
// User directory
// ═══════════════════════════════════════════════════════════════════════════

// UserDirectory implements planner.UserDirectory.
type UserDirectory struct {
	*DB
}

// Directory returns the user directory view of the database.
func (s *DB) Directory() *UserDirectory {
	return &UserDirectory{DB: s}
}

// GetMetadata implements planner.UserDirectory.
func (d *UserDirectory) GetMetadata(ctx context.Context, userID string) (map[string]any, error) {
	var raw string
	err := d.db.QueryRowContext(ctx, `SELECT metadata FROM planner_users WHERE id = ?`, userID).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return map[string]any{}, nil
	}
	if err != nil {
		return nil, err
	}

	meta := make(map[string]any)
	if err := json.Unmarshal([]byte(raw), &meta); err != nil {
		return nil, fmt.Errorf("sqlite: decode metadata: %w", err)
	}
	return meta, nil
}

// UpdateMetadata implements planner.UserDirectory.
func (d *UserDirectory) UpdateMetadata(ctx context.Context, userID string, merged map[string]any) (bool, error) {
	raw, err := json.Marshal(merged)
	if err != nil {
		return false, err
	}

	var id string
	err = d.db.QueryRowContext(ctx,
		`INSERT INTO planner_users(id, metadata, updated_at) VALUES(?,?,?)
		 ON CONFLICT(id) DO UPDATE SET metadata=excluded.metadata, updated_at=excluded.updated_at
		 RETURNING id`,
		userID, string(raw), time.Now().UTC().Format(time.RFC3339Nano),
	).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return id == userID, nil
}

// ═══════════════════════════════════════════════════════════════════════════
// Course modules
// ═══════════════════════════════════════════════════════════════════════════

// ModuleStore implements course.Store.
type ModuleStore struct {
	*DB
}

// Modules returns the course module view of the database.
func (s *DB) Modules() *ModuleStore {
	return &ModuleStore{DB: s}
}

const (
	columns        = `id, course_id, task_date, day_index, title`
	contentColumns = columns + `, lesson_content, practice_content, quiz_content`
)

// ListForUser implements course.Store.
func (m *ModuleStore) ListForUser(ctx context.Context, userID string, limit int) ([]*course.Module, error) {
	rows, err := m.db.QueryContext(ctx,
		`SELECT `+columns+` FROM course_modules WHERE user_id = ?
		 ORDER BY task_date ASC NULLS LAST, day_index ASC LIMIT ?`,
		userID, limit,
	)
	if err != nil {
		return nil, err
	}
	return collect(rows, false)
}

// ListInRange implements course.Store. Dates are ISO text, so string
// comparison orders them correctly.
func (m *ModuleStore) ListInRange(ctx context.Context, userID string, from, to shared.Date) ([]*course.Module, error) {
	rows, err := m.db.QueryContext(ctx,
		`SELECT `+columns+` FROM course_modules
		 WHERE user_id = ? AND task_date >= ? AND task_date < ?
		 ORDER BY task_date ASC, day_index ASC`,
		userID, from.String(), to.String(),
	)
	if err != nil {
		return nil, err
	}
	return collect(rows, false)
}

// ListOnDate implements course.Store.
func (m *ModuleStore) ListOnDate(ctx context.Context, userID string, date shared.Date) ([]*course.Module, error) {
	rows, err := m.db.QueryContext(ctx,
		`SELECT `+contentColumns+` FROM course_modules
		 WHERE user_id = ? AND task_date = ? ORDER BY day_index ASC`,
		userID, date.String(),
	)
	if err != nil {
		return nil, err
	}
	return collect(rows, true)
}

// UpdateTaskDate implements course.Store.
func (m *ModuleStore) UpdateTaskDate(ctx context.Context, userID, moduleID string, date shared.Date) (*course.Module, error) {
	row := m.db.QueryRowContext(ctx,
		`UPDATE course_modules SET task_date = ? WHERE id = ? AND user_id = ? RETURNING `+columns,
		date.String(), moduleID, userID,
	)
	mod, err := scan(row, false)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return mod, err
}

// Upsert writes one module row owned by userID.
func (m *ModuleStore) Upsert(ctx context.Context, userID string, mod course.Module) error {
	var taskDate any
	if mod.HasTaskDate() {
		taskDate = mod.TaskDate.String()
	}
	res, err := m.db.ExecContext(ctx,
		`INSERT INTO course_modules(id, user_id, course_id, task_date, day_index, title, lesson_content, practice_content, quiz_content)
		 VALUES(?,?,?,?,?,?,?,?,?)
		 ON CONFLICT(id) DO UPDATE SET course_id=excluded.course_id,
		   task_date=excluded.task_date, day_index=excluded.day_index, title=excluded.title,
		   lesson_content=excluded.lesson_content, practice_content=excluded.practice_content,
		   quiz_content=excluded.quiz_content
		 WHERE course_modules.user_id = excluded.user_id`,
		mod.ID, userID, mod.CourseID, taskDate, mod.DayIndex, mod.Title,
		mod.LessonContent, mod.PracticeContent, mod.QuizContent,
	)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("upsert %s: %w", mod.ID, course.ErrForeignModule)
	}
	return nil
}

type scanner interface {
	Scan(dest ...any) error
}

func collect(rows *sql.Rows, withContent bool) ([]*course.Module, error) {
	defer rows.Close()

	out := make([]*course.Module, 0)
	for rows.Next() {
		mod, err := scan(rows, withContent)
		if err != nil {
			return nil, err
		}
		out = append(out, mod)
	}
	return out, rows.Err()
}

func scan(row scanner, withContent bool) (*course.Module, error) {
	var (
		mod      course.Module
		taskDate sql.NullString
	)
	dest := []any{&mod.ID, &mod.CourseID, &taskDate, &mod.DayIndex, &mod.Title}
	if withContent {
		dest = append(dest, &mod.LessonContent, &mod.PracticeContent, &mod.QuizContent)
	}
	if err := row.Scan(dest...); err != nil {
		return nil, err
	}
	if taskDate.Valid && taskDate.String != "" {
		d := shared.Date(taskDate.String)
		mod.TaskDate = &d
	}
	return &mod, nil
}
