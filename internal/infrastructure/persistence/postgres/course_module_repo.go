package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/brainamp/planner-engine/internal/domain/course"
	"github.com/brainamp/planner-engine/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// COURSE MODULE REPOSITORY
// ══════════════════════════════════════════════════════════════════════════════

// CourseModuleRepository implements course.Store for PostgreSQL.
type CourseModuleRepository struct {
	conn *Connection
}

// NewCourseModuleRepository creates a new CourseModuleRepository.
func NewCourseModuleRepository(conn *Connection) *CourseModuleRepository {
	return &CourseModuleRepository{conn: conn}
}

const moduleColumns = `id, course_id, to_char(task_date, 'YYYY-MM-DD'), day_index, title`

const moduleContentColumns = moduleColumns + `, lesson_content, practice_content, quiz_content`

// ListForUser implements course.Store.
func (r *CourseModuleRepository) ListForUser(ctx context.Context, userID string, limit int) ([]*course.Module, error) {
	query := `
		SELECT ` + moduleColumns + `
		FROM course_modules
		WHERE user_id = $1
		ORDER BY task_date ASC NULLS LAST, day_index ASC
		LIMIT $2
	`

	rows, err := r.conn.Pool().Query(ctx, query, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list modules: %w", err)
	}
	return collectModules(rows, false)
}

// ListInRange implements course.Store.
func (r *CourseModuleRepository) ListInRange(ctx context.Context, userID string, from, to shared.Date) ([]*course.Module, error) {
	query := `
		SELECT ` + moduleColumns + `
		FROM course_modules
		WHERE user_id = $1 AND task_date >= $2::date AND task_date < $3::date
		ORDER BY task_date ASC, day_index ASC
	`

	rows, err := r.conn.Pool().Query(ctx, query, userID, from.String(), to.String())
	if err != nil {
		return nil, fmt.Errorf("failed to list modules in range: %w", err)
	}
	return collectModules(rows, false)
}

// ListOnDate implements course.Store.
func (r *CourseModuleRepository) ListOnDate(ctx context.Context, userID string, date shared.Date) ([]*course.Module, error) {
	query := `
		SELECT ` + moduleContentColumns + `
		FROM course_modules
		WHERE user_id = $1 AND task_date = $2::date
		ORDER BY day_index ASC
	`

	rows, err := r.conn.Pool().Query(ctx, query, userID, date.String())
	if err != nil {
		return nil, fmt.Errorf("failed to list modules on date: %w", err)
	}
	return collectModules(rows, true)
}

// UpdateTaskDate implements course.Store. The user_id predicate makes a
// foreign id indistinguishable from a missing one.
func (r *CourseModuleRepository) UpdateTaskDate(ctx context.Context, userID, moduleID string, date shared.Date) (*course.Module, error) {
	query := `
		UPDATE course_modules
		SET task_date = $3::date, updated_at = NOW()
		WHERE id = $1 AND user_id = $2
		RETURNING ` + moduleColumns

	m, err := scanModule(r.conn.Pool().QueryRow(ctx, query, moduleID, userID, date.String()), false)
	if err != nil {
		if IsNoRows(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to update module date: %w", err)
	}
	return m, nil
}

// Upsert writes a module row for userID. Used by seeding and tests.
func (r *CourseModuleRepository) Upsert(ctx context.Context, userID string, m course.Module) error {
	query := `
		INSERT INTO course_modules (
			id, user_id, course_id, task_date, day_index, title,
			lesson_content, practice_content, quiz_content
		) VALUES ($1, $2, $3, $4::date, $5, $6, $7, $8, $9)
		ON CONFLICT (id) DO UPDATE SET
			course_id = EXCLUDED.course_id,
			task_date = EXCLUDED.task_date,
			day_index = EXCLUDED.day_index,
			title = EXCLUDED.title,
			lesson_content = EXCLUDED.lesson_content,
			practice_content = EXCLUDED.practice_content,
			quiz_content = EXCLUDED.quiz_content,
			updated_at = NOW()
		WHERE course_modules.user_id = EXCLUDED.user_id
	`

	var taskDate *string
	if m.HasTaskDate() {
		d := m.TaskDate.String()
		taskDate = &d
	}

	tag, err := r.conn.Pool().Exec(ctx, query,
		m.ID, userID, m.CourseID, taskDate, m.DayIndex, m.Title,
		m.LessonContent, m.PracticeContent, m.QuizContent,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert module: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("upsert %s: %w", m.ID, course.ErrForeignModule)
	}
	return nil
}

// ─────────────────────────────────────────────────────────────────────────────
// Scanning
// ─────────────────────────────────────────────────────────────────────────────

func collectModules(rows pgx.Rows, withContent bool) ([]*course.Module, error) {
	defer rows.Close()

	out := make([]*course.Module, 0)
	for rows.Next() {
		m, err := scanModule(rows, withContent)
		if err != nil {
			return nil, fmt.Errorf("failed to scan module: %w", err)
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

func scanModule(row pgx.Row, withContent bool) (*course.Module, error) {
	var (
		m        course.Module
		taskDate *string
	)

	dest := []any{&m.ID, &m.CourseID, &taskDate, &m.DayIndex, &m.Title}
	if withContent {
		dest = append(dest, &m.LessonContent, &m.PracticeContent, &m.QuizContent)
	}
	if err := row.Scan(dest...); err != nil {
		return nil, err
	}

	if taskDate != nil {
		d := shared.Date(*taskDate)
		m.TaskDate = &d
	}
	return &m, nil
}
