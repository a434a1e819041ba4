// Package memory provides in-process implementations of the user directory
// and the course module store. It backs local development and tests.
package memory

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"

	"github.com/brainamp/planner-engine/internal/domain/course"
	"github.com/brainamp/planner-engine/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// USER DIRECTORY
// ══════════════════════════════════════════════════════════════════════════════

// UserDirectory keeps metadata bags as JSON so readers never share maps
// with writers.
type UserDirectory struct {
	mu   sync.RWMutex
	bags map[string][]byte
}

// NewUserDirectory creates an empty directory.
func NewUserDirectory() *UserDirectory {
	return &UserDirectory{bags: make(map[string][]byte)}
}

// GetMetadata implements planner.UserDirectory.
func (d *UserDirectory) GetMetadata(_ context.Context, userID string) (map[string]any, error) {
	d.mu.RLock()
	raw, ok := d.bags[userID]
	d.mu.RUnlock()

	meta := make(map[string]any)
	if !ok {
		return meta, nil
	}
	if err := json.Unmarshal(raw, &meta); err != nil {
		return nil, err
	}
	return meta, nil
}

// UpdateMetadata implements planner.UserDirectory.
func (d *UserDirectory) UpdateMetadata(_ context.Context, userID string, merged map[string]any) (bool, error) {
	raw, err := json.Marshal(merged)
	if err != nil {
		return false, err
	}

	d.mu.Lock()
	d.bags[userID] = raw
	d.mu.Unlock()
	return true, nil
}

// ══════════════════════════════════════════════════════════════════════════════
// COURSE MODULE STORE
// ══════════════════════════════════════════════════════════════════════════════

type moduleRow struct {
	userID string
	module course.Module
}

// ModuleStore holds course modules for any number of users.
type ModuleStore struct {
	mu   sync.RWMutex
	rows []*moduleRow
}

// NewModuleStore creates an empty module store.
func NewModuleStore() *ModuleStore {
	return &ModuleStore{}
}

// Seed inserts modules owned by userID. Existing ids are replaced.
func (s *ModuleStore) Seed(userID string, modules ...course.Module) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, m := range modules {
		replaced := false
		for _, r := range s.rows {
			if r.userID == userID && r.module.ID == m.ID {
				r.module = m
				replaced = true
				break
			}
		}
		if !replaced {
			s.rows = append(s.rows, &moduleRow{userID: userID, module: m})
		}
	}
}

// Upsert writes one module for userID.
func (s *ModuleStore) Upsert(_ context.Context, userID string, m course.Module) error {
	s.mu.RLock()
	for _, r := range s.rows {
		if r.module.ID == m.ID && r.userID != userID {
			s.mu.RUnlock()
			return fmt.Errorf("upsert %s: %w", m.ID, course.ErrForeignModule)
		}
	}
	s.mu.RUnlock()

	s.Seed(userID, m)
	return nil
}

// ListForUser implements course.Store.
func (s *ModuleStore) ListForUser(_ context.Context, userID string, limit int) ([]*course.Module, error) {
	out := s.collect(userID, func(*course.Module) bool { return true }, false)
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// ListInRange implements course.Store.
func (s *ModuleStore) ListInRange(_ context.Context, userID string, from, to shared.Date) ([]*course.Module, error) {
	return s.collect(userID, func(m *course.Module) bool {
		return m.HasTaskDate() && m.TaskDate.InRange(from, to)
	}, false), nil
}

// ListOnDate implements course.Store.
func (s *ModuleStore) ListOnDate(_ context.Context, userID string, date shared.Date) ([]*course.Module, error) {
	return s.collect(userID, func(m *course.Module) bool {
		return m.HasTaskDate() && *m.TaskDate == date
	}, true), nil
}

// UpdateTaskDate implements course.Store.
func (s *ModuleStore) UpdateTaskDate(_ context.Context, userID, moduleID string, date shared.Date) (*course.Module, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, r := range s.rows {
		if r.userID == userID && r.module.ID == moduleID {
			d := date
			r.module.TaskDate = &d
			cp := r.module
			return &cp, nil
		}
	}
	return nil, nil
}

func (s *ModuleStore) collect(userID string, keep func(*course.Module) bool, withContent bool) []*course.Module {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*course.Module, 0)
	for _, r := range s.rows {
		if r.userID != userID || !keep(&r.module) {
			continue
		}
		cp := r.module
		if cp.TaskDate != nil {
			d := *cp.TaskDate
			cp.TaskDate = &d
		}
		if !withContent {
			cp.LessonContent, cp.PracticeContent, cp.QuizContent = "", "", ""
		}
		out = append(out, &cp)
	}

	sort.SliceStable(out, func(i, j int) bool {
		return lessByDateThenIndex(out[i], out[j])
	})
	return out
}

// lessByDateThenIndex orders scheduled modules before unscheduled ones,
// matching NULLS LAST in the relational stores.
func lessByDateThenIndex(a, b *course.Module) bool {
	ad, bd := a.HasTaskDate(), b.HasTaskDate()
	switch {
	case ad && bd && *a.TaskDate != *b.TaskDate:
		return *a.TaskDate < *b.TaskDate
	case ad != bd:
		return ad
	}
	return a.DayIndex < b.DayIndex
}
