package planner

import (
	"context"
	"errors"
	"sync"

	"github.com/brainamp/planner-engine/internal/domain/shared"
)

// errUnconfirmed marks an UpdateMetadata call that returned no confirmed record.
var errUnconfirmed = errors.New("user directory did not confirm the update")

// DocumentStore reads and writes planner documents through a UserDirectory.
// There is no version token: concurrent read-modify-write cycles for the
// same user are last-write-wins unless a Locker serializes them.
type DocumentStore struct {
	directory UserDirectory
	locker    Locker
}

// NewDocumentStore creates a DocumentStore. A nil locker means NopLocker.
func NewDocumentStore(directory UserDirectory, locker Locker) *DocumentStore {
	if locker == nil {
		locker = NopLocker{}
	}
	return &DocumentStore{directory: directory, locker: locker}
}

// Get loads the user's document, coercing anything malformed to empty lists.
func (s *DocumentStore) Get(ctx context.Context, userID string) (*Document, error) {
	meta, err := s.directory.GetMetadata(ctx, userID)
	if err != nil {
		return nil, shared.WrapError("planner", "Get", shared.ErrPersistence, "failed to load planner document", err)
	}
	return DocumentFromMetadata(meta), nil
}

// Put merges doc into the user's latest metadata bag and writes it back.
// Other metadata keys are preserved.
func (s *DocumentStore) Put(ctx context.Context, userID string, doc *Document) error {
	meta, err := s.directory.GetMetadata(ctx, userID)
	if err != nil {
		return shared.NewPersistenceError("planner", "Put", err)
	}

	merged := make(map[string]any, len(meta)+1)
	for k, v := range meta {
		merged[k] = v
	}
	merged[MetadataKey] = doc.MetadataValue()

	ok, err := s.directory.UpdateMetadata(ctx, userID, merged)
	if err != nil {
		return shared.NewPersistenceError("planner", "Put", err)
	}
	if !ok {
		return shared.NewPersistenceError("planner", "Put", errUnconfirmed)
	}
	return nil
}

// Mutate runs one read-modify-write cycle under the configured Locker.
// fn edits the document in place; returning an error aborts the write.
func (s *DocumentStore) Mutate(ctx context.Context, userID string, fn func(doc *Document) error) error {
	unlock, err := s.locker.Lock(ctx, userID)
	if err != nil {
		return shared.WrapError("planner", "Mutate", shared.ErrPersistence, "failed to acquire planner lock", err)
	}
	defer unlock()

	doc, err := s.Get(ctx, userID)
	if err != nil {
		return err
	}
	if err := fn(doc); err != nil {
		return err
	}
	return s.Put(ctx, userID, doc)
}

// ═══════════════════════════════════════════════════════════════════════════
// Lockers
// ═══════════════════════════════════════════════════════════════════════════

// NopLocker performs no locking.
type NopLocker struct{}

// Lock implements Locker.
func (NopLocker) Lock(context.Context, string) (func(), error) {
	return func() {}, nil
}

// MutexLocker serializes mutations per user within one process.
type MutexLocker struct {
	mu    sync.Mutex
	users map[string]*userLock
}

type userLock struct {
	ch   chan struct{}
	refs int
}

// NewMutexLocker creates an in-process Locker.
func NewMutexLocker() *MutexLocker {
	return &MutexLocker{users: make(map[string]*userLock)}
}

// Lock implements Locker. It honours ctx while waiting.
func (l *MutexLocker) Lock(ctx context.Context, userID string) (func(), error) {
	l.mu.Lock()
	ul, ok := l.users[userID]
	if !ok {
		ul = &userLock{ch: make(chan struct{}, 1)}
		l.users[userID] = ul
	}
	ul.refs++
	l.mu.Unlock()

	select {
	case ul.ch <- struct{}{}:
	case <-ctx.Done():
		l.release(userID, ul)
		return nil, ctx.Err()
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			<-ul.ch
			l.release(userID, ul)
		})
	}, nil
}

func (l *MutexLocker) release(userID string, ul *userLock) {
	l.mu.Lock()
	defer l.mu.Unlock()
	ul.refs--
	if ul.refs == 0 {
		delete(l.users, userID)
	}
}
