package repository

import (
	"context"
	"flexport/internal/model"
	"slices"
	"sync"
	"time"
)

// MemorySessionRepository keeps sessions in process memory with the same
// semantics as SessionRepository.
type MemorySessionRepository struct {
	mu       sync.RWMutex
	sessions map[string]model.Session
	order    []string
	now      func() time.Time
}

func NewMemorySessionRepository() *MemorySessionRepository {
	return &MemorySessionRepository{
		sessions: make(map[string]model.Session),
		now:      time.Now,
	}
}

func (r *MemorySessionRepository) Create(_ context.Context, session *model.Session) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.sessions[session.ID]; exists {
		return ErrDuplicateID
	}

	r.sessions[session.ID] = *session
	r.order = append(r.order, session.ID)
	return nil
}

func (r *MemorySessionRepository) UpdateStatus(_ context.Context, id string, update model.StatusUpdate) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	session, exists := r.sessions[id]
	if !exists || session.Status.Terminal() {
		return false, nil
	}

	session.Status = update.Status
	session.Detail = update.Detail
	session.Progress = update.Progress
	session.BytesDone = update.BytesDone
	session.BytesTotal = update.BytesTotal
	if update.Status == model.StatusCompleted {
		session.CompletedAt = r.now().Format(model.TimeLayout)
	}

	r.sessions[id] = session
	return true, nil
}

func (r *MemorySessionRepository) Get(_ context.Context, id string) (model.Session, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	session, exists := r.sessions[id]
	if !exists {
		return model.Session{}, ErrNotFound
	}

	return session, nil
}

func (r *MemorySessionRepository) GetByOwner(_ context.Context, owner string) ([]model.Session, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	sessions := []model.Session{}
	for _, id := range r.order {
		if s := r.sessions[id]; s.Owner == owner {
			sessions = append(sessions, s)
		}
	}

	return sessions, nil
}

func (r *MemorySessionRepository) Delete(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.sessions[id]; !exists {
		return nil
	}

	delete(r.sessions, id)
	r.order = slices.DeleteFunc(r.order, func(v string) bool {
		return v == id
	})
	return nil
}
