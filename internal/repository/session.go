package repository

import (
	"context"
	"errors"
	"flexport/internal/model"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var (
	ErrNotFound    = errors.New("session not found")
	ErrDuplicateID = errors.New("session id already exists")
)

var terminalStatuses = []model.SessionStatus{model.StatusCompleted, model.StatusFailed}

type SessionRepository struct {
	db  *gorm.DB
	now func() time.Time
}

func NewSessionRepository(db *gorm.DB) *SessionRepository {
	return &SessionRepository{db: db, now: time.Now}
}

func (r *SessionRepository) Create(ctx context.Context, session *model.Session) error {
	res := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(session)
	if res.Error != nil {
		return res.Error
	}

	if res.RowsAffected == 0 {
		return ErrDuplicateID
	}

	return nil
}

// UpdateStatus reports whether a row was changed. Missing sessions and
// sessions already in a terminal state are left untouched.
func (r *SessionRepository) UpdateStatus(ctx context.Context, id string, update model.StatusUpdate) (bool, error) {
	values := map[string]any{
		"status":      update.Status,
		"detail":      update.Detail,
		"progress":    update.Progress,
		"bytes_done":  update.BytesDone,
		"bytes_total": update.BytesTotal,
	}
	if update.Status == model.StatusCompleted {
		values["completed_at"] = r.now().Format(model.TimeLayout)
	}

	res := r.db.WithContext(ctx).
		Model(&model.Session{}).
		Where("id = ? AND status NOT IN ?", id, terminalStatuses).
		Updates(values)

	return res.RowsAffected > 0, res.Error
}

func (r *SessionRepository) Get(ctx context.Context, id string) (model.Session, error) {
	var session model.Session
	err := r.db.WithContext(ctx).Where("id = ?", id).Take(&session).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return session, ErrNotFound
	}

	return session, err
}

func (r *SessionRepository) GetByOwner(ctx context.Context, owner string) ([]model.Session, error) {
	sessions := []model.Session{}
	return sessions, r.db.WithContext(ctx).
		Where("owner = ?", owner).
		Order("rowid").
		Find(&sessions).Error
}

func (r *SessionRepository) Delete(ctx context.Context, id string) error {
	return r.db.WithContext(ctx).
		Where("id = ?", id).
		Delete(&model.Session{}).Error
}

// MarkInterrupted fails every session left unfinished by a previous process.
func (r *SessionRepository) MarkInterrupted(ctx context.Context, detail string) (int64, error) {
	res := r.db.WithContext(ctx).
		Model(&model.Session{}).
		Where("status NOT IN ?", terminalStatuses).
		Updates(map[string]any{
			"status": model.StatusFailed,
			"detail": detail,
		})

	return res.RowsAffected, res.Error
}
