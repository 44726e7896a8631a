// Package session persists saved recordings in SQLite.
package session

import (
	"context"
	"errors"
	"time"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	apperrors "github.com/GriffinCanCode/private-scribe/backend/platform/internal/errors"
	"github.com/GriffinCanCode/private-scribe/backend/platform/internal/orchestrator/transcript"
	"github.com/GriffinCanCode/private-scribe/backend/platform/internal/summary"
)

// Session is one saved recording: its segments and the last accepted
// summary, if any.
type Session struct {
	ID          string               `gorm:"primaryKey" json:"id"`
	Title       string               `json:"title"`
	CreatedAt   time.Time            `gorm:"index" json:"createdAt"`
	DurationSec int                  `json:"durationSec"`
	Segments    []transcript.Segment `gorm:"serializer:json" json:"segments"`
	Summary     *summary.Summary     `gorm:"serializer:json" json:"summary,omitempty"`
}

// Store is the persistence collaborator for sessions.
type Store interface {
	Create(ctx context.Context, s *Session) error
	List(ctx context.Context) ([]Session, error)
	Get(ctx context.Context, id string) (Session, error)
	Delete(ctx context.Context, id string) error
	Close() error
}

// SQLStore keeps sessions in a single table.
type SQLStore struct {
	db *gorm.DB
}

// Open opens (or creates) the database at path and migrates the schema.
// Use ":memory:" for a throwaway store.
func Open(path string) (*SQLStore, error) {
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger:         newLogger(200 * time.Millisecond),
		TranslateError: true,
	})
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.StoreFailed, "failed to open session database")
	}
	if err := db.AutoMigrate(&Session{}); err != nil {
		return nil, apperrors.Wrap(err, apperrors.StoreFailed, "failed to migrate session schema")
	}
	return &SQLStore{db: db}, nil
}

func (s *SQLStore) Create(ctx context.Context, sess *Session) error {
	if sess.ID == "" {
		return apperrors.New(apperrors.InvalidArgument, "session id required")
	}
	if err := s.db.WithContext(ctx).Create(sess).Error; err != nil {
		return fromDatabase(err, "create session")
	}
	return nil
}

// List returns every session, newest first.
func (s *SQLStore) List(ctx context.Context) ([]Session, error) {
	var out []Session
	if err := s.db.WithContext(ctx).Order("created_at DESC").Order("id").Find(&out).Error; err != nil {
		return nil, fromDatabase(err, "list sessions")
	}
	return out, nil
}

func (s *SQLStore) Get(ctx context.Context, id string) (Session, error) {
	var out Session
	if err := s.db.WithContext(ctx).First(&out, "id = ?", id).Error; err != nil {
		return Session{}, fromDatabase(err, "get session").WithMetadata("id", id)
	}
	return out, nil
}

func (s *SQLStore) Delete(ctx context.Context, id string) error {
	res := s.db.WithContext(ctx).Delete(&Session{}, "id = ?", id)
	if res.Error != nil {
		return fromDatabase(res.Error, "delete session")
	}
	if res.RowsAffected == 0 {
		return apperrors.New(apperrors.NotFound, "session not found").WithMetadata("id", id)
	}
	return nil
}

func (s *SQLStore) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func fromDatabase(err error, op string) *apperrors.AppError {
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		return apperrors.Wrap(err, apperrors.NotFound, "session not found")
	case errors.Is(err, gorm.ErrDuplicatedKey):
		return apperrors.Wrap(err, apperrors.InvalidArgument, "session already exists")
	case errors.Is(err, context.Canceled):
		return apperrors.Wrap(err, apperrors.Cancelled, op)
	case errors.Is(err, context.DeadlineExceeded):
		return apperrors.Wrap(err, apperrors.Timeout, op)
	}
	return apperrors.Wrap(err, apperrors.StoreFailed, op)
}
