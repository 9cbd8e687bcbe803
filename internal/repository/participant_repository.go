package repository

import (
	"context"
	"errors"
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"
)

var ErrParticipantNotFound = errors.New("participant not found")

type ParticipantRepository struct {
	db *gorm.DB
}

func NewParticipantRepository(db *gorm.DB) *ParticipantRepository {
	return &ParticipantRepository{db: db}
}

type Participant struct {
	ID         int64             `gorm:"primaryKey"`
	Code       string            `gorm:"not null;uniqueIndex"`
	Name       string            `gorm:"not null"`
	EventName  *string
	TicketType *string
	Status     string            `gorm:"not null"`
	Attributes datatypes.JSONMap `gorm:"type:jsonb"`
	CreatedAt  time.Time
}

// FindByCode looks up a participant by normalized ticket code.
func (r *ParticipantRepository) FindByCode(ctx context.Context, code string) (*Participant, error) {
	var p Participant
	err := r.db.WithContext(ctx).Where("code = ?", code).First(&p).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrParticipantNotFound
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func (r *ParticipantRepository) Upsert(ctx context.Context, p *Participant) error {
	existing, err := r.FindByCode(ctx, p.Code)
	if err != nil && !errors.Is(err, ErrParticipantNotFound) {
		return err
	}
	if existing != nil {
		p.ID = existing.ID
		p.CreatedAt = existing.CreatedAt
		return r.db.WithContext(ctx).Save(p).Error
	}

	if p.CreatedAt.IsZero() {
		p.CreatedAt = time.Now()
	}
	return r.db.WithContext(ctx).Create(p).Error
}
