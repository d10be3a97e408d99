package repository

import (
	"context"
	"errors"

	"threadspost/internal/model"

	"gorm.io/gorm"
)

var ErrPersonaNotFound = errors.New("persona not found")

type PersonaRepository struct {
	db *gorm.DB
}

func NewPersonaRepository(db *gorm.DB) *PersonaRepository {
	return &PersonaRepository{db: db}
}

func (r *PersonaRepository) Create(ctx context.Context, persona *model.Persona) error {
	return r.db.WithContext(ctx).Create(persona).Error
}

func (r *PersonaRepository) GetByID(ctx context.Context, id string) (*model.Persona, error) {
	var persona model.Persona
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&persona).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrPersonaNotFound
		}
		return nil, err
	}
	return &persona, nil
}

func (r *PersonaRepository) update(ctx context.Context, id string, updates map[string]interface{}) error {
	result := r.db.WithContext(ctx).
		Model(&model.Persona{}).
		Where("id = ?", id).
		Updates(updates)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrPersonaNotFound
	}
	return nil
}

// UpdateToken replaces the persona's publishing credential. An empty token
// revokes it, which removes the persona's posts from dispatch.
func (r *PersonaRepository) UpdateToken(ctx context.Context, id, token string) error {
	return r.update(ctx, id, map[string]interface{}{"access_token": token})
}

func (r *PersonaRepository) SetActive(ctx context.Context, id string, active bool) error {
	return r.update(ctx, id, map[string]interface{}{"is_active": active})
}

func (r *PersonaRepository) SetAutoReply(ctx context.Context, id string, enabled, aiEnabled bool) error {
	return r.update(ctx, id, map[string]interface{}{
		"auto_reply_enabled":    enabled,
		"ai_auto_reply_enabled": aiEnabled,
	})
}

func (r *PersonaRepository) ListByUserID(ctx context.Context, userID string) ([]*model.Persona, error) {
	var personas []*model.Persona
	err := r.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at ASC").
		Find(&personas).Error
	return personas, err
}
