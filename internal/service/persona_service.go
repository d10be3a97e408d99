package service

import (
	"context"
	"errors"
	"strings"

	"threadspost/internal/model"
	"threadspost/internal/repository"
	"threadspost/pkg/idgen"

	"gorm.io/gorm"
)

var ErrPersonaNameRequired = errors.New("persona name is required")

type PersonaService struct {
	personaRepo *repository.PersonaRepository
}

func NewPersonaService(db *gorm.DB) *PersonaService {
	return &PersonaService{
		personaRepo: repository.NewPersonaRepository(db),
	}
}

type CreatePersonaRequest struct {
	UserID        string
	Name          string
	ThreadsUserID string
	AccessToken   string
}

// CreatePersona registers an active persona. A persona created without a
// token can hold drafts but none of its posts is dispatched.
func (s *PersonaService) CreatePersona(ctx context.Context, req *CreatePersonaRequest) (*model.Persona, error) {
	name := strings.TrimSpace(req.Name)
	if name == "" {
		return nil, ErrPersonaNameRequired
	}

	threadsUserID := req.ThreadsUserID
	if threadsUserID == "" {
		threadsUserID = model.DefaultThreadsUserID
	}

	persona := &model.Persona{
		ID:            idgen.GeneratePersonaID(),
		UserID:        req.UserID,
		Name:          name,
		ThreadsUserID: threadsUserID,
		AccessToken:   req.AccessToken,
		IsActive:      true,
	}
	if err := s.personaRepo.Create(ctx, persona); err != nil {
		return nil, err
	}
	return persona, nil
}

func (s *PersonaService) GetPersona(ctx context.Context, id string) (*model.Persona, error) {
	return s.personaRepo.GetByID(ctx, id)
}

func (s *PersonaService) ListUserPersonas(ctx context.Context, userID string) ([]*model.Persona, error) {
	return s.personaRepo.ListByUserID(ctx, userID)
}

func (s *PersonaService) UpdateToken(ctx context.Context, id, token string) error {
	return s.personaRepo.UpdateToken(ctx, id, token)
}

func (s *PersonaService) SetActive(ctx context.Context, id string, active bool) error {
	return s.personaRepo.SetActive(ctx, id, active)
}

// SetAutoReply updates both switches. AI replies need auto-reply itself on.
func (s *PersonaService) SetAutoReply(ctx context.Context, id string, enabled, aiEnabled bool) error {
	return s.personaRepo.SetAutoReply(ctx, id, enabled, enabled && aiEnabled)
}
