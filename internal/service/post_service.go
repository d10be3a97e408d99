package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"threadspost/internal/config"
	"threadspost/internal/model"
	"threadspost/internal/repository"
	"threadspost/pkg/idgen"

	"gorm.io/gorm"
)

var (
	ErrContentEmpty      = errors.New("post content is empty")
	ErrContentTooLong    = fmt.Errorf("post content exceeds %d characters", model.MaxPostContentLength)
	ErrInvalidMaxRetries = errors.New("max_retries must not be negative")
	ErrPersonaInactive   = errors.New("persona is inactive")
)

type PostService struct {
	postRepo    *repository.PostRepository
	personaRepo *repository.PersonaRepository
	cfg         *config.Config
}

func NewPostService(db *gorm.DB, cfg *config.Config) *PostService {
	return &PostService{
		postRepo:    repository.NewPostRepository(db),
		personaRepo: repository.NewPersonaRepository(db),
		cfg:         cfg,
	}
}

type CreatePostRequest struct {
	PersonaID    string
	Content      string
	ScheduledFor *time.Time
	MaxRetries   *int
}

// CreatePost stores a draft, or a scheduled post when a time is given.
func (s *PostService) CreatePost(ctx context.Context, req *CreatePostRequest) (*model.Post, error) {
	content := strings.TrimSpace(req.Content)
	if content == "" {
		return nil, ErrContentEmpty
	}
	if utf8.RuneCountInString(content) > model.MaxPostContentLength {
		return nil, ErrContentTooLong
	}

	maxRetries := s.cfg.Scheduler.DefaultMaxRetries
	if req.MaxRetries != nil {
		if *req.MaxRetries < 0 {
			return nil, ErrInvalidMaxRetries
		}
		maxRetries = *req.MaxRetries
	}

	if err := s.requireActivePersona(ctx, req.PersonaID); err != nil {
		return nil, err
	}

	post := &model.Post{
		ID:         idgen.GeneratePostID(),
		PersonaID:  req.PersonaID,
		Content:    content,
		Status:     model.PostStatusDraft,
		MaxRetries: maxRetries,
	}
	if req.ScheduledFor != nil {
		at := req.ScheduledFor.UTC()
		post.Status = model.PostStatusScheduled
		post.ScheduledFor = &at
	}

	if err := s.postRepo.Create(ctx, nil, post); err != nil {
		return nil, err
	}
	return post, nil
}

// SchedulePost moves a draft into the dispatch queue at the given time.
func (s *PostService) SchedulePost(ctx context.Context, postID string, at time.Time) (*model.Post, error) {
	post, err := s.postRepo.GetByID(ctx, postID)
	if err != nil {
		return nil, err
	}
	if err := s.requireActivePersona(ctx, post.PersonaID); err != nil {
		return nil, err
	}

	at = at.UTC()
	if err := s.postRepo.UpdateStatus(ctx, nil, postID, post.Status, model.PostStatusScheduled, &at); err != nil {
		return nil, err
	}
	return s.postRepo.GetByID(ctx, postID)
}

func (s *PostService) requireActivePersona(ctx context.Context, personaID string) error {
	persona, err := s.personaRepo.GetByID(ctx, personaID)
	if err != nil {
		return err
	}
	if !persona.IsActive {
		return ErrPersonaInactive
	}
	return nil
}

// CancelPost takes a scheduled post back to draft. Posts already claimed by
// the dispatcher can no longer be cancelled.
func (s *PostService) CancelPost(ctx context.Context, postID string) error {
	post, err := s.postRepo.GetByID(ctx, postID)
	if err != nil {
		return err
	}
	return s.postRepo.UpdateStatus(ctx, nil, postID, post.Status, model.PostStatusDraft, nil)
}

func (s *PostService) GetPost(ctx context.Context, postID string) (*model.Post, error) {
	return s.postRepo.GetByID(ctx, postID)
}

func (s *PostService) ListPersonaPosts(ctx context.Context, personaID string, page, pageSize int) ([]*model.Post, int64, error) {
	if page < 1 {
		page = 1
	}
	if pageSize < 1 || pageSize > 100 {
		pageSize = 20
	}
	return s.postRepo.ListByPersona(ctx, personaID, page, pageSize)
}
