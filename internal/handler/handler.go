package handler

import (
	"context"
	"errors"
	"strconv"
	"time"

	"threadspost/internal/infrastructure/logger"
	"threadspost/internal/job"
	"threadspost/internal/repository"
	"threadspost/internal/service"
	"threadspost/pkg/response"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// DispatchRunner runs one dispatcher batch.
type DispatchRunner interface {
	Run(ctx context.Context) (*job.RunSummary, error)
}

// RecoveryRunner runs one recovery sweep.
type RecoveryRunner interface {
	Run(ctx context.Context) (*job.RecoverySummary, error)
}

type Handler struct {
	personaService *service.PersonaService
	postService    *service.PostService
	dispatcher     DispatchRunner
	recovery       RecoveryRunner
	log            *zap.Logger
}

func NewHandler(personaService *service.PersonaService, postService *service.PostService, dispatcher DispatchRunner, recovery RecoveryRunner) *Handler {
	return &Handler{
		personaService: personaService,
		postService:    postService,
		dispatcher:     dispatcher,
		recovery:       recovery,
		log:            logger.Named("Handler"),
	}
}

// serviceError maps domain errors to response codes; anything unknown is
// logged and reported as a server error.
func (h *Handler) serviceError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, repository.ErrPostNotFound):
		response.BusinessError(c, response.CodePostNotFound, err.Error())
	case errors.Is(err, repository.ErrPostStatusInvalid):
		response.BusinessError(c, response.CodePostStatusInvalid, err.Error())
	case errors.Is(err, repository.ErrPersonaNotFound):
		response.BusinessError(c, response.CodePersonaNotFound, err.Error())
	case errors.Is(err, service.ErrPersonaInactive):
		response.BusinessError(c, response.CodePersonaInactive, err.Error())
	case errors.Is(err, service.ErrContentTooLong):
		response.BusinessError(c, response.CodeContentTooLong, err.Error())
	case errors.Is(err, service.ErrContentEmpty),
		errors.Is(err, service.ErrInvalidMaxRetries),
		errors.Is(err, service.ErrPersonaNameRequired):
		response.ParamError(c, err.Error())
	default:
		h.log.Error("request failed", zap.String("path", c.FullPath()), zap.Error(err))
		response.ServerError(c, "internal error")
	}
}

// ============================================================
// persona
// ============================================================

type CreatePersonaRequest struct {
	UserID        string `json:"user_id" binding:"required"`
	Name          string `json:"name" binding:"required"`
	ThreadsUserID string `json:"threads_user_id"`
	AccessToken   string `json:"access_token"`
}

// POST /api/v1/persona/create
func (h *Handler) CreatePersona(c *gin.Context) {
	var req CreatePersonaRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, "invalid parameters: "+err.Error())
		return
	}

	persona, err := h.personaService.CreatePersona(c.Request.Context(), &service.CreatePersonaRequest{
		UserID:        req.UserID,
		Name:          req.Name,
		ThreadsUserID: req.ThreadsUserID,
		AccessToken:   req.AccessToken,
	})
	if err != nil {
		h.serviceError(c, err)
		return
	}
	response.Success(c, persona)
}

type UpdateTokenRequest struct {
	PersonaID   string `json:"persona_id" binding:"required"`
	AccessToken string `json:"access_token"`
}

// POST /api/v1/persona/token
func (h *Handler) UpdatePersonaToken(c *gin.Context) {
	var req UpdateTokenRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, "invalid parameters: "+err.Error())
		return
	}

	if err := h.personaService.UpdateToken(c.Request.Context(), req.PersonaID, req.AccessToken); err != nil {
		h.serviceError(c, err)
		return
	}
	response.Success(c, gin.H{"persona_id": req.PersonaID})
}

type AutoReplyRequest struct {
	PersonaID string `json:"persona_id" binding:"required"`
	Enabled   bool   `json:"enabled"`
	AIEnabled bool   `json:"ai_enabled"`
}

// POST /api/v1/persona/auto-reply
func (h *Handler) SetAutoReply(c *gin.Context) {
	var req AutoReplyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, "invalid parameters: "+err.Error())
		return
	}

	if err := h.personaService.SetAutoReply(c.Request.Context(), req.PersonaID, req.Enabled, req.AIEnabled); err != nil {
		h.serviceError(c, err)
		return
	}
	response.Success(c, gin.H{"persona_id": req.PersonaID})
}

type PersonaActiveRequest struct {
	PersonaID string `json:"persona_id" binding:"required"`
	Active    bool   `json:"active"`
}

// POST /api/v1/persona/active
func (h *Handler) SetPersonaActive(c *gin.Context) {
	var req PersonaActiveRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, "invalid parameters: "+err.Error())
		return
	}

	if err := h.personaService.SetActive(c.Request.Context(), req.PersonaID, req.Active); err != nil {
		h.serviceError(c, err)
		return
	}
	response.Success(c, gin.H{"persona_id": req.PersonaID, "active": req.Active})
}

// GET /api/v1/persona/detail?persona_id=xxx
func (h *Handler) GetPersona(c *gin.Context) {
	personaID := c.Query("persona_id")
	if personaID == "" {
		response.ParamError(c, "persona_id is required")
		return
	}

	persona, err := h.personaService.GetPersona(c.Request.Context(), personaID)
	if err != nil {
		h.serviceError(c, err)
		return
	}
	response.Success(c, persona)
}

// GET /api/v1/persona/list?user_id=xxx
func (h *Handler) ListPersonas(c *gin.Context) {
	userID := c.Query("user_id")
	if userID == "" {
		response.ParamError(c, "user_id is required")
		return
	}

	personas, err := h.personaService.ListUserPersonas(c.Request.Context(), userID)
	if err != nil {
		h.serviceError(c, err)
		return
	}
	response.Success(c, gin.H{"list": personas})
}

// ============================================================
// post
// ============================================================

type CreatePostRequest struct {
	PersonaID    string     `json:"persona_id" binding:"required"`
	Content      string     `json:"content" binding:"required"`
	ScheduledFor *time.Time `json:"scheduled_for"`
	MaxRetries   *int       `json:"max_retries"`
}

// POST /api/v1/post/create
func (h *Handler) CreatePost(c *gin.Context) {
	var req CreatePostRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, "invalid parameters: "+err.Error())
		return
	}

	post, err := h.postService.CreatePost(c.Request.Context(), &service.CreatePostRequest{
		PersonaID:    req.PersonaID,
		Content:      req.Content,
		ScheduledFor: req.ScheduledFor,
		MaxRetries:   req.MaxRetries,
	})
	if err != nil {
		h.serviceError(c, err)
		return
	}
	response.Success(c, post)
}

type SchedulePostRequest struct {
	PostID       string    `json:"post_id" binding:"required"`
	ScheduledFor time.Time `json:"scheduled_for" binding:"required"`
}

// POST /api/v1/post/schedule
func (h *Handler) SchedulePost(c *gin.Context) {
	var req SchedulePostRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, "invalid parameters: "+err.Error())
		return
	}

	post, err := h.postService.SchedulePost(c.Request.Context(), req.PostID, req.ScheduledFor)
	if err != nil {
		h.serviceError(c, err)
		return
	}
	response.Success(c, post)
}

type CancelPostRequest struct {
	PostID string `json:"post_id" binding:"required"`
}

// POST /api/v1/post/cancel
func (h *Handler) CancelPost(c *gin.Context) {
	var req CancelPostRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, "invalid parameters: "+err.Error())
		return
	}

	if err := h.postService.CancelPost(c.Request.Context(), req.PostID); err != nil {
		h.serviceError(c, err)
		return
	}
	response.Success(c, gin.H{"post_id": req.PostID, "status": "draft"})
}

// GET /api/v1/post/detail?post_id=xxx
func (h *Handler) GetPost(c *gin.Context) {
	postID := c.Query("post_id")
	if postID == "" {
		response.ParamError(c, "post_id is required")
		return
	}

	post, err := h.postService.GetPost(c.Request.Context(), postID)
	if err != nil {
		h.serviceError(c, err)
		return
	}
	response.Success(c, post)
}

// GET /api/v1/post/list?persona_id=xxx&page=1&page_size=20
func (h *Handler) ListPosts(c *gin.Context) {
	personaID := c.Query("persona_id")
	if personaID == "" {
		response.ParamError(c, "persona_id is required")
		return
	}
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	pageSize, _ := strconv.Atoi(c.DefaultQuery("page_size", "20"))

	posts, total, err := h.postService.ListPersonaPosts(c.Request.Context(), personaID, page, pageSize)
	if err != nil {
		h.serviceError(c, err)
		return
	}
	response.Success(c, gin.H{
		"list":  posts,
		"total": total,
		"page":  page,
	})
}

// ============================================================
// job triggers
// ============================================================

// POST /api/v1/jobs/dispatch
func (h *Handler) RunDispatch(c *gin.Context) {
	summary, err := h.dispatcher.Run(c.Request.Context())
	if summary == nil {
		summary = &job.RunSummary{Results: []job.DispatchResult{}}
		if err != nil {
			summary.Error = err.Error()
		}
	}
	response.JobSummary(c, err == nil, summary)
}

// POST /api/v1/jobs/recover-replies
func (h *Handler) RunReplyRecovery(c *gin.Context) {
	summary, err := h.recovery.Run(c.Request.Context())
	if summary == nil {
		summary = &job.RecoverySummary{Results: []job.RecoveryResult{}}
		if err != nil {
			summary.Error = err.Error()
		}
	}
	response.JobSummary(c, err == nil, summary)
}
