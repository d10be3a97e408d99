package service

import (
	"context"
	"strings"
	"testing"
	"time"

	"threadspost/internal/config"
	"threadspost/internal/infrastructure/database"
	"threadspost/internal/model"
	"threadspost/internal/repository"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func setupTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := database.OpenSQLite(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			sqlDB.Close()
		}
	})
	return db
}

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg, err := config.LoadConfig("")
	require.NoError(t, err)
	return cfg
}

func createPersona(t *testing.T, svc *PersonaService) *model.Persona {
	t.Helper()
	p, err := svc.CreatePersona(context.Background(), &CreatePersonaRequest{UserID: "u1", Name: "Ada", AccessToken: "tok"})
	require.NoError(t, err)
	return p
}

func TestPersonaService_CreatePersona(t *testing.T) {
	svc := NewPersonaService(setupTestDB(t))

	p := createPersona(t, svc)
	assert.True(t, strings.HasPrefix(p.ID, "PSN"))
	assert.True(t, p.IsActive)
	assert.Equal(t, model.DefaultThreadsUserID, p.ThreadsUserID)
	assert.True(t, p.CanPublish())

	_, err := svc.CreatePersona(context.Background(), &CreatePersonaRequest{UserID: "u1", Name: "  "})
	assert.ErrorIs(t, err, ErrPersonaNameRequired)

	list, err := svc.ListUserPersonas(context.Background(), "u1")
	require.NoError(t, err)
	assert.Len(t, list, 1)
}

func TestPersonaService_TokenAndSwitches(t *testing.T) {
	ctx := context.Background()
	svc := NewPersonaService(setupTestDB(t))
	p := createPersona(t, svc)

	require.NoError(t, svc.UpdateToken(ctx, p.ID, ""))
	got, err := svc.GetPersona(ctx, p.ID)
	require.NoError(t, err)
	assert.False(t, got.CanPublish())

	require.NoError(t, svc.SetAutoReply(ctx, p.ID, false, true))
	got, err = svc.GetPersona(ctx, p.ID)
	require.NoError(t, err)
	assert.False(t, got.AIAutoReplyEnabled, "AI reply needs auto-reply on")

	require.NoError(t, svc.SetAutoReply(ctx, p.ID, true, true))
	got, err = svc.GetPersona(ctx, p.ID)
	require.NoError(t, err)
	assert.True(t, got.AutoReplyEnabled)
	assert.True(t, got.AIAutoReplyEnabled)

	require.NoError(t, svc.SetActive(ctx, p.ID, false))
	got, err = svc.GetPersona(ctx, p.ID)
	require.NoError(t, err)
	assert.False(t, got.IsActive)

	assert.ErrorIs(t, svc.UpdateToken(ctx, "missing", "x"), repository.ErrPersonaNotFound)
}

func TestPostService_CreatePost(t *testing.T) {
	ctx := context.Background()
	db := setupTestDB(t)
	persona := createPersona(t, NewPersonaService(db))
	svc := NewPostService(db, testConfig(t))

	draft, err := svc.CreatePost(ctx, &CreatePostRequest{PersonaID: persona.ID, Content: "hello"})
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(draft.ID, "PST"))
	assert.Equal(t, model.PostStatusDraft, draft.Status)
	assert.Nil(t, draft.ScheduledFor)
	assert.Equal(t, 3, draft.MaxRetries)

	at := time.Date(2026, 3, 1, 9, 0, 0, 0, time.FixedZone("UTC+2", 2*3600))
	zero := 0
	scheduled, err := svc.CreatePost(ctx, &CreatePostRequest{PersonaID: persona.ID, Content: "later", ScheduledFor: &at, MaxRetries: &zero})
	require.NoError(t, err)
	assert.Equal(t, model.PostStatusScheduled, scheduled.Status)
	assert.Equal(t, time.UTC, scheduled.ScheduledFor.Location())
	assert.True(t, scheduled.ScheduledFor.Equal(at))
	assert.Equal(t, 0, scheduled.MaxRetries)
}

func TestPostService_CreatePostValidation(t *testing.T) {
	ctx := context.Background()
	db := setupTestDB(t)
	persona := createPersona(t, NewPersonaService(db))
	svc := NewPostService(db, testConfig(t))

	_, err := svc.CreatePost(ctx, &CreatePostRequest{PersonaID: persona.ID, Content: "   "})
	assert.ErrorIs(t, err, ErrContentEmpty)

	_, err = svc.CreatePost(ctx, &CreatePostRequest{PersonaID: persona.ID, Content: strings.Repeat("a", 501)})
	assert.ErrorIs(t, err, ErrContentTooLong)

	// the limit counts characters, not bytes
	_, err = svc.CreatePost(ctx, &CreatePostRequest{PersonaID: persona.ID, Content: strings.Repeat("é", 500)})
	assert.NoError(t, err)

	negative := -1
	_, err = svc.CreatePost(ctx, &CreatePostRequest{PersonaID: persona.ID, Content: "x", MaxRetries: &negative})
	assert.ErrorIs(t, err, ErrInvalidMaxRetries)

	_, err = svc.CreatePost(ctx, &CreatePostRequest{PersonaID: "missing", Content: "x"})
	assert.ErrorIs(t, err, repository.ErrPersonaNotFound)
}

func TestPostService_ScheduleAndCancel(t *testing.T) {
	ctx := context.Background()
	db := setupTestDB(t)
	persona := createPersona(t, NewPersonaService(db))
	svc := NewPostService(db, testConfig(t))

	draft, err := svc.CreatePost(ctx, &CreatePostRequest{PersonaID: persona.ID, Content: "hello"})
	require.NoError(t, err)

	at := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	scheduled, err := svc.SchedulePost(ctx, draft.ID, at)
	require.NoError(t, err)
	assert.Equal(t, model.PostStatusScheduled, scheduled.Status)
	assert.True(t, scheduled.ScheduledFor.Equal(at))

	_, err = svc.SchedulePost(ctx, draft.ID, at)
	assert.ErrorIs(t, err, repository.ErrPostStatusInvalid, "already scheduled")

	require.NoError(t, svc.CancelPost(ctx, draft.ID))
	got, err := svc.GetPost(ctx, draft.ID)
	require.NoError(t, err)
	assert.Equal(t, model.PostStatusDraft, got.Status)

	require.NoError(t, db.Model(&model.Post{}).Where("id = ?", draft.ID).Update("status", model.PostStatusProcessing).Error)
	assert.ErrorIs(t, svc.CancelPost(ctx, draft.ID), repository.ErrPostStatusInvalid)

	_, err = svc.SchedulePost(ctx, "missing", at)
	assert.ErrorIs(t, err, repository.ErrPostNotFound)
}

func TestPostService_InactivePersona(t *testing.T) {
	ctx := context.Background()
	db := setupTestDB(t)
	personas := NewPersonaService(db)
	persona := createPersona(t, personas)
	svc := NewPostService(db, testConfig(t))

	draft, err := svc.CreatePost(ctx, &CreatePostRequest{PersonaID: persona.ID, Content: "hello"})
	require.NoError(t, err)

	require.NoError(t, personas.SetActive(ctx, persona.ID, false))

	_, err = svc.CreatePost(ctx, &CreatePostRequest{PersonaID: persona.ID, Content: "again"})
	assert.ErrorIs(t, err, ErrPersonaInactive)

	_, err = svc.SchedulePost(ctx, draft.ID, time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC))
	assert.ErrorIs(t, err, ErrPersonaInactive)

	got, err := svc.GetPost(ctx, draft.ID)
	require.NoError(t, err)
	assert.Equal(t, model.PostStatusDraft, got.Status)

	// existing posts stay readable
	_, total, err := svc.ListPersonaPosts(ctx, persona.ID, 1, 20)
	require.NoError(t, err)
	assert.Equal(t, int64(1), total)
}

func TestPostService_ListPersonaPosts(t *testing.T) {
	ctx := context.Background()
	db := setupTestDB(t)
	persona := createPersona(t, NewPersonaService(db))
	svc := NewPostService(db, testConfig(t))

	for i := 0; i < 3; i++ {
		_, err := svc.CreatePost(ctx, &CreatePostRequest{PersonaID: persona.ID, Content: "post"})
		require.NoError(t, err)
	}

	posts, total, err := svc.ListPersonaPosts(ctx, persona.ID, 0, 2)
	require.NoError(t, err)
	assert.Equal(t, int64(3), total)
	assert.Len(t, posts, 2)

	posts, _, err = svc.ListPersonaPosts(ctx, persona.ID, 2, 2)
	require.NoError(t, err)
	assert.Len(t, posts, 1)
}
