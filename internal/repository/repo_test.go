package repository

import (
	"context"
	"testing"
	"time"

	"threadspost/internal/infrastructure/database"
	"threadspost/internal/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

var testNow = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

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

func seedPersona(t *testing.T, db *gorm.DB, id string, active bool, token string) *model.Persona {
	t.Helper()
	p := &model.Persona{ID: id, UserID: "u1", Name: id, ThreadsUserID: "me", IsActive: active, AccessToken: token}
	require.NoError(t, db.Create(p).Error)
	return p
}

func seedPost(t *testing.T, db *gorm.DB, id, personaID, status string, at time.Time) *model.Post {
	t.Helper()
	p := &model.Post{ID: id, PersonaID: personaID, Content: "hello " + id, Status: status, ScheduledFor: &at, MaxRetries: 3}
	require.NoError(t, db.Create(p).Error)
	return p
}

func ids(posts []*model.Post) []string {
	out := make([]string, 0, len(posts))
	for _, p := range posts {
		out = append(out, p.ID)
	}
	return out
}

func TestPostRepository_SelectDue(t *testing.T) {
	db := setupTestDB(t)
	repo := NewPostRepository(db)
	ctx := context.Background()

	seedPersona(t, db, "active", true, "tok")
	seedPersona(t, db, "inactive", false, "tok")
	seedPersona(t, db, "notoken", true, "")

	seedPost(t, db, "due-late", "active", model.PostStatusScheduled, testNow.Add(-time.Minute))
	seedPost(t, db, "due-early", "active", model.PostStatusScheduled, testNow.Add(-time.Hour))
	seedPost(t, db, "in-window", "active", model.PostStatusScheduled, testNow.Add(4*time.Minute))
	seedPost(t, db, "beyond-window", "active", model.PostStatusScheduled, testNow.Add(6*time.Minute))
	seedPost(t, db, "draft", "active", model.PostStatusDraft, testNow.Add(-time.Minute))
	seedPost(t, db, "processing", "active", model.PostStatusProcessing, testNow.Add(-time.Minute))
	seedPost(t, db, "published", "active", model.PostStatusPublished, testNow.Add(-time.Minute))
	seedPost(t, db, "inactive-persona", "inactive", model.PostStatusScheduled, testNow.Add(-time.Minute))
	seedPost(t, db, "no-token", "notoken", model.PostStatusScheduled, testNow.Add(-time.Minute))

	posts, err := repo.SelectDue(ctx, testNow, 5*time.Minute, 10)
	require.NoError(t, err)
	assert.Equal(t, []string{"due-early", "due-late", "in-window"}, ids(posts))
	for _, p := range posts {
		require.NotNil(t, p.Persona)
		assert.Equal(t, "tok", p.Persona.AccessToken)
	}

	again, err := repo.SelectDue(ctx, testNow, 5*time.Minute, 10)
	require.NoError(t, err)
	assert.Equal(t, ids(posts), ids(again), "selection must be idempotent")

	capped, err := repo.SelectDue(ctx, testNow, 5*time.Minute, 2)
	require.NoError(t, err)
	assert.Equal(t, []string{"due-early", "due-late"}, ids(capped))
}

func TestPostRepository_Claim(t *testing.T) {
	db := setupTestDB(t)
	repo := NewPostRepository(db)
	ctx := context.Background()

	seedPersona(t, db, "p", true, "tok")
	seedPost(t, db, "post", "p", model.PostStatusScheduled, testNow)

	ok, err := repo.Claim(ctx, "post")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = repo.Claim(ctx, "post")
	require.NoError(t, err)
	assert.False(t, ok, "second claim must lose")

	post, err := repo.GetByID(ctx, "post")
	require.NoError(t, err)
	assert.Equal(t, model.PostStatusProcessing, post.Status)
}

func TestPostRepository_PublishAndRetryWrites(t *testing.T) {
	db := setupTestDB(t)
	repo := NewPostRepository(db)
	ctx := context.Background()

	seedPersona(t, db, "p", true, "tok")
	seedPost(t, db, "a", "p", model.PostStatusProcessing, testNow)
	seedPost(t, db, "b", "p", model.PostStatusProcessing, testNow)
	seedPost(t, db, "c", "p", model.PostStatusProcessing, testNow)

	require.NoError(t, repo.SetContainerID(ctx, "a", "container-1"))
	require.NoError(t, repo.MarkPublished(ctx, nil, "a", "media-1", testNow))
	a, err := repo.GetByID(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, model.PostStatusPublished, a.Status)
	assert.Equal(t, "container-1", a.ContainerID)
	assert.Equal(t, "media-1", a.ThreadsMediaID)
	require.NotNil(t, a.PublishedAt)
	assert.True(t, a.PublishedAt.Equal(testNow))

	next := testNow.Add(15 * time.Minute)
	require.NoError(t, repo.Reschedule(ctx, nil, "b", 1, testNow, next, "boom"))
	b, err := repo.GetByID(ctx, "b")
	require.NoError(t, err)
	assert.Equal(t, model.PostStatusScheduled, b.Status)
	assert.Equal(t, 1, b.RetryCount)
	assert.Equal(t, "boom", b.LastError)
	require.NotNil(t, b.ScheduledFor)
	assert.True(t, b.ScheduledFor.Equal(next))

	require.NoError(t, repo.MarkFailed(ctx, nil, "c", 4, testNow, "gave up"))
	c, err := repo.GetByID(ctx, "c")
	require.NoError(t, err)
	assert.Equal(t, model.PostStatusFailed, c.Status)
	assert.Equal(t, 4, c.RetryCount)

	// an empty media id leaves the stored one alone
	require.NoError(t, db.Model(&model.Post{}).Where("id = ?", "a").
		Updates(map[string]interface{}{"status": model.PostStatusProcessing}).Error)
	require.NoError(t, repo.MarkPublished(ctx, nil, "a", "", testNow.Add(time.Minute)))
	a, err = repo.GetByID(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, model.PostStatusPublished, a.Status)
	assert.Equal(t, "media-1", a.ThreadsMediaID)

	// terminal rows are not touched again
	assert.ErrorIs(t, repo.MarkPublished(ctx, nil, "c", "x", testNow), ErrPostStatusInvalid)
	assert.ErrorIs(t, repo.SetContainerID(ctx, "a", "other"), ErrPostStatusInvalid)
}

func TestPostRepository_UpdateStatus(t *testing.T) {
	db := setupTestDB(t)
	repo := NewPostRepository(db)
	ctx := context.Background()

	seedPersona(t, db, "p", true, "tok")
	require.NoError(t, db.Create(&model.Post{ID: "d", PersonaID: "p", Content: "x", Status: model.PostStatusDraft}).Error)

	at := testNow.Add(time.Hour)
	require.NoError(t, repo.UpdateStatus(ctx, nil, "d", model.PostStatusDraft, model.PostStatusScheduled, &at))

	post, err := repo.GetByID(ctx, "d")
	require.NoError(t, err)
	assert.Equal(t, model.PostStatusScheduled, post.Status)

	assert.ErrorIs(t, repo.UpdateStatus(ctx, nil, "d", model.PostStatusDraft, model.PostStatusScheduled, &at), ErrPostStatusInvalid)
	assert.ErrorIs(t, repo.UpdateStatus(ctx, nil, "d", model.PostStatusScheduled, model.PostStatusPublished, nil), ErrPostStatusInvalid)

	_, err = repo.GetByID(ctx, "missing")
	assert.ErrorIs(t, err, ErrPostNotFound)
}

func TestPostRepository_StuckProcessing(t *testing.T) {
	db := setupTestDB(t)
	repo := NewPostRepository(db)
	ctx := context.Background()

	seedPersona(t, db, "p", true, "tok")
	old := &model.Post{ID: "old", PersonaID: "p", Content: "x", Status: model.PostStatusProcessing,
		ContainerID: "c1", UpdatedAt: testNow.Add(-time.Hour)}
	fresh := &model.Post{ID: "fresh", PersonaID: "p", Content: "x", Status: model.PostStatusProcessing,
		UpdatedAt: testNow.Add(-time.Minute)}
	require.NoError(t, db.Create(old).Error)
	require.NoError(t, db.Create(fresh).Error)

	stuck, err := repo.GetStuckProcessing(ctx, testNow.Add(-10*time.Minute), 10)
	require.NoError(t, err)
	assert.Equal(t, []string{"old"}, ids(stuck))

	require.NoError(t, repo.Requeue(ctx, "old", "requeued"))
	post, err := repo.GetByID(ctx, "old")
	require.NoError(t, err)
	assert.Equal(t, model.PostStatusScheduled, post.Status)
	assert.Equal(t, "c1", post.ContainerID)
}

func TestPostRepository_ListByPersona(t *testing.T) {
	db := setupTestDB(t)
	repo := NewPostRepository(db)

	seedPersona(t, db, "p", true, "tok")
	for _, id := range []string{"1", "2", "3"} {
		seedPost(t, db, id, "p", model.PostStatusScheduled, testNow)
	}

	posts, total, err := repo.ListByPersona(context.Background(), "p", 1, 2)
	require.NoError(t, err)
	assert.EqualValues(t, 3, total)
	assert.Len(t, posts, 2)
}
