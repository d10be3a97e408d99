package repository

import (
	"context"
	"testing"
	"time"

	"threadspost/internal/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func seedReply(t *testing.T, db *gorm.DB, replyID, personaID, status string, attempted bool, updatedAt time.Time) *model.ReplyRecord {
	t.Helper()
	r := &model.ReplyRecord{
		ReplyID:       replyID,
		PersonaID:     personaID,
		Status:        status,
		AutoReplySent: attempted,
		RetryCount:    2,
		LastRetryAt:   &updatedAt,
		UpdatedAt:     updatedAt,
	}
	require.NoError(t, db.Create(r).Error)
	return r
}

func replyIDs(replies []*model.ReplyRecord) []string {
	out := make([]string, 0, len(replies))
	for _, r := range replies {
		out = append(out, r.ReplyID)
	}
	return out
}

func TestReplyRepository_FindStuck(t *testing.T) {
	db := setupTestDB(t)
	repo := NewReplyRepository(db)
	ctx := context.Background()

	seedPersona(t, db, "ai", true, "tok")
	seedPersona(t, db, "manual", true, "tok")
	require.NoError(t, NewPersonaRepository(db).SetAutoReply(ctx, "ai", true, true))

	old := testNow.Add(-time.Hour)
	recent := testNow.Add(-time.Minute)

	seedReply(t, db, "failed-old", "ai", model.ReplyStatusFailed, true, old)
	seedReply(t, db, "failed-recent", "ai", model.ReplyStatusFailed, true, recent)
	seedReply(t, db, "processing-old", "ai", model.ReplyStatusProcessing, true, old)
	seedReply(t, db, "processing-recent", "ai", model.ReplyStatusProcessing, true, recent)
	seedReply(t, db, "not-attempted", "ai", model.ReplyStatusFailed, false, old)
	seedReply(t, db, "sent", "ai", model.ReplyStatusSent, true, old)
	seedReply(t, db, "disabled-persona", "manual", model.ReplyStatusFailed, true, old)

	stuck, err := repo.FindStuck(ctx, testNow.Add(-10*time.Minute), 100)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"failed-old", "failed-recent", "processing-old"}, replyIDs(stuck))

	all, err := repo.FindStuck(ctx, time.Time{}, 100)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"failed-old", "failed-recent", "processing-old", "processing-recent"}, replyIDs(all))
}

func TestReplyRepository_ResetStuck(t *testing.T) {
	db := setupTestDB(t)
	repo := NewReplyRepository(db)
	ctx := context.Background()

	seedPersona(t, db, "ai", true, "tok")
	r := seedReply(t, db, "r1", "ai", model.ReplyStatusFailed, true, testNow.Add(-time.Hour))

	ok, err := repo.ResetStuck(ctx, r.ID, model.ReplyStatusFailed, testNow.Add(-10*time.Minute), "reset")
	require.NoError(t, err)
	assert.True(t, ok)

	got := loadReply(t, db, r.ID)
	assert.Equal(t, model.ReplyStatusPending, got.Status)
	assert.False(t, got.AutoReplySent)
	assert.Equal(t, 0, got.RetryCount)
	assert.Nil(t, got.LastRetryAt)
	assert.Equal(t, "reset", got.ErrorDetails)

	ok, err = repo.ResetStuck(ctx, r.ID, model.ReplyStatusFailed, testNow.Add(-10*time.Minute), "reset")
	require.NoError(t, err)
	assert.False(t, ok, "second reset is a no-op")
}

func TestReplyRepository_ResetStuckRechecksAge(t *testing.T) {
	db := setupTestDB(t)
	repo := NewReplyRepository(db)
	ctx := context.Background()

	seedPersona(t, db, "ai", true, "tok")
	r := seedReply(t, db, "r1", "ai", model.ReplyStatusProcessing, true, testNow.Add(-time.Hour))
	cutoff := testNow.Add(-10 * time.Minute)

	// a worker picks the reply up again after the sweep read it
	require.NoError(t, db.Model(&model.ReplyRecord{}).Where("id = ?", r.ID).
		UpdateColumn("updated_at", testNow.Add(-time.Minute)).Error)

	ok, err := repo.ResetStuck(ctx, r.ID, model.ReplyStatusProcessing, cutoff, "reset")
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Equal(t, model.ReplyStatusProcessing, loadReply(t, db, r.ID).Status)

	require.NoError(t, db.Model(&model.ReplyRecord{}).Where("id = ?", r.ID).
		UpdateColumn("updated_at", testNow.Add(-time.Hour)).Error)
	ok, err = repo.ResetStuck(ctx, r.ID, model.ReplyStatusProcessing, cutoff, "reset")
	require.NoError(t, err)
	assert.True(t, ok)

	// with the age filter off only the status guard applies
	r2 := seedReply(t, db, "r2", "ai", model.ReplyStatusProcessing, true, testNow.Add(-time.Minute))
	ok, err = repo.ResetStuck(ctx, r2.ID, model.ReplyStatusProcessing, time.Time{}, "reset")
	require.NoError(t, err)
	assert.True(t, ok)
}

func loadReply(t *testing.T, db *gorm.DB, id int64) *model.ReplyRecord {
	t.Helper()
	var r model.ReplyRecord
	require.NoError(t, db.Where("id = ?", id).First(&r).Error)
	return &r
}
