package job

import (
	"context"
	"errors"
	"fmt"
	"time"

	"threadspost/internal/config"
	"threadspost/internal/infrastructure/alert"
	"threadspost/internal/infrastructure/logger"
	"threadspost/internal/infrastructure/metrics"
	"threadspost/internal/repository"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const (
	RecoveryKindReply = "reply"
	RecoveryKindPost  = "post"
)

type RecoveryResult struct {
	Kind           string `json:"kind"`
	ID             string `json:"id"`
	PreviousStatus string `json:"previous_status"`
	Reason         string `json:"reason"`
	Reset          bool   `json:"reset"`
}

// RecoverySummary is the JSON answer of a recovery sweep.
type RecoverySummary struct {
	RunID        string           `json:"run_id"`
	Success      bool             `json:"success"`
	Processed    int              `json:"processed"`
	ResetReplies int              `json:"reset_replies"`
	ResetPosts   int              `json:"reset_posts"`
	Message      string           `json:"message,omitempty"`
	Error        string           `json:"error,omitempty"`
	Results      []RecoveryResult `json:"results"`
}

// ReplyRecovery makes stuck auto-reply attempts retryable again and returns
// posts abandoned in processing to the schedule.
type ReplyRecovery struct {
	replyRepo   *repository.ReplyRepository
	postRepo    *repository.PostRepository
	lockFactory LockFactory
	threshold   time.Duration
	batchSize   int
	now         func() time.Time
	log         *zap.Logger
}

func NewReplyRecovery(db *gorm.DB, cfg *config.Config) *ReplyRecovery {
	return &ReplyRecovery{
		replyRepo: repository.NewReplyRepository(db),
		postRepo:  repository.NewPostRepository(db),
		threshold: cfg.Scheduler.StuckThreshold,
		batchSize: cfg.Scheduler.RecoveryBatchSize,
		now:       func() time.Time { return time.Now().UTC() },
		log:       logger.Named("ReplyRecovery"),
	}
}

func (r *ReplyRecovery) SetLockFactory(f LockFactory) {
	r.lockFactory = f
}

// Run performs one sweep. Rows that changed state between the read and the
// reset are reported with Reset=false and left alone.
func (r *ReplyRecovery) Run(ctx context.Context) (*RecoverySummary, error) {
	start := time.Now()
	defer func() {
		metrics.JobDuration.WithLabelValues(JobReplyRecovery).Observe(time.Since(start).Seconds())
	}()

	summary := &RecoverySummary{RunID: uuid.NewString(), Results: []RecoveryResult{}}
	log := r.log.With(zap.String("run_id", summary.RunID))

	if r.lockFactory != nil {
		runLock := r.lockFactory(JobReplyRecovery, summary.RunID)
		ok, err := runLock.TryLock(ctx)
		if err != nil {
			return r.abort(summary, fmt.Errorf("acquire run lock: %w", err))
		}
		if !ok {
			metrics.JobRuns.WithLabelValues(JobReplyRecovery, "locked").Inc()
			summary.Success = true
			summary.Message = "another recovery run is in progress"
			return summary, nil
		}
		defer func() {
			if err := runLock.Unlock(context.Background()); err != nil {
				log.Warn("release run lock failed", zap.Error(err))
			}
		}()
	}

	now := r.now()
	var cutoff time.Time
	if r.threshold > 0 {
		cutoff = now.Add(-r.threshold)
	}

	if err := r.resetReplies(ctx, summary, cutoff); err != nil {
		return r.abort(summary, err)
	}
	if !cutoff.IsZero() {
		if err := r.requeuePosts(ctx, summary, cutoff); err != nil {
			return r.abort(summary, err)
		}
	}

	metrics.JobRuns.WithLabelValues(JobReplyRecovery, "ok").Inc()
	summary.Success = true
	if summary.Processed == 0 {
		summary.Message = "no stuck records"
		return summary, nil
	}
	summary.Message = fmt.Sprintf("reset %d replies and %d posts", summary.ResetReplies, summary.ResetPosts)
	log.Info("recovery sweep finished",
		zap.Int("reset_replies", summary.ResetReplies),
		zap.Int("reset_posts", summary.ResetPosts))
	return summary, nil
}

func (r *ReplyRecovery) resetReplies(ctx context.Context, summary *RecoverySummary, cutoff time.Time) error {
	replies, err := r.replyRepo.FindStuck(ctx, cutoff, r.batchSize)
	if err != nil {
		return fmt.Errorf("find stuck replies: %w", err)
	}

	for _, reply := range replies {
		reason := fmt.Sprintf("reset by recovery sweep from %s", reply.Status)
		ok, err := r.replyRepo.ResetStuck(ctx, reply.ID, reply.Status, cutoff, reason)
		if err != nil {
			return fmt.Errorf("reset reply %d: %w", reply.ID, err)
		}
		summary.Processed++
		summary.Results = append(summary.Results, RecoveryResult{
			Kind:           RecoveryKindReply,
			ID:             reply.ReplyID,
			PreviousStatus: reply.Status,
			Reason:         reason,
			Reset:          ok,
		})
		if ok {
			summary.ResetReplies++
			metrics.RecordsRecovered.WithLabelValues(RecoveryKindReply).Inc()
		}
	}
	return nil
}

func (r *ReplyRecovery) requeuePosts(ctx context.Context, summary *RecoverySummary, cutoff time.Time) error {
	posts, err := r.postRepo.GetStuckProcessing(ctx, cutoff, r.batchSize)
	if err != nil {
		return fmt.Errorf("find stuck posts: %w", err)
	}

	for _, post := range posts {
		reason := "requeued by recovery sweep after stalling in processing"
		err := r.postRepo.Requeue(ctx, post.ID, reason)
		ok := err == nil
		if err != nil && !errors.Is(err, repository.ErrPostStatusInvalid) {
			return fmt.Errorf("requeue post %s: %w", post.ID, err)
		}
		summary.Processed++
		summary.Results = append(summary.Results, RecoveryResult{
			Kind:           RecoveryKindPost,
			ID:             post.ID,
			PreviousStatus: post.Status,
			Reason:         reason,
			Reset:          ok,
		})
		if ok {
			summary.ResetPosts++
			metrics.RecordsRecovered.WithLabelValues(RecoveryKindPost).Inc()
			r.log.Warn("stuck post requeued", zap.String("post_id", post.ID), zap.String("container_id", post.ContainerID))
		}
	}
	return nil
}

func (r *ReplyRecovery) abort(summary *RecoverySummary, err error) (*RecoverySummary, error) {
	metrics.JobRuns.WithLabelValues(JobReplyRecovery, "error").Inc()
	summary.Success = false
	summary.Error = err.Error()
	r.log.Error("recovery sweep aborted", zap.String("run_id", summary.RunID), zap.Error(err))
	alert.Capture(err, map[string]string{"job": JobReplyRecovery, "run_id": summary.RunID})
	return summary, err
}
