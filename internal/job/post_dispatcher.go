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
	"threadspost/internal/infrastructure/threads"
	"threadspost/internal/model"
	"threadspost/internal/repository"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const (
	JobDispatch      = "dispatch"
	JobReplyRecovery = "recover-replies"
	JobOutbox        = "outbox"
)

const (
	outcomePublished = metrics.OutcomePublished
	outcomeRetried   = metrics.OutcomeRetried
	outcomeFailed    = metrics.OutcomeFailed
	outcomeSkipped   = metrics.OutcomeSkipped
)

// ThreadsPublisher is the part of the Threads API the dispatcher needs.
type ThreadsPublisher interface {
	CreateTextContainer(ctx context.Context, token, userID, text string) (string, error)
	PublishContainer(ctx context.Context, token, userID, containerID string) (string, error)
	GetContainer(ctx context.Context, token, containerID string) (*threads.Container, error)
}

// RunLocker keeps two runs of the same job from overlapping.
type RunLocker interface {
	TryLock(ctx context.Context) (bool, error)
	Unlock(ctx context.Context) error
}

// LockFactory returns the run lock of job for the run identified by owner.
type LockFactory func(job, owner string) RunLocker

type DispatchResult struct {
	PostID        string     `json:"post_id"`
	Outcome       string     `json:"outcome"`
	RetryCount    int        `json:"retry_count"`
	NextAttemptAt *time.Time `json:"next_attempt_at,omitempty"`
	Error         string     `json:"error,omitempty"`
}

// RunSummary is the JSON answer of a dispatcher run.
type RunSummary struct {
	RunID     string           `json:"run_id"`
	Success   bool             `json:"success"`
	Processed int              `json:"processed"`
	Published int              `json:"published"`
	Retried   int              `json:"retried"`
	Failed    int              `json:"failed"`
	Skipped   int              `json:"skipped"`
	Message   string           `json:"message,omitempty"`
	Error     string           `json:"error,omitempty"`
	Results   []DispatchResult `json:"results"`
}

func (s *RunSummary) add(res DispatchResult) {
	s.Results = append(s.Results, res)
	switch res.Outcome {
	case outcomePublished:
		s.Published++
	case outcomeRetried:
		s.Retried++
	case outcomeFailed:
		s.Failed++
	case outcomeSkipped:
		s.Skipped++
		return
	}
	s.Processed++
}

// PostDispatcher publishes due scheduled posts. Each Run is a short batch:
// select, then claim and publish the posts one at a time.
type PostDispatcher struct {
	db          *gorm.DB
	postRepo    *repository.PostRepository
	outboxRepo  *repository.OutboxRepository
	publisher   ThreadsPublisher
	policy      *RetryPolicy
	cfg         *config.Config
	lockFactory LockFactory
	window      time.Duration
	batchSize   int
	now         func() time.Time
	log         *zap.Logger
}

func NewPostDispatcher(db *gorm.DB, publisher ThreadsPublisher, cfg *config.Config) *PostDispatcher {
	return &PostDispatcher{
		db:         db,
		postRepo:   repository.NewPostRepository(db),
		outboxRepo: repository.NewOutboxRepository(db),
		publisher:  publisher,
		policy:     NewRetryPolicy(cfg.Scheduler.RetryBaseDelay, cfg.Scheduler.RetryJitterRatio),
		cfg:        cfg,
		window:     cfg.Scheduler.LookaheadWindow,
		batchSize:  cfg.Scheduler.BatchSize,
		now:        func() time.Time { return time.Now().UTC() },
		log:        logger.Named("PostDispatcher"),
	}
}

// SetLockFactory enables the per-deployment run lock.
func (d *PostDispatcher) SetLockFactory(f LockFactory) {
	d.lockFactory = f
}

// Run processes one batch. A storage failure aborts the run and is returned
// together with the partial summary; publish failures only affect their post.
func (d *PostDispatcher) Run(ctx context.Context) (*RunSummary, error) {
	start := time.Now()
	defer func() {
		metrics.JobDuration.WithLabelValues(JobDispatch).Observe(time.Since(start).Seconds())
	}()

	summary := &RunSummary{RunID: uuid.NewString(), Results: []DispatchResult{}}
	log := d.log.With(zap.String("run_id", summary.RunID))

	if d.lockFactory != nil {
		runLock := d.lockFactory(JobDispatch, summary.RunID)
		ok, err := runLock.TryLock(ctx)
		if err != nil {
			return d.abort(summary, fmt.Errorf("acquire run lock: %w", err))
		}
		if !ok {
			metrics.JobRuns.WithLabelValues(JobDispatch, "locked").Inc()
			summary.Success = true
			summary.Message = "another dispatch run is in progress"
			log.Info("skipping run, lock held elsewhere")
			return summary, nil
		}
		defer func() {
			if err := runLock.Unlock(context.Background()); err != nil {
				log.Warn("release run lock failed", zap.Error(err))
			}
		}()
	}

	posts, err := d.postRepo.SelectDue(ctx, d.now(), d.window, d.batchSize)
	if err != nil {
		return d.abort(summary, fmt.Errorf("select due posts: %w", err))
	}

	if len(posts) == 0 {
		metrics.JobRuns.WithLabelValues(JobDispatch, "ok").Inc()
		summary.Success = true
		summary.Message = "no posts due"
		return summary, nil
	}

	log.Info("dispatching due posts", zap.Int("count", len(posts)))

	for _, post := range posts {
		res, err := d.dispatch(ctx, post)
		if err != nil {
			return d.abort(summary, err)
		}
		metrics.PostsDispatched.WithLabelValues(res.Outcome).Inc()
		summary.add(res)
	}

	metrics.JobRuns.WithLabelValues(JobDispatch, "ok").Inc()
	summary.Success = true
	summary.Message = fmt.Sprintf("processed %d posts: %d published, %d retried, %d failed, %d skipped",
		summary.Processed, summary.Published, summary.Retried, summary.Failed, summary.Skipped)
	log.Info("dispatch run finished",
		zap.Int("published", summary.Published),
		zap.Int("retried", summary.Retried),
		zap.Int("failed", summary.Failed),
		zap.Int("skipped", summary.Skipped))
	return summary, nil
}

func (d *PostDispatcher) abort(summary *RunSummary, err error) (*RunSummary, error) {
	metrics.JobRuns.WithLabelValues(JobDispatch, "error").Inc()
	summary.Success = false
	summary.Error = err.Error()
	d.log.Error("dispatch run aborted", zap.String("run_id", summary.RunID), zap.Error(err))
	alert.Capture(err, map[string]string{"job": JobDispatch, "run_id": summary.RunID})
	return summary, err
}

// dispatch handles one post. The returned error is always a storage error.
func (d *PostDispatcher) dispatch(ctx context.Context, post *model.Post) (DispatchResult, error) {
	res := DispatchResult{PostID: post.ID, RetryCount: post.RetryCount}
	log := d.log.With(zap.String("post_id", post.ID), zap.String("persona_id", post.PersonaID))

	claimed, err := d.postRepo.Claim(ctx, post.ID)
	if err != nil {
		return res, fmt.Errorf("claim post %s: %w", post.ID, err)
	}
	if !claimed {
		res.Outcome = outcomeSkipped
		res.Error = "claimed by another run"
		log.Info("post already claimed, skipping")
		return res, nil
	}
	post.Status = model.PostStatusProcessing

	mediaID, storeErr, publishErr := d.publish(ctx, post, log)
	if storeErr != nil {
		return res, storeErr
	}

	if publishErr == nil {
		err := d.markPublished(ctx, post, mediaID)
		if errors.Is(err, repository.ErrPostStatusInvalid) {
			res.Outcome = outcomeSkipped
			res.Error = "post changed state while publishing"
			log.Warn("published post no longer in processing")
			return res, nil
		}
		if err != nil {
			return res, fmt.Errorf("mark post %s published: %w", post.ID, err)
		}
		res.Outcome = outcomePublished
		log.Info("post published", zap.String("media_id", mediaID))
		return res, nil
	}

	return d.handleFailure(ctx, post, publishErr, log)
}

// publish makes sure the post is live on Threads exactly once per container.
// A container id recorded by an earlier attempt is checked first, so a
// publish that succeeded before a lost status write is not repeated.
func (d *PostDispatcher) publish(ctx context.Context, post *model.Post, log *zap.Logger) (mediaID string, storeErr, publishErr error) {
	persona := post.Persona
	if !persona.CanPublish() {
		return "", nil, errors.New("persona has no usable credential")
	}
	token := persona.AccessToken
	userID := persona.GraphUserID()

	containerID := post.ContainerID
	if containerID != "" {
		container, err := d.publisher.GetContainer(ctx, token, containerID)
		switch {
		case threads.IsContainerGone(err):
			log.Warn("recorded container is gone, creating a new one",
				zap.String("container_id", containerID), zap.Error(err))
			containerID = ""
		case err != nil:
			return "", nil, err
		case container.Status == threads.ContainerStatusPublished:
			return "", nil, nil
		case container.Status == threads.ContainerStatusError, container.Status == threads.ContainerStatusExpired:
			containerID = ""
		}
	}

	if containerID == "" {
		id, err := d.publisher.CreateTextContainer(ctx, token, userID, post.Content)
		if err != nil {
			return "", nil, err
		}
		if err := d.postRepo.SetContainerID(ctx, post.ID, id); err != nil {
			return "", fmt.Errorf("record container for post %s: %w", post.ID, err), nil
		}
		post.ContainerID = id
		containerID = id
	}

	mediaID, err := d.publisher.PublishContainer(ctx, token, userID, containerID)
	if err != nil {
		return "", nil, err
	}
	return mediaID, nil, nil
}

func (d *PostDispatcher) markPublished(ctx context.Context, post *model.Post, mediaID string) error {
	now := d.now()
	return d.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := d.postRepo.MarkPublished(ctx, tx, post.ID, mediaID, now); err != nil {
			return err
		}
		return d.outboxRepo.CreatePostEvent(ctx, tx, d.cfg.Kafka.Topic.PostPublished, &model.PostEvent{
			Event:          model.EventPostPublished,
			PostID:         post.ID,
			PersonaID:      post.PersonaID,
			Status:         model.PostStatusPublished,
			RetryCount:     post.RetryCount,
			ThreadsMediaID: mediaID,
			PublishedAt:    &now,
			OccurredAt:     now,
			Recovered:      mediaID == "",
		})
	})
}

func (d *PostDispatcher) handleFailure(ctx context.Context, post *model.Post, publishErr error, log *zap.Logger) (DispatchResult, error) {
	decision := d.policy.Next(post.RetryCount, post.MaxRetries, d.now())
	res := DispatchResult{PostID: post.ID, RetryCount: decision.RetryCount, Error: publishErr.Error()}

	if !decision.Terminal {
		err := d.postRepo.Reschedule(ctx, nil, post.ID, decision.RetryCount, decision.RetriedAt, decision.NextAttemptAt, publishErr.Error())
		if err != nil {
			return res, fmt.Errorf("reschedule post %s: %w", post.ID, err)
		}
		next := decision.NextAttemptAt
		res.Outcome = outcomeRetried
		res.NextAttemptAt = &next
		log.Warn("publish failed, rescheduled",
			zap.Int("retry_count", decision.RetryCount),
			zap.Time("next_attempt_at", next),
			zap.Error(publishErr))
		return res, nil
	}

	err := d.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := d.postRepo.MarkFailed(ctx, tx, post.ID, decision.RetryCount, decision.RetriedAt, publishErr.Error()); err != nil {
			return err
		}
		return d.outboxRepo.CreatePostEvent(ctx, tx, d.cfg.Kafka.Topic.PostFailed, &model.PostEvent{
			Event:      model.EventPostFailed,
			PostID:     post.ID,
			PersonaID:  post.PersonaID,
			Status:     model.PostStatusFailed,
			RetryCount: decision.RetryCount,
			Error:      publishErr.Error(),
			OccurredAt: decision.RetriedAt,
		})
	})
	if err != nil {
		return res, fmt.Errorf("mark post %s failed: %w", post.ID, err)
	}

	res.Outcome = outcomeFailed
	log.Error("publish failed, retries exhausted",
		zap.Int("retry_count", decision.RetryCount),
		zap.Error(publishErr))
	alert.Capture(fmt.Errorf("post %s failed permanently: %w", post.ID, publishErr), map[string]string{
		"job":        JobDispatch,
		"post_id":    post.ID,
		"persona_id": post.PersonaID,
	})
	return res, nil
}
