package job

import (
	"math/rand"
	"time"
)

// RetryDecision is what the policy decided for one failed publish attempt.
type RetryDecision struct {
	RetryCount    int
	RetriedAt     time.Time
	Terminal      bool
	Delay         time.Duration
	NextAttemptAt time.Time
}

// RetryPolicy reschedules failed posts with linear backoff: attempt n waits
// BaseDelay*n, plus up to JitterRatio of that as random jitter.
type RetryPolicy struct {
	BaseDelay   time.Duration
	JitterRatio float64

	rand func() float64
}

func NewRetryPolicy(baseDelay time.Duration, jitterRatio float64) *RetryPolicy {
	return &RetryPolicy{
		BaseDelay:   baseDelay,
		JitterRatio: jitterRatio,
		rand:        rand.Float64,
	}
}

// Next decides the state after a failure of a post that had failed
// retryCount times before and may be retried maxRetries times in total.
func (p *RetryPolicy) Next(retryCount, maxRetries int, now time.Time) RetryDecision {
	attempt := retryCount + 1
	d := RetryDecision{
		RetryCount: attempt,
		RetriedAt:  now,
	}

	if attempt > maxRetries {
		d.Terminal = true
		return d
	}

	delay := p.BaseDelay * time.Duration(attempt)
	if p.JitterRatio > 0 && p.rand != nil {
		delay += time.Duration(p.rand() * p.JitterRatio * float64(delay))
	}

	d.Delay = delay
	d.NextAttemptAt = now.Add(delay)
	return d
}
