package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Outcome labels of PostsDispatched.
const (
	OutcomePublished = "published"
	OutcomeRetried   = "retried"
	OutcomeFailed    = "failed"
	OutcomeSkipped   = "skipped"
)

var (
	PostsDispatched = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "threadspost",
		Name:      "posts_dispatched_total",
		Help:      "Posts handled by the dispatcher, by outcome.",
	}, []string{"outcome"})

	JobRuns = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "threadspost",
		Name:      "job_runs_total",
		Help:      "Batch job runs, by job and result (ok, error, locked).",
	}, []string{"job", "result"})

	JobDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "threadspost",
		Name:      "job_duration_seconds",
		Help:      "Wall time of batch job runs.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"job"})

	RecordsRecovered = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "threadspost",
		Name:      "records_recovered_total",
		Help:      "Stuck records reset by the recovery sweep, by kind.",
	}, []string{"kind"})

	OutboxSent = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "threadspost",
		Name:      "outbox_messages_total",
		Help:      "Outbox messages shipped to Kafka, by result.",
	}, []string{"result"})
)

// Register adds all collectors to reg.
func Register(reg prometheus.Registerer) error {
	for _, c := range []prometheus.Collector{PostsDispatched, JobRuns, JobDuration, RecordsRecovered, OutboxSent} {
		if err := reg.Register(c); err != nil {
			return err
		}
	}
	return nil
}
