package scheduler

import (
	"context"
	"encoding/json"
	"time"

	"model-api/internal/nats/server"
	"model-api/logging"
	"model-api/store"
	"model-api/submission"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
	"github.com/pkg/errors"
)

const (
	submissionConsumer = "submission-worker"

	// A job is redelivered at most this many times before it is dropped;
	// the next tick enqueues a fresh one anyway.
	maxDeliveries = 5
	nackDelay     = 5 * time.Second
)

// InferenceJob is one unit of work: attempt a submission for one model.
type InferenceJob struct {
	Id         string    `json:"id"`
	ModelId    string    `json:"model_id"`
	TopicId    uint64    `json:"topic_id"`
	EnqueuedAt time.Time `json:"enqueued_at"`
}

// jobPublisher is the subset of nats.JetStreamContext the scheduler writes to.
type jobPublisher interface {
	Publish(subj string, data []byte, opts ...nats.PubOpt) (*nats.PubAck, error)
}

type jobDisposition int

const (
	dispositionAck jobDisposition = iota
	dispositionRetry
	dispositionDrop
)

// Scheduler drives the submission loop: every tick it enqueues one job per
// active model, and a pool of durable consumers works the queue. Redelivery
// via JetStream gives failed jobs their bounded retries.
type Scheduler struct {
	store    *store.Store
	js       nats.JetStreamContext
	pipeline *submission.Pipeline

	interval   time.Duration
	jobTimeout time.Duration
	workers    int
}

func NewScheduler(st *store.Store, js nats.JetStreamContext, pipeline *submission.Pipeline, interval, jobTimeout time.Duration, workers int) *Scheduler {
	if workers <= 0 {
		workers = 1
	}
	return &Scheduler{
		store:      st,
		js:         js,
		pipeline:   pipeline,
		interval:   interval,
		jobTimeout: jobTimeout,
		workers:    workers,
	}
}

// Start launches the consumer and the ticker loop. It returns once the
// consumer subscription is in place; the loop runs until ctx is done.
func (s *Scheduler) Start(ctx context.Context) error {
	if err := s.consumeJobs(ctx); err != nil {
		return errors.Wrap(err, "failed to start job consumer")
	}

	go func() {
		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				logging.Info("Scheduler stopped", logging.Scheduler)
				return
			case <-ticker.C:
				if err := s.enqueueJobs(ctx); err != nil {
					logging.Error("Failed to enqueue submission jobs", logging.Scheduler, "err", err)
				}
			}
		}
	}()
	return nil
}

func (s *Scheduler) enqueueJobs(ctx context.Context) error {
	models, err := s.store.ListActiveModels(ctx)
	if err != nil {
		return errors.Wrap(err, "failed to list active models")
	}

	for _, model := range models {
		if err := publishJob(s.js, model); err != nil {
			logging.Error("Failed to publish job", logging.Scheduler, "err", err, "modelId", model.Id)
			continue
		}
	}
	logging.Debug("Enqueued submission jobs", logging.Scheduler, "count", len(models))
	return nil
}

func publishJob(js jobPublisher, model store.Model) error {
	b, err := json.Marshal(&InferenceJob{
		Id:         uuid.New().String(),
		ModelId:    model.Id,
		TopicId:    model.TopicId,
		EnqueuedAt: time.Now().UTC(),
	})
	if err != nil {
		return err
	}
	_, err = js.Publish(server.SubmissionJobsStream, b)
	return err
}

// consumeJobs starts a bounded pool of queue subscribers. They share one
// durable consumer, so each job is delivered to exactly one worker.
func (s *Scheduler) consumeJobs(ctx context.Context) error {
	for i := 0; i < s.workers; i++ {
		_, err := s.js.QueueSubscribe(server.SubmissionJobsStream, submissionConsumer, func(msg *nats.Msg) {
			switch s.processJob(ctx, msg.Data) {
			case dispositionAck:
				msg.Ack()
			case dispositionRetry:
				msg.NakWithDelay(nackDelay)
			case dispositionDrop:
				msg.Term()
			}
		}, nats.Durable(submissionConsumer), nats.ManualAck(), nats.MaxDeliver(maxDeliveries))
		if err != nil {
			return err
		}
	}
	return nil
}

// processJob runs the pipeline for one job. Skips are successes; only
// recoverable failures are worth a redelivery.
func (s *Scheduler) processJob(ctx context.Context, data []byte) jobDisposition {
	var job InferenceJob
	if err := json.Unmarshal(data, &job); err != nil {
		logging.Error("Malformed job payload, dropping", logging.Scheduler, "err", err)
		return dispositionDrop
	}

	jobCtx, cancel := context.WithTimeout(ctx, s.jobTimeout)
	defer cancel()

	outcome, err := s.pipeline.Run(jobCtx, job.ModelId)
	if err != nil {
		if submission.IsRecoverable(err) {
			logging.Warn("Job failed, will retry", logging.Scheduler,
				"jobId", job.Id, "modelId", job.ModelId, "err", err)
			return dispositionRetry
		}
		logging.Error("Job failed permanently", logging.Scheduler,
			"err", err, "jobId", job.Id, "modelId", job.ModelId)
		return dispositionDrop
	}

	logging.Debug("Job finished", logging.Scheduler,
		"jobId", job.Id, "modelId", job.ModelId, "status", outcome.Status, "reason", outcome.Reason)
	return dispositionAck
}
