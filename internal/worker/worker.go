// Package worker provides a NATS worker that processes synthesis jobs.
package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/book-expert/logger"
	"github.com/google/uuid"
	"github.com/nats-io/nats.go"

	"github.com/flowsmartly/voice-worker/internal/core"
)

// DefaultJobTimeout bounds one job when no timeout is configured.
const DefaultJobTimeout = 5 * time.Minute

// NatsWorker listens for synthesis jobs on a NATS subject and processes
// them. Concurrency across jobs is the dispatcher's policy; the pipeline is
// safe to invoke from concurrent deliveries.
type NatsWorker struct {
	natsConnection *nats.Conn
	subject        string
	runner         core.JobRunner
	jobTimeout     time.Duration
	log            *logger.Logger
}

// NewNatsWorker creates a new instance of a NATS worker.
func NewNatsWorker(
	natsConnection *nats.Conn,
	subject string,
	runner core.JobRunner,
	jobTimeout time.Duration,
	log *logger.Logger,
) (*NatsWorker, error) {
	if jobTimeout <= 0 {
		jobTimeout = DefaultJobTimeout
	}

	return &NatsWorker{
		natsConnection: natsConnection,
		subject:        subject,
		runner:         runner,
		jobTimeout:     jobTimeout,
		log:            log,
	}, nil
}

// Run starts the worker and begins listening for messages.
func (w *NatsWorker) Run(ctx context.Context) error {
	sub, err := w.natsConnection.Subscribe(w.subject, w.handleMessage)
	if err != nil {
		return fmt.Errorf("failed to subscribe to subject %s: %w", w.subject, err)
	}

	<-ctx.Done()

	drainErr := sub.Drain()
	if drainErr != nil {
		return fmt.Errorf("failed to drain subscription: %w", drainErr)
	}

	return nil
}

func (w *NatsWorker) handleMessage(msg *nats.Msg) {
	ctx, cancel := context.WithTimeout(context.Background(), w.jobTimeout)
	defer cancel()

	request, err := parseJobRequest(msg.Data)
	if err != nil {
		w.log.Error("Failed to parse job payload: %v", err)

		w.respond(msg, core.JobResult{Error: fmt.Sprintf("invalid job payload: %v", err)})

		return
	}

	w.log.Info("Processing job %s", request.JobID)

	result := w.runner.RunJob(ctx, request)
	if result.Error != "" {
		w.log.Error("Job %s failed: %s", request.JobID, result.Error)
	}

	w.respond(msg, result)
}

// respond marshals the result and replies to the requester. Fire-and-forget
// publishes (no reply subject) only log the outcome.
func (w *NatsWorker) respond(msg *nats.Msg, result core.JobResult) {
	if msg.Reply == "" {
		return
	}

	data, err := json.Marshal(result)
	if err != nil {
		w.log.Error("Failed to marshal job result: %v", err)

		return
	}

	err = msg.Respond(data)
	if err != nil {
		w.log.Error("Failed to publish job result for %s: %v", result.JobID, err)
	}
}

// parseJobRequest decodes the wire payload and assigns a job id when the
// dispatcher omitted one.
func parseJobRequest(data []byte) (core.JobRequest, error) {
	var request core.JobRequest

	err := json.Unmarshal(data, &request)
	if err != nil {
		return core.JobRequest{}, fmt.Errorf("failed to unmarshal job request: %w", err)
	}

	if request.JobID == "" {
		request.JobID = uuid.NewString()
	}

	return request, nil
}
