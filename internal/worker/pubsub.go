package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"cloud.google.com/go/pubsub/v2"
	"github.com/rs/zerolog"
)

// Job types carried in JobMessage.JobType.
const (
	JobPositionsRefresh = "positions_refresh"
	JobStorePurge       = "store_purge"
	JobHealthCheck      = "health_check"
)

// ErrUnknownJob is returned for a message whose job type the worker does not handle.
// Such messages are acked so they are not redelivered.
var ErrUnknownJob = errors.New("unknown job type")

// JobMessage is the Pub/Sub payload shared by the API and the worker.
type JobMessage struct {
	JobType     string    `json:"job_type"`
	RequestedBy string    `json:"requested_by,omitempty"`
	RequestedAt time.Time `json:"requested_at"`
}

// Pinger checks a dependency. store.Store implements it.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Dispatcher runs the job a message asks for.
type Dispatcher struct {
	job    *RefreshJob
	store  Pinger
	logger zerolog.Logger
}

// NewDispatcher creates a dispatcher. store is used by health checks and may be nil.
func NewDispatcher(job *RefreshJob, store Pinger, logger zerolog.Logger) *Dispatcher {
	return &Dispatcher{job: job, store: store, logger: logger}
}

// Process decodes and runs one message. It returns the job type and the job's error.
func (d *Dispatcher) Process(ctx context.Context, data []byte) (string, error) {
	var msg JobMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return "", fmt.Errorf("parsing job message: %w", err)
	}

	switch msg.JobType {
	case JobPositionsRefresh:
		if msg.RequestedBy != "" {
			d.logger.Debug().Str("requested_by", msg.RequestedBy).Msg("positions refresh requested")
		}
		return msg.JobType, d.job.RunTask(ctx, TaskPositions, "pubsub")
	case JobStorePurge:
		return msg.JobType, d.job.RunTask(ctx, TaskPurge, "pubsub")
	case JobHealthCheck:
		return msg.JobType, d.healthCheck(ctx)
	default:
		return msg.JobType, fmt.Errorf("%w: %q", ErrUnknownJob, msg.JobType)
	}
}

func (d *Dispatcher) healthCheck(ctx context.Context) error {
	if d.store == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	if err := d.store.Ping(ctx); err != nil {
		return fmt.Errorf("health check: store unreachable: %w", err)
	}
	return nil
}

// PubSubHandler handles Pub/Sub messages for the worker.
type PubSubHandler struct {
	client           *pubsub.Client
	subscriber       *pubsub.Subscriber
	subscriptionName string
	dispatcher       *Dispatcher
	logger           zerolog.Logger
}

// PubSubConfig holds configuration for the Pub/Sub handler.
type PubSubConfig struct {
	ProjectID        string
	SubscriptionName string
	Dispatcher       *Dispatcher
	Logger           zerolog.Logger
}

// NewPubSubHandler creates a new Pub/Sub handler.
func NewPubSubHandler(ctx context.Context, cfg PubSubConfig) (*PubSubHandler, error) {
	client, err := pubsub.NewClient(ctx, cfg.ProjectID)
	if err != nil {
		return nil, fmt.Errorf("creating pubsub client: %w", err)
	}

	subscriber := client.Subscriber(cfg.SubscriptionName)

	// Refreshes replace one shared snapshot, so there is no point in many in flight.
	subscriber.ReceiveSettings.MaxOutstandingMessages = 4
	subscriber.ReceiveSettings.MaxExtension = 2 * time.Minute

	return &PubSubHandler{
		client:           client,
		subscriber:       subscriber,
		subscriptionName: cfg.SubscriptionName,
		dispatcher:       cfg.Dispatcher,
		logger:           cfg.Logger,
	}, nil
}

// Start begins processing Pub/Sub messages. It blocks until ctx is cancelled.
func (h *PubSubHandler) Start(ctx context.Context) error {
	h.logger.Info().
		Str("subscription", h.subscriptionName).
		Msg("starting pubsub handler")

	return h.subscriber.Receive(ctx, func(ctx context.Context, msg *pubsub.Message) {
		h.handleMessage(ctx, msg)
	})
}

// Close closes the Pub/Sub client.
func (h *PubSubHandler) Close() error {
	return h.client.Close()
}

func (h *PubSubHandler) handleMessage(ctx context.Context, msg *pubsub.Message) {
	startTime := time.Now()

	logger := h.logger.With().
		Str("message_id", msg.ID).
		Str("publish_time", msg.PublishTime.Format(time.RFC3339)).
		Logger()

	jobType, err := h.dispatcher.Process(ctx, msg.Data)
	switch {
	case errors.Is(err, ErrUnknownJob):
		logger.Warn().Str("job_type", jobType).Msg("unknown job type")
		msg.Ack()
	case err != nil:
		logger.Error().Err(err).Str("job_type", jobType).Msg("job failed")
		msg.Nack()
	default:
		logger.Info().
			Str("job_type", jobType).
			Dur("duration", time.Since(startTime)).
			Msg("job completed successfully")
		msg.Ack()
	}
}
