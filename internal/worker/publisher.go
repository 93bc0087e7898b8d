package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"cloud.google.com/go/pubsub/v2"
	"github.com/rs/zerolog"
)

// Publisher queues jobs for the worker. The API uses it for on-demand refreshes.
type Publisher struct {
	client    *pubsub.Client
	publisher *pubsub.Publisher
	topic     string
	logger    zerolog.Logger
	now       func() time.Time
}

// PublisherConfig holds configuration for the publisher.
type PublisherConfig struct {
	ProjectID string
	Topic     string
	Logger    zerolog.Logger
}

// NewPublisher creates a publisher for cfg.Topic.
func NewPublisher(ctx context.Context, cfg PublisherConfig) (*Publisher, error) {
	client, err := pubsub.NewClient(ctx, cfg.ProjectID)
	if err != nil {
		return nil, fmt.Errorf("creating pubsub client: %w", err)
	}

	return &Publisher{
		client:    client,
		publisher: client.Publisher(cfg.Topic),
		topic:     cfg.Topic,
		logger:    cfg.Logger.With().Str("component", "publisher").Str("topic", cfg.Topic).Logger(),
		now:       time.Now,
	}, nil
}

// PublishPositionsRefresh queues a positions refresh and returns the server-assigned
// message id once the publish is acknowledged.
func (p *Publisher) PublishPositionsRefresh(ctx context.Context, requestedBy string) (string, error) {
	msg, err := EncodeJob(JobMessage{
		JobType:     JobPositionsRefresh,
		RequestedBy: requestedBy,
		RequestedAt: p.now().UTC(),
	})
	if err != nil {
		return "", err
	}

	id, err := p.publisher.Publish(ctx, msg).Get(ctx)
	if err != nil {
		return "", fmt.Errorf("publishing %s: %w", JobPositionsRefresh, err)
	}

	p.logger.Debug().Str("message_id", id).Str("requested_by", requestedBy).Msg("queued positions refresh")
	return id, nil
}

// Close flushes pending messages and closes the client.
func (p *Publisher) Close() error {
	p.publisher.Stop()
	return p.client.Close()
}

// EncodeJob renders a job as a Pub/Sub message. The job type is copied into the
// job_type attribute so subscriptions can filter on it.
func EncodeJob(job JobMessage) (*pubsub.Message, error) {
	data, err := json.Marshal(job)
	if err != nil {
		return nil, fmt.Errorf("encoding job message: %w", err)
	}
	return &pubsub.Message{
		Data:       data,
		Attributes: map[string]string{"job_type": job.JobType},
	}, nil
}
