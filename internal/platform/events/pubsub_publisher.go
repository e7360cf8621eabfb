package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"cloud.google.com/go/pubsub"

	"github.com/tolkfield/api/internal/services"
)

// PubSubJobEventPublisher publishes booking lifecycle events to a Pub/Sub topic.
type PubSubJobEventPublisher struct {
	topic   *pubsub.Topic
	marshal func(any) ([]byte, error)
}

// NewPubSubJobEventPublisher constructs a Pub/Sub backed job event publisher.
func NewPubSubJobEventPublisher(topic *pubsub.Topic) (*PubSubJobEventPublisher, error) {
	if topic == nil {
		return nil, errors.New("pubsub job event publisher: topic is required")
	}
	return &PubSubJobEventPublisher{
		topic:   topic,
		marshal: json.Marshal,
	}, nil
}

// PublishJobEvent enqueues a lifecycle event message on the configured topic.
func (p *PubSubJobEventPublisher) PublishJobEvent(ctx context.Context, message services.JobEventMessage) (string, error) {
	if p == nil || p.topic == nil {
		return "", errors.New("pubsub job event publisher: not initialised")
	}
	if strings.TrimSpace(message.Event) == "" {
		return "", errors.New("pubsub job event publisher: event name is required")
	}

	data, err := p.marshal(message)
	if err != nil {
		return "", fmt.Errorf("marshal job event: %w", err)
	}

	attrs := make(map[string]string)
	setAttr(attrs, "event", message.Event)
	setAttr(attrs, "jobId", message.JobID)
	setAttr(attrs, "status", string(message.Status))
	setAttr(attrs, "previousStatus", string(message.PreviousStatus))
	setAttr(attrs, "translatorId", message.TranslatorID)

	result := p.topic.Publish(ctx, &pubsub.Message{
		Data:       data,
		Attributes: attrs,
	})

	id, err := result.Get(ctx)
	if err != nil {
		return "", fmt.Errorf("publish job event: %w", err)
	}
	return id, nil
}

func setAttr(attrs map[string]string, key string, value string) {
	if v := strings.TrimSpace(value); v != "" {
		attrs[key] = v
	}
}
