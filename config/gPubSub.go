package config

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"cloud.google.com/go/pubsub"
	"google.golang.org/api/option"
)

var (
	pubsubClient   *pubsub.Client
	pubsubClientMu sync.Mutex
	topics         = map[string]*pubsub.Topic{}
)

var ErrPubSubNotConfigured = errors.New("PUBSUB_PROJECT_ID/PUBSUB_TOPIC not set")

// PubSubEnabled reports whether domain events should leave the process.
func PubSubEnabled() bool {
	s := GetSettings()
	return s.PubSubProjectID != "" && s.PubSubTopic != ""
}

// GetPubSubClient returns the shared client, creating it with retries on first use.
// It uses Application Default Credentials unless PUBSUB_CREDENTIALS_JSON is provided.
func GetPubSubClient(ctx context.Context) (*pubsub.Client, error) {
	pubsubClientMu.Lock()
	defer pubsubClientMu.Unlock()
	if pubsubClient != nil {
		return pubsubClient, nil
	}

	s := GetSettings()
	if s.PubSubProjectID == "" {
		return nil, ErrPubSubNotConfigured
	}

	var opts []option.ClientOption
	if s.PubSubCredentialJSON != "" {
		opts = append(opts, option.WithCredentialsJSON([]byte(s.PubSubCredentialJSON)))
	}

	var attempt int
	for {
		attempt++
		c, err := pubsub.NewClient(ctx, s.PubSubProjectID, opts...)
		if err == nil {
			pubsubClient = c
			log.Printf("pubsub client ready (project_id=%s attempt=%d)", s.PubSubProjectID, attempt)
			return c, nil
		}
		if attempt >= 5 || ctx.Err() != nil {
			return nil, fmt.Errorf("init pubsub client: %w", err)
		}
		sleep := backoff(attempt)
		log.Printf("failed to init pubsub client (project_id=%s attempt=%d): %v; retrying in %s", s.PubSubProjectID, attempt, err, sleep)
		time.Sleep(sleep)
	}
}

func topic(c *pubsub.Client, name string) *pubsub.Topic {
	pubsubClientMu.Lock()
	defer pubsubClientMu.Unlock()
	t, ok := topics[name]
	if !ok {
		t = c.Topic(name)
		// Events of one tenant keep their order.
		t.EnableMessageOrdering = true
		topics[name] = t
	}
	return t
}

// PublishDomainEvent publishes one serialized event and returns the server-assigned message ID.
// The tenant id is the ordering key.
func PublishDomainEvent(ctx context.Context, tenantId string, data []byte, attributes map[string]string) (string, error) {
	if !PubSubEnabled() {
		return "", ErrPubSubNotConfigured
	}
	client, err := GetPubSubClient(ctx)
	if err != nil {
		return "", err
	}
	t := topic(client, GetSettings().PubSubTopic)
	result := t.Publish(ctx, &pubsub.Message{
		Data:        data,
		Attributes:  attributes,
		OrderingKey: tenantId,
	})
	id, err := result.Get(ctx)
	if err != nil {
		// Ordered publishing pauses the key after a failure until resumed.
		t.ResumePublish(tenantId)
	}
	return id, err
}

func ClosePubSub() {
	pubsubClientMu.Lock()
	defer pubsubClientMu.Unlock()
	for name, t := range topics {
		t.Stop()
		delete(topics, name)
	}
	if pubsubClient != nil {
		_ = pubsubClient.Close()
		pubsubClient = nil
	}
}
