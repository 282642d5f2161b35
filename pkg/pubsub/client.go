package pubsub

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	pubsub "cloud.google.com/go/pubsub/v2"
	"cloud.google.com/go/pubsub/v2/apiv1/pubsubpb"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/durationpb"

	"github.com/angelmondragon/packfinderz-events/pkg/config"
	"github.com/angelmondragon/packfinderz-events/pkg/logger"
)

// InstancePlaceholder in a subscription name is replaced by the bus instance id.
const InstancePlaceholder = "{instance}"

const (
	minAckDeadline     = 10 * time.Second
	maxAckDeadline     = 600 * time.Second
	minSubscriptionTTL = 24 * time.Hour
)

var (
	errProjectIDRequired = errors.New("gcp project id is required")
	errTopicRequired     = errors.New("pubsub events topic is required")
	errNoSubscription    = errors.New("pubsub subscription name is required")
	errNotInitialized    = errors.New("pubsub client not initialized")
)

// Client is the Pub/Sub broadcast channel: one events topic, one subscription per instance.
type Client struct {
	client       *pubsub.Client
	projectID    string
	topic        string
	subscription string
	cfg          config.PubSubConfig
	logg         *logger.Logger

	publisherOnce sync.Once
	publisher     *pubsub.Publisher
}

// NewClient creates a Pub/Sub v2 client, checks the events topic and makes sure this
// instance's subscription exists, creating it when allowed.
func NewClient(ctx context.Context, gcp config.GCPConfig, cfg config.PubSubConfig, instanceID string, logg *logger.Logger) (*Client, error) {
	if strings.TrimSpace(gcp.ProjectID) == "" {
		return nil, errProjectIDRequired
	}

	c := &Client{
		projectID: strings.TrimSpace(gcp.ProjectID),
		cfg:       cfg,
		logg:      logg,
	}
	c.topic = c.topicResourceName(cfg.EventsTopic)
	if c.topic == "" {
		return nil, errTopicRequired
	}
	c.subscription = c.subscriptionResourceName(subscriptionName(cfg.EventsSubscription, instanceID))
	if c.subscription == "" {
		return nil, errNoSubscription
	}

	psClient, err := pubsub.NewClient(ctx, c.projectID)
	if err != nil {
		return nil, fmt.Errorf("creating pubsub client: %w", err)
	}
	c.client = psClient

	if err := c.ensureTopic(ctx); err != nil {
		_ = psClient.Close()
		return nil, err
	}
	if err := c.ensureSubscription(ctx); err != nil {
		_ = psClient.Close()
		return nil, err
	}

	if logg != nil {
		logCtx := logg.WithFields(ctx, map[string]any{"topic": c.topic, "subscription": c.subscription})
		logg.Info(logCtx, "pubsub client initialized")
	}
	return c, nil
}

// subscriptionName expands the instance placeholder.
func subscriptionName(template, instanceID string) string {
	name := strings.TrimSpace(template)
	if instanceID = strings.TrimSpace(instanceID); instanceID != "" {
		name = strings.ReplaceAll(name, InstancePlaceholder, sanitizeID(instanceID))
	}
	return name
}

// sanitizeID keeps characters Pub/Sub allows in resource ids.
func sanitizeID(id string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9',
			r == '-', r == '_', r == '.', r == '~', r == '+', r == '%':
			return r
		}
		return '-'
	}, id)
}

func (c *Client) ensureTopic(ctx context.Context) error {
	_, err := c.client.TopicAdminClient.GetTopic(ctx, &pubsubpb.GetTopicRequest{Topic: c.topic})
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return fmt.Errorf("topic %q does not exist", c.topic)
		}
		return fmt.Errorf("checking topic %q: %w", c.topic, err)
	}
	return nil
}

func (c *Client) ensureSubscription(ctx context.Context) error {
	_, err := c.client.SubscriptionAdminClient.GetSubscription(
		ctx,
		&pubsubpb.GetSubscriptionRequest{Subscription: c.subscription},
	)
	if err == nil {
		return nil
	}
	if status.Code(err) != codes.NotFound {
		return fmt.Errorf("checking subscription %q: %w", c.subscription, err)
	}
	if !c.cfg.CreateSubscription {
		return fmt.Errorf("subscription %q does not exist", c.subscription)
	}

	_, err = c.client.SubscriptionAdminClient.CreateSubscription(ctx, subscriptionSpec(c.subscription, c.topic, c.cfg))
	if err != nil && status.Code(err) != codes.AlreadyExists {
		return fmt.Errorf("creating subscription %q: %w", c.subscription, err)
	}
	if c.logg != nil {
		c.logg.Info(c.logg.WithField(ctx, "subscription", c.subscription), "pubsub subscription created")
	}
	return nil
}

// subscriptionSpec clamps the configured ack deadline and expiry to what Pub/Sub accepts.
// Idle per-instance subscriptions expire instead of piling up.
func subscriptionSpec(name, topic string, cfg config.PubSubConfig) *pubsubpb.Subscription {
	ack := cfg.AckDeadline
	if ack < minAckDeadline {
		ack = minAckDeadline
	}
	if ack > maxAckDeadline {
		ack = maxAckDeadline
	}
	spec := &pubsubpb.Subscription{
		Name:               name,
		Topic:              topic,
		AckDeadlineSeconds: int32(ack / time.Second),
	}
	if ttl := cfg.SubscriptionTTL; ttl > 0 {
		if ttl < minSubscriptionTTL {
			ttl = minSubscriptionTTL
		}
		spec.ExpirationPolicy = &pubsubpb.ExpirationPolicy{Ttl: durationpb.New(ttl)}
	}
	return spec
}

// EventsSubscription returns the subscriber bound to this instance.
func (c *Client) EventsSubscription() *pubsub.Subscriber {
	if c == nil || c.client == nil {
		return nil
	}
	return c.client.Subscriber(c.subscription)
}

// EventsPublisher returns the shared publisher for the events topic.
func (c *Client) EventsPublisher() *pubsub.Publisher {
	if c == nil || c.client == nil {
		return nil
	}
	c.publisherOnce.Do(func() {
		c.publisher = c.client.Publisher(c.topic)
	})
	return c.publisher
}

// Ping verifies the topic and this instance's subscription are reachable.
func (c *Client) Ping(ctx context.Context) error {
	if c == nil || c.client == nil {
		return errNotInitialized
	}
	if err := c.ensureTopic(ctx); err != nil {
		return err
	}
	_, err := c.client.SubscriptionAdminClient.GetSubscription(
		ctx,
		&pubsubpb.GetSubscriptionRequest{Subscription: c.subscription},
	)
	if err != nil {
		return fmt.Errorf("checking subscription %q: %w", c.subscription, err)
	}
	return nil
}

// Close flushes the events publisher and releases the Pub/Sub client resources.
func (c *Client) Close() error {
	if c == nil || c.client == nil {
		return nil
	}
	if c.publisher != nil {
		c.publisher.Stop()
	}
	return c.client.Close()
}

func (c *Client) subscriptionResourceName(name string) string {
	return c.resourceName("subscriptions", name)
}

func (c *Client) topicResourceName(name string) string {
	return c.resourceName("topics", name)
}

// resourceName expands a bare id to projects/<project>/<kind>/<id>; full names pass through.
func (c *Client) resourceName(kind, name string) string {
	if c == nil {
		return ""
	}
	n := strings.TrimSpace(name)
	if n == "" {
		return ""
	}
	if strings.HasPrefix(n, "projects/") && strings.Contains(n, "/"+kind+"/") {
		return n
	}
	if c.projectID == "" {
		return ""
	}
	return fmt.Sprintf("projects/%s/%s/%s", c.projectID, kind, n)
}
