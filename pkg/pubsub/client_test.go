package pubsub

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/angelmondragon/packfinderz-events/pkg/config"
)

func TestResourceNames(t *testing.T) {
	c := &Client{projectID: "proj"}
	if got := c.subscriptionResourceName("bus-events"); got != "projects/proj/subscriptions/bus-events" {
		t.Fatalf("unexpected subscription name %q", got)
	}
	full := "projects/other/subscriptions/x"
	if got := c.subscriptionResourceName(full); got != full {
		t.Fatalf("full names should pass through, got %q", got)
	}
	if got := c.topicResourceName(" pf-bus-events "); got != "projects/proj/topics/pf-bus-events" {
		t.Fatalf("unexpected topic name %q", got)
	}
	if got := (&Client{}).topicResourceName("t"); got != "" {
		t.Fatalf("expected empty name without project, got %q", got)
	}
}

func TestSubscriptionNameExpandsInstance(t *testing.T) {
	if got := subscriptionName("pf-bus-events-{instance}", "host-1/pod:7"); got != "pf-bus-events-host-1-pod-7" {
		t.Fatalf("unexpected subscription name %q", got)
	}
	if got := subscriptionName(" shared ", "host-1"); got != "shared" {
		t.Fatalf("expected fixed name to pass through, got %q", got)
	}
	if got := subscriptionName("", "host-1"); got != "" {
		t.Fatalf("expected empty name, got %q", got)
	}
}

func TestSubscriptionSpecClampsLimits(t *testing.T) {
	spec := subscriptionSpec("projects/p/subscriptions/s", "projects/p/topics/t", config.PubSubConfig{
		AckDeadline:     time.Second,
		SubscriptionTTL: time.Hour,
	})
	if spec.AckDeadlineSeconds != 10 {
		t.Fatalf("expected ack deadline clamped to 10s, got %d", spec.AckDeadlineSeconds)
	}
	if got := spec.ExpirationPolicy.GetTtl().AsDuration(); got != 24*time.Hour {
		t.Fatalf("expected ttl clamped to 24h, got %s", got)
	}

	spec = subscriptionSpec("s", "t", config.PubSubConfig{AckDeadline: time.Hour})
	if spec.AckDeadlineSeconds != 600 || spec.ExpirationPolicy != nil {
		t.Fatalf("unexpected spec %+v", spec)
	}
}

func TestNewClientValidation(t *testing.T) {
	ctx := context.Background()
	if _, err := NewClient(ctx, config.GCPConfig{}, config.PubSubConfig{EventsTopic: "t", EventsSubscription: "s"}, "i", nil); !errors.Is(err, errProjectIDRequired) {
		t.Fatalf("expected project id error, got %v", err)
	}
	gcp := config.GCPConfig{ProjectID: "proj"}
	if _, err := NewClient(ctx, gcp, config.PubSubConfig{EventsSubscription: "s"}, "i", nil); !errors.Is(err, errTopicRequired) {
		t.Fatalf("expected topic error, got %v", err)
	}
	if _, err := NewClient(ctx, gcp, config.PubSubConfig{EventsTopic: "t"}, "i", nil); !errors.Is(err, errNoSubscription) {
		t.Fatalf("expected subscription error, got %v", err)
	}
}

func TestRoute(t *testing.T) {
	c := &Client{}
	ctx := context.Background()
	var delivered []string
	handle := func(_ context.Context, channel string, _ []byte) error {
		delivered = append(delivered, channel)
		if channel == "pf:events:bad.event" {
			return errors.New("decode failed")
		}
		return nil
	}

	if !c.route(ctx, "pf:events:*", "pf:events:customer.created", nil, handle) {
		t.Fatal("expected ack for handled message")
	}
	if !c.route(ctx, "pf:events:*", "other:thing", nil, handle) {
		t.Fatal("expected ack for non-matching channel")
	}
	if c.route(ctx, "pf:events:*", "pf:events:bad.event", nil, handle) {
		t.Fatal("expected nack for handler failure")
	}
	if !c.route(ctx, "pf:events:*", "pf:events:orders/created", nil, handle) {
		t.Fatal("expected ack for slash event type")
	}
	if len(delivered) != 3 || delivered[2] != "pf:events:orders/created" {
		t.Fatalf("expected three deliveries, got %v", delivered)
	}
}

func TestUninitializedClient(t *testing.T) {
	var c *Client
	if err := c.Ping(context.Background()); err == nil {
		t.Fatal("expected ping error")
	}
	if err := c.Close(); err != nil {
		t.Fatalf("close should be a no-op: %v", err)
	}
	if err := (&Client{}).Publish(context.Background(), "pf:events:a", nil); err == nil {
		t.Fatal("expected publish error without a client")
	}
}
