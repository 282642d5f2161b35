package eventbus

import (
	"strings"
	"time"

	"github.com/angelmondragon/packfinderz-events/pkg/config"
	"github.com/angelmondragon/packfinderz-events/pkg/enums"
	"github.com/angelmondragon/packfinderz-events/pkg/events"
	"github.com/angelmondragon/packfinderz-events/pkg/eventstore"
)

const (
	defaultChannelPrefix    = "pf:events"
	defaultBroadcastTimeout = 5 * time.Second
	defaultInstanceID       = "eventbus-0"
)

// Options tunes retry, timeout, retention and broadcast behaviour.
type Options struct {
	MaxRetries       int
	RetryBaseDelay   time.Duration
	RetryMaxDelay    time.Duration
	RetryJitter      bool
	HandlerTimeout   time.Duration
	RetentionDays    int
	SweepInterval    time.Duration
	ChannelPrefix    string
	InstanceID       string
	BroadcastTimeout time.Duration
}

func DefaultOptions() Options {
	return Options{
		MaxRetries:       events.DefaultMaxRetries,
		RetryBaseDelay:   time.Second,
		RetryMaxDelay:    30 * time.Second,
		HandlerTimeout:   30 * time.Second,
		RetentionDays:    eventstore.DefaultRetentionDays,
		SweepInterval:    time.Hour,
		ChannelPrefix:    defaultChannelPrefix,
		InstanceID:       defaultInstanceID,
		BroadcastTimeout: defaultBroadcastTimeout,
	}
}

// OptionsFromConfig maps the EVENTBUS config section onto bus options.
func OptionsFromConfig(cfg config.EventBusConfig, instanceID string) Options {
	opts := DefaultOptions()
	opts.MaxRetries = cfg.MaxRetries
	opts.RetryBaseDelay = cfg.RetryBaseDelay
	opts.RetryMaxDelay = cfg.RetryMaxDelay
	opts.RetryJitter = cfg.RetryJitter
	opts.HandlerTimeout = cfg.HandlerTimeout
	opts.RetentionDays = cfg.RetentionDays
	opts.SweepInterval = cfg.SweepInterval
	if prefix := strings.TrimSpace(cfg.ChannelPrefix); prefix != "" {
		opts.ChannelPrefix = prefix
	}
	if instanceID != "" {
		opts.InstanceID = instanceID
	}
	return opts
}

func (o Options) normalized() Options {
	if o.MaxRetries < 0 {
		o.MaxRetries = 0
	}
	o.ChannelPrefix = strings.TrimSuffix(strings.TrimSpace(o.ChannelPrefix), ":")
	if o.ChannelPrefix == "" {
		o.ChannelPrefix = defaultChannelPrefix
	}
	if o.InstanceID == "" {
		o.InstanceID = defaultInstanceID
	}
	if o.BroadcastTimeout <= 0 {
		o.BroadcastTimeout = defaultBroadcastTimeout
	}
	return o
}

// ChannelName is the distributed channel an event type is broadcast on.
func (o Options) ChannelName(eventType string) string {
	return o.ChannelPrefix + ":" + eventType
}

// ChannelPattern matches every channel this bus broadcasts on.
func (o Options) ChannelPattern() string {
	return o.ChannelPrefix + ":*"
}

// PublishOption customizes a single Publish call.
type PublishOption func(*publishSettings)

type publishSettings struct {
	metadata   events.Metadata
	priority   enums.EventPriority
	maxRetries *int
}

func WithMetadata(md events.Metadata) PublishOption {
	return func(s *publishSettings) {
		s.metadata = md.Clone()
	}
}

func WithPriority(p enums.EventPriority) PublishOption {
	return func(s *publishSettings) {
		s.priority = p
	}
}

// WithMaxRetries overrides the bus retry budget for one event.
func WithMaxRetries(n int) PublishOption {
	return func(s *publishSettings) {
		s.maxRetries = &n
	}
}
