package eventbus

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/angelmondragon/packfinderz-events/pkg/enums"
	"github.com/angelmondragon/packfinderz-events/pkg/events"
	"github.com/angelmondragon/packfinderz-events/pkg/eventstore"
	"github.com/angelmondragon/packfinderz-events/pkg/logger"
	"github.com/angelmondragon/packfinderz-events/pkg/metrics"
)

// Channel is the distributed fan-out side channel.
type Channel interface {
	Publish(ctx context.Context, channel string, payload []byte) error
}

// Deduper guards remote ingest against duplicate broadcasts. CheckAndMarkProcessed reports
// true when the event was already seen by consumer.
type Deduper interface {
	CheckAndMarkProcessed(ctx context.Context, consumer, eventID string) (bool, error)
	Complete(ctx context.Context, consumer, eventID string) error
	Release(ctx context.Context, consumer, eventID string) error
}

// SweepLock keeps concurrent instances from sweeping a shared store at the same time.
type SweepLock interface {
	Acquire(ctx context.Context) (bool, error)
	Release(ctx context.Context) error
}

// Params wires a Bus. A nil Store disables persistence; a nil Channel disables broadcast.
type Params struct {
	Logger      *logger.Logger
	Store       eventstore.Store
	Channel     Channel
	Idempotency Deduper
	SweepLock   SweepLock
	Metrics     *metrics.EventBusMetrics
	Options     Options
}

// Bus publishes events to local handlers and an optional distributed channel, retries failed
// deliveries, and records outcomes in the event store.
type Bus struct {
	logg     *logger.Logger
	store    eventstore.Store
	persist  bool
	channel  Channel
	dedupe   Deduper
	lock     SweepLock
	metrics  *metrics.EventBusMetrics
	opts     Options
	registry *registry
	sleep    func(context.Context, time.Duration) error

	trackMu  sync.Mutex
	inflight map[string]struct{}

	lifeMu      sync.Mutex
	running     bool
	draining    bool
	halt        context.Context
	haltCancel  context.CancelFunc
	stopSweeper context.CancelFunc
	sweeperDone chan struct{}
	broadcasts  sync.WaitGroup
}

var errStopped = errors.New("event bus stopped")

func New(params Params) (*Bus, error) {
	if params.Logger == nil {
		return nil, errors.New("logger is required")
	}
	store := params.Store
	persist := store != nil
	if !persist {
		store = eventstore.Nop{}
	}
	halt, haltCancel := context.WithCancel(context.Background())
	return &Bus{
		logg:     params.Logger,
		store:    store,
		persist:  persist,
		channel:  params.Channel,
		dedupe:   params.Idempotency,
		lock:     params.SweepLock,
		metrics:  params.Metrics,
		opts:     params.Options.normalized(),
		registry: newRegistry(),
		sleep:    sleepContext,
		inflight: map[string]struct{}{},

		halt:       halt,
		haltCancel: haltCancel,
	}, nil
}

// NewInMemory returns a fresh bus over a process-local store with default options.
func NewInMemory(logg *logger.Logger) *Bus {
	if logg == nil {
		logg = logger.New(logger.Options{ServiceName: "eventbus"})
	}
	bus, _ := New(Params{
		Logger:  logg,
		Store:   eventstore.NewMemoryStore(),
		Options: DefaultOptions(),
	})
	return bus
}

func (b *Bus) Options() Options {
	return b.opts
}

// PersistenceEnabled reports whether events are written to a store.
func (b *Bus) PersistenceEnabled() bool {
	return b.persist
}

// Subscribe registers h for eventType. Types containing * or ? are glob patterns.
func (b *Bus) Subscribe(eventType string, h *Handler) error {
	if h == nil || h.fn == nil {
		return events.NewValidationError("handler is required")
	}
	if eventType == "" {
		return events.NewValidationError("event_type is required")
	}
	return b.registry.add(eventType, h)
}

// Unsubscribe removes one registration of h under eventType and reports whether one existed.
func (b *Bus) Unsubscribe(eventType string, h *Handler) bool {
	return b.registry.remove(eventType, h)
}

// SubscriptionCount reports the total number of registrations.
func (b *Bus) SubscriptionCount() int {
	return b.registry.count()
}

// Publish records and dispatches a new event, waiting for every local handler to finish.
// Handler failures are recorded on the event, never returned.
func (b *Bus) Publish(ctx context.Context, eventType string, payload map[string]any, opts ...PublishOption) (*events.Event, error) {
	settings := publishSettings{priority: enums.EventPriorityNormal}
	for _, opt := range opts {
		opt(&settings)
	}

	evt := events.New(eventType, payload, settings.metadata, settings.priority)
	evt.MaxRetries = b.opts.MaxRetries
	if settings.maxRetries != nil {
		evt.MaxRetries = *settings.maxRetries
	}
	if err := evt.Validate(); err != nil {
		return nil, events.NewPublishError(eventType, err)
	}
	evt.MarkPublished()

	if b.persist {
		if err := b.store.SaveEvent(ctx, evt); err != nil {
			return nil, events.NewPublishError(eventType, err)
		}
	}
	b.metrics.IncPublished(evt.Type)

	b.broadcast(ctx, evt)

	b.claim(evt.ID)
	defer b.release(evt.ID)
	runCtx, done := b.dispatchContext(ctx, true)
	defer done()
	b.dispatch(runCtx, evt, b.registry.match(evt.Type), b.persist)
	return evt, nil
}

// GetEvent returns nil when the event is unknown or persistence is disabled.
func (b *Bus) GetEvent(ctx context.Context, eventID string) (*events.Event, error) {
	if !b.persist {
		return nil, nil
	}
	return b.store.GetEvent(ctx, eventID)
}

func (b *Bus) GetEvents(ctx context.Context, q eventstore.Query) ([]*events.Event, error) {
	if !b.persist {
		return nil, nil
	}
	return b.store.QueryEvents(ctx, q)
}

func (b *Bus) GetDeadLetterEvents(ctx context.Context, limit int) ([]*events.Event, error) {
	if !b.persist {
		return nil, nil
	}
	return b.store.GetDeadLetterEvents(ctx, limit)
}

// ReplayEvent resets a stored event and dispatches it to local handlers again.
// The distributed channel is not involved.
func (b *Bus) ReplayEvent(ctx context.Context, eventID string) (*events.Event, error) {
	evt, err := b.GetEvent(ctx, eventID)
	if err != nil {
		return nil, err
	}
	if evt == nil {
		return nil, events.NewNotFoundError(eventID)
	}
	if !b.claim(evt.ID) {
		return nil, events.NewValidationError("event is still being dispatched").
			WithDetails(map[string]any{"event_id": evt.ID})
	}
	defer b.release(evt.ID)

	evt.ResetForReplay()
	if err := b.store.UpdateEvent(ctx, evt); err != nil {
		return nil, events.NewPublishError(evt.Type, err)
	}

	b.logg.Info(b.logg.WithEvent(ctx, evt.ID, evt.Type), "replaying event")

	runCtx, done := b.dispatchContext(ctx, true)
	defer done()
	b.dispatch(runCtx, evt, b.registry.match(evt.Type), true)
	return evt, nil
}

// dispatchContext scopes one dispatch. Its retry waits end when the bus stops; a detached
// dispatch also outlives cancellation of ctx.
func (b *Bus) dispatchContext(ctx context.Context, detach bool) (context.Context, context.CancelFunc) {
	b.lifeMu.Lock()
	halt := b.halt
	b.lifeMu.Unlock()

	if detach {
		ctx = context.WithoutCancel(ctx)
	}
	runCtx, cancel := context.WithCancel(ctx)
	stop := context.AfterFunc(halt, cancel)
	return runCtx, func() {
		stop()
		cancel()
	}
}

// claim marks an event as being dispatched by this bus; it fails when one is already running.
func (b *Bus) claim(eventID string) bool {
	b.trackMu.Lock()
	defer b.trackMu.Unlock()
	if _, busy := b.inflight[eventID]; busy {
		return false
	}
	b.inflight[eventID] = struct{}{}
	return true
}

func (b *Bus) release(eventID string) {
	b.trackMu.Lock()
	delete(b.inflight, eventID)
	b.trackMu.Unlock()
}
