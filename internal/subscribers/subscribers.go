package subscribers

import (
	"context"
	"fmt"

	"github.com/angelmondragon/packfinderz-events/pkg/eventbus"
	"github.com/angelmondragon/packfinderz-events/pkg/events"
	"github.com/angelmondragon/packfinderz-events/pkg/logger"
	"github.com/angelmondragon/packfinderz-events/pkg/metrics"
)

const (
	allEvents = "*"

	auditSubscriberName   = "audit-log"
	metricsSubscriberName = "metrics-observer"
)

type subscriber interface {
	Subscribe(eventType string, h *eventbus.Handler) error
}

// Deps carries the collaborators the bootstrap subscribers need.
type Deps struct {
	Logger  *logger.Logger
	Metrics *metrics.EventBusMetrics
}

// RegisterAll wires the cross-cutting subscribers onto bus. It must run once at startup,
// before the bus begins receiving events.
func RegisterAll(bus subscriber, deps Deps) error {
	if bus == nil {
		return fmt.Errorf("event bus required")
	}
	if deps.Logger == nil {
		return fmt.Errorf("logger required")
	}

	audit := NewAuditSubscriber(deps.Logger)
	if err := bus.Subscribe(allEvents, eventbus.NewHandler(auditSubscriberName, audit.Handle)); err != nil {
		return fmt.Errorf("register %s: %w", auditSubscriberName, err)
	}

	if deps.Metrics != nil {
		observer := NewMetricsObserver(deps.Metrics)
		if err := bus.Subscribe(allEvents, eventbus.NewHandler(metricsSubscriberName, observer.Handle)); err != nil {
			return fmt.Errorf("register %s: %w", metricsSubscriberName, err)
		}
	}
	return nil
}

// AuditSubscriber writes one structured log line per event.
type AuditSubscriber struct {
	logg *logger.Logger
}

func NewAuditSubscriber(logg *logger.Logger) *AuditSubscriber {
	return &AuditSubscriber{logg: logg}
}

func (a *AuditSubscriber) Handle(ctx context.Context, evt *events.Event) error {
	logCtx := a.logg.WithEvent(ctx, evt.ID, evt.Type)
	if tenant := evt.TenantID(); tenant != "" {
		logCtx = a.logg.WithTenantID(logCtx, tenant)
	}
	fields := map[string]any{
		"priority": string(evt.Priority),
	}
	if evt.Metadata.CorrelationID != "" {
		fields["correlation_id"] = evt.Metadata.CorrelationID
	}
	if evt.Metadata.Source != "" {
		fields["source"] = evt.Metadata.Source
	}
	if origin := evt.Metadata.Origin(); origin != "" {
		fields["origin"] = origin
	}
	a.logg.Info(a.logg.WithFields(logCtx, fields), "event observed")
	return nil
}

// MetricsObserver counts every event by priority.
type MetricsObserver struct {
	metrics *metrics.EventBusMetrics
}

func NewMetricsObserver(m *metrics.EventBusMetrics) *MetricsObserver {
	return &MetricsObserver{metrics: m}
}

func (o *MetricsObserver) Handle(_ context.Context, evt *events.Event) error {
	o.metrics.IncObserved(string(evt.Priority))
	return nil
}
