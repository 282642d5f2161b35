package controllers

import (
	"context"
	stdErrors "errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/angelmondragon/packfinderz-events/api/middleware"
	"github.com/angelmondragon/packfinderz-events/api/responses"
	"github.com/angelmondragon/packfinderz-events/api/validators"
	"github.com/angelmondragon/packfinderz-events/pkg/enums"
	pkgerrors "github.com/angelmondragon/packfinderz-events/pkg/errors"
	"github.com/angelmondragon/packfinderz-events/pkg/eventbus"
	"github.com/angelmondragon/packfinderz-events/pkg/events"
	"github.com/angelmondragon/packfinderz-events/pkg/eventstore"
	"github.com/angelmondragon/packfinderz-events/pkg/logger"
)

const maxEventTypeLength = 255

// EventService is the slice of the event bus the admin API drives.
type EventService interface {
	Publish(ctx context.Context, eventType string, payload map[string]any, opts ...eventbus.PublishOption) (*events.Event, error)
	GetEvent(ctx context.Context, eventID string) (*events.Event, error)
	GetEvents(ctx context.Context, q eventstore.Query) ([]*events.Event, error)
	GetDeadLetterEvents(ctx context.Context, limit int) ([]*events.Event, error)
	ReplayEvent(ctx context.Context, eventID string) (*events.Event, error)
}

type PublishEventRequest struct {
	EventType  string         `json:"event_type" validate:"required,max=255,event_type"`
	Payload    map[string]any `json:"payload"`
	Metadata   map[string]any `json:"metadata"`
	Priority   string         `json:"priority" validate:"omitempty,oneof=low normal high critical"`
	MaxRetries *int           `json:"max_retries" validate:"omitempty,min=0,max=25"`
}

// ListEvents answers GET /api/v1/events?event_type=&status=&tenant_id=&limit=.
func ListEvents(svc EventService, maxPageSize int, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		limit, err := validators.ParseQueryInt(r, "limit", eventstore.DefaultQueryLimit, 1, pageCap(maxPageSize))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		status, err := validators.ParseQueryStatus(r, "status")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		query := eventstore.Query{
			EventType: validators.ParseQueryFilter(r, "event_type", maxEventTypeLength),
			TenantID:  validators.ParseQueryFilter(r, "tenant_id", maxEventTypeLength),
			Status:    status,
			Limit:     limit,
		}

		list, err := svc.GetEvents(r.Context(), query)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteList(w, list, limit)
	}
}

func ListDeadLetterEvents(svc EventService, maxPageSize int, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		limit, err := validators.ParseQueryInt(r, "limit", eventstore.DefaultQueryLimit, 1, pageCap(maxPageSize))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		list, err := svc.GetDeadLetterEvents(r.Context(), limit)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteList(w, list, limit)
	}
}

func GetEvent(svc EventService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		eventID := chi.URLParam(r, "eventId")
		evt, err := svc.GetEvent(r.Context(), eventID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		if evt == nil {
			responses.WriteError(r.Context(), logg, w, events.NewNotFoundError(eventID))
			return
		}
		responses.WriteSuccess(w, evt)
	}
}

func PublishEvent(svc EventService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req PublishEventRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, asEventValidation(err))
			return
		}

		metadata := events.MetadataFromMap(req.Metadata)
		if metadata.CorrelationID == "" {
			metadata.CorrelationID = middleware.RequestIDFromContext(r.Context())
		}
		opts := []eventbus.PublishOption{eventbus.WithMetadata(metadata)}
		if req.Priority != "" {
			opts = append(opts, eventbus.WithPriority(enums.EventPriority(req.Priority)))
		}
		if req.MaxRetries != nil {
			opts = append(opts, eventbus.WithMaxRetries(*req.MaxRetries))
		}

		evt, err := svc.Publish(r.Context(), req.EventType, req.Payload, opts...)
		if err != nil {
			if events.IsPublishError(err) {
				err = validationCause(err)
			}
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, evt)
	}
}

func ReplayEvent(svc EventService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		evt, err := svc.ReplayEvent(r.Context(), chi.URLParam(r, "eventId"))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, evt)
	}
}

func pageCap(maxPageSize int) int {
	if maxPageSize <= 0 {
		return eventstore.DefaultQueryLimit
	}
	return maxPageSize
}

// asEventValidation re-codes request body failures so clients see the event taxonomy.
func asEventValidation(err error) error {
	typed := pkgerrors.As(err)
	if typed == nil || typed.Code() != pkgerrors.CodeValidation {
		return err
	}
	out := events.WrapValidationError(err, typed.Message())
	if details := typed.Details(); details != nil {
		out = out.WithDetails(details)
	}
	return out
}

// validationCause surfaces a validation error wrapped by a publish error so it maps to 400.
func validationCause(err error) error {
	for cur := err; cur != nil; cur = stdErrors.Unwrap(cur) {
		if typed, ok := cur.(*pkgerrors.Error); ok && typed.Code() == pkgerrors.CodeEventValidation {
			return typed
		}
	}
	return err
}
