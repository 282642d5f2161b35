package events

import (
	"fmt"

	pferrors "github.com/angelmondragon/packfinderz-events/pkg/errors"
)

var eventCodes = []pferrors.Code{
	pferrors.CodeEventNotFound,
	pferrors.CodeEventValidation,
	pferrors.CodeEventPublish,
	pferrors.CodeEventHandler,
}

// NewNotFoundError is the base event error, returned for unknown event ids.
func NewNotFoundError(eventID string) *pferrors.Error {
	return pferrors.New(pferrors.CodeEventNotFound, fmt.Sprintf("event %s not found", eventID)).
		WithDetails(map[string]any{"event_id": eventID})
}

func NewValidationError(message string) *pferrors.Error {
	return pferrors.New(pferrors.CodeEventValidation, message)
}

func WrapValidationError(err error, message string) *pferrors.Error {
	return pferrors.Wrap(pferrors.CodeEventValidation, err, message)
}

// NewPublishError wraps a failure raised before any handler ran.
func NewPublishError(eventType string, err error) *pferrors.Error {
	return pferrors.Wrap(pferrors.CodeEventPublish, err, fmt.Sprintf("publish %s", eventType))
}

// NewHandlerError describes a handler failure. It is recorded on the event, never returned from Publish.
func NewHandlerError(handler string, err error) *pferrors.Error {
	return pferrors.Wrap(pferrors.CodeEventHandler, err, fmt.Sprintf("handler %s", handler))
}

// IsEventError reports whether err belongs to the event error family.
func IsEventError(err error) bool {
	return pferrors.HasCode(err, eventCodes...)
}

func IsNotFound(err error) bool {
	return pferrors.HasCode(err, pferrors.CodeEventNotFound)
}

func IsValidationError(err error) bool {
	return pferrors.HasCode(err, pferrors.CodeEventValidation)
}

func IsPublishError(err error) bool {
	return pferrors.HasCode(err, pferrors.CodeEventPublish)
}
