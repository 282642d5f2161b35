package events

import (
	"bytes"
	"encoding/json"

	"github.com/angelmondragon/packfinderz-events/pkg/enums"
)

type eventAlias Event

// wireEvent is the flat record exchanged between bus instances and written to the durable store.
type wireEvent struct {
	*eventAlias
	ErrorMessage *string `json:"error_message"`
}

func (e Event) MarshalJSON() ([]byte, error) {
	alias := eventAlias(e)
	w := wireEvent{eventAlias: &alias}
	if e.ErrorMessage != "" {
		msg := e.ErrorMessage
		w.ErrorMessage = &msg
	}
	return json.Marshal(w)
}

// UnmarshalJSON keeps payload numbers as json.Number so integers beyond float64 precision
// survive a round trip.
func (e *Event) UnmarshalJSON(data []byte) error {
	alias := eventAlias{}
	w := wireEvent{eventAlias: &alias}
	if err := decodeNumbers(data, &w); err != nil {
		return err
	}
	*e = Event(alias)
	if w.ErrorMessage != nil {
		e.ErrorMessage = *w.ErrorMessage
	}
	if e.Status == "" {
		e.Status = enums.EventStatusPending
	}
	if e.Priority == "" {
		e.Priority = enums.EventPriorityNormal
	}
	if e.Payload == nil {
		e.Payload = map[string]any{}
	}
	return nil
}

// Encode serializes the event into its wire form.
func Encode(e *Event) ([]byte, error) {
	if e == nil {
		return nil, NewValidationError("event is required")
	}
	return json.Marshal(e)
}

// Decode parses and validates a wire-form event.
func Decode(data []byte) (*Event, error) {
	var e Event
	if err := json.Unmarshal(data, &e); err != nil {
		return nil, WrapValidationError(err, "decode event")
	}
	if err := e.Validate(); err != nil {
		return nil, err
	}
	return &e, nil
}

// ToMap renders the event as a flat map of wire values.
func (e *Event) ToMap() (map[string]any, error) {
	data, err := Encode(e)
	if err != nil {
		return nil, err
	}
	var out map[string]any
	if err := decodeNumbers(data, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func decodeNumbers(data []byte, v any) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	return dec.Decode(v)
}

// FromMap rebuilds an event from the map produced by ToMap.
func FromMap(values map[string]any) (*Event, error) {
	data, err := json.Marshal(values)
	if err != nil {
		return nil, WrapValidationError(err, "encode event map")
	}
	return Decode(data)
}
