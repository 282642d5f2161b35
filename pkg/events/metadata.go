package events

import (
	"encoding/json"
	"fmt"
)

// MetadataOrigin carries the id of the bus instance that broadcast an event.
const MetadataOrigin = "origin"

// Metadata holds correlation identifiers. Keys outside the known set are kept in Extra.
type Metadata struct {
	CorrelationID string
	CausationID   string
	UserID        string
	TenantID      string
	Source        string
	TraceID       string
	Extra         map[string]any
}

var knownMetadataKeys = map[string]func(*Metadata) *string{
	"correlation_id": func(m *Metadata) *string { return &m.CorrelationID },
	"causation_id":   func(m *Metadata) *string { return &m.CausationID },
	"user_id":        func(m *Metadata) *string { return &m.UserID },
	"tenant_id":      func(m *Metadata) *string { return &m.TenantID },
	"source":         func(m *Metadata) *string { return &m.Source },
	"trace_id":       func(m *Metadata) *string { return &m.TraceID },
}

// MetadataFromMap splits a loose map into known fields and extras.
func MetadataFromMap(values map[string]any) Metadata {
	var m Metadata
	for key, value := range values {
		m.Set(key, value)
	}
	return m
}

// Set assigns a known field or stores the value under Extra.
func (m *Metadata) Set(key string, value any) {
	if field, ok := knownMetadataKeys[key]; ok {
		if value == nil {
			*field(m) = ""
			return
		}
		if s, isString := value.(string); isString {
			*field(m) = s
		} else {
			*field(m) = fmt.Sprint(value)
		}
		return
	}
	if m.Extra == nil {
		m.Extra = map[string]any{}
	}
	m.Extra[key] = value
}

// Get looks up a known field or an extra key.
func (m Metadata) Get(key string) (any, bool) {
	if field, ok := knownMetadataKeys[key]; ok {
		v := *field(&m)
		return v, v != ""
	}
	v, ok := m.Extra[key]
	return v, ok
}

// Origin returns the broadcasting instance id, if any.
func (m Metadata) Origin() string {
	if v, ok := m.Extra[MetadataOrigin].(string); ok {
		return v
	}
	return ""
}

// ToMap flattens the metadata, omitting empty known fields.
func (m Metadata) ToMap() map[string]any {
	out := make(map[string]any, len(knownMetadataKeys)+len(m.Extra))
	for key, value := range m.Extra {
		out[key] = value
	}
	for key, field := range knownMetadataKeys {
		if v := *field(&m); v != "" {
			out[key] = v
		}
	}
	return out
}

func (m Metadata) Clone() Metadata {
	out := m
	if m.Extra != nil {
		out.Extra = clonePayload(m.Extra)
	}
	return out
}

func (m Metadata) MarshalJSON() ([]byte, error) {
	return json.Marshal(m.ToMap())
}

func (m *Metadata) UnmarshalJSON(data []byte) error {
	var values map[string]any
	if err := json.Unmarshal(data, &values); err != nil {
		return err
	}
	*m = MetadataFromMap(values)
	return nil
}
