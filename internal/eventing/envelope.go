package eventing

import (
	"encoding/json"
	"reflect"
	"time"

	"github.com/google/uuid"
)

// Envelope is the outbox row format: an event payload plus delivery metadata.
type Envelope struct {
	EventID       string          `json:"event_id"`
	EventType     string          `json:"event_type"`
	OccurredAt    time.Time       `json:"occurred_at"`
	CorrelationID string          `json:"correlation_id"`
	CycleID       string          `json:"cycle_id,omitempty"`
	Actor         string          `json:"actor,omitempty"`
	SchemaVersion int             `json:"schema_version"`
	Payload       json.RawMessage `json:"payload"`
}

// Meta overrides envelope fields that BuildEnvelope would otherwise derive.
type Meta struct {
	EventID       string
	OccurredAt    time.Time
	CorrelationID string
	CycleID       string
	Actor         string
	SchemaVersion int
}

// NewEventID generates a random event identifier.
func NewEventID() string {
	return uuid.NewString()
}

// BuildEnvelope marshals event and fills metadata. CycleID and OccurredAt are
// read from same-named fields of the event when meta leaves them empty.
func BuildEnvelope(event any, meta Meta) (Envelope, error) {
	if event == nil {
		return Envelope{}, ErrNilEvent
	}
	payload, err := json.Marshal(event)
	if err != nil {
		return Envelope{}, err
	}

	env := Envelope{
		EventID:       meta.EventID,
		EventType:     EventType(event),
		OccurredAt:    meta.OccurredAt,
		CorrelationID: meta.CorrelationID,
		CycleID:       meta.CycleID,
		Actor:         meta.Actor,
		SchemaVersion: meta.SchemaVersion,
		Payload:       payload,
	}
	fields := eventFields(event)
	if env.CycleID == "" {
		env.CycleID, _ = fields["CycleID"].(string)
	}
	if env.OccurredAt.IsZero() {
		env.OccurredAt, _ = fields["OccurredAt"].(time.Time)
	}
	if env.OccurredAt.IsZero() {
		env.OccurredAt = time.Now()
	}
	env.OccurredAt = env.OccurredAt.UTC()
	if env.EventID == "" {
		env.EventID = NewEventID()
	}
	if env.CorrelationID == "" {
		env.CorrelationID = env.EventID
	}
	if env.SchemaVersion == 0 {
		env.SchemaVersion = 1
	}
	return env, nil
}

// eventFields returns the exported CycleID and OccurredAt fields of a struct
// event, dereferencing pointers.
func eventFields(event any) map[string]any {
	value := reflect.ValueOf(event)
	for value.Kind() == reflect.Ptr {
		if value.IsNil() {
			return nil
		}
		value = value.Elem()
	}
	if value.Kind() != reflect.Struct {
		return nil
	}
	out := make(map[string]any, 2)
	for _, name := range []string{"CycleID", "OccurredAt"} {
		if field := value.FieldByName(name); field.IsValid() && field.CanInterface() {
			out[name] = field.Interface()
		}
	}
	return out
}
