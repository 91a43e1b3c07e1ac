package store

import (
	"time"

	"github.com/rotisserie/eris"
)

type ExperimentState string

const (
	StateRunning   ExperimentState = "running"
	StatePaused    ExperimentState = "paused"
	StateCompleted ExperimentState = "completed"
)

// EventType is the closed set of funnel steps a participant can produce.
type EventType uint8

const (
	EventSent EventType = iota + 1
	EventOpened
	EventClicked
	EventReplied
	EventConverted
	EventUnsubscribed
)

// EventTypes lists every valid event type in funnel order.
var EventTypes = []EventType{
	EventSent,
	EventOpened,
	EventClicked,
	EventReplied,
	EventConverted,
	EventUnsubscribed,
}

func (t EventType) String() string {
	switch t {
	case EventSent:
		return "sent"
	case EventOpened:
		return "opened"
	case EventClicked:
		return "clicked"
	case EventReplied:
		return "replied"
	case EventConverted:
		return "converted"
	case EventUnsubscribed:
		return "unsubscribed"
	default:
		return "unknown"
	}
}

// Valid reports whether t is one of the declared event types.
func (t EventType) Valid() bool {
	return t >= EventSent && t <= EventUnsubscribed
}

// ParseEventType maps the wire name of an event type to its enum value.
func ParseEventType(s string) (EventType, error) {
	for _, t := range EventTypes {
		if t.String() == s {
			return t, nil
		}
	}
	return 0, eris.Errorf("unknown event type %q", s)
}

func (t EventType) MarshalText() ([]byte, error) {
	if !t.Valid() {
		return nil, eris.Errorf("invalid event type %d", t)
	}
	return []byte(t.String()), nil
}

func (t *EventType) UnmarshalText(b []byte) error {
	parsed, err := ParseEventType(string(b))
	if err != nil {
		return err
	}
	*t = parsed
	return nil
}

// Variant is one arm of an experiment.
type Variant struct {
	ID     string  `json:"id" yaml:"id" validate:"required"`
	Name   string  `json:"name" yaml:"name"`
	Weight float64 `json:"weight" yaml:"weight" validate:"gte=0"`
}

type Experiment struct {
	ID            string          `json:"id" yaml:"id" validate:"required"`
	Name          string          `json:"name" yaml:"name"`
	Variants      []Variant       `json:"variants" yaml:"variants" validate:"min=2,dive"`
	ControlID     string          `json:"control_id" yaml:"control_id"`
	State         ExperimentState `json:"state" yaml:"state"`
	WinnerVariant string          `json:"winner_variant,omitempty" yaml:"winner_variant,omitempty"`
	CreatedAt     time.Time       `json:"created_at" yaml:"created_at"`
	UpdatedAt     time.Time       `json:"updated_at" yaml:"updated_at"`
}

// Variant returns the variant with the given ID.
func (e *Experiment) Variant(id string) (Variant, bool) {
	for _, v := range e.Variants {
		if v.ID == id {
			return v, true
		}
	}
	return Variant{}, false
}

// Control returns the control variant: ControlID when set, else the first variant.
func (e *Experiment) Control() Variant {
	if v, ok := e.Variant(e.ControlID); ok {
		return v
	}
	if len(e.Variants) == 0 {
		return Variant{}
	}
	return e.Variants[0]
}

// VariantIDs returns variant IDs in declaration order.
func (e *Experiment) VariantIDs() []string {
	ids := make([]string, len(e.Variants))
	for i, v := range e.Variants {
		ids[i] = v.ID
	}
	return ids
}

// Weights returns variant weights aligned to VariantIDs, or nil when no
// variant declares a weight.
func (e *Experiment) Weights() []float64 {
	weights := make([]float64, len(e.Variants))
	weighted := false
	for i, v := range e.Variants {
		weights[i] = v.Weight
		if v.Weight != 0 {
			weighted = true
		}
	}
	if !weighted {
		return nil
	}
	return weights
}

// Event is an immutable funnel fact about one participant.
type Event struct {
	ID            string         `json:"id"`
	TestID        string         `json:"test_id" validate:"required"`
	VariantID     string         `json:"variant_id" validate:"required"`
	ParticipantID string         `json:"participant_id" validate:"required"`
	SequenceID    string         `json:"sequence_id,omitempty"`
	TouchID       string         `json:"touch_id,omitempty"`
	Type          EventType      `json:"event_type" validate:"eventtype"`
	Metadata      map[string]any `json:"metadata,omitempty"`
	CreatedAt     time.Time      `json:"created_at"`
}

// VariantAggregate is the per-variant projection of a test's events.
type VariantAggregate struct {
	TestID       string `json:"test_id"`
	VariantID    string `json:"variant_id"`
	VariantName  string `json:"variant_name"`
	Sent         int    `json:"sent"`
	Opened       int    `json:"opened"`
	Clicked      int    `json:"clicked"`
	Replied      int    `json:"replied"`
	Converted    int    `json:"converted"`
	Unsubscribed int    `json:"unsubscribed"`

	OpenRate        float64 `json:"open_rate"`
	ClickRate       float64 `json:"click_rate"`
	ReplyRate       float64 `json:"reply_rate"`
	ConversionRate  float64 `json:"conversion_rate"`
	UnsubscribeRate float64 `json:"unsubscribe_rate"`
}

// Add folds one event of type t into the counters.
func (a *VariantAggregate) Add(t EventType) {
	switch t {
	case EventSent:
		a.Sent++
	case EventOpened:
		a.Opened++
	case EventClicked:
		a.Clicked++
	case EventReplied:
		a.Replied++
	case EventConverted:
		a.Converted++
	case EventUnsubscribed:
		a.Unsubscribed++
	}
}

// Count returns the counter for event type t.
func (a VariantAggregate) Count(t EventType) int {
	switch t {
	case EventSent:
		return a.Sent
	case EventOpened:
		return a.Opened
	case EventClicked:
		return a.Clicked
	case EventReplied:
		return a.Replied
	case EventConverted:
		return a.Converted
	case EventUnsubscribed:
		return a.Unsubscribed
	default:
		return 0
	}
}

// ComputeRates derives rates as count / max(sent, 1).
func (a *VariantAggregate) ComputeRates() {
	denom := float64(max(a.Sent, 1))
	a.OpenRate = float64(a.Opened) / denom
	a.ClickRate = float64(a.Clicked) / denom
	a.ReplyRate = float64(a.Replied) / denom
	a.ConversionRate = float64(a.Converted) / denom
	a.UnsubscribeRate = float64(a.Unsubscribed) / denom
}
