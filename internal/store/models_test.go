package store

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseEventType(t *testing.T) {
	for _, typ := range EventTypes {
		parsed, err := ParseEventType(typ.String())
		require.NoError(t, err)
		assert.Equal(t, typ, parsed)
	}

	_, err := ParseEventType("bounced")
	assert.Error(t, err)
}

func TestEventType_JSON(t *testing.T) {
	e := Event{TestID: "hero", VariantID: "a", ParticipantID: "p1", Type: EventReplied}

	b, err := json.Marshal(e)
	require.NoError(t, err)
	assert.Contains(t, string(b), `"event_type":"replied"`)

	var decoded Event
	require.NoError(t, json.Unmarshal(b, &decoded))
	assert.Equal(t, EventReplied, decoded.Type)

	err = json.Unmarshal([]byte(`{"event_type":"bounced"}`), &decoded)
	assert.Error(t, err)
}

func TestVariantAggregate_RatesGuardZeroSent(t *testing.T) {
	a := VariantAggregate{Opened: 3, Converted: 1}
	a.ComputeRates()

	// Rates divide by max(sent, 1).
	assert.InDelta(t, 3.0, a.OpenRate, 1e-12)
	assert.InDelta(t, 1.0, a.ConversionRate, 1e-12)
}

func TestVariantAggregate_AddAndCount(t *testing.T) {
	var a VariantAggregate
	for _, typ := range EventTypes {
		a.Add(typ)
	}
	a.Add(EventSent)
	a.ComputeRates()

	assert.Equal(t, 2, a.Count(EventSent))
	for _, typ := range EventTypes[1:] {
		assert.Equal(t, 1, a.Count(typ), typ.String())
	}
	assert.InDelta(t, 0.5, a.ReplyRate, 1e-12)
}

func TestExperiment_WeightsAndControl(t *testing.T) {
	exp := Experiment{
		ID: "hero",
		Variants: []Variant{
			{ID: "a"},
			{ID: "b"},
		},
	}
	assert.Nil(t, exp.Weights())
	assert.Equal(t, "a", exp.Control().ID)

	exp.Variants[0].Weight = 3
	exp.Variants[1].Weight = 1
	exp.ControlID = "b"
	assert.Equal(t, []float64{3, 1}, exp.Weights())
	assert.Equal(t, "b", exp.Control().ID)
	assert.Equal(t, []string{"a", "b"}, exp.VariantIDs())
}

func TestValidateEvent(t *testing.T) {
	valid := Event{TestID: "hero", VariantID: "a", ParticipantID: "p1", Type: EventSent}
	assert.NoError(t, ValidateEvent(&valid))

	tests := []struct {
		name  string
		event Event
	}{
		{"missing test", Event{VariantID: "a", ParticipantID: "p1", Type: EventSent}},
		{"missing variant", Event{TestID: "hero", ParticipantID: "p1", Type: EventSent}},
		{"missing participant", Event{TestID: "hero", VariantID: "a", Type: EventSent}},
		{"zero type", Event{TestID: "hero", VariantID: "a", ParticipantID: "p1"}},
		{"out of range type", Event{TestID: "hero", VariantID: "a", ParticipantID: "p1", Type: EventType(42)}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Error(t, ValidateEvent(&tt.event))
		})
	}
}

func TestValidateExperiment(t *testing.T) {
	assert.NoError(t, ValidateExperiment(heroExperiment()))

	one := heroExperiment()
	one.Variants = one.Variants[:1]
	assert.Error(t, ValidateExperiment(one))

	dup := heroExperiment()
	dup.Variants[1].ID = "a"
	assert.Error(t, ValidateExperiment(dup))

	badControl := heroExperiment()
	badControl.ControlID = "z"
	assert.Error(t, ValidateExperiment(badControl))

	partialWeights := heroExperiment()
	partialWeights.Variants[0].Weight = 2
	assert.Error(t, ValidateExperiment(partialWeights))
}
