package store

import (
	"github.com/go-playground/validator/v10"
	"github.com/rotisserie/eris"
)

var validate *validator.Validate

func init() {
	validate = validator.New()
	_ = validate.RegisterValidation("eventtype", func(fl validator.FieldLevel) bool {
		return EventType(fl.Field().Uint()).Valid()
	})
}

// ValidateEvent checks required identifiers and the event type.
func ValidateEvent(e *Event) error {
	return validate.Struct(e)
}

// ValidateExperiment checks that an experiment has an ID, at least two
// variants with unique IDs, non-negative weights and a known control.
func ValidateExperiment(exp *Experiment) error {
	if err := validate.Struct(exp); err != nil {
		return err
	}
	seen := make(map[string]bool, len(exp.Variants))
	for _, v := range exp.Variants {
		if seen[v.ID] {
			return eris.Errorf("duplicate variant id %q", v.ID)
		}
		seen[v.ID] = true
	}
	if weights := exp.Weights(); weights != nil {
		for i, w := range weights {
			if w <= 0 {
				return eris.Errorf("variant %q: weight must be positive when weights are set", exp.Variants[i].ID)
			}
		}
	}
	if exp.ControlID != "" && !seen[exp.ControlID] {
		return eris.Errorf("control %q is not a variant", exp.ControlID)
	}
	return nil
}
