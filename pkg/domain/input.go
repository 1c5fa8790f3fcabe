package domain

const (
	MinInput = 1
	MaxInput = 16
)

// InputMap binds a physical input to the pipeline it triggers.
type InputMap struct {
	Input    int    `json:"input" yaml:"input" mapstructure:"input"`
	Pipeline string `json:"pipeline" yaml:"pipeline" mapstructure:"pipeline"`

	// RelatedSessionInput is the origin input whose session this input's
	// pipeline reads. Zero means none.
	RelatedSessionInput int    `json:"related_session_input,omitempty" yaml:"related_session_input,omitempty" mapstructure:"related_session_input"`
	RuleData            string `json:"rule_data,omitempty" yaml:"rule_data,omitempty" mapstructure:"rule_data"`
}

// ValidateInput checks that n addresses a physical input line.
func ValidateInput(n int) error {
	if n < MinInput || n > MaxInput {
		return Errorf(KindInvalidInput, "input %d is outside %d-%d", n, MinInput, MaxInput)
	}
	return nil
}
