package domain

// StepType constants define how a step behaves when rendered.
const (
	// StepQuestion presents a set of options and halts waiting for a choice.
	StepQuestion = "question"
	// StepForm presents free-form input fields.
	StepForm = "form"
	// StepContent displays static content and continues on confirmation.
	StepContent = "content"
	// StepOffer displays a commercial offer block.
	StepOffer = "offer"
	// StepTimer displays a countdown before continuing.
	StepTimer = "timer"
	// StepSocialProof displays testimonials/social proof content.
	StepSocialProof = "socialProof"
)

// Option is one selectable choice of a question step.
// NextStep, when set, overrides graph-based routing for this option.
type Option struct {
	Text     string `json:"text" yaml:"text"`
	Value    string `json:"value,omitempty" yaml:"value,omitempty"`
	NextStep string `json:"nextStep,omitempty" yaml:"nextStep,omitempty"`
}

// FormField describes one free-form input of a form step.
type FormField struct {
	Name     string `json:"name" yaml:"name"`
	Type     string `json:"type" yaml:"type"` // e.g. "text", "email", "tel"
	Required bool   `json:"required,omitempty" yaml:"required,omitempty"`
	Label    string `json:"label,omitempty" yaml:"label,omitempty"`
}

// Step represents one screen of the interactive form.
type Step struct {
	ID      string      `json:"id" yaml:"id"`
	Type    string      `json:"type" yaml:"type"`
	Title   string      `json:"title" yaml:"title"`
	Options []Option    `json:"options,omitempty" yaml:"options,omitempty"`
	Fields  []FormField `json:"formFields,omitempty" yaml:"formFields,omitempty"`
}

// OptionIndex returns the position of the option whose text matches,
// or -1 if the step has no such option.
func (s *Step) OptionIndex(text string) int {
	for i, opt := range s.Options {
		if opt.Text == text {
			return i
		}
	}
	return -1
}
