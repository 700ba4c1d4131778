package dsl

import "github.com/stepflow-dev/stepflow/pkg/domain"

// Builder accumulates steps and edges for a flow.
type Builder struct {
	id    string
	slug  string
	steps []domain.Step
	edges []domain.Edge

	webhookURL  string
	redirectURL string
}

// New creates a flow builder.
func New(id, slug string) *Builder {
	return &Builder{id: id, slug: slug}
}

// Opt creates a plain option for a question step.
func Opt(text string) domain.Option {
	return domain.Option{Text: text}
}

// OptTo creates an option carrying its own next-step override.
func OptTo(text, nextStep string) domain.Option {
	return domain.Option{Text: text, NextStep: nextStep}
}

// Field creates a form field definition.
func Field(name, fieldType string, required bool) domain.FormField {
	return domain.FormField{Name: name, Type: fieldType, Required: required}
}

// Question adds a question step with the given options.
func (b *Builder) Question(id, title string, options ...domain.Option) *Builder {
	b.steps = append(b.steps, domain.Step{
		ID: id, Type: domain.StepQuestion, Title: title, Options: options,
	})
	return b
}

// Form adds a free-form input step.
func (b *Builder) Form(id, title string, fields ...domain.FormField) *Builder {
	b.steps = append(b.steps, domain.Step{
		ID: id, Type: domain.StepForm, Title: title, Fields: fields,
	})
	return b
}

// Content adds a static content step.
func (b *Builder) Content(id, title string) *Builder {
	b.steps = append(b.steps, domain.Step{ID: id, Type: domain.StepContent, Title: title})
	return b
}

// Step adds an arbitrary step verbatim.
func (b *Builder) Step(step domain.Step) *Builder {
	b.steps = append(b.steps, step)
	return b
}

// Edge adds a default (handle-less) edge.
func (b *Builder) Edge(source, target string) *Builder {
	b.edges = append(b.edges, domain.Edge{Source: source, Target: target})
	return b
}

// OptionEdge adds an edge bound to option optIdx of the source step.
func (b *Builder) OptionEdge(source string, optIdx int, target string) *Builder {
	b.edges = append(b.edges, domain.Edge{
		Source:       source,
		Target:       target,
		SourceHandle: domain.OptionHandle(optIdx),
	})
	return b
}

// Webhook sets the outbound webhook target for submissions.
func (b *Builder) Webhook(url string) *Builder {
	b.webhookURL = url
	return b
}

// Redirect sets the post-success redirect target.
func (b *Builder) Redirect(url string) *Builder {
	b.redirectURL = url
	return b
}

// Build compiles the flow snapshot, validating structural invariants.
func (b *Builder) Build() (*domain.Flow, error) {
	flow, err := domain.NewFlow(b.id, b.slug, b.steps, b.edges)
	if err != nil {
		return nil, err
	}
	flow.WebhookURL = b.webhookURL
	flow.RedirectURL = b.redirectURL
	return flow, nil
}
