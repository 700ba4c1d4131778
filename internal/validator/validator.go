// Package validator lints authored flow configs for the defects the
// runtime can only surface at visit time: dangling edge targets,
// unreachable steps, and missing wiring.
package validator

import (
	"fmt"
	"strings"

	"github.com/stepflow-dev/stepflow/internal/runtime"
	"github.com/stepflow-dev/stepflow/pkg/domain"
)

// ValidateFlow crawls the flow graph and reports authoring defects.
// Absolute-URL edge targets are external exits, not defects.
func ValidateFlow(f *domain.Flow) error {
	var problems []string

	if len(f.Steps) == 0 {
		return fmt.Errorf("flow %q has no steps", f.Slug)
	}

	for _, e := range f.Edges {
		if !f.HasStep(e.Source) {
			problems = append(problems, fmt.Sprintf("edge source %q does not exist", e.Source))
		}
		if !f.HasStep(e.Target) && !domain.IsExternalTarget(e.Target) {
			problems = append(problems, fmt.Sprintf("edge %q -> %q points at a missing step", e.Source, e.Target))
		}
	}

	for _, s := range f.Steps {
		for i, opt := range s.Options {
			if opt.NextStep == "" {
				continue
			}
			if !f.HasStep(opt.NextStep) && !domain.IsExternalTarget(opt.NextStep) {
				problems = append(problems, fmt.Sprintf("step %q option %d points at missing step %q", s.ID, i, opt.NextStep))
			}
		}
	}

	if len(f.Edges) > 0 {
		reached := runtime.ReachableSteps(f)
		for _, s := range f.Steps {
			if !reached[s.ID] {
				problems = append(problems, fmt.Sprintf("step %q is unreachable from the start step", s.ID))
			}
		}
	}

	if len(problems) > 0 {
		return fmt.Errorf("found %d problems:\n- %s", len(problems), strings.Join(problems, "\n- "))
	}
	return nil
}
