package runtime

import "github.com/stepflow-dev/stepflow/pkg/domain"

// ReachableSteps performs a breadth-first traversal of the flow graph
// from the inferred start step and returns the set of authored step ids
// discovered. Edges pointing at nonexistent ids (external/absolute-URL
// exits) are ignored. A flow with no edges, or with no zero-in-degree
// start step (every step is an edge target), degrades to "every authored
// step is reachable" — forms authored without explicit wiring still get
// a sane progress denominator.
func ReachableSteps(f *domain.Flow) map[string]bool {
	reached := make(map[string]bool, len(f.Steps))

	// Degrade to "every authored step is reachable" when the graph gives
	// the walk nothing to stand on: no edges at all, or no zero-in-degree
	// start step (fully cycled wiring).
	start, ok := f.StartStep()
	if len(f.Edges) == 0 || !ok {
		for _, s := range f.Steps {
			reached[s.ID] = true
		}
		return reached
	}

	queue := []string{start}
	reached[start] = true
	for len(queue) > 0 {
		current := queue[0]
		queue = queue[1:]

		for _, e := range f.Edges {
			if e.Source != current {
				continue
			}
			if !f.HasStep(e.Target) || reached[e.Target] {
				continue
			}
			reached[e.Target] = true
			queue = append(queue, e.Target)
		}
	}
	return reached
}

// ReachableStepCount returns the progress denominator: the number of
// steps discoverable from the inferred start. Pure and side-effect-free;
// recompute whenever the graph changes.
func ReachableStepCount(f *domain.Flow) int {
	return len(ReachableSteps(f))
}
