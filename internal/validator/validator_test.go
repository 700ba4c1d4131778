package validator_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stepflow-dev/stepflow/internal/validator"
	"github.com/stepflow-dev/stepflow/pkg/dsl"
)

func TestValidateFlow_AcceptsWellFormedGraph(t *testing.T) {
	flow, err := dsl.New("f1", "ok").
		Question("urgency", "How soon?",
			dsl.Opt("Now"),
			dsl.OptTo("Later", "https://partner.example.com"),
		).
		Form("contact", "Contact", dsl.Field("email", "email", true)).
		OptionEdge("urgency", 0, "contact").
		Build()
	require.NoError(t, err)

	assert.NoError(t, validator.ValidateFlow(flow))
}

func TestValidateFlow_EmptyFlow(t *testing.T) {
	flow, err := dsl.New("f1", "empty").Build()
	require.NoError(t, err)

	err = validator.ValidateFlow(flow)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no steps")
}

func TestValidateFlow_ReportsDanglingEdges(t *testing.T) {
	flow, err := dsl.New("f1", "dangling").
		Content("a", "A").
		Content("b", "B").
		Edge("a", "b").
		Edge("ghost", "a").
		Build()
	require.NoError(t, err)

	err = validator.ValidateFlow(flow)
	require.Error(t, err)
	assert.Contains(t, err.Error(), `edge source "ghost" does not exist`)
}

func TestValidateFlow_ReportsMissingEdgeTarget(t *testing.T) {
	flow, err := dsl.New("f1", "missing").
		Content("a", "A").
		Edge("a", "gone").
		Build()
	require.NoError(t, err)

	err = validator.ValidateFlow(flow)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "points at a missing step")
}

func TestValidateFlow_ReportsMissingOptionTarget(t *testing.T) {
	flow, err := dsl.New("f1", "opt").
		Question("q", "Q", dsl.OptTo("choice", "gone")).
		Build()
	require.NoError(t, err)

	err = validator.ValidateFlow(flow)
	require.Error(t, err)
	assert.Contains(t, err.Error(), `option 0 points at missing step "gone"`)
}

func TestValidateFlow_ReportsUnreachableSteps(t *testing.T) {
	flow, err := dsl.New("f1", "orphan").
		Content("a", "A").
		Content("b", "B").
		Content("island", "Island").
		Edge("a", "b").
		Build()
	require.NoError(t, err)

	err = validator.ValidateFlow(flow)
	require.Error(t, err)
	assert.Contains(t, err.Error(), `step "island" is unreachable`)
}

func TestValidateFlow_ExternalTargetsAreNotDefects(t *testing.T) {
	flow, err := dsl.New("f1", "external").
		Content("a", "A").
		Edge("a", "https://partner.example.com").
		Build()
	require.NoError(t, err)

	assert.NoError(t, validator.ValidateFlow(flow))
}
