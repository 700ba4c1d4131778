package flowcfg

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stepflow-dev/stepflow/pkg/domain"
)

const editorDoc = `
id: f-lead
slug: lead-gen
name: Lead qualification
webhookUrl: https://hooks.example.com/leads
redirectUrl: /obrigado
nodes:
  - id: urgency
    type: question
    position: {x: 120, y: 40}
    data:
      title: How soon do you need this?
      options:
        - text: Urgent, this month
        - text: Just researching
          nextStep: https://partner.example.com
  - id: contact
    type: form
    data:
      title: How can we reach you?
      formFields:
        - name: email
          type: email
          required: true
          label: Email
edges:
  - id: e1
    source: urgency
    target: contact
    sourceHandle: option-0
`

func TestParse_EditorDocument(t *testing.T) {
	flow, err := Parse([]byte(editorDoc))
	require.NoError(t, err)

	assert.Equal(t, "f-lead", flow.ID)
	assert.Equal(t, "lead-gen", flow.Slug)
	assert.Equal(t, "Lead qualification", flow.Name)
	assert.Equal(t, "https://hooks.example.com/leads", flow.WebhookURL)
	assert.Equal(t, "/obrigado", flow.RedirectURL)

	require.Len(t, flow.Steps, 2)
	urgency, ok := flow.Step("urgency")
	require.True(t, ok)
	assert.Equal(t, domain.StepQuestion, urgency.Type)
	require.Len(t, urgency.Options, 2)
	assert.Equal(t, "https://partner.example.com", urgency.Options[1].NextStep)

	contact, ok := flow.Step("contact")
	require.True(t, ok)
	require.Len(t, contact.Fields, 1)
	assert.True(t, contact.Fields[0].Required)

	e, ok := flow.OptionEdge("urgency", 0)
	require.True(t, ok)
	assert.Equal(t, "contact", e.Target)
}

func TestParse_JSONDocument(t *testing.T) {
	raw := []byte(`{
		"id": "f2",
		"slug": "simple",
		"nodes": [{"id": "only", "type": "content", "data": {"title": "Hi"}}],
		"edges": []
	}`)
	flow, err := Parse(raw)
	require.NoError(t, err)
	assert.Equal(t, "simple", flow.Slug)
	assert.Equal(t, "only", flow.StartStepID())
}

func TestParse_Rejections(t *testing.T) {
	_, err := Parse([]byte(": not yaml ["))
	assert.Error(t, err)

	_, err = Parse([]byte("nodes:\n  - type: question\n"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "without an id")

	dup := `
nodes:
  - {id: a, type: content}
  - {id: a, type: content}
`
	_, err = Parse([]byte(dup))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "duplicate step id")
}

func TestLoadFile_SlugDefaultsToFileName(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "onboarding.yaml")
	doc := "nodes:\n  - {id: a, type: content}\n"
	require.NoError(t, os.WriteFile(path, []byte(doc), 0o644))

	flow, err := LoadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "onboarding", flow.Slug)
}

func TestLoadDir(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.yaml"),
		[]byte("slug: alpha\nnodes:\n  - {id: s, type: content}\n"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "b.yml"),
		[]byte("slug: beta\nnodes:\n  - {id: s, type: content}\n"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"),
		[]byte("ignored"), 0o644))

	flows, err := LoadDir(dir)
	require.NoError(t, err)
	assert.Len(t, flows, 2)
	assert.Contains(t, flows, "alpha")
	assert.Contains(t, flows, "beta")
}

func TestLoadDir_DuplicateSlug(t *testing.T) {
	dir := t.TempDir()
	doc := "slug: same\nnodes:\n  - {id: s, type: content}\n"
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.yaml"), []byte(doc), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "b.yaml"), []byte(doc), 0o644))

	_, err := LoadDir(dir)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "duplicate flow slug")
}
