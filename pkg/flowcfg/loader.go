// Package flowcfg parses the flow-config documents produced by the
// visual graph editor into validated domain.Flow snapshots. Documents
// are YAML or JSON (YAML is a superset) with the editor's
// {nodes, edges} shape; node positions are editor-only and ignored.
package flowcfg

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/mitchellh/mapstructure"
	"github.com/stepflow-dev/stepflow/pkg/domain"
	"gopkg.in/yaml.v3"
)

// document mirrors the editor's on-disk shape.
type document struct {
	ID          string `yaml:"id"`
	Slug        string `yaml:"slug"`
	Name        string `yaml:"name"`
	WebhookURL  string `yaml:"webhookUrl"`
	RedirectURL string `yaml:"redirectUrl"`
	Nodes       []node `yaml:"nodes"`
	Edges       []edge `yaml:"edges"`
}

type node struct {
	ID   string         `yaml:"id"`
	Type string         `yaml:"type"`
	Data map[string]any `yaml:"data"`

	// Position is editor chrome; kept so round-tripping editor documents
	// does not error, never read by the runtime.
	Position map[string]float64 `yaml:"position"`
}

type edge struct {
	ID           string `yaml:"id"`
	Source       string `yaml:"source"`
	Target       string `yaml:"target"`
	SourceHandle string `yaml:"sourceHandle"`
}

// stepData is the node payload decoded out of the editor's free-form
// data map.
type stepData struct {
	Title  string             `mapstructure:"title"`
	Opts   []domain.Option    `mapstructure:"options"`
	Fields []domain.FormField `mapstructure:"formFields"`
}

// Decode reads one flow-config document.
func Decode(r io.Reader) (*domain.Flow, error) {
	raw, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("failed to read flow config: %w", err)
	}
	return Parse(raw)
}

// Parse builds a Flow snapshot from raw YAML/JSON bytes.
func Parse(raw []byte) (*domain.Flow, error) {
	var doc document
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("failed to parse flow config: %w", err)
	}

	steps := make([]domain.Step, 0, len(doc.Nodes))
	for _, n := range doc.Nodes {
		if n.ID == "" {
			return nil, fmt.Errorf("flow config has a node without an id")
		}
		var data stepData
		if err := mapstructure.Decode(n.Data, &data); err != nil {
			return nil, fmt.Errorf("node %q: failed to decode data: %w", n.ID, err)
		}
		steps = append(steps, domain.Step{
			ID:      n.ID,
			Type:    n.Type,
			Title:   data.Title,
			Options: data.Opts,
			Fields:  data.Fields,
		})
	}

	edges := make([]domain.Edge, 0, len(doc.Edges))
	for _, e := range doc.Edges {
		edges = append(edges, domain.Edge{
			Source:       e.Source,
			Target:       e.Target,
			SourceHandle: e.SourceHandle,
		})
	}

	flow, err := domain.NewFlow(doc.ID, doc.Slug, steps, edges)
	if err != nil {
		return nil, fmt.Errorf("invalid flow config: %w", err)
	}
	flow.Name = doc.Name
	flow.WebhookURL = doc.WebhookURL
	flow.RedirectURL = doc.RedirectURL
	return flow, nil
}

// LoadFile reads one flow config. A missing slug defaults to the file
// name without extension.
func LoadFile(path string) (*domain.Flow, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}
	flow, err := Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	if flow.Slug == "" {
		base := filepath.Base(path)
		flow.Slug = strings.TrimSuffix(base, filepath.Ext(base))
	}
	return flow, nil
}

// LoadDir loads every *.yaml, *.yml and *.json flow config in dir,
// keyed by slug.
func LoadDir(dir string) (map[string]*domain.Flow, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read flow dir: %w", err)
	}

	flows := make(map[string]*domain.Flow)
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		switch filepath.Ext(entry.Name()) {
		case ".yaml", ".yml", ".json":
		default:
			continue
		}
		flow, err := LoadFile(filepath.Join(dir, entry.Name()))
		if err != nil {
			return nil, err
		}
		if _, dup := flows[flow.Slug]; dup {
			return nil, fmt.Errorf("duplicate flow slug %q", flow.Slug)
		}
		flows[flow.Slug] = flow
	}
	return flows, nil
}
