// Package visualization renders fsm definitions, such as the traffic light,
// as Graphviz DOT graphs.
package visualization

import (
	"fmt"
	"os"
	"strings"

	"github.com/anggasct/junction/pkg/fsm"
)

// DOTGenerator generates Graphviz DOT format representations of state machines
type DOTGenerator struct {
	definition *fsm.Definition
	options    DOTOptions
}

// DOTOptions configures the DOT generation
type DOTOptions struct {
	ShowGuardConditions bool
	ShowActions         bool
	ShowEvents          bool
	RankDirection       string // "TB", "LR", "BT", "RL"
	NodeShape           string
	// Highlight marks one state, usually the current one
	Highlight string
}

// DefaultDOTOptions returns sensible default options for DOT generation
func DefaultDOTOptions() DOTOptions {
	return DOTOptions{
		ShowGuardConditions: true,
		ShowActions:         true,
		ShowEvents:          true,
		RankDirection:       "LR",
		NodeShape:           "box",
	}
}

// NewDOTGenerator creates a new DOT generator for the given machine definition
func NewDOTGenerator(definition *fsm.Definition, options ...DOTOptions) *DOTGenerator {
	opts := DefaultDOTOptions()
	if len(options) > 0 {
		opts = options[0]
	}

	return &DOTGenerator{
		definition: definition,
		options:    opts,
	}
}

// Generate creates a DOT representation of the state machine
func (g *DOTGenerator) Generate() (string, error) {
	if g.definition == nil {
		return "", fmt.Errorf("no machine definition")
	}

	var dot strings.Builder
	dot.WriteString("digraph StateMachine {\n")
	fmt.Fprintf(&dot, "  rankdir=%s;\n", g.options.RankDirection)
	fmt.Fprintf(&dot, "  node [shape=%s];\n", g.options.NodeShape)
	dot.WriteString("  edge [fontsize=10];\n\n")

	g.generateStates(&dot)
	g.generateTransitions(&dot)

	dot.WriteString("}\n")
	return dot.String(), nil
}

func (g *DOTGenerator) generateStates(dot *strings.Builder) {
	initial := g.definition.InitialState()

	dot.WriteString("  // States\n")
	for _, id := range g.definition.StateIDs() {
		state, _ := g.definition.State(id)
		g.generateStateNode(dot, id, state, id == initial)
	}
	dot.WriteString("\n")
}

// generateStateNode generates a DOT node for a single state
func (g *DOTGenerator) generateStateNode(dot *strings.Builder, id string, state *fsm.State, isInitial bool) {
	shape := g.options.NodeShape
	fillColor := "lightblue"
	label := id

	if isInitial {
		fillColor = "lightgreen"
		label += "\\n(initial)"
	}
	if state != nil && state.IsFinal() {
		shape = "doublecircle"
		fillColor = "lightcoral"
	}
	if g.options.ShowActions && state != nil {
		var actions []string
		if state.HasEntryAction() {
			actions = append(actions, "entry")
		}
		if state.HasExitAction() {
			actions = append(actions, "exit")
		}
		if len(actions) > 0 {
			label += "\\n/" + strings.Join(actions, ", ")
		}
	}
	if id == g.options.Highlight {
		fillColor = "gold"
	}

	fmt.Fprintf(dot, "  %q [shape=%s style=\"filled\" fillcolor=%s label=\"%s\"];\n",
		id, shape, fillColor, label)
}

func (g *DOTGenerator) generateTransitions(dot *strings.Builder) {
	dot.WriteString("  // Transitions\n")
	for _, t := range g.definition.Transitions() {
		var parts []string
		if g.options.ShowEvents && t.Event != "" {
			parts = append(parts, t.Event)
		}
		if g.options.ShowGuardConditions && t.Guarded() {
			parts = append(parts, "[guard]")
		}
		if g.options.ShowActions && t.Action != nil {
			parts = append(parts, "/ action")
		}

		if len(parts) == 0 {
			fmt.Fprintf(dot, "  %q -> %q;\n", t.Source, t.Target)
			continue
		}
		fmt.Fprintf(dot, "  %q -> %q [label=\"%s\"];\n", t.Source, t.Target, strings.Join(parts, " "))
	}
}

// GenerateToFile writes the DOT representation to a file
func (g *DOTGenerator) GenerateToFile(filename string) error {
	content, err := g.Generate()
	if err != nil {
		return err
	}

	return os.WriteFile(filename, []byte(content), 0644)
}
