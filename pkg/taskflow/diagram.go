package taskflow

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
)

// DefaultDiagramTitle is used when a diagram is requested without a title.
const DefaultDiagramTitle = "Diagram"

// Presentation-only nodes added to every diagram. They are not tasks.
const (
	diagramStart     = "Start"
	diagramException = "GlobalException"
)

// Graphviz HSV colours.
const (
	colorRed        = "0.000 0.500 1.000"
	colorLightBlue  = "0.590 0.273 1.000"
	colorLightGreen = "0.449 0.447 1.000"
	colorLightGray  = "0.000 0.000 0.800"
	colorArrow      = "0.650 0.700 0.700"
)

// ErrNoRenderer indicates DrawDiagram was called without a Renderer.
var ErrNoRenderer = errors.New("diagram renderer required")

// Renderer turns a Graphviz description into an image. When saveAs is not
// empty the image is also written to that path.
type Renderer interface {
	Render(ctx context.Context, source, saveAs string) ([]byte, error)
}

// RendererFunc adapts a function to Renderer.
type RendererFunc func(ctx context.Context, source, saveAs string) ([]byte, error)

// Render implements Renderer.
func (f RendererFunc) Render(ctx context.Context, source, saveAs string) ([]byte, error) {
	return f(ctx, source, saveAs)
}

type nodeKind int

const (
	nodeLinear nodeKind = iota
	nodeBranching
	nodeTerminal
)

type diagramNode struct {
	name       string
	kind       nodeKind
	successors []string
}

// walk visits every task reachable from the initial task, breadth first.
// Successors keep their declared order so edge labels match branch indexes.
func (s flowSnapshot[P]) walk() ([]diagramNode, error) {
	start := s.initial()
	if start == "" {
		return nil, ErrNoInitialTask
	}

	queue := []string{start}
	visited := map[string]bool{start: true}
	var nodes []diagramNode

	for len(queue) > 0 {
		current := queue[0]
		queue = queue[1:]

		successors := s.successors(current)
		node := diagramNode{name: current, successors: successors}
		switch {
		case len(successors) == 0:
			node.kind = nodeTerminal
		case len(successors) > 1:
			node.kind = nodeBranching
		}
		nodes = append(nodes, node)

		for _, next := range successors {
			if !visited[next] {
				visited[next] = true
				queue = append(queue, next)
			}
		}
	}
	return nodes, nil
}

// DOT describes the flow in the Graphviz language. Terminal tasks are green,
// branch points blue and every other task gray; edges are labelled with the
// successor index. A Start node points at the initial task and a
// GlobalException node stands for the unhandled-exception path.
//
// Returns ErrNoInitialTask if StartWith was never called.
func (f *Flow[P]) DOT(title string) (string, error) {
	nodes, err := f.snapshot().walk()
	if err != nil {
		return "", err
	}
	if title == "" {
		title = DefaultDiagramTitle
	}

	var b strings.Builder
	b.WriteString("digraph g {\n")
	b.WriteString("  ratio = fill;\n")
	b.WriteString("  node [style = filled];\n")
	fmt.Fprintf(&b, "  label = %q;\n", title)
	b.WriteString("  labelloc = t;\n")

	fmt.Fprintf(&b, "  %q [color=%q];\n", diagramStart, colorLightGreen)
	fmt.Fprintf(&b, "  %q -> %q [color=%q];\n", diagramStart, nodes[0].name, colorArrow)

	for _, n := range nodes {
		fmt.Fprintf(&b, "  %q [color=%q];\n", n.name, dotColor(n.kind))
		for i, next := range n.successors {
			fmt.Fprintf(&b, "  %q -> %q [color=%q, label=\"%d\"];\n", n.name, next, colorArrow, i)
		}
	}

	fmt.Fprintf(&b, "  %q [color=%q];\n", diagramException, colorRed)
	b.WriteString("}\n")
	return b.String(), nil
}

func dotColor(k nodeKind) string {
	switch k {
	case nodeTerminal:
		return colorLightGreen
	case nodeBranching:
		return colorLightBlue
	default:
		return colorLightGray
	}
}

// Mermaid describes the flow as a Mermaid flowchart, using the same
// traversal and node classes as DOT.
func (f *Flow[P]) Mermaid() (string, error) {
	nodes, err := f.snapshot().walk()
	if err != nil {
		return "", err
	}

	// Task names only appear in labels; node ids are assigned in BFS order.
	ids := make(map[string]string, len(nodes))
	for i, n := range nodes {
		ids[n.name] = fmt.Sprintf("n%d", i)
	}

	var b strings.Builder
	b.WriteString("graph LR\n")
	fmt.Fprintf(&b, "    %s((%s)) --> %s\n", diagramStart, diagramStart, ids[nodes[0].name])

	for _, n := range nodes {
		fmt.Fprintf(&b, "    %s[\"%s\"]:::%s\n", ids[n.name], mermaidLabel(n.name), mermaidClass(n.kind))
	}
	for _, n := range nodes {
		for i, next := range n.successors {
			fmt.Fprintf(&b, "    %s -->|\"%d\"| %s\n", ids[n.name], i, ids[next])
		}
	}

	fmt.Fprintf(&b, "    %s[\"%s\"]:::exception\n", diagramException, diagramException)
	b.WriteString("    classDef terminal fill:#a8e6a3\n")
	b.WriteString("    classDef branching fill:#a3c8f0\n")
	b.WriteString("    classDef linear fill:#cccccc\n")
	b.WriteString("    classDef exception fill:#ff8080\n")
	return b.String(), nil
}

var mermaidEscaper = strings.NewReplacer(
	`"`, "#quot;",
	"<", "#lt;",
	">", "#gt;",
)

func mermaidLabel(s string) string {
	return mermaidEscaper.Replace(s)
}

func mermaidClass(k nodeKind) string {
	switch k {
	case nodeTerminal:
		return "terminal"
	case nodeBranching:
		return "branching"
	default:
		return "linear"
	}
}

// DrawDiagram describes the flow and asks r to render it. With save set the
// image is also written to "<title>.png".
//
// Failures are returned and also reported to the flow's subscribers and to
// listeners as an ErrorOccurred notification with source SourceDiagram.
func (f *Flow[P]) DrawDiagram(ctx context.Context, r Renderer, title string, save bool, listeners ...Listener) ([]byte, error) {
	if title == "" {
		title = DefaultDiagramTitle
	}
	n := newNotifier("", slog.Default(), f.subscribers(), listeners)

	fail := func(op string, err error) ([]byte, error) {
		derr := &DiagramError{Title: title, Op: op, Err: err}
		n.reportError(SourceDiagram, derr)
		return nil, derr
	}

	source, err := f.DOT(title)
	if err != nil {
		return fail("describe", err)
	}
	if r == nil {
		return fail("render", ErrNoRenderer)
	}

	saveAs := ""
	if save {
		saveAs = title + ".png"
	}
	img, err := r.Render(ctx, source, saveAs)
	if err != nil {
		return fail("render", err)
	}
	return img, nil
}
