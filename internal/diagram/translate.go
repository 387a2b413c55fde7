// Package diagram turns the flowchart markup returned by the diagram
// endpoints into a plain directed graph.
//
// Only single "-->" edges are understood. Node labels in square brackets are
// dropped, and every other construct (edge text, alternate arrows, chained or
// multi-target edges, subgraphs, styling, comments) is ignored.
package diagram

import (
	"fmt"
	"strings"
)

const EdgeMarker = "-->"

type Edge struct {
	From string `json:"from"`
	To   string `json:"to"`
}

type Graph struct {
	Edges []Edge `json:"edges"`
}

// Translate extracts the edges of markup. The first line is taken to be the
// diagram declaration and skipped unless it already holds an edge.
func Translate(markup string) Graph {
	lines := strings.Split(strings.ReplaceAll(markup, "\r\n", "\n"), "\n")
	if len(lines) > 0 && !strings.Contains(lines[0], EdgeMarker) {
		lines = lines[1:]
	}

	var g Graph
	for _, line := range lines {
		if !strings.Contains(line, EdgeMarker) {
			continue
		}
		parts := strings.Split(line, EdgeMarker)
		if len(parts) != 2 {
			continue
		}
		from, to := nodeName(parts[0]), nodeName(parts[1])
		if from == "" || to == "" {
			continue
		}
		g.Edges = append(g.Edges, Edge{From: from, To: to})
	}
	return g
}

// Nodes lists every node in order of first appearance.
func (g Graph) Nodes() []string {
	seen := make(map[string]struct{}, len(g.Edges)*2)
	var nodes []string
	for _, e := range g.Edges {
		for _, n := range []string{e.From, e.To} {
			if _, dup := seen[n]; dup {
				continue
			}
			seen[n] = struct{}{}
			nodes = append(nodes, n)
		}
	}
	return nodes
}

// DOT renders the graph as a Graphviz digraph.
func (g Graph) DOT() string {
	var b strings.Builder
	b.WriteString("digraph {\n")
	for _, e := range g.Edges {
		fmt.Fprintf(&b, "  %s -> %s;\n", quote(e.From), quote(e.To))
	}
	b.WriteString("}\n")
	return b.String()
}

func nodeName(raw string) string {
	name := strings.TrimSuffix(strings.TrimSpace(raw), ";")
	if i := strings.IndexByte(name, '['); i >= 0 {
		id := strings.TrimSpace(name[:i])
		if id == "" {
			id = name[i:]
		}
		name = id
	}
	return strings.TrimSpace(strings.Trim(name, "[] "))
}

var dotEscaper = strings.NewReplacer(`\`, `\\`, `"`, `\"`)

func quote(s string) string {
	return `"` + dotEscaper.Replace(s) + `"`
}
