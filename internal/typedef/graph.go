package typedef

import (
	"fmt"
	"strings"
)

// graph holds the dependencies between definitions of one document: a type
// depends on its parent and interfaces, an interface on its prerequisites.
// Edges to names outside the document are left out.
type graph struct {
	order []string
	edges map[string][]string
}

func newGraph(d *Document) *graph {
	g := &graph{edges: make(map[string][]string)}
	local := make(map[string]bool)
	for _, name := range d.Names() {
		if !local[name] {
			g.order = append(g.order, name)
		}
		local[name] = true
	}

	add := func(from string, to ...string) {
		for _, dep := range to {
			if local[dep] {
				g.edges[from] = append(g.edges[from], dep)
			}
		}
	}
	for _, i := range d.Interfaces {
		add(i.Name, i.Prerequisites...)
	}
	for _, t := range d.Types {
		add(t.Name, t.Parent)
		add(t.Name, t.Interfaces...)
	}
	return g
}

// detectCycles returns every cycle found by a depth-first walk
func (g *graph) detectCycles() [][]string {
	var cycles [][]string
	visited := make(map[string]bool)
	onStack := make(map[string]bool)

	var dfs func(node string, path []string)
	dfs = func(node string, path []string) {
		visited[node] = true
		onStack[node] = true
		path = append(path, node)

		for _, next := range g.edges[node] {
			if !visited[next] {
				dfs(next, path)
			} else if onStack[next] {
				for i, n := range path {
					if n == next {
						cycle := make([]string, len(path)-i)
						copy(cycle, path[i:])
						cycles = append(cycles, cycle)
						break
					}
				}
			}
		}

		onStack[node] = false
	}

	for _, node := range g.order {
		if !visited[node] {
			dfs(node, nil)
		}
	}
	return cycles
}

// sort returns the definitions with dependencies first. Independent
// definitions keep their declaration order.
func (g *graph) sort() ([]string, error) {
	pending := make(map[string]int, len(g.order))
	dependents := make(map[string][]string)
	for _, node := range g.order {
		pending[node] = len(g.edges[node])
		for _, dep := range g.edges[node] {
			dependents[dep] = append(dependents[dep], node)
		}
	}

	var queue []string
	for _, node := range g.order {
		if pending[node] == 0 {
			queue = append(queue, node)
		}
	}

	result := make([]string, 0, len(g.order))
	for len(queue) > 0 {
		node := queue[0]
		queue = queue[1:]
		result = append(result, node)

		for _, dependent := range dependents[node] {
			pending[dependent]--
			if pending[dependent] == 0 {
				queue = append(queue, dependent)
			}
		}
	}

	if len(result) != len(g.order) {
		var b strings.Builder
		for i, cycle := range g.detectCycles() {
			if i > 0 {
				b.WriteString("; ")
			}
			b.WriteString(strings.Join(cycle, " -> "))
			b.WriteString(" -> ")
			b.WriteString(cycle[0])
		}
		return nil, fmt.Errorf("circular dependencies: %s", b.String())
	}
	return result, nil
}
