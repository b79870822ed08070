package compiler

import (
	"fmt"
	"strings"

	"github.com/roach88/procflow/internal/ir"
)

// Cycle is a loop in a definition's flow graph.
//
// A cycle with an exit is legal: some member has a path to an END node.
// Without an exit an instance entering the loop could never complete, so
// Validate rejects it.
type Cycle struct {
	Path    []string `json:"path"`     // Cycle path: ["a", "b", "a"]
	HasExit bool     `json:"has_exit"` // Some member can reach an END node
	Message string   `json:"message"`
}

// AnalyzeCycles performs static cycle analysis on a definition's flows.
//
// The algorithm:
//  1. Build node → successors graph from sequence flows
//  2. Use Tarjan's algorithm to find strongly connected components
//  3. Report each SCC with size > 1 or a self-loop as a cycle
//
// Results follow node declaration order. A DAG returns an empty list.
func AnalyzeCycles(def *ir.ProcessDefinition) []Cycle {
	if len(def.Flows) == 0 {
		return []Cycle{}
	}

	graph := buildFlowGraph(def)
	canEnd := graph.reachesEnd(def)

	cycles := []Cycle{}
	for _, scc := range tarjanSCC(graph) {
		if len(scc) == 1 && !hasSelfLoop(scc[0], graph) {
			continue
		}
		cycles = append(cycles, sccToCycle(scc, graph, canEnd))
	}
	return cycles
}

// flowGraph maps node id → successor node ids, keeping declaration order.
type flowGraph struct {
	order []string
	edges map[string][]string
}

func buildFlowGraph(def *ir.ProcessDefinition) flowGraph {
	g := flowGraph{edges: make(map[string][]string, len(def.Nodes))}
	for _, n := range def.Nodes {
		if _, seen := g.edges[n.ID]; seen {
			continue
		}
		g.order = append(g.order, n.ID)
		g.edges[n.ID] = []string{}
	}
	for _, f := range def.Flows {
		if _, ok := g.edges[f.Source]; !ok {
			continue
		}
		g.edges[f.Source] = append(g.edges[f.Source], f.Target)
	}
	return g
}

// reachableFrom returns the set of nodes reachable from start, start included.
func (g flowGraph) reachableFrom(start string) map[string]bool {
	seen := map[string]bool{start: true}
	queue := []string{start}
	for len(queue) > 0 {
		v := queue[0]
		queue = queue[1:]
		for _, w := range g.edges[v] {
			if !seen[w] {
				seen[w] = true
				queue = append(queue, w)
			}
		}
	}
	return seen
}

// reachesEnd returns the set of nodes with a path to some END node.
func (g flowGraph) reachesEnd(def *ir.ProcessDefinition) map[string]bool {
	reverse := make(map[string][]string, len(g.order))
	for _, v := range g.order {
		for _, w := range g.edges[v] {
			reverse[w] = append(reverse[w], v)
		}
	}

	seen := make(map[string]bool)
	var queue []string
	for _, n := range def.Nodes {
		if n.Kind == ir.NodeEnd && !seen[n.ID] {
			seen[n.ID] = true
			queue = append(queue, n.ID)
		}
	}
	for len(queue) > 0 {
		v := queue[0]
		queue = queue[1:]
		for _, w := range reverse[v] {
			if !seen[w] {
				seen[w] = true
				queue = append(queue, w)
			}
		}
	}
	return seen
}

// hasSelfLoop checks if a node has an edge to itself.
func hasSelfLoop(node string, g flowGraph) bool {
	for _, neighbor := range g.edges[node] {
		if neighbor == node {
			return true
		}
	}
	return false
}

// tarjanSCC finds strongly connected components using Tarjan's algorithm.
//
// Returns a list of SCCs, where each SCC is a list of node IDs.
// Single-node SCCs without self-loops are NOT cycles.
func tarjanSCC(g flowGraph) [][]string {
	var (
		index   = 0
		stack   []string
		indices = make(map[string]int)
		lowlink = make(map[string]int)
		onStack = make(map[string]bool)
		sccs    [][]string
	)

	var strongConnect func(string)
	strongConnect = func(v string) {
		indices[v] = index
		lowlink[v] = index
		index++
		stack = append(stack, v)
		onStack[v] = true

		for _, w := range g.edges[v] {
			if _, visited := indices[w]; !visited {
				strongConnect(w)
				lowlink[v] = min(lowlink[v], lowlink[w])
			} else if onStack[w] {
				lowlink[v] = min(lowlink[v], indices[w])
			}
		}

		// v is a root node: pop the stack and emit an SCC
		if lowlink[v] == indices[v] {
			var scc []string
			for {
				w := stack[len(stack)-1]
				stack = stack[:len(stack)-1]
				onStack[w] = false
				scc = append(scc, w)
				if w == v {
					break
				}
			}
			sccs = append(sccs, scc)
		}
	}

	for _, node := range g.order {
		if _, visited := indices[node]; !visited {
			strongConnect(node)
		}
	}

	return sccs
}

// sccToCycle converts an SCC to a Cycle, starting the path at the member
// declared first.
func sccToCycle(scc []string, g flowGraph, canEnd map[string]bool) Cycle {
	members := make(map[string]bool, len(scc))
	for _, node := range scc {
		members[node] = true
	}

	start := scc[0]
	for _, node := range g.order {
		if members[node] {
			start = node
			break
		}
	}

	hasExit := false
	for _, node := range scc {
		if canEnd[node] {
			hasExit = true
			break
		}
	}

	path := reconstructCyclePath(start, members, g)
	msg := fmt.Sprintf("cycle detected: %s", strings.Join(path, " → "))
	if !hasExit {
		msg = fmt.Sprintf("cycle with no exit: %s", strings.Join(path, " → "))
	}

	return Cycle{Path: path, HasExit: hasExit, Message: msg}
}

// reconstructCyclePath follows edges within the SCC from start until it
// returns to start.
func reconstructCyclePath(start string, members map[string]bool, g flowGraph) []string {
	current := start
	path := []string{current}
	visited := make(map[string]bool)

	for {
		visited[current] = true

		var next string
		for _, neighbor := range g.edges[current] {
			if members[neighbor] && (!visited[neighbor] || neighbor == start) {
				next = neighbor
				break
			}
		}

		if next == "" {
			break
		}

		path = append(path, next)

		if next == start {
			break
		}

		current = next
	}

	return path
}
