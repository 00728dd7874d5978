package compiler

import (
	"fmt"
	"sort"
	"strings"

	"github.com/roach88/fleetcrawl/internal/ir"
)

// ReferenceCycle is a set of entity types that reference each other,
// directly or through other types. Such types cannot be provisioned, since
// every foreign key target must exist before its dependants.
type ReferenceCycle struct {
	Path    []string `json:"path"`    // e.g. ["a", "b", "a"]
	Message string   `json:"message"` // Human-readable description
}

// AnalyzeReferenceCycles finds reference cycles among entity types.
//
// The algorithm:
//  1. Build entity -> referenced entity graph (targets outside the set are ignored)
//  2. Use Tarjan's algorithm to find strongly connected components
//  3. Report each SCC with size > 1, or a self-reference, as a cycle
//
// An acyclic set returns an empty list. Results are ordered by the first
// entity on each path.
func AnalyzeReferenceCycles(entities []ir.EntityType) []ReferenceCycle {
	cycles := []ReferenceCycle{}
	if len(entities) == 0 {
		return cycles
	}

	graph := buildReferenceGraph(entities)
	for _, scc := range tarjanSCC(graph) {
		if len(scc) > 1 || hasSelfLoop(scc[0], graph) {
			cycles = append(cycles, sccToCycle(scc, graph))
		}
	}
	sort.Slice(cycles, func(i, j int) bool { return cycles[i].Path[0] < cycles[j].Path[0] })
	return cycles
}

// referenceGraph maps entity name -> names of the entities it references.
type referenceGraph map[string][]string

func buildReferenceGraph(entities []ir.EntityType) referenceGraph {
	graph := make(referenceGraph, len(entities))
	for _, e := range entities {
		if graph[e.Name] == nil {
			graph[e.Name] = []string{}
		}
	}
	for _, e := range entities {
		for _, r := range e.References {
			if _, known := graph[r.Target]; known {
				graph[e.Name] = append(graph[e.Name], r.Target)
			}
		}
		sort.Strings(graph[e.Name])
	}
	return graph
}

// hasSelfLoop checks if a node has an edge to itself.
func hasSelfLoop(node string, graph referenceGraph) bool {
	for _, neighbor := range graph[node] {
		if neighbor == node {
			return true
		}
	}
	return false
}

// tarjanSCC finds strongly connected components using Tarjan's algorithm.
// Nodes are visited in name order so the output is deterministic.
func tarjanSCC(graph referenceGraph) [][]string {
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

		for _, w := range graph[v] {
			if _, visited := indices[w]; !visited {
				strongConnect(w)
				lowlink[v] = min(lowlink[v], lowlink[w])
			} else if onStack[w] {
				lowlink[v] = min(lowlink[v], indices[w])
			}
		}

		// v is a root node: pop the stack and create an SCC
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
			sort.Strings(scc)
			sccs = append(sccs, scc)
		}
	}

	nodes := make([]string, 0, len(graph))
	for node := range graph {
		nodes = append(nodes, node)
	}
	sort.Strings(nodes)
	for _, node := range nodes {
		if _, visited := indices[node]; !visited {
			strongConnect(node)
		}
	}

	return sccs
}

func sccToCycle(scc []string, graph referenceGraph) ReferenceCycle {
	if len(scc) == 1 {
		name := scc[0]
		return ReferenceCycle{
			Path:    []string{name, name},
			Message: fmt.Sprintf("entity %s references itself", name),
		}
	}

	path := reconstructCyclePath(scc, graph)
	return ReferenceCycle{
		Path:    path,
		Message: fmt.Sprintf("reference cycle: %s", strings.Join(path, " -> ")),
	}
}

// reconstructCyclePath builds a cycle path from an SCC.
//
// Strategy: start at the first node, follow edges to other SCC members and
// stop on returning to the start.
func reconstructCyclePath(scc []string, graph referenceGraph) []string {
	if len(scc) == 0 {
		return []string{}
	}

	sccSet := make(map[string]bool, len(scc))
	for _, node := range scc {
		sccSet[node] = true
	}

	start := scc[0]
	current := start
	path := []string{current}
	visited := make(map[string]bool)

	for {
		visited[current] = true

		var next string
		for _, neighbor := range graph[current] {
			if sccSet[neighbor] && (!visited[neighbor] || neighbor == start) {
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
