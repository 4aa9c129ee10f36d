// Package dag models the dependency graph between experiment matrices and
// yields the order they must execute in.
package dag

import (
	"errors"
	"fmt"
	"sync"
)

// ErrCycle is returned when the declared dependencies contain a cycle. It is
// raised before any matrix executes.
var ErrCycle = errors.New("cyclic dependency")

// node is one matrix in the graph, linked both ways for traversal.
type node struct {
	id         string
	deps       map[string]*node
	dependents map[string]*node
}

// Graph is a directed acyclic graph of matrix IDs.
type Graph struct {
	mutex sync.RWMutex
	nodes map[string]*node
	// order preserves insertion order so traversals are deterministic.
	order []string
}

// New creates and returns an initialized, empty Graph.
func New() *Graph {
	return &Graph{nodes: make(map[string]*node)}
}

// AddNode adds a new node with the given ID to the graph. If a node with
// the same ID already exists, the function does nothing.
func (g *Graph) AddNode(id string) {
	g.mutex.Lock()
	defer g.mutex.Unlock()

	if _, ok := g.nodes[id]; ok {
		return
	}

	g.nodes[id] = &node{
		id:         id,
		deps:       make(map[string]*node),
		dependents: make(map[string]*node),
	}
	g.order = append(g.order, id)
}

// AddEdge creates a directed edge from the `fromID` node to the `toID` node.
// This signifies that `toID` has a dependency on `fromID`. An error is returned
// if either node does not exist or if the edge would create a self-reference.
func (g *Graph) AddEdge(fromID, toID string) error {
	if fromID == toID {
		return fmt.Errorf("self-referential edge not allowed: %s -> %s", fromID, fromID)
	}

	g.mutex.Lock()
	defer g.mutex.Unlock()

	fromNode, ok := g.nodes[fromID]
	if !ok {
		return fmt.Errorf("source node not found: %s", fromID)
	}

	toNode, ok := g.nodes[toID]
	if !ok {
		return fmt.Errorf("destination node not found: %s", toID)
	}

	toNode.deps[fromID] = fromNode
	fromNode.dependents[toID] = toNode

	return nil
}

// Dependents returns the IDs of nodes that depend on the given node, in
// insertion order.
func (g *Graph) Dependents(id string) ([]string, error) {
	g.mutex.RLock()
	defer g.mutex.RUnlock()

	n, ok := g.nodes[id]
	if !ok {
		return nil, fmt.Errorf("node not found: %s", id)
	}

	dependents := make([]string, 0, len(n.dependents))
	for _, candidate := range g.order {
		if _, ok := n.dependents[candidate]; ok {
			dependents = append(dependents, candidate)
		}
	}
	return dependents, nil
}

// TopologicalOrder returns every node ID ordered so that each node appears
// after all of its dependencies. Ties break on insertion order, which makes
// the result deterministic. Returns ErrCycle if the graph is not acyclic.
func (g *Graph) TopologicalOrder() ([]string, error) {
	g.mutex.RLock()
	defer g.mutex.RUnlock()

	inDegree := make(map[string]int, len(g.nodes))
	for id, n := range g.nodes {
		inDegree[id] = len(n.deps)
	}

	var ready []string
	for _, id := range g.order {
		if inDegree[id] == 0 {
			ready = append(ready, id)
		}
	}

	out := make([]string, 0, len(g.nodes))
	for len(ready) > 0 {
		id := ready[0]
		ready = ready[1:]
		out = append(out, id)

		n := g.nodes[id]
		for _, candidate := range g.order {
			if _, ok := n.dependents[candidate]; !ok {
				continue
			}
			inDegree[candidate]--
			if inDegree[candidate] == 0 {
				ready = append(ready, candidate)
			}
		}
	}

	if len(out) != len(g.nodes) {
		remaining := make([]string, 0)
		for _, id := range g.order {
			if inDegree[id] > 0 {
				remaining = append(remaining, id)
			}
		}
		return nil, fmt.Errorf("%w involving %v", ErrCycle, remaining)
	}
	return out, nil
}
