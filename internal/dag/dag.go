// Package dag orders the predecessor graph of a challenge's phases. Each node
// carries a rank (its position in the authoring order); topological sorting
// keeps predecessors ahead of their dependants and otherwise preserves rank,
// so a template that is already in topological order comes back unchanged.
package dag

import (
	"errors"
	"fmt"
	"sort"
)

// ErrCycle is returned when the graph contains a predecessor cycle.
var ErrCycle = errors.New("cycle detected")

// ErrNodeNotFound is returned when an operation references a non-existent node.
var ErrNodeNotFound = errors.New("node not found")

// ErrDuplicateNode is returned when adding a node that already exists.
var ErrDuplicateNode = errors.New("duplicate node")

// ErrSelfEdge is returned when an edge would create a self-loop.
var ErrSelfEdge = errors.New("self-referencing edge")

// Node is a vertex of the graph.
type Node struct {
	ID   string
	Rank int // lower rank sorts first among unconstrained nodes
}

// DAG is a directed acyclic graph. Edges point from a node to the node it
// follows: if B's predecessor is A, there is an edge from B to A.
type DAG struct {
	nodes map[string]*Node
	// adjacency maps nodeID → set of predecessor IDs (forward edges).
	adjacency map[string]map[string]bool
	// reverse maps nodeID → set of dependant IDs (backward edges).
	reverse map[string]map[string]bool
}

// New creates an empty DAG.
func New() *DAG {
	return &DAG{
		nodes:     make(map[string]*Node),
		adjacency: make(map[string]map[string]bool),
		reverse:   make(map[string]map[string]bool),
	}
}

// AddNode adds a node with the given ID and rank. Returns ErrDuplicateNode if
// a node with that ID already exists.
func (d *DAG) AddNode(id string, rank int) error {
	if _, exists := d.nodes[id]; exists {
		return fmt.Errorf("%w: %s", ErrDuplicateNode, id)
	}
	d.nodes[id] = &Node{ID: id, Rank: rank}
	d.adjacency[id] = make(map[string]bool)
	d.reverse[id] = make(map[string]bool)
	return nil
}

// AddEdge records that from follows to. Both nodes must already exist.
// Returns an error if either node is missing, the edge would create a
// self-loop, or the edge would introduce a cycle.
func (d *DAG) AddEdge(from, to string) error {
	if from == to {
		return fmt.Errorf("%w: %s", ErrSelfEdge, from)
	}
	if _, ok := d.nodes[from]; !ok {
		return fmt.Errorf("%w: %s", ErrNodeNotFound, from)
	}
	if _, ok := d.nodes[to]; !ok {
		return fmt.Errorf("%w: %s", ErrNodeNotFound, to)
	}
	if d.adjacency[from][to] {
		return nil
	}
	// A path to → ... → from plus the new edge from → to would close a loop.
	if d.hasPath(to, from) {
		return fmt.Errorf("%w: edge %s → %s would create a cycle", ErrCycle, from, to)
	}
	d.adjacency[from][to] = true
	d.reverse[to][from] = true
	return nil
}

// Node returns the node with the given ID, or nil if not found.
func (d *DAG) Node(id string) *Node {
	return d.nodes[id]
}

// TopologicalSort returns node IDs so that every predecessor precedes its
// dependants. Among nodes that are free at the same time the lowest rank is
// emitted first. Returns ErrCycle if the graph contains a cycle.
func (d *DAG) TopologicalSort() ([]string, error) {
	inDegree := make(map[string]int, len(d.nodes))
	var ready []string
	for id := range d.nodes {
		inDegree[id] = len(d.adjacency[id])
		if inDegree[id] == 0 {
			ready = append(ready, id)
		}
	}

	sorted := make([]string, 0, len(d.nodes))
	for len(ready) > 0 {
		// Always take the lowest-ranked free node so authoring order wins ties.
		ready = d.rankSorted(ready)
		id := ready[0]
		ready = ready[1:]
		sorted = append(sorted, id)

		for dependant := range d.reverse[id] {
			inDegree[dependant]--
			if inDegree[dependant] == 0 {
				ready = append(ready, dependant)
			}
		}
	}

	if len(sorted) != len(d.nodes) {
		return nil, fmt.Errorf("%w: not all nodes could be ordered (%d of %d)",
			ErrCycle, len(sorted), len(d.nodes))
	}
	return sorted, nil
}

// hasPath reports whether there is a directed path from src to dst
// following forward edges.
func (d *DAG) hasPath(src, dst string) bool {
	if src == dst {
		return false
	}
	visited := make(map[string]bool)
	queue := []string{src}
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		for next := range d.adjacency[cur] {
			if next == dst {
				return true
			}
			if !visited[next] {
				visited[next] = true
				queue = append(queue, next)
			}
		}
	}
	return false
}

// rankSorted returns a copy of ids sorted by rank ascending, with ID as
// tiebreaker.
func (d *DAG) rankSorted(ids []string) []string {
	if len(ids) <= 1 {
		return ids
	}
	sorted := make([]string, len(ids))
	copy(sorted, ids)
	sort.Slice(sorted, func(i, j int) bool {
		ri := d.nodes[sorted[i]].Rank
		rj := d.nodes[sorted[j]].Rank
		if ri != rj {
			return ri < rj
		}
		return sorted[i] < sorted[j]
	})
	return sorted
}
