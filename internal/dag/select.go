package dag

import (
	"fmt"
	"io"

	"github.com/dominikbraun/graph"
	"github.com/dominikbraun/graph/draw"
)

// Select returns the subgraph made of the referenced tasks and all their
// transitive dependencies. With no references the whole graph is returned.
func (g *Graph) Select(refs ...string) (*Graph, error) {
	if len(refs) == 0 {
		refs = g.Nodes()
	}

	var roots []string
	for _, ref := range refs {
		id, err := g.Resolve(ref)
		if err != nil {
			return nil, err
		}
		roots = append(roots, id)
	}

	g.mutex.RLock()
	defer g.mutex.RUnlock()

	keep := make(map[string]*node)
	var walk func(n *node)
	walk = func(n *node) {
		if _, seen := keep[n.id]; seen {
			return
		}
		keep[n.id] = n
		for _, dep := range n.deps {
			walk(dep)
		}
	}
	for _, id := range roots {
		walk(g.nodes[id])
	}

	sub := New()
	for id, n := range keep {
		sub.addNode(id, n.task)
	}
	for id, n := range keep {
		for depID := range n.deps {
			sub.nodes[id].deps[depID] = sub.nodes[depID]
			sub.nodes[depID].dependents[id] = sub.nodes[id]
		}
	}
	return sub, nil
}

// Order returns the node IDs in a stable topological order: dependencies
// first, ties broken lexically.
func (g *Graph) Order() ([]string, error) {
	dg, err := g.toGraph()
	if err != nil {
		return nil, err
	}
	order, err := graph.StableTopologicalSort(dg, func(a, b string) bool { return a < b })
	if err != nil {
		return nil, fmt.Errorf("failed to order task graph: %w", err)
	}
	return order, nil
}

// WriteDOT renders the graph in Graphviz DOT format.
func (g *Graph) WriteDOT(w io.Writer) error {
	dg, err := g.toGraph()
	if err != nil {
		return err
	}
	return draw.DOT(dg, w)
}

func (g *Graph) toGraph() (graph.Graph[string, string], error) {
	g.mutex.RLock()
	defer g.mutex.RUnlock()

	dg := graph.New(graph.StringHash, graph.Directed(), graph.PreventCycles())
	for _, id := range sortedKeys(g.nodes) {
		label := id
		if t := g.nodes[id].task; t != nil {
			label = ":" + t.Name
		}
		if err := dg.AddVertex(id, graph.VertexAttribute("label", label)); err != nil {
			return nil, fmt.Errorf("unable to add vertex %s: %w", id, err)
		}
	}
	for _, id := range sortedKeys(g.nodes) {
		for _, depID := range sortedKeys(g.nodes[id].deps) {
			if err := dg.AddEdge(depID, id); err != nil {
				return nil, fmt.Errorf("unable to add edge from %s to %s: %w", depID, id, err)
			}
		}
	}
	return dg, nil
}
