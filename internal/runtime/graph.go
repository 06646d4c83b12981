package runtime

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/aretw0/sqlgraph/pkg/domain"
)

// NodeID names a node of a workflow graph.
type NodeID string

// End is the terminal pseudo-node.
const End NodeID = "__end__"

// Emitter sends a display event from inside a node.
type Emitter func(t domain.EventType, payload string)

// NodeFunc is a node handler. It reads the state, emits events and returns
// the update to commit. It must not mutate st.
type NodeFunc func(ctx context.Context, st *domain.State, emit Emitter) (domain.Update, error)

// Dispatcher picks the successor of a node from the committed state.
type Dispatcher func(st *domain.State) NodeID

var (
	// ErrInvalidGraph is returned by Compile for malformed graphs.
	ErrInvalidGraph = errors.New("invalid graph")
	// ErrStepBudget is returned when a run exceeds its step budget.
	ErrStepBudget = errors.New("step budget exhausted")
)

type branch struct {
	dispatch Dispatcher
	targets  []NodeID
}

// Graph is a mutable graph definition. Compile freezes it.
type Graph struct {
	order      []NodeID
	nodes      map[NodeID]NodeFunc
	edges      map[NodeID]NodeID
	branches   map[NodeID]branch
	interrupts map[NodeID]bool
	entry      NodeID
	errs       []error
}

// NewGraph creates an empty graph.
func NewGraph() *Graph {
	return &Graph{
		nodes:      make(map[NodeID]NodeFunc),
		edges:      make(map[NodeID]NodeID),
		branches:   make(map[NodeID]branch),
		interrupts: make(map[NodeID]bool),
	}
}

// AddNode registers a handler. The first node added is the entry unless SetEntry is called.
func (g *Graph) AddNode(id NodeID, fn NodeFunc) *Graph {
	if _, dup := g.nodes[id]; dup {
		g.errs = append(g.errs, fmt.Errorf("node %s added twice", id))
		return g
	}
	if id == End || id == "" || fn == nil {
		g.errs = append(g.errs, fmt.Errorf("node %q is not a valid handler", id))
		return g
	}
	g.nodes[id] = fn
	g.order = append(g.order, id)
	if g.entry == "" {
		g.entry = id
	}
	return g
}

// AddEdge adds an unconditional transition.
func (g *Graph) AddEdge(from, to NodeID) *Graph {
	if g.hasOutgoing(from) {
		g.errs = append(g.errs, fmt.Errorf("node %s already has an outgoing transition", from))
		return g
	}
	g.edges[from] = to
	return g
}

// AddConditionalEdges routes from through d. targets lists every node d may return.
func (g *Graph) AddConditionalEdges(from NodeID, d Dispatcher, targets ...NodeID) *Graph {
	if g.hasOutgoing(from) {
		g.errs = append(g.errs, fmt.Errorf("node %s already has an outgoing transition", from))
		return g
	}
	g.branches[from] = branch{dispatch: d, targets: targets}
	return g
}

// SetEntry overrides the entry node.
func (g *Graph) SetEntry(id NodeID) *Graph {
	g.entry = id
	return g
}

// InterruptBefore suspends a run whenever it is about to enter one of ids.
// A run that starts at an interrupt node enters it normally.
func (g *Graph) InterruptBefore(ids ...NodeID) *Graph {
	for _, id := range ids {
		g.interrupts[id] = true
	}
	return g
}

func (g *Graph) hasOutgoing(id NodeID) bool {
	_, e := g.edges[id]
	_, b := g.branches[id]
	return e || b
}

// Compile validates the graph and binds it to the state registry.
func (g *Graph) Compile(reg *domain.Registry, opts ...Option) (*Compiled, error) {
	errs := append([]error(nil), g.errs...)
	if reg == nil {
		errs = append(errs, errors.New("state registry is required"))
	}
	if _, ok := g.nodes[g.entry]; !ok {
		errs = append(errs, fmt.Errorf("entry node %q is not registered", g.entry))
	}
	known := func(id NodeID) bool {
		_, ok := g.nodes[id]
		return ok || id == End
	}
	for _, id := range g.order {
		if !g.hasOutgoing(id) {
			errs = append(errs, fmt.Errorf("node %s has no outgoing transition", id))
		}
	}
	for from, to := range g.edges {
		if !known(from) || !known(to) {
			errs = append(errs, fmt.Errorf("edge %s -> %s references an unknown node", from, to))
		}
	}
	for from, b := range g.branches {
		if !known(from) {
			errs = append(errs, fmt.Errorf("conditional edges from unknown node %s", from))
		}
		if b.dispatch == nil || len(b.targets) == 0 {
			errs = append(errs, fmt.Errorf("conditional edges from %s need a dispatcher and targets", from))
		}
		for _, to := range b.targets {
			if !known(to) {
				errs = append(errs, fmt.Errorf("conditional edge %s -> %s references an unknown node", from, to))
			}
		}
	}
	for id := range g.interrupts {
		if _, ok := g.nodes[id]; !ok {
			errs = append(errs, fmt.Errorf("interrupt on unknown node %s", id))
		}
	}
	if len(errs) > 0 {
		return nil, fmt.Errorf("%w: %w", ErrInvalidGraph, errors.Join(errs...))
	}

	c := &Compiled{
		order:      append([]NodeID(nil), g.order...),
		nodes:      make(map[NodeID]NodeFunc, len(g.nodes)),
		edges:      make(map[NodeID]NodeID, len(g.edges)),
		branches:   make(map[NodeID]branch, len(g.branches)),
		interrupts: make(map[NodeID]bool, len(g.interrupts)),
		entry:      g.entry,
		reg:        reg,
	}
	for k, v := range g.nodes {
		c.nodes[k] = v
	}
	for k, v := range g.edges {
		c.edges[k] = v
	}
	for k, v := range g.branches {
		c.branches[k] = branch{dispatch: v.dispatch, targets: append([]NodeID(nil), v.targets...)}
	}
	for k, v := range g.interrupts {
		c.interrupts[k] = v
	}
	c.applyOptions(opts)
	return c, nil
}

// Edge describes a transition of a compiled graph.
type Edge struct {
	From        NodeID
	To          NodeID
	Conditional bool
}

// Nodes returns node IDs in registration order.
func (c *Compiled) Nodes() []NodeID {
	return append([]NodeID(nil), c.order...)
}

// Entry returns the entry node.
func (c *Compiled) Entry() NodeID {
	return c.entry
}

// Registry returns the state registry the graph was compiled against.
func (c *Compiled) Registry() *domain.Registry {
	return c.reg
}

// Interrupts reports whether runs suspend before id.
func (c *Compiled) Interrupts(id NodeID) bool {
	return c.interrupts[id]
}

// Edges lists every transition, ordered by source registration then target.
func (c *Compiled) Edges() []Edge {
	var out []Edge
	for _, from := range c.order {
		if to, ok := c.edges[from]; ok {
			out = append(out, Edge{From: from, To: to})
			continue
		}
		b := c.branches[from]
		targets := append([]NodeID(nil), b.targets...)
		sort.Slice(targets, func(i, j int) bool { return targets[i] < targets[j] })
		for _, to := range targets {
			out = append(out, Edge{From: from, To: to, Conditional: true})
		}
	}
	return out
}

func (c *Compiled) next(from NodeID, st *domain.State) (NodeID, error) {
	if to, ok := c.edges[from]; ok {
		return to, nil
	}
	b := c.branches[from]
	to := b.dispatch(st)
	for _, t := range b.targets {
		if t == to {
			return to, nil
		}
	}
	return "", fmt.Errorf("dispatcher of %s returned undeclared target %q", from, to)
}
