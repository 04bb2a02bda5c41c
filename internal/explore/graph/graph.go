// Package graph implements the thread-safe conversation graph: the store of
// discovered agent utterances (nodes) and the user responses that transition
// between them (edges).
//
// All mutating operations serialize through a single writer lock, following
// the same single-writer/many-reader shape the reference orchestrator uses
// for its agent registry (internal/agent/orchestrator/orchestrator.go):
// a sync.RWMutex guarding map state, functional options for construction,
// and package-level sentinel errors for caller-distinguishable failures.
package graph

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/google/uuid"

	"github.com/MrWong99/ivrwalker/internal/explore/identify"
	"github.com/MrWong99/ivrwalker/internal/explore/normalize"
)

// ErrNodeNotFound is returned when an operation references a node id that
// does not exist in the graph.
var ErrNodeNotFound = errors.New("graph: node not found")

// defaultSimilarityThreshold is the score NodeIdentifier requires before two
// utterances are treated as the same conversational state.
const defaultSimilarityThreshold = 0.85

// Node is a distinct agent utterance observed during exploration.
type Node struct {
	ID                  string
	Utterance           string // first observed surface form
	NormalizedUtterance string
	IsTerminal          bool
	DepthMin            int
	VisitCount          int
}

// Edge is a user-response transition from one node to another.
type Edge struct {
	FromID           string
	ToID             string
	UserResponse     string // first observed surface form
	ObservationCount int
}

// edgeKey identifies an edge's slot for uniqueness per §4.4: "(from_id,
// normalize(user_response)) is unique".
type edgeKey struct {
	fromID                 string
	normalizedUserResponse string
}

// Graph is a thread-safe, deduplicated directed multigraph of conversation
// nodes and edges. The zero value is not usable; construct with [New].
type Graph struct {
	mu sync.RWMutex

	nodes map[string]*Node
	edges map[edgeKey]*Edge
	// outgoing indexes edges by source node for frontier breadth checks.
	outgoing map[string][]edgeKey

	rootID    string
	threshold float64
}

// Option configures a [Graph] during construction.
type Option func(*Graph)

// WithSimilarityThreshold overrides the default NodeIdentifier threshold
// (0.85) used by [Graph.GetOrCreateNode].
func WithSimilarityThreshold(t float64) Option {
	return func(g *Graph) { g.threshold = t }
}

// New creates an empty Graph.
func New(opts ...Option) *Graph {
	g := &Graph{
		nodes:     make(map[string]*Node),
		edges:     make(map[edgeKey]*Edge),
		outgoing:  make(map[string][]edgeKey),
		threshold: defaultSimilarityThreshold,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// SetSimilarityThreshold updates the NodeIdentifier threshold used by future
// [Graph.GetOrCreateNode] calls. Safe to call while other goroutines are
// reading or writing the graph.
func (g *Graph) SetSimilarityThreshold(t float64) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.threshold = t
}

// GetOrCreateNode finds an existing node whose normalized utterance matches
// utterance under NodeIdentifier, or inserts a new one. depth is the
// candidate depth of this observation; an existing node's depth_min is
// lowered if this observation reaches it more shallowly.
//
// GetOrCreateNode holds the graph's write lock for the full find-then-insert
// sequence, so concurrent callers observing the same utterance are
// guaranteed to converge on a single node (§4.3, §5).
func (g *Graph) GetOrCreateNode(utterance string, depth int) (id string, created bool) {
	normalized := normalize.Text(utterance)

	g.mu.Lock()
	defer g.mu.Unlock()

	candidates := make([]identify.Candidate, 0, len(g.nodes))
	for _, n := range g.nodes {
		candidates = append(candidates, identify.Candidate{ID: n.ID, NormalizedUtterance: n.NormalizedUtterance})
	}

	if matchID, ok := identify.FindMatch(candidates, utterance, g.threshold); ok {
		n := g.nodes[matchID]
		n.VisitCount++
		if depth < n.DepthMin {
			n.DepthMin = depth
		}
		return n.ID, false
	}

	n := &Node{
		ID:                  uuid.NewString(),
		Utterance:           utterance,
		NormalizedUtterance: normalized,
		DepthMin:            depth,
		VisitCount:          1,
	}
	g.nodes[n.ID] = n
	if g.rootID == "" {
		g.rootID = n.ID
	}
	return n.ID, true
}

// AddEdge records a user-response transition from fromID to toID. It is a
// no-op (observation_count++) if an equivalent edge — same fromID and
// normalize(userResponse) — already exists.
func (g *Graph) AddEdge(fromID, userResponse, toID string) (created bool, err error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if _, ok := g.nodes[fromID]; !ok {
		return false, fmt.Errorf("graph: add edge: %w: %s", ErrNodeNotFound, fromID)
	}
	if _, ok := g.nodes[toID]; !ok {
		return false, fmt.Errorf("graph: add edge: %w: %s", ErrNodeNotFound, toID)
	}

	key := edgeKey{fromID: fromID, normalizedUserResponse: normalize.Text(userResponse)}
	if e, ok := g.edges[key]; ok {
		e.ObservationCount++
		return false, nil
	}

	g.edges[key] = &Edge{
		FromID:           fromID,
		ToID:             toID,
		UserResponse:     userResponse,
		ObservationCount: 1,
	}
	g.outgoing[fromID] = append(g.outgoing[fromID], key)
	return true, nil
}

// MarkTerminal flags id as a conversation endpoint. It is a no-op if id does
// not exist.
func (g *Graph) MarkTerminal(id string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if n, ok := g.nodes[id]; ok {
		n.IsTerminal = true
	}
}

// Root returns the id of the first node created, and whether a root exists
// yet.
func (g *Graph) Root() (id string, ok bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.rootID, g.rootID != ""
}

// OutgoingResponses returns the normalized user responses already recorded
// as outgoing edges from id, for dedup against new frontier candidates.
func (g *Graph) OutgoingResponses(id string) map[string]bool {
	g.mu.RLock()
	defer g.mu.RUnlock()
	seen := make(map[string]bool, len(g.outgoing[id]))
	for _, key := range g.outgoing[id] {
		seen[key.normalizedUserResponse] = true
	}
	return seen
}

// Snapshot is a consistent, immutable, read-only copy of the graph, safe to
// hand to the HTTP API or to prompt construction without holding any lock.
type Snapshot struct {
	Nodes []Node
	Edges []Edge
}

// Snapshot returns a copy-on-read view of the graph's current state.
func (g *Graph) Snapshot() Snapshot {
	g.mu.RLock()
	defer g.mu.RUnlock()

	nodes := make([]Node, 0, len(g.nodes))
	for _, n := range g.nodes {
		nodes = append(nodes, *n)
	}
	sort.Slice(nodes, func(i, j int) bool { return nodes[i].ID < nodes[j].ID })

	edges := make([]Edge, 0, len(g.edges))
	for _, e := range g.edges {
		edges = append(edges, *e)
	}
	sort.Slice(edges, func(i, j int) bool {
		if edges[i].FromID != edges[j].FromID {
			return edges[i].FromID < edges[j].FromID
		}
		return edges[i].ToID < edges[j].ToID
	})

	return Snapshot{Nodes: nodes, Edges: edges}
}

// PathStep is one (agent utterance, user response) hop on the way from the
// graph's root to some node.
type PathStep struct {
	AgentUtterance string
	UserResponse   string
}

// PathTo returns the shortest sequence of steps from the root to id, found
// by a breadth-first walk over recorded edges. Returns ok=false if id is
// unreachable from the root (including when the graph has no root yet).
//
// Multiple observations can reach the same node by different routes once
// NodeIdentifier folds similar utterances together; PathTo picks whichever
// route BFS discovers first, which is also the shortest in edge count.
func (g *Graph) PathTo(id string) (steps []PathStep, ok bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()

	if g.rootID == "" {
		return nil, false
	}
	if id == g.rootID {
		return nil, true
	}

	type frame struct {
		nodeID string
		steps  []PathStep
	}
	visited := map[string]bool{g.rootID: true}
	queue := []frame{{nodeID: g.rootID}}

	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]

		keys := append([]edgeKey(nil), g.outgoing[cur.nodeID]...)
		sort.Slice(keys, func(i, j int) bool { return keys[i].normalizedUserResponse < keys[j].normalizedUserResponse })

		for _, key := range keys {
			e := g.edges[key]
			if visited[e.ToID] {
				continue
			}
			next := append(append([]PathStep{}, cur.steps...), PathStep{
				AgentUtterance: g.nodes[cur.nodeID].Utterance,
				UserResponse:   e.UserResponse,
			})
			if e.ToID == id {
				return next, true
			}
			visited[e.ToID] = true
			queue = append(queue, frame{nodeID: e.ToID, steps: next})
		}
	}

	return nil, false
}

// NodeByID returns a copy of the node with the given id.
func (g *Graph) NodeByID(id string) (Node, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	n, ok := g.nodes[id]
	if !ok {
		return Node{}, false
	}
	return *n, true
}
