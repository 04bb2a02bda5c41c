// Package httpapi implements the engine's external HTTP surface: the
// inbound call-complete webhook and the polling graph/stats read API
// consumed by the frontend.
package httpapi

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/MrWong99/ivrwalker/internal/explore/correlator"
	"github.com/MrWong99/ivrwalker/internal/explore/graph"
	"github.com/MrWong99/ivrwalker/internal/explore/stats"
)

// Handler serves the webhook and graph/stats read endpoints.
type Handler struct {
	correlator *correlator.Correlator
	graph      *graph.Graph
	stats      *stats.Tracker
}

// New creates a Handler backed by the given correlator, graph, and stats
// tracker.
func New(c *correlator.Correlator, g *graph.Graph, st *stats.Tracker) *Handler {
	return &Handler{correlator: c, graph: g, stats: st}
}

// Register adds this Handler's routes to mux.
func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("POST /webhook/call-complete", h.callComplete)
	mux.HandleFunc("GET /graph", h.getGraph)
	mux.HandleFunc("GET /stats", h.getStats)
}

// webhookPayload mirrors the inbound call-completed event body.
type webhookPayload struct {
	CallID       string  `json:"call_id"`
	Status       string  `json:"status"`
	RecordingURL string  `json:"recording_url,omitempty"`
	DurationS    float64 `json:"duration_s,omitempty"`
	Error        string  `json:"error,omitempty"`
}

// callComplete handles POST /webhook/call-complete. The body is decoded and
// forwarded to the correlator verbatim; idempotency by call_id is the
// correlator's responsibility (see [correlator.Correlator.Signal] for how
// duplicates are handled).
func (h *Handler) callComplete(w http.ResponseWriter, r *http.Request) {
	var p webhookPayload
	if err := json.NewDecoder(r.Body).Decode(&p); err != nil {
		http.Error(w, "malformed request body", http.StatusBadRequest)
		return
	}
	if p.CallID == "" {
		http.Error(w, "call_id is required", http.StatusBadRequest)
		return
	}
	switch p.Status {
	case "completed", "failed", "no_answer":
	default:
		http.Error(w, "status must be one of: completed, failed, no_answer", http.StatusBadRequest)
		return
	}

	h.correlator.Signal(correlator.Event{
		CallID:       p.CallID,
		Status:       p.Status,
		RecordingURL: p.RecordingURL,
		DurationS:    p.DurationS,
		Error:        p.Error,
	})

	slog.Debug("httpapi: webhook delivered", "call_id", p.CallID, "status", p.Status)
	w.WriteHeader(http.StatusOK)
}

// graphNode is the wire shape of one ConversationNode.
type graphNode struct {
	ID         string `json:"id"`
	Utterance  string `json:"utterance"`
	IsTerminal bool   `json:"is_terminal"`
	DepthMin   int    `json:"depth_min"`
	VisitCount int    `json:"visit_count"`
}

// graphEdge is the wire shape of one ConversationEdge.
type graphEdge struct {
	From             string `json:"from"`
	To               string `json:"to"`
	UserResponse     string `json:"user_response"`
	ObservationCount int    `json:"observation_count"`
}

type graphResponse struct {
	Nodes []graphNode `json:"nodes"`
	Edges []graphEdge `json:"edges"`
}

// getGraph handles GET /graph, returning a consistent snapshot of the
// discovered conversation graph.
func (h *Handler) getGraph(w http.ResponseWriter, r *http.Request) {
	snap := h.graph.Snapshot()

	resp := graphResponse{
		Nodes: make([]graphNode, 0, len(snap.Nodes)),
		Edges: make([]graphEdge, 0, len(snap.Edges)),
	}
	for _, n := range snap.Nodes {
		resp.Nodes = append(resp.Nodes, graphNode{
			ID:         n.ID,
			Utterance:  n.Utterance,
			IsTerminal: n.IsTerminal,
			DepthMin:   n.DepthMin,
			VisitCount: n.VisitCount,
		})
	}
	for _, e := range snap.Edges {
		resp.Edges = append(resp.Edges, graphEdge{
			From:             e.FromID,
			To:               e.ToID,
			UserResponse:     e.UserResponse,
			ObservationCount: e.ObservationCount,
		})
	}

	writeJSON(w, resp)
}

// statsResponse is the wire shape of ProgressTracker counters.
type statsResponse struct {
	CallsAttempted  int                          `json:"calls_attempted"`
	CallsSucceeded  int                          `json:"calls_succeeded"`
	CallsFailed     int                          `json:"calls_failed"`
	FailuresByKind  map[stats.FailureKind]int    `json:"failures_by_kind"`
	NodesAdded      int                          `json:"nodes_added"`
	EdgesAdded      int                          `json:"edges_added"`
	TerminalsMarked int                          `json:"terminals_marked"`
	LLMParseRetries int                          `json:"llm_parse_retries"`
}

// getStats handles GET /stats.
func (h *Handler) getStats(w http.ResponseWriter, r *http.Request) {
	snap := h.stats.Snapshot()
	writeJSON(w, statsResponse{
		CallsAttempted:  snap.CallsAttempted,
		CallsSucceeded:  snap.CallsSucceeded,
		CallsFailed:     snap.CallsFailed,
		FailuresByKind:  snap.FailuresByKind,
		NodesAdded:      snap.NodesAdded,
		EdgesAdded:      snap.EdgesAdded,
		TerminalsMarked: snap.TerminalsMarked,
		LLMParseRetries: snap.LLMParseRetries,
	})
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Warn("httpapi: failed to encode response", "err", err)
	}
}
