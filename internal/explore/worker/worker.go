// Package worker implements one exploration step: place a call, await its
// webhook completion, transcribe the recording, walk the resulting turns
// against the conversation graph, and ask the language model for what the
// caller might say next.
//
// The per-task shape — acquire work, invoke an external backend, await its
// result, and fold the outcome into shared state — mirrors a single NPC
// turn in a conversational agent loop, generalized here from one in-process
// model call to a call-place/webhook-wait/transcribe/expand pipeline.
package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/MrWong99/ivrwalker/internal/explore/correlator"
	"github.com/MrWong99/ivrwalker/internal/explore/frontier"
	"github.com/MrWong99/ivrwalker/internal/explore/graph"
	"github.com/MrWong99/ivrwalker/internal/explore/llmparse"
	"github.com/MrWong99/ivrwalker/internal/explore/llmprompt"
	"github.com/MrWong99/ivrwalker/internal/explore/normalize"
	"github.com/MrWong99/ivrwalker/internal/explore/stats"
	"github.com/MrWong99/ivrwalker/pkg/audio"
	"github.com/MrWong99/ivrwalker/pkg/provider/llm"
	"github.com/MrWong99/ivrwalker/pkg/provider/transcriber"
	"github.com/MrWong99/ivrwalker/pkg/provider/voice"
)

// defaultCallTimeout is how long a worker waits for the webhook to report
// completion before marking the task a timeout failure.
const defaultCallTimeout = 5 * time.Minute

// defaultLLMRetryMax is how many stricter reprompts are attempted after a
// parse failure before giving up on expansion for this call.
const defaultLLMRetryMax = 2

// Downloader fetches a completed call recording's raw bytes and reports the
// format (by file extension or Content-Type, e.g. "wav", "mp3", "mulaw")
// that [transcriber.Provider.Transcribe] should be told it is.
type Downloader func(ctx context.Context, recordingURL string) (data []byte, format string, err error)

// Dependencies are the shared, concurrency-safe collaborators a Worker
// needs. Graph, Correlator, Stats, Voice, Transcriber, LLM and Download must
// be set. A nil LLMDedup disables deduplication, a zero BreadthCap disables
// the breadth cap, zero CallTimeout and LLMRetryMax are replaced by defaults
// in [New], and the remaining fields are used as given.
type Dependencies struct {
	Graph      *graph.Graph
	Correlator *correlator.Correlator
	Stats      *stats.Tracker

	Voice       voice.Provider
	Transcriber transcriber.Provider
	LLM         llm.Provider
	Download    Downloader

	// LLMDedup collapses concurrent expansion requests for the same node
	// id onto a single LLM call. Shared across every Worker dispatched by
	// the same pool; nil disables deduplication.
	LLMDedup *singleflight.Group

	PhoneNumber string
	Scenario    string

	CallTimeout time.Duration
	LLMRetryMax int
	BreadthCap  int

	// AllowMultipleGreetings controls root matching for the first agent
	// turn of a call: when false (default), the first turn is forced to
	// associate with the already-established root rather than matched
	// against it by similarity, so a greeting read with unusual emphasis
	// never spawns a second disconnected root.
	AllowMultipleGreetings bool

	// Temperature and Seed are forwarded to the LLM for reproducible
	// exploration runs.
	Temperature float64
	Seed        int64
}

// Outcome classifies what happened to a dispatched task.
type Outcome string

const (
	OutcomeSucceeded Outcome = "succeeded"
	OutcomeFailed    Outcome = "failed"
)

// Result is what a Worker reports back to the pool after one task.
type Result struct {
	Outcome Outcome

	// Failure and Retryable are set when Outcome is OutcomeFailed.
	Failure   stats.FailureKind
	Retryable bool

	// NewEntries are frontier entries to enqueue after a successful call;
	// empty when the final node was classified terminal.
	NewEntries []frontier.Entry
}

// Worker runs ConversationWorker tasks against a shared set of Dependencies.
// The zero value is not usable; construct with [New].
type Worker struct {
	deps Dependencies
}

// New creates a Worker. Dependencies' CallTimeout and LLMRetryMax default to
// 5 minutes and 2 respectively when zero.
func New(deps Dependencies) *Worker {
	if deps.CallTimeout <= 0 {
		deps.CallTimeout = defaultCallTimeout
	}
	if deps.LLMRetryMax <= 0 {
		deps.LLMRetryMax = defaultLLMRetryMax
	}
	return &Worker{deps: deps}
}

// Run executes one exploration task to completion or failure. It never
// panics on backend errors; all failures are reported through Result so the
// pool can decide whether to re-enqueue.
func (w *Worker) Run(ctx context.Context, task frontier.Entry) Result {
	d := &w.deps
	d.Stats.RecordCallAttempt()

	path, hasPath := d.Graph.PathTo(task.NodeID)
	if task.NodeID != "" && !hasPath {
		// The node was deleted or is from a different graph instance; drop
		// rather than dial against a script we can't reconstruct.
		d.Stats.RecordCallFailure(stats.FailureDialFailed)
		return Result{Outcome: OutcomeFailed, Failure: stats.FailureDialFailed, Retryable: false}
	}
	script := buildScript(path, task.CandidateResponse)

	callID, err := d.Voice.PlaceCall(ctx, script, d.PhoneNumber)
	if err != nil {
		slog.Warn("worker: place call failed", "node_id", task.NodeID, "err", err)
		d.Stats.RecordCallFailure(stats.FailureDialFailed)
		return Result{Outcome: OutcomeFailed, Failure: stats.FailureDialFailed, Retryable: true}
	}

	ev, failKind, err := w.awaitCompletion(ctx, callID)
	if err != nil {
		d.Stats.RecordCallFailure(failKind)
		return Result{Outcome: OutcomeFailed, Failure: failKind, Retryable: true}
	}

	if ev.Status != "completed" || ev.RecordingURL == "" {
		slog.Info("worker: call did not complete with a recording", "call_id", callID, "status", ev.Status)
		d.Stats.RecordCallFailure(stats.FailureRecordingUnavailable)
		return Result{Outcome: OutcomeFailed, Failure: stats.FailureRecordingUnavailable, Retryable: ev.Status == "no_answer"}
	}

	turns, err := w.transcribe(ctx, ev.RecordingURL)
	if err != nil {
		slog.Warn("worker: transcription failed", "call_id", callID, "err", err)
		d.Stats.RecordCallFailure(stats.FailureTranscriptionFailed)
		return Result{Outcome: OutcomeFailed, Failure: stats.FailureTranscriptionFailed, Retryable: true}
	}

	scriptLines := script
	agentTexts := splitRoles(turns, scriptLines)
	if len(agentTexts) == 0 {
		d.Stats.RecordCallFailure(stats.FailureTranscriptionFailed)
		return Result{Outcome: OutcomeFailed, Failure: stats.FailureTranscriptionFailed, Retryable: true}
	}

	finalNode, newNodes, newEdges := w.integrate(agentTexts, scriptLines)
	d.Stats.RecordGraphGrowth(newNodes, newEdges)

	entries, isTerminal, err := w.expand(ctx, finalNode)
	if err != nil {
		slog.Warn("worker: LLM expansion failed", "node_id", finalNode, "err", err)
		d.Stats.RecordCallFailure(stats.FailureLLMParseFailed)
		return Result{Outcome: OutcomeFailed, Failure: stats.FailureLLMParseFailed, Retryable: true}
	}

	if isTerminal {
		d.Graph.MarkTerminal(finalNode)
		d.Stats.RecordTerminal()
		entries = nil
	}

	d.Stats.RecordCallSuccess()
	return Result{Outcome: OutcomeSucceeded, NewEntries: entries}
}

// buildScript walks path's recorded user responses in order and appends
// candidateResponse as the final scripted line, skipping it when empty (the
// synthetic seed task that establishes root has no candidate yet).
func buildScript(path []graph.PathStep, candidateResponse string) []string {
	script := make([]string, 0, len(path)+1)
	for _, step := range path {
		script = append(script, step.UserResponse)
	}
	if candidateResponse != "" {
		script = append(script, candidateResponse)
	}
	return script
}

// awaitCompletion registers callID with the correlator and blocks until a
// webhook event arrives, the call timeout elapses, or ctx is cancelled.
func (w *Worker) awaitCompletion(ctx context.Context, callID string) (correlator.Event, stats.FailureKind, error) {
	d := &w.deps
	immediate, waitCh := d.Correlator.Register(callID)
	if immediate != nil {
		return *immediate, "", nil
	}

	select {
	case ev := <-waitCh:
		return ev, "", nil
	case <-time.After(d.CallTimeout):
		d.Correlator.Forget(callID)
		return correlator.Event{}, stats.FailureWebhookTimeout, fmt.Errorf("worker: webhook wait timed out after %s", d.CallTimeout)
	case <-ctx.Done():
		d.Correlator.Forget(callID)
		return correlator.Event{}, stats.FailureWebhookTimeout, ctx.Err()
	}
}

// transcribe downloads recordingURL, normalizing a bare mu-law telephony
// stream into a WAV container first since the transcriber backends only
// accept containerized formats, then hands it to the transcriber.
func (w *Worker) transcribe(ctx context.Context, recordingURL string) ([]transcriber.Turn, error) {
	d := &w.deps
	data, format, err := d.Download(ctx, recordingURL)
	if err != nil {
		return nil, fmt.Errorf("worker: download recording: %w", err)
	}

	if format == "mulaw" || format == "pcmu" {
		pcm, err := audio.RecordingToPCM16(data, format, 16000)
		if err != nil {
			return nil, fmt.Errorf("worker: normalize mu-law recording: %w", err)
		}
		data = audio.EncodeWAV(pcm, audio.Format{SampleRate: 16000, Channels: 1})
		format = "wav"
	}

	turns, err := d.Transcriber.Transcribe(ctx, data, format)
	if err != nil {
		return nil, fmt.Errorf("worker: transcribe: %w", err)
	}
	return turns, nil
}

// splitRoles extracts agent-spoken turn texts in order. When turns carry
// diarization labels, agent-labeled turns are used directly and user-labeled
// turns are cross-checked (logged, not enforced) against the scripted lines
// the worker itself injected. Without labels, roles alternate starting with
// "agent".
func splitRoles(turns []transcriber.Turn, expectedUser []string) []string {
	labeled := false
	for _, t := range turns {
		if t.Speaker != "" {
			labeled = true
			break
		}
	}

	var agentTexts []string
	if labeled {
		userIdx := 0
		for _, t := range turns {
			switch t.Speaker {
			case "agent":
				agentTexts = append(agentTexts, t.Text)
			case "user":
				if userIdx < len(expectedUser) && !sameUtterance(t.Text, expectedUser[userIdx]) {
					slog.Warn("worker: transcribed user turn diverges from scripted line",
						"expected", expectedUser[userIdx], "transcribed", t.Text)
				}
				userIdx++
			}
		}
		return agentTexts
	}

	for i, t := range turns {
		if i%2 == 0 {
			agentTexts = append(agentTexts, t.Text)
		}
	}
	return agentTexts
}

// sameUtterance does a loose case-insensitive comparison; exact equality is
// not expected once a TTS/ASR round trip is involved, so this is advisory
// only.
func sameUtterance(a, b string) bool {
	return len(a) > 0 && len(b) > 0 && strings.EqualFold(a[:1], b[:1])
}

// integrate walks agentTexts against the graph, zipping each transition with
// the scripted user line that produced it, and returns the final node id
// along with how many nodes and edges were newly created.
func (w *Worker) integrate(agentTexts []string, scriptLines []string) (finalNode string, newNodes, newEdges int) {
	d := &w.deps

	rootID, hasRoot := d.Graph.Root()

	var u string
	if hasRoot && !d.AllowMultipleGreetings {
		u = rootID
	} else {
		var created bool
		u, created = d.Graph.GetOrCreateNode(agentTexts[0], 0)
		if created {
			newNodes++
		}
	}

	for i := 1; i < len(agentTexts); i++ {
		prevUser := ""
		if i-1 < len(scriptLines) {
			prevUser = scriptLines[i-1]
		}

		v, created := d.Graph.GetOrCreateNode(agentTexts[i], i)
		if created {
			newNodes++
		}

		edgeCreated, err := d.Graph.AddEdge(u, prevUser, v)
		if err != nil {
			slog.Warn("worker: add edge failed", "from", u, "to", v, "err", err)
		} else if edgeCreated {
			newEdges++
		}

		u = v
	}

	return u, newNodes, newEdges
}

// expand asks the language model for candidate next caller responses at
// node, retrying with a stricter reprompt up to LLMRetryMax times on parse
// failure. It returns frontier entries for candidates not already explored
// from node, deduped against existing outgoing edges.
func (w *Worker) expand(ctx context.Context, node string) ([]frontier.Entry, bool, error) {
	d := &w.deps

	n, ok := d.Graph.NodeByID(node)
	if !ok {
		return nil, false, fmt.Errorf("worker: node %q vanished before expansion", node)
	}

	existing := d.Graph.OutgoingResponses(node)
	if d.BreadthCap > 0 && len(existing) >= d.BreadthCap {
		slog.Debug("worker: node at breadth cap, skipping expansion", "node_id", node, "breadth_cap", d.BreadthCap)
		return nil, false, nil
	}

	path, _ := d.Graph.PathTo(node)
	promptTurns := make([]llmprompt.Turn, 0, len(path))
	for _, step := range path {
		promptTurns = append(promptTurns, llmprompt.Turn{AgentUtterance: step.AgentUtterance, UserResponse: step.UserResponse})
	}

	var lastErr error
	for attempt := 0; attempt <= d.LLMRetryMax; attempt++ {
		strict := attempt > 0
		if strict {
			d.Stats.RecordLLMParseRetry()
		}

		prompt := llmprompt.Build(d.Scenario, promptTurns, n.Utterance, strict)
		complete := func() (any, error) {
			return d.LLM.Complete(ctx, prompt, llm.CompletionOptions{Temperature: d.Temperature, Seed: d.Seed})
		}

		var raw any
		var err error
		if d.LLMDedup != nil {
			// Key by node and prompt so a stricter retry after a parse
			// failure isn't collapsed onto the earlier, looser attempt.
			raw, err, _ = d.LLMDedup.Do(node+"\x00"+prompt, complete)
		} else {
			raw, err = complete()
		}
		if err != nil {
			lastErr = fmt.Errorf("llm complete: %w", err)
			continue
		}
		resp, _ := raw.(*llm.CompletionResponse)
		if resp == nil {
			lastErr = errors.New("llm complete: nil response")
			continue
		}

		result, ok := llmparse.Parse(resp.Content)
		if !ok {
			lastErr = errors.New("llm response did not parse")
			continue
		}

		entries := make([]frontier.Entry, 0, len(result.Candidates))
		for _, c := range result.Candidates {
			if existing[normalize.Text(c)] {
				continue
			}
			if d.BreadthCap > 0 && len(existing)+len(entries) >= d.BreadthCap {
				break
			}
			entries = append(entries, frontier.Entry{
				NodeID:            node,
				CandidateResponse: c,
				Depth:             n.DepthMin + 1,
			})
		}
		return entries, result.IsTerminal, nil
	}

	return nil, false, lastErr
}
