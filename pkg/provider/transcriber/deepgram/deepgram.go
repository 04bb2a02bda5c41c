// Package deepgram provides a transcriber.Provider backed by Deepgram's
// prerecorded (batch) REST API.
//
// This is a fresh implementation rather than an adaptation of the reference
// streaming stt.Provider's Deepgram backend (pkg/provider/stt/deepgram),
// which dials a live WebSocket session — unneeded machinery for a provider
// that always transcribes a complete, already-downloaded recording, and
// would otherwise pull in a websocket dependency purely for its connection
// setup code. The option-functional-config and sentinel-error shape is kept
// from that file; only the transport changes, from WebSocket to a single
// POST.
package deepgram

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/MrWong99/ivrwalker/pkg/provider/transcriber"
)

const (
	prerecordedEndpoint = "https://api.deepgram.com/v1/listen"
	defaultModel        = "nova-3"
	defaultLanguage     = "en"
)

// Provider implements transcriber.Provider backed by Deepgram's prerecorded
// REST endpoint.
type Provider struct {
	apiKey     string
	model      string
	language   string
	httpClient *http.Client
}

// Option is a functional option for configuring a Provider.
type Option func(*Provider)

// WithModel sets the Deepgram model to use (e.g., "nova-3", "base").
func WithModel(model string) Option {
	return func(p *Provider) { p.model = model }
}

// WithLanguage sets the BCP-47 language code for recognition.
func WithLanguage(language string) Option {
	return func(p *Provider) { p.language = language }
}

// WithHTTPClient overrides the default HTTP client (60s timeout).
func WithHTTPClient(c *http.Client) Option {
	return func(p *Provider) { p.httpClient = c }
}

// New creates a new Provider. apiKey must be non-empty.
func New(apiKey string, opts ...Option) (*Provider, error) {
	if apiKey == "" {
		return nil, errors.New("deepgram: apiKey must not be empty")
	}
	p := &Provider{
		apiKey:     apiKey,
		model:      defaultModel,
		language:   defaultLanguage,
		httpClient: &http.Client{Timeout: 60 * time.Second},
	}
	for _, o := range opts {
		o(p)
	}
	return p, nil
}

// mimeTypes maps recording formats to the Content-Type Deepgram expects.
var mimeTypes = map[string]string{
	"wav":  "audio/wav",
	"mp3":  "audio/mpeg",
	"ogg":  "audio/ogg",
	"flac": "audio/flac",
}

// Transcribe implements transcriber.Provider by POSTing audio directly to
// Deepgram's /v1/listen endpoint with diarization and utterance splitting
// requested, so Speaker carries Deepgram's numeric diarization label when
// available.
func (p *Provider) Transcribe(ctx context.Context, audio []byte, format string) ([]transcriber.Turn, error) {
	contentType, ok := mimeTypes[format]
	if !ok {
		return nil, fmt.Errorf("deepgram: unsupported audio format %q", format)
	}

	endpoint, err := p.buildURL()
	if err != nil {
		return nil, fmt.Errorf("deepgram: build URL: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(audio))
	if err != nil {
		return nil, fmt.Errorf("deepgram: create request: %w", err)
	}
	req.Header.Set("Authorization", "Token "+p.apiKey)
	req.Header.Set("Content-Type", contentType)

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("deepgram: http request: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("deepgram: read response body: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("deepgram: server returned HTTP %d: %s", resp.StatusCode, string(data))
	}

	return parsePrerecordedResponse(data)
}

func (p *Provider) buildURL() (string, error) {
	u, err := url.Parse(prerecordedEndpoint)
	if err != nil {
		return "", err
	}
	q := u.Query()
	q.Set("model", p.model)
	q.Set("language", p.language)
	q.Set("diarize", "true")
	q.Set("utterances", "true")
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// prerecordedResponse models the subset of Deepgram's prerecorded response
// shape this provider needs.
type prerecordedResponse struct {
	Results struct {
		Utterances []struct {
			Speaker    int     `json:"speaker"`
			Start      float64 `json:"start"`
			End        float64 `json:"end"`
			Transcript string  `json:"transcript"`
		} `json:"utterances"`
	} `json:"results"`
}

func parsePrerecordedResponse(data []byte) ([]transcriber.Turn, error) {
	var resp prerecordedResponse
	if err := json.Unmarshal(data, &resp); err != nil {
		return nil, fmt.Errorf("deepgram: parse JSON response: %w", err)
	}

	turns := make([]transcriber.Turn, 0, len(resp.Results.Utterances))
	for _, u := range resp.Results.Utterances {
		turns = append(turns, transcriber.Turn{
			Speaker: strconv.Itoa(u.Speaker),
			Text:    u.Transcript,
			TStart:  u.Start,
			TEnd:    u.End,
		})
	}
	return turns, nil
}

var _ transcriber.Provider = (*Provider)(nil)
