// Package whisper provides a transcriber.Provider backed by a running
// whisper.cpp server (whisper-server, exposing POST /inference).
//
// Unlike the reference streaming stt.Provider's whisper backend — which
// buffers live PCM and flushes on silence — this provider is purely batch:
// it POSTs a complete recording once and returns its full text. whisper.cpp
// has no diarization, so the returned text is split into sentence-like
// segments and speaker labels left empty for the caller to assign by
// alternating turn-taking.
package whisper

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"
	"time"

	"github.com/MrWong99/ivrwalker/pkg/provider/transcriber"
)

// Provider implements transcriber.Provider backed by a whisper.cpp HTTP
// server.
type Provider struct {
	serverURL  string
	language   string
	model      string
	httpClient *http.Client
}

// Option is a functional option for configuring a Provider.
type Option func(*Provider)

// WithLanguage sets the BCP-47 language code sent to the server. Defaults to
// "en".
func WithLanguage(lang string) Option {
	return func(p *Provider) { p.language = lang }
}

// WithModel sets the model identifier forwarded to the server. When empty
// the server uses whichever model it was started with.
func WithModel(model string) Option {
	return func(p *Provider) { p.model = model }
}

// WithHTTPClient overrides the default HTTP client (60s timeout), useful for
// tests or for call recordings longer than the default.
func WithHTTPClient(c *http.Client) Option {
	return func(p *Provider) { p.httpClient = c }
}

// New creates a new Provider that connects to the whisper.cpp HTTP server at
// serverURL (e.g., "http://localhost:8080").
func New(serverURL string, opts ...Option) (*Provider, error) {
	if serverURL == "" {
		return nil, errors.New("whisper: serverURL must not be empty")
	}
	p := &Provider{
		serverURL:  serverURL,
		language:   "en",
		httpClient: &http.Client{Timeout: 60 * time.Second},
	}
	for _, o := range opts {
		o(p)
	}
	return p, nil
}

// Transcribe implements transcriber.Provider by POSTing audio to the
// whisper.cpp /inference endpoint as multipart/form-data and splitting the
// resulting text into turns, alternating speaker starting with "agent"
// since whisper.cpp does not diarize.
func (p *Provider) Transcribe(ctx context.Context, audio []byte, format string) ([]transcriber.Turn, error) {
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)

	fw, err := mw.CreateFormFile("file", "recording."+format)
	if err != nil {
		return nil, fmt.Errorf("whisper: create form file: %w", err)
	}
	if _, err := fw.Write(audio); err != nil {
		return nil, fmt.Errorf("whisper: write audio data: %w", err)
	}
	if p.language != "" {
		if err := mw.WriteField("language", p.language); err != nil {
			return nil, fmt.Errorf("whisper: write language field: %w", err)
		}
	}
	if p.model != "" {
		if err := mw.WriteField("model", p.model); err != nil {
			return nil, fmt.Errorf("whisper: write model field: %w", err)
		}
	}
	if err := mw.Close(); err != nil {
		return nil, fmt.Errorf("whisper: close multipart writer: %w", err)
	}

	endpoint := p.serverURL + "/inference"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, &body)
	if err != nil {
		return nil, fmt.Errorf("whisper: create request: %w", err)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("whisper: http request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("whisper: server returned HTTP %d", resp.StatusCode)
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("whisper: read response body: %w", err)
	}

	var result struct {
		Text string `json:"text"`
	}
	if err := json.Unmarshal(data, &result); err != nil {
		return nil, fmt.Errorf("whisper: parse JSON response: %w", err)
	}

	return splitIntoTurns(result.Text), nil
}

// splitIntoTurns breaks raw whisper.cpp output into sentence-like segments
// and alternates speaker labels starting with "agent", the convention the
// exploration engine falls back to whenever diarization is unavailable.
func splitIntoTurns(text string) []transcriber.Turn {
	sentences := splitSentences(text)
	turns := make([]transcriber.Turn, 0, len(sentences))
	for i, s := range sentences {
		speaker := "agent"
		if i%2 == 1 {
			speaker = "user"
		}
		turns = append(turns, transcriber.Turn{Speaker: speaker, Text: s})
	}
	return turns
}

// splitSentences splits on sentence-ending punctuation, trimming whitespace
// and dropping empty fragments.
func splitSentences(text string) []string {
	raw := strings.FieldsFunc(text, func(r rune) bool {
		return r == '.' || r == '?' || r == '!'
	})
	out := make([]string, 0, len(raw))
	for _, s := range raw {
		trimmed := strings.TrimSpace(s)
		if trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

var _ transcriber.Provider = (*Provider)(nil)
