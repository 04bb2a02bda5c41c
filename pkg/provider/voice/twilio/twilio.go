// Package twilio provides a voice.Provider backed by the Twilio Programmable
// Voice REST API.
//
// Twilio's Calls endpoint is itself asynchronous — placing a call returns a
// call SID immediately and call progress is reported later via the
// StatusCallback webhook — which matches voice.Provider's contract exactly.
// The script is rendered as TwiML <Say> verbs so the far end plays the test
// persona's lines as synthesized speech prompts.
package twilio

import (
	"context"
	"encoding/json"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/MrWong99/ivrwalker/pkg/provider/voice"
)

const defaultBaseURL = "https://api.twilio.com/2010-04-01"

// Provider implements voice.Provider using the Twilio REST API.
type Provider struct {
	baseURL        string
	accountSID     string
	authToken      string
	fromNumber     string
	statusCallback string
	httpClient     *http.Client
}

// Option is a functional option for configuring a Provider.
type Option func(*Provider)

// WithStatusCallback sets the URL Twilio POSTs call-completion events to
// (the exploration engine's /webhook/call-complete endpoint).
func WithStatusCallback(url string) Option {
	return func(p *Provider) { p.statusCallback = url }
}

// WithHTTPClient overrides the default HTTP client (15s timeout).
func WithHTTPClient(c *http.Client) Option {
	return func(p *Provider) { p.httpClient = c }
}

// WithBaseURL overrides the default Twilio API base URL, primarily for
// tests that point the provider at a local server.
func WithBaseURL(url string) Option {
	return func(p *Provider) { p.baseURL = url }
}

// New creates a new Provider. accountSID, authToken, and fromNumber must all
// be non-empty.
func New(accountSID, authToken, fromNumber string, opts ...Option) (*Provider, error) {
	if accountSID == "" || authToken == "" {
		return nil, errors.New("twilio: accountSID and authToken must not be empty")
	}
	if fromNumber == "" {
		return nil, errors.New("twilio: fromNumber must not be empty")
	}
	p := &Provider{
		baseURL:    defaultBaseURL,
		accountSID: accountSID,
		authToken:  authToken,
		fromNumber: fromNumber,
		httpClient: &http.Client{Timeout: 15 * time.Second},
	}
	for _, o := range opts {
		o(p)
	}
	return p, nil
}

// PlaceCall implements voice.Provider by POSTing a Calls request with inline
// TwiML rendering script as sequential <Say> prompts.
func (p *Provider) PlaceCall(ctx context.Context, script []string, phoneNumber string) (string, error) {
	if phoneNumber == "" {
		return "", errors.New("twilio: phoneNumber must not be empty")
	}

	twiml, err := renderTwiML(script)
	if err != nil {
		return "", fmt.Errorf("twilio: render TwiML: %w", err)
	}

	form := url.Values{}
	form.Set("To", phoneNumber)
	form.Set("From", p.fromNumber)
	form.Set("Twiml", twiml)
	if p.statusCallback != "" {
		form.Set("StatusCallback", p.statusCallback)
		form.Set("StatusCallbackEvent", "completed")
		form.Set("StatusCallbackMethod", "POST")
	}

	endpoint := fmt.Sprintf("%s/Accounts/%s/Calls.json", p.baseURL, p.accountSID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return "", fmt.Errorf("twilio: create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.SetBasicAuth(p.accountSID, p.authToken)

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("twilio: http request: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("twilio: read response body: %w", err)
	}
	if resp.StatusCode != http.StatusCreated {
		return "", fmt.Errorf("twilio: server returned HTTP %d: %s", resp.StatusCode, string(data))
	}

	var result struct {
		SID string `json:"sid"`
	}
	if err := json.Unmarshal(data, &result); err != nil {
		return "", fmt.Errorf("twilio: parse JSON response: %w", err)
	}
	return result.SID, nil
}

// twimlResponse and twimlSay mirror the subset of TwiML's <Response> schema
// this provider needs.
type twimlResponse struct {
	XMLName xml.Name   `xml:"Response"`
	Say     []twimlSay `xml:"Say"`
}

type twimlSay struct {
	Text string `xml:",chardata"`
}

// renderTwiML encodes script as a <Response> containing one <Say> per line.
func renderTwiML(script []string) (string, error) {
	resp := twimlResponse{}
	for _, line := range script {
		resp.Say = append(resp.Say, twimlSay{Text: line})
	}
	out, err := xml.Marshal(resp)
	if err != nil {
		return "", err
	}
	return xml.Header + string(out), nil
}

var _ voice.Provider = (*Provider)(nil)
