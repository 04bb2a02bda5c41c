// Package voice defines the Provider interface for the outbound telephony
// client: placing a call is asynchronous, with completion reported later via
// the inbound webhook rather than returned from this call.
package voice

import "context"

// Provider is the abstraction over any outbound voice-call backend.
type Provider interface {
	// PlaceCall dials phoneNumber and instructs the far end to play script
	// as the test persona's scripted lines (e.g. via text-to-speech or a
	// pre-recorded prompt sequence, depending on the backend). It returns a
	// backend-assigned call id used to correlate the eventual webhook
	// completion event; it does not wait for the call to connect or finish.
	PlaceCall(ctx context.Context, script []string, phoneNumber string) (callID string, err error)
}
