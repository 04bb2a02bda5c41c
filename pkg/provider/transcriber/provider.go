// Package transcriber defines the Provider interface for batch speech-to-text
// backends: the exploration engine downloads a completed call recording in
// full and transcribes it in one request, unlike the reference system's
// streaming stt.Provider contract which transcribes a live session
// incrementally.
package transcriber

import "context"

// Turn is one speech segment recovered from a recording.
type Turn struct {
	// Speaker identifies who spoke this turn when the backend supports
	// diarization ("agent", "user", or a backend-assigned numeric label
	// such as "0"/"1"). Empty when diarization is unavailable; callers must
	// then fall back to alternating roles starting with "agent" (per the
	// conversation's turn-taking structure — the agent always speaks
	// first).
	Speaker string

	Text string

	// TStart and TEnd are offsets into the recording, in seconds.
	TStart float64
	TEnd   float64
}

// Provider is the abstraction over any batch transcription backend.
type Provider interface {
	// Transcribe decodes audio (encoded as format, e.g. "wav" or "mp3") and
	// returns its turns in chronological order.
	Transcribe(ctx context.Context, audio []byte, format string) ([]Turn, error)
}
