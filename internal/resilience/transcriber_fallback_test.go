package resilience

import (
	"context"
	"errors"
	"testing"

	"github.com/MrWong99/ivrwalker/pkg/provider/transcriber"
	transcribermock "github.com/MrWong99/ivrwalker/pkg/provider/transcriber/mock"
)

func TestTranscriberFallback_Transcribe_PrimarySuccess(t *testing.T) {
	primary := &transcribermock.Provider{
		TurnsResponse: []transcriber.Turn{{Speaker: "agent", Text: "hello"}},
	}
	secondary := &transcribermock.Provider{}

	fb := NewTranscriberFallback(primary, "primary", FallbackConfig{
		CircuitBreaker: CircuitBreakerConfig{MaxFailures: 3},
	})
	fb.AddFallback("secondary", secondary)

	turns, err := fb.Transcribe(context.Background(), []byte("audio"), "wav")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(turns) != 1 || turns[0].Text != "hello" {
		t.Fatalf("unexpected turns: %+v", turns)
	}
	if len(secondary.Calls) != 0 {
		t.Fatalf("secondary called %d times, want 0", len(secondary.Calls))
	}
}

func TestTranscriberFallback_Transcribe_Failover(t *testing.T) {
	primary := &transcribermock.Provider{Err: errors.New("primary down")}
	secondary := &transcribermock.Provider{
		TurnsResponse: []transcriber.Turn{{Speaker: "agent", Text: "from secondary"}},
	}

	fb := NewTranscriberFallback(primary, "primary", FallbackConfig{
		CircuitBreaker: CircuitBreakerConfig{MaxFailures: 3},
	})
	fb.AddFallback("secondary", secondary)

	turns, err := fb.Transcribe(context.Background(), []byte("audio"), "wav")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(turns) != 1 || turns[0].Text != "from secondary" {
		t.Fatalf("unexpected turns: %+v", turns)
	}
}

func TestTranscriberFallback_Transcribe_AllFail(t *testing.T) {
	primary := &transcribermock.Provider{Err: errors.New("primary down")}
	secondary := &transcribermock.Provider{Err: errors.New("secondary down")}

	fb := NewTranscriberFallback(primary, "primary", FallbackConfig{
		CircuitBreaker: CircuitBreakerConfig{MaxFailures: 3},
	})
	fb.AddFallback("secondary", secondary)

	_, err := fb.Transcribe(context.Background(), []byte("audio"), "wav")
	if !errors.Is(err, ErrAllFailed) {
		t.Fatalf("err = %v, want ErrAllFailed", err)
	}
}
