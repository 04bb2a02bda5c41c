package config

import (
	"fmt"
	"os"

	"github.com/MrWong99/ivrwalker/pkg/provider/llm"
	"github.com/MrWong99/ivrwalker/pkg/provider/llm/openai"
	"github.com/MrWong99/ivrwalker/pkg/provider/transcriber"
	"github.com/MrWong99/ivrwalker/pkg/provider/transcriber/deepgram"
	"github.com/MrWong99/ivrwalker/pkg/provider/transcriber/whisper"
	"github.com/MrWong99/ivrwalker/pkg/provider/voice"
	"github.com/MrWong99/ivrwalker/pkg/provider/voice/twilio"
)

// apiKey reads entry's credential from its configured environment variable.
// Returns an error if APIKeyEnv is set but the variable is empty or unset —
// a fatal configuration error per the engine's error taxonomy.
func apiKey(entry ProviderEntry) (string, error) {
	if entry.APIKeyEnv == "" {
		return "", nil
	}
	v := os.Getenv(entry.APIKeyEnv)
	if v == "" {
		return "", fmt.Errorf("environment variable %q (required by provider %q) is empty or unset", entry.APIKeyEnv, entry.Name)
	}
	return v, nil
}

// stringOption reads a string value out of entry.Options, returning "" if
// absent or not a string.
func stringOption(entry ProviderEntry, key string) string {
	v, ok := entry.Options[key]
	if !ok {
		return ""
	}
	s, _ := v.(string)
	return s
}

// NewDefaultRegistry builds a [Registry] with factories for every provider
// implementation this engine ships: twilio (voice), whisper and deepgram
// (transcriber), openai (llm). Call sites needing a custom or test provider
// can still call RegisterVoice/RegisterTranscriber/RegisterLLM directly on
// the returned Registry to override or extend it.
func NewDefaultRegistry() *Registry {
	r := NewRegistry()

	r.RegisterVoice("twilio", func(entry ProviderEntry) (voice.Provider, error) {
		authToken, err := apiKey(entry)
		if err != nil {
			return nil, err
		}
		accountSID := stringOption(entry, "account_sid")
		fromNumber := stringOption(entry, "from_number")
		var opts []twilio.Option
		if entry.BaseURL != "" {
			opts = append(opts, twilio.WithBaseURL(entry.BaseURL))
		}
		if cb := stringOption(entry, "status_callback"); cb != "" {
			opts = append(opts, twilio.WithStatusCallback(cb))
		}
		return twilio.New(accountSID, authToken, fromNumber, opts...)
	})

	r.RegisterTranscriber("whisper", func(entry ProviderEntry) (transcriber.Provider, error) {
		serverURL := entry.BaseURL
		var opts []whisper.Option
		if entry.Model != "" {
			opts = append(opts, whisper.WithModel(entry.Model))
		}
		if lang := stringOption(entry, "language"); lang != "" {
			opts = append(opts, whisper.WithLanguage(lang))
		}
		return whisper.New(serverURL, opts...)
	})

	r.RegisterTranscriber("deepgram", func(entry ProviderEntry) (transcriber.Provider, error) {
		key, err := apiKey(entry)
		if err != nil {
			return nil, err
		}
		var opts []deepgram.Option
		if entry.Model != "" {
			opts = append(opts, deepgram.WithModel(entry.Model))
		}
		if lang := stringOption(entry, "language"); lang != "" {
			opts = append(opts, deepgram.WithLanguage(lang))
		}
		return deepgram.New(key, opts...)
	})

	r.RegisterLLM("openai", func(entry ProviderEntry) (llm.Provider, error) {
		key, err := apiKey(entry)
		if err != nil {
			return nil, err
		}
		var opts []openai.Option
		if entry.BaseURL != "" {
			opts = append(opts, openai.WithBaseURL(entry.BaseURL))
		}
		if org := stringOption(entry, "organization"); org != "" {
			opts = append(opts, openai.WithOrganization(org))
		}
		return openai.New(key, entry.Model, opts...)
	})

	return r
}
