package synth

import (
	"context"
	"fmt"
)

// VoiceConfig selects the voice and delivery parameters for synthesis.
type VoiceConfig struct {
	LanguageCode string
	Name         string
	SpeakingRate float64
	Pitch        float64
}

// Request contains the text of one section and the voice to narrate it with.
type Request struct {
	Text  string
	Voice VoiceConfig
}

// Synthesizer turns one section of text into a complete MP3 clip.
type Synthesizer interface {
	Synthesize(ctx context.Context, req Request) ([]byte, error)
}

// SynthesisError is a failure reported by the synthesis capability.
// Overload-class failures are transient and worth retrying; everything
// else (bad input, auth, quota) is fatal for the run.
type SynthesisError struct {
	StatusCode int
	Message    string
}

func (e *SynthesisError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("synthesis failed with status %d", e.StatusCode)
	}
	return fmt.Sprintf("synthesis failed with status %d: %s", e.StatusCode, e.Message)
}

// Transient reports whether the failure is overload-class.
func (e *SynthesisError) Transient() bool {
	return e.StatusCode >= 500 || e.StatusCode == 429
}
