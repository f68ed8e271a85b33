package synth

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
)

type googleSynth struct {
	endpoint string
	apiKey   string
	client   *http.Client
}

// NewGoogleSynth talks to the Cloud Text-to-Speech REST API with an API key.
func NewGoogleSynth(endpoint, apiKey string) Synthesizer {
	return &googleSynth{
		endpoint: strings.TrimRight(endpoint, "/"),
		apiKey:   apiKey,
		client:   http.DefaultClient,
	}
}

type googleInput struct {
	Text string `json:"text"`
}

type googleVoice struct {
	LanguageCode string `json:"languageCode"`
	Name         string `json:"name,omitempty"`
	SSMLGender   string `json:"ssmlGender,omitempty"`
}

type googleAudioConfig struct {
	AudioEncoding string  `json:"audioEncoding"`
	SpeakingRate  float64 `json:"speakingRate,omitempty"`
	Pitch         float64 `json:"pitch,omitempty"`
	VolumeGainDB  float64 `json:"volumeGainDb,omitempty"`
}

type googleRequest struct {
	Input       googleInput       `json:"input"`
	Voice       googleVoice       `json:"voice"`
	AudioConfig googleAudioConfig `json:"audioConfig"`
}

type googleResponse struct {
	AudioContent string `json:"audioContent"`
}

func (g *googleSynth) Synthesize(ctx context.Context, req Request) ([]byte, error) {
	payload := googleRequest{
		Input: googleInput{Text: req.Text},
		Voice: googleVoice{
			LanguageCode: req.Voice.LanguageCode,
			Name:         req.Voice.Name,
			SSMLGender:   "NEUTRAL",
		},
		AudioConfig: googleAudioConfig{
			AudioEncoding: "MP3",
			SpeakingRate:  req.Voice.SpeakingRate,
			Pitch:         req.Voice.Pitch,
		},
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}

	endpoint := fmt.Sprintf("%s/v1/text:synthesize?key=%s", g.endpoint, url.QueryEscape(g.apiKey))
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := g.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("call synthesis api: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return nil, &SynthesisError{StatusCode: resp.StatusCode, Message: strings.TrimSpace(string(msg))}
	}

	var decoded googleResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return nil, fmt.Errorf("decode synthesis response: %w", err)
	}
	if decoded.AudioContent == "" {
		return nil, &SynthesisError{StatusCode: resp.StatusCode, Message: "response missing audio content"}
	}
	audio, err := base64.StdEncoding.DecodeString(decoded.AudioContent)
	if err != nil {
		return nil, fmt.Errorf("decode audio content: %w", err)
	}
	return audio, nil
}
