package synth

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"os/exec"
	"sync"

	"github.com/mattn/go-shellwords"
)

type execSynth struct {
	cmd []string
	mu  sync.Mutex
}

type execRequest struct {
	Text         string  `json:"text"`
	LanguageCode string  `json:"language_code"`
	Voice        string  `json:"voice"`
	SpeakingRate float64 `json:"speaking_rate"`
	Pitch        float64 `json:"pitch"`
}

type execResponse struct {
	MP3Base64 string `json:"mp3_base64"`
}

// NewExecSynth shells out to a command that reads a JSON request on stdin
// and writes a JSON response with base64 MP3 bytes on stdout.
func NewExecSynth(command string) (Synthesizer, error) {
	parser := shellwords.NewParser()
	args, err := parser.Parse(command)
	if err != nil {
		return nil, fmt.Errorf("parse synth command: %w", err)
	}
	if len(args) == 0 {
		return nil, fmt.Errorf("synth command empty")
	}
	return &execSynth{cmd: args}, nil
}

func (e *execSynth) Synthesize(ctx context.Context, req Request) ([]byte, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	payload, err := json.Marshal(execRequest{
		Text:         req.Text,
		LanguageCode: req.Voice.LanguageCode,
		Voice:        req.Voice.Name,
		SpeakingRate: req.Voice.SpeakingRate,
		Pitch:        req.Voice.Pitch,
	})
	if err != nil {
		return nil, err
	}

	base := e.cmd[0]
	args := append([]string{}, e.cmd[1:]...)
	cmd := exec.CommandContext(ctx, base, args...)
	cmd.Stdin = bytes.NewReader(payload)

	var stdout bytes.Buffer
	cmd.Stdout = &stdout
	if err := cmd.Run(); err != nil {
		return nil, fmt.Errorf("run synth command: %w", err)
	}

	var resp execResponse
	if err := json.Unmarshal(bytes.TrimSpace(stdout.Bytes()), &resp); err != nil {
		return nil, fmt.Errorf("decode synth command output: %w", err)
	}
	audio, err := base64.StdEncoding.DecodeString(resp.MP3Base64)
	if err != nil {
		return nil, fmt.Errorf("decode synth command audio: %w", err)
	}
	return audio, nil
}
