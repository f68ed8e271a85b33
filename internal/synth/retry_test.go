package synth

import (
	"context"
	"errors"
	"testing"
	"time"
)

type scriptedSynth struct {
	errs  []error
	calls int
	audio []byte
}

func (s *scriptedSynth) Synthesize(ctx context.Context, req Request) ([]byte, error) {
	i := s.calls
	s.calls++
	if i < len(s.errs) && s.errs[i] != nil {
		return nil, s.errs[i]
	}
	return s.audio, nil
}

func TestRetrySucceedsAfterTransientFailures(t *testing.T) {
	overloaded := &SynthesisError{StatusCode: 500, Message: "overloaded"}
	s := &scriptedSynth{errs: []error{overloaded, overloaded}, audio: []byte("mp3")}
	r := NewRetrier(s, 3, time.Millisecond)

	audio, err := r.Synthesize(context.Background(), Request{Text: "hello"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if string(audio) != "mp3" {
		t.Fatalf("unexpected audio %q", audio)
	}
	if s.calls != 3 {
		t.Fatalf("expected 3 attempts, got %d", s.calls)
	}
}

func TestRetryStopsOnFatalError(t *testing.T) {
	fatal := &SynthesisError{StatusCode: 400, Message: "bad input"}
	s := &scriptedSynth{errs: []error{fatal}}
	r := NewRetrier(s, 3, time.Millisecond)

	_, err := r.Synthesize(context.Background(), Request{Text: "hello"})
	var serr *SynthesisError
	if !errors.As(err, &serr) || serr.StatusCode != 400 {
		t.Fatalf("expected fatal synthesis error, got %v", err)
	}
	if s.calls != 1 {
		t.Fatalf("expected a single attempt, got %d", s.calls)
	}
}

func TestRetryExhaustsTransientFailures(t *testing.T) {
	overloaded := &SynthesisError{StatusCode: 503, Message: "unavailable"}
	s := &scriptedSynth{errs: []error{overloaded, overloaded, overloaded}}
	r := NewRetrier(s, 3, time.Millisecond)

	_, err := r.Synthesize(context.Background(), Request{Text: "hello"})
	var serr *SynthesisError
	if !errors.As(err, &serr) || serr.StatusCode != 503 {
		t.Fatalf("expected last transient error, got %v", err)
	}
	if s.calls != 3 {
		t.Fatalf("expected 3 attempts, got %d", s.calls)
	}
}

func TestLinearBackOffSchedule(t *testing.T) {
	b := &linearBackOff{base: 500 * time.Millisecond}
	if d := b.NextBackOff(); d != 500*time.Millisecond {
		t.Fatalf("first wait: expected 500ms, got %v", d)
	}
	if d := b.NextBackOff(); d != time.Second {
		t.Fatalf("second wait: expected 1s, got %v", d)
	}
	b.Reset()
	if d := b.NextBackOff(); d != 500*time.Millisecond {
		t.Fatalf("after reset: expected 500ms, got %v", d)
	}
}

func TestTransientClassification(t *testing.T) {
	cases := []struct {
		code      int
		transient bool
	}{
		{500, true},
		{503, true},
		{429, true},
		{400, false},
		{401, false},
		{422, false},
	}
	for _, c := range cases {
		e := &SynthesisError{StatusCode: c.code}
		if e.Transient() != c.transient {
			t.Fatalf("status %d: expected transient=%v", c.code, c.transient)
		}
	}
}
