package player

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/papercast-labs/papercast-core/internal/client"
)

type scriptedAPI struct {
	mu        sync.Mutex
	first     client.AudioSnapshot
	snapshots []client.AudioSnapshot
	polls     int
}

func (s *scriptedAPI) FetchAudio(context.Context, string) (client.AudioSnapshot, error) {
	return s.first, nil
}

func (s *scriptedAPI) AudioStatus(context.Context, string) (client.AudioSnapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	i := s.polls
	if i >= len(s.snapshots) {
		i = len(s.snapshots) - 1
	}
	s.polls++
	return s.snapshots[i], nil
}

type mergeRecorder struct {
	mu      sync.Mutex
	updates [][]string
}

func (r *mergeRecorder) sink(clips []string, status string) {
	r.mu.Lock()
	r.updates = append(r.updates, append([]string(nil), clips...))
	r.mu.Unlock()
}

func (r *mergeRecorder) all() [][]string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.updates
}

func TestPollerMergesAppendOnlyUntilCompleted(t *testing.T) {
	api := &scriptedAPI{
		first: client.AudioSnapshot{Title: "Deep Residual Learning", Status: "generating", Total: 2},
		snapshots: []client.AudioSnapshot{
			{Segments: []string{"u0"}, Status: "generating", Progress: 1, Total: 2},
			{Segments: []string{"u0", "u1"}, Status: "completed", Progress: 2, Total: 2},
		},
	}
	rec := &mergeRecorder{}
	p := NewPoller(api, 5*time.Millisecond, rec.sink, discardLogger())

	title, err := p.Run(context.Background(), "10.1000/xyz")
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if title != "Deep Residual Learning" {
		t.Errorf("title = %q", title)
	}

	updates := rec.all()
	if len(updates) < 3 {
		t.Fatalf("updates = %v, want initial + two polls", updates)
	}
	prev := 0
	for i, u := range updates {
		if len(u) < prev {
			t.Errorf("update %d shrank the clip list: %v", i, updates)
		}
		prev = len(u)
	}
	last := updates[len(updates)-1]
	if len(last) != 2 || last[0] != "u0" || last[1] != "u1" {
		t.Errorf("final clips = %v, want [u0 u1]", last)
	}
}

func TestPollerTerminalFirstSnapshotSkipsPolling(t *testing.T) {
	api := &scriptedAPI{
		first: client.AudioSnapshot{
			Title:    "Done Paper",
			Segments: []string{"u0", "u1"},
			Status:   "completed",
			Progress: 2,
			Total:    2,
		},
		snapshots: []client.AudioSnapshot{{Status: "completed"}},
	}
	rec := &mergeRecorder{}
	p := NewPoller(api, time.Millisecond, rec.sink, discardLogger())

	if _, err := p.Run(context.Background(), "10.1000/done"); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if api.polls != 0 {
		t.Errorf("polls = %d, want 0 for a completed first snapshot", api.polls)
	}
	if len(rec.all()) != 1 {
		t.Errorf("updates = %v, want a single merge", rec.all())
	}
}

func TestPollerStopGuardsLateUpdates(t *testing.T) {
	api := &scriptedAPI{
		first: client.AudioSnapshot{Status: "generating", Total: 3},
		snapshots: []client.AudioSnapshot{
			{Segments: []string{"u0"}, Status: "generating", Progress: 1, Total: 3},
		},
	}
	rec := &mergeRecorder{}
	p := NewPoller(api, time.Millisecond, rec.sink, discardLogger())
	p.Stop()

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, _ = p.Run(ctx, "10.1000/xyz")

	for _, u := range rec.all() {
		if len(u) != 0 {
			t.Errorf("stopped poller applied clips: %v", rec.all())
		}
	}
}
