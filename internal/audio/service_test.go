package audio

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync"
	"testing"
	"time"

	"github.com/papercast-labs/papercast-core/internal/config"
	"github.com/papercast-labs/papercast-core/internal/jobs"
	"github.com/papercast-labs/papercast-core/internal/paperstore"
	"github.com/papercast-labs/papercast-core/internal/protocol"
	"github.com/papercast-labs/papercast-core/internal/synth"
	"github.com/papercast-labs/papercast-core/internal/worker"
)

func newLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError}))
}

type memPapers struct {
	mu     sync.Mutex
	papers map[string]paperstore.Paper
}

func newMemPapers(papers ...paperstore.Paper) *memPapers {
	m := &memPapers{papers: make(map[string]paperstore.Paper)}
	for _, p := range papers {
		m.papers[p.DOI] = p
	}
	return m
}

func (m *memPapers) Get(ctx context.Context, doi string) (paperstore.Paper, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.papers[doi]
	if !ok {
		return paperstore.Paper{}, paperstore.ErrNotFound
	}
	p.ClipURLs = append([]string(nil), p.ClipURLs...)
	return p, nil
}

func (m *memPapers) UpdateClips(ctx context.Context, doi string, urls []string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.papers[doi]
	if !ok {
		return paperstore.ErrNotFound
	}
	p.ClipURLs = append([]string(nil), urls...)
	m.papers[doi] = p
	return nil
}

type memBlobs struct{}

func (memBlobs) Put(ctx context.Context, path string, data []byte, contentType string) (string, error) {
	return "http://blobs.test/" + path, nil
}

// gatedSynth blocks each call until a token is sent on step.
type gatedSynth struct {
	step chan struct{}
	err  error
}

func (g *gatedSynth) Synthesize(ctx context.Context, req synth.Request) ([]byte, error) {
	if g.step != nil {
		select {
		case <-g.step:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if g.err != nil {
		return nil, g.err
	}
	return []byte("mp3"), nil
}

type testEnv struct {
	papers *memPapers
	runs   *jobs.Registry
	server *httptest.Server
}

func newEnv(t *testing.T, papers *memPapers, synthesizer synth.Synthesizer) *testEnv {
	t.Helper()
	runs := jobs.NewRegistry(context.Background(), config.JobsConfig{Concurrency: 2}, newLogger())
	t.Cleanup(runs.Close)

	w := worker.New(papers, memBlobs{}, synthesizer,
		config.SynthConfig{LanguageCode: "en-US", Voice: "v", SpeakingRate: 1.0},
		config.JobsConfig{RetryAttempts: 3, RetryBaseDelay: 1},
		runs, nil, newLogger())

	svc := NewService(papers, runs, w, newLogger())
	mux := http.NewServeMux()
	svc.Register(mux)
	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)

	return &testEnv{papers: papers, runs: runs, server: server}
}

func (e *testEnv) trigger(t *testing.T, doi string) protocol.AudioSnapshot {
	t.Helper()
	body, _ := json.Marshal(map[string]string{"doi": doi})
	resp, err := http.Post(e.server.URL+"/audio", "application/json", bytes.NewReader(body))
	if err != nil {
		t.Fatalf("post /audio: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("post /audio: status %d", resp.StatusCode)
	}
	var snap protocol.AudioSnapshot
	if err := json.NewDecoder(resp.Body).Decode(&snap); err != nil {
		t.Fatalf("decode snapshot: %v", err)
	}
	return snap
}

func (e *testEnv) status(t *testing.T, doi string) protocol.AudioSnapshot {
	t.Helper()
	resp, err := http.Get(e.server.URL + "/audio-status/" + url.PathEscape(doi))
	if err != nil {
		t.Fatalf("get status: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("get status: status %d", resp.StatusCode)
	}
	var snap protocol.AudioSnapshot
	if err := json.NewDecoder(resp.Body).Decode(&snap); err != nil {
		t.Fatalf("decode snapshot: %v", err)
	}
	return snap
}

func (e *testEnv) waitTerminal(t *testing.T, doi string) jobs.Snapshot {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if snap, ok := e.runs.Snapshot(doi); ok && snap.Terminal() {
			return snap
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("run did not finish")
	return jobs.Snapshot{}
}

func threeSections(doi string) paperstore.Paper {
	return paperstore.Paper{
		DOI:   doi,
		Title: "A Paper",
		Sections: []paperstore.Section{
			{Text: "one"}, {Text: "two"}, {Text: "three"},
		},
	}
}

func TestTriggerStartsGenerationAndCompletes(t *testing.T) {
	doi := "10.1234/abc"
	env := newEnv(t, newMemPapers(threeSections(doi)), &gatedSynth{})

	snap := env.trigger(t, doi)
	if snap.Status != protocol.StatusGenerating {
		t.Fatalf("expected generating, got %s", snap.Status)
	}
	if len(snap.Segments) != 0 || snap.Progress != 0 || snap.Total != 3 {
		t.Fatalf("unexpected initial snapshot %+v", snap)
	}

	run := env.waitTerminal(t, doi)
	if run.Status != jobs.StatusDone {
		t.Fatalf("expected done run, got %s (%v)", run.Status, run.Err)
	}

	final := env.status(t, doi)
	if final.Status != protocol.StatusCompleted {
		t.Fatalf("expected completed, got %+v", final)
	}
	if len(final.Segments) != 3 || final.Progress != 3 || final.Total != 3 {
		t.Fatalf("unexpected final snapshot %+v", final)
	}
	if final.Title != "A Paper" {
		t.Fatalf("expected title carried through, got %q", final.Title)
	}
}

func TestTriggerWithoutSections(t *testing.T) {
	doi := "10.1234/empty"
	paper := paperstore.Paper{DOI: doi, Title: "Empty", Sections: []paperstore.Section{{Text: "   "}}}
	env := newEnv(t, newMemPapers(paper), &gatedSynth{})

	snap := env.trigger(t, doi)
	if snap.Status != protocol.StatusError || snap.Total != 0 {
		t.Fatalf("unexpected snapshot %+v", snap)
	}
	if _, ok := env.runs.Snapshot(doi); ok {
		t.Fatal("no run must start for a paper without narratable sections")
	}
}

func TestTriggerIdempotentWhenCompleted(t *testing.T) {
	doi := "10.1234/done"
	paper := threeSections(doi)
	paper.ClipURLs = []string{"u0", "u1", "u2"}
	env := newEnv(t, newMemPapers(paper), &gatedSynth{})

	snap := env.trigger(t, doi)
	if snap.Status != protocol.StatusCompleted || snap.Progress != 3 {
		t.Fatalf("unexpected snapshot %+v", snap)
	}
	if _, ok := env.runs.Snapshot(doi); ok {
		t.Fatal("no run must start for a completed paper")
	}
}

func TestRapidTriggersStartSingleRun(t *testing.T) {
	doi := "10.1234/race"
	step := make(chan struct{})
	env := newEnv(t, newMemPapers(threeSections(doi)), &gatedSynth{step: step})

	first := env.trigger(t, doi)
	second := env.trigger(t, doi)
	if first.Status != protocol.StatusGenerating || second.Status != protocol.StatusGenerating {
		t.Fatalf("expected generating from both triggers")
	}

	firstRun, ok := env.runs.Snapshot(doi)
	if !ok {
		t.Fatal("expected a run")
	}
	// Let the run finish; the run id never changed, so only one started.
	for i := 0; i < 3; i++ {
		step <- struct{}{}
	}
	final := env.waitTerminal(t, doi)
	if final.RunID != firstRun.RunID {
		t.Fatalf("expected a single run, got %s then %s", firstRun.RunID, final.RunID)
	}
}

func TestStatusNeverTriggers(t *testing.T) {
	doi := "10.1234/idle"
	env := newEnv(t, newMemPapers(threeSections(doi)), &gatedSynth{})

	snap := env.status(t, doi)
	if snap.Status != protocol.StatusGenerating || snap.Progress != 0 {
		t.Fatalf("unexpected snapshot %+v", snap)
	}
	if _, ok := env.runs.Snapshot(doi); ok {
		t.Fatal("status endpoint must not start runs")
	}
}

func TestProgressMonotonicDuringRun(t *testing.T) {
	doi := "10.1234/steps"
	step := make(chan struct{})
	env := newEnv(t, newMemPapers(threeSections(doi)), &gatedSynth{step: step})

	env.trigger(t, doi)

	seen := 0
	for clip := 0; clip < 3; clip++ {
		step <- struct{}{}
		deadline := time.Now().Add(5 * time.Second)
		for time.Now().Before(deadline) {
			snap := env.status(t, doi)
			if snap.Progress < seen {
				t.Fatalf("progress shrank from %d to %d", seen, snap.Progress)
			}
			seen = snap.Progress
			if snap.Progress >= clip+1 {
				break
			}
			time.Sleep(5 * time.Millisecond)
		}
		if seen < clip+1 {
			t.Fatalf("progress stuck at %d after clip %d", seen, clip)
		}
	}
	env.waitTerminal(t, doi)
	if snap := env.status(t, doi); snap.Status != protocol.StatusCompleted {
		t.Fatalf("expected completed, got %+v", snap)
	}
}

func TestFailedRunSurfacesErrorStatus(t *testing.T) {
	doi := "10.1234/broken"
	env := newEnv(t, newMemPapers(threeSections(doi)),
		&gatedSynth{err: &synth.SynthesisError{StatusCode: 400, Message: "bad input"}})

	env.trigger(t, doi)
	run := env.waitTerminal(t, doi)
	if run.Status != jobs.StatusFailed {
		t.Fatalf("expected failed run, got %s", run.Status)
	}

	snap := env.status(t, doi)
	if snap.Status != protocol.StatusError || snap.Error == "" {
		t.Fatalf("expected surfaced error, got %+v", snap)
	}
}

func TestUnknownDOI(t *testing.T) {
	env := newEnv(t, newMemPapers(), &gatedSynth{})

	body, _ := json.Marshal(map[string]string{"doi": "10.1234/missing"})
	resp, err := http.Post(env.server.URL+"/audio", "application/json", bytes.NewReader(body))
	if err != nil {
		t.Fatalf("post: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", resp.StatusCode)
	}

	resp, err = http.Get(env.server.URL + "/audio-status/" + url.PathEscape("10.1234/missing"))
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", resp.StatusCode)
	}
}

func TestStreamProxiesClipBytes(t *testing.T) {
	clipSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("clip-bytes"))
	}))
	t.Cleanup(clipSrv.Close)

	doi := "10.1234/stream"
	paper := threeSections(doi)
	paper.ClipURLs = []string{clipSrv.URL + "/section_000.mp3"}
	env := newEnv(t, newMemPapers(paper), &gatedSynth{})

	resp, err := http.Get(env.server.URL + "/stream/" + url.PathEscape(doi) + "/0")
	if err != nil {
		t.Fatalf("get stream: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	if ct := resp.Header.Get("Content-Type"); ct != "audio/mpeg" {
		t.Fatalf("expected audio/mpeg, got %s", ct)
	}
	data, _ := io.ReadAll(resp.Body)
	if string(data) != "clip-bytes" {
		t.Fatalf("unexpected body %q", data)
	}
}

func TestStreamIndexOutOfRange(t *testing.T) {
	doi := "10.1234/stream"
	paper := threeSections(doi)
	paper.ClipURLs = []string{"http://blobs.test/section_000.mp3"}
	env := newEnv(t, newMemPapers(paper), &gatedSynth{})

	resp, err := http.Get(env.server.URL + "/stream/" + url.PathEscape(doi) + "/5")
	if err != nil {
		t.Fatalf("get stream: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", resp.StatusCode)
	}
}
