package client

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestFetchAudioPostsDOI(t *testing.T) {
	var gotPath, gotDOI string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		if r.Method != http.MethodPost {
			t.Errorf("method = %s, want POST", r.Method)
		}
		var body map[string]string
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Fatalf("decode body: %v", err)
		}
		gotDOI = body["doi"]
		json.NewEncoder(w).Encode(AudioSnapshot{
			Title:    "Attention Is All You Need",
			Segments: []string{"https://blob/0.mp3"},
			Status:   "generating",
			Progress: 1,
			Total:    3,
		})
	}))
	defer srv.Close()

	snap, err := New(srv.URL).FetchAudio(context.Background(), "10.1000/xyz123")
	if err != nil {
		t.Fatalf("FetchAudio: %v", err)
	}
	if gotPath != "/audio" {
		t.Errorf("path = %s, want /audio", gotPath)
	}
	if gotDOI != "10.1000/xyz123" {
		t.Errorf("doi = %s, want 10.1000/xyz123", gotDOI)
	}
	if snap.Title != "Attention Is All You Need" || snap.Progress != 1 || snap.Total != 3 {
		t.Errorf("unexpected snapshot: %+v", snap)
	}
	if snap.Terminal() {
		t.Error("generating snapshot should not be terminal")
	}
}

func TestAudioStatusEscapesDOI(t *testing.T) {
	var gotEscaped string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotEscaped = r.URL.EscapedPath()
		json.NewEncoder(w).Encode(AudioSnapshot{Status: "completed", Progress: 2, Total: 2})
	}))
	defer srv.Close()

	snap, err := New(srv.URL).AudioStatus(context.Background(), "10.1000/xyz?a")
	if err != nil {
		t.Fatalf("AudioStatus: %v", err)
	}
	if gotEscaped != "/audio-status/10.1000%2Fxyz%3Fa" {
		t.Errorf("escaped path = %s", gotEscaped)
	}
	if !snap.Terminal() {
		t.Error("completed snapshot should be terminal")
	}
}

func TestAudioStatusSurfacesAPIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		json.NewEncoder(w).Encode(map[string]string{"error": "paper not found"})
	}))
	defer srv.Close()

	_, err := New(srv.URL).AudioStatus(context.Background(), "10.1000/missing")
	if err == nil {
		t.Fatal("expected error for 404 response")
	}
	if !strings.Contains(err.Error(), "paper not found") {
		t.Errorf("error = %q, want it to mention paper not found", err)
	}
}

func TestOpenClipStreamsBytes(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "audio/mpeg")
		w.Write([]byte("MP3DATA"))
	}))
	defer srv.Close()

	c := New(srv.URL)
	rc, err := c.OpenClip(context.Background(), c.StreamURL("10.1000/xyz", 0))
	if err != nil {
		t.Fatalf("OpenClip: %v", err)
	}
	defer rc.Close()

	data, err := io.ReadAll(rc)
	if err != nil {
		t.Fatalf("read clip: %v", err)
	}
	if string(data) != "MP3DATA" {
		t.Errorf("clip bytes = %q", data)
	}
}
