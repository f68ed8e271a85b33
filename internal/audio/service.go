package audio

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/papercast-labs/papercast-core/internal/jobs"
	"github.com/papercast-labs/papercast-core/internal/paperstore"
	"github.com/papercast-labs/papercast-core/internal/protocol"
	"github.com/papercast-labs/papercast-core/internal/worker"
)

// Service owns the progressive delivery endpoints. Both read endpoints are
// snapshots of current state and never block on synthesis; the trigger
// endpoint may start a background run but returns immediately.
type Service struct {
	papers paperstore.Store
	runs   *jobs.Registry
	worker *worker.Worker
	log    *slog.Logger
	client *http.Client
}

func NewService(papers paperstore.Store, runs *jobs.Registry, w *worker.Worker, logger *slog.Logger) *Service {
	return &Service{
		papers: papers,
		runs:   runs,
		worker: w,
		log:    logger.With(slog.String("component", "audio")),
		client: http.DefaultClient,
	}
}

// Register mounts the delivery endpoints on the mux.
func (s *Service) Register(mux *http.ServeMux) {
	mux.HandleFunc("POST /audio", s.handleTrigger)
	mux.HandleFunc("GET /audio-status/{doi}", s.handleStatus)
	mux.HandleFunc("GET /stream/{doi}/{index}", s.handleStream)
}

type triggerRequest struct {
	DOI string `json:"doi"`
}

func (s *Service) handleTrigger(w http.ResponseWriter, r *http.Request) {
	var req triggerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.DOI == "" {
		writeError(w, http.StatusBadRequest, "doi is required")
		return
	}

	paper, err := s.papers.Get(r.Context(), req.DOI)
	if errors.Is(err, paperstore.ErrNotFound) {
		writeError(w, http.StatusNotFound, "paper not found for this DOI")
		return
	}
	if err != nil {
		s.log.Error("failed to load paper", slog.String("doi", req.DOI), slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	total := paper.ExpectedClipCount()
	if len(paper.ClipURLs) < total && total > 0 {
		doi := req.DOI
		if runID, started := s.runs.TryStart(doi, total, func(ctx context.Context, runID string) error {
			return s.worker.Run(ctx, doi, runID)
		}); started {
			s.log.Info("started synthesis run",
				slog.String("doi", doi),
				slog.String("run_id", runID),
				slog.Int("total", total))
		}
	}

	writeJSON(w, http.StatusOK, s.snapshot(paper, true))
}

func (s *Service) handleStatus(w http.ResponseWriter, r *http.Request) {
	// PathValue already unescapes the URL-encoded DOI segment.
	doi := r.PathValue("doi")
	if doi == "" {
		writeError(w, http.StatusBadRequest, "doi is required")
		return
	}

	paper, err := s.papers.Get(r.Context(), doi)
	if errors.Is(err, paperstore.ErrNotFound) {
		writeError(w, http.StatusNotFound, "paper not found")
		return
	}
	if err != nil {
		s.log.Error("failed to load paper", slog.String("doi", doi), slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	writeJSON(w, http.StatusOK, s.snapshot(paper, false))
}

func (s *Service) handleStream(w http.ResponseWriter, r *http.Request) {
	doi := r.PathValue("doi")
	if doi == "" {
		writeError(w, http.StatusBadRequest, "doi is required")
		return
	}
	index, err := strconv.Atoi(r.PathValue("index"))
	if err != nil || index < 0 {
		writeError(w, http.StatusNotFound, "audio segment not found")
		return
	}

	paper, err := s.papers.Get(r.Context(), doi)
	if errors.Is(err, paperstore.ErrNotFound) {
		writeError(w, http.StatusNotFound, "audio segment not found")
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}
	if index >= len(paper.ClipURLs) {
		writeError(w, http.StatusNotFound, fmt.Sprintf("audio segment %d not found", index))
		return
	}

	req, err := http.NewRequestWithContext(r.Context(), http.MethodGet, paper.ClipURLs[index], nil)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}
	resp, err := s.client.Do(req)
	if err != nil {
		s.log.Error("failed to fetch clip", slog.String("doi", doi), slog.Int("index", index), slog.String("error", err.Error()))
		writeError(w, http.StatusBadGateway, "failed to fetch audio segment")
		return
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		writeError(w, http.StatusNotFound, fmt.Sprintf("audio segment %d not found", index))
		return
	}

	w.Header().Set("Content-Type", "audio/mpeg")
	if _, err := io.Copy(w, resp.Body); err != nil {
		s.log.Warn("stream interrupted", slog.String("doi", doi), slog.Int("index", index), slog.String("error", err.Error()))
	}
}

// snapshot derives the response from the paper record and the job table.
// justTriggered suppresses the job-error surface on the trigger endpoint,
// whose call may have just started a fresh run.
func (s *Service) snapshot(paper paperstore.Paper, justTriggered bool) protocol.AudioSnapshot {
	total := paper.ExpectedClipCount()
	clips := paper.ClipURLs
	if clips == nil {
		clips = []string{}
	}

	snap := protocol.AudioSnapshot{
		Title:    paper.Title,
		Segments: clips,
		Progress: len(clips),
		Total:    total,
	}

	switch {
	case total > 0 && len(clips) >= total:
		snap.Status = protocol.StatusCompleted
	case total == 0 && len(clips) == 0:
		snap.Status = protocol.StatusError
		snap.Error = "paper has no narratable sections"
	default:
		snap.Status = protocol.StatusGenerating
		if !justTriggered {
			if run, ok := s.runs.Snapshot(paper.DOI); ok && run.Status == jobs.StatusFailed {
				snap.Status = protocol.StatusError
				if run.Err != nil {
					snap.Error = run.Err.Error()
				}
			}
		}
	}
	return snap
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
