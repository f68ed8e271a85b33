package worker

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/papercast-labs/papercast-core/internal/blobstore"
	"github.com/papercast-labs/papercast-core/internal/config"
	"github.com/papercast-labs/papercast-core/internal/paperstore"
	"github.com/papercast-labs/papercast-core/internal/protocol"
	"github.com/papercast-labs/papercast-core/internal/synth"
)

// ProgressSink receives per-clip progress updates from a run.
// *jobs.Registry satisfies it.
type ProgressSink interface {
	SetProgress(doi, runID string, progress int)
}

// EventPublisher broadcasts progress events off the run path.
// *bus.Client satisfies it.
type EventPublisher interface {
	PublishProgress(evt protocol.ProgressEvent)
}

// Worker produces and persists one clip per narratable section of a
// document, strictly in order. A run resumes from the clips that already
// exist, so re-triggering after a fatal failure makes forward progress
// instead of redoing completed sections.
type Worker struct {
	papers   paperstore.Store
	blobs    blobstore.Store
	synth    synth.Synthesizer
	voice    synth.VoiceConfig
	progress ProgressSink
	bus      EventPublisher
	log      *slog.Logger
	clock    func() time.Time

	sectionsSynthesized metric.Int64Counter
	synthDuration       metric.Float64Histogram
}

func New(papers paperstore.Store, blobs blobstore.Store, synthesizer synth.Synthesizer, cfg config.SynthConfig, jobsCfg config.JobsConfig, progress ProgressSink, busClient EventPublisher, logger *slog.Logger) *Worker {
	w := &Worker{
		papers: papers,
		blobs:  blobs,
		synth:  synth.NewRetrier(synthesizer, jobsCfg.RetryAttempts, time.Duration(jobsCfg.RetryBaseDelay)*time.Millisecond),
		voice: synth.VoiceConfig{
			LanguageCode: cfg.LanguageCode,
			Name:         cfg.Voice,
			SpeakingRate: cfg.SpeakingRate,
			Pitch:        cfg.Pitch,
		},
		progress: progress,
		bus:      busClient,
		log:      logger.With(slog.String("component", "worker")),
		clock:    time.Now,
	}

	meter := otel.Meter("papercast/worker")
	var err error
	if w.sectionsSynthesized, err = meter.Int64Counter("papercast.sections.synthesized"); err != nil {
		w.log.Warn("failed to create counter", slog.String("error", err.Error()))
	}
	if w.synthDuration, err = meter.Float64Histogram("papercast.synthesis.duration.seconds"); err != nil {
		w.log.Warn("failed to create histogram", slog.String("error", err.Error()))
	}
	return w
}

// Run synthesizes every remaining section of the document. It is invoked by
// the jobs registry off the request path; errors are recorded in the job
// table, never surfaced to a waiting caller.
func (w *Worker) Run(ctx context.Context, doi, runID string) error {
	log := w.log.With(slog.String("doi", doi), slog.String("run_id", runID))

	paper, err := w.papers.Get(ctx, doi)
	if err != nil {
		return fmt.Errorf("load paper: %w", err)
	}

	texts := paper.SectionTexts()
	if len(texts) == 0 {
		return fmt.Errorf("paper has no narratable sections")
	}

	clips := append([]string(nil), paper.ClipURLs...)
	if len(clips) >= len(texts) {
		log.Info("clips already complete", slog.Int("count", len(clips)))
		return nil
	}

	log.Info("starting synthesis run",
		slog.Int("sections", len(texts)),
		slog.Int("existing_clips", len(clips)))

	checkpointDirty := false
	for i := len(clips); i < len(texts); i++ {
		start := w.clock()
		audio, err := w.synth.Synthesize(ctx, synth.Request{Text: texts[i], Voice: w.voice})
		if err != nil {
			w.publishEvent(doi, runID, protocol.ProgressEvent{
				Kind:  protocol.EventKindFailed,
				Index: i,
				Error: err.Error(),
			}, len(clips), len(texts))
			return fmt.Errorf("section %d: synthesize: %w", i, err)
		}
		if w.synthDuration != nil {
			w.synthDuration.Record(ctx, w.clock().Sub(start).Seconds())
		}

		url, err := w.blobs.Put(ctx, blobstore.ClipPath(doi, i), audio, "audio/mpeg")
		if err != nil {
			w.publishEvent(doi, runID, protocol.ProgressEvent{
				Kind:  protocol.EventKindFailed,
				Index: i,
				Error: err.Error(),
			}, len(clips), len(texts))
			return fmt.Errorf("section %d: upload: %w", i, err)
		}
		clips = append(clips, url)

		if err := w.papers.UpdateClips(ctx, doi, clips); err != nil {
			// Losing one checkpoint does not abort the run; the next
			// successful write carries the full list.
			checkpointDirty = true
			log.Warn("failed to persist clip list checkpoint",
				slog.Int("section", i),
				slog.String("error", err.Error()))
		} else {
			checkpointDirty = false
		}

		if w.progress != nil {
			w.progress.SetProgress(doi, runID, len(clips))
		}
		if w.sectionsSynthesized != nil {
			w.sectionsSynthesized.Add(ctx, 1, metric.WithAttributes(attribute.String("doi", doi)))
		}
		w.publishEvent(doi, runID, protocol.ProgressEvent{
			Kind:  protocol.EventKindClip,
			Index: i,
			URL:   url,
		}, len(clips), len(texts))
	}

	if checkpointDirty {
		if err := w.papers.UpdateClips(ctx, doi, clips); err != nil {
			log.Warn("failed to persist final clip list", slog.String("error", err.Error()))
		}
	}

	w.publishEvent(doi, runID, protocol.ProgressEvent{Kind: protocol.EventKindCompleted}, len(clips), len(texts))
	log.Info("synthesis run finished", slog.Int("clips", len(clips)))
	return nil
}

func (w *Worker) publishEvent(doi, runID string, evt protocol.ProgressEvent, progress, total int) {
	if w.bus == nil {
		return
	}
	evt.DOI = doi
	evt.RunID = runID
	evt.Progress = progress
	evt.Total = total
	evt.Timestamp = w.clock().UTC()
	w.bus.PublishProgress(evt)
}
