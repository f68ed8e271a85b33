package player

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/papercast-labs/papercast-core/internal/client"
)

// api is the slice of the daemon client the poller needs.
type api interface {
	FetchAudio(ctx context.Context, doi string) (client.AudioSnapshot, error)
	AudioStatus(ctx context.Context, doi string) (client.AudioSnapshot, error)
}

// Sink receives merged clip updates. The Session's Dispatch with a
// ClipsMerged event is the usual implementation.
type Sink func(clips []string, status string)

// Poller drives the delivery protocol for one document: a single
// snapshot-or-trigger call, then status polls until generation reaches a
// terminal state. Clip updates are forwarded append-only.
type Poller struct {
	api      api
	interval time.Duration
	sink     Sink
	log      *slog.Logger

	mu      sync.Mutex
	known   []string
	stopped bool
}

func NewPoller(c api, interval time.Duration, sink Sink, logger *slog.Logger) *Poller {
	return &Poller{
		api:      c,
		interval: interval,
		sink:     sink,
		log:      logger.With(slog.String("component", "poller")),
	}
}

// Run executes the poll loop until the run is terminal, the context ends,
// or Stop is called. It returns the document title from the first snapshot.
func (p *Poller) Run(ctx context.Context, doi string) (string, error) {
	snap, err := p.api.FetchAudio(ctx, doi)
	if err != nil {
		return "", fmt.Errorf("trigger audio for %s: %w", doi, err)
	}
	p.apply(snap)
	if snap.Terminal() {
		return snap.Title, nil
	}

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return snap.Title, ctx.Err()
		case <-ticker.C:
			if p.isStopped() {
				return snap.Title, nil
			}
			status, err := p.api.AudioStatus(ctx, doi)
			if err != nil {
				p.log.Warn("status poll failed", slog.String("doi", doi), slog.String("error", err.Error()))
				continue
			}
			p.apply(status)
			if status.Terminal() {
				return snap.Title, nil
			}
		}
	}
}

// Stop ends the loop and guards against updates being applied after
// teardown.
func (p *Poller) Stop() {
	p.mu.Lock()
	p.stopped = true
	p.mu.Unlock()
}

func (p *Poller) apply(snap client.AudioSnapshot) {
	p.mu.Lock()
	if p.stopped {
		p.mu.Unlock()
		return
	}
	grew := len(snap.Segments) > len(p.known)
	if grew {
		p.known = snap.Segments
	}
	clips := p.known
	p.mu.Unlock()

	if grew {
		p.log.Info("clips merged", slog.Int("known", len(clips)), slog.String("status", snap.Status))
	}
	p.sink(clips, snap.Status)
}

func (p *Poller) isStopped() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.stopped
}
