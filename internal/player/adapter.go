package player

import (
	"context"
	"log/slog"
	"sync"
)

// Session binds the pure machine to a Handle. All events funnel through
// Dispatch, which applies the transition and then runs the resulting
// effects; the handle's callbacks re-enter Dispatch for ended/tick events.
type Session struct {
	log    *slog.Logger
	handle Handle

	mu     sync.Mutex
	state  State
	closed bool
}

func NewSession(handle Handle, logger *slog.Logger) *Session {
	return &Session{
		log:    logger.With(slog.String("component", "player")),
		handle: handle,
		state:  State{Phase: PhaseIdle},
	}
}

// State returns a copy of the current machine state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Dispatch applies one event and executes its effects. Load runs
// synchronously; its outcome feeds back in as a Loaded or LoadFailed event.
func (s *Session) Dispatch(ctx context.Context, ev Event) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	next, effects := Apply(s.state, ev)
	s.state = next
	s.mu.Unlock()

	for _, eff := range effects {
		// Close may land between effects; a load executed after the final
		// release would leave clip bytes held in the handle.
		if s.isClosed() {
			return
		}
		s.run(ctx, eff)
	}
}

func (s *Session) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

func (s *Session) run(ctx context.Context, eff Effect) {
	switch e := eff.(type) {
	case ReleaseHandle:
		s.handle.Release()
	case LoadClip:
		s.log.Info("loading clip", slog.Int("index", e.Index), slog.String("url", e.URL))
		duration, err := s.handle.Load(ctx, e.URL)
		if s.isClosed() {
			// Closed while the load was in flight: the clip's resources
			// must not outlive the session.
			s.handle.Release()
			return
		}
		if err != nil {
			s.log.Error("clip load failed", slog.Int("index", e.Index), slog.String("error", err.Error()))
			s.Dispatch(ctx, LoadFailed{Err: err.Error()})
			return
		}
		s.Dispatch(ctx, Loaded{DurationMS: duration})
	case StartPlayback:
		if err := s.handle.Play(); err != nil {
			s.log.Error("playback failed", slog.String("error", err.Error()))
			s.Dispatch(ctx, LoadFailed{Err: err.Error()})
		}
	case PausePlayback:
		if err := s.handle.Pause(); err != nil {
			s.log.Warn("pause failed", slog.String("error", err.Error()))
		}
	case SeekTo:
		if err := s.handle.Seek(e.PositionMS); err != nil {
			s.log.Warn("seek failed", slog.String("error", err.Error()))
		}
	}
}

// Close tears the session down: further dispatches are ignored and the
// handle's resources are released exactly once.
func (s *Session) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	s.state = State{Phase: PhaseIdle}
	s.mu.Unlock()

	s.handle.Release()
}
