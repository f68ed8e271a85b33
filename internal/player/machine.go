package player

// Phase of the playback machine. Exactly one clip handle is ever live; the
// transitions below always release it before loading another.
type Phase int

const (
	PhaseIdle Phase = iota
	PhaseLoading
	PhaseReady
	PhasePlaying
	PhasePaused
	PhaseEnded
	PhaseErrored
)

func (p Phase) String() string {
	switch p {
	case PhaseIdle:
		return "idle"
	case PhaseLoading:
		return "loading"
	case PhaseReady:
		return "ready"
	case PhasePlaying:
		return "playing"
	case PhasePaused:
		return "paused"
	case PhaseEnded:
		return "ended"
	case PhaseErrored:
		return "errored"
	}
	return "unknown"
}

// Intent is the play/pause preference the listener last expressed. It is
// preserved across clip boundaries so auto-advance resumes the right way.
type Intent int

const (
	IntentPaused Intent = iota
	IntentPlaying
)

// State is the whole playback machine state. Apply never mutates it in
// place; it returns a successor plus the side effects the adapter must run.
type State struct {
	Phase      Phase
	Clips      []string
	Index      int
	DurationMS int
	PositionMS int
	GenStatus  string
	Intent     Intent
	// WaitingAtEnd marks the paused-at-end condition: the last known clip
	// finished while generation was still in flight.
	WaitingAtEnd bool
	Err          string
}

// Event drives the machine. Poll-loop merges and user input arrive through
// the same Apply call and interleave arbitrarily.
type Event interface{ isEvent() }

type ClipsMerged struct {
	Clips  []string
	Status string
}
type Loaded struct{ DurationMS int }
type LoadFailed struct{ Err string }
type ClipEnded struct{}
type Play struct{}
type Pause struct{}
type Seek struct{ PositionMS int }
type Next struct{}
type Prev struct{}
type Tick struct{ PositionMS int }
type Stop struct{}

func (ClipsMerged) isEvent() {}
func (Loaded) isEvent()      {}
func (LoadFailed) isEvent()  {}
func (ClipEnded) isEvent()   {}
func (Play) isEvent()        {}
func (Pause) isEvent()       {}
func (Seek) isEvent()        {}
func (Next) isEvent()        {}
func (Prev) isEvent()        {}
func (Tick) isEvent()        {}
func (Stop) isEvent()        {}

// Effect is an instruction to the adapter. Effects are executed in order;
// ReleaseHandle always precedes LoadClip when a clip changes.
type Effect interface{ isEffect() }

type LoadClip struct {
	Index int
	URL   string
}
type StartPlayback struct{}
type PausePlayback struct{}
type SeekTo struct{ PositionMS int }
type ReleaseHandle struct{}

func (LoadClip) isEffect()      {}
func (StartPlayback) isEffect() {}
func (PausePlayback) isEffect() {}
func (SeekTo) isEffect()        {}
func (ReleaseHandle) isEffect() {}

// Apply is the pure transition function. It has no dependencies on audio or
// network; the Session executes the returned effects.
func Apply(s State, ev Event) (State, []Effect) {
	switch e := ev.(type) {
	case ClipsMerged:
		return applyMerge(s, e)
	case Loaded:
		return applyLoaded(s, e)
	case LoadFailed:
		if s.Phase != PhaseLoading && s.Phase != PhasePlaying {
			return s, nil
		}
		s.Phase = PhaseErrored
		s.Err = e.Err
		return s, []Effect{ReleaseHandle{}}
	case ClipEnded:
		return applyClipEnded(s)
	case Play:
		return applyPlay(s)
	case Pause:
		if s.Phase != PhasePlaying {
			return s, nil
		}
		s.Phase = PhasePaused
		s.Intent = IntentPaused
		return s, []Effect{PausePlayback{}}
	case Seek:
		return applySeek(s, e)
	case Next:
		if s.Index+1 >= len(s.Clips) {
			return s, nil
		}
		return beginLoad(s, s.Index+1)
	case Prev:
		if s.Index-1 < 0 {
			return s, nil
		}
		return beginLoad(s, s.Index-1)
	case Tick:
		if s.Phase != PhasePlaying {
			return s, nil
		}
		s.PositionMS = clamp(e.PositionMS, 0, s.DurationMS)
		return s, nil
	case Stop:
		return State{Phase: PhaseIdle}, []Effect{ReleaseHandle{}}
	}
	return s, nil
}

func applyMerge(s State, e ClipsMerged) (State, []Effect) {
	// Append-only merge: the clip list only ever grows during a run.
	if len(e.Clips) > len(s.Clips) {
		s.Clips = e.Clips
	}
	if e.Status != "" {
		s.GenStatus = e.Status
	}

	switch {
	case s.Phase == PhaseIdle && len(s.Clips) > 0:
		// First clip observed: begin loading and play as soon as it is
		// ready.
		s.Intent = IntentPlaying
		return beginLoad(s, 0)
	case s.WaitingAtEnd && s.Index+1 < len(s.Clips):
		return beginLoad(s, s.Index+1)
	case s.WaitingAtEnd && terminalStatus(s.GenStatus):
		// Generation finished, successfully or not, and everything known
		// has been played.
		s.Phase = PhaseEnded
		s.WaitingAtEnd = false
		return s, []Effect{ReleaseHandle{}}
	case s.Phase == PhaseErrored && s.Index < len(s.Clips):
		// A later merge may recover a failed load by retrying the clip.
		return beginLoad(s, s.Index)
	}
	return s, nil
}

func applyLoaded(s State, e Loaded) (State, []Effect) {
	if s.Phase != PhaseLoading {
		return s, nil
	}
	s.DurationMS = e.DurationMS
	s.PositionMS = 0
	if s.Intent == IntentPlaying {
		s.Phase = PhasePlaying
		return s, []Effect{StartPlayback{}}
	}
	s.Phase = PhaseReady
	return s, nil
}

func applyClipEnded(s State) (State, []Effect) {
	if s.Phase != PhasePlaying && s.Phase != PhasePaused {
		return s, nil
	}
	switch {
	case s.Index+1 < len(s.Clips):
		return beginLoad(s, s.Index+1)
	case terminalStatus(s.GenStatus):
		s.Phase = PhaseEnded
		return s, []Effect{ReleaseHandle{}}
	default:
		// Last known clip finished while generation is still running:
		// hold paused at the end until the poll loop delivers more.
		s.Phase = PhasePaused
		s.WaitingAtEnd = true
		s.PositionMS = s.DurationMS
		return s, nil
	}
}

func applyPlay(s State) (State, []Effect) {
	switch s.Phase {
	case PhaseReady, PhasePaused:
		s.Intent = IntentPlaying
		if s.WaitingAtEnd {
			// Nothing to play yet; the intent carries over to the next
			// clip the poll loop merges in.
			return s, nil
		}
		s.Phase = PhasePlaying
		return s, []Effect{StartPlayback{}}
	}
	return s, nil
}

func applySeek(s State, e Seek) (State, []Effect) {
	switch s.Phase {
	case PhaseReady, PhasePlaying, PhasePaused:
		pos := clamp(e.PositionMS, 0, s.DurationMS)
		s.PositionMS = pos
		s.WaitingAtEnd = false
		return s, []Effect{SeekTo{PositionMS: pos}}
	}
	return s, nil
}

func beginLoad(s State, index int) (State, []Effect) {
	s.Phase = PhaseLoading
	s.Index = index
	s.DurationMS = 0
	s.PositionMS = 0
	s.WaitingAtEnd = false
	s.Err = ""
	return s, []Effect{ReleaseHandle{}, LoadClip{Index: index, URL: s.Clips[index]}}
}

// terminalStatus reports whether generation has finished; a failed run is
// as final as a completed one, no further clips will ever arrive.
func terminalStatus(status string) bool {
	return status == "completed" || status == "error"
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
