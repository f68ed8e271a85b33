package player

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"sync"
	"syscall"
	"time"

	shellwords "github.com/mattn/go-shellwords"
)

// Handle is the single active-audio slot the machine's effects drive.
// Implementations own at most one clip's resources at a time; Release frees
// them and is safe to call with nothing loaded.
type Handle interface {
	Load(ctx context.Context, url string) (durationMS int, err error)
	Play() error
	Pause() error
	Seek(positionMS int) error
	Release()
}

// FetchFunc retrieves a clip's MP3 bytes.
type FetchFunc func(ctx context.Context, url string) (io.ReadCloser, error)

// HandleEvents are callbacks the handle fires as playback progresses.
type HandleEvents struct {
	Ended func()
	Tick  func(positionMS int)
}

// mp3 bitrate assumed for duration and seek estimates, in bits per second.
// The synthesis side always requests MP3 at this rate.
const assumedBitrate = 128000

type execHandle struct {
	command []string
	fetch   FetchFunc
	events  HandleEvents

	mu       sync.Mutex
	data     []byte
	cmd      *exec.Cmd
	stdin    io.WriteCloser
	offsetMS int
	paused   bool
	gen      int
}

// NewExecHandle plays clips by streaming their bytes into an external player
// command's stdin. Pause and resume use job-control signals; seek restarts
// the process at the estimated byte offset.
func NewExecHandle(command string, fetch FetchFunc, events HandleEvents) (Handle, error) {
	parts, err := shellwords.Parse(command)
	if err != nil {
		return nil, fmt.Errorf("parse player command: %w", err)
	}
	if len(parts) == 0 {
		return nil, errors.New("player command is empty")
	}
	return &execHandle{command: parts, fetch: fetch, events: events}, nil
}

func (h *execHandle) Load(ctx context.Context, url string) (int, error) {
	rc, err := h.fetch(ctx, url)
	if err != nil {
		return 0, err
	}
	defer rc.Close()

	data, err := io.ReadAll(rc)
	if err != nil {
		return 0, fmt.Errorf("read clip: %w", err)
	}
	if len(data) == 0 {
		return 0, errors.New("clip is empty")
	}

	h.mu.Lock()
	h.stopLocked()
	h.data = data
	h.offsetMS = 0
	h.paused = false
	h.mu.Unlock()

	return bytesToMS(len(data)), nil
}

func (h *execHandle) Play() error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.data == nil {
		return errors.New("no clip loaded")
	}
	if h.cmd != nil {
		if h.paused {
			h.paused = false
			return h.cmd.Process.Signal(syscall.SIGCONT)
		}
		return nil
	}
	return h.startLocked(h.offsetMS)
}

func (h *execHandle) Pause() error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.cmd == nil || h.paused {
		return nil
	}
	h.paused = true
	return h.cmd.Process.Signal(syscall.SIGSTOP)
}

func (h *execHandle) Seek(positionMS int) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.data == nil {
		return errors.New("no clip loaded")
	}
	playing := h.cmd != nil && !h.paused
	h.stopLocked()
	h.offsetMS = positionMS
	if playing {
		return h.startLocked(positionMS)
	}
	return nil
}

func (h *execHandle) Release() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.stopLocked()
	h.data = nil
	h.offsetMS = 0
	h.paused = false
}

// startLocked spawns the player process feeding it data from the given
// offset. Caller holds h.mu.
func (h *execHandle) startLocked(offsetMS int) error {
	offset := msToBytes(offsetMS)
	if offset >= len(h.data) {
		offset = len(h.data)
	}

	cmd := exec.Command(h.command[0], h.command[1:]...)
	stdin, err := cmd.StdinPipe()
	if err != nil {
		return fmt.Errorf("player stdin: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("start player: %w", err)
	}

	h.cmd = cmd
	h.stdin = stdin
	h.paused = false
	h.gen++
	gen := h.gen

	go func(data []byte) {
		_, _ = io.Copy(stdin, newChunkReader(data))
		stdin.Close()
	}(h.data[offset:])

	go h.watch(cmd, gen, offsetMS)

	return nil
}

// watch waits for the player process and fires Ended when it exits on its
// own, plus Tick callbacks while it runs. A bumped generation means Release
// or Seek superseded this process and its exit is not a natural end.
func (h *execHandle) watch(cmd *exec.Cmd, gen, startMS int) {
	done := make(chan struct{})
	go func() {
		_ = cmd.Wait()
		close(done)
	}()

	pos := newPositionClock(startMS, time.Now())
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-done:
			h.mu.Lock()
			natural := h.gen == gen && h.cmd == cmd
			if natural {
				h.cmd = nil
				h.stdin = nil
			}
			h.mu.Unlock()
			if natural && h.events.Ended != nil {
				h.events.Ended()
			}
			return
		case <-ticker.C:
			h.mu.Lock()
			paused := h.paused
			live := h.gen == gen
			h.mu.Unlock()
			ms := pos.advance(time.Now(), paused)
			if live && !paused && h.events.Tick != nil {
				h.events.Tick(ms)
			}
		}
	}
}

// positionClock estimates the playback position from wall time, counting
// only stretches where the player process was not stopped.
type positionClock struct {
	baseMS  int
	elapsed time.Duration
	last    time.Time
}

func newPositionClock(baseMS int, now time.Time) *positionClock {
	return &positionClock{baseMS: baseMS, last: now}
}

// advance accounts the time since the previous call and returns the current
// position. Time spent paused does not move the position.
func (c *positionClock) advance(now time.Time, paused bool) int {
	if !paused {
		c.elapsed += now.Sub(c.last)
	}
	c.last = now
	return c.baseMS + int(c.elapsed.Milliseconds())
}

// stopLocked kills any live player process. Caller holds h.mu.
func (h *execHandle) stopLocked() {
	if h.cmd == nil {
		return
	}
	h.gen++
	if h.paused {
		_ = h.cmd.Process.Signal(syscall.SIGCONT)
	}
	if h.stdin != nil {
		h.stdin.Close()
	}
	_ = h.cmd.Process.Kill()
	h.cmd = nil
	h.stdin = nil
	h.paused = false
}

func bytesToMS(n int) int {
	return int(int64(n) * 8000 / assumedBitrate)
}

func msToBytes(ms int) int {
	return int(int64(ms) * assumedBitrate / 8000)
}

// chunkReader feeds the player in small pieces so a kill during stop does
// not block on a full pipe write.
type chunkReader struct {
	data []byte
	pos  int
}

func newChunkReader(data []byte) *chunkReader {
	return &chunkReader{data: data}
}

func (r *chunkReader) Read(p []byte) (int, error) {
	if r.pos >= len(r.data) {
		return 0, io.EOF
	}
	const chunk = 16 * 1024
	n := len(p)
	if n > chunk {
		n = chunk
	}
	if n > len(r.data)-r.pos {
		n = len(r.data) - r.pos
	}
	copy(p, r.data[r.pos:r.pos+n])
	r.pos += n
	return n, nil
}
