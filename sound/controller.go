package sound

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/d1nch8g/voxloop/audio"
)

// Outcome is how a playback session ended.
type Outcome int

const (
	Pending Outcome = iota
	Completed
	Cancelled
	Failed
)

func (o Outcome) String() string {
	switch o {
	case Pending:
		return "pending"
	case Completed:
		return "completed"
	case Cancelled:
		return "cancelled"
	case Failed:
		return "failed"
	default:
		return "unknown"
	}
}

// Session is one reply being played. Outcome and Err are valid once Done is closed.
type Session struct {
	cancelled atomic.Bool
	done      chan struct{}
	length    time.Duration

	outcome Outcome
	err     error
}

func newSession(length time.Duration) *Session {
	return &Session{done: make(chan struct{}), length: length}
}

// Done is closed when the playback goroutine has released the device.
func (s *Session) Done() <-chan struct{} {
	return s.done
}

func (s *Session) Outcome() Outcome {
	select {
	case <-s.done:
		return s.outcome
	default:
		return Pending
	}
}

func (s *Session) Err() error {
	select {
	case <-s.done:
		return s.err
	default:
		return nil
	}
}

// Length is the duration of the decoded reply.
func (s *Session) Length() time.Duration {
	return s.length
}

func (s *Session) cancel() {
	s.cancelled.Store(true)
}

func (s *Session) finish(outcome Outcome, err error) {
	s.outcome = outcome
	s.err = err
	close(s.done)
}

// Controller plays replies one at a time. Starting a new reply cancels the
// previous one; cancellation takes effect at the next buffer boundary.
type Controller struct {
	out    Output
	config Config

	mu     sync.Mutex
	active *Session

	// device serializes sessions so a cancelled one closes the output
	// before the next one opens it.
	device sync.Mutex
}

func NewController(out Output, config Config) *Controller {
	if config.FramesPerBuffer <= 0 {
		config.FramesPerBuffer = GetDefaultConfig().FramesPerBuffer
	}
	return &Controller{out: out, config: config}
}

// Play decodes payload and starts playing it in the background. Decoding
// errors are returned before anything is played.
func (c *Controller) Play(ctx context.Context, payload []byte) (*Session, error) {
	pcm, err := audio.Decode(payload)
	if err != nil {
		return nil, fmt.Errorf("decode reply: %w", err)
	}

	s := newSession(pcm.Duration())

	c.mu.Lock()
	prev := c.active
	c.active = s
	c.mu.Unlock()

	if prev != nil {
		prev.cancel()
	}

	go c.run(ctx, s, pcm)
	return s, nil
}

// Cancel stops s. It is a no-op for sessions that already ended.
func (c *Controller) Cancel(s *Session) {
	if s == nil {
		return
	}
	s.cancel()
	c.mu.Lock()
	if c.active == s {
		c.active = nil
	}
	c.mu.Unlock()
}

// StopActive cancels the current session and reports whether there was one.
func (c *Controller) StopActive() bool {
	c.mu.Lock()
	s := c.active
	c.active = nil
	c.mu.Unlock()

	if s == nil {
		return false
	}
	s.cancel()
	return true
}

func (c *Controller) IsPlaying() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.active != nil
}

func (c *Controller) run(ctx context.Context, s *Session, pcm audio.PCM) {
	c.device.Lock()
	outcome, err := c.play(ctx, s, pcm)
	c.device.Unlock()

	c.mu.Lock()
	if c.active == s {
		c.active = nil
	}
	c.mu.Unlock()

	s.finish(outcome, err)
}

func (c *Controller) play(ctx context.Context, s *Session, pcm audio.PCM) (Outcome, error) {
	if s.cancelled.Load() {
		return Cancelled, nil
	}
	if err := c.out.Open(Format{SampleRate: pcm.SampleRate, Channels: pcm.Channels}); err != nil {
		return Failed, err
	}
	defer c.out.Close()

	step := c.config.FramesPerBuffer * pcm.Channels
	for off := 0; off < len(pcm.Samples); off += step {
		if s.cancelled.Load() || ctx.Err() != nil {
			return Cancelled, nil
		}
		end := min(off+step, len(pcm.Samples))
		if err := c.out.Write(pcm.Samples[off:end]); err != nil {
			return Failed, err
		}
	}
	return Completed, nil
}
