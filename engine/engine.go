package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/d1nch8g/voxloop/audio"
	"github.com/d1nch8g/voxloop/observe"
	"github.com/d1nch8g/voxloop/pipeline"
	"github.com/d1nch8g/voxloop/sound"
	"github.com/d1nch8g/voxloop/turn"
	"github.com/d1nch8g/voxloop/vad"
)

// Mode is what the engine does with incoming frames.
type Mode int32

const (
	// Listening feeds frames to the turn segmenter.
	Listening Mode = iota
	// Processing drops frames while the pipeline runs.
	Processing
	// Speaking feeds frames to the barge-in monitor.
	Speaking
)

func (m Mode) String() string {
	switch m {
	case Listening:
		return "listening"
	case Processing:
		return "processing"
	case Speaking:
		return "speaking"
	default:
		return "unknown"
	}
}

// Player plays replies; sound.Controller implements it.
type Player interface {
	Play(ctx context.Context, payload []byte) (*sound.Session, error)
	IsPlaying() bool
	StopActive() bool
}

// ConversationEntry represents a single exchange in the conversation
type ConversationEntry struct {
	UserInput  string
	AIResponse string
	Kind       pipeline.Kind
	Timestamp  time.Time
}

// EngineConfig holds the configuration for the voice loop
type EngineConfig struct {
	SampleRate        int
	QueueSize         int
	VADThreshold      float64
	BargeInMultiplier float64
	Turn              turn.Config
	MaxHistorySize    int
}

type Option func(*Engine)

func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) { e.logger = l }
}

func WithMetrics(m *observe.Metrics) Option {
	return func(e *Engine) { e.metrics = m }
}

// Engine orchestrates capture, segmentation, the pipeline and playback.
// Mode and turn state are owned by a single control goroutine.
type Engine struct {
	config    EngineConfig
	source    audio.Source
	processor pipeline.Processor
	player    Player
	logger    *slog.Logger
	metrics   *observe.Metrics

	mode    atomic.Int32
	workers sync.WaitGroup

	history      []ConversationEntry
	historyMutex sync.RWMutex

	isRunning    bool
	cancel       context.CancelFunc
	runningMutex sync.Mutex
}

// NewEngine creates a new engine instance
func NewEngine(config EngineConfig, source audio.Source, processor pipeline.Processor, player Player, opts ...Option) *Engine {
	if config.MaxHistorySize == 0 {
		config.MaxHistorySize = 10
	}
	if config.SampleRate == 0 {
		config.SampleRate = 16000
	}
	if config.QueueSize <= 0 {
		config.QueueSize = 64
	}
	if config.BargeInMultiplier == 0 {
		config.BargeInMultiplier = vad.DefaultBargeInMultiplier
	}
	config.Turn.SampleRate = config.SampleRate

	e := &Engine{
		config:    config,
		source:    source,
		processor: processor,
		player:    player,
		logger:    slog.Default(),
		history:   make([]ConversationEntry, 0),
	}
	for _, o := range opts {
		o(e)
	}
	return e
}

// Start runs the loop until ctx is cancelled, Stop is called, or the
// microphone fails. Only device failures are returned as errors other than
// the context error.
func (e *Engine) Start(ctx context.Context) error {
	e.runningMutex.Lock()
	if e.isRunning {
		e.runningMutex.Unlock()
		return errors.New("engine is already running")
	}
	ctx, cancel := context.WithCancel(ctx)
	e.isRunning = true
	e.cancel = cancel
	e.runningMutex.Unlock()

	defer func() {
		cancel()
		e.runningMutex.Lock()
		e.isRunning = false
		e.cancel = nil
		e.runningMutex.Unlock()
	}()

	if err := e.source.Initialize(); err != nil {
		return fmt.Errorf("failed to initialize audio source: %w", err)
	}
	defer e.source.Terminate()

	if err := e.source.Open(); err != nil {
		return fmt.Errorf("failed to open audio source: %w", err)
	}
	defer e.source.Close()

	frames := make(chan audio.Frame, e.config.QueueSize)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return e.source.StartCapture(gctx, frames)
	})
	g.Go(func() error {
		return e.run(gctx, frames)
	})

	e.logger.Info("engine started, listening")
	err := g.Wait()
	e.player.StopActive()
	e.workers.Wait()

	if errors.Is(err, audio.ErrDevice) {
		e.logger.Error("audio device failed", "error", err)
		return err
	}
	e.logger.Info("engine stopped")
	if err != nil && ctx.Err() == nil {
		return err
	}
	return ctx.Err()
}

type loop struct {
	segmenter *turn.Segmenter
	monitor   *turn.Monitor
	results   chan turnResult

	playbackDone <-chan struct{}
	session      *sound.Session

	discarded int
	dropped   uint64
}

type turnResult struct {
	pipeline.Result
	utterance time.Duration
}

func (e *Engine) run(ctx context.Context, frames <-chan audio.Frame) error {
	base := vad.New(e.config.VADThreshold)
	l := &loop{
		segmenter: turn.NewSegmenter(e.config.Turn, base),
		monitor:   turn.NewMonitor(base.Elevated(e.config.BargeInMultiplier), e.player),
		results:   make(chan turnResult, 1),
	}
	e.setMode(Listening)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case f := <-frames:
			e.handleFrame(ctx, l, f)

		case res := <-l.results:
			e.handleResult(ctx, l, res)

		case <-l.playbackDone:
			outcome := l.session.Outcome()
			e.metrics.RecordPlayback(ctx, outcome.String())
			if outcome == sound.Failed {
				e.logger.Warn("playback failed, skipping reply", "error", l.session.Err())
			}
			l.playbackDone = nil
			l.session = nil
			if e.Mode() == Speaking {
				e.setMode(Listening)
			}
		}
	}
}

func (e *Engine) handleFrame(ctx context.Context, l *loop, f audio.Frame) {
	if d := e.source.Dropped(); d > l.dropped {
		e.metrics.RecordDropped(ctx, "queue_full", int64(d-l.dropped))
		l.dropped = d
	}

	switch e.Mode() {
	case Processing:
		e.metrics.RecordDropped(ctx, "processing", 1)
		return

	case Speaking:
		if e.player.IsPlaying() {
			e.monitor(ctx, l, f)
			return
		}
		// Playback ended but its completion signal has not been handled yet.
		e.setMode(Listening)
	}

	u, ok := l.segmenter.Process(f)
	if d := l.segmenter.Discarded(); d > l.discarded {
		e.metrics.RecordUtterance(ctx, "discarded")
		e.logger.Debug("discarded short utterance")
		l.discarded = d
	}
	if !ok {
		return
	}

	e.metrics.RecordUtterance(ctx, "emitted")
	e.logger.Info("utterance captured", "duration", u.Duration(e.config.SampleRate), "bytes", u.Len())
	e.setMode(Processing)

	e.workers.Add(1)
	go func() {
		defer e.workers.Done()
		l.results <- e.process(ctx, u)
	}()
}

// monitor runs barge-in detection. The interrupting frame opens the next
// utterance.
func (e *Engine) monitor(ctx context.Context, l *loop, f audio.Frame) {
	if !l.monitor.Observe(f) {
		return
	}
	e.metrics.RecordBargeIn(ctx)
	e.logger.Info("barge-in, playback cancelled")
	l.segmenter.Begin(f)
	e.setMode(Listening)
}

func (e *Engine) process(ctx context.Context, u *turn.Utterance) turnResult {
	res := turnResult{utterance: u.Duration(e.config.SampleRate)}
	wav, err := u.WAV(e.config.SampleRate)
	if err != nil {
		res.Result = pipeline.Result{Kind: pipeline.Failed, Reason: pipeline.InvalidAudio, Err: err}
		return res
	}
	res.Result = e.processor.Process(ctx, wav)
	return res
}

func (e *Engine) handleResult(ctx context.Context, l *loop, res turnResult) {
	e.addToHistory(ConversationEntry{
		UserInput:  res.Transcript,
		AIResponse: res.Answer,
		Kind:       res.Kind,
		Timestamp:  time.Now(),
	})

	attrs := []any{"kind", res.Kind.String(), "reason", res.Reason.String(), "utterance", res.utterance}
	switch res.Kind {
	case pipeline.Answered:
		e.logger.Info("turn answered", append(attrs, "transcript", res.Transcript)...)
	case pipeline.Fallback:
		e.logger.Warn("turn fell back", append(attrs, "error", res.Err)...)
	default:
		e.logger.Error("turn failed", append(attrs, "error", res.Err)...)
	}

	if !res.Playable() || ctx.Err() != nil {
		e.setMode(Listening)
		return
	}

	s, err := e.player.Play(ctx, res.Audio)
	if err != nil {
		e.logger.Warn("reply not playable", "error", err)
		e.setMode(Listening)
		return
	}
	l.session = s
	l.playbackDone = s.Done()
	e.setMode(Speaking)
}

func (e *Engine) setMode(m Mode) {
	e.mode.Store(int32(m))
}

// Mode returns the current mode.
func (e *Engine) Mode() Mode {
	return Mode(e.mode.Load())
}

// addToHistory adds a conversation entry to the history
func (e *Engine) addToHistory(entry ConversationEntry) {
	e.historyMutex.Lock()
	defer e.historyMutex.Unlock()

	e.history = append(e.history, entry)

	if len(e.history) > e.config.MaxHistorySize {
		e.history = e.history[len(e.history)-e.config.MaxHistorySize:]
	}
}

// GetHistory returns a copy of the conversation history
func (e *Engine) GetHistory() []ConversationEntry {
	e.historyMutex.RLock()
	defer e.historyMutex.RUnlock()

	history := make([]ConversationEntry, len(e.history))
	copy(history, e.history)
	return history
}

// ClearHistory clears the conversation history
func (e *Engine) ClearHistory() {
	e.historyMutex.Lock()
	defer e.historyMutex.Unlock()

	e.history = e.history[:0]
}

// IsRunning returns whether the engine is currently running
func (e *Engine) IsRunning() bool {
	e.runningMutex.Lock()
	defer e.runningMutex.Unlock()
	return e.isRunning
}

// Stop cancels a running Start and silences any reply in progress.
func (e *Engine) Stop() {
	e.runningMutex.Lock()
	cancel := e.cancel
	e.runningMutex.Unlock()

	if cancel != nil {
		cancel()
	}
	e.player.StopActive()
}
