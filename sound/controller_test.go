package sound

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/d1nch8g/voxloop/audio"
)

type fakeOutput struct {
	mu      sync.Mutex
	opened  []Format
	writes  int
	samples int
	closes  int
	openErr error

	// gate, when set, blocks every Write until it receives a value.
	gate chan struct{}
}

func (f *fakeOutput) Initialize() error { return nil }
func (f *fakeOutput) Terminate() {}

func (f *fakeOutput) Open(format Format) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.openErr != nil {
		return f.openErr
	}
	f.opened = append(f.opened, format)
	return nil
}

func (f *fakeOutput) Write(samples []int16) error {
	if f.gate != nil {
		<-f.gate
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.writes++
	f.samples += len(samples)
	return nil
}

func (f *fakeOutput) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closes++
	return nil
}

func (f *fakeOutput) stats() (writes, samples, closes int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.writes, f.samples, f.closes
}

func reply(t *testing.T, samples int) []byte {
	t.Helper()
	payload, err := audio.EncodeWAV(make([]int16, samples), 16000)
	if err != nil {
		t.Fatalf("EncodeWAV: %v", err)
	}
	return payload
}

func waitDone(t *testing.T, s *Session) {
	t.Helper()
	select {
	case <-s.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("session did not finish")
	}
}

func TestController_PlaysToCompletion(t *testing.T) {
	out := &fakeOutput{}
	c := NewController(out, Config{FramesPerBuffer: 1000})

	s, err := c.Play(context.Background(), reply(t, 2500))
	if err != nil {
		t.Fatalf("Play: %v", err)
	}
	if s.Length() != 156250*time.Microsecond {
		t.Fatalf("length = %v", s.Length())
	}
	waitDone(t, s)

	if s.Outcome() != Completed || s.Err() != nil {
		t.Fatalf("outcome = %v, err = %v", s.Outcome(), s.Err())
	}
	writes, samples, closes := out.stats()
	if writes != 3 || samples != 2500 || closes != 1 {
		t.Fatalf("writes = %d, samples = %d, closes = %d", writes, samples, closes)
	}
	if out.opened[0] != (Format{SampleRate: 16000, Channels: 1}) {
		t.Fatalf("opened with %+v", out.opened[0])
	}
	if c.IsPlaying() {
		t.Fatal("still playing after completion")
	}
}

func TestController_CancelStopsAtBufferBoundary(t *testing.T) {
	out := &fakeOutput{gate: make(chan struct{})}
	c := NewController(out, Config{FramesPerBuffer: 100})

	s, err := c.Play(context.Background(), reply(t, 10000))
	if err != nil {
		t.Fatalf("Play: %v", err)
	}
	out.gate <- struct{}{}

	if !c.IsPlaying() {
		t.Fatal("not playing after first buffer")
	}
	c.Cancel(s)
	if c.IsPlaying() {
		t.Fatal("IsPlaying true right after Cancel")
	}
	c.Cancel(s)

	close(out.gate)
	waitDone(t, s)

	if s.Outcome() != Cancelled {
		t.Fatalf("outcome = %v, want cancelled", s.Outcome())
	}
	if writes, _, closes := out.stats(); writes > 2 || closes != 1 {
		t.Fatalf("writes = %d, closes = %d after cancel", writes, closes)
	}
}

func TestController_NewReplyCancelsPrevious(t *testing.T) {
	out := &fakeOutput{gate: make(chan struct{})}
	c := NewController(out, Config{FramesPerBuffer: 100})

	first, err := c.Play(context.Background(), reply(t, 10000))
	if err != nil {
		t.Fatalf("Play: %v", err)
	}
	second, err := c.Play(context.Background(), reply(t, 100))
	if err != nil {
		t.Fatalf("Play: %v", err)
	}
	close(out.gate)

	waitDone(t, first)
	waitDone(t, second)
	if first.Outcome() != Cancelled {
		t.Fatalf("first outcome = %v, want cancelled", first.Outcome())
	}
	if second.Outcome() != Completed {
		t.Fatalf("second outcome = %v, want completed", second.Outcome())
	}
}

func TestController_StopActive(t *testing.T) {
	out := &fakeOutput{gate: make(chan struct{})}
	c := NewController(out, Config{FramesPerBuffer: 100})

	if c.StopActive() {
		t.Fatal("StopActive reported a session while idle")
	}
	s, err := c.Play(context.Background(), reply(t, 1000))
	if err != nil {
		t.Fatalf("Play: %v", err)
	}
	if !c.StopActive() {
		t.Fatal("StopActive found nothing to stop")
	}
	if c.StopActive() {
		t.Fatal("second StopActive reported a session")
	}
	close(out.gate)
	waitDone(t, s)
	if s.Outcome() != Cancelled {
		t.Fatalf("outcome = %v, want cancelled", s.Outcome())
	}
}

func TestController_DeviceFailure(t *testing.T) {
	out := &fakeOutput{openErr: audio.ErrDevice}
	c := NewController(out, Config{})

	s, err := c.Play(context.Background(), reply(t, 1000))
	if err != nil {
		t.Fatalf("Play: %v", err)
	}
	waitDone(t, s)
	if s.Outcome() != Failed || !errors.Is(s.Err(), audio.ErrDevice) {
		t.Fatalf("outcome = %v, err = %v", s.Outcome(), s.Err())
	}
	if c.IsPlaying() {
		t.Fatal("still playing after device failure")
	}
}

func TestController_RejectsUndecodablePayload(t *testing.T) {
	c := NewController(&fakeOutput{}, Config{})
	s, err := c.Play(context.Background(), []byte("garbage"))
	if !errors.Is(err, audio.ErrUnsupportedFormat) || s != nil {
		t.Fatalf("session = %v, err = %v", s, err)
	}
	if c.IsPlaying() {
		t.Fatal("playing after rejected payload")
	}
}
