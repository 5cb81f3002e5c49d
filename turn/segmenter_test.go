package turn

import (
	"testing"
	"time"

	"github.com/d1nch8g/voxloop/audio"
	"github.com/d1nch8g/voxloop/vad"
)

const frameSamples = 1600 // 100ms at 16 kHz

var epoch = time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)

func frameAt(i int, amplitude int16) audio.Frame {
	samples := make([]int16, frameSamples)
	for j := range samples {
		if j%2 == 0 {
			samples[j] = amplitude
		} else {
			samples[j] = -amplitude
		}
	}
	return audio.Frame{
		Samples:   samples,
		Timestamp: epoch.Add(time.Duration(i) * 100 * time.Millisecond),
	}
}

func newTestSegmenter(cfg Config) *Segmenter {
	cfg.SampleRate = 16000
	return NewSegmenter(cfg, vad.New(vad.DefaultThreshold))
}

func TestSegmenter_SilenceNeverStartsRecording(t *testing.T) {
	s := newTestSegmenter(Config{})
	for i := 0; i < 100; i++ {
		// 500/32768 is below the 0.02 threshold.
		if u, ok := s.Process(frameAt(i, 500)); ok || u != nil {
			t.Fatalf("frame %d emitted an utterance", i)
		}
		if s.State() != Idle {
			t.Fatalf("frame %d moved state to %v", i, s.State())
		}
	}
}

func TestSegmenter_SpeechThenSilenceEmitsOnce(t *testing.T) {
	s := newTestSegmenter(Config{})

	var emitted []*Utterance
	emittedAt := -1
	for i := 0; i < 40; i++ {
		amp := int16(0)
		if i < 20 {
			amp = 8000
		}
		if u, ok := s.Process(frameAt(i, amp)); ok {
			emitted = append(emitted, u)
			emittedAt = i
		}
	}

	if len(emitted) != 1 {
		t.Fatalf("emitted %d utterances, want 1", len(emitted))
	}
	// Silence starts at 2.0s and must exceed 1.5s, so 3.6s is the cutoff.
	if emittedAt != 36 {
		t.Fatalf("emitted on frame %d, want 36", emittedAt)
	}
	u := emitted[0]
	if !u.Finalized() {
		t.Fatal("utterance not finalized")
	}
	frames := u.Frames()
	if len(frames) != 36 {
		t.Fatalf("utterance has %d frames, want 36", len(frames))
	}
	if !u.Start().Equal(epoch) {
		t.Fatalf("utterance starts at %v, want %v", u.Start(), epoch)
	}
	if last := frames[len(frames)-1].Timestamp; !last.Equal(epoch.Add(3500 * time.Millisecond)) {
		t.Fatalf("last frame at %v, want 3.5s", last.Sub(epoch))
	}
	if got := u.Duration(16000); got != 3600*time.Millisecond {
		t.Fatalf("duration = %v, want 3.6s", got)
	}
	if u.Len() != 36*frameSamples*2 || len(u.PCM()) != u.Len() {
		t.Fatalf("len = %d, pcm = %d", u.Len(), len(u.PCM()))
	}
	if s.State() != Idle {
		t.Fatalf("state after emit = %v, want idle", s.State())
	}
}

func TestSegmenter_SpeechResetsSilenceTimer(t *testing.T) {
	s := newTestSegmenter(Config{})
	amps := []int16{8000, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 8000}
	for i, amp := range amps {
		if _, ok := s.Process(frameAt(i, amp)); ok {
			t.Fatalf("frame %d emitted before a full silence gap", i)
		}
	}
	// The timer restarted at frame 12; 1.5s later is frame 27, cut at 28.
	for i := 12; i < 28; i++ {
		if _, ok := s.Process(frameAt(i, 0)); ok {
			t.Fatalf("frame %d emitted early", i)
		}
	}
	if _, ok := s.Process(frameAt(28, 0)); !ok {
		t.Fatal("no utterance after the silence gap")
	}
}

func TestSegmenter_ShortUtteranceDiscarded(t *testing.T) {
	s := NewSegmenter(Config{SampleRate: 16000}, vad.New(vad.DefaultThreshold))

	// A single 200-sample blip is 400 bytes.
	blip := audio.Frame{Samples: make([]int16, 200), Timestamp: epoch}
	for i := range blip.Samples {
		blip.Samples[i] = 8000
	}
	s.Process(blip)
	if s.State() != Recording {
		t.Fatalf("state = %v, want recording", s.State())
	}
	s.Process(audio.Frame{Timestamp: epoch.Add(time.Second)})
	u, ok := s.Process(audio.Frame{Timestamp: epoch.Add(3 * time.Second)})
	if ok || u != nil {
		t.Fatal("short utterance was forwarded")
	}
	if s.Discarded() != 1 {
		t.Fatalf("discarded = %d, want 1", s.Discarded())
	}
	if s.State() != Idle {
		t.Fatalf("state = %v, want idle", s.State())
	}
}

func TestSegmenter_MaxDuration(t *testing.T) {
	s := newTestSegmenter(Config{MaxDuration: time.Second})
	for i := 0; i < 9; i++ {
		if _, ok := s.Process(frameAt(i, 8000)); ok {
			t.Fatalf("frame %d emitted before the cap", i)
		}
	}
	u, ok := s.Process(frameAt(9, 8000))
	if !ok {
		t.Fatal("no utterance at the duration cap")
	}
	if got := u.Duration(16000); got != time.Second {
		t.Fatalf("duration = %v, want 1s", got)
	}
}

func TestSegmenter_BeginSeedsUtterance(t *testing.T) {
	s := newTestSegmenter(Config{})
	trigger := frameAt(0, 20000)
	s.Begin(trigger)
	if s.State() != Recording {
		t.Fatalf("state = %v, want recording", s.State())
	}

	var u *Utterance
	for i := 1; i < 30 && u == nil; i++ {
		amp := int16(0)
		if i < 5 {
			amp = 8000
		}
		u, _ = s.Process(frameAt(i, amp))
	}
	if u == nil {
		t.Fatal("no utterance emitted")
	}
	if got := u.Frames()[0]; got.Samples[0] != 20000 {
		t.Fatalf("first sample = %d, want the barge-in frame", got.Samples[0])
	}
}

func TestSegmenter_Reset(t *testing.T) {
	s := newTestSegmenter(Config{})
	s.Process(frameAt(0, 8000))
	s.Reset()
	if s.State() != Idle {
		t.Fatalf("state = %v, want idle", s.State())
	}
	if u, ok := s.Process(frameAt(1, 0)); ok || u != nil {
		t.Fatal("reset segmenter emitted an utterance")
	}
}
