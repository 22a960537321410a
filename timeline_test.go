package cadence

import (
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
)

func TestTlToFramesExact(t *testing.T) {
	cfg := Config{SampleRate: 48000, BPM: 120, Tuning: 440}

	cases := []struct {
		ticks  TlUnit
		frames uint64
	}{
		{0, 0},
		{TicksPerBeat, 24000},     // one beat at 120 bpm is half a second
		{TicksPerBeat * 4, 96000}, // one bar
		{TicksPerBeat / 2, 12000},
		{1, 250},
	}

	for _, tc := range cases {
		if got := cfg.TlToFrames(tc.ticks); got != tc.frames {
			t.Fatalf("TlToFrames(%d): want %d got %d", tc.ticks, tc.frames, got)
		}
	}
}

func TestFramesToTlExact(t *testing.T) {
	cfg := Config{SampleRate: 48000, BPM: 120, Tuning: 440}

	if got := cfg.FramesToTl(24000); got != TicksPerBeat {
		t.Fatalf("FramesToTl(24000): want %d got %d", TicksPerBeat, got)
	}

	if got := cfg.FramesToTl(0); got != 0 {
		t.Fatalf("FramesToTl(0): want 0 got %d", got)
	}

	// One frame short of a tick boundary truncates down.
	if got := cfg.FramesToTl(249); got != 0 {
		t.Fatalf("FramesToTl(249): want 0 got %d", got)
	}
}

func TestTimelineRoundTripProperties(t *testing.T) {
	cfg := Config{SampleRate: 48000, BPM: 120, Tuning: 440}

	params := gopter.DefaultTestParameters()
	params.MinSuccessfulTests = 200
	properties := gopter.NewProperties(params)

	properties.Property("ticks→frames→ticks is a contraction within one tick",
		prop.ForAll(
			func(ticks uint64) bool {
				u := TlUnit(ticks)
				back := cfg.FramesToTl(cfg.TlToFrames(u))

				var diff TlUnit
				if back > u {
					diff = back - u
				} else {
					diff = u - back
				}
				return diff <= 1
			},
			gen.UInt64Range(0, 1<<32),
		))

	properties.Property("quantized positions survive the round trip",
		prop.ForAll(
			func(beats uint64) bool {
				u := TlUnit(beats * TicksPerBeat)
				return cfg.FramesToTl(cfg.TlToFrames(u)) == u
			},
			gen.UInt64Range(0, 1<<24),
		))

	properties.Property("conversions are monotonic",
		prop.ForAll(
			func(a, b uint64) bool {
				if a > b {
					a, b = b, a
				}
				return cfg.TlToFrames(TlUnit(a)) <= cfg.TlToFrames(TlUnit(b))
			},
			gen.UInt64Range(0, 1<<32),
			gen.UInt64Range(0, 1<<32),
		))

	properties.TestingRun(t)
}

func TestMidiNoteToFreq(t *testing.T) {
	cfg := Config{SampleRate: 48000, BPM: 120, Tuning: 440}

	if got := cfg.MidiNoteToFreq(69); got != 440 {
		t.Fatalf("note 69: want 440 got %v", got)
	}

	if got := cfg.MidiNoteToFreq(81); got < 879.99 || got > 880.01 {
		t.Fatalf("note 81: want ~880 got %v", got)
	}

	cfg.Tuning = 432
	if got := cfg.MidiNoteToFreq(69); got != 432 {
		t.Fatalf("note 69 at 432 tuning: want 432 got %v", got)
	}
}

// The dB conversion uses 10^(dB/10); project files written under that
// convention depend on it.
func TestDBToFactorConvention(t *testing.T) {
	if got := DBToFactor(10); got < 9.999 || got > 10.001 {
		t.Fatalf("10 dB: want factor 10 got %v", got)
	}

	if got := DBToFactor(0); got != 1 {
		t.Fatalf("0 dB: want factor 1 got %v", got)
	}

	if got := DBToFactor(-10); got < 0.0999 || got > 0.1001 {
		t.Fatalf("-10 dB: want factor 0.1 got %v", got)
	}
}

func TestResolveBufferSize(t *testing.T) {
	if got := ResolveBufferSize(LatencyLow, 48000); got != 64 {
		t.Fatalf("low/48k: want 64 got %d", got)
	}
	if got := ResolveBufferSize(LatencyLow, 96000); got != 128 {
		t.Fatalf("low/96k: want 128 got %d", got)
	}
	if got := ResolveBufferSize(LatencyHigh, 48000); got != 1024 {
		t.Fatalf("high: want 1024 got %d", got)
	}
	if got := ResolveBufferSize(LatencyMedium, 48000); got != 256 {
		t.Fatalf("medium: want 256 got %d", got)
	}
}
