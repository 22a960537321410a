package cadence

import "math"

// Timeline resolution: a beat divides into BeatDivisions steps of
// StepDivisions ticks each, so TicksPerBeat timeline units per beat.
const (
	BeatDivisions = 24
	StepDivisions = 4
	TicksPerBeat  = BeatDivisions * StepDivisions
)

// TlUnit is a position or length on the timeline, in ticks.
type TlUnit uint64

// Config holds the engine-wide playback parameters. Tuning is the
// reference pitch in Hz for MIDI note 69 (A4).
type Config struct {
	SampleRate uint32
	BPM        float64
	Tuning     float32
}

func (c *Config) BeatsPerSec() float64 {
	return c.BPM / 60.0
}

func (c *Config) SecsPerBeat() float64 {
	return 1.0 / c.BeatsPerSec()
}

// TlToFrames converts a timeline position to a frame count, truncating
// to the containing frame.
func (c *Config) TlToFrames(u TlUnit) uint64 {
	beat := float64(u) / TicksPerBeat
	return uint64(beat * c.SecsPerBeat() * float64(c.SampleRate))
}

// FramesToTl converts a frame count to timeline ticks, truncating to
// the containing tick.
func (c *Config) FramesToTl(frames uint64) TlUnit {
	beat := float64(frames) / float64(c.SampleRate) / c.SecsPerBeat()
	return TlUnit(beat * TicksPerBeat)
}

// MidiNoteToFreq returns the frequency of a MIDI note number under the
// configured tuning.
func (c *Config) MidiNoteToFreq(note uint8) float64 {
	return math.Pow(2, (float64(note)-69.0)/12.0) * float64(c.Tuning)
}

// NoteOffsetToPitchScale returns the playback-rate factor for a
// semitone offset.
func NoteOffsetToPitchScale(offset float64) float64 {
	return math.Pow(2, offset/12.0)
}

// DBToFactor converts decibels to an amplitude factor. The engine's
// convention is 10^(dB/10).
func DBToFactor(db float32) float32 {
	return float32(math.Pow(10, float64(db)/10.0))
}

func lerp(a, b, t float32) float32 {
	return (1.0-t)*a + b*t
}

func inverseLerp(a, b, v float32) float32 {
	return (v - a) / (b - a)
}

// LatencyClass is a coarse latency preference that maps to host buffer
// sizes.
type LatencyClass string

const (
	LatencyLow    LatencyClass = "low"
	LatencyMedium LatencyClass = "medium"
	LatencyHigh   LatencyClass = "high"
)

// ResolveBufferSize maps a latency preference to a buffer size in
// frames. Low latency prefers 64 frames at rates up to 48kHz and
// scales to 128 above; high latency prioritizes stability.
func ResolveBufferSize(hint LatencyClass, sampleRate uint32) int {
	switch hint {
	case LatencyLow:
		if sampleRate <= 48000 {
			return 64
		}
		return 128
	case LatencyHigh:
		return 1024
	default:
		return 256
	}
}
