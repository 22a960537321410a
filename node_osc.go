package cadence

import (
	"math"
	"sync"
)

// Sine is a free-running sine oscillator at a fixed frequency,
// phase-locked to the transport sample counter.
type Sine struct {
	BaseNode
	pos  uint64
	rate float64
}

func NewSine(rate float64) *Sine {
	return &Sine{rate: rate}
}

func (s *Sine) Name() string          { return "Sine" }
func (s *Sine) Outputs() []BusKind    { return monoAudioBus }
func (s *Sine) OutputNames() []string { return []string{"out"} }

func (s *Sine) Params() []Parameter {
	return []Parameter{{Kind: ParamFloat, Name: "freq"}}
}

func (s *Sine) ParamDefault(int) (ParamValue, bool) {
	return FloatValue(440.0), true
}

func (s *Sine) ParamUpdated(_ int, value ParamValue) {
	s.rate = value.Float()
}

func (s *Sine) Render(_ int, buf BufferAccess, _ *NodeInstance, e *Engine) {
	audio := buf.Audio()

	for i := range audio {
		t := float64(s.pos+uint64(i)) / float64(e.Config.SampleRate)
		v := float32(math.Sin(2 * math.Pi * t * s.rate))
		audio[i] = Frame{v, v}
	}
}

func (s *Sine) Advance(frames int, _ *Config) {
	s.pos += uint64(frames)
}

func (s *Sine) Seek(position uint64, _ *Config) {
	s.pos = position
}

// Osc is a monophonic MIDI-driven sine voice: the newest note wins and
// plays until released.
type Osc struct {
	BaseNode
	pos uint64

	// Touched only on the render thread; the lock makes the
	// take-and-return explicit for hosts poking at voices.
	mu      sync.Mutex
	tracker MonoVoiceTracker
}

func NewOsc() *Osc {
	return &Osc{tracker: NewMonoVoiceTracker()}
}

func (o *Osc) Name() string          { return "Osc" }
func (o *Osc) Inputs() []BusKind     { return monoMidiBus }
func (o *Osc) Outputs() []BusKind    { return monoAudioBus }
func (o *Osc) InputNames() []string  { return []string{"in"} }
func (o *Osc) OutputNames() []string { return []string{"out"} }

func (o *Osc) Render(_ int, buf BufferAccess, inst *NodeInstance, e *Engine) {
	guard, ok := inst.PollInput(0, buf.Len(), e)
	if !ok {
		return
	}
	defer guard.Release()

	midi := guard.Buffer().Midi()
	audio := buf.Audio()

	o.mu.Lock()
	defer o.mu.Unlock()

	for i := range audio {
		if i < len(midi) {
			o.tracker.ApplyChain(&midi[i], uint64(i))
		}

		voice := o.tracker.Voice
		if voice == nil {
			continue
		}

		t := float64(voice.Progress) / float64(e.Config.SampleRate)
		freq := e.Config.MidiNoteToFreq(voice.Note)
		vel := float32(voice.Velocity) / 127.0

		v := float32(math.Sin(2*math.Pi*t*freq)) * vel
		audio[i][0] += v
		audio[i][1] += v

		voice.Progress++
	}

	o.tracker.PurgeDeadVoices()
}

func (o *Osc) Advance(frames int, _ *Config) {
	o.pos += uint64(frames)
}

func (o *Osc) Seek(position uint64, _ *Config) {
	o.pos = position
}

// PolyOsc is the polyphonic variant of Osc: one sine voice per held
// (channel, note). Seeking kills all voices.
type PolyOsc struct {
	BaseNode
	pos uint64

	mu      sync.Mutex
	tracker PolyVoiceTracker
}

func NewPolyOsc() *PolyOsc {
	return &PolyOsc{tracker: NewPolyVoiceTracker()}
}

func (o *PolyOsc) Name() string          { return "PolyOsc" }
func (o *PolyOsc) Inputs() []BusKind     { return monoMidiBus }
func (o *PolyOsc) Outputs() []BusKind    { return monoAudioBus }
func (o *PolyOsc) InputNames() []string  { return []string{"in"} }
func (o *PolyOsc) OutputNames() []string { return []string{"out"} }

func (o *PolyOsc) Render(_ int, buf BufferAccess, inst *NodeInstance, e *Engine) {
	guard, ok := inst.PollInput(0, buf.Len(), e)
	if !ok {
		return
	}
	defer guard.Release()

	midi := guard.Buffer().Midi()
	audio := buf.Audio()

	o.mu.Lock()
	defer o.mu.Unlock()

	for i := range audio {
		if i < len(midi) {
			o.tracker.ApplyChain(&midi[i], uint64(i))
		}

		for _, voice := range o.tracker.Voices {
			t := float64(voice.Progress) / float64(e.Config.SampleRate)
			freq := e.Config.MidiNoteToFreq(voice.Note)
			vel := float32(voice.Velocity) / 127.0

			v := float32(math.Sin(2*math.Pi*t*freq)) * vel
			audio[i][0] += v
			audio[i][1] += v

			voice.Progress++
		}
	}

	o.tracker.PurgeDeadVoices()
}

func (o *PolyOsc) Advance(frames int, _ *Config) {
	o.pos += uint64(frames)
}

func (o *PolyOsc) Seek(position uint64, _ *Config) {
	o.pos = position

	o.mu.Lock()
	o.tracker.KillAllVoices()
	o.mu.Unlock()
}
