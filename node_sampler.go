package cadence

import (
	"math"
	"sync"
)

// samplerRootNote is the note at which a sample plays back at its
// native rate; other notes scale the read speed by semitone distance.
const samplerRootNote = 72

// Sampler plays its sample resource polyphonically, pitched by the
// incoming note and scaled by velocity. Resampling is linear.
type Sampler struct {
	BaseNode

	mu      sync.Mutex
	tracker PolyVoiceTracker
	sample  ResourceHandle
}

func NewSampler() *Sampler {
	return &Sampler{tracker: NewPolyVoiceTracker()}
}

func (s *Sampler) Name() string          { return "Sampler" }
func (s *Sampler) Inputs() []BusKind     { return monoMidiBus }
func (s *Sampler) Outputs() []BusKind    { return monoAudioBus }
func (s *Sampler) InputNames() []string  { return []string{"in"} }
func (s *Sampler) OutputNames() []string { return []string{"out"} }

func (s *Sampler) ResourceSlots() []ResourceSlot {
	return []ResourceSlot{{Name: "sample", Kind: "AudioData"}}
}

func (s *Sampler) Resource(name string) ResourceHandle {
	if name != "sample" {
		panic("Sampler has no resource slot " + name)
	}
	return s.sample
}

func (s *Sampler) BindResource(name string, h ResourceHandle) {
	if name != "sample" {
		panic("Sampler has no resource slot " + name)
	}
	s.sample = h
}

func (s *Sampler) Render(_ int, buf BufferAccess, inst *NodeInstance, e *Engine) {
	guard, ok := inst.PollInput(0, buf.Len(), e)
	if !ok {
		return
	}
	defer guard.Release()

	midi := guard.Buffer().Midi()
	audio := buf.Audio()

	s.mu.Lock()
	defer s.mu.Unlock()

	s.sample.Read(func(r Resource) {
		data := r.(*AudioData)
		if len(data.Data) < 2 {
			return
		}

		rateScale := float64(data.SampleRate) / float64(e.Config.SampleRate)

		for i := range audio {
			if i < len(midi) {
				s.tracker.ApplyChain(&midi[i], uint64(i))
			}

			for _, voice := range s.tracker.Voices {
				ratio := NoteOffsetToPitchScale(float64(voice.Note)-samplerRootNote) * rateScale
				pos := float64(voice.Progress) * ratio

				j := int(pos)
				if j+1 >= len(data.Data) {
					voice.Progress++
					continue
				}

				t := float32(pos - math.Floor(pos))
				a, b := data.Data[j], data.Data[j+1]
				vel := float32(voice.Velocity) / 127.0

				audio[i][0] += lerp(a[0], b[0], t) * vel
				audio[i][1] += lerp(a[1], b[1], t) * vel

				voice.Progress++
			}
		}

		s.tracker.PurgeDeadVoices()
	})
}

// Seek drops every sounding voice; replaying from a new position
// starts from incoming note-ons only.
func (s *Sampler) Seek(_ uint64, _ *Config) {
	s.mu.Lock()
	s.tracker.KillAllVoices()
	s.mu.Unlock()
}
