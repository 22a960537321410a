package cadence

// Voice is one sounding note: where it is in its life (Progress, in
// frames since note-on) and whether it has entered its release tail.
type Voice struct {
	Note         uint8
	Channel      uint8
	Velocity     uint8
	Progress     uint64
	ReleasePoint uint64
	Released     bool
}

// VoiceKey identifies a voice inside a polyphonic tracker.
type VoiceKey struct {
	Channel uint8
	Note    uint8
}

// MonoVoiceTracker keeps at most one active voice. A new note-on
// replaces the current voice; note-off (or note-on with velocity 0)
// either drops it or, with a nonzero ReleaseLength, starts its release
// tail. ZeroCrossing is a retrigger hint preserved for hosts.
type MonoVoiceTracker struct {
	Voice         *Voice
	ReleaseLength uint64
	ZeroCrossing  bool
}

func NewMonoVoiceTracker() MonoVoiceTracker {
	return MonoVoiceTracker{ZeroCrossing: true}
}

// ApplyChain feeds every message of one frame's chain to the tracker.
// bufferProgress is the frame's offset inside the current render call.
func (t *MonoVoiceTracker) ApplyChain(chain *MessageChain, bufferProgress uint64) {
	for i := 0; i < chain.Len(); i++ {
		t.ApplyMessage(chain.At(i), bufferProgress)
	}
}

func (t *MonoVoiceTracker) ApplyMessage(msg Message, bufferProgress uint64) {
	switch msg.Code() {
	case StatusNoteOn:
		if msg.Data2() != 0 {
			t.Voice = &Voice{
				Note:     msg.Data1(),
				Channel:  msg.Channel(),
				Velocity: msg.Data2(),
			}
		} else {
			t.ReleaseVoice(msg.Channel(), msg.Data1(), bufferProgress)
		}

	case StatusNoteOff:
		t.ReleaseVoice(msg.Channel(), msg.Data1(), bufferProgress)
	}
}

func (t *MonoVoiceTracker) ReleaseVoice(channel, note uint8, bufferProgress uint64) {
	active := t.Voice
	if active == nil || active.Note != note || active.Channel != channel {
		return
	}

	if t.ReleaseLength == 0 {
		t.Voice = nil
		return
	}

	active.Released = true
	active.ReleasePoint = active.Progress + bufferProgress
}

// Advance moves the voice forward and drops it once its release tail
// has fully elapsed.
func (t *MonoVoiceTracker) Advance(samples uint64) {
	if t.Voice == nil {
		return
	}
	t.Voice.Progress += samples
	t.PurgeDeadVoices()
}

func (t *MonoVoiceTracker) PurgeDeadVoices() {
	v := t.Voice
	if v != nil && v.Released && v.Progress-v.ReleasePoint >= t.ReleaseLength {
		t.Voice = nil
	}
}

// PolyVoiceTracker keys voices by (channel, note). Polyphony caps the
// number of simultaneous voices; zero means unlimited.
type PolyVoiceTracker struct {
	Voices        map[VoiceKey]*Voice
	Polyphony     int
	ReleaseLength uint64
	ZeroCrossing  bool
}

func NewPolyVoiceTracker() PolyVoiceTracker {
	return PolyVoiceTracker{
		Voices:       make(map[VoiceKey]*Voice),
		ZeroCrossing: true,
	}
}

func (t *PolyVoiceTracker) ApplyChain(chain *MessageChain, bufferProgress uint64) {
	for i := 0; i < chain.Len(); i++ {
		t.ApplyMessage(chain.At(i), bufferProgress)
	}
}

func (t *PolyVoiceTracker) ApplyMessage(msg Message, bufferProgress uint64) {
	switch msg.Code() {
	case StatusNoteOn:
		if msg.Data2() != 0 {
			if t.Polyphony != 0 && len(t.Voices) >= t.Polyphony {
				if _, replacing := t.Voices[VoiceKey{msg.Channel(), msg.Data1()}]; !replacing {
					return
				}
			}

			t.Voices[VoiceKey{msg.Channel(), msg.Data1()}] = &Voice{
				Note:     msg.Data1(),
				Channel:  msg.Channel(),
				Velocity: msg.Data2(),
			}
		} else {
			t.ReleaseVoice(msg.Channel(), msg.Data1(), bufferProgress)
		}

	case StatusNoteOff:
		t.ReleaseVoice(msg.Channel(), msg.Data1(), bufferProgress)
	}
}

func (t *PolyVoiceTracker) ReleaseVoice(channel, note uint8, bufferProgress uint64) {
	key := VoiceKey{channel, note}

	if t.ReleaseLength == 0 {
		delete(t.Voices, key)
		return
	}

	voice, ok := t.Voices[key]
	if !ok {
		return
	}

	voice.Released = true
	voice.ReleasePoint = voice.Progress + bufferProgress
}

func (t *PolyVoiceTracker) Advance(samples uint64) {
	for _, voice := range t.Voices {
		voice.Progress += samples
	}
	t.PurgeDeadVoices()
}

func (t *PolyVoiceTracker) PurgeDeadVoices() {
	for key, voice := range t.Voices {
		if voice.Released && voice.Progress-voice.ReleasePoint >= t.ReleaseLength {
			delete(t.Voices, key)
		}
	}
}

// KillAllVoices drops every voice immediately, release tails included.
func (t *PolyVoiceTracker) KillAllVoices() {
	clear(t.Voices)
}
