package cadence

// MidiClip replays a MidiBlock resource from its timeline position:
// each note turns into a NoteOn at the frame where the timeline first
// reaches its start and a NoteOff where it first reaches its end.
type MidiClip struct {
	BaseNode
	playbackPos uint64
	data        ResourceHandle
}

func (c *MidiClip) Name() string          { return "MIDI Clip" }
func (c *MidiClip) Outputs() []BusKind    { return monoMidiBus }
func (c *MidiClip) OutputNames() []string { return []string{"out"} }
func (c *MidiClip) IsTimelineNode() bool  { return true }

func (c *MidiClip) ResourceSlots() []ResourceSlot {
	return []ResourceSlot{{Name: "data", Kind: "MidiBlock"}}
}

func (c *MidiClip) Resource(name string) ResourceHandle {
	if name != "data" {
		panic("MIDI Clip has no resource slot " + name)
	}
	return c.data
}

func (c *MidiClip) BindResource(name string, h ResourceHandle) {
	if name != "data" {
		panic("MIDI Clip has no resource slot " + name)
	}
	c.data = h
}

// TimelineLength is the block's largest note end; an unbound handle
// reports zero, making the clip's span empty.
func (c *MidiClip) TimelineLength(_ *Config) TlUnit {
	var length TlUnit
	c.data.Read(func(r Resource) {
		length = r.(*MidiBlock).Length()
	})
	return length
}

func (c *MidiClip) Render(_ int, buf BufferAccess, inst *NodeInstance, e *Engine) {
	out := buf.Midi()
	position := inst.TimelineTransform().Position

	c.data.Read(func(r Resource) {
		block := r.(*MidiBlock)

		for i := range out {
			samplePos := c.playbackPos + uint64(i)
			tlPos := e.Config.FramesToTl(samplePos)

			prevTlPos := TlUnit(0)
			if samplePos > 0 {
				prevTlPos = e.Config.FramesToTl(samplePos - 1)
			}

			for channel := range block.Channels {
				for _, note := range block.Channels[channel] {
					notePos := note.Pos + position
					noteEnd := notePos + note.Len

					if tlPos >= notePos && (samplePos == 0 || prevTlPos < notePos) {
						out[i].Push(NewNoteOn(uint8(channel), note.Note, note.Vel))
					} else if tlPos >= noteEnd && prevTlPos < noteEnd && note.Len > 0 {
						out[i].Push(NewNoteOff(uint8(channel), note.Note, note.Vel))
					}
				}
			}
		}
	})
}

func (c *MidiClip) Advance(frames int, _ *Config) {
	c.playbackPos += uint64(frames)
}

func (c *MidiClip) Seek(position uint64, _ *Config) {
	c.playbackPos = position
}

// AudioClip plays an AudioData resource once, starting at its timeline
// position, with the start/end offsets trimming the sample.
type AudioClip struct {
	BaseNode
	playbackPos uint64
	sample      ResourceHandle
}

func (c *AudioClip) Name() string          { return "Audio Clip" }
func (c *AudioClip) Outputs() []BusKind    { return monoAudioBus }
func (c *AudioClip) OutputNames() []string { return []string{"out"} }
func (c *AudioClip) IsTimelineNode() bool  { return true }

func (c *AudioClip) ResourceSlots() []ResourceSlot {
	return []ResourceSlot{{Name: "sample", Kind: "AudioData"}}
}

func (c *AudioClip) Resource(name string) ResourceHandle {
	if name != "sample" {
		panic("Audio Clip has no resource slot " + name)
	}
	return c.sample
}

func (c *AudioClip) BindResource(name string, h ResourceHandle) {
	if name != "sample" {
		panic("Audio Clip has no resource slot " + name)
	}
	c.sample = h
}

func (c *AudioClip) TimelineLength(cfg *Config) TlUnit {
	var length TlUnit
	c.sample.Read(func(r Resource) {
		length = cfg.FramesToTl(uint64(len(r.(*AudioData).Data)))
	})
	return length
}

func (c *AudioClip) Render(_ int, buf BufferAccess, inst *NodeInstance, e *Engine) {
	audio := buf.Audio()
	tf := inst.TimelineTransform()

	c.sample.Read(func(r Resource) {
		data := r.(*AudioData).Data

		start := e.Config.TlToFrames(tf.Position)
		startOffset := e.Config.TlToFrames(tf.StartOffset)
		endOffset := e.Config.TlToFrames(tf.EndOffset)

		span := uint64(len(data))
		if trimmed := startOffset + endOffset; span > trimmed {
			span -= trimmed
		} else {
			return
		}

		for i := range audio {
			framePos := c.playbackPos + uint64(i)
			if framePos < start || framePos >= start+span {
				continue
			}

			frame := data[framePos-start+startOffset]
			audio[i] = audio[i].Add(frame)
		}
	})
}

func (c *AudioClip) Advance(frames int, _ *Config) {
	c.playbackPos += uint64(frames)
}

func (c *AudioClip) Seek(position uint64, _ *Config) {
	c.playbackPos = position
}
