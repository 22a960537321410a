package cadence

import (
	"encoding/binary"
	"fmt"

	gomidi "gitlab.com/gomidi/midi/v2"
)

const (
	midiCodeMask    = 0xF0
	midiChannelMask = 0x0F
)

// MIDI status codes (upper nibble of the status byte).
const (
	StatusNoteOff         = 0x80
	StatusNoteOn          = 0x90
	StatusPolyKeyPressure = 0xA0
	StatusCtrlChange      = 0xB0
	StatusChannelPressure = 0xD0
	StatusPitchBendChange = 0xE0
)

// Message is one three-byte channel-voice MIDI message: status, data1,
// data2. Construction goes through gomidi so the wire encoding has a
// single source of truth.
type Message [3]byte

func messageFromWire(raw []byte) Message {
	var m Message
	copy(m[:], raw)
	return m
}

// NewNoteOn builds a note-on message.
func NewNoteOn(channel, note, velocity uint8) Message {
	return messageFromWire(gomidi.NoteOn(channel, note, velocity))
}

// NewNoteOff builds a note-off message carrying a release velocity.
func NewNoteOff(channel, note, velocity uint8) Message {
	return messageFromWire(gomidi.NoteOffVelocity(channel, note, velocity))
}

// NewControlChange builds a controller-change message.
func NewControlChange(channel, controller, value uint8) Message {
	return messageFromWire(gomidi.ControlChange(channel, controller, value))
}

// NewMessage assembles a message from a raw status byte and two data
// bytes, as received from an external port.
func NewMessage(status, data1, data2 uint8) Message {
	return Message{status, data1, data2}
}

func (m Message) Status() uint8  { return m[0] }
func (m Message) Code() uint8    { return m[0] & midiCodeMask }
func (m Message) Channel() uint8 { return m[0] & midiChannelMask }
func (m Message) Data1() uint8   { return m[1] }
func (m Message) Data2() uint8   { return m[2] }

// WithChannel returns the message rewritten to the given channel.
func (m Message) WithChannel(channel uint8) Message {
	return Message{m[0]&midiCodeMask | channel&midiChannelMask, m[1], m[2]}
}

func (m Message) String() string {
	return gomidi.Message(m[:]).String()
}

// MidiNote is one note event inside a MidiBlock channel.
type MidiNote struct {
	Pos  TlUnit
	Len  TlUnit
	Note uint8
	Vel  uint8
}

// MidiBlock is a sixteen-channel bank of timeline-positioned notes,
// shared between clip nodes through a resource handle.
type MidiBlock struct {
	Channels [16][]MidiNote
}

func (b *MidiBlock) Kind() string { return "MidiBlock" }

func (b *MidiBlock) ApplyAction(action string, args []ParamValue) {
	if len(args) == 0 || args[0].Kind() != ParamInt {
		return
	}

	channel := int(args[0].Int())
	args = args[1:]

	switch action {
	case "add_note":
		if len(args) != 4 {
			panic(fmt.Sprintf("add_note expects 4 arguments, got %d", len(args)))
		}

		b.Channels[channel] = append(b.Channels[channel], MidiNote{
			Note: uint8(args[0].Int()),
			Len:  TlUnit(args[1].Int()),
			Pos:  TlUnit(args[2].Int()),
			Vel:  uint8(args[3].Int()),
		})

	case "update_note":
		if len(args) != 5 {
			panic(fmt.Sprintf("update_note expects 5 arguments, got %d", len(args)))
		}

		note := &b.Channels[channel][args[0].Int()]
		note.Note = uint8(args[1].Int())
		note.Len = TlUnit(args[2].Int())
		note.Pos = TlUnit(args[3].Int())
		note.Vel = uint8(args[4].Int())

	case "remove_note":
		if len(args) != 1 {
			panic("remove_note expects 1 argument")
		}

		idx := args[0].Int()
		b.Channels[channel] = append(b.Channels[channel][:idx], b.Channels[channel][idx+1:]...)

	default:
		panic(fmt.Sprintf("unknown MidiBlock action %q", action))
	}
}

func (b *MidiBlock) Get(keys []ParamValue) (ParamValue, bool) {
	if len(keys) == 0 || keys[0].Kind() != ParamString {
		return ParamValue{}, false
	}

	request := keys[0].Str()
	args := keys[1:]

	switch request {
	case "get_note_pos", "get_note_len", "get_note_value", "get_note_vel":
		if len(args) != 2 {
			return ParamValue{}, false
		}

		channel := b.Channels[args[0].Int()]
		idx := int(args[1].Int())

		if idx < 0 || idx >= len(channel) {
			return ParamValue{}, false
		}

		note := channel[idx]

		switch request {
		case "get_note_pos":
			return IntValue(int64(note.Pos)), true
		case "get_note_len":
			return IntValue(int64(note.Len)), true
		case "get_note_value":
			return IntValue(int64(note.Note)), true
		default:
			return IntValue(int64(note.Vel)), true
		}

	case "get_channel_note_count":
		if len(args) != 1 {
			return ParamValue{}, false
		}
		return IntValue(int64(len(b.Channels[args[0].Int()]))), true

	default:
		return ParamValue{}, false
	}
}

// Length returns the block's timeline extent: the largest note end
// position across all channels.
func (b *MidiBlock) Length() TlUnit {
	var length TlUnit

	for ch := range b.Channels {
		for _, note := range b.Channels[ch] {
			if end := note.Pos + note.Len; end > length {
				length = end
			}
		}
	}

	return length
}

// Save encodes the block as a concatenation of per-non-empty-channel
// records: channel byte, note count (u64), then per-note pos, len
// (u64 each), note and velocity bytes.
func (b *MidiBlock) Save() []byte {
	var out []byte

	for ch := range b.Channels {
		notes := b.Channels[ch]
		if len(notes) == 0 {
			continue
		}

		out = append(out, byte(ch))
		out = binary.NativeEndian.AppendUint64(out, uint64(len(notes)))

		for _, note := range notes {
			out = binary.NativeEndian.AppendUint64(out, uint64(note.Pos))
			out = binary.NativeEndian.AppendUint64(out, uint64(note.Len))
			out = append(out, note.Note, note.Vel)
		}
	}

	return out
}

func (b *MidiBlock) Load(data []byte) error {
	*b = MidiBlock{}

	i := 0
	for i < len(data) {
		if len(data)-i < 9 {
			return fmt.Errorf("truncated MidiBlock channel header at byte %d", i)
		}

		channel := int(data[i])
		if channel >= len(b.Channels) {
			return fmt.Errorf("MidiBlock channel %d out of range", channel)
		}
		i++

		count := binary.NativeEndian.Uint64(data[i:])
		i += 8

		const noteSize = 8 + 8 + 1 + 1
		if uint64(len(data)-i) < count*noteSize {
			return fmt.Errorf("truncated MidiBlock channel %d payload", channel)
		}

		notes := make([]MidiNote, 0, count)
		for n := uint64(0); n < count; n++ {
			pos := binary.NativeEndian.Uint64(data[i:])
			length := binary.NativeEndian.Uint64(data[i+8:])
			notes = append(notes, MidiNote{
				Pos:  TlUnit(pos),
				Len:  TlUnit(length),
				Note: data[i+16],
				Vel:  data[i+17],
			})
			i += noteSize
		}

		b.Channels[channel] = notes
	}

	return nil
}

func (b *MidiBlock) Clone() Resource {
	out := &MidiBlock{}
	for ch := range b.Channels {
		out.Channels[ch] = append([]MidiNote(nil), b.Channels[ch]...)
	}
	return out
}
