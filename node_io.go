package cadence

import "strconv"

var (
	monoAudioBus   = []BusKind{BusAudio}
	monoMidiBus    = []BusKind{BusMidi}
	monoControlBus = []BusKind{BusControl}
)

// Sink is the graph's root: one audio input, no outputs. Rendering it
// pulls the whole graph into the master buffer.
type Sink struct {
	BaseNode
}

func (s *Sink) Name() string          { return "Sink" }
func (s *Sink) Inputs() []BusKind     { return monoAudioBus }
func (s *Sink) InputNames() []string  { return []string{"in"} }

func (s *Sink) Render(_ int, buf BufferAccess, inst *NodeInstance, e *Engine) {
	inst.PollInputInto(0, buf, e)
}

// Source is a reserved external-input node; it currently renders
// silence.
type Source struct {
	BaseNode
}

func (s *Source) Name() string          { return "Source" }
func (s *Source) Outputs() []BusKind    { return monoAudioBus }
func (s *Source) OutputNames() []string { return []string{"out"} }

func (s *Source) Params() []Parameter {
	return []Parameter{{Kind: ParamString, Name: "input"}}
}

func (s *Source) ParamDefault(int) (ParamValue, bool) {
	return StringValue(""), true
}

func (s *Source) ParamUpdated(_ int, value ParamValue) {
	// The input name is not used for routing; any String value is
	// accepted and ignored.
	_ = value.Str()
}

func (s *Source) Render(_ int, buf BufferAccess, _ *NodeInstance, _ *Engine) {
	buf.Clear()
}

var (
	midiSplitOutputs     []BusKind
	midiSplitOutputNames []string
)

func init() {
	midiSplitOutputs = make([]BusKind, 16)
	midiSplitOutputNames = make([]string, 16)
	for i := range midiSplitOutputs {
		midiSplitOutputs[i] = BusMidi
		midiSplitOutputNames[i] = strconv.Itoa(i + 1)
	}
}

// MidiSplit routes incoming messages to one of sixteen outputs by
// channel. With keep_channel unset, forwarded messages are rewritten
// to channel 0.
type MidiSplit struct {
	BaseNode
	keepChannel bool
}

func (s *MidiSplit) Name() string          { return "MIDI Split" }
func (s *MidiSplit) Inputs() []BusKind     { return monoMidiBus }
func (s *MidiSplit) Outputs() []BusKind    { return midiSplitOutputs }
func (s *MidiSplit) InputNames() []string  { return []string{"in"} }
func (s *MidiSplit) OutputNames() []string { return midiSplitOutputNames }

func (s *MidiSplit) Params() []Parameter {
	return []Parameter{{Kind: ParamBool, Name: "keep_channel"}}
}

func (s *MidiSplit) ParamUpdated(_ int, value ParamValue) {
	s.keepChannel = value.Bool()
}

func (s *MidiSplit) Render(output int, buf BufferAccess, inst *NodeInstance, e *Engine) {
	guard, ok := inst.PollInput(0, buf.Len(), e)
	if !ok {
		return
	}
	defer guard.Release()

	in := guard.Buffer().Midi()
	out := buf.Midi()

	for i := range out {
		if i >= len(in) {
			break
		}

		chain := &in[i]
		for m := 0; m < chain.Len(); m++ {
			msg := chain.At(m)
			if msg.Channel() != uint8(output) {
				continue
			}

			if s.keepChannel {
				out[i].Push(msg)
			} else {
				out[i].Push(msg.WithChannel(0))
			}
		}
	}
}
