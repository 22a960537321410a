package cadence

import "fmt"

// BusKind identifies the signal type an edge carries.
type BusKind int

const (
	BusAudio BusKind = iota
	BusMidi
	BusControl
)

func (k BusKind) String() string {
	switch k {
	case BusAudio:
		return "Audio"
	case BusMidi:
		return "Midi"
	case BusControl:
		return "Control"
	default:
		return "Unknown"
	}
}

const chainInlineCap = 4

// MessageChain is the ordered collection of MIDI messages attached to
// one output frame. The first few messages live inline so the common
// case stays allocation-free.
type MessageChain struct {
	inline   [chainInlineCap]Message
	n        int
	overflow []Message
}

func (c *MessageChain) Len() int {
	return c.n + len(c.overflow)
}

func (c *MessageChain) At(i int) Message {
	if i < c.n {
		return c.inline[i]
	}
	return c.overflow[i-c.n]
}

func (c *MessageChain) Push(m Message) {
	if c.n < chainInlineCap {
		c.inline[c.n] = m
		c.n++
		return
	}
	c.overflow = append(c.overflow, m)
}

func (c *MessageChain) Clear() {
	c.n = 0
	c.overflow = c.overflow[:0]
}

// AppendChain pushes every message of o onto c, preserving order.
func (c *MessageChain) AppendChain(o *MessageChain) {
	for i := 0; i < o.Len(); i++ {
		c.Push(o.At(i))
	}
}

// Buffer is a tagged per-node signal container: audio frames, MIDI
// message chains, or control scalars, one element per frame.
type Buffer struct {
	kind    BusKind
	audio   []Frame
	midi    []MessageChain
	control []float32
}

// NewBuffer returns an empty buffer of the given kind.
func NewBuffer(kind BusKind) Buffer {
	return Buffer{kind: kind}
}

func (b *Buffer) Kind() BusKind { return b.kind }

func (b *Buffer) Len() int {
	switch b.kind {
	case BusAudio:
		return len(b.audio)
	case BusMidi:
		return len(b.midi)
	default:
		return len(b.control)
	}
}

func (b *Buffer) Cap() int {
	switch b.kind {
	case BusAudio:
		return cap(b.audio)
	case BusMidi:
		return cap(b.midi)
	default:
		return cap(b.control)
	}
}

// Clear drops the buffer's contents but keeps its capacity.
func (b *Buffer) Clear() {
	b.audio = b.audio[:0]
	for i := range b.midi {
		b.midi[i].Clear()
	}
	b.midi = b.midi[:0]
	b.control = b.control[:0]
}

// Resize sets the buffer to n zero/default elements, reusing capacity
// where possible.
func (b *Buffer) Resize(n int) {
	switch b.kind {
	case BusAudio:
		if cap(b.audio) < n {
			b.audio = make([]Frame, n)
			return
		}
		b.audio = b.audio[:n]
		for i := range b.audio {
			b.audio[i] = Frame{}
		}
	case BusMidi:
		if cap(b.midi) < n {
			b.midi = make([]MessageChain, n)
			return
		}
		b.midi = b.midi[:n]
		for i := range b.midi {
			b.midi[i].Clear()
		}
	default:
		if cap(b.control) < n {
			b.control = make([]float32, n)
			return
		}
		b.control = b.control[:n]
		for i := range b.control {
			b.control[i] = 0
		}
	}
}

// Audio returns the frame slice; calling it on a non-audio buffer is a
// graph-wiring bug.
func (b *Buffer) Audio() []Frame {
	if b.kind != BusAudio {
		panic(fmt.Sprintf("Audio() called on a %s buffer", b.kind))
	}
	return b.audio
}

func (b *Buffer) Midi() []MessageChain {
	if b.kind != BusMidi {
		panic(fmt.Sprintf("Midi() called on a %s buffer", b.kind))
	}
	return b.midi
}

func (b *Buffer) Control() []float32 {
	if b.kind != BusControl {
		panic(fmt.Sprintf("Control() called on a %s buffer", b.kind))
	}
	return b.control
}

// Access exposes the buffer's current contents as a fixed-length view.
func (b *Buffer) Access() BufferAccess {
	switch b.kind {
	case BusAudio:
		return AudioAccess(b.audio)
	case BusMidi:
		return MidiAccess(b.midi)
	default:
		return ControlAccess(b.control)
	}
}

// BufferAccess is a fixed-length view over signal data being filled by
// a node render.
type BufferAccess struct {
	kind    BusKind
	audio   []Frame
	midi    []MessageChain
	control []float32
}

func AudioAccess(frames []Frame) BufferAccess {
	return BufferAccess{kind: BusAudio, audio: frames}
}

func MidiAccess(chains []MessageChain) BufferAccess {
	return BufferAccess{kind: BusMidi, midi: chains}
}

func ControlAccess(scalars []float32) BufferAccess {
	return BufferAccess{kind: BusControl, control: scalars}
}

func (a BufferAccess) Kind() BusKind { return a.kind }

func (a BufferAccess) Len() int {
	switch a.kind {
	case BusAudio:
		return len(a.audio)
	case BusMidi:
		return len(a.midi)
	default:
		return len(a.control)
	}
}

// Clear zero-fills the view in place.
func (a BufferAccess) Clear() {
	switch a.kind {
	case BusAudio:
		for i := range a.audio {
			a.audio[i] = Frame{}
		}
	case BusMidi:
		for i := range a.midi {
			a.midi[i].Clear()
		}
	default:
		for i := range a.control {
			a.control[i] = 0
		}
	}
}

func (a BufferAccess) Audio() []Frame {
	if a.kind != BusAudio {
		panic(fmt.Sprintf("Audio() called on a %s access", a.kind))
	}
	return a.audio
}

func (a BufferAccess) Midi() []MessageChain {
	if a.kind != BusMidi {
		panic(fmt.Sprintf("Midi() called on a %s access", a.kind))
	}
	return a.midi
}

func (a BufferAccess) Control() []float32 {
	if a.kind != BusControl {
		panic(fmt.Sprintf("Control() called on a %s access", a.kind))
	}
	return a.control
}

// sumFromBuffer merges src into the access: componentwise addition for
// audio and control, chain concatenation for MIDI. Cross-kind fan-in
// is a graph-wiring bug.
func (a BufferAccess) sumFromBuffer(src *Buffer) {
	if a.kind != src.kind {
		panic(fmt.Sprintf("cross-kind fan-in: %s into %s", src.kind, a.kind))
	}

	switch a.kind {
	case BusAudio:
		from := src.audio
		for i := range a.audio {
			if i >= len(from) {
				break
			}
			a.audio[i] = a.audio[i].Add(from[i])
		}
	case BusMidi:
		from := src.midi
		for i := range a.midi {
			if i >= len(from) {
				break
			}
			a.midi[i].AppendChain(&from[i])
		}
	default:
		from := src.control
		for i := range a.control {
			if i >= len(from) {
				break
			}
			a.control[i] += from[i]
		}
	}
}
