package cadence

import (
	"math"
	"sync/atomic"
)

// ControlValue fills its control output with a constant.
type ControlValue struct {
	BaseNode
	value float32
}

func (c *ControlValue) Name() string          { return "Control Value" }
func (c *ControlValue) Outputs() []BusKind    { return monoControlBus }
func (c *ControlValue) OutputNames() []string { return []string{"out"} }

func (c *ControlValue) Params() []Parameter {
	return []Parameter{{Kind: ParamFloat, Name: "value"}}
}

func (c *ControlValue) ParamDefault(int) (ParamValue, bool) {
	return FloatValue(0.0), true
}

func (c *ControlValue) ParamUpdated(_ int, value ParamValue) {
	c.value = float32(value.Float())
}

func (c *ControlValue) Render(_ int, buf BufferAccess, _ *NodeInstance, _ *Engine) {
	control := buf.Control()
	for i := range control {
		control[i] = c.value
	}
}

// Trigger emits a single 1.0 spike in the frame whose transport
// position matches the node's timeline position.
type Trigger struct {
	BaseNode
	pos uint64
}

func (t *Trigger) Name() string          { return "Trigger" }
func (t *Trigger) Outputs() []BusKind    { return monoControlBus }
func (t *Trigger) OutputNames() []string { return []string{"out"} }
func (t *Trigger) IsTimelineNode() bool  { return true }

func (t *Trigger) Render(_ int, buf BufferAccess, inst *NodeInstance, e *Engine) {
	control := buf.Control()
	fire := e.Config.TlToFrames(inst.TimelineTransform().Position)

	if fire >= t.pos {
		relative := fire - t.pos
		if relative < uint64(len(control)) {
			control[relative] = 1.0
		}
	}
}

func (t *Trigger) Advance(frames int, _ *Config) {
	t.pos += uint64(frames)
}

func (t *Trigger) Seek(position uint64, _ *Config) {
	t.pos = position
}

const envelopeUnset = math.MaxUint64

var envelopeInputs = []BusKind{BusControl, BusControl, BusControl, BusControl, BusControl}

// Envelope is a gated ADSR amplitude shaper. The trigger input latches
// it active at >= 0.5 and releases below; the latched state lives in
// atomics so a relaxed writer outside the render thread stays safe.
type Envelope struct {
	BaseNode
	pos uint64

	start  atomic.Uint64
	end    atomic.Uint64
	active atomic.Bool
}

func NewEnvelope() *Envelope {
	env := &Envelope{}
	env.start.Store(envelopeUnset)
	env.end.Store(envelopeUnset)
	return env
}

func (env *Envelope) Name() string      { return "Envelope" }
func (env *Envelope) Inputs() []BusKind { return envelopeInputs }

func (env *Envelope) InputNames() []string {
	return []string{"atk", "dec", "sus", "rel", "trig"}
}

func (env *Envelope) Outputs() []BusKind    { return monoControlBus }
func (env *Envelope) OutputNames() []string { return []string{"amp"} }

// envelopeGain is the attack/decay/sustain curve at current_time given
// a held gate opened at start_time. Times are in seconds.
func envelopeGain(atk, dec, sus, startTime, currentTime float32) float32 {
	time := currentTime - startTime

	if time < atk {
		return inverseLerp(0.0, atk, time)
	}

	time -= atk

	if time < dec {
		return lerp(1.0, sus, inverseLerp(0.0, dec, time))
	}

	return sus
}

// envelopeGainReleased fades the held gain linearly to zero over rel
// seconds from the release point.
func envelopeGainReleased(atk, dec, sus, rel, startTime, releaseTime, currentTime float32) float32 {
	gain := envelopeGain(atk, dec, sus, startTime, releaseTime)

	time := currentTime - releaseTime
	if time > rel {
		return 0.0
	}

	return gain * inverseLerp(rel, 0.0, time)
}

func (env *Envelope) Render(_ int, buf BufferAccess, inst *NodeInstance, e *Engine) {
	atkGuard, ok := inst.PollInput(0, buf.Len(), e)
	if !ok {
		return
	}
	defer atkGuard.Release()

	decGuard, ok := inst.PollInput(1, buf.Len(), e)
	if !ok {
		return
	}
	defer decGuard.Release()

	susGuard, ok := inst.PollInput(2, buf.Len(), e)
	if !ok {
		return
	}
	defer susGuard.Release()

	relGuard, ok := inst.PollInput(3, buf.Len(), e)
	if !ok {
		return
	}
	defer relGuard.Release()

	trigGuard, ok := inst.PollInput(4, buf.Len(), e)
	if !ok {
		return
	}
	defer trigGuard.Release()

	out := buf.Control()
	atk := atkGuard.Buffer().Control()
	dec := decGuard.Buffer().Control()
	sus := susGuard.Buffer().Control()
	rel := relGuard.Buffer().Control()
	trig := trigGuard.Buffer().Control()

	sampleRate := float32(e.Config.SampleRate)

	for i := range out {
		active := env.active.Load()

		if !active && trig[i] >= 0.5 {
			env.start.Store(env.pos + uint64(i))
			env.active.Store(true)
			active = true
		} else if active && trig[i] < 0.5 {
			env.end.Store(env.pos + uint64(i))
			env.active.Store(false)
			active = false
		}

		start := env.start.Load()
		if env.pos+uint64(i) < start {
			continue
		}

		startSecs := float32(start) / sampleRate
		timeSecs := float32(env.pos+uint64(i)) / sampleRate

		if active {
			out[i] = envelopeGain(atk[i], dec[i], sus[i], startSecs, timeSecs)
		} else {
			endSecs := float32(env.end.Load()) / sampleRate
			out[i] = envelopeGainReleased(atk[i], dec[i], sus[i], rel[i], startSecs, endSecs, timeSecs)
		}
	}
}

func (env *Envelope) Advance(frames int, _ *Config) {
	env.pos += uint64(frames)
}

func (env *Envelope) Seek(position uint64, _ *Config) {
	env.pos = position
}
