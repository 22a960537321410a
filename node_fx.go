package cadence

// Effect is a simplified contract for single-audio-in, single-audio-out
// processors. NewEffectNode adapts an Effect to the full Node surface:
// the adapter pulls the input into the output buffer and hands it to
// RenderEffect in place.
type Effect interface {
	EffectName() string
	RenderEffect(buf BufferAccess)
	AdvanceEffect(frames int, cfg *Config)
	EffectParams() []Parameter
	EffectParamDefault(param int) (ParamValue, bool)
	EffectParamUpdated(param int, value ParamValue)
}

type effectNode struct {
	BaseNode
	fx Effect
}

// NewEffectNode wraps an Effect into a Node.
func NewEffectNode(fx Effect) Node {
	return &effectNode{fx: fx}
}

func (n *effectNode) Name() string          { return n.fx.EffectName() }
func (n *effectNode) Inputs() []BusKind     { return monoAudioBus }
func (n *effectNode) Outputs() []BusKind    { return monoAudioBus }
func (n *effectNode) InputNames() []string  { return []string{"in"} }
func (n *effectNode) OutputNames() []string { return []string{"out"} }

func (n *effectNode) Params() []Parameter { return n.fx.EffectParams() }

func (n *effectNode) ParamDefault(param int) (ParamValue, bool) {
	return n.fx.EffectParamDefault(param)
}

func (n *effectNode) ParamUpdated(param int, value ParamValue) {
	n.fx.EffectParamUpdated(param, value)
}

func (n *effectNode) Render(_ int, buf BufferAccess, inst *NodeInstance, e *Engine) {
	inst.PollInputInto(0, buf, e)
	n.fx.RenderEffect(buf)
}

func (n *effectNode) Advance(frames int, cfg *Config) {
	n.fx.AdvanceEffect(frames, cfg)
}

// Gain scales the signal by a decibel amount. The conversion is
// 10^(dB/10); project files written under that convention depend on
// it staying put.
type Gain struct {
	gain float32
}

func (g *Gain) EffectName() string { return "Gain" }

func (g *Gain) RenderEffect(buf BufferAccess) {
	audio := buf.Audio()
	factor := DBToFactor(g.gain)

	for i := range audio {
		audio[i] = audio[i].Scale(factor)
	}
}

func (g *Gain) AdvanceEffect(int, *Config) {}

func (g *Gain) EffectParams() []Parameter {
	return []Parameter{{Kind: ParamFloat, Name: "gain"}}
}

func (g *Gain) EffectParamDefault(int) (ParamValue, bool) {
	return FloatValue(0.0), true
}

func (g *Gain) EffectParamUpdated(_ int, value ParamValue) {
	g.gain = float32(value.Float())
}

var amplifyInputs = []BusKind{BusAudio, BusControl}

// Amplify multiplies the audio input by a per-frame control scalar.
type Amplify struct {
	BaseNode
}

func (a *Amplify) Name() string          { return "Amplify" }
func (a *Amplify) Inputs() []BusKind     { return amplifyInputs }
func (a *Amplify) Outputs() []BusKind    { return monoAudioBus }
func (a *Amplify) InputNames() []string  { return []string{"in", "amp"} }
func (a *Amplify) OutputNames() []string { return []string{"out"} }

func (a *Amplify) Render(_ int, buf BufferAccess, inst *NodeInstance, e *Engine) {
	inst.PollInputInto(0, buf, e)

	guard, ok := inst.PollInput(1, buf.Len(), e)
	if !ok {
		return
	}
	defer guard.Release()

	audio := buf.Audio()
	amp := guard.Buffer().Control()

	for i := range audio {
		if i >= len(amp) {
			break
		}
		audio[i] = audio[i].Scale(amp[i])
	}
}
