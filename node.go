package cadence

import (
	"fmt"
	"sync"
)

// OutputRef addresses one output of one node.
type OutputRef struct {
	Node   uint32
	Output uint8
}

func (r OutputRef) String() string {
	return fmt.Sprintf("%d.%d", r.Node, r.Output)
}

// TimelineTransform places a timeline-capable node on the arrangement:
// its start position and how much of its own span is trimmed off at
// either end.
type TimelineTransform struct {
	Position    TlUnit
	StartOffset TlUnit
	EndOffset   TlUnit
}

// Node is the behavior contract every processing node implements.
// BaseNode supplies defaults for everything except Name and Render, so
// concrete nodes only override what they use.
type Node interface {
	Name() string

	Inputs() []BusKind
	Outputs() []BusKind
	InputNames() []string
	OutputNames() []string

	Params() []Parameter
	ParamDefault(param int) (ParamValue, bool)
	ParamUpdated(param int, value ParamValue)

	// Render fills the access with buf.Len() elements for the given
	// output. The buffer arrives zeroed by the output cache resize; a
	// node that sums into it may rely on that.
	Render(output int, buf BufferAccess, inst *NodeInstance, e *Engine)

	Advance(frames int, cfg *Config)
	Seek(pos uint64, cfg *Config)

	ResourceSlots() []ResourceSlot
	Resource(name string) ResourceHandle
	BindResource(name string, h ResourceHandle)

	IsTimelineNode() bool
	TimelineLength(cfg *Config) TlUnit
	ProcessOutsideTimelineSpan() bool
}

// BaseNode provides the no-op defaults of the Node contract.
type BaseNode struct{}

func (BaseNode) Inputs() []BusKind                        { return nil }
func (BaseNode) Outputs() []BusKind                       { return nil }
func (BaseNode) InputNames() []string                     { return nil }
func (BaseNode) OutputNames() []string                    { return nil }
func (BaseNode) Params() []Parameter                      { return nil }
func (BaseNode) ParamDefault(int) (ParamValue, bool)      { return ParamValue{}, false }
func (BaseNode) ParamUpdated(int, ParamValue)             {}
func (BaseNode) Advance(int, *Config)                     {}
func (BaseNode) Seek(uint64, *Config)                     {}
func (BaseNode) ResourceSlots() []ResourceSlot            { return nil }
func (BaseNode) Resource(string) ResourceHandle           { panic("node declares no resource slots") }
func (BaseNode) BindResource(string, ResourceHandle)      { panic("node declares no resource slots") }
func (BaseNode) IsTimelineNode() bool                     { return false }
func (BaseNode) TimelineLength(*Config) TlUnit            { return 1 }
func (BaseNode) ProcessOutsideTimelineSpan() bool         { return true }

type inputPort struct {
	sources []OutputRef

	// scratch holds the fan-in sum when more than one source feeds
	// the input; with zero or one sources it stays empty.
	mu      sync.RWMutex
	scratch Buffer
}

type outputPort struct {
	mu  sync.RWMutex
	buf Buffer
}

type paramSlot struct {
	desc  Parameter
	value ParamValue
}

// NodeInstance wraps a Node with its graph state: input edge lists,
// output caches, parameter values, metadata, and the timeline
// transform for timeline-capable nodes.
type NodeInstance struct {
	inputs  []inputPort
	outputs []outputPort
	params  []paramSlot

	metadata map[string]ParamValue
	tl       *TimelineTransform

	ctor string
	node Node
}

// NewNodeInstance builds the instance shell around a node: one input
// port per declared input, one cached output buffer per declared
// output, parameter slots seeded from declared defaults.
func NewNodeInstance(node Node, ctor string) *NodeInstance {
	inputs := make([]inputPort, len(node.Inputs()))
	for i := range inputs {
		inputs[i].scratch = NewBuffer(node.Inputs()[i])
	}

	outKinds := node.Outputs()
	outputs := make([]outputPort, len(outKinds))
	for i := range outputs {
		outputs[i].buf = NewBuffer(outKinds[i])
	}

	descs := node.Params()
	params := make([]paramSlot, len(descs))
	for i, desc := range descs {
		value := defaultForKind(desc.Kind)
		if def, ok := node.ParamDefault(i); ok {
			value = def
		}
		params[i] = paramSlot{desc: desc, value: value}
	}

	inst := &NodeInstance{
		inputs:   inputs,
		outputs:  outputs,
		params:   params,
		metadata: make(map[string]ParamValue),
		ctor:     ctor,
		node:     node,
	}

	if node.IsTimelineNode() {
		inst.tl = &TimelineTransform{}
	}

	return inst
}

func (n *NodeInstance) Node() Node   { return n.node }
func (n *NodeInstance) Ctor() string { return n.ctor }

func (n *NodeInstance) InputCount() int  { return len(n.inputs) }
func (n *NodeInstance) OutputCount() int { return len(n.outputs) }

// InputSources returns the fan-in source list of one input.
func (n *NodeInstance) InputSources(input int) []OutputRef {
	return n.inputs[input].sources
}

// Params returns the positional (descriptor, value) pairs.
func (n *NodeInstance) Params() []Parameter {
	descs := make([]Parameter, len(n.params))
	for i, p := range n.params {
		descs[i] = p.desc
	}
	return descs
}

func (n *NodeInstance) ParamValue(param int) ParamValue {
	return n.params[param].value
}

// SetParam notifies the node, then stores the value. Kind mismatch is
// a caller contract violation and panics.
func (n *NodeInstance) SetParam(param int, value ParamValue) {
	n.node.ParamUpdated(param, value)
	n.params[param].value.Set(value)
}

func (n *NodeInstance) Metadata(key string) (ParamValue, bool) {
	v, ok := n.metadata[key]
	return v, ok
}

func (n *NodeInstance) SetMetadata(key string, value ParamValue) {
	validateKey(key)
	n.metadata[key] = value
}

func (n *NodeInstance) MetadataKeys() []string {
	keys := make([]string, 0, len(n.metadata))
	for k := range n.metadata {
		keys = append(keys, k)
	}
	return keys
}

func (n *NodeInstance) IsTimelineNode() bool { return n.tl != nil }

// TimelineTransform returns the node's transform, or nil for nodes
// without timeline capability.
func (n *NodeInstance) TimelineTransform() *TimelineTransform {
	return n.tl
}

func (n *NodeInstance) SetTimelineTransform(tf TimelineTransform) {
	if n.tl == nil {
		panic("node is not timeline-capable")
	}
	*n.tl = tf
}

// render produces the given output for this cycle if it has not been
// produced yet. The output buffer's length doubles as the
// rendered-this-cycle marker; the engine's post-render clear pass
// resets it.
func (n *NodeInstance) render(output int, samples int, e *Engine) {
	port := &n.outputs[output]
	port.mu.Lock()
	defer port.mu.Unlock()

	if port.buf.Len() >= samples {
		return
	}

	port.buf.Resize(samples)
	n.node.Render(output, port.buf.Access(), n, e)
}

// clearBuffers resets the per-cycle state: input scratch pads shrink
// to zero length and output caches are invalidated.
func (n *NodeInstance) clearBuffers() {
	for i := range n.inputs {
		port := &n.inputs[i]
		port.mu.Lock()
		if port.scratch.Len() > 0 {
			port.scratch.Clear()
		}
		port.mu.Unlock()
	}

	for i := range n.outputs {
		port := &n.outputs[i]
		port.mu.Lock()
		port.buf.Clear()
		port.mu.Unlock()
	}
}

// connectInput appends an edge; validation happens in Engine.Connect.
func (n *NodeInstance) connectInput(input int, src OutputRef) {
	n.inputs[input].sources = append(n.inputs[input].sources, src)
}

func (n *NodeInstance) disconnectInput(input int, src OutputRef) {
	sources := n.inputs[input].sources
	for i, ref := range sources {
		if ref == src {
			n.inputs[input].sources = append(sources[:i], sources[i+1:]...)
			return
		}
	}
}

func (n *NodeInstance) dropEdgesTo(node uint32) {
	for i := range n.inputs {
		kept := n.inputs[i].sources[:0]
		for _, ref := range n.inputs[i].sources {
			if ref.Node != node {
				kept = append(kept, ref)
			}
		}
		n.inputs[i].sources = kept
	}
}

// BufferGuard is shared read access to a produced output buffer. The
// caller must Release it before its render returns.
type BufferGuard struct {
	buf *Buffer
	mu  *sync.RWMutex
}

func (g *BufferGuard) Buffer() *Buffer { return g.buf }

func (g *BufferGuard) Release() {
	if g.mu != nil {
		g.mu.RUnlock()
		g.mu = nil
	}
}

// PollInput pulls one input for n frames. With a single source the
// upstream output buffer is handed back directly (zero-copy); with
// fan-in the sources are summed into the input's scratch pad. Returns
// false when the input is unconnected — the consumer renders silence.
func (inst *NodeInstance) PollInput(input int, n int, e *Engine) (BufferGuard, bool) {
	port := &inst.inputs[input]

	switch len(port.sources) {
	case 0:
		return BufferGuard{}, false

	case 1:
		return e.PollNodeOutput(port.sources[0], n)

	default:
		port.mu.Lock()
		inst.sumFanIn(port, n, e)
		port.mu.Unlock()

		port.mu.RLock()
		return BufferGuard{buf: &port.scratch, mu: &port.mu}, true
	}
}

// PollInputInto pulls an input and sums every source directly into the
// caller's access. Unconnected sources contribute silence.
func (inst *NodeInstance) PollInputInto(input int, dst BufferAccess, e *Engine) {
	port := &inst.inputs[input]

	for _, ref := range port.sources {
		guard, ok := e.PollNodeOutput(ref, dst.Len())
		if !ok {
			continue
		}
		dst.sumFromBuffer(guard.Buffer())
		guard.Release()
	}
}

// sumFanIn shapes the scratch pad to n elements and accumulates every
// source. Caller holds the write lock.
func (inst *NodeInstance) sumFanIn(port *inputPort, n int, e *Engine) {
	for _, ref := range port.sources {
		guard, ok := e.PollNodeOutput(ref, n)
		if !ok {
			continue
		}

		if port.scratch.Len() != n {
			port.scratch.Resize(n)
		}

		// The scratch pad carries the input's declared kind; a
		// producer of another kind trips the fan-in panic below.
		port.scratch.Access().sumFromBuffer(guard.Buffer())
		guard.Release()
	}
}
