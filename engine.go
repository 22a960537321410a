package cadence

import (
	"errors"
	"fmt"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// SinkID is the well-known id of the graph's root consumer.
const SinkID uint32 = 0

// ErrCycle is returned when an edge or a loaded project would make the
// graph cyclic.
var ErrCycle = errors.New("edge would create a cycle")

// Engine owns the node graph, the constructor and resource registries,
// and the transport. The host drives it through Render from the audio
// callback; all other mutation must be serialized against that call
// (see EditQueue).
type Engine struct {
	Config  Config
	Playing bool

	nodes     map[uint32]*NodeInstance
	nodeOrder []uint32
	ctors     map[string]func() Node

	resources     map[uint32]ResourceHandle
	resourceKinds map[string][]uint32
	resourceCtors map[string]func() Resource
	loadersByExt  map[string]ResourceLoader

	position uint64

	// EnableReadback makes Render keep a copy of the final master
	// buffer, retrievable with Readback.
	EnableReadback bool
	readback       []Frame

	// Debug counters updated by every Render call made while playing;
	// a stopped Render leaves them unchanged.
	DbgProcessTime float64
	DbgBufferTime  float64
	DbgBufferSize  uint32

	session uuid.UUID
	log     zerolog.Logger
	metrics MetricsHook
}

// New creates an engine with the default transport configuration
// (120 bpm, A4 = 440 Hz), registers the built-in node constructors,
// resource kinds and loaders, and seeds the sink as node 0.
func New(sampleRate uint32) *Engine {
	e := &Engine{
		Config: Config{
			SampleRate: sampleRate,
			BPM:        120.0,
			Tuning:     440.0,
		},
		nodes:         make(map[uint32]*NodeInstance),
		ctors:         make(map[string]func() Node),
		resources:     make(map[uint32]ResourceHandle),
		resourceKinds: make(map[string][]uint32),
		resourceCtors: make(map[string]func() Resource),
		loadersByExt:  make(map[string]ResourceLoader),
		session:       uuid.New(),
		log:           zerolog.Nop(),
	}

	e.RegisterNode("cadence.sink", func() Node { return &Sink{} })
	e.RegisterNode("cadence.source", func() Node { return &Source{} })
	e.RegisterNode("cadence.sine", func() Node { return NewSine(440.0) })
	e.RegisterNode("cadence.gain", func() Node { return NewEffectNode(&Gain{}) })
	e.RegisterNode("cadence.amplify", func() Node { return &Amplify{} })
	e.RegisterNode("cadence.control_value", func() Node { return &ControlValue{} })
	e.RegisterNode("cadence.trigger", func() Node { return &Trigger{} })
	e.RegisterNode("cadence.envelope", func() Node { return NewEnvelope() })
	e.RegisterNode("cadence.osc", func() Node { return NewOsc() })
	e.RegisterNode("cadence.polyosc", func() Node { return NewPolyOsc() })
	e.RegisterNode("cadence.sampler", func() Node { return NewSampler() })
	e.RegisterNode("cadence.midi_split", func() Node { return &MidiSplit{} })
	e.RegisterNode("cadence.midi_clip", func() Node { return &MidiClip{} })
	e.RegisterNode("cadence.audio_clip", func() Node { return &AudioClip{} })
	e.RegisterNode("cadence.midi_in", func() Node { return NewMidiIn() })

	e.RegisterResource("MidiBlock", func() Resource { return &MidiBlock{} })
	e.RegisterResource("AudioData", func() Resource { return &AudioData{} })
	e.RegisterLoader(WavLoader{})

	e.CreateNode("cadence.sink")
	return e
}

// SetLogger installs the engine's logger; the default discards.
func (e *Engine) SetLogger(log zerolog.Logger) { e.log = log }

// SetMetricsHook installs an optional render observability hook.
func (e *Engine) SetMetricsHook(hook MetricsHook) { e.metrics = hook }

// Session returns the engine instance's identity, stamped into saved
// projects and debug output.
func (e *Engine) Session() uuid.UUID { return e.session }

// Position returns the transport position in frames.
func (e *Engine) Position() uint64 { return e.position }

// =============================================================================
// Registries
// =============================================================================

// RegisterNode adds a node constructor. Registering a name twice is a
// caller contract violation.
func (e *Engine) RegisterNode(name string, ctor func() Node) {
	validateKey(name)
	if _, dup := e.ctors[name]; dup {
		panic(fmt.Sprintf("node constructor %q already registered", name))
	}
	e.ctors[name] = ctor
}

// RegisterResource adds a resource factory for a kind tag.
func (e *Engine) RegisterResource(kind string, ctor func() Resource) {
	validateKey(kind)
	if _, dup := e.resourceCtors[kind]; dup {
		panic(fmt.Sprintf("resource kind %q already registered", kind))
	}
	e.resourceCtors[kind] = ctor
}

// RegisterLoader adds a file loader, keyed by the extensions it
// claims. Claiming an extension twice is a caller contract violation.
func (e *Engine) RegisterLoader(l ResourceLoader) {
	for _, ext := range l.Extensions() {
		ext = strings.ToLower(ext)
		if _, dup := e.loadersByExt[ext]; dup {
			panic(fmt.Sprintf("resource loader for %q already registered", ext))
		}
		e.loadersByExt[ext] = l
	}
}

// Constructors lists the registered node constructor names.
func (e *Engine) Constructors() []string {
	names := make([]string, 0, len(e.ctors))
	for name := range e.ctors {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// =============================================================================
// Node management
// =============================================================================

// CreateNode instantiates a registered constructor and adds the node,
// returning its id. Unknown names are logged and reported false.
func (e *Engine) CreateNode(name string) (uint32, bool) {
	ctor, ok := e.ctors[name]
	if !ok {
		e.log.Warn().Str("ctor", name).Msg("unknown node constructor, skipping")
		return 0, false
	}
	return e.AddNode(NewNodeInstance(ctor(), name)), true
}

// AddNode inserts an instance at the smallest unused id.
func (e *Engine) AddNode(inst *NodeInstance) uint32 {
	id := e.allocNodeID()
	e.nodes[id] = inst
	e.invalidateOrder()
	return id
}

func (e *Engine) allocNodeID() uint32 {
	for id := uint32(0); ; id++ {
		if _, used := e.nodes[id]; !used {
			return id
		}
	}
}

// Node returns the instance registered under id.
func (e *Engine) Node(id uint32) (*NodeInstance, bool) {
	inst, ok := e.nodes[id]
	return inst, ok
}

func (e *Engine) HasNode(id uint32) bool {
	_, ok := e.nodes[id]
	return ok
}

func (e *Engine) NodeCount() int { return len(e.nodes) }

// NodeIDs returns every node id in ascending order.
func (e *Engine) NodeIDs() []uint32 {
	return append([]uint32(nil), e.order()...)
}

// DeleteNode removes a node and drops every edge that referenced it.
// The sink at id 0 cannot be deleted.
func (e *Engine) DeleteNode(id uint32) {
	if id == SinkID {
		e.log.Warn().Msg("refusing to delete the sink node")
		return
	}

	if _, ok := e.nodes[id]; !ok {
		return
	}

	delete(e.nodes, id)
	for _, other := range e.nodes {
		other.dropEdgesTo(id)
	}
	e.invalidateOrder()
}

// Connect adds the edge src -> (dst, input). The bus kinds must match
// and the edge must not close a cycle.
func (e *Engine) Connect(dst uint32, input int, src OutputRef) error {
	dstInst, ok := e.nodes[dst]
	if !ok {
		return fmt.Errorf("unknown node %d", dst)
	}

	srcInst, ok := e.nodes[src.Node]
	if !ok {
		return fmt.Errorf("unknown node %d", src.Node)
	}

	if input < 0 || input >= dstInst.InputCount() {
		return fmt.Errorf("node %d has no input %d", dst, input)
	}

	if int(src.Output) >= srcInst.OutputCount() {
		return fmt.Errorf("node %d has no output %d", src.Node, src.Output)
	}

	srcKind := srcInst.node.Outputs()[src.Output]
	dstKind := dstInst.node.Inputs()[input]
	if srcKind != dstKind {
		return fmt.Errorf("bus kind mismatch: %s output into %s input", srcKind, dstKind)
	}

	if src.Node == dst || e.reaches(src.Node, dst) {
		return ErrCycle
	}

	dstInst.connectInput(input, src)
	return nil
}

// Disconnect removes one edge; absent edges are a no-op.
func (e *Engine) Disconnect(dst uint32, input int, src OutputRef) {
	if inst, ok := e.nodes[dst]; ok && input >= 0 && input < inst.InputCount() {
		inst.disconnectInput(input, src)
	}
}

// reaches reports whether target is reachable from start by walking
// input edges upstream.
func (e *Engine) reaches(start, target uint32) bool {
	inst, ok := e.nodes[start]
	if !ok {
		return false
	}

	for i := range inst.inputs {
		for _, ref := range inst.inputs[i].sources {
			if ref.Node == target || e.reaches(ref.Node, target) {
				return true
			}
		}
	}

	return false
}

// validateAcyclic checks the whole graph, for use after a bulk edit
// such as a project load.
func (e *Engine) validateAcyclic() error {
	const (
		unvisited = iota
		visiting
		done
	)

	state := make(map[uint32]int, len(e.nodes))

	var visit func(id uint32) error
	visit = func(id uint32) error {
		switch state[id] {
		case visiting:
			return ErrCycle
		case done:
			return nil
		}

		state[id] = visiting
		inst := e.nodes[id]
		for i := range inst.inputs {
			for _, ref := range inst.inputs[i].sources {
				if _, ok := e.nodes[ref.Node]; !ok {
					return fmt.Errorf("node %d input %d references missing node %d", id, i, ref.Node)
				}
				if err := visit(ref.Node); err != nil {
					return err
				}
			}
		}
		state[id] = done
		return nil
	}

	for id := range e.nodes {
		if err := visit(id); err != nil {
			return err
		}
	}

	return nil
}

func (e *Engine) invalidateOrder() { e.nodeOrder = e.nodeOrder[:0] }

func (e *Engine) order() []uint32 {
	if len(e.nodeOrder) != len(e.nodes) {
		e.nodeOrder = e.nodeOrder[:0]
		for id := range e.nodes {
			e.nodeOrder = append(e.nodeOrder, id)
		}
		sort.Slice(e.nodeOrder, func(i, j int) bool { return e.nodeOrder[i] < e.nodeOrder[j] })
	}
	return e.nodeOrder
}

// =============================================================================
// Resource management
// =============================================================================

// CreateResource instantiates a registered resource kind and registers
// the result, returning its handle.
func (e *Engine) CreateResource(kind string) (ResourceHandle, bool) {
	ctor, ok := e.resourceCtors[kind]
	if !ok {
		e.log.Warn().Str("kind", kind).Msg("unknown resource kind, skipping")
		return ResourceHandle{}, false
	}
	return e.AddResource(ctor(), ""), true
}

// AddResource registers a resource at the smallest unused id. A
// non-empty path marks it external.
func (e *Engine) AddResource(res Resource, path string) ResourceHandle {
	id := e.allocResourceID()
	h := newResourceHandle(res, id, path)
	e.resources[id] = h
	kind := res.Kind()
	e.resourceKinds[kind] = append(e.resourceKinds[kind], id)
	return h
}

func (e *Engine) allocResourceID() uint32 {
	for id := uint32(0); ; id++ {
		if _, used := e.resources[id]; !used {
			return id
		}
	}
}

// LoadResourceFile loads an external file through the loader
// registered for its extension and registers the result.
func (e *Engine) LoadResourceFile(path string) (ResourceHandle, error) {
	loader, ok := e.loadersByExt[strings.ToLower(filepath.Ext(path))]
	if !ok {
		return ResourceHandle{}, fmt.Errorf("no resource loader for %q", filepath.Ext(path))
	}

	res, err := loader.LoadFile(path)
	if err != nil {
		return ResourceHandle{}, err
	}

	return e.AddResource(res, path), nil
}

// ResourceByID returns the handle registered under id.
func (e *Engine) ResourceByID(id uint32) (ResourceHandle, bool) {
	h, ok := e.resources[id]
	return h, ok
}

// ResourcesByKind returns the ids of every resource of a kind, in
// ascending order.
func (e *Engine) ResourcesByKind(kind string) []uint32 {
	ids := append([]uint32(nil), e.resourceKinds[kind]...)
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

func (e *Engine) ResourceCount() int { return len(e.resources) }

// DeleteResource unregisters a resource. Handles already bound to
// nodes keep the payload alive; it simply stops round-tripping through
// project files.
func (e *Engine) DeleteResource(id uint32) {
	h, ok := e.resources[id]
	if !ok {
		return
	}

	delete(e.resources, id)
	kind := h.KindTag()
	ids := e.resourceKinds[kind]
	for i, other := range ids {
		if other == id {
			e.resourceKinds[kind] = append(ids[:i], ids[i+1:]...)
			break
		}
	}
}

// LinkResource binds a registered resource to a node's named slot,
// checking the slot's declared kind against the resource's tag.
func (e *Engine) LinkResource(nodeID uint32, slot string, resourceID uint32) error {
	inst, ok := e.nodes[nodeID]
	if !ok {
		return fmt.Errorf("unknown node %d", nodeID)
	}

	h, ok := e.resources[resourceID]
	if !ok {
		return fmt.Errorf("unknown resource %d", resourceID)
	}

	for _, decl := range inst.node.ResourceSlots() {
		if decl.Name != slot {
			continue
		}
		if decl.Kind != h.KindTag() {
			return fmt.Errorf("resource kind mismatch: slot %q wants %s, got %s",
				slot, decl.Kind, h.KindTag())
		}
		inst.node.BindResource(slot, h)
		return nil
	}

	return fmt.Errorf("node %d declares no resource slot %q", nodeID, slot)
}

// =============================================================================
// Rendering
// =============================================================================

// Render is the real-time entry point: it produces exactly len(buf)
// frames. While stopped it zero-fills. It must not run concurrently
// with graph mutation; hosts hold their engine lock around it.
func (e *Engine) Render(buf []Frame) {
	start := time.Now()

	if !e.Playing {
		zeroFrames(buf)
		if e.EnableReadback {
			e.readback = resizeFrames(e.readback, len(buf))
			zeroFrames(e.readback)
		}
		return
	}

	if e.metrics != nil {
		e.metrics.OnRenderStart(len(buf))
	}

	zeroFrames(buf)

	sink := e.nodes[SinkID]
	sink.node.Render(0, AudioAccess(buf), sink, e)

	for _, id := range e.order() {
		inst := e.nodes[id]
		inst.node.Advance(len(buf), &e.Config)
		inst.clearBuffers()
	}

	e.position += uint64(len(buf))

	elapsed := time.Since(start)
	e.DbgProcessTime = elapsed.Seconds()
	e.DbgBufferTime = float64(len(buf)) / float64(e.Config.SampleRate)
	e.DbgBufferSize = uint32(len(buf))

	if e.EnableReadback {
		e.readback = resizeFrames(e.readback, len(buf))
		copy(e.readback, buf)
	}

	if e.metrics != nil {
		e.metrics.OnRenderDone(elapsed, len(buf))
	}
}

// Readback returns the snapshot of the last rendered master buffer.
// Valid only while EnableReadback is set.
func (e *Engine) Readback() []Frame { return e.readback }

// Seek hard-resets the transport. Playback state is retained.
func (e *Engine) Seek(position uint64) {
	e.position = position
	for _, id := range e.order() {
		e.nodes[id].node.Seek(position, &e.Config)
	}
}

// PollNodeOutput renders (at most once per cycle) and hands back the
// referenced output for n frames. For timeline nodes that opt out of
// processing outside their span, a buffer entirely outside the span
// skips the node's render and returns zeroed output.
func (e *Engine) PollNodeOutput(ref OutputRef, n int) (BufferGuard, bool) {
	inst, ok := e.nodes[ref.Node]
	if !ok || int(ref.Output) >= len(inst.outputs) {
		e.log.Warn().Uint32("node", ref.Node).Uint8("output", ref.Output).
			Msg("poll of missing node output")
		return BufferGuard{}, false
	}

	port := &inst.outputs[ref.Output]

	if inst.tl != nil && !inst.node.ProcessOutsideTimelineSpan() && e.outsideSpan(inst, n) {
		port.mu.Lock()
		if port.buf.Len() < n {
			port.buf.Resize(n)
		}
		port.mu.Unlock()
	} else {
		inst.render(int(ref.Output), n, e)
	}

	port.mu.RLock()
	return BufferGuard{buf: &port.buf, mu: &port.mu}, true
}

// outsideSpan reports whether the next n frames fall entirely outside
// the node's effective timeline span.
func (e *Engine) outsideSpan(inst *NodeInstance, n int) bool {
	tf := inst.tl
	length := inst.node.TimelineLength(&e.Config)

	trim := tf.StartOffset + tf.EndOffset
	if length <= trim {
		return true
	}

	spanStart := tf.Position
	spanEnd := tf.Position + length - trim

	firstTl := e.Config.FramesToTl(e.position)
	lastTl := e.Config.FramesToTl(e.position + uint64(n) - 1)

	return lastTl < spanStart || firstTl >= spanEnd
}

// DebugInfo dumps the graph structure and buffer capacities.
func (e *Engine) DebugInfo() string {
	var sb strings.Builder

	fmt.Fprintf(&sb, "engine session %s\n", e.session)

	for _, id := range e.order() {
		inst := e.nodes[id]
		fmt.Fprintf(&sb, "node %d:\n", id)
		fmt.Fprintf(&sb, "  ctor:\t%s\n", inst.ctor)
		fmt.Fprintf(&sb, "  name:\t%s\n", inst.node.Name())

		for i := range inst.inputs {
			fmt.Fprintf(&sb, "  input %d:\n", i)
			for _, ref := range inst.inputs[i].sources {
				fmt.Fprintf(&sb, "    %s\n", ref)
			}
			fmt.Fprintf(&sb, "    buffer capacity: %d\n", inst.inputs[i].scratch.Cap())
		}

		for i := range inst.outputs {
			fmt.Fprintf(&sb, "  output %d:\n", i)
			fmt.Fprintf(&sb, "    buffer capacity: %d\n", inst.outputs[i].buf.Cap())
		}
	}

	return sb.String()
}

func zeroFrames(buf []Frame) {
	for i := range buf {
		buf[i] = Frame{}
	}
}

func resizeFrames(buf []Frame, n int) []Frame {
	if cap(buf) < n {
		return make([]Frame, n)
	}
	return buf[:n]
}
