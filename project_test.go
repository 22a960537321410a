package cadence

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func buildTestProject(t *testing.T) *Engine {
	t.Helper()

	e := New(48000)

	sine, _ := e.CreateNode("cadence.sine")
	sineInst, _ := e.Node(sine)
	sineInst.SetParam(0, FloatValue(220.0))
	sineInst.SetMetadata("display_name", StringValue("bass"))

	gain, _ := e.CreateNode("cadence.gain")
	gainInst, _ := e.Node(gain)
	gainInst.SetParam(0, FloatValue(-3.0))

	_, blockID := newMidiBlockResource(t, e,
		MidiNote{Pos: 0, Len: TicksPerBeat, Note: 69, Vel: 127},
		MidiNote{Pos: TicksPerBeat, Len: TicksPerBeat / 2, Note: 72, Vel: 100},
	)

	clip, _ := e.CreateNode("cadence.midi_clip")
	if err := e.LinkResource(clip, "data", blockID); err != nil {
		t.Fatalf("link: %v", err)
	}
	clipInst, _ := e.Node(clip)
	clipInst.SetTimelineTransform(TimelineTransform{Position: TicksPerBeat, StartOffset: 2, EndOffset: 1})

	osc, _ := e.CreateNode("cadence.polyosc")

	mustConnect(t, e, gain, 0, OutputRef{Node: sine})
	mustConnect(t, e, osc, 0, OutputRef{Node: clip})
	mustConnect(t, e, SinkID, 0, OutputRef{Node: gain})
	mustConnect(t, e, SinkID, 0, OutputRef{Node: osc})

	return e
}

func renderFrames(e *Engine, buffers, size int) []Frame {
	out := make([]Frame, 0, buffers*size)
	buf := make([]Frame, size)
	for i := 0; i < buffers; i++ {
		e.Render(buf)
		out = append(out, buf...)
	}
	return out
}

// Save then load reproduces the graph: the loaded engine renders
// bit-identical output.
func TestProjectRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "roundtrip.cdp")

	original := buildTestProject(t)
	if err := original.SaveFile(path); err != nil {
		t.Fatalf("save: %v", err)
	}

	loaded := New(48000)
	if err := loaded.Load(path); err != nil {
		t.Fatalf("load: %v", err)
	}

	if loaded.NodeCount() != original.NodeCount() {
		t.Fatalf("node count: want %d got %d", original.NodeCount(), loaded.NodeCount())
	}
	if loaded.ResourceCount() != original.ResourceCount() {
		t.Fatalf("resource count: want %d got %d", original.ResourceCount(), loaded.ResourceCount())
	}

	original.Playing = true
	loaded.Playing = true

	a := renderFrames(original, 4, 12000)
	b := renderFrames(loaded, 4, 12000)

	for i := range a {
		if a[i] != b[i] {
			t.Fatalf("frame %d differs after round trip: %v vs %v", i, a[i], b[i])
		}
	}
}

func TestProjectRoundTripPreservesDetails(t *testing.T) {
	path := filepath.Join(t.TempDir(), "details.cdp")

	original := buildTestProject(t)
	if err := original.SaveFile(path); err != nil {
		t.Fatalf("save: %v", err)
	}

	loaded := New(48000)
	if err := loaded.Load(path); err != nil {
		t.Fatalf("load: %v", err)
	}

	sine, ok := loaded.Node(1)
	if !ok || sine.Ctor() != "cadence.sine" {
		t.Fatalf("node 1: want cadence.sine got %+v", sine)
	}

	if got := sine.ParamValue(0).Float(); got != 220.0 {
		t.Fatalf("sine freq: want 220 got %v", got)
	}

	if meta, ok := sine.Metadata("display_name"); !ok || meta.Str() != "bass" {
		t.Fatalf("metadata: want bass got %v", meta)
	}

	clip, _ := loaded.Node(3)
	if clip.Ctor() != "cadence.midi_clip" {
		t.Fatalf("node 3: want cadence.midi_clip got %s", clip.Ctor())
	}

	tf := clip.TimelineTransform()
	if tf == nil || tf.Position != TicksPerBeat || tf.StartOffset != 2 || tf.EndOffset != 1 {
		t.Fatalf("timeline transform not preserved: %+v", tf)
	}

	h := clip.Node().Resource("data")
	if h.IsEmpty() {
		t.Fatal("clip resource not relinked")
	}

	count, _ := h.Get([]ParamValue{StringValue("get_channel_note_count"), IntValue(0)})
	if count.Int() != 2 {
		t.Fatalf("block notes: want 2 got %d", count.Int())
	}
}

func TestLoadToleratesCRLFAndComments(t *testing.T) {
	text := strings.Join([]string{
		"; crlf project",
		"node 0 cadence.sink",
		"in 1.0",
		"",
		"node 1 cadence.sine",
		"param f:220",
		"",
	}, "\r\n")

	path := filepath.Join(t.TempDir(), "crlf.cdp")
	if err := os.WriteFile(path, []byte(text), 0o644); err != nil {
		t.Fatal(err)
	}

	e := New(48000)
	if err := e.Load(path); err != nil {
		t.Fatalf("load: %v", err)
	}

	sine, ok := e.Node(1)
	if !ok {
		t.Fatal("sine not loaded")
	}
	if got := sine.ParamValue(0).Float(); got != 220.0 {
		t.Fatalf("freq: want 220 got %v", got)
	}

	sinkInst, _ := e.Node(SinkID)
	refs := sinkInst.InputSources(0)
	if len(refs) != 1 || refs[0] != (OutputRef{Node: 1}) {
		t.Fatalf("sink edges: want [1.0] got %v", refs)
	}
}

func TestLoadUnknownConstructorFails(t *testing.T) {
	text := "node 0 cadence.sink\nin\n\nnode 1 cadence.bogus\n\n"

	path := filepath.Join(t.TempDir(), "bogus.cdp")
	if err := os.WriteFile(path, []byte(text), 0o644); err != nil {
		t.Fatal(err)
	}

	e := New(48000)
	if err := e.Load(path); err == nil {
		t.Fatal("want error for unknown constructor")
	}
}

func TestLoadUnknownStorageTagFails(t *testing.T) {
	text := "res 0 MidiBlock inline 4\nabcd\n\nnode 0 cadence.sink\nin\n"

	path := filepath.Join(t.TempDir(), "storage.cdp")
	if err := os.WriteFile(path, []byte(text), 0o644); err != nil {
		t.Fatal(err)
	}

	e := New(48000)
	if err := e.Load(path); err == nil {
		t.Fatal("want error for unknown storage tag")
	}
}

func TestLoadRejectsCycle(t *testing.T) {
	text := strings.Join([]string{
		"node 0 cadence.sink",
		"in 1.0",
		"",
		"node 1 cadence.gain",
		"in 2.0",
		"param f:0",
		"",
		"node 2 cadence.gain",
		"in 1.0",
		"param f:0",
		"",
	}, "\n")

	path := filepath.Join(t.TempDir(), "cycle.cdp")
	if err := os.WriteFile(path, []byte(text), 0o644); err != nil {
		t.Fatal(err)
	}

	e := New(48000)
	if err := e.Load(path); err == nil {
		t.Fatal("want error for cyclic project")
	}
}

func TestLoadMissingSinkFails(t *testing.T) {
	text := "node 1 cadence.sine\nparam f:440\n\n"

	path := filepath.Join(t.TempDir(), "nosink.cdp")
	if err := os.WriteFile(path, []byte(text), 0o644); err != nil {
		t.Fatal(err)
	}

	e := New(48000)
	if err := e.Load(path); err == nil {
		t.Fatal("want error when the sink is missing")
	}
}

func TestLoadDanglingEdgeFails(t *testing.T) {
	text := "node 0 cadence.sink\nin 7.0\n\n"

	path := filepath.Join(t.TempDir(), "dangling.cdp")
	if err := os.WriteFile(path, []byte(text), 0o644); err != nil {
		t.Fatal(err)
	}

	e := New(48000)
	if err := e.Load(path); err == nil {
		t.Fatal("want error for dangling edge")
	}
}

// Internal resource payloads are binary; a payload containing newline
// bytes must survive.
func TestProjectBinaryPayloadWithNewlines(t *testing.T) {
	e := New(48000)

	h, _ := e.CreateResource("MidiBlock")
	h.Write(func(r Resource) {
		block := r.(*MidiBlock)
		// Pos 10 encodes a 0x0A byte in the payload.
		block.Channels[0] = append(block.Channels[0], MidiNote{Pos: 10, Len: 13, Note: 10, Vel: 13})
	})

	path := filepath.Join(t.TempDir(), "binary.cdp")
	if err := e.SaveFile(path); err != nil {
		t.Fatalf("save: %v", err)
	}

	loaded := New(48000)
	if err := loaded.Load(path); err != nil {
		t.Fatalf("load: %v", err)
	}

	lh, ok := loaded.ResourceByID(h.ID())
	if !ok {
		t.Fatal("resource missing after load")
	}

	pos, _ := lh.Get([]ParamValue{StringValue("get_note_pos"), IntValue(0), IntValue(0)})
	if pos.Int() != 10 {
		t.Fatalf("note pos: want 10 got %d", pos.Int())
	}
}
