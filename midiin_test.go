package cadence

import "testing"

func TestMidiInDrainsIntoFirstFrame(t *testing.T) {
	e := New(48000)
	e.Playing = true

	node := NewMidiIn()
	id := e.AddNode(NewNodeInstance(node, "cadence.midi_in"))

	probe := &midiProbe{}
	probeID := e.AddNode(NewNodeInstance(probe, "test.probe"))
	mustConnect(t, e, probeID, 0, OutputRef{Node: id})
	mustConnect(t, e, SinkID, 0, OutputRef{Node: probeID})

	// Inject as the listener goroutine would.
	node.events <- NewNoteOn(0, 60, 100)
	node.events <- NewNoteOff(0, 60, 0)

	buf := make([]Frame, 64)
	e.Render(buf)

	if len(probe.got) != 2 {
		t.Fatalf("want 2 messages drained, got %d", len(probe.got))
	}
	if probe.got[0].Code() != StatusNoteOn || probe.got[1].Code() != StatusNoteOff {
		t.Fatalf("messages out of order: %v", probe.got)
	}

	// Nothing queued: the next render is empty.
	probe.got = nil
	e.Render(buf)

	if len(probe.got) != 0 {
		t.Fatalf("want no messages, got %v", probe.got)
	}
}

func TestMidiInUnknownPortStaysSilent(t *testing.T) {
	e := New(48000)
	e.Playing = true

	id, _ := e.CreateNode("cadence.midi_in")
	inst, _ := e.Node(id)

	// A port name that no system can plausibly expose.
	inst.SetParam(0, StringValue("cadence-test-nonexistent-port"))

	probe := &midiProbe{}
	probeID := e.AddNode(NewNodeInstance(probe, "test.probe"))
	mustConnect(t, e, probeID, 0, OutputRef{Node: id})
	mustConnect(t, e, SinkID, 0, OutputRef{Node: probeID})

	buf := make([]Frame, 64)
	e.Render(buf)

	if len(probe.got) != 0 {
		t.Fatalf("want silence from an unconnected port, got %v", probe.got)
	}
}
