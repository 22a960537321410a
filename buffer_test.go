package cadence

import "testing"

func TestBufferResizeZeroFills(t *testing.T) {
	buf := NewBuffer(BusAudio)
	buf.Resize(4)

	audio := buf.Audio()
	audio[2] = Frame{0.5, 0.5}

	buf.Clear()
	if buf.Len() != 0 {
		t.Fatalf("len after clear: want 0 got %d", buf.Len())
	}

	// Resizing over reused capacity must not expose stale frames.
	buf.Resize(4)
	for i, frame := range buf.Audio() {
		if frame != (Frame{}) {
			t.Fatalf("frame %d not zeroed after resize: %v", i, frame)
		}
	}
}

func TestBufferClearKeepsCapacity(t *testing.T) {
	buf := NewBuffer(BusControl)
	buf.Resize(256)

	before := buf.Cap()
	buf.Clear()

	if buf.Cap() != before {
		t.Fatalf("capacity: want %d got %d", before, buf.Cap())
	}
}

func TestMidiBufferResizeClearsChains(t *testing.T) {
	buf := NewBuffer(BusMidi)
	buf.Resize(2)

	buf.Midi()[0].Push(NewNoteOn(0, 60, 100))
	buf.Clear()
	buf.Resize(2)

	if n := buf.Midi()[0].Len(); n != 0 {
		t.Fatalf("chain survived clear+resize: %d messages", n)
	}
}

func TestBufferKindAccessorsPanicCrossKind(t *testing.T) {
	buf := NewBuffer(BusAudio)
	buf.Resize(1)

	defer func() {
		if recover() == nil {
			t.Fatal("want panic on Control() of an audio buffer")
		}
	}()

	_ = buf.Control()
}

func TestCrossKindFanInPanics(t *testing.T) {
	dst := NewBuffer(BusAudio)
	dst.Resize(4)

	src := NewBuffer(BusControl)
	src.Resize(4)

	defer func() {
		if recover() == nil {
			t.Fatal("want panic on cross-kind fan-in")
		}
	}()

	dst.Access().sumFromBuffer(&src)
}

func TestBufferAccessClear(t *testing.T) {
	frames := []Frame{{1, 1}, {2, 2}}
	access := AudioAccess(frames)
	access.Clear()

	for i, frame := range frames {
		if frame != (Frame{}) {
			t.Fatalf("frame %d: want zero got %v", i, frame)
		}
	}
}

func TestFrameArithmetic(t *testing.T) {
	a := Frame{0.25, -0.5}
	b := Frame{0.5, 0.25}

	if got := a.Add(b); got != (Frame{0.75, -0.25}) {
		t.Fatalf("add: got %v", got)
	}

	if got := a.Scale(2); got != (Frame{0.5, -1.0}) {
		t.Fatalf("scale: got %v", got)
	}
}
