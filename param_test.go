package cadence

import (
	"math"
	"testing"
)

func TestParamValueEncodeParseRoundTrip(t *testing.T) {
	values := []ParamValue{
		StringValue("hello world"),
		StringValue(""),
		FloatValue(440.0),
		FloatValue(-0.125),
		FloatValue(0.1),
		IntValue(-42),
		IntValue(0),
		BoolValue(true),
		BoolValue(false),
	}

	for _, v := range values {
		parsed, err := ParseParamValue(v.Encode())
		if err != nil {
			t.Fatalf("parse %q: %v", v.Encode(), err)
		}
		if parsed != v {
			t.Fatalf("round trip %q: got %q", v.Encode(), parsed.Encode())
		}
	}
}

func TestParamValueEncodeForms(t *testing.T) {
	cases := map[string]ParamValue{
		"s:text": StringValue("text"),
		"f:440":  FloatValue(440),
		"i:-7":   IntValue(-7),
		"b:true": BoolValue(true),
	}

	for want, v := range cases {
		if got := v.Encode(); got != want {
			t.Fatalf("encode: want %q got %q", want, got)
		}
	}
}

func TestParseParamValueMalformed(t *testing.T) {
	for _, text := range []string{"", "x:1", "f:abc", "i:1.5", "b:yes", "f"} {
		if _, err := ParseParamValue(text); err == nil {
			t.Fatalf("want error parsing %q", text)
		}
	}
}

func TestParamValueKindMismatchPanics(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Fatal("want panic on cross-kind assignment")
		}
	}()

	v := FloatValue(1.0)
	v.Set(IntValue(1))
}

func TestParamValueAccessorMismatchPanics(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Fatal("want panic reading Float from a String value")
		}
	}()

	_ = StringValue("nope").Float()
}

func TestSetMetadataRejectsWhitespaceKey(t *testing.T) {
	e := New(48000)
	inst, _ := e.Node(SinkID)

	defer func() {
		if recover() == nil {
			t.Fatal("want panic on whitespace in metadata key")
		}
	}()

	inst.SetMetadata("bad key", IntValue(1))
}

func TestSetParamNotifiesNode(t *testing.T) {
	e := New(48000)

	sine, _ := e.CreateNode("cadence.sine")
	inst, _ := e.Node(sine)

	inst.SetParam(0, FloatValue(880))

	if got := inst.ParamValue(0).Float(); got != 880 {
		t.Fatalf("stored value: want 880 got %v", got)
	}

	// The behavior observed the update: rendering uses the new rate.
	e.Playing = true
	mustConnect(t, e, SinkID, 0, OutputRef{Node: sine})

	buf := make([]Frame, 512)
	e.Render(buf)

	want := float32(math.Sin(2 * math.Pi * (27.0 / 48000) * 880))
	if math.Abs(float64(buf[27][0]-want)) > 1e-6 {
		t.Fatalf("sine did not pick up the frequency update: frame 27 want %v got %v", want, buf[27][0])
	}
}

func TestParamDefaultsSeedInstance(t *testing.T) {
	e := New(48000)

	sine, _ := e.CreateNode("cadence.sine")
	inst, _ := e.Node(sine)

	if got := inst.ParamValue(0).Float(); got != 440.0 {
		t.Fatalf("default freq: want 440 got %v", got)
	}
}
