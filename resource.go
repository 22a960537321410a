package cadence

import (
	"encoding/binary"
	"fmt"
	"math"
	"os"
	"sync"

	"github.com/go-audio/wav"
)

// Resource is a shareable mutable asset. Mutations and queries go
// through a discoverable string-keyed surface so external tools can
// drive any resource kind uniformly.
type Resource interface {
	Kind() string
	ApplyAction(action string, args []ParamValue)
	Get(keys []ParamValue) (ParamValue, bool)
	Save() []byte
	Load(data []byte) error
	Clone() Resource
}

type resourceShared struct {
	mu  sync.RWMutex
	res Resource
	id  uint32

	pathMu sync.Mutex
	path   string
}

// ResourceHandle is shared ownership of a resource. The zero handle is
// empty (unbound): nodes declare resource slots with empty handles and
// the engine binds them later. Two handles are the same when they
// refer to the same underlying resource instance.
type ResourceHandle struct {
	shared *resourceShared
}

// EmptyHandle returns an unbound handle.
func EmptyHandle() ResourceHandle { return ResourceHandle{} }

func newResourceHandle(res Resource, id uint32, path string) ResourceHandle {
	return ResourceHandle{shared: &resourceShared{res: res, id: id, path: path}}
}

func (h ResourceHandle) IsEmpty() bool { return h.shared == nil }

// Same reports whether two handles refer to the same resource.
func (h ResourceHandle) Same(o ResourceHandle) bool { return h.shared == o.shared }

// ID returns the engine-stable resource id; zero-valued for handles
// never registered with an engine.
func (h ResourceHandle) ID() uint32 {
	if h.shared == nil {
		return 0
	}
	return h.shared.id
}

// KindTag returns the resource's static kind string.
func (h ResourceHandle) KindTag() string {
	if h.shared == nil {
		return ""
	}
	h.shared.mu.RLock()
	defer h.shared.mu.RUnlock()
	return h.shared.res.Kind()
}

// Read runs fn with shared read access to the resource. It is a no-op
// on an empty handle and reports whether fn ran.
func (h ResourceHandle) Read(fn func(Resource)) bool {
	if h.shared == nil {
		return false
	}
	h.shared.mu.RLock()
	defer h.shared.mu.RUnlock()
	fn(h.shared.res)
	return true
}

// Write runs fn with exclusive access to the resource.
func (h ResourceHandle) Write(fn func(Resource)) bool {
	if h.shared == nil {
		return false
	}
	h.shared.mu.Lock()
	defer h.shared.mu.Unlock()
	fn(h.shared.res)
	return true
}

func (h ResourceHandle) ApplyAction(action string, args []ParamValue) {
	h.Write(func(r Resource) { r.ApplyAction(action, args) })
}

func (h ResourceHandle) Get(keys []ParamValue) (ParamValue, bool) {
	var (
		v  ParamValue
		ok bool
	)
	h.Read(func(r Resource) { v, ok = r.Get(keys) })
	return v, ok
}

// Path returns the external file path backing the resource, if any.
func (h ResourceHandle) Path() (string, bool) {
	if h.shared == nil {
		return "", false
	}
	h.shared.pathMu.Lock()
	defer h.shared.pathMu.Unlock()
	return h.shared.path, h.shared.path != ""
}

func (h ResourceHandle) IsExternal() bool {
	_, ok := h.Path()
	return ok
}

// DetachFromExternal drops the external path; the resource payload is
// written inline on the next save.
func (h ResourceHandle) DetachFromExternal() {
	if h.shared == nil {
		return
	}
	h.shared.pathMu.Lock()
	defer h.shared.pathMu.Unlock()
	h.shared.path = ""
}

// MakeUnique rebinds the handle to a private deep copy of the
// resource. The copy is not registered with any engine.
func (h *ResourceHandle) MakeUnique() {
	if h.shared == nil {
		return
	}
	h.shared.mu.RLock()
	cloned := h.shared.res.Clone()
	h.shared.mu.RUnlock()
	h.shared = &resourceShared{res: cloned}
}

// ResourceSlot names a node's resource attachment point and the kind
// it accepts.
type ResourceSlot struct {
	Name string
	Kind string
}

// ResourceLoader builds a resource from an external file. Loaders are
// selected by file extension.
type ResourceLoader interface {
	Extensions() []string
	LoadFile(path string) (Resource, error)
}

// AudioData is sampled stereo audio with its native sample rate.
type AudioData struct {
	Data       []Frame
	SampleRate uint32
}

func (a *AudioData) Kind() string { return "AudioData" }

func (a *AudioData) ApplyAction(action string, args []ParamValue) {}

func (a *AudioData) Get(keys []ParamValue) (ParamValue, bool) {
	if len(keys) == 0 || keys[0].Kind() != ParamString {
		return ParamValue{}, false
	}

	switch keys[0].Str() {
	case "get_length":
		return IntValue(int64(len(a.Data))), true
	case "get_sample_rate":
		return IntValue(int64(a.SampleRate)), true
	default:
		return ParamValue{}, false
	}
}

// Save encodes the sample rate (u32) followed by interleaved 32-bit
// float frames.
func (a *AudioData) Save() []byte {
	out := make([]byte, 0, 4+len(a.Data)*8)
	out = binary.NativeEndian.AppendUint32(out, a.SampleRate)

	for _, frame := range a.Data {
		out = binary.NativeEndian.AppendUint32(out, math.Float32bits(frame[0]))
		out = binary.NativeEndian.AppendUint32(out, math.Float32bits(frame[1]))
	}

	return out
}

func (a *AudioData) Load(data []byte) error {
	if len(data) < 4 {
		return fmt.Errorf("truncated AudioData payload: %d bytes", len(data))
	}
	if (len(data)-4)%8 != 0 {
		return fmt.Errorf("AudioData payload is not frame-aligned: %d bytes", len(data))
	}

	a.SampleRate = binary.NativeEndian.Uint32(data)
	data = data[4:]

	a.Data = make([]Frame, len(data)/8)
	for i := range a.Data {
		a.Data[i] = Frame{
			math.Float32frombits(binary.NativeEndian.Uint32(data[i*8:])),
			math.Float32frombits(binary.NativeEndian.Uint32(data[i*8+4:])),
		}
	}

	return nil
}

func (a *AudioData) Clone() Resource {
	return &AudioData{
		Data:       append([]Frame(nil), a.Data...),
		SampleRate: a.SampleRate,
	}
}

// WavLoader decodes RIFF/WAV files into AudioData. Mono sources are
// duplicated to both channels; channels beyond the second are dropped.
type WavLoader struct{}

func (WavLoader) Extensions() []string { return []string{".wav"} }

func (WavLoader) LoadFile(path string) (Resource, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	dec := wav.NewDecoder(f)
	if !dec.IsValidFile() {
		return nil, fmt.Errorf("%s is not a valid wav file", path)
	}

	pcm, err := dec.FullPCMBuffer()
	if err != nil {
		return nil, fmt.Errorf("decoding %s: %w", path, err)
	}

	channels := pcm.Format.NumChannels
	if channels < 1 {
		return nil, fmt.Errorf("%s has no channels", path)
	}

	// Format 3 is IEEE float, already normalized; integer PCM scales
	// by its bit depth.
	scale := float32(1.0)
	if dec.WavAudioFormat != 3 && dec.BitDepth > 0 {
		scale = 1.0 / float32(uint64(1)<<(dec.BitDepth-1))
	}

	frames := make([]Frame, len(pcm.Data)/channels)
	for i := range frames {
		l := float32(pcm.Data[i*channels]) * scale
		r := l
		if channels > 1 {
			r = float32(pcm.Data[i*channels+1]) * scale
		}
		frames[i] = Frame{l, r}
	}

	return &AudioData{
		Data:       frames,
		SampleRate: uint32(pcm.Format.SampleRate),
	}, nil
}
