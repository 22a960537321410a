package cadence

import (
	"sync"
	"time"

	"github.com/rakyll/portmidi"
)

var portmidiOnce sync.Once

func initPortmidi() {
	portmidiOnce.Do(func() {
		// Initialization failures surface later as empty port lists.
		_ = portmidi.Initialize()
	})
}

// MidiIn feeds messages from a named system MIDI port into the graph.
// A listener goroutine pushes received messages into a buffered
// channel; render drains it into the first frame's chain. Messages
// beyond the channel's capacity are dropped.
type MidiIn struct {
	BaseNode

	mu     sync.Mutex
	stream *portmidi.Stream
	stop   chan struct{}
	events chan Message

	portName string
}

func NewMidiIn() *MidiIn {
	return &MidiIn{
		events: make(chan Message, 256),
	}
}

func (m *MidiIn) Name() string          { return "MIDI In" }
func (m *MidiIn) Outputs() []BusKind    { return monoMidiBus }
func (m *MidiIn) OutputNames() []string { return []string{"out"} }

func (m *MidiIn) Params() []Parameter {
	return []Parameter{{Kind: ParamString, Name: "port"}}
}

func (m *MidiIn) ParamDefault(int) (ParamValue, bool) {
	return StringValue(""), true
}

// ParamUpdated reconnects to the named port. An unknown name leaves
// the connection empty and the node silent.
func (m *MidiIn) ParamUpdated(_ int, value ParamValue) {
	name := value.Str()

	m.mu.Lock()
	defer m.mu.Unlock()

	m.disconnectLocked()
	m.portName = name

	if name == "" {
		return
	}

	initPortmidi()

	for id := 0; id < portmidi.CountDevices(); id++ {
		info := portmidi.Info(portmidi.DeviceID(id))
		if info == nil || !info.IsInputAvailable || info.Name != name {
			continue
		}

		stream, err := portmidi.NewInputStream(portmidi.DeviceID(id), 1024)
		if err != nil {
			return
		}

		m.stream = stream
		m.stop = make(chan struct{})
		go m.listen(stream, m.stop)
		return
	}
}

func (m *MidiIn) listen(stream *portmidi.Stream, stop chan struct{}) {
	ticker := time.NewTicker(time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			ready, err := stream.Poll()
			if err != nil || !ready {
				continue
			}

			events, err := stream.Read(64)
			if err != nil {
				continue
			}

			for _, ev := range events {
				msg := NewMessage(uint8(ev.Status), uint8(ev.Data1), uint8(ev.Data2))
				select {
				case m.events <- msg:
				default:
					// Render thread is lagging; shed the message.
				}
			}
		}
	}
}

func (m *MidiIn) disconnectLocked() {
	if m.stop != nil {
		close(m.stop)
		m.stop = nil
	}
	if m.stream != nil {
		m.stream.Close()
		m.stream = nil
	}
}

// Disconnect closes the port and stops the listener. Hosts call it
// before discarding the node.
func (m *MidiIn) Disconnect() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.disconnectLocked()
}

func (m *MidiIn) Render(_ int, buf BufferAccess, _ *NodeInstance, _ *Engine) {
	chains := buf.Midi()
	if len(chains) == 0 {
		return
	}

	for {
		select {
		case msg := <-m.events:
			chains[0].Push(msg)
		default:
			return
		}
	}
}
