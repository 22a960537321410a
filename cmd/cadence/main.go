package main

import (
	"flag"
	"fmt"
	"math"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"
	"github.com/gordonklaus/portaudio"
	"github.com/rakyll/portmidi"
	"github.com/rs/zerolog"

	"github.com/shaban/cadence"
)

func main() {
	var (
		projectPath = flag.String("project", "", "project file to load")
		sampleRate  = flag.Int("rate", 48000, "output sample rate")
		latency     = flag.String("latency", "medium", "latency preference: low, medium, high")
		seconds     = flag.Float64("seconds", 0, "run time in seconds; 0 runs until interrupted")
		outPath     = flag.String("out", "output.wav", "wav capture path; empty disables capture")
		listMidi    = flag.Bool("list-midi", false, "list available midi inputs and exit")
	)
	flag.Parse()

	log := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).With().Timestamp().Logger()

	if *listMidi {
		listMidiInputs(log)
		return
	}

	engine := cadence.New(uint32(*sampleRate))
	engine.SetLogger(log)
	engine.EnableReadback = *outPath != ""

	if *projectPath != "" {
		if err := engine.Load(*projectPath); err != nil {
			log.Fatal().Err(err).Msg("project load failed")
		}
	}

	engine.Playing = true

	var engineMu sync.Mutex

	edits := cadence.NewEditQueue(engine, &engineMu, 32)
	edits.SetErrorHandler(cadence.NewLoggingErrorHandler(nil, log))
	edits.Start()
	defer edits.Close()

	if err := portaudio.Initialize(); err != nil {
		log.Fatal().Err(err).Msg("portaudio init failed")
	}
	defer portaudio.Terminate()

	frames := cadence.ResolveBufferSize(cadence.LatencyClass(*latency), uint32(*sampleRate))
	renderBuf := make([]cadence.Frame, frames)

	var (
		captureMu sync.Mutex
		captured  []float32
	)

	stream, err := portaudio.OpenDefaultStream(0, 2, float64(*sampleRate), frames,
		func(out []float32) {
			engineMu.Lock()
			engine.Render(renderBuf)

			if engine.EnableReadback {
				captureMu.Lock()
				for _, frame := range engine.Readback() {
					captured = append(captured, frame[0], frame[1])
				}
				captureMu.Unlock()
			}
			engineMu.Unlock()

			for i, frame := range renderBuf {
				out[i*2] = frame[0]
				out[i*2+1] = frame[1]
			}
		})
	if err != nil {
		log.Fatal().Err(err).Msg("opening output stream failed")
	}
	defer stream.Close()

	if err := stream.Start(); err != nil {
		log.Fatal().Err(err).Msg("starting output stream failed")
	}

	log.Info().
		Int("rate", *sampleRate).
		Int("frames", frames).
		Msg("stream opened")

	interrupt := make(chan os.Signal, 1)
	signal.Notify(interrupt, os.Interrupt, syscall.SIGTERM)

	start := time.Now()
	ticker := time.NewTicker(200 * time.Millisecond)
	defer ticker.Stop()

loop:
	for {
		select {
		case <-interrupt:
			break loop
		case <-ticker.C:
			if *seconds > 0 && time.Since(start).Seconds() >= *seconds {
				break loop
			}

			engineMu.Lock()
			processTime := engine.DbgProcessTime
			bufferTime := engine.DbgBufferTime
			bufferSize := engine.DbgBufferSize
			engineMu.Unlock()

			if bufferTime > 0 {
				fmt.Printf("ct/bt: %.2f%% - ct: %.2fms - bt: %.2fms - buf: %d\n",
					processTime/bufferTime*100,
					processTime*1000,
					bufferTime*1000,
					bufferSize,
				)
			}
		}
	}

	if err := stream.Stop(); err != nil {
		log.Error().Err(err).Msg("stopping output stream failed")
	}

	if *outPath != "" {
		captureMu.Lock()
		samples := captured
		captureMu.Unlock()

		if err := writeCapture(*outPath, *sampleRate, samples); err != nil {
			log.Error().Err(err).Msg("writing capture failed")
			return
		}
		log.Info().Str("path", *outPath).Int("samples", len(samples)).Msg("capture written")
	}
}

func listMidiInputs(log zerolog.Logger) {
	if err := portmidi.Initialize(); err != nil {
		log.Fatal().Err(err).Msg("portmidi init failed")
	}
	defer portmidi.Terminate()

	fmt.Println("available midi inputs:")
	for id := 0; id < portmidi.CountDevices(); id++ {
		info := portmidi.Info(portmidi.DeviceID(id))
		if info != nil && info.IsInputAvailable {
			fmt.Printf("  %s\n", info.Name)
		}
	}
}

// writeCapture stores the interleaved capture as 16-bit stereo PCM.
func writeCapture(path string, sampleRate int, samples []float32) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	enc := wav.NewEncoder(f, sampleRate, 16, 2, 1)

	data := make([]int, len(samples))
	for i, s := range samples {
		v := math.Round(float64(s) * 32767)
		if v > 32767 {
			v = 32767
		} else if v < -32768 {
			v = -32768
		}
		data[i] = int(v)
	}

	buf := &audio.IntBuffer{
		Format:         &audio.Format{NumChannels: 2, SampleRate: sampleRate},
		Data:           data,
		SourceBitDepth: 16,
	}

	if err := enc.Write(buf); err != nil {
		return err
	}

	return enc.Close()
}
