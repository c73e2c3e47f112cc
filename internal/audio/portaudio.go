package audio

import (
	"errors"
	"fmt"
	"os"
	"sync"
	"sync/atomic"

	"github.com/faiface/beep"
	"github.com/faiface/beep/wav"
	"github.com/gordonklaus/portaudio"
	"go.uber.org/zap"
)

const (
	defaultSampleRate      = 16000
	defaultFramesPerBuffer = 1024
)

// PortAudioRecorder records the default input device as 16-bit mono WAV
type PortAudioRecorder struct {
	sampleRate      int
	framesPerBuffer int
	logger          *zap.Logger
}

var _ Recorder = (*PortAudioRecorder)(nil)

// NewPortAudioRecorder initializes PortAudio. Call Terminate when done.
func NewPortAudioRecorder(sampleRate int, logger *zap.Logger) (*PortAudioRecorder, error) {
	if sampleRate <= 0 {
		sampleRate = defaultSampleRate
		logger.Info("Using default sample rate", zap.Int("sampleRate", sampleRate))
	}

	if err := portaudio.Initialize(); err != nil {
		return nil, fmt.Errorf("failed to initialize portaudio: %w", err)
	}

	return &PortAudioRecorder{
		sampleRate:      sampleRate,
		framesPerBuffer: defaultFramesPerBuffer,
		logger:          logger,
	}, nil
}

// Terminate releases PortAudio
func (r *PortAudioRecorder) Terminate() error {
	return portaudio.Terminate()
}

// Open starts reading the default input device into memory. The WAV file is
// written by Close.
func (r *PortAudioRecorder) Open(target string) (Recording, error) {
	f, err := os.Create(target)
	if err != nil {
		return nil, fmt.Errorf("failed to create recording file: %w", err)
	}

	buf := make([]int16, r.framesPerBuffer)
	stream, err := portaudio.OpenDefaultStream(1, 0, float64(r.sampleRate), len(buf), buf)
	if err != nil {
		f.Close()
		os.Remove(target)
		return nil, fmt.Errorf("failed to open input stream: %w", err)
	}

	if err := stream.Start(); err != nil {
		stream.Close()
		f.Close()
		os.Remove(target)
		return nil, fmt.Errorf("failed to start input stream: %w", err)
	}

	rec := &portAudioRecording{
		file:       f,
		stream:     stream,
		buf:        buf,
		sampleRate: r.sampleRate,
		stop:       make(chan struct{}),
		done:       make(chan struct{}),
		logger:     r.logger,
	}
	go rec.readLoop()

	return rec, nil
}

type portAudioRecording struct {
	file       *os.File
	stream     *portaudio.Stream
	buf        []int16
	sampleRate int
	logger     *zap.Logger

	peak atomic.Int32

	mu      sync.Mutex
	samples []int16
	readErr error

	stop      chan struct{}
	done      chan struct{}
	closeOnce sync.Once
	closeErr  error
}

func (p *portAudioRecording) readLoop() {
	defer close(p.done)

	for {
		select {
		case <-p.stop:
			return
		default:
		}

		if err := p.stream.Read(); err != nil {
			if errors.Is(err, portaudio.InputOverflowed) {
				continue
			}
			p.mu.Lock()
			p.readErr = err
			p.mu.Unlock()
			return
		}

		var peak int32
		for _, s := range p.buf {
			v := int32(s)
			if v < 0 {
				v = -v
			}
			if v > peak {
				peak = v
			}
		}
		for {
			cur := p.peak.Load()
			if peak <= cur || p.peak.CompareAndSwap(cur, peak) {
				break
			}
		}

		p.mu.Lock()
		p.samples = append(p.samples, p.buf...)
		p.mu.Unlock()
	}
}

func (p *portAudioRecording) MaxAmplitude() int {
	v := int(p.peak.Swap(0))
	if v > 32767 {
		v = 32767
	}
	return v
}

func (p *portAudioRecording) Close() error {
	p.closeOnce.Do(func() {
		close(p.stop)
		<-p.done

		if err := p.stream.Stop(); err != nil {
			p.logger.Warn("Failed to stop input stream", zap.Error(err))
		}
		if err := p.stream.Close(); err != nil {
			p.logger.Warn("Failed to close input stream", zap.Error(err))
		}

		p.closeErr = p.writeFile()
	})
	return p.closeErr
}

// writeFile encodes the captured samples. Nothing captured leaves an empty
// file so callers detect it as no audio.
func (p *portAudioRecording) writeFile() error {
	defer p.file.Close()

	p.mu.Lock()
	samples := p.samples
	readErr := p.readErr
	p.mu.Unlock()

	if readErr != nil {
		p.logger.Warn("Input stream ended with error", zap.Error(readErr))
	}
	if len(samples) == 0 {
		return nil
	}

	format := beep.Format{
		SampleRate:  beep.SampleRate(p.sampleRate),
		NumChannels: 1,
		Precision:   2,
	}
	if err := wav.Encode(p.file, pcmStreamer(samples), format); err != nil {
		return fmt.Errorf("failed to encode recording: %w", err)
	}
	return nil
}

// pcmStreamer plays back 16-bit mono samples as a beep stream
func pcmStreamer(samples []int16) beep.Streamer {
	pos := 0
	return beep.StreamerFunc(func(out [][2]float64) (n int, ok bool) {
		if pos >= len(samples) {
			return 0, false
		}
		for n < len(out) && pos < len(samples) {
			v := float64(samples[pos]) / 32768
			out[n][0] = v
			out[n][1] = v
			n++
			pos++
		}
		return n, true
	})
}
