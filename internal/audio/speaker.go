package audio

import (
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/faiface/beep"
	"github.com/faiface/beep/mp3"
	"github.com/faiface/beep/speaker"
	"go.uber.org/zap"
)

const defaultPlaybackSampleRate = 44100

// SpeakerBackend plays MP3 files on the default output device
type SpeakerBackend struct {
	sampleRate beep.SampleRate
	logger     *zap.Logger

	initOnce sync.Once
	initErr  error
}

var _ Backend = (*SpeakerBackend)(nil)

// NewSpeakerBackend creates a backend mixing at sampleRate. The device is
// opened lazily on first playback.
func NewSpeakerBackend(sampleRate int, logger *zap.Logger) *SpeakerBackend {
	if sampleRate <= 0 {
		sampleRate = defaultPlaybackSampleRate
		logger.Info("Using default playback sample rate", zap.Int("sampleRate", sampleRate))
	}
	return &SpeakerBackend{
		sampleRate: beep.SampleRate(sampleRate),
		logger:     logger,
	}
}

func (b *SpeakerBackend) init() error {
	b.initOnce.Do(func() {
		b.initErr = speaker.Init(b.sampleRate, b.sampleRate.N(time.Second/10))
	})
	return b.initErr
}

// Open decodes path and starts playing it
func (b *SpeakerBackend) Open(path string) (Playback, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open audio file: %w", err)
	}

	streamer, format, err := mp3.Decode(f)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to decode audio file: %w", err)
	}

	if err := b.init(); err != nil {
		streamer.Close()
		return nil, fmt.Errorf("failed to initialize speaker: %w", err)
	}

	var source beep.Streamer = streamer
	if format.SampleRate != b.sampleRate {
		source = beep.Resample(4, format.SampleRate, b.sampleRate, streamer)
	}

	pb := &speakerPlayback{
		closer: streamer,
		done:   make(chan error, 1),
	}
	pb.ctrl = &beep.Ctrl{
		Streamer: beep.Seq(source, beep.Callback(func() {
			pb.finish(streamer.Err())
		})),
	}
	speaker.Play(pb.ctrl)

	return pb, nil
}

type speakerPlayback struct {
	ctrl   *beep.Ctrl
	closer beep.StreamSeekCloser
	done   chan error
	once   sync.Once
}

func (p *speakerPlayback) Done() <-chan error {
	return p.done
}

func (p *speakerPlayback) Stop() {
	speaker.Lock()
	p.ctrl.Streamer = nil
	speaker.Unlock()
	p.finish(nil)
}

func (p *speakerPlayback) finish(err error) {
	p.once.Do(func() {
		p.closer.Close()
		p.done <- err
	})
}
