//go:build (linux && cgo) || windows || darwin

package beep

import (
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/gopxl/beep/v2"
	"github.com/gopxl/beep/v2/mp3"
	"github.com/gopxl/beep/v2/speaker"
	"github.com/gopxl/beep/v2/wav"
)

// player handles the actual audio output using beep.
type player struct {
	mu sync.Mutex

	initialized bool
	sampleRate  beep.SampleRate
	ctrl        *beep.Ctrl
	streamer    beep.StreamSeekCloser
	format      beep.Format
}

func newPlayer() (audio, error) {
	return &player{sampleRate: beep.SampleRate(44100)}, nil
}

// initSpeakerLocked initializes the speaker once.
func (p *player) initSpeakerLocked() error {
	if p.initialized {
		return nil
	}
	if err := speaker.Init(p.sampleRate, p.sampleRate.N(time.Second/10)); err != nil {
		return errors.Wrap(ErrAudioUnavailable, err.Error())
	}
	p.initialized = true
	return nil
}

func (p *player) load(path string, onDone func()) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.stopLocked()

	f, err := os.Open(path)
	if err != nil {
		return err
	}

	var streamer beep.StreamSeekCloser
	var format beep.Format
	switch strings.ToLower(filepath.Ext(path)) {
	case ".wav":
		streamer, format, err = wav.Decode(f)
	default:
		streamer, format, err = mp3.Decode(f)
	}
	if err != nil {
		f.Close()
		return errors.Wrap(err, "decode failed")
	}

	if err := p.initSpeakerLocked(); err != nil {
		streamer.Close()
		return err
	}

	p.streamer = streamer
	p.format = format
	p.ctrl = &beep.Ctrl{Streamer: beep.Resample(4, format.SampleRate, p.sampleRate, streamer)}

	// The callback runs on the speaker goroutine and must not block.
	speaker.Play(beep.Seq(p.ctrl, beep.Callback(onDone)))
	return nil
}

func (p *player) pause() {
	p.setPaused(true)
}

func (p *player) resume() {
	p.setPaused(false)
}

func (p *player) setPaused(paused bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.ctrl != nil {
		speaker.Lock()
		p.ctrl.Paused = paused
		speaker.Unlock()
	}
}

func (p *player) stop() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.stopLocked()
}

// stopLocked must be called with lock held.
func (p *player) stopLocked() {
	if p.initialized {
		speaker.Clear()
	}
	if p.streamer != nil {
		p.streamer.Close()
		p.streamer = nil
	}
	p.ctrl = nil
}

func (p *player) seek(d time.Duration) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.streamer == nil {
		return nil
	}

	speaker.Lock()
	defer speaker.Unlock()

	samples := min(p.format.SampleRate.N(d), p.streamer.Len()-1)
	return p.streamer.Seek(max(samples, 0))
}

func (p *player) position() time.Duration {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.streamer == nil {
		return 0
	}

	speaker.Lock()
	pos := p.streamer.Position()
	speaker.Unlock()

	return p.format.SampleRate.D(pos)
}

func (p *player) duration() time.Duration {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.streamer == nil {
		return 0
	}
	return p.format.SampleRate.D(p.streamer.Len())
}
