package audio

import (
	"math"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gopxl/beep"
)

const (
	pianoAttack   = 5 * time.Millisecond
	pianoRelease  = 60 * time.Millisecond
	pianoDecay    = 1.2 // seconds to 1/e
	pianoMaxVoice = 4 * time.Second
)

// partials are relative amplitudes of the first harmonics.
var partials = [...]float64{1.0, 0.45, 0.22, 0.12, 0.06}

// pianoVoice synthesises a struck-string tone: harmonic partials under an
// exponential decay, with a short linear release once released.
type pianoVoice struct {
	freq    float64
	amp     float64
	sr      beep.SampleRate
	attack  int
	relLen  int
	maxLen  int
	onStart func()

	pos        int
	relPos     int
	relStarted bool
	once       sync.Once
	released   atomic.Bool
}

func newPianoVoice(sr beep.SampleRate, freq float64, opts Options, onStart func()) *pianoVoice {
	maxLen := sr.N(pianoMaxVoice)
	if opts.Duration > 0 && sr.N(opts.Duration) < maxLen {
		maxLen = sr.N(opts.Duration)
	}
	norm := 0.0
	for _, p := range partials {
		norm += p
	}
	return &pianoVoice{
		freq:    freq,
		amp:     opts.velocity() / norm * 0.5,
		sr:      sr,
		attack:  sr.N(pianoAttack),
		relLen:  sr.N(pianoRelease),
		maxLen:  maxLen,
		onStart: onStart,
	}
}

// release starts the fade-out; safe from any goroutine.
func (p *pianoVoice) release() { p.released.Store(true) }

func (p *pianoVoice) Stream(samples [][2]float64) (n int, ok bool) {
	if p.onStart != nil {
		p.once.Do(p.onStart)
	}
	for i := range samples {
		if p.pos >= p.maxLen {
			return i, i > 0
		}
		if !p.relStarted && p.released.Load() {
			p.relStarted = true
			p.relPos = p.pos
		}

		t := float64(p.pos) / float64(p.sr)
		env := math.Exp(-t / pianoDecay)
		if p.pos < p.attack {
			env *= float64(p.pos) / float64(p.attack)
		}
		if p.relStarted {
			k := p.pos - p.relPos
			if k >= p.relLen {
				return i, i > 0
			}
			env *= 1 - float64(k)/float64(p.relLen)
		}

		v := 0.0
		for h, w := range partials {
			v += w * math.Sin(2*math.Pi*p.freq*float64(h+1)*t)
		}
		v *= p.amp * env
		samples[i][0], samples[i][1] = v, v
		p.pos++
	}
	return len(samples), true
}

func (p *pianoVoice) Err() error { return nil }
