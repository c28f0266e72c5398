package audio

import (
	"fmt"
	"sync"
	"time"

	"github.com/gopxl/beep"
	"github.com/gopxl/beep/speaker"
	"github.com/rs/zerolog/log"

	"github.com/robalobadob/tonewheel/internal/music"
)

const SampleRate = beep.SampleRate(44100)

// Sampler plays synthesised piano notes through the system speaker.
// At most one voice sounds per MIDI pitch: starting a pitch again releases
// the previous voice first.
type Sampler struct {
	mu     sync.Mutex
	mixer  *beep.Mixer
	voices map[int]*pianoVoice
	ready  bool

	// lock/unlock guard mixer mutation against the output goroutine.
	lock, unlock func()
}

// NewSampler returns a sampler that stays silent until Init succeeds.
func NewSampler() *Sampler {
	return &Sampler{
		mixer:  &beep.Mixer{},
		voices: make(map[int]*pianoVoice),
		lock:   func() {},
		unlock: func() {},
	}
}

// Init opens the speaker. Failure leaves the sampler silent and is returned
// for logging only; callers may keep using the sampler.
func (s *Sampler) Init() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ready {
		return nil
	}
	if err := speaker.Init(SampleRate, SampleRate.N(50*time.Millisecond)); err != nil {
		return fmt.Errorf("audio: speaker init: %w", err)
	}
	s.lock, s.unlock = speaker.Lock, speaker.Unlock
	speaker.Play(s.mixer)
	s.ready = true
	log.Debug().Int("sampleRate", int(SampleRate)).Msg("sampler ready")
	return nil
}

// Close releases every voice and silences the sampler.
func (s *Sampler) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.ready {
		return
	}
	for _, pv := range s.voices {
		pv.release()
	}
	s.voices = make(map[int]*pianoVoice)
	s.lock()
	s.mixer.Clear()
	s.unlock()
	s.ready = false
}

func (s *Sampler) Ready() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ready
}

// StartNote triggers n. Unpitched notes and an unready sampler yield a
// finished voice.
func (s *Sampler) StartNote(n music.Note, opts Options) *Voice {
	if !n.Pitched() {
		return FinishedVoice()
	}

	s.mu.Lock()
	if !s.ready {
		s.mu.Unlock()
		return FinishedVoice()
	}
	if prior := s.voices[n.MIDI]; prior != nil {
		prior.release()
	}
	var pv *pianoVoice
	v := NewVoice(func() { pv.release() })
	pv = newPianoVoice(SampleRate, music.Frequency(n.MIDI), opts, v.MarkStarted)
	s.voices[n.MIDI] = pv
	lock, unlock := s.lock, s.unlock
	s.mu.Unlock()

	// The callback runs on the output goroutine; it must not take s.mu.
	lock()
	s.mixer.Add(beep.Seq(pv, beep.Callback(v.MarkEnded)))
	unlock()
	return v
}

// StopNote releases the voice currently sounding at n's pitch, if any.
func (s *Sampler) StopNote(n music.Note) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.ready {
		return nil
	}
	pv := s.voices[n.MIDI]
	if pv == nil {
		return nil
	}
	pv.release()
	delete(s.voices, n.MIDI)
	return nil
}
