// Package audio defines the note-trigger capability the challenge player
// drives, plus a local beep-backed piano sampler and a silent fallback.
package audio

import (
	"sync"
	"time"

	"github.com/robalobadob/tonewheel/internal/music"
)

// Options tune a single note trigger.
type Options struct {
	Velocity float64       // 0..1, zero means DefaultVelocity
	Duration time.Duration // hard cap on the voice length, zero means natural decay
}

const DefaultVelocity = 0.8

func (o Options) velocity() float64 {
	switch {
	case o.Velocity <= 0:
		return DefaultVelocity
	case o.Velocity > 1:
		return 1
	}
	return o.Velocity
}

// Player starts and stops notes. StartNote and StopNote must be safe to call
// when the player is not ready; they do nothing in that case.
type Player interface {
	Ready() bool
	StartNote(n music.Note, opts Options) *Voice
	StopNote(n music.Note) error
}

// Voice is the handle of one triggered note. Started closes once the note
// is audible, Ended once it has fully decayed or been released.
type Voice struct {
	started chan struct{}
	ended   chan struct{}

	startOnce sync.Once
	endOnce   sync.Once
	stopOnce  sync.Once
	stop      func()
}

// NewVoice returns a pending voice; stop is invoked at most once by Stop.
func NewVoice(stop func()) *Voice {
	return &Voice{
		started: make(chan struct{}),
		ended:   make(chan struct{}),
		stop:    stop,
	}
}

// FinishedVoice returns a voice that is already started and ended, used when
// a trigger is skipped.
func FinishedVoice() *Voice {
	v := NewVoice(nil)
	v.MarkStarted()
	v.MarkEnded()
	return v
}

func (v *Voice) Started() <-chan struct{} { return v.started }
func (v *Voice) Ended() <-chan struct{}   { return v.ended }

func (v *Voice) MarkStarted() { v.startOnce.Do(func() { close(v.started) }) }

// MarkEnded also marks the voice started, so waiters on either never hang.
func (v *Voice) MarkEnded() {
	v.MarkStarted()
	v.endOnce.Do(func() { close(v.ended) })
}

// Stop releases the voice.
func (v *Voice) Stop() {
	v.stopOnce.Do(func() {
		if v.stop != nil {
			v.stop()
		}
	})
}

// Silent is a Player that is never ready.
type Silent struct{}

func (Silent) Ready() bool                          { return false }
func (Silent) StartNote(music.Note, Options) *Voice { return FinishedVoice() }
func (Silent) StopNote(music.Note) error            { return nil }
