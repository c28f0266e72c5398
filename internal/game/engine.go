// internal/game/engine.go
//
// Core state machine for a single interval round.
// Responsibilities:
//   - Install rules and reset progress (Start).
//   - Evaluate guesses against the targets (Guess).
//   - Abandon an in-progress round (GiveUp).
//   - Publish notifications to subscribers on every transition.
//   - Hold challenge playback bookkeeping written by the challenge player.
//
// Transitions:
//   not_started/completed/abandoned/in_progress --Start--> in_progress
//   in_progress --Guess (all targets hit)--> completed
//   in_progress --GiveUp--> abandoned (rules and progress cleared)
//
// Notes:
//   - Completion is always recomputed from rules + progress; it is never cached.
//   - Handlers run synchronously after the round's lock is released, so a
//     handler may call back into the round.

package game

import (
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/robalobadob/tonewheel/internal/music"
)

var (
	ErrNotInProgress = errors.New("round not in progress")
	ErrNoTargets     = errors.New("rules have no target notes")
)

// Round is one in-progress or finished challenge.
type Round struct {
	mu        sync.Mutex
	id        string
	rules     *Rules
	progress  Progress
	abandoned bool
	listeners listeners

	challengePlaying  bool
	challengePlayed   []music.Note
	challengeSounding []music.Note
}

// NewRound returns a round that has not been started.
func NewRound() *Round {
	return &Round{id: uuid.NewString()}
}

// ID returns the round's identifier.
func (r *Round) ID() string { return r.id }

// Start installs rules and discards any prior progress.
func (r *Round) Start(rules Rules) error {
	if len(rules.Targets) == 0 {
		return ErrNoTargets
	}
	rules = rules.clone()
	if rules.Mode == "" {
		rules.Mode = ModeSequential
	}

	r.mu.Lock()
	r.rules = &rules
	r.progress = Progress{Guesses: []PlayerGuess{}}
	r.abandoned = false
	evs := []Event{r.event(EventRoundStarted, nil, true)}
	r.mu.Unlock()

	r.emit(evs)
	return nil
}

// Guess evaluates note against the targets and records it.
// Returns ErrNotInProgress (and changes nothing) unless the round is in progress.
func (r *Round) Guess(note music.Note) (PlayerGuess, error) {
	r.mu.Lock()
	if r.state() != StateInProgress {
		r.mu.Unlock()
		return PlayerGuess{}, ErrNotInProgress
	}

	g := PlayerGuess{Note: note, IsCorrect: isCorrect(r.rules, note)}
	r.progress.Guesses = append(r.progress.Guesses, g)

	kind := EventGuessIncorrect
	if g.IsCorrect {
		kind = EventGuessCorrect
	}
	evs := []Event{r.event(kind, &g, false)}
	if isComplete(r.rules, r.progress) {
		evs = append(evs, r.event(EventRoundCompleted, nil, true))
	}
	r.mu.Unlock()

	r.emit(evs)
	return g, nil
}

// GiveUp abandons an in-progress round. It is a no-op in any other state.
func (r *Round) GiveUp() {
	r.mu.Lock()
	if r.state() != StateInProgress {
		r.mu.Unlock()
		return
	}
	r.rules = nil
	r.progress = Progress{Guesses: []PlayerGuess{}}
	r.abandoned = true
	evs := []Event{r.event(EventRoundAbandoned, nil, false)}
	r.mu.Unlock()

	r.emit(evs)
}

// IsStarted reports whether rules are installed (in progress or completed).
func (r *Round) IsStarted() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.rules != nil
}

// IsComplete reports whether every target has a correct guess.
func (r *Round) IsComplete() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return isComplete(r.rules, r.progress)
}

// State reports the lifecycle position.
func (r *Round) State() State {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state()
}

// Rules returns a copy of the installed rules, if any.
func (r *Round) Rules() (Rules, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.rules == nil {
		return Rules{}, false
	}
	return r.rules.clone(), true
}

// Snapshot copies the whole round.
func (r *Round) Snapshot() Snapshot {
	r.mu.Lock()
	defer r.mu.Unlock()
	s := Snapshot{
		ID:                     r.id,
		State:                  r.state(),
		Progress:               Progress{Guesses: append([]PlayerGuess{}, r.progress.Guesses...)},
		Complete:               isComplete(r.rules, r.progress),
		ChallengePlaying:       r.challengePlaying,
		ChallengeNotesPlayed:   append([]music.Note{}, r.challengePlayed...),
		ChallengeNotesSounding: append([]music.Note{}, r.challengeSounding...),
	}
	if r.rules != nil {
		rc := r.rules.clone()
		s.Rules = &rc
	}
	return s
}

// Subscribe registers fn for one event kind and returns its unsubscribe func.
func (r *Round) Subscribe(kind EventKind, fn Handler) func() {
	r.mu.Lock()
	id := r.listeners.add(kind, fn)
	r.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			r.mu.Lock()
			r.listeners.remove(kind, id)
			r.mu.Unlock()
		})
	}
}

// SubscribeAll registers fn for every event kind.
func (r *Round) SubscribeAll(fn Handler) func() {
	unsubs := make([]func(), 0, len(AllEvents))
	for _, k := range AllEvents {
		unsubs = append(unsubs, r.Subscribe(k, fn))
	}
	return func() {
		for _, u := range unsubs {
			u()
		}
	}
}

// ---------------------------- challenge bookkeeping ----------------------------

// BeginChallenge marks playback as running and clears the played list.
func (r *Round) BeginChallenge() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.challengePlaying = true
	r.challengePlayed = nil
}

// NoteSounding records a note that started playing.
func (r *Round) NoteSounding(n music.Note) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.challengePlayed = append(r.challengePlayed, n)
	r.challengeSounding = append(r.challengeSounding, n)
}

// NoteSilenced removes the first sounding entry equal to n.
func (r *Round) NoteSilenced(n music.Note) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i, s := range r.challengeSounding {
		if s == n {
			r.challengeSounding = append(r.challengeSounding[:i:i], r.challengeSounding[i+1:]...)
			return
		}
	}
}

// EndChallenge marks playback as finished and clears the sounding list.
func (r *Round) EndChallenge() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.challengePlaying = false
	r.challengeSounding = nil
}

// ---------------------------------- internals ----------------------------------

// state must be called with r.mu held.
func (r *Round) state() State {
	switch {
	case r.rules == nil && r.abandoned:
		return StateAbandoned
	case r.rules == nil:
		return StateNotStarted
	case isComplete(r.rules, r.progress):
		return StateCompleted
	default:
		return StateInProgress
	}
}

// event must be called with r.mu held.
func (r *Round) event(kind EventKind, g *PlayerGuess, withRules bool) Event {
	ev := Event{Kind: kind, RoundID: r.id, Guess: g, At: time.Now().UTC()}
	if withRules && r.rules != nil {
		rc := r.rules.clone()
		ev.Rules = &rc
	}
	return ev
}

// emit delivers events in order. Must be called without r.mu held.
func (r *Round) emit(evs []Event) {
	for _, ev := range evs {
		r.mu.Lock()
		hs := r.listeners.snapshot(ev.Kind)
		r.mu.Unlock()
		for _, h := range hs {
			h(ev)
		}
	}
}

// isCorrect reports whether note shares an ID with any target.
func isCorrect(rules *Rules, note music.Note) bool {
	if rules == nil {
		return false
	}
	for _, t := range rules.Targets {
		if t.Same(note) {
			return true
		}
	}
	return false
}

// isComplete reports whether every target has at least one correct guess.
func isComplete(rules *Rules, p Progress) bool {
	if rules == nil || len(rules.Targets) == 0 {
		return false
	}
	for _, t := range rules.Targets {
		hit := false
		for _, g := range p.Guesses {
			if g.IsCorrect && g.Note.Same(t) {
				hit = true
				break
			}
		}
		if !hit {
			return false
		}
	}
	return true
}
