// internal/session/session.go
//
// Game orchestration for one player.
// Responsibilities:
//   - Draw a fresh (tonic, target) pair from the candidate pool, never the
//     same pair twice in a row (StartNewGame).
//   - Replay the current rules on a fresh round (RestartGame).
//   - Abandon the current round (EndGame).
//   - Reset instrument highlights and kick off challenge playback.
//
// Notes:
//   - A new Round is created for every game; rounds are never reused.
//   - Playback is fire-and-forget: a new game does not stop the previous
//     run unless Config.Preempt is set. Replay never overlaps a run of the
//     same round.

package session

import (
	"context"
	"errors"
	"math/rand"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/robalobadob/tonewheel/internal/audio"
	"github.com/robalobadob/tonewheel/internal/challenge"
	"github.com/robalobadob/tonewheel/internal/game"
	"github.com/robalobadob/tonewheel/internal/instrument"
	"github.com/robalobadob/tonewheel/internal/music"
)

var (
	ErrEmptyPool    = errors.New("candidate pool is empty")
	ErrPoolTooSmall = errors.New("candidate pool needs at least two pitch classes")
	ErrNoRules      = errors.New("no previous round to restart")

	ErrChallengePlaying = errors.New("challenge already playing")
)

// Config wires a Session's collaborators.
type Config struct {
	ID      string        // empty means a fresh uuid
	Pool    []music.Note  // candidate notes, typically the active scale
	Audio   audio.Player  // nil means silent
	Pause   time.Duration // per-note challenge pause, zero means challenge.DefaultPause
	Preempt bool          // cancel in-flight playback when a new round starts
	Rand    *rand.Rand    // nil means time-seeded
}

// Session owns the current round of one player.
type Session struct {
	ID string

	mu         sync.Mutex
	pool       []music.Note
	rng        *rand.Rand
	round      *game.Round
	lastRules  *game.Rules
	preempt    bool
	cancel     context.CancelFunc // cancels the tracked run
	done       chan struct{}      // closed when the tracked run ends
	starting   sync.Mutex         // serialises round starts
	observers  []func(*game.Round)
	instrument *instrument.Instrument
	player     *challenge.Player
	playback   sync.WaitGroup
	log        zerolog.Logger
}

// New builds a session with a not-started round.
func New(cfg Config) *Session {
	rng := cfg.Rand
	if rng == nil {
		rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	player := cfg.Audio
	if player == nil {
		player = audio.Silent{}
	}
	id := cfg.ID
	if id == "" {
		id = uuid.NewString()
	}
	inst := instrument.New()
	return &Session{
		ID:         id,
		pool:       append([]music.Note(nil), cfg.Pool...),
		rng:        rng,
		round:      game.NewRound(),
		preempt:    cfg.Preempt,
		instrument: inst,
		player:     &challenge.Player{Audio: player, Highlighter: inst, Pause: cfg.Pause},
		log:        log.With().Str("session", id).Logger(),
	}
}

// PickRandomNote returns a uniformly random candidate.
func PickRandomNote(rng *rand.Rand, candidates []music.Note) (music.Note, error) {
	n, ok := pick(rng, candidates)
	if !ok {
		return music.Note{}, ErrEmptyPool
	}
	return n, nil
}

func pick[T any](rng *rand.Rand, xs []T) (T, bool) {
	var zero T
	if len(xs) == 0 {
		return zero, false
	}
	return xs[rng.Intn(len(xs))], true
}

// Round returns the current round.
func (s *Session) Round() *game.Round {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.round
}

// Pool returns a copy of the candidate pool.
func (s *Session) Pool() []music.Note {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]music.Note(nil), s.pool...)
}

// Instrument exposes held/highlighted note bookkeeping.
func (s *Session) Instrument() *instrument.Instrument { return s.instrument }

// OnRound registers fn to be called with every new round right after it is
// created and before it is started, so fn may subscribe to its events.
func (s *Session) OnRound(fn func(*game.Round)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.observers = append(s.observers, fn)
}

// StartNewGame draws new rules and starts a round with them.
func (s *Session) StartNewGame(ctx context.Context) (*game.Round, error) {
	s.starting.Lock()
	defer s.starting.Unlock()

	s.mu.Lock()
	rules, err := s.drawRules()
	s.mu.Unlock()
	if err != nil {
		return nil, err
	}
	return s.start(ctx, rules)
}

// RestartGame replays the most recent rules on a fresh round.
func (s *Session) RestartGame(ctx context.Context) (*game.Round, error) {
	s.starting.Lock()
	defer s.starting.Unlock()

	s.mu.Lock()
	last := s.lastRules
	s.mu.Unlock()
	if last == nil {
		return nil, ErrNoRules
	}
	return s.start(ctx, *last)
}

// StartWith starts a fresh round with explicit rules (daily challenge, tests).
func (s *Session) StartWith(ctx context.Context, rules game.Rules) (*game.Round, error) {
	s.starting.Lock()
	defer s.starting.Unlock()
	return s.start(ctx, rules)
}

// start must hold s.starting, so a draw and the lastRules it reads belong to
// the same start.
func (s *Session) start(ctx context.Context, rules game.Rules) (*game.Round, error) {
	r := game.NewRound()

	s.mu.Lock()
	observers := append([]func(*game.Round){}, s.observers...)
	s.mu.Unlock()
	for _, fn := range observers {
		fn(r)
	}
	if err := r.Start(rules); err != nil {
		return nil, err
	}
	rules, _ = r.Rules()
	s.instrument.Reset()

	s.mu.Lock()
	s.round = r
	s.lastRules = &rules
	s.launch(ctx, r)
	s.mu.Unlock()

	s.log.Info().
		Str("round", r.ID()).
		Str("tonic", rules.Tonic.String()).
		Int("targets", len(rules.Targets)).
		Msg("round started")
	return r, nil
}

// Replay plays the current round's challenge again without resetting it.
// A run still in flight is cancelled when Config.Preempt is set, otherwise
// Replay fails with ErrChallengePlaying.
func (s *Session) Replay(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	r := s.round
	if !r.IsStarted() {
		return game.ErrNotInProgress
	}
	if s.playing() && !s.preempt {
		return ErrChallengePlaying
	}
	s.launch(ctx, r)
	return nil
}

// launch starts challenge playback of r and makes it the tracked run. With
// Preempt set the previous run is cancelled and the new one waits for it to
// unwind, so two runs never drive the same round at once. Must hold s.mu.
func (s *Session) launch(ctx context.Context, r *game.Round) {
	prev := s.done
	if s.cancel != nil && s.preempt {
		s.cancel()
	} else {
		prev = nil
	}
	playCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	done := make(chan struct{})
	s.cancel, s.done = cancel, done

	s.playback.Add(1)
	go func() {
		defer s.playback.Done()
		defer close(done)
		defer cancel()
		if prev != nil {
			<-prev
			if playCtx.Err() != nil {
				return
			}
		}
		if err := s.player.Play(playCtx, r); err != nil && !errors.Is(err, context.Canceled) {
			s.log.Warn().Err(err).Str("round", r.ID()).Msg("challenge playback")
		}
	}()
}

// playing reports whether the tracked run is still going. Must hold s.mu.
func (s *Session) playing() bool {
	if s.done == nil {
		return false
	}
	select {
	case <-s.done:
		return false
	default:
		return true
	}
}

// Guess forwards a guess to the current round.
func (s *Session) Guess(n music.Note) (game.PlayerGuess, error) {
	return s.Round().Guess(n)
}

// EndGame abandons the current round and clears instrument state. Playback
// already in flight is left to finish.
func (s *Session) EndGame() {
	s.mu.Lock()
	r := s.round
	s.round = game.NewRound()
	s.mu.Unlock()

	r.GiveUp()
	s.instrument.Reset()
	s.log.Info().Str("round", r.ID()).Msg("game ended")
}

// Wait blocks until all in-flight challenge playback has finished.
func (s *Session) Wait() { s.playback.Wait() }

// drawRules picks uniformly among all (tonic, target) pairs whose notes
// differ by ID and that do not repeat the previous round's pair. Must hold
// s.mu.
func (s *Session) drawRules() (game.Rules, error) {
	if len(s.pool) == 0 {
		return game.Rules{}, ErrEmptyPool
	}
	var pairs []game.Rules
	for _, tonic := range s.pool {
		for _, target := range s.pool {
			if tonic.Same(target) {
				continue
			}
			r := game.Rules{Tonic: tonic, Targets: []music.Note{target}, Mode: game.ModeSequential}
			if s.lastRules != nil && s.lastRules.SamePair(r) {
				continue
			}
			pairs = append(pairs, r)
		}
	}
	rules, ok := pick(s.rng, pairs)
	if !ok {
		return game.Rules{}, ErrPoolTooSmall
	}
	return rules, nil
}
