package game

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/robalobadob/tonewheel/internal/music"
)

func n(id string) music.Note { return music.Note{ID: id} }

func cToE() Rules { return Rules{Tonic: n("C"), Targets: []music.Note{n("E")}} }

// recorder collects every event a round emits, in order.
type recorder struct{ events []Event }

func (rc *recorder) kinds() []EventKind {
	out := make([]EventKind, len(rc.events))
	for i, e := range rc.events {
		out[i] = e.Kind
	}
	return out
}

func watch(r *Round) *recorder {
	rc := &recorder{}
	r.SubscribeAll(func(e Event) { rc.events = append(rc.events, e) })
	return rc
}

func TestFreshRound(t *testing.T) {
	r := NewRound()
	assert.NotEmpty(t, r.ID())
	assert.False(t, r.IsStarted())
	assert.False(t, r.IsComplete())
	assert.Equal(t, StateNotStarted, r.State())
}

func TestStartResetsProgressAndDefaultsMode(t *testing.T) {
	r := NewRound()
	rc := watch(r)
	require.NoError(t, r.Start(cToE()))

	assert.True(t, r.IsStarted())
	assert.Equal(t, StateInProgress, r.State())
	snap := r.Snapshot()
	assert.Empty(t, snap.Progress.Guesses)
	require.NotNil(t, snap.Rules)
	assert.Equal(t, ModeSequential, snap.Rules.Mode)
	assert.Equal(t, []EventKind{EventRoundStarted}, rc.kinds())

	_, err := r.Guess(n("D"))
	require.NoError(t, err)
	require.NoError(t, r.Start(cToE()))
	assert.Empty(t, r.Snapshot().Progress.Guesses)
}

func TestStartRejectsEmptyTargets(t *testing.T) {
	r := NewRound()
	err := r.Start(Rules{Tonic: n("C")})
	assert.ErrorIs(t, err, ErrNoTargets)
	assert.False(t, r.IsStarted())
}

func TestIncorrectThenCorrectCompletes(t *testing.T) {
	r := NewRound()
	require.NoError(t, r.Start(cToE()))
	rc := watch(r)

	g, err := r.Guess(n("D"))
	require.NoError(t, err)
	assert.False(t, g.IsCorrect)
	assert.False(t, r.IsComplete())
	assert.Equal(t, []EventKind{EventGuessIncorrect}, rc.kinds())

	g, err = r.Guess(music.Note{ID: "E", MIDI: 76})
	require.NoError(t, err)
	assert.True(t, g.IsCorrect)
	assert.True(t, r.IsComplete())
	assert.Equal(t, StateCompleted, r.State())
	assert.Equal(t,
		[]EventKind{EventGuessIncorrect, EventGuessCorrect, EventRoundCompleted},
		rc.kinds())
	assert.Equal(t, "E", rc.events[1].Guess.Note.ID)
	require.NotNil(t, rc.events[2].Rules)
	assert.Equal(t, "E", rc.events[2].Rules.Targets[0].ID)
}

func TestGuessOutsideInProgress(t *testing.T) {
	r := NewRound()
	rc := watch(r)
	_, err := r.Guess(n("E"))
	assert.ErrorIs(t, err, ErrNotInProgress)

	require.NoError(t, r.Start(cToE()))
	_, err = r.Guess(n("E"))
	require.NoError(t, err)

	// Completed: further guesses are rejected and nothing is recorded.
	_, err = r.Guess(n("E"))
	assert.ErrorIs(t, err, ErrNotInProgress)
	assert.Len(t, r.Snapshot().Progress.Guesses, 1)

	completed := 0
	for _, e := range rc.events {
		if e.Kind == EventRoundCompleted {
			completed++
		}
	}
	assert.Equal(t, 1, completed)
}

func TestGiveUp(t *testing.T) {
	r := NewRound()
	rc := watch(r)

	r.GiveUp() // not started: no-op
	assert.Empty(t, rc.events)

	require.NoError(t, r.Start(cToE()))
	_, _ = r.Guess(n("D"))
	r.GiveUp()

	assert.False(t, r.IsStarted())
	assert.False(t, r.IsComplete())
	assert.Equal(t, StateAbandoned, r.State())
	assert.Empty(t, r.Snapshot().Progress.Guesses)
	assert.Equal(t, EventRoundAbandoned, rc.events[len(rc.events)-1].Kind)

	_, err := r.Guess(n("E"))
	assert.ErrorIs(t, err, ErrNotInProgress)

	r.GiveUp() // already abandoned: no-op
	assert.Equal(t,
		[]EventKind{EventRoundStarted, EventGuessIncorrect, EventRoundAbandoned},
		rc.kinds())

	require.NoError(t, r.Start(cToE()))
	assert.Equal(t, StateInProgress, r.State())
}

func TestMultiTargetNeedsEveryTarget(t *testing.T) {
	r := NewRound()
	require.NoError(t, r.Start(Rules{Tonic: n("C"), Targets: []music.Note{n("E"), n("G")}}))
	_, _ = r.Guess(n("G"))
	assert.False(t, r.IsComplete())
	_, _ = r.Guess(n("G"))
	assert.False(t, r.IsComplete())
	_, _ = r.Guess(n("E"))
	assert.True(t, r.IsComplete())
}

func TestUnsubscribe(t *testing.T) {
	r := NewRound()
	calls := 0
	unsub := r.Subscribe(EventRoundStarted, func(Event) { calls++ })
	require.NoError(t, r.Start(cToE()))
	unsub()
	unsub()
	require.NoError(t, r.Start(cToE()))
	assert.Equal(t, 1, calls)
}

func TestHandlerMayReenterRound(t *testing.T) {
	r := NewRound()
	var state State
	r.Subscribe(EventRoundCompleted, func(Event) { state = r.State() })
	require.NoError(t, r.Start(cToE()))
	_, _ = r.Guess(n("E"))
	assert.Equal(t, StateCompleted, state)
}

func TestRulesAreCopied(t *testing.T) {
	rules := cToE()
	r := NewRound()
	require.NoError(t, r.Start(rules))
	rules.Targets[0] = n("F")

	got, ok := r.Rules()
	require.True(t, ok)
	assert.Equal(t, "E", got.Targets[0].ID)
}

func TestChallengeBookkeeping(t *testing.T) {
	r := NewRound()
	c4 := music.Note{ID: "C", MIDI: 60}
	e4 := music.Note{ID: "E", MIDI: 64}

	r.BeginChallenge()
	r.NoteSounding(c4)
	r.NoteSounding(e4)
	r.NoteSilenced(c4)
	snap := r.Snapshot()
	assert.True(t, snap.ChallengePlaying)
	assert.Equal(t, []music.Note{c4, e4}, snap.ChallengeNotesPlayed)
	assert.Equal(t, []music.Note{e4}, snap.ChallengeNotesSounding)

	r.NoteSounding(c4)
	r.EndChallenge()
	snap = r.Snapshot()
	assert.False(t, snap.ChallengePlaying)
	assert.Equal(t, []music.Note{c4, e4, c4}, snap.ChallengeNotesPlayed)
	assert.Empty(t, snap.ChallengeNotesSounding)

	r.BeginChallenge()
	assert.Empty(t, r.Snapshot().ChallengeNotesPlayed)
}

func TestRulesHelpers(t *testing.T) {
	rules := cToE()
	assert.Equal(t, []music.Note{n("C"), n("E"), n("C")}, rules.Sequence())
	assert.True(t, rules.SamePair(Rules{Tonic: music.Note{ID: "C", MIDI: 48}, Targets: []music.Note{n("E")}}))
	assert.False(t, rules.SamePair(Rules{Tonic: n("E"), Targets: []music.Note{n("C")}}))
}
