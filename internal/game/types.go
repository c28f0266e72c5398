// internal/game/types.go
//
// Core type definitions for the interval round engine.
// Defines:
//   - ChallengeMode: how the challenge is presented (sequential/chord).
//   - Rules: tonic + target notes for one round (immutable once attached).
//   - PlayerGuess / Progress: the append-only guess log.
//   - State: coarse lifecycle of a Round.
//   - Snapshot: a copy of a round's state safe to hand to other goroutines.

package game

import "github.com/robalobadob/tonewheel/internal/music"

// ChallengeMode selects how the challenge notes are presented.
// Only sequential playback is implemented; chord is accepted and stored.
type ChallengeMode string

const (
	ModeSequential ChallengeMode = "sequential"
	ModeChord      ChallengeMode = "chord"
)

// Rules describe what the player must identify.
type Rules struct {
	Tonic   music.Note    `json:"tonic"`
	Targets []music.Note  `json:"targets"`
	Mode    ChallengeMode `json:"challengeMode"`
}

// Sequence returns the challenge playback order: tonic, targets..., tonic.
func (r Rules) Sequence() []music.Note {
	seq := make([]music.Note, 0, len(r.Targets)+2)
	seq = append(seq, r.Tonic)
	seq = append(seq, r.Targets...)
	return append(seq, r.Tonic)
}

// SamePair reports whether two rules share tonic and target IDs in order.
func (r Rules) SamePair(o Rules) bool {
	if !r.Tonic.Same(o.Tonic) || len(r.Targets) != len(o.Targets) {
		return false
	}
	for i := range r.Targets {
		if !r.Targets[i].Same(o.Targets[i]) {
			return false
		}
	}
	return true
}

func (r Rules) clone() Rules {
	r.Targets = append([]music.Note(nil), r.Targets...)
	return r
}

// PlayerGuess is one submitted note and whether it matched a target.
type PlayerGuess struct {
	Note      music.Note `json:"note"`
	IsCorrect bool       `json:"isCorrect"`
}

// Progress is the guess log of a round, in submission order.
type Progress struct {
	Guesses []PlayerGuess `json:"guesses"`
}

// State is the lifecycle position of a Round.
type State string

const (
	StateNotStarted State = "not_started"
	StateInProgress State = "in_progress"
	StateCompleted  State = "completed"
	StateAbandoned  State = "abandoned"
)

// Snapshot is a point-in-time copy of a Round.
type Snapshot struct {
	ID                     string       `json:"id"`
	State                  State        `json:"state"`
	Rules                  *Rules       `json:"rules,omitempty"`
	Progress               Progress     `json:"progress"`
	Complete               bool         `json:"complete"`
	ChallengePlaying       bool         `json:"challengePlaying"`
	ChallengeNotesPlayed   []music.Note `json:"challengeNotesPlayed"`
	ChallengeNotesSounding []music.Note `json:"challengeNotesSounding"`
}
