package game

import "time"

// EventKind names a round notification.
type EventKind string

const (
	EventRoundStarted   EventKind = "roundStarted"
	EventRoundAbandoned EventKind = "roundAbandoned"
	EventGuessCorrect   EventKind = "guessCorrect"
	EventGuessIncorrect EventKind = "guessIncorrect"
	EventRoundCompleted EventKind = "roundCompleted"
)

// AllEvents lists every kind a Round emits.
var AllEvents = []EventKind{
	EventRoundStarted,
	EventRoundAbandoned,
	EventGuessCorrect,
	EventGuessIncorrect,
	EventRoundCompleted,
}

// Event is delivered to subscribers. Guess is set for guess events only;
// Rules is set for started and completed events.
type Event struct {
	Kind    EventKind    `json:"kind"`
	RoundID string       `json:"roundId"`
	Guess   *PlayerGuess `json:"guess,omitempty"`
	Rules   *Rules       `json:"rules,omitempty"`
	At      time.Time    `json:"at"`
}

// Handler receives round notifications.
type Handler func(Event)

type listener struct {
	id int
	fn Handler
}

// listeners is a listener list keyed by event kind. Not safe on its own;
// Round guards it with its mutex.
type listeners struct {
	next   int
	byKind map[EventKind][]listener
}

func (l *listeners) add(kind EventKind, fn Handler) int {
	if l.byKind == nil {
		l.byKind = make(map[EventKind][]listener)
	}
	l.next++
	l.byKind[kind] = append(l.byKind[kind], listener{id: l.next, fn: fn})
	return l.next
}

func (l *listeners) remove(kind EventKind, id int) {
	ls := l.byKind[kind]
	for i, x := range ls {
		if x.id == id {
			l.byKind[kind] = append(ls[:i:i], ls[i+1:]...)
			return
		}
	}
}

// snapshot copies the handlers for kind so they can run without the lock.
func (l *listeners) snapshot(kind EventKind) []Handler {
	ls := l.byKind[kind]
	out := make([]Handler, len(ls))
	for i, x := range ls {
		out[i] = x.fn
	}
	return out
}
