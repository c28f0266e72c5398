// internal/httpserver/history.go
//
// Persists round history and user stats from round notifications, so the
// HTTP handlers never write rows themselves.

package httpserver

import (
	"context"
	"database/sql"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/robalobadob/tonewheel/internal/game"
	"github.com/robalobadob/tonewheel/internal/music"
)

const (
	statusPlaying   = "playing"
	statusCompleted = "completed"
	statusAbandoned = "abandoned"

	dbWriteTimeout = 3 * time.Second
)

// owner identifies who a round row belongs to; exactly one field is set.
type owner struct {
	userID string
	anonID string
}

func (s *Server) ownerOf(w http.ResponseWriter, r *http.Request) owner {
	if me := userFrom(r); me != nil {
		return owner{userID: me.ID}
	}
	return owner{anonID: s.ensureAnonID(w, r)}
}

// trackRound subscribes the history writers to rd.
func (s *Server) trackRound(own owner, rd *game.Round) {
	rd.Subscribe(game.EventRoundStarted, func(e game.Event) {
		if e.Rules != nil {
			s.insertRound(own, e.RoundID, *e.Rules, e.At)
		}
	})
	countGuess := func(e game.Event) {
		ctx, cancel := context.WithTimeout(context.Background(), dbWriteTimeout)
		defer cancel()
		if _, err := s.db.ExecContext(ctx, `UPDATE rounds SET guesses = guesses + 1 WHERE id=?`, e.RoundID); err != nil {
			log.Warn().Err(err).Str("round", e.RoundID).Msg("update guesses")
		}
	}
	rd.Subscribe(game.EventGuessCorrect, countGuess)
	rd.Subscribe(game.EventGuessIncorrect, countGuess)
	rd.Subscribe(game.EventRoundCompleted, func(e game.Event) {
		s.finishRound(e.RoundID, statusCompleted, e.At)
	})
	rd.Subscribe(game.EventRoundAbandoned, func(e game.Event) {
		s.finishRound(e.RoundID, statusAbandoned, e.At)
	})
}

func (s *Server) insertRound(own owner, id string, rules game.Rules, at time.Time) {
	ctx, cancel := context.WithTimeout(context.Background(), dbWriteTimeout)
	defer cancel()

	target := ""
	if len(rules.Targets) > 0 {
		target = rules.Targets[0].String()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO rounds (id, user_id, anonymous_id, tonic, target, status, guesses, started_at)
		 VALUES (?,?,?,?,?,?,0,?)`,
		id, nullable(own.userID), nullable(own.anonID), rules.Tonic.String(), target,
		statusPlaying, at.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		log.Warn().Err(err).Str("round", id).Msg("insert round row")
	}
}

// finishRound closes a playing row and, for rounds owned by an account,
// updates the owner's stats in the same transaction.
func (s *Server) finishRound(id, status string, at time.Time) {
	ctx, cancel := context.WithTimeout(context.Background(), dbWriteTimeout)
	defer cancel()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		log.Warn().Err(err).Msg("begin finish round")
		return
	}
	defer func() { _ = tx.Rollback() }()

	res, err := tx.Exec(`UPDATE rounds SET status=?, finished_at=? WHERE id=? AND status=?`,
		status, at.UTC().Format(time.RFC3339Nano), id, statusPlaying)
	if err != nil {
		log.Warn().Err(err).Str("round", id).Msg("finish round")
		return
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return
	}

	var userID sql.NullString
	if err := tx.QueryRow(`SELECT user_id FROM rounds WHERE id=?`, id).Scan(&userID); err != nil {
		log.Warn().Err(err).Str("round", id).Msg("round owner")
		return
	}
	if userID.Valid {
		if err := bumpStats(tx, userID.String, status == statusCompleted); err != nil {
			log.Warn().Err(err).Str("user", userID.String).Msg("bump stats")
			return
		}
	}
	if err := tx.Commit(); err != nil {
		log.Warn().Err(err).Str("round", id).Msg("commit finish round")
	}
}

func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}

// intervalBetween names the interval between two stored note labels, or ""
// if either does not parse.
func intervalBetween(a, b string) string {
	na, err := music.ParseNote(a)
	if err != nil {
		return ""
	}
	nb, err := music.ParseNote(b)
	if err != nil {
		return ""
	}
	name, err := music.NameInterval(na, nb)
	if err != nil {
		return ""
	}
	return name
}
