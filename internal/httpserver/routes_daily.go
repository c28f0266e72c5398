// internal/httpserver/routes_daily.go
//
// HTTP routes for the "Daily Challenge" mode.
// Exposes three endpoints under /daily:
//   - POST /daily/new         → start today's round (creates or reuses a session)
//   - POST /daily/guess       → submit a guess for today's round
//   - GET  /daily/leaderboard → fetch top 20 results for today (or a given date)
//
// Each player can finish once per day (enforced by the UNIQUE constraint and
// the AlreadyPlayed check). The pair is derived from date + salt, so every
// player hears the same interval.

package httpserver

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"

	"github.com/robalobadob/tonewheel/internal/daily"
	"github.com/robalobadob/tonewheel/internal/game"
)

// dailyServer wraps dependencies for /daily endpoints.
type dailyServer struct {
	srv      *Server
	store    *daily.Store
	salt     string
	now      func() time.Time
	sessions map[string]string // userID|date → session ID
	mu       sync.Mutex        // guards sessions
}

// mountDaily registers all /daily routes.
func (s *Server) mountDaily(r chi.Router) {
	s.daily = &dailyServer{
		srv:      s,
		store:    daily.NewStore(s.db),
		salt:     s.cfg.DailySalt,
		now:      time.Now,
		sessions: make(map[string]string),
	}
	r.Route("/daily", func(r chi.Router) {
		r.Post("/new", s.daily.handleNew)
		r.Post("/guess", s.daily.handleGuess)
		r.Get("/leaderboard", s.daily.handleLeaderboard)
	})
}

// playerID is the account ID when logged in, otherwise the anon cookie.
func (d *dailyServer) playerID(w http.ResponseWriter, r *http.Request) string {
	if me := userFrom(r); me != nil {
		return me.ID
	}
	return d.srv.ensureAnonID(w, r)
}

// -----------------------------------------------------------------------------
// /daily/new

// newRes is returned by /daily/new.
type newRes struct {
	SessionID string     `json:"sessionId,omitempty"`
	Date      string     `json:"date"`
	Played    bool       `json:"played"`
	Round     *roundView `json:"round,omitempty"`
}

// handleNew creates or reuses a daily session for the current date.
// - If the player already has a result for today → Played=true.
// - Otherwise reuse the in-memory session or start a new one.
func (d *dailyServer) handleNew(w http.ResponseWriter, r *http.Request) {
	uid := d.playerID(w, r)
	date := daily.DateKey(d.now())

	played, err := d.store.AlreadyPlayed(r.Context(), uid, date)
	if err != nil {
		log.Error().Err(err).Str("user", uid).Str("date", date).Msg("daily already played")
		writeError(w, http.StatusInternalServerError, "server_error")
		return
	}
	if played {
		_ = json.NewEncoder(w).Encode(newRes{Date: date, Played: true})
		return
	}

	key := uid + "|" + date
	d.mu.Lock()
	id, ok := d.sessions[key]
	d.mu.Unlock()
	if ok {
		if sess, err := d.srv.store.Get(r.Context(), id); err == nil && sess.Round().IsStarted() {
			v := viewOf(sess)
			_ = json.NewEncoder(w).Encode(newRes{SessionID: sess.ID, Date: date, Round: &v})
			return
		}
		// Given up: the old session is replaced below.
		_ = d.srv.store.Delete(r.Context(), id)
		d.srv.hub.forget(id)
	}

	rules, err := daily.RulesFor(d.now(), d.salt, d.srv.pool)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	sess, err := d.srv.newSession(r.Context(), d.srv.ownerOf(w, r))
	if err != nil {
		writeError(w, http.StatusInternalServerError, "save_failed")
		return
	}
	rd, err := sess.StartWith(r.Context(), rules)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	d.recordOnCompletion(rd, uid, date, d.now())

	d.mu.Lock()
	d.sessions[key] = sess.ID
	d.mu.Unlock()

	v := viewOf(sess)
	_ = json.NewEncoder(w).Encode(newRes{SessionID: sess.ID, Date: date, Round: &v})
}

// forget drops the daily entry pointing at sessionID, if any.
func (d *dailyServer) forget(sessionID string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	for key, id := range d.sessions {
		if id == sessionID {
			delete(d.sessions, key)
		}
	}
}

// recordOnCompletion stores the daily result once rd is completed.
func (d *dailyServer) recordOnCompletion(rd *game.Round, uid, date string, start time.Time) {
	rd.Subscribe(game.EventRoundCompleted, func(e game.Event) {
		ctx, cancel := context.WithTimeout(context.Background(), dbWriteTimeout)
		defer cancel()
		res := daily.Result{
			UserID:    uid,
			Date:      date,
			Guesses:   len(rd.Snapshot().Progress.Guesses),
			ElapsedMs: int(e.At.Sub(start).Milliseconds()),
		}
		if err := d.store.InsertResult(ctx, res); err != nil {
			log.Warn().Err(err).Str("user", uid).Str("date", date).Msg("insert daily result")
		}
	})
}

// -----------------------------------------------------------------------------
// /daily/guess

// handleGuess applies a guess to today's session; other sessions are rejected.
func (d *dailyServer) handleGuess(w http.ResponseWriter, r *http.Request) {
	req, err := decodeSessionReq(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "bad_json")
		return
	}
	key := d.playerID(w, r) + "|" + daily.DateKey(d.now())
	d.mu.Lock()
	id, ok := d.sessions[key]
	d.mu.Unlock()
	if !ok || id != req.SessionID {
		writeError(w, http.StatusConflict, "no_session")
		return
	}
	sess, ok := d.srv.lookup(w, r, id)
	if !ok {
		return
	}
	d.srv.applyGuess(w, sess, req.Note)
}

// -----------------------------------------------------------------------------
// /daily/leaderboard

// lbRes is returned by /daily/leaderboard.
type lbRes struct {
	Date string        `json:"date"`
	Top  []daily.LBRow `json:"top"`
}

// handleLeaderboard returns the leaderboard for the given date (default today).
func (d *dailyServer) handleLeaderboard(w http.ResponseWriter, r *http.Request) {
	date := r.URL.Query().Get("date")
	if date == "" {
		date = daily.DateKey(d.now())
	}
	rows, err := d.store.Leaderboard(r.Context(), date, 20)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "server_error")
		return
	}
	_ = json.NewEncoder(w).Encode(lbRes{Date: date, Top: rows})
}
