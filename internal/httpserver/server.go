// internal/httpserver/server.go
//
// HTTP server wiring for the tonewheel backend.
// Responsibilities:
//   - Router + middleware (JSON, CORS, timeouts, panic recovery, request IDs).
//   - Public endpoints: "/", "/health", "/interval".
//   - Game endpoints (optional auth): /game/new, /game/restart, /game/guess,
//     /game/end, /game/replay, /game/note, GET /game/{id}.
//   - Challenge export (/game/{id}/challenge.mid) and live stream (/game/{id}/ws).
//   - Daily Challenge endpoints (optional auth): mounted under /daily.
//   - Auth + profile/stat endpoints: see auth.go.
//
// Notes:
//   - A session ID doubles as the game ID clients refer to.
//   - Round views never reveal targets before the round is complete.
//   - The WebSocket route sits outside the timeout group; it is long-lived.

package httpserver

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/rs/cors"
	"github.com/rs/zerolog/log"

	"github.com/robalobadob/tonewheel/internal/audio"
	"github.com/robalobadob/tonewheel/internal/challenge"
	"github.com/robalobadob/tonewheel/internal/config"
	"github.com/robalobadob/tonewheel/internal/game"
	"github.com/robalobadob/tonewheel/internal/music"
	"github.com/robalobadob/tonewheel/internal/session"
	"github.com/robalobadob/tonewheel/internal/store"
)

// Server bundles router, in-memory session store, and DB handle.
type Server struct {
	r     *chi.Mux
	store store.Store
	db    *sql.DB
	cfg   config.Config
	pool  []music.Note
	hub   *hub
	daily *dailyServer
}

// New constructs a Server, installs middleware, and registers routes.
func New(st store.Store, db *sql.DB, cfg config.Config) (*Server, error) {
	pool, err := cfg.Pool()
	if err != nil {
		return nil, err
	}
	s := &Server{r: chi.NewRouter(), store: st, db: db, cfg: cfg, pool: pool, hub: newHub()}

	// --- middleware ---
	s.r.Use(chimw.RequestID) // add X-Request-ID
	s.r.Use(chimw.RealIP)    // set RemoteAddr from X-Forwarded-For etc.
	s.r.Use(chimw.Recoverer) // recover from panics
	s.r.Use(jsonContentType) // default JSON responses
	s.r.Use(cors.New(cors.Options{
		AllowedOrigins:   []string{cfg.ClientOrigin},
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders:   []string{"Content-Type", "Authorization"},
		AllowCredentials: true,
	}).Handler)

	s.r.With(s.withOptionalAuth()).Get("/game/{id}/ws", s.handleWS)

	s.r.Group(func(r chi.Router) {
		r.Use(chimw.Timeout(10 * time.Second)) // bound handler time

		// --- diagnostics ---
		r.Get("/", func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusOK)
			_, _ = w.Write([]byte(`{"service":"tonewheel","endpoints":["/health","/interval","POST /game/new","POST /game/guess","/daily/*","/auth/*"]}`))
		})
		r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
			_ = json.NewEncoder(w).Encode(map[string]any{"ok": true, "sessions": s.store.Len()})
		})
		r.Get("/interval", s.handleInterval)

		// Game endpoints, optional auth (guests can play)
		r.Group(func(r chi.Router) {
			r.Use(s.withOptionalAuth())
			r.Post("/game/new", s.handleNewGame)
			r.Post("/game/restart", s.handleRestart)
			r.Post("/game/guess", s.handleGuess)
			r.Post("/game/end", s.handleEnd)
			r.Post("/game/replay", s.handleReplay)
			r.Post("/game/note", s.handleNote)
			r.Get("/game/{id}", s.handleGetGame)
			r.Get("/game/{id}/challenge.mid", s.handleChallengeMIDI)

			// Daily Challenge: one result per player per day
			s.mountDaily(r)
		})

		s.mountAuthRoutes(r)
	})

	// JSON 404 for easier debugging
	s.r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusNotFound, "not_found")
	})

	return s, nil
}

// Start begins serving HTTP on addr until ctx is cancelled.
func (s *Server) Start(ctx context.Context, addr string) error {
	srv := &http.Server{Addr: addr, Handler: s.r, ReadHeaderTimeout: 5 * time.Second}
	go s.sweepSessions(ctx)
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// sweepSessions evicts idle sessions until ctx is cancelled.
func (s *Server) sweepSessions(ctx context.Context) {
	if s.cfg.SessionIdle <= 0 {
		return
	}
	t := time.NewTicker(s.cfg.SessionIdle / 2)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-t.C:
			s.evictIdle(ctx, now)
		}
	}
}

// evictIdle abandons and drops sessions untouched for cfg.SessionIdle as of
// now. Sessions with a connected WebSocket client are kept.
func (s *Server) evictIdle(ctx context.Context, now time.Time) {
	idle, err := s.store.Idle(ctx, now.Add(-s.cfg.SessionIdle))
	if err != nil {
		log.Warn().Err(err).Msg("list idle sessions")
		return
	}
	for _, sess := range idle {
		if s.hub.count(sess.ID) > 0 {
			continue
		}
		if sess.Round().IsStarted() {
			sess.EndGame()
		}
		if err := s.store.Delete(ctx, sess.ID); err != nil {
			log.Warn().Err(err).Str("session", sess.ID).Msg("evict session")
			continue
		}
		s.hub.forget(sess.ID)
		s.daily.forget(sess.ID)
		log.Debug().Str("session", sess.ID).Msg("session evicted")
	}
}

// Router exposes the internal router (useful for tests).
func (s *Server) Router() chi.Router { return s.r }

// ----------------------------- middleware ----------------------------------

// jsonContentType sets a default JSON Content-Type header on all responses.
func jsonContentType(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json; charset=utf-8")
		next.ServeHTTP(w, r)
	})
}

// writeError writes {"error": msg} with the given status.
func writeError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": msg})
}

// ------------------------------ VIEWS --------------------------------------

// roundView is what clients see of a session's current round.
type roundView struct {
	SessionID        string             `json:"sessionId"`
	RoundID          string             `json:"roundId"`
	State            game.State         `json:"state"`
	Mode             game.ChallengeMode `json:"challengeMode,omitempty"`
	Tonic            *music.Note        `json:"tonic,omitempty"`
	Targets          []music.Note       `json:"targets,omitempty"`
	Interval         string             `json:"interval,omitempty"`
	Guesses          []game.PlayerGuess `json:"guesses"`
	Complete         bool               `json:"complete"`
	ChallengePlaying bool               `json:"challengePlaying"`
	NotesPlayed      int                `json:"notesPlayed"`
	Highlighted      []music.Note       `json:"highlighted"`
	Held             []music.Note       `json:"held"`
}

func viewOf(sess *session.Session) roundView {
	snap := sess.Round().Snapshot()
	v := roundView{
		SessionID:        sess.ID,
		RoundID:          snap.ID,
		State:            snap.State,
		Guesses:          snap.Progress.Guesses,
		Complete:         snap.Complete,
		ChallengePlaying: snap.ChallengePlaying,
		NotesPlayed:      len(snap.ChallengeNotesPlayed),
		Highlighted:      sess.Instrument().Highlighted(),
		Held:             sess.Instrument().Held(),
	}
	if v.Guesses == nil {
		v.Guesses = []game.PlayerGuess{}
	}
	if rules := snap.Rules; rules != nil {
		tonic := rules.Tonic
		v.Tonic = &tonic
		v.Mode = rules.Mode
		if snap.Complete {
			v.Targets = rules.Targets
			if len(rules.Targets) > 0 {
				v.Interval, _ = music.NameInterval(rules.Tonic, rules.Targets[0])
			}
		}
	}
	return v
}

// ------------------------------ GAME ---------------------------------------

// sessionReq is the shared request body of the game endpoints.
type sessionReq struct {
	SessionID string `json:"sessionId"`
	Note      string `json:"note,omitempty"`
	On        bool   `json:"on,omitempty"`
}

func decodeSessionReq(r *http.Request) (sessionReq, error) {
	var req sessionReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		return req, err
	}
	return req, nil
}

// newSession builds a session whose audio is the WebSocket hub and whose
// rounds are streamed and persisted.
func (s *Server) newSession(ctx context.Context, own owner) (*session.Session, error) {
	id := genID()
	sess := session.New(session.Config{
		ID:      id,
		Pool:    s.pool,
		Audio:   s.hub.player(id),
		Pause:   s.cfg.ChallengePause,
		Preempt: s.cfg.ChallengePreempt,
	})
	sess.OnRound(func(rd *game.Round) {
		rd.SubscribeAll(func(e game.Event) { s.hub.forward(id, e) })
		s.trackRound(own, rd)
	})
	if err := s.store.Save(ctx, sess); err != nil {
		s.hub.forget(id)
		return nil, err
	}
	return sess, nil
}

// lookup loads the session named in the request, writing a 404 on a miss.
func (s *Server) lookup(w http.ResponseWriter, r *http.Request, id string) (*session.Session, bool) {
	sess, err := s.store.Get(r.Context(), id)
	if err != nil {
		writeError(w, http.StatusNotFound, "not_found")
		return nil, false
	}
	return sess, true
}

// handleNewGame starts a round with fresh rules, creating the session when
// the request does not name one.
func (s *Server) handleNewGame(w http.ResponseWriter, r *http.Request) {
	req, err := decodeSessionReq(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "bad_json")
		return
	}

	var sess *session.Session
	if req.SessionID != "" {
		var ok bool
		if sess, ok = s.lookup(w, r, req.SessionID); !ok {
			return
		}
	} else if sess, err = s.newSession(r.Context(), s.ownerOf(w, r)); err != nil {
		log.Error().Err(err).Msg("save session")
		writeError(w, http.StatusInternalServerError, "save_failed")
		return
	}

	if _, err := sess.StartNewGame(r.Context()); err != nil {
		log.Error().Err(err).Str("session", sess.ID).Msg("start game")
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	_ = json.NewEncoder(w).Encode(viewOf(sess))
}

func (s *Server) handleRestart(w http.ResponseWriter, r *http.Request) {
	req, err := decodeSessionReq(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "bad_json")
		return
	}
	sess, ok := s.lookup(w, r, req.SessionID)
	if !ok {
		return
	}
	if _, err := sess.RestartGame(r.Context()); err != nil {
		if errors.Is(err, session.ErrNoRules) {
			writeError(w, http.StatusConflict, "no_previous_round")
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	_ = json.NewEncoder(w).Encode(viewOf(sess))
}

// guessRes is returned by POST /game/guess.
type guessRes struct {
	Guess game.PlayerGuess `json:"guess"`
	Round roundView        `json:"round"`
}

func (s *Server) handleGuess(w http.ResponseWriter, r *http.Request) {
	req, err := decodeSessionReq(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "bad_json")
		return
	}
	sess, ok := s.lookup(w, r, req.SessionID)
	if !ok {
		return
	}
	s.applyGuess(w, sess, req.Note)
}

// applyGuess parses note, resolves it against the session pool and submits it.
func (s *Server) applyGuess(w http.ResponseWriter, sess *session.Session, note string) {
	n, err := music.ParseNote(note)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_note")
		return
	}
	n, _ = music.Resolve(sess.Pool(), n)

	g, err := sess.Guess(n)
	if err != nil {
		if errors.Is(err, game.ErrNotInProgress) {
			writeError(w, http.StatusConflict, "not_in_progress")
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	_ = json.NewEncoder(w).Encode(guessRes{Guess: g, Round: viewOf(sess)})
}

func (s *Server) handleEnd(w http.ResponseWriter, r *http.Request) {
	req, err := decodeSessionReq(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "bad_json")
		return
	}
	sess, ok := s.lookup(w, r, req.SessionID)
	if !ok {
		return
	}
	sess.EndGame()
	_ = json.NewEncoder(w).Encode(viewOf(sess))
}

func (s *Server) handleReplay(w http.ResponseWriter, r *http.Request) {
	req, err := decodeSessionReq(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "bad_json")
		return
	}
	sess, ok := s.lookup(w, r, req.SessionID)
	if !ok {
		return
	}
	if err := sess.Replay(r.Context()); err != nil {
		switch {
		case errors.Is(err, game.ErrNotInProgress):
			writeError(w, http.StatusConflict, "not_in_progress")
		case errors.Is(err, session.ErrChallengePlaying):
			writeError(w, http.StatusConflict, "challenge_playing")
		default:
			writeError(w, http.StatusInternalServerError, err.Error())
		}
		return
	}
	_ = json.NewEncoder(w).Encode(viewOf(sess))
}

// handleNote presses or releases a key on the session's instrument and
// sounds it on connected clients.
func (s *Server) handleNote(w http.ResponseWriter, r *http.Request) {
	req, err := decodeSessionReq(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "bad_json")
		return
	}
	sess, ok := s.lookup(w, r, req.SessionID)
	if !ok {
		return
	}
	n, err := music.ParseNote(req.Note)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_note")
		return
	}
	n, _ = music.Resolve(sess.Pool(), n)

	p := s.hub.player(sess.ID)
	if req.On {
		sess.Instrument().Hold(n)
		p.StartNote(n, audio.Options{})
	} else {
		sess.Instrument().Release(n)
		_ = p.StopNote(n)
	}
	_ = json.NewEncoder(w).Encode(viewOf(sess))
}

func (s *Server) handleGetGame(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.lookup(w, r, chi.URLParam(r, "id"))
	if !ok {
		return
	}
	_ = json.NewEncoder(w).Encode(viewOf(sess))
}

// handleChallengeMIDI exports the current round's challenge as a Standard
// MIDI File.
func (s *Server) handleChallengeMIDI(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.lookup(w, r, chi.URLParam(r, "id"))
	if !ok {
		return
	}
	rules, ok := sess.Round().Rules()
	if !ok {
		writeError(w, http.StatusConflict, "not_started")
		return
	}
	w.Header().Set("Content-Type", "audio/midi")
	w.Header().Set("Content-Disposition", `attachment; filename="challenge.mid"`)
	if err := challenge.WriteMIDI(w, rules, s.cfg.ChallengePause); err != nil {
		log.Warn().Err(err).Str("session", sess.ID).Msg("write midi")
	}
}

// intervalRes is returned by GET /interval.
type intervalRes struct {
	From      music.Note `json:"from"`
	To        music.Note `json:"to"`
	Semitones int        `json:"semitones"`
	Name      string     `json:"name"`
	Aliases   []string   `json:"aliases,omitempty"`
}

// handleInterval names the interval between two pitched notes.
func (s *Server) handleInterval(w http.ResponseWriter, r *http.Request) {
	from, err := music.ParseNote(r.URL.Query().Get("from"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	to, err := music.ParseNote(r.URL.Query().Get("to"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	d, err := music.IntervalSemitones(from, to)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	name, err := music.IntervalName(d)
	if err != nil {
		writeError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}
	_ = json.NewEncoder(w).Encode(intervalRes{From: from, To: to, Semitones: d, Name: name, Aliases: music.IntervalAliases(d)})
}
