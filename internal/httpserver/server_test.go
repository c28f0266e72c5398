package httpserver

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/robalobadob/tonewheel/assets"
	"github.com/robalobadob/tonewheel/internal/config"
	"github.com/robalobadob/tonewheel/internal/database"
	"github.com/robalobadob/tonewheel/internal/game"
	"github.com/robalobadob/tonewheel/internal/music"
	"github.com/robalobadob/tonewheel/internal/store"
)

type testEnv struct {
	srv    *Server
	ts     *httptest.Server
	client *http.Client
}

func newTestEnv(t *testing.T, opts ...func(*config.Config)) *testEnv {
	t.Helper()
	db, err := database.Open(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	require.NoError(t, database.Migrate(db, assets.Migrations))

	cfg := config.Config{
		JWTSecret:      "test_secret",
		JWTExpiresDays: 1,
		CookieName:     "tw_token",
		ClientOrigin:   "http://localhost:5173",
		DailySalt:      "salt",
		Scale:          "major",
		ScaleRoot:      "C4",
		ChallengePause: time.Millisecond,
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	srv, err := New(store.NewMemoryStore(), db, cfg)
	require.NoError(t, err)

	ts := httptest.NewServer(srv.Router())
	t.Cleanup(ts.Close)

	jar, err := cookiejar.New(nil)
	require.NoError(t, err)
	return &testEnv{srv: srv, ts: ts, client: &http.Client{Jar: jar}}
}

func (e *testEnv) do(t *testing.T, method, path string, body any) (int, []byte) {
	t.Helper()
	var rd io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(t, err)
		rd = bytes.NewReader(b)
	}
	req, err := http.NewRequest(method, e.ts.URL+path, rd)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	res, err := e.client.Do(req)
	require.NoError(t, err)
	defer res.Body.Close()
	out, err := io.ReadAll(res.Body)
	require.NoError(t, err)
	return res.StatusCode, out
}

func (e *testEnv) view(t *testing.T, method, path string, body any) roundView {
	t.Helper()
	code, b := e.do(t, method, path, body)
	require.Equal(t, http.StatusOK, code, string(b))
	var v roundView
	require.NoError(t, json.Unmarshal(b, &v))
	return v
}

// rules reads the hidden rules straight from the session store.
func (e *testEnv) rules(t *testing.T, sessionID string) game.Rules {
	t.Helper()
	sess, err := e.srv.store.Get(context.Background(), sessionID)
	require.NoError(t, err)
	rules, ok := sess.Round().Rules()
	require.True(t, ok)
	return rules
}

// wrongNote returns a pool note that is not a target.
func (e *testEnv) wrongNote(t *testing.T, rules game.Rules) music.Note {
	t.Helper()
	for _, n := range e.srv.pool {
		if !n.Same(rules.Targets[0]) {
			return n
		}
	}
	t.Fatal("pool has no wrong note")
	return music.Note{}
}

func TestHealthAndInterval(t *testing.T) {
	e := newTestEnv(t)

	code, b := e.do(t, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, code)
	assert.Contains(t, string(b), `"ok":true`)

	code, b = e.do(t, http.MethodGet, "/interval?from=C4&to=G4", nil)
	require.Equal(t, http.StatusOK, code, string(b))
	var iv intervalRes
	require.NoError(t, json.Unmarshal(b, &iv))
	assert.Equal(t, 7, iv.Semitones)
	assert.Equal(t, "Perfect Fifth", iv.Name)

	code, _ = e.do(t, http.MethodGet, "/interval?from=C&to=G4", nil)
	assert.Equal(t, http.StatusBadRequest, code)

	code, _ = e.do(t, http.MethodGet, "/interval?from=C2&to=C5", nil)
	assert.Equal(t, http.StatusUnprocessableEntity, code)

	code, _ = e.do(t, http.MethodGet, "/nope", nil)
	assert.Equal(t, http.StatusNotFound, code)
}

func TestGameFlowHidesTargetUntilComplete(t *testing.T) {
	e := newTestEnv(t)

	v := e.view(t, http.MethodPost, "/game/new", nil)
	require.NotEmpty(t, v.SessionID)
	assert.Equal(t, game.StateInProgress, v.State)
	require.NotNil(t, v.Tonic)
	assert.Empty(t, v.Targets)
	assert.Empty(t, v.Interval)

	rules := e.rules(t, v.SessionID)
	wrong := e.wrongNote(t, rules)

	code, b := e.do(t, http.MethodPost, "/game/guess", map[string]string{"sessionId": v.SessionID, "note": wrong.ID})
	require.Equal(t, http.StatusOK, code, string(b))
	var gr guessRes
	require.NoError(t, json.Unmarshal(b, &gr))
	assert.False(t, gr.Guess.IsCorrect)
	assert.Equal(t, wrong.MIDI, gr.Guess.Note.MIDI)
	assert.Empty(t, gr.Round.Targets)

	code, b = e.do(t, http.MethodPost, "/game/guess", map[string]string{"sessionId": v.SessionID, "note": rules.Targets[0].ID})
	require.Equal(t, http.StatusOK, code, string(b))
	require.NoError(t, json.Unmarshal(b, &gr))
	assert.True(t, gr.Guess.IsCorrect)
	assert.True(t, gr.Round.Complete)
	assert.Equal(t, game.StateCompleted, gr.Round.State)
	require.Len(t, gr.Round.Targets, 1)
	assert.NotEmpty(t, gr.Round.Interval)

	code, _ = e.do(t, http.MethodPost, "/game/guess", map[string]string{"sessionId": v.SessionID, "note": wrong.ID})
	assert.Equal(t, http.StatusConflict, code)

	got := e.view(t, http.MethodGet, "/game/"+v.SessionID, nil)
	assert.Len(t, got.Guesses, 2)

	var status string
	var guesses int
	require.NoError(t, e.srv.db.QueryRow(`SELECT status, guesses FROM rounds WHERE id=?`, v.RoundID).Scan(&status, &guesses))
	assert.Equal(t, statusCompleted, status)
	assert.Equal(t, 2, guesses)
}

func TestGuessErrors(t *testing.T) {
	e := newTestEnv(t)

	code, _ := e.do(t, http.MethodPost, "/game/guess", map[string]string{"sessionId": "missing", "note": "C"})
	assert.Equal(t, http.StatusNotFound, code)

	v := e.view(t, http.MethodPost, "/game/new", nil)
	code, _ = e.do(t, http.MethodPost, "/game/guess", map[string]string{"sessionId": v.SessionID, "note": "H"})
	assert.Equal(t, http.StatusBadRequest, code)
}

func TestEndThenRestartReplaysRules(t *testing.T) {
	e := newTestEnv(t)

	v := e.view(t, http.MethodPost, "/game/new", nil)
	rules := e.rules(t, v.SessionID)

	ended := e.view(t, http.MethodPost, "/game/end", map[string]string{"sessionId": v.SessionID})
	assert.Equal(t, game.StateNotStarted, ended.State)
	assert.Nil(t, ended.Tonic)

	var status string
	require.NoError(t, e.srv.db.QueryRow(`SELECT status FROM rounds WHERE id=?`, v.RoundID).Scan(&status))
	assert.Equal(t, statusAbandoned, status)

	code, _ := e.do(t, http.MethodPost, "/game/guess", map[string]string{"sessionId": v.SessionID, "note": "C"})
	assert.Equal(t, http.StatusConflict, code)

	again := e.view(t, http.MethodPost, "/game/restart", map[string]string{"sessionId": v.SessionID})
	assert.Equal(t, game.StateInProgress, again.State)
	assert.NotEqual(t, v.RoundID, again.RoundID)
	assert.True(t, rules.SamePair(e.rules(t, v.SessionID)))

	// A new game on the same session never repeats the previous pair.
	next := e.view(t, http.MethodPost, "/game/new", map[string]string{"sessionId": v.SessionID})
	assert.False(t, rules.SamePair(e.rules(t, next.SessionID)))
}

func TestChallengeMIDI(t *testing.T) {
	e := newTestEnv(t)
	v := e.view(t, http.MethodPost, "/game/new", nil)

	res, err := e.client.Get(e.ts.URL + "/game/" + v.SessionID + "/challenge.mid")
	require.NoError(t, err)
	defer res.Body.Close()
	require.Equal(t, http.StatusOK, res.StatusCode)
	assert.Equal(t, "audio/midi", res.Header.Get("Content-Type"))
	b, err := io.ReadAll(res.Body)
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(b, []byte("MThd")))
}

func TestNoteHoldAndRelease(t *testing.T) {
	e := newTestEnv(t)
	v := e.view(t, http.MethodPost, "/game/new", nil)

	held := e.view(t, http.MethodPost, "/game/note", map[string]any{"sessionId": v.SessionID, "note": "E", "on": true})
	require.Len(t, held.Held, 1)
	assert.Equal(t, "E", held.Held[0].ID)
	assert.Equal(t, 64, held.Held[0].MIDI)

	released := e.view(t, http.MethodPost, "/game/note", map[string]any{"sessionId": v.SessionID, "note": "E"})
	assert.Empty(t, released.Held)
}

func TestAuthStatsAndHistory(t *testing.T) {
	e := newTestEnv(t)

	code, _ := e.do(t, http.MethodGet, "/stats/me", nil)
	assert.Equal(t, http.StatusUnauthorized, code)

	// A guest round is claimed on signup.
	guest := e.view(t, http.MethodPost, "/game/new", nil)

	code, b := e.do(t, http.MethodPost, "/auth/signup", map[string]string{"username": "ear_trainer", "password": "hunter2hunter2"})
	require.Equal(t, http.StatusOK, code, string(b))

	code, _ = e.do(t, http.MethodPost, "/auth/signup", map[string]string{"username": "ear_trainer", "password": "hunter2hunter2"})
	assert.Equal(t, http.StatusConflict, code)

	code, b = e.do(t, http.MethodGet, "/auth/me", nil)
	require.Equal(t, http.StatusOK, code)
	assert.Contains(t, string(b), "ear_trainer")

	rules := e.rules(t, guest.SessionID)
	code, _ = e.do(t, http.MethodPost, "/game/guess", map[string]string{"sessionId": guest.SessionID, "note": rules.Targets[0].ID})
	require.Equal(t, http.StatusOK, code)

	v := e.view(t, http.MethodPost, "/game/new", nil)
	e.view(t, http.MethodPost, "/game/end", map[string]string{"sessionId": v.SessionID})

	code, b = e.do(t, http.MethodGet, "/stats/me", nil)
	require.Equal(t, http.StatusOK, code)
	var stats map[string]any
	require.NoError(t, json.Unmarshal(b, &stats))
	assert.EqualValues(t, 2, stats["roundsPlayed"])
	assert.EqualValues(t, 1, stats["roundsCompleted"])
	assert.EqualValues(t, 0, stats["streak"])

	code, b = e.do(t, http.MethodGet, "/rounds/mine", nil)
	require.Equal(t, http.StatusOK, code)
	var rows []roundRow
	require.NoError(t, json.Unmarshal(b, &rows))
	require.Len(t, rows, 2)
	for _, rr := range rows {
		if rr.ID == guest.RoundID {
			assert.Equal(t, statusCompleted, rr.Status)
			assert.NotEmpty(t, rr.Interval)
		}
	}

	code, _ = e.do(t, http.MethodPost, "/auth/logout", nil)
	assert.Equal(t, http.StatusOK, code)
	code, _ = e.do(t, http.MethodGet, "/auth/me", nil)
	assert.Equal(t, http.StatusUnauthorized, code)

	code, _ = e.do(t, http.MethodPost, "/auth/login", map[string]string{"username": "ear_trainer", "password": "wrong_password"})
	assert.Equal(t, http.StatusUnauthorized, code)
	code, _ = e.do(t, http.MethodPost, "/auth/login", map[string]string{"username": "EAR_TRAINER", "password": "hunter2hunter2"})
	assert.Equal(t, http.StatusOK, code)
}

func TestDailyOncePerDay(t *testing.T) {
	e := newTestEnv(t)

	code, b := e.do(t, http.MethodPost, "/daily/new", nil)
	require.Equal(t, http.StatusOK, code, string(b))
	var nr newRes
	require.NoError(t, json.Unmarshal(b, &nr))
	require.NotEmpty(t, nr.SessionID)
	assert.False(t, nr.Played)

	// Asking again reuses the session.
	_, b = e.do(t, http.MethodPost, "/daily/new", nil)
	var again newRes
	require.NoError(t, json.Unmarshal(b, &again))
	assert.Equal(t, nr.SessionID, again.SessionID)

	code, _ = e.do(t, http.MethodPost, "/daily/guess", map[string]string{"sessionId": "other", "note": "C"})
	assert.Equal(t, http.StatusConflict, code)

	rules := e.rules(t, nr.SessionID)
	code, b = e.do(t, http.MethodPost, "/daily/guess", map[string]string{"sessionId": nr.SessionID, "note": rules.Targets[0].ID})
	require.Equal(t, http.StatusOK, code, string(b))

	_, b = e.do(t, http.MethodPost, "/daily/new", nil)
	require.NoError(t, json.Unmarshal(b, &again))
	assert.True(t, again.Played)

	code, b = e.do(t, http.MethodGet, "/daily/leaderboard", nil)
	require.Equal(t, http.StatusOK, code)
	var lb lbRes
	require.NoError(t, json.Unmarshal(b, &lb))
	require.Len(t, lb.Top, 1)
	assert.Equal(t, 1, lb.Top[0].Guesses)
}

func TestWebSocketStreamsEventsAndNotes(t *testing.T) {
	e := newTestEnv(t)
	v := e.view(t, http.MethodPost, "/game/new", nil)
	e.view(t, http.MethodPost, "/game/end", map[string]string{"sessionId": v.SessionID})

	url := "ws" + strings.TrimPrefix(e.ts.URL, "http") + "/game/" + v.SessionID + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()

	require.Eventually(t, func() bool { return e.srv.hub.count(v.SessionID) == 1 }, time.Second, 5*time.Millisecond)

	next := e.view(t, http.MethodPost, "/game/new", map[string]string{"sessionId": v.SessionID})
	require.NotNil(t, next.Tonic)

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	var sawStart, sawNote bool
	for !(sawStart && sawNote) {
		var m wsMessage
		require.NoError(t, conn.ReadJSON(&m))
		switch m.Type {
		case "event":
			if m.Event.Kind == game.EventRoundStarted {
				sawStart = true
				assert.Nil(t, m.Event.Rules)
			}
		case "noteOn":
			sawNote = true
			assert.Equal(t, next.Tonic.ID, m.Note.ID)
			require.NoError(t, conn.WriteJSON(wsMessage{Type: "started", Note: m.Note}))
		}
	}
	assert.True(t, sawStart)
}

func TestReplayWhilePlayingConflicts(t *testing.T) {
	e := newTestEnv(t, func(c *config.Config) { c.ChallengePause = 200 * time.Millisecond })
	v := e.view(t, http.MethodPost, "/game/new", nil)
	req := map[string]string{"sessionId": v.SessionID}

	code, b := e.do(t, http.MethodPost, "/game/replay", req)
	assert.Equal(t, http.StatusConflict, code)
	assert.Contains(t, string(b), "challenge_playing")

	sess, err := e.srv.store.Get(context.Background(), v.SessionID)
	require.NoError(t, err)
	sess.Wait()
	e.view(t, http.MethodPost, "/game/replay", req)
	sess.Wait()
}

func TestDailyNewReportsStoreFailure(t *testing.T) {
	e := newTestEnv(t)
	_, err := e.srv.db.Exec(`DROP TABLE daily_results`)
	require.NoError(t, err)

	code, b := e.do(t, http.MethodPost, "/daily/new", nil)
	assert.Equal(t, http.StatusInternalServerError, code)
	assert.Contains(t, string(b), "server_error")
	assert.Equal(t, 0, e.srv.store.Len())
}

func TestEvictIdleSessions(t *testing.T) {
	e := newTestEnv(t, func(c *config.Config) { c.SessionIdle = time.Minute })
	kept := e.view(t, http.MethodPost, "/game/new", nil)
	gone := e.view(t, http.MethodPost, "/game/new", nil)

	url := "ws" + strings.TrimPrefix(e.ts.URL, "http") + "/game/" + kept.SessionID + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()
	require.Eventually(t, func() bool { return e.srv.hub.count(kept.SessionID) == 1 }, time.Second, 5*time.Millisecond)

	ctx := context.Background()
	goneSess, err := e.srv.store.Get(ctx, gone.SessionID)
	require.NoError(t, err)
	goneSess.Wait()

	// Nothing is idle yet.
	e.srv.evictIdle(ctx, time.Now())
	assert.Equal(t, 2, e.srv.store.Len())

	e.srv.evictIdle(ctx, time.Now().Add(2*time.Minute))
	assert.Equal(t, 1, e.srv.store.Len())
	code, _ := e.do(t, http.MethodGet, "/game/"+gone.SessionID, nil)
	assert.Equal(t, http.StatusNotFound, code)
	e.view(t, http.MethodGet, "/game/"+kept.SessionID, nil)

	e.srv.hub.mu.Lock()
	_, ok := e.srv.hub.players[gone.SessionID]
	e.srv.hub.mu.Unlock()
	assert.False(t, ok)

	assert.False(t, goneSess.Round().IsStarted())
	var status string
	require.NoError(t, e.srv.db.QueryRow(`SELECT status FROM rounds WHERE id=?`, gone.RoundID).Scan(&status))
	assert.Equal(t, statusAbandoned, status)
}
