// internal/httpserver/ws.go
//
// WebSocket fan-out for live sessions.
// Responsibilities:
//   - Track connected clients per session.
//   - Forward round notifications to every client of the session.
//   - Act as the session's audio.Player: note on/off messages are rendered by
//     the browser, which is why a session is "ready" only while a client is
//     connected.
//
// Notes:
//   - Sends never block; a client that falls behind loses messages.
//   - The browser reports the actual onset with {"type":"started"}; until then
//     a voice is considered pending.

package httpserver

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/robalobadob/tonewheel/internal/audio"
	"github.com/robalobadob/tonewheel/internal/game"
	"github.com/robalobadob/tonewheel/internal/music"
)

const (
	wsSendBuffer = 32
	wsWriteWait  = 5 * time.Second
)

// wsMessage is every frame sent to or received from a client.
type wsMessage struct {
	Type     string      `json:"type"` // event | noteOn | noteOff | started
	Event    *game.Event `json:"event,omitempty"`
	Note     *music.Note `json:"note,omitempty"`
	Velocity float64     `json:"velocity,omitempty"`
	Duration int64       `json:"durationMs,omitempty"`
}

type wsClient struct {
	conn *websocket.Conn
	send chan []byte
}

// hub routes messages to the clients of each session.
type hub struct {
	mu      sync.Mutex
	clients map[string]map[*wsClient]struct{}
	players map[string]*wsPlayer
}

func newHub() *hub {
	return &hub{
		clients: make(map[string]map[*wsClient]struct{}),
		players: make(map[string]*wsPlayer),
	}
}

func (h *hub) add(sessionID string, c *wsClient) {
	h.mu.Lock()
	defer h.mu.Unlock()
	set := h.clients[sessionID]
	if set == nil {
		set = make(map[*wsClient]struct{})
		h.clients[sessionID] = set
	}
	set[c] = struct{}{}
}

func (h *hub) remove(sessionID string, c *wsClient) {
	h.mu.Lock()
	set := h.clients[sessionID]
	delete(set, c)
	if len(set) == 0 {
		delete(h.clients, sessionID)
	}
	p := h.players[sessionID]
	empty := len(set) == 0
	h.mu.Unlock()

	// Nobody is left to report onsets or stop notes.
	if empty && p != nil {
		p.releaseAll()
	}
}

func (h *hub) count(sessionID string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients[sessionID])
}

func (h *hub) broadcast(sessionID string, m wsMessage) {
	b, err := json.Marshal(m)
	if err != nil {
		log.Error().Err(err).Msg("ws marshal")
		return
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients[sessionID] {
		select {
		case c.send <- b:
		default:
			log.Warn().Str("session", sessionID).Msg("ws client lagging, dropped message")
		}
	}
}

// forward relays a round notification. Targets stay hidden until the round
// is complete.
func (h *hub) forward(sessionID string, e game.Event) {
	if e.Kind != game.EventRoundCompleted {
		e.Rules = nil
	}
	h.broadcast(sessionID, wsMessage{Type: "event", Event: &e})
}

// player returns the audio.Player backed by the session's clients.
func (h *hub) player(sessionID string) *wsPlayer {
	h.mu.Lock()
	defer h.mu.Unlock()
	p := h.players[sessionID]
	if p == nil {
		p = &wsPlayer{hub: h, sessionID: sessionID, voices: make(map[int]*audio.Voice)}
		h.players[sessionID] = p
	}
	return p
}

func (h *hub) forget(sessionID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.players, sessionID)
}

// wsPlayer implements audio.Player over the hub.
type wsPlayer struct {
	hub       *hub
	sessionID string

	mu     sync.Mutex
	voices map[int]*audio.Voice // keyed by MIDI number
}

func (p *wsPlayer) Ready() bool { return p.hub.count(p.sessionID) > 0 }

func (p *wsPlayer) StartNote(n music.Note, opts audio.Options) *audio.Voice {
	if !p.Ready() || !n.Pitched() {
		return audio.FinishedVoice()
	}
	v := audio.NewVoice(func() { _ = p.StopNote(n) })

	p.mu.Lock()
	prev := p.voices[n.MIDI]
	p.voices[n.MIDI] = v
	p.mu.Unlock()
	if prev != nil {
		prev.MarkEnded()
	}

	note := n
	p.hub.broadcast(p.sessionID, wsMessage{
		Type:     "noteOn",
		Note:     &note,
		Velocity: opts.Velocity,
		Duration: opts.Duration.Milliseconds(),
	})
	return v
}

func (p *wsPlayer) StopNote(n music.Note) error {
	p.mu.Lock()
	v := p.voices[n.MIDI]
	delete(p.voices, n.MIDI)
	p.mu.Unlock()

	note := n
	p.hub.broadcast(p.sessionID, wsMessage{Type: "noteOff", Note: &note})
	if v != nil {
		v.MarkEnded()
	}
	return nil
}

// started records the client-reported onset of n.
func (p *wsPlayer) started(n music.Note) {
	p.mu.Lock()
	v := p.voices[n.MIDI]
	p.mu.Unlock()
	if v != nil {
		v.MarkStarted()
	}
}

func (p *wsPlayer) releaseAll() {
	p.mu.Lock()
	voices := p.voices
	p.voices = make(map[int]*audio.Voice)
	p.mu.Unlock()
	for _, v := range voices {
		v.MarkEnded()
	}
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
}

// handleWS streams round events and notes for the session in the URL.
func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if _, err := s.store.Get(r.Context(), id); err != nil {
		http.Error(w, `{"error":"not_found"}`, http.StatusNotFound)
		return
	}

	up := upgrader
	up.CheckOrigin = func(r *http.Request) bool {
		o := r.Header.Get("Origin")
		return o == "" || o == s.cfg.ClientOrigin || o == "http://"+r.Host
	}
	conn, err := up.Upgrade(w, r, nil)
	if err != nil {
		log.Warn().Err(err).Str("session", id).Msg("ws upgrade")
		return
	}

	c := &wsClient{conn: conn, send: make(chan []byte, wsSendBuffer)}
	s.hub.add(id, c)
	log.Debug().Str("session", id).Msg("ws connected")

	go c.writePump()
	c.readPump(s.hub.player(id))

	s.hub.remove(id, c)
	close(c.send)
	log.Debug().Str("session", id).Msg("ws disconnected")
}

func (c *wsClient) writePump() {
	defer c.conn.Close()
	for b := range c.send {
		_ = c.conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
		if err := c.conn.WriteMessage(websocket.TextMessage, b); err != nil {
			return
		}
	}
	_ = c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
}

// readPump blocks until the client goes away.
func (c *wsClient) readPump(p *wsPlayer) {
	for {
		var m wsMessage
		if err := c.conn.ReadJSON(&m); err != nil {
			return
		}
		if m.Type == "started" && m.Note != nil {
			p.started(*m.Note)
		}
	}
}
