// Gatebox multiplayer relay
//
// Players wire logic gates on a shared canvas to satisfy a per-level truth
// table. The server keeps authoritative room membership only; circuit edits
// are relayed verbatim between the clients of a room, never merged or
// validated here.
//
// Features:
// - Single WebSocket endpoint at /ws; every event names its room
// - Rooms of up to 4 players with a 6-char alphanumeric code
// - First player is host; host authority to start, transferred on departure
// - sync-* events fan out to every other room member (no echo to sender)
// - sync-full-state payloads are retained per room to bootstrap rejoiners
// - Rooms are deleted when emptied, and reaped after an idle timeout
// - In-browser QR button to share a room code, backed by go-qrcode

package main

import (
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"github.com/julienschmidt/httprouter"

	"github.com/Seednode/gatebox/protocol"
	"github.com/Seednode/gatebox/room"
)

type Client struct {
	conn     *websocket.Conn
	send     chan protocol.Envelope
	id       string
	username string
}

type inbound struct {
	client *Client
	msg    protocol.Message
}

// Hub owns all connection and room mutation. Every handler runs on the
// single run loop, so a fetch-mutate-broadcast sequence is never
// interleaved with another handler.
type Hub struct {
	registry *room.Registry

	clients map[string]*Client

	register chan *Client
	unreg    chan *Client
	inbound  chan inbound
}

func newHub(registry *room.Registry) *Hub {
	return &Hub{
		registry: registry,
		clients:  make(map[string]*Client),
		register: make(chan *Client),
		unreg:    make(chan *Client),
		inbound:  make(chan inbound),
	}
}

func (h *Hub) run(cfg *Config) {
	for {
		select {
		case c := <-h.register:
			h.clients[c.id] = c

		case c := <-h.unreg:
			if _, ok := h.clients[c.id]; ok {
				delete(h.clients, c.id)
				close(c.send)
			}
			if dep, ok := h.registry.Leave(c.id); ok {
				h.broadcastDeparture(cfg, dep)
			}

		case in := <-h.inbound:
			h.handle(cfg, in.client, in.msg)
		}
	}
}

func (h *Hub) handle(cfg *Config, c *Client, msg protocol.Message) {
	switch m := msg.(type) {
	case *protocol.CreateRoom:
		h.handleCreate(cfg, c, m)
	case *protocol.JoinRoom:
		h.handleJoin(cfg, c, m)
	case *protocol.LeaveRoom:
		h.handleLeave(cfg, c)
	case *protocol.ToggleReady:
		h.handleToggleReady(c, m)
	case *protocol.StartGame:
		h.handleStart(cfg, c, m)
	case *protocol.SyncAddGate:
		h.relayToPeers(c, m.RoomCode, &protocol.GateAdded{
			PlayerID: c.id,
			Username: h.username(m.RoomCode, c),
			Gate:     m.Gate,
		})
	case *protocol.SyncMoveGate:
		h.relayToPeers(c, m.RoomCode, &protocol.GateMoved{
			PlayerID: c.id,
			GateID:   m.GateID,
			X:        m.X,
			Y:        m.Y,
		})
	case *protocol.SyncRemoveGate:
		h.relayToPeers(c, m.RoomCode, &protocol.GateRemoved{
			PlayerID: c.id,
			GateID:   m.GateID,
		})
	case *protocol.SyncAddWire:
		h.relayToPeers(c, m.RoomCode, &protocol.WireAdded{
			PlayerID: c.id,
			Username: h.username(m.RoomCode, c),
			Wire:     m.Wire,
		})
	case *protocol.SyncRemoveWire:
		h.relayToPeers(c, m.RoomCode, &protocol.WireRemoved{
			PlayerID: c.id,
			WireID:   m.WireID,
		})
	case *protocol.SyncInputValue:
		h.relayToPeers(c, m.RoomCode, &protocol.InputValueChanged{
			PlayerID: c.id,
			Username: h.username(m.RoomCode, c),
			InputID:  m.InputID,
			Value:    m.Value,
		})
	case *protocol.SyncOutputValues:
		h.relayToPeers(c, m.RoomCode, &protocol.OutputValuesChanged{
			PlayerID: c.id,
			Username: h.username(m.RoomCode, c),
			Outputs:  m.Outputs,
		})
	case *protocol.SyncCursor:
		h.relayToPeers(c, m.RoomCode, &protocol.CursorMoved{
			PlayerID: c.id,
			Username: h.username(m.RoomCode, c),
			X:        m.X,
			Y:        m.Y,
		})
	case *protocol.SyncFullState:
		h.handleFullState(cfg, c, m)
	case *protocol.RequestFullState:
		h.handleRequestFullState(c, m)
	case *protocol.LevelCompleted:
		h.relayToRoom(m.RoomCode, &protocol.PlayerCompletedLevel{
			PlayerID:  c.id,
			Username:  h.username(m.RoomCode, c),
			LevelID:   m.LevelID,
			Time:      m.Time,
			TeamStats: m.TeamStats,
		})
	case *protocol.ChatMessage:
		if username, ok := h.registry.Lookup(m.RoomCode, c.id); ok {
			h.relayToRoom(m.RoomCode, &protocol.ChatBroadcast{
				Username:  username,
				Message:   m.Message,
				Timestamp: time.Now(),
			})
		}
	case *protocol.GetActiveRooms:
		h.handleActiveRooms(c)
	}
}

func (h *Hub) handleCreate(cfg *Config, c *Client, m *protocol.CreateRoom) {
	username := m.Username
	if username == "" {
		username = "Player"
	}
	c.username = username

	r := h.registry.Create(c.id, username)
	logf(cfg, "ROOMS: %q created room %s", username, r.Code)

	roster, _ := h.registry.Roster(r.Code)
	h.sendTo(c, &protocol.RoomCreated{
		RoomCode: r.Code,
		PlayerID: c.id,
		Players:  toPlayerInfo(roster),
	})
}

func (h *Hub) handleJoin(cfg *Config, c *Client, m *protocol.JoinRoom) {
	code := strings.ToUpper(m.RoomCode)

	username := m.Username
	if username == "" {
		username = "Player"
	}
	c.username = username

	roster, err := h.registry.Join(code, c.id, username)
	if err != nil {
		h.sendTo(c, &protocol.JoinError{Error: err.Error()})
		return
	}

	logf(cfg, "ROOMS: %q joined room %s", username, code)

	players := toPlayerInfo(roster)
	h.sendTo(c, &protocol.RoomJoined{
		RoomCode: code,
		PlayerID: c.id,
		Players:  players,
	})

	joined := protocol.PlayerInfo{ID: c.id, Username: username}
	for _, p := range players {
		if p.ID == c.id {
			joined = p
			break
		}
	}

	h.relayToPeers(c, code, &protocol.PlayerJoined{
		Player:  joined,
		Players: players,
	})
}

func (h *Hub) handleLeave(cfg *Config, c *Client) {
	dep, ok := h.registry.Leave(c.id)
	if !ok {
		return
	}

	h.sendTo(c, &protocol.LeftRoom{})
	h.broadcastDeparture(cfg, dep)
}

func (h *Hub) broadcastDeparture(cfg *Config, dep room.Departure) {
	if dep.Deleted {
		logf(cfg, "ROOMS: Room %s deleted (empty)", dep.Code)
		return
	}

	if dep.NewHost != "" {
		logf(cfg, "ROOMS: New host %s in room %s", dep.NewHost, dep.Code)
	}

	h.relayToRoom(dep.Code, &protocol.PlayerLeft{
		Players: toPlayerInfo(dep.Players),
		NewHost: dep.NewHost,
	})
}

func (h *Hub) handleToggleReady(c *Client, m *protocol.ToggleReady) {
	ready, roster, err := h.registry.ToggleReady(m.RoomCode, c.id)
	if err != nil {
		return
	}

	h.relayToRoom(m.RoomCode, &protocol.PlayerReadyChanged{
		PlayerID: c.id,
		Ready:    ready,
		Players:  toPlayerInfo(roster),
	})
}

func (h *Hub) handleStart(cfg *Config, c *Client, m *protocol.StartGame) {
	level, roster, err := h.registry.Start(m.RoomCode, c.id, m.RequestedStartLevel)
	if err != nil {
		if err != room.ErrNotFound {
			h.sendTo(c, &protocol.StartError{Error: err.Error()})
		}
		return
	}

	logf(cfg, "ROOMS: Game started in room %s at level %d", m.RoomCode, level)

	h.relayToRoom(m.RoomCode, &protocol.GameStarted{
		Level:   level,
		Players: toPlayerInfo(roster),
	})
}

func (h *Hub) handleFullState(cfg *Config, c *Client, m *protocol.SyncFullState) {
	raw, err := json.Marshal(m.State)
	if err != nil {
		return
	}
	h.registry.SetFullState(m.RoomCode, raw)

	logf(cfg, "SYNC: Full state from %s stored for room %s", c.id, m.RoomCode)

	h.relayToPeers(c, m.RoomCode, &protocol.FullStateUpdated{
		PlayerID: c.id,
		State:    m.State,
	})
}

func (h *Hub) handleRequestFullState(c *Client, m *protocol.RequestFullState) {
	raw, ok := h.registry.FullState(m.RoomCode)
	if !ok {
		// No snapshot yet; the requester is expected not to block on this.
		return
	}

	var state protocol.CircuitState
	if err := json.Unmarshal(raw, &state); err != nil {
		return
	}

	h.sendTo(c, &protocol.FullStateReceived{State: state})
}

func (h *Hub) handleActiveRooms(c *Client) {
	summaries := h.registry.Summaries()

	rooms := make([]protocol.RoomSummary, 0, len(summaries))
	for _, s := range summaries {
		rooms = append(rooms, protocol.RoomSummary{
			Code:        s.Code,
			PlayerCount: s.PlayerCount,
			MaxPlayers:  s.MaxPlayers,
			Started:     s.Started,
		})
	}

	h.sendTo(c, &protocol.ActiveRooms{Rooms: rooms})
}

// username annotates relayed events with the sender's room-registered
// name, falling back to the name given at connect time.
func (h *Hub) username(code string, c *Client) string {
	if name, ok := h.registry.Lookup(code, c.id); ok {
		return name
	}
	return c.username
}

// relayToPeers rebroadcasts to every room member except the sender.
func (h *Hub) relayToPeers(sender *Client, code string, msg protocol.Message) {
	env := protocol.Wrap(msg)
	for _, id := range h.registry.Members(code) {
		if id == sender.id {
			continue
		}
		if peer, ok := h.clients[id]; ok {
			h.sendEnvelope(peer, env)
		}
	}
}

// relayToRoom rebroadcasts to every room member, sender included.
func (h *Hub) relayToRoom(code string, msg protocol.Message) {
	env := protocol.Wrap(msg)
	for _, id := range h.registry.Members(code) {
		if peer, ok := h.clients[id]; ok {
			h.sendEnvelope(peer, env)
		}
	}
}

func (h *Hub) sendTo(c *Client, msg protocol.Message) {
	h.sendEnvelope(c, protocol.Wrap(msg))
}

// sendEnvelope queues a frame, dropping clients whose send buffer is full.
func (h *Hub) sendEnvelope(c *Client, env protocol.Envelope) {
	select {
	case c.send <- env:
	default:
		delete(h.clients, c.id)
		close(c.send)
	}
}

func toPlayerInfo(roster []room.Player) []protocol.PlayerInfo {
	out := make([]protocol.PlayerInfo, 0, len(roster))
	for _, p := range roster {
		out = append(out, protocol.PlayerInfo{
			ID:       p.ID,
			Username: p.Username,
			IsHost:   p.IsHost,
			Ready:    p.Ready,
		})
	}
	return out
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

func newClientID() string {
	buf := make([]byte, 16)
	if _, err := rand.Read(buf); err != nil {
		panic("crypto/rand failure: " + err.Error())
	}
	return hex.EncodeToString(buf)
}

func serveWS(cfg *Config, h *Hub) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			log.Println("upgrade error:", err)
			return
		}

		client := &Client{
			conn: conn,
			send: make(chan protocol.Envelope, 32),
			id:   newClientID(),
		}

		logf(cfg, "SERVE: Connection %s from %s", client.id, realIP(r))

		h.register <- client

		go client.writePump()
		client.readPump(cfg, h)
	}
}

func (c *Client) readPump(cfg *Config, h *Hub) {
	defer func() {
		h.unreg <- c
		_ = c.conn.Close()
	}()

	for {
		var env protocol.Envelope
		if err := c.conn.ReadJSON(&env); err != nil {
			return
		}

		msg, err := protocol.DecodeClient(env)
		if err != nil {
			logf(cfg, "SERVE: Dropping frame from %s: %v", c.id, err)
			continue
		}

		h.inbound <- inbound{client: c, msg: msg}
	}
}

func (c *Client) writePump() {
	defer c.conn.Close()

	for env := range c.send {
		if err := c.conn.WriteJSON(env); err != nil {
			return
		}
	}
}

// reaperLoop periodically removes rooms that have been idle longer than
// the configured session timeout.
func reaperLoop(cfg *Config, registry *room.Registry) {
	ticker := time.NewTicker(cfg.sessionTimeout / 2)
	for range ticker.C {
		for _, code := range registry.SweepIdle(time.Now().Add(-cfg.sessionTimeout)) {
			logf(cfg, "ROOMS: Room %s reaped (idle)", code)
		}
	}
}
