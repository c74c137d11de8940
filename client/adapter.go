/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

// Package client is the game-side sync adapter: it bridges mutations of a
// local circuit store to the gatebox relay and applies remote peers'
// mutations back onto that store.
//
// Echo suppression is structural rather than flag-based. Local mutations
// enter through the exported methods, which mutate the store first and
// then emit the matching sync event; remote events are applied through
// internal paths that never emit. A remote change can therefore never be
// rebroadcast, regardless of timing.
package client

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/Seednode/gatebox/circuit"
	"github.com/Seednode/gatebox/protocol"
)

var (
	ErrNotConnected = errors.New("not connected to server")
	ErrNotInRoom    = errors.New("not in a room")
)

const (
	cursorInterval = 50 * time.Millisecond

	reconnectDelay    = time.Second
	reconnectDelayMax = 5 * time.Second
	reconnectAttempts = 10
)

type position struct {
	x, y float64
}

// Cursor is the last reported pointer position of a remote player.
type Cursor struct {
	Username string
	X, Y     float64
}

// Adapter connects one circuit store to one relay. All methods are safe
// for concurrent use with the internal read loop.
type Adapter struct {
	url      string
	username string

	mu        sync.Mutex
	conn      *websocket.Conn
	circ      *circuit.Circuit
	roomCode  string
	playerID  string
	isHost    bool
	level     int
	players   []protocol.PlayerInfo
	positions map[string]position
	wires     map[string]protocol.WireState
	contribs  map[string]*protocol.Contribution
	cursors   map[string]Cursor
	waiters   map[string]chan protocol.Message
	handlers  map[string][]func(protocol.Message)
	closed    bool

	lastCursor time.Time
}

// New builds an adapter around an injected circuit store. The adapter
// stays disabled (solo play) until a room is created or joined.
func New(url, username string, circ *circuit.Circuit) *Adapter {
	return &Adapter{
		url:       url,
		username:  username,
		circ:      circ,
		positions: make(map[string]position),
		wires:     make(map[string]protocol.WireState),
		contribs:  make(map[string]*protocol.Contribution),
		cursors:   make(map[string]Cursor),
		waiters:   make(map[string]chan protocol.Message),
		handlers:  make(map[string][]func(protocol.Message)),
	}
}

// Connect dials the relay and starts the read loop.
func (a *Adapter) Connect(ctx context.Context) error {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, a.url, nil)
	if err != nil {
		return err
	}

	a.mu.Lock()
	a.conn = conn
	a.closed = false
	a.mu.Unlock()

	go a.readLoop(conn)

	return nil
}

// Close tears the connection down and stops reconnecting.
func (a *Adapter) Close() error {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.closed = true
	a.roomCode = ""

	if a.conn != nil {
		err := a.conn.Close()
		a.conn = nil
		return err
	}

	return nil
}

// Handle registers a callback for a server event, for the UI layer to
// observe roster changes, chat, cursors and so on. Callbacks run on the
// read loop after the adapter has applied the event.
func (a *Adapter) Handle(event string, fn func(protocol.Message)) {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.handlers[event] = append(a.handlers[event], fn)
}

// Enabled reports whether multiplayer sync is active.
func (a *Adapter) Enabled() bool {
	a.mu.Lock()
	defer a.mu.Unlock()

	return a.roomCode != ""
}

// IsHost reports whether this player hosts the current room.
func (a *Adapter) IsHost() bool {
	a.mu.Lock()
	defer a.mu.Unlock()

	return a.roomCode != "" && a.isHost
}

// RoomCode returns the current room code, if any.
func (a *Adapter) RoomCode() string {
	a.mu.Lock()
	defer a.mu.Unlock()

	return a.roomCode
}

// PlayerID returns the server-assigned id for this connection.
func (a *Adapter) PlayerID() string {
	a.mu.Lock()
	defer a.mu.Unlock()

	return a.playerID
}

// Level returns the level the current game was started at.
func (a *Adapter) Level() int {
	a.mu.Lock()
	defer a.mu.Unlock()

	return a.level
}

// Players returns the current room roster.
func (a *Adapter) Players() []protocol.PlayerInfo {
	a.mu.Lock()
	defer a.mu.Unlock()

	return append([]protocol.PlayerInfo(nil), a.players...)
}

// Cursors returns the last known remote cursor positions.
func (a *Adapter) Cursors() map[string]Cursor {
	a.mu.Lock()
	defer a.mu.Unlock()

	out := make(map[string]Cursor, len(a.cursors))
	for id, cur := range a.cursors {
		out[id] = cur
	}
	return out
}

// Contributions returns the per-player build statistics gathered so far.
func (a *Adapter) Contributions() []protocol.Contribution {
	a.mu.Lock()
	defer a.mu.Unlock()

	out := make([]protocol.Contribution, 0, len(a.contribs))
	for _, c := range a.contribs {
		out = append(out, *c)
	}
	return out
}

// ---- Lobby operations ----

// CreateRoom opens a new room with this player as host.
func (a *Adapter) CreateRoom(ctx context.Context) (*protocol.RoomCreated, error) {
	ch := a.await(protocol.EventRoomCreated)

	if err := a.send(&protocol.CreateRoom{Username: a.username}); err != nil {
		return nil, err
	}

	msg, err := a.wait(ctx, ch)
	if err != nil {
		return nil, err
	}

	return msg.(*protocol.RoomCreated), nil
}

// JoinRoom joins an existing room by code.
func (a *Adapter) JoinRoom(ctx context.Context, code string) (*protocol.RoomJoined, error) {
	ch := a.await(protocol.EventRoomJoined, protocol.EventJoinError)

	if err := a.send(&protocol.JoinRoom{RoomCode: code, Username: a.username}); err != nil {
		return nil, err
	}

	msg, err := a.wait(ctx, ch)
	if err != nil {
		return nil, err
	}

	switch m := msg.(type) {
	case *protocol.RoomJoined:
		return m, nil
	case *protocol.JoinError:
		return nil, errors.New(m.Error)
	}

	return nil, ErrNotConnected
}

// LeaveRoom departs the current room immediately.
func (a *Adapter) LeaveRoom() error {
	a.mu.Lock()
	code := a.roomCode
	a.roomCode = ""
	a.isHost = false
	a.players = nil
	a.cursors = make(map[string]Cursor)
	a.mu.Unlock()

	if code == "" {
		return ErrNotInRoom
	}

	return a.send(&protocol.LeaveRoom{RoomCode: code})
}

// ToggleReady flips this player's ready flag.
func (a *Adapter) ToggleReady() error {
	return a.sendRoom(func(code string) protocol.Message {
		return &protocol.ToggleReady{RoomCode: code}
	})
}

// StartGame asks the relay to begin at the requested level (host only).
func (a *Adapter) StartGame(requestedLevel int) error {
	return a.sendRoom(func(code string) protocol.Message {
		return &protocol.StartGame{RoomCode: code, RequestedStartLevel: requestedLevel}
	})
}

// ActiveRooms lists joinable rooms on the server.
func (a *Adapter) ActiveRooms(ctx context.Context) ([]protocol.RoomSummary, error) {
	ch := a.await(protocol.EventActiveRooms)

	if err := a.send(&protocol.GetActiveRooms{}); err != nil {
		return nil, err
	}

	msg, err := a.wait(ctx, ch)
	if err != nil {
		return nil, err
	}

	return msg.(*protocol.ActiveRooms).Rooms, nil
}

// SendChat posts a chat line to the room.
func (a *Adapter) SendChat(message string) error {
	return a.sendRoom(func(code string) protocol.Message {
		return &protocol.ChatMessage{RoomCode: code, Message: message}
	})
}

// CompleteLevel announces a level completion along with the collected
// team statistics.
func (a *Adapter) CompleteLevel(levelID int, elapsed float64) error {
	a.mu.Lock()
	stats := protocol.TeamStats{
		TotalTime:      elapsed,
		GatesPlaced:    len(a.positions),
		WiresConnected: len(a.wires),
	}
	for _, c := range a.contribs {
		stats.Players = append(stats.Players, *c)
	}
	a.mu.Unlock()

	return a.sendRoom(func(code string) protocol.Message {
		return &protocol.LevelCompleted{
			RoomCode:  code,
			LevelID:   levelID,
			Time:      elapsed,
			TeamStats: stats,
		}
	})
}

// ---- Local circuit mutations ----
//
// Each method updates the local store synchronously, then emits the
// matching sync event fire-and-forget when a room is active.

// PlaceGate adds a gate at the given canvas position and returns its id.
func (a *Adapter) PlaceGate(kind circuit.Kind, x, y float64) string {
	a.mu.Lock()

	id := uuid.NewString()
	a.circ.AddGate(kind, id)
	a.positions[id] = position{x: x, y: y}

	// Only interior logic gates count as contributions, and only when
	// playing with others.
	if a.roomCode != "" && kind.Logic() {
		a.creditLocked(a.playerID, a.username).GatesPlaced++
	}

	gate := protocol.GateState{ID: id, Type: string(kind), X: x, Y: y}
	code := a.roomCode
	a.mu.Unlock()

	if code != "" {
		_ = a.send(&protocol.SyncAddGate{RoomCode: code, Gate: gate})
	}

	return id
}

// MoveGate updates a gate's canvas position. Placement is display state
// only; evaluation never sees it.
func (a *Adapter) MoveGate(id string, x, y float64) {
	a.mu.Lock()
	if _, ok := a.positions[id]; !ok {
		a.mu.Unlock()
		return
	}
	a.positions[id] = position{x: x, y: y}
	code := a.roomCode
	a.mu.Unlock()

	if code != "" {
		_ = a.send(&protocol.SyncMoveGate{RoomCode: code, GateID: id, X: x, Y: y})
	}
}

// RemoveGate deletes a gate, its incident wires, and broadcasts the
// removal. Peers cascade their own incident wires the same way, so the
// wire removals themselves are not rebroadcast.
func (a *Adapter) RemoveGate(id string) {
	a.mu.Lock()
	a.circ.RemoveGate(id)
	delete(a.positions, id)
	a.dropIncidentWiresLocked(id)
	code := a.roomCode
	a.mu.Unlock()

	if code != "" {
		_ = a.send(&protocol.SyncRemoveGate{RoomCode: code, GateID: id})
	}
}

// ConnectWire wires an output port to an input port and returns the wire
// id. Endpoints are identified by (gate, direction, index) only.
func (a *Adapter) ConnectWire(from, to protocol.PortRef) (string, error) {
	if from.Dir == "input" {
		from, to = to, from
	}

	a.mu.Lock()

	if a.circ.Gate(from.GateID) == nil || a.circ.Gate(to.GateID) == nil {
		a.mu.Unlock()
		return "", errors.New("wire endpoint gate does not exist")
	}

	id := uuid.NewString()
	wire := protocol.WireState{ID: id, From: from, To: to}
	a.wires[id] = wire
	a.circ.AddConnection(from.GateID, to.GateID, id)

	if a.roomCode != "" {
		a.creditLocked(a.playerID, a.username).WiresConnected++
	}

	code := a.roomCode
	a.mu.Unlock()

	if code != "" {
		_ = a.send(&protocol.SyncAddWire{RoomCode: code, Wire: wire})
	}

	return id, nil
}

// DisconnectWire removes a single wire by id.
func (a *Adapter) DisconnectWire(id string) {
	a.mu.Lock()
	delete(a.wires, id)
	a.circ.RemoveConnectionID(id)
	code := a.roomCode
	a.mu.Unlock()

	if code != "" {
		_ = a.send(&protocol.SyncRemoveWire{RoomCode: code, WireID: id})
	}
}

// SetInput toggles an INPUT gate's value.
func (a *Adapter) SetInput(id string, value int) {
	a.mu.Lock()
	a.circ.SetValue(id, value)
	code := a.roomCode
	a.mu.Unlock()

	if code != "" {
		_ = a.send(&protocol.SyncInputValue{RoomCode: code, InputID: id, Value: value})
	}
}

// Evaluate recomputes the whole circuit and shares the OUTPUT values so
// peers' displays agree.
func (a *Adapter) Evaluate() circuit.Result {
	a.mu.Lock()
	result := a.circ.EvaluateAll()
	code := a.roomCode
	a.mu.Unlock()

	if code != "" && len(result.Outputs) > 0 {
		_ = a.send(&protocol.SyncOutputValues{RoomCode: code, Outputs: result.Outputs})
	}

	return result
}

// SendCursor shares the local pointer position, throttled so mouse moves
// do not flood the relay.
func (a *Adapter) SendCursor(x, y float64) {
	a.mu.Lock()
	if a.roomCode == "" || time.Since(a.lastCursor) < cursorInterval {
		a.mu.Unlock()
		return
	}
	a.lastCursor = time.Now()
	code := a.roomCode
	a.mu.Unlock()

	_ = a.send(&protocol.SyncCursor{RoomCode: code, X: x, Y: y})
}

// PushFullState publishes a snapshot of the entire local circuit. The
// relay stores it for late joiners and fans it out to current peers.
func (a *Adapter) PushFullState() error {
	a.mu.Lock()
	state := a.captureLocked()
	code := a.roomCode
	a.mu.Unlock()

	if code == "" {
		return ErrNotInRoom
	}

	return a.send(&protocol.SyncFullState{RoomCode: code, State: state})
}

// RequestFullState asks the relay for the room's last stored snapshot.
// If none has been published yet there will be no reply, so callers must
// not block waiting for one.
func (a *Adapter) RequestFullState() error {
	return a.sendRoom(func(code string) protocol.Message {
		return &protocol.RequestFullState{RoomCode: code}
	})
}

func (a *Adapter) captureLocked() protocol.CircuitState {
	state := protocol.CircuitState{
		Gates:     []protocol.GateState{},
		Wires:     []protocol.WireState{},
		Timestamp: time.Now().UnixMilli(),
	}

	for _, gate := range a.circ.Gates() {
		pos := a.positions[gate.ID]
		gs := protocol.GateState{
			ID:   gate.ID,
			Type: string(gate.Kind),
			X:    pos.x,
			Y:    pos.y,
		}
		if gate.Kind == circuit.KindInput {
			value := gate.Value
			gs.Value = &value
		}
		state.Gates = append(state.Gates, gs)
	}

	for _, wire := range a.wires {
		state.Wires = append(state.Wires, wire)
	}

	return state
}

// ---- Plumbing ----

func (a *Adapter) send(msg protocol.Message) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.conn == nil {
		return ErrNotConnected
	}

	return a.conn.WriteJSON(protocol.Wrap(msg))
}

func (a *Adapter) sendRoom(build func(code string) protocol.Message) error {
	a.mu.Lock()
	code := a.roomCode
	a.mu.Unlock()

	if code == "" {
		return ErrNotInRoom
	}

	return a.send(build(code))
}

// await registers a one-shot waiter for the first of the given events.
func (a *Adapter) await(events ...string) chan protocol.Message {
	ch := make(chan protocol.Message, 1)

	a.mu.Lock()
	for _, event := range events {
		a.waiters[event] = ch
	}
	a.mu.Unlock()

	return ch
}

func (a *Adapter) wait(ctx context.Context, ch chan protocol.Message) (protocol.Message, error) {
	select {
	case msg := <-ch:
		return msg, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}
