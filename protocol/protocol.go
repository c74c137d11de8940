/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

// Package protocol defines the wire format spoken between the gatebox
// server and its clients: a tagged envelope carrying one JSON payload per
// event type. Decode dispatches exhaustively, so an unrecognized event is
// an error rather than a silently-dropped field access.
package protocol

import (
	"encoding/json"
	"fmt"
	"time"
)

// Event names, client to server.
const (
	EventCreateRoom       = "create-room"
	EventJoinRoom         = "join-room"
	EventLeaveRoom        = "leave-room"
	EventToggleReady      = "toggle-ready"
	EventStartGame        = "start-game"
	EventSyncAddGate      = "sync-add-gate"
	EventSyncMoveGate     = "sync-move-gate"
	EventSyncRemoveGate   = "sync-remove-gate"
	EventSyncAddWire      = "sync-add-wire"
	EventSyncRemoveWire   = "sync-remove-wire"
	EventSyncInputValue   = "sync-input-value"
	EventSyncOutputValues = "sync-output-values"
	EventSyncCursor       = "sync-cursor"
	EventSyncFullState    = "sync-full-state"
	EventRequestFullState = "request-full-state"
	EventLevelCompleted   = "level-completed"
	EventChatMessage      = "chat-message"
	EventGetActiveRooms   = "get-active-rooms"
)

// Event names, server to client.
const (
	EventRoomCreated          = "room-created"
	EventRoomJoined           = "room-joined"
	EventJoinError            = "join-error"
	EventPlayerJoined         = "player-joined"
	EventLeftRoom             = "left-room"
	EventPlayerLeft           = "player-left"
	EventPlayerReadyChanged   = "player-ready-changed"
	EventGameStarted          = "game-started"
	EventStartError           = "start-error"
	EventGateAdded            = "gate-added"
	EventGateMoved            = "gate-moved"
	EventGateRemoved          = "gate-removed"
	EventWireAdded            = "wire-added"
	EventWireRemoved          = "wire-removed"
	EventInputValueChanged    = "input-value-changed"
	EventOutputValuesChanged  = "output-values-changed"
	EventCursorMoved          = "cursor-moved"
	EventFullStateUpdated     = "full-state-updated"
	EventFullStateReceived    = "full-state-received"
	EventPlayerCompletedLevel = "player-completed-level"
	EventActiveRooms          = "active-rooms"
)

// Envelope is the outer frame for every websocket message.
type Envelope struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`
}

// Message is implemented by every payload type in this package.
type Message interface {
	Event() string
}

// Wrap builds an envelope around a payload, panicking only on
// unmarshalable payloads, which would be a programming error.
func Wrap(msg Message) Envelope {
	data, err := json.Marshal(msg)
	if err != nil {
		panic("protocol: marshal " + msg.Event() + ": " + err.Error())
	}
	return Envelope{Type: msg.Event(), Data: data}
}

// ---- Shared payload types ----

// PlayerInfo describes one room member.
type PlayerInfo struct {
	ID       string `json:"id"`
	Username string `json:"username"`
	IsHost   bool   `json:"isHost"`
	Ready    bool   `json:"ready"`
}

// GateState is a gate as it travels over the wire: identity, kind, canvas
// placement, and the stored value for INPUT gates.
type GateState struct {
	ID    string  `json:"id"`
	Type  string  `json:"type"`
	X     float64 `json:"x"`
	Y     float64 `json:"y"`
	Value *int    `json:"value,omitempty"`
}

// PortRef identifies one wire endpoint. Identity is (gate, direction,
// index) only; coordinates are never part of it.
type PortRef struct {
	GateID string `json:"gateId"`
	Dir    string `json:"dir"` // "input" or "output"
	Index  int    `json:"index"`
}

// WireState is a wire as it travels over the wire protocol.
type WireState struct {
	ID   string  `json:"id"`
	From PortRef `json:"from"`
	To   PortRef `json:"to"`
}

// CircuitState is a full snapshot of one circuit: the payload of
// sync-full-state and full-state-received.
type CircuitState struct {
	Gates     []GateState `json:"gates"`
	Wires     []WireState `json:"wires"`
	Timestamp int64       `json:"timestamp"`
}

// RoomSummary is one entry in the active-rooms listing.
type RoomSummary struct {
	Code        string `json:"code"`
	PlayerCount int    `json:"playerCount"`
	MaxPlayers  int    `json:"maxPlayers"`
	Started     bool   `json:"started"`
}

// TeamStats summarizes a collaborative level completion.
type TeamStats struct {
	TotalTime      float64        `json:"totalTime"`
	GatesPlaced    int            `json:"gatesPlaced"`
	WiresConnected int            `json:"wiresConnected"`
	Players        []Contribution `json:"players,omitempty"`
}

// Contribution is one player's share of a collaborative build.
type Contribution struct {
	PlayerID       string `json:"playerId"`
	Username       string `json:"username"`
	GatesPlaced    int    `json:"gatesPlaced"`
	WiresConnected int    `json:"wiresConnected"`
}

// ---- Client to server ----

type CreateRoom struct {
	Username string `json:"username"`
}

type JoinRoom struct {
	RoomCode string `json:"roomCode"`
	Username string `json:"username"`
}

type LeaveRoom struct {
	RoomCode string `json:"roomCode"`
}

type ToggleReady struct {
	RoomCode string `json:"roomCode"`
}

type StartGame struct {
	RoomCode            string `json:"roomCode"`
	RequestedStartLevel int    `json:"requestedStartLevel"`
}

type SyncAddGate struct {
	RoomCode string    `json:"roomCode"`
	Gate     GateState `json:"gate"`
}

type SyncMoveGate struct {
	RoomCode string  `json:"roomCode"`
	GateID   string  `json:"gateId"`
	X        float64 `json:"x"`
	Y        float64 `json:"y"`
}

type SyncRemoveGate struct {
	RoomCode string `json:"roomCode"`
	GateID   string `json:"gateId"`
}

type SyncAddWire struct {
	RoomCode string    `json:"roomCode"`
	Wire     WireState `json:"wire"`
}

type SyncRemoveWire struct {
	RoomCode string `json:"roomCode"`
	WireID   string `json:"wireId"`
}

type SyncInputValue struct {
	RoomCode string `json:"roomCode"`
	InputID  string `json:"inputId"`
	Value    int    `json:"value"`
}

type SyncOutputValues struct {
	RoomCode string         `json:"roomCode"`
	Outputs  map[string]int `json:"outputs"`
}

type SyncCursor struct {
	RoomCode string  `json:"roomCode"`
	X        float64 `json:"x"`
	Y        float64 `json:"y"`
}

type SyncFullState struct {
	RoomCode string       `json:"roomCode"`
	State    CircuitState `json:"state"`
}

type RequestFullState struct {
	RoomCode string `json:"roomCode"`
}

type LevelCompleted struct {
	RoomCode  string    `json:"roomCode"`
	LevelID   int       `json:"levelId"`
	Time      float64   `json:"time"`
	TeamStats TeamStats `json:"teamStats"`
}

type ChatMessage struct {
	RoomCode string `json:"roomCode"`
	Message  string `json:"message"`
}

type GetActiveRooms struct{}

func (CreateRoom) Event() string       { return EventCreateRoom }
func (JoinRoom) Event() string         { return EventJoinRoom }
func (LeaveRoom) Event() string        { return EventLeaveRoom }
func (ToggleReady) Event() string      { return EventToggleReady }
func (StartGame) Event() string        { return EventStartGame }
func (SyncAddGate) Event() string      { return EventSyncAddGate }
func (SyncMoveGate) Event() string     { return EventSyncMoveGate }
func (SyncRemoveGate) Event() string   { return EventSyncRemoveGate }
func (SyncAddWire) Event() string      { return EventSyncAddWire }
func (SyncRemoveWire) Event() string   { return EventSyncRemoveWire }
func (SyncInputValue) Event() string   { return EventSyncInputValue }
func (SyncOutputValues) Event() string { return EventSyncOutputValues }
func (SyncCursor) Event() string       { return EventSyncCursor }
func (SyncFullState) Event() string    { return EventSyncFullState }
func (RequestFullState) Event() string { return EventRequestFullState }
func (LevelCompleted) Event() string   { return EventLevelCompleted }
func (ChatMessage) Event() string      { return EventChatMessage }
func (GetActiveRooms) Event() string   { return EventGetActiveRooms }

// ---- Server to client ----

type RoomCreated struct {
	RoomCode string       `json:"roomCode"`
	PlayerID string       `json:"playerId"`
	Players  []PlayerInfo `json:"players"`
}

type RoomJoined struct {
	RoomCode string       `json:"roomCode"`
	PlayerID string       `json:"playerId"`
	Players  []PlayerInfo `json:"players"`
}

type JoinError struct {
	Error string `json:"error"`
}

type PlayerJoined struct {
	Player  PlayerInfo   `json:"player"`
	Players []PlayerInfo `json:"players"`
}

type LeftRoom struct{}

type PlayerLeft struct {
	Players []PlayerInfo `json:"players"`
	NewHost string       `json:"newHost,omitempty"`
}

type PlayerReadyChanged struct {
	PlayerID string       `json:"playerId"`
	Ready    bool         `json:"ready"`
	Players  []PlayerInfo `json:"players"`
}

type GameStarted struct {
	Level   int          `json:"level"`
	Players []PlayerInfo `json:"players"`
}

type StartError struct {
	Error string `json:"error"`
}

type GateAdded struct {
	PlayerID string    `json:"playerId"`
	Username string    `json:"username,omitempty"`
	Gate     GateState `json:"gate"`
}

type GateMoved struct {
	PlayerID string  `json:"playerId"`
	GateID   string  `json:"gateId"`
	X        float64 `json:"x"`
	Y        float64 `json:"y"`
}

type GateRemoved struct {
	PlayerID string `json:"playerId"`
	GateID   string `json:"gateId"`
}

type WireAdded struct {
	PlayerID string    `json:"playerId"`
	Username string    `json:"username,omitempty"`
	Wire     WireState `json:"wire"`
}

type WireRemoved struct {
	PlayerID string `json:"playerId"`
	WireID   string `json:"wireId"`
}

type InputValueChanged struct {
	PlayerID string `json:"playerId"`
	Username string `json:"username,omitempty"`
	InputID  string `json:"inputId"`
	Value    int    `json:"value"`
}

type OutputValuesChanged struct {
	PlayerID string         `json:"playerId"`
	Username string         `json:"username,omitempty"`
	Outputs  map[string]int `json:"outputs"`
}

type CursorMoved struct {
	PlayerID string  `json:"playerId"`
	Username string  `json:"username"`
	X        float64 `json:"x"`
	Y        float64 `json:"y"`
}

type FullStateUpdated struct {
	PlayerID string       `json:"playerId"`
	State    CircuitState `json:"state"`
}

type FullStateReceived struct {
	State CircuitState `json:"state"`
}

type PlayerCompletedLevel struct {
	PlayerID  string    `json:"playerId"`
	Username  string    `json:"username"`
	LevelID   int       `json:"levelId"`
	Time      float64   `json:"time"`
	TeamStats TeamStats `json:"teamStats"`
}

type ChatBroadcast struct {
	Username  string    `json:"username"`
	Message   string    `json:"message"`
	Timestamp time.Time `json:"timestamp"`
}

type ActiveRooms struct {
	Rooms []RoomSummary `json:"rooms"`
}

func (RoomCreated) Event() string          { return EventRoomCreated }
func (RoomJoined) Event() string           { return EventRoomJoined }
func (JoinError) Event() string            { return EventJoinError }
func (PlayerJoined) Event() string         { return EventPlayerJoined }
func (LeftRoom) Event() string             { return EventLeftRoom }
func (PlayerLeft) Event() string           { return EventPlayerLeft }
func (PlayerReadyChanged) Event() string   { return EventPlayerReadyChanged }
func (GameStarted) Event() string          { return EventGameStarted }
func (StartError) Event() string           { return EventStartError }
func (GateAdded) Event() string            { return EventGateAdded }
func (GateMoved) Event() string            { return EventGateMoved }
func (GateRemoved) Event() string          { return EventGateRemoved }
func (WireAdded) Event() string            { return EventWireAdded }
func (WireRemoved) Event() string          { return EventWireRemoved }
func (InputValueChanged) Event() string    { return EventInputValueChanged }
func (OutputValuesChanged) Event() string  { return EventOutputValuesChanged }
func (CursorMoved) Event() string          { return EventCursorMoved }
func (FullStateUpdated) Event() string     { return EventFullStateUpdated }
func (FullStateReceived) Event() string    { return EventFullStateReceived }
func (PlayerCompletedLevel) Event() string { return EventPlayerCompletedLevel }
func (ChatBroadcast) Event() string        { return EventChatMessage }
func (ActiveRooms) Event() string          { return EventActiveRooms }

// DecodeClient unwraps an envelope sent by a client, as received by the
// server. The chat-message event decodes differently per direction, which
// is why the decoders are split.
func DecodeClient(env Envelope) (Message, error) {
	var msg Message

	switch env.Type {
	case EventCreateRoom:
		msg = &CreateRoom{}
	case EventJoinRoom:
		msg = &JoinRoom{}
	case EventLeaveRoom:
		msg = &LeaveRoom{}
	case EventToggleReady:
		msg = &ToggleReady{}
	case EventStartGame:
		msg = &StartGame{}
	case EventSyncAddGate:
		msg = &SyncAddGate{}
	case EventSyncMoveGate:
		msg = &SyncMoveGate{}
	case EventSyncRemoveGate:
		msg = &SyncRemoveGate{}
	case EventSyncAddWire:
		msg = &SyncAddWire{}
	case EventSyncRemoveWire:
		msg = &SyncRemoveWire{}
	case EventSyncInputValue:
		msg = &SyncInputValue{}
	case EventSyncOutputValues:
		msg = &SyncOutputValues{}
	case EventSyncCursor:
		msg = &SyncCursor{}
	case EventSyncFullState:
		msg = &SyncFullState{}
	case EventRequestFullState:
		msg = &RequestFullState{}
	case EventLevelCompleted:
		msg = &LevelCompleted{}
	case EventChatMessage:
		msg = &ChatMessage{}
	case EventGetActiveRooms:
		msg = &GetActiveRooms{}
	default:
		return nil, fmt.Errorf("protocol: unknown client event %q", env.Type)
	}

	return msg, unmarshalPayload(env, msg)
}

// DecodeServer unwraps an envelope sent by the server, as received by a
// client.
func DecodeServer(env Envelope) (Message, error) {
	var msg Message

	switch env.Type {
	case EventRoomCreated:
		msg = &RoomCreated{}
	case EventRoomJoined:
		msg = &RoomJoined{}
	case EventJoinError:
		msg = &JoinError{}
	case EventPlayerJoined:
		msg = &PlayerJoined{}
	case EventLeftRoom:
		msg = &LeftRoom{}
	case EventPlayerLeft:
		msg = &PlayerLeft{}
	case EventPlayerReadyChanged:
		msg = &PlayerReadyChanged{}
	case EventGameStarted:
		msg = &GameStarted{}
	case EventStartError:
		msg = &StartError{}
	case EventGateAdded:
		msg = &GateAdded{}
	case EventGateMoved:
		msg = &GateMoved{}
	case EventGateRemoved:
		msg = &GateRemoved{}
	case EventWireAdded:
		msg = &WireAdded{}
	case EventWireRemoved:
		msg = &WireRemoved{}
	case EventInputValueChanged:
		msg = &InputValueChanged{}
	case EventOutputValuesChanged:
		msg = &OutputValuesChanged{}
	case EventCursorMoved:
		msg = &CursorMoved{}
	case EventFullStateUpdated:
		msg = &FullStateUpdated{}
	case EventFullStateReceived:
		msg = &FullStateReceived{}
	case EventPlayerCompletedLevel:
		msg = &PlayerCompletedLevel{}
	case EventChatMessage:
		msg = &ChatBroadcast{}
	case EventActiveRooms:
		msg = &ActiveRooms{}
	default:
		return nil, fmt.Errorf("protocol: unknown server event %q", env.Type)
	}

	return msg, unmarshalPayload(env, msg)
}

func unmarshalPayload(env Envelope, msg Message) error {
	if len(env.Data) == 0 {
		return nil
	}
	if err := json.Unmarshal(env.Data, msg); err != nil {
		return fmt.Errorf("protocol: decode %s: %w", env.Type, err)
	}
	return nil
}
