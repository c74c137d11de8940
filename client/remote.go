/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package client

import (
	"context"
	"log"
	"time"

	"github.com/gorilla/websocket"

	"github.com/Seednode/gatebox/circuit"
	"github.com/Seednode/gatebox/protocol"
)

func (a *Adapter) readLoop(conn *websocket.Conn) {
	for {
		var env protocol.Envelope
		if err := conn.ReadJSON(&env); err != nil {
			break
		}

		msg, err := protocol.DecodeServer(env)
		if err != nil {
			log.Printf("client: dropping frame: %v", err)
			continue
		}

		a.dispatch(msg)
	}

	_ = conn.Close()

	a.mu.Lock()
	closed := a.closed
	if a.conn == conn {
		a.conn = nil
	}
	a.mu.Unlock()

	if !closed {
		go a.reconnectLoop()
	}
}

// reconnectLoop re-dials with a capped backoff. Once the transport is
// back, the adapter silently re-issues join-room with its remembered
// identity; a join-error during this rejoin clears the remembered room
// and the player must rejoin manually.
func (a *Adapter) reconnectLoop() {
	delay := reconnectDelay

	for attempt := 0; attempt < reconnectAttempts; attempt++ {
		time.Sleep(delay)
		if delay *= 2; delay > reconnectDelayMax {
			delay = reconnectDelayMax
		}

		a.mu.Lock()
		if a.closed {
			a.mu.Unlock()
			return
		}
		url := a.url
		a.mu.Unlock()

		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		conn, _, err := websocket.DefaultDialer.DialContext(ctx, url, nil)
		cancel()
		if err != nil {
			continue
		}

		a.mu.Lock()
		a.conn = conn
		code := a.roomCode
		username := a.username
		a.mu.Unlock()

		go a.readLoop(conn)

		if code != "" {
			log.Printf("client: rejoining room %s after reconnect", code)
			_ = a.send(&protocol.JoinRoom{RoomCode: code, Username: username})
		}

		return
	}

	log.Printf("client: reconnect failed, giving up")
}

func (a *Adapter) dispatch(msg protocol.Message) {
	switch m := msg.(type) {
	case *protocol.RoomCreated:
		a.mu.Lock()
		a.roomCode = m.RoomCode
		a.playerID = m.PlayerID
		a.players = m.Players
		a.isHost = true
		a.resetContribsLocked()
		a.mu.Unlock()
	case *protocol.RoomJoined:
		a.mu.Lock()
		a.roomCode = m.RoomCode
		a.playerID = m.PlayerID
		a.players = m.Players
		a.isHost = false
		a.resetContribsLocked()
		a.mu.Unlock()
	case *protocol.JoinError:
		// Covers the silent-rejoin failure path as well: the remembered
		// room is gone, the player is outside any room.
		a.mu.Lock()
		a.roomCode = ""
		a.isHost = false
		a.mu.Unlock()
	case *protocol.PlayerJoined:
		a.mu.Lock()
		a.players = m.Players
		a.mu.Unlock()
	case *protocol.PlayerLeft:
		a.mu.Lock()
		a.players = m.Players
		if m.NewHost != "" && m.NewHost == a.playerID {
			a.isHost = true
		}
		a.mu.Unlock()
	case *protocol.LeftRoom:
		a.mu.Lock()
		a.roomCode = ""
		a.isHost = false
		a.mu.Unlock()
	case *protocol.PlayerReadyChanged:
		a.mu.Lock()
		a.players = m.Players
		a.mu.Unlock()
	case *protocol.GameStarted:
		a.mu.Lock()
		a.level = m.Level
		a.players = m.Players
		a.mu.Unlock()
	case *protocol.GateAdded:
		a.applyRemoteGateAdded(m)
	case *protocol.GateMoved:
		a.applyRemoteGateMoved(m)
	case *protocol.GateRemoved:
		a.applyRemoteGateRemoved(m)
	case *protocol.WireAdded:
		a.applyRemoteWireAdded(m)
	case *protocol.WireRemoved:
		a.applyRemoteWireRemoved(m)
	case *protocol.InputValueChanged:
		a.applyRemoteInputValue(m)
	case *protocol.OutputValuesChanged:
		a.applyRemoteOutputValues(m)
	case *protocol.CursorMoved:
		a.mu.Lock()
		a.cursors[m.PlayerID] = Cursor{Username: m.Username, X: m.X, Y: m.Y}
		a.mu.Unlock()
	case *protocol.FullStateUpdated:
		a.applyFullState(m.State)
	case *protocol.FullStateReceived:
		a.applyFullState(m.State)
	}

	a.deliver(msg)
}

// deliver resolves one-shot waiters and then runs UI callbacks, both
// outside the adapter lock.
func (a *Adapter) deliver(msg protocol.Message) {
	event := msg.Event()

	a.mu.Lock()
	waiter := a.waiters[event]
	if waiter != nil {
		delete(a.waiters, event)
		// A paired waiter (join-room waits on two events) must fire
		// for whichever arrives first only.
		for other, ch := range a.waiters {
			if ch == waiter {
				delete(a.waiters, other)
			}
		}
	}
	callbacks := append([]func(protocol.Message){}, a.handlers[event]...)
	a.mu.Unlock()

	if waiter != nil {
		waiter <- msg
	}

	for _, fn := range callbacks {
		fn(msg)
	}
}

// ---- Remote apply paths (never emit) ----

func (a *Adapter) applyRemoteGateAdded(m *protocol.GateAdded) {
	a.mu.Lock()
	defer a.mu.Unlock()

	kind := circuit.Kind(m.Gate.Type)

	if kind.Logic() {
		a.creditLocked(m.PlayerID, m.Username).GatesPlaced++
	}

	// Same id on every peer, so later events agree on identity.
	a.circ.AddGate(kind, m.Gate.ID)
	a.positions[m.Gate.ID] = position{x: m.Gate.X, y: m.Gate.Y}

	if m.Gate.Value != nil {
		a.circ.SetValue(m.Gate.ID, *m.Gate.Value)
	}
}

func (a *Adapter) applyRemoteGateMoved(m *protocol.GateMoved) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if _, ok := a.positions[m.GateID]; ok {
		a.positions[m.GateID] = position{x: m.X, y: m.Y}
	}
}

func (a *Adapter) applyRemoteGateRemoved(m *protocol.GateRemoved) {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.circ.RemoveGate(m.GateID)
	delete(a.positions, m.GateID)
	a.dropIncidentWiresLocked(m.GateID)
}

func (a *Adapter) applyRemoteWireAdded(m *protocol.WireAdded) {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.creditLocked(m.PlayerID, m.Username).WiresConnected++

	// Endpoints resolve by port identity alone. If either gate is gone
	// locally (concurrent removal), the wire is dropped, never applied
	// against stale coordinates.
	if a.circ.Gate(m.Wire.From.GateID) == nil || a.circ.Gate(m.Wire.To.GateID) == nil {
		log.Printf("client: dropping wire %s, endpoint gate missing", m.Wire.ID)
		return
	}

	a.wires[m.Wire.ID] = m.Wire
	a.circ.AddConnection(m.Wire.From.GateID, m.Wire.To.GateID, m.Wire.ID)
}

func (a *Adapter) applyRemoteWireRemoved(m *protocol.WireRemoved) {
	a.mu.Lock()
	defer a.mu.Unlock()

	delete(a.wires, m.WireID)
	a.circ.RemoveConnectionID(m.WireID)
}

func (a *Adapter) applyRemoteInputValue(m *protocol.InputValueChanged) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if gate := a.circ.Gate(m.InputID); gate != nil && gate.Kind == circuit.KindInput {
		a.circ.SetValue(m.InputID, m.Value)
	}
}

func (a *Adapter) applyRemoteOutputValues(m *protocol.OutputValuesChanged) {
	a.mu.Lock()
	defer a.mu.Unlock()

	for id, value := range m.Outputs {
		if gate := a.circ.Gate(id); gate != nil && gate.Kind == circuit.KindOutput {
			a.circ.SetValue(id, value)
		}
	}
}

// applyFullState clears and rebuilds the entire local store from a
// snapshot, making the sender's view authoritative for this client.
func (a *Adapter) applyFullState(state protocol.CircuitState) {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.circ.Reset()
	a.positions = make(map[string]position)
	a.wires = make(map[string]protocol.WireState)

	for _, gs := range state.Gates {
		a.circ.AddGate(circuit.Kind(gs.Type), gs.ID)
		a.positions[gs.ID] = position{x: gs.X, y: gs.Y}
		if gs.Value != nil {
			a.circ.SetValue(gs.ID, *gs.Value)
		}
	}

	for _, wire := range state.Wires {
		if a.circ.Gate(wire.From.GateID) == nil || a.circ.Gate(wire.To.GateID) == nil {
			log.Printf("client: snapshot wire %s references missing gate, dropped", wire.ID)
			continue
		}
		a.wires[wire.ID] = wire
		a.circ.AddConnection(wire.From.GateID, wire.To.GateID, wire.ID)
	}
}

// ---- Shared helpers ----

func (a *Adapter) creditLocked(playerID, username string) *protocol.Contribution {
	c, ok := a.contribs[playerID]
	if !ok {
		c = &protocol.Contribution{PlayerID: playerID, Username: username}
		a.contribs[playerID] = c
	}
	return c
}

func (a *Adapter) resetContribsLocked() {
	a.contribs = make(map[string]*protocol.Contribution)
}

func (a *Adapter) dropIncidentWiresLocked(gateID string) {
	for id, wire := range a.wires {
		if wire.From.GateID == gateID || wire.To.GateID == gateID {
			delete(a.wires, id)
		}
	}
}
