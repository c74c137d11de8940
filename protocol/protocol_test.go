/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package protocol

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWrapSetsTypeTag(t *testing.T) {
	env := Wrap(&JoinRoom{RoomCode: "ABC123", Username: "Ada"})

	assert.Equal(t, EventJoinRoom, env.Type)
	assert.JSONEq(t, `{"roomCode":"ABC123","username":"Ada"}`, string(env.Data))
}

func TestDecodeClientRoundTrip(t *testing.T) {
	value := 1
	sent := []Message{
		&CreateRoom{Username: "Ada"},
		&JoinRoom{RoomCode: "ABC123", Username: "Bea"},
		&StartGame{RoomCode: "ABC123", RequestedStartLevel: 3},
		&SyncAddGate{RoomCode: "ABC123", Gate: GateState{ID: "g1", Type: "INPUT", X: 10, Y: 20, Value: &value}},
		&SyncAddWire{RoomCode: "ABC123", Wire: WireState{
			ID:   "w1",
			From: PortRef{GateID: "g1", Dir: "output", Index: 0},
			To:   PortRef{GateID: "g2", Dir: "input", Index: 1},
		}},
		&SyncOutputValues{RoomCode: "ABC123", Outputs: map[string]int{"out1": 1}},
		&GetActiveRooms{},
	}

	for _, msg := range sent {
		t.Run(msg.Event(), func(t *testing.T) {
			got, err := DecodeClient(Wrap(msg))
			require.NoError(t, err)
			assert.Equal(t, msg, got)
		})
	}
}

func TestDecodeServerRoundTrip(t *testing.T) {
	sent := []Message{
		&RoomCreated{RoomCode: "ABC123", PlayerID: "p1", Players: []PlayerInfo{
			{ID: "p1", Username: "Ada", IsHost: true},
		}},
		&JoinError{Error: "Room not found"},
		&PlayerLeft{Players: []PlayerInfo{}, NewHost: "p2"},
		&GameStarted{Level: 5, Players: []PlayerInfo{}},
		&GateAdded{PlayerID: "p1", Username: "Ada", Gate: GateState{ID: "g1", Type: "AND"}},
		&CursorMoved{PlayerID: "p1", Username: "Ada", X: 3.5, Y: 7.25},
		&ActiveRooms{Rooms: []RoomSummary{{Code: "ABC123", PlayerCount: 2, MaxPlayers: 4}}},
	}

	for _, msg := range sent {
		t.Run(msg.Event(), func(t *testing.T) {
			got, err := DecodeServer(Wrap(msg))
			require.NoError(t, err)
			assert.Equal(t, msg, got)
		})
	}
}

// chat-message carries different payloads per direction, so each decoder
// resolves it to its own type.
func TestChatEventIsDirectional(t *testing.T) {
	clientMsg, err := DecodeClient(Envelope{
		Type: EventChatMessage,
		Data: json.RawMessage(`{"roomCode":"ABC123","message":"hi"}`),
	})
	require.NoError(t, err)
	require.IsType(t, &ChatMessage{}, clientMsg)
	assert.Equal(t, "hi", clientMsg.(*ChatMessage).Message)

	serverMsg, err := DecodeServer(Envelope{
		Type: EventChatMessage,
		Data: json.RawMessage(`{"username":"Ada","message":"hi"}`),
	})
	require.NoError(t, err)
	require.IsType(t, &ChatBroadcast{}, serverMsg)
	assert.Equal(t, "Ada", serverMsg.(*ChatBroadcast).Username)
}

func TestDecodeUnknownEvent(t *testing.T) {
	_, err := DecodeClient(Envelope{Type: "no-such-event"})
	assert.Error(t, err)

	_, err = DecodeServer(Envelope{Type: "no-such-event"})
	assert.Error(t, err)
}

func TestDecodeDirectionsDoNotOverlap(t *testing.T) {
	_, err := DecodeClient(Envelope{Type: EventRoomCreated})
	assert.Error(t, err)

	_, err = DecodeServer(Envelope{Type: EventCreateRoom})
	assert.Error(t, err)
}

func TestDecodeEmptyPayload(t *testing.T) {
	msg, err := DecodeClient(Envelope{Type: EventGetActiveRooms})
	require.NoError(t, err)
	assert.Equal(t, &GetActiveRooms{}, msg)
}

func TestDecodeMalformedPayload(t *testing.T) {
	_, err := DecodeClient(Envelope{
		Type: EventJoinRoom,
		Data: json.RawMessage(`{"roomCode":42}`),
	})
	assert.Error(t, err)
}

func TestGateValueOmittedWhenUnset(t *testing.T) {
	data, err := json.Marshal(GateState{ID: "g1", Type: "AND"})
	require.NoError(t, err)
	assert.NotContains(t, string(data), "value")
}
