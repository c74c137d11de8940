/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package main

import (
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/julienschmidt/httprouter"

	"github.com/Seednode/gatebox/protocol"
	"github.com/Seednode/gatebox/room"
)

func startRelay(t *testing.T) string {
	t.Helper()

	cfg := &Config{
		maxPlayers:     4,
		totalLevels:    17,
		sessionTimeout: time.Minute,
	}

	registry := room.NewRegistry(cfg.maxPlayers, cfg.totalLevels)
	hub := newHub(registry)
	go hub.run(cfg)

	mux := httprouter.New()
	mux.GET("/ws", serveWS(cfg, hub))

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	return "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
}

type peer struct {
	t    *testing.T
	conn *websocket.Conn
	id   string
}

func dial(t *testing.T, url string) *peer {
	t.Helper()

	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { _ = conn.Close() })

	return &peer{t: t, conn: conn}
}

func (p *peer) send(msg protocol.Message) {
	p.t.Helper()

	if err := p.conn.WriteJSON(protocol.Wrap(msg)); err != nil {
		p.t.Fatalf("write %s: %v", msg.Event(), err)
	}
}

// next reads frames until the named event arrives, failing on timeout or
// an unexpected frame ordering problem surfaces through the deadline.
func (p *peer) next(event string) protocol.Message {
	p.t.Helper()

	deadline := time.Now().Add(5 * time.Second)
	_ = p.conn.SetReadDeadline(deadline)

	for {
		var env protocol.Envelope
		if err := p.conn.ReadJSON(&env); err != nil {
			p.t.Fatalf("waiting for %s: %v", event, err)
		}
		if env.Type != event {
			continue
		}

		msg, err := protocol.DecodeServer(env)
		if err != nil {
			p.t.Fatalf("decode %s: %v", event, err)
		}
		return msg
	}
}

// nextFrame reads exactly one frame, whatever it is.
func (p *peer) nextFrame() protocol.Envelope {
	p.t.Helper()

	_ = p.conn.SetReadDeadline(time.Now().Add(5 * time.Second))

	var env protocol.Envelope
	if err := p.conn.ReadJSON(&env); err != nil {
		p.t.Fatalf("read: %v", err)
	}
	return env
}

func (p *peer) createRoom(username string) string {
	p.t.Helper()

	p.send(&protocol.CreateRoom{Username: username})

	created := p.next(protocol.EventRoomCreated).(*protocol.RoomCreated)
	p.id = created.PlayerID
	return created.RoomCode
}

func (p *peer) joinRoom(code, username string) *protocol.RoomJoined {
	p.t.Helper()

	p.send(&protocol.JoinRoom{RoomCode: code, Username: username})

	joined := p.next(protocol.EventRoomJoined).(*protocol.RoomJoined)
	p.id = joined.PlayerID
	return joined
}

func TestCreateAndJoin(t *testing.T) {
	url := startRelay(t)

	host := dial(t, url)
	code := host.createRoom("Ada")

	if len(code) != 6 {
		t.Fatalf("room code %q, want 6 characters", code)
	}

	guest := dial(t, url)
	joined := guest.joinRoom(code, "Bea")

	if len(joined.Players) != 2 {
		t.Fatalf("roster has %d players, want 2", len(joined.Players))
	}
	if !joined.Players[0].IsHost || joined.Players[0].Username != "Ada" {
		t.Fatalf("first roster entry %+v, want host Ada", joined.Players[0])
	}

	announced := host.next(protocol.EventPlayerJoined).(*protocol.PlayerJoined)
	if announced.Player.Username != "Bea" {
		t.Fatalf("player-joined announced %q, want Bea", announced.Player.Username)
	}
}

func TestJoinCaseInsensitiveCode(t *testing.T) {
	url := startRelay(t)

	host := dial(t, url)
	code := host.createRoom("Ada")

	guest := dial(t, url)
	guest.joinRoom(strings.ToLower(code), "Bea")
}

func TestJoinErrors(t *testing.T) {
	url := startRelay(t)

	stranger := dial(t, url)
	stranger.send(&protocol.JoinRoom{RoomCode: "ZZZZZZ", Username: "Bea"})

	joinErr := stranger.next(protocol.EventJoinError).(*protocol.JoinError)
	if joinErr.Error != room.ErrNotFound.Error() {
		t.Fatalf("join error %q, want %q", joinErr.Error, room.ErrNotFound.Error())
	}

	host := dial(t, url)
	code := host.createRoom("Ada")

	for i := 0; i < 3; i++ {
		guest := dial(t, url)
		guest.joinRoom(code, "guest")
	}

	late := dial(t, url)
	late.send(&protocol.JoinRoom{RoomCode: code, Username: "late"})

	joinErr = late.next(protocol.EventJoinError).(*protocol.JoinError)
	if joinErr.Error != room.ErrFull.Error() {
		t.Fatalf("join error %q, want %q", joinErr.Error, room.ErrFull.Error())
	}
}

func TestSyncFanoutExcludesSender(t *testing.T) {
	url := startRelay(t)

	host := dial(t, url)
	code := host.createRoom("Ada")

	guest := dial(t, url)
	guest.joinRoom(code, "Bea")
	host.next(protocol.EventPlayerJoined)

	host.send(&protocol.SyncAddGate{
		RoomCode: code,
		Gate:     protocol.GateState{ID: "g1", Type: "AND", X: 10, Y: 20},
	})

	added := guest.next(protocol.EventGateAdded).(*protocol.GateAdded)
	if added.Gate.ID != "g1" {
		t.Fatalf("relayed gate id %q, want g1", added.Gate.ID)
	}
	if added.PlayerID != host.id {
		t.Fatalf("relayed playerId %q, want %q", added.PlayerID, host.id)
	}
	if added.Username != "Ada" {
		t.Fatalf("relayed username %q, want Ada", added.Username)
	}

	// Per-client frame order is stable, so if the next frame the sender
	// sees is the active-rooms reply, the gate event was not echoed.
	host.send(&protocol.GetActiveRooms{})
	if env := host.nextFrame(); env.Type != protocol.EventActiveRooms {
		t.Fatalf("sender received %s, want %s", env.Type, protocol.EventActiveRooms)
	}
}

func TestFullStatePersistsForLateRequest(t *testing.T) {
	url := startRelay(t)

	host := dial(t, url)
	code := host.createRoom("Ada")

	guest := dial(t, url)
	guest.joinRoom(code, "Bea")
	host.next(protocol.EventPlayerJoined)

	// No snapshot stored yet: the request gets no reply at all.
	guest.send(&protocol.RequestFullState{RoomCode: code})
	guest.send(&protocol.GetActiveRooms{})
	if env := guest.nextFrame(); env.Type != protocol.EventActiveRooms {
		t.Fatalf("got %s before snapshot existed, want %s", env.Type, protocol.EventActiveRooms)
	}

	value := 1
	host.send(&protocol.SyncFullState{
		RoomCode: code,
		State: protocol.CircuitState{
			Gates: []protocol.GateState{
				{ID: "in", Type: "INPUT", X: 1, Y: 2, Value: &value},
			},
			Wires:     []protocol.WireState{},
			Timestamp: time.Now().UnixMilli(),
		},
	})

	updated := guest.next(protocol.EventFullStateUpdated).(*protocol.FullStateUpdated)
	if len(updated.State.Gates) != 1 {
		t.Fatalf("broadcast snapshot has %d gates, want 1", len(updated.State.Gates))
	}

	guest.send(&protocol.RequestFullState{RoomCode: code})

	received := guest.next(protocol.EventFullStateReceived).(*protocol.FullStateReceived)
	if len(received.State.Gates) != 1 || received.State.Gates[0].ID != "in" {
		t.Fatalf("stored snapshot %+v, want the pushed gate", received.State.Gates)
	}
	if received.State.Gates[0].Value == nil || *received.State.Gates[0].Value != 1 {
		t.Fatalf("stored snapshot lost the input value")
	}
}

func TestStartGameAuthority(t *testing.T) {
	url := startRelay(t)

	host := dial(t, url)
	code := host.createRoom("Ada")

	guest := dial(t, url)
	guest.joinRoom(code, "Bea")
	host.next(protocol.EventPlayerJoined)

	// Non-host cannot start.
	guest.send(&protocol.StartGame{RoomCode: code, RequestedStartLevel: 1})
	startErr := guest.next(protocol.EventStartError).(*protocol.StartError)
	if startErr.Error != room.ErrNotHost.Error() {
		t.Fatalf("start error %q, want %q", startErr.Error, room.ErrNotHost.Error())
	}

	// Host cannot start while the guest is unready.
	host.send(&protocol.StartGame{RoomCode: code, RequestedStartLevel: 1})
	startErr = host.next(protocol.EventStartError).(*protocol.StartError)
	if startErr.Error != room.ErrNotReady.Error() {
		t.Fatalf("start error %q, want %q", startErr.Error, room.ErrNotReady.Error())
	}

	guest.send(&protocol.ToggleReady{RoomCode: code})
	ready := guest.next(protocol.EventPlayerReadyChanged).(*protocol.PlayerReadyChanged)
	if !ready.Ready || ready.PlayerID != guest.id {
		t.Fatalf("ready change %+v, want %s ready", ready, guest.id)
	}
	host.next(protocol.EventPlayerReadyChanged)

	// Requested level is clamped to the configured range.
	host.send(&protocol.StartGame{RoomCode: code, RequestedStartLevel: 99})

	for _, p := range []*peer{host, guest} {
		started := p.next(protocol.EventGameStarted).(*protocol.GameStarted)
		if started.Level != 17 {
			t.Fatalf("game started at level %d, want 17", started.Level)
		}
		if len(started.Players) != 2 {
			t.Fatalf("game started with %d players, want 2", len(started.Players))
		}
	}
}

func TestHostTransferOnDisconnect(t *testing.T) {
	url := startRelay(t)

	host := dial(t, url)
	code := host.createRoom("Ada")

	guest := dial(t, url)
	guest.joinRoom(code, "Bea")

	_ = host.conn.Close()

	left := guest.next(protocol.EventPlayerLeft).(*protocol.PlayerLeft)
	if left.NewHost != guest.id {
		t.Fatalf("new host %q, want %q", left.NewHost, guest.id)
	}
	if len(left.Players) != 1 || !left.Players[0].IsHost {
		t.Fatalf("roster after transfer %+v, want single host", left.Players)
	}
}

func TestLeaveRoomAcknowledged(t *testing.T) {
	url := startRelay(t)

	host := dial(t, url)
	code := host.createRoom("Ada")

	guest := dial(t, url)
	guest.joinRoom(code, "Bea")

	guest.send(&protocol.LeaveRoom{RoomCode: code})
	guest.next(protocol.EventLeftRoom)

	left := host.next(protocol.EventPlayerLeft).(*protocol.PlayerLeft)
	if len(left.Players) != 1 {
		t.Fatalf("roster after leave has %d players, want 1", len(left.Players))
	}
	if left.NewHost != "" {
		t.Fatalf("unexpected host transfer to %q", left.NewHost)
	}
}

func TestChatReachesWholeRoom(t *testing.T) {
	url := startRelay(t)

	host := dial(t, url)
	code := host.createRoom("Ada")

	guest := dial(t, url)
	guest.joinRoom(code, "Bea")
	host.next(protocol.EventPlayerJoined)

	host.send(&protocol.ChatMessage{RoomCode: code, Message: "ready when you are"})

	for _, p := range []*peer{host, guest} {
		chat := p.next(protocol.EventChatMessage).(*protocol.ChatBroadcast)
		if chat.Username != "Ada" || chat.Message != "ready when you are" {
			t.Fatalf("chat broadcast %+v", chat)
		}
	}
}

func TestActiveRoomsListing(t *testing.T) {
	url := startRelay(t)

	host := dial(t, url)
	code := host.createRoom("Ada")

	observer := dial(t, url)
	observer.send(&protocol.GetActiveRooms{})

	listing := observer.next(protocol.EventActiveRooms).(*protocol.ActiveRooms)
	if len(listing.Rooms) != 1 {
		t.Fatalf("listing has %d rooms, want 1", len(listing.Rooms))
	}
	if listing.Rooms[0].Code != code || listing.Rooms[0].PlayerCount != 1 {
		t.Fatalf("listing entry %+v", listing.Rooms[0])
	}
}

func TestMalformedFramesAreDropped(t *testing.T) {
	url := startRelay(t)

	p := dial(t, url)

	if err := p.conn.WriteJSON(protocol.Envelope{Type: "no-such-event"}); err != nil {
		t.Fatalf("write: %v", err)
	}

	// The connection survives and keeps serving.
	p.createRoom("Ada")
}
