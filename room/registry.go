/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

// Package room tracks multiplayer rooms: who is in them, who hosts them,
// and whether the game has started. It holds no circuit data beyond an
// opaque last-known-full-state blob used to bootstrap late joiners.
package room

import (
	"crypto/rand"
	"encoding/json"
	"errors"
	"sort"
	"sync"
	"time"
)

var (
	ErrNotFound       = errors.New("room not found")
	ErrAlreadyStarted = errors.New("game already started")
	ErrFull           = errors.New("room is full")
	ErrNotHost        = errors.New("only the host can start the game")
	ErrNotReady       = errors.New("all players must be ready")
)

// Player is one room member.
type Player struct {
	ID       string
	Username string
	IsHost   bool
	Ready    bool
	joinSeq  int
}

// Room groups up to maxPlayers players around one shared circuit.
type Room struct {
	Code          string
	Started       bool
	CurrentLevel  int
	players       map[string]*Player
	hostID        string
	lastFullState json.RawMessage
	createdAt     time.Time
	lastActive    time.Time
	joinSeq       int
}

// Registry is the authoritative room store for one server process. All
// mutation happens through its methods; the mutex exists because the
// reaper goroutine and HTTP handlers read alongside the hub loop.
type Registry struct {
	mu          sync.RWMutex
	rooms       map[string]*Room
	maxPlayers  int
	totalLevels int
}

func NewRegistry(maxPlayers, totalLevels int) *Registry {
	return &Registry{
		rooms:       make(map[string]*Room),
		maxPlayers:  maxPlayers,
		totalLevels: totalLevels,
	}
}

const codeAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

// newCodeLocked generates a 6-character room code that does not collide
// with any currently active room.
func (reg *Registry) newCodeLocked() string {
	for {
		buf := make([]byte, 6)
		if _, err := rand.Read(buf); err != nil {
			panic("crypto/rand failure: " + err.Error())
		}

		out := make([]byte, 6)
		for i := range out {
			out[i] = codeAlphabet[int(buf[i])%len(codeAlphabet)]
		}
		code := string(out)

		if _, exists := reg.rooms[code]; !exists {
			return code
		}
	}
}

// Create opens a new room with the given player as host and sole member.
func (reg *Registry) Create(hostID, username string) *Room {
	reg.mu.Lock()
	defer reg.mu.Unlock()

	now := time.Now()
	r := &Room{
		Code:       reg.newCodeLocked(),
		players:    make(map[string]*Player),
		hostID:     hostID,
		createdAt:  now,
		lastActive: now,
	}
	r.players[hostID] = &Player{
		ID:       hostID,
		Username: username,
		IsHost:   true,
		joinSeq:  r.joinSeq,
	}
	r.joinSeq++

	reg.rooms[r.Code] = r

	return r
}

// Join adds a player to an existing room. It fails with a named error if
// the room is missing, already underway, or at capacity, and never
// mutates the room on failure.
func (reg *Registry) Join(code, playerID, username string) ([]Player, error) {
	reg.mu.Lock()
	defer reg.mu.Unlock()

	r, ok := reg.rooms[code]
	if !ok {
		return nil, ErrNotFound
	}
	if r.Started {
		return nil, ErrAlreadyStarted
	}
	if len(r.players) >= reg.maxPlayers {
		return nil, ErrFull
	}

	r.players[playerID] = &Player{
		ID:       playerID,
		Username: username,
		joinSeq:  r.joinSeq,
	}
	r.joinSeq++
	r.lastActive = time.Now()

	return r.roster(), nil
}

// Departure reports the aftermath of a Leave call for broadcasting.
type Departure struct {
	Code    string
	Players []Player
	NewHost string
	Deleted bool
}

// Leave removes a player from whichever room holds them. An emptied room
// is deleted immediately; a departing host is replaced by the
// earliest-remaining-joined player.
func (reg *Registry) Leave(playerID string) (Departure, bool) {
	reg.mu.Lock()
	defer reg.mu.Unlock()

	for code, r := range reg.rooms {
		if _, ok := r.players[playerID]; !ok {
			continue
		}

		delete(r.players, playerID)
		r.lastActive = time.Now()

		if len(r.players) == 0 {
			delete(reg.rooms, code)
			return Departure{Code: code, Deleted: true}, true
		}

		dep := Departure{Code: code}

		if r.hostID == playerID {
			var next *Player
			for _, p := range r.players {
				if next == nil || p.joinSeq < next.joinSeq {
					next = p
				}
			}
			next.IsHost = true
			r.hostID = next.ID
			dep.NewHost = next.ID
		}

		dep.Players = r.roster()

		return dep, true
	}

	return Departure{}, false
}

// ToggleReady flips a player's ready flag, returning the new value and
// the updated roster.
func (reg *Registry) ToggleReady(code, playerID string) (bool, []Player, error) {
	reg.mu.Lock()
	defer reg.mu.Unlock()

	r, ok := reg.rooms[code]
	if !ok {
		return false, nil, ErrNotFound
	}
	p, ok := r.players[playerID]
	if !ok {
		return false, nil, ErrNotFound
	}

	p.Ready = !p.Ready
	r.lastActive = time.Now()

	return p.Ready, r.roster(), nil
}

// Start begins the game. Only the host may start, and only once every
// non-host player is ready (a solo host may always start). The requested
// level is clamped into the valid range before committing.
func (reg *Registry) Start(code, requesterID string, requestedLevel int) (int, []Player, error) {
	reg.mu.Lock()
	defer reg.mu.Unlock()

	r, ok := reg.rooms[code]
	if !ok {
		return 0, nil, ErrNotFound
	}
	if r.hostID != requesterID {
		return 0, nil, ErrNotHost
	}

	if len(r.players) > 1 {
		for _, p := range r.players {
			if !p.IsHost && !p.Ready {
				return 0, nil, ErrNotReady
			}
		}
	}

	level := requestedLevel
	if level < 1 {
		level = 1
	}
	if level > reg.totalLevels {
		level = reg.totalLevels
	}

	r.Started = true
	r.CurrentLevel = level
	r.lastActive = time.Now()

	return level, r.roster(), nil
}

// Lookup returns the username of a player in a room, for annotating
// relayed events.
func (reg *Registry) Lookup(code, playerID string) (string, bool) {
	reg.mu.RLock()
	defer reg.mu.RUnlock()

	r, ok := reg.rooms[code]
	if !ok {
		return "", false
	}
	p, ok := r.players[playerID]
	if !ok {
		return "", false
	}

	return p.Username, true
}

// Members returns the ids of every player in a room.
func (reg *Registry) Members(code string) []string {
	reg.mu.RLock()
	defer reg.mu.RUnlock()

	r, ok := reg.rooms[code]
	if !ok {
		return nil
	}

	ids := make([]string, 0, len(r.players))
	for id := range r.players {
		ids = append(ids, id)
	}

	return ids
}

// Roster returns the member list of a room.
func (reg *Registry) Roster(code string) ([]Player, bool) {
	reg.mu.RLock()
	defer reg.mu.RUnlock()

	r, ok := reg.rooms[code]
	if !ok {
		return nil, false
	}

	return r.roster(), true
}

// SetFullState stores the most recent full circuit snapshot for a room,
// kept opaque so the registry never depends on the circuit format.
func (reg *Registry) SetFullState(code string, state json.RawMessage) {
	reg.mu.Lock()
	defer reg.mu.Unlock()

	if r, ok := reg.rooms[code]; ok {
		r.lastFullState = state
		r.lastActive = time.Now()
	}
}

// FullState returns the stored snapshot for a room, if any.
func (reg *Registry) FullState(code string) (json.RawMessage, bool) {
	reg.mu.RLock()
	defer reg.mu.RUnlock()

	r, ok := reg.rooms[code]
	if !ok || r.lastFullState == nil {
		return nil, false
	}

	return r.lastFullState, true
}

// Summary describes one room for the lobby browser.
type Summary struct {
	Code        string
	PlayerCount int
	MaxPlayers  int
	Started     bool
}

// Summaries lists every active room.
func (reg *Registry) Summaries() []Summary {
	reg.mu.RLock()
	defer reg.mu.RUnlock()

	out := make([]Summary, 0, len(reg.rooms))
	for _, r := range reg.rooms {
		out = append(out, Summary{
			Code:        r.Code,
			PlayerCount: len(r.players),
			MaxPlayers:  reg.maxPlayers,
			Started:     r.Started,
		})
	}

	return out
}

// SweepIdle deletes rooms whose last activity predates the cutoff. The
// interval is operational only; emptied rooms are already deleted
// eagerly on the last leave.
func (reg *Registry) SweepIdle(cutoff time.Time) []string {
	reg.mu.Lock()
	defer reg.mu.Unlock()

	var reaped []string
	for code, r := range reg.rooms {
		if r.lastActive.Before(cutoff) {
			delete(reg.rooms, code)
			reaped = append(reaped, code)
		}
	}

	return reaped
}

// roster returns the member list ordered by join time.
func (r *Room) roster() []Player {
	out := make([]Player, 0, len(r.players))
	for _, p := range r.players {
		out = append(out, *p)
	}

	sort.Slice(out, func(i, j int) bool {
		return out[i].joinSeq < out[j].joinSeq
	})

	return out
}
