/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

// Package circuit holds an in-memory combinational logic circuit and
// evaluates it on demand. A circuit is a set of gates plus directed
// connections between them; evaluation recomputes every gate value from
// scratch, so the structure can be mutated freely between calls.
package circuit

import (
	"fmt"
)

// Kind identifies a gate type. The string values are stable and shared
// with the wire protocol and saved circuits.
type Kind string

const (
	KindInput  Kind = "INPUT"
	KindOutput Kind = "OUTPUT"
	KindAnd    Kind = "AND"
	KindOr     Kind = "OR"
	KindNot    Kind = "NOT"
	KindXor    Kind = "XOR"
)

// Logic reports whether a gate kind counts as an interior logic gate,
// as opposed to an input toggle or output probe.
func (k Kind) Logic() bool {
	switch k {
	case KindAnd, KindOr, KindNot, KindXor:
		return true
	}
	return false
}

// Gate is a node in the circuit graph. Value is only externally
// meaningful for INPUT gates; every other kind derives its value
// during evaluation.
type Gate struct {
	ID    string
	Kind  Kind
	Value int
}

// Connection is a directed edge: the output of From feeds an input of To.
type Connection struct {
	ID   string
	From string
	To   string
}

// Circuit is the authoritative store for one circuit instance. It is not
// safe for concurrent use; callers own the synchronization, matching the
// single-threaded event model of the game.
type Circuit struct {
	gates       map[string]*Gate
	order       []string // gate insertion order, for stable iteration
	connections []Connection
	gateSeq     int
	connSeq     int
}

func New() *Circuit {
	return &Circuit{
		gates: make(map[string]*Gate),
	}
}

// AddGate places a gate of the given kind. An empty id requests a fresh
// generated one; a supplied id (from a remote peer or a loaded snapshot)
// is used as-is so replicated stores share gate identities. Re-adding an
// existing id is a no-op returning that id.
func (c *Circuit) AddGate(kind Kind, id string) string {
	if id == "" {
		id = fmt.Sprintf("gate_%d", c.gateSeq)
		c.gateSeq++
	}

	if _, ok := c.gates[id]; ok {
		return id
	}

	c.gates[id] = &Gate{ID: id, Kind: kind}
	c.order = append(c.order, id)

	return id
}

// RemoveGate deletes a gate and every connection touching it. All gate
// removal must go through here; deleting a gate record any other way
// would leave dangling connections behind.
func (c *Circuit) RemoveGate(id string) {
	if _, ok := c.gates[id]; !ok {
		return
	}

	delete(c.gates, id)

	order := c.order[:0]
	for _, gid := range c.order {
		if gid != id {
			order = append(order, gid)
		}
	}
	c.order = order

	dst := c.connections[:0]
	for _, conn := range c.connections {
		if conn.From == id || conn.To == id {
			continue
		}
		dst = append(dst, conn)
	}
	c.connections = dst
}

// SetValue stores a value on a gate. Only INPUT gates feed it back into
// evaluation; setting any other kind is harmless and ignored there.
func (c *Circuit) SetValue(id string, value int) {
	if gate, ok := c.gates[id]; ok {
		gate.Value = value
	}
}

// AddConnection wires the output of from into an input of to. An empty
// id requests a generated one. Connections are kept in insertion order,
// which is the order evaluation feeds them to the destination gate.
func (c *Circuit) AddConnection(from, to, id string) string {
	if id == "" {
		id = fmt.Sprintf("conn_%d", c.connSeq)
		c.connSeq++
	}

	c.connections = append(c.connections, Connection{ID: id, From: from, To: to})

	return id
}

// RemoveConnection removes every connection matching the exact ordered
// pair, cleaning up accidental double-wiring in one call.
func (c *Circuit) RemoveConnection(from, to string) {
	dst := c.connections[:0]
	for _, conn := range c.connections {
		if conn.From == from && conn.To == to {
			continue
		}
		dst = append(dst, conn)
	}
	c.connections = dst
}

// RemoveConnectionID removes the single connection with the given id.
func (c *Circuit) RemoveConnectionID(id string) {
	dst := c.connections[:0]
	for _, conn := range c.connections {
		if conn.ID == id {
			continue
		}
		dst = append(dst, conn)
	}
	c.connections = dst
}

// Gate returns the gate with the given id, or nil.
func (c *Circuit) Gate(id string) *Gate {
	return c.gates[id]
}

// Gates returns every gate in insertion order.
func (c *Circuit) Gates() []*Gate {
	gates := make([]*Gate, 0, len(c.order))
	for _, id := range c.order {
		gates = append(gates, c.gates[id])
	}
	return gates
}

// Connections returns a copy of the connection list in insertion order.
func (c *Circuit) Connections() []Connection {
	return append([]Connection(nil), c.connections...)
}

// Reset clears everything, including the id counters.
func (c *Circuit) Reset() {
	c.gates = make(map[string]*Gate)
	c.order = nil
	c.connections = nil
	c.gateSeq = 0
	c.connSeq = 0
}
