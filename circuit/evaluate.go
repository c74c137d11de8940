/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package circuit

import (
	"log"
)

// Result is the outcome of one evaluation pass. Values holds a value for
// every gate; Outputs is the subset for OUTPUT gates, which is what a
// level check consumes.
type Result struct {
	Values  map[string]int
	Outputs map[string]int
}

// EvaluateAll computes a value for every gate in the circuit. The memo is
// rebuilt on every call rather than maintained incrementally, which keeps
// correctness trivial under arbitrary graph edits between calls.
func (c *Circuit) EvaluateAll() Result {
	result := Result{
		Values:  make(map[string]int, len(c.order)),
		Outputs: make(map[string]int),
	}

	memo := make(map[string]int, len(c.order))

	for _, id := range c.order {
		value := c.evaluate(id, memo, nil)
		result.Values[id] = value

		if c.gates[id].Kind == KindOutput {
			result.Outputs[id] = value
		}
	}

	return result
}

// evaluate resolves one gate. The visiting set tracks the current
// recursion path only: each recursive edge gets its own copy, so a cycle
// trips along a single path without falsely firing on diamond fan-in
// reconvergence. A detected cycle settles at 0 and is deliberately not
// memoized, leaving any cycle-free path to the same gate able to compute
// a real value later in the pass.
func (c *Circuit) evaluate(id string, memo map[string]int, visiting map[string]bool) int {
	if value, ok := memo[id]; ok {
		return value
	}

	gate, ok := c.gates[id]
	if !ok {
		// Dangling reference; treat the missing source as low.
		return 0
	}

	if gate.Kind == KindInput {
		memo[id] = gate.Value
		return gate.Value
	}

	if visiting[id] {
		log.Printf("circuit: cycle detected at %s", id)
		return 0
	}

	branch := make(map[string]bool, len(visiting)+1)
	for gid := range visiting {
		branch[gid] = true
	}
	branch[id] = true

	var inputs []int
	for _, conn := range c.connections {
		if conn.To == id {
			inputs = append(inputs, c.evaluate(conn.From, memo, branch))
		}
	}

	value := combine(gate.Kind, inputs)
	memo[id] = value

	return value
}

func combine(kind Kind, inputs []int) int {
	switch kind {
	case KindAnd:
		if len(inputs) == 0 {
			return 0
		}
		for _, v := range inputs {
			if v != 1 {
				return 0
			}
		}
		return 1
	case KindOr:
		for _, v := range inputs {
			if v == 1 {
				return 1
			}
		}
		return 0
	case KindXor:
		acc := 0
		for _, v := range inputs {
			acc ^= v
		}
		return acc
	case KindNot:
		if len(inputs) == 0 {
			return 0
		}
		if inputs[0] == 1 {
			return 0
		}
		return 1
	case KindOutput:
		if len(inputs) == 0 {
			return 0
		}
		return inputs[0]
	default:
		return 0
	}
}
