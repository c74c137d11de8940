/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package circuit

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEvaluateEmptyCircuit(t *testing.T) {
	result := New().EvaluateAll()

	assert.Empty(t, result.Values)
	assert.Empty(t, result.Outputs)
}

// twoInputFixture wires a, b into one gate of the given kind, feeding a
// single OUTPUT.
func twoInputFixture(kind Kind) (c *Circuit, a, b, out string) {
	c = New()
	a = c.AddGate(KindInput, "a")
	b = c.AddGate(KindInput, "b")
	g := c.AddGate(kind, "g")
	out = c.AddGate(KindOutput, "out")
	c.AddConnection(a, g, "")
	c.AddConnection(b, g, "")
	c.AddConnection(g, out, "")
	return c, a, b, out
}

func TestTruthTables(t *testing.T) {
	cases := []struct {
		kind Kind
		want [4]int // rows (0,0) (0,1) (1,0) (1,1)
	}{
		{KindAnd, [4]int{0, 0, 0, 1}},
		{KindOr, [4]int{0, 1, 1, 1}},
		{KindXor, [4]int{0, 1, 1, 0}},
	}

	for _, tc := range cases {
		t.Run(string(tc.kind), func(t *testing.T) {
			c, a, b, out := twoInputFixture(tc.kind)

			for row := 0; row < 4; row++ {
				va, vb := row>>1, row&1
				c.SetValue(a, va)
				c.SetValue(b, vb)

				result := c.EvaluateAll()
				assert.Equal(t, tc.want[va*2+vb], result.Outputs[out],
					fmt.Sprintf("%s(%d,%d)", tc.kind, va, vb))
			}
		})
	}
}

func TestTruthTableNot(t *testing.T) {
	c := New()
	in := c.AddGate(KindInput, "")
	not := c.AddGate(KindNot, "")
	out := c.AddGate(KindOutput, "")
	c.AddConnection(in, not, "")
	c.AddConnection(not, out, "")

	for _, v := range []int{0, 1} {
		c.SetValue(in, v)
		result := c.EvaluateAll()
		assert.Equal(t, 1-v, result.Outputs[out], "NOT(%d)", v)
	}
}

func TestDefaultsToZero(t *testing.T) {
	c := New()

	// No inputs anywhere: everything settles low instead of failing.
	and := c.AddGate(KindAnd, "")
	not := c.AddGate(KindNot, "")
	out := c.AddGate(KindOutput, "")
	unknown := c.AddGate(Kind("NAND"), "")
	unset := c.AddGate(KindInput, "")

	result := c.EvaluateAll()

	assert.Equal(t, 0, result.Values[and])
	assert.Equal(t, 0, result.Values[not])
	assert.Equal(t, 0, result.Values[out])
	assert.Equal(t, 0, result.Values[unknown])
	assert.Equal(t, 0, result.Values[unset])
}

func TestDanglingConnectionEvaluatesSourceAsZero(t *testing.T) {
	c := New()

	or := c.AddGate(KindOr, "")
	c.AddConnection("ghost", or, "")

	result := c.EvaluateAll()
	assert.Equal(t, 0, result.Values[or])
}

func TestMutualCycleSettlesToZero(t *testing.T) {
	c := New()

	a := c.AddGate(KindAnd, "a")
	b := c.AddGate(KindAnd, "b")
	c.AddConnection(a, b, "")
	c.AddConnection(b, a, "")

	result := c.EvaluateAll()

	assert.Equal(t, 0, result.Values[a])
	assert.Equal(t, 0, result.Values[b])
}

func TestSelfLoopSettlesToZero(t *testing.T) {
	c := New()

	g := c.AddGate(KindOr, "g")
	c.AddConnection(g, g, "")

	result := c.EvaluateAll()
	assert.Equal(t, 0, result.Values[g])
}

func TestLongCycleCompletesInBoundedTime(t *testing.T) {
	c := New()

	const n = 200
	ids := make([]string, n)
	for i := range ids {
		ids[i] = c.AddGate(KindOr, fmt.Sprintf("n%d", i))
	}
	for i := range ids {
		c.AddConnection(ids[i], ids[(i+1)%n], "")
	}

	result := c.EvaluateAll()
	for _, id := range ids {
		assert.Equal(t, 0, result.Values[id])
	}
}

// A diamond (two paths from the same input reconverging) is not a cycle
// and must not be treated as one.
func TestDiamondReconvergence(t *testing.T) {
	c := New()

	in := c.AddGate(KindInput, "in")
	left := c.AddGate(KindNot, "left")
	right := c.AddGate(KindNot, "right")
	join := c.AddGate(KindAnd, "join")
	c.AddConnection(in, left, "")
	c.AddConnection(in, right, "")
	c.AddConnection(left, join, "")
	c.AddConnection(right, join, "")

	c.SetValue(in, 0)
	assert.Equal(t, 1, c.EvaluateAll().Values[join])

	c.SetValue(in, 1)
	assert.Equal(t, 0, c.EvaluateAll().Values[join])
}

func TestEvaluateAllIsIdempotent(t *testing.T) {
	c, a, b, _ := twoInputFixture(KindXor)
	c.SetValue(a, 1)
	c.SetValue(b, 0)

	first := c.EvaluateAll()
	second := c.EvaluateAll()

	assert.Equal(t, first.Values, second.Values)
	assert.Equal(t, first.Outputs, second.Outputs)
}

func TestFullAdder(t *testing.T) {
	c := New()

	a := c.AddGate(KindInput, "a")
	b := c.AddGate(KindInput, "b")
	cin := c.AddGate(KindInput, "cin")

	xor1 := c.AddGate(KindXor, "xor1")
	xor2 := c.AddGate(KindXor, "xor2")
	and1 := c.AddGate(KindAnd, "and1")
	and2 := c.AddGate(KindAnd, "and2")
	or1 := c.AddGate(KindOr, "or1")

	sum := c.AddGate(KindOutput, "sum")
	cout := c.AddGate(KindOutput, "cout")

	c.AddConnection(a, xor1, "")
	c.AddConnection(b, xor1, "")
	c.AddConnection(xor1, xor2, "")
	c.AddConnection(cin, xor2, "")
	c.AddConnection(a, and1, "")
	c.AddConnection(b, and1, "")
	c.AddConnection(xor1, and2, "")
	c.AddConnection(cin, and2, "")
	c.AddConnection(and1, or1, "")
	c.AddConnection(and2, or1, "")
	c.AddConnection(xor2, sum, "")
	c.AddConnection(or1, cout, "")

	c.SetValue(a, 1)
	c.SetValue(b, 1)
	c.SetValue(cin, 0)

	result := c.EvaluateAll()

	require.Len(t, result.Outputs, 2)
	assert.Equal(t, 0, result.Outputs[sum])
	assert.Equal(t, 1, result.Outputs[cout])

	// Exhaustive cross-check against arithmetic.
	for row := 0; row < 8; row++ {
		va, vb, vc := row>>2, (row>>1)&1, row&1
		c.SetValue(a, va)
		c.SetValue(b, vb)
		c.SetValue(cin, vc)

		total := va + vb + vc
		result := c.EvaluateAll()
		assert.Equal(t, total%2, result.Outputs[sum], "sum of %d,%d,%d", va, vb, vc)
		assert.Equal(t, total/2, result.Outputs[cout], "carry of %d,%d,%d", va, vb, vc)
	}
}
