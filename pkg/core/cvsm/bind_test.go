// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package cvsm_test

import (
	"testing"

	. "github.com/gomlx/cvsm/pkg/core/cvsm"
	"github.com/gomlx/cvsm/pkg/core/tensors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBind(t *testing.T) {
	w := Parameter("w", tensors.Vector(0, 0.5, 1))
	subtree := Add(w, w)
	// The evaluated tree uses "h" as a stand-in for the subtree value.
	h := Parameter("h", subtree.Value())
	u := Parameter("u", tensors.Vector(0, 1, 1))
	evaluated := SquareLoss(tensors.Vector(0, 0, 0), Add(h, u))
	bind := Bind(subtree, evaluated, "h")

	require.True(t, bind.IsBound())
	assert.Equal(t, "h", bind.Name())
	assert.Equal(t, NodeTypeBind, bind.Type())
	assert.True(t, bind.Value().InDelta(subtree.Value(), 0))
	children := bind.Children()
	require.Len(t, children, 2)
	assert.Same(t, subtree, children[0])
	assert.Same(t, evaluated, children[1])
	// The loss of the evaluated tree is included.
	assert.Equal(t, 4.0+9.0, Loss(bind))

	sink, err := Gradient(bind, tensors.Vector(0, 1, 1))
	require.NoError(t, err)
	// The bound name is consumed, other names are forwarded.
	assert.Equal(t, []string{"u", "w"}, sink.Names())
	assert.Equal(t, []float64{-2, -3}, sink.Get("u").Flat())
	// Seed plus harvested gradient, twice since w occurs twice.
	assert.Equal(t, []float64{2 * (1 - 2), 2 * (1 - 3)}, sink.Get("w").Flat())
}

func TestBindUnbound(t *testing.T) {
	w := Parameter("w", tensors.Vector(0, 1, 2))
	evaluated := SquareLoss(tensors.Vector(0, 0, 0), Parameter("u", tensors.Vector(0, 1, 1)))
	bind := Bind(w, evaluated, "missing")
	require.False(t, bind.IsBound())
	assert.False(t, w.IsBound())

	sink, err := Gradient(bind, tensors.Vector(0, 3, 4))
	require.NoError(t, err)
	// Subtree only receives the incoming gradient.
	assert.Equal(t, []float64{3, 4}, sink.Get("w").Flat())
	assert.Equal(t, []float64{-1, -1}, sink.Get("u").Flat())
	assert.False(t, sink.Has("missing"))
}

func TestBindShapeMismatch(t *testing.T) {
	w := Parameter("w", tensors.Vector(0, 1, 2))
	evaluated := Exp(Parameter("h", tensors.Vector(0, 1, 2, 3)))
	requireShapeMismatch(t, func() { Bind(w, evaluated, "h") })

	// ReplaceSubtrees keeps the name.
	bind := Bind(w, Exp(Parameter("h", w.Value())), "h")
	replaced, err := bind.ReplaceSubtrees([]*Node{Constant(tensors.Vector(0, 5, 6)), bind.Children()[1]})
	require.NoError(t, err)
	assert.Equal(t, "h", replaced.Name())
	assert.True(t, replaced.IsBound())
	assert.Equal(t, `Bind([0:2]{5, 6}, Exp("h"), "h")`, replaced.String())
}

func TestBindBoundWithZeroGradient(t *testing.T) {
	w := Parameter("w", tensors.Vector(0, 1, 2))
	h := Parameter("h", w.Value())
	// h occurs, but the evaluated tree has no loss, so it contributes a zero gradient.
	bound := Bind(w, Mul(h, Constant(tensors.ZerosLike(w.Value()))), "h")
	unbound := Bind(w, Mul(Parameter("g", w.Value()), Constant(tensors.ZerosLike(w.Value()))), "h")
	require.True(t, bound.IsBound())
	require.False(t, unbound.IsBound())

	seed := tensors.Vector(0, 3, 4)
	for _, bind := range []*Node{bound, unbound} {
		sink, err := Gradient(bind, seed)
		require.NoError(t, err)
		assert.Equal(t, []float64{3, 4}, sink.Get("w").Flat())
		// The bound name is never visible outside of the Bind.
		assert.False(t, sink.Has("h"))
	}
	sink, err := Gradient(unbound, seed)
	require.NoError(t, err)
	assert.Equal(t, []string{"g", "w"}, sink.Names())
	assert.Equal(t, []float64{0, 0}, sink.Get("g").Flat())
}
