// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package cvsm_test

import (
	"testing"

	. "github.com/gomlx/cvsm/pkg/core/cvsm"
	"github.com/gomlx/cvsm/pkg/core/tensors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReplaceSubtrees(t *testing.T) {
	w := Parameter("w", tensors.New([]int{0, 1}, []int{2, 2}, []float64{1, 0, 0, 1}))
	x := Parameter("x", tensors.Vector(1, 3, 4))
	root := Tanh(InnerProduct(w, x))

	// Replacing x by another vector over the same dim.
	product := root.Children()[0]
	y := Constant(tensors.Vector(1, 0, 0))
	replaced, err := product.ReplaceSubtrees([]*Node{w, y})
	require.NoError(t, err)
	assert.Equal(t, NodeTypeInnerProduct, replaced.Type())
	assert.Equal(t, []float64{0, 0}, replaced.Value().Flat())
	// The replaced node is untouched.
	assert.Equal(t, []float64{3, 4}, product.Value().Flat())

	newRoot, err := root.ReplaceSubtrees([]*Node{replaced})
	require.NoError(t, err)
	assert.Equal(t, NodeTypeTanh, newRoot.Type())
	assert.Equal(t, []float64{0, 0}, newRoot.Value().Flat())

	// Parameters of the node are kept.
	relabeled := RelabelDims(x, map[int]int{1: 5})
	newRelabeled, err := relabeled.ReplaceSubtrees([]*Node{y})
	require.NoError(t, err)
	assert.Equal(t, []int{5}, newRelabeled.Value().Dims())
	loss := SquareLoss(tensors.Vector(1, 1, 1), x)
	newLoss, err := loss.ReplaceSubtrees([]*Node{y})
	require.NoError(t, err)
	assert.Equal(t, 2.0, newLoss.LocalLoss())

	// Leaves return a copy.
	leaf, err := w.ReplaceSubtrees(nil)
	require.NoError(t, err)
	assert.NotSame(t, w, leaf)
	assert.Equal(t, "w", leaf.Name())
	assert.True(t, leaf.Value().InDelta(w.Value(), 0))

	// Errors.
	_, err = product.ReplaceSubtrees([]*Node{w})
	require.ErrorIs(t, err, ErrShapeMismatch)
	_, err = product.ReplaceSubtrees([]*Node{w, Constant(tensors.Vector(0, 1, 2))})
	require.ErrorIs(t, err, ErrShapeMismatch)
	_, err = product.ReplaceSubtrees([]*Node{w, Constant(tensors.Vector(1, 1, 2, 3))})
	require.ErrorIs(t, err, ErrShapeMismatch)
	_, err = product.ReplaceSubtrees([]*Node{w, nil})
	require.Error(t, err)
	_, err = leaf.ReplaceSubtrees([]*Node{x})
	require.ErrorIs(t, err, ErrShapeMismatch)
}

func TestNodeIntrospection(t *testing.T) {
	w := Parameter("w", tensors.Vector(0, 1, 2))
	b := Parameter("b", tensors.Vector(0, 1, 2))
	root := Add(Mul(w, w), Exp(b))
	assert.Equal(t, []string{"b", "w"}, root.ParameterNames())
	assert.Len(t, root.Children(), 2)
	assert.Empty(t, w.Children())
	assert.Equal(t, `Add(Mul("w", "w"), Exp("b"))`, root.String())
	assert.Equal(t, "", root.Name())
	assert.False(t, root.Type().IsLoss())
	assert.True(t, NodeTypeKLLoss.IsLoss())
	assert.Equal(t, "NodeType(1000)", NodeType(1000).String())

	// Children returns a copy.
	children := root.Children()
	children[0] = nil
	assert.NotNil(t, root.Children()[0])

	_, err := NodeTypeFromString("nope")
	require.Error(t, err)

	var count int
	Walk(root, func(*Node) { count++ })
	assert.Equal(t, 6, count)
}
