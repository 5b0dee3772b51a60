// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package cvsm_test

import (
	"math"
	"testing"

	. "github.com/gomlx/cvsm/pkg/core/cvsm"
	"github.com/gomlx/cvsm/pkg/core/tensors"
	"github.com/gomlx/exceptions"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// requireShapeMismatch checks that fn panics with an error wrapping ErrShapeMismatch.
func requireShapeMismatch(t *testing.T, fn func()) {
	t.Helper()
	err := exceptions.TryCatch[error](fn)
	require.ErrorIs(t, err, ErrShapeMismatch)
}

func TestSquareLoss(t *testing.T) {
	x := Parameter("x", tensors.Vector(0, 1, 2))
	root := SquareLoss(tensors.Vector(0, 0, 4), x)
	// Loss nodes have the value of their child.
	assert.True(t, root.Value().InDelta(x.Value(), 0))
	assert.Equal(t, 1.0+4.0, root.LocalLoss())
	assert.Equal(t, 5.0, Loss(root))
	assert.Equal(t, -2.5, Objective(root))

	sink, err := Gradient(root, nil)
	require.NoError(t, err)
	assert.Equal(t, []float64{-1, 2}, sink.Get("x").Flat())

	// Scalar values accept a target with one element.
	s := SquareLoss(tensors.Vector(3, 2), Parameter("s", tensors.Scalar(5)))
	assert.Equal(t, 9.0, s.LocalLoss())
	sink, err = Gradient(s, nil)
	require.NoError(t, err)
	assert.Equal(t, -3.0, sink.Get("s").Value())
	requireShapeMismatch(t, func() { SquareLoss(tensors.Vector(3, 2, 1), Parameter("s", tensors.Scalar(5))) })
	requireShapeMismatch(t, func() { SquareLoss(tensors.Vector(1, 0, 4), x) })
	requireShapeMismatch(t, func() { SquareLoss(tensors.Vector(0, 0, 4, 1), x) })

	// The loss is exact, not the square of a rounded distance.
	exact := SquareLoss(tensors.Vector(0, 0, 4), Constant(tensors.Vector(0, 1, 2)))
	assert.Equal(t, 5.0, exact.LocalLoss())
}

func TestKLLosses(t *testing.T) {
	q := Parameter("q", tensors.Vector(0, 0.5, 0.25, 0.25))
	target := tensors.Vector(0, 0.5, 0.5, 0)
	kl := KLLoss(target, q)
	assert.InDelta(t, 0.5*math.Log(2), kl.LocalLoss(), 1e-12)
	sink, err := Gradient(kl, nil)
	require.NoError(t, err)
	// Zero targets contribute no gradient.
	assert.InDeltaSlice(t, []float64{1, 2, 0}, sink.Get("q").Flat(), 1e-12)

	p := Parameter("p", tensors.Vector(0, 0.5, 0.8))
	bernoulli := KLElementwiseLoss(tensors.Vector(0, 1, 0.8), p)
	assert.InDelta(t, math.Log(2), bernoulli.LocalLoss(), 1e-12)
	sink, err = Gradient(bernoulli, nil)
	require.NoError(t, err)
	assert.InDeltaSlice(t, []float64{2, 0.8/0.8 - 0.2/0.2}, sink.Get("p").Flat(), 1e-12)
}

func TestHingeElementwiseLoss(t *testing.T) {
	x := Parameter("x", tensors.Vector(0, 0.5, 1, 2, -0.5))
	root := HingeElementwiseLoss(tensors.Vector(0, 1, 1, 1, 1), x)
	assert.InDelta(t, 0.5+0+0+1.5, root.LocalLoss(), 1e-12)
	sink, err := Gradient(root, nil)
	require.NoError(t, err)
	// The margin boundary (label*value == 1) gets 0.
	assert.Equal(t, []float64{1, 0, 0, 1}, sink.Get("x").Flat())

	negative := HingeElementwiseLoss(tensors.Vector(0, 0), Parameter("y", tensors.Vector(0, 0.5)))
	assert.Equal(t, 1.5, negative.LocalLoss())
	sink, err = Gradient(negative, nil)
	require.NoError(t, err)
	assert.Equal(t, []float64{-1}, sink.Get("y").Flat())

	require.Panics(t, func() { HingeElementwiseLoss(tensors.Vector(0, 0.5, 1, 1, 1), x) })
}

func TestZeroOneLoss(t *testing.T) {
	x := Parameter("x", tensors.Vector(0, 0.1, 0.7, 0.2))
	correct := ZeroOneLoss(tensors.Vector(0, 0, 1, 0), x)
	assert.Equal(t, 0.0, correct.LocalLoss())
	wrong := ZeroOneLoss(tensors.Vector(0, 1, 0, 0), x)
	assert.Equal(t, 1.0, wrong.LocalLoss())
	// It doesn't contribute to the objective.
	assert.Equal(t, 0.0, Objective(wrong))

	// Soft targets: the target weight at the argmax is subtracted, ties go to the lowest index.
	soft := ZeroOneLoss(tensors.Vector(0, 0.5, 0.25, 0.25), x)
	assert.Equal(t, 0.75, soft.LocalLoss())
	tied := ZeroOneLoss(tensors.Vector(0, 0.5, 0.5, 0), Constant(tensors.Vector(0, 1, 1, 0)))
	assert.Equal(t, 0.5, tied.LocalLoss())
	requireShapeMismatch(t, func() { ZeroOneLoss(tensors.Vector(0, 1, 0), x) })

	for _, seed := range []*tensors.Tensor{tensors.ZerosLike(x.Value()), tensors.Vector(0, 1, 2, 3), tensors.Scalar(1)} {
		err := wrong.Backpropagate(seed, NewGradientSink())
		require.ErrorIs(t, err, ErrNotDifferentiable)
	}

	// Also when nested deeper in the tree.
	_, err := Gradient(Add(correct, x), nil)
	require.ErrorIs(t, err, ErrNotDifferentiable)
}

func TestValueLoss(t *testing.T) {
	x := Parameter("x", tensors.Vector(0, 1, 2))
	root := ValueLoss(InnerProduct(x, x))
	assert.Equal(t, 5.0, root.LocalLoss())
	assert.Equal(t, -5.0, Objective(root))
	sink, err := Gradient(root, nil)
	require.NoError(t, err)
	// Injects -1 into the inner product.
	assert.Equal(t, []float64{-2, -4}, sink.Get("x").Flat())
	requireShapeMismatch(t, func() { ValueLoss(x) })
}

func TestLossSumsOverTree(t *testing.T) {
	x := Parameter("x", tensors.Vector(0, 1, 2))
	a := SquareLoss(tensors.Vector(0, 0, 0), x)
	b := KLElementwiseLoss(tensors.Vector(0, 0.5, 0.5), Logistic(Constant(tensors.Vector(0, 0, 0))))
	root := Add(a, b)
	assert.InDelta(t, 5.0, Loss(root), 1e-12)
	assert.InDelta(t, -2.5, Objective(root), 1e-12)
	assert.Equal(t, 0.0, root.LocalLoss())
}
