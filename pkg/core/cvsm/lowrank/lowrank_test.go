// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package lowrank_test

import (
	"math/rand/v2"
	"testing"

	"github.com/gomlx/cvsm/pkg/core/cvsm"
	. "github.com/gomlx/cvsm/pkg/core/cvsm/lowrank"
	"github.com/gomlx/cvsm/pkg/core/tensors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func matrixFamily(t *testing.T, rank int) *Family {
	f, err := New("W", tensors.MakeShape([]int{0, 1}, []int{2, 3}), rank)
	require.NoError(t, err)
	return f
}

func TestNew(t *testing.T) {
	f := matrixFamily(t, 2)
	assert.Equal(t, "W", f.Name())
	assert.Equal(t, 2, f.Rank())
	assert.Equal(t, []int{2, 3}, f.Shape().Sizes)
	assert.Equal(t, []string{"W/0/0", "W/0/1", "W/1/0", "W/1/1", "W/diag"}, f.ParameterNames())
	shapes := f.ParameterShapes()
	assert.Equal(t, []int{1}, shapes["W/1/1"].Dims)
	assert.Equal(t, []int{3}, shapes["W/1/1"].Sizes)
	// The diagonal weights use a dim not in the tensor, sized by the smallest dim.
	assert.Equal(t, []int{2}, shapes["W/diag"].Dims)
	assert.Equal(t, []int{2}, shapes["W/diag"].Sizes)

	_, err := New("", tensors.MakeShape([]int{0}, []int{2}), 1)
	require.Error(t, err)
	_, err = New("W", tensors.MakeShape([]int{0}, []int{2}), -1)
	require.Error(t, err)
	_, err = New("W", tensors.ScalarShape(), 1)
	require.Error(t, err)
}

func TestDenseAndGradients(t *testing.T) {
	f := matrixFamily(t, 1)
	params := map[string]*tensors.Tensor{
		"W/0/0":  tensors.Vector(0, 1, 2),
		"W/0/1":  tensors.Vector(1, 3, 4, 5),
		"W/diag": tensors.Vector(2, 10, 20),
	}
	dense, err := f.Dense(params)
	require.NoError(t, err)
	assert.Equal(t, []int{0, 1}, dense.Dims())
	assert.Equal(t, []float64{3 + 10, 4, 5, 6, 8 + 20, 10}, dense.Flat())

	// Gradients go to the factors and the diagonal weights.
	seed := tensors.New([]int{0, 1}, []int{2, 3}, []float64{1, 1, 1, 1, 2, 1})
	sink, err := cvsm.Gradient(f.Build(params), seed)
	require.NoError(t, err)
	assert.Equal(t, []string{"W/0/0", "W/0/1", "W/diag"}, sink.Names())
	assert.Equal(t, []float64{3 + 4 + 5, 3 + 8 + 5}, sink.Get("W/0/0").Flat())
	assert.Equal(t, []float64{1 + 2, 1 + 4, 1 + 2}, sink.Get("W/0/1").Flat())
	assert.Equal(t, []float64{1, 2}, sink.Get("W/diag").Flat())

	delete(params, "W/0/1")
	_, err = f.Dense(params)
	require.Error(t, err)
	params["W/0/1"] = tensors.Vector(1, 3, 4)
	_, err = f.Dense(params)
	require.ErrorIs(t, err, tensors.ErrShapeMismatch)
}

func TestInitializeToIdentity(t *testing.T) {
	f := matrixFamily(t, 2)
	params, err := f.InitializeToIdentity(f.Zeros())
	require.NoError(t, err)
	dense, err := f.Dense(params)
	require.NoError(t, err)
	assert.True(t, dense.InDelta(tensors.Identity(f.Shape()), 0))

	// Identity of a 3-dim tensor, with a rank-0 family.
	cube, err := New("C", tensors.MakeShape([]int{0, 1, 2}, []int{2, 3, 2}), 0)
	require.NoError(t, err)
	assert.Equal(t, []string{"C/diag"}, cube.ParameterNames())
	params, err = cube.InitializeToIdentity(cube.Zeros())
	require.NoError(t, err)
	dense, err = cube.Dense(params)
	require.NoError(t, err)
	assert.True(t, dense.InDelta(tensors.Identity(cube.Shape()), 0))

	// Vectors have no identity.
	vector, err := New("v", tensors.MakeShape([]int{0}, []int{3}), 1)
	require.NoError(t, err)
	params, err = vector.InitializeToIdentity(vector.Zeros())
	require.NoError(t, err)
	assert.Equal(t, []float64{0, 0, 0}, params["v/diag"].Flat())

	_, err = f.InitializeToIdentity(map[string]*tensors.Tensor{})
	require.Error(t, err)
	_, err = f.InitializeToIdentity(map[string]*tensors.Tensor{"W/diag": tensors.Vector(2, 1, 2, 3)})
	require.ErrorIs(t, err, tensors.ErrShapeMismatch)
}

func TestRandom(t *testing.T) {
	f := matrixFamily(t, 3)
	params := f.Random(rand.New(rand.NewPCG(1, 2)), 0.1)
	again := f.Random(rand.New(rand.NewPCG(1, 2)), 0.1)
	shapes := f.ParameterShapes()
	require.Len(t, params, len(shapes))
	for name, shape := range shapes {
		require.NoError(t, params[name].Shape().CheckEqual(shape))
		assert.True(t, params[name].InDelta(again[name], 0))
	}
	assert.Equal(t, []float64{0, 0}, params["W/diag"].Flat())
	assert.Greater(t, params["W/2/1"].Abs().Sum(), 0.0)

	// Starting from random factors, every factor gets a gradient.
	sink, err := cvsm.Gradient(cvsm.SquareLoss(tensors.Identity(f.Shape()), f.Build(params)), nil)
	require.NoError(t, err)
	assert.Equal(t, len(shapes), sink.Len())
}
