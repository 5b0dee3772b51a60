// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package tensors

import "slices"

// Identity returns a tensor of the given shape with 1 where all indices are equal and 0 elsewhere.
// For a square matrix it is the identity matrix; in general the diagonal has the length of the
// smallest axis. The identity of the scalar shape is the scalar 1.
func Identity(shape Shape) *Tensor {
	if shape.IsScalar() {
		return Scalar(1)
	}
	values := make([]float64, shape.Size())
	var step int
	for _, stride := range shape.strides() {
		step += stride
	}
	for ii := range slices.Min(shape.Sizes) {
		values[ii*step] = 1
	}
	return &Tensor{shape: shape.Clone(), values: values}
}

// Diagonal embeds a rank-1 tensor into a square tensor over dims rowDim and colDim, with the
// vector on the diagonal and 0 everywhere else.
func (t *Tensor) Diagonal(rowDim, colDim int) *Tensor {
	if t.Rank() != 1 {
		panicShapef("Tensor.Diagonal: requires a rank-1 tensor, got shape %s", t.shape)
	}
	if rowDim == colDim {
		panicShapef("Tensor.Diagonal: row and column dims must be different, got %d for both", rowDim)
	}
	n := t.shape.Sizes[0]
	shape := MakeShape([]int{min(rowDim, colDim), max(rowDim, colDim)}, []int{n, n})
	values := make([]float64, n*n)
	for ii, v := range t.values {
		values[ii*(n+1)] = v
	}
	return &Tensor{shape: shape, values: values}
}

// ExtractDiagonal is the reverse of Diagonal: t must have exactly the dims rowDim and colDim,
// with equal sizes, and it returns the diagonal as a rank-1 tensor over outDim.
// Off-diagonal values are ignored.
func (t *Tensor) ExtractDiagonal(rowDim, colDim, outDim int) *Tensor {
	if rowDim == colDim || t.Rank() != 2 || t.shape.SizeOf(rowDim) == 0 || t.shape.SizeOf(colDim) == 0 {
		panicShapef("Tensor.ExtractDiagonal(%d, %d): invalid for shape %s", rowDim, colDim, t.shape)
	}
	n := t.shape.Sizes[0]
	if t.shape.Sizes[1] != n {
		panicShapef("Tensor.ExtractDiagonal: tensor of shape %s is not square", t.shape)
	}
	values := make([]float64, n)
	for ii := range values {
		values[ii] = t.values[ii*(n+1)]
	}
	return Vector(outDim, values...)
}
