// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package tensors

import (
	"gonum.org/v1/gonum/mat"
)

// InnerProduct contracts all the dimensions of other against the matching dimensions of t.
//
// The dims of other must be a subset of the dims of t, with the same sizes. The result has
// the dims of t that are not in other. If other is a scalar, this is a scalar product.
func (t *Tensor) InnerProduct(other *Tensor) *Tensor {
	if !other.shape.DimSet().IsSubsetOf(t.shape.DimSet()) {
		panicShapef("Tensor.InnerProduct: dims of %s must be a subset of the dims of %s", other.shape, t.shape)
	}
	if err := t.shape.CheckAligned(other.shape); err != nil {
		panicShapef("Tensor.InnerProduct: %v", err)
	}
	kept := t.shape.Sub(other.shape.DimSet())
	keptOffsets := offsets(kept.Sizes, stridesIn(kept, t.shape))
	contractedOffsets := offsets(other.shape.Sizes, stridesIn(other.shape, t.shape))

	// Gather t as a [kept, contracted] matrix, so the contraction is a matrix-vector product.
	rows, cols := len(keptOffsets), len(contractedOffsets)
	data := make([]float64, 0, rows*cols)
	for _, rowOffset := range keptOffsets {
		for _, colOffset := range contractedOffsets {
			data = append(data, t.values[rowOffset+colOffset])
		}
	}
	var result mat.VecDense
	result.MulVec(mat.NewDense(rows, cols, data), mat.NewVecDense(cols, other.Flat()))
	return &Tensor{shape: kept, values: mat.Col(nil, 0, &result)}
}

// OuterProduct returns the product of every pair of elements of t and other.
//
// The dims of t and other must be disjoint, and the result has the union of their dims.
func (t *Tensor) OuterProduct(other *Tensor) *Tensor {
	if shared := t.shape.DimSet().Intersect(other.shape.DimSet()); len(shared) > 0 {
		panicShapef("Tensor.OuterProduct: %s and %s share dims", t.shape, other.shape)
	}
	union, err := t.shape.Union(other.shape)
	if err != nil {
		panicShapef("Tensor.OuterProduct: %v", err)
	}
	tOffsets := offsets(t.shape.Sizes, stridesIn(t.shape, union))
	otherOffsets := offsets(other.shape.Sizes, stridesIn(other.shape, union))

	var outer mat.Dense
	outer.Outer(1, mat.NewVecDense(len(t.values), t.Flat()), mat.NewVecDense(len(other.values), other.Flat()))
	values := make([]float64, union.Size())
	for ii, tOffset := range tOffsets {
		for jj, otherOffset := range otherOffsets {
			values[tOffset+otherOffset] = outer.At(ii, jj)
		}
	}
	return &Tensor{shape: union, values: values}
}
