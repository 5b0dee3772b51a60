// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package tensors

import (
	"github.com/gomlx/cvsm/pkg/support/sets"
	"github.com/gomlx/cvsm/pkg/support/xslices"
	"github.com/pkg/errors"
)

// CheckRelabeling returns an error if mapping is not a bijection from exactly the dims of shape
// to a set of new dimension identifiers.
func CheckRelabeling(shape Shape, mapping map[int]int) error {
	if len(mapping) != shape.Rank() {
		return errors.Wrapf(ErrShapeMismatch, "relabeling %v has %d entries, shape %s has %d dims",
			mapping, len(mapping), shape, shape.Rank())
	}
	targets := sets.Make[int](len(mapping))
	for _, dim := range shape.Dims {
		target, found := mapping[dim]
		if !found {
			return errors.Wrapf(ErrShapeMismatch, "relabeling %v doesn't map dim %d of shape %s", mapping, dim, shape)
		}
		if targets.Has(target) {
			return errors.Wrapf(ErrShapeMismatch, "relabeling %v maps two dims to %d", mapping, target)
		}
		targets.Insert(target)
	}
	return nil
}

// InvertRelabeling returns the inverse of mapping. It returns an error if mapping is not injective.
func InvertRelabeling(mapping map[int]int) (map[int]int, error) {
	inverse := make(map[int]int, len(mapping))
	for _, from := range xslices.SortedKeys(mapping) {
		to := mapping[from]
		if prev, found := inverse[to]; found {
			return nil, errors.Wrapf(ErrShapeMismatch, "relabeling %v is not injective: %d and %d both map to %d",
				mapping, prev, from, to)
		}
		inverse[to] = from
	}
	return inverse, nil
}

// Relabel renames the dimensions of t according to mapping (old dim -> new dim). The mapping must
// cover exactly the dims of t and be injective.
//
// Since dims are kept in ascending order, the values are permuted accordingly.
func (t *Tensor) Relabel(mapping map[int]int) *Tensor {
	if err := CheckRelabeling(t.shape, mapping); err != nil {
		panic(errors.WithMessage(err, "Tensor.Relabel"))
	}
	sizeOf := make(map[int]int, t.Rank())
	for ii, dim := range t.shape.Dims {
		sizeOf[mapping[dim]] = t.shape.Sizes[ii]
	}
	var newShape Shape
	for _, newDim := range xslices.SortedKeys(sizeOf) {
		newShape.Dims = append(newShape.Dims, newDim)
		newShape.Sizes = append(newShape.Sizes, sizeOf[newDim])
	}

	// Stride, in the new layout, of each of the old axes.
	newStrides := stridesIn(Shape{Dims: xslices.Map(t.shape.Dims, func(dim int) int { return mapping[dim] })}, newShape)
	values := make([]float64, len(t.values))
	for ii, offset := range offsets(t.shape.Sizes, newStrides) {
		values[offset] = t.values[ii]
	}
	return &Tensor{shape: newShape, values: values}
}
