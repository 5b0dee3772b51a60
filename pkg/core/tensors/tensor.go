// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// Package tensors implement an immutable dense `Tensor` of float64 whose axes are tagged by
// dimension identifiers.
//
// Axes are aligned by identifier, not by position: combining two tensors matches the axes
// with the same identifier, and they must agree on the size of those axes. Values are
// stored row-major, with the axes ordered by ascending identifier.
//
// All operations return new tensors; a Tensor is never modified after creation, so it can be
// freely shared. Invalid operations (e.g. mismatched shapes) panic with an error wrapping
// ErrShapeMismatch, in the same way graph-building functions do. Use exceptions.TryCatch
// at API boundaries to convert them back to errors.
//
// Example:
//
//	x := tensors.Vector(0, 1, 2, 3)           // dims [0], sizes [3]
//	m := tensors.New([]int{0, 1}, []int{3, 2}, []float64{1, 0, 0, 1, 1, 1})
//	y := m.InnerProduct(x)                     // contracts dim 0: dims [1], sizes [2]
package tensors

import (
	"fmt"
	"math"
	"slices"
	"strings"

	"github.com/gomlx/cvsm/pkg/support/xslices"
	"github.com/pkg/errors"
)

// ErrShapeMismatch is wrapped by every error (or panic) caused by incompatible shapes.
var ErrShapeMismatch = errors.New("shape mismatch")

// panicShapef panics with an error wrapping ErrShapeMismatch.
func panicShapef(format string, args ...any) {
	panic(errors.Wrapf(ErrShapeMismatch, format, args...))
}

// Tensor is an immutable multidimensional array of float64, with axes tagged by dimension
// identifiers. See package documentation.
type Tensor struct {
	shape  Shape
	values []float64
}

// New creates a Tensor with the given dims (strictly ascending), sizes and flat values
// (row-major). The values are copied.
func New(dims, sizes []int, values []float64) *Tensor {
	return FromShape(Shape{Dims: dims, Sizes: sizes}, values)
}

// FromShape creates a Tensor with the given shape and flat values (row-major). The values are copied.
func FromShape(shape Shape, values []float64) *Tensor {
	if err := shape.validate(); err != nil {
		panic(errors.Wrap(ErrShapeMismatch, err.Error()))
	}
	if len(values) != shape.Size() {
		panicShapef("tensors.FromShape(%s): got %d values, wanted %d", shape, len(values), shape.Size())
	}
	return &Tensor{shape: shape.Clone(), values: slices.Clone(values)}
}

// Scalar returns a 0-dimensional tensor.
func Scalar(value float64) *Tensor {
	return &Tensor{values: []float64{value}}
}

// Vector returns a rank-1 tensor over dimension `dim`.
func Vector(dim int, values ...float64) *Tensor {
	return New([]int{dim}, []int{len(values)}, values)
}

// Constant returns a tensor of the given shape filled with `value`.
func Constant(shape Shape, value float64) *Tensor {
	if err := shape.validate(); err != nil {
		panic(errors.Wrap(ErrShapeMismatch, err.Error()))
	}
	return &Tensor{shape: shape.Clone(), values: xslices.SliceWithValue(shape.Size(), value)}
}

// Zeros returns a tensor of the given shape filled with 0.
func Zeros(shape Shape) *Tensor { return Constant(shape, 0) }

// ZerosLike returns a tensor filled with 0 with the same shape as t.
func ZerosLike(t *Tensor) *Tensor { return Zeros(t.shape) }

// OnesLike returns a tensor filled with 1 with the same shape as t.
func OnesLike(t *Tensor) *Tensor { return Constant(t.shape, 1) }

// Shape returns a copy of the tensor's shape.
func (t *Tensor) Shape() Shape { return t.shape.Clone() }

// Dims returns a copy of the dimension identifiers, in ascending order.
func (t *Tensor) Dims() []int { return slices.Clone(t.shape.Dims) }

// Sizes returns a copy of the axes sizes, in the order of Dims.
func (t *Tensor) Sizes() []int { return slices.Clone(t.shape.Sizes) }

// Rank returns the number of axes.
func (t *Tensor) Rank() int { return t.shape.Rank() }

// Size returns the number of elements.
func (t *Tensor) Size() int { return len(t.values) }

// IsScalar returns whether the tensor has no axes.
func (t *Tensor) IsScalar() bool { return t.shape.IsScalar() }

// Flat returns a copy of the values in row-major order.
func (t *Tensor) Flat() []float64 { return slices.Clone(t.values) }

// Value returns the value of a scalar tensor. It panics if the tensor is not a scalar.
func (t *Tensor) Value() float64 {
	AssertScalar(t)
	return t.values[0]
}

// Get returns the element at the given indices, one per axis in the order of Dims.
func (t *Tensor) Get(indices ...int) float64 {
	if len(indices) != t.Rank() {
		panicShapef("Tensor.Get(%v): tensor of shape %s needs %d indices", indices, t.shape, t.Rank())
	}
	flat := 0
	for axis, stride := range t.shape.strides() {
		if indices[axis] < 0 || indices[axis] >= t.shape.Sizes[axis] {
			panicShapef("Tensor.Get(%v): index out of bounds for shape %s", indices, t.shape)
		}
		flat += indices[axis] * stride
	}
	return t.values[flat]
}

// InDelta returns whether t and other have the same shape and all values are within delta.
func (t *Tensor) InDelta(other *Tensor, delta float64) bool {
	if !t.shape.Equal(other.shape) {
		return false
	}
	return xslices.MaxAbsDiff(t.values, other.values) <= delta
}

// HasNaN returns whether any of the values is NaN or infinite.
func (t *Tensor) HasNaN() bool {
	for _, v := range t.values {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return true
		}
	}
	return false
}

// String implements fmt.Stringer.
func (t *Tensor) String() string {
	if t.IsScalar() {
		return fmt.Sprintf("%g", t.values[0])
	}
	parts := xslices.Map(t.values, func(v float64) string { return fmt.Sprintf("%.4g", v) })
	return fmt.Sprintf("%s{%s}", t.shape, strings.Join(parts, ", "))
}

// stridesIn returns, for each axis of sub, the stride of the same dimension in parent,
// or 0 if parent doesn't have it.
func stridesIn(sub, parent Shape) []int {
	parentStrides := parent.strides()
	strides := make([]int, sub.Rank())
	for ii, dim := range sub.Dims {
		if pos, found := slices.BinarySearch(parent.Dims, dim); found {
			strides[ii] = parentStrides[pos]
		}
	}
	return strides
}

// offsets iterates row-major over the index space defined by sizes, and returns for each flat
// position the sum of `index[axis] * targetStrides[axis]`.
//
// With targetStrides taken from a larger (or permuted) shape, it maps each element of
// the smaller iteration space to its flat position in the target.
func offsets(sizes, targetStrides []int) []int {
	n := xslices.Prod(sizes)
	offs := make([]int, n)
	indices := make([]int, len(sizes))
	offset := 0
	for flat := range n {
		offs[flat] = offset
		for axis := len(sizes) - 1; axis >= 0; axis-- {
			indices[axis]++
			offset += targetStrides[axis]
			if indices[axis] < sizes[axis] {
				break
			}
			offset -= targetStrides[axis] * sizes[axis]
			indices[axis] = 0
		}
	}
	return offs
}
