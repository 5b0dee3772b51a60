// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package tensors

import (
	"fmt"
	"slices"
	"strings"

	"github.com/gomlx/cvsm/pkg/support/sets"
	"github.com/gomlx/cvsm/pkg/support/xslices"
	"github.com/pkg/errors"
)

// Shape is the "dimension signature" of a Tensor: the identifiers of its axes and their sizes.
//
// Dims is kept strictly ascending, and Sizes[ii] is the size of the axis Dims[ii].
// A Shape with no dims is a scalar.
type Shape struct {
	Dims  []int
	Sizes []int
}

// MakeShape returns a Shape with the given dims and sizes. Dims must be strictly ascending and sizes
// must be positive, otherwise it panics.
func MakeShape(dims, sizes []int) Shape {
	s := Shape{Dims: slices.Clone(dims), Sizes: slices.Clone(sizes)}
	if err := s.validate(); err != nil {
		panic(errors.WithMessage(err, "tensors.MakeShape"))
	}
	return s
}

// ScalarShape is the shape with no dimensions.
func ScalarShape() Shape { return Shape{} }

func (s Shape) validate() error {
	if len(s.Dims) != len(s.Sizes) {
		return errors.Errorf("shape has %d dims but %d sizes", len(s.Dims), len(s.Sizes))
	}
	for ii, size := range s.Sizes {
		if size <= 0 {
			return errors.Errorf("dim %d has invalid size %d", s.Dims[ii], size)
		}
		if ii > 0 && s.Dims[ii] <= s.Dims[ii-1] {
			return errors.Errorf("dims %v must be strictly ascending", s.Dims)
		}
	}
	return nil
}

// Rank returns the number of axes.
func (s Shape) Rank() int { return len(s.Dims) }

// IsScalar returns whether the shape has no axes.
func (s Shape) IsScalar() bool { return len(s.Dims) == 0 }

// Size returns the number of elements, the product of all sizes.
func (s Shape) Size() int { return xslices.Prod(s.Sizes) }

// Shape returns itself, it implements HasShape.
func (s Shape) Shape() Shape { return s }

// DimSet returns the dimension identifiers as a set.
func (s Shape) DimSet() sets.Set[int] { return sets.MakeWith(s.Dims...) }

// SizeOf returns the size of the axis with identifier dim, or 0 if the shape doesn't have it.
func (s Shape) SizeOf(dim int) int {
	if pos, found := slices.BinarySearch(s.Dims, dim); found {
		return s.Sizes[pos]
	}
	return 0
}

// Equal returns whether both shapes have the same dims with the same sizes.
func (s Shape) Equal(s2 Shape) bool {
	return slices.Equal(s.Dims, s2.Dims) && slices.Equal(s.Sizes, s2.Sizes)
}

// Clone returns a deep copy of the shape.
func (s Shape) Clone() Shape {
	return Shape{Dims: slices.Clone(s.Dims), Sizes: slices.Clone(s.Sizes)}
}

// String implements fmt.Stringer, e.g. "[0:3 1:2]".
func (s Shape) String() string {
	if s.IsScalar() {
		return "[]"
	}
	parts := make([]string, len(s.Dims))
	for ii, dim := range s.Dims {
		parts[ii] = fmt.Sprintf("%d:%d", dim, s.Sizes[ii])
	}
	return "[" + strings.Join(parts, " ") + "]"
}

// strides returns the row-major strides of each axis.
func (s Shape) strides() []int {
	strides := make([]int, len(s.Sizes))
	stride := 1
	for ii := len(s.Sizes) - 1; ii >= 0; ii-- {
		strides[ii] = stride
		stride *= s.Sizes[ii]
	}
	return strides
}

// Sub returns the shape restricted to the dims not in `dims`.
func (s Shape) Sub(dims sets.Set[int]) Shape {
	var sub Shape
	for ii, dim := range s.Dims {
		if !dims.Has(dim) {
			sub.Dims = append(sub.Dims, dim)
			sub.Sizes = append(sub.Sizes, s.Sizes[ii])
		}
	}
	return sub
}

// Restrict returns the shape restricted to the dims in `dims`.
func (s Shape) Restrict(dims sets.Set[int]) Shape {
	var restricted Shape
	for ii, dim := range s.Dims {
		if dims.Has(dim) {
			restricted.Dims = append(restricted.Dims, dim)
			restricted.Sizes = append(restricted.Sizes, s.Sizes[ii])
		}
	}
	return restricted
}

// Union returns the shape with the dims of both shapes. It returns an error if a shared dim
// has different sizes.
func (s Shape) Union(s2 Shape) (Shape, error) {
	if err := s.CheckAligned(s2); err != nil {
		return Shape{}, err
	}
	var union Shape
	for _, dim := range sets.Sorted(s.DimSet().Union(s2.DimSet())) {
		size := s.SizeOf(dim)
		if size == 0 {
			size = s2.SizeOf(dim)
		}
		union.Dims = append(union.Dims, dim)
		union.Sizes = append(union.Sizes, size)
	}
	return union, nil
}

// HasShape is an interface for objects that have an associated Shape.
type HasShape interface {
	Shape() Shape
}

// CheckAligned returns an error wrapping ErrShapeMismatch if s and s2 disagree on the size of any
// shared dimension.
func (s Shape) CheckAligned(s2 Shape) error {
	for ii, dim := range s.Dims {
		if size2 := s2.SizeOf(dim); size2 != 0 && size2 != s.Sizes[ii] {
			return errors.Wrapf(ErrShapeMismatch, "shapes %s and %s disagree on the size of dim %d", s, s2, dim)
		}
	}
	return nil
}

// CheckEqual returns an error wrapping ErrShapeMismatch if the shapes are not Equal.
func (s Shape) CheckEqual(s2 Shape) error {
	if !s.Equal(s2) {
		return errors.Wrapf(ErrShapeMismatch, "shape %s doesn't match %s", s, s2)
	}
	return nil
}

// CheckRank returns an error wrapping ErrShapeMismatch if the shape doesn't have the given rank.
func (s Shape) CheckRank(rank int) error {
	if s.Rank() != rank {
		return errors.Wrapf(ErrShapeMismatch, "shape %s has incompatible rank %d -- wanted %d", s, s.Rank(), rank)
	}
	return nil
}

// AssertRank checks that the shape has the given rank.
//
// It panics if it doesn't match.
func AssertRank(shaped HasShape, rank int) {
	if err := shaped.Shape().CheckRank(rank); err != nil {
		panic(errors.WithMessagef(err, "AssertRank(%d)", rank))
	}
}

// AssertScalar checks that the shape is a scalar.
//
// It panics if it doesn't match.
func AssertScalar(shaped HasShape) {
	AssertRank(shaped, 0)
}
