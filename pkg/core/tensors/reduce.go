// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package tensors

import (
	"github.com/gomlx/cvsm/pkg/support/sets"
	"gonum.org/v1/gonum/floats"
)

// reduceOut applies reduceFn over the given dims, for each combination of the remaining dims.
// Dims not present in t are ignored.
func (t *Tensor) reduceOut(dims []int, reduceFn func(values []float64) float64) *Tensor {
	reduced := t.shape.Restrict(sets.MakeWith(dims...))
	kept := t.shape.Sub(reduced.DimSet())
	keptOffsets := offsets(kept.Sizes, stridesIn(kept, t.shape))
	reducedOffsets := offsets(reduced.Sizes, stridesIn(reduced, t.shape))

	buf := make([]float64, len(reducedOffsets))
	values := make([]float64, len(keptOffsets))
	for ii, keptOffset := range keptOffsets {
		for jj, reducedOffset := range reducedOffsets {
			buf[jj] = t.values[keptOffset+reducedOffset]
		}
		values[ii] = reduceFn(buf)
	}
	return &Tensor{shape: kept, values: values}
}

// SumOut sums over the given dims.
func (t *Tensor) SumOut(dims ...int) *Tensor { return t.reduceOut(dims, floats.Sum) }

// MaxOut takes the maximum over the given dims.
func (t *Tensor) MaxOut(dims ...int) *Tensor { return t.reduceOut(dims, floats.Max) }

// LogSumOut computes log(sum(exp(x))) over the given dims, in a numerically stable way.
func (t *Tensor) LogSumOut(dims ...int) *Tensor { return t.reduceOut(dims, floats.LogSumExp) }

// Sum returns the sum of all elements.
func (t *Tensor) Sum() float64 { return floats.Sum(t.values) }

// Max returns the largest element.
func (t *Tensor) Max() float64 { return floats.Max(t.values) }

// LogSumExp returns log(sum(exp(x))) over all elements, in a numerically stable way.
func (t *Tensor) LogSumExp() float64 { return floats.LogSumExp(t.values) }

// ArgmaxFlat returns the flat (row-major) index of the largest element. Ties are broken by
// the lowest index.
func (t *Tensor) ArgmaxFlat() int { return floats.MaxIdx(t.values) }

// ArgmaxIndicator returns a tensor of the same shape with 1 at the position of the largest
// element and 0 elsewhere.
func (t *Tensor) ArgmaxIndicator() *Tensor {
	values := make([]float64, len(t.values))
	values[t.ArgmaxFlat()] = 1
	return &Tensor{shape: t.shape, values: values}
}
