// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package tensors

import (
	"math"

	"gonum.org/v1/gonum/floats"
)

// Map returns a new tensor with fn applied to every element.
func (t *Tensor) Map(fn func(x float64) float64) *Tensor {
	values := make([]float64, len(t.values))
	for ii, v := range t.values {
		values[ii] = fn(v)
	}
	return &Tensor{shape: t.shape, values: values}
}

// Exp returns the elementwise exponential.
func (t *Tensor) Exp() *Tensor { return t.Map(math.Exp) }

// Log returns the elementwise natural logarithm.
func (t *Tensor) Log() *Tensor { return t.Map(math.Log) }

// Tanh returns the elementwise hyperbolic tangent.
func (t *Tensor) Tanh() *Tensor { return t.Map(math.Tanh) }

// Abs returns the elementwise absolute value.
func (t *Tensor) Abs() *Tensor { return t.Map(math.Abs) }

// Sqrt returns the elementwise square root.
func (t *Tensor) Sqrt() *Tensor { return t.Map(math.Sqrt) }

// Inverse returns the elementwise 1/x.
func (t *Tensor) Inverse() *Tensor { return t.Map(func(x float64) float64 { return 1 / x }) }

// Neg returns the elementwise -x.
func (t *Tensor) Neg() *Tensor { return t.Scale(-1) }

// Scale returns the tensor multiplied by the constant c.
func (t *Tensor) Scale(c float64) *Tensor {
	return &Tensor{shape: t.shape, values: floats.ScaleTo(make([]float64, len(t.values)), c, t.values)}
}

// AddScalar returns the tensor with the constant c added to every element.
func (t *Tensor) AddScalar(c float64) *Tensor {
	values := t.Flat()
	floats.AddConst(c, values)
	return &Tensor{shape: t.shape, values: values}
}

// binaryOp checks that both operands have the same shape, and applies opFn to a new
// destination slice.
func (t *Tensor) binaryOp(name string, other *Tensor, opFn func(dst, s, t []float64) []float64) *Tensor {
	if !t.shape.Equal(other.shape) {
		panicShapef("Tensor.%s: operands have different shapes %s and %s", name, t.shape, other.shape)
	}
	return &Tensor{shape: t.shape, values: opFn(make([]float64, len(t.values)), t.values, other.values)}
}

// Add returns the elementwise t + other. Both must have the same shape.
func (t *Tensor) Add(other *Tensor) *Tensor { return t.binaryOp("Add", other, floats.AddTo) }

// Sub returns the elementwise t - other. Both must have the same shape.
func (t *Tensor) Sub(other *Tensor) *Tensor { return t.binaryOp("Sub", other, floats.SubTo) }

// Mul returns the elementwise t * other. Both must have the same shape.
func (t *Tensor) Mul(other *Tensor) *Tensor { return t.binaryOp("Mul", other, floats.MulTo) }

// Div returns the elementwise t / other. Both must have the same shape.
func (t *Tensor) Div(other *Tensor) *Tensor { return t.binaryOp("Div", other, floats.DivTo) }
