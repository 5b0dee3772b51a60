// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package cvsm

import (
	"math"

	"github.com/gomlx/cvsm/pkg/core/tensors"
	"github.com/gomlx/exceptions"
	"github.com/pkg/errors"
)

type nodeInputsParameter struct {
	name string
}

// Parameter creates a named leaf holding value. Backpropagate accumulates the gradient reaching
// it into the sink under name.
func Parameter(name string, value *tensors.Tensor) *Node {
	if name == "" {
		exceptions.Panicf("cvsm.Parameter: name cannot be empty")
	}
	if value == nil {
		exceptions.Panicf("cvsm.Parameter(%q): value is nil", name)
	}
	return newNode(NodeTypeParameter, &nodeInputsParameter{name: name}, value)
}

// Constant creates a leaf holding value. Gradients reaching it are discarded.
func Constant(value *tensors.Tensor) *Node {
	if value == nil {
		exceptions.Panicf("cvsm.Constant: value is nil")
	}
	return newNode(NodeTypeConstant, nil, value)
}

// ScalarConstant is a shortcut to Constant(tensors.Scalar(value)).
func ScalarConstant(value float64) *Node {
	return Constant(tensors.Scalar(value))
}

// Add returns the element-wise sum of a and b, which must have the same shape.
func Add(a, b *Node) *Node {
	checkInputs(NodeTypeAdd, a, b)
	return newNode(NodeTypeAdd, nil, a.value.Add(b.value), a, b)
}

// Mul returns the element-wise product of a and b, which must have the same shape.
func Mul(a, b *Node) *Node {
	checkInputs(NodeTypeMul, a, b)
	return newNode(NodeTypeMul, nil, a.value.Mul(b.value), a, b)
}

// Exp returns the element-wise exponential of x.
func Exp(x *Node) *Node {
	checkInputs(NodeTypeExp, x)
	return newNode(NodeTypeExp, nil, x.value.Exp(), x)
}

// Log returns the element-wise natural logarithm of x.
// Non-positive values yield NaN or -Inf, they are not checked.
func Log(x *Node) *Node {
	checkInputs(NodeTypeLog, x)
	return newNode(NodeTypeLog, nil, x.value.Log(), x)
}

// Tanh returns the element-wise hyperbolic tangent of x.
func Tanh(x *Node) *Node {
	checkInputs(NodeTypeTanh, x)
	return newNode(NodeTypeTanh, nil, x.value.Tanh(), x)
}

// logistic is the numerically stable 1/(1+exp(-x)).
func logistic(x float64) float64 {
	if x >= 0 {
		return 1 / (1 + math.Exp(-x))
	}
	e := math.Exp(x)
	return e / (1 + e)
}

// Logistic returns the element-wise logistic sigmoid 1/(1+exp(-x)).
func Logistic(x *Node) *Node {
	checkInputs(NodeTypeLogistic, x)
	return newNode(NodeTypeLogistic, nil, x.value.Map(logistic), x)
}

type nodeInputsLaplaceSigmoid struct {
	smoothness float64
}

// LaplaceSigmoid returns the element-wise sign(x)*(1-exp(-smoothness*|x|)): a sigmoid shaped like
// the Laplace distribution CDF, with range (-1, 1). The smoothness must be positive.
func LaplaceSigmoid(x *Node, smoothness float64) *Node {
	checkInputs(NodeTypeLaplaceSigmoid, x)
	if !(smoothness > 0) {
		exceptions.Panicf("cvsm.LaplaceSigmoid: smoothness must be > 0, got %g", smoothness)
	}
	value := x.value.Map(func(v float64) float64 {
		y := -math.Expm1(-smoothness * math.Abs(v))
		if v < 0 {
			return -y
		}
		return y
	})
	return newNode(NodeTypeLaplaceSigmoid, &nodeInputsLaplaceSigmoid{smoothness: smoothness}, value, x)
}

type nodeInputsDiag struct {
	rowDim, colDim int
}

// Diag turns the rank-1 x into a square diagonal matrix over the dims rowDim and colDim, which
// must be different. Off-diagonal values are 0.
func Diag(x *Node, rowDim, colDim int) *Node {
	checkInputs(NodeTypeDiag, x)
	return newNode(NodeTypeDiag, &nodeInputsDiag{rowDim: rowDim, colDim: colDim},
		x.value.Diagonal(rowDim, colDim), x)
}

type nodeInputsRelabelDims struct {
	mapping, inverse map[int]int
}

// RelabelDims renames the dims of x (old dim -> new dim). The mapping must cover exactly the
// dims of x and be injective, otherwise it panics with an error wrapping ErrShapeMismatch.
func RelabelDims(x *Node, mapping map[int]int) *Node {
	checkInputs(NodeTypeRelabelDims, x)
	if err := tensors.CheckRelabeling(x.value.Shape(), mapping); err != nil {
		panic(errors.WithMessage(err, "cvsm.RelabelDims"))
	}
	inverse, err := tensors.InvertRelabeling(mapping)
	if err != nil {
		panic(errors.WithMessage(err, "cvsm.RelabelDims"))
	}
	owned := make(map[int]int, len(mapping))
	for from, to := range mapping {
		owned[from] = to
	}
	return newNode(NodeTypeRelabelDims, &nodeInputsRelabelDims{mapping: owned, inverse: inverse},
		x.value.Relabel(owned), x)
}

// InnerProduct contracts big with small over all the dims of small, which must be a subset of
// the dims of big with matching sizes. The result has the remaining dims of big.
//
// E.g.: a matrix over dims {0, 1} times a vector over dim {1} is a vector over dim {0}; and two
// vectors over the same dim yield their dot product as a scalar.
func InnerProduct(big, small *Node) *Node {
	checkInputs(NodeTypeInnerProduct, big, small)
	return newNode(NodeTypeInnerProduct, nil, big.value.InnerProduct(small.value), big, small)
}

// OuterProduct returns the outer product of a and b, which must have disjoint dims.
// The result has the union of their dims.
func OuterProduct(a, b *Node) *Node {
	checkInputs(NodeTypeOuterProduct, a, b)
	return newNode(NodeTypeOuterProduct, nil, a.value.OuterProduct(b.value), a, b)
}

// Softmax normalizes exp(x) over all of its elements, so the result sums to 1.
// It is computed with the log-sum-exp trick, so large inputs don't overflow.
func Softmax(x *Node) *Node {
	checkInputs(NodeTypeSoftmax, x)
	logZ := x.value.LogSumExp()
	value := x.value.Map(func(v float64) float64 { return math.Exp(v - logZ) })
	return newNode(NodeTypeSoftmax, nil, value, x)
}
