// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package cvsm

import (
	"math"

	"github.com/gomlx/cvsm/pkg/core/tensors"
	"github.com/gomlx/exceptions"
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/floats"
)

// Loss nodes have the value of their only child, and a LocalLoss comparing it to a fixed target.
// Their backward pass adds the negative gradient of the loss to the incoming gradient.

type nodeInputsLoss struct {
	// target as given by the caller, and effective is the target aligned to the shape of the value.
	target, effective *tensors.Tensor
}

// lossFn computes the LocalLoss of a loss node, given target and value of the same shape.
type lossFn func(target, value *tensors.Tensor) float64

// newLossNode checks the target matches the shape of x and creates the loss node. The localLoss is
// computed by fn(target, value).
func newLossNode(nodeType NodeType, target *tensors.Tensor, x *Node, fn lossFn) *Node {
	checkInputs(nodeType, x)
	if target == nil {
		exceptions.Panicf("cvsm.%s: target is nil", nodeType)
	}
	if err := target.Shape().CheckEqual(x.value.Shape()); err != nil {
		panic(errors.WithMessagef(err, "cvsm.%s: target and value shapes differ", nodeType))
	}
	return newLossNodeWithTarget(nodeType, target, target, x, fn)
}

func newLossNodeWithTarget(nodeType NodeType, target, effective *tensors.Tensor, x *Node, fn lossFn) *Node {
	node := newNode(nodeType, &nodeInputsLoss{target: target, effective: effective}, x.value, x)
	node.localLoss = fn(effective, x.value)
	return node
}

// xLogXOverY returns x*log(x/y), with the convention that it is 0 if x is 0.
func xLogXOverY(x, y float64) float64 {
	if x == 0 {
		return 0
	}
	return x * math.Log(x/y)
}

// SquareLoss measures the squared Euclidean distance ||target - value||^2.
//
// If x is a scalar, target can be any tensor with exactly one element.
// The gradient it injects is (target - value), half of the negative gradient of its loss.
func SquareLoss(target *tensors.Tensor, x *Node) *Node {
	checkInputs(NodeTypeSquareLoss, x)
	squareFn := func(target, value *tensors.Tensor) float64 {
		diff := target.Flat()
		floats.Sub(diff, value.Flat())
		return floats.Dot(diff, diff)
	}
	if x.value.IsScalar() && target != nil && !target.IsScalar() {
		if target.Size() != 1 {
			panic(errors.Wrapf(ErrShapeMismatch,
				"cvsm.SquareLoss: scalar value requires a target with one element, got shape %s", target.Shape()))
		}
		return newLossNodeWithTarget(NodeTypeSquareLoss, target, tensors.Scalar(target.Flat()[0]), x, squareFn)
	}
	return newLossNode(NodeTypeSquareLoss, target, x, squareFn)
}

// KLElementwiseLoss treats each element as an independent Bernoulli probability, and measures the sum
// of the Kullback-Leibler divergences KL(target || value) of each element. Both target and values
// must be in [0, 1].
func KLElementwiseLoss(target *tensors.Tensor, x *Node) *Node {
	return newLossNode(NodeTypeKLElementwiseLoss, target, x, func(target, value *tensors.Tensor) float64 {
		var loss float64
		values := value.Flat()
		for ii, t := range target.Flat() {
			loss += xLogXOverY(t, values[ii]) + xLogXOverY(1-t, 1-values[ii])
		}
		return loss
	})
}

// KLLoss treats target and value as distributions (e.g. the output of Softmax) and measures
// sum(target * log(target/value)). Elements where the target is 0 contribute nothing.
func KLLoss(target *tensors.Tensor, x *Node) *Node {
	return newLossNode(NodeTypeKLLoss, target, x, func(target, value *tensors.Tensor) float64 {
		var loss float64
		values := value.Flat()
		for ii, t := range target.Flat() {
			loss += xLogXOverY(t, values[ii])
		}
		return loss
	})
}

// hingeLabel converts a {0, 1} target to a {-1, +1} label.
func hingeLabel(t float64) float64 { return 2*t - 1 }

// HingeElementwiseLoss treats each element as an independent binary classification score: the target
// must be 0 or 1, and it is converted to a -1 or +1 label. The loss is sum(max(0, 1 - label*value)).
//
// Like the other losses, the gradient it injects is the negated subgradient of its loss: +label
// where label*value < 1 (the subgradient there is -label), and 0 from 1 on.
func HingeElementwiseLoss(target *tensors.Tensor, x *Node) *Node {
	if target != nil {
		for _, t := range target.Flat() {
			if t != 0 && t != 1 {
				exceptions.Panicf("cvsm.HingeElementwiseLoss: targets must be 0 or 1, got %g", t)
			}
		}
	}
	return newLossNode(NodeTypeHingeElementwiseLoss, target, x, func(target, value *tensors.Tensor) float64 {
		var loss float64
		values := value.Flat()
		for ii, t := range target.Flat() {
			loss += max(0, 1-hingeLabel(t)*values[ii])
		}
		return loss
	})
}

// ZeroOneLoss measures 1 - sum(argmax(value) * target): with a one-hot target it is 0 if the
// largest element of the value is the correct one, and 1 otherwise. Ties are broken by the lowest
// flat index.
//
// It is meant for evaluation only: Backpropagate through it fails with ErrNotDifferentiable.
func ZeroOneLoss(target *tensors.Tensor, x *Node) *Node {
	return newLossNode(NodeTypeZeroOneLoss, target, x, func(target, value *tensors.Tensor) float64 {
		return 1 - value.ArgmaxIndicator().Mul(target).Sum()
	})
}

// ValueLoss treats the scalar value of x itself as the loss: its LocalLoss is the value, and its
// backward pass injects -1.
func ValueLoss(x *Node) *Node {
	checkInputs(NodeTypeValueLoss, x)
	if !x.value.IsScalar() {
		panic(errors.Wrapf(ErrShapeMismatch, "cvsm.ValueLoss: requires a scalar, got shape %s", x.value.Shape()))
	}
	node := newNode(NodeTypeValueLoss, nil, x.value, x)
	node.localLoss = x.value.Value()
	return node
}
