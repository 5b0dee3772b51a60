// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package cvsm

import (
	"github.com/gomlx/cvsm/pkg/core/tensors"
	"github.com/gomlx/exceptions"
	"github.com/pkg/errors"
	"k8s.io/klog/v2"
)

// This file implements reverse-mode automatic differentiation using VJPs (Vector Jacobian Products).
//
// Conventions:
//
// * v: the gradient of the objective with respect to the node's value, it always has the node's shape.
// * The VJP of a node returns one gradient per input node, in the order of the inputs. A nil entry
//   means the input gets no gradient, and its subtree is not visited.
// * Trees are not DAGs with memoized backward passes: a node shared in more than one place is visited
//   once per occurrence, and parameter leaves accumulate all of them in the sink.

// Backpropagate pushes gradient, the gradient of the objective with respect to n.Value(), back
// through the tree rooted at n, accumulating the gradients reaching parameter leaves into sink.
//
// Loss nodes add the negative gradient of their loss, so with a zero gradient the sink receives the
// gradient of Objective(n).
//
// It returns an error wrapping ErrShapeMismatch if gradient doesn't match n's shape, or wrapping
// ErrNotDifferentiable if a non-differentiable node (e.g. ZeroOneLoss) is reached. On error, the
// sink may hold a partial accumulation and should be discarded.
func (n *Node) Backpropagate(gradient *tensors.Tensor, sink *GradientSink) error {
	if gradient == nil || sink == nil {
		return errors.Errorf("%s.Backpropagate: gradient and sink must be non-nil", n.nodeType)
	}
	return exceptions.TryCatch[error](func() { backpropagate(n, gradient, sink) })
}

// Gradient is a shortcut that backpropagates seed from root into a new GradientSink, and returns it.
// If seed is nil, a zero seed is used: the sink then holds the gradient of Objective(root).
func Gradient(root *Node, seed *tensors.Tensor) (*GradientSink, error) {
	if seed == nil {
		seed = tensors.ZerosLike(root.value)
	}
	sink := NewGradientSink()
	if err := root.Backpropagate(seed, sink); err != nil {
		return nil, err
	}
	return sink, nil
}

// backpropagate panics on errors: Backpropagate converts them back to errors.
func backpropagate(node *Node, v *tensors.Tensor, sink *GradientSink) {
	if nonDifferentiableTypes[node.nodeType] {
		panic(errors.Wrapf(ErrNotDifferentiable, "cannot backpropagate through %s", node.nodeType))
	}
	if err := v.Shape().CheckEqual(node.value.Shape()); err != nil {
		panic(errors.WithMessagef(err, "backpropagate %s: gradient doesn't match the node's value", node.nodeType))
	}
	vjpFn, found := VJPRegistration[node.nodeType]
	if !found {
		exceptions.Panicf("backpropagate: no VJP registered for node type %s", node.nodeType)
	}
	if klog.V(3).Enabled() {
		klog.Infof("backpropagate %s: value shape %s", node.nodeType, node.value.Shape())
	}
	inputsVJPs := vjpFn(node, v, sink)
	if len(inputsVJPs) > 0 && len(inputsVJPs) != len(node.inputNodes) {
		exceptions.Panicf("backpropagate %s: VJP returned %d gradients for %d inputs",
			node.nodeType, len(inputsVJPs), len(node.inputNodes))
	}
	for ii, inputVJP := range inputsVJPs {
		if inputVJP == nil {
			continue
		}
		backpropagate(node.inputNodes[ii], inputVJP, sink)
	}
}

// VJP computes the gradients of the inputs of node, given v, the gradient of its value.
// It may also accumulate directly into sink (parameter leaves do).
type VJP func(node *Node, v *tensors.Tensor, sink *GradientSink) []*tensors.Tensor

// nonDifferentiableTypes are node types that fail the backward pass.
var nonDifferentiableTypes = map[NodeType]bool{
	NodeTypeZeroOneLoss: true,
}

// VJPRegistration maps each node type to its implementation of VJP. Every node type from
// NodeTypeInvalid+1 to NodeTypeLast-1 must be registered.
var VJPRegistration map[NodeType]VJP

func init() {
	// Set in init because bindVJP refers back to backpropagate, which refers to VJPRegistration.
	VJPRegistration = map[NodeType]VJP{
		NodeTypeParameter:            parameterVJP,
		NodeTypeConstant:             nilVJP,
		NodeTypeAdd:                  addVJP,
		NodeTypeMul:                  mulVJP,
		NodeTypeExp:                  expVJP,
		NodeTypeLog:                  logVJP,
		NodeTypeTanh:                 tanhVJP,
		NodeTypeLogistic:             logisticVJP,
		NodeTypeLaplaceSigmoid:       laplaceSigmoidVJP,
		NodeTypeDiag:                 diagVJP,
		NodeTypeRelabelDims:          relabelDimsVJP,
		NodeTypeInnerProduct:         innerProductVJP,
		NodeTypeOuterProduct:         outerProductVJP,
		NodeTypeSoftmax:              softmaxVJP,
		NodeTypeSquareLoss:           squareLossVJP,
		NodeTypeKLElementwiseLoss:    klElementwiseLossVJP,
		NodeTypeKLLoss:               klLossVJP,
		NodeTypeHingeElementwiseLoss: hingeElementwiseLossVJP,
		NodeTypeZeroOneLoss:          notDifferentiableVJP,
		NodeTypeValueLoss:            valueLossVJP,
		NodeTypeBind:                 bindVJP,
	}
}

// nilVJP discards the gradient.
func nilVJP(_ *Node, _ *tensors.Tensor, _ *GradientSink) []*tensors.Tensor {
	return nil
}

func notDifferentiableVJP(node *Node, _ *tensors.Tensor, _ *GradientSink) []*tensors.Tensor {
	panic(errors.Wrapf(ErrNotDifferentiable, "cannot backpropagate through %s", node.nodeType))
}

func parameterVJP(node *Node, v *tensors.Tensor, sink *GradientSink) []*tensors.Tensor {
	sink.Increment(node.Name(), v)
	return nil
}

func addVJP(_ *Node, v *tensors.Tensor, _ *GradientSink) []*tensors.Tensor {
	return []*tensors.Tensor{v, v}
}

func mulVJP(node *Node, v *tensors.Tensor, _ *GradientSink) []*tensors.Tensor {
	a, b := node.inputNodes[0].value, node.inputNodes[1].value
	return []*tensors.Tensor{v.Mul(b), v.Mul(a)}
}

func expVJP(node *Node, v *tensors.Tensor, _ *GradientSink) []*tensors.Tensor {
	// d(e^x)/dx = e^x, which is the node's value.
	return []*tensors.Tensor{v.Mul(node.value)}
}

func logVJP(node *Node, v *tensors.Tensor, _ *GradientSink) []*tensors.Tensor {
	return []*tensors.Tensor{v.Div(node.inputNodes[0].value)}
}

func tanhVJP(node *Node, v *tensors.Tensor, _ *GradientSink) []*tensors.Tensor {
	// dtanh(x)/dx = 1 - tanh(x)^2
	y := node.value
	return []*tensors.Tensor{v.Mul(y.Mul(y).Neg().AddScalar(1))}
}

func logisticVJP(node *Node, v *tensors.Tensor, _ *GradientSink) []*tensors.Tensor {
	// d\sigma(x)/dx = \sigma(x) * (1 - \sigma(x))
	y := node.value
	return []*tensors.Tensor{v.Mul(y.Mul(y.Neg().AddScalar(1)))}
}

func laplaceSigmoidVJP(node *Node, v *tensors.Tensor, _ *GradientSink) []*tensors.Tensor {
	// df/dx = s * exp(-s|x|) = s * (1 - |f(x)|)
	s := node.inputs.(*nodeInputsLaplaceSigmoid).smoothness
	return []*tensors.Tensor{v.Mul(node.value.Abs().Neg().AddScalar(1).Scale(s))}
}

func diagVJP(node *Node, v *tensors.Tensor, _ *GradientSink) []*tensors.Tensor {
	params := node.inputs.(*nodeInputsDiag)
	x := node.inputNodes[0].value
	return []*tensors.Tensor{v.ExtractDiagonal(params.rowDim, params.colDim, x.Dims()[0])}
}

func relabelDimsVJP(node *Node, v *tensors.Tensor, _ *GradientSink) []*tensors.Tensor {
	return []*tensors.Tensor{v.Relabel(node.inputs.(*nodeInputsRelabelDims).inverse)}
}

func innerProductVJP(node *Node, v *tensors.Tensor, _ *GradientSink) []*tensors.Tensor {
	// v has the dims of big minus the dims of small.
	big, small := node.inputNodes[0].value, node.inputNodes[1].value
	return []*tensors.Tensor{
		small.OuterProduct(v),
		big.InnerProduct(v),
	}
}

func outerProductVJP(node *Node, v *tensors.Tensor, _ *GradientSink) []*tensors.Tensor {
	a, b := node.inputNodes[0].value, node.inputNodes[1].value
	return []*tensors.Tensor{
		v.InnerProduct(b),
		v.InnerProduct(a),
	}
}

func softmaxVJP(node *Node, v *tensors.Tensor, _ *GradientSink) []*tensors.Tensor {
	// dx_i = p_i * (v_i - sum_j(p_j * v_j))
	p := node.value
	weighted := p.Mul(v)
	return []*tensors.Tensor{weighted.Sub(p.Scale(weighted.Sum()))}
}

func squareLossVJP(node *Node, v *tensors.Tensor, _ *GradientSink) []*tensors.Tensor {
	target := node.inputs.(*nodeInputsLoss).effective
	return []*tensors.Tensor{v.Add(target.Sub(node.value))}
}

func klElementwiseLossVJP(node *Node, v *tensors.Tensor, _ *GradientSink) []*tensors.Tensor {
	// -dKL/dq = t/q - (1-t)/(1-q)
	target := node.inputs.(*nodeInputsLoss).effective.Flat()
	values := node.value.Flat()
	gradient := make([]float64, len(values))
	for ii, t := range target {
		if t != 0 {
			gradient[ii] += t / values[ii]
		}
		if t != 1 {
			gradient[ii] -= (1 - t) / (1 - values[ii])
		}
	}
	return []*tensors.Tensor{v.Add(tensors.FromShape(node.value.Shape(), gradient))}
}

func klLossVJP(node *Node, v *tensors.Tensor, _ *GradientSink) []*tensors.Tensor {
	// -dKL/dq = t/q
	target := node.inputs.(*nodeInputsLoss).effective.Flat()
	values := node.value.Flat()
	gradient := make([]float64, len(values))
	for ii, t := range target {
		if t != 0 {
			gradient[ii] = t / values[ii]
		}
	}
	return []*tensors.Tensor{v.Add(tensors.FromShape(node.value.Shape(), gradient))}
}

func hingeElementwiseLossVJP(node *Node, v *tensors.Tensor, _ *GradientSink) []*tensors.Tensor {
	// The negative subgradient is the label while label*value < 1, and 0 from 1 on (boundary included).
	target := node.inputs.(*nodeInputsLoss).effective.Flat()
	values := node.value.Flat()
	gradient := make([]float64, len(values))
	for ii, t := range target {
		if label := hingeLabel(t); label*values[ii] < 1 {
			gradient[ii] = label
		}
	}
	return []*tensors.Tensor{v.Add(tensors.FromShape(node.value.Shape(), gradient))}
}

func valueLossVJP(_ *Node, v *tensors.Tensor, _ *GradientSink) []*tensors.Tensor {
	return []*tensors.Tensor{v.AddScalar(-1)}
}
