// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// Package cvsm implements differentiable expression trees for compositional vector space models.
//
// Each Node represents one tensor-valued operation (a nonlinearity, a contraction, a loss ...) and
// trees of nodes compose into computations whose leaves are named parameters or constants.
//
// Trees are built bottom-up, and each node computes its value eagerly when it is created: there is
// no separate forward pass. Nodes are immutable, so the same node (e.g. a parameter leaf) can be
// shared by many trees, and concurrently read.
//
// Training calls Node.Backpropagate on the root of a tree, with a seed gradient and a fresh
// GradientSink: the gradient is pushed back to the leaves, and parameter leaves accumulate
// it into the sink under their names, for an external optimizer to consume.
//
// Gradients follow the log-likelihood convention: they point in the direction that increases the
// objective (see Objective), so loss nodes inject the negative of their loss gradient. An outer
// loop should do gradient ascent.
//
// Functions that build nodes panic on invalid inputs (e.g. mismatched shapes), like graph
// building functions usually do; Backpropagate and ReplaceSubtrees return errors instead.
package cvsm

import (
	"fmt"
	"slices"
	"strings"

	"github.com/gomlx/cvsm/pkg/core/tensors"
	"github.com/gomlx/cvsm/pkg/support/sets"
	"github.com/gomlx/exceptions"
	"github.com/pkg/errors"
)

// NodeType is the closed enumeration of the kinds of nodes.
type NodeType int

const (
	NodeTypeInvalid NodeType = iota
	NodeTypeParameter
	NodeTypeConstant
	NodeTypeAdd
	NodeTypeMul
	NodeTypeExp
	NodeTypeLog
	NodeTypeTanh
	NodeTypeLogistic
	NodeTypeLaplaceSigmoid
	NodeTypeDiag
	NodeTypeRelabelDims
	NodeTypeInnerProduct
	NodeTypeOuterProduct
	NodeTypeSoftmax
	NodeTypeSquareLoss
	NodeTypeKLElementwiseLoss
	NodeTypeKLLoss
	NodeTypeHingeElementwiseLoss
	NodeTypeZeroOneLoss
	NodeTypeValueLoss
	NodeTypeBind

	// NodeTypeLast is a sentinel, it must remain the last value.
	NodeTypeLast
)

var nodeTypeNames = [...]string{
	NodeTypeInvalid:              "Invalid",
	NodeTypeParameter:            "Parameter",
	NodeTypeConstant:             "Constant",
	NodeTypeAdd:                  "Add",
	NodeTypeMul:                  "Mul",
	NodeTypeExp:                  "Exp",
	NodeTypeLog:                  "Log",
	NodeTypeTanh:                 "Tanh",
	NodeTypeLogistic:             "Logistic",
	NodeTypeLaplaceSigmoid:       "LaplaceSigmoid",
	NodeTypeDiag:                 "Diag",
	NodeTypeRelabelDims:          "RelabelDims",
	NodeTypeInnerProduct:         "InnerProduct",
	NodeTypeOuterProduct:         "OuterProduct",
	NodeTypeSoftmax:              "Softmax",
	NodeTypeSquareLoss:           "SquareLoss",
	NodeTypeKLElementwiseLoss:    "KLElementwiseLoss",
	NodeTypeKLLoss:               "KLLoss",
	NodeTypeHingeElementwiseLoss: "HingeElementwiseLoss",
	NodeTypeZeroOneLoss:          "ZeroOneLoss",
	NodeTypeValueLoss:            "ValueLoss",
	NodeTypeBind:                 "Bind",
}

// String implements fmt.Stringer.
func (t NodeType) String() string {
	if t < 0 || t >= NodeTypeLast {
		return fmt.Sprintf("NodeType(%d)", int(t))
	}
	return nodeTypeNames[t]
}

// NodeTypeFromString returns the NodeType with the given name.
func NodeTypeFromString(name string) (NodeType, error) {
	for t := NodeTypeInvalid + 1; t < NodeTypeLast; t++ {
		if strings.EqualFold(nodeTypeNames[t], name) {
			return t, nil
		}
	}
	return NodeTypeInvalid, errors.Errorf("unknown node type %q", name)
}

// IsLoss returns whether nodes of this type are loss nodes: they have the value of their
// only child, and a non-zero LocalLoss.
func (t NodeType) IsLoss() bool {
	switch t {
	case NodeTypeSquareLoss, NodeTypeKLElementwiseLoss, NodeTypeKLLoss, NodeTypeHingeElementwiseLoss,
		NodeTypeZeroOneLoss, NodeTypeValueLoss:
		return true
	default:
		return false
	}
}

// Node is one immutable node of a tree. Its value is computed when it is created.
type Node struct {
	nodeType   NodeType
	inputNodes []*Node
	value      *tensors.Tensor
	localLoss  float64

	// inputs holds the type specific parameters, one of the nodeInputs* types.
	inputs any
}

// newNode creates the node. Inputs must have been checked with checkInputs.
func newNode(nodeType NodeType, inputs any, value *tensors.Tensor, inputNodes ...*Node) *Node {
	return &Node{
		nodeType:   nodeType,
		inputNodes: inputNodes,
		value:      value,
		inputs:     inputs,
	}
}

// checkInputs panics if any of the inputs is nil: called before the inputs' values are used.
func checkInputs(nodeType NodeType, inputNodes ...*Node) {
	for ii, input := range inputNodes {
		if input == nil {
			exceptions.Panicf("cvsm.%s: input #%d is nil", nodeType, ii)
		}
	}
}

// Type returns the kind of the node.
func (n *Node) Type() NodeType { return n.nodeType }

// Value returns the value of the node, computed when the node was created.
func (n *Node) Value() *tensors.Tensor { return n.value }

// Shape returns the shape (dimension signature) of the node's value.
func (n *Node) Shape() tensors.Shape { return n.value.Shape() }

// Children returns a copy of the list of children. Leaves have no children.
func (n *Node) Children() []*Node { return slices.Clone(n.inputNodes) }

// LocalLoss returns the loss contributed by this node alone: 0 for everything but loss nodes.
// See Loss for the loss of a whole tree.
func (n *Node) LocalLoss() float64 { return n.localLoss }

// Name returns the name of a Parameter or Bind node, or "" for other nodes.
func (n *Node) Name() string {
	switch params := n.inputs.(type) {
	case *nodeInputsParameter:
		return params.name
	case *nodeInputsBind:
		return params.name
	}
	return ""
}

// ReplaceSubtrees returns a new node of the same type (and parameters) as n, but with the given
// children.
//
// There must be exactly one replacement per child, and each replacement must have the same shape
// as the child it replaces, so the new node has the same shape as n. Otherwise, an error wrapping
// ErrShapeMismatch is returned. For leaves, children must be empty, and a copy is returned.
func (n *Node) ReplaceSubtrees(children []*Node) (*Node, error) {
	if len(children) != len(n.inputNodes) {
		return nil, errors.Wrapf(ErrShapeMismatch, "%s.ReplaceSubtrees: got %d children, wanted %d",
			n.nodeType, len(children), len(n.inputNodes))
	}
	for ii, child := range children {
		if child == nil {
			return nil, errors.Errorf("%s.ReplaceSubtrees: child #%d is nil", n.nodeType, ii)
		}
		if !child.value.Shape().Equal(n.inputNodes[ii].value.Shape()) {
			return nil, errors.Wrapf(ErrShapeMismatch, "%s.ReplaceSubtrees: child #%d has shape %s, wanted %s",
				n.nodeType, ii, child.value.Shape(), n.inputNodes[ii].value.Shape())
		}
	}
	var rebuilt *Node
	err := exceptions.TryCatch[error](func() { rebuilt = n.rebuild(children) })
	if err != nil {
		return nil, errors.WithMessagef(err, "%s.ReplaceSubtrees", n.nodeType)
	}
	return rebuilt, nil
}

// rebuild creates a node with the same type and parameters as n with the given children.
func (n *Node) rebuild(children []*Node) *Node {
	switch n.nodeType {
	case NodeTypeParameter:
		return Parameter(n.inputs.(*nodeInputsParameter).name, n.value)
	case NodeTypeConstant:
		return Constant(n.value)
	case NodeTypeAdd:
		return Add(children[0], children[1])
	case NodeTypeMul:
		return Mul(children[0], children[1])
	case NodeTypeExp:
		return Exp(children[0])
	case NodeTypeLog:
		return Log(children[0])
	case NodeTypeTanh:
		return Tanh(children[0])
	case NodeTypeLogistic:
		return Logistic(children[0])
	case NodeTypeLaplaceSigmoid:
		return LaplaceSigmoid(children[0], n.inputs.(*nodeInputsLaplaceSigmoid).smoothness)
	case NodeTypeDiag:
		params := n.inputs.(*nodeInputsDiag)
		return Diag(children[0], params.rowDim, params.colDim)
	case NodeTypeRelabelDims:
		return RelabelDims(children[0], n.inputs.(*nodeInputsRelabelDims).mapping)
	case NodeTypeInnerProduct:
		return InnerProduct(children[0], children[1])
	case NodeTypeOuterProduct:
		return OuterProduct(children[0], children[1])
	case NodeTypeSoftmax:
		return Softmax(children[0])
	case NodeTypeSquareLoss:
		return SquareLoss(n.inputs.(*nodeInputsLoss).target, children[0])
	case NodeTypeKLElementwiseLoss:
		return KLElementwiseLoss(n.inputs.(*nodeInputsLoss).target, children[0])
	case NodeTypeKLLoss:
		return KLLoss(n.inputs.(*nodeInputsLoss).target, children[0])
	case NodeTypeHingeElementwiseLoss:
		return HingeElementwiseLoss(n.inputs.(*nodeInputsLoss).target, children[0])
	case NodeTypeZeroOneLoss:
		return ZeroOneLoss(n.inputs.(*nodeInputsLoss).target, children[0])
	case NodeTypeValueLoss:
		return ValueLoss(children[0])
	case NodeTypeBind:
		return Bind(children[0], children[1], n.inputs.(*nodeInputsBind).name)
	}
	exceptions.Panicf("cvsm: rebuild not defined for node type %s", n.nodeType)
	return nil
}

// String implements fmt.Stringer, it prints the whole tree rooted at n.
func (n *Node) String() string {
	var sb strings.Builder
	n.writeTo(&sb)
	return sb.String()
}

func (n *Node) writeTo(sb *strings.Builder) {
	switch n.nodeType {
	case NodeTypeParameter:
		_, _ = fmt.Fprintf(sb, "%q", n.Name())
		return
	case NodeTypeConstant:
		_, _ = fmt.Fprintf(sb, "%s", n.value)
		return
	}
	sb.WriteString(n.nodeType.String())
	sb.WriteString("(")
	for ii, input := range n.inputNodes {
		if ii > 0 {
			sb.WriteString(", ")
		}
		input.writeTo(sb)
	}
	if n.nodeType == NodeTypeBind {
		_, _ = fmt.Fprintf(sb, ", %q", n.Name())
	}
	sb.WriteString(")")
}

// Walk calls fn for every node of the tree rooted at n, parents before children.
// Notice a node shared in more than one place is visited once per occurrence.
func Walk(n *Node, fn func(node *Node)) {
	fn(n)
	for _, input := range n.inputNodes {
		Walk(input, fn)
	}
}

// ParameterNames returns the sorted names of the parameter leaves in the tree rooted at n.
func (n *Node) ParameterNames() []string {
	names := sets.Make[string]()
	Walk(n, func(node *Node) {
		if node.nodeType == NodeTypeParameter {
			names.Insert(node.Name())
		}
	})
	return sets.Sorted(names)
}

// Loss returns the sum of LocalLoss over every node of the tree rooted at root.
func Loss(root *Node) float64 {
	var loss float64
	Walk(root, func(node *Node) { loss += node.localLoss })
	return loss
}

// Objective returns the scalar whose gradient a backward pass seeded with zeros accumulates: the
// negated, weighted sum of the local losses of the tree.
//
// SquareLoss contributes -LocalLoss/2, ZeroOneLoss (not differentiable) contributes nothing, and all
// other losses contribute -LocalLoss. With a non-zero seed gradient `g`, the gradient accumulated is
// the one of `Objective(root) + <g, root.Value()>`.
func Objective(root *Node) float64 {
	var objective float64
	Walk(root, func(node *Node) {
		switch node.nodeType {
		case NodeTypeSquareLoss:
			objective -= node.localLoss / 2
		case NodeTypeZeroOneLoss:
		default:
			objective -= node.localLoss
		}
	})
	return objective
}
