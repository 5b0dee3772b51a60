// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package cvsm

import (
	"github.com/gomlx/cvsm/pkg/core/tensors"
	"github.com/pkg/errors"
	"k8s.io/klog/v2"
)

type nodeInputsBind struct {
	name  string
	bound bool
}

// Bind is a let-binding: evaluatedTree was built with Parameter leaves named name standing in for
// the value of subtree, and Bind connects them for the backward pass.
//
// Bind has the value of subtree, and children [subtree, evaluatedTree]. On the backward pass it
// runs evaluatedTree's backward pass (with a zero seed, so only its losses contribute) into a
// separate sink: the gradient harvested under name is added to the incoming gradient and sent to
// subtree, and the gradients for every other name are forwarded to the outer sink.
//
// All the Parameter leaves named name in evaluatedTree must have the shape of subtree, otherwise it
// panics with an error wrapping ErrShapeMismatch. If name doesn't occur in evaluatedTree, the Bind
// is "unbound": it is not an error, but evaluatedTree won't contribute any gradient to subtree,
// see Node.IsBound.
func Bind(subtree, evaluatedTree *Node, name string) *Node {
	checkInputs(NodeTypeBind, subtree, evaluatedTree)
	var bound bool
	Walk(evaluatedTree, func(node *Node) {
		if node.nodeType != NodeTypeParameter || node.Name() != name {
			return
		}
		bound = true
		if err := node.value.Shape().CheckEqual(subtree.value.Shape()); err != nil {
			panic(errors.WithMessagef(err, "cvsm.Bind(%q): parameter in evaluated tree doesn't match subtree", name))
		}
	})
	if !bound {
		klog.Warningf("cvsm.Bind: name %q doesn't occur in the evaluated tree, it won't receive gradients", name)
	}
	return newNode(NodeTypeBind, &nodeInputsBind{name: name, bound: bound}, subtree.value, subtree, evaluatedTree)
}

// IsBound returns whether a Bind node's name occurs as a Parameter in its evaluated tree.
// It returns false for other node types.
func (n *Node) IsBound() bool {
	params, ok := n.inputs.(*nodeInputsBind)
	return ok && params.bound
}

// bindVJP runs the isolated backward pass of the evaluated tree, see Bind.
func bindVJP(node *Node, v *tensors.Tensor, sink *GradientSink) []*tensors.Tensor {
	params := node.inputs.(*nodeInputsBind)
	evaluatedTree := node.inputNodes[1]
	harvest := NewGradientSink()
	backpropagate(evaluatedTree, tensors.ZerosLike(evaluatedTree.value), harvest)

	subtreeVJP := v
	for _, name := range harvest.Names() {
		gradient := harvest.Get(name)
		if name == params.name {
			subtreeVJP = subtreeVJP.Add(gradient)
			continue
		}
		sink.Increment(name, gradient)
	}
	if klog.V(2).Enabled() {
		klog.Infof("Bind(%q): harvested %d gradients from the evaluated tree", params.name, harvest.Len())
	}
	return []*tensors.Tensor{subtreeVJP, nil}
}
