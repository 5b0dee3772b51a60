// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package cvsm

import (
	"github.com/gomlx/cvsm/pkg/core/tensors"
	"github.com/pkg/errors"
)

var (
	// ErrShapeMismatch is wrapped by errors caused by incompatible dimension signatures: at
	// construction, in ReplaceSubtrees or when the gradient given to Backpropagate doesn't have
	// the shape of the node's value. It is the same error as tensors.ErrShapeMismatch.
	ErrShapeMismatch = tensors.ErrShapeMismatch

	// ErrNotDifferentiable is wrapped by errors of Backpropagate reaching a node with no
	// gradient, like ZeroOneLoss.
	ErrNotDifferentiable = errors.New("node is not differentiable")
)
