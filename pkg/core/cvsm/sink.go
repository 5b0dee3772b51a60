// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package cvsm

import (
	"github.com/gomlx/cvsm/pkg/core/tensors"
	"github.com/gomlx/cvsm/pkg/support/xslices"
	"github.com/pkg/errors"
	"k8s.io/klog/v2"
)

// GradientSink accumulates gradients by parameter name.
//
// Each Increment adds to whatever was accumulated before under the same name, so a parameter
// that occurs more than once in a tree receives the sum of the gradients of all its occurrences.
//
// A GradientSink is not safe for concurrent use: use one per backward pass, and merge them
// afterward with Merge if needed.
type GradientSink struct {
	gradients map[string]*tensors.Tensor
}

// NewGradientSink returns an empty GradientSink.
func NewGradientSink() *GradientSink {
	return &GradientSink{gradients: make(map[string]*tensors.Tensor)}
}

// Increment adds delta to the entry for name. The first increment for a name sets its shape,
// later increments must match it or it panics with an error wrapping ErrShapeMismatch.
func (s *GradientSink) Increment(name string, delta *tensors.Tensor) {
	current, found := s.gradients[name]
	if !found {
		s.gradients[name] = delta
		return
	}
	if err := current.Shape().CheckEqual(delta.Shape()); err != nil {
		panic(errors.WithMessagef(err, "GradientSink.Increment(%q)", name))
	}
	s.gradients[name] = current.Add(delta)
	if klog.V(3).Enabled() {
		klog.Infof("GradientSink: accumulated gradient for %q", name)
	}
}

// Get returns the accumulated gradient for name, or nil if nothing was accumulated for it.
func (s *GradientSink) Get(name string) *tensors.Tensor {
	return s.gradients[name]
}

// Has returns whether any gradient was accumulated for name.
func (s *GradientSink) Has(name string) bool {
	_, found := s.gradients[name]
	return found
}

// Names returns the sorted names with accumulated gradients.
func (s *GradientSink) Names() []string {
	return xslices.SortedKeys(s.gradients)
}

// Len returns the number of names with accumulated gradients.
func (s *GradientSink) Len() int { return len(s.gradients) }

// Merge increments s with every entry of other.
func (s *GradientSink) Merge(other *GradientSink) {
	for _, name := range other.Names() {
		s.Increment(name, other.gradients[name])
	}
}
