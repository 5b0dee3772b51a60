// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// Package lowrank represents a tensor parameter as a sum of rank-one outer products plus a
// diagonal, instead of a dense tensor:
//
//	W = sum_r (f[r][0] ⊗ f[r][1] ⊗ ... ⊗ f[r][n-1]) + diag(d)
//
// where each factor f[r][j] is a vector over the j-th dim of W, and d holds the weights of the
// diagonal (all indices equal) of W.
//
// A Family names the parameters and Build assembles W from cvsm nodes (Parameter, OuterProduct,
// InnerProduct and Add), so a backward pass through W accumulates gradients for the factors and
// the diagonal weights directly, under the names given by FactorName and DiagName.
package lowrank

import (
	"fmt"
	"math/rand/v2"
	"slices"

	"github.com/gomlx/cvsm/pkg/core/cvsm"
	"github.com/gomlx/cvsm/pkg/core/tensors"
	"github.com/gomlx/exceptions"
	"github.com/pkg/errors"
	"k8s.io/klog/v2"
)

// Family describes a low-rank tensor parameter: its name, shape and number of outer product terms.
// It is immutable and can be shared.
type Family struct {
	name  string
	shape tensors.Shape
	rank  int

	// diagDim is the dim of the diagonal weights, not used by shape.
	diagDim int

	// selector has the dims of shape plus diagDim, and is 1 where all indices are equal.
	selector *tensors.Tensor
}

// New creates a Family for a tensor named name with the given shape (at least one dim) and rank
// (the number of outer product terms, possibly 0, in which case only the diagonal is learned).
func New(name string, shape tensors.Shape, rank int) (*Family, error) {
	if name == "" {
		return nil, errors.New("lowrank.New: name must not be empty")
	}
	if rank < 0 {
		return nil, errors.Errorf("lowrank.New(%q): rank must be >= 0, got %d", name, rank)
	}
	if shape.IsScalar() {
		return nil, errors.Errorf("lowrank.New(%q): shape must have at least one dim", name)
	}
	f := &Family{name: name, shape: shape.Clone(), rank: rank, diagDim: shape.Dims[shape.Rank()-1] + 1}
	selectorShape, err := f.shape.Union(tensors.MakeShape([]int{f.diagDim}, []int{f.diagSize()}))
	if err != nil {
		return nil, errors.WithMessagef(err, "lowrank.New(%q)", name)
	}
	f.selector = tensors.Identity(selectorShape)
	klog.V(2).Infof("lowrank.New(%q): shape %s, rank %d, %d parameters", name, shape, rank, len(f.ParameterNames()))
	return f, nil
}

// Name of the tensor.
func (f *Family) Name() string { return f.name }

// Shape of the tensor.
func (f *Family) Shape() tensors.Shape { return f.shape.Clone() }

// Rank is the number of outer product terms.
func (f *Family) Rank() int { return f.rank }

// diagSize is the length of the diagonal: the size of the smallest dim.
func (f *Family) diagSize() int { return slices.Min(f.shape.Sizes) }

// FactorName returns the parameter name of the factor of outer product term `term` for the
// axis `axis` (an index into Shape().Dims, not a dim id).
func (f *Family) FactorName(term, axis int) string {
	return fmt.Sprintf("%s/%d/%d", f.name, term, axis)
}

// DiagName returns the parameter name of the diagonal weights.
func (f *Family) DiagName() string { return f.name + "/diag" }

// ParameterNames returns the names of all parameters, the factors by term and axis, and the
// diagonal weights last.
func (f *Family) ParameterNames() []string {
	names := make([]string, 0, f.rank*f.shape.Rank()+1)
	for term := range f.rank {
		for axis := range f.shape.Rank() {
			names = append(names, f.FactorName(term, axis))
		}
	}
	return append(names, f.DiagName())
}

// ParameterShapes returns the shape of each parameter.
func (f *Family) ParameterShapes() map[string]tensors.Shape {
	shapes := make(map[string]tensors.Shape, f.rank*f.shape.Rank()+1)
	for term := range f.rank {
		for axis, dim := range f.shape.Dims {
			shapes[f.FactorName(term, axis)] = tensors.MakeShape([]int{dim}, []int{f.shape.Sizes[axis]})
		}
	}
	shapes[f.DiagName()] = tensors.MakeShape([]int{f.diagDim}, []int{f.diagSize()})
	return shapes
}

// Zeros returns all parameters set to 0.
//
// Notice the gradient of a factor is 0 while the other factors of its term are 0, so training
// usually starts from Random.
func (f *Family) Zeros() map[string]*tensors.Tensor {
	params := make(map[string]*tensors.Tensor)
	for name, shape := range f.ParameterShapes() {
		params[name] = tensors.Zeros(shape)
	}
	return params
}

// Random returns the factors drawn from a normal distribution with the given standard deviation,
// and the diagonal weights set to 0.
func (f *Family) Random(rng *rand.Rand, stddev float64) map[string]*tensors.Tensor {
	params := f.Zeros()
	for _, name := range f.ParameterNames() {
		if name == f.DiagName() {
			continue
		}
		params[name] = params[name].Map(func(float64) float64 { return stddev * rng.NormFloat64() })
	}
	return params
}

// InitializeToIdentity returns a copy of params with 1 added to the diagonal weights, so a zero
// initialized matrix becomes the identity. Families with a single dim are returned unchanged.
//
// It returns an error if the diagonal weights are missing or have the wrong shape.
func (f *Family) InitializeToIdentity(params map[string]*tensors.Tensor) (map[string]*tensors.Tensor, error) {
	diagShape := f.ParameterShapes()[f.DiagName()]
	diag, found := params[f.DiagName()]
	if !found || diag == nil {
		return nil, errors.Errorf("lowrank.InitializeToIdentity(%q): missing parameter %q", f.name, f.DiagName())
	}
	if err := diag.Shape().CheckEqual(diagShape); err != nil {
		return nil, errors.WithMessagef(err, "lowrank.InitializeToIdentity(%q)", f.name)
	}
	initialized := make(map[string]*tensors.Tensor, len(params))
	for name, value := range params {
		initialized[name] = value
	}
	if f.shape.Rank() >= 2 {
		initialized[f.DiagName()] = diag.AddScalar(1)
	}
	return initialized, nil
}

// Build returns the node with the value of the tensor, given the values of its parameters.
// Each parameter becomes a cvsm.Parameter leaf, so backpropagating through the returned node
// accumulates the gradients of the factors and of the diagonal weights.
//
// It panics if a parameter is missing or has the wrong shape, like other node constructors.
func (f *Family) Build(params map[string]*tensors.Tensor) *cvsm.Node {
	shapes := f.ParameterShapes()
	param := func(name string) *cvsm.Node {
		value, found := params[name]
		if !found || value == nil {
			exceptions.Panicf("lowrank.Build(%q): missing parameter %q", f.name, name)
		}
		if err := value.Shape().CheckEqual(shapes[name]); err != nil {
			panic(errors.WithMessagef(err, "lowrank.Build(%q): parameter %q", f.name, name))
		}
		return cvsm.Parameter(name, value)
	}

	// The diagonal is the selector contracted with the weights over diagDim.
	tensor := cvsm.InnerProduct(cvsm.Constant(f.selector), param(f.DiagName()))
	for term := range f.rank {
		outer := param(f.FactorName(term, 0))
		for axis := 1; axis < f.shape.Rank(); axis++ {
			outer = cvsm.OuterProduct(outer, param(f.FactorName(term, axis)))
		}
		tensor = cvsm.Add(tensor, outer)
	}
	return tensor
}

// Dense returns the value of the tensor given the values of its parameters.
func (f *Family) Dense(params map[string]*tensors.Tensor) (dense *tensors.Tensor, err error) {
	err = exceptions.TryCatch[error](func() { dense = f.Build(params).Value() })
	if err != nil {
		return nil, err
	}
	return dense, nil
}
