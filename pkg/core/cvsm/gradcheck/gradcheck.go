// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// Package gradcheck compares the gradients accumulated by cvsm's backward pass against centered
// finite differences of the objective.
//
// A Case describes how to build a tree from a set of parameter values. Check builds it once to
// get the analytic gradient (Backpropagate with the case's seed), and then twice per parameter
// element with the element perturbed by +/-Epsilon, to estimate the gradient of
//
//	cvsm.Objective(root) + <seed, root.Value()>
//
// which is exactly what Backpropagate accumulates.
package gradcheck

import (
	"math"

	"github.com/gomlx/cvsm/pkg/core/cvsm"
	"github.com/gomlx/cvsm/pkg/core/tensors"
	"github.com/gomlx/cvsm/pkg/support/xslices"
	"github.com/gomlx/exceptions"
	"github.com/pkg/errors"
	"k8s.io/klog/v2"
)

// Config of the finite differences check.
type Config struct {
	// Epsilon is the perturbation applied to each parameter element.
	Epsilon float64

	// Tolerance is the maximum error accepted, see Result.Error.
	Tolerance float64
}

// DefaultConfig returns the configuration used by the tests.
func DefaultConfig() Config {
	return Config{Epsilon: 1e-5, Tolerance: 1e-5}
}

// BuildFn builds a tree from the parameter values, usually wrapping them with cvsm.Parameter under
// the same names.
type BuildFn func(params map[string]*tensors.Tensor) *cvsm.Node

// Case is one gradient check.
type Case struct {
	// Name identifies the case in reports.
	Name string

	// Type is the node type the case is meant to exercise, used for filtering.
	Type cvsm.NodeType

	// Params holds the values at which the gradient is checked.
	Params map[string]*tensors.Tensor

	// Build creates the tree.
	Build BuildFn

	// Seed is the gradient fed to Backpropagate. If nil, a zero seed is used, and only the losses
	// in the tree contribute.
	Seed *tensors.Tensor

	// ExpectErr, if set, is the error Check is expected to fail with (see errors.Is).
	ExpectErr error
}

// Verify runs Check and returns whether the case behaved as expected: either it failed with the
// expected error, or it wasn't expected to fail and the gradients matched.
// The report is nil if Check failed.
func (c Case) Verify(config Config) (report *Report, ok bool, err error) {
	report, err = Check(c, config)
	if c.ExpectErr != nil {
		return report, errors.Is(err, c.ExpectErr), err
	}
	return report, err == nil && report.Passed, err
}

// Result of the check of one parameter element.
type Result struct {
	Parameter string
	Index     int

	Analytic, Numeric float64

	// Error is |Analytic - Numeric| / max(1, |Analytic|, |Numeric|).
	Error float64
}

// Report of a Case.
type Report struct {
	Case     string
	Type     cvsm.NodeType
	Results  []Result
	MaxError float64

	// Passed is true if every Result.Error is within tolerance.
	Passed bool
}

// NumFailed returns the number of results with errors above tolerance.
func (r *Report) NumFailed(config Config) int {
	var count int
	for _, result := range r.Results {
		if !(result.Error <= config.Tolerance) {
			count++
		}
	}
	return count
}

// objective evaluates the scalar whose gradient the backward pass of root accumulates.
func objective(root *cvsm.Node, seed *tensors.Tensor) float64 {
	obj := cvsm.Objective(root)
	if seed != nil {
		obj += seed.Mul(root.Value()).Sum()
	}
	return obj
}

// Check runs the finite differences check of c.
//
// It returns an error if building the tree or the backward pass fails, e.g. for trees with
// non-differentiable nodes. Gradient disagreements are reported in the Report, not as errors.
func Check(c Case, config Config) (report *Report, err error) {
	if c.Build == nil {
		return nil, errors.Errorf("gradcheck.Check(%q): Build is nil", c.Name)
	}
	if !(config.Epsilon > 0) {
		return nil, errors.Errorf("gradcheck.Check(%q): Epsilon must be > 0, got %g", c.Name, config.Epsilon)
	}
	err = exceptions.TryCatch[error](func() { report = check(c, config) })
	if err != nil {
		return nil, errors.WithMessagef(err, "gradcheck.Check(%q)", c.Name)
	}
	return report, nil
}

func check(c Case, config Config) *Report {
	root := c.Build(c.Params)
	seed := c.Seed
	if seed == nil {
		seed = tensors.ZerosLike(root.Value())
	}
	sink := cvsm.NewGradientSink()
	if err := root.Backpropagate(seed, sink); err != nil {
		panic(err)
	}

	report := &Report{Case: c.Name, Type: c.Type, Passed: true}
	for _, name := range xslices.SortedKeys(c.Params) {
		value := c.Params[name]
		analytic := sink.Get(name)
		if analytic == nil {
			analytic = tensors.ZerosLike(value)
		}
		analyticFlat := analytic.Flat()
		for ii := range value.Size() {
			numeric := numericDerivative(c, seed, name, ii, config.Epsilon)
			diff := math.Abs(analyticFlat[ii] - numeric)
			result := Result{
				Parameter: name,
				Index:     ii,
				Analytic:  analyticFlat[ii],
				Numeric:   numeric,
				Error:     diff / max(1, math.Abs(analyticFlat[ii]), math.Abs(numeric)),
			}
			report.MaxError = max(report.MaxError, result.Error)
			if !(result.Error <= config.Tolerance) {
				report.Passed = false
				klog.V(1).Infof("gradcheck %q: %s[%d] analytic=%g numeric=%g", c.Name, name, ii,
					result.Analytic, result.Numeric)
			}
			report.Results = append(report.Results, result)
		}
	}
	return report
}

// numericDerivative of the objective with respect to element ii of parameter name.
func numericDerivative(c Case, seed *tensors.Tensor, name string, ii int, epsilon float64) float64 {
	evalAt := func(delta float64) float64 {
		params := make(map[string]*tensors.Tensor, len(c.Params))
		for key, value := range c.Params {
			params[key] = value
		}
		value := c.Params[name]
		flat := value.Flat()
		flat[ii] += delta
		params[name] = tensors.FromShape(value.Shape(), flat)
		return objective(c.Build(params), seed)
	}
	return (evalAt(epsilon) - evalAt(-epsilon)) / (2 * epsilon)
}
