// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package gradcheck

import (
	"math"
	"math/rand/v2"

	"github.com/gomlx/cvsm/pkg/core/cvsm"
	"github.com/gomlx/cvsm/pkg/core/cvsm/lowrank"
	"github.com/gomlx/cvsm/pkg/core/tensors"
	"github.com/gomlx/cvsm/pkg/support/sets"
	"github.com/janpfeifer/must"
)

// uniform returns a tensor of the given shape with values drawn uniformly from [lo, hi).
func uniform(rng *rand.Rand, shape tensors.Shape, lo, hi float64) *tensors.Tensor {
	values := make([]float64, shape.Size())
	for ii := range values {
		values[ii] = lo + (hi-lo)*rng.Float64()
	}
	return tensors.FromShape(shape, values)
}

func vectorShape(dim, size int) tensors.Shape { return tensors.MakeShape([]int{dim}, []int{size}) }

func matrixShape(rows, cols int) tensors.Shape {
	return tensors.MakeShape([]int{0, 1}, []int{rows, cols})
}

// avoiding moves values within margin of any of the given points away from them, so finite
// differences don't straddle a kink.
func avoiding(t *tensors.Tensor, margin float64, points ...float64) *tensors.Tensor {
	return t.Map(func(v float64) float64 {
		for _, p := range points {
			if math.Abs(v-p) < margin {
				v = p + 2*margin
			}
		}
		return v
	})
}

// distribution returns a random probability distribution over the given shape.
func distribution(rng *rand.Rand, shape tensors.Shape) *tensors.Tensor {
	t := uniform(rng, shape, 0.1, 1)
	return t.Scale(1 / t.Sum())
}

// binaryTargets returns a tensor of random 0s and 1s.
func binaryTargets(rng *rand.Rand, shape tensors.Shape) *tensors.Tensor {
	return uniform(rng, shape, 0, 1).Map(func(v float64) float64 { return math.Round(v) })
}

func param(params map[string]*tensors.Tensor, name string) *cvsm.Node {
	return cvsm.Parameter(name, params[name])
}

// Cases returns the catalogue of gradient checks, at least one per node type, using random values
// drawn from rng. Vectors have size elements, and matrices are size x (size+1), so transposition
// errors show up.
//
// ZeroOneLoss is included with ExpectErr set to cvsm.ErrNotDifferentiable.
func Cases(rng *rand.Rand, size int) []Case {
	if size < 1 {
		size = 1
	}
	n, m := size, size+1
	vec := vectorShape(0, n)
	mat := matrixShape(n, m)
	unit := func(shape tensors.Shape) *tensors.Tensor { return uniform(rng, shape, -1, 1) }

	var cases []Case
	add := func(c Case) { cases = append(cases, c) }

	add(Case{
		Name: "Parameter", Type: cvsm.NodeTypeParameter,
		Params: map[string]*tensors.Tensor{"x": unit(vec)},
		Build:  func(p map[string]*tensors.Tensor) *cvsm.Node { return param(p, "x") },
		Seed:   unit(vec),
	})
	constant := unit(vec)
	add(Case{
		Name: "Constant", Type: cvsm.NodeTypeConstant,
		Params: map[string]*tensors.Tensor{"x": unit(vec)},
		Build: func(p map[string]*tensors.Tensor) *cvsm.Node {
			return cvsm.Mul(param(p, "x"), cvsm.Constant(constant))
		},
		Seed: unit(vec),
	})
	add(Case{
		Name: "Add", Type: cvsm.NodeTypeAdd,
		Params: map[string]*tensors.Tensor{"x": unit(mat), "y": unit(mat)},
		Build: func(p map[string]*tensors.Tensor) *cvsm.Node {
			return cvsm.Add(param(p, "x"), param(p, "y"))
		},
		Seed: unit(mat),
	})
	add(Case{
		Name: "Mul", Type: cvsm.NodeTypeMul,
		Params: map[string]*tensors.Tensor{"x": unit(mat), "y": unit(mat)},
		Build: func(p map[string]*tensors.Tensor) *cvsm.Node {
			return cvsm.Mul(param(p, "x"), param(p, "y"))
		},
		Seed: unit(mat),
	})

	unaryCases := []struct {
		name     string
		nodeType cvsm.NodeType
		build    func(x *cvsm.Node) *cvsm.Node
		x        *tensors.Tensor
	}{
		{"Exp", cvsm.NodeTypeExp, cvsm.Exp, unit(vec)},
		{"Log", cvsm.NodeTypeLog, cvsm.Log, uniform(rng, vec, 0.5, 2)},
		{"Tanh", cvsm.NodeTypeTanh, cvsm.Tanh, uniform(rng, vec, -2, 2)},
		{"Logistic", cvsm.NodeTypeLogistic, cvsm.Logistic, uniform(rng, vec, -3, 3)},
		{"LaplaceSigmoid", cvsm.NodeTypeLaplaceSigmoid,
			func(x *cvsm.Node) *cvsm.Node { return cvsm.LaplaceSigmoid(x, 1.5) },
			avoiding(uniform(rng, vec, -2, 2), 0.05, 0)},
		{"Softmax", cvsm.NodeTypeSoftmax, cvsm.Softmax, uniform(rng, vec, -2, 2)},
	}
	for _, unary := range unaryCases {
		add(Case{
			Name: unary.name, Type: unary.nodeType,
			Params: map[string]*tensors.Tensor{"x": unary.x},
			Build: func(p map[string]*tensors.Tensor) *cvsm.Node {
				return unary.build(param(p, "x"))
			},
			Seed: unit(vec),
		})
	}

	add(Case{
		Name: "Diag", Type: cvsm.NodeTypeDiag,
		Params: map[string]*tensors.Tensor{"x": unit(vec)},
		Build: func(p map[string]*tensors.Tensor) *cvsm.Node {
			return cvsm.Diag(param(p, "x"), 1, 2)
		},
		Seed: unit(tensors.MakeShape([]int{1, 2}, []int{n, n})),
	})
	add(Case{
		Name: "RelabelDims", Type: cvsm.NodeTypeRelabelDims,
		Params: map[string]*tensors.Tensor{"m": unit(mat)},
		Build: func(p map[string]*tensors.Tensor) *cvsm.Node {
			return cvsm.RelabelDims(param(p, "m"), map[int]int{0: 1, 1: 0})
		},
		Seed: unit(matrixShape(m, n)),
	})
	add(Case{
		Name: "InnerProduct", Type: cvsm.NodeTypeInnerProduct,
		Params: map[string]*tensors.Tensor{"m": unit(mat), "v": unit(vectorShape(1, m))},
		Build: func(p map[string]*tensors.Tensor) *cvsm.Node {
			return cvsm.InnerProduct(param(p, "m"), param(p, "v"))
		},
		Seed: unit(vec),
	})
	add(Case{
		Name: "InnerProduct/shared", Type: cvsm.NodeTypeInnerProduct,
		Params: map[string]*tensors.Tensor{"x": unit(vec)},
		Build: func(p map[string]*tensors.Tensor) *cvsm.Node {
			x := param(p, "x")
			return cvsm.InnerProduct(x, x)
		},
		Seed: tensors.Scalar(0.5 + rng.Float64()),
	})
	add(Case{
		Name: "OuterProduct", Type: cvsm.NodeTypeOuterProduct,
		Params: map[string]*tensors.Tensor{"a": unit(vec), "b": unit(vectorShape(1, m))},
		Build: func(p map[string]*tensors.Tensor) *cvsm.Node {
			return cvsm.OuterProduct(param(p, "a"), param(p, "b"))
		},
		Seed: unit(mat),
	})
	// Low-rank matrix: gradients flow to the factors through OuterProduct, Add and InnerProduct.
	family := must.M1(lowrank.New("W", mat, 2))
	lowRankParams := family.Random(rng, 1)
	lowRankParams[family.DiagName()] = unit(family.ParameterShapes()[family.DiagName()])
	add(Case{
		Name: "OuterProduct/lowrank", Type: cvsm.NodeTypeOuterProduct,
		Params: lowRankParams,
		Build:  family.Build,
		Seed:   unit(mat),
	})

	// Losses, seeded with zeros: only the loss gradient is checked.
	squareTarget := unit(vec)
	add(Case{
		Name: "SquareLoss", Type: cvsm.NodeTypeSquareLoss,
		Params: map[string]*tensors.Tensor{"w": unit(mat), "x": unit(vectorShape(1, m))},
		Build: func(p map[string]*tensors.Tensor) *cvsm.Node {
			return cvsm.SquareLoss(squareTarget, cvsm.Tanh(cvsm.InnerProduct(param(p, "w"), param(p, "x"))))
		},
	})
	bernoulliTarget := uniform(rng, vec, 0, 1)
	add(Case{
		Name: "KLElementwiseLoss", Type: cvsm.NodeTypeKLElementwiseLoss,
		Params: map[string]*tensors.Tensor{"x": uniform(rng, vec, -2, 2)},
		Build: func(p map[string]*tensors.Tensor) *cvsm.Node {
			return cvsm.KLElementwiseLoss(bernoulliTarget, cvsm.Logistic(param(p, "x")))
		},
	})
	klTarget := distribution(rng, vec)
	add(Case{
		Name: "KLLoss", Type: cvsm.NodeTypeKLLoss,
		Params: map[string]*tensors.Tensor{"x": uniform(rng, vec, -2, 2)},
		Build: func(p map[string]*tensors.Tensor) *cvsm.Node {
			return cvsm.KLLoss(klTarget, cvsm.Softmax(param(p, "x")))
		},
	})
	hingeTarget := binaryTargets(rng, vec)
	add(Case{
		Name: "HingeElementwiseLoss", Type: cvsm.NodeTypeHingeElementwiseLoss,
		Params: map[string]*tensors.Tensor{"x": avoiding(uniform(rng, vec, -2, 2), 0.05, -1, 1)},
		Build: func(p map[string]*tensors.Tensor) *cvsm.Node {
			return cvsm.HingeElementwiseLoss(hingeTarget, param(p, "x"))
		},
	})
	oneHotValues := make([]float64, n)
	oneHotValues[rng.IntN(n)] = 1
	oneHot := tensors.FromShape(vec, oneHotValues)
	add(Case{
		Name: "ZeroOneLoss", Type: cvsm.NodeTypeZeroOneLoss,
		Params: map[string]*tensors.Tensor{"x": unit(vec)},
		Build: func(p map[string]*tensors.Tensor) *cvsm.Node {
			return cvsm.ZeroOneLoss(oneHot, cvsm.Softmax(param(p, "x")))
		},
		ExpectErr: cvsm.ErrNotDifferentiable,
	})
	add(Case{
		Name: "ValueLoss", Type: cvsm.NodeTypeValueLoss,
		Params: map[string]*tensors.Tensor{"x": unit(vec), "y": unit(vec)},
		Build: func(p map[string]*tensors.Tensor) *cvsm.Node {
			return cvsm.ValueLoss(cvsm.InnerProduct(param(p, "x"), cvsm.Tanh(param(p, "y"))))
		},
	})

	// Bind: the evaluated tree refers to the subtree value through "h", and also has its own
	// parameter "u", which must be forwarded.
	bindTarget := distribution(rng, vec)
	add(Case{
		Name: "Bind", Type: cvsm.NodeTypeBind,
		Params: map[string]*tensors.Tensor{"w": unit(mat), "x": unit(vectorShape(1, m)), "u": unit(vec)},
		Build: func(p map[string]*tensors.Tensor) *cvsm.Node {
			subtree := cvsm.Tanh(cvsm.InnerProduct(param(p, "w"), param(p, "x")))
			h := cvsm.Parameter("h", subtree.Value())
			evaluated := cvsm.KLLoss(bindTarget, cvsm.Softmax(cvsm.Add(cvsm.Mul(h, h), param(p, "u"))))
			return cvsm.Bind(subtree, evaluated, "h")
		},
		Seed: unit(vec),
	})
	return cases
}

// Filter returns the cases whose Type is one of kinds. If kinds is empty all cases are returned.
func Filter(cases []Case, kinds []cvsm.NodeType) []Case {
	if len(kinds) == 0 {
		return cases
	}
	wanted := sets.MakeWith(kinds...)
	var filtered []Case
	for _, c := range cases {
		if wanted.Has(c.Type) {
			filtered = append(filtered, c)
		}
	}
	return filtered
}
