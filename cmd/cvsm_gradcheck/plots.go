// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package main

import (
	"image/color"
	"math"

	"github.com/pkg/errors"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
)

// savePlot saves a scatter plot of the analytic vs numeric derivatives of all cases. Correct
// gradients lie on the diagonal, which is also drawn.
func savePlot(filePath string, summaries []*caseSummary) error {
	var points plotter.XYs
	for _, s := range summaries {
		for _, result := range s.results {
			if math.IsNaN(result.Analytic) || math.IsNaN(result.Numeric) ||
				math.IsInf(result.Analytic, 0) || math.IsInf(result.Numeric, 0) {
				continue
			}
			points = append(points, plotter.XY{X: result.Analytic, Y: result.Numeric})
		}
	}
	if len(points) == 0 {
		return errors.New("no derivatives to plot")
	}

	p := plot.New()
	p.Title.Text = "Analytic vs numeric derivatives"
	p.X.Label.Text = "analytic (backpropagate)"
	p.Y.Label.Text = "numeric (finite differences)"

	scatter, err := plotter.NewScatter(points)
	if err != nil {
		return errors.Wrap(err, "failed to create scatter plot")
	}
	scatter.GlyphStyle.Radius = vg.Points(2)
	scatter.GlyphStyle.Color = color.RGBA{R: 0x70, G: 0x50, B: 0x90, A: 0xff}

	diagonal := plotter.NewFunction(func(x float64) float64 { return x })
	diagonal.Color = color.Gray{Y: 0x99}
	diagonal.Dashes = []vg.Length{vg.Points(4), vg.Points(4)}

	p.Add(plotter.NewGrid(), diagonal, scatter)
	if err := p.Save(8*vg.Inch, 8*vg.Inch, filePath); err != nil {
		return errors.Wrapf(err, "failed to save plot to %q", filePath)
	}
	return nil
}
