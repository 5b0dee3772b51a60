// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// cvsm_gradcheck runs the finite differences gradient checks of every node type of the cvsm
// package, over a number of random trials, and prints a report.
//
// Usage:
//
//	cvsm_gradcheck -trials=10 -size=4 -kinds=Softmax,Bind -plot=gradients.png
//
// It exits with status 1 if any check fails.
package main

import (
	"flag"
	"fmt"
	"os"
	"runtime"

	"github.com/gomlx/cvsm/pkg/core/cvsm"
	"github.com/gomlx/cvsm/pkg/core/cvsm/gradcheck"
	"github.com/gomlx/cvsm/pkg/support/fsutil"
	"github.com/gomlx/cvsm/pkg/support/xslices"
	"github.com/janpfeifer/must"
	"k8s.io/klog/v2"
)

var (
	flagTrials = flag.Int("trials", 5, "Number of random trials: each trial checks every case with new random values.")
	flagSize   = flag.Int("size", 3, "Size of the vectors used by the cases. Matrices are size x (size+1).")
	flagSeed   = flag.Uint64("seed", 42, "Random seed, runs with the same seed check the same values.")

	flagEpsilon = flag.Float64("epsilon", gradcheck.DefaultConfig().Epsilon,
		"Perturbation used for the finite differences.")
	flagTolerance = flag.Float64("tolerance", gradcheck.DefaultConfig().Tolerance,
		"Maximum error accepted, relative to max(1, |analytic|, |numeric|).")

	flagKinds = xslices.Flag("kinds", nil,
		"Comma-separated list of node types to check (e.g. \"Softmax,Bind\"). Defaults to all.",
		cvsm.NodeTypeFromString)

	flagPlot = flag.String("plot", "",
		"If set, saves a scatter plot of the analytic vs numeric derivatives to the given PNG file.")
	flagQuiet   = flag.Bool("quiet", false, "Don't display the progress bar.")
	flagWorkers = flag.Int("workers", runtime.NumCPU(), "Number of cases checked in parallel.")
)

func main() {
	klog.InitFlags(nil)
	flag.Parse()
	if *flagTrials <= 0 || *flagSize <= 0 {
		klog.Exitf("-trials and -size must be positive, got %d and %d", *flagTrials, *flagSize)
	}
	config := gradcheck.Config{Epsilon: *flagEpsilon, Tolerance: *flagTolerance}

	summaries := run(config, runOptions{
		trials:       *flagTrials,
		size:         *flagSize,
		seed:         *flagSeed,
		kinds:        *flagKinds,
		workers:      *flagWorkers,
		showProgress: !*flagQuiet,
	})
	if len(summaries) == 0 {
		klog.Exitf("No cases selected by -kinds=%v", *flagKinds)
	}
	fmt.Println(renderReport(config, summaries))

	if *flagPlot != "" {
		plotPath, exists := must.M2(fsutil.PrepareOutputFile(*flagPlot))
		if exists {
			klog.Infof("Overwriting %q", plotPath)
		}
		must.M(savePlot(plotPath, summaries))
		fmt.Printf("Plot saved to %q\n", plotPath)
	}
	if failed := numFailedCases(summaries); failed > 0 {
		klog.Errorf("%d cases failed the gradient check", failed)
		os.Exit(1)
	}
}
