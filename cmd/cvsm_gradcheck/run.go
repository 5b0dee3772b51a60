// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package main

import (
	"math/rand/v2"
	"os"

	"github.com/gomlx/cvsm/pkg/core/cvsm"
	"github.com/gomlx/cvsm/pkg/core/cvsm/gradcheck"
	"github.com/gomlx/cvsm/pkg/support/xsync"
	"github.com/muesli/termenv"
	"github.com/schollz/progressbar/v3"
	"k8s.io/klog/v2"
)

type runOptions struct {
	trials, size int
	seed         uint64
	kinds        []cvsm.NodeType
	workers      int
	showProgress bool
}

// caseSummary aggregates the checks of one case over all trials.
type caseSummary struct {
	name      string
	nodeType  cvsm.NodeType
	expectErr error

	trials, failedTrials int
	numChecks            int
	maxError             float64

	// unexpectedErr is the last error returned by a case not expected to fail.
	unexpectedErr error
	results       []gradcheck.Result
}

func (s *caseSummary) add(report *gradcheck.Report, ok bool, err error) {
	s.trials++
	if !ok {
		s.failedTrials++
	}
	if err != nil && s.expectErr == nil {
		s.unexpectedErr = err
	}
	if report != nil {
		s.numChecks += len(report.Results)
		s.maxError = max(s.maxError, report.MaxError)
		s.results = append(s.results, report.Results...)
	}
}

// failed returns whether any trial of the case failed.
func (s *caseSummary) failed() bool { return s.failedTrials > 0 }

func numFailedCases(summaries []*caseSummary) int {
	var count int
	for _, s := range summaries {
		if s.failed() {
			count++
		}
	}
	return count
}

// ProgressbarStyle to use. Defaults to the ASCII version.
var ProgressbarStyle = progressbar.ThemeASCII

func newProgressBar(total int) *progressbar.ProgressBar {
	return progressbar.NewOptions(total,
		progressbar.OptionSetDescription("Checking gradients"),
		progressbar.OptionSetWriter(os.Stderr),
		progressbar.OptionShowCount(),
		progressbar.OptionShowIts(),
		progressbar.OptionSetItsString("cases"),
		progressbar.OptionSetTheme(ProgressbarStyle),
		progressbar.OptionClearOnFinish(),
	)
}

type job struct {
	trial   int
	c       gradcheck.Case
	summary *caseSummary

	report *gradcheck.Report
	ok     bool
	err    error
}

// run checks every selected case once per trial, and returns the summaries in catalogue order.
// Checks run in parallel, but the results are aggregated in order, so they don't depend on
// opts.workers.
func run(config gradcheck.Config, opts runOptions) []*caseSummary {
	var summaries []*caseSummary
	byName := make(map[string]*caseSummary)
	var jobs []*job
	for trial := range opts.trials {
		// Each trial draws its own values from a generator seeded with (seed, trial).
		rng := rand.New(rand.NewPCG(opts.seed, uint64(trial)))
		for _, c := range gradcheck.Filter(gradcheck.Cases(rng, opts.size), opts.kinds) {
			summary, found := byName[c.Name]
			if !found {
				summary = &caseSummary{name: c.Name, nodeType: c.Type, expectErr: c.ExpectErr}
				byName[c.Name] = summary
				summaries = append(summaries, summary)
			}
			jobs = append(jobs, &job{trial: trial, c: c, summary: summary})
		}
	}

	var bar *progressbar.ProgressBar
	if opts.showProgress {
		output := termenv.NewOutput(os.Stderr)
		output.HideCursor()
		defer output.ShowCursor()
		bar = newProgressBar(len(jobs))
	}
	xsync.ParallelFor(len(jobs), opts.workers, func(ii int) {
		j := jobs[ii]
		j.report, j.ok, j.err = j.c.Verify(config)
		if bar != nil {
			_ = bar.Add(1)
		}
	})
	if bar != nil {
		_ = bar.Finish()
	}

	for _, j := range jobs {
		if !j.ok {
			klog.V(1).Infof("trial %d: case %q failed (err=%v)", j.trial, j.c.Name, j.err)
		}
		j.summary.add(j.report, j.ok, j.err)
	}
	return summaries
}
